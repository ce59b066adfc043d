package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Bizinso/BizSocials-sub013/internal/dispatcher"
	"github.com/Bizinso/BizSocials-sub013/internal/models"
	"github.com/Bizinso/BizSocials-sub013/internal/registry"
	"github.com/Bizinso/BizSocials-sub013/internal/worker"
)

// HeaderScopeID carries the tenant/workspace scope of management requests.
// Authentication itself is the API gateway's concern; this service only
// enforces endpoint-to-scope ownership.
const HeaderScopeID = "X-Scope-ID"

type EndpointsHandler struct {
	registry  *registry.Service
	publisher dispatcher.TaskPublisher
	logger    *zap.Logger
}

func NewEndpointsHandler(reg *registry.Service, publisher dispatcher.TaskPublisher, logger *zap.Logger) *EndpointsHandler {
	return &EndpointsHandler{
		registry:  reg,
		publisher: publisher,
		logger:    logger,
	}
}

type createEndpointRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Active *bool    `json:"active"`
}

type updateEndpointRequest struct {
	URL    *string  `json:"url"`
	Events []string `json:"events"`
	Active *bool    `json:"active"`
}

// List handles GET /endpoints.
func (h *EndpointsHandler) List(c *fiber.Ctx) error {
	scopeID, ok, err := scopeFromHeader(c)
	if !ok {
		return err
	}

	page, ok, err := pageFromQuery(c)
	if !ok {
		return err
	}

	endpoints, total, err := h.registry.List(c.Context(), scopeID, page)
	if err != nil {
		return h.serverError(c, "Failed to list endpoints", err)
	}
	if endpoints == nil {
		endpoints = []models.Endpoint{}
	}

	return c.JSON(fiber.Map{
		"endpoints": endpoints,
		"total":     total,
		"page":      page.Number,
		"per_page":  page.Limit(),
	})
}

// Create handles POST /endpoints. The generated secret appears in this
// response and nowhere else, ever.
func (h *EndpointsHandler) Create(c *fiber.Ctx) error {
	scopeID, ok, err := scopeFromHeader(c)
	if !ok {
		return err
	}

	var req createEndpointRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	ep, err := h.registry.Create(c.Context(), scopeID, req.URL, req.Events, active)
	if err != nil {
		if errors.Is(err, registry.ErrInvalid) {
			return badRequest(c, err.Error())
		}
		return h.serverError(c, "Failed to create endpoint", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"endpoint": ep,
		"secret":   ep.Secret,
	})
}

// Get handles GET /endpoints/:id.
func (h *EndpointsHandler) Get(c *fiber.Ctx) error {
	scopeID, endpointID, ok, err := scopeAndID(c)
	if !ok {
		return err
	}

	ep, err := h.registry.Get(c.Context(), scopeID, endpointID)
	if err != nil {
		return h.registryError(c, err)
	}
	return c.JSON(fiber.Map{"endpoint": ep})
}

// Update handles PATCH /endpoints/:id.
func (h *EndpointsHandler) Update(c *fiber.Ctx) error {
	scopeID, endpointID, ok, err := scopeAndID(c)
	if !ok {
		return err
	}

	var req updateEndpointRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	ep, err := h.registry.Update(c.Context(), scopeID, endpointID, registry.EndpointPatch{
		URL:    req.URL,
		Events: req.Events,
		Active: req.Active,
	})
	if err != nil {
		if errors.Is(err, registry.ErrInvalid) {
			return badRequest(c, err.Error())
		}
		return h.registryError(c, err)
	}
	return c.JSON(fiber.Map{"endpoint": ep})
}

// Delete handles DELETE /endpoints/:id.
func (h *EndpointsHandler) Delete(c *fiber.Ctx) error {
	scopeID, endpointID, ok, err := scopeAndID(c)
	if !ok {
		return err
	}

	if err := h.registry.Delete(c.Context(), scopeID, endpointID); err != nil {
		return h.registryError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListDeliveries handles GET /endpoints/:id/deliveries.
func (h *EndpointsHandler) ListDeliveries(c *fiber.Ctx) error {
	scopeID, endpointID, ok, err := scopeAndID(c)
	if !ok {
		return err
	}

	page, ok, err := pageFromQuery(c)
	if !ok {
		return err
	}

	records, total, err := h.registry.ListDeliveries(c.Context(), scopeID, endpointID, page)
	if err != nil {
		return h.registryError(c, err)
	}
	if records == nil {
		records = []models.DeliveryRecord{}
	}

	return c.JSON(fiber.Map{
		"deliveries": records,
		"total":      total,
		"page":       page.Number,
		"per_page":   page.Limit(),
	})
}

// TestDelivery handles POST /endpoints/:id/test: a manual single-attempt
// delivery of a synthetic "test" event, never retried.
func (h *EndpointsHandler) TestDelivery(c *fiber.Ctx) error {
	scopeID, endpointID, ok, err := scopeAndID(c)
	if !ok {
		return err
	}

	if _, err := h.registry.Get(c.Context(), scopeID, endpointID); err != nil {
		return h.registryError(c, err)
	}

	task := models.DeliveryTask{
		TaskID:     uuid.New(),
		EndpointID: endpointID,
		Event:      worker.TestEvent,
		Payload:    []byte(`{"message":"This is a test delivery"}`),
		Attempt:    1,
		Test:       true,
	}
	if err := h.publisher.PublishTask(task); err != nil {
		return h.serverError(c, "Failed to enqueue test delivery", err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success": true,
		"task_id": task.TaskID,
	})
}

func (h *EndpointsHandler) registryError(c *fiber.Ctx, err error) error {
	if errors.Is(err, registry.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Endpoint not found",
		})
	}
	return h.serverError(c, "Endpoint operation failed", err)
}

func (h *EndpointsHandler) serverError(c *fiber.Ctx, msg string, err error) error {
	h.logger.Error(msg,
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": msg,
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// The parsing helpers write the rejection response themselves and report
// ok=false; a nil error alone cannot signal failure, since c.JSON returns
// nil on a successfully written 400. Callers must stop when ok is false.

func scopeFromHeader(c *fiber.Ctx) (scopeID uuid.UUID, ok bool, err error) {
	raw := c.Get(HeaderScopeID)
	if raw == "" {
		return uuid.Nil, false, badRequest(c, HeaderScopeID+" header is required")
	}
	scopeID, parseErr := uuid.Parse(raw)
	if parseErr != nil {
		return uuid.Nil, false, badRequest(c, HeaderScopeID+" must be a UUID")
	}
	return scopeID, true, nil
}

func scopeAndID(c *fiber.Ctx) (scopeID, endpointID uuid.UUID, ok bool, err error) {
	scopeID, ok, err = scopeFromHeader(c)
	if !ok {
		return uuid.Nil, uuid.Nil, false, err
	}
	endpointID, parseErr := uuid.Parse(c.Params("id"))
	if parseErr != nil {
		// An unparsable id cannot exist; same answer as cross-scope access.
		return uuid.Nil, uuid.Nil, false, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Endpoint not found",
		})
	}
	return scopeID, endpointID, true, nil
}

func pageFromQuery(c *fiber.Ctx) (registry.Page, bool, error) {
	page := registry.Page{Number: 1, Size: 25}

	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return page, false, badRequest(c, "page must be a positive integer")
		}
		page.Number = n
	}
	if raw := c.Query("per_page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return page, false, badRequest(c, "per_page must be a positive integer")
		}
		page.Size = n
	}
	return page, true, nil
}
