// Package gateway terminates inbound platform webhooks. Verification runs
// synchronously inside the request against the raw body bytes; everything
// downstream of a verified event is handed to the ingest forwarder and
// happens after the HTTP response.
package gateway

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Bizinso/BizSocials-sub013/internal/config"
	"github.com/Bizinso/BizSocials-sub013/internal/ingest"
	"github.com/Bizinso/BizSocials-sub013/internal/signature"
)

const (
	headerMetaSignature    = "X-Hub-Signature-256"
	headerTwitterSignature = "X-Twitter-Webhooks-Signature"

	PlatformMeta    = "meta"
	PlatformTwitter = "twitter"
)

type Handler struct {
	cfg       *config.InboundConfig
	forwarder *ingest.Forwarder
	logger    *zap.Logger
}

func NewHandler(cfg *config.InboundConfig, forwarder *ingest.Forwarder, logger *zap.Logger) *Handler {
	return &Handler{
		cfg:       cfg,
		forwarder: forwarder,
		logger:    logger,
	}
}

// MetaVerify handles Meta's GET subscription handshake: echo the challenge
// as plain text when the pre-shared verify token matches.
func (h *Handler) MetaVerify(c *fiber.Ctx) error {
	mode := c.Query("hub_mode")
	token := c.Query("hub_verify_token")
	challenge := c.Query("hub_challenge")

	if mode != "subscribe" || token != h.cfg.MetaVerifyToken {
		h.logger.Warn("Meta webhook verification rejected",
			zap.String("platform", PlatformMeta),
			zap.String("hub_mode", mode),
		)
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"error":   "Verification failed",
		})
	}

	c.Set("Content-Type", "text/plain")
	return c.SendString(challenge)
}

// MetaEvents handles Meta's POST event notifications.
func (h *Handler) MetaEvents(c *fiber.Ctx) error {
	rawBody := c.Body()
	sig := c.Get(headerMetaSignature)

	if !signature.VerifySHA256(rawBody, sig, h.cfg.MetaAppSecret) {
		return h.rejectSignature(c, PlatformMeta)
	}

	var payload struct {
		Object string            `json:"object"`
		Entry  []json.RawMessage `json:"entry"`
	}
	if err := json.Unmarshal(rawBody, &payload); err != nil || payload.Object == "" {
		return h.internalError(c, PlatformMeta, err)
	}

	receivedAt := time.Now().UTC()
	for _, entry := range payload.Entry {
		h.forwarder.Enqueue(ingest.Event{
			Platform:   PlatformMeta,
			Kind:       payload.Object,
			ScopeHint:  entryID(entry),
			Payload:    append(json.RawMessage(nil), entry...),
			ReceivedAt: receivedAt,
		})
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"processed": len(payload.Entry),
	})
}

// TwitterCRC answers Twitter's GET challenge-response check. This is a
// liveness probe, not an event, and must be answered within the request.
func (h *Handler) TwitterCRC(c *fiber.Ctx) error {
	crcToken := c.Query("crc_token")
	if crcToken == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "crc_token is required",
		})
	}

	return c.JSON(fiber.Map{
		"response_token": signature.CRCResponseToken(crcToken, h.cfg.TwitterConsumerSecret),
	})
}

// TwitterEvents handles Twitter's POST account-activity notifications.
func (h *Handler) TwitterEvents(c *fiber.Ctx) error {
	rawBody := c.Body()
	sig := c.Get(headerTwitterSignature)

	if !signature.VerifyBase64SHA256(rawBody, sig, h.cfg.TwitterConsumerSecret) {
		return h.rejectSignature(c, PlatformTwitter)
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(rawBody, &payload); err != nil || len(payload) == 0 {
		return h.internalError(c, PlatformTwitter, err)
	}

	scopeHint := ""
	if raw, ok := payload["for_user_id"]; ok {
		_ = json.Unmarshal(raw, &scopeHint)
	}

	// Each activity array in the body ("tweet_create_events",
	// "direct_message_events", ...) becomes one normalized event.
	receivedAt := time.Now().UTC()
	processed := 0
	for key, raw := range payload {
		if len(raw) == 0 || raw[0] != '[' {
			continue
		}
		h.forwarder.Enqueue(ingest.Event{
			Platform:   PlatformTwitter,
			Kind:       key,
			ScopeHint:  scopeHint,
			Payload:    append(json.RawMessage(nil), raw...),
			ReceivedAt: receivedAt,
		})
		processed++
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"processed": processed,
	})
}

// rejectSignature answers 403 with a generic message. Which part of the
// signature failed is never revealed; the compare is constant time.
func (h *Handler) rejectSignature(c *fiber.Ctx, platform string) error {
	h.logger.Warn("Invalid webhook signature",
		zap.String("platform", platform),
		zap.String("path", c.Path()),
	)
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"success": false,
		"error":   "Invalid webhook signature",
	})
}

// internalError answers 500 for payloads that verified but failed to parse.
// This is an internal defect, not a security event, and is logged as such.
func (h *Handler) internalError(c *fiber.Ctx, platform string, err error) error {
	h.logger.Error("Webhook processing failed after verification",
		zap.String("platform", platform),
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"error":   "Webhook processing failed",
	})
}

func entryID(entry json.RawMessage) string {
	var e struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(entry, &e)
	return e.ID
}
