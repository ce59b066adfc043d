// Package registry owns endpoint configuration: creation with secret
// generation, scoped reads, updates, transactional cascade deletion, and the
// delivery audit listing.
package registry

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/Bizinso/BizSocials-sub013/internal/models"
)

const secretBytes = 64

// EndpointPatch carries the mutable fields of an update. Nil means
// "leave unchanged". The secret is not patchable.
type EndpointPatch struct {
	URL    *string
	Events []string
	Active *bool
}

type Service struct {
	endpoints  EndpointStore
	deliveries DeliveryStore
	logger     *zap.Logger
}

func NewService(endpoints EndpointStore, deliveries DeliveryStore, logger *zap.Logger) *Service {
	return &Service{
		endpoints:  endpoints,
		deliveries: deliveries,
		logger:     logger,
	}
}

// Create registers a new endpoint for the scope and generates its signing
// secret. The secret is returned on the model exactly once; reads never
// serialize it again.
func (s *Service) Create(ctx context.Context, scopeID uuid.UUID, rawURL string, events []string, active bool) (*models.Endpoint, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: at least one subscribed event is required", ErrInvalid)
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to generate endpoint secret: %w", err)
	}

	ep := &models.Endpoint{
		ID:               uuid.New(),
		ScopeID:          scopeID,
		URL:              rawURL,
		Secret:           secret,
		SubscribedEvents: pq.StringArray(events),
		Active:           active,
	}

	if err := s.endpoints.Create(ctx, ep); err != nil {
		return nil, fmt.Errorf("failed to create endpoint: %w", err)
	}

	s.logger.Info("Endpoint created",
		zap.String("endpoint_id", ep.ID.String()),
		zap.String("scope_id", scopeID.String()),
		zap.String("url", rawURL),
	)
	return ep, nil
}

func (s *Service) Get(ctx context.Context, scopeID, id uuid.UUID) (*models.Endpoint, error) {
	return s.endpoints.GetScoped(ctx, scopeID, id)
}

func (s *Service) List(ctx context.Context, scopeID uuid.UUID, page Page) ([]models.Endpoint, int64, error) {
	return s.endpoints.List(ctx, scopeID, page)
}

// Update applies a partial update. The secret is never touched.
func (s *Service) Update(ctx context.Context, scopeID, id uuid.UUID, patch EndpointPatch) (*models.Endpoint, error) {
	fields := map[string]interface{}{}
	if patch.URL != nil {
		if err := validateURL(*patch.URL); err != nil {
			return nil, err
		}
		fields["url"] = *patch.URL
	}
	if patch.Events != nil {
		if len(patch.Events) == 0 {
			return nil, fmt.Errorf("%w: subscribed events cannot be empty", ErrInvalid)
		}
		fields["subscribed_events"] = pq.StringArray(patch.Events)
	}
	if patch.Active != nil {
		fields["active"] = *patch.Active
	}

	if len(fields) > 0 {
		affected, err := s.endpoints.Update(ctx, scopeID, id, fields)
		if err != nil {
			return nil, fmt.Errorf("failed to update endpoint: %w", err)
		}
		if affected == 0 {
			return nil, ErrNotFound
		}
	}

	return s.endpoints.GetScoped(ctx, scopeID, id)
}

// Delete removes the endpoint and its delivery records transactionally.
func (s *Service) Delete(ctx context.Context, scopeID, id uuid.UUID) error {
	deleted, err := s.endpoints.DeleteCascade(ctx, scopeID, id)
	if err != nil {
		return fmt.Errorf("failed to delete endpoint: %w", err)
	}
	if deleted == 0 {
		return ErrNotFound
	}

	s.logger.Info("Endpoint deleted",
		zap.String("endpoint_id", id.String()),
		zap.String("scope_id", scopeID.String()),
	)
	return nil
}

// ListDeliveries returns the attempt history for an endpoint the scope owns.
func (s *Service) ListDeliveries(ctx context.Context, scopeID, endpointID uuid.UUID, page Page) ([]models.DeliveryRecord, int64, error) {
	if _, err := s.endpoints.GetScoped(ctx, scopeID, endpointID); err != nil {
		return nil, 0, err
	}
	return s.deliveries.ListByEndpoint(ctx, endpointID, page)
}

func generateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: url must be an absolute http(s) URL", ErrInvalid)
	}
	return nil
}
