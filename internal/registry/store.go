package registry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Bizinso/BizSocials-sub013/internal/models"
)

// ErrNotFound covers both missing rows and rows owned by another scope.
// Cross-scope reads must be indistinguishable from missing rows so that the
// management API cannot be used to probe for endpoint existence.
var ErrNotFound = errors.New("endpoint not found")

// ErrInvalid marks caller mistakes (bad URL, empty event list) so the
// management API can answer 400 without leaking persistence errors.
var ErrInvalid = errors.New("invalid endpoint input")

// Page is a 1-based pagination request.
type Page struct {
	Number int
	Size   int
}

func (p Page) Limit() int {
	if p.Size <= 0 {
		return 25
	}
	if p.Size > 100 {
		return 100
	}
	return p.Size
}

func (p Page) Offset() int {
	if p.Number <= 1 {
		return 0
	}
	return (p.Number - 1) * p.Limit()
}

// EndpointStore is the persistence boundary for webhook endpoints. Health
// mutations (RecordAttempt, BumpFailureCount, DeactivateIfFailing) must be
// atomic against the row: concurrent workers race on these and a
// read-modify-write would lose updates.
type EndpointStore interface {
	Create(ctx context.Context, ep *models.Endpoint) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Endpoint, error)
	GetScoped(ctx context.Context, scopeID, id uuid.UUID) (*models.Endpoint, error)
	List(ctx context.Context, scopeID uuid.UUID, page Page) ([]models.Endpoint, int64, error)
	Update(ctx context.Context, scopeID, id uuid.UUID, fields map[string]interface{}) (int64, error)
	DeleteCascade(ctx context.Context, scopeID, id uuid.UUID) (int64, error)
	FindSubscribed(ctx context.Context, scopeID uuid.UUID, event string) ([]models.Endpoint, error)
	RecordAttempt(ctx context.Context, id uuid.UUID, at time.Time, failed bool) error
	BumpFailureCount(ctx context.Context, id uuid.UUID) error
	DeactivateIfFailing(ctx context.Context, id uuid.UUID, threshold int) (bool, error)
}

// DeliveryStore is the append-only audit log of delivery attempts.
type DeliveryStore interface {
	Create(ctx context.Context, rec *models.DeliveryRecord) error
	ListByEndpoint(ctx context.Context, endpointID uuid.UUID, page Page) ([]models.DeliveryRecord, int64, error)
}
