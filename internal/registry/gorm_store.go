package registry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Bizinso/BizSocials-sub013/internal/models"
)

// GormEndpointStore implements EndpointStore on PostgreSQL.
type GormEndpointStore struct {
	db *gorm.DB
}

func NewGormEndpointStore(db *gorm.DB) *GormEndpointStore {
	return &GormEndpointStore{db: db}
}

func (s *GormEndpointStore) Create(ctx context.Context, ep *models.Endpoint) error {
	return s.db.WithContext(ctx).Create(ep).Error
}

func (s *GormEndpointStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Endpoint, error) {
	var ep models.Endpoint
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&ep).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ep, nil
}

func (s *GormEndpointStore) GetScoped(ctx context.Context, scopeID, id uuid.UUID) (*models.Endpoint, error) {
	var ep models.Endpoint
	err := s.db.WithContext(ctx).Where("id = ? AND scope_id = ?", id, scopeID).First(&ep).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ep, nil
}

func (s *GormEndpointStore) List(ctx context.Context, scopeID uuid.UUID, page Page) ([]models.Endpoint, int64, error) {
	var total int64
	q := s.db.WithContext(ctx).Model(&models.Endpoint{}).Where("scope_id = ?", scopeID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var endpoints []models.Endpoint
	err := q.Order("created_at DESC").
		Limit(page.Limit()).
		Offset(page.Offset()).
		Find(&endpoints).Error
	if err != nil {
		return nil, 0, err
	}
	return endpoints, total, nil
}

func (s *GormEndpointStore) Update(ctx context.Context, scopeID, id uuid.UUID, fields map[string]interface{}) (int64, error) {
	fields["updated_at"] = time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&models.Endpoint{}).
		Where("id = ? AND scope_id = ?", id, scopeID).
		Updates(fields)
	return res.RowsAffected, res.Error
}

// DeleteCascade removes the endpoint and all its delivery records in one
// transaction, records first.
func (s *GormEndpointStore) DeleteCascade(ctx context.Context, scopeID, id uuid.UUID) (int64, error) {
	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ep models.Endpoint
		if err := tx.Where("id = ? AND scope_id = ?", id, scopeID).First(&ep).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		if err := tx.Where("endpoint_id = ?", id).Delete(&models.DeliveryRecord{}).Error; err != nil {
			return err
		}

		res := tx.Delete(&ep)
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	return deleted, err
}

func (s *GormEndpointStore) FindSubscribed(ctx context.Context, scopeID uuid.UUID, event string) ([]models.Endpoint, error) {
	var endpoints []models.Endpoint
	err := s.db.WithContext(ctx).
		Where("scope_id = ? AND active = ? AND ? = ANY(subscribed_events)", scopeID, true, event).
		Find(&endpoints).Error
	if err != nil {
		return nil, err
	}
	return endpoints, nil
}

func (s *GormEndpointStore) RecordAttempt(ctx context.Context, id uuid.UUID, at time.Time, failed bool) error {
	updates := map[string]interface{}{
		"last_triggered_at": at,
		"updated_at":        at,
	}
	if failed {
		updates["failure_count"] = gorm.Expr("failure_count + 1")
	} else {
		updates["failure_count"] = 0
	}

	return s.db.WithContext(ctx).Model(&models.Endpoint{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (s *GormEndpointStore) BumpFailureCount(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Model(&models.Endpoint{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"failure_count": gorm.Expr("failure_count + 1"),
			"updated_at":    time.Now().UTC(),
		}).Error
}

func (s *GormEndpointStore) DeactivateIfFailing(ctx context.Context, id uuid.UUID, threshold int) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Endpoint{}).
		Where("id = ? AND active = ? AND failure_count >= ?", id, true, threshold).
		Updates(map[string]interface{}{
			"active":     false,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected > 0, res.Error
}

// GormDeliveryStore implements DeliveryStore on PostgreSQL.
type GormDeliveryStore struct {
	db *gorm.DB
}

func NewGormDeliveryStore(db *gorm.DB) *GormDeliveryStore {
	return &GormDeliveryStore{db: db}
}

func (s *GormDeliveryStore) Create(ctx context.Context, rec *models.DeliveryRecord) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

func (s *GormDeliveryStore) ListByEndpoint(ctx context.Context, endpointID uuid.UUID, page Page) ([]models.DeliveryRecord, int64, error) {
	var total int64
	q := s.db.WithContext(ctx).Model(&models.DeliveryRecord{}).Where("endpoint_id = ?", endpointID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []models.DeliveryRecord
	err := q.Order("created_at DESC").
		Limit(page.Limit()).
		Offset(page.Offset()).
		Find(&records).Error
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}
