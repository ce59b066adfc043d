package models

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryRecord is the append-only audit row for one delivery attempt.
// Retries of the same logical delivery produce one row each. ResponseCode
// and DeliveredAt are nil when no HTTP response was obtained (network-level
// failure); ResponseBody then carries the error message instead.
type DeliveryRecord struct {
	ID           int64      `gorm:"primary_key;autoIncrement" json:"id"`
	EndpointID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"endpoint_id"`
	Event        string     `gorm:"not null" json:"event"`
	Payload      JSON       `gorm:"type:jsonb" json:"payload"`
	ResponseCode *int       `gorm:"type:integer" json:"response_code"`
	ResponseBody *string    `gorm:"type:text" json:"response_body"`
	DurationMs   int        `gorm:"not null" json:"duration_ms"`
	DeliveredAt  *time.Time `json:"delivered_at"`
	CreatedAt    time.Time  `gorm:"not null;default:now()" json:"created_at"`
}

func (DeliveryRecord) TableName() string {
	return "delivery_records"
}
