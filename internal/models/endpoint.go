package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Endpoint is a tenant-registered HTTP destination for outbound webhooks.
// Secret is generated once at creation and is never serialized in reads;
// the management API exposes it exactly once, in the create response.
type Endpoint struct {
	ID               uuid.UUID      `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	ScopeID          uuid.UUID      `gorm:"type:uuid;not null;index" json:"scope_id"`
	URL              string         `gorm:"not null" json:"url"`
	Secret           string         `gorm:"not null" json:"-"`
	SubscribedEvents pq.StringArray `gorm:"type:text[];not null" json:"subscribed_events"`
	Active           bool           `gorm:"not null;default:true" json:"active"`
	FailureCount     int            `gorm:"not null;default:0" json:"failure_count"`
	LastTriggeredAt  *time.Time     `json:"last_triggered_at"`
	CreatedAt        time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (Endpoint) TableName() string {
	return "webhook_endpoints"
}

// Subscribed reports whether the endpoint subscribes to the given event name.
func (e *Endpoint) Subscribed(event string) bool {
	for _, ev := range e.SubscribedEvents {
		if ev == event {
			return true
		}
	}
	return false
}
