package models

import (
	"encoding/json"

	"github.com/google/uuid"
)

// SourceEvent is an internal event arriving on the source queue from the
// rest of the platform (post published, inbox item created, ...).
type SourceEvent struct {
	Event   string          `json:"event"`
	ScopeID uuid.UUID       `json:"scope_id"`
	Payload json.RawMessage `json:"payload"`
}

// DeliveryTask is the message published to the delivery queue, one per
// matching endpoint. Attempt is 1-based; retries republish the task with
// Attempt incremented. Test tasks are single-shot and never retried.
type DeliveryTask struct {
	TaskID     uuid.UUID       `json:"task_id"`
	EndpointID uuid.UUID       `json:"endpoint_id"`
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload"`
	Attempt    int             `json:"attempt"`
	Test       bool            `json:"test,omitempty"`
}
