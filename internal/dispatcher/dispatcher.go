// Package dispatcher fans internal events out to delivery tasks. The router
// resolves matching endpoints and publishes one task per endpoint; it never
// performs delivery I/O itself and never waits on outcomes.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Bizinso/BizSocials-sub013/internal/consumer"
	"github.com/Bizinso/BizSocials-sub013/internal/models"
	"github.com/Bizinso/BizSocials-sub013/internal/registry"
)

// TaskPublisher publishes delivery tasks to the delivery queue.
type TaskPublisher interface {
	PublishTask(task models.DeliveryTask) error
}

// QueueTaskPublisher publishes tasks to RabbitMQ in the base64-wrapped JSON
// format the abstract consumer expects.
type QueueTaskPublisher struct {
	queue      queuePublisher
	exchange   string
	routingKey string
}

type queuePublisher interface {
	PublishMessage(exchange, routingKey string, body []byte) error
}

func NewQueueTaskPublisher(queue queuePublisher, exchange, routingKey string) *QueueTaskPublisher {
	return &QueueTaskPublisher{
		queue:      queue,
		exchange:   exchange,
		routingKey: routingKey,
	}
}

func (p *QueueTaskPublisher) PublishTask(task models.DeliveryTask) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery task: %w", err)
	}
	if err := p.queue.PublishMessage(p.exchange, p.routingKey, consumer.Encode(body)); err != nil {
		return fmt.Errorf("failed to publish delivery task: %w", err)
	}
	return nil
}

// Router resolves the active subscribed endpoints of a scope and enqueues
// exactly one delivery task per match.
type Router struct {
	endpoints registry.EndpointStore
	publisher TaskPublisher
	logger    *zap.Logger
}

func NewRouter(endpoints registry.EndpointStore, publisher TaskPublisher, logger *zap.Logger) *Router {
	return &Router{
		endpoints: endpoints,
		publisher: publisher,
		logger:    logger,
	}
}

// Dispatch is fire-and-forget for the caller: once tasks are enqueued the
// outcome of individual deliveries is only visible through the audit log.
func (r *Router) Dispatch(ctx context.Context, event string, payload json.RawMessage, scopeID uuid.UUID) error {
	endpoints, err := r.endpoints.FindSubscribed(ctx, scopeID, event)
	if err != nil {
		return fmt.Errorf("failed to resolve endpoints for event %s: %w", event, err)
	}

	if len(endpoints) == 0 {
		r.logger.Debug("No subscribed endpoints for event",
			zap.String("event", event),
			zap.String("scope_id", scopeID.String()),
		)
		return nil
	}

	var failed int
	for _, ep := range endpoints {
		task := models.DeliveryTask{
			TaskID:     uuid.New(),
			EndpointID: ep.ID,
			Event:      event,
			Payload:    payload,
			Attempt:    1,
		}
		if err := r.publisher.PublishTask(task); err != nil {
			r.logger.Error("Failed to enqueue delivery task",
				zap.String("endpoint_id", ep.ID.String()),
				zap.String("event", event),
				zap.Error(err),
			)
			failed++
		}
	}

	r.logger.Info("Dispatched event to endpoints",
		zap.String("event", event),
		zap.String("scope_id", scopeID.String()),
		zap.Int("endpoint_count", len(endpoints)),
		zap.Int("failed_publishes", failed),
	)

	if failed > 0 {
		return fmt.Errorf("failed to enqueue %d of %d delivery tasks", failed, len(endpoints))
	}
	return nil
}
