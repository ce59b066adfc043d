package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/Bizinso/BizSocials-sub013/internal/consumer"
)

// LogConsumer records inbound events and drops them. It is the default when
// no downstream queue is configured.
type LogConsumer struct {
	logger *zap.Logger
}

func NewLogConsumer(logger *zap.Logger) *LogConsumer {
	return &LogConsumer{logger: logger}
}

func (c *LogConsumer) Consume(_ context.Context, event Event) error {
	c.logger.Info("Inbound platform event received",
		zap.String("platform", event.Platform),
		zap.String("kind", event.Kind),
		zap.String("scope_hint", event.ScopeHint),
		zap.Int("payload_bytes", len(event.Payload)),
	)
	return nil
}

type queuePublisher interface {
	PublishMessage(exchange, routingKey string, body []byte) error
}

// QueueConsumer republishes normalized inbound events to the broker so
// downstream services (inbox, analytics) can pick them up.
type QueueConsumer struct {
	queue      queuePublisher
	routingKey string
}

func NewQueueConsumer(queue queuePublisher, routingKey string) *QueueConsumer {
	return &QueueConsumer{
		queue:      queue,
		routingKey: routingKey,
	}
}

func (c *QueueConsumer) Consume(_ context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal inbound event: %w", err)
	}
	if err := c.queue.PublishMessage("", c.routingKey, consumer.Encode(body)); err != nil {
		return fmt.Errorf("failed to publish inbound event: %w", err)
	}
	return nil
}
