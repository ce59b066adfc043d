package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Bizinso/BizSocials-sub013/internal/config"
	"github.com/Bizinso/BizSocials-sub013/internal/consumer"
	"github.com/Bizinso/BizSocials-sub013/internal/models"
	"github.com/Bizinso/BizSocials-sub013/internal/rabbitmq"
)

// SourceConsumer consumes internal platform events from the source queue and
// feeds them into the Router.
type SourceConsumer struct {
	cfg         *config.DispatcherConfig
	conn        *rabbitmq.Connection
	router      *Router
	logger      *zap.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	consumerTag string
	started     bool
}

func NewSourceConsumer(cfg *config.DispatcherConfig, conn *rabbitmq.Connection, router *Router, logger *zap.Logger) *SourceConsumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &SourceConsumer{
		cfg:         cfg,
		conn:        conn,
		router:      router,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		consumerTag: fmt.Sprintf("webhook-dispatcher-%d", time.Now().Unix()),
	}
}

// Start begins consuming source events. Queues are expected to exist.
func (s *SourceConsumer) Start() error {
	if s.cfg.SourceQueue == "" {
		return fmt.Errorf("source queue is required")
	}

	if err := s.conn.SetQoS(s.cfg.PrefetchCount); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	if err := s.startConsuming(); err != nil {
		return err
	}

	s.started = true
	s.logger.Info("Dispatcher started and consuming source events",
		zap.String("source_queue", s.cfg.SourceQueue),
		zap.String("consumer_tag", s.consumerTag),
	)
	return nil
}

func (s *SourceConsumer) startConsuming() error {
	messages, err := s.conn.ConsumeMessages(s.cfg.SourceQueue, s.consumerTag)
	if err != nil {
		return fmt.Errorf("failed to start consuming from queue %s: %w", s.cfg.SourceQueue, err)
	}

	go s.processMessages(messages)
	return nil
}

// Stop gracefully stops the consumer.
func (s *SourceConsumer) Stop() error {
	s.logger.Info("Stopping dispatcher", zap.String("consumer_tag", s.consumerTag))
	s.cancel()
	s.started = false
	return s.conn.CancelConsumer(s.consumerTag)
}

func (s *SourceConsumer) processMessages(messages <-chan amqp.Delivery) {
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("Dispatcher context cancelled, stopping message processing")
			return
		case msg, ok := <-messages:
			if !ok {
				s.logger.Warn("Source channel closed, attempting to restart consumer",
					zap.String("source_queue", s.cfg.SourceQueue),
				)
				s.restartConsuming()
				return
			}
			consumer.ProcessMessage(s.logger, s.cfg.SourceQueue, msg, s)
		}
	}
}

// restartConsuming retries until the consumer is re-registered or the
// dispatcher is stopped. The connection itself reconnects independently.
func (s *SourceConsumer) restartConsuming() {
	for s.started {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		time.Sleep(2 * time.Second)

		if !s.conn.IsHealthy() {
			continue
		}

		if err := s.startConsuming(); err != nil {
			s.logger.Error("Failed to restart source consumer, will retry",
				zap.String("source_queue", s.cfg.SourceQueue),
				zap.Error(err),
			)
			time.Sleep(5 * time.Second)
			continue
		}

		s.logger.Info("Source consumer restarted",
			zap.String("source_queue", s.cfg.SourceQueue),
		)
		return
	}
}

// HandleEvent implements consumer.EventHandler. The message is a JSON
// SourceEvent produced by the rest of the platform.
func (s *SourceConsumer) HandleEvent(decodedMessage string) error {
	var sourceEvent models.SourceEvent
	if err := json.Unmarshal([]byte(decodedMessage), &sourceEvent); err != nil {
		s.logger.Error("Failed to unmarshal source event",
			zap.Error(err),
			zap.String("decoded_message", decodedMessage),
		)
		return fmt.Errorf("failed to unmarshal source event: %w", err)
	}

	if sourceEvent.Event == "" {
		return fmt.Errorf("source event has no event name")
	}

	s.logger.Info("Processing source event",
		zap.String("event", sourceEvent.Event),
		zap.String("scope_id", sourceEvent.ScopeID.String()),
	)

	return s.router.Dispatch(s.ctx, sourceEvent.Event, sourceEvent.Payload, sourceEvent.ScopeID)
}
