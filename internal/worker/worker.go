package worker

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

// Worker consumes delivery tasks from the queue and executes them through
// the Deliverer. Parallelism comes from the prefetch count: up to that many
// tasks are in flight concurrently, with no per-endpoint serialization.
type Worker struct {
	cfg         *config.WorkerConfig
	conn        *rabbitmq.Connection
	deliverer   *Deliverer
	logger      *zap.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	consumerTag string
	started     bool
}

func NewWorker(cfg *config.WorkerConfig, conn *rabbitmq.Connection, deliverer *Deliverer, logger *zap.Logger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		cfg:         cfg,
		conn:        conn,
		deliverer:   deliverer,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		consumerTag: fmt.Sprintf("webhook-worker-%d", time.Now().Unix()),
	}
}

// Start begins consuming delivery tasks. Queues are expected to exist.
func (w *Worker) Start() error {
	if w.cfg.DeliveryQueue == "" {
		return fmt.Errorf("delivery queue is required")
	}

	if err := w.conn.SetQoS(w.cfg.PrefetchCount); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	if err := w.startConsuming(); err != nil {
		return err
	}

	w.started = true
	w.logger.Info("Worker started and consuming delivery tasks",
		zap.String("delivery_queue", w.cfg.DeliveryQueue),
		zap.Int("prefetch_count", w.cfg.PrefetchCount),
		zap.String("consumer_tag", w.consumerTag),
	)
	return nil
}

func (w *Worker) startConsuming() error {
	messages, err := w.conn.ConsumeMessages(w.cfg.DeliveryQueue, w.consumerTag)
	if err != nil {
		return fmt.Errorf("failed to start consuming from queue %s: %w", w.cfg.DeliveryQueue, err)
	}

	go w.processMessages(messages)
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.logger.Info("Stopping worker", zap.String("consumer_tag", w.consumerTag))
	w.cancel()
	w.started = false
	return w.conn.CancelConsumer(w.consumerTag)
}

func (w *Worker) processMessages(messages <-chan amqp.Delivery) {
	for {
		select {
		case <-w.ctx.Done():
			w.logger.Info("Worker context cancelled, stopping message processing")
			return
		case msg, ok := <-messages:
			if !ok {
				w.logger.Warn("Delivery channel closed, attempting to restart consumer",
					zap.String("delivery_queue", w.cfg.DeliveryQueue),
				)
				w.restartConsuming()
				return
			}
			// Each task processed concurrently; prefetch bounds the fan-out.
			go consumer.ProcessMessage(w.logger, w.cfg.DeliveryQueue, msg, w)
		}
	}
}

func (w *Worker) restartConsuming() {
	for w.started {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		time.Sleep(2 * time.Second)

		if !w.conn.IsHealthy() {
			continue
		}

		if err := w.startConsuming(); err != nil {
			w.logger.Error("Failed to restart delivery consumer, will retry",
				zap.String("delivery_queue", w.cfg.DeliveryQueue),
				zap.Error(err),
			)
			time.Sleep(5 * time.Second)
			continue
		}

		w.logger.Info("Delivery consumer restarted",
			zap.String("delivery_queue", w.cfg.DeliveryQueue),
		)
		return
	}
}

// HandleEvent implements consumer.EventHandler. The decoded message is a
// JSON DeliveryTask. The task-level timeout bounds the whole attempt.
func (w *Worker) HandleEvent(decodedMessage string) error {
	var task models.DeliveryTask
	if err := json.Unmarshal([]byte(decodedMessage), &task); err != nil {
		w.logger.Error("Failed to unmarshal delivery task",
			zap.Error(err),
			zap.String("decoded_message", decodedMessage),
		)
		return fmt.Errorf("failed to unmarshal delivery task: %w", err)
	}

	ctx, cancel := context.WithTimeout(w.ctx, time.Duration(w.cfg.TaskTimeoutSeconds)*time.Second)
	defer cancel()

	return w.deliverer.Handle(ctx, task)
}
