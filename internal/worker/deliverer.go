package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Bizinso/BizSocials-sub013/internal/config"
	"github.com/Bizinso/BizSocials-sub013/internal/dispatcher"
	"github.com/Bizinso/BizSocials-sub013/internal/models"
	"github.com/Bizinso/BizSocials-sub013/internal/registry"
	"github.com/Bizinso/BizSocials-sub013/internal/signature"
)

const (
	headerSignature  = "X-Webhook-Signature"
	headerEvent      = "X-Webhook-Event"
	headerDeliveryID = "X-Webhook-Delivery"

	// TestEvent is the event name of manual test deliveries.
	TestEvent = "test"
)

// envelope is the wire format of outbound deliveries. The signature is
// computed over this serialized form.
type envelope struct {
	Event     string          `json:"event"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Deliverer executes delivery tasks: one call to Handle is one attempt
// against one endpoint, including the audit record and health update.
// Retryable failures are rescheduled by republishing the task with an
// incremented attempt counter; the worker slot is never held across backoff.
type Deliverer struct {
	cfg       *config.WorkerConfig
	endpoints registry.EndpointStore
	records   registry.DeliveryStore
	sender    *Sender
	publisher dispatcher.TaskPublisher
	scheduler Scheduler
	logger    *zap.Logger
	now       func() time.Time
}

func NewDeliverer(
	cfg *config.WorkerConfig,
	endpoints registry.EndpointStore,
	records registry.DeliveryStore,
	sender *Sender,
	publisher dispatcher.TaskPublisher,
	scheduler Scheduler,
	logger *zap.Logger,
) *Deliverer {
	return &Deliverer{
		cfg:       cfg,
		endpoints: endpoints,
		records:   records,
		sender:    sender,
		publisher: publisher,
		scheduler: scheduler,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Handle performs one delivery attempt for the task. A nil return means the
// queue message should be acked; errors nack it (no requeue).
func (d *Deliverer) Handle(ctx context.Context, task models.DeliveryTask) error {
	ep, err := d.endpoints.GetByID(ctx, task.EndpointID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			// Endpoint deleted between enqueue and delivery; nothing to do.
			d.logger.Info("Endpoint gone, dropping delivery task",
				zap.String("endpoint_id", task.EndpointID.String()),
				zap.String("event", task.Event),
			)
			return nil
		}
		return fmt.Errorf("failed to load endpoint: %w", err)
	}

	if !ep.Active && !task.Test {
		d.logger.Info("Endpoint inactive, dropping delivery task",
			zap.String("endpoint_id", ep.ID.String()),
			zap.String("event", task.Event),
		)
		return nil
	}

	outcome, record, err := d.attempt(ctx, ep, task)
	if err != nil {
		return err
	}

	if err := d.records.Create(ctx, record); err != nil {
		// The attempt already happened; losing the audit row is worse than
		// a duplicate-free log, so surface it loudly.
		d.logger.Error("Failed to persist delivery record",
			zap.String("endpoint_id", ep.ID.String()),
			zap.String("event", task.Event),
			zap.Error(err),
		)
		return fmt.Errorf("failed to persist delivery record: %w", err)
	}

	if err := d.endpoints.RecordAttempt(ctx, ep.ID, d.now(), outcome.Failed()); err != nil {
		d.logger.Error("Failed to update endpoint health",
			zap.String("endpoint_id", ep.ID.String()),
			zap.Error(err),
		)
	}

	if !outcome.Failed() {
		d.logger.Info("Webhook delivery succeeded",
			zap.String("endpoint_id", ep.ID.String()),
			zap.String("event", task.Event),
			zap.Int("attempt", task.Attempt),
			zap.Int("response_code", *outcome.Code),
			zap.Int64("duration_ms", outcome.Duration.Milliseconds()),
		)
		return nil
	}

	if task.Test {
		// Manual test deliveries are single-shot.
		d.logger.Warn("Test delivery failed",
			zap.String("endpoint_id", ep.ID.String()),
			zap.String("network_error", outcome.NetworkError),
		)
		return nil
	}

	if task.Attempt < d.cfg.MaxAttempts {
		d.scheduleRetry(task, outcome)
		return nil
	}

	d.handlePermanentFailure(ctx, ep.ID, task, outcome)
	return nil
}

// attempt builds, signs and sends the envelope, returning the outcome and
// the audit record for it. Exactly one record is produced per attempt,
// network failures included.
func (d *Deliverer) attempt(ctx context.Context, ep *models.Endpoint, task models.DeliveryTask) (Outcome, *models.DeliveryRecord, error) {
	payload := task.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`null`)
	}

	body, err := json.Marshal(envelope{
		Event:     task.Event,
		Timestamp: d.now().Format(time.RFC3339),
		Data:      payload,
	})
	if err != nil {
		return Outcome{}, nil, fmt.Errorf("failed to marshal delivery envelope: %w", err)
	}

	headers := map[string]string{
		"Content-Type":   "application/json",
		headerSignature:  signature.SignEnvelope(body, ep.Secret),
		headerEvent:      task.Event,
		headerDeliveryID: uuid.New().String(),
	}

	timeout := time.Duration(d.cfg.HTTPTimeoutSeconds) * time.Second
	if task.Test {
		timeout = time.Duration(d.cfg.TestTimeoutSeconds) * time.Second
	}

	outcome := d.sender.Send(ctx, ep.URL, body, headers, timeout)

	record := &models.DeliveryRecord{
		EndpointID: ep.ID,
		Event:      task.Event,
		Payload:    models.JSON(payload),
		DurationMs: int(outcome.Duration.Milliseconds()),
	}
	if outcome.Responded() {
		code := *outcome.Code
		respBody := outcome.Body
		deliveredAt := d.now()
		record.ResponseCode = &code
		record.ResponseBody = &respBody
		record.DeliveredAt = &deliveredAt
	} else {
		netErr := outcome.NetworkError
		record.ResponseBody = &netErr
	}

	return outcome, record, nil
}

func (d *Deliverer) scheduleRetry(task models.DeliveryTask, outcome Outcome) {
	delay := RetryDelay(task.Attempt)
	next := task
	next.Attempt++

	d.logger.Info("Webhook delivery failed, retry scheduled",
		zap.String("endpoint_id", task.EndpointID.String()),
		zap.String("event", task.Event),
		zap.Int("attempt", task.Attempt),
		zap.Duration("delay", delay),
		zap.String("failure", describeFailure(outcome)),
	)

	d.scheduler.AfterFunc(delay, func() {
		if err := d.publisher.PublishTask(next); err != nil {
			d.logger.Error("Failed to republish retry task",
				zap.String("endpoint_id", next.EndpointID.String()),
				zap.String("event", next.Event),
				zap.Int("attempt", next.Attempt),
				zap.Error(err),
			)
		}
	})
}

// handlePermanentFailure runs after the final attempt: one extra failure
// increment on top of the per-attempt one, plus the optional circuit breaker.
func (d *Deliverer) handlePermanentFailure(ctx context.Context, endpointID uuid.UUID, task models.DeliveryTask, outcome Outcome) {
	d.logger.Error("Webhook delivery permanently failed",
		zap.String("endpoint_id", endpointID.String()),
		zap.String("event", task.Event),
		zap.Int("attempts", task.Attempt),
		zap.String("failure", describeFailure(outcome)),
	)

	if err := d.endpoints.BumpFailureCount(ctx, endpointID); err != nil {
		d.logger.Error("Failed to record permanent failure",
			zap.String("endpoint_id", endpointID.String()),
			zap.Error(err),
		)
		return
	}

	if d.cfg.DisableAfterFailures > 0 {
		disabled, err := d.endpoints.DeactivateIfFailing(ctx, endpointID, d.cfg.DisableAfterFailures)
		if err != nil {
			d.logger.Error("Failed to evaluate endpoint circuit breaker",
				zap.String("endpoint_id", endpointID.String()),
				zap.Error(err),
			)
			return
		}
		if disabled {
			d.logger.Error("Endpoint deactivated after repeated delivery failures",
				zap.String("endpoint_id", endpointID.String()),
				zap.Int("threshold", d.cfg.DisableAfterFailures),
			)
		}
	}
}

func describeFailure(outcome Outcome) string {
	if outcome.Responded() {
		return fmt.Sprintf("HTTP %d", *outcome.Code)
	}
	return "network error: " + outcome.NetworkError
}
