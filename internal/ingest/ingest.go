// Package ingest carries verified inbound platform events to the rest of
// the system. The gateway enqueues after responding to the platform; the
// consumer (an inbox service or similar) runs on the forwarder goroutine,
// never inline with verification.
package ingest

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is a normalized, already-verified inbound platform event. It is
// ephemeral: this subsystem does not persist it.
type Event struct {
	Platform   string          `json:"platform"`
	Kind       string          `json:"kind"`
	ScopeHint  string          `json:"scope_hint,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Consumer receives normalized inbound events.
type Consumer interface {
	Consume(ctx context.Context, event Event) error
}

// Forwarder decouples the HTTP response from consumer processing through a
// bounded queue. Enqueue never blocks: when the buffer is full the event is
// dropped with an error log, and the platform redelivers on its own schedule.
type Forwarder struct {
	consumer Consumer
	events   chan Event
	logger   *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewForwarder(consumer Consumer, buffer int, logger *zap.Logger) *Forwarder {
	if buffer <= 0 {
		buffer = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Forwarder{
		consumer: consumer,
		events:   make(chan Event, buffer),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the forwarding goroutine.
func (f *Forwarder) Start() {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for event := range f.events {
			f.deliver(event)
		}
	}()
}

// Stop drains queued events, then returns. Call only after the HTTP server
// has stopped accepting requests.
func (f *Forwarder) Stop() {
	close(f.events)
	f.wg.Wait()
	f.cancel()
}

// Enqueue hands an event to the forwarder without blocking the caller.
func (f *Forwarder) Enqueue(event Event) {
	select {
	case f.events <- event:
	default:
		f.logger.Error("Ingest buffer full, dropping inbound event",
			zap.String("platform", event.Platform),
			zap.String("kind", event.Kind),
		)
	}
}

func (f *Forwarder) deliver(event Event) {
	if err := f.consumer.Consume(f.ctx, event); err != nil {
		f.logger.Error("Ingest consumer failed",
			zap.String("platform", event.Platform),
			zap.String("kind", event.Kind),
			zap.Error(err),
		)
	}
}
