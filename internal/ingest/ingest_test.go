package ingest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type recordingConsumer struct {
	mu     sync.Mutex
	events []Event
}

func (c *recordingConsumer) Consume(_ context.Context, event Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func TestForwarder_DeliversInOrder(t *testing.T) {
	consumer := &recordingConsumer{}
	f := NewForwarder(consumer, 8, zap.NewNop())
	f.Start()

	for i := 0; i < 5; i++ {
		f.Enqueue(Event{
			Platform:   "meta",
			Kind:       "page",
			Payload:    json.RawMessage(`{}`),
			ReceivedAt: time.Now(),
		})
	}
	f.Stop()

	assert.Len(t, consumer.events, 5)
}

func TestForwarder_FullBufferDropsWithoutBlocking(t *testing.T) {
	consumer := &recordingConsumer{}
	// Never started: nothing drains the buffer.
	f := NewForwarder(consumer, 2, zap.NewNop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			f.Enqueue(Event{Platform: "meta"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full buffer")
	}
}
