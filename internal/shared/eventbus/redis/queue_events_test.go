package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mgmt-syncq/internal/shared/eventbus"
)

func TestPublishSubscribe(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/15"
	}
	bus, err := NewEventBusFromURL(url, "syncq:test:queue_events")
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, &eventbus.QueueEvent{
		Type:    eventbus.QueueEventEnqueued,
		QueueID: "sq-test",
		ItemID:  "sqi-test",
	}))

	select {
	case ev := <-ch:
		assert.Equal(t, eventbus.QueueEventEnqueued, ev.Type)
		assert.Equal(t, "sq-test", ev.QueueID)
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(3 * time.Second):
		t.Fatal("event not received")
	}
}
