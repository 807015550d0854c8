package syncqueue

import (
	"context"
	"testing"
	"time"

	"mgmt-syncq/internal/shared/eventbus"
	"mgmt-syncq/internal/shared/model"
	"mgmt-syncq/pkg/logging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_EnqueueJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.service.EnqueueJob(ctx, model.ResourceKindNetwork, 42, "payload://1")
	require.NoError(t, err)
	second, err := env.service.EnqueueJob(ctx, model.ResourceKindNetwork, 42, "payload://2")
	require.NoError(t, err)
	other, err := env.service.EnqueueJob(ctx, model.ResourceKindNetwork, 43, "payload://3")
	require.NoError(t, err)

	assert.Equal(t, first.QueueID, second.QueueID)
	assert.NotEqual(t, first.QueueID, other.QueueID)
	assert.Equal(t, int64(1), first.Sequence)
	assert.Equal(t, int64(2), second.Sequence)
	assert.Equal(t, int64(1), other.Sequence)
	assert.Equal(t, model.ItemStateQueued, first.State)
	assert.Equal(t, model.ResourceKindNetwork, first.ResourceKind)
	assert.Equal(t, int64(42), first.ResourceID)

	got, err := env.service.GetItem(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "payload://1", got.PayloadRef)
	assert.Equal(t, model.ResourceKindNetwork, got.ResourceKind)
}

func TestService_EnqueueJobValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.EnqueueJob(ctx, "", 1, "payload")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = env.service.EnqueueJob(ctx, model.ResourceKindHost, 1, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestService_EnqueueJobPublishesEvent(t *testing.T) {
	store := newTestStore(t)
	bus := eventbus.NewLocalEventBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics := NewMetrics("test", reg)
	svc := NewService(store, "node-a", Options{Logger: logging.Discard(), EventBus: bus, Metrics: metrics})

	item, err := svc.EnqueueJob(ctx, model.ResourceKindHost, 7, "payload")
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, eventbus.QueueEventEnqueued, ev.Type)
		assert.Equal(t, item.ID, ev.ItemID)
		assert.Equal(t, item.QueueID, ev.QueueID)
		assert.Equal(t, "node-a", ev.NodeID)
	case <-time.After(time.Second):
		t.Fatal("enqueued event not published")
	}

	assert.Equal(t, 1.0, counterValue(t, reg, "test_syncqueue_items_enqueued_total"))
}

func TestService_CancelItem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.enqueue(t, model.ResourceKindHost, 1, "job-1")
	second := env.enqueue(t, model.ResourceKindHost, 1, "job-2")

	cancelled, err := env.service.CancelItem(ctx, second.ID, "operator request")
	require.NoError(t, err)
	assert.Equal(t, model.ItemStateFailed, cancelled.State)
	require.NotNil(t, cancelled.LastError)
	assert.Equal(t, "operator request", *cancelled.LastError)

	// 执行中的项不可取消
	env.claimNext(t, first.QueueID, "node-a", time.Minute)
	_, err = env.service.CancelItem(ctx, first.ID, "")
	assert.ErrorIs(t, err, ErrNotCancellable)
	assert.Equal(t, model.ItemStateActive, env.state(t, first.ID))

	_, err = env.service.CancelItem(ctx, "sqi-missing", "")
	assert.ErrorIs(t, err, ErrItemNotFound)
}

// 取消的项不会阻塞后续项
func TestService_CancelledItemDoesNotBlockQueue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.enqueue(t, model.ResourceKindHost, 1, "job-1")
	second := env.enqueue(t, model.ResourceKindHost, 1, "job-2")
	_, err := env.service.CancelItem(ctx, first.ID, "")
	require.NoError(t, err)

	claimed := env.claimNext(t, first.QueueID, "node-a", time.Minute)
	assert.Equal(t, second.ID, claimed.ID)
}

func TestService_GetQueue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _, err := env.service.GetQueue(ctx, model.NewResourceKey(model.ResourceKindCluster, 9), 10)
	assert.ErrorIs(t, err, ErrQueueNotFound)

	for i := 0; i < 3; i++ {
		env.enqueue(t, model.ResourceKindCluster, 9, "job")
	}
	q, items, err := env.service.GetQueue(ctx, model.NewResourceKey(model.ResourceKindCluster, 9), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), q.LastSeq)
	require.Len(t, items, 2)
	assert.Equal(t, int64(1), items[0].Sequence)
	assert.Equal(t, int64(2), items[1].Sequence)
}

func TestService_ReleaseNode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	item := env.enqueue(t, model.ResourceKindHost, 1, "job")
	env.claimNext(t, item.QueueID, "node-a", time.Hour)

	n, err := env.service.ReleaseNode(ctx, "node-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, model.ItemStateQueued, env.state(t, item.ID))

	n, err = env.service.ReleaseNode(ctx, "node-a")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
