package syncqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mgmt-syncq/internal/shared/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingArchiver struct {
	mu    sync.Mutex
	items []*model.SyncQueueItem
	err   error
}

func (a *recordingArchiver) Archive(ctx context.Context, items []*model.SyncQueueItem) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.items = append(a.items, items...)
	return nil
}

func (a *recordingArchiver) Name() string { return "recording" }

// finish 认领并以 res 完成队列的下一项
func finish(t *testing.T, env *testEnv, queueID string, res Result) {
	t.Helper()
	claimed := env.claimNext(t, queueID, "node-a", time.Minute)
	require.NoError(t, env.claims.Complete(context.Background(), claimed, "node-a", res))
}

func TestReaper_ArchivesAndDeletesOldFinishedItems(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	done := env.enqueue(t, model.ResourceKindHost, 1, "job-done")
	failed := env.enqueue(t, model.ResourceKindHost, 1, "job-failed")
	pending := env.enqueue(t, model.ResourceKindHost, 1, "job-pending")
	finish(t, env, done.QueueID, Done())
	finish(t, env, done.QueueID, Fatal("boom"))

	archiver := &recordingArchiver{}
	reaper := NewReaper(env.store, archiver, ReaperConfig{Retention: time.Hour, BatchSize: 1}, env.opts)

	// 保留期内不清理
	n, err := reaper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	env.clock.Advance(2 * time.Hour)
	n, err = reaper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ids := []string{archiver.items[0].ID, archiver.items[1].ID}
	assert.ElementsMatch(t, []string{done.ID, failed.ID}, ids)

	_, err = env.ledger.Get(ctx, done.ID)
	assert.ErrorIs(t, err, ErrItemNotFound)
	assert.Equal(t, model.ItemStateQueued, env.state(t, pending.ID))
}

func TestReaper_ArchiveFailureKeepsItems(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	item := env.enqueue(t, model.ResourceKindHost, 1, "job")
	finish(t, env, item.QueueID, Done())
	env.clock.Advance(2 * time.Hour)

	archiver := &recordingArchiver{err: errors.New("bucket unavailable")}
	reaper := NewReaper(env.store, archiver, ReaperConfig{Retention: time.Hour}, env.opts)

	_, err := reaper.RunOnce(ctx)
	assert.Error(t, err)
	assert.Equal(t, model.ItemStateDone, env.state(t, item.ID))
}

// 清理后的队列仍可继续入队，序号继续递增
func TestReaper_QueueContinuesAfterReap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.enqueue(t, model.ResourceKindHost, 1, "job-1")
	finish(t, env, first.QueueID, Done())
	env.clock.Advance(2 * time.Hour)

	reaper := NewReaper(env.store, nil, ReaperConfig{Retention: time.Hour}, env.opts)
	n, err := reaper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	second := env.enqueue(t, model.ResourceKindHost, 1, "job-2")
	assert.Equal(t, first.QueueID, second.QueueID)
	assert.Equal(t, int64(2), second.Sequence)
}
