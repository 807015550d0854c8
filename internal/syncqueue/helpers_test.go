package syncqueue

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"mgmt-syncq/internal/clock"
	"mgmt-syncq/internal/shared/model"
	sqlitedriver "mgmt-syncq/internal/shared/storage/driver/sqlite"
	"mgmt-syncq/internal/shared/storage/repository"
	"mgmt-syncq/pkg/logging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// newTestStore 创建临时目录中的 SQLite Store
func newTestStore(t *testing.T) *repository.Store {
	t.Helper()
	db, err := sqlitedriver.Open(filepath.Join(t.TempDir(), "syncq.db"))
	require.NoError(t, err)
	dialect := sqlitedriver.NewDialect()
	require.NoError(t, dialect.AutoMigrate(db))
	store := repository.NewStore(db, dialect)
	t.Cleanup(func() { store.Close() })
	return store
}

// testEnv 使用可控时钟的完整组件集合
type testEnv struct {
	store   *repository.Store
	clock   *clock.Fake
	opts    Options
	service *Service
	claims  *ClaimManager
	ledger  *Ledger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newTestStore(t)
	fake := clock.NewFake(t0)
	opts := Options{Clock: fake, Logger: logging.Discard()}
	svc := NewService(store, "node-test", opts)
	return &testEnv{
		store:   store,
		clock:   fake,
		opts:    opts,
		service: svc,
		claims:  svc.Claims(),
		ledger:  svc.Ledger(),
	}
}

// enqueue 入队并返回项
func (e *testEnv) enqueue(t *testing.T, kind string, id int64, payload string) *model.SyncQueueItem {
	t.Helper()
	item, err := e.service.EnqueueJob(context.Background(), kind, id, payload)
	require.NoError(t, err)
	return item
}

// claimNext 认领队列的下一项，期望成功
func (e *testEnv) claimNext(t *testing.T, queueID, nodeID string, lease time.Duration) *model.SyncQueueItem {
	t.Helper()
	ctx := context.Background()
	next, err := e.ledger.NextClaimable(ctx, queueID)
	require.NoError(t, err)
	require.NotNil(t, next, "expected a claimable item")
	claimed, err := e.claims.Claim(ctx, next, nodeID, lease)
	require.NoError(t, err)
	return claimed
}

// state 读取项的当前状态
func (e *testEnv) state(t *testing.T, itemID string) model.ItemState {
	t.Helper()
	item, err := e.ledger.Get(context.Background(), itemID)
	require.NoError(t, err)
	return item.State
}

// counterValue 汇总注册表中某个计数器所有标签的值
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var sum float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
	}
	return sum
}
