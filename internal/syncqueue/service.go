package syncqueue

import (
	"context"
	"fmt"

	"mgmt-syncq/internal/clock"
	"mgmt-syncq/internal/shared/eventbus"
	"mgmt-syncq/internal/shared/model"
	"mgmt-syncq/internal/shared/storage"
	"mgmt-syncq/pkg/logging"
)

// Service 同步队列对外入口（命令层调用）
//
// 入队是异步的：调用方拿到 item ID 后轮询状态，不等待执行完成。
type Service struct {
	registry *Registry
	ledger   *Ledger
	claims   *ClaimManager

	nodeID  string
	clock   clock.Clock
	log     *logging.Logger
	metrics *Metrics
	bus     eventbus.QueueEventBus
}

// NewService 基于同一个存储创建注册表、账本与认领管理器
func NewService(store storage.QueueStore, nodeID string, opts Options) *Service {
	return NewServiceFrom(NewRegistry(store, opts), NewLedger(store, opts), NewClaimManager(store, opts), nodeID, opts)
}

// NewServiceFrom 使用已有组件创建 Service
func NewServiceFrom(registry *Registry, ledger *Ledger, claims *ClaimManager, nodeID string, opts Options) *Service {
	opts = opts.withDefaults("service")
	return &Service{
		registry: registry,
		ledger:   ledger,
		claims:   claims,
		nodeID:   nodeID,
		clock:    opts.Clock,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		bus:      opts.EventBus,
	}
}

// Registry 队列注册表
func (s *Service) Registry() *Registry { return s.registry }

// Ledger 队列项账本
func (s *Service) Ledger() *Ledger { return s.ledger }

// Claims 认领管理器
func (s *Service) Claims() *ClaimManager { return s.claims }

// EnqueueJob 针对资源入队一个作业，返回 queued 状态的项
//
// 队列不存在时自动创建。
func (s *Service) EnqueueJob(ctx context.Context, kind string, id int64, payloadRef string) (*model.SyncQueueItem, error) {
	key := model.NewResourceKey(kind, id)
	q, err := s.registry.EnsureQueue(ctx, key)
	if err != nil {
		return nil, err
	}
	item, err := s.ledger.Enqueue(ctx, q.ID, payloadRef)
	if err != nil {
		return nil, err
	}
	item.ResourceKind = q.ResourceKind
	item.ResourceID = q.ResourceID

	s.metrics.enqueued(kind)
	s.log.ClaimLog("enqueued", q.ID, item.ID, logging.Seq(item.Sequence), "resource", key.String())
	publish(ctx, s.bus, s.log, &eventbus.QueueEvent{
		Type:         eventbus.QueueEventEnqueued,
		QueueID:      q.ID,
		ItemID:       item.ID,
		ResourceKind: q.ResourceKind,
		ResourceID:   q.ResourceID,
		Sequence:     item.Sequence,
		NodeID:       s.nodeID,
		Timestamp:    s.clock.Now(),
	})
	return item, nil
}

// GetItem 获取队列项（调用方轮询作业状态）
func (s *Service) GetItem(ctx context.Context, itemID string) (*model.SyncQueueItem, error) {
	return s.ledger.Get(ctx, itemID)
}

// CancelItem 取消尚未认领的项；已在执行或已结束的项返回 ErrNotCancellable
func (s *Service) CancelItem(ctx context.Context, itemID, reason string) (*model.SyncQueueItem, error) {
	if err := s.ledger.Cancel(ctx, itemID, reason); err != nil {
		return nil, err
	}
	return s.ledger.Get(ctx, itemID)
}

// GetQueue 按资源键获取队列及其最近的项
func (s *Service) GetQueue(ctx context.Context, key model.ResourceKey, limit int) (*model.SyncQueue, []*model.SyncQueueItem, error) {
	q, err := s.registry.FindQueue(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.ledger.List(ctx, q.ID, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("list items: %w", err)
	}
	return q, items, nil
}

// ReleaseNode 管理员确认节点已不存在，立即释放其持有的项
func (s *Service) ReleaseNode(ctx context.Context, nodeID string) (int64, error) {
	n, err := s.claims.ReleaseAllForNode(ctx, nodeID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		publish(ctx, s.bus, s.log, &eventbus.QueueEvent{
			Type:      eventbus.QueueEventReleased,
			NodeID:    s.nodeID,
			Timestamp: s.clock.Now(),
		})
	}
	return n, nil
}
