package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mgmt-syncq/internal/clock"
	"mgmt-syncq/internal/shared/model"
	"mgmt-syncq/internal/shared/storage"
	"mgmt-syncq/pkg/logging"
)

// ClaimManager 认领、续租与释放队列项
//
// 互斥的唯一来源是存储层的原子条件更新，本类型不持有任何进程内锁，
// 可被 Dispatcher、Sweeper 与 NodeWatcher 并发调用。
type ClaimManager struct {
	store   storage.ClaimStore
	clock   clock.Clock
	log     *logging.Logger
	metrics *Metrics
}

// NewClaimManager 创建认领管理器
func NewClaimManager(store storage.ClaimStore, opts Options) *ClaimManager {
	opts = opts.withDefaults("claim")
	return &ClaimManager{
		store:   store,
		clock:   opts.Clock,
		log:     opts.Logger,
		metrics: opts.Metrics,
	}
}

// Claim 认领队列项，成功时返回 active 状态的最新快照
//
// 竞争失败（已被认领、队首已变化）返回 ErrAlreadyClaimed。
func (m *ClaimManager) Claim(ctx context.Context, item *model.SyncQueueItem, nodeID string, lease time.Duration) (*model.SyncQueueItem, error) {
	now := m.clock.Now()
	claimed, err := m.store.ClaimItem(ctx, item.ID, nodeID, now, now.Add(lease))
	switch {
	case err == nil:
		m.metrics.claim("claimed")
		m.log.ClaimLog("claimed", claimed.QueueID, claimed.ID,
			logging.Seq(claimed.Sequence), "node_id", nodeID, "attempt", claimed.Attempts)
		return claimed, nil
	case errors.Is(err, storage.ErrConflict):
		m.metrics.claim("contended")
		return nil, ErrAlreadyClaimed
	case errors.Is(err, storage.ErrNotFound):
		return nil, ErrItemNotFound
	}
	m.metrics.claim("error")
	return nil, fmt.Errorf("claim %s: %w", item.ID, err)
}

// Renew 延长租约；已不是持有者时返回 ErrLostOwnership
func (m *ClaimManager) Renew(ctx context.Context, item *model.SyncQueueItem, nodeID string, lease time.Duration) error {
	now := m.clock.Now()
	err := m.store.RenewItem(ctx, item.ID, nodeID, now, now.Add(lease))
	switch {
	case err == nil:
		m.metrics.renewal("renewed")
		return nil
	case errors.Is(err, storage.ErrConflict):
		m.metrics.renewal("lost")
		return ErrLostOwnership
	}
	m.metrics.renewal("error")
	return fmt.Errorf("renew %s: %w", item.ID, err)
}

// Complete 提交执行结果
//
// Done -> done；Retriable -> queued（序号不变，清空持有者，RetryAfter 内不可认领）；Fatal -> failed。
// 调用方已不是持有者时返回 ErrLostOwnership，项状态不受影响。
func (m *ClaimManager) Complete(ctx context.Context, item *model.SyncQueueItem, nodeID string, res Result) error {
	state, err := res.targetState()
	if err != nil {
		return err
	}
	now := m.clock.Now()
	var notBefore time.Time
	if res.Outcome == OutcomeRetriable && res.RetryAfter > 0 {
		notBefore = now.Add(res.RetryAfter)
	}
	err = m.store.CompleteItem(ctx, item.ID, nodeID, state, res.Reason, now, notBefore)
	switch {
	case err == nil:
		m.metrics.completion(string(res.Outcome))
		m.log.ClaimLog("completed", item.QueueID, item.ID,
			logging.Seq(item.Sequence), "node_id", nodeID, "outcome", string(res.Outcome), "reason", res.Reason,
			"retry_after", res.RetryAfter.String())
		return nil
	case errors.Is(err, storage.ErrConflict):
		m.metrics.completion("lost")
		return ErrLostOwnership
	}
	return fmt.Errorf("complete %s: %w", item.ID, err)
}

// Release 无条件释放 active 项回 queued
//
// 只由恢复路径（Sweeper、管理员操作）调用；存活的持有者使用 Complete。
func (m *ClaimManager) Release(ctx context.Context, item *model.SyncQueueItem) error {
	err := m.store.ReleaseItem(ctx, item.ID, m.clock.Now())
	switch {
	case err == nil:
		m.metrics.released("manual", 1)
		m.log.ClaimLog("released", item.QueueID, item.ID, logging.Seq(item.Sequence))
		return nil
	case errors.Is(err, storage.ErrConflict):
		return ErrNotActive
	case errors.Is(err, storage.ErrNotFound):
		return ErrItemNotFound
	}
	return fmt.Errorf("release %s: %w", item.ID, err)
}

// ReleaseExpired 释放租约已过期的项，返回被释放项（释放前的快照）
func (m *ClaimManager) ReleaseExpired(ctx context.Context, limit int) ([]*model.SyncQueueItem, error) {
	released, err := m.store.ReleaseExpired(ctx, m.clock.Now(), limit)
	m.metrics.released("expired", len(released))
	for _, item := range released {
		owner := ""
		if item.OwnerNodeID != nil {
			owner = *item.OwnerNodeID
		}
		m.log.ClaimLog("lease_expired", item.QueueID, item.ID, logging.Seq(item.Sequence), "owner", owner)
	}
	if err != nil {
		return released, fmt.Errorf("release expired: %w", err)
	}
	return released, nil
}

// ReleaseAllForNode 释放节点持有的全部 active 项，不等待租约过期
//
// 仅在确认节点已不存在时调用（成员过期、管理员操作）。
func (m *ClaimManager) ReleaseAllForNode(ctx context.Context, nodeID string) (int64, error) {
	if nodeID == "" {
		return 0, fmt.Errorf("%w: node id is required", ErrInvalidArgument)
	}
	n, err := m.store.ReleaseAllForNode(ctx, nodeID, m.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("release node %s: %w", nodeID, err)
	}
	m.metrics.released("node", int(n))
	if n > 0 {
		m.log.Info("released items of node", "node_id", nodeID, "count", n)
	}
	return n, nil
}

// ActiveOwners 当前持有 active 项的节点
func (m *ClaimManager) ActiveOwners(ctx context.Context) ([]string, error) {
	return m.store.ListActiveOwners(ctx)
}
