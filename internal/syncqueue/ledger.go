package syncqueue

import (
	"context"
	"errors"
	"fmt"

	"mgmt-syncq/internal/clock"
	"mgmt-syncq/internal/shared/model"
	"mgmt-syncq/internal/shared/storage"
)

// Ledger 队列项账本
type Ledger struct {
	store storage.QueueItemStore
	clock clock.Clock
}

// NewLedger 创建账本
func NewLedger(store storage.QueueItemStore, opts Options) *Ledger {
	opts = opts.withDefaults("ledger")
	return &Ledger{store: store, clock: opts.Clock}
}

// Enqueue 追加 queued 项，序号为队列当前最大值 +1
//
// 入队从不等待队列中的其它项。
func (l *Ledger) Enqueue(ctx context.Context, queueID, payloadRef string) (*model.SyncQueueItem, error) {
	if payloadRef == "" {
		return nil, fmt.Errorf("%w: payload_ref is required", ErrInvalidArgument)
	}
	item := model.NewSyncQueueItem(queueID, payloadRef, l.clock.Now())
	if err := l.store.EnqueueItem(ctx, item); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrQueueNotFound
		}
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	return item, nil
}

// NextClaimable 返回队列中序号最小的 queued 项
//
// 队列中已有 active 项时返回 nil；认领时会在存储层再次原子校验。
func (l *Ledger) NextClaimable(ctx context.Context, queueID string) (*model.SyncQueueItem, error) {
	return l.store.NextClaimable(ctx, queueID)
}

// ClaimableQueues 列出有待认领项且无执行中项的队列，队首处于重试等待的队列不列出
func (l *Ledger) ClaimableQueues(ctx context.Context, limit int) ([]*model.ClaimableQueue, error) {
	return l.store.ListClaimableQueues(ctx, l.clock.Now(), limit)
}

// Get 获取队列项
func (l *Ledger) Get(ctx context.Context, itemID string) (*model.SyncQueueItem, error) {
	item, err := l.store.GetItem(ctx, itemID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrItemNotFound
	}
	return item, err
}

// List 按序号列出队列中的项
func (l *Ledger) List(ctx context.Context, queueID string, limit int) ([]*model.SyncQueueItem, error) {
	return l.store.ListItems(ctx, queueID, limit)
}

// Cancel 取消尚未认领的项（queued -> failed）
//
// 已在执行的项不可取消。
func (l *Ledger) Cancel(ctx context.Context, itemID, reason string) error {
	if reason == "" {
		reason = "cancelled"
	}
	err := l.store.CancelItem(ctx, itemID, reason, l.clock.Now())
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return ErrItemNotFound
	case errors.Is(err, storage.ErrConflict):
		return ErrNotCancellable
	}
	return err
}
