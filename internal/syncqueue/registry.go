package syncqueue

import (
	"context"
	"errors"
	"fmt"

	"mgmt-syncq/internal/clock"
	"mgmt-syncq/internal/shared/model"
	"mgmt-syncq/internal/shared/storage"
	"mgmt-syncq/pkg/logging"
)

// Registry 资源键到队列的映射
type Registry struct {
	store storage.QueueRegistryStore
	clock clock.Clock
	log   *logging.Logger
}

// NewRegistry 创建队列注册表
func NewRegistry(store storage.QueueRegistryStore, opts Options) *Registry {
	opts = opts.withDefaults("registry")
	return &Registry{store: store, clock: opts.Clock, log: opts.Logger}
}

// EnsureQueue 幂等创建资源键对应的队列并返回它
//
// 多个节点并发调用时由存储层唯一约束裁决，败者的插入视为成功，
// 随后读回的总是胜者创建的那一行。
func (r *Registry) EnsureQueue(ctx context.Context, key model.ResourceKey) (*model.SyncQueue, error) {
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	q, err := r.store.FindQueue(ctx, key)
	if err == nil {
		return q, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("find queue %s: %w", key, err)
	}

	if err := r.store.EnsureQueue(ctx, model.NewSyncQueue(key, r.clock.Now())); err != nil {
		return nil, err
	}
	q, err = r.store.FindQueue(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("find queue %s after create: %w", key, err)
	}
	r.log.Debug("queue ensured", "queue_id", q.ID, "resource", key.String())
	return q, nil
}

// FindQueue 按资源键查找队列
func (r *Registry) FindQueue(ctx context.Context, key model.ResourceKey) (*model.SyncQueue, error) {
	q, err := r.store.FindQueue(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrQueueNotFound
	}
	return q, err
}

// GetQueue 按 ID 获取队列
func (r *Registry) GetQueue(ctx context.Context, id string) (*model.SyncQueue, error) {
	q, err := r.store.GetQueue(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrQueueNotFound
	}
	return q, err
}
