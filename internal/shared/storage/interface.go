// Package storage 定义持久化存储层抽象接口
//
// 设计原则：依赖倒置 (DIP)
//   - 调用方只依赖接口，不知道具体实现
//   - 具体实现在 repository/ 中，通过 dbutil.Dialect 适配不同数据库
//   - 初始化时通过依赖注入传入实现
//
// 同步队列的全部互斥都由存储层的原子条件更新保证，进程内不需要任何全局锁。
package storage

import (
	"context"
	"time"

	"mgmt-syncq/internal/shared/model"
)

// QueueStore 同步队列持久化接口
type QueueStore interface {
	QueueRegistryStore
	QueueItemStore
	ClaimStore
	ReapStore

	// Ping 检查存储可用性
	Ping(ctx context.Context) error
	// Close 关闭连接
	Close() error
}

// QueueRegistryStore 队列注册表
type QueueRegistryStore interface {
	// EnsureQueue 条件插入队列；同一资源键的队列已存在时为空操作
	EnsureQueue(ctx context.Context, q *model.SyncQueue) error
	// FindQueue 按资源键查找队列，不存在返回 ErrNotFound
	FindQueue(ctx context.Context, key model.ResourceKey) (*model.SyncQueue, error)
	// GetQueue 按 ID 获取队列，不存在返回 ErrNotFound
	GetQueue(ctx context.Context, id string) (*model.SyncQueue, error)
}

// QueueItemStore 队列项账本
type QueueItemStore interface {
	// EnqueueItem 原子分配序号（last_seq+1）并插入 queued 项，回填 item.Sequence
	EnqueueItem(ctx context.Context, item *model.SyncQueueItem) error
	// NextClaimable 返回队列中序号最小的 queued 项；队列存在 active 项时返回 nil
	NextClaimable(ctx context.Context, queueID string) (*model.SyncQueueItem, error)
	// GetItem 获取队列项，不存在返回 ErrNotFound
	GetItem(ctx context.Context, id string) (*model.SyncQueueItem, error)
	// ListItems 按序号升序列出队列中的项（limit <= 0 表示不限制）
	ListItems(ctx context.Context, queueID string, limit int) ([]*model.SyncQueueItem, error)
	// ListClaimableQueues 列出有 queued 项、无 active 项且队首不在重试等待中的队列，按队首入队时间升序
	ListClaimableQueues(ctx context.Context, now time.Time, limit int) ([]*model.ClaimableQueue, error)
	// CancelItem 将 queued 项置为 failed；项不处于 queued 时返回 ErrConflict
	CancelItem(ctx context.Context, itemID, reason string, now time.Time) error
}

// ClaimStore 认领与租约
type ClaimStore interface {
	// ClaimItem 原子认领：仅当项为 queued、队列无 active 项且无更小序号的 queued 项时成功
	// 竞争失败返回 ErrConflict
	ClaimItem(ctx context.Context, itemID, nodeID string, now, leaseExpiresAt time.Time) (*model.SyncQueueItem, error)
	// RenewItem 续租，要求 state=active 且 owner=nodeID，否则返回 ErrConflict
	RenewItem(ctx context.Context, itemID, nodeID string, now, leaseExpiresAt time.Time) error
	// CompleteItem 完成：要求 state=active 且 owner=nodeID，否则返回 ErrConflict
	// newState 为 done/queued/failed；queued 时清空 owner 与租约，序号不变，
	// notBefore 非零时该项在此之前不可认领
	CompleteItem(ctx context.Context, itemID, nodeID string, newState model.ItemState, reason string, now, notBefore time.Time) error
	// ReleaseItem 无条件释放 active 项回 queued；项不处于 active 返回 ErrConflict
	ReleaseItem(ctx context.Context, itemID string, now time.Time) error
	// ReleaseExpired 释放租约已过期的 active 项，返回被释放的项
	ReleaseExpired(ctx context.Context, now time.Time, limit int) ([]*model.SyncQueueItem, error)
	// ReleaseAllForNode 释放节点持有的全部 active 项（不考虑租约），返回数量
	ReleaseAllForNode(ctx context.Context, nodeID string, now time.Time) (int64, error)
	// ListActiveOwners 列出当前持有 active 项的节点 ID
	ListActiveOwners(ctx context.Context) ([]string, error)
}

// ReapStore 终态项清理
type ReapStore interface {
	// ListFinishedBefore 列出 updated_at 早于 cutoff 的 done/failed 项
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*model.SyncQueueItem, error)
	// DeleteItems 删除指定的终态项，返回删除数量（非终态项不会被删除）
	DeleteItems(ctx context.Context, ids []string) (int64, error)
}
