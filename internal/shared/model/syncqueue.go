// Package model 同步队列数据模型
//
// syncqueue.go 包含资源级同步队列相关的数据模型定义：
//   - SyncQueue：每个 ResourceKey 对应唯一的一个队列
//   - SyncQueueItem：队列中的一个工作单元
//   - ItemState：工作单元状态枚举
package model

import (
	"time"

	"github.com/rs/xid"
)

// ============================================================================
// ItemState - 队列项状态
// ============================================================================

// ItemState 表示队列项的状态
//
// 状态机：
//
//	queued --claim--> active --complete(done)--> done
//	                  active --complete(retriable)--> queued
//	                  active --complete(fatal)--> failed
//	                  active --lease expiry / release_all_for_node--> queued
//	queued --cancel--> failed
//
// done 与 failed 为终态。
type ItemState string

const (
	// ItemStateQueued 排队中：等待认领
	ItemStateQueued ItemState = "queued"

	// ItemStateActive 执行中：被某个节点持有租约
	ItemStateActive ItemState = "active"

	// ItemStateDone 已完成
	ItemStateDone ItemState = "done"

	// ItemStateFailed 已失败：不可重试的结果或取消
	ItemStateFailed ItemState = "failed"
)

// Valid 是否为已知状态
func (s ItemState) Valid() bool {
	switch s {
	case ItemStateQueued, ItemStateActive, ItemStateDone, ItemStateFailed:
		return true
	}
	return false
}

// IsTerminal 是否为终态
func (s ItemState) IsTerminal() bool {
	return s == ItemStateDone || s == ItemStateFailed
}

// CanTransitionTo 检查状态转换是否合法
func (s ItemState) CanTransitionTo(to ItemState) bool {
	switch s {
	case ItemStateQueued:
		return to == ItemStateActive || to == ItemStateFailed
	case ItemStateActive:
		return to == ItemStateDone || to == ItemStateQueued || to == ItemStateFailed
	}
	return false
}

// ============================================================================
// SyncQueue - 队列
// ============================================================================

// SyncQueue 资源队列
//
// 每个 ResourceKey 至多一个队列，首次入队时惰性创建，永不删除。
type SyncQueue struct {
	ID           string    `json:"id" bson:"_id"`
	ResourceKind string    `json:"resource_kind" bson:"resource_kind"`
	ResourceID   int64     `json:"resource_id" bson:"resource_id"`
	LastSeq      int64     `json:"last_seq" bson:"last_seq"` // 最近分配的序号
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
	LastUpdated  time.Time `json:"last_updated" bson:"last_updated"`
}

// Key 返回队列的资源键
func (q *SyncQueue) Key() ResourceKey {
	return ResourceKey{Kind: q.ResourceKind, ID: q.ResourceID}
}

// NewSyncQueue 创建新队列（ID 由应用生成）
func NewSyncQueue(key ResourceKey, now time.Time) *SyncQueue {
	return &SyncQueue{
		ID:           NewQueueID(),
		ResourceKind: key.Kind,
		ResourceID:   key.ID,
		CreatedAt:    now,
		LastUpdated:  now,
	}
}

// ============================================================================
// SyncQueueItem - 队列项
// ============================================================================

// SyncQueueItem 队列中的一个工作单元
//
// 不变量：同一队列中至多一个 active 项，且它总是 {queued, active} 中序号最小者。
type SyncQueueItem struct {
	ID             string     `json:"id" bson:"_id"`
	QueueID        string     `json:"queue_id" bson:"queue_id"`
	Sequence       int64      `json:"sequence" bson:"sequence"`
	PayloadRef     string     `json:"payload_ref" bson:"payload_ref"` // 调用方作业的不透明引用
	State          ItemState  `json:"state" bson:"state"`
	OwnerNodeID    *string    `json:"owner_node_id,omitempty" bson:"owner_node_id,omitempty"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty" bson:"lease_expires_at,omitempty"`
	Attempts       int        `json:"attempts" bson:"attempts"` // 被认领的次数
	// 重试等待：此时刻之前不可认领
	NotBefore      *time.Time `json:"not_before,omitempty" bson:"not_before,omitempty"`
	LastError      *string    `json:"last_error,omitempty" bson:"last_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" bson:"updated_at"`

	// 以下字段来自所属队列（查询时关联）
	ResourceKind string `json:"resource_kind,omitempty" bson:"resource_kind,omitempty"`
	ResourceID   int64  `json:"resource_id,omitempty" bson:"resource_id,omitempty"`
}

// Key 返回所属队列的资源键
func (i *SyncQueueItem) Key() ResourceKey {
	return ResourceKey{Kind: i.ResourceKind, ID: i.ResourceID}
}

// IsOwnedBy 是否由指定节点持有
func (i *SyncQueueItem) IsOwnedBy(nodeID string) bool {
	return i.OwnerNodeID != nil && *i.OwnerNodeID == nodeID
}

// IsLeaseExpired 租约是否已过期（非 active 项返回 false）
func (i *SyncQueueItem) IsLeaseExpired(now time.Time) bool {
	if i.State != ItemStateActive || i.LeaseExpiresAt == nil {
		return false
	}
	return i.LeaseExpiresAt.Before(now)
}

// NewSyncQueueItem 创建 queued 状态的队列项（序号由存储层分配）
func NewSyncQueueItem(queueID, payloadRef string, now time.Time) *SyncQueueItem {
	return &SyncQueueItem{
		ID:         NewItemID(),
		QueueID:    queueID,
		PayloadRef: payloadRef,
		State:      ItemStateQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// ClaimableQueue 有待认领项且当前无 active 项的队列
type ClaimableQueue struct {
	QueueID       string    `json:"queue_id"`
	ResourceKind  string    `json:"resource_kind"`
	ResourceID    int64     `json:"resource_id"`
	HeadSequence  int64     `json:"head_sequence"`   // 最小 queued 序号
	HeadCreatedAt time.Time `json:"head_created_at"` // 队首项入队时间
}

// NewQueueID 生成队列 ID
func NewQueueID() string {
	return "sq-" + xid.New().String()
}

// NewItemID 生成队列项 ID
func NewItemID() string {
	return "sqi-" + xid.New().String()
}

// StrPtr 返回字符串指针
func StrPtr(s string) *string {
	return &s
}

// TimePtr 返回时间指针
func TimePtr(t time.Time) *time.Time {
	return &t
}
