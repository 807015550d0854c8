// Package eventbus 事件总线类型定义
package eventbus

import (
	"time"
)

// ============================================================================
// 事件类型
// ============================================================================

// QueueEventType 队列事件类型
type QueueEventType string

const (
	// QueueEventEnqueued 新项入队
	QueueEventEnqueued QueueEventType = "enqueued"
	// QueueEventReleased 项被释放回 queued（重试、租约过期、节点释放）
	QueueEventReleased QueueEventType = "released"
	// QueueEventCompleted 项结束，队列中下一项可能变为可认领
	QueueEventCompleted QueueEventType = "completed"
)

// QueueEvent 队列事件
//
// 事件只是唤醒信号：丢失事件不会影响正确性，Dispatcher 的轮询兜底。
type QueueEvent struct {
	Type         QueueEventType `json:"type"`
	QueueID      string         `json:"queue_id"`
	ItemID       string         `json:"item_id,omitempty"`
	ResourceKind string         `json:"resource_kind,omitempty"`
	ResourceID   int64          `json:"resource_id,omitempty"`
	Sequence     int64          `json:"sequence,omitempty"`
	NodeID       string         `json:"node_id,omitempty"` // 发布者
	Timestamp    time.Time      `json:"timestamp"`
}

// ============================================================================
// Key 前缀和常量
// ============================================================================

const (
	// ChannelQueueEvents Pub/Sub 频道名
	ChannelQueueEvents = "syncq:queue_events"

	// SubscriberBuffer 订阅通道缓冲大小
	SubscriberBuffer = 64
)
