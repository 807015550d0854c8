// Package eventbus 事件总线抽象接口
//
// 提供队列事件的发布/订阅能力，当前由 Redis Pub/Sub 实现。
package eventbus

import (
	"context"
)

// QueueEventBus 队列事件总线接口
type QueueEventBus interface {
	// Publish 发布队列事件
	Publish(ctx context.Context, event *QueueEvent) error
	// Subscribe 订阅队列事件，ctx 取消时通道关闭
	Subscribe(ctx context.Context) (<-chan *QueueEvent, error)
	// Close 关闭事件总线
	Close() error
}
