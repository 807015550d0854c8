// Package eventbus 事件总线进程内实现
package eventbus

import (
	"context"
	"sync"
)

// ============================================================================
// NoOpEventBus - 空操作实现（未配置 Redis 时使用）
// ============================================================================

// NoOpEventBus 是一个不做任何操作的 QueueEventBus 实现
type NoOpEventBus struct{}

// NewNoOpEventBus 创建 NoOpEventBus 实例
func NewNoOpEventBus() *NoOpEventBus {
	return &NoOpEventBus{}
}

func (e *NoOpEventBus) Publish(ctx context.Context, event *QueueEvent) error {
	return nil
}

// Subscribe 返回一个在 ctx 取消时关闭的空通道
func (e *NoOpEventBus) Subscribe(ctx context.Context) (<-chan *QueueEvent, error) {
	ch := make(chan *QueueEvent)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (e *NoOpEventBus) Close() error {
	return nil
}

// ============================================================================
// LocalEventBus - 进程内扇出实现（单节点部署、测试）
// ============================================================================

// LocalEventBus 进程内事件总线，订阅者通道满时丢弃事件
type LocalEventBus struct {
	mu     sync.RWMutex
	subs   map[chan *QueueEvent]struct{}
	closed bool
}

// NewLocalEventBus 创建进程内事件总线
func NewLocalEventBus() *LocalEventBus {
	return &LocalEventBus{subs: make(map[chan *QueueEvent]struct{})}
}

// Publish 非阻塞扇出到所有订阅者
func (e *LocalEventBus) Publish(ctx context.Context, event *QueueEvent) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for ch := range e.subs {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe 订阅事件
func (e *LocalEventBus) Subscribe(ctx context.Context) (<-chan *QueueEvent, error) {
	ch := make(chan *QueueEvent, SubscriberBuffer)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		close(ch)
		return ch, nil
	}
	e.subs[ch] = struct{}{}
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(ch)
	}()
	return ch, nil
}

func (e *LocalEventBus) remove(ch chan *QueueEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.subs[ch]; ok {
		delete(e.subs, ch)
		close(ch)
	}
}

// Close 关闭所有订阅
func (e *LocalEventBus) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for ch := range e.subs {
		close(ch)
	}
	e.subs = map[chan *QueueEvent]struct{}{}
	e.closed = true
	return nil
}

var (
	_ QueueEventBus = (*NoOpEventBus)(nil)
	_ QueueEventBus = (*LocalEventBus)(nil)
)
