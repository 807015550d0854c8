package syncqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mgmt-syncq/internal/shared/model"
)

// Outcome 作业执行结果
type Outcome string

const (
	// OutcomeDone 成功完成
	OutcomeDone Outcome = "done"
	// OutcomeRetriable 可重试：回到 queued，保持原序号
	OutcomeRetriable Outcome = "retriable"
	// OutcomeFatal 不可重试：进入 failed
	OutcomeFatal Outcome = "fatal"
)

// Result 处理器返回值
//
// 重试还是失败由处理器决定，队列不从错误中推断意图。
type Result struct {
	Outcome Outcome
	Reason  string

	// RetryAfter Retriable 时队首再次可认领前的等待；为 0 时按认领次数指数退避
	RetryAfter time.Duration
}

// Done 成功
func Done() Result {
	return Result{Outcome: OutcomeDone}
}

// Retriable 可重试
func Retriable(reason string) Result {
	return Result{Outcome: OutcomeRetriable, Reason: reason}
}

// RetriableAfter 可重试，至少等待 d 后再认领
func RetriableAfter(reason string, d time.Duration) Result {
	return Result{Outcome: OutcomeRetriable, Reason: reason, RetryAfter: d}
}

// Fatal 不可重试
func Fatal(reason string) Result {
	return Result{Outcome: OutcomeFatal, Reason: reason}
}

// Fatalf 格式化的 Fatal
func Fatalf(format string, args ...any) Result {
	return Fatal(fmt.Sprintf(format, args...))
}

// targetState 结果对应的队列项状态
func (r Result) targetState() (model.ItemState, error) {
	switch r.Outcome {
	case OutcomeDone:
		return model.ItemStateDone, nil
	case OutcomeRetriable:
		return model.ItemStateQueued, nil
	case OutcomeFatal:
		return model.ItemStateFailed, nil
	}
	return "", fmt.Errorf("%w: unknown outcome %q", ErrInvalidArgument, r.Outcome)
}

// Handler 资源变更作业处理器
//
// 处理器必须能承受至少一次重复调用：节点可能在完成变更之后、
// 提交 complete 之前被判定死亡，作业随后由其它节点再次执行。
// ctx 在租约丢失或进程退出时取消。
type Handler interface {
	Handle(ctx context.Context, item *model.SyncQueueItem) Result
}

// HandlerFunc 函数适配器
type HandlerFunc func(ctx context.Context, item *model.SyncQueueItem) Result

// Handle 实现 Handler
func (f HandlerFunc) Handle(ctx context.Context, item *model.SyncQueueItem) Result {
	return f(ctx, item)
}

// HandlerRegistry 按资源类型注册处理器
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	fallback Handler
}

// NewHandlerRegistry 创建处理器注册表
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]Handler)}
}

// Register 注册资源类型的处理器（覆盖已有）
func (r *HandlerRegistry) Register(kind string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

// SetDefault 设置未注册资源类型使用的处理器
func (r *HandlerRegistry) SetDefault(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = h
}

// Resolve 查找处理器
func (r *HandlerRegistry) Resolve(kind string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.handlers[kind]; ok {
		return h, true
	}
	if r.fallback != nil {
		return r.fallback, true
	}
	return nil, false
}

// Kinds 已注册的资源类型
func (r *HandlerRegistry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	return kinds
}
