package syncqueue

import "errors"

var (
	// ErrAlreadyClaimed 认领竞争失败（其它节点先认领，或队首已变化）
	// 不是错误：调用方下一轮轮询重试即可
	ErrAlreadyClaimed = errors.New("syncqueue: item already claimed")

	// ErrLostOwnership 续租/完成时发现已不是持有者（租约已被回收）
	// 处理器必须停止后续副作用
	ErrLostOwnership = errors.New("syncqueue: lost ownership of item")

	// ErrNotActive 释放的项不处于 active
	ErrNotActive = errors.New("syncqueue: item is not active")

	// ErrNotCancellable 只有 queued 项可以取消
	ErrNotCancellable = errors.New("syncqueue: only queued items can be cancelled")

	// ErrQueueNotFound 队列不存在
	ErrQueueNotFound = errors.New("syncqueue: queue not found")

	// ErrItemNotFound 队列项不存在
	ErrItemNotFound = errors.New("syncqueue: item not found")

	// ErrNoHandler 资源类型没有注册处理器
	ErrNoHandler = errors.New("syncqueue: no handler for resource kind")

	// ErrInvalidArgument 参数非法
	ErrInvalidArgument = errors.New("syncqueue: invalid argument")
)
