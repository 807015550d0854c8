// Package syncqueue 队列选择策略
package syncqueue

import (
	"fmt"
	"sort"
	"sync"

	"mgmt-syncq/internal/shared/model"
)

// 策略名称
const (
	StrategyRoundRobin  = "round_robin"
	StrategyOldestFirst = "oldest_first"
)

// Strategy 决定 Dispatcher 本轮尝试认领队列的顺序
//
// 目的是避免低流量资源长期排在高流量资源之后。
type Strategy interface {
	// Name 返回策略名称
	Name() string

	// Order 返回候选队列的尝试顺序，不修改入参
	Order(queues []*model.ClaimableQueue) []*model.ClaimableQueue
}

// NewStrategy 按名称创建策略
func NewStrategy(name string) (Strategy, error) {
	switch name {
	case "", StrategyRoundRobin:
		return NewRoundRobinStrategy(), nil
	case StrategyOldestFirst:
		return NewOldestFirstStrategy(), nil
	}
	return nil, fmt.Errorf("%w: unknown strategy %q", ErrInvalidArgument, name)
}

// RoundRobinStrategy 轮询策略
//
// 候选队列按 ID 排序，每轮从上一轮起点之后的队列开始，
// 所有队列轮流获得优先机会。
type RoundRobinStrategy struct {
	mu   sync.Mutex
	last string
}

// NewRoundRobinStrategy 创建轮询策略
func NewRoundRobinStrategy() *RoundRobinStrategy {
	return &RoundRobinStrategy{}
}

// Name 返回策略名称
func (s *RoundRobinStrategy) Name() string {
	return StrategyRoundRobin
}

// Order 从上一轮起点之后旋转
func (s *RoundRobinStrategy) Order(queues []*model.ClaimableQueue) []*model.ClaimableQueue {
	if len(queues) == 0 {
		return nil
	}
	sorted := make([]*model.ClaimableQueue, len(queues))
	copy(sorted, queues)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].QueueID < sorted[j].QueueID })

	s.mu.Lock()
	defer s.mu.Unlock()

	start := sort.Search(len(sorted), func(i int) bool { return sorted[i].QueueID > s.last })
	if start == len(sorted) {
		start = 0
	}
	ordered := append(sorted[start:len(sorted):len(sorted)], sorted[:start]...)
	s.last = ordered[0].QueueID
	return ordered
}

// Reset 重置轮询位置（用于测试）
func (s *RoundRobinStrategy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = ""
}

// OldestFirstStrategy 队首项入队最早的队列优先
type OldestFirstStrategy struct{}

// NewOldestFirstStrategy 创建最早优先策略
func NewOldestFirstStrategy() *OldestFirstStrategy {
	return &OldestFirstStrategy{}
}

// Name 返回策略名称
func (s *OldestFirstStrategy) Name() string {
	return StrategyOldestFirst
}

// Order 按队首入队时间升序，时间相同按队列 ID
func (s *OldestFirstStrategy) Order(queues []*model.ClaimableQueue) []*model.ClaimableQueue {
	if len(queues) == 0 {
		return nil
	}
	sorted := make([]*model.ClaimableQueue, len(queues))
	copy(sorted, queues)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.HeadCreatedAt.Equal(b.HeadCreatedAt) {
			return a.HeadCreatedAt.Before(b.HeadCreatedAt)
		}
		return a.QueueID < b.QueueID
	})
	return sorted
}
