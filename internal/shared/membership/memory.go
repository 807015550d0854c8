// Package membership 进程内成员实现
//
// memory.go 提供单进程部署与测试使用的内存实现。
package membership

import (
	"context"
	"sort"
	"sync"
	"time"

	"mgmt-syncq/internal/clock"
	"mgmt-syncq/internal/shared/model"
)

// Memory 内存成员表
type Memory struct {
	mu    sync.Mutex
	ttl   time.Duration
	clock clock.Clock
	nodes map[string]*model.Node
}

// NewMemory 创建内存成员表
func NewMemory(ttl time.Duration, clk clock.Clock) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Memory{ttl: ttl, clock: clk, nodes: make(map[string]*model.Node)}
}

var _ Membership = (*Memory)(nil)

// Heartbeat 注册或刷新节点
func (m *Memory) Heartbeat(ctx context.Context, node *model.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := *node
	n.LastHeartbeat = m.clock.Now()
	m.nodes[node.ID] = &n
	return nil
}

// Leave 注销节点
func (m *Memory) Leave(ctx context.Context, nodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nodes, nodeID)
	return nil
}

// ListAlive 列出 TTL 内有心跳的节点
func (m *Memory) ListAlive(ctx context.Context) ([]*model.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	alive := make([]*model.Node, 0, len(m.nodes))
	for id, n := range m.nodes {
		if now.Sub(n.LastHeartbeat) > m.ttl {
			delete(m.nodes, id)
			continue
		}
		cp := *n
		alive = append(alive, &cp)
	}
	sort.Slice(alive, func(i, j int) bool { return alive[i].ID < alive[j].ID })
	return alive, nil
}

// Close 关闭
func (m *Memory) Close() error {
	return nil
}
