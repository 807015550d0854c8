// Package membership 集群成员（节点存活）抽象接口
//
// 节点通过周期心跳维持带 TTL 的成员记录；记录过期即视为节点已离开。
// 成员信息只用于加速恢复（ReleaseAllForNode），互斥正确性不依赖它：
// 成员后端不可用时仍由基于租约的 Sweeper 保证活性。
package membership

import (
	"context"
	"time"

	"mgmt-syncq/internal/shared/model"
)

// Membership 成员后端接口
type Membership interface {
	// Heartbeat 注册或刷新节点记录，记录在 TTL 内未刷新即过期
	Heartbeat(ctx context.Context, node *model.Node) error
	// Leave 主动注销节点（优雅退出）
	Leave(ctx context.Context, nodeID string) error
	// ListAlive 列出当前存活的节点
	ListAlive(ctx context.Context) ([]*model.Node, error)
	// Close 关闭连接
	Close() error
}

// 默认参数
const (
	DefaultTTL       = 15 * time.Second
	DefaultKeyPrefix = "syncq:node:"
)

// AliveSet 将节点列表转换为 ID 集合
func AliveSet(nodes []*model.Node) map[string]struct{} {
	set := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		set[n.ID] = struct{}{}
	}
	return set
}
