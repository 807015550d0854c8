// Package model 定义核心数据模型
//
// resource.go 定义串行化域：
//   - ResourceKey：资源类型 + 资源 ID，同一 ResourceKey 的变更严格串行执行
package model

import (
	"fmt"
	"strings"
)

// 常见资源类型
const (
	ResourceKindNetwork        = "network"
	ResourceKindHost           = "host"
	ResourceKindCluster        = "cluster"
	ResourceKindVirtualMachine = "vm"
	ResourceKindFirewallRule   = "firewall_rule"
	ResourceKindStaticNat      = "static_nat"
)

// maxResourceKindLen 资源类型最大长度（与表结构 VARCHAR(64) 一致）
const maxResourceKindLen = 64

// ResourceKey 资源键，标识一个串行化域
//
// 由调用方选定后不可变，例如 ("network", 42)。
type ResourceKey struct {
	Kind string `json:"resource_kind" bson:"resource_kind"`
	ID   int64  `json:"resource_id" bson:"resource_id"`
}

// NewResourceKey 创建资源键
func NewResourceKey(kind string, id int64) ResourceKey {
	return ResourceKey{Kind: kind, ID: id}
}

// String 返回 "kind-id" 形式
func (k ResourceKey) String() string {
	return fmt.Sprintf("%s-%d", k.Kind, k.ID)
}

// Validate 校验资源键
func (k ResourceKey) Validate() error {
	kind := strings.TrimSpace(k.Kind)
	if kind == "" {
		return fmt.Errorf("resource kind is required")
	}
	if kind != k.Kind {
		return fmt.Errorf("resource kind %q has surrounding whitespace", k.Kind)
	}
	if len(kind) > maxResourceKindLen {
		return fmt.Errorf("resource kind exceeds %d characters", maxResourceKindLen)
	}
	if k.ID < 0 {
		return fmt.Errorf("resource id must not be negative")
	}
	return nil
}
