// Package model 定义核心数据模型
//
// node.go 包含管理节点相关的数据模型定义：
//   - Node：一个管理服务器进程实例
package model

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Node 管理服务器节点
//
// NodeID 在进程生命周期内稳定，在集群范围内唯一。
type Node struct {
	ID            string    `json:"id"`
	Hostname      string    `json:"hostname,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// GenerateNodeID 生成节点 ID：{hostname}-{8 位随机}
//
// 每次进程启动都会生成新的 ID，重启后的进程不会继承旧进程的租约。
func GenerateNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "node"
	}
	host = strings.ToLower(strings.ReplaceAll(host, ".", "-"))
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}
