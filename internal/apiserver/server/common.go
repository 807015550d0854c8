// Package server 管理接口 HTTP 入口
//
// 文件组织：
//   - handler.go: 路由装配、CORS
//   - common.go: Handler 定义、通用工具函数、健康检查
//   - metrics.go: HTTP 指标中间件与 /metrics 端点
//
// 领域接口分布在各自的包中：
//   - job: 入队、队列项查询与取消、队列详情
//   - node: 存活节点、释放节点持有的项
//   - auth: 管理员令牌
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"mgmt-syncq/internal/apiserver/auth"
	"mgmt-syncq/internal/apiserver/node"
	"mgmt-syncq/internal/shared/archive"
	"mgmt-syncq/internal/syncqueue"

	"github.com/prometheus/client_golang/prometheus"
)

// healthTimeout 健康检查访问存储的超时
const healthTimeout = 2 * time.Second

// Pinger 存储可用性探测
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps Handler 依赖
type Deps struct {
	Service *syncqueue.Service
	Store   Pinger
	Members node.MemberLister // 可为 nil
	Archive archive.Reader    // 可为 nil
	NodeID  string
	Auth    auth.Config

	// Registerer / Gatherer 为 nil 时使用 Prometheus 默认注册表
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// Handler API 处理器
//
// Handler 是所有 HTTP API 的入口，负责：
//   - 路由请求到各领域处理器
//   - 健康检查（存储可用性）
//   - 指标与认证中间件
type Handler struct {
	deps    Deps
	metrics *Metrics
}

// NewHandler 创建 Handler 实例
func NewHandler(deps Deps) *Handler {
	return &Handler{
		deps:    deps,
		metrics: NewMetrics("syncq_api", deps.Registerer),
	}
}

// GetMetrics 返回指标实例
func (h *Handler) GetMetrics() *Metrics {
	return h.metrics
}

// writeJSON 将数据以 JSON 格式写入 HTTP 响应
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError 将错误信息以 JSON 格式写入 HTTP 响应
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Health 健康检查接口
//
// 路由: GET /health
//
// 共享存储不可用时返回 503：此时本节点既不能认领也不能完成任何项。
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.deps.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := h.deps.Store.Ping(ctx); err != nil {
			log.Printf("[health] store ping failed: %v", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "unavailable",
				"node_id": h.deps.NodeID,
				"error":   err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "node_id": h.deps.NodeID})
}
