package server

import (
	"net/http"

	"mgmt-syncq/internal/apiserver/auth"
	"mgmt-syncq/internal/apiserver/job"
	"mgmt-syncq/internal/apiserver/node"
)

// Router 创建并返回 HTTP 路由器
//
// 路由列表：
//
// 健康检查与指标:
//   - GET    /health                     - 健康检查（存储不可用时 503）
//   - GET    /metrics                    - Prometheus 指标
//
// 作业接口:
//   - POST   /api/v1/jobs                - 入队作业（202）
//   - GET    /api/v1/items/{id}          - 查询队列项
//   - POST   /api/v1/items/{id}/cancel   - 取消未认领的项（409：不可取消）
//   - GET    /api/v1/queues/{kind}/{id}  - 查看资源队列
//
// 节点接口:
//   - GET    /api/v1/nodes               - 存活节点
//   - POST   /api/v1/nodes/{id}/release  - 释放节点持有的项（管理员）
//
// 认证接口:
//   - POST   /api/v1/auth/token          - 管理员登录
//   - GET    /api/v1/auth/me             - 当前调用方
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// 健康检查
	mux.HandleFunc("GET /health", h.Health)

	// Prometheus 指标端点
	mux.Handle("GET /metrics", MetricsHandler(h.deps.Gatherer))

	// 作业接口
	jobHandler := job.NewHandler(h.deps.Service, h.deps.Archive)
	jobHandler.RegisterRoutes(mux)

	// 节点接口
	nodeHandler := node.NewHandler(h.deps.Members, h.deps.Service, h.deps.NodeID, h.deps.Auth)
	nodeHandler.RegisterRoutes(mux)

	// Auth 路由
	authHandler := auth.NewHandler(h.deps.Auth)
	authHandler.RegisterRoutes(mux)

	// 应用指标中间件
	apiHandler := h.metrics.MetricsMiddleware(mux)

	// 应用认证中间件
	authedHandler := auth.Middleware(h.deps.Auth)(apiHandler)

	// 应用 CORS 中间件
	return corsMiddleware(authedHandler)
}

// corsMiddleware 添加 CORS 头支持跨域请求
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
