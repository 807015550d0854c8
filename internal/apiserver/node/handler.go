// Package node 节点领域 - HTTP 处理
package node

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sort"
	"time"

	"mgmt-syncq/internal/apiserver/auth"
	"mgmt-syncq/internal/shared/model"
	"mgmt-syncq/internal/syncqueue"
)

// MemberLister 节点存活信息来源
type MemberLister interface {
	ListAlive(ctx context.Context) ([]*model.Node, error)
}

// NodeReleaser 释放节点持有的全部队列项
type NodeReleaser interface {
	ReleaseNode(ctx context.Context, nodeID string) (int64, error)
}

// Handler 节点领域 HTTP 处理器
type Handler struct {
	members  MemberLister // 可为 nil：未配置成员后端
	releaser NodeReleaser
	selfID   string
	authCfg  auth.Config
}

// NewHandler 创建节点处理器
func NewHandler(members MemberLister, releaser NodeReleaser, selfID string, authCfg auth.Config) *Handler {
	return &Handler{members: members, releaser: releaser, selfID: selfID, authCfg: authCfg}
}

// RegisterRoutes 注册节点相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/nodes", h.List)
	mux.HandleFunc("POST /api/v1/nodes/{id}/release", auth.AdminOnly(h.authCfg, h.Release))
}

// Response 节点响应结构
type Response struct {
	ID            string     `json:"id"`
	Hostname      string     `json:"hostname,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
	Self          bool       `json:"self"`
}

// ListResponse 节点列表响应
type ListResponse struct {
	Nodes      []Response `json:"nodes"`
	Membership string     `json:"membership"` // enabled / disabled
}

// ReleaseResponse 释放结果
type ReleaseResponse struct {
	NodeID   string `json:"node_id"`
	Released int64  `json:"released"`
}

// List 列出存活节点
// GET /api/v1/nodes
//
// 未配置成员后端时只返回本节点。
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.members == nil {
		writeJSON(w, http.StatusOK, ListResponse{
			Nodes:      []Response{{ID: h.selfID, Self: true}},
			Membership: "disabled",
		})
		return
	}

	nodes, err := h.members.ListAlive(r.Context())
	if err != nil {
		log.Printf("[node.list] ERROR: %v", err)
		writeError(w, http.StatusServiceUnavailable, "membership unavailable")
		return
	}

	resp := ListResponse{Nodes: make([]Response, 0, len(nodes)), Membership: "enabled"}
	for _, n := range nodes {
		resp.Nodes = append(resp.Nodes, toResponse(n, h.selfID))
	}
	sort.Slice(resp.Nodes, func(i, j int) bool { return resp.Nodes[i].ID < resp.Nodes[j].ID })
	writeJSON(w, http.StatusOK, resp)
}

// Release 管理员确认节点已下线，立即释放其持有的队列项
// POST /api/v1/nodes/{id}/release
func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	nodeID := r.PathValue("id")
	if nodeID == h.selfID {
		writeError(w, http.StatusConflict, "cannot release the serving node")
		return
	}

	n, err := h.releaser.ReleaseNode(r.Context(), nodeID)
	if err != nil {
		if errors.Is(err, syncqueue.ErrInvalidArgument) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("[node.release] ERROR: node=%s: %v", nodeID, err)
		writeError(w, http.StatusInternalServerError, "failed to release node")
		return
	}

	log.Printf("[node.release] node=%s released=%d", nodeID, n)
	writeJSON(w, http.StatusOK, ReleaseResponse{NodeID: nodeID, Released: n})
}

func toResponse(n *model.Node, selfID string) Response {
	resp := Response{ID: n.ID, Hostname: n.Hostname, Self: n.ID == selfID}
	if !n.StartedAt.IsZero() {
		t := n.StartedAt
		resp.StartedAt = &t
	}
	if !n.LastHeartbeat.IsZero() {
		t := n.LastHeartbeat
		resp.LastHeartbeat = &t
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
