// Package job 作业领域 - HTTP 处理
//
// 管理接口的薄命令层：入队作业、轮询队列项状态、取消未认领的项、查看资源队列。
// 执行本身由各节点的 Dispatcher 异步完成，接口不等待作业结束。
package job

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"mgmt-syncq/internal/shared/archive"
	"mgmt-syncq/internal/shared/model"
	"mgmt-syncq/internal/syncqueue"
)

// 默认与最大返回条数
const (
	defaultItemLimit = 50
	maxItemLimit     = 500
)

// JobService 作业处理器依赖的队列服务
type JobService interface {
	EnqueueJob(ctx context.Context, kind string, id int64, payloadRef string) (*model.SyncQueueItem, error)
	GetItem(ctx context.Context, itemID string) (*model.SyncQueueItem, error)
	CancelItem(ctx context.Context, itemID, reason string) (*model.SyncQueueItem, error)
	GetQueue(ctx context.Context, key model.ResourceKey, limit int) (*model.SyncQueue, []*model.SyncQueueItem, error)
}

// Handler 作业领域 HTTP 处理器
type Handler struct {
	service JobService
	archive archive.Reader
}

// NewHandler 创建作业处理器；archived 为 nil 时不查询归档
func NewHandler(service JobService, archived archive.Reader) *Handler {
	return &Handler{service: service, archive: archived}
}

// RegisterRoutes 注册作业相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/jobs", h.Enqueue)
	mux.HandleFunc("GET /api/v1/items/{id}", h.GetItem)
	mux.HandleFunc("POST /api/v1/items/{id}/cancel", h.Cancel)
	mux.HandleFunc("GET /api/v1/queues/{kind}/{id}", h.GetQueue)
}

// ============================================================================
// 请求 / 响应
// ============================================================================

// EnqueueRequest 入队请求体
type EnqueueRequest struct {
	ResourceKind string `json:"resource_kind"`
	ResourceID   int64  `json:"resource_id"`
	PayloadRef   string `json:"payload_ref"`
}

// EnqueueResponse 入队响应（202 Accepted）
type EnqueueResponse struct {
	ItemID   string          `json:"item_id"`
	QueueID  string          `json:"queue_id"`
	Sequence int64           `json:"sequence"`
	State    model.ItemState `json:"state"`
}

// CancelRequest 取消请求体（可选）
type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// QueueResponse 队列详情
type QueueResponse struct {
	Queue *model.SyncQueue        `json:"queue"`
	Items []*model.SyncQueueItem  `json:"items"`
	Stats map[model.ItemState]int `json:"stats"`
}

// ============================================================================
// HTTP 处理函数
// ============================================================================

// Enqueue 针对资源入队一个作业
// POST /api/v1/jobs
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ResourceKind == "" {
		writeError(w, http.StatusBadRequest, "resource_kind is required")
		return
	}
	if req.PayloadRef == "" {
		writeError(w, http.StatusBadRequest, "payload_ref is required")
		return
	}

	item, err := h.service.EnqueueJob(r.Context(), req.ResourceKind, req.ResourceID, req.PayloadRef)
	if err != nil {
		writeServiceError(w, "job.enqueue", err)
		return
	}

	w.Header().Set("Location", "/api/v1/items/"+item.ID)
	writeJSON(w, http.StatusAccepted, EnqueueResponse{
		ItemID:   item.ID,
		QueueID:  item.QueueID,
		Sequence: item.Sequence,
		State:    item.State,
	})
}

// GetItem 查询队列项状态
// GET /api/v1/items/{id}
//
// 已被 Reaper 清理的项从归档读取，响应带 X-Archived: true
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	item, err := h.service.GetItem(r.Context(), id)
	if errors.Is(err, syncqueue.ErrItemNotFound) && h.archive != nil {
		archived, aerr := h.archive.GetArchived(r.Context(), id)
		if aerr != nil {
			log.Printf("[job.get_item] archive lookup failed: %v", aerr)
		} else if archived != nil {
			w.Header().Set("X-Archived", "true")
			writeJSON(w, http.StatusOK, archived)
			return
		}
	}
	if err != nil {
		writeServiceError(w, "job.get_item", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// Cancel 取消尚未被认领的项
// POST /api/v1/items/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	item, err := h.service.CancelItem(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		writeServiceError(w, "job.cancel", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// GetQueue 查看资源队列及其最近的项
// GET /api/v1/queues/{kind}/{id}?limit=50
func (h *Handler) GetQueue(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "resource id must be an integer")
		return
	}

	limit := defaultItemLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > maxItemLimit {
		limit = maxItemLimit
	}

	q, items, err := h.service.GetQueue(r.Context(), model.NewResourceKey(r.PathValue("kind"), id), limit)
	if err != nil {
		writeServiceError(w, "job.get_queue", err)
		return
	}
	if items == nil {
		items = []*model.SyncQueueItem{}
	}

	stats := make(map[model.ItemState]int)
	for _, it := range items {
		stats[it.State]++
	}
	writeJSON(w, http.StatusOK, QueueResponse{Queue: q, Items: items, Stats: stats})
}

// ============================================================================
// 工具函数
// ============================================================================

// writeServiceError 将队列错误映射为 HTTP 状态码
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, syncqueue.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, syncqueue.ErrItemNotFound), errors.Is(err, syncqueue.ErrQueueNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, syncqueue.ErrNotCancellable):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "request timed out")
	default:
		log.Printf("[%s] ERROR: %v", op, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
