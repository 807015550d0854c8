package jobhandler

import (
	"context"

	"mgmt-syncq/internal/shared/model"
	"mgmt-syncq/internal/syncqueue"
	"mgmt-syncq/pkg/logging"
)

// Log 只记录作业并返回 Done（开发环境未配置处理器的资源类型）
type Log struct {
	log *logging.Logger
}

// NewLog 创建日志处理器
func NewLog(log *logging.Logger) *Log {
	if log == nil {
		log = logging.Default("jobhandler")
	}
	return &Log{log: log}
}

// Handle 实现 syncqueue.Handler
func (h *Log) Handle(ctx context.Context, item *model.SyncQueueItem) syncqueue.Result {
	h.log.WithContext(ctx).Info("job executed",
		"resource", item.Key().String(),
		logging.Seq(item.Sequence),
		"payload_ref", item.PayloadRef,
		"attempt", item.Attempts)
	return syncqueue.Done()
}
