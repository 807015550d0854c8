package syncqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mgmt-syncq/internal/clock"
	"mgmt-syncq/internal/shared/archive"
	"mgmt-syncq/internal/shared/storage"
	"mgmt-syncq/pkg/logging"
)

// ReaperConfig 清理参数
type ReaperConfig struct {
	Interval  time.Duration // 清理周期
	Retention time.Duration // 终态项保留时长
	BatchSize int           // 单批归档/删除数量
}

// Validate 填充缺省值
func (c *ReaperConfig) Validate() {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.Retention <= 0 {
		c.Retention = 7 * 24 * time.Hour
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
}

// Reaper 归档并删除过期的终态项
//
// 不在互斥关键路径上：只处理 done/failed 项，多个节点同时运行时
// 同一批项可能被重复归档，归档后端须按 item ID 幂等。
type Reaper struct {
	store    storage.ReapStore
	archiver archive.Archiver
	cfg      ReaperConfig
	clock    clock.Clock
	log      *logging.Logger
	metrics  *Metrics

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewReaper 创建清理器；archiver 为 nil 时不归档
func NewReaper(store storage.ReapStore, archiver archive.Archiver, cfg ReaperConfig, opts Options) *Reaper {
	cfg.Validate()
	if archiver == nil {
		archiver = archive.NoOp{}
	}
	opts = opts.withDefaults("reaper")
	return &Reaper{
		store:    store,
		archiver: archiver,
		cfg:      cfg,
		clock:    opts.Clock,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		stopCh:   make(chan struct{}),
	}
}

// Start 运行清理循环，阻塞直到 ctx 取消或 Stop
func (r *Reaper) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	r.log.Info("reaper started", "interval", r.cfg.Interval.String(),
		"retention", r.cfg.Retention.String(), "archive", r.archiver.Name())
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.log.WithError(err).Warn("reap failed")
			}
		}
	}
}

// Stop 停止清理
func (r *Reaper) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		close(r.stopCh)
		r.running = false
	}
}

// RunOnce 清理所有早于保留期的终态项，返回删除数量
//
// 归档失败时该批不删除，下一轮重试。
func (r *Reaper) RunOnce(ctx context.Context) (int, error) {
	cutoff := r.clock.Now().Add(-r.cfg.Retention)
	total := 0
	for {
		items, err := r.store.ListFinishedBefore(ctx, cutoff, r.cfg.BatchSize)
		if err != nil {
			return total, fmt.Errorf("list finished: %w", err)
		}
		if len(items) == 0 {
			return total, nil
		}

		if err := r.archiver.Archive(ctx, items); err != nil {
			return total, fmt.Errorf("archive to %s: %w", r.archiver.Name(), err)
		}

		ids := make([]string, len(items))
		for i, item := range items {
			ids[i] = item.ID
		}
		n, err := r.store.DeleteItems(ctx, ids)
		if err != nil {
			return total, fmt.Errorf("delete items: %w", err)
		}
		total += int(n)
		r.metrics.reaped(int(n))
		r.log.Info("reaped finished items", "archived", len(items), "deleted", n, "archive", r.archiver.Name())

		if len(items) < r.cfg.BatchSize || n == 0 {
			return total, nil
		}
	}
}
