package syncqueue

import (
	"context"
	"sync"
	"time"

	"mgmt-syncq/internal/clock"
	"mgmt-syncq/internal/shared/eventbus"
	"mgmt-syncq/pkg/logging"
)

// Sweeper 租约回收
//
// 每个节点都运行：周期性释放租约已过期的 active 项。只依据时间判断，
// 不需要知道哪些节点存活，是成员后端不可用时的兜底恢复路径。
type Sweeper struct {
	claims  *ClaimManager
	cfg     *Config
	clock   clock.Clock
	log     *logging.Logger
	metrics *Metrics
	bus     eventbus.QueueEventBus

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewSweeper 创建租约回收器
func NewSweeper(claims *ClaimManager, cfg *Config, opts Options) *Sweeper {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.Validate()
	opts = opts.withDefaults("sweeper")
	return &Sweeper{
		claims:  claims,
		cfg:     cfg,
		clock:   opts.Clock,
		log:     opts.Logger,
		metrics: opts.Metrics,
		bus:     opts.EventBus,
		stopCh:  make(chan struct{}),
	}
}

// Start 运行回收循环，阻塞直到 ctx 取消或 Stop
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.log.Info("sweeper started", "interval", s.cfg.SweepInterval.String())
	b := newStoreBackoff(s.cfg.SweepInterval, s.cfg.MaxBackoff)

	for {
		wait := s.cfg.SweepInterval
		if _, err := s.SweepOnce(ctx); err != nil {
			wait = b.NextBackOff()
			s.log.WithError(err).Warn("sweep failed, backing off", "retry_in", wait.String())
		} else {
			b.Reset()
		}
		if !sleepCtx(ctx, s.stopCh, wait) {
			s.log.Info("sweeper stopped")
			return
		}
	}
}

// Stop 停止回收循环
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		close(s.stopCh)
		s.running = false
	}
}

// SweepOnce 执行一次回收，批量释放直到没有过期项；返回释放数量
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	s.metrics.swept()
	total := 0
	for {
		released, err := s.claims.ReleaseExpired(ctx, s.cfg.BatchSize)
		total += len(released)
		for _, item := range released {
			publish(ctx, s.bus, s.log, &eventbus.QueueEvent{
				Type:         eventbus.QueueEventReleased,
				QueueID:      item.QueueID,
				ItemID:       item.ID,
				ResourceKind: item.ResourceKind,
				ResourceID:   item.ResourceID,
				Sequence:     item.Sequence,
				NodeID:       s.cfg.NodeID,
				Timestamp:    s.clock.Now(),
			})
		}
		s.metrics.storeResult("sweeper", err)
		if err != nil {
			return total, err
		}
		if len(released) < s.cfg.BatchSize {
			return total, nil
		}
	}
}

// publish 尽力发布事件；事件只用于唤醒，失败不影响正确性
func publish(ctx context.Context, bus eventbus.QueueEventBus, log *logging.Logger, ev *eventbus.QueueEvent) {
	if bus == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if err := bus.Publish(ctx, ev); err != nil {
		log.WithError(err).Debug("publish queue event failed", "type", string(ev.Type), "queue_id", ev.QueueID)
	}
}
