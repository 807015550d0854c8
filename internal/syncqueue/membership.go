package syncqueue

import (
	"context"
	"sync"
	"time"

	"mgmt-syncq/internal/clock"
	"mgmt-syncq/internal/shared/eventbus"
	"mgmt-syncq/internal/shared/membership"
	"mgmt-syncq/internal/shared/model"
	"mgmt-syncq/pkg/logging"
)

// Heartbeater 周期刷新本节点的成员记录
type Heartbeater struct {
	members  membership.Membership
	node     *model.Node
	interval time.Duration
	clock    clock.Clock
	log      *logging.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewHeartbeater 创建心跳器
func NewHeartbeater(members membership.Membership, node *model.Node, interval time.Duration, opts Options) *Heartbeater {
	if interval <= 0 {
		interval = membership.DefaultTTL / 3
	}
	opts = opts.withDefaults("heartbeat")
	return &Heartbeater{
		members:  members,
		node:     node,
		interval: interval,
		clock:    opts.Clock,
		log:      opts.Logger,
		stopCh:   make(chan struct{}),
	}
}

// Start 立即注册并周期心跳，阻塞直到 ctx 取消或 Stop；退出时主动注销
func (h *Heartbeater) Start(ctx context.Context) {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		h.Beat(ctx)
		select {
		case <-ctx.Done():
			h.leave()
			return
		case <-h.stopCh:
			h.leave()
			return
		case <-ticker.C:
		}
	}
}

// Beat 发送一次心跳
func (h *Heartbeater) Beat(ctx context.Context) error {
	start := time.Now()
	h.node.LastHeartbeat = h.clock.Now()
	err := h.members.Heartbeat(ctx, h.node)
	h.log.HeartbeatLog(h.node.ID, "alive", time.Since(start), err)
	return err
}

func (h *Heartbeater) leave() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.members.Leave(ctx, h.node.ID); err != nil {
		h.log.WithError(err).Warn("leave membership failed", "node_id", h.node.ID)
		return
	}
	h.log.Info("left membership", "node_id", h.node.ID)
}

// Stop 停止心跳
func (h *Heartbeater) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		close(h.stopCh)
		h.running = false
	}
}

// NodeWatcher 成员驱动的快速恢复
//
// 周期列出持有 active 项的节点，对不在成员列表中的节点，
// 持续缺席超过 grace 后调用 ReleaseAllForNode，无需等待租约到期。
// 成员后端出错时不做任何释放，由 Sweeper 兜底。
type NodeWatcher struct {
	members  membership.Membership
	claims   *ClaimManager
	selfID   string
	interval time.Duration
	grace    time.Duration
	clock    clock.Clock
	log      *logging.Logger
	bus      eventbus.QueueEventBus

	missing map[string]time.Time // 节点首次被发现缺席的时间

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewNodeWatcher 创建节点观察器；grace 通常等于成员 TTL
func NewNodeWatcher(members membership.Membership, claims *ClaimManager, selfID string, interval, grace time.Duration, opts Options) *NodeWatcher {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if grace < 0 {
		grace = 0
	}
	opts = opts.withDefaults("node_watcher")
	return &NodeWatcher{
		members:  members,
		claims:   claims,
		selfID:   selfID,
		interval: interval,
		grace:    grace,
		clock:    opts.Clock,
		log:      opts.Logger,
		bus:      opts.EventBus,
		missing:  make(map[string]time.Time),
		stopCh:   make(chan struct{}),
	}
}

// Start 运行观察循环，阻塞直到 ctx 取消或 Stop
func (w *NodeWatcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("node watcher started", "interval", w.interval.String(), "grace", w.grace.String())
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if _, err := w.CheckOnce(ctx); err != nil {
				w.log.WithError(err).Warn("node check failed")
			}
		}
	}
}

// Stop 停止观察
func (w *NodeWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		close(w.stopCh)
		w.running = false
	}
}

// CheckOnce 执行一次检查，返回被释放的项数
//
// 只由观察循环调用，missing 不需要加锁。
func (w *NodeWatcher) CheckOnce(ctx context.Context) (int64, error) {
	alive, err := w.members.ListAlive(ctx)
	if err != nil {
		return 0, err
	}
	owners, err := w.claims.ActiveOwners(ctx)
	if err != nil {
		return 0, err
	}

	aliveSet := membership.AliveSet(alive)
	now := w.clock.Now()
	current := make(map[string]struct{}, len(owners))
	var total int64

	for _, owner := range owners {
		current[owner] = struct{}{}
		if owner == w.selfID {
			continue
		}
		if _, ok := aliveSet[owner]; ok {
			delete(w.missing, owner)
			continue
		}

		since, seen := w.missing[owner]
		if !seen {
			w.missing[owner] = now
			since = now
			w.log.Info("owner missing from membership", "owner", owner)
		}
		if now.Sub(since) < w.grace {
			continue
		}

		n, err := w.claims.ReleaseAllForNode(ctx, owner)
		if err != nil {
			return total, err
		}
		delete(w.missing, owner)
		total += n
		w.log.Warn("released items of dead node", "owner", owner, "count", n)
	}

	// 不再持有 active 项的节点无需继续跟踪
	for owner := range w.missing {
		if _, ok := current[owner]; !ok {
			delete(w.missing, owner)
		}
	}

	if total > 0 {
		publish(ctx, w.bus, w.log, &eventbus.QueueEvent{
			Type:      eventbus.QueueEventReleased,
			NodeID:    w.selfID,
			Timestamp: now,
		})
	}
	return total, nil
}
