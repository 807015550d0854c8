// Package syncqueue 同步队列 Dispatcher
//
// 每个节点一个 Dispatcher：发现可认领的队列，认领队首项，
// 在续租保护下执行处理器，最后提交结果推进队列。
//
// 主路径：事件总线唤醒（入队、释放、完成时立即轮询）
// 保底路径：PollInterval 定时轮询（事件丢失或总线不可用）
package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"mgmt-syncq/internal/clock"
	"mgmt-syncq/internal/shared/eventbus"
	"mgmt-syncq/internal/shared/model"
	"mgmt-syncq/pkg/logging"
)

// Dispatcher 队列消费循环
type Dispatcher struct {
	cfg      *Config
	ledger   *Ledger
	claims   *ClaimManager
	handlers *HandlerRegistry
	strategy Strategy

	clock   clock.Clock
	log     *logging.Logger
	metrics *Metrics
	bus     eventbus.QueueEventBus

	mu      sync.Mutex    // 保护 running 状态
	running bool          // 运行状态
	stopCh  chan struct{} // 停止信号通道

	wake  chan struct{}  // 立即轮询信号（容量 1，合并重复唤醒）
	slots chan struct{}  // 执行槽位，容量为 Workers
	jobs  sync.WaitGroup // 执行中的作业

	// 本节点正在执行的队列：旧执行结束前不再认领同一队列
	// （持有者只按节点 ID 区分，项被释放后本节点重新认领会与旧执行共用所有权）
	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

// NewDispatcher 创建 Dispatcher
func NewDispatcher(ledger *Ledger, claims *ClaimManager, handlers *HandlerRegistry, cfg *Config, opts Options) (*Dispatcher, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.Validate()
	if cfg.NodeID == "" {
		return nil, fmt.Errorf("%w: node id is required", ErrInvalidArgument)
	}
	strategy, err := NewStrategy(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	if handlers == nil {
		handlers = NewHandlerRegistry()
	}
	opts = opts.withDefaults("dispatcher")

	return &Dispatcher{
		cfg:      cfg,
		ledger:   ledger,
		claims:   claims,
		handlers: handlers,
		strategy: strategy,
		clock:    opts.Clock,
		log:      opts.Logger.WithNodeID(cfg.NodeID),
		metrics:  opts.Metrics,
		bus:      opts.EventBus,
		stopCh:   make(chan struct{}),
		wake:     make(chan struct{}, 1),
		slots:    make(chan struct{}, cfg.Workers),
		inflight: make(map[string]struct{}),
	}, nil
}

// Start 运行消费循环，阻塞直到 ctx 取消或 Stop，返回前等待执行中的作业结束
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.mu.Unlock()

	d.log.Info("dispatcher started",
		"workers", d.cfg.Workers, "strategy", d.strategy.Name(),
		"lease", d.cfg.LeaseDuration.String(), "poll_interval", d.cfg.PollInterval.String())

	subCtx, cancelSub := context.WithCancel(ctx)
	var listener sync.WaitGroup
	if events, err := d.bus.Subscribe(subCtx); err != nil {
		d.log.WithError(err).Warn("event subscription failed, polling only")
	} else {
		listener.Add(1)
		go func() {
			defer listener.Done()
			for range events {
				d.Wake()
			}
		}()
	}

	d.loop(ctx)

	cancelSub()
	listener.Wait()
	d.jobs.Wait()
	d.log.Info("dispatcher stopped")
}

// Stop 停止消费循环；执行中的作业继续运行到结束
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		close(d.stopCh)
		d.running = false
	}
}

// Wake 请求立即轮询
func (d *Dispatcher) Wake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) loop(ctx context.Context) {
	b := newStoreBackoff(d.cfg.PollInterval, d.cfg.MaxBackoff)
	for {
		wait := d.cfg.PollInterval
		wake := d.wake
		if err := d.PollOnce(ctx); err != nil {
			wait = b.NextBackOff()
			// 存储不可用时不响应唤醒，避免放大故障
			wake = nil
			d.log.WithError(err).Warn("poll failed, backing off", "retry_in", wait.String())
		} else {
			b.Reset()
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-d.stopCh:
			timer.Stop()
			return
		case <-wake:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// PollOnce 执行一轮发现与认领，认领成功的项在后台执行
func (d *Dispatcher) PollOnce(ctx context.Context) error {
	if len(d.slots) == cap(d.slots) {
		return nil
	}

	queues, err := d.ledger.ClaimableQueues(ctx, d.cfg.BatchSize)
	d.metrics.storeResult("dispatcher", err)
	if err != nil {
		return fmt.Errorf("list claimable queues: %w", err)
	}

	for _, q := range d.strategy.Order(queues) {
		select {
		case d.slots <- struct{}{}:
		default:
			return nil
		}

		claimed, err := d.claimHead(ctx, q)
		if err != nil || claimed == nil {
			<-d.slots
			if err != nil {
				return err
			}
			continue
		}

		d.setInflight(claimed.QueueID, true)
		d.jobs.Add(1)
		go d.execute(ctx, claimed)
	}
	return nil
}

// claimHead 认领队列的队首项；竞争失败返回 nil
func (d *Dispatcher) claimHead(ctx context.Context, q *model.ClaimableQueue) (*model.SyncQueueItem, error) {
	if d.isInflight(q.QueueID) {
		return nil, nil
	}
	item, err := d.ledger.NextClaimable(ctx, q.QueueID)
	if err != nil {
		d.metrics.storeResult("dispatcher", err)
		return nil, fmt.Errorf("next claimable %s: %w", q.QueueID, err)
	}
	if item == nil {
		return nil, nil
	}

	claimed, err := d.claims.Claim(ctx, item, d.cfg.NodeID, d.cfg.LeaseDuration)
	if errors.Is(err, ErrAlreadyClaimed) || errors.Is(err, ErrItemNotFound) {
		return nil, nil
	}
	if err != nil {
		d.metrics.storeResult("dispatcher", err)
		return nil, err
	}
	return claimed, nil
}

func (d *Dispatcher) isInflight(queueID string) bool {
	d.inflightMu.Lock()
	defer d.inflightMu.Unlock()
	_, ok := d.inflight[queueID]
	return ok
}

func (d *Dispatcher) setInflight(queueID string, on bool) {
	d.inflightMu.Lock()
	defer d.inflightMu.Unlock()
	if on {
		d.inflight[queueID] = struct{}{}
	} else {
		delete(d.inflight, queueID)
	}
}

// execute 在续租保护下执行作业并提交结果
func (d *Dispatcher) execute(ctx context.Context, item *model.SyncQueueItem) {
	defer func() {
		d.setInflight(item.QueueID, false)
		<-d.slots
		d.jobs.Done()
		d.Wake()
	}()
	d.metrics.jobStarted()
	defer d.metrics.jobFinished()

	log := d.log.WithQueueID(item.QueueID).WithItemID(item.ID)

	jobCtx, cancel := context.WithCancel(logging.ContextWithItem(ctx, item.QueueID, item.ID))
	defer cancel()
	if d.cfg.HandlerTimeout > 0 {
		var cancelTimeout context.CancelFunc
		jobCtx, cancelTimeout = context.WithTimeout(jobCtx, d.cfg.HandlerTimeout)
		defer cancelTimeout()
	}

	var lost atomic.Bool
	renewDone := make(chan struct{})
	var renewer sync.WaitGroup
	renewer.Add(1)
	go func() {
		defer renewer.Done()
		d.renewLoop(jobCtx, item, log, &lost, cancel, renewDone)
	}()

	start := time.Now()
	res, panicked := d.invoke(jobCtx, item, log)
	close(renewDone)
	renewer.Wait()

	if panicked {
		// 不提交结果：租约到期后由 Sweeper 回收
		d.metrics.handled(item.ResourceKind, "panic", time.Since(start))
		d.metrics.completion("panic")
		return
	}
	d.metrics.handled(item.ResourceKind, string(res.Outcome), time.Since(start))

	if lost.Load() {
		log.Warn("ownership lost during execution, result discarded", "outcome", string(res.Outcome))
		return
	}

	if res.Outcome == OutcomeRetriable && res.RetryAfter <= 0 {
		res.RetryAfter = retryDelay(item.Attempts, d.cfg.RetryBaseDelay, d.cfg.RetryMaxDelay)
	}

	// 进程退出时仍尽量提交结果，最多等待一个租约周期
	completeCtx, cancelComplete := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.LeaseDuration)
	defer cancelComplete()
	if err := d.complete(completeCtx, item, res); err != nil {
		if errors.Is(err, ErrLostOwnership) {
			log.Warn("ownership lost before completion", "outcome", string(res.Outcome))
			return
		}
		log.WithError(err).Error("complete failed, item will be recovered after lease expiry")
		return
	}

	evType := eventbus.QueueEventCompleted
	if res.Outcome == OutcomeRetriable {
		evType = eventbus.QueueEventReleased
	}
	publish(completeCtx, d.bus, log, &eventbus.QueueEvent{
		Type:         evType,
		QueueID:      item.QueueID,
		ItemID:       item.ID,
		ResourceKind: item.ResourceKind,
		ResourceID:   item.ResourceID,
		Sequence:     item.Sequence,
		NodeID:       d.cfg.NodeID,
		Timestamp:    d.clock.Now(),
	})
}

// invoke 调用处理器；处理器 panic 时 panicked 为 true
func (d *Dispatcher) invoke(ctx context.Context, item *model.SyncQueueItem, log *logging.Logger) (res Result, panicked bool) {
	h, ok := d.handlers.Resolve(item.ResourceKind)
	if !ok {
		return Fatalf("%v: %q", ErrNoHandler, item.ResourceKind), false
	}

	defer func() {
		if r := recover(); r != nil {
			panicked = true
			log.Error("handler panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()

	res = h.Handle(ctx, item)
	if _, err := res.targetState(); err != nil {
		res = Fatalf("handler returned invalid outcome %q", res.Outcome)
	}
	return res, false
}

// renewLoop 周期续租；发现已失去所有权时取消处理器上下文
func (d *Dispatcher) renewLoop(ctx context.Context, item *model.SyncQueueItem, log *logging.Logger,
	lost *atomic.Bool, cancel context.CancelFunc, done <-chan struct{}) {
	ticker := time.NewTicker(d.cfg.RenewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := d.claims.Renew(ctx, item, d.cfg.NodeID, d.cfg.LeaseDuration)
		switch {
		case err == nil:
			d.metrics.storeResult("renew", nil)
		case errors.Is(err, ErrLostOwnership):
			lost.Store(true)
			log.Warn("lease lost, cancelling handler")
			cancel()
			return
		default:
			d.metrics.storeResult("renew", err)
			log.WithError(err).Warn("renew failed")
		}
	}
}

// complete 提交结果；存储错误按退避重试，最长一个租约周期
func (d *Dispatcher) complete(ctx context.Context, item *model.SyncQueueItem, res Result) error {
	b := newStoreBackoff(d.cfg.PollInterval, d.cfg.MaxBackoff)
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := d.claims.Complete(ctx, item, d.cfg.NodeID, res)
		if err == nil {
			d.metrics.storeResult("dispatcher", nil)
			return struct{}{}, nil
		}
		if errors.Is(err, ErrLostOwnership) || errors.Is(err, ErrInvalidArgument) {
			return struct{}{}, backoff.Permanent(err)
		}
		d.metrics.storeResult("dispatcher", err)
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(d.cfg.LeaseDuration))
	return err
}
