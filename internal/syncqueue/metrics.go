// Package syncqueue Prometheus 指标
package syncqueue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 同步队列指标
//
// 所有方法对 nil 接收者安全，未注入指标时组件照常工作。
type Metrics struct {
	// 入队
	ItemsEnqueuedTotal *prometheus.CounterVec

	// 认领与租约
	ClaimsTotal         *prometheus.CounterVec
	RenewalsTotal       *prometheus.CounterVec
	CompletionsTotal    *prometheus.CounterVec
	LeasesReleasedTotal *prometheus.CounterVec

	// 执行
	HandlerDuration *prometheus.HistogramVec
	ActiveJobs      prometheus.Gauge

	// 后台循环
	SweepsTotal      prometheus.Counter
	ItemsReapedTotal prometheus.Counter

	// 存储健康
	StoreErrorsTotal *prometheus.CounterVec
	StoreHealthy     prometheus.Gauge
}

// NewMetrics 创建指标实例并注册到 reg（nil 时使用默认注册表）
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	m := &Metrics{
		ItemsEnqueuedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "syncqueue",
				Name:      "items_enqueued_total",
				Help:      "Total queue items enqueued by resource kind",
			},
			[]string{"resource_kind"},
		),
		ClaimsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "syncqueue",
				Name:      "claims_total",
				Help:      "Claim attempts by result (claimed, contended, error)",
			},
			[]string{"result"},
		),
		RenewalsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "syncqueue",
				Name:      "renewals_total",
				Help:      "Lease renewals by result (renewed, lost, error)",
			},
			[]string{"result"},
		),
		CompletionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "syncqueue",
				Name:      "completions_total",
				Help:      "Job completions by outcome (done, retriable, fatal, lost, panic)",
			},
			[]string{"outcome"},
		),
		LeasesReleasedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "syncqueue",
				Name:      "leases_released_total",
				Help:      "Leases released by reason (expired, node, manual)",
			},
			[]string{"reason"},
		),
		HandlerDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "syncqueue",
				Name:      "handler_duration_seconds",
				Help:      "Job handler duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"resource_kind", "outcome"},
		),
		ActiveJobs: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "syncqueue",
				Name:      "active_jobs",
				Help:      "Jobs currently executing on this node",
			},
		),
		SweepsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "syncqueue",
				Name:      "sweeps_total",
				Help:      "Total lease recovery sweeps",
			},
		),
		ItemsReapedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "syncqueue",
				Name:      "items_reaped_total",
				Help:      "Total finished items archived and deleted",
			},
		),
		StoreErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "syncqueue",
				Name:      "store_errors_total",
				Help:      "Shared store errors by component",
			},
			[]string{"component"},
		),
		StoreHealthy: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "syncqueue",
				Name:      "store_healthy",
				Help:      "1 when the last store operation succeeded, 0 while backing off",
			},
		),
	}
	m.StoreHealthy.Set(1)
	return m
}

func (m *Metrics) enqueued(kind string) {
	if m == nil {
		return
	}
	m.ItemsEnqueuedTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) claim(result string) {
	if m == nil {
		return
	}
	m.ClaimsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) renewal(result string) {
	if m == nil {
		return
	}
	m.RenewalsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) completion(outcome string) {
	if m == nil {
		return
	}
	m.CompletionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) released(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.LeasesReleasedTotal.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) handled(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.HandlerDuration.WithLabelValues(kind, outcome).Observe(d.Seconds())
}

func (m *Metrics) jobStarted() {
	if m == nil {
		return
	}
	m.ActiveJobs.Inc()
}

func (m *Metrics) jobFinished() {
	if m == nil {
		return
	}
	m.ActiveJobs.Dec()
}

func (m *Metrics) swept() {
	if m == nil {
		return
	}
	m.SweepsTotal.Inc()
}

func (m *Metrics) reaped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ItemsReapedTotal.Add(float64(n))
}

// storeResult 记录存储操作结果，驱动健康指标
func (m *Metrics) storeResult(component string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.StoreErrorsTotal.WithLabelValues(component).Inc()
		m.StoreHealthy.Set(0)
		return
	}
	m.StoreHealthy.Set(1)
}
