// Package syncqueue 同步队列配置
package syncqueue

import "time"

// Config 同步队列运行参数
type Config struct {
	// NodeID 本节点 ID（认领时写入 owner_node_id）
	NodeID string

	// LeaseDuration 单次认领/续租的租约时长
	LeaseDuration time.Duration

	// RenewInterval 处理器运行期间的续租周期，须小于 LeaseDuration
	RenewInterval time.Duration

	// PollInterval Dispatcher 保底轮询周期
	PollInterval time.Duration

	// SweepInterval Sweeper 扫描周期，应远小于 LeaseDuration
	SweepInterval time.Duration

	// BatchSize 单次轮询的队列数 / 单次扫描释放的项数上限
	BatchSize int

	// Workers 本节点并发执行的作业数
	Workers int

	// Strategy 队列选择策略：round_robin | oldest_first
	Strategy string

	// MaxBackoff 存储不可用时的最大退避
	MaxBackoff time.Duration

	// HandlerTimeout 单个作业的执行超时，0 表示不限制
	HandlerTimeout time.Duration

	// RetryBaseDelay / RetryMaxDelay Retriable 结果的重试等待：
	// 第 n 次认领失败后等待 RetryBaseDelay * 2^(n-1)，不超过 RetryMaxDelay
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		LeaseDuration:  30 * time.Second,
		RenewInterval:  10 * time.Second,
		PollInterval:   time.Second,
		SweepInterval:  2 * time.Second,
		BatchSize:      100,
		Workers:        4,
		Strategy:       StrategyRoundRobin,
		MaxBackoff:     30 * time.Second,
		RetryBaseDelay: time.Second,
		RetryMaxDelay:  5 * time.Minute,
	}
}

// Validate 填充缺省值
func (c *Config) Validate() {
	d := DefaultConfig()
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = d.LeaseDuration
	}
	if c.RenewInterval <= 0 || c.RenewInterval >= c.LeaseDuration {
		c.RenewInterval = c.LeaseDuration / 3
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.Strategy == "" {
		c.Strategy = d.Strategy
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = d.RetryBaseDelay
	}
	if c.RetryMaxDelay < c.RetryBaseDelay {
		c.RetryMaxDelay = max(d.RetryMaxDelay, c.RetryBaseDelay)
	}
}
