package syncqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_ValidateFillsDefaults(t *testing.T) {
	c := &Config{}
	c.Validate()

	d := DefaultConfig()
	assert.Equal(t, d.LeaseDuration, c.LeaseDuration)
	assert.Equal(t, d.LeaseDuration/3, c.RenewInterval)
	assert.Equal(t, d.PollInterval, c.PollInterval)
	assert.Equal(t, d.SweepInterval, c.SweepInterval)
	assert.Equal(t, d.BatchSize, c.BatchSize)
	assert.Equal(t, d.Workers, c.Workers)
	assert.Equal(t, StrategyRoundRobin, c.Strategy)
	assert.Equal(t, d.MaxBackoff, c.MaxBackoff)
	assert.Equal(t, d.RetryBaseDelay, c.RetryBaseDelay)
	assert.Equal(t, d.RetryMaxDelay, c.RetryMaxDelay)
}

// 上限小于基数时按基数兜底
func TestConfig_RetryMaxDelayNotBelowBase(t *testing.T) {
	c := &Config{RetryBaseDelay: 10 * time.Minute, RetryMaxDelay: time.Second}
	c.Validate()
	assert.Equal(t, 10*time.Minute, c.RetryMaxDelay)

	c = &Config{RetryBaseDelay: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	c.Validate()
	assert.Equal(t, time.Second, c.RetryMaxDelay)
}

// 续租周期不小于租约时无效
func TestConfig_RenewIntervalBoundedByLease(t *testing.T) {
	c := &Config{LeaseDuration: 9 * time.Second, RenewInterval: 9 * time.Second}
	c.Validate()
	assert.Equal(t, 3*time.Second, c.RenewInterval)

	c = &Config{LeaseDuration: 9 * time.Second, RenewInterval: 2 * time.Second}
	c.Validate()
	assert.Equal(t, 2*time.Second, c.RenewInterval)
}

func TestResult_TargetState(t *testing.T) {
	tests := []struct {
		res     Result
		want    string
		wantErr bool
	}{
		{Done(), "done", false},
		{Retriable("busy"), "queued", false},
		{Fatal("bad"), "failed", false},
		{Result{}, "", true},
	}
	for _, tt := range tests {
		got, err := tt.res.targetState()
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidArgument)
			continue
		}
		assert.NoError(t, err)
		assert.Equal(t, tt.want, string(got))
	}
}

func TestHandlerRegistry(t *testing.T) {
	r := NewHandlerRegistry()
	_, ok := r.Resolve("network")
	assert.False(t, ok)

	r.Register("network", HandlerFunc(nil))
	_, ok = r.Resolve("network")
	assert.True(t, ok)
	_, ok = r.Resolve("host")
	assert.False(t, ok)

	r.SetDefault(HandlerFunc(nil))
	_, ok = r.Resolve("host")
	assert.True(t, ok)
	assert.ElementsMatch(t, []string{"network"}, r.Kinds())
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{4, 8 * time.Second},
		{6, 30 * time.Second},
		{100, 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, retryDelay(tt.attempts, time.Second, 30*time.Second), "attempts=%d", tt.attempts)
	}
}
