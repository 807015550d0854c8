package syncqueue

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// newStoreBackoff 存储不可用时的指数退避：从 initial 开始，不超过 max
func newStoreBackoff(initial, max time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	b.Reset()
	return b
}

// retryDelay 第 attempts 次认领后 Retriable 的等待时长
func retryDelay(attempts int, base, limit time.Duration) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := base
	for i := 1; i < attempts; i++ {
		if d >= limit/2 {
			return limit
		}
		d *= 2
	}
	return min(d, limit)
}

// sleepCtx 等待 d；ctx 取消或 stop 关闭时提前返回 false
func sleepCtx(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}
