// Package clock 时间源抽象，便于在测试中控制租约过期
package clock

import (
	"sync"
	"time"
)

// Clock 时间源接口
type Clock interface {
	Now() time.Time
}

// Real 使用系统时间
type Real struct{}

func (Real) Now() time.Time {
	return time.Now()
}

// Fake 可手动推进的时间源（测试用）
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake 创建从 start 开始的时间源
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance 推进时间
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Set 设置当前时间
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}
