package clock

import (
	"sync"
	"time"
)

// Clock 抽象了“现在”，配额窗口等时间相关逻辑都通过它取时间
type Clock interface {
	Now() time.Time
}

// System 使用真实的系统时间
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

// Manual 是一个可以手动拨动的时钟，用于模拟“7天后”之类的场景
type Manual struct {
	mu  sync.RWMutex
	now time.Time
}

// NewManual 创建一个停在指定时刻的时钟
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

// Advance 将时钟向前拨动
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set 将时钟设置到指定时刻
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}
