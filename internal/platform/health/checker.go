package health

import (
	"context"
	"time"

	"github.com/SlpAus/luna-spins-backend/pkg/lifecycle"
)

const (
	checkInterval = 5 * time.Second
	pingTimeout   = 2 * time.Second
)

// Pinger 是被检查的存储
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker 定期检查存储是否可用
type Checker struct {
	pinger   Pinger
	status   *Status
	interval time.Duration
	timeout  time.Duration
}

func NewChecker(pinger Pinger, status *Status) *Checker {
	return &Checker{pinger: pinger, status: status, interval: checkInterval, timeout: pingTimeout}
}

// PerformCheck 执行一次检查并更新状态
func (c *Checker) PerformCheck(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	c.status.Assess(c.pinger.Ping(ctx), time.Now().UTC())
}

// Run 阻塞式地循环检查，直到生命周期句柄被取消
func (c *Checker) Run(h *lifecycle.Handle) {
	defer h.Close()
	c.PerformCheck(h.Ctx())
	for {
		if err := h.Sleep(c.interval); err != nil {
			return
		}
		c.PerformCheck(h.Ctx())
	}
}
