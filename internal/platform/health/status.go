package health

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// State 定义了存储健康状态的枚举类型
type State int

const (
	StateHealthy State = iota
	StateDegraded
)

func (s State) String() string {
	if s == StateHealthy {
		return "healthy"
	}
	return "degraded"
}

// Report 是对外暴露的健康状态
type Report struct {
	Status    string    `json:"status"`
	CheckedAt time.Time `json:"checkedAt"`
	Error     string    `json:"error,omitempty"`
}

// Status 线程安全地记录存储的健康状态，只在状态变化时输出日志
type Status struct {
	mu        sync.RWMutex
	state     State
	lastErr   error
	checkedAt time.Time
	log       zerolog.Logger
}

func NewStatus(log zerolog.Logger) *Status {
	return &Status{state: StateHealthy, log: log.With().Str("module", "health").Logger()}
}

// State 返回当前的健康状态
func (s *Status) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Assess 记录一次检查结果，并决定下一个状态
func (s *Status) Assess(err error, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkedAt = at
	s.lastErr = err
	switch s.state {
	case StateHealthy:
		if err != nil {
			s.state = StateDegraded
			s.log.Warn().Err(err).Msg("健康检查: 存储连接丢失，系统状态 -> [降级]")
		}
	case StateDegraded:
		if err == nil {
			s.state = StateHealthy
			s.log.Info().Msg("健康检查: 存储连接已恢复，系统状态 -> [健康]")
		}
	}
}

// Report 返回当前状态的快照
func (s *Status) Report() Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r := Report{Status: s.state.String(), CheckedAt: s.checkedAt}
	if s.lastErr != nil {
		r.Error = s.lastErr.Error()
	}
	return r
}

// Handler 输出健康状态，降级时返回503
func (s *Status) Handler(c *gin.Context) {
	r := s.Report()
	code := http.StatusOK
	if r.Status != StateHealthy.String() {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, r)
}
