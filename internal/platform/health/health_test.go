package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/SlpAus/luna-spins-backend/pkg/lifecycle"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type fakePinger struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (p *fakePinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.err
}

func TestAssessTransitions(t *testing.T) {
	s := NewStatus(zerolog.Nop())
	now := time.Now()
	steps := []struct {
		err  error
		want State
	}{
		{nil, StateHealthy},
		{errors.New("connection refused"), StateDegraded},
		{errors.New("still down"), StateDegraded},
		{nil, StateHealthy},
	}
	for i, step := range steps {
		s.Assess(step.err, now)
		if got := s.State(); got != step.want {
			t.Errorf("step %d: state %s, want %s", i, got, step.want)
		}
	}
}

func TestHandlerReportsDegraded(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := NewStatus(zerolog.Nop())
	pinger := &fakePinger{}
	checker := NewChecker(pinger, s)
	r := gin.New()
	r.GET("/api/health", s.Handler)

	checker.PerformCheck(context.Background())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("healthy: %d", w.Code)
	}

	pinger.mu.Lock()
	pinger.err = errors.New("disk unavailable")
	pinger.mu.Unlock()
	checker.PerformCheck(context.Background())
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("degraded: %d", w.Code)
	}
	if s.Report().Error != "disk unavailable" {
		t.Errorf("report %+v", s.Report())
	}
}

func TestRunStopsOnShutdown(t *testing.T) {
	mgr := lifecycle.NewManager("test", zerolog.Nop())
	h, err := mgr.NewServiceHandle("health")
	if err != nil {
		t.Fatal(err)
	}
	pinger := &fakePinger{}
	checker := NewChecker(pinger, NewStatus(zerolog.Nop()))
	checker.interval = 10 * time.Millisecond
	go checker.Run(h)

	time.Sleep(50 * time.Millisecond)
	mgr.Shutdown()
	if remaining := mgr.WaitWithTimeout(time.Second); len(remaining) != 0 {
		t.Fatalf("checker did not stop: %v", remaining)
	}
	pinger.mu.Lock()
	defer pinger.mu.Unlock()
	if pinger.calls < 2 {
		t.Errorf("expected repeated checks, got %d", pinger.calls)
	}
}
