package lifecycle

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestManagerWaitsForServices(t *testing.T) {
	m := NewManager("test", zerolog.Nop())
	h, err := m.NewServiceHandle("worker")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.NewServiceHandle("worker"); err == nil {
		t.Error("duplicate registration should fail")
	}

	go func() {
		defer h.Close()
		<-h.Done()
	}()

	m.Shutdown()
	if remaining := m.WaitWithTimeout(time.Second); len(remaining) != 0 {
		t.Errorf("expected all services to stop, remaining: %v", remaining)
	}
}

func TestManagerReportsStragglers(t *testing.T) {
	m := NewManager("test", zerolog.Nop())
	if _, err := m.NewServiceHandle("stuck"); err != nil {
		t.Fatal(err)
	}
	m.Shutdown()
	remaining := m.WaitWithTimeout(20 * time.Millisecond)
	if len(remaining) != 1 || remaining[0] != "stuck" {
		t.Errorf("expected [stuck], got %v", remaining)
	}
}

func TestHandleSleepInterrupted(t *testing.T) {
	m := NewManager("test", zerolog.Nop())
	h, _ := m.NewServiceHandle("sleeper")
	defer h.Close()

	m.Shutdown()
	if err := h.Sleep(time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	h.Close() // 第二次调用不应panic
}

func TestEveryStopsFromInsideCallback(t *testing.T) {
	var calls atomic.Int32
	var task *Task
	started := make(chan struct{})
	task = Every(context.Background(), time.Millisecond, func() {
		<-started
		if calls.Add(1) == 3 {
			task.Stop()
		}
	})
	close(started)

	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("task did not stop")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 calls, got %d", got)
	}
}

func TestEveryStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	task := Every(ctx, time.Hour, func() { t.Error("should never tick") })
	cancel()
	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task ignored context cancellation")
	}
}
