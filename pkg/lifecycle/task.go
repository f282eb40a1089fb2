package lifecycle

import (
	"context"
	"time"
)

// Task 是一个可取消的周期任务。
// 它取代自由运行的定时器：拆除是显式的，且不会泄漏goroutine。
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Every 每隔 interval 调用一次 fn，直到 ctx 被取消或 Stop 被调用。
// 第一次调用发生在一个完整的 interval 之后。
func Every(ctx context.Context, interval time.Duration, fn func()) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// 取消与tick同时就绪时，优先遵守取消
				if ctx.Err() != nil {
					return
				}
				fn()
			}
		}
	}()
	return t
}

// Stop 取消任务，不等待。可以在 fn 内部调用。
func (t *Task) Stop() { t.cancel() }

// Done 在任务的goroutine退出后关闭
func (t *Task) Done() <-chan struct{} { return t.done }
