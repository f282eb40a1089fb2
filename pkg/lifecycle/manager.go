package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Manager 是一个生命周期协调器。
// 它由上层模块（如shutdown）创建和持有，并向各个后台服务分发句柄(Handle)。
type Manager struct {
	name     string
	log      zerolog.Logger
	wg       sync.WaitGroup
	mu       sync.Mutex
	services map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager 创建一个新的生命周期管理器
func NewManager(name string, log zerolog.Logger) *Manager {
	m := &Manager{
		name:     name,
		log:      log.With().Str("lifecycle", name).Logger(),
		services: make(map[string]bool),
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// NewServiceHandle 为一个服务创建一个新的生命周期句柄(Handle)。
// 管理器会自动为这个服务注册并增加WaitGroup计数。
func (m *Manager) NewServiceHandle(name string) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.services[name] {
		return nil, fmt.Errorf("生命周期管理器 %s: 服务 '%s' 已被注册", m.name, name)
	}
	m.services[name] = true
	m.wg.Add(1)
	m.log.Debug().Str("service", name).Msg("服务已注册")

	return &Handle{
		name: name,
		ctx:  m.ctx,
		release: func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if !m.services[name] {
				return
			}
			delete(m.services, name)
			m.wg.Done()
		},
	}, nil
}

// Shutdown 广播停机信号
func (m *Manager) Shutdown() {
	m.log.Info().Msg("广播停机信号")
	m.cancel()
}

// WaitWithTimeout 等待所有已注册的服务完成，超时后返回仍未退出的服务名
func (m *Manager) WaitWithTimeout(timeout time.Duration) []string {
	doneChan := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(doneChan)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-doneChan:
		return nil
	case <-timer.C:
		m.mu.Lock()
		defer m.mu.Unlock()
		remaining := make([]string, 0, len(m.services))
		for name := range m.services {
			remaining = append(remaining, name)
		}
		sort.Strings(remaining)
		return remaining
	}
}
