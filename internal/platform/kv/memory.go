package kv

import (
	"context"
	"sync"
)

// Memory 是一个进程内的后端，重启即丢失，用于测试和演示模式
type Memory struct {
	mu    sync.RWMutex
	items map[string]string

	// FailWrites 为true时所有写操作都返回 ErrWriteFailed，用于模拟存储故障
	FailWrites bool
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return ErrWriteFailed
	}
	m.items[key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return ErrWriteFailed
	}
	delete(m.items, key)
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

// SetFailWrites 在并发场景下安全地切换故障模拟
func (m *Memory) SetFailWrites(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailWrites = fail
}
