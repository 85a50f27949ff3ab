package cache

import (
	"context"
	"sync"
	"time"

	"github.com/Aryainguz/tldev-backend/internal/domain"
)

// Memory хранит кэш в памяти процесса для dev-режима без REDIS_ADDR.
type Memory struct {
	mu    sync.Mutex
	now   func() time.Time
	items map[string]memoryItem
}

type memoryItem struct {
	value   []byte
	expires time.Time
}

var _ domain.Cache = (*Memory)(nil)

// NewMemory создаёт кэш в памяти.
func NewMemory() *Memory {
	return &Memory{now: time.Now, items: make(map[string]memoryItem)}
}

func (m *Memory) alive(key string) (memoryItem, bool) {
	it, ok := m.items[key]
	if !ok {
		return memoryItem{}, false
	}
	if !it.expires.IsZero() && !m.now().Before(it.expires) {
		delete(m.items, key)
		return memoryItem{}, false
	}
	return it, true
}

func (m *Memory) put(key string, value []byte, ttl time.Duration) {
	it := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		it.expires = m.now().Add(ttl)
	}
	m.items[key] = it
}

// Once выполняет функцию, если ключ ещё не задан.
func (m *Memory) Once(_ context.Context, key string, ttl time.Duration, fn func() error) error {
	m.mu.Lock()
	if _, ok := m.alive(key); ok {
		m.mu.Unlock()
		return nil
	}
	m.put(key, []byte("1"), ttl)
	m.mu.Unlock()

	if err := fn(); err != nil {
		m.mu.Lock()
		delete(m.items, key)
		m.mu.Unlock()
		return err
	}
	return nil
}

// Set задаёт значение.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(key, value, ttl)
	return nil
}

// Get возвращает значение или ErrMiss.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.alive(key)
	if !ok {
		return nil, ErrMiss
	}
	return append([]byte(nil), it.value...), nil
}
