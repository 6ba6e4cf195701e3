package cache

import (
	"context"
	"sync"
	"time"

	"showtrack/internal/domain"
)

type item struct {
	value   []byte
	expires time.Time
}

// Memory — кэш в памяти процесса с TTL.
type Memory struct {
	mu    sync.Mutex
	items map[string]item
	now   func() time.Time
}

var _ domain.Cache = (*Memory)(nil)

// NewMemory создаёт пустой кэш.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]item), now: time.Now}
}

// Once выполняет функцию, если ключ ещё не задан.
func (m *Memory) Once(_ context.Context, key string, ttl time.Duration, fn func() error) (bool, error) {
	m.mu.Lock()
	if it, ok := m.items[key]; ok && !m.expired(it) {
		m.mu.Unlock()
		return false, nil
	}
	m.items[key] = item{value: []byte("1"), expires: m.deadline(ttl)}
	m.mu.Unlock()
	if err := fn(); err != nil {
		m.mu.Lock()
		delete(m.items, key)
		m.mu.Unlock()
		return true, err
	}
	return true, nil
}

// Set задаёт значение.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = item{value: append([]byte(nil), value...), expires: m.deadline(ttl)}
	return nil
}

// Get возвращает значение или domain.ErrCacheMiss.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[key]
	if !ok || m.expired(it) {
		delete(m.items, key)
		return nil, domain.ErrCacheMiss
	}
	return append([]byte(nil), it.value...), nil
}

func (m *Memory) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

func (m *Memory) expired(it item) bool {
	return !it.expires.IsZero() && !m.now().Before(it.expires)
}
