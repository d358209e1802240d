package cache

import (
	"context"
	"path"
	"sort"
	"sync"
	"time"
)

// =============================================================================
// MEMORY STORE - In-process KV (for testing/dev)
// =============================================================================

type entry struct {
	value     string
	expiresAt time.Time // zero = never
}

func (e entry) expired(at time.Time) bool {
	return !e.expiresAt.IsZero() && !at.Before(e.expiresAt)
}

type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

var (
	_ Store   = (*Memory)(nil)
	_ Sweeper = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry), now: time.Now}
}

// WithClock replaces the clock used for expiry. Intended for tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok || e.expired(m.now()) {
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = m.newEntry(value, ttl)
	return nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}

// Keys returns live keys matching pattern, sorted.
func (m *Memory) Keys(_ context.Context, pattern string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	at := m.now()
	var result []string
	for k, e := range m.entries {
		if e.expired(at) {
			continue
		}
		ok, err := path.Match(pattern, k)
		if err != nil {
			return nil, err
		}
		if ok {
			result = append(result, k)
		}
	}
	sort.Strings(result)
	return result, nil
}

func (m *Memory) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[key]; ok && !e.expired(m.now()) {
		return false, nil
	}
	m.entries[key] = m.newEntry(value, ttl)
	return true, nil
}

// Sweep drops expired entries and returns how many were removed.
func (m *Memory) Sweep(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	at := m.now()
	n := 0
	for k, e := range m.entries {
		if e.expired(at) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

func (m *Memory) newEntry(value string, ttl time.Duration) entry {
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	return e
}
