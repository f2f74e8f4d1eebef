// Package ratelimit bounds how often an action may happen per key inside a sliding window.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter reports whether one more event for key fits in limit per window. The event is counted
// only when allowed.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, remaining int, err error)
	Reset(ctx context.Context, key string) error
}

type windowEntry struct {
	timestamps []time.Time
}

// Memory is a process-local sliding window limiter. Use Redis when more than one server runs.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
	now     func() time.Time
}

// NewMemory returns an empty Memory limiter.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*windowEntry), now: time.Now}
}

func (m *Memory) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		e = &windowEntry{}
		m.entries[key] = e
	}
	now := m.now()
	cutoff := now.Add(-window)
	kept := e.timestamps[:0]
	for _, ts := range e.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	e.timestamps = kept
	if len(e.timestamps) >= limit {
		return false, 0, nil
	}
	e.timestamps = append(e.timestamps, now)
	return true, limit - len(e.timestamps), nil
}

func (m *Memory) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
