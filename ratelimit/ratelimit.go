// Package ratelimit gates outgoing transfer dispatch with a per-bank
// sliding-window limiter. An over-limit request is rejected before any
// ledger or record mutation happens.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter decides whether one more dispatch is allowed for the key right
// now.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Memory is a process-local sliding-window Limiter, used in tests and when
// no Redis is configured.
type Memory struct {
	limit  int
	window time.Duration

	mu   sync.Mutex
	hits map[string][]time.Time
}

// NewMemory returns a limiter allowing limit events per rolling window.
func NewMemory(limit int, window time.Duration) *Memory {
	return &Memory{limit: limit, window: window, hits: make(map[string][]time.Time)}
}

// Allow records the attempt and reports whether it fits in the window.
func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	now := time.Now()
	cutoff := now.Add(-m.window)

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.hits[key][:0]
	for _, t := range m.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= m.limit {
		m.hits[key] = kept
		return false, nil
	}
	m.hits[key] = append(kept, now)
	return true, nil
}
