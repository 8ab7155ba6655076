package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MemoryLimiter is a process-local sliding-window Limiter. It backs the
// adaptive limiter while Redis is unavailable.
type MemoryLimiter struct {
	mu   sync.Mutex
	hits map[string][]time.Time
	now  func() time.Time
	log  *slog.Logger
}

var _ Limiter = (*MemoryLimiter)(nil)

func NewMemoryLimiter(log *slog.Logger) *MemoryLimiter {
	if log == nil {
		log = slog.Default()
	}
	return &MemoryLimiter{
		hits: make(map[string][]time.Time),
		now:  time.Now,
		log:  log,
	}
}

func (m *MemoryLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	hits := trimBefore(m.hits[key], now.Add(-window))
	allowed := len(hits) < limit
	if allowed {
		hits = append(hits, now)
	}
	m.hits[key] = hits

	res := &Result{
		Allowed:   allowed,
		Remaining: max(limit-len(hits), 0),
		ResetAt:   now.Add(window),
	}
	if len(hits) > 0 {
		res.ResetAt = hits[0].Add(window)
	}

	if !allowed {
		return res, ErrLimitExceeded
	}
	return res, nil
}

// Cleanup drops keys whose newest hit is older than maxAge.
func (m *MemoryLimiter) Cleanup(maxAge time.Duration) {
	if maxAge <= 0 {
		return
	}
	cutoff := m.now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, hits := range m.hits {
		if len(hits) == 0 || hits[len(hits)-1].Before(cutoff) {
			delete(m.hits, key)
		}
	}
}

// trimBefore removes timestamps older than start, reusing the backing array.
func trimBefore(hits []time.Time, start time.Time) []time.Time {
	i := 0
	for i < len(hits) && hits[i].Before(start) {
		i++
	}
	if i == 0 {
		return hits
	}
	return append(hits[:0], hits[i:]...)
}
