// Package ratelimit provides the request counters used to throttle
// verification-email, password-reset and login requests.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"readzone/internal/domain/service"
	"readzone/internal/errors"
)

type windowEntry struct {
	count   int
	resetAt time.Time
}

// memoryLimiter keeps fixed windows in a process-local map.
// Counts are not shared between instances.
type memoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
	clock   service.Clock
}

// NewMemoryLimiter creates a process-local RateLimiter.
func NewMemoryLimiter(clock service.Clock) service.RateLimiter {
	return &memoryLimiter{
		entries: make(map[string]*windowEntry),
		clock:   clock,
	}
}

// Check counts one request for key. The first request opens a window ending
// at now+window; requests after the reset time open a new window.
func (l *memoryLimiter) Check(_ context.Context, key string, window time.Duration, maxCount int) (*service.RateDecision, error) {
	if err := validateRule(window, maxCount); err != nil {
		return nil, err
	}

	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)

	entry, ok := l.entries[key]
	if !ok {
		entry = &windowEntry{resetAt: now.Add(window)}
		l.entries[key] = entry
	}
	entry.count++

	return &service.RateDecision{
		Allowed: entry.count <= maxCount,
		Count:   entry.count,
		ResetAt: entry.resetAt,
	}, nil
}

// sweep drops every window that has elapsed. Callers hold l.mu.
func (l *memoryLimiter) sweep(now time.Time) {
	for key, entry := range l.entries {
		if !now.Before(entry.resetAt) {
			delete(l.entries, key)
		}
	}
}

func (l *memoryLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}

func validateRule(window time.Duration, maxCount int) error {
	if window <= 0 {
		return errors.Errorf("rate limit window must be positive, got %s", window)
	}
	if maxCount <= 0 {
		return errors.Errorf("rate limit max must be positive, got %d", maxCount)
	}

	return nil
}
