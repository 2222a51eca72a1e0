// Package clock provides the time and randomness sources used by token issuance.
package clock

import (
	"sync"
	"time"

	"readzone/internal/domain/service"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type systemClock struct{}

// NewSystemClock returns a Clock backed by the wall clock, in UTC.
func NewSystemClock() service.Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock is a manually driven Clock for deterministic runs.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock returns a FixedClock stopped at now.
func NewFixedClock(now time.Time) *FixedClock {
	return &FixedClock{now: now}
}

// Now returns the current fixed time.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type uuidSource struct{}

// NewRandomSource returns a RandomSource producing random (version 4) UUIDs.
func NewRandomSource() service.RandomSource {
	return uuidSource{}
}

func (uuidSource) Identifier() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", errors.Wrap(err, "failed to generate random identifier")
	}

	return id.String(), nil
}
