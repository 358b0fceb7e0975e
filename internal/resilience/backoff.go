// Package resilience provides reliability patterns for external service calls.
package resilience

import (
	"sync"
	"time"
)

// Backoff computes bounded exponential delays for retry loops.
// Each call to Next doubles the delay up to the maximum; Reset returns
// it to the minimum after a successful attempt.
type Backoff struct {
	mu      sync.Mutex
	min     time.Duration
	max     time.Duration
	current time.Duration
}

// NewBackoff creates a Backoff that starts at min and doubles up to max.
func NewBackoff(min, max time.Duration) *Backoff {
	return &Backoff{min: min, max: max}
}

// Next returns the delay to wait before the next attempt.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == 0 {
		b.current = b.min
		return b.current
	}

	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return b.current
}

// Reset returns the delay to the minimum.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = 0
}
