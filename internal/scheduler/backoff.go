package scheduler

import (
	"math"
	"time"
)

const (
	defaultBackoffBase = 30 * time.Second
	defaultBackoffMax  = 30 * time.Minute
)

// Backoff computes exponential retry delays, base × 2ⁿ capped at Max.
// Jitter is deliberately omitted so rescheduling stays deterministic.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before retry attempt n (n starts at 1).
func (b Backoff) Delay(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = defaultBackoffBase
	}
	max := b.Max
	if max <= 0 {
		max = defaultBackoffMax
	}
	if attempt < 0 {
		attempt = 0
	}
	d := float64(base) * math.Pow(2, float64(attempt))
	if d > float64(max) {
		return max
	}
	return time.Duration(d)
}
