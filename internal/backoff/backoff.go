// Package backoff computes retry delays: exponential growth from a base
// delay with jitter, capped so a long retry chain never sleeps unbounded.
package backoff

import (
	"math/rand"
	"time"
)

// MaxDelay caps a single computed delay.
const MaxDelay = 10 * time.Second

// Delay returns the sleep duration before retry attempt n (1-based).
// The delay doubles per attempt and carries up to 25% random jitter to
// decorrelate concurrent retriers.
func Delay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	d := base << uint(attempt-1)
	if d > MaxDelay || d <= 0 {
		d = MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	return d + jitter
}
