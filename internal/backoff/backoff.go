// Package backoff provides exponential backoff with jitter and a generic
// bounded-retry helper used on every outbound network path.
package backoff

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy defines the parameters of an exponential backoff schedule.
type Policy struct {
	// Initial is the delay before the second attempt.
	Initial time.Duration
	// Max caps the computed delay.
	Max time.Duration
	// Factor is the multiplier applied per attempt.
	Factor float64
	// Jitter is the randomization fraction (0.0 to 1.0) added to the delay.
	Jitter float64
}

// Default returns the policy used for blob-store and completion calls:
// 100ms initial, 30s max, doubling, 10% jitter.
func Default() Policy {
	return Policy{Initial: 100 * time.Millisecond, Max: 30 * time.Second, Factor: 2, Jitter: 0.1}
}

// Quick returns a policy for short critical sections such as the
// conditional-write retry loop: 50ms initial, 2s max.
func Quick() Policy {
	return Policy{Initial: 50 * time.Millisecond, Max: 2 * time.Second, Factor: 2, Jitter: 0.2}
}

// Duration computes the delay for the given attempt (1-indexed).
func (p Policy) Duration(attempt int) time.Duration {
	return p.durationWithRand(attempt, rand.Float64()) // #nosec G404 -- jitter needs no crypto randomness
}

func (p Policy) durationWithRand(attempt int, random float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := float64(p.Initial) * math.Pow(p.Factor, exp)
	total := base + base*p.Jitter*random
	if max := float64(p.Max); total > max {
		total = max
	}
	return time.Duration(total)
}

// Sleep waits out the delay for the given attempt, honoring context
// cancellation. Returns ctx.Err() if the context ends first.
func Sleep(ctx context.Context, p Policy, attempt int) error {
	d := p.Duration(attempt)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
