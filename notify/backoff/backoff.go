// Package backoff implements the full-jitter retry delay used by every
// notify sink: each attempt waits a random duration between zero and a
// capped exponential ceiling, rather than a fixed doubling schedule, so a
// burst of runs finishing at the same instant doesn't retry their
// notifiers in lockstep against a recovering endpoint.
package backoff

import (
	"context"
	"math/rand/v2"
	"time"
)

// DefaultBase is the delay ceiling for the first retry (attempt 1).
const DefaultBase = 250 * time.Millisecond

// DefaultMax caps the delay ceiling regardless of attempt count.
const DefaultMax = 8 * time.Second

// Policy computes full-jitter exponential backoff delays: AWS's
// "FullJitter" algorithm, delay = random(0, min(Max, Base*2^(attempt-1))).
// The zero value is not usable; use New or construct with both fields set.
type Policy struct {
	Base time.Duration
	Max  time.Duration
}

// New returns a Policy with the given base and max, substituting the
// package defaults for zero values.
func New(base, max time.Duration) Policy {
	if base <= 0 {
		base = DefaultBase
	}
	if max <= 0 {
		max = DefaultMax
	}
	return Policy{Base: base, Max: max}
}

// ceiling returns the exponential ceiling for attempt (1-indexed: attempt
// 1 is the delay before the first retry, following the initial try),
// capped at p.Max. Shift overflow for large attempt counts saturates at
// Max rather than wrapping.
func (p Policy) ceiling(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	// 63 is the widest safe left shift for a signed duration; any attempt
	// that would shift further has already saturated past p.Max.
	if attempt-1 >= 63 {
		return p.Max
	}
	scaled := p.Base * time.Duration(1<<uint(attempt-1))
	if scaled <= 0 || scaled > p.Max {
		return p.Max
	}
	return scaled
}

// Wait blocks for a random duration in [0, ceiling(attempt)], or returns
// ctx.Err() if ctx is canceled first. Callers pass attempt=1 before the
// first retry (never before the initial try).
func (p Policy) Wait(ctx context.Context, attempt int) error {
	ceiling := p.ceiling(attempt)
	if ceiling <= 0 {
		return nil
	}

	delay := time.Duration(rand.Int64N(int64(ceiling) + 1))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
