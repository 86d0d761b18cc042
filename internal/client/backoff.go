package client

import (
	"math/rand/v2"
	"time"
)

// minTimeout is the floor applied after jitter.
const minTimeout = time.Second

// Backoff is the retransmission policy for DISCOVER and REQUEST (RFC 2131
// §4.1): the nth timeout is min(Base·2^n, Max) randomised by ±Jitter.
type Backoff struct {
	Base        time.Duration
	Max         time.Duration
	Jitter      time.Duration
	MaxAttempts int
}

// DefaultBackoff is 4s doubling to 64s with ±1s jitter over five attempts.
var DefaultBackoff = Backoff{
	Base:        4 * time.Second,
	Max:         64 * time.Second,
	Jitter:      time.Second,
	MaxAttempts: 5,
}

// Nominal returns the un-jittered timeout for the zero-based attempt.
func (b Backoff) Nominal(attempt int) time.Duration {
	d := b.Base
	for i := 0; i < attempt && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}
	return d
}

// Timeout returns the jittered timeout for the zero-based attempt.
func (b Backoff) Timeout(attempt int, rng *rand.Rand) time.Duration {
	d := b.Nominal(attempt)
	if b.Jitter > 0 && rng != nil {
		d += time.Duration(rng.Int64N(int64(2*b.Jitter)+1)) - b.Jitter
	}
	if d < minTimeout {
		d = minTimeout
	}
	return d
}

// Exhausted reports whether attempts sends have used up the budget.
func (b Backoff) Exhausted(attempts int) bool {
	return attempts >= b.MaxAttempts
}

// renewWait is the RFC 2131 §4.4.5 retransmission wait while renewing or
// rebinding: half of left, the time until the next lease deadline, at least
// 60s, but never past that deadline.
func renewWait(left time.Duration) time.Duration {
	if left <= 0 {
		return 0
	}
	wait := left / 2
	if wait < 60*time.Second {
		wait = 60 * time.Second
	}
	if wait > left {
		wait = left
	}
	return wait
}
