// Package backoff computes reconnection delays with exponential growth
// capped at a maximum.
package backoff

import "time"

// Default policy values.
const (
	DefaultBase        = 1 * time.Second
	DefaultCap         = 30 * time.Second
	DefaultMaxAttempts = 5
)

// Policy describes an exponential backoff schedule with a bounded
// number of attempts.
type Policy struct {
	Base        time.Duration // delay for attempt 0
	Cap         time.Duration // upper bound on any delay
	MaxAttempts int           // attempts allowed before giving up
}

// DefaultPolicy returns the standard schedule: 1s base doubling to a
// 30s cap, five attempts.
func DefaultPolicy() Policy {
	return Policy{
		Base:        DefaultBase,
		Cap:         DefaultCap,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Delay returns the wait before the given 0-indexed attempt:
// min(Base * 2^attempt, Cap). Doubling stops at the cap, so large
// attempt values cannot overflow.
func (p Policy) Delay(attempt int) time.Duration {
	d := p.Base
	for i := 0; i < attempt && d < p.Cap; i++ {
		d *= 2
	}
	if d > p.Cap {
		d = p.Cap
	}
	return d
}

// Exhausted reports whether the given attempt count has used up the
// budget.
func (p Policy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}
