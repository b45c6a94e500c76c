// ABOUTME: Reconnect backoff policy
// ABOUTME: Linear growth per attempt with a ceiling and an attempt cap
package stream

import "time"

// Backoff controls how long the reader waits between failed connections
type Backoff struct {
	Base        time.Duration // delay added per attempt
	Max         time.Duration // ceiling for a single delay
	MaxAttempts int           // consecutive failures before giving up
}

// DefaultBackoff returns 2s per attempt capped at 10s, 50 attempts
func DefaultBackoff() Backoff {
	return Backoff{
		Base:        2 * time.Second,
		Max:         10 * time.Second,
		MaxAttempts: 50,
	}
}

// Delay returns the wait after the given (1-based) failed attempt
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	d := b.Base * time.Duration(attempt)
	if d > b.Max || d < 0 {
		return b.Max
	}
	return d
}

// Exhausted reports whether no further attempts are allowed
func (b Backoff) Exhausted(attempts int) bool {
	return b.MaxAttempts > 0 && attempts >= b.MaxAttempts
}
