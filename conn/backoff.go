package conn

import "time"

// DefaultDelay is the base reconnect delay shared by both policies.
const DefaultDelay = 2500 * time.Millisecond

// Backoff decides how long to wait before the next connection attempt.
// Implementations are used from a single supervisor goroutine.
type Backoff interface {
	Next() time.Duration
	Reset()
}

// FixedBackoff waits the same delay every time. Chat connections use
// this; the service tolerates prompt retries.
type FixedBackoff struct {
	Delay time.Duration
}

func (f *FixedBackoff) Next() time.Duration {
	if f.Delay <= 0 {
		return DefaultDelay
	}

	return f.Delay
}

func (f *FixedBackoff) Reset() {}

// ExponentialBackoff doubles the delay on every failed attempt, without
// an upper bound, and starts over after a successful connection.
type ExponentialBackoff struct {
	Initial time.Duration
	current time.Duration
}

func (e *ExponentialBackoff) Next() time.Duration {
	if e.current <= 0 {
		initial := e.Initial
		if initial <= 0 {
			initial = DefaultDelay
		}
		e.current = initial
	}

	next := e.current
	e.current *= 2

	return next
}

func (e *ExponentialBackoff) Reset() {
	e.current = 0
}
