package client

import "time"

// RetryPolicy controls reconnect pacing. The zero value is not usable;
// callers start from DefaultRetryPolicy and override fields.
type RetryPolicy struct {
	// MaxAttempts bounds consecutive failed connection attempts before
	// Run gives up. Zero or negative means retry forever.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:  0,
	InitialDelay: time.Second,
	MaxDelay:     30 * time.Second,
	Multiplier:   2.0,
}

// NextDelay returns the backoff delay for the given zero-based attempt
// number, capped at MaxDelay.
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	d := p.InitialDelay
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Exhausted reports whether the attempt budget is spent.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}
