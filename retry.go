package syncagent

import (
	"math"
	"time"
)

// RetryPolicy decides when a device with a transient failure becomes eligible
// for another full sync. The only confirmed rule is a fixed one hour backoff;
// escalation beyond that is configuration, disabled by default.
type RetryPolicy struct {
	// Backoff is the base delay applied after a transient failure.
	Backoff time.Duration
	// Multiplier grows the delay per prior attempt. 1 keeps it fixed.
	Multiplier float64
	// MaxBackoff caps the escalated delay. Zero means no cap.
	MaxBackoff time.Duration
	// MaxAttempts stops scheduling after this many transient failures in a
	// row. Zero means retry indefinitely.
	MaxAttempts int
}

// DefaultRetryPolicy retries every hour, indefinitely.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Backoff:    time.Hour,
		Multiplier: 1,
	}
}

// Next returns the next eligible retry time after the given number of prior
// consecutive transient failures. ok is false once MaxAttempts is exhausted.
func (p RetryPolicy) Next(priorAttempts int, now time.Time) (next time.Time, ok bool) {
	if p.MaxAttempts > 0 && priorAttempts >= p.MaxAttempts {
		return time.Time{}, false
	}
	backoff := p.Backoff
	if backoff <= 0 {
		backoff = time.Hour
	}
	delay := backoff
	if p.Multiplier > 1 && priorAttempts > 0 {
		scaled := float64(backoff) * math.Pow(p.Multiplier, float64(priorAttempts))
		if scaled > float64(math.MaxInt64) {
			scaled = float64(math.MaxInt64)
		}
		delay = time.Duration(scaled)
	}
	if p.MaxBackoff > 0 && delay > p.MaxBackoff {
		delay = p.MaxBackoff
	}
	return now.Add(delay), true
}
