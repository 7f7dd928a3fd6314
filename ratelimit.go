package syncagent

import (
	"context"
	"sync"
	"time"
)

// TokenBucket gates all outbound queries to the external authority under its
// request-rate ceiling. Acquire blocks until a token is available; it never
// rejects a caller because of contention, so under sustained demand every
// caller eventually proceeds.
type TokenBucket struct {
	mu           sync.Mutex
	capacity     float64
	tokens       float64
	refillPerSec float64
	last         time.Time
	clock        func() time.Time
}

// NewTokenBucket builds a bucket holding up to capacity tokens, refilled at
// perMinute tokens per minute. A full bucket allows an initial burst up to
// capacity.
func NewTokenBucket(capacity, perMinute int) *TokenBucket {
	if capacity <= 0 {
		capacity = 1
	}
	if perMinute <= 0 {
		perMinute = capacity
	}
	clock := time.Now
	return &TokenBucket{
		capacity:     float64(capacity),
		tokens:       float64(capacity),
		refillPerSec: float64(perMinute) / 60,
		last:         clock(),
		clock:        clock,
	}
}

// Acquire takes one token, suspending the caller until one is available or
// the context is cancelled. It returns how long the caller waited so the
// delay can be recorded as diagnostics rather than surfacing as a failure.
func (b *TokenBucket) Acquire(ctx context.Context) (time.Duration, error) {
	if b == nil {
		return 0, nil
	}
	start := b.now()
	for {
		b.mu.Lock()
		now := b.now()
		b.refillLocked(now)
		if b.tokens >= 1 {
			b.tokens--
			b.mu.Unlock()
			return now.Sub(start), nil
		}
		wait := time.Duration((1 - b.tokens) / b.refillPerSec * float64(time.Second))
		b.mu.Unlock()
		if wait < time.Millisecond {
			wait = time.Millisecond
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return b.now().Sub(start), ctx.Err()
		case <-timer.C:
		}
	}
}

// Available reports the number of whole tokens currently in the bucket.
func (b *TokenBucket) Available() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(b.now())
	return int(b.tokens)
}

func (b *TokenBucket) refillLocked(now time.Time) {
	elapsed := now.Sub(b.last)
	if elapsed <= 0 {
		return
	}
	b.last = now
	b.tokens += elapsed.Seconds() * b.refillPerSec
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
}

func (b *TokenBucket) now() time.Time {
	if b.clock != nil {
		return b.clock()
	}
	return time.Now()
}
