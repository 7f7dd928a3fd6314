package syncagent

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestTokenBucketBurst(t *testing.T) {
	bucket := NewTokenBucket(5, 60)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		wait, err := bucket.Acquire(ctx)
		if err != nil {
			t.Fatalf("acquire %d returned error: %v", i, err)
		}
		if wait > 10*time.Millisecond {
			t.Fatalf("burst acquire %d waited %v, want immediate", i, wait)
		}
	}
}

func TestTokenBucketBlocksThenRefills(t *testing.T) {
	// 1 token, refilled at 600/min = 10/s, so a drained bucket frees a
	// token after ~100ms.
	bucket := NewTokenBucket(1, 600)
	ctx := context.Background()
	if _, err := bucket.Acquire(ctx); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	start := time.Now()
	wait, err := bucket.Acquire(ctx)
	if err != nil {
		t.Fatalf("second acquire failed: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 50*time.Millisecond {
		t.Fatalf("second acquire returned after %v, expected a refill wait", elapsed)
	}
	if wait < 50*time.Millisecond {
		t.Fatalf("reported wait %v does not reflect the suspension", wait)
	}
}

func TestTokenBucketContextCancel(t *testing.T) {
	bucket := NewTokenBucket(1, 6)
	ctx, cancel := context.WithCancel(context.Background())
	if _, err := bucket.Acquire(ctx); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if _, err := bucket.Acquire(ctx); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTokenBucketEveryCallerEventuallyAcquires(t *testing.T) {
	// 30 callers against 2 tokens refilled at 100/s: nobody is rejected.
	bucket := NewTokenBucket(2, 6000)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 30)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := bucket.Acquire(ctx); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("caller failed under contention: %v", err)
	}
}

func TestTokenBucketNilIsOpen(t *testing.T) {
	var bucket *TokenBucket
	wait, err := bucket.Acquire(context.Background())
	if err != nil || wait != 0 {
		t.Fatalf("nil bucket should be a no-op gate, got wait=%v err=%v", wait, err)
	}
}
