// Package backoff implements exponential backoff with jitter for retrying
// transient upload/download failures, per spec §4.2/§4.6.
package backoff

import (
	"context"
	"math/rand"
	"time"
)

type Policy struct {
	// Attempts is the maximum number of tries (including the first).
	Attempts int
	// Base is the delay before the first retry.
	Base time.Duration
	// Max caps the delay before jitter; the +/-20% jitter is applied after
	// the cap, so a single delay can reach 1.2*Max.
	Max time.Duration
}

func Default() Policy {
	return Policy{Attempts: 3, Base: 500 * time.Millisecond, Max: 10 * time.Second}
}

// Delay returns the backoff delay after failed attempt n (1-indexed: the
// delay before the 2nd try is Delay(1)), with +/-20% jitter.
func (p Policy) Delay(n int) time.Duration {
	d := p.Base << uint(n-1)
	if d <= 0 || d > p.Max {
		d = p.Max
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 5 * 2)) - d/5 // +/- 20%, from the top of the range
	d += jitter
	if d < 0 {
		d = 0
	}
	return d
}

// Retry calls fn up to p.Attempts times, sleeping Delay(n) between
// attempts, retrying only while shouldRetry(err) is true. It stops early
// if ctx is canceled while sleeping.
func Retry(ctx context.Context, p Policy, shouldRetry func(error) bool, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if attempt == p.Attempts || !shouldRetry(lastErr) {
			return lastErr
		}

		select {
		case <-time.After(p.Delay(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
