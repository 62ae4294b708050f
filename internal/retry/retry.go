// Package retry wraps cenkalti/backoff with the two policies the scanner uses:
// a bounded attempt count with a per-attempt schedule for work items, and an
// elapsed-time bounded exponential policy for individual HTTP round trips.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes an attempt-bounded retry.
type Policy struct {
	// MaxAttempts counts the first try; values below 1 mean a single attempt.
	MaxAttempts int
	// Backoff returns the wait after the given failed attempt (1-based).
	Backoff func(attempt int) time.Duration
	// Timer is optional; tests inject one to avoid real sleeps.
	Timer backoff.Timer
}

// MaxWait caps a single Exponential wait.
const MaxWait = time.Hour

// Exponential waits 2^attempt seconds: 2s, 4s, 8s, ... up to MaxWait.
func Exponential(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// 2^12s already exceeds MaxWait
	if attempt >= 12 {
		return MaxWait
	}
	return time.Duration(1<<uint(attempt)) * time.Second
}

// Notify is called before each wait with the attempt that just failed.
type Notify func(attempt int, err error, wait time.Duration)

// Do runs op until it succeeds, returns a permanent error, the attempts are
// exhausted or ctx is done. It returns the number of attempts made.
func Do(ctx context.Context, p Policy, op func(attempt int) error, notify Notify) (int, error) {
	max := p.MaxAttempts
	if max < 1 {
		max = 1
	}
	fn := p.Backoff
	if fn == nil {
		fn = Exponential
	}

	b := backoff.WithContext(backoff.WithMaxRetries(&schedule{fn: fn}, uint64(max-1)), ctx)

	attempt := 0
	operation := func() error {
		attempt++
		return op(attempt)
	}
	onRetry := func(err error, wait time.Duration) {
		if notify != nil {
			notify(attempt, err, wait)
		}
	}
	err := backoff.RetryNotifyWithTimer(operation, b, onRetry, p.Timer)
	return attempt, err
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// HTTP retries a single request with exponential backoff until maxElapsed.
func HTTP(ctx context.Context, maxElapsed time.Duration, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxElapsed
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}

type schedule struct {
	fn      func(int) time.Duration
	attempt int
}

func (s *schedule) NextBackOff() time.Duration {
	s.attempt++
	return s.fn(s.attempt)
}

func (s *schedule) Reset() { s.attempt = 0 }
