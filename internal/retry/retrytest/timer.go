// Package retrytest provides a backoff.Timer that fires immediately and
// remembers every wait it was asked for.
package retrytest

import (
	"sync"
	"time"
)

type Timer struct {
	mu    sync.Mutex
	waits []time.Duration
	c     chan time.Time
}

func NewTimer() *Timer {
	return &Timer{c: make(chan time.Time, 1)}
}

func (t *Timer) Start(d time.Duration) {
	t.mu.Lock()
	t.waits = append(t.waits, d)
	t.mu.Unlock()
	select {
	case t.c <- time.Now():
	default:
	}
}

func (t *Timer) Stop() {}

func (t *Timer) C() <-chan time.Time { return t.c }

// Waits returns a copy of the recorded wait durations.
func (t *Timer) Waits() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.waits...)
}
