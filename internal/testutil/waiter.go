// Package testutil provides small polling helpers shared by this repo's
// integration tests.
package testutil

import (
	"context"
	"fmt"
	"time"
)

// Waiter polls a condition on a fixed interval until it becomes true or
// the timeout elapses.
type Waiter struct {
	timeout  time.Duration
	interval time.Duration
}

// NewWaiter creates a Waiter with the given timeout and polling interval.
func NewWaiter(timeout, interval time.Duration) *Waiter {
	return &Waiter{timeout: timeout, interval: interval}
}

// DefaultWaiter returns a Waiter with a 5s timeout and a 20ms interval,
// sized for in-process goroutine tests rather than multi-process clusters.
func DefaultWaiter() *Waiter {
	return NewWaiter(5*time.Second, 20*time.Millisecond)
}

// WaitFor blocks until condition returns true, the context is done, or the
// waiter's timeout elapses.
func (w *Waiter) WaitFor(ctx context.Context, condition func() bool, description string) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if condition() {
		return nil
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for: %s (timeout: %v)", description, w.timeout)
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}
