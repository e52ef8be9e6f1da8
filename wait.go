package uiharness

import (
	"context"
	"errors"
	"time"
)

// DefaultPollInterval is the interval between condition checks used by Poll
// when no interval is given.
const DefaultPollInterval = 100 * time.Millisecond

// Condition is checked repeatedly by Poll until it returns true. A non-nil
// error is remembered but does not stop polling; it is reported in the
// TimeoutError if the condition never holds.
type Condition func(ctx context.Context) (bool, error)

// Poll waits for cond to return true, checking it every interval. It returns
// a *TimeoutError named op if the condition does not hold within timeout, and
// ctx.Err() if the parent context is cancelled first.
//
// The context passed to cond carries the timeout, so a condition that talks
// to a browser cannot hold Poll past its bound.
func Poll(ctx context.Context, op string, timeout, interval time.Duration, cond Condition) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last error
	for {
		ok, err := cond(wctx)
		if ok && err == nil {
			return nil
		}
		if err != nil {
			last = err
		}

		select {
		case <-wctx.Done():
			if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ctx.Err()
			}
			return &TimeoutError{Op: op, Timeout: timeout, Last: last}
		case <-ticker.C:
		}
	}
}
