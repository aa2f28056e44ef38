package retry

import (
	"context"
	"time"
)

// Policy controls how many times an operation is attempted and how long to wait in between.
type Policy struct {
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

var DefaultPolicy = Policy{Attempts: 3, Backoff: 20 * time.Millisecond, MaxBackoff: 500 * time.Millisecond}

// Do runs fn until it succeeds, returns a non-retryable error, or attempts run out.
// The backoff doubles after every failed attempt and is capped at MaxBackoff.
func Do(ctx context.Context, p Policy, retryable func(error) bool, fn func() error) error {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	backoff := p.Backoff
	var err error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == p.Attempts || retryable == nil || !retryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}
	return err
}
