// Package retry executes operations with exponential backoff, retrying
// only failures the error taxonomy classifies as transient. Server
// recommendations (Retry-After, 503/504 waits) override the exponential
// delay when they are longer.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"research-master/internal/errors"
)

// Policy bounds one retried operation.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxTotal     time.Duration // wall-clock budget including waits
	Multiplier   float64

	// Notify, when set, observes every scheduled retry.
	Notify func(attempt int, delay time.Duration, err error)
}

// Default is the policy most providers run with.
func Default() Policy {
	return Policy{
		MaxAttempts:  5,
		InitialDelay: 2 * time.Second,
		MaxDelay:     120 * time.Second,
		MaxTotal:     300 * time.Second,
		Multiplier:   2.0,
	}
}

// Strict is for upstreams that punish aggressive clients.
func Strict() Policy {
	p := Default()
	p.MaxAttempts = 3
	p.MaxTotal = 180 * time.Second
	return p
}

// Do runs op up to p.MaxAttempts times. Permanent errors return
// immediately; the final transient error is returned once attempts or the
// time budget run out.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if p.MaxAttempts <= 0 {
		p = Default()
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialDelay
	bo.MaxInterval = p.MaxDelay
	bo.Multiplier = p.Multiplier
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0 // the MaxTotal budget below governs instead
	bo.Reset()

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !errors.IsTransient(err) {
			return zero, err
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := bo.NextBackOff()
		if delay == backoff.Stop {
			break
		}
		if rec := errors.RetryDelay(err); rec > delay {
			delay = rec
		}
		if p.MaxTotal > 0 && time.Since(start)+delay > p.MaxTotal {
			break
		}
		if p.Notify != nil {
			p.Notify(attempt, delay, err)
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	return zero, lastErr
}
