package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"
)

// Options control the retry schedule for a single remote operation.
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// OnRetry, if set, is invoked after each transient failure that will be
	// retried.
	OnRetry func(attempt int, err error)

	// sleep is swapped out in tests to observe the backoff schedule.
	sleep func(context.Context, time.Duration) error
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as eligible for retry (rate limits, 5xx responses,
// transient network faults). Callers wrap at the point where they can still
// tell the failure classes apart.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err should be retried: errors explicitly marked
// via Transient, exceeded deadlines, and network timeouts. Everything else
// (auth failures, malformed input) fails immediately.
func IsTransient(err error) bool {
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}

// ExhaustedError reports that every attempt against one provider failed,
// carrying the last underlying failure.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d attempts failed: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// BothFailedError aggregates the primary and fallback failure chains.
type BothFailedError struct {
	PrimaryName  string
	Primary      error
	FallbackName string
	Fallback     error
}

func (e *BothFailedError) Error() string {
	return fmt.Sprintf("%s failed: %v; %s failed: %v",
		e.PrimaryName, e.Primary, e.FallbackName, e.Fallback)
}

// Do invokes fn with bounded retry and exponential backoff. Transient
// failures wait BaseDelay*2^(attempt-1), capped at MaxDelay, before the next
// attempt; non-transient failures return immediately. After MaxAttempts the
// last failure is returned wrapped in ExhaustedError.
func Do[T any](ctx context.Context, opts Options, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	sleep := opts.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	delay := opts.BaseDelay
	var last error

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		start := time.Now()
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		last = err

		if !IsTransient(err) {
			return zero, err
		}

		slog.Warn("transient failure",
			"attempt", attempt,
			"max_attempts", opts.MaxAttempts,
			"latency", time.Since(start),
			"error", err,
		)

		if attempt == opts.MaxAttempts {
			break
		}
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, err)
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
		delay *= 2
		if opts.MaxDelay > 0 && delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}
	}

	return zero, &ExhaustedError{Attempts: opts.MaxAttempts, Last: last}
}

// Provider couples a label with an operation so the caller can tell which
// provider produced the successful result.
type Provider[T any] struct {
	Name string
	Call func(context.Context) (T, error)
}

// DoWithFallback runs primary through Do; if it fails, runs fallback through
// its own retry schedule. The returned string names the provider that
// produced the value. If both fail, the error is a BothFailedError carrying
// both failure chains.
func DoWithFallback[T any](ctx context.Context, opts Options, primary, fallback Provider[T]) (T, string, error) {
	v, primaryErr := Do(ctx, opts, primary.Call)
	if primaryErr == nil {
		return v, primary.Name, nil
	}

	slog.Warn("primary provider failed, trying fallback",
		"primary", primary.Name,
		"fallback", fallback.Name,
		"error", primaryErr,
	)

	v, fallbackErr := Do(ctx, opts, fallback.Call)
	if fallbackErr == nil {
		return v, fallback.Name, nil
	}

	var zero T
	return zero, "", &BothFailedError{
		PrimaryName:  primary.Name,
		Primary:      primaryErr,
		FallbackName: fallback.Name,
		Fallback:     fallbackErr,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
