// Package retry wraps calls to the remote registry with bounded exponential
// backoff. Only transport-level failures are retried; everything else,
// including integrity failures, is returned on the first attempt.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrUnreachable matches any *UnreachableError.
var ErrUnreachable = errors.New("remote unreachable")

// UnreachableError is returned when every attempt failed with a transient
// error.
type UnreachableError struct {
	Attempts int
	Err      error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("remote unreachable after %d attempts: %v", e.Attempts, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

func (e *UnreachableError) Is(target error) bool { return target == ErrUnreachable }

// Policy bounds the number of attempts and the wait between them.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Default returns the policy used for registry calls.
func Default() Policy {
	return Policy{
		MaxAttempts:     4,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     8 * time.Second,
	}
}

// Notify is called before each wait with the error that caused it.
type Notify func(attempt int, err error, wait time.Duration)

// Do runs op until it succeeds, returns a non-transient error, the context is
// done, or the policy's attempts are spent.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	return DoNotify(ctx, p, op, nil)
}

// DoNotify is Do with a callback before every backoff wait.
func DoNotify(ctx context.Context, p Policy, op func(ctx context.Context) error, notify Notify) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.MaxAttempts-1)), ctx)

	attempts := 0
	transient := false
	err := backoff.RetryNotify(func() error {
		attempts++
		err := op(ctx)
		if err == nil {
			return nil
		}
		transient = IsTransient(err)
		if !transient {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		if notify != nil {
			notify(attempts, err, wait)
		}
	})
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if transient {
		return &UnreachableError{Attempts: attempts, Err: err}
	}
	return err
}

// IsTransient reports whether err looks like a connectivity problem worth
// retrying: timeouts, resets, refused connections, truncated bodies, and
// errors that declare themselves temporary (HTTP 429 and 5xx).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	// An exhausted inner retry loop already spent its attempts.
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrUnreachable) {
		return false
	}

	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) && temp.Temporary() {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	switch {
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}
	return false
}
