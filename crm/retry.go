package crm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"leadscore-backtest/helpers"
)

// TransientError marks a failure worth retrying (timeouts, rate limits,
// connection resets, 5xx).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func transient(err error) error {
	return &TransientError{Err: err}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

type retryPolicy struct {
	retries int
	backoff time.Duration
	log     *zap.Logger
}

// do runs fn once plus up to retries more times on transient errors, with a
// fixed backoff between attempts. Permanent errors and a cancelled ctx stop
// immediately.
func (p retryPolicy) do(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt <= p.retries; attempt++ {
		if attempt > 0 {
			if werr := helpers.WaitFor(ctx, p.backoff); werr != nil {
				return fmt.Errorf("%s: %w (last error: %v)", op, werr, err)
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w (last error: %v)", op, ctx.Err(), err)
		}
		if !IsTransient(err) {
			return err
		}

		if p.log != nil {
			p.log.Warn("transient crm failure",
				zap.String("op", op),
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", p.retries+1),
				zap.Error(err))
		}
	}
	return fmt.Errorf("%s: giving up after %d attempts: %w", op, p.retries+1, err)
}
