package app

import (
	"context"
	"errors"
	"time"
)

// ErrStop ends a RunEvery loop without reporting an error.
var ErrStop = errors.New("stop scheduling")

// RunEvery calls fn immediately and then again interval after each call
// returns, until ctx is done or fn returns an error. Cancellation and ErrStop
// end the loop with a nil error; fn is never interrupted mid-call by the
// scheduler itself.
func RunEvery(ctx context.Context, interval time.Duration, fn func(context.Context) error) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		if err := fn(ctx); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		timer.Reset(interval)
	}
}
