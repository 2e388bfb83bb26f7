package concurrent

import (
	"context"
	"time"

	"moff.io/moff-wallet/pkg/errors"
)

// ErrTimeout is returned by Guard when the deadline elapses before the operation finishes.
var ErrTimeout = errors.New("operation timed out")

// Guard runs op and waits at most timeout for it. On expiry it returns
// ErrTimeout and whatever op eventually returns is dropped. The context handed
// to op is cancelled once Guard returns.
func Guard(ctx context.Context, timeout time.Duration, op func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- op(opCtx)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		cancel()
		return err
	case <-timer.C:
		cancel()
		return ErrTimeout
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}
