package concurrent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGuardReturnsOperationResult(t *testing.T) {
	want := errors.New("rejected")
	err := Guard(context.Background(), time.Second, func(ctx context.Context) error {
		return want
	})
	assert.Equal(t, want, err)

	assert.NoError(t, Guard(context.Background(), time.Second, func(ctx context.Context) error {
		return nil
	}))
}

func TestGuardTimesOutOnOperationThatNeverResolves(t *testing.T) {
	never := make(chan struct{})
	defer close(never)

	start := time.Now()
	err := Guard(context.Background(), 3000*time.Microsecond, func(ctx context.Context) error {
		<-never
		return nil
	})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, int64(time.Since(start)), int64(time.Second))
}

func TestGuardCancelsOperationContextAfterTimeout(t *testing.T) {
	cancelled := make(chan struct{})
	err := Guard(context.Background(), time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	})
	assert.ErrorIs(t, err, ErrTimeout)
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("operation context was not cancelled")
	}
}

func TestGuardHonoursParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Guard(ctx, time.Second, func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
