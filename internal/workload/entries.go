package workload

import (
	"context"
	"errors"
	"time"

	"workctl/internal/control"
)

// pollInterval is how often looping work checks its node.
const pollInterval = time.Millisecond

var ErrWorkFailed = errors.New("work failed")

// Sleep waits for Duration, or until termination when Duration is zero.
func Sleep(ctx context.Context, a *Args) error {
	if a.Duration <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	timer := time.NewTimer(a.Duration)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Count increments the shared counter until termination.
func Count(ctx context.Context, a *Args) error {
	if a.Counter == nil {
		return errors.New("count work needs a shared counter")
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		a.Counter.Add(1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Fail waits for Duration and returns an error carrying Message.
func Fail(ctx context.Context, a *Args) error {
	if a.Duration > 0 {
		if err := Sleep(ctx, a); err != nil {
			return err
		}
	}
	msg := a.Message
	if msg == "" {
		msg = "requested failure"
	}
	return &FailedError{Message: msg}
}

// FailedError is returned by Fail.
type FailedError struct {
	Message string
}

func (e *FailedError) Error() string { return ErrWorkFailed.Error() + ": " + e.Message }

func (e *FailedError) Unwrap() error { return ErrWorkFailed }

// Stubborn ignores termination requests. It stops after Duration, when
// Duration is non-zero, or once its node is told to abort.
func Stubborn(ctx context.Context, a *Args) error {
	node, ok := control.NodeFromContext(ctx)
	if !ok {
		return errors.New("stubborn work needs a control node")
	}
	var deadline <-chan time.Time
	if a.Duration > 0 {
		timer := time.NewTimer(a.Duration)
		defer timer.Stop()
		deadline = timer.C
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-deadline:
			return nil
		case <-ticker.C:
			if node.IsAborting() {
				return ctx.Err()
			}
		}
	}
}
