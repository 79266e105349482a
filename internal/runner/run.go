package runner

import (
	"context"
	"errors"

	"workctl/internal/control"
	"workctl/internal/metrics"
)

const (
	StatusPending   = "PENDING"
	StatusRunning   = "RUNNING"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
	StatusAborted   = "ABORTED"
)

// ErrCancelled is the cause handed to a tree whose run was cancelled.
var ErrCancelled = errors.New("run cancelled")

// Run is one submitted tree.
type Run struct {
	ID    string
	State string

	root *control.Supervisor
	key  *control.DisposeKey

	cancel    context.CancelCauseFunc
	cancelled bool
}

// Result is published once per run after the tree was disposed.
type Result struct {
	RunID    string              `json:"run_id"`
	RootID   string              `json:"root_id"`
	Status   string              `json:"status"`
	Error    string              `json:"error,omitempty"`
	Teardown string              `json:"teardown,omitempty"`
	Metrics  *metrics.RunMetrics `json:"metrics,omitempty"`
}
