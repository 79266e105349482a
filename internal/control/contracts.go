package control

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Runnable is a unit of work handed to an Executor.
type Runnable interface {
	Run(ctx context.Context) error
}

// RunnableFunc adapts a function to Runnable.
type RunnableFunc func(ctx context.Context) error

func (f RunnableFunc) Run(ctx context.Context) error { return f(ctx) }

// Handle refers to one dispatched Runnable. Join blocks until it returned.
type Handle interface {
	ID() string
	Join() error
}

// Executor runs work on its own execution context. Implementations must not
// retry or restart a task that failed.
type Executor interface {
	Execute(task Runnable) (Handle, error)
}

// Severity of a report sent to a Reporter.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// Reporter receives the single report a supervisor emits when it disables
// itself.
type Reporter interface {
	Report(message string, severity Severity, fault error)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(message string, severity Severity, fault error)

func (f ReporterFunc) Report(message string, severity Severity, fault error) {
	f(message, severity, fault)
}

// GoExecutor runs every task on a fresh goroutine.
type GoExecutor struct{}

func (GoExecutor) Execute(task Runnable) (Handle, error) {
	h := newTaskHandle(uuid.New().String())
	go func() {
		defer close(h.done)
		defer func() {
			if rec := recover(); rec != nil {
				h.err = fmt.Errorf("panic in task %s: %v", h.id, rec)
			}
		}()
		h.err = task.Run(context.Background())
	}()
	return h, nil
}

type taskHandle struct {
	id   string
	done chan struct{}
	err  error
}

func newTaskHandle(id string) *taskHandle {
	return &taskHandle{id: id, done: make(chan struct{})}
}

func (h *taskHandle) ID() string { return h.id }

func (h *taskHandle) Join() error {
	<-h.done
	return h.err
}

// supervisorHandle joins a nested supervisor's tick loop.
type supervisorHandle struct {
	s *Supervisor
}

func (h supervisorHandle) ID() string { return h.s.ID() }

func (h supervisorHandle) Join() error {
	<-h.s.Done()
	return nil
}

type nodeCtxKey struct{}

func withNode(ctx context.Context, n ControlNode) context.Context {
	return context.WithValue(ctx, nodeCtxKey{}, n)
}

// NodeFromContext returns the node whose entry point is running with ctx.
func NodeFromContext(ctx context.Context) (ControlNode, bool) {
	n, ok := ctx.Value(nodeCtxKey{}).(ControlNode)
	return n, ok
}
