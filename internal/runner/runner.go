package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"workctl/internal/control"
	"workctl/internal/metrics"
)

const defaultQueueSize = 100

var (
	ErrClosed     = errors.New("runner is closed")
	ErrQueueFull  = errors.New("run queue is full")
	ErrNoRun      = errors.New("no run is currently running")
	ErrNotRunning = errors.New("run is not running")
)

// Runner executes submitted trees one at a time on a background goroutine.
// Nothing is retried.
type Runner struct {
	log     *zap.SugaredLogger
	queue   chan *Run
	results chan Result

	mu     sync.Mutex
	cur    *Run
	closed bool

	done      chan struct{}
	closeOnce sync.Once
}

func New(log *zap.SugaredLogger) *Runner {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Runner{
		log:     log,
		queue:   make(chan *Run, defaultQueueSize),
		results: make(chan Result, defaultQueueSize),
		done:    make(chan struct{}),
	}
}

// Start processes the queue until Close is called or ctx is done. Cancelling
// ctx cancels the current run and closes the runner for new submissions.
func (r *Runner) Start(ctx context.Context) {
	go func() {
		defer close(r.done)
		defer close(r.results)
		defer func() {
			r.mu.Lock()
			r.closed = true
			r.mu.Unlock()
		}()
		for {
			select {
			case run, ok := <-r.queue:
				if !ok {
					return
				}
				r.log.Infof("Starting run %s (root %s)", run.ID, run.root.ID())
				r.execute(ctx, run)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Status is a snapshot of the run in progress.
type Status struct {
	RunID  string                `json:"run_id"`
	RootID string                `json:"root_id"`
	State  string                `json:"state"`
	Nodes  []metrics.NodeMetrics `json:"nodes"`
}

// Current returns a snapshot of the run in progress, if any.
func (r *Runner) Current() (Status, bool) {
	r.mu.Lock()
	run := r.cur
	var st Status
	if run != nil {
		st = Status{RunID: run.ID, RootID: run.root.ID(), State: run.State}
	}
	r.mu.Unlock()
	if run == nil {
		return Status{}, false
	}
	st.Nodes = collect(run.root)
	return st, true
}

// Results delivers one Result per finished run. It is closed once the
// runner stopped.
func (r *Runner) Results() <-chan Result { return r.results }

// Submit queues root for a run. key must be the key root was built with.
func (r *Runner) Submit(root *control.Supervisor, key *control.DisposeKey) (string, error) {
	run := &Run{
		ID:    uuid.New().String()[:8],
		State: StatusPending,
		root:  root,
		key:   key,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", ErrClosed
	}
	select {
	case r.queue <- run:
		return run.ID, nil
	default:
		return "", ErrQueueFull
	}
}

// Cancel requests termination of the run with the given id. Cancelling a run
// twice tells its tree to abort.
func (r *Runner) Cancel(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cur == nil || r.cur.State != StatusRunning {
		return false, ErrNoRun
	}
	if id != "" && !strings.EqualFold(r.cur.ID, id) {
		return false, fmt.Errorf("run %s: %w (current run: %s)", id, ErrNotRunning, r.cur.ID)
	}
	r.cancelLocked()
	return true, nil
}

// CancelCurrent cancels whatever run is in progress and returns its id.
func (r *Runner) CancelCurrent() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cur == nil || r.cur.State != StatusRunning {
		return "", ErrNoRun
	}
	r.cancelLocked()
	return r.cur.ID, nil
}

func (r *Runner) cancelLocked() {
	run := r.cur
	if run.cancelled {
		r.log.Warnf("Run %s cancelled again, aborting tree %s", run.ID, run.root.ID())
		run.root.SetIsAborting(true)
		return
	}
	run.cancelled = true
	r.log.Infof("Cancelling run %s", run.ID)
	run.cancel(ErrCancelled)
}

// Close stops accepting runs and waits for the queued ones to finish. It must
// only be called after Start.
func (r *Runner) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()
	})
	<-r.done
}

func (r *Runner) execute(ctx context.Context, run *Run) {
	runCtx, cancel := context.WithCancelCause(ctx)
	r.mu.Lock()
	run.cancel = cancel
	run.State = StatusRunning
	r.cur = run
	r.mu.Unlock()
	defer func() {
		cancel(nil)
		r.mu.Lock()
		if r.cur == run {
			r.cur = nil
		}
		r.mu.Unlock()
	}()

	rm := &metrics.RunMetrics{RunID: run.ID, Start: time.Now()}
	var runErr error
	if err := run.root.Start(runCtx); err != nil {
		runErr = err
	} else {
		runErr = run.root.Wait(context.Background())
	}
	if runErr != nil {
		// A disabled root no longer drives its children; tell them to stop
		// before their arguments are released.
		run.root.SetShouldTerminate(true)
	}
	rm.End = time.Now()
	rm.Nodes = collect(run.root)
	rm.Finalize()

	result := Result{RunID: run.ID, RootID: run.root.ID(), Metrics: rm}
	if err := control.NewTeardown(run.key).Dispose(run.root); err != nil {
		r.log.Errorf("Teardown of run %s failed: %v", run.ID, err)
		result.Teardown = err.Error()
	}
	if runErr != nil {
		result.Error = runErr.Error()
	}

	r.mu.Lock()
	run.State = outcome(run, runErr, rm, result.Teardown != "")
	result.Status = run.State
	r.mu.Unlock()

	rm.Succeeded = result.Status == StatusSucceeded
	metrics.IncRun(strings.ToLower(result.Status))
	r.log.Infof("Run %s finished: %s in %d ms", run.ID, result.Status, rm.DurationMs)
	r.results <- result
}

func outcome(run *Run, runErr error, rm *metrics.RunMetrics, teardownFailed bool) string {
	switch {
	case runErr != nil:
		return StatusFailed
	case run.root.IsAborting():
		return StatusAborted
	case run.cancelled:
		return StatusCancelled
	case len(rm.Faulted()) > 0 || teardownFailed:
		return StatusFailed
	}
	return StatusSucceeded
}

func collect(root control.ControlNode) []metrics.NodeMetrics {
	var nodes []metrics.NodeMetrics
	control.Walk(root, func(n control.ControlNode, depth int) {
		_, isSupervisor := n.(*control.Supervisor)
		nm := metrics.NodeMetrics{
			ID:         n.ID(),
			TaskID:     n.TaskID(),
			Depth:      depth,
			Supervisor: isSupervisor,
			Started:    n.HasStarted(),
			Terminated: n.HasTerminated(),
			Aborting:   n.IsAborting(),
		}
		if err := n.Fault(); err != nil {
			nm.Err = err.Error()
		}
		nodes = append(nodes, nm)
	})
	return nodes
}
