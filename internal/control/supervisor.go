package control

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"

	"workctl/internal/metrics"
)

const (
	// NoTimeBudget disables the run-time budget.
	NoTimeBudget time.Duration = -1
	// NoIterationBudget disables the iteration budget.
	NoIterationBudget = -1

	DefaultCheckInterval = 100 * time.Millisecond
	DefaultAbortAfter    = 5 * time.Second
)

// Budget bounds how long a supervisor lets its children run.
type Budget struct {
	CheckInterval time.Duration
	// RunFor counts down while running. NoTimeBudget disables it.
	RunFor time.Duration
	// AbortAfter counts down once termination was requested; when it runs
	// out the subtree is told to abort.
	AbortAfter time.Duration
	// Iterations counts running ticks. NoIterationBudget disables it.
	Iterations int
}

func DefaultBudget() Budget {
	return Budget{
		CheckInterval: DefaultCheckInterval,
		RunFor:        NoTimeBudget,
		AbortAfter:    DefaultAbortAfter,
		Iterations:    NoIterationBudget,
	}
}

// Callback is invoked once per tick on the supervisor's own goroutine.
// elapsed is the wall time since the previous tick, zero on the first one.
// Returning an error disables the supervisor.
type Callback interface {
	Tick(s *Supervisor, elapsed time.Duration) error
}

// CallbackFunc adapts a function to Callback.
type CallbackFunc func(s *Supervisor, elapsed time.Duration) error

func (f CallbackFunc) Tick(s *Supervisor, elapsed time.Duration) error { return f(s, elapsed) }

type Option func(*Supervisor)

func WithBudget(b Budget) Option {
	return func(s *Supervisor) { s.budget = b }
}

func WithExecutor(e Executor) Option {
	return func(s *Supervisor) { s.exec = e }
}

func WithReporter(r Reporter) Option {
	return func(s *Supervisor) { s.reporter = r }
}

func WithCallback(c Callback) Option {
	return func(s *Supervisor) { s.callback = c }
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Supervisor) { s.log = l }
}

// Supervisor is a composite ControlNode. Start/terminate/abort requests
// cascade synchronously to every child; hasStarted and hasTerminated are
// derived from the children and cannot be set from outside.
type Supervisor struct {
	*Node

	budget   Budget
	callback Callback
	exec     Executor
	reporter Reporter
	log      *zap.SugaredLogger

	mu       sync.Mutex
	children []ControlNode
	handles  []Handle
	timer    *time.Timer
	started  bool
	ctx      context.Context

	// Written only by the tick goroutine.
	runLeft   atomic.Int64
	abortLeft atomic.Int64
	itersLeft atomic.Int64

	disabled atomic.Bool
	done     chan struct{}
	quit     chan struct{}
	quitOnce sync.Once
}

func NewSupervisor(id string, key *DisposeKey, opts ...Option) *Supervisor {
	s := &Supervisor{
		Node:   NewNode(id, key),
		budget: DefaultBudget(),
		exec:   GoExecutor{},
		log:    zap.NewNop().Sugar(),
		done:   make(chan struct{}),
		quit:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.budget.CheckInterval <= 0 {
		s.budget.CheckInterval = DefaultCheckInterval
	}
	if s.callback == nil {
		s.callback = NewSupervisionLoop()
	}
	s.runLeft.Store(int64(s.budget.RunFor))
	s.abortLeft.Store(int64(s.budget.AbortAfter))
	s.itersLeft.Store(int64(s.budget.Iterations))
	return s
}

func (s *Supervisor) Budget() Budget { return s.budget }

// RunBudget is the remaining run time, NoTimeBudget when disabled.
func (s *Supervisor) RunBudget() time.Duration { return time.Duration(s.runLeft.Load()) }

func (s *Supervisor) AbortBudget() time.Duration { return time.Duration(s.abortLeft.Load()) }

// IterationBudget is the number of running ticks left, NoIterationBudget when
// disabled.
func (s *Supervisor) IterationBudget() int { return int(s.itersLeft.Load()) }

// Disabled reports whether a supervision fault switched the supervisor off.
func (s *Supervisor) Disabled() bool { return s.disabled.Load() }

// Add registers children. Children are frozen once the supervisor started.
func (s *Supervisor) Add(children ...ControlNode) error {
	for _, c := range children {
		if c == nil {
			return ErrNilChild
		}
		if sub, ok := c.(*Supervisor); ok && sub.contains(s) {
			return fmt.Errorf("add %s to %s: %w", c.ID(), s.ID(), ErrCycle)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("add to %s: %w", s.ID(), ErrSupervisorRunning)
	}
	seen := make(map[ControlNode]struct{}, len(s.children)+len(children))
	for _, c := range s.children {
		seen[c] = struct{}{}
	}
	for _, c := range children {
		if _, dup := seen[c]; dup {
			return fmt.Errorf("add %s to %s: %w", c.ID(), s.ID(), ErrDuplicateChild)
		}
		seen[c] = struct{}{}
	}
	for _, c := range children {
		s.children = append(s.children, c)
		c.OnTransition(s.childTransition)
	}
	return nil
}

// Bind always fails: supervisors run their children, never a payload.
func (s *Supervisor) Bind(Payload) error {
	return fmt.Errorf("bind payload to %s: %w", s.ID(), ErrSupervisorPayload)
}

// contains reports whether target is s or one of its descendants.
func (s *Supervisor) contains(target *Supervisor) bool {
	if s == target {
		return true
	}
	for _, c := range s.Children() {
		if sub, ok := c.(*Supervisor); ok && sub.contains(target) {
			return true
		}
	}
	return false
}

// Children returns a snapshot of the registered children in insertion order.
func (s *Supervisor) Children() []ControlNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ControlNode, len(s.children))
	copy(out, s.children)
	return out
}

func (s *Supervisor) SetShouldStart(v bool) {
	s.Node.SetShouldStart(v)
	if !v {
		return
	}
	for _, c := range s.Children() {
		c.SetShouldStart(true)
	}
}

func (s *Supervisor) SetShouldTerminate(v bool) {
	s.Node.SetShouldTerminate(v)
	if !v {
		return
	}
	for _, c := range s.Children() {
		c.SetShouldTerminate(true)
	}
}

func (s *Supervisor) SetIsAborting(v bool) {
	if !v {
		return
	}
	s.Node.SetIsAborting(true)
	for _, c := range s.Children() {
		c.SetIsAborting(true)
	}
}

// SetHasStarted is ignored: a supervisor has started when all children have.
func (s *Supervisor) SetHasStarted(bool) {}

// SetHasTerminated is ignored: a supervisor terminates from its own tick once
// all children terminated and their handles were joined.
func (s *Supervisor) SetHasTerminated(bool) {}

func (s *Supervisor) UnprotectedDisposer(key *DisposeKey) (Disposer, error) {
	if key == nil || key != s.key {
		return nil, fmt.Errorf("supervisor %s: %w", s.ID(), ErrDisposeKeyMismatch)
	}
	return supervisorDisposer{s: s}, nil
}

func (s *Supervisor) childTransition(id string, flag Flag) {
	switch flag {
	case FlagHasStarted:
		s.refreshStarted()
	case FlagHasTerminated:
		s.log.Debugf("Child %s of %s terminated", id, s.ID())
	}
}

func (s *Supervisor) refreshStarted() {
	if s.HasStarted() {
		return
	}
	if s.all(ControlNode.HasStarted) {
		s.Node.SetHasStarted(true)
	}
}

func (s *Supervisor) all(pred func(ControlNode) bool) bool {
	for _, c := range s.Children() {
		if !pred(c) {
			return false
		}
	}
	return true
}

// Start requests start of the whole subtree and launches the tick loop.
// Cancelling ctx requests termination; the loop itself keeps running until
// the subtree has terminated.
func (s *Supervisor) Start(ctx context.Context) error {
	s.SetShouldStart(true)
	_, err := s.launch(ctx)
	return err
}

func (s *Supervisor) launch(ctx context.Context) (Handle, error) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil, fmt.Errorf("start %s: %w", s.ID(), ErrAlreadyStarted)
	}
	s.started = true
	s.ctx = ctx
	empty := len(s.children) == 0
	s.mu.Unlock()

	if empty {
		s.log.Debugf("Supervisor %s has no children, terminating immediately", s.ID())
		s.Node.SetHasStarted(true)
		s.Node.SetHasTerminated(true)
		close(s.done)
		return supervisorHandle{s: s}, nil
	}

	stop := context.AfterFunc(ctx, func() {
		s.SetShouldTerminate(true)
	})
	go s.loop(stop)
	return supervisorHandle{s: s}, nil
}

// Done is closed when the tick loop exits.
func (s *Supervisor) Done() <-chan struct{} { return s.done }

// Wait blocks until the tick loop exited or ctx is done. It returns the
// supervision fault when the supervisor disabled itself.
func (s *Supervisor) Wait(ctx context.Context) error {
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if s.Disabled() {
		return fmt.Errorf("%w: %w", ErrDisabled, s.Fault())
	}
	return nil
}

func (s *Supervisor) loop(stop func() bool) {
	defer close(s.done)
	defer stop()

	s.log.Infof("Starting supervision loop for %s (interval %v)", s.ID(), s.budget.CheckInterval)

	timer := time.NewTimer(0)
	s.mu.Lock()
	s.timer = timer
	s.mu.Unlock()
	defer timer.Stop()

	last := time.Now()
	first := true
	for {
		select {
		case <-s.quit:
			s.log.Infof("Supervision loop for %s stopped by teardown", s.ID())
			return
		case <-timer.C:
		}

		start := time.Now()
		var elapsed time.Duration
		if !first {
			elapsed = start.Sub(last)
		}
		first = false
		last = start

		s.tick(elapsed)
		if s.HasTerminated() {
			s.log.Infof("Supervision loop for %s finished", s.ID())
			return
		}
		if s.Disabled() {
			return
		}

		// Processing time of this tick is taken off the next wait.
		wait := s.budget.CheckInterval - time.Since(start)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}

func (s *Supervisor) tick(elapsed time.Duration) {
	if s.Disabled() {
		return
	}
	began := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			s.disable(pkgerrors.Errorf("panic in supervision tick of %s: %v", s.ID(), rec))
		}
		metrics.ObserveTick(s.ID(), time.Since(began))
	}()
	if err := s.callback.Tick(s, elapsed); err != nil {
		s.disable(fmt.Errorf("supervision tick of %s: %w", s.ID(), err))
	}
}

// disable switches the supervisor off for good and reports it once.
func (s *Supervisor) disable(fault error) {
	if !s.disabled.CompareAndSwap(false, true) {
		return
	}
	s.SetFault(fault)
	metrics.IncSupervisionFault(s.ID())

	r := s.reporter
	if r == nil {
		// Fall back to the callback when it can report.
		r, _ = s.callback.(Reporter)
	}
	if r == nil {
		s.log.Errorf("Supervisor %s disabled: %v", s.ID(), fault)
		return
	}
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Errorf("Reporter panicked while reporting %s: %v", s.ID(), rec)
			}
		}()
		r.Report(fmt.Sprintf("supervisor %s disabled", s.ID()), SeverityError, fault)
	}()
}

// DispatchChildren hands every child to its execution context once: leaves
// with a payload go to the executor, nested supervisors get their own tick
// loop. Leaves without a payload are driven from outside and are skipped.
// It returns the number of dispatched children.
func (s *Supervisor) DispatchChildren() int {
	dispatched := 0
	for _, c := range s.Children() {
		h, err := s.dispatch(c)
		if err != nil {
			s.log.Warnf("Dispatch of %s failed: %v", c.ID(), err)
			continue
		}
		if h != nil {
			s.track(h)
			dispatched++
		}
	}
	metrics.AddDispatched(s.ID(), dispatched)
	s.refreshStarted()
	return dispatched
}

func (s *Supervisor) dispatch(c ControlNode) (Handle, error) {
	switch child := c.(type) {
	case *Supervisor:
		return child.launch(s.ctx)
	case *Node:
		p := child.boundPayload()
		if p == nil {
			return nil, nil
		}
		h, err := s.exec.Execute(child.task(p))
		if err != nil {
			child.SetFault(err)
			child.SetHasStarted(true)
			child.SetHasTerminated(true)
			return nil, err
		}
		child.setTaskID(h.ID())
		child.SetHasStarted(true)
		return h, nil
	}
	return nil, nil
}

// skipDispatch settles children when termination was requested before
// anything was dispatched: payload leaves are marked terminated without ever
// running, nested supervisors are launched so they settle their own subtree.
func (s *Supervisor) skipDispatch() {
	for _, c := range s.Children() {
		switch child := c.(type) {
		case *Supervisor:
			h, err := child.launch(s.ctx)
			if err != nil {
				s.log.Warnf("Launch of %s failed: %v", child.ID(), err)
				continue
			}
			s.track(h)
		case *Node:
			if child.boundPayload() != nil {
				child.SetHasTerminated(true)
			}
		}
	}
}

func (s *Supervisor) track(h Handle) {
	s.mu.Lock()
	s.handles = append(s.handles, h)
	s.mu.Unlock()
}

// HandleCount is the number of dispatched handles not yet joined.
func (s *Supervisor) HandleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Finish joins all handles and raises hasTerminated once every child has
// terminated. It reports whether the supervisor is terminated.
func (s *Supervisor) Finish() bool {
	if s.HasTerminated() {
		return true
	}
	if !s.all(ControlNode.HasTerminated) {
		return false
	}
	s.joinHandles()
	s.Node.SetHasTerminated(true)
	return true
}

func (s *Supervisor) joinHandles() {
	s.mu.Lock()
	handles := s.handles
	s.handles = nil
	s.mu.Unlock()

	for _, h := range handles {
		if err := h.Join(); err != nil {
			s.log.Debugf("Task %s under %s returned: %v", h.ID(), s.ID(), err)
		}
	}
}

// keepRunning consumes one running tick worth of budget and reports whether
// the children should keep running.
func (s *Supervisor) keepRunning(elapsed time.Duration) bool {
	if s.ShouldTerminate() || s.all(ControlNode.HasTerminated) {
		return false
	}
	run := time.Duration(s.runLeft.Load())
	iters := s.itersLeft.Load()
	if run == 0 || iters == 0 {
		return false
	}
	if run > 0 {
		run -= elapsed
		if run < 0 {
			run = 0
		}
		s.runLeft.Store(int64(run))
	}
	if iters > 0 {
		iters--
		s.itersLeft.Store(iters)
	}
	return run != 0 && iters != 0
}

// consumeAbortBudget reports whether abort budget remains after elapsed.
func (s *Supervisor) consumeAbortBudget(elapsed time.Duration) bool {
	left := time.Duration(s.abortLeft.Load()) - elapsed
	if left < 0 {
		left = 0
	}
	s.abortLeft.Store(int64(left))
	return left > 0
}

// releaseRunState stops the tick timer, ends a still running loop and drops
// unjoined handles. Used by teardown.
func (s *Supervisor) releaseRunState() {
	s.quitOnce.Do(func() { close(s.quit) })
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.handles = nil
}

var _ ControlNode = (*Supervisor)(nil)
