// Package control implements the work-control hierarchy: leaf nodes that wrap
// one unit of work, supervisors that start, watch and stop them on a periodic
// tick, and the keyed teardown that releases the tree afterwards.
package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ControlNode is the lifecycle surface shared by leaves and supervisors.
//
// Setters are safe for concurrent use. hasStarted, hasTerminated and
// isAborting only move from false to true; setting them to false is ignored.
type ControlNode interface {
	ID() string
	TaskID() string

	ShouldStart() bool
	SetShouldStart(v bool)
	HasStarted() bool
	SetHasStarted(v bool)
	ShouldTerminate() bool
	SetShouldTerminate(v bool)
	HasTerminated() bool
	SetHasTerminated(v bool)
	IsAborting() bool
	SetIsAborting(v bool)

	Fault() error
	SetFault(err error)

	// OnTransition registers fn to be called for every flag that becomes true.
	OnTransition(fn TransitionFunc)

	// UnprotectedDisposer hands out the node's disposer to the holder of the
	// key the node was created with.
	UnprotectedDisposer(key *DisposeKey) (Disposer, error)
}

type faultBox struct {
	err error
}

// Node is a leaf ControlNode, optionally bound to a payload the supervisor
// dispatches to its executor.
type Node struct {
	id  string
	key *DisposeKey

	state  atomic.Uint32
	taskID atomic.Pointer[string]
	fault  atomic.Pointer[faultBox]

	hooksMu sync.RWMutex
	hooks   []TransitionFunc

	payloadMu sync.Mutex
	payload   Payload

	cancelMu sync.Mutex
	cancel   context.CancelCauseFunc

	disposed atomic.Bool
}

// NewNode creates a leaf with all flags false. An empty id is replaced by a
// short random one.
func NewNode(id string, key *DisposeKey) *Node {
	if id == "" {
		id = uuid.New().String()[:8]
	}
	return &Node{id: id, key: key}
}

// NewWork creates a leaf bound to a fresh payload for arg and entry.
func NewWork[T any](id string, key *DisposeKey, arg T, entry EntryPoint[T]) *Node {
	n := NewNode(id, key)
	// A fresh payload cannot be bound elsewhere.
	_ = n.Bind(NewPayload(arg, entry))
	return n
}

func (n *Node) ID() string { return n.id }

func (n *Node) TaskID() string {
	if p := n.taskID.Load(); p != nil {
		return *p
	}
	return ""
}

func (n *Node) setTaskID(id string) {
	n.taskID.CompareAndSwap(nil, &id)
}

// Bind attaches p to the node. A node holds at most one payload and a payload
// belongs to at most one node.
func (n *Node) Bind(p Payload) error {
	n.payloadMu.Lock()
	defer n.payloadMu.Unlock()
	if n.payload != nil {
		return fmt.Errorf("bind payload to %s: %w", n.id, ErrNodeHasPayload)
	}
	if err := p.bind(n.id); err != nil {
		return fmt.Errorf("bind payload to %s: %w", n.id, err)
	}
	n.payload = p
	return nil
}

func (n *Node) boundPayload() Payload {
	n.payloadMu.Lock()
	defer n.payloadMu.Unlock()
	return n.payload
}

func (n *Node) flags() flagSet { return flagSet(n.state.Load()) }

func (n *Node) ShouldStart() bool     { return n.flags().has(FlagShouldStart) }
func (n *Node) HasStarted() bool      { return n.flags().has(FlagHasStarted) }
func (n *Node) ShouldTerminate() bool { return n.flags().has(FlagShouldTerminate) }
func (n *Node) HasTerminated() bool   { return n.flags().has(FlagHasTerminated) }
func (n *Node) IsAborting() bool      { return n.flags().has(FlagIsAborting) }

func (n *Node) SetShouldStart(v bool) {
	n.update(func(s flagSet) flagSet {
		if s.has(FlagHasStarted) {
			return s
		}
		if v {
			return s.with(FlagShouldStart)
		}
		return s.without(FlagShouldStart)
	})
}

func (n *Node) SetHasStarted(v bool) {
	if !v {
		return
	}
	n.update(func(s flagSet) flagSet {
		return s.with(FlagHasStarted).without(FlagShouldStart)
	})
}

func (n *Node) SetShouldTerminate(v bool) {
	n.update(func(s flagSet) flagSet {
		if s.has(FlagHasTerminated) {
			return s
		}
		if v {
			return s.with(FlagShouldTerminate)
		}
		if s.has(FlagIsAborting) {
			return s
		}
		return s.without(FlagShouldTerminate)
	})
}

func (n *Node) SetHasTerminated(v bool) {
	if !v {
		return
	}
	n.update(func(s flagSet) flagSet {
		return s.with(FlagHasTerminated).without(FlagShouldTerminate)
	})
}

func (n *Node) SetIsAborting(v bool) {
	if !v {
		return
	}
	n.update(func(s flagSet) flagSet {
		s = s.with(FlagIsAborting)
		if !s.has(FlagHasTerminated) {
			s = s.with(FlagShouldTerminate)
		}
		return s
	})
}

func (n *Node) Fault() error {
	if b := n.fault.Load(); b != nil {
		return b.err
	}
	return nil
}

func (n *Node) SetFault(err error) {
	n.fault.Store(&faultBox{err: err})
}

func (n *Node) OnTransition(fn TransitionFunc) {
	if fn == nil {
		return
	}
	n.hooksMu.Lock()
	n.hooks = append(n.hooks, fn)
	n.hooksMu.Unlock()
}

func (n *Node) UnprotectedDisposer(key *DisposeKey) (Disposer, error) {
	if key == nil || key != n.key {
		return nil, fmt.Errorf("node %s: %w", n.id, ErrDisposeKeyMismatch)
	}
	return nodeDisposer{n: n}, nil
}

// update applies fn to the flag word with a CAS loop so the invariants between
// flags hold without a lock, then fires hooks for the raised flags.
func (n *Node) update(fn func(flagSet) flagSet) {
	for {
		old := n.flags()
		next := fn(old)
		if next == old {
			return
		}
		if n.state.CompareAndSwap(uint32(old), uint32(next)) {
			n.fire(next &^ old)
			return
		}
	}
}

func (n *Node) fire(raised flagSet) {
	if raised.has(FlagIsAborting) {
		n.cancelRun(ErrAborted)
	}
	if raised.has(FlagShouldTerminate) {
		n.cancelRun(ErrTerminationRequested)
	}

	n.hooksMu.RLock()
	hooks := n.hooks
	n.hooksMu.RUnlock()
	if len(hooks) == 0 {
		return
	}
	for _, f := range flagOrder {
		if !raised.has(f) {
			continue
		}
		for _, h := range hooks {
			h(n.id, f)
		}
	}
}

func (n *Node) cancelRun(cause error) {
	n.cancelMu.Lock()
	defer n.cancelMu.Unlock()
	if n.cancel != nil {
		n.cancel(cause)
	}
}

// armCancel installs the cancel function of a running entry point, firing it
// right away if termination was requested before the entry point began.
func (n *Node) armCancel(cancel context.CancelCauseFunc) {
	n.cancelMu.Lock()
	defer n.cancelMu.Unlock()
	n.cancel = cancel
	switch s := n.flags(); {
	case s.has(FlagIsAborting):
		cancel(ErrAborted)
	case s.has(FlagShouldTerminate):
		cancel(ErrTerminationRequested)
	}
}

func (n *Node) disarmCancel() {
	n.cancelMu.Lock()
	n.cancel = nil
	n.cancelMu.Unlock()
}

// task wraps the payload so that running it drives the node's own flags:
// hasStarted when it begins, fault and hasTerminated when it returns.
func (n *Node) task(p Payload) Runnable {
	return RunnableFunc(func(base context.Context) (rerr error) {
		ctx, cancel := context.WithCancelCause(withNode(base, n))
		n.armCancel(cancel)
		defer func() {
			if rec := recover(); rec != nil {
				rerr = fmt.Errorf("panic in work %s: %v", n.id, rec)
			}
			if rerr != nil && !isCancellation(ctx, rerr) {
				n.SetFault(rerr)
			} else {
				rerr = nil
			}
			n.disarmCancel()
			cancel(nil)
			n.SetHasTerminated(true)
		}()

		n.SetHasStarted(true)
		return p.Run(ctx)
	})
}

// isCancellation reports whether err only echoes the cancellation of ctx.
func isCancellation(ctx context.Context, err error) bool {
	cause := context.Cause(ctx)
	if cause == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, cause)
}

var _ ControlNode = (*Node)(nil)
