package control

import (
	"fmt"
	"io"
	"reflect"

	"go.uber.org/multierr"
)

// DisposeKey is an opaque capability. Nodes remember the key they were created
// with and only hand their disposer to a caller presenting that same pointer.
type DisposeKey struct {
	_ byte
}

// NewDisposeKey issues a new key. Keys are compared by identity.
func NewDisposeKey() *DisposeKey {
	return &DisposeKey{}
}

// Disposable is implemented by payload arguments that hold resources.
// Dispose may be called more than once.
type Disposable interface {
	Dispose() error
}

// Disposer releases what a node owns. Obtained via UnprotectedDisposer.
type Disposer interface {
	Dispose(t *Teardown) error
}

// Teardown walks a tree children-first and releases every node with the key
// it carries. A Teardown is meant for one pass; failures never stop the walk
// and are returned together.
//
// Disposing a tree that has not reported hasTerminated is allowed but unsafe:
// work still running may use the released arguments. Teardown never waits.
type Teardown struct {
	key      *DisposeKey
	released map[any]struct{}
}

func NewTeardown(key *DisposeKey) *Teardown {
	return &Teardown{key: key, released: make(map[any]struct{})}
}

// Dispose releases n and, for supervisors, its whole subtree first.
func (t *Teardown) Dispose(n ControlNode) (err error) {
	if n == nil {
		return nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = multierr.Append(err, fmt.Errorf("panic disposing %s: %v", n.ID(), rec))
		}
	}()
	d, err := n.UnprotectedDisposer(t.key)
	if err != nil {
		return err
	}
	return d.Dispose(t)
}

// release disposes a payload argument at most once per pass.
func (t *Teardown) release(resource any) (err error) {
	var fn func() error
	switch r := resource.(type) {
	case Disposable:
		fn = r.Dispose
	case io.Closer:
		fn = r.Close
	default:
		return nil
	}
	if typ := reflect.TypeOf(resource); typ != nil && typ.Comparable() {
		if _, seen := t.released[resource]; seen {
			return nil
		}
		t.released[resource] = struct{}{}
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic releasing %T: %v", resource, rec)
		}
	}()
	if err := fn(); err != nil {
		return fmt.Errorf("release %T: %w", resource, err)
	}
	return nil
}

type nodeDisposer struct {
	n *Node
}

func (d nodeDisposer) Dispose(t *Teardown) error {
	if !d.n.disposed.CompareAndSwap(false, true) {
		return nil
	}
	p := d.n.boundPayload()
	if p == nil {
		return nil
	}
	if err := p.release(t); err != nil {
		return fmt.Errorf("dispose %s: %w", d.n.id, err)
	}
	return nil
}

type supervisorDisposer struct {
	s *Supervisor
}

func (d supervisorDisposer) Dispose(t *Teardown) error {
	if !d.s.disposed.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	for _, c := range d.s.Children() {
		err = multierr.Append(err, t.Dispose(c))
	}
	d.s.releaseRunState()
	return err
}
