package control

import (
	"context"
	"sync/atomic"
)

// EntryPoint is the function a payload runs with its argument. ctx is
// cancelled once the owning node is asked to terminate or abort; entry points
// that ignore it keep running until they return on their own.
type EntryPoint[T any] func(ctx context.Context, arg T) error

// Payload is a bindable unit of work. WorkPayload is its only implementation.
type Payload interface {
	Runnable
	bind(owner string) error
	release(t *Teardown) error
}

// WorkPayload pairs an argument with the entry point that consumes it. The
// argument may be shared by several payloads; the payload does not lock it.
type WorkPayload[T any] struct {
	argument   T
	entryPoint EntryPoint[T]

	owner    atomic.Pointer[string]
	released atomic.Bool
}

func NewPayload[T any](arg T, entry EntryPoint[T]) *WorkPayload[T] {
	return &WorkPayload[T]{argument: arg, entryPoint: entry}
}

func (p *WorkPayload[T]) Argument() T { return p.argument }

// Owner returns the id of the node the payload is bound to.
func (p *WorkPayload[T]) Owner() string {
	if o := p.owner.Load(); o != nil {
		return *o
	}
	return ""
}

func (p *WorkPayload[T]) Run(ctx context.Context) error {
	return p.entryPoint(ctx, p.argument)
}

func (p *WorkPayload[T]) bind(owner string) error {
	if !p.owner.CompareAndSwap(nil, &owner) {
		return ErrPayloadBound
	}
	return nil
}

func (p *WorkPayload[T]) release(t *Teardown) error {
	if !p.released.CompareAndSwap(false, true) {
		return nil
	}
	return t.release(p.argument)
}
