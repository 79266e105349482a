package control

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/gomega"
	"go.uber.org/multierr"
)

// resource counts how often it was released and can be told to fail.
type resource struct {
	name  string
	fail  error
	panic bool

	mu       sync.Mutex
	disposed int
	log      *[]string
}

func (r *resource) Dispose() error {
	r.mu.Lock()
	r.disposed++
	r.mu.Unlock()
	if r.log != nil {
		*r.log = append(*r.log, r.name)
	}
	if r.panic {
		panic("dispose exploded")
	}
	return r.fail
}

func (r *resource) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disposed
}

// closer is released through io.Closer.
type closer struct {
	closed int
}

func (c *closer) Close() error {
	c.closed++
	return nil
}

func noop[T any](context.Context, T) error { return nil }

func TestTeardownIsIdempotent(t *testing.T) {
	g := NewWithT(t)
	key := NewDisposeKey()

	shared := &resource{name: "shared"}
	own := &closer{}
	root := NewSupervisor("root", key, WithBudget(budget(2*time.Millisecond, NoTimeBudget, time.Second, NoIterationBudget)))
	sub := NewSupervisor("sub", key, WithBudget(budget(2*time.Millisecond, NoTimeBudget, time.Second, NoIterationBudget)))
	g.Expect(sub.Add(NewWork("s1", key, shared, noop[*resource]))).To(Succeed())
	g.Expect(root.Add(
		NewWork("r1", key, shared, noop[*resource]),
		NewWork("r2", key, own, noop[*closer]),
		sub,
	)).To(Succeed())

	g.Expect(root.Start(context.Background())).To(Succeed())
	g.Expect(root.Wait(context.Background())).To(Succeed())

	g.Expect(NewTeardown(key).Dispose(root)).To(Succeed())
	g.Expect(shared.count()).To(Equal(1))
	g.Expect(own.closed).To(Equal(1))

	g.Expect(NewTeardown(key).Dispose(root)).To(Succeed())
	g.Expect(shared.count()).To(Equal(1))
	g.Expect(own.closed).To(Equal(1))
}

func TestTeardownAggregatesFailures(t *testing.T) {
	g := NewWithT(t)
	key := NewDisposeKey()

	first := &resource{name: "first", fail: errors.New("first failed")}
	second := &resource{name: "second", panic: true}
	third := &resource{name: "third"}
	stranger := NewWork("stranger", NewDisposeKey(), &resource{name: "stranger"}, noop[*resource])

	root := NewSupervisor("root", key)
	g.Expect(root.Add(
		NewWork("a", key, first, noop[*resource]),
		NewWork("b", key, second, noop[*resource]),
		stranger,
		NewWork("c", key, third, noop[*resource]),
	)).To(Succeed())

	err := NewTeardown(key).Dispose(root)
	g.Expect(multierr.Errors(err)).To(HaveLen(3))
	g.Expect(err).To(MatchError(ContainSubstring("first failed")))
	g.Expect(err).To(MatchError(ContainSubstring("dispose exploded")))
	g.Expect(errors.Is(err, ErrDisposeKeyMismatch)).To(BeTrue())
	g.Expect(third.count()).To(Equal(1))

	g.Expect(NewTeardown(key).Dispose(root)).To(Succeed())
	g.Expect(first.count()).To(Equal(1))
}

func TestTeardownReleasesChildrenDepthFirst(t *testing.T) {
	g := NewWithT(t)
	key := NewDisposeKey()
	var order []string
	res := func(name string) *resource { return &resource{name: name, log: &order} }

	root := NewSupervisor("root", key)
	sub := NewSupervisor("sub", key)
	g.Expect(sub.Add(NewWork("", key, res("sub-1"), noop[*resource]), NewWork("", key, res("sub-2"), noop[*resource]))).To(Succeed())
	g.Expect(root.Add(NewWork("", key, res("first"), noop[*resource]), sub, NewWork("", key, res("last"), noop[*resource]))).To(Succeed())

	g.Expect(NewTeardown(key).Dispose(root)).To(Succeed())
	g.Expect(order).To(Equal([]string{"first", "sub-1", "sub-2", "last"}))
}

func TestTeardownRejectsForeignKey(t *testing.T) {
	g := NewWithT(t)
	key := NewDisposeKey()
	res := &resource{name: "guarded"}
	root := NewSupervisor("root", key)
	g.Expect(root.Add(NewWork("w", key, res, noop[*resource]))).To(Succeed())

	err := NewTeardown(NewDisposeKey()).Dispose(root)
	g.Expect(err).To(MatchError(ErrDisposeKeyMismatch))
	g.Expect(res.count()).To(BeZero())
}

func TestTeardownStopsLoopOfUnterminatedTree(t *testing.T) {
	g := NewWithT(t)
	key := NewDisposeKey()
	root := NewSupervisor("root", key, WithBudget(budget(5*time.Millisecond, NoTimeBudget, time.Hour, NoIterationBudget)))
	g.Expect(root.Add(NewNode("external", key))).To(Succeed())
	g.Expect(root.Start(context.Background())).To(Succeed())

	g.Consistently(root.Done()).WithTimeout(20 * time.Millisecond).ShouldNot(BeClosed())
	g.Expect(NewTeardown(key).Dispose(root)).To(Succeed())
	g.Eventually(root.Done()).WithTimeout(time.Second).Should(BeClosed())
	g.Expect(root.HasTerminated()).To(BeFalse())
}
