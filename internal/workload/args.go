package workload

import (
	"sync"
	"sync/atomic"
	"time"
)

// Args is the argument every built-in entry point receives.
type Args struct {
	Duration time.Duration
	Message  string
	// Counter is shared by all leaves of one group; nil when the leaf is
	// not in a group.
	Counter *Counter
}

// Dispose releases the shared counter. Leaves of a group each carry their own
// Args, so the counter tolerates being released more than once.
func (a *Args) Dispose() error {
	if a.Counter != nil {
		a.Counter.release()
	}
	return nil
}

// Counter is a shared tally incremented by count work.
type Counter struct {
	Name string

	n        atomic.Int64
	once     sync.Once
	released atomic.Bool
}

func NewCounter(name string) *Counter {
	return &Counter{Name: name}
}

func (c *Counter) Add(delta int64) int64 { return c.n.Add(delta) }

func (c *Counter) Value() int64 { return c.n.Load() }

// Released reports whether a teardown already released the counter.
func (c *Counter) Released() bool { return c.released.Load() }

func (c *Counter) release() {
	c.once.Do(func() { c.released.Store(true) })
}
