package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"workctl/internal/control"
)

const defaultPoolLimit = 16

var ErrPoolClosed = errors.New("executor pool is closed")

// Pool runs tasks on a bounded set of goroutines. Execute never blocks: a task
// that finds no free slot waits for one on its own goroutine. A failed task is
// never retried and never cancels its peers.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.SugaredLogger

	g errgroup.Group

	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup
}

// NewPool creates a pool running at most limit tasks at once. limit <= 0 uses
// the default. Tasks receive a context derived from ctx.
func NewPool(ctx context.Context, limit int, log *zap.SugaredLogger) *Pool {
	if limit <= 0 {
		limit = defaultPoolLimit
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &Pool{ctx: ctx, cancel: cancel, log: log}
	p.g.SetLimit(limit)
	return p
}

func (p *Pool) Execute(task control.Runnable) (control.Handle, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.pending.Add(1)
	p.mu.Unlock()

	h := &handle{id: uuid.New().String(), done: make(chan struct{}), queued: time.Now()}
	go func() {
		defer p.pending.Done()
		// Blocks until a slot frees up.
		p.g.Go(func() error {
			defer close(h.done)
			h.err = p.run(h, task)
			return nil
		})
	}()
	return h, nil
}

func (p *Pool) run(h *handle, task control.Runnable) (rerr error) {
	// Panic safety -> convert to error so the pool keeps running
	defer func() {
		if rec := recover(); rec != nil {
			rerr = fmt.Errorf("panic in task %s: %v", h.id, rec)
		}
	}()
	if wait := time.Since(h.queued); wait > time.Second {
		p.log.Debugf("Task %s waited %v for a pool slot", h.id, wait)
	}
	return task.Run(p.ctx)
}

// Close stops accepting tasks and waits for every accepted task to return.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.pending.Wait()
	_ = p.g.Wait()
	p.cancel()
}

type handle struct {
	id     string
	done   chan struct{}
	queued time.Time
	err    error
}

func (h *handle) ID() string { return h.id }

func (h *handle) Join() error {
	<-h.done
	return h.err
}

var _ control.Executor = (*Pool)(nil)
