package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"preview-watcher/internal/logging"
	"preview-watcher/internal/memory"
	"preview-watcher/internal/metrics"
	"preview-watcher/internal/watcher"
)

// DefaultGrace bounds how long Run waits for queued work after cancellation.
const DefaultGrace = 30 * time.Second

// ErrDrainTimeout is returned by Run when queued work outlived the grace period.
var ErrDrainTimeout = errors.New("pipeline drain timed out")

// Processor is the work a Pool schedules; *Orchestrator satisfies it.
type Processor interface {
	Process(ctx context.Context, path string) Result
	RegisterDirectory(ctx context.Context, dir string) (string, error)
}

// PoolOptions configures a Pool.
type PoolOptions struct {
	Workers int
	Grace   time.Duration
	// Monitor, when set, holds workers back while memory is under pressure.
	Monitor *memory.Monitor
	// OnResult is called from the worker goroutine after each file.
	OnResult func(Result)
}

// Pool runs a Processor over watcher events with bounded concurrency.
type Pool struct {
	proc     Processor
	workers  int
	grace    time.Duration
	monitor  *memory.Monitor
	onResult func(Result)

	mu      sync.Mutex
	cond    *sync.Cond
	order   []string
	pending map[string]bool // queued, not started
	running map[string]bool
	again   map[string]bool // a further event arrived while running
	closed  bool
}

// NewPool creates a Pool. Workers below one are raised to one.
func NewPool(proc Processor, opts PoolOptions) *Pool {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	p := &Pool{
		proc:     proc,
		workers:  opts.Workers,
		grace:    opts.Grace,
		monitor:  opts.Monitor,
		onResult: opts.OnResult,
		pending:  make(map[string]bool),
		running:  make(map[string]bool),
		again:    make(map[string]bool),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Run consumes events until ctx is done or events is closed, then drains
// the queue. Work already queued when ctx is cancelled still completes unless
// the grace period runs out, in which case the rest is dropped and
// ErrDrainTimeout is returned.
func (p *Pool) Run(ctx context.Context, events <-chan watcher.Event) error {
	// Workers outlive ctx so in-flight renders can finish.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	metrics.PipelineWorkers.Set(float64(p.workers))
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.work(workCtx)
		}()
	}

	p.consume(ctx, workCtx, events)
	p.close()

	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
	}

	logging.Info("Draining pipeline (%d queued)...", p.Queued())
	select {
	case <-drained:
		return nil
	case <-time.After(p.grace):
		dropped := p.dropQueued()
		cancelWork()
		<-drained
		return fmt.Errorf("%w after %v, %d files dropped", ErrDrainTimeout, p.grace, dropped)
	}
}

func (p *Pool) consume(ctx, workCtx context.Context, events <-chan watcher.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case watcher.DirectoryAppeared:
				_, _ = p.proc.RegisterDirectory(workCtx, ev.Path)
			case watcher.FileChanged:
				p.Submit(ev.Path)
			}
		}
	}
}

// Submit queues path unless it is already queued. A path that is running is
// queued once more after it finishes.
func (p *Pool) Submit(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.closed:
		return
	case p.pending[path]:
		metrics.PipelineCoalescedTotal.Inc()
	case p.running[path]:
		if p.again[path] {
			metrics.PipelineCoalescedTotal.Inc()
			return
		}
		p.again[path] = true
	default:
		p.enqueueLocked(path)
	}
}

// Queued returns the number of paths waiting for a worker.
func (p *Pool) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}

func (p *Pool) enqueueLocked(path string) {
	p.pending[path] = true
	p.order = append(p.order, path)
	p.cond.Signal()
}

func (p *Pool) close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
}

func (p *Pool) dropQueued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.order)
	for _, path := range p.order {
		delete(p.pending, path)
	}
	p.order = nil
	clear(p.again)
	return n
}

// next blocks for the next path. ok is false once the pool is closed and empty.
func (p *Pool) next() (path string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.order) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.order) == 0 {
		return "", false
	}
	path = p.order[0]
	p.order = p.order[1:]
	delete(p.pending, path)
	p.running[path] = true
	return path, true
}

func (p *Pool) finished(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.running, path)
	if p.again[path] {
		delete(p.again, path)
		// Re-queue even when closed: the event arrived before shutdown.
		p.enqueueLocked(path)
	}
}

func (p *Pool) work(ctx context.Context) {
	for {
		path, ok := p.next()
		if !ok {
			return
		}

		if err := p.monitor.Wait(ctx); err != nil {
			logging.Warn("Skipping %s: %v", path, err)
			p.finished(path)
			continue
		}

		metrics.PipelineInFlight.Inc()
		res := p.proc.Process(ctx, path)
		metrics.PipelineInFlight.Dec()
		p.finished(path)

		if p.onResult != nil {
			p.onResult(res)
		}
	}
}
