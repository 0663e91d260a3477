package planner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"gridnav.dev/internal/sim/grid"
	"gridnav.dev/internal/sim/pathfind"
)

var (
	ErrClosed = errors.New("planner: closed")
	ErrBusy   = errors.New("planner: queue full")
)

// Searcher is satisfied by *pathfind.AStar. Jobs carry their own searcher so
// each one sees the grid snapshot that was current when it was submitted.
type Searcher interface {
	Search(ctx context.Context, start, target grid.Coord) (pathfind.Result, error)
}

type Job struct {
	ID       uint64
	EntityID string
	Start    grid.Coord
	Target   grid.Coord
	Searcher Searcher
}

type Outcome struct {
	Job      Job
	Result   pathfind.Result
	Canceled bool
	TimedOut bool
	// Busy marks a job that was never run because the queue was full.
	Busy bool
	Took time.Duration
}

type Config struct {
	Workers int
	Queue   int
	// Timeout bounds a single search's wall-clock time. Zero disables it.
	Timeout time.Duration
}

type pending struct {
	job    Job
	ctx    context.Context
	cancel context.CancelFunc
}

// Planner runs searches off the caller's goroutine. Results are delivered on
// Results() in completion order; consumers match them to requests by Job.ID.
type Planner struct {
	cfg     Config
	jobs    chan *pending
	results chan Outcome

	mu      sync.Mutex
	closed  bool
	cancels map[uint64]context.CancelFunc

	inFlight atomic.Int64
	done     atomic.Uint64
}

func New(cfg Config) *Planner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Queue <= 0 {
		cfg.Queue = 64
	}
	return &Planner{
		cfg:     cfg,
		jobs:    make(chan *pending, cfg.Queue),
		results: make(chan Outcome, cfg.Queue+cfg.Workers),
		cancels: map[uint64]context.CancelFunc{},
	}
}

func (p *Planner) Results() <-chan Outcome { return p.results }

// Run starts the workers and blocks until ctx is done.
func (p *Planner) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		g.Go(func() error {
			p.worker(gctx)
			return nil
		})
	}
	err := g.Wait()
	p.Close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Submit enqueues a job without blocking. The returned func cancels it; a
// canceled job still produces an Outcome with Canceled set.
func (p *Planner) Submit(job Job) (func(), error) {
	ctx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		cancel()
		return nil, ErrClosed
	}
	select {
	case p.jobs <- &pending{job: job, ctx: ctx, cancel: cancel}:
		p.cancels[job.ID] = cancel
		p.mu.Unlock()
	default:
		p.mu.Unlock()
		cancel()
		return nil, ErrBusy
	}
	return cancel, nil
}

// Cancel cancels a job by id if it has not finished yet.
func (p *Planner) Cancel(id uint64) {
	p.mu.Lock()
	cancel := p.cancels[id]
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Close rejects new work and cancels everything outstanding.
func (p *Planner) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for _, cancel := range p.cancels {
		cancel()
	}
}

type Stats struct {
	Queued   int
	InFlight int
	Done     uint64
}

func (p *Planner) Stats() Stats {
	return Stats{
		Queued:   len(p.jobs),
		InFlight: int(p.inFlight.Load()),
		Done:     p.done.Load(),
	}
}

func (p *Planner) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case pj := <-p.jobs:
			out := p.execute(ctx, pj)
			select {
			case p.results <- out:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (p *Planner) execute(runCtx context.Context, pj *pending) Outcome {
	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	defer p.forget(pj.job.ID)

	sctx := pj.ctx
	stop := context.AfterFunc(runCtx, pj.cancel)
	defer stop()
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(sctx, p.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := pj.job.Searcher.Search(sctx, pj.job.Start, pj.job.Target)
	out := Outcome{Job: pj.job, Result: res, Took: time.Since(start)}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		out.TimedOut = true
		out.Result = pathfind.Result{}
	case err != nil:
		out.Canceled = true
		out.Result = pathfind.Result{}
	}
	p.done.Add(1)
	return out
}

func (p *Planner) forget(id uint64) {
	p.mu.Lock()
	if cancel := p.cancels[id]; cancel != nil {
		cancel()
		delete(p.cancels, id)
	}
	p.mu.Unlock()
}
