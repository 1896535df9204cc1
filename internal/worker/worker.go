// Package worker runs slow side work (encoding, printing, file writes) off
// the run loop on a bounded pool.
package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"github.com/sweeney/photobooth/internal/logger"
)

// Task is one unit of work. Name is used in logs.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Stats counts task outcomes.
type Stats struct {
	Submitted uint64
	Dropped   uint64
	Failed    uint64
	Completed uint64
}

// Pool runs tasks on at most n goroutines. Submit never blocks: tasks wait
// in a bounded queue and are dropped when it is full.
type Pool struct {
	ctx   context.Context
	log   *zerolog.Logger
	pool  *pool.Pool
	queue chan Task
	done  chan struct{}

	mu     sync.Mutex
	closed bool

	submitted atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
	completed atomic.Uint64
}

// New starts a pool with n workers and room for queue waiting tasks.
// ctx is passed to every task.
func New(ctx context.Context, n, queue int) *Pool {
	if n < 1 {
		n = 1
	}
	if queue < 0 {
		queue = 0
	}
	p := &Pool{
		ctx:   ctx,
		log:   logger.WithComponent("worker"),
		pool:  pool.New().WithMaxGoroutines(n),
		queue: make(chan Task, queue),
		done:  make(chan struct{}),
	}
	go p.dispatch()
	return p
}

// dispatch hands queued tasks to the pool, blocking while all workers are busy.
func (p *Pool) dispatch() {
	defer close(p.done)
	for t := range p.queue {
		t := t
		p.pool.Go(func() { p.run(t) })
	}
}

func (p *Pool) run(t Task) {
	var err error
	var pc panics.Catcher
	pc.Try(func() { err = t.Run(p.ctx) })
	if r := pc.Recovered(); r != nil {
		err = r.AsError()
	}

	if err != nil {
		p.failed.Add(1)
		p.log.Error().Err(err).Str("task", t.Name).Msg("task failed")
		return
	}
	p.completed.Add(1)
	p.log.Debug().Str("task", t.Name).Msg("task done")
}

// Submit queues t. It returns false if the queue is full or the pool is
// draining.
func (p *Pool) Submit(t Task) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.dropped.Add(1)
		p.log.Warn().Str("task", t.Name).Msg("pool draining, task dropped")
		return false
	}
	select {
	case p.queue <- t:
		p.submitted.Add(1)
		return true
	default:
		p.dropped.Add(1)
		p.log.Warn().Str("task", t.Name).Int("queued", len(p.queue)).Msg("queue full, task dropped")
		return false
	}
}

// Wait stops accepting tasks and blocks until every queued and running task
// has finished. It is safe to call more than once.
func (p *Pool) Wait() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	<-p.done
	p.pool.Wait()
}

// Stats returns a snapshot of the counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Dropped:   p.dropped.Load(),
		Failed:    p.failed.Load(),
		Completed: p.completed.Load(),
	}
}
