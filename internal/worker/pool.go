package worker

import (
	"context"
	"sync"
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

// sequenced pairs a job or result with its submission order
type sequenced[T any] struct {
	seq  int
	item T
}

// Pool manages a bounded set of workers that execute jobs concurrently.
// Results are returned in submission order.
type Pool struct {
	workers    int
	jobQueue   chan sequenced[Job]
	results    chan sequenced[Result]
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once
	submitted  int

	collected map[int]Result
	collectWG sync.WaitGroup
}

// NewPool creates a pool bound to ctx with the specified number of workers
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan sequenced[Job], workers*2), // Buffered to prevent blocking
		results:    make(chan sequenced[Result], workers*2),
		ctx:        ctx,
		cancelFunc: cancel,
		collected:  make(map[int]Result),
	}
}

// Start starts the worker goroutines and the result collector
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	// Draining results as they arrive keeps workers from blocking on a full
	// results channel while Submit is still feeding the queue
	p.collectWG.Add(1)
	go func() {
		defer p.collectWG.Done()
		for r := range p.results {
			p.collected[r.seq] = r.item
		}
	}()
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			result := job.item.Execute(p.ctx)
			p.results <- sequenced[Result]{seq: job.seq, item: result}
		}
	}
}

// Submit queues a job. Jobs submitted after cancellation are dropped.
// Submit must not be called concurrently with itself or Wait.
func (p *Pool) Submit(job Job) {
	seq := p.submitted
	p.submitted++
	select {
	case <-p.ctx.Done():
		return
	case p.jobQueue <- sequenced[Job]{seq: seq, item: job}:
	}
}

// Wait closes the queue, waits for all workers and returns one slot per
// submitted job in submission order. Slots for jobs that never ran are nil.
func (p *Pool) Wait() []Result {
	close(p.jobQueue)
	p.wg.Wait()
	p.closeResults()
	p.collectWG.Wait()
	p.cancelFunc()

	ordered := make([]Result, p.submitted)
	for seq, r := range p.collected {
		ordered[seq] = r
	}
	return ordered
}

// Shutdown stops the pool immediately. Jobs already running finish; queued
// jobs are dropped.
func (p *Pool) Shutdown() {
	p.cancelFunc()
	p.wg.Wait()
	p.closeResults()
	p.collectWG.Wait()
}

func (p *Pool) closeResults() {
	p.closeOnce.Do(func() {
		close(p.results)
	})
}

// Run executes jobs on a fresh pool and returns their results in order
func Run(ctx context.Context, workers int, jobs []Job) []Result {
	if len(jobs) == 0 {
		return []Result{}
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	pool := NewPool(ctx, workers)
	pool.Start()
	for _, job := range jobs {
		pool.Submit(job)
	}
	return pool.Wait()
}
