package background

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrQueueFull = errors.New("background: queue full")
	ErrClosed    = errors.New("background: dispatcher closed")
)

// Pool runs jobs on a fixed number of in-process workers.
type Pool struct {
	handler    Handler
	jobs       chan Job
	jobTimeout time.Duration
	logger     Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewPool(workers, queueSize int, jobTimeout time.Duration, handler Handler, logger Logger) *Pool {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = workers * 2
	}
	p := &Pool{
		handler:    handler,
		jobs:       make(chan Job, queueSize),
		jobTimeout: jobTimeout,
		logger:     logger,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work(i)
	}
	return p
}

// Dispatch enqueues job without waiting; a full queue is an error rather
// than back pressure on the caller.
func (p *Pool) Dispatch(ctx context.Context, job Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	select {
	case p.jobs <- job:
		return nil
	default:
		p.logger.Warn("Background queue full, dropping job", "job_id", job.ID, "kind", job.Kind)
		return ErrQueueFull
	}
}

// Close stops intake and waits for queued jobs until ctx expires.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) work(workerID int) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.run(workerID, job)
	}
}

func (p *Pool) run(workerID int, job Job) {
	ctx := context.Background()
	if p.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.jobTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Background job panicked", "worker", workerID, "job_id", job.ID, "panic", r)
		}
	}()

	start := time.Now()
	if err := p.handler(ctx, job); err != nil {
		p.logger.Error("Background job failed", "worker", workerID, "job_id", job.ID, "kind", job.Kind, "cost", time.Since(start), "error", err)
		return
	}
	p.logger.Debug("Background job done", "worker", workerID, "job_id", job.ID, "cost", time.Since(start))
}
