// Package worker provides the asynchronous execution pool for collection
// jobs. The pool processes one job at a time; this serialization is what the
// scheduler's overlap guard and the ingestor's dedup approach rely on.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Runner executes one job end to end. Implemented by jobs.Runner.
type Runner interface {
	Run(ctx context.Context, jobID uuid.UUID)
}

// ErrQueueFull is returned when the dispatch queue cannot accept more work.
var ErrQueueFull = errors.New("work queue is full")

type task struct {
	jobID uuid.UUID
	ref   string
}

// Pool dispatches jobs to a single worker goroutine. Dispatch returns an
// opaque task reference; Cancel uses it to signal the running task's context.
type Pool struct {
	runner Runner
	log    *slog.Logger
	queue  chan task

	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	wg sync.WaitGroup
}

// NewPool creates a pool with the given queue capacity.
func NewPool(runner Runner, queueSize int, log *slog.Logger) *Pool {
	if queueSize <= 0 {
		queueSize = 16
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pool{
		runner:  runner,
		log:     log,
		queue:   make(chan task, queueSize),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Start runs the worker loop until ctx is done. It processes one task at a
// time.
func (p *Pool) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-p.queue:
				p.runTask(ctx, t)
			}
		}
	}()
}

// Wait blocks until the worker loop has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Dispatch enqueues a job for execution and returns the task reference used
// for cancellation.
func (p *Pool) Dispatch(jobID uuid.UUID) (string, error) {
	t := task{jobID: jobID, ref: uuid.NewString()}
	select {
	case p.queue <- t:
		return t.ref, nil
	default:
		return "", ErrQueueFull
	}
}

// Cancel signals the task with the given reference to stop. It reports
// whether a running task was found; cancellation of queued tasks is handled
// by the runner observing the job's terminal status at dequeue time.
func (p *Pool) Cancel(ref string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	cancel, ok := p.cancels[ref]
	if !ok {
		return false
	}
	cancel()
	return true
}

func (p *Pool) runTask(ctx context.Context, t task) {
	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	p.cancels[t.ref] = cancel
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.cancels, t.ref)
		p.mu.Unlock()
	}()

	p.log.Info("executing job", "job_id", t.jobID, "task_ref", t.ref)
	p.runner.Run(taskCtx, t.jobID)
}
