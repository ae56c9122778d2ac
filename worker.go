package upscale

import (
	"context"
	"errors"
	"sync"
)

// ErrWorkerClosed is returned by Submit after Close.
var ErrWorkerClosed = errors.New("upscale: worker closed")

// Worker runs upscale requests one at a time on a single goroutine. A GPU
// context serves one dispatch at a time, so concurrent callers share a
// Worker instead of racing for the device.
//
// Thread safety: Worker is safe for concurrent use.
type Worker struct {
	opts []Option
	jobs chan job
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

type job struct {
	ctx   context.Context
	req   Request
	reply chan jobResult
}

type jobResult struct {
	res Result
	err error
}

// NewWorker starts a worker. opts apply to every request, before the
// request's own options.
func NewWorker(opts ...Option) *Worker {
	w := &Worker{
		opts: append([]Option(nil), opts...),
		jobs: make(chan job),
		done: make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case j := <-w.jobs:
			j.reply <- w.run(j)
		}
	}
}

func (w *Worker) run(j job) jobResult {
	// The submitter may have given up while the job was waiting.
	if err := j.ctx.Err(); err != nil {
		return jobResult{err: err}
	}
	req := j.req
	req.Options = append(append([]Option(nil), w.opts...), req.Options...)

	res, err := Run(context.WithoutCancel(j.ctx), req)
	return jobResult{res: res, err: err}
}

// Submit queues req and waits for its result. ctx bounds the wait for the
// worker and for the result; a dispatch already running is not interrupted
// and its result is discarded if ctx ends first.
func (w *Worker) Submit(ctx context.Context, req Request) (Result, error) {
	reply := make(chan jobResult, 1)

	select {
	case <-w.done:
		return Result{}, ErrWorkerClosed
	default:
	}

	select {
	case w.jobs <- job{ctx: ctx, req: req, reply: reply}:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-w.done:
		return Result{}, ErrWorkerClosed
	}

	select {
	case r := <-reply:
		return r.res, r.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Close stops the worker after the running request, if any, finishes.
// Close is safe to call multiple times.
func (w *Worker) Close() {
	w.once.Do(func() {
		close(w.done)
	})
	w.wg.Wait()
}
