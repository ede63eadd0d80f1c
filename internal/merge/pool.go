package merge

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cdtdelta/easlog/internal/easparser"
)

// ParseFunc parses one file. It runs on a pool worker.
type ParseFunc func(ctx context.Context, path string) (*easparser.ReadResult, error)

// Future is the handle for one submitted file.
type Future struct {
	Path string
	done chan outcome
}

type outcome struct {
	res *easparser.ReadResult
	err error
}

// Wait blocks until the task has finished and returns its result. A task
// error is returned as a *TaskError.
func (f *Future) Wait() (*easparser.ReadResult, error) {
	o := <-f.done
	// keep the value for repeated Waits
	f.done <- o
	if o.err != nil {
		return nil, &TaskError{Path: f.Path, Err: o.err}
	}
	return o.res, nil
}

type job struct {
	path  string
	parse ParseFunc
	fut   *Future
}

// Pool runs parse tasks on a fixed number of workers.
type Pool struct {
	ctx  context.Context
	jobs chan job
	eg   *errgroup.Group

	mu     sync.Mutex
	closed bool
}

// NewPool starts workers goroutines. Tasks that have not started when ctx
// is cancelled fail with the context's error.
func NewPool(ctx context.Context, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		ctx:  ctx,
		jobs: make(chan job),
		eg:   &errgroup.Group{},
	}
	for i := 0; i < workers; i++ {
		p.eg.Go(func() error {
			for j := range p.jobs {
				j.fut.done <- runTask(p.ctx, j)
			}
			return nil
		})
	}
	return p
}

// Submit queues path for parsing. It blocks while every worker is busy.
func (p *Pool) Submit(path string, parse ParseFunc) *Future {
	fut := &Future{Path: path, done: make(chan outcome, 1)}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		fut.done <- outcome{err: errPoolClosed}
		return fut
	}
	p.jobs <- job{path: path, parse: parse, fut: fut}
	return fut
}

// Shutdown stops accepting tasks and waits for the workers to drain the
// queue.
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	return p.eg.Wait()
}

func runTask(ctx context.Context, j job) (o outcome) {
	defer func() {
		if r := recover(); r != nil {
			o = outcome{err: fmt.Errorf("panic: %v\n%s", r, debug.Stack())}
		}
	}()

	if err := ctx.Err(); err != nil {
		return outcome{err: err}
	}
	res, err := j.parse(ctx, j.path)
	if err == nil && res == nil {
		err = fmt.Errorf("parser returned no result")
	}
	return outcome{res: res, err: err}
}
