package executor

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/openmined/syncengine/internal/errs"
)

// pool is the Job Manager of spec §4.8: a fixed-size worker pool enforcing
// parent-before-child ordering between dependent jobs, draining completions
// onto a single terminated-jobs channel the caller consumes.
//
// Every job gets its own goroutine up front rather than being fed through a
// bounded work channel; true concurrency is capped by sem, not by the
// number of goroutines in flight. Parked goroutines waiting on a parent or
// on the semaphore are cheap enough in Go that the original's separate
// "don't queue past 2x poolSize" submission throttle isn't needed here.
type pool struct {
	sem *semaphore.Weighted
	run func(ctx context.Context, j *Job) Result

	mu        sync.Mutex
	done      map[int64]chan struct{}
	succeeded map[int64]bool
	results   map[int64]Result
}

func newPool(size int, run func(ctx context.Context, j *Job) Result) *pool {
	if size <= 0 {
		size = 1
	}
	return &pool{
		sem:       semaphore.NewWeighted(int64(size)),
		run:       run,
		done:      make(map[int64]chan struct{}),
		succeeded: make(map[int64]bool),
		results:   make(map[int64]Result),
	}
}

// Run launches every job's goroutine and returns the channel of completions;
// the channel is closed once every job has reported exactly once.
func (p *pool) Run(ctx context.Context, jobs []*Job) <-chan Result {
	results := make(chan Result, len(jobs))

	p.mu.Lock()
	for _, j := range jobs {
		p.done[j.ID] = make(chan struct{})
	}
	p.mu.Unlock()

	eg, egCtx := errgroup.WithContext(ctx)
	for _, job := range jobs {
		job := job
		eg.Go(func() error {
			results <- p.runOne(egCtx, job)
			return nil
		})
	}

	go func() {
		_ = eg.Wait()
		close(results)
	}()

	return results
}

func (p *pool) runOne(ctx context.Context, j *Job) Result {
	var res Result
	defer func() {
		p.mu.Lock()
		p.succeeded[j.ID] = res.Info.IsOk()
		p.results[j.ID] = res
		p.mu.Unlock()
		close(p.doneChan(j.ID))
	}()

	if j.ParentID != 0 {
		parent := p.doneChan(j.ParentID)
		select {
		case <-parent:
		case <-ctx.Done():
			res = Result{Job: j, Info: errs.New(errs.Ok, errs.CauseOperationCanceled, ctx.Err())}
			return res
		}
		if !p.parentSucceeded(j.ParentID) {
			res = Result{Job: j, Info: errs.New(errs.Ok, errs.CauseOperationCanceled, nil)}
			return res
		}
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		res = Result{Job: j, Info: errs.New(errs.Ok, errs.CauseOperationCanceled, ctx.Err())}
		return res
	}
	defer p.sem.Release(1)

	if ctx.Err() != nil {
		res = Result{Job: j, Info: errs.New(errs.Ok, errs.CauseOperationCanceled, ctx.Err())}
		return res
	}

	res = p.run(ctx, j)
	return res
}

func (p *pool) parentSucceeded(id int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	ok, known := p.succeeded[id]
	return !known || ok // unknown parent (finished a prior round) is assumed fine
}

// resultFor returns the stored Result for a job id that has already
// finished, used by a child job to read its parent's RemoteID.
func (p *pool) resultFor(id int64) (Result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	res, ok := p.results[id]
	return res, ok
}

func (p *pool) doneChan(id int64) chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.done[id]
	if !ok {
		// No job with this id was scheduled this round (e.g. a parent that
		// already finished in a prior batch); treat as already-done.
		ch = make(chan struct{})
		close(ch)
		p.done[id] = ch
	}
	return ch
}
