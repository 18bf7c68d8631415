// Package workerpool generalizes the fixed-size worker pool over a
// bounded channel that the original downloader hand-rolled in its Run
// method: a driver goroutine feeds a job channel, a fixed number of
// worker goroutines drain it and push results onto a result channel,
// and a single collector goroutine owns whatever side effect consuming
// the results requires. RangeFetcher and cmd/minhash-corpus's
// MinHasher pool are built on top of this; boilerplate extraction
// runs sequentially in cmd/extract-corpus and does not use it.
package workerpool

import (
	"context"
	"sync"
)

// Run drives jobs through a fixed-size pool of workers and collects
// their results in a single collector goroutine. It blocks until every
// job has been submitted, processed, and collected, or ctx is
// cancelled.
//
// jobs is consumed in order by the feeder; workers is the number of
// concurrent calls to process; collect is invoked once per result, on
// a single goroutine, so it may safely mutate shared state without its
// own locking.
func Run[J, R any](ctx context.Context, jobs []J, workers int, process func(context.Context, J) R, collect func(R)) {
	if workers < 1 {
		workers = 1
	}

	jobsCh := make(chan J)
	resultsCh := make(chan R)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobsCh {
				resultsCh <- process(ctx, j)
			}
		}()
	}

	var collectDone sync.WaitGroup
	collectDone.Add(1)
	go func() {
		defer collectDone.Done()
		for r := range resultsCh {
			collect(r)
		}
	}()

	go func() {
		defer close(jobsCh)
		for _, j := range jobs {
			select {
			case jobsCh <- j:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(resultsCh)
	collectDone.Wait()
}

// Pool is a reusable worker pool for streaming use, where jobs are
// submitted incrementally via Submit rather than supplied up front as
// a slice. Call Close after the last Submit to let Wait return.
type Pool[J, R any] struct {
	jobsCh    chan J
	resultsCh chan R
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewPool starts a Pool with the given number of workers, each running
// process on jobs submitted via Submit. Results are delivered on the
// Results channel; the caller is responsible for draining it.
func NewPool[J, R any](ctx context.Context, workers int, process func(context.Context, J) R) *Pool[J, R] {
	if workers < 1 {
		workers = 1
	}
	p := &Pool[J, R]{
		jobsCh:    make(chan J),
		resultsCh: make(chan R),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for j := range p.jobsCh {
				select {
				case p.resultsCh <- process(ctx, j):
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		p.wg.Wait()
		close(p.resultsCh)
	}()
	return p
}

// Submit enqueues a job. It blocks if every worker is busy.
func (p *Pool[J, R]) Submit(j J) {
	p.jobsCh <- j
}

// Close signals that no further jobs will be submitted. Safe to call
// more than once.
func (p *Pool[J, R]) Close() {
	p.closeOnce.Do(func() { close(p.jobsCh) })
}

// Results returns the channel results are delivered on; it is closed
// once every worker has exited after Close.
func (p *Pool[J, R]) Results() <-chan R {
	return p.resultsCh
}
