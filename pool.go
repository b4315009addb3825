package qrecover

import (
	"context"
	"runtime"
	"sync"

	"github.com/theapemachine/errnie"
)

/*
Pool runs the trials of one experiment on a fixed set of workers. Workers never share
an aggregate: each folds into its own and Wait reduces them once all have stopped. The
first error any worker reports cancels the shared context, which stops the feeder and
every other worker, and no aggregate is returned.
*/
type Pool struct {
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	jobs    chan Job
	workers []*Worker
	seed    uint64

	errOnce sync.Once
	err     error
}

/*
NewPool starts size workers (runtime.NumCPU() when size < 1).

Parameters:
  - ctx: parent context; cancelling it stops the run
  - size: number of workers
  - seed: run seed every worker derives its trial generators from
  - layout: key layout used to fold outcomes
  - fn: the trial body each worker executes
*/
func NewPool(ctx context.Context, size int, seed uint64, layout KeyLayout, fn TrialFunc) *Pool {
	if size < 1 {
		size = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &Pool{
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(chan Job, size*2),
		seed:   seed,
	}

	for i := 0; i < size; i++ {
		worker := newWorker(p, i, layout)
		p.workers = append(p.workers, worker)

		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			worker.run(fn)
		}()
	}

	return p
}

// Submit feeds jobs to the workers and closes the queue afterwards. It returns early if
// the run is cancelled.
func (p *Pool) Submit(jobs []Job) {
	defer close(p.jobs)

	for _, job := range jobs {
		select {
		case <-p.ctx.Done():
			return
		case p.jobs <- job:
		}
	}
}

/*
Wait blocks until every worker has stopped and reduces their local aggregates.

Returns:
  - *Aggregate: the sum of all worker aggregates, nil on error
  - error: the first worker error, or the parent context's error
*/
func (p *Pool) Wait() (*Aggregate, error) {
	p.wg.Wait()
	defer p.cancel()

	if p.err != nil {
		return nil, p.err
	}
	if err := p.ctx.Err(); err != nil {
		return nil, err
	}

	total := NewAggregate()
	for _, worker := range p.workers {
		total.Merge(worker.local)
	}
	return total, nil
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// fail records the first error and cancels the run.
func (p *Pool) fail(err error) {
	p.errOnce.Do(func() {
		p.err = err
		errnie.Warn("cancelling run: %v", err)
		p.cancel()
	})
}
