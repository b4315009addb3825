package qrecover

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/theapemachine/errnie"
)

// TrialFunc runs one trial on behalf of a worker, drawing randomness only from w.Rand.
type TrialFunc func(ctx context.Context, w *Worker, job Job) (*TrialOutcome, error)

/*
Worker pulls trials off the pool's job channel and folds them into its own aggregate.
The worker owns its generator; before every trial it is reseeded from the run seed and
the trial index, so a trial draws the same offsets and filler no matter which worker
picks it up.
*/
type Worker struct {
	ID   int
	Rand *rand.Rand

	pool   *Pool
	src    *rand.PCG
	local  *Aggregate
	layout KeyLayout
}

func newWorker(pool *Pool, id int, layout KeyLayout) *Worker {
	src := rand.NewPCG(pool.seed, uint64(id))
	return &Worker{
		ID:     id,
		Rand:   rand.New(src),
		pool:   pool,
		src:    src,
		local:  NewAggregate(),
		layout: layout,
	}
}

func (w *Worker) run(fn TrialFunc) {
	for {
		select {
		case <-w.pool.ctx.Done():
			return
		case job, ok := <-w.pool.jobs:
			if !ok {
				return
			}
			if err := w.processJob(job, fn); err != nil {
				w.pool.fail(err)
				return
			}
		}
	}
}

func (w *Worker) processJob(job Job, fn TrialFunc) error {
	startTime := time.Now()
	w.src.Seed(w.pool.seed, uint64(job.ID))

	outcome, err := fn(w.pool.ctx, w, job)
	if err != nil {
		return err
	}
	if outcome.Duration == 0 {
		outcome.Duration = time.Since(startTime)
	}

	if err := w.local.Fold(w.layout, outcome); err != nil {
		return fmt.Errorf("trial %d at offset %d: %w", job.ID, outcome.Offset, err)
	}

	errnie.Debug(
		"worker %d trial %d done - offset %d, attempts %d, %v",
		w.ID, job.ID, outcome.Offset, outcome.Attempts, outcome.Duration,
	)
	return nil
}
