package qrecover

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/theapemachine/errnie"
)

var (
	// ErrInvalidConfig is wrapped by every ConfigError.
	ErrInvalidConfig = errors.New("invalid experiment configuration")
	// ErrTrialExhausted is wrapped by a TrialError once a trial used up its attempts.
	ErrTrialExhausted = errors.New("trial exhausted its attempts")
	// ErrUnknownMode is returned by ParseMode.
	ErrUnknownMode = errors.New("unknown experiment mode")
)

// Mode selects how the gate block is placed across trials.
type Mode int

const (
	// Baseline places the block at the canonical offset with no filler and runs every shot at once.
	Baseline Mode = iota
	// Static keeps the canonical offset and surrounds the block with fresh filler every trial.
	Static
	// Dynamic draws a uniformly random offset and fresh filler every trial.
	Dynamic
)

func (m Mode) String() string {
	switch m {
	case Baseline:
		return "baseline"
	case Static:
		return "static"
	case Dynamic:
		return "dynamic"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode maps a mode name back to its Mode.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "baseline":
		return Baseline, nil
	case "static":
		return Static, nil
	case "dynamic":
		return Dynamic, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, name)
}

/*
Experiment is one run of the harness: a gate block inside a register of Qubits qubits,
S total shots in batches of BatchSize, placed according to Mode.
*/
type Experiment struct {
	Name            string
	Qubits          int
	Block           *GateBlock
	Shots           int
	BatchSize       int
	FillerDepth     int
	Mode            Mode
	CanonicalOffset int
	MaxAttempts     int
	Workers         int
	Seed            uint64
	PartialBatch    bool
}

// Layout returns the key layout of the experiment's register and block.
func (exp Experiment) Layout() KeyLayout {
	width := 0
	if exp.Block != nil {
		width = exp.Block.Width()
	}
	return KeyLayout{Qubits: exp.Qubits, Width: width}
}

/*
Jobs splits the shot budget into trials. Baseline is a single job of every shot;
otherwise there are S / b jobs of b shots, plus one of S % b shots when PartialBatch is
set and the budget does not divide evenly.
*/
func (exp Experiment) Jobs() []Job {
	if exp.Mode == Baseline {
		return []Job{{ID: 0, Shots: exp.Shots}}
	}

	trials := exp.Shots / exp.BatchSize
	jobs := make([]Job, 0, trials+1)
	for i := 0; i < trials; i++ {
		jobs = append(jobs, Job{ID: i, Shots: exp.BatchSize})
	}
	if rest := exp.Shots % exp.BatchSize; exp.PartialBatch && rest > 0 {
		jobs = append(jobs, Job{ID: trials, Shots: rest})
	}
	return jobs
}

// ConfigError names the experiment field that failed validation.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrInvalidConfig, e.Field, e.Err)
}

func (e *ConfigError) Unwrap() []error {
	return []error{ErrInvalidConfig, e.Err}
}

/*
Validate checks the experiment before any executor call.

Returns:
  - error: a *ConfigError describing the first problem found
*/
func (exp Experiment) Validate() error {
	if exp.Block == nil {
		return &ConfigError{Field: "block", Err: ErrInvalidGate}
	}
	if err := exp.Layout().Validate(exp.CanonicalOffset); err != nil {
		return &ConfigError{Field: "canonical_offset", Err: err}
	}
	if exp.Shots < 1 {
		return &ConfigError{Field: "shots", Err: fmt.Errorf("%w: %d", ErrInvalidShots, exp.Shots)}
	}
	if exp.MaxAttempts < 0 {
		return &ConfigError{Field: "max_attempts", Err: fmt.Errorf("must not be negative, got %d", exp.MaxAttempts)}
	}

	switch exp.Mode {
	case Baseline:
		return nil
	case Static, Dynamic:
	default:
		return &ConfigError{Field: "mode", Err: fmt.Errorf("%w: %d", ErrUnknownMode, int(exp.Mode))}
	}

	if exp.BatchSize < 1 {
		return &ConfigError{Field: "batch_size", Err: fmt.Errorf("must be at least 1, got %d", exp.BatchSize)}
	}
	if exp.FillerDepth < 1 {
		return &ConfigError{Field: "filler_depth", Err: fmt.Errorf("%w: %d", ErrInvalidDepth, exp.FillerDepth)}
	}
	if len(exp.Jobs()) == 0 {
		return &ConfigError{
			Field: "batch_size",
			Err:   fmt.Errorf("batch of %d leaves no trials in a budget of %d shots", exp.BatchSize, exp.Shots),
		}
	}
	return nil
}

// TrialError reports the trial that used up its attempts and the placement of its last attempt.
type TrialError struct {
	Trial    int
	Offset   int
	Attempts int
	Err      error
}

func (e *TrialError) Error() string {
	return fmt.Sprintf(
		"trial %d (offset %d) failed after %d attempts: %v",
		e.Trial, e.Offset, e.Attempts, e.Err,
	)
}

func (e *TrialError) Unwrap() []error {
	return []error{ErrTrialExhausted, e.Err}
}

// Result is what a completed run returns. Partial runs never produce one.
type Result struct {
	ID        uuid.UUID
	Name      string
	Mode      Mode
	Layout    KeyLayout
	Raw       Distribution
	Recovered Distribution
	Shots     int
	Trials    int
	Attempts  int
	Offsets   map[int]int
	Elapsed   time.Duration
}

/*
Runner executes experiments against one Executor. Breaker, when set, is shared by every
trial of every run on this Runner, so a dead backend stops all of them.
*/
type Runner struct {
	Executor Executor
	Filler   FillerGenerator
	Metrics  *Metrics
	Breaker  *CircuitBreaker
	Backoff  RetryStrategy
}

/*
NewRunner returns a runner over exec with the default random filler and a fresh Metrics.
*/
func NewRunner(exec Executor) *Runner {
	// DefaultFillerGates holds single-qubit gates, the only way NewRandomFiller can fail.
	filler, _ := NewRandomFiller(2)
	return &Runner{
		Executor: exec,
		Filler:   filler,
		Metrics:  NewMetrics(),
		Backoff:  NoBackoff{},
	}
}

/*
Run executes exp and returns the aggregated result.

Parameters:
  - ctx: cancelling it abandons the run
  - exp: the experiment to run

Returns:
  - *Result: raw and recovered aggregates over every executed shot
  - error: a *ConfigError before any execution, a *TrialError once a trial used up its
    attempts, or the first non-retryable failure; a failed run never returns a Result
*/
func (r *Runner) Run(ctx context.Context, exp Experiment) (*Result, error) {
	if err := exp.Validate(); err != nil {
		return nil, err
	}
	if r.Executor == nil {
		return nil, &ConfigError{Field: "executor", Err: errors.New("no executor configured")}
	}
	if exp.Mode != Baseline && r.Filler == nil {
		return nil, &ConfigError{Field: "filler", Err: errors.New("no filler generator configured")}
	}
	if exp.MaxAttempts == 0 {
		exp.MaxAttempts = DefaultMaxAttempts
	}
	if exp.Seed == 0 {
		exp.Seed = rand.Uint64()
	}

	workers := exp.Workers
	if exp.Mode == Baseline {
		workers = 1
	}

	jobs := exp.Jobs()
	errnie.Info(
		"running %s %s - %d qubits, block %q width %d, %d trials, %d shots",
		exp.Name, exp.Mode, exp.Qubits, exp.Block.Name, exp.Block.Width(), len(jobs), exp.Shots,
	)

	startTime := time.Now()
	pool := NewPool(ctx, workers, exp.Seed, exp.Layout(), r.trial(exp))
	pool.Submit(jobs)

	total, err := pool.Wait()
	if err != nil {
		return nil, err
	}

	result := &Result{
		ID:        uuid.New(),
		Name:      exp.Name,
		Mode:      exp.Mode,
		Layout:    exp.Layout(),
		Raw:       total.Raw,
		Recovered: total.Recovered,
		Shots:     total.Shots,
		Trials:    total.Trials,
		Attempts:  total.Attempts,
		Offsets:   total.Offsets,
		Elapsed:   time.Since(startTime),
	}

	errnie.Info(
		"%s %s done - run %s, %d shots over %d trials, %d attempts, %v",
		exp.Name, exp.Mode, result.ID, result.Shots, result.Trials, result.Attempts, result.Elapsed,
	)
	return result, nil
}

// trial returns the body every pool worker runs for one job of exp.
func (r *Runner) trial(exp Experiment) TrialFunc {
	exec := Guarded(r.Executor, r.Breaker)
	metrics := r.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}

	return func(ctx context.Context, w *Worker, job Job) (*TrialOutcome, error) {
		startTime := time.Now()

		var (
			offset int
			counts Distribution
		)

		policy := RetryPolicy{
			MaxAttempts: exp.MaxAttempts,
			Strategy:    r.Backoff,
			Filter:      RetryExecution,
			OnFailure: func(attempt int, err error) {
				errnie.Debug(
					"%s trial %d attempt %d at offset %d failed: %v",
					exp.Mode, job.ID, attempt+1, offset, err,
				)
			},
		}

		attempts, err := Retry(ctx, policy, func(attempt int) error {
			offset = r.placement(exp, w.Rand)

			qc, err := r.build(exp, offset, w.Rand)
			if err != nil {
				return err
			}

			counts, err = exec.Execute(ctx, qc, job.Shots)
			metrics.RecordAttempt(exp.Mode, err)
			return err
		})

		switch {
		case err == nil:
		case errors.Is(err, ErrAttemptsExhausted):
			return nil, &TrialError{Trial: job.ID, Offset: offset, Attempts: attempts, Err: err}
		default:
			return nil, fmt.Errorf("trial %d (offset %d): %w", job.ID, offset, err)
		}

		duration := time.Since(startTime)
		metrics.RecordTrial(exp.Mode, duration)

		return &TrialOutcome{
			Counts:   counts,
			Offset:   offset,
			Attempts: attempts,
			Duration: duration,
		}, nil
	}
}

// placement picks the offset of one attempt.
func (r *Runner) placement(exp Experiment, rng *rand.Rand) int {
	if exp.Mode != Dynamic {
		return exp.CanonicalOffset
	}
	return rng.IntN(exp.Layout().Offsets())
}

/*
build composes the circuit of one attempt: the block at offset, filler on the qubits
below and above it when the mode calls for filler, and the final measurement of every
qubit.
*/
func (r *Runner) build(exp Experiment, offset int, rng *rand.Rand) (*Circuit, error) {
	qc, err := Compose(exp.Qubits, exp.Block, offset, false)
	if err != nil {
		return nil, err
	}

	if exp.Mode != Baseline {
		placement := Placement{Qubits: exp.Qubits, Offset: offset, Width: exp.Block.Width()}

		for _, qubits := range [][]int{placement.Before(), placement.After()} {
			if len(qubits) == 0 {
				continue
			}
			frag, err := r.Filler.Generate(len(qubits), exp.FillerDepth, rng)
			if err != nil {
				return nil, err
			}
			if err := qc.ComposeFragment(frag, qubits); err != nil {
				return nil, err
			}
		}
	}

	qc.MeasureAll()
	return qc, nil
}
