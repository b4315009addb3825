package qrecover

import "time"

// Job is one trial handed to the pool: an index and the batch of shots it executes.
type Job struct {
	ID    int
	Shots int
}

// TrialOutcome is what one successful trial contributes to its worker's aggregate.
type TrialOutcome struct {
	Counts   Distribution
	Offset   int
	Attempts int
	Duration time.Duration
}

/*
Aggregate is a fold of trial outcomes. Each worker owns one and the pool reduces them
after every worker has finished, so no aggregate is ever shared while it is mutated.
*/
type Aggregate struct {
	Raw       Distribution
	Recovered Distribution
	Shots     int
	Trials    int
	Attempts  int
	Offsets   map[int]int
}

// NewAggregate returns an empty aggregate.
func NewAggregate() *Aggregate {
	return &Aggregate{
		Raw:       NewDistribution(),
		Recovered: NewDistribution(),
		Offsets:   make(map[int]int),
	}
}

/*
Fold adds one trial to the aggregate. Every raw outcome is added unchanged and its block
bits, extracted at the trial's offset, are added to the recovered distribution.

Parameters:
  - layout: the register and block widths the outcomes were produced under
  - outcome: the successful trial

Returns:
  - error: ErrKeyWidth or ErrInvalidPlacement when an outcome does not match the layout
*/
func (a *Aggregate) Fold(layout KeyLayout, outcome *TrialOutcome) error {
	for key, count := range outcome.Counts {
		blockKey, err := layout.Extract(key, outcome.Offset)
		if err != nil {
			return err
		}
		a.Raw.Add(key, count)
		a.Recovered.Add(blockKey, count)
		a.Shots += count
	}

	a.Trials++
	a.Attempts += outcome.Attempts
	a.Offsets[outcome.Offset]++
	return nil
}

// Merge adds another aggregate into this one.
func (a *Aggregate) Merge(other *Aggregate) {
	if other == nil {
		return
	}
	a.Raw.Merge(other.Raw)
	a.Recovered.Merge(other.Recovered)
	a.Shots += other.Shots
	a.Trials += other.Trials
	a.Attempts += other.Attempts
	for offset, n := range other.Offsets {
		a.Offsets[offset] += n
	}
}
