package qrecover

import (
	"errors"
	"sort"
)

var (
	// ErrInvalidShots is returned when a statistic is asked for a non-positive denominator.
	ErrInvalidShots = errors.New("shots must be positive")
	// ErrInvalidTopN is returned when DominantMass is asked for fewer than one state.
	ErrInvalidTopN = errors.New("top_n must be at least 1")
)

/*
TotalVariationDistance computes 0.5 * sum |a[k]/shots - b[k]/shots| over the union of keys.

Both distributions are normalised against the same shots denominator. Pass the shared
total explicitly when a and b were accumulated over different shot counts; it is never
inferred from either side.
*/
func TotalVariationDistance(a, b Distribution, shots int) (float64, error) {
	if shots <= 0 {
		return 0, ErrInvalidShots
	}

	// Counts share one denominator, so the absolute differences are summed as integers and
	// divided once. That keeps the result exact and independent of map iteration order.
	var diff int

	for key, countA := range a {
		diff += absInt(countA - b[key])
	}

	for key, countB := range b {
		if _, seen := a[key]; seen {
			continue
		}
		diff += absInt(countB)
	}

	return 0.5 * float64(diff) / float64(shots), nil
}

/*
DominantMass returns the percentage of shots captured by the topN most frequent outcomes.
A topN larger than the number of keys is fine; missing states contribute nothing.
*/
func DominantMass(d Distribution, shots, topN int) (float64, error) {
	if shots <= 0 {
		return 0, ErrInvalidShots
	}
	if topN < 1 {
		return 0, ErrInvalidTopN
	}

	counts := make([]int, 0, len(d))
	for _, count := range d {
		counts = append(counts, count)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(counts)))

	top := 0
	for i := 0; i < topN && i < len(counts); i++ {
		top += counts[i]
	}

	return float64(top) / float64(shots) * 100, nil
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Normalize converts counts to frequencies over shots.
func Normalize(d Distribution, shots int) map[string]float64 {
	out := make(map[string]float64, len(d))
	if shots <= 0 {
		return out
	}
	for key, count := range d {
		out[key] = float64(count) / float64(shots)
	}
	return out
}
