package qrecover

import (
	"errors"
	"fmt"
)

// ErrNoResults is returned when Analyze is given nothing to compare.
var ErrNoResults = errors.New("no results to analyze")

// AnalysisInput gathers the results of one gate's experiments.
type AnalysisInput struct {
	Name            string
	Layout          KeyLayout
	CanonicalOffset int
	// Expected maps block-width keys to probabilities.
	Expected map[string]float64
	Baseline *Result
	Static   *Result
	Dynamic  *Result
	// TopN is the number of states summed for dominant mass; 0 picks DefaultTopN(Expected).
	TopN int
}

// Variant holds the comparison of one result against the expected distribution.
type Variant struct {
	Mode              Mode
	Shots             int
	Trials            int
	Attempts          int
	RawTVD            float64
	RecoveredTVD      float64
	RawDominant       float64
	RecoveredDominant float64
	Result            *Result
}

// Analysis is the comparison of every variant of one gate.
type Analysis struct {
	Name     string
	Layout   KeyLayout
	TopN     int
	Expected map[string]float64
	Variants []Variant
}

/*
DefaultTopN counts the outcomes whose probability is at least half of the most likely
one. That is 2 for GHZ, 3 for a W state and 1 for a Grover search that concentrates on a
single marked state.
*/
func DefaultTopN(expected map[string]float64) int {
	var peak float64
	for _, p := range expected {
		peak = max(peak, p)
	}

	n := 0
	for _, p := range expected {
		if p > 0 && p >= peak/2 {
			n++
		}
	}
	return max(n, 1)
}

/*
Analyze compares every present result with the expected distribution. Each variant is
measured against its own executed shot count, with Expected rescaled to that count.
Raw outcomes are compared with Expected embedded at the canonical offset.

Returns:
  - *Analysis: one Variant per non-nil result, in baseline, static, dynamic order
  - error: ErrNoResults, or a statistics or key layout error
*/
func Analyze(in AnalysisInput) (*Analysis, error) {
	if len(in.Expected) == 0 {
		return nil, fmt.Errorf("%w: no expected distribution for %s", ErrNoResults, in.Name)
	}

	topN := in.TopN
	if topN == 0 {
		topN = DefaultTopN(in.Expected)
	}
	if topN < 1 {
		return nil, ErrInvalidTopN
	}

	analysis := &Analysis{
		Name:     in.Name,
		Layout:   in.Layout,
		TopN:     topN,
		Expected: in.Expected,
	}

	for _, result := range []*Result{in.Baseline, in.Static, in.Dynamic} {
		if result == nil {
			continue
		}
		variant, err := analyzeResult(in, topN, result)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", in.Name, result.Mode, err)
		}
		analysis.Variants = append(analysis.Variants, variant)
	}

	if len(analysis.Variants) == 0 {
		return nil, ErrNoResults
	}
	return analysis, nil
}

func analyzeResult(in AnalysisInput, topN int, result *Result) (Variant, error) {
	shots := result.Shots
	expected := FromProbabilities(in.Expected, shots)

	expectedRaw, err := in.Layout.EmbedDistribution(expected, in.CanonicalOffset)
	if err != nil {
		return Variant{}, err
	}

	v := Variant{
		Mode:     result.Mode,
		Shots:    shots,
		Trials:   result.Trials,
		Attempts: result.Attempts,
		Result:   result,
	}

	if v.RawTVD, err = TotalVariationDistance(result.Raw, expectedRaw, shots); err != nil {
		return Variant{}, err
	}
	if v.RecoveredTVD, err = TotalVariationDistance(result.Recovered, expected, shots); err != nil {
		return Variant{}, err
	}
	if v.RawDominant, err = DominantMass(result.Raw, shots, topN); err != nil {
		return Variant{}, err
	}
	if v.RecoveredDominant, err = DominantMass(result.Recovered, shots, topN); err != nil {
		return Variant{}, err
	}

	return v, nil
}

// Variant returns the variant for mode, if it was analyzed.
func (a *Analysis) Variant(mode Mode) (Variant, bool) {
	for _, v := range a.Variants {
		if v.Mode == mode {
			return v, true
		}
	}
	return Variant{}, false
}
