package inference

import (
	"math"

	"permstat/domain/glm"
	"permstat/internal/errors"
)

type trackerState int

const (
	trackerInitialized trackerState = iota
	trackerAccumulating
	trackerFinalized
)

// EnhancedTracker maintains the null distribution of a spatially enhanced
// statistic (e.g. TFCE) in parallel with the raw statistic's permutation
// loop. The enhancement transform itself is an external collaborator; the
// tracker only guarantees that observed and permuted maps pass through the
// same transform and that the enhanced null is accumulated consistently.
//
// Lifecycle: Initialized -> Accumulating (first Update) -> Finalized
// (one-shot Finalize). Updating after finalization, or finalizing twice, is
// a caller contract violation.
type EnhancedTracker struct {
	state     trackerState
	enhance   glm.EnhanceFunc
	twoTailed bool

	observed  []float64 // enhanced observed statistic
	exceed    []float64
	maxSample []float64
}

// NewEnhancedTracker applies the transform to the observed statistic once
// and prepares for accumulation.
func NewEnhancedTracker(observedStats []float64, enhance glm.EnhanceFunc, twoTailed bool) (*EnhancedTracker, error) {
	if enhance == nil {
		return nil, errors.InvalidParameter("enhancement transform is required")
	}
	observed := enhance(observedStats)
	if len(observed) != len(observedStats) {
		return nil, errors.ContractViolation(
			"enhancement transform returned %d features, expected %d", len(observed), len(observedStats))
	}
	return &EnhancedTracker{
		state:     trackerInitialized,
		enhance:   enhance,
		twoTailed: twoTailed,
		observed:  observed,
		exceed:    make([]float64, len(observed)),
	}, nil
}

// Observed returns the enhanced observed statistic.
func (t *EnhancedTracker) Observed() []float64 {
	out := make([]float64, len(t.observed))
	copy(out, t.observed)
	return out
}

// MaxStatSample returns the accumulated enhanced max-statistic null sample.
func (t *EnhancedTracker) MaxStatSample() []float64 {
	out := make([]float64, len(t.maxSample))
	copy(out, t.maxSample)
	return out
}

// Update transforms one permutation's statistic map and folds it into the
// enhanced null: feature-wise exceedance counts plus the permutation's max
// enhanced value.
func (t *EnhancedTracker) Update(permutedStats []float64, permIdx int) error {
	if t.state == trackerFinalized {
		return errors.ContractViolation("update called after finalize")
	}
	t.state = trackerAccumulating

	enhanced := t.enhance(permutedStats)
	if len(enhanced) != len(t.observed) {
		return errors.ContractViolation(
			"enhancement transform returned %d features at permutation %d, expected %d",
			len(enhanced), permIdx, len(t.observed))
	}

	best := math.Inf(-1)
	for k, v := range enhanced {
		pv, ov := v, t.observed[k]
		if t.twoTailed {
			pv, ov = math.Abs(pv), math.Abs(ov)
		}
		if pv >= ov {
			t.exceed[k]++
		}
		if pv > best {
			best = pv
		}
	}
	t.maxSample = append(t.maxSample, best)
	return nil
}

// Finalize derives the enhanced statistic's p-values: uncorrected from the
// exceedance counts, FDR via Benjamini-Hochberg, FWE from the enhanced
// max-stat sample (accelerated tail when enabled). One-shot.
func (t *EnhancedTracker) Finalize(nPermutations int, accelTail bool) (uncP, fdrP, fweP []float64, err error) {
	if t.state == trackerFinalized {
		return nil, nil, nil, errors.ContractViolation("finalize called twice")
	}
	if t.state == trackerInitialized {
		return nil, nil, nil, errors.ContractViolation("finalize called before any update")
	}
	t.state = trackerFinalized

	uncP = uncorrected(t.exceed, nPermutations)
	fdrP = BenjaminiHochberg(uncP)
	fweP = fwe(t.observed, t.maxSample, t.twoTailed, accelTail)
	return uncP, fdrP, fweP, nil
}
