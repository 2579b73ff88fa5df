// Package inference drives permutation loops for general linear models and
// turns null samples into corrected p-values: uncorrected empirical p,
// Benjamini-Hochberg FDR, and max-statistic FWE with an optional
// accelerated-tail refinement.
package inference

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"permstat/domain/glm"
	"permstat/internal"
	"permstat/internal/errors"
	"permstat/internal/permute"
)

// Config parameterizes one permutation analysis. Stat must always be set;
// FStat is required only when an F-test is requested via FContrastMask or
// FOnly.
type Config struct {
	NPermutations int
	Seed          int64
	TwoTailed     bool

	Blocks    glm.BlockSpec
	Within    bool
	Whole     bool
	FlipSigns bool

	// VGAuto derives variance groups from Blocks; VGVector overrides it.
	VGAuto   bool
	VGVector []int

	AccelTail              bool
	CorrectAcrossContrasts bool

	// FContrastMask selects contrast rows pooled into an F-like test.
	FContrastMask []bool
	FOnly         bool

	Stat     glm.StatFunc
	FStat    glm.StatFunc
	Callback glm.PermutationCallback

	Logger *internal.Logger
}

func (c Config) logger() *internal.Logger {
	if c.Logger == nil {
		return internal.NewDefaultLogger()
	}
	return c.Logger
}

// Run performs the full permutation analysis for every contrast row (and the
// F-test when requested) and returns the result bundle.
func Run(cfg Config, data, design *mat.Dense, contrast glm.Contrast) (glm.ResultBundle, error) {
	log := cfg.logger()

	if cfg.NPermutations <= 0 {
		return nil, errors.InvalidParameter(
			"number of permutations must be positive, got %d", cfg.NPermutations)
	}
	nData, nFeatures := data.Dims()
	nDesign, p := design.Dims()
	if nData != nDesign {
		return nil, errors.ShapeMismatch(
			"data has %d samples, design has %d", nData, nDesign)
	}
	if contrast.NCols() != p {
		return nil, errors.ShapeMismatch(
			"contrast has %d columns, design has %d regressors", contrast.NCols(), p)
	}
	if !cfg.Blocks.IsZero() && cfg.Blocks.N() != nData {
		return nil, errors.ShapeMismatch(
			"exchangeability spec has %d rows, data has %d samples", cfg.Blocks.N(), nData)
	}
	if cfg.Stat == nil {
		return nil, errors.InvalidParameter("statistic function is required")
	}

	vg, nGroups, err := resolveVarianceGroups(cfg, nData, log)
	if err != nil {
		return nil, err
	}

	performF := cfg.FContrastMask != nil || cfg.FOnly
	var fContrast glm.Contrast
	if performF {
		if cfg.FStat == nil {
			return nil, errors.InvalidParameter("F statistic function is required for an F-test")
		}
		if cfg.FContrastMask != nil {
			fContrast, err = contrast.SelectRows(cfg.FContrastMask)
			if err != nil {
				return nil, err
			}
		} else {
			// FOnly with no mask pools every provided contrast row.
			log.Warn("f_only requested without an F-contrast selection; pooling all %d contrast rows", contrast.NRows())
			fContrast = contrast
		}
		if fContrast.NRows() == 1 && !cfg.FOnly {
			log.Warn("F-test over a single contrast row is equivalent to a squared t-like test")
		}
	}

	results := glm.ResultBundle{}
	nContrasts := contrast.NRows()

	var pooledMax []float64
	observedPerContrast := make([][]float64, nContrasts)

	if !cfg.FOnly {
		for i := 0; i < nContrasts; i++ {
			row := contrast.RowContrast(i)

			observed := cfg.Stat(data, design, row, vg, nGroups)
			if len(observed) != nFeatures {
				return nil, errors.ContractViolation(
					"statistic function returned %d features for contrast %d, expected %d",
					len(observed), i+1, nFeatures)
			}
			observedPerContrast[i] = observed
			results[glm.StatKey(i+1)] = observed

			stream, err := NewStatStream(data, design, row, cfg.Stat, StreamConfig{
				Blocks: cfg.Blocks, Within: cfg.Within, Whole: cfg.Whole,
				FlipSigns: cfg.FlipSigns,
				// Offset seed so contrast streams are independent draws.
				Seed: cfg.Seed + int64(i),
				VG:   vg, NGroups: nGroups,
			})
			if err != nil {
				return nil, err
			}

			maxStat, exceed, err := accumulate(stream, observed, cfg, i)
			if err != nil {
				return nil, err
			}

			uncP := uncorrected(exceed, cfg.NPermutations)
			results[glm.UncPKey(i+1)] = uncP
			results[glm.FDRPKey(i+1)] = BenjaminiHochberg(uncP)
			results[glm.FWEPKey(i+1)] = fwe(observed, maxStat, cfg.TwoTailed, cfg.AccelTail)
			results[glm.MaxStatKey(i+1)] = maxStat

			if cfg.CorrectAcrossContrasts {
				pooledMax = poolMax(pooledMax, maxStat, cfg.TwoTailed)
			}
		}

		if cfg.CorrectAcrossContrasts {
			if nContrasts < 2 {
				log.Warn("cross-contrast correction requested with a single contrast; skipping")
			} else {
				results[glm.GlobalMaxKey] = pooledMax
				for i := 0; i < nContrasts; i++ {
					results[glm.CFWEPKey(i+1)] = fwe(observedPerContrast[i], pooledMax, cfg.TwoTailed, cfg.AccelTail)
				}
			}
		}
	}

	if performF {
		observedF := cfg.FStat(data, design, fContrast, vg, nGroups)
		if len(observedF) != nFeatures {
			return nil, errors.ContractViolation(
				"F statistic function returned %d features, expected %d", len(observedF), nFeatures)
		}
		results[glm.FStatKey] = observedF

		stream, err := NewStatStream(data, design, fContrast, cfg.FStat, StreamConfig{
			Blocks: cfg.Blocks, Within: cfg.Within, Whole: cfg.Whole,
			FlipSigns: cfg.FlipSigns,
			Seed:      cfg.Seed - 1,
			VG:        vg, NGroups: nGroups,
		})
		if err != nil {
			return nil, err
		}

		// F-like statistics are always one-tailed, whatever the caller set.
		fCfg := cfg
		fCfg.TwoTailed = false
		maxStat, exceed, err := accumulate(stream, observedF, fCfg, -1)
		if err != nil {
			return nil, err
		}

		uncP := uncorrected(exceed, cfg.NPermutations)
		results[glm.FUncPKey] = uncP
		results[glm.FFDRPKey] = BenjaminiHochberg(uncP)
		results[glm.FFWEPKey] = fwe(observedF, maxStat, false, cfg.AccelTail)
		results[glm.FMaxStatKey] = maxStat
	}

	return results, nil
}

// accumulate runs the permutation loop for one contrast: per-feature
// exceedance counts against the observed statistic plus the per-permutation
// max-statistic sample.
func accumulate(stream *StatStream, observed []float64, cfg Config, contrastIdx int) (maxStat, exceed []float64, err error) {
	exceed = make([]float64, len(observed))
	maxStat = make([]float64, cfg.NPermutations)

	for j := 0; j < cfg.NPermutations; j++ {
		permuted, err := stream.Next()
		if err != nil {
			return nil, nil, err
		}
		if len(permuted) != len(observed) {
			return nil, nil, errors.ContractViolation(
				"statistic function returned %d features at permutation %d, expected %d",
				len(permuted), j, len(observed))
		}
		if cfg.Callback != nil {
			cfg.Callback(permuted, j, contrastIdx, cfg.TwoTailed)
		}

		best := math.Inf(-1)
		for k, v := range permuted {
			pv, ov := v, observed[k]
			if cfg.TwoTailed {
				pv, ov = math.Abs(pv), math.Abs(ov)
			}
			if pv >= ov {
				exceed[k]++
			}
			if pv > best {
				best = pv
			}
		}
		maxStat[j] = best
	}
	return maxStat, exceed, nil
}

// uncorrected applies the (exceedances+1)/(N+1) formula; the +1 counts the
// observed data as one of its own permutations and keeps p away from zero.
func uncorrected(exceed []float64, nPerms int) []float64 {
	out := make([]float64, len(exceed))
	for i, e := range exceed {
		out[i] = (e + 1) / (float64(nPerms) + 1)
	}
	return out
}

// fwe computes max-statistic FWE p-values, with the accelerated-tail
// refinement when enabled.
func fwe(observed, maxStat []float64, twoTailed, accelTail bool) []float64 {
	if accelTail {
		return ComputePValuesAccelTail(observed, maxStat, twoTailed)
	}
	out := make([]float64, len(observed))
	for i, o := range observed {
		if twoTailed {
			o = math.Abs(o)
		}
		exceed := 0
		for _, m := range maxStat {
			if m >= o {
				exceed++
			}
		}
		out[i] = (float64(exceed) + 1) / (float64(len(maxStat)) + 1)
	}
	return out
}

// MaxStatPValues computes max-statistic FWE p-values for an observed map
// against a null sample, honoring the accelerated-tail setting. It is the
// same computation Run applies per contrast, exposed for callers that pool
// null samples themselves.
func MaxStatPValues(observed, maxStat []float64, twoTailed, accelTail bool) []float64 {
	return fwe(observed, maxStat, twoTailed, accelTail)
}

// PoolMaxStat folds a max-stat sample into a running element-wise-max pool;
// pass nil to start a pool.
func PoolMaxStat(pooled, maxStat []float64, twoTailed bool) []float64 {
	return poolMax(pooled, maxStat, twoTailed)
}

// poolMax folds one contrast's max-stat sample into the running
// cross-contrast pool by element-wise maximum. Pooling is by value; the
// per-contrast samples stay untouched in the bundle.
func poolMax(pooled, maxStat []float64, twoTailed bool) []float64 {
	if pooled == nil {
		pooled = make([]float64, len(maxStat))
		for i := range pooled {
			pooled[i] = math.Inf(-1)
		}
	}
	for i, v := range maxStat {
		if twoTailed {
			v = math.Abs(v)
		}
		if v > pooled[i] {
			pooled[i] = v
		}
	}
	return pooled
}

func resolveVarianceGroups(cfg Config, n int, log *internal.Logger) ([]int, int, error) {
	var vg []int
	switch {
	case cfg.VGVector != nil:
		if len(cfg.VGVector) != n {
			return nil, 0, errors.ShapeMismatch(
				"variance-group vector has %d entries, expected %d", len(cfg.VGVector), n)
		}
		vg = cfg.VGVector
	case cfg.VGAuto:
		if cfg.Blocks.IsZero() {
			return nil, 0, errors.InvalidParameter(
				"automatic variance grouping requires an exchangeability specification")
		}
		derived, err := permute.VarianceGroups(cfg.Blocks, cfg.Within, cfg.Whole)
		if err != nil {
			return nil, 0, err
		}
		vg = derived
	default:
		return nil, 0, nil
	}

	nGroups := permute.CountGroups(vg)
	if nGroups <= 1 {
		// Degenerate grouping: fall back to standard statistics.
		log.Warn("variance groups requested but only one group found; using standard statistics")
		return nil, 0, nil
	}
	return vg, nGroups, nil
}
