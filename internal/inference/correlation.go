package inference

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"permstat/domain/glm"
	"permstat/internal"
	"permstat/internal/errors"
)

// DatasetConfig bundles everything one dataset needs for its own permutation
// stream: data, model, and resampling structure. Each dataset keeps its own
// seed so its draws are independent of the others'.
type DatasetConfig struct {
	Data     *mat.Dense
	Design   *mat.Dense
	Contrast glm.Contrast

	Blocks    glm.BlockSpec
	Within    bool
	Whole     bool
	FlipSigns bool

	VGAuto   bool
	VGVector []int

	NPermutations int
	Seed          int64

	Stat glm.StatFunc
}

// CorrelationConfig controls the joint comparison step.
type CorrelationConfig struct {
	TwoTailed bool

	// Compare overrides the default Pearson correlation. It must be a
	// symmetric similarity measure.
	Compare glm.CompareFunc

	Logger *internal.Logger
}

// CorrelationResult holds the observed statistic maps, the similarity
// matrices, and their permutation p-values. DatasetP's diagonal is NaN:
// a map's similarity with itself is not a meaningful test. Reference
// matrices are nil when no reference maps were supplied.
type CorrelationResult struct {
	ObservedMaps [][]float64

	DatasetR *mat.Dense // nDatasets x nDatasets
	DatasetP *mat.Dense

	ReferenceR *mat.Dense // nDatasets x nReferences
	ReferenceP *mat.Dense

	// NPermutations is the lockstep draw count actually used:
	// min over datasets of each one's requested count.
	NPermutations int
}

// RunCorrelationAnalysis computes each dataset's observed statistic map,
// the pairwise similarity among maps (and against the fixed reference maps),
// and permutation p-values for every similarity value. The joint null is
// built by advancing every dataset's stream in lockstep and recomputing the
// similarity matrices at each step, so the null preserves whatever spatial
// structure the statistic maps share.
func RunCorrelationAnalysis(datasets []DatasetConfig, refs [][]float64, cfg CorrelationConfig) (*CorrelationResult, error) {
	log := cfg.Logger
	if log == nil {
		log = internal.NewDefaultLogger()
	}
	if len(datasets) < 2 && len(refs) == 0 {
		return nil, errors.InsufficientInput(
			"nothing to correlate: %d dataset(s) and no reference maps", len(datasets))
	}
	compare := cfg.Compare
	if compare == nil {
		compare = func(a, b []float64) float64 { return stat.Correlation(a, b, nil) }
	}

	nDS := len(datasets)
	observed := make([][]float64, nDS)
	streams := make([]*StatStream, nDS)
	nFeatures := -1
	lockstep := math.MaxInt

	for i, ds := range datasets {
		if ds.Stat == nil {
			return nil, errors.InvalidParameter("dataset %d: statistic function is required", i+1)
		}
		n, f := ds.Data.Dims()
		nDesign, p := ds.Design.Dims()
		if n != nDesign {
			return nil, errors.ShapeMismatch(
				"dataset %d: data has %d samples, design has %d", i+1, n, nDesign)
		}
		if ds.Contrast.NCols() != p {
			return nil, errors.ShapeMismatch(
				"dataset %d: contrast has %d columns, design has %d regressors",
				i+1, ds.Contrast.NCols(), p)
		}
		if nFeatures >= 0 && f != nFeatures {
			return nil, errors.ShapeMismatch(
				"dataset %d has %d features, dataset 1 has %d; maps must share a feature space",
				i+1, f, nFeatures)
		}
		nFeatures = f

		vg, nGroups, err := datasetVarianceGroups(ds, n, log)
		if err != nil {
			return nil, errors.Wrapf(err, "dataset %d", i+1)
		}

		observed[i] = ds.Stat(ds.Data, ds.Design, ds.Contrast, vg, nGroups)
		if len(observed[i]) != f {
			return nil, errors.ContractViolation(
				"dataset %d: statistic function returned %d features, expected %d",
				i+1, len(observed[i]), f)
		}

		streams[i], err = NewStatStream(ds.Data, ds.Design, ds.Contrast, ds.Stat, StreamConfig{
			Blocks: ds.Blocks, Within: ds.Within, Whole: ds.Whole,
			FlipSigns: ds.FlipSigns,
			Seed:      ds.Seed,
			VG:        vg, NGroups: nGroups,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "dataset %d", i+1)
		}
		if ds.NPermutations < lockstep {
			lockstep = ds.NPermutations
		}
	}

	for r, ref := range refs {
		if len(ref) != nFeatures {
			return nil, errors.ShapeMismatch(
				"reference map %d has %d features, datasets have %d", r+1, len(ref), nFeatures)
		}
	}

	result := &CorrelationResult{ObservedMaps: observed}
	result.DatasetR = similarityMatrix(observed, observed, compare)
	if len(refs) > 0 {
		result.ReferenceR = similarityMatrix(observed, refs, compare)
	}

	if lockstep <= 0 {
		log.Warn("no permutations requested; similarity p-values are undefined")
		result.DatasetP = nanMatrix(nDS, nDS)
		if len(refs) > 0 {
			result.ReferenceP = nanMatrix(nDS, len(refs))
		}
		return result, nil
	}
	result.NPermutations = lockstep

	dsExceed := mat.NewDense(nDS, nDS, nil)
	var refExceed *mat.Dense
	if len(refs) > 0 {
		refExceed = mat.NewDense(nDS, len(refs), nil)
	}

	permMaps := make([][]float64, nDS)
	for j := 0; j < lockstep; j++ {
		for i, s := range streams {
			m, err := s.Next()
			if err != nil {
				return nil, errors.Wrapf(err, "dataset %d, permutation %d", i+1, j)
			}
			permMaps[i] = m
		}
		countExceedances(dsExceed, result.DatasetR, similarityMatrix(permMaps, permMaps, compare), cfg.TwoTailed)
		if refExceed != nil {
			countExceedances(refExceed, result.ReferenceR, similarityMatrix(permMaps, refs, compare), cfg.TwoTailed)
		}
	}

	result.DatasetP = exceedanceP(dsExceed, lockstep)
	for i := 0; i < nDS; i++ {
		result.DatasetP.Set(i, i, math.NaN())
	}
	if refExceed != nil {
		result.ReferenceP = exceedanceP(refExceed, lockstep)
	}
	return result, nil
}

func datasetVarianceGroups(ds DatasetConfig, n int, log *internal.Logger) ([]int, int, error) {
	return resolveVarianceGroups(Config{
		Blocks: ds.Blocks, Within: ds.Within, Whole: ds.Whole,
		VGAuto: ds.VGAuto, VGVector: ds.VGVector,
	}, n, log)
}

func similarityMatrix(rows, cols [][]float64, compare glm.CompareFunc) *mat.Dense {
	out := mat.NewDense(len(rows), len(cols), nil)
	for i, a := range rows {
		for j, b := range cols {
			out.Set(i, j, compare(a, b))
		}
	}
	return out
}

// countExceedances increments exceed wherever the permuted similarity is at
// least as extreme as the observed one.
func countExceedances(exceed, observed, permuted *mat.Dense, twoTailed bool) {
	r, c := exceed.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			pv, ov := permuted.At(i, j), observed.At(i, j)
			if twoTailed {
				pv, ov = math.Abs(pv), math.Abs(ov)
			}
			if pv >= ov {
				exceed.Set(i, j, exceed.At(i, j)+1)
			}
		}
	}
}

func exceedanceP(exceed *mat.Dense, nPerms int) *mat.Dense {
	r, c := exceed.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, (exceed.At(i, j)+1)/(float64(nPerms)+1))
		}
	}
	return out
}

func nanMatrix(r, c int) *mat.Dense {
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, math.NaN())
		}
	}
	return out
}
