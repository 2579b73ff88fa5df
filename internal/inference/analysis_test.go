package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"permstat/adapters/stats"
	"permstat/domain/glm"
	"permstat/internal/errors"
)

func twoGroupFixture() (*mat.Dense, *mat.Dense, glm.Contrast) {
	// 8 observations, 3 features, intercept + group-indicator design.
	data := mat.NewDense(8, 3, []float64{
		1.0, 5.1, 0.3,
		1.4, 4.8, 0.1,
		0.8, 5.5, 0.4,
		1.2, 5.0, 0.2,
		3.1, 5.2, 2.9,
		2.8, 4.9, 3.2,
		3.4, 5.1, 3.0,
		3.0, 5.3, 3.1,
	})
	design := mat.NewDense(8, 2, nil)
	for i := 0; i < 8; i++ {
		design.Set(i, 0, 1)
		if i >= 4 {
			design.Set(i, 1, 1)
		}
	}
	return data, design, glm.NewContrastVector([]float64{0, 1})
}

func TestConfigLoggerDefaultLeavesFieldNil(t *testing.T) {
	cfg := Config{}
	require.NotNil(t, cfg.logger())
	assert.Nil(t, cfg.Logger)
}

func TestRunValidatesInputs(t *testing.T) {
	data, design, contrast := twoGroupFixture()

	t.Run("non-positive permutations", func(t *testing.T) {
		_, err := Run(Config{NPermutations: 0, Stat: stats.T}, data, design, contrast)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeInvalidParameter))
	})

	t.Run("row mismatch", func(t *testing.T) {
		short := mat.NewDense(4, 3, nil)
		_, err := Run(Config{NPermutations: 10, Stat: stats.T}, short, design, contrast)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeShapeMismatch))
	})

	t.Run("contrast width mismatch", func(t *testing.T) {
		wide := glm.NewContrastVector([]float64{0, 1, 1})
		_, err := Run(Config{NPermutations: 10, Stat: stats.T}, data, design, wide)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeShapeMismatch))
	})

	t.Run("missing statistic", func(t *testing.T) {
		_, err := Run(Config{NPermutations: 10}, data, design, contrast)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeInvalidParameter))
	})

	t.Run("statistic returning wrong cardinality", func(t *testing.T) {
		bad := func(_, _ *mat.Dense, _ glm.Contrast, _ []int, _ int) []float64 {
			return []float64{1}
		}
		_, err := Run(Config{NPermutations: 10, Stat: bad}, data, design, contrast)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeContractViolation))
	})
}

func TestRunEndToEndBlockedSignFlip(t *testing.T) {
	data, _, _ := twoGroupFixture()
	design := mat.NewDense(8, 1, []float64{1, 1, 1, 1, 1, 1, 1, 1})
	contrast := glm.NewContrastVector([]float64{1})
	blocks := glm.NewBlockVector([]int{1, 1, 1, 1, 2, 2, 2, 2})

	cfg := Config{
		NPermutations: 200,
		Seed:          42,
		TwoTailed:     true,
		Blocks:        blocks,
		Within:        true,
		FlipSigns:     true,
		Stat:          stats.T,
	}
	bundle, err := Run(cfg, data, design, contrast)
	require.NoError(t, err)

	uncP := bundle[glm.UncPKey(1)]
	require.Len(t, uncP, 3)
	for i, p := range uncP {
		assert.GreaterOrEqual(t, p, 1.0/201.0, "feature %d", i)
		assert.LessOrEqual(t, p, 1.0, "feature %d", i)
	}
	require.Len(t, bundle[glm.MaxStatKey(1)], 200)

	// Same seed, same arrays.
	again, err := Run(cfg, data, design, contrast)
	require.NoError(t, err)
	assert.Equal(t, bundle[glm.StatKey(1)], again[glm.StatKey(1)])
	assert.Equal(t, bundle[glm.UncPKey(1)], again[glm.UncPKey(1)])
	assert.Equal(t, bundle[glm.FWEPKey(1)], again[glm.FWEPKey(1)])
	assert.Equal(t, bundle[glm.MaxStatKey(1)], again[glm.MaxStatKey(1)])
}

func TestRunFDRNeverBelowUncorrected(t *testing.T) {
	data, design, contrast := twoGroupFixture()
	bundle, err := Run(Config{
		NPermutations: 100,
		Seed:          7,
		TwoTailed:     true,
		Stat:          stats.T,
	}, data, design, contrast)
	require.NoError(t, err)

	unc := bundle[glm.UncPKey(1)]
	fdr := bundle[glm.FDRPKey(1)]
	require.Len(t, fdr, len(unc))
	for i := range unc {
		assert.GreaterOrEqual(t, fdr[i], unc[i])
	}
}

func TestRunCallbackSequencing(t *testing.T) {
	data, design, contrast := twoGroupFixture()

	var permIdxs []int
	bundle, err := Run(Config{
		NPermutations: 25,
		Seed:          3,
		TwoTailed:     true,
		Stat:          stats.T,
		Callback: func(permuted []float64, permIdx, contrastIdx int, twoTailed bool) {
			assert.Len(t, permuted, 3)
			assert.Equal(t, 0, contrastIdx)
			assert.True(t, twoTailed)
			permIdxs = append(permIdxs, permIdx)
		},
	}, data, design, contrast)
	require.NoError(t, err)
	require.NotNil(t, bundle)

	require.Len(t, permIdxs, 25)
	for i, idx := range permIdxs {
		assert.Equal(t, i, idx)
	}
}

func TestRunFTestKeys(t *testing.T) {
	data, design, _ := twoGroupFixture()
	contrast, err := glm.NewContrast([][]float64{{0, 1}, {1, 0}})
	require.NoError(t, err)

	bundle, err := Run(Config{
		NPermutations: 50,
		Seed:          5,
		TwoTailed:     true,
		Stat:          stats.T,
		FStat:         stats.F,
		FContrastMask: []bool{true, true},
	}, data, design, contrast)
	require.NoError(t, err)

	require.Contains(t, bundle, glm.FStatKey)
	require.Contains(t, bundle, glm.FUncPKey)
	require.Contains(t, bundle, glm.FFDRPKey)
	require.Contains(t, bundle, glm.FFWEPKey)
	require.Len(t, bundle[glm.FMaxStatKey], 50)

	// F statistics are non-negative and tested one-tailed.
	for _, v := range bundle[glm.FStatKey] {
		assert.GreaterOrEqual(t, v, 0.0)
	}
}

func TestRunCrossContrastPooling(t *testing.T) {
	data, design, _ := twoGroupFixture()
	contrast, err := glm.NewContrast([][]float64{{0, 1}, {0, -1}})
	require.NoError(t, err)

	bundle, err := Run(Config{
		NPermutations:          50,
		Seed:                   13,
		TwoTailed:              true,
		Stat:                   stats.T,
		CorrectAcrossContrasts: true,
	}, data, design, contrast)
	require.NoError(t, err)

	pooled := bundle[glm.GlobalMaxKey]
	require.Len(t, pooled, 50)
	for i := 1; i <= 2; i++ {
		require.Contains(t, bundle, glm.CFWEPKey(i))
		// Pooled null is at least as extreme as each per-contrast null, so
		// cross-contrast p-values cannot be smaller.
		perCon := bundle[glm.FWEPKey(i)]
		crossCon := bundle[glm.CFWEPKey(i)]
		for k := range perCon {
			assert.GreaterOrEqual(t, crossCon[k], perCon[k]-1e-12)
		}
	}
}

func TestRunDegenerateVarianceGroupingFallsBack(t *testing.T) {
	data, design, contrast := twoGroupFixture()
	// A single block collapses to one variance group; the run must proceed
	// with standard statistics instead of failing.
	bundle, err := Run(Config{
		NPermutations: 20,
		Seed:          2,
		TwoTailed:     true,
		Blocks:        glm.NewBlockVector([]int{1, 1, 1, 1, 1, 1, 1, 1}),
		Within:        true,
		VGAuto:        true,
		Stat:          stats.AspinWelchV,
	}, data, design, contrast)
	require.NoError(t, err)
	require.Contains(t, bundle, glm.StatKey(1))
}
