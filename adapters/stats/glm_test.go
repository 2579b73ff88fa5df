package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"permstat/domain/glm"
)

// Two-group fixture with a closed-form answer. Group means 1.5 and 3.5,
// pooled residual variance 0.5, contrast variance 1:
// t = 2 / sqrt(0.5) = 2.828427...
func twoGroupModel() (*mat.Dense, *mat.Dense, glm.Contrast) {
	data := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	design := mat.NewDense(4, 2, []float64{
		1, 0,
		1, 0,
		1, 1,
		1, 1,
	})
	return data, design, glm.NewContrastVector([]float64{0, 1})
}

func TestTMatchesHandComputation(t *testing.T) {
	data, design, contrast := twoGroupModel()
	got := T(data, design, contrast, nil, 0)
	require.Len(t, got, 1)
	assert.InDelta(t, 2.0/math.Sqrt(0.5), got[0], 1e-10)
}

func TestTMultiFeatureIndependence(t *testing.T) {
	// Two features computed together must equal each computed alone.
	data := mat.NewDense(4, 2, []float64{
		1, 10,
		2, 11,
		3, 30,
		4, 28,
	})
	_, design, contrast := twoGroupModel()

	both := T(data, design, contrast, nil, 0)
	require.Len(t, both, 2)
	for j := 0; j < 2; j++ {
		col := mat.NewDense(4, 1, nil)
		for i := 0; i < 4; i++ {
			col.Set(i, 0, data.At(i, j))
		}
		alone := T(col, design, contrast, nil, 0)
		assert.InDelta(t, alone[0], both[j], 1e-12, "feature %d", j)
	}
}

func TestAspinWelchVEqualVariancesMatchesT(t *testing.T) {
	// With equal group variances and sizes the weighting is uniform and v
	// collapses to t.
	data, design, contrast := twoGroupModel()
	tv := T(data, design, contrast, nil, 0)
	v := AspinWelchV(data, design, contrast, []int{1, 1, 2, 2}, 2)
	assert.InDelta(t, tv[0], v[0], 1e-10)
}

func TestAspinWelchVHandComputation(t *testing.T) {
	// Group residual sums of squares 2 and 200, residual dof 1 each, so the
	// weighted contrast variance is 101 and v = 19 / sqrt(101).
	data := mat.NewDense(4, 1, []float64{0, 2, 10, 30})
	_, design, contrast := twoGroupModel()
	v := AspinWelchV(data, design, contrast, []int{1, 1, 2, 2}, 2)
	require.Len(t, v, 1)
	assert.InDelta(t, 19.0/math.Sqrt(101.0), v[0], 1e-10)
}

func TestAspinWelchVFallsBackWithoutGroups(t *testing.T) {
	data, design, contrast := twoGroupModel()
	tv := T(data, design, contrast, nil, 0)
	assert.Equal(t, tv, AspinWelchV(data, design, contrast, nil, 0))
	assert.Equal(t, tv, AspinWelchV(data, design, contrast, []int{1, 1, 1, 1}, 1))
}

func TestFSingleRowContrastIsSquaredT(t *testing.T) {
	data, design, contrast := twoGroupModel()
	tv := T(data, design, contrast, nil, 0)
	fv := F(data, design, contrast, nil, 0)
	require.Len(t, fv, 1)
	assert.InDelta(t, tv[0]*tv[0], fv[0], 1e-10)
	assert.InDelta(t, 8.0, fv[0], 1e-10)
}

func TestGSingleGroupFallsBackToF(t *testing.T) {
	data, design, contrast := twoGroupModel()
	fv := F(data, design, contrast, nil, 0)
	assert.Equal(t, fv, G(data, design, contrast, nil, 0))
}

func TestGEqualVariancesMatchesF(t *testing.T) {
	// k = 1 zeroes the Welch correction term, so G equals F exactly when
	// residual variances agree across groups.
	data, design, contrast := twoGroupModel()
	fv := F(data, design, contrast, nil, 0)
	gv := G(data, design, contrast, []int{1, 1, 2, 2}, 2)
	assert.InDelta(t, fv[0], gv[0], 1e-10)
}

func TestRMatchesPearsonCorrelation(t *testing.T) {
	// With an intercept plus one indicator regressor, the partial correlation
	// reduces to the plain Pearson correlation with the indicator.
	data, design, contrast := twoGroupModel()
	got := R(data, design, contrast, nil, 0)
	require.Len(t, got, 1)

	indicator := []float64{0, 0, 1, 1}
	want := stat.Correlation([]float64{1, 2, 3, 4}, indicator, nil)
	assert.InDelta(t, want, got[0], 1e-10)
	assert.InDelta(t, 2.0/math.Sqrt(5.0), got[0], 1e-10)
}

func TestRankDeficientDesignStaysFinite(t *testing.T) {
	// Duplicate the indicator column: X is rank 2 with 3 columns. The
	// pseudoinverse fit must still return finite statistics.
	data := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	design := mat.NewDense(4, 3, []float64{
		1, 0, 0,
		1, 0, 0,
		1, 1, 1,
		1, 1, 1,
	})
	contrast := glm.NewContrastVector([]float64{0, 1, 0})

	got := T(data, design, contrast, nil, 0)
	require.Len(t, got, 1)
	assert.False(t, math.IsNaN(got[0]))
	assert.False(t, math.IsInf(got[0], 0))
}

func TestAutoSelection(t *testing.T) {
	data, design, contrast := twoGroupModel()
	vg := []int{1, 1, 2, 2}

	tv := T(data, design, contrast, nil, 0)
	assert.Equal(t, tv, Auto(false)(data, design, contrast, nil, 0))
	assert.Equal(t,
		AspinWelchV(data, design, contrast, vg, 2),
		Auto(true)(data, design, contrast, vg, 2))

	fv := F(data, design, contrast, nil, 0)
	assert.Equal(t, fv, AutoF(false)(data, design, contrast, nil, 0))
	assert.Equal(t,
		G(data, design, contrast, vg, 2),
		AutoF(true)(data, design, contrast, vg, 2))
}

func TestParametricPValues(t *testing.T) {
	tStat := 2.0 / math.Sqrt(0.5)
	df := 2.0

	pT := TParametricP(tStat, df)
	assert.Greater(t, pT, 0.0)
	assert.Less(t, pT, 1.0)
	assert.InDelta(t, pT, TParametricP(-tStat, df), 1e-12)

	// F(1, df) of t^2 reproduces the two-tailed t p-value.
	pF := FParametricP(tStat*tStat, 1, df)
	assert.InDelta(t, pT, pF, 1e-9)

	assert.Equal(t, 1.0, TParametricP(5, 0))
	assert.Equal(t, 1.0, FParametricP(-1, 1, 2))
}
