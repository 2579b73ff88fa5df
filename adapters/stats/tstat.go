package stats

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"permstat/domain/glm"
)

// T computes the classic pooled-variance t statistic for a single-row
// contrast. vg and nGroups are ignored; callers with variance groups should
// use AspinWelchV instead.
func T(data, design *mat.Dense, contrast glm.Contrast, vg []int, nGroups int) []float64 {
	m := fitGLM(data, design)
	out := make([]float64, m.f)
	df := float64(m.n - m.rank)
	if m.beta == nil || df <= 0 {
		return out
	}

	c := contrast.Row(0)
	psi := m.psi(contrast.Dense())

	cv := mat.NewVecDense(len(c), c)
	var tmp mat.VecDense
	tmp.MulVec(m.xtxInv, cv)
	cte := mat.Dot(cv, &tmp)

	rss := m.residualSumSq()
	for j := 0; j < m.f; j++ {
		sigma2 := rss[j] / df
		out[j] = safeDiv(psi.At(0, j), math.Sqrt(sigma2*cte))
	}
	return out
}

// AspinWelchV computes the Aspin-Welch v statistic, the heteroscedastic
// analogue of t: each variance group contributes its own residual variance
// through per-observation weights, so exchangeability is not assumed across
// groups. vg holds 1-based group IDs per observation.
func AspinWelchV(data, design *mat.Dense, contrast glm.Contrast, vg []int, nGroups int) []float64 {
	if vg == nil || nGroups <= 1 {
		return T(data, design, contrast, nil, 0)
	}
	m := fitGLM(data, design)
	out := make([]float64, m.f)
	if m.beta == nil {
		return out
	}

	c := contrast.Row(0)
	psi := m.psi(contrast.Dense())
	dRmb := m.residualDofByGroup(vg, nGroups)

	for j := 0; j < m.f; j++ {
		w := m.groupWeights(j, vg, dRmb)
		a := m.weightedNormalMatrix(design, w)
		cte := quadraticForm(a, c)
		out[j] = safeDiv(psi.At(0, j), math.Sqrt(cte))
	}
	return out
}

// R computes the Pearson partial correlation between the contrasted design
// regressor and each feature, obtained from the t statistic through
// r = t / sqrt(t^2 + df).
func R(data, design *mat.Dense, contrast glm.Contrast, vg []int, nGroups int) []float64 {
	m := fitGLM(data, design)
	df := float64(m.n - m.rank)
	tvals := T(data, design, contrast, vg, nGroups)
	out := make([]float64, len(tvals))
	if df <= 0 {
		return out
	}
	for j, t := range tvals {
		out[j] = safeDiv(t, math.Sqrt(t*t+df))
	}
	return out
}
