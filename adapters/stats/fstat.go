package stats

import (
	"gonum.org/v1/gonum/mat"

	"permstat/domain/glm"
)

// F computes the classic F statistic for a k-row contrast. vg and nGroups
// are ignored; callers with variance groups should use G instead.
func F(data, design *mat.Dense, contrast glm.Contrast, vg []int, nGroups int) []float64 {
	m := fitGLM(data, design)
	out := make([]float64, m.f)
	k := float64(contrast.NRows())
	df2 := float64(m.n - m.rank)
	if m.beta == nil || df2 <= 0 || k == 0 {
		return out
	}

	cd := contrast.Dense()
	psi := m.psi(cd)

	// M = C pinv(X'X) C'
	var cx, mm mat.Dense
	cx.Mul(cd, m.xtxInv)
	mm.Mul(&cx, cd.T())

	rss := m.residualSumSq()
	y := make([]float64, contrast.NRows())
	for j := 0; j < m.f; j++ {
		for i := range y {
			y[i] = psi.At(i, j)
		}
		q := quadraticForm(&mm, y)
		sigma2 := rss[j] / df2
		out[j] = safeDiv(q/k, sigma2)
	}
	return out
}

// G computes the Welch G statistic, the variance-grouped analogue of F:
// the contrast covariance uses per-group Aspin-Welch weights, and the
// denominator carries the Welch small-sample correction derived from the
// spread of group weights.
func G(data, design *mat.Dense, contrast glm.Contrast, vg []int, nGroups int) []float64 {
	if vg == nil || nGroups <= 1 {
		return F(data, design, contrast, nil, 0)
	}
	m := fitGLM(data, design)
	out := make([]float64, m.f)
	k := float64(contrast.NRows())
	if m.beta == nil || k == 0 {
		return out
	}

	cd := contrast.Dense()
	psi := m.psi(cd)
	dRmb := m.residualDofByGroup(vg, nGroups)

	y := make([]float64, contrast.NRows())
	for j := 0; j < m.f; j++ {
		w := m.groupWeights(j, vg, dRmb)
		a := m.weightedNormalMatrix(design, w)
		var aInv mat.Dense
		if err := aInv.Inverse(a); err != nil {
			continue
		}

		// cte = C A^-1 C'
		var ca, cte mat.Dense
		ca.Mul(cd, &aInv)
		cte.Mul(&ca, cd.T())

		for i := range y {
			y[i] = psi.At(i, j)
		}
		q := quadraticForm(&cte, y)

		// Welch correction from the relative spread of group weights.
		wTotal := 0.0
		for _, wi := range w {
			wTotal += wi
		}
		bsum := 0.0
		if wTotal > 0 {
			groupW := make([]float64, nGroups+1)
			for i, wi := range w {
				groupW[vg[i]] += wi
			}
			for g := 1; g <= nGroups; g++ {
				if dRmb[g] > 0 {
					d := 1 - groupW[g]/wTotal
					bsum += d * d / dRmb[g]
				}
			}
		}
		den := 1 + 2*(k-1)*bsum/(k*(k+2))
		out[j] = safeDiv(q/k, den)
	}
	return out
}
