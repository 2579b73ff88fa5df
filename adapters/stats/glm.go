// Package stats provides the general linear model test statistics consumed by
// the permutation engine: t, Aspin-Welch v, F, and G (the variance-grouped
// F analogue), plus Pearson r. All of them satisfy the pluggable statistic
// contract, so the engine never knows which one it is driving.
package stats

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// model caches everything the statistics share for one (data, design) pair:
// the fitted coefficients, residuals, and the design's pseudoinverse pieces.
type model struct {
	n, p, f int
	rank    int

	beta    *mat.Dense // p x f
	res     *mat.Dense // n x f
	xtxInv  *mat.Dense // pseudo-inverse of X'X, p x p
	hatDiag []float64  // diagonal of X pinv(X)
}

// fitGLM solves the least-squares problem through a thin SVD so rank-deficient
// designs (common after permutation of dummy-coded regressors) still produce
// well-defined statistics.
func fitGLM(data, design *mat.Dense) *model {
	n, f := data.Dims()
	_, p := design.Dims()

	var svd mat.SVD
	if !svd.Factorize(design, mat.SVDThin) {
		return &model{n: n, p: p, f: f}
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	sv := svd.Values(nil)

	tol := float64(n) * 1e-12
	if len(sv) > 0 {
		tol *= sv[0]
	}
	rank := 0
	for _, s := range sv {
		if s > tol {
			rank++
		}
	}

	// pinv(X) = V S+ U'
	sInv := mat.NewDense(len(sv), len(sv), nil)
	for i, s := range sv {
		if s > tol {
			sInv.Set(i, i, 1/s)
		}
	}
	var vs, pinv mat.Dense
	vs.Mul(&v, sInv)
	pinv.Mul(&vs, u.T())

	var beta mat.Dense
	beta.Mul(&pinv, data)

	var fitted, res mat.Dense
	fitted.Mul(design, &beta)
	res.Sub(data, &fitted)

	// pinv(X'X) = pinv(X) pinv(X)'
	var xtxInv mat.Dense
	xtxInv.Mul(&pinv, pinv.T())

	hatDiag := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			hatDiag[i] += design.At(i, j) * pinv.At(j, i)
		}
	}

	return &model{
		n: n, p: p, f: f, rank: rank,
		beta: &beta, res: &res, xtxInv: &xtxInv, hatDiag: hatDiag,
	}
}

// psi returns the contrasted coefficients C*B as a k x f matrix.
func (m *model) psi(c *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Mul(c, m.beta)
	return &out
}

// residualSumSq returns the per-feature residual sum of squares.
func (m *model) residualSumSq() []float64 {
	out := make([]float64, m.f)
	for j := 0; j < m.f; j++ {
		for i := 0; i < m.n; i++ {
			r := m.res.At(i, j)
			out[j] += r * r
		}
	}
	return out
}

// groupWeights computes the Aspin-Welch observation weights for one feature:
// for each variance group, the group's residual degrees of freedom divided by
// its residual sum of squares. dRmb is the per-group residual dof, indexed by
// group ID starting at 1.
func (m *model) groupWeights(feature int, vg []int, dRmb []float64) []float64 {
	nGroups := len(dRmb) - 1
	ssq := make([]float64, nGroups+1)
	for i := 0; i < m.n; i++ {
		r := m.res.At(i, feature)
		ssq[vg[i]] += r * r
	}
	w := make([]float64, m.n)
	for i := 0; i < m.n; i++ {
		g := vg[i]
		if ssq[g] > 0 {
			w[i] = dRmb[g] / ssq[g]
		}
	}
	return w
}

// residualDofByGroup sums 1 - hat_ii within each variance group.
func (m *model) residualDofByGroup(vg []int, nGroups int) []float64 {
	dRmb := make([]float64, nGroups+1)
	for i := 0; i < m.n; i++ {
		dRmb[vg[i]] += 1 - m.hatDiag[i]
	}
	return dRmb
}

// weightedNormalMatrix computes X' W X for a diagonal weight vector.
func (m *model) weightedNormalMatrix(design *mat.Dense, w []float64) *mat.Dense {
	a := mat.NewDense(m.p, m.p, nil)
	for i := 0; i < m.n; i++ {
		for r := 0; r < m.p; r++ {
			xr := design.At(i, r)
			if xr == 0 {
				continue
			}
			for c := 0; c < m.p; c++ {
				a.Set(r, c, a.At(r, c)+w[i]*xr*design.At(i, c))
			}
		}
	}
	return a
}

// quadraticForm computes y' A^-1 y, returning NaN when A is singular.
func quadraticForm(a *mat.Dense, y []float64) float64 {
	var inv mat.Dense
	if err := inv.Inverse(a); err != nil {
		return math.NaN()
	}
	k := len(y)
	yv := mat.NewVecDense(k, y)
	var tmp mat.VecDense
	tmp.MulVec(&inv, yv)
	return mat.Dot(yv, &tmp)
}

func safeDiv(num, den float64) float64 {
	if den == 0 || math.IsNaN(den) {
		return 0
	}
	return num / den
}
