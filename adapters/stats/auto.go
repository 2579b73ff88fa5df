package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"permstat/domain/glm"
)

// Auto selects the t-like statistic the way the engine's automatic mode
// does: the pooled t without variance groups, Aspin-Welch v with them.
func Auto(useVarianceGroups bool) glm.StatFunc {
	if useVarianceGroups {
		return AspinWelchV
	}
	return T
}

// AutoF selects the F-like statistic: F without variance groups, G with.
func AutoF(useVarianceGroups bool) glm.StatFunc {
	if useVarianceGroups {
		return G
	}
	return F
}

// TParametricP returns the two-tailed parametric p-value of a t statistic.
// Permutation p-values are the engine's inferential currency; this exists for
// parity checks against the classical distributional result.
func TParametricP(t, df float64) float64 {
	if df <= 0 {
		return 1
	}
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return 2 * dist.Survival(math.Abs(t))
}

// FParametricP returns the parametric p-value of an F statistic.
func FParametricP(f, df1, df2 float64) float64 {
	if df1 <= 0 || df2 <= 0 || f < 0 {
		return 1
	}
	dist := distuv.F{D1: df1, D2: df2}
	return dist.Survival(f)
}
