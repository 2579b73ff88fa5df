package inference

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
)

// Accelerated-tail constants. Only features with empirical p at or below
// tailPLimit are eligible for refinement, and the fitting threshold never
// climbs past the quantile that would exclude them.
const (
	tailPLimit      = 0.075
	startPercentile = 75.0
	maxFitIter      = 10
	minTailPoints   = 10
	ksGateP         = 0.05
)

// ComputePValuesAccelTail computes FWE p-values for each observed statistic
// against a max-statistic null sample. The baseline is the empirical
// (exceedances+1)/(N+1) formula; when the empirical tail is deep enough, the
// upper tail of the null sample is refined with a generalized Pareto fit,
// gated by a Kolmogorov-Smirnov goodness-of-fit test. An unvalidated fit is
// never applied, not even partially: the empirical values are returned
// unchanged.
func ComputePValuesAccelTail(observed, nullSample []float64, twoTailed bool) []float64 {
	obs := append([]float64(nil), observed...)
	null := append([]float64(nil), nullSample...)
	if twoTailed {
		for i := range obs {
			obs[i] = math.Abs(obs[i])
		}
		for i := range null {
			null[i] = math.Abs(null[i])
		}
	}

	nPerms := float64(len(null))
	pEmp := make([]float64, len(obs))
	anyDeep := false
	for i, o := range obs {
		exceed := 0
		for _, v := range null {
			if v >= o {
				exceed++
			}
		}
		pEmp[i] = (float64(exceed) + 1) / (nPerms + 1)
		if pEmp[i] <= tailPLimit {
			anyDeep = true
		}
	}
	// Nothing extreme enough to warrant refinement.
	if !anyDeep {
		return pEmp
	}

	percentile := startPercentile
	threshold, err := stats.Percentile(null, percentile)
	if err != nil {
		return pEmp
	}
	var fit gpd
	goodFit := false
	for iter := 0; iter < maxFitIter; iter++ {
		excesses := make([]float64, 0, len(null))
		for _, v := range null {
			if v >= threshold {
				excesses = append(excesses, v-threshold)
			}
		}
		if len(excesses) < minTailPoints {
			break
		}
		fit = fitGPD(excesses)
		if ksTestGPD(excesses, fit) > ksGateP {
			goodFit = true
			break
		}
		// Step the threshold upward, staying below the 92.5th percentile so
		// the fit still covers every refinable feature.
		percentile += ((100*(1-tailPLimit))-percentile)/maxFitIter - 0.01
		threshold, err = stats.Percentile(null, percentile)
		if err != nil {
			return pEmp
		}
	}
	if !goodFit {
		return pEmp
	}

	tailCount := 0
	for _, v := range null {
		if v >= threshold {
			tailCount++
		}
	}
	tailProb := float64(tailCount) / nPerms

	out := append([]float64(nil), pEmp...)
	for i, o := range obs {
		if pEmp[i] <= tailPLimit && o >= threshold {
			out[i] = tailProb * (1 - fit.cdf(o-threshold))
		}
	}
	return out
}

// gpd is a generalized Pareto distribution over exceedances (location 0).
type gpd struct {
	xi    float64 // shape
	sigma float64 // scale
}

// fitGPD estimates GPD parameters by probability-weighted moments
// (Hosking & Wallis). Closed-form, stable for the small tail samples this
// corrector sees, and degrades gracefully to an exponential tail when the
// moment denominator collapses.
func fitGPD(excesses []float64) gpd {
	x := append([]float64(nil), excesses...)
	sort.Float64s(x)
	n := float64(len(x))

	var b0, b1 float64
	for i, v := range x {
		b0 += v
		if len(x) > 1 {
			b1 += v * float64(i) / (n - 1)
		}
	}
	b0 /= n
	b1 /= n

	denom := b0 - 2*b1
	if math.Abs(denom) < 1e-12 || b0 <= 0 {
		return gpd{xi: 0, sigma: math.Max(b0, 1e-12)}
	}
	k := b0/denom - 2
	alpha := 2 * b0 * b1 / denom
	if alpha <= 0 {
		return gpd{xi: 0, sigma: math.Max(b0, 1e-12)}
	}
	return gpd{xi: -k, sigma: alpha}
}

func (g gpd) cdf(x float64) float64 {
	if x <= 0 {
		return 0
	}
	if math.Abs(g.xi) < 1e-9 {
		return 1 - math.Exp(-x/g.sigma)
	}
	arg := 1 + g.xi*x/g.sigma
	if arg <= 0 {
		// Beyond the upper endpoint of a bounded (xi<0) tail.
		return 1
	}
	return 1 - math.Pow(arg, -1/g.xi)
}

// ksTestGPD returns the asymptotic p-value of the one-sample
// Kolmogorov-Smirnov statistic of the excesses against the fitted GPD.
func ksTestGPD(excesses []float64, fit gpd) float64 {
	x := append([]float64(nil), excesses...)
	sort.Float64s(x)
	n := float64(len(x))

	d := 0.0
	for i, v := range x {
		cdf := fit.cdf(v)
		upper := math.Abs(float64(i+1)/n - cdf)
		lower := math.Abs(cdf - float64(i)/n)
		if upper > d {
			d = upper
		}
		if lower > d {
			d = lower
		}
	}
	return kolmogorovQ((math.Sqrt(n) + 0.12 + 0.11/math.Sqrt(n)) * d)
}

// kolmogorovQ is the asymptotic Kolmogorov survival function
// Q(lambda) = 2 * sum_{j>=1} (-1)^{j-1} exp(-2 j^2 lambda^2).
func kolmogorovQ(lambda float64) float64 {
	if lambda < 1e-8 {
		return 1
	}
	sum := 0.0
	sign := 1.0
	for j := 1; j <= 100; j++ {
		term := sign * math.Exp(-2*float64(j*j)*lambda*lambda)
		sum += term
		if math.Abs(term) < 1e-12 {
			break
		}
		sign = -sign
	}
	p := 2 * sum
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
