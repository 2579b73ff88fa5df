package inference

import "sort"

// BenjaminiHochberg returns step-up FDR-adjusted p-values. Adjusted values
// are monotone in the input order statistics and never smaller than the
// uncorrected values.
func BenjaminiHochberg(p []float64) []float64 {
	n := len(p)
	if n == 0 {
		return []float64{}
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return p[order[a]] < p[order[b]] })

	adjusted := make([]float64, n)
	minSoFar := 1.0
	for rank := n - 1; rank >= 0; rank-- {
		idx := order[rank]
		candidate := p[idx] * float64(n) / float64(rank+1)
		if candidate < minSoFar {
			minSoFar = candidate
		}
		adjusted[idx] = minSoFar
	}
	for i := range adjusted {
		if adjusted[i] > 1 {
			adjusted[i] = 1
		}
	}
	return adjusted
}
