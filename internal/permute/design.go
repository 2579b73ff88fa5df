package permute

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"permstat/domain/glm"
	"permstat/internal/errors"
)

// DesignStream yields one permuted design matrix per Next call. Every draw
// returns a fresh copy; the stream never mutates the design it was built
// from, so callers may keep reading the original concurrently with the loop.
type DesignStream struct {
	design   *mat.Dense
	mask     []bool // contrast-selected columns; nil permutes whole rows
	permuter *IndexPermuter
}

// NewDesignStream builds a stream over the given design. When contrast has
// at least one row, only the design columns selected by the first row's
// nonzero mask are permuted (the Draper-Stoneman scheme) and the remaining
// columns are held fixed. This deviates from Freedman-Lane on purpose; see
// the package documentation before changing it.
func NewDesignStream(design *mat.Dense, contrast glm.Contrast, spec glm.BlockSpec, within, whole bool, seed int64) (*DesignStream, error) {
	n, p := design.Dims()
	var mask []bool
	if contrast.NRows() > 0 {
		if contrast.NCols() != p {
			return nil, errors.ShapeMismatch(
				"contrast has %d columns, design has %d regressors", contrast.NCols(), p)
		}
		mask = contrast.ColumnMask()
	}
	permuter, err := NewIndexPermuter(n, spec, within, whole, seed)
	if err != nil {
		return nil, err
	}
	return &DesignStream{design: design, mask: mask, permuter: permuter}, nil
}

// Next returns the next permuted design.
func (s *DesignStream) Next() (*mat.Dense, error) {
	perm, err := s.permuter.Next()
	if err != nil {
		return nil, err
	}
	n, p := s.design.Dims()
	out := mat.NewDense(n, p, nil)
	out.Copy(s.design)
	for i, src := range perm {
		for j := 0; j < p; j++ {
			if s.mask == nil || s.mask[j] {
				out.Set(i, j, s.design.At(src, j))
			}
		}
	}
	return out, nil
}

// SignFlipStream yields per-observation ±1 vectors, one per permutation,
// for inference under independent and symmetric errors. It advances its own
// seeded stream so it composes freely with an IndexPermuter.
type SignFlipStream struct {
	n   int
	rng *rand.Rand
}

// NewSignFlipStream creates a stream of n-length sign vectors.
func NewSignFlipStream(n int, seed int64) *SignFlipStream {
	return &SignFlipStream{n: n, rng: rand.New(rand.NewSource(seed))}
}

// Next returns the next vector of independent ±1 draws.
func (s *SignFlipStream) Next() []float64 {
	out := make([]float64, s.n)
	for i := range out {
		out[i] = float64(s.rng.Intn(2)*2 - 1)
	}
	return out
}

// FlipData returns data with each row scaled by the corresponding sign.
func FlipData(data *mat.Dense, signs []float64) *mat.Dense {
	n, f := data.Dims()
	out := mat.NewDense(n, f, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < f; j++ {
			out.Set(i, j, data.At(i, j)*signs[i])
		}
	}
	return out
}
