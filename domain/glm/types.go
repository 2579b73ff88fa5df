package glm

import (
	"gonum.org/v1/gonum/mat"

	"permstat/internal/errors"
)

// ============================================================================
// STABLE PRIMITIVES (Canonical, never change)
// ============================================================================

// StatFunc computes a per-feature test statistic for one (data, design,
// contrast) triple. data is n×f (samples × features), design is n×p
// (samples × regressors). vg is nil and nGroups is 0 when variance grouping
// is not in effect. Implementations must be pure and deterministic.
type StatFunc func(data, design *mat.Dense, contrast Contrast, vg []int, nGroups int) []float64

// EnhanceFunc is a spatial-enhancement transform (e.g. TFCE). It must return
// a map with the same feature cardinality as its input.
type EnhanceFunc func(stats []float64) []float64

// CompareFunc is a symmetric similarity measure between two feature maps.
type CompareFunc func(a, b []float64) float64

// PermutationCallback is invoked once per permutation after statistic
// computation, before null accumulation side effects are finalized for that
// permutation. contrastIdx is -1 for the F-test.
type PermutationCallback func(permutedStats []float64, permIdx, contrastIdx int, twoTailed bool)

// ============================================================================
// CONTRAST
// ============================================================================

// Contrast is a k×p hypothesis matrix. One row defines a t-like hypothesis;
// multiple rows grouped together feed an F-like test.
type Contrast struct {
	rows [][]float64
}

// NewContrastVector creates a single-row contrast from a 1×p vector.
func NewContrastVector(row []float64) Contrast {
	r := make([]float64, len(row))
	copy(r, row)
	return Contrast{rows: [][]float64{r}}
}

// NewContrast creates a k×p contrast. All rows must share one length.
func NewContrast(rows [][]float64) (Contrast, error) {
	if len(rows) == 0 {
		return Contrast{}, errors.InvalidParameter("contrast must have at least one row")
	}
	p := len(rows[0])
	out := make([][]float64, len(rows))
	for i, row := range rows {
		if len(row) != p {
			return Contrast{}, errors.ShapeMismatch(
				"contrast row %d has %d columns, expected %d", i, len(row), p)
		}
		out[i] = make([]float64, p)
		copy(out[i], row)
	}
	return Contrast{rows: out}, nil
}

// NRows returns the number of hypothesis rows.
func (c Contrast) NRows() int { return len(c.rows) }

// NCols returns the regressor count, 0 for a zero-value contrast.
func (c Contrast) NCols() int {
	if len(c.rows) == 0 {
		return 0
	}
	return len(c.rows[0])
}

// Row returns a copy of hypothesis row i.
func (c Contrast) Row(i int) []float64 {
	out := make([]float64, len(c.rows[i]))
	copy(out, c.rows[i])
	return out
}

// RowContrast returns hypothesis row i as a single-row Contrast.
func (c Contrast) RowContrast(i int) Contrast {
	return NewContrastVector(c.rows[i])
}

// ColumnMask reports which design columns the first hypothesis row touches
// (nonzero entries). This mask drives contrast-targeted permutation.
func (c Contrast) ColumnMask() []bool {
	mask := make([]bool, c.NCols())
	if len(c.rows) == 0 {
		return mask
	}
	for j, v := range c.rows[0] {
		mask[j] = v != 0
	}
	return mask
}

// SelectRows builds a sub-contrast from the rows picked by mask, e.g. the
// rows pooled into an F-test.
func (c Contrast) SelectRows(mask []bool) (Contrast, error) {
	if len(mask) != c.NRows() {
		return Contrast{}, errors.ShapeMismatch(
			"row mask length %d does not match contrast rows %d", len(mask), c.NRows())
	}
	var rows [][]float64
	for i, keep := range mask {
		if keep {
			rows = append(rows, c.rows[i])
		}
	}
	if len(rows) == 0 {
		return Contrast{}, errors.InvalidParameter("contrast row selection is empty")
	}
	return NewContrast(rows)
}

// Dense returns the contrast as a k×p matrix.
func (c Contrast) Dense() *mat.Dense {
	k, p := c.NRows(), c.NCols()
	out := mat.NewDense(k, p, nil)
	for i := 0; i < k; i++ {
		out.SetRow(i, c.rows[i])
	}
	return out
}

// ============================================================================
// EXCHANGEABILITY BLOCKS
// ============================================================================

// BlockSpec is an exchangeability-block specification: either a flat length-n
// vector (one block ID per observation) or an n×L matrix describing L nested
// levels. Entries are signed non-zero integers; the sign encodes whether the
// grouping at that level may itself be shuffled as a unit. Constructed once,
// validated at permuter setup, immutable afterwards.
type BlockSpec struct {
	levels [][]int // n rows × L columns
}

// NewBlockVector creates a flat (single level) specification.
func NewBlockVector(ids []int) BlockSpec {
	rows := make([][]int, len(ids))
	for i, id := range ids {
		rows[i] = []int{id}
	}
	return BlockSpec{levels: rows}
}

// NewBlockMatrix creates a hierarchical specification from n rows of L levels.
func NewBlockMatrix(rows [][]int) (BlockSpec, error) {
	if len(rows) == 0 {
		return BlockSpec{}, errors.InvalidParameter("block matrix must have at least one row")
	}
	l := len(rows[0])
	if l == 0 {
		return BlockSpec{}, errors.InvalidParameter("block matrix must have at least one level")
	}
	out := make([][]int, len(rows))
	for i, row := range rows {
		if len(row) != l {
			return BlockSpec{}, errors.ShapeMismatch(
				"block matrix row %d has %d levels, expected %d", i, len(row), l)
		}
		out[i] = make([]int, l)
		copy(out[i], row)
	}
	return BlockSpec{levels: out}, nil
}

// IsZero reports whether the spec is absent (free exchange).
func (s BlockSpec) IsZero() bool { return len(s.levels) == 0 }

// N returns the observation count.
func (s BlockSpec) N() int { return len(s.levels) }

// Levels returns the nesting depth.
func (s BlockSpec) Levels() int {
	if len(s.levels) == 0 {
		return 0
	}
	return len(s.levels[0])
}

// IsFlat reports whether the spec has a single level, in which case the
// within/whole flags apply.
func (s BlockSpec) IsFlat() bool { return s.Levels() == 1 }

// Value returns the block index of observation row at the given level.
func (s BlockSpec) Value(row, level int) int { return s.levels[row][level] }

// FlatIDs returns the level-0 block IDs for all observations.
func (s BlockSpec) FlatIDs() []int {
	out := make([]int, len(s.levels))
	for i, row := range s.levels {
		out[i] = row[0]
	}
	return out
}
