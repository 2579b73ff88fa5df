// Package permute generates valid relabelings of observations under an
// exchangeability-block specification: flat within/whole-block shuffles,
// hierarchical multi-level shuffles with sign-encoded instructions, and
// independent sign-flip draws for symmetric-error inference.
package permute

import (
	"math/rand"

	"permstat/domain/glm"
	"permstat/internal/errors"
)

// IndexPermuter draws valid permutations of observation indices 0..n-1.
// Repeated Next calls advance one seeded random stream, so draws are
// statistically independent and reproducible for a given seed.
type IndexPermuter struct {
	n      int
	spec   glm.BlockSpec
	within bool
	whole  bool
	rng    *rand.Rand
}

// NewIndexPermuter validates the block specification once and binds it to a
// seeded random stream. Zero block indices are rejected here, and the
// structural rules (uniform block sizes for whole-block shuffling, no
// mixed-sign siblings) are checked with a dry traversal so that malformed
// specifications fail at setup rather than mid-run.
func NewIndexPermuter(n int, spec glm.BlockSpec, within, whole bool, seed int64) (*IndexPermuter, error) {
	if n <= 0 {
		return nil, errors.InvalidParameter("observation count must be positive, got %d", n)
	}
	if !spec.IsZero() {
		if spec.N() != n {
			return nil, errors.ShapeMismatch(
				"exchangeability spec has %d rows, expected %d", spec.N(), n)
		}
		for i := 0; i < spec.N(); i++ {
			for l := 0; l < spec.Levels(); l++ {
				if spec.Value(i, l) == 0 {
					return nil, errors.InvalidBlock(
						"block index 0 at observation %d, level %d", i, l)
				}
			}
		}
	}
	p := &IndexPermuter{n: n, spec: spec, within: within, whole: whole, rng: rand.New(rand.NewSource(seed))}

	// Dry traversal on a throwaway stream surfaces structural errors eagerly.
	probe := &IndexPermuter{n: n, spec: spec, within: within, whole: whole, rng: rand.New(rand.NewSource(0))}
	if _, err := probe.Next(); err != nil {
		return nil, err
	}
	return p, nil
}

// Next returns the next permutation of indices 0..n-1. The returned ordering
// is a valid relabeling under the exchangeability rules: position i of the
// result names the original observation placed at position i.
func (p *IndexPermuter) Next() ([]int, error) {
	if p.spec.IsZero() {
		return p.rng.Perm(p.n), nil
	}
	if p.spec.IsFlat() {
		return p.flatPermutation()
	}
	return p.recursive(identity(p.n), 0, false)
}

// flatPermutation handles the single-level case, where the within/whole
// flags select the scheme. Requesting both simultaneously degenerates to
// unrestricted free exchange; this simplification is deliberate.
func (p *IndexPermuter) flatPermutation() ([]int, error) {
	ids := p.spec.FlatIDs()
	uniq, inverse := uniqueSorted(ids)

	// One block behaves like free exchange.
	if len(uniq) <= 1 {
		return p.rng.Perm(p.n), nil
	}

	switch {
	case p.within && p.whole:
		return p.rng.Perm(p.n), nil
	case p.whole:
		blocks := groupByBlock(len(uniq), inverse)
		size := len(blocks[0])
		for b, members := range blocks {
			if len(members) != size {
				return nil, errors.ShapeMismatch(
					"whole-block shuffling requires equal block sizes; block %d has %d members, block %d has %d",
					uniq[0], size, uniq[b], len(members))
			}
		}
		out := make([]int, 0, p.n)
		for _, b := range p.rng.Perm(len(blocks)) {
			out = append(out, blocks[b]...)
		}
		return out, nil
	case p.within:
		out := identity(p.n)
		for b := range uniq {
			members := make([]int, 0)
			for i, inv := range inverse {
				if inv == b {
					members = append(members, i)
				}
			}
			shuffled := shuffledCopy(p.rng, members)
			for k, pos := range members {
				out[pos] = shuffled[k]
			}
		}
		return out, nil
	default:
		// Neither flag: least restrictive well-defined behavior.
		return p.rng.Perm(p.n), nil
	}
}

// recursive implements the multi-level algorithm. The sign of a block index
// at a level encodes whether that level's grouping may be shuffled as a
// unit; an ancestor's negative (fix-order) instruction always dominates
// descendants, carried down through parentFix.
func (p *IndexPermuter) recursive(indices []int, level int, parentFix bool) ([]int, error) {
	if len(indices) == 0 {
		return []int{}, nil
	}
	if level >= p.spec.Levels() {
		return shuffledCopy(p.rng, indices), nil
	}
	lastLevel := level == p.spec.Levels()-1

	values := make([]int, len(indices))
	for k, idx := range indices {
		values[k] = p.spec.Value(idx, level)
	}
	uniq, inverse := uniqueSorted(values)

	if len(uniq) == 1 {
		val := uniq[0]
		if val == 0 {
			return nil, errors.InvalidBlock("block index 0 at level %d", level)
		}
		if lastLevel {
			if val > 0 {
				return shuffledCopy(p.rng, indices), nil
			}
			return append([]int(nil), indices...), nil
		}
		if val < 0 {
			// Negative: descend with the fix-order instruction.
			return p.recursive(indices, level+1, true)
		}
		// Positive: shuffle the order of the sub-blocks found one level down.
		subValues := make([]int, len(indices))
		for k, idx := range indices {
			subValues[k] = p.spec.Value(idx, level+1)
		}
		subUniq, subInverse := uniqueSorted(subValues)
		if len(subUniq) <= 1 {
			return p.recursive(indices, level+1, false)
		}
		subBlocks := make([][]int, len(subUniq))
		for k, idx := range indices {
			subBlocks[subInverse[k]] = append(subBlocks[subInverse[k]], idx)
		}
		size := len(subBlocks[0])
		for b := range subBlocks {
			if len(subBlocks[b]) != size {
				return nil, errors.ShapeMismatch(
					"level %d (positive index %d) requires equal-sized sub-blocks at level %d; block %d has %d members, expected %d",
					level, val, level+1, subUniq[b], len(subBlocks[b]), size)
			}
		}
		permuted := make([][]int, len(subBlocks))
		for b := range subBlocks {
			// Each sub-block's own sign decides its descendants' order.
			sub, err := p.recursive(subBlocks[b], level+1, subUniq[b] < 0)
			if err != nil {
				return nil, err
			}
			permuted[b] = sub
		}
		out := make([]int, 0, len(indices))
		for _, b := range p.rng.Perm(len(permuted)) {
			out = append(out, permuted[b]...)
		}
		return out, nil
	}

	// Multiple sibling blocks at this level.
	pos, neg := false, false
	for _, v := range uniq {
		if v == 0 {
			return nil, errors.InvalidBlock("block index 0 at level %d", level)
		}
		if v > 0 {
			pos = true
		} else {
			neg = true
		}
	}
	if pos && neg {
		return nil, errors.AmbiguousStructure(
			"level %d mixes positive and negative block indices under one parent", level)
	}
	positive := pos

	if parentFix {
		// An ancestor fixed the order: concatenate children in input order.
		// Each child's own sign still governs its interior.
		out := make([]int, 0, len(indices))
		for _, b := range appearanceOrder(inverse, len(uniq)) {
			members := membersOf(indices, inverse, b)
			if lastLevel {
				if uniq[b] > 0 {
					members = shuffledCopy(p.rng, members)
				}
				out = append(out, members...)
				continue
			}
			sub, err := p.recursive(members, level+1, uniq[b] < 0)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
		return out, nil
	}

	if lastLevel {
		if positive {
			return shuffledCopy(p.rng, indices), nil
		}
		out := make([]int, 0, len(indices))
		for _, b := range appearanceOrder(inverse, len(uniq)) {
			out = append(out, membersOf(indices, inverse, b)...)
		}
		return out, nil
	}

	// Intermediate level, parent allowed shuffling: recurse into each block,
	// then reassemble in shuffled or original order per this level's sign.
	permuted := make([][]int, len(uniq))
	for b := range uniq {
		members := membersOf(indices, inverse, b)
		sub, err := p.recursive(members, level+1, uniq[b] < 0)
		if err != nil {
			return nil, err
		}
		permuted[b] = sub
	}
	out := make([]int, 0, len(indices))
	if positive {
		for _, b := range p.rng.Perm(len(permuted)) {
			out = append(out, permuted[b]...)
		}
	} else {
		for _, b := range appearanceOrder(inverse, len(permuted)) {
			out = append(out, permuted[b]...)
		}
	}
	return out, nil
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func shuffledCopy(rng *rand.Rand, indices []int) []int {
	out := make([]int, len(indices))
	for k, j := range rng.Perm(len(indices)) {
		out[k] = indices[j]
	}
	return out
}

// uniqueSorted returns the distinct values in ascending order plus, for each
// input position, the index of its value in the unique list.
func uniqueSorted(values []int) ([]int, []int) {
	seen := map[int]bool{}
	uniq := make([]int, 0)
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			uniq = append(uniq, v)
		}
	}
	for i := 1; i < len(uniq); i++ {
		for j := i; j > 0 && uniq[j] < uniq[j-1]; j-- {
			uniq[j], uniq[j-1] = uniq[j-1], uniq[j]
		}
	}
	rank := make(map[int]int, len(uniq))
	for i, v := range uniq {
		rank[v] = i
	}
	inverse := make([]int, len(values))
	for i, v := range values {
		inverse[i] = rank[v]
	}
	return uniq, inverse
}

// appearanceOrder lists block ranks in the order they first occur, so
// fixed-order concatenation preserves the input ordering of blocks.
func appearanceOrder(inverse []int, nBlocks int) []int {
	order := make([]int, 0, nBlocks)
	seen := make([]bool, nBlocks)
	for _, b := range inverse {
		if !seen[b] {
			seen[b] = true
			order = append(order, b)
		}
	}
	return order
}

func groupByBlock(nBlocks int, inverse []int) [][]int {
	blocks := make([][]int, nBlocks)
	for i, b := range inverse {
		blocks[b] = append(blocks[b], i)
	}
	return blocks
}

func membersOf(indices []int, inverse []int, block int) []int {
	members := make([]int, 0)
	for k, b := range inverse {
		if b == block {
			members = append(members, indices[k])
		}
	}
	return members
}
