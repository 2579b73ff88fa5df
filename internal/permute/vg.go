package permute

import (
	"permstat/domain/glm"
	"permstat/internal/errors"
)

// VarianceGroups derives a variance-group labelling (1-based) from an
// exchangeability specification. Observations that remain exchangeable with
// each other under the permutation scheme share a group:
//
//   - within-block shuffling puts each block in its own group;
//   - whole-block shuffling groups observations by their position inside the
//     block, since position k of one block only ever swaps with position k of
//     another;
//   - free exchange collapses everything into a single group.
//
// A single distinct group value means "no variance grouping" and callers are
// expected to fall back to standard statistics.
func VarianceGroups(spec glm.BlockSpec, within, whole bool) ([]int, error) {
	n := spec.N()
	if n == 0 {
		return []int{}, nil
	}
	if n == 1 {
		return []int{1}, nil
	}

	if spec.IsFlat() {
		return flatVarianceGroups(spec, within, whole)
	}
	return nestedVarianceGroups(spec)
}

func flatVarianceGroups(spec glm.BlockSpec, within, whole bool) ([]int, error) {
	n := spec.N()
	ids := spec.FlatIDs()
	uniq, inverse := uniqueSorted(ids)

	if len(uniq) <= 1 {
		return singleGroup(n), nil
	}

	switch {
	case within && whole:
		// Simultaneous within and whole means free exchange.
		return singleGroup(n), nil
	case whole:
		blocks := groupByBlock(len(uniq), inverse)
		size := len(blocks[0])
		for b := range blocks {
			if len(blocks[b]) != size {
				return nil, errors.ShapeMismatch(
					"whole-block variance grouping requires equal block sizes; block %d has %d members, expected %d",
					uniq[b], len(blocks[b]), size)
			}
		}
		out := make([]int, n)
		seen := map[int]int{}
		for i := 0; i < n; i++ {
			pos := seen[ids[i]]
			out[i] = pos + 1
			seen[ids[i]] = pos + 1
		}
		return out, nil
	case within:
		out := make([]int, n)
		for i, b := range inverse {
			out[i] = b + 1
		}
		return out, nil
	default:
		return singleGroup(n), nil
	}
}

// nestedVarianceGroups handles the two-level reading of a block matrix: a
// positive first level implies whole-block shuffling of the second level's
// blocks, a negative first level implies within-block shuffling.
func nestedVarianceGroups(spec glm.BlockSpec) ([]int, error) {
	n := spec.N()
	pos, neg := false, false
	for i := 0; i < n; i++ {
		if spec.Value(i, 0) > 0 {
			pos = true
		} else {
			neg = true
		}
	}
	if pos && neg {
		return nil, errors.AmbiguousStructure(
			"first-level block indices are not consistently positive or negative; automatic variance grouping is not defined for this structure")
	}

	sub := make([]int, n)
	for i := 0; i < n; i++ {
		sub[i] = spec.Value(i, 1)
	}
	subUniq, subInverse := uniqueSorted(sub)

	if pos {
		// Whole-block shuffling of second-level blocks: group by position.
		counts := make([]int, len(subUniq))
		for _, b := range subInverse {
			counts[b]++
		}
		size := counts[0]
		uniform := true
		allOne := true
		for _, c := range counts {
			if c != size {
				uniform = false
			}
			if c != 1 {
				allOne = false
			}
		}
		if !uniform && !allOne {
			return nil, errors.ShapeMismatch(
				"positive first-level indices imply whole-block shuffling and require equal-sized second-level blocks, got sizes %v", counts)
		}
		if allOne || size == 1 {
			return singleGroup(n), nil
		}
		out := make([]int, n)
		seen := map[int]int{}
		for i := 0; i < n; i++ {
			p := seen[sub[i]]
			out[i] = p + 1
			seen[sub[i]] = p + 1
		}
		return out, nil
	}

	// Negative: within-block shuffling, one group per second-level block.
	if len(subUniq) <= 1 {
		return singleGroup(n), nil
	}
	out := make([]int, n)
	for i, b := range subInverse {
		out[i] = b + 1
	}
	return out, nil
}

// CountGroups returns the number of distinct labels in a variance-group
// vector.
func CountGroups(vg []int) int {
	seen := map[int]bool{}
	for _, g := range vg {
		seen[g] = true
	}
	return len(seen)
}

func singleGroup(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = 1
	}
	return out
}
