package reconciler

// subsetSumDFS finds a subset of amounts (integer cents) summing exactly to
// target, preferring the smallest cardinality — a single-order match beats
// a pair, a pair beats a triple. Ties among equal-size subsets are broken
// by search order, so callers should pass amounts already sorted by
// ascending created_at (and ascending amount within a tie) to get the
// spec's deterministic tie-break for free.
//
// Two prunes bound the search: a candidate larger than the remaining target
// is skipped outright, and a branch whose path length already matches or
// exceeds the best known solution is abandoned. The search stops the
// instant a single-element solution is found, since nothing can improve on it.
func subsetSumDFS(amounts []int64, target int64) []int {
	var best []int

	var dfs func(start int, remaining int64, path []int)
	dfs = func(start int, remaining int64, path []int) {
		if remaining == 0 {
			if best == nil || len(path) < len(best) {
				best = append([]int(nil), path...)
			}
			return
		}
		if remaining < 0 {
			return
		}
		if best != nil && len(best) == 1 {
			return
		}
		for i := start; i < len(amounts); i++ {
			if amounts[i] > remaining {
				continue
			}
			if best != nil && len(path)+1 >= len(best) {
				return
			}
			dfs(i+1, remaining-amounts[i], append(path, i))
		}
	}

	dfs(0, target, nil)
	return best
}
