package borrow

import "nyx/internal/ssa"

// dominatorSets computes, for every reachable block, the set of blocks
// that dominate it: Dom(entry) = {entry}, Dom(b) = {b} ∪ (∩ Dom(p) for
// p in Preds(b)) elsewhere, by iterating to a fixed point. Block.Preds
// intentionally excludes back edges (internal/lifter's documented
// choice), which is exactly the restriction a dominator computation
// needs: a loop header's dominance is decided from its forward
// predecessors alone, never from the body that loops back to it.
func dominatorSets(fn *ssa.Function) map[*ssa.Block]map[*ssa.Block]bool {
	all := make(map[*ssa.Block]bool, len(fn.Blocks))
	for _, b := range fn.Blocks {
		all[b] = true
	}

	dom := make(map[*ssa.Block]map[*ssa.Block]bool, len(fn.Blocks))
	for _, b := range fn.Blocks {
		if b == fn.Entry {
			dom[b] = map[*ssa.Block]bool{b: true}
		} else {
			dom[b] = cloneSet(all)
		}
	}

	changed := true
	for changed {
		changed = false
		for _, b := range fn.Blocks {
			if b == fn.Entry {
				continue
			}
			var next map[*ssa.Block]bool
			for _, p := range b.Preds {
				if next == nil {
					next = cloneSet(dom[p])
					continue
				}
				for k := range next {
					if !dom[p][k] {
						delete(next, k)
					}
				}
			}
			if next == nil {
				next = map[*ssa.Block]bool{}
			}
			next[b] = true
			if !setsEqual(next, dom[b]) {
				dom[b] = next
				changed = true
			}
		}
	}
	return dom
}

// immediateDominators derives each block's immediate dominator from its
// full dominator set: dominators form a chain along any single-entry
// CFG path, so the immediate dominator is simply the proper dominator
// whose own dominator set is largest (i.e. closest to b).
func immediateDominators(fn *ssa.Function) map[*ssa.Block]*ssa.Block {
	dom := dominatorSets(fn)
	idom := make(map[*ssa.Block]*ssa.Block, len(fn.Blocks))
	for _, b := range fn.Blocks {
		if b == fn.Entry {
			continue
		}
		var best *ssa.Block
		for d := range dom[b] {
			if d == b {
				continue
			}
			if best == nil || len(dom[d]) > len(dom[best]) {
				best = d
			}
		}
		idom[b] = best
	}
	return idom
}

func cloneSet(s map[*ssa.Block]bool) map[*ssa.Block]bool {
	out := make(map[*ssa.Block]bool, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func setsEqual(a, b map[*ssa.Block]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
