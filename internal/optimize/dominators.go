package optimize

import "nyx/internal/ssa"

// immediateDominators computes each block's immediate dominator by the
// same classic iterative dataflow fixed point internal/borrow's checker
// uses (Dom(b) = {b} ∪ (∩ Dom(p) for p in Preds(b)), Block.Preds already
// excluding back edges). Kept as its own small copy here rather than a
// shared helper package: the two analyses consume the dominator tree
// differently (borrow walks up it per read, CSE walks down it once) and
// neither depends on the other's presence.
func immediateDominators(fn *ssa.Function) map[*ssa.Block]*ssa.Block {
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
