// Package optimize applies the standard fixed-point SSA optimization
// pipeline of spec §4.9 to IR that has already been through
// internal/typeinfer (for its type-specialized opcodes) and
// internal/borrow (diagnostics only — this package never looks at
// Ownership). Six passes run in order, repeating the whole sequence
// until one full round changes nothing:
//
//  1. dead-code elimination
//  2. constant folding
//  3. copy propagation
//  4. common-subexpression elimination
//  5. branch simplification
//  6. unreachable-block removal
//
// Every pass preserves SSA form: a value is never redefined, and a
// block's Phis always stay aligned one-for-one with its Preds.
package optimize

import (
	"fmt"
	"math"

	"golang.org/x/exp/slices"

	"nyx/internal/ssa"
)

// Optimize runs OptimizeFunction over every function in prog.
func Optimize(prog *ssa.Program) {
	for _, fn := range prog.Functions {
		OptimizeFunction(fn)
	}
}

// maxRounds bounds the fixed-point loop defensively; six monotonically
// shrinking passes over a function with finitely many ops and blocks
// converge in a handful of rounds in practice, never in the hundreds.
const maxRounds = 64

// OptimizeFunction rewrites fn in place to a fixed point.
func OptimizeFunction(fn *ssa.Function) {
	for i := 0; i < maxRounds; i++ {
		changed := false
		changed = eliminateDeadCode(fn) || changed
		changed = foldConstants(fn) || changed
		changed = propagateTrivialCopies(fn) || changed
		changed = eliminateCommonSubexpressions(fn) || changed
		changed = simplifyBranches(fn) || changed
		changed = removeUnreachableBlocks(fn) || changed
		if !changed {
			break
		}
	}
}

// ---------------------------------------------------------------- uses

// countUses tallies every register read anywhere in fn: op arguments,
// callee registers, phi incoming values, and terminator operands.
func countUses(fn *ssa.Function) map[ssa.Reg]int {
	uses := make(map[ssa.Reg]int)
	add := func(r ssa.Reg) {
		if r != ssa.NoReg {
			uses[r]++
		}
	}
	for _, blk := range fn.Blocks {
		for _, phi := range blk.Phis {
			for _, in := range phi.Incoming {
				add(in)
			}
		}
		for _, op := range blk.Ops {
			for _, a := range op.Args {
				add(a)
			}
			add(op.CalleeReg)
		}
		add(blk.Term.Cond)
		if blk.Term.HasVal {
			add(blk.Term.Value)
		}
	}
	return uses
}

// replaceReg rewrites every occurrence of old with replacement, in phi
// incoming lists, op arguments/callee registers, and terminators — the
// substitution copy propagation and CSE both need once they prove two
// registers always carry the same value.
func replaceReg(fn *ssa.Function, old, replacement ssa.Reg) {
	if old == replacement {
		return
	}
	sub := func(r ssa.Reg) ssa.Reg {
		if r == old {
			return replacement
		}
		return r
	}
	for _, blk := range fn.Blocks {
		for _, phi := range blk.Phis {
			for i, in := range phi.Incoming {
				phi.Incoming[i] = sub(in)
			}
		}
		for _, op := range blk.Ops {
			for i, a := range op.Args {
				op.Args[i] = sub(a)
			}
			op.CalleeReg = sub(op.CalleeReg)
		}
		blk.Term.Cond = sub(blk.Term.Cond)
		if blk.Term.HasVal {
			blk.Term.Value = sub(blk.Term.Value)
		}
	}
}

// ---------------------------------------------------------- dead code

// pureOps are value-producing ops with no observable effect beyond
// their own result: safe to drop outright when nothing ever reads
// their destination. Memory ops (StoreLocal, SetProp, StoreElement,
// ...), calls, closure construction and module/await ops are never in
// this set, matching them always having Dst == NoReg or being excluded
// below, so DCE leaves them untouched even when their result register
// (if any) goes unused.
var pureOps = map[ssa.Opcode]bool{
	ssa.OpConst: true, ssa.OpLoadGlobal: true, ssa.OpLoadThis: true, ssa.OpLoadLocal: true,
	ssa.OpAddAny: true, ssa.OpSubAny: true, ssa.OpMulAny: true, ssa.OpDivAny: true, ssa.OpModAny: true, ssa.OpNegAny: true,
	ssa.OpNotAny: true, ssa.OpAndAny: true, ssa.OpOrAny: true,
	ssa.OpEqAny: true, ssa.OpNotEqAny: true, ssa.OpLtAny: true, ssa.OpLtEqAny: true, ssa.OpGtAny: true, ssa.OpGtEqAny: true,
	ssa.OpAddNum: true, ssa.OpSubNum: true, ssa.OpMulNum: true, ssa.OpDivNum: true, ssa.OpModNum: true, ssa.OpNegNum: true,
	ssa.OpEqNum: true, ssa.OpNotEqNum: true, ssa.OpLtNum: true, ssa.OpLtEqNum: true, ssa.OpGtNum: true, ssa.OpGtEqNum: true,
	ssa.OpConcatStr: true, ssa.OpEqStr: true, ssa.OpNotEqStr: true,
}

func eliminateDeadCode(fn *ssa.Function) bool {
	uses := countUses(fn)
	changed := false
	for _, blk := range fn.Blocks {
		kept := blk.Ops[:0:0]
		for _, op := range blk.Ops {
			if op.Dst != ssa.NoReg && pureOps[op.Code] && uses[op.Dst] == 0 {
				changed = true
				continue
			}
			kept = append(kept, op)
		}
		blk.Ops = kept
	}
	return changed
}

// --------------------------------------------------------- constants

// foldConstants evaluates a type-specialized numeric/string op (or the
// dynamic boolean-negation op, whose result is fully determined by any
// constant operand regardless of its type) whose every operand traces
// back to an OpConst, replacing it with the computed OpConst in place.
func foldConstants(fn *ssa.Function) bool {
	defs := regDefs(fn)
	changed := false
	for _, blk := range fn.Blocks {
		for _, op := range blk.Ops {
			if foldOp(op, defs) {
				changed = true
			}
		}
	}
	return changed
}

func regDefs(fn *ssa.Function) map[ssa.Reg]*ssa.Op {
	defs := make(map[ssa.Reg]*ssa.Op)
	for _, blk := range fn.Blocks {
		for _, op := range blk.Ops {
			if op.Dst != ssa.NoReg {
				defs[op.Dst] = op
			}
		}
	}
	return defs
}

func constOperands(op *ssa.Op, defs map[ssa.Reg]*ssa.Op) ([]interface{}, bool) {
	out := make([]interface{}, len(op.Args))
	for i, a := range op.Args {
		def, ok := defs[a]
		if !ok || def.Code != ssa.OpConst {
			return nil, false
		}
		out[i] = def.Const
	}
	return out, true
}

func foldOp(op *ssa.Op, defs map[ssa.Reg]*ssa.Op) bool {
	switch op.Code {
	case ssa.OpNotAny:
		vals, ok := constOperands(op, defs)
		if !ok || len(vals) != 1 {
			return false
		}
		setConst(op, !truthy(vals[0]))
		return true

	case ssa.OpAddNum, ssa.OpSubNum, ssa.OpMulNum, ssa.OpDivNum, ssa.OpModNum,
		ssa.OpEqNum, ssa.OpNotEqNum, ssa.OpLtNum, ssa.OpLtEqNum, ssa.OpGtNum, ssa.OpGtEqNum:
		vals, ok := constOperands(op, defs)
		if !ok || len(vals) != 2 {
			return false
		}
		x, xok := vals[0].(float64)
		y, yok := vals[1].(float64)
		if !xok || !yok {
			return false
		}
		setConst(op, foldNum(op.Code, x, y))
		return true

	case ssa.OpNegNum:
		vals, ok := constOperands(op, defs)
		if !ok || len(vals) != 1 {
			return false
		}
		x, xok := vals[0].(float64)
		if !xok {
			return false
		}
		setConst(op, -x)
		return true

	case ssa.OpConcatStr, ssa.OpEqStr, ssa.OpNotEqStr:
		vals, ok := constOperands(op, defs)
		if !ok || len(vals) != 2 {
			return false
		}
		x, xok := vals[0].(string)
		y, yok := vals[1].(string)
		if !xok || !yok {
			return false
		}
		setConst(op, foldStr(op.Code, x, y))
		return true
	}
	return false
}

func foldNum(code ssa.Opcode, x, y float64) interface{} {
	switch code {
	case ssa.OpAddNum:
		return x + y
	case ssa.OpSubNum:
		return x - y
	case ssa.OpMulNum:
		return x * y
	case ssa.OpDivNum:
		return x / y
	case ssa.OpModNum:
		return math.Mod(x, y)
	case ssa.OpEqNum:
		return x == y
	case ssa.OpNotEqNum:
		return x != y
	case ssa.OpLtNum:
		return x < y
	case ssa.OpLtEqNum:
		return x <= y
	case ssa.OpGtNum:
		return x > y
	case ssa.OpGtEqNum:
		return x >= y
	}
	panic(fmt.Sprintf("optimize: foldNum given non-numeric opcode %s", code))
}

func foldStr(code ssa.Opcode, x, y string) interface{} {
	switch code {
	case ssa.OpConcatStr:
		return x + y
	case ssa.OpEqStr:
		return x == y
	case ssa.OpNotEqStr:
		return x != y
	}
	panic(fmt.Sprintf("optimize: foldStr given non-string opcode %s", code))
}

func setConst(op *ssa.Op, v interface{}) {
	op.Code = ssa.OpConst
	op.Const = v
	op.Args = nil
}

// truthy mirrors internal/vmvalue.Value.Truthy(): nil/false/0/NaN are
// the only falsy values this runtime has — strings are always truthy
// even when empty, unlike JavaScript's coercion rule.
func truthy(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	default:
		return true
	}
}

// ----------------------------------------------------- copy propagation

// propagateTrivialCopies removes any phi left with exactly one incoming
// value — the shape branch simplification and unreachable-block
// removal produce once they prune a join down to a single surviving
// predecessor — replacing every use of its destination with that one
// incoming register (spec's "replace v2 = v1 chains by v1").
func propagateTrivialCopies(fn *ssa.Function) bool {
	changed := false
	for _, blk := range fn.Blocks {
		kept := blk.Phis[:0:0]
		for _, phi := range blk.Phis {
			if len(phi.Incoming) == 1 {
				replaceReg(fn, phi.Dst, phi.Incoming[0])
				changed = true
				continue
			}
			kept = append(kept, phi)
		}
		blk.Phis = kept
	}
	return changed
}

// -------------------------------------------------------------- CSE

// cseEligible are the ops a dominator-scoped value table may safely
// dedupe: pure register/constant reads, LoadLocal (guarded by
// invalidating on an intervening StoreLocal to the same slot, and by
// dropping every inherited LoadLocal on entry to a loop header, below),
// and every arithmetic/comparison op. Ops with their own fresh identity
// each time they run (NewObject, NewArray, MakeClosure, Construct) are
// excluded — two `{}` literals are two distinct objects even when
// nothing yet distinguishes their contents — and so are property/
// element reads, since proving two loads see the same value would
// require alias analysis this pass doesn't attempt.
var cseEligible = map[ssa.Opcode]bool{}

func init() {
	for code := range pureOps {
		cseEligible[code] = true
	}
}

func eliminateCommonSubexpressions(fn *ssa.Function) bool {
	idom := immediateDominators(fn)
	children := make(map[*ssa.Block][]*ssa.Block)
	for _, b := range fn.Blocks {
		if p, ok := idom[b]; ok && p != nil {
			children[p] = append(children[p], b)
		}
	}
	for p := range children {
		slices.SortFunc(children[p], func(a, b *ssa.Block) bool { return a.Label < b.Label })
	}
	loopHeader := make(map[*ssa.Block]bool)
	for _, b := range fn.Blocks {
		for _, s := range b.Succs {
			for d := b; d != nil; d = idom[d] {
				loopHeader[s] = loopHeader[s] || d == s
			}
		}
	}

	changed := false
	var visit func(blk *ssa.Block, avail map[string]ssa.Reg)
	visit = func(blk *ssa.Block, avail map[string]ssa.Reg) {
		local := make(map[string]ssa.Reg, len(avail))
		for k, v := range avail {
			if loopHeader[blk] && len(k) > 5 && k[:5] == "load:" {
				continue
			}
			local[k] = v
		}

		kept := blk.Ops[:0:0]
		for _, op := range blk.Ops {
			if op.Code == ssa.OpStoreLocal {
				delete(local, "load:"+op.Slot)
				kept = append(kept, op)
				continue
			}
			if op.Dst != ssa.NoReg && cseEligible[op.Code] {
				key := cseKey(op)
				if prior, ok := local[key]; ok {
					replaceReg(fn, op.Dst, prior)
					changed = true
					continue
				}
				local[key] = op.Dst
			}
			kept = append(kept, op)
		}
		blk.Ops = kept

		for _, c := range children[blk] {
			visit(c, local)
		}
	}
	if fn.Entry != nil {
		visit(fn.Entry, map[string]ssa.Reg{})
	}
	return changed
}

func cseKey(op *ssa.Op) string {
	if op.Code == ssa.OpLoadLocal {
		return "load:" + op.Slot
	}
	return fmt.Sprintf("%d|%#v|%v", op.Code, op.Const, op.Args)
}

// ------------------------------------------------------ branch/reach

// simplifyBranches rewrites Branch(const) into an unconditional Jump to
// the statically selected successor.
func simplifyBranches(fn *ssa.Function) bool {
	defs := regDefs(fn)
	changed := false
	for _, blk := range fn.Blocks {
		if blk.Term.Kind != ssa.TermBranch {
			continue
		}
		def, ok := defs[blk.Term.Cond]
		if !ok || def.Code != ssa.OpConst {
			continue
		}
		target := blk.Term.IfFalse
		if truthy(def.Const) {
			target = blk.Term.IfTrue
		}
		blk.Term = ssa.Terminator{Kind: ssa.TermJump, Target: target}
		blk.Succs = []*ssa.Block{target}
		changed = true
	}
	return changed
}

// removeUnreachableBlocks deletes every block with no predecessor
// except fn.Entry (which has none by construction), then prunes each
// remaining block's phis down to the predecessors that still exist,
// keeping Phi.Incoming aligned one-for-one with Block.Preds.
func removeUnreachableBlocks(fn *ssa.Function) bool {
	reachable := map[*ssa.Block]bool{fn.Entry: true}
	queue := []*ssa.Block{fn.Entry}
	for len(queue) > 0 {
		b := queue[0]
		queue = queue[1:]
		for _, s := range b.Succs {
			if !reachable[s] {
				reachable[s] = true
				queue = append(queue, s)
			}
		}
	}

	changed := false
	kept := fn.Blocks[:0:0]
	for _, b := range fn.Blocks {
		if b == fn.Entry || reachable[b] {
			kept = append(kept, b)
			continue
		}
		changed = true
	}
	fn.Blocks = kept

	for _, b := range fn.Blocks {
		survivingPreds := b.Preds[:0:0]
		keepIdx := make([]int, 0, len(b.Preds))
		for i, p := range b.Preds {
			if reachable[p] {
				survivingPreds = append(survivingPreds, p)
				keepIdx = append(keepIdx, i)
			}
		}
		if len(survivingPreds) != len(b.Preds) {
			changed = true
			b.Preds = survivingPreds
			for _, phi := range b.Phis {
				prunedIncoming := make([]ssa.Reg, 0, len(keepIdx))
				for _, i := range keepIdx {
					prunedIncoming = append(prunedIncoming, phi.Incoming[i])
				}
				phi.Incoming = prunedIncoming
			}
		}
	}
	return changed
}
