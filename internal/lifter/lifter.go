// Package lifter abstractly interprets a bytecode.Program into the
// ssa package's register-based IR (spec §4.6), the bridge between the
// stack-machine bytecode the compiler emits and the middle end
// (internal/typeinfer, internal/borrow, internal/optimize) that only
// ever sees SSA.
//
// The lift is a two-phase, reachability-based abstract interpretation
// per function: discoverLeaders (cfg.go) flood-fills the control-flow
// graph following only real edges, so a MakeClosure's body — skipped
// over by its enclosing function's own unconditional Jump, landing
// exactly on the MakeClosure instruction itself (internal/compiler/
// func.go's compileFunctionLit) — is never visited from the parent's
// own traversal. Each MakeClosure instruction instead seeds its own
// independent lift, recursively, the moment it is encountered.
//
// Named local variables (Let/Store/Load/Drop) are lowered to LoadLocal/
// StoreLocal ops addressed by name rather than promoted into phi'd SSA
// registers: this compiler's own bytecode already treats locals as
// named frame-dictionary memory, never as flat slots (StoreLocal/
// LoadLocal, the slot-indexed bytecode ops, are defined in the ISA but
// never emitted by internal/compiler and rejected at runtime by
// internal/vm/vm.go as "not used by this compiler" — this lifter treats
// them the same way, as an unreachable shape). Only the evaluation
// stack is promoted to true SSA values with explicit Phi nodes at
// merges, because it is the only place this bytecode ever leaves a
// value live across a branch join (&&, ||, ??, and the ternary operator
// — see internal/compiler/expr.go's compileLogical/compileTernary).
package lifter

import (
	"fmt"
	"sort"

	"nyx/internal/bytecode"
	"nyx/internal/diag"
	"nyx/internal/ssa"
)

// liftCtx accumulates every function discovered across a whole Lift
// call — the module body plus every closure reachable (directly or
// transitively) from it — and memoizes by entry address so a closure
// literal bytecode never lifts twice.
type liftCtx struct {
	functions []*ssa.Function
	memo      map[int]*ssa.Function
	anonSeq   int
}

// Lift converts prog into a deterministic ssa.Program rooted at
// entryAddr (the module's top-level code, i.e. whatever
// bytecode.Program.Append returned for the entry chunk). Functions are
// returned sorted lexicographically by name (spec §3.5's determinism
// rule); Program.Entry always identifies the module body regardless of
// where its name falls in that order.
func Lift(prog *bytecode.Program, entryAddr int) (*ssa.Program, error) {
	ctx := &liftCtx{memo: make(map[int]*ssa.Function)}
	module, err := liftFunctionAt(ctx, prog, "<module>", entryAddr, 0, false, nil, nil)
	if err != nil {
		return nil, err
	}
	ctx.functions = append(ctx.functions, module)

	out := ssa.NewProgram()
	out.Entry = module
	out.Functions = append(out.Functions, ctx.functions...)
	sort.Slice(out.Functions, func(i, j int) bool { return out.Functions[i].Name < out.Functions[j].Name })
	return out, nil
}

// liftClosure lifts the function a MakeClosure instruction constructs,
// recursively, memoizing on its body address.
func (ctx *liftCtx) liftClosure(prog *bytecode.Program, in bytecode.Instruction) (*ssa.Function, error) {
	bodyAddr := in.A
	if fn, ok := ctx.memo[bodyAddr]; ok {
		return fn, nil
	}
	name := in.Name
	if name == "" {
		ctx.anonSeq++
		name = fmt.Sprintf("<closure:%d:%d>", bodyAddr, ctx.anonSeq)
	}
	params, ownerships := paramBindings(prog.Code, bodyAddr, in.B)
	fn, err := liftFunctionAt(ctx, prog, name, bodyAddr, in.B, in.Flag, params, ownerships)
	if err != nil {
		return nil, err
	}
	ctx.memo[bodyAddr] = fn
	ctx.functions = append(ctx.functions, fn)
	return fn, nil
}

// paramBindings recovers a function's declared parameter names and
// surface ownership sigils from the arity leading OpLet instructions at
// its body address: compileFunctionLit emits `Let param[N-1]`, `Let
// param[N-2]`, ..., `Let param[0]`, in that reversed order, to match the
// calling convention's left-to-right argument push
// (internal/compiler/func.go, internal/vm/call.go's pushClosureFrame).
func paramBindings(code []bytecode.Instruction, bodyAddr, arity int) ([]string, []ssa.Ownership) {
	names := make([]string, arity)
	ownerships := make([]ssa.Ownership, arity)
	for i := 0; i < arity; i++ {
		ip := bodyAddr + i
		if ip >= 0 && ip < len(code) && code[ip].Op == bytecode.OpLet {
			names[arity-1-i] = code[ip].Name
			ownerships[arity-1-i] = ownershipFromSigil(code[ip].Ownership)
		}
	}
	return names, ownerships
}

// liftFunctionAt lifts the function whose reachable code starts at
// entry into a complete ssa.Function: register allocation for its
// parameters, leader/block discovery, per-block symbolic execution, and
// CFG wiring.
func liftFunctionAt(ctx *liftCtx, prog *bytecode.Program, name string, entry, arity int, isAsync bool, params []string, ownerships []ssa.Ownership) (*ssa.Function, error) {
	fn := ssa.NewFunction(name, entry)
	fn.IsAsync = isAsync

	// The calling convention pushes argument values onto the shared
	// value stack before jumping to entry (pushClosureFrame), so the
	// function's own entry stack is seeded with one register per
	// parameter, in the same left-to-right order, rather than starting
	// empty.
	entrySeed := make(stack, 0, arity)
	for i := 0; i < arity; i++ {
		r := fn.NewReg()
		pname := ""
		if i < len(params) {
			pname = params[i]
		}
		ownership := ssa.Owned
		if i < len(ownerships) {
			ownership = ownerships[i]
		}
		fn.Params = append(fn.Params, ssa.Param{Name: pname, Reg: r, Type: ssa.TypeAny, Ownership: ownership})
		entrySeed.push(r)
	}

	order, leaders, err := discoverLeaders(prog.Code, entry)
	if err != nil {
		return nil, err
	}

	blocksByAddr := make(map[int]*ssa.Block, len(order))
	for _, addr := range order {
		label := fmt.Sprintf("L%d", addr)
		if addr == entry {
			label = "entry"
		}
		blocksByAddr[addr] = &ssa.Block{Label: label, Addr: addr}
	}

	sortedAddrs := append([]int{}, order...)
	sort.Ints(sortedAddrs)

	b := &funcBuilder{ctx: ctx, prog: prog, fn: fn, regDef: make(map[ssa.Reg]*ssa.Op), entryAt: entry}

	entryStacks := make(map[int]stack, len(order))
	exitStacks := make(map[int]stack, len(order))
	forwardPreds := make(map[int][]int)

	for _, addr := range sortedAddrs {
		block := blocksByAddr[addr]

		var entrySt stack
		if addr == entry {
			entrySt = entrySeed.clone()
			block.Preds = nil
		} else {
			preds := forwardPreds[addr]
			entrySt, err = mergeStacks(fn, block, preds, exitStacks)
			if err != nil {
				return nil, err
			}
			block.Preds = blocksFor(preds, blocksByAddr)
		}
		entryStacks[addr] = entrySt

		working := entrySt.clone()
		end := blockEnd(prog.Code, addr, leaders)

		var term bytecode.Instruction
		for ip := addr; ip < end; ip++ {
			in := prog.Code[ip]
			stop, err := b.execInstr(block, &working, ip, in)
			if err != nil {
				return nil, err
			}
			if stop {
				term = in
				break
			}
			if ip == end-1 {
				term = bytecode.Instruction{Op: bytecode.OpJump, A: end}
			}
		}

		if err := finalizeTerminator(block, &working, term, end, blocksByAddr, forwardPreds, addr, entryStacks); err != nil {
			return nil, err
		}
		exitStacks[addr] = working
	}

	for _, addr := range order {
		fn.Blocks = append(fn.Blocks, blocksByAddr[addr])
	}
	fn.Entry = blocksByAddr[entry]

	linkSuccessors(fn)
	return fn, nil
}

func blocksFor(addrs []int, blocksByAddr map[int]*ssa.Block) []*ssa.Block {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]*ssa.Block, len(addrs))
	for i, a := range addrs {
		out[i] = blocksByAddr[a]
	}
	return out
}

// mergeStacks computes a block's entry stack from its known forward
// predecessors' exit stacks, inserting a Phi for any slot whose value
// differs across them (spec §3.5's "block parameters encoding SSA
// phis"). Every predecessor is required to agree on stack height: this
// compiler never leaves a branch with an unbalanced evaluation stack
// (internal/compiler/expr.go's compileLogical/compileTernary each leave
// exactly one value live at their join), so a mismatch here means the
// bytecode wasn't produced by a structured construct this lifter
// understands.
func mergeStacks(fn *ssa.Function, block *ssa.Block, preds []int, exitStacks map[int]stack) (stack, error) {
	if len(preds) == 0 {
		return stack{}, nil
	}
	if len(preds) == 1 {
		return exitStacks[preds[0]].clone(), nil
	}

	height := len(exitStacks[preds[0]])
	for _, p := range preds[1:] {
		if len(exitStacks[p]) != height {
			return nil, diag.NewLiftingError("irreducible control flow: branches join with mismatched evaluation-stack depth")
		}
	}

	merged := make(stack, height)
	for slot := 0; slot < height; slot++ {
		first := exitStacks[preds[0]][slot]
		allSame := true
		for _, p := range preds[1:] {
			if exitStacks[p][slot] != first {
				allSame = false
				break
			}
		}
		if allSame {
			merged[slot] = first
			continue
		}
		r := fn.NewReg()
		phi := &ssa.Phi{Dst: r}
		for _, p := range preds {
			phi.Incoming = append(phi.Incoming, exitStacks[p][slot])
		}
		block.Phis = append(block.Phis, phi)
		merged[slot] = r
	}
	return merged, nil
}

// finalizeTerminator closes block with the terminator term represents,
// records forward-reachable successor edges for later blocks' merge
// step, and sanity-checks backward edges (loop continuations) against
// the statement-boundary invariant that a loop header's evaluation
// stack is always empty (every while/for/do-while condition test sits
// between statements, where this compiler never leaves a stack
// residue) — a violation means irreducible control flow this lifter
// does not attempt to resolve.
func finalizeTerminator(block *ssa.Block, working *stack, term bytecode.Instruction, end int, blocksByAddr map[int]*ssa.Block, forwardPreds map[int][]int, srcAddr int, entryStacks map[int]stack) error {
	link := func(target int) {
		if target > srcAddr {
			forwardPreds[target] = append(forwardPreds[target], srcAddr)
		}
	}
	checkBack := func(target int) error {
		if target > srcAddr {
			return nil
		}
		if want, ok := entryStacks[target]; ok && len(want) != len(*working) {
			return diag.NewLiftingError(fmt.Sprintf("irreducible control flow: back edge to address %d changes evaluation-stack depth", target))
		}
		return nil
	}

	switch term.Op {
	case bytecode.OpJump:
		target := term.A
		block.Term = ssa.Terminator{Kind: ssa.TermJump, Target: blocksByAddr[target]}
		link(target)
		return checkBack(target)
	case bytecode.OpJumpIfFalse:
		cond := working.pop()
		trueTarget, falseTarget := end, term.A
		block.Term = ssa.Terminator{Kind: ssa.TermBranch, Cond: cond, IfTrue: blocksByAddr[trueTarget], IfFalse: blocksByAddr[falseTarget]}
		link(trueTarget)
		link(falseTarget)
		if err := checkBack(trueTarget); err != nil {
			return err
		}
		return checkBack(falseTarget)
	case bytecode.OpReturn:
		v := working.pop()
		block.Term = ssa.Terminator{Kind: ssa.TermReturn, Value: v, HasVal: true}
		return nil
	case bytecode.OpHalt:
		block.Term = ssa.Terminator{Kind: ssa.TermReturn}
		return nil
	default:
		return diag.NewLiftingError("block ended without a recognized terminator: " + term.Op.String())
	}
}

// linkSuccessors fills in every block's Succs, including back edges
// (which intentionally never appear in a target's Preds — see
// mergeStacks/finalizeTerminator's comments on why loop headers never
// need a phi across the back edge).
func linkSuccessors(fn *ssa.Function) {
	for _, blk := range fn.Blocks {
		switch blk.Term.Kind {
		case ssa.TermJump:
			blk.Succs = append(blk.Succs, blk.Term.Target)
		case ssa.TermBranch:
			blk.Succs = append(blk.Succs, blk.Term.IfTrue, blk.Term.IfFalse)
		}
	}
}
