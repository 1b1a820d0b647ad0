package lifter

import (
	"fmt"

	"nyx/internal/bytecode"
	"nyx/internal/diag"
)

// irreducibleOps are bytecode operations the lifter has no SSA lowering
// for: the exception machinery's non-structured control transfers (spec
// §4.6 explicitly allows the lifter to reject these with a lifting
// error rather than model them, since a thrown exception can unwind to
// any enclosing try region, not just the next instruction or a single
// patched jump target).
var irreducibleOps = map[bytecode.Op]bool{
	bytecode.OpThrow:        true,
	bytecode.OpSetupTry:     true,
	bytecode.OpPopTry:       true,
	bytecode.OpEnterFinally: true,
}

// discoverLeaders flood-fills the control-flow graph reachable from
// entry, following only real edges (Jump targets, JumpIfFalse's taken
// target and its fallthrough, Return/Halt as dead ends). Because a
// MakeClosure instruction is never itself a control transfer — its body
// range is skipped over by the enclosing function's own unconditional
// Jump, landing exactly on the MakeClosure instruction (spec §4.6,
// grounded on how internal/compiler/func.go lays out compileFunctionLit)
// — this traversal never enters a nested closure's body, which is
// exactly what lets each MakeClosure site become its own independent
// lift rather than inlined into its parent.
//
// order records leader addresses in first-reference order (entry
// first), matching the determinism rule that blocks in the lifted
// ssa.Function are ordered entry-first-then-by-first-reference (spec
// §3.5). leaders is the same set keyed for O(1) membership checks.
func discoverLeaders(code []bytecode.Instruction, entry int) (order []int, leaders map[int]bool, err error) {
	leaders = map[int]bool{entry: true}
	order = []int{entry}
	queue := []int{entry}

	add := func(addr int) {
		if !leaders[addr] {
			leaders[addr] = true
			order = append(order, addr)
			queue = append(queue, addr)
		}
	}

	for len(queue) > 0 {
		start := queue[0]
		queue = queue[1:]

		ip := start
		for {
			if ip < 0 || ip >= len(code) {
				return nil, nil, diag.NewLiftingError("control flow runs past the end of the program")
			}
			instr := code[ip]
			if irreducibleOps[instr.Op] {
				return nil, nil, diag.NewLiftingError(fmt.Sprintf("non-reducible control flow: %s has no SSA lowering", instr.Op))
			}
			switch instr.Op {
			case bytecode.OpJump:
				add(instr.A)
				ip = -1 // sentinel: run ends here
			case bytecode.OpJumpIfFalse:
				add(instr.A)
				add(ip + 1)
				ip = -1
			case bytecode.OpReturn, bytecode.OpHalt:
				ip = -1
			}
			if ip < 0 {
				break
			}
			ip++
		}
	}
	return order, leaders, nil
}

// blockEnd returns the address one past the last instruction of the
// straight-line run starting at addr: either a real terminator
// (Jump/JumpIfFalse/Return/Halt) or another leader reached purely by
// fallthrough (the classic mid-run split a backward branch forces,
// e.g. a while loop's condition re-entered by its own back edge).
func blockEnd(code []bytecode.Instruction, addr int, leaders map[int]bool) int {
	ip := addr
	for {
		if ip != addr && leaders[ip] {
			return ip
		}
		instr := code[ip]
		switch instr.Op {
		case bytecode.OpJump, bytecode.OpJumpIfFalse, bytecode.OpReturn, bytecode.OpHalt:
			return ip + 1
		}
		ip++
	}
}
