// Package typeinfer runs the forward dataflow fixed-point type inference
// pass over lifted SSA (spec §4.7): every register starts at the
// lattice's bottom (ssa.TypeNever) and is raised, monotonically, as the
// ops and phis that define it are reconsidered, until no register's type
// changes across a full pass over the function's blocks. Once stable, a
// second pass rewrites each dynamic ("Any") arithmetic/comparison op to
// its type-specialized counterpart wherever both operands were proven a
// single concrete type, leaving every op it cannot specialize untouched
// — a failed specialization is never an error, only a missed one (spec
// §4.7's "silently left as dynamic ops").
package typeinfer

import "nyx/internal/ssa"

// Infer runs InferFunction over every function lifted into prog.
func Infer(prog *ssa.Program) {
	for _, fn := range prog.Functions {
		InferFunction(fn)
	}
}

// InferFunction narrows fn's register types to a fixed point and
// specializes its arithmetic/comparison ops in place.
func InferFunction(fn *ssa.Function) {
	for _, info := range fn.Values {
		info.Type = ssa.TypeNever
	}
	for _, p := range fn.Params {
		if info := fn.Values[p.Reg]; info != nil {
			info.Type = p.Type
		}
	}

	regType := func(r ssa.Reg) ssa.Type {
		if r == ssa.NoReg {
			return ssa.TypeVoid
		}
		return fn.Info(r).Type
	}

	// Named locals (LoadLocal/StoreLocal, addressed by Slot rather than
	// promoted to phi'd registers — see internal/lifter's package doc)
	// get one lattice element per slot name, joined across every store
	// to that name, the same way a phi joins its incoming registers.
	// Without this a loop counter like `i = i + 1` would never
	// specialize: every read of `i` would default straight to Any.
	slotType := make(map[string]ssa.Type)

	// The lattice has height 3 (Never < concrete < Any) and every
	// per-op/phi rule below is monotonic, so this terminates well
	// inside a couple of passes over the function's blocks; the cap is
	// a defensive backstop, not something a well-formed lift should
	// ever hit.
	maxIter := len(fn.Blocks)*2 + 4
	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for _, blk := range fn.Blocks {
			for _, phi := range blk.Phis {
				t := ssa.TypeNever
				for _, in := range phi.Incoming {
					t = ssa.Join(t, regType(in))
				}
				if info := fn.Info(phi.Dst); info.Type != t {
					info.Type = t
					changed = true
				}
			}
			for _, op := range blk.Ops {
				if op.Code == ssa.OpStoreLocal {
					if len(op.Args) == 1 {
						t := ssa.Join(slotType[op.Slot], regType(op.Args[0]))
						if t != slotType[op.Slot] {
							slotType[op.Slot] = t
							changed = true
						}
					}
					continue
				}
				if op.Dst == ssa.NoReg {
					continue
				}
				var t ssa.Type
				if op.Code == ssa.OpLoadLocal {
					t = slotType[op.Slot]
				} else {
					t = inferOpType(op, regType)
				}
				if info := fn.Info(op.Dst); info.Type != t {
					info.Type = t
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}

	specialize(fn, regType)
}

// inferOpType computes op's destination type from its current operand
// types. Never is propagated through arithmetic rather than widened to
// Any, so a register waiting on an unresolved upstream value (most often
// a loop-carried phi not yet visited this pass) doesn't prematurely
// widen the whole chain to Any before its true type is known.
func inferOpType(op *ssa.Op, regType func(ssa.Reg) ssa.Type) ssa.Type {
	switch op.Code {
	case ssa.OpConst:
		return constType(op.Const)
	case ssa.OpNewObject:
		return ssa.TypeObject
	case ssa.OpNewArray:
		return ssa.TypeArray
	case ssa.OpMakeClosure:
		return ssa.TypeFunction
	case ssa.OpConstruct:
		return ssa.TypeObject
	case ssa.OpAddAny, ssa.OpSubAny, ssa.OpMulAny, ssa.OpDivAny, ssa.OpModAny, ssa.OpNegAny,
		ssa.OpAddNum, ssa.OpSubNum, ssa.OpMulNum, ssa.OpDivNum, ssa.OpModNum, ssa.OpNegNum,
		ssa.OpConcatStr:
		return arithType(op, regType)
	case ssa.OpAndAny, ssa.OpOrAny:
		t := ssa.TypeNever
		for _, a := range op.Args {
			t = ssa.Join(t, regType(a))
		}
		return t
	case ssa.OpNotAny:
		return ssa.TypeBoolean
	case ssa.OpEqAny, ssa.OpNotEqAny, ssa.OpLtAny, ssa.OpLtEqAny, ssa.OpGtAny, ssa.OpGtEqAny,
		ssa.OpEqNum, ssa.OpNotEqNum, ssa.OpLtNum, ssa.OpLtEqNum, ssa.OpGtNum, ssa.OpGtEqNum,
		ssa.OpEqStr, ssa.OpNotEqStr:
		return ssa.TypeBoolean
	default:
		return ssa.TypeAny
	}
}

func constType(v interface{}) ssa.Type {
	switch v.(type) {
	case float64, int:
		return ssa.TypeNumber
	case string:
		return ssa.TypeString
	case bool:
		return ssa.TypeBoolean
	default:
		return ssa.TypeAny
	}
}

// arithType computes an arithmetic op's result type. A specialized form
// already knows its answer; a dynamic form narrows to Number or String
// only once every operand has proven to be the same concrete type, and
// otherwise stays Any — mixed-type "+" in particular can't be narrowed
// since the runtime's string-coercion rule depends on the actual values.
func arithType(op *ssa.Op, regType func(ssa.Reg) ssa.Type) ssa.Type {
	switch op.Code {
	case ssa.OpAddNum, ssa.OpSubNum, ssa.OpMulNum, ssa.OpDivNum, ssa.OpModNum, ssa.OpNegNum:
		return ssa.TypeNumber
	case ssa.OpConcatStr:
		return ssa.TypeString
	}

	argTypes := make([]ssa.Type, len(op.Args))
	for i, a := range op.Args {
		argTypes[i] = regType(a)
	}
	for _, t := range argTypes {
		if t == ssa.TypeNever {
			return ssa.TypeNever
		}
	}

	allNumber, allString := true, true
	for _, t := range argTypes {
		if t != ssa.TypeNumber {
			allNumber = false
		}
		if t != ssa.TypeString {
			allString = false
		}
	}

	switch op.Code {
	case ssa.OpAddAny:
		if allNumber {
			return ssa.TypeNumber
		}
		if allString {
			return ssa.TypeString
		}
	case ssa.OpSubAny, ssa.OpMulAny, ssa.OpDivAny, ssa.OpModAny, ssa.OpNegAny:
		if allNumber {
			return ssa.TypeNumber
		}
	}
	return ssa.TypeAny
}

// specialize rewrites every op whose operands have a single proven
// concrete type onto its specialized opcode, then widens any register
// that never resolved past Never (dead or unreachable defs) to Any so no
// later pass ever observes the bottom type on a real value.
func specialize(fn *ssa.Function, regType func(ssa.Reg) ssa.Type) {
	for _, blk := range fn.Blocks {
		for _, op := range blk.Ops {
			if code, ok := specializedCode(op, regType); ok {
				op.Code = code
			}
		}
	}
	for _, info := range fn.Values {
		if info.Type == ssa.TypeNever {
			info.Type = ssa.TypeAny
		}
	}
}

func specializedCode(op *ssa.Op, regType func(ssa.Reg) ssa.Type) (ssa.Opcode, bool) {
	allOfType := func(t ssa.Type) bool {
		if len(op.Args) == 0 {
			return false
		}
		for _, a := range op.Args {
			if regType(a) != t {
				return false
			}
		}
		return true
	}

	switch op.Code {
	case ssa.OpAddAny:
		if allOfType(ssa.TypeNumber) {
			return ssa.OpAddNum, true
		}
		if allOfType(ssa.TypeString) {
			return ssa.OpConcatStr, true
		}
	case ssa.OpSubAny:
		if allOfType(ssa.TypeNumber) {
			return ssa.OpSubNum, true
		}
	case ssa.OpMulAny:
		if allOfType(ssa.TypeNumber) {
			return ssa.OpMulNum, true
		}
	case ssa.OpDivAny:
		if allOfType(ssa.TypeNumber) {
			return ssa.OpDivNum, true
		}
	case ssa.OpModAny:
		if allOfType(ssa.TypeNumber) {
			return ssa.OpModNum, true
		}
	case ssa.OpNegAny:
		if allOfType(ssa.TypeNumber) {
			return ssa.OpNegNum, true
		}
	case ssa.OpEqAny:
		if allOfType(ssa.TypeNumber) {
			return ssa.OpEqNum, true
		}
		if allOfType(ssa.TypeString) {
			return ssa.OpEqStr, true
		}
	case ssa.OpNotEqAny:
		if allOfType(ssa.TypeNumber) {
			return ssa.OpNotEqNum, true
		}
		if allOfType(ssa.TypeString) {
			return ssa.OpNotEqStr, true
		}
	case ssa.OpLtAny:
		if allOfType(ssa.TypeNumber) {
			return ssa.OpLtNum, true
		}
	case ssa.OpLtEqAny:
		if allOfType(ssa.TypeNumber) {
			return ssa.OpLtEqNum, true
		}
	case ssa.OpGtAny:
		if allOfType(ssa.TypeNumber) {
			return ssa.OpGtNum, true
		}
	case ssa.OpGtEqAny:
		if allOfType(ssa.TypeNumber) {
			return ssa.OpGtEqNum, true
		}
	}
	return 0, false
}
