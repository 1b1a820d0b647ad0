package lifter

import (
	"nyx/internal/bytecode"
	"nyx/internal/diag"
	"nyx/internal/ssa"
)

// stack is the lifter's symbolic evaluation stack: one ssa.Reg per value
// bytecode.Instruction's own stack machine would hold at the same point,
// mirroring internal/vm/vm.go's push/pop/popN exactly so the register
// sequence it produces lines up with the runtime's actual stack
// discipline (same push order, same popN slice semantics).
type stack []ssa.Reg

func (s *stack) push(r ssa.Reg)  { *s = append(*s, r) }
func (s *stack) pop() ssa.Reg {
	n := len(*s) - 1
	r := (*s)[n]
	*s = (*s)[:n]
	return r
}
func (s *stack) popN(n int) []ssa.Reg {
	start := len(*s) - n
	out := make([]ssa.Reg, n)
	copy(out, (*s)[start:])
	*s = (*s)[:start]
	return out
}
func (s stack) clone() stack {
	c := make(stack, len(s))
	copy(c, s)
	return c
}

// binOps maps the bytecode's dynamic binary/unary operators onto their
// SSA "Any" counterparts (spec §4.6); typeinfer later narrows these to
// the Num/Str-specialized opcodes once it proves the operand types
// (spec §4.7).
var binOps = map[bytecode.Op]ssa.Opcode{
	bytecode.OpAdd: ssa.OpAddAny, bytecode.OpSub: ssa.OpSubAny,
	bytecode.OpMul: ssa.OpMulAny, bytecode.OpDiv: ssa.OpDivAny, bytecode.OpMod: ssa.OpModAny,
	bytecode.OpAnd: ssa.OpAndAny, bytecode.OpOr: ssa.OpOrAny,
	bytecode.OpEq: ssa.OpEqAny, bytecode.OpNotEq: ssa.OpNotEqAny,
	bytecode.OpLt: ssa.OpLtAny, bytecode.OpLtEq: ssa.OpLtEqAny,
	bytecode.OpGt: ssa.OpGtAny, bytecode.OpGtEq: ssa.OpGtEqAny,
}

var unOps = map[bytecode.Op]ssa.Opcode{
	bytecode.OpNeg: ssa.OpNegAny,
	bytecode.OpNot: ssa.OpNotAny,
}

// ownershipFromSigil maps a Let binding's surface ownership annotation
// (parsed in internal/ast, preserved onto bytecode.Instruction.Ownership
// by the compiler) onto the borrow checker's ssa.Ownership tag. An
// absent or "own" sigil is the default Owned tag.
func ownershipFromSigil(sigil string) ssa.Ownership {
	switch sigil {
	case "borrow":
		return ssa.BorrowedImm
	case "borrowmut":
		return ssa.BorrowedMut
	default:
		return ssa.Owned
	}
}

// funcBuilder lowers one function's reachable instruction range into an
// ssa.Function. A new funcBuilder is created per lifted function
// (including every recursively discovered closure), so register ids,
// like the bytecode compiler's own scopes, never leak across function
// boundaries.
type funcBuilder struct {
	ctx     *liftCtx
	prog    *bytecode.Program
	fn      *ssa.Function
	regDef  map[ssa.Reg]*ssa.Op
	entryAt int
}

// emit appends op to block, registers it in regDef when it defines a
// value, and returns it so callers can fill in fields that depend on
// values not yet known at construction time (e.g. Direct-call marking).
func (b *funcBuilder) emit(block *ssa.Block, op *ssa.Op) *ssa.Op {
	block.Ops = append(block.Ops, op)
	if op.Dst != ssa.NoReg {
		b.regDef[op.Dst] = op
	}
	return op
}

// newVal allocates a fresh destination register for op and emits it.
func (b *funcBuilder) newVal(block *ssa.Block, code ssa.Opcode) ssa.Reg {
	r := b.fn.NewReg()
	b.emit(block, &ssa.Op{Code: code, Dst: r})
	return r
}

// directCallee reports the statically-known function a value produced
// by a MakeClosure evaluates to, so a Call of it can be marked direct
// (spec §4.6). Lookups only succeed when calleeReg's defining op is a
// MakeClosure in the same function — the common immediately-invoked
// pattern; a callee reloaded from a
// named local through LoadLocal is always indirect, which only costs a
// missed specialization opportunity, never correctness (spec §4.7).
func (b *funcBuilder) directCallee(calleeReg ssa.Reg) *ssa.Function {
	op, ok := b.regDef[calleeReg]
	if !ok || op.Code != ssa.OpMakeClosure {
		return nil
	}
	return op.Callee
}

// execInstr lowers one bytecode instruction against the symbolic stack,
// appending whatever ssa.Op(s) it needs to block. It returns non-nil
// only for instructions that end the block (callers stop scanning once
// this signals a terminator); ordinary instructions return (false, nil).
func (b *funcBuilder) execInstr(block *ssa.Block, st *stack, ip int, in bytecode.Instruction) (terminates bool, err error) {
	switch in.Op {
	case bytecode.OpPush:
		r := b.fn.NewReg()
		b.emit(block, &ssa.Op{Code: ssa.OpConst, Dst: r, Const: b.prog.Constants[in.ConstIndex]})
		st.push(r)
	case bytecode.OpPop:
		st.pop()
	case bytecode.OpDup:
		top := (*st)[len(*st)-1]
		st.push(top)
	case bytecode.OpSwap:
		n := len(*st)
		(*st)[n-1], (*st)[n-2] = (*st)[n-2], (*st)[n-1]

	case bytecode.OpLet, bytecode.OpStore:
		v := st.pop()
		op := &ssa.Op{Code: ssa.OpStoreLocal, Slot: in.Name, Args: []ssa.Reg{v}}
		if in.Op == bytecode.OpLet {
			op.Decl = true
			op.DeclOwnership = ownershipFromSigil(in.Ownership)
		}
		b.emit(block, op)
	case bytecode.OpLoad:
		r := b.fn.NewReg()
		b.emit(block, &ssa.Op{Code: ssa.OpLoadLocal, Dst: r, Slot: in.Name})
		st.push(r)
	case bytecode.OpDrop:
		b.emit(block, &ssa.Op{Code: ssa.OpOpaque, Name: in.Name})
	case bytecode.OpLoadThis:
		st.push(b.newVal(block, ssa.OpLoadThis))

	case bytecode.OpStoreLocal, bytecode.OpLoadLocal:
		return false, diag.NewLiftingError("slot-indexed locals are not produced by this compiler and have no lifting rule")

	case bytecode.OpNewObject:
		st.push(b.newVal(block, ssa.OpNewObject))
	case bytecode.OpNewArray:
		elems := st.popN(in.A)
		r := b.fn.NewReg()
		b.emit(block, &ssa.Op{Code: ssa.OpNewArray, Dst: r, Args: elems})
		st.push(r)
	case bytecode.OpSetProp:
		val := st.pop()
		obj := (*st)[len(*st)-1]
		b.emit(block, &ssa.Op{Code: ssa.OpSetProp, Name: in.Name, Args: []ssa.Reg{obj, val}})
	case bytecode.OpGetProp:
		obj := st.pop()
		r := b.fn.NewReg()
		b.emit(block, &ssa.Op{Code: ssa.OpGetProp, Dst: r, Name: in.Name, Args: []ssa.Reg{obj}})
		st.push(r)
	case bytecode.OpStoreElement:
		val := st.pop()
		idx := st.pop()
		obj := (*st)[len(*st)-1]
		b.emit(block, &ssa.Op{Code: ssa.OpStoreElement, Args: []ssa.Reg{obj, idx, val}})
	case bytecode.OpLoadElement:
		idx := st.pop()
		obj := st.pop()
		r := b.fn.NewReg()
		b.emit(block, &ssa.Op{Code: ssa.OpLoadElement, Dst: r, Args: []ssa.Reg{obj, idx}})
		st.push(r)
	case bytecode.OpSetProto:
		val := st.pop()
		obj := (*st)[len(*st)-1]
		b.emit(block, &ssa.Op{Code: ssa.OpSetProto, Args: []ssa.Reg{obj, val}})
	case bytecode.OpLoadSuper:
		st.push(b.newVal(block, ssa.OpLoadSuper))
	case bytecode.OpGetSuperProp:
		r := b.fn.NewReg()
		b.emit(block, &ssa.Op{Code: ssa.OpGetSuperProp, Dst: r, Name: in.Name})
		st.push(r)

	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod,
		bytecode.OpAnd, bytecode.OpOr, bytecode.OpEq, bytecode.OpNotEq,
		bytecode.OpLt, bytecode.OpLtEq, bytecode.OpGt, bytecode.OpGtEq:
		bReg, aReg := st.pop(), st.pop()
		r := b.fn.NewReg()
		b.emit(block, &ssa.Op{Code: binOps[in.Op], Dst: r, Args: []ssa.Reg{aReg, bReg}})
		st.push(r)
	case bytecode.OpNeg, bytecode.OpNot:
		a := st.pop()
		r := b.fn.NewReg()
		b.emit(block, &ssa.Op{Code: unOps[in.Op], Dst: r, Args: []ssa.Reg{a}})
		st.push(r)

	case bytecode.OpCall:
		if in.Name != "" {
			args := st.popN(in.A)
			r := b.fn.NewReg()
			b.emit(block, &ssa.Op{Code: ssa.OpCall, Dst: r, Name: in.Name, Args: args})
			st.push(r)
			break
		}
		callee := st.pop()
		args := st.popN(in.A)
		r := b.fn.NewReg()
		op := &ssa.Op{Code: ssa.OpCall, Dst: r, CalleeReg: callee, Args: args}
		if target := b.directCallee(callee); target != nil {
			op.Direct, op.Callee = true, target
		}
		b.emit(block, op)
		st.push(r)
	case bytecode.OpCallMethod:
		args := st.popN(in.A)
		recv := st.pop()
		r := b.fn.NewReg()
		b.emit(block, &ssa.Op{Code: ssa.OpCallMethod, Dst: r, Name: in.Name, CalleeReg: recv, Args: args})
		st.push(r)
	case bytecode.OpConstruct:
		class := st.pop()
		args := st.popN(in.A)
		r := b.fn.NewReg()
		op := &ssa.Op{Code: ssa.OpConstruct, Dst: r, CalleeReg: class, Args: args}
		if target := b.directCallee(class); target != nil {
			op.Direct, op.Callee = true, target
		}
		b.emit(block, op)
		st.push(r)
	case bytecode.OpCallSuper:
		super := st.pop()
		args := st.popN(in.A)
		r := b.fn.NewReg()
		b.emit(block, &ssa.Op{Code: ssa.OpCallSuper, Dst: r, CalleeReg: super, Args: args})
		st.push(r)
	case bytecode.OpApplyDecorator:
		args := st.popN(in.A)
		decorator := st.pop()
		target := st.pop()
		r := b.fn.NewReg()
		b.emit(block, &ssa.Op{Code: ssa.OpApplyDecorator, Dst: r, CalleeReg: decorator, Args: append([]ssa.Reg{target}, args...)})
		st.push(r)

	case bytecode.OpMakeClosure:
		env := st.pop()
		nested, err := b.ctx.liftClosure(b.prog, in)
		if err != nil {
			return false, err
		}
		r := b.fn.NewReg()
		b.emit(block, &ssa.Op{
			Code: ssa.OpMakeClosure, Dst: r, Args: []ssa.Reg{env},
			Name: in.Name, Callee: nested, Arity: in.B, IsAsync: in.Flag,
		})
		st.push(r)

	case bytecode.OpImportAsync:
		r := b.fn.NewReg()
		b.emit(block, &ssa.Op{Code: ssa.OpImportAsync, Dst: r, Name: in.Name})
		st.push(r)
	case bytecode.OpGetExport:
		ns := st.pop()
		r := b.fn.NewReg()
		b.emit(block, &ssa.Op{Code: ssa.OpGetExport, Dst: r, Name: in.Name, FlagA: in.Flag, Args: []ssa.Reg{ns}})
		st.push(r)
	case bytecode.OpAwait:
		v := st.pop()
		r := b.fn.NewReg()
		b.emit(block, &ssa.Op{Code: ssa.OpAwait, Dst: r, Args: []ssa.Reg{v}})
		st.push(r)
	case bytecode.OpRequire:
		r := b.fn.NewReg()
		b.emit(block, &ssa.Op{Code: ssa.OpRequire, Dst: r, Name: in.Name})
		st.push(r)

	case bytecode.OpJump, bytecode.OpJumpIfFalse, bytecode.OpReturn, bytecode.OpHalt:
		return true, nil

	default:
		return false, diag.NewLiftingError("unsupported opcode in lifter: " + in.Op.String())
	}
	return false, nil
}
