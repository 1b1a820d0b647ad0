package ssa

import (
	"fmt"
	"io"
)

// opNames mirrors bytecode.opNames: a name table kept next to the enum it
// describes rather than a String method switch, so adding an Opcode can't
// silently fall through to a default case.
var opNames = map[Opcode]string{
	OpConst:        "Const",
	OpLoadLocal:    "LoadLocal",
	OpStoreLocal:   "StoreLocal",
	OpLoadGlobal:   "LoadGlobal",
	OpStoreGlobal:  "StoreGlobal",
	OpLoadThis:     "LoadThis",
	OpAddAny:       "AddAny",
	OpSubAny:       "SubAny",
	OpMulAny:       "MulAny",
	OpDivAny:       "DivAny",
	OpModAny:       "ModAny",
	OpNegAny:       "NegAny",
	OpNotAny:       "NotAny",
	OpAndAny:       "AndAny",
	OpOrAny:        "OrAny",
	OpEqAny:        "EqAny",
	OpNotEqAny:     "NotEqAny",
	OpLtAny:        "LtAny",
	OpLtEqAny:      "LtEqAny",
	OpGtAny:        "GtAny",
	OpGtEqAny:      "GtEqAny",
	OpAddNum:       "AddNum",
	OpSubNum:       "SubNum",
	OpMulNum:       "MulNum",
	OpDivNum:       "DivNum",
	OpModNum:       "ModNum",
	OpNegNum:       "NegNum",
	OpEqNum:        "EqNum",
	OpNotEqNum:     "NotEqNum",
	OpLtNum:        "LtNum",
	OpLtEqNum:      "LtEqNum",
	OpGtNum:        "GtNum",
	OpGtEqNum:      "GtEqNum",
	OpConcatStr:    "ConcatStr",
	OpEqStr:        "EqStr",
	OpNotEqStr:     "NotEqStr",
	OpNewObject:    "NewObject",
	OpNewArray:     "NewArray",
	OpSetProp:      "SetProp",
	OpGetProp:      "GetProp",
	OpStoreElement: "StoreElement",
	OpLoadElement:  "LoadElement",
	OpSetProto:     "SetProto",
	OpLoadSuper:    "LoadSuper",
	OpGetSuperProp: "GetSuperProp",
	OpMakeClosure:  "MakeClosure",
	OpCall:         "Call",
	OpCallMethod:   "CallMethod",
	OpCallSuper:    "CallSuper",
	OpConstruct:    "Construct",
	OpApplyDecorator: "ApplyDecorator",
	OpImportAsync:  "ImportAsync",
	OpGetExport:    "GetExport",
	OpAwait:        "Await",
	OpRequire:      "Require",
	OpOpaque:       "Opaque",
}

func (o Opcode) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return "Unknown"
}

func (r Reg) String() string {
	if r == NoReg {
		return "_"
	}
	return fmt.Sprintf("r%d", int(r))
}

// Print renders p as the stable IR text the native emitter is the sole
// consumer of (spec §6.5): one function per blank-line-separated section,
// blocks in Function.Blocks order (already entry-first-then-first-
// reference by construction), phis rendered as block parameters, one op
// per line with its destination first.
func Print(w io.Writer, p *Program) {
	for i, fn := range p.Functions {
		if i > 0 {
			fmt.Fprintln(w)
		}
		printFunction(w, fn)
	}
}

func printFunction(w io.Writer, fn *Function) {
	fmt.Fprintf(w, "function %s(", fn.Name)
	for i, prm := range fn.Params {
		if i > 0 {
			fmt.Fprint(w, ", ")
		}
		fmt.Fprintf(w, "%s: %s%s", prm.Reg, prm.Type, ownershipSuffix(prm.Ownership))
	}
	fmt.Fprintln(w, ") {")

	for _, b := range fn.Blocks {
		fmt.Fprintf(w, "%s(", b.Label)
		for i, phi := range b.Phis {
			if i > 0 {
				fmt.Fprint(w, ", ")
			}
			fmt.Fprintf(w, "%s = phi(", phi.Dst)
			for j, in := range phi.Incoming {
				if j > 0 {
					fmt.Fprint(w, ", ")
				}
				pred := "?"
				if j < len(b.Preds) {
					pred = b.Preds[j].Label
				}
				fmt.Fprintf(w, "%s: %s", pred, in)
			}
			fmt.Fprint(w, ")")
		}
		fmt.Fprintln(w, "):")

		for _, op := range b.Ops {
			printOp(w, op)
		}
		printTerminator(w, b.Term)
	}

	fmt.Fprintln(w, "}")
}

func ownershipSuffix(o Ownership) string {
	if o == Owned {
		return ""
	}
	return " " + o.String()
}

func printOp(w io.Writer, op *Op) {
	fmt.Fprintf(w, "  %s = %s", op.Dst, op.Code)
	if op.Const != nil {
		fmt.Fprintf(w, " %#v", op.Const)
	}
	if op.Slot != "" {
		fmt.Fprintf(w, " %q", op.Slot)
	}
	if op.Code == OpStoreLocal && op.Decl {
		fmt.Fprintf(w, " decl%s", ownershipSuffix(op.DeclOwnership))
	}
	if op.Name != "" {
		fmt.Fprintf(w, " .%s", op.Name)
	}
	if op.CalleeReg != NoReg {
		fmt.Fprintf(w, " callee=%s", op.CalleeReg)
	}
	for _, a := range op.Args {
		fmt.Fprintf(w, " %s", a)
	}
	if op.Direct && op.Callee != nil {
		fmt.Fprintf(w, " @%s", op.Callee.Name)
	}
	fmt.Fprintln(w)
}

func printTerminator(w io.Writer, t Terminator) {
	switch t.Kind {
	case TermJump:
		fmt.Fprintf(w, "  jump %s\n", t.Target.Label)
	case TermBranch:
		fmt.Fprintf(w, "  branch %s %s %s\n", t.Cond, t.IfTrue.Label, t.IfFalse.Label)
	case TermReturn:
		if t.HasVal {
			fmt.Fprintf(w, "  return %s\n", t.Value)
		} else {
			fmt.Fprintln(w, "  return")
		}
	}
}
