package typeinfer_test

import (
	"testing"

	"nyx/internal/bytecode"
	"nyx/internal/compiler"
	"nyx/internal/lexer"
	"nyx/internal/lifter"
	"nyx/internal/parser"
	"nyx/internal/ssa"
	"nyx/internal/typeinfer"
)

func liftSource(t *testing.T, src string) *ssa.Program {
	t.Helper()
	tokens := lexer.NewScanner(src).ScanTokens()
	p := parser.New(tokens)
	ast := p.Parse()
	if len(p.Errors) > 0 {
		t.Fatalf("parse errors: %v", p.Errors)
	}
	c := compiler.New("test.nyx")
	chunk := c.Compile(ast)
	if len(c.Errors) > 0 {
		t.Fatalf("compile errors: %v", c.Errors)
	}
	prog := bytecode.NewProgram()
	entry := prog.Append(chunk)
	out, err := lifter.Lift(prog, entry)
	if err != nil {
		t.Fatalf("lift error: %v", err)
	}
	return out
}

func findOp(t *testing.T, fn *ssa.Function, code ssa.Opcode) *ssa.Op {
	t.Helper()
	for _, blk := range fn.Blocks {
		for _, op := range blk.Ops {
			if op.Code == code {
				return op
			}
		}
	}
	return nil
}

func anyOpPresent(fn *ssa.Function, codes ...ssa.Opcode) bool {
	want := make(map[ssa.Opcode]bool, len(codes))
	for _, c := range codes {
		want[c] = true
	}
	for _, blk := range fn.Blocks {
		for _, op := range blk.Ops {
			if want[op.Code] {
				return true
			}
		}
	}
	return false
}

func TestInferSpecializesNumericArithmetic(t *testing.T) {
	p := liftSource(t, "let x = 1 + 2 * 3;")
	typeinfer.Infer(p)

	if anyOpPresent(p.Entry, ssa.OpAddAny, ssa.OpMulAny) {
		t.Fatalf("expected numeric Add/Mul to specialize out of their Any forms")
	}
	mul := findOp(t, p.Entry, ssa.OpMulNum)
	if mul == nil {
		t.Fatal("expected a specialized MulNum op")
	}
	if p.Entry.Info(mul.Dst).Type != ssa.TypeNumber {
		t.Fatalf("expected MulNum's result typed Number, got %s", p.Entry.Info(mul.Dst).Type)
	}
}

func TestInferSpecializesStringConcat(t *testing.T) {
	p := liftSource(t, `let s = "a" + "b";`)
	typeinfer.Infer(p)

	concat := findOp(t, p.Entry, ssa.OpConcatStr)
	if concat == nil {
		t.Fatalf("expected string \"+\" to specialize to ConcatStr")
	}
	if p.Entry.Info(concat.Dst).Type != ssa.TypeString {
		t.Fatalf("expected ConcatStr's result typed String, got %s", p.Entry.Info(concat.Dst).Type)
	}
}

func TestInferLeavesMixedTypesDynamic(t *testing.T) {
	p := liftSource(t, `
		function choose(flag) {
			if (flag) {
				return 1;
			}
			return "two";
		}
		let r = choose(true) + 1;
	`)
	typeinfer.Infer(p)

	add := findOp(t, p.Entry, ssa.OpAddAny)
	if add == nil {
		t.Fatalf("expected the ambiguous \"+\" against an unresolvable call result to stay OpAddAny")
	}
}

func TestInferLoopCounterSpecializesToNumber(t *testing.T) {
	p := liftSource(t, `
		let i = 0;
		while (i < 3) {
			i = i + 1;
		}
	`)
	typeinfer.Infer(p)

	if anyOpPresent(p.Entry, ssa.OpLtAny, ssa.OpAddAny) {
		t.Fatalf("expected the loop counter's comparison and increment to specialize to Num forms")
	}
	if findOp(t, p.Entry, ssa.OpLtNum) == nil || findOp(t, p.Entry, ssa.OpAddNum) == nil {
		t.Fatalf("expected LtNum and AddNum in the specialized loop")
	}
}

func TestInferIsIdempotent(t *testing.T) {
	p := liftSource(t, "let x = 1 + 2;")
	typeinfer.Infer(p)
	first := p.Entry.Info(findOp(t, p.Entry, ssa.OpAddNum).Dst).Type
	typeinfer.Infer(p)
	second := p.Entry.Info(findOp(t, p.Entry, ssa.OpAddNum).Dst).Type
	if first != second {
		t.Fatalf("expected re-running Infer to be a no-op, got %s then %s", first, second)
	}
}

func TestInferNeverLeavesARegisterAtBottom(t *testing.T) {
	p := liftSource(t, "let x = 1;")
	typeinfer.Infer(p)
	for _, fn := range p.Functions {
		for r := range fn.Values {
			if fn.Info(r).Type == ssa.TypeNever {
				t.Fatalf("register %s left at the lattice bottom after inference in %s", r, fn.Name)
			}
		}
	}
}
