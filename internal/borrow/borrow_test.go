package borrow_test

import (
	"testing"

	"nyx/internal/borrow"
	"nyx/internal/bytecode"
	"nyx/internal/compiler"
	"nyx/internal/diag"
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
	typeinfer.Infer(out)
	return out
}

func subkinds(diags []*diag.Diagnostic) []diag.BorrowSubkind {
	out := make([]diag.BorrowSubkind, len(diags))
	for i, d := range diags {
		out[i] = diag.BorrowSubkind(d.Subkind)
	}
	return out
}

func hasSubkind(diags []*diag.Diagnostic, sub diag.BorrowSubkind) bool {
	for _, d := range diags {
		if diag.BorrowSubkind(d.Subkind) == sub {
			return true
		}
	}
	return false
}

func TestCheckFlagsUseAfterMoveOnObjectAssignment(t *testing.T) {
	p := liftSource(t, `
		let a = { x: 1 };
		let b = a;
		log a;
	`)
	diags := borrow.Check(p)
	if !hasSubkind(diags, diag.UseAfterMove) {
		t.Fatalf("expected UseAfterMove, got %v", subkinds(diags))
	}
}

func TestCheckAllowsUseAfterCopyOfNumber(t *testing.T) {
	p := liftSource(t, `
		let a = 1;
		let b = a;
		log a;
	`)
	diags := borrow.Check(p)
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics for a Copy-typed move, got %v", subkinds(diags))
	}
}

func TestCheckFlagsMovedCaptureOfOwnedObject(t *testing.T) {
	// A function expression bound via `let`, not a hoisted declaration,
	// so it compiles (and captures) at its textual position, after
	// `obj` is bound.
	p := liftSource(t, `
		let obj = { n: 1 };
		let useLater = () => obj;
		log obj;
	`)
	diags := borrow.Check(p)
	if !hasSubkind(diags, diag.MovedCapture) {
		t.Fatalf("expected MovedCapture, got %v", subkinds(diags))
	}
}

func TestCheckFlagsOverlappingMutableBorrowCapture(t *testing.T) {
	p := liftSource(t, `
		function outer(x: &mut number) {
			function inner() {
				return x;
			}
			log x;
		}
	`)
	diags := borrow.Check(p)
	if !hasSubkind(diags, diag.OverlappingMutableBorrow) {
		t.Fatalf("expected OverlappingMutableBorrow, got %v", subkinds(diags))
	}
}

func TestCheckAllowsCaptureOfImmutableBorrow(t *testing.T) {
	p := liftSource(t, `
		function outer(x: &number) {
			function inner() {
				return x;
			}
			log x;
		}
	`)
	diags := borrow.Check(p)
	if hasSubkind(diags, diag.OverlappingMutableBorrow) || hasSubkind(diags, diag.MovedCapture) {
		t.Fatalf("expected no diagnostics for a shared immutable borrow capture, got %v", subkinds(diags))
	}
}

func TestCheckFlagsEscapingBorrowReturn(t *testing.T) {
	p := liftSource(t, `
		function identity(x: &number) {
			return x;
		}
	`)
	diags := borrow.Check(p)
	if !hasSubkind(diags, diag.EscapingBorrow) {
		t.Fatalf("expected EscapingBorrow, got %v", subkinds(diags))
	}
}

func TestCheckAllowsReturningOwnedValue(t *testing.T) {
	p := liftSource(t, `
		function make() {
			let v = { n: 1 };
			return v;
		}
	`)
	diags := borrow.Check(p)
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics for returning an owned local, got %v", subkinds(diags))
	}
}

func TestCheckDoesNotFlagNonDominatingBranchMove(t *testing.T) {
	// The move of `a` inside the if-branch does not dominate the join
	// point below: the checker only flags a move that provably always
	// ran before the read, and here the else branch skips it entirely.
	p := liftSource(t, `
		let a = { x: 1 };
		if (true) {
			let b = a;
		} else {
			let c = { y: 2 };
		}
		log a;
	`)
	diags := borrow.Check(p)
	if len(diags) != 0 {
		t.Fatalf("expected a move in one branch alone not to dominate code after the if, got %v", subkinds(diags))
	}
}
