package parser

import (
	"testing"

	"nyx/internal/ast"
	"nyx/internal/lexer"
)

func parseSource(t *testing.T, src string) *ast.Program {
	t.Helper()
	sc := lexer.NewScanner(src)
	tokens := sc.ScanTokens()
	if len(sc.Errors) > 0 {
		t.Fatalf("lex errors: %v", sc.Errors)
	}
	p := New(tokens)
	prog := p.Parse()
	if len(p.Errors) > 0 {
		t.Fatalf("parse errors: %v", p.Errors)
	}
	return prog
}

func TestParseLetAndArithmetic(t *testing.T) {
	prog := parseSource(t, `let x = 1 + 2 * 3;`)
	if len(prog.Stmts) != 1 {
		t.Fatalf("expect 1 stmt, got %d", len(prog.Stmts))
	}
	let, ok := prog.Stmts[0].(*ast.LetStmt)
	if !ok {
		t.Fatalf("expect *ast.LetStmt, got %T", prog.Stmts[0])
	}
	bin, ok := let.Expr.(*ast.BinaryExpr)
	if !ok || bin.Operator != "+" {
		t.Fatalf("expect top-level '+' binary expr, got %#v", let.Expr)
	}
	rhs, ok := bin.Right.(*ast.BinaryExpr)
	if !ok || rhs.Operator != "*" {
		t.Fatalf("expect '*' to bind tighter than '+', got %#v", bin.Right)
	}
}

func TestParseFunctionDecl(t *testing.T) {
	prog := parseSource(t, `fn add(a: Number, b: Number): Number { return a + b; }`)
	decl, ok := prog.Stmts[0].(*ast.FunctionDecl)
	if !ok {
		t.Fatalf("expect *ast.FunctionDecl, got %T", prog.Stmts[0])
	}
	if decl.Fn.Name != "add" || len(decl.Fn.Params) != 2 {
		t.Fatalf("unexpected function shape: %#v", decl.Fn)
	}
	if decl.Fn.Params[0].Type != "Number" {
		t.Fatalf("expect param type annotation, got %q", decl.Fn.Params[0].Type)
	}
}

func TestParseArrowFunction(t *testing.T) {
	prog := parseSource(t, `let sq = (x) => x * x;`)
	let := prog.Stmts[0].(*ast.LetStmt)
	fn, ok := let.Expr.(*ast.FunctionLit)
	if !ok || !fn.IsArrow {
		t.Fatalf("expect arrow function literal, got %#v", let.Expr)
	}
	if fn.ExprBody == nil {
		t.Fatalf("expect expression-bodied arrow")
	}
}

func TestParseClassWithDecoratorAndPrivateField(t *testing.T) {
	prog := parseSource(t, `
		class Counter {
			#count = 0;
			@logged
			increment() { this.#count = this.#count + 1; }
		}
	`)
	decl, ok := prog.Stmts[0].(*ast.ClassDecl)
	if !ok {
		t.Fatalf("expect *ast.ClassDecl, got %T", prog.Stmts[0])
	}
	if len(decl.Class.Fields) != 1 || decl.Class.Fields[0].Name != "#count" {
		t.Fatalf("unexpected fields: %#v", decl.Class.Fields)
	}
	if len(decl.Class.Methods) != 1 || len(decl.Class.Methods[0].Decorators) != 1 {
		t.Fatalf("expect decorated method, got %#v", decl.Class.Methods)
	}
}

func TestParseForOfAndBreakContinue(t *testing.T) {
	prog := parseSource(t, `
		for (const item of items) {
			if (item == 0) { continue; }
			if (item == 9) { break; }
		}
	`)
	forIn, ok := prog.Stmts[0].(*ast.ForInStmt)
	if !ok || !forIn.IsOf || forIn.Var != "item" {
		t.Fatalf("expect for-of statement, got %#v", prog.Stmts[0])
	}
}

func TestParseTryCatchFinally(t *testing.T) {
	prog := parseSource(t, `
		try {
			throw "boom";
		} catch (e) {
			log e;
		} finally {
			log "done";
		}
	`)
	stmt, ok := prog.Stmts[0].(*ast.TryStmt)
	if !ok {
		t.Fatalf("expect *ast.TryStmt, got %T", prog.Stmts[0])
	}
	if stmt.CatchParam != "e" || stmt.FinallyBlock == nil {
		t.Fatalf("unexpected try shape: %#v", stmt)
	}
}

func TestParseTemplateLiteral(t *testing.T) {
	prog := parseSource(t, "let s = `hello ${name}!`;")
	let := prog.Stmts[0].(*ast.LetStmt)
	tpl, ok := let.Expr.(*ast.TemplateLit)
	if !ok {
		t.Fatalf("expect *ast.TemplateLit, got %T", let.Expr)
	}
	if len(tpl.Quasis) != 2 || len(tpl.Exprs) != 1 {
		t.Fatalf("unexpected template shape: %#v", tpl)
	}
}

func TestParseImportExport(t *testing.T) {
	prog := parseSource(t, `
		import { add, sub as subtract } from "math";
		export function square(x) { return x * x; }
	`)
	imp, ok := prog.Stmts[0].(*ast.ImportStmt)
	if !ok || len(imp.Specifiers) != 2 || imp.Specifiers[1].Local != "subtract" {
		t.Fatalf("unexpected import shape: %#v", prog.Stmts[0])
	}
	exp, ok := prog.Stmts[1].(*ast.ExportStmt)
	if !ok || exp.Decl == nil {
		t.Fatalf("unexpected export shape: %#v", prog.Stmts[1])
	}
}

func TestParseOwnershipAnnotation(t *testing.T) {
	prog := parseSource(t, `fn borrow_it(p: &mut Point) { return p; }`)
	decl := prog.Stmts[0].(*ast.FunctionDecl)
	if decl.Fn.Params[0].Ownership != "borrowmut" {
		t.Fatalf("expect borrowmut ownership, got %q", decl.Fn.Params[0].Ownership)
	}
}
