package compiler_test

import (
	"testing"

	"nyx/internal/bytecode"
	"nyx/internal/compiler"
	"nyx/internal/lexer"
	"nyx/internal/parser"
)

func compileSource(t *testing.T, src string) *bytecode.Chunk {
	t.Helper()
	tokens := lexer.NewScanner(src).ScanTokens()
	p := parser.New(tokens)
	prog := p.Parse()
	if len(p.Errors) > 0 {
		t.Fatalf("parse errors: %v", p.Errors)
	}
	c := compiler.New("test.nyx")
	chunk := c.Compile(prog)
	if len(c.Errors) > 0 {
		t.Fatalf("compile errors: %v", c.Errors)
	}
	return chunk
}

func countOp(chunk *bytecode.Chunk, op bytecode.Op) int {
	n := 0
	for _, in := range chunk.Code {
		if in.Op == op {
			n++
		}
	}
	return n
}

func lastOp(chunk *bytecode.Chunk) bytecode.Op {
	return chunk.Code[len(chunk.Code)-1].Op
}

func TestCompileLetAndArithmeticEndsInHalt(t *testing.T) {
	chunk := compileSource(t, "let x = 1 + 2 * 3;")
	if lastOp(chunk) != bytecode.OpHalt {
		t.Fatalf("expected final instruction to be Halt, got %s", lastOp(chunk))
	}
	if countOp(chunk, bytecode.OpMul) != 1 || countOp(chunk, bytecode.OpAdd) != 1 {
		t.Fatalf("expected one Mul and one Add, chunk: %+v", chunk.Code)
	}
	if countOp(chunk, bytecode.OpLet) != 1 {
		t.Fatalf("expected exactly one Let for the top-level binding")
	}
}

func TestCompileWhileLoopBackpatchesJumps(t *testing.T) {
	chunk := compileSource(t, `
		let i = 0;
		while (i < 3) {
			i = i + 1;
		}
	`)
	sawBackwardJump := false
	for idx, in := range chunk.Code {
		if in.Op == bytecode.OpJump && in.A < idx {
			sawBackwardJump = true
		}
	}
	if !sawBackwardJump {
		t.Fatalf("expected a backward Jump closing the while loop, chunk: %+v", chunk.Code)
	}
}

func TestCompileBreakContinueResolveInnermostLoop(t *testing.T) {
	chunk := compileSource(t, `
		for (let i = 0; i < 10; i = i + 1) {
			if (i == 5) { break; }
			if (i == 2) { continue; }
		}
	`)
	if countOp(chunk, bytecode.OpJump) < 3 {
		t.Fatalf("expected multiple Jump instructions for loop/break/continue, chunk: %+v", chunk.Code)
	}
}

func TestCompileFunctionDeclEmitsMakeClosureAndHoists(t *testing.T) {
	chunk := compileSource(t, `
		greet();
		function greet() {
			log "hi";
		}
	`)
	if countOp(chunk, bytecode.OpMakeClosure) != 1 {
		t.Fatalf("expected one MakeClosure for the function literal")
	}
	if len(chunk.Functions) != 1 || chunk.Functions[0].Name != "greet" {
		t.Fatalf("expected function table entry for greet, got %+v", chunk.Functions)
	}
	closureAt, loadAt := -1, -1
	for i, in := range chunk.Code {
		if closureAt < 0 && in.Op == bytecode.OpMakeClosure {
			closureAt = i
		}
		if loadAt < 0 && in.Op == bytecode.OpLoad && in.Name == "greet" {
			loadAt = i
		}
	}
	if closureAt < 0 || loadAt < 0 || closureAt > loadAt {
		t.Fatalf("expected greet's MakeClosure to be hoisted ahead of the call site that loads it, chunk: %+v", chunk.Code)
	}
}

func TestCompileClosureCapturesFreeVariable(t *testing.T) {
	chunk := compileSource(t, `
		function makeAdder(n) {
			return function(x) { return x + n; };
		}
	`)
	if countOp(chunk, bytecode.OpMakeClosure) != 2 {
		t.Fatalf("expected two MakeClosure instructions (outer + inner), got chunk: %+v", chunk.Code)
	}
	captured := false
	for _, in := range chunk.Code {
		if in.Op == bytecode.OpSetProp && in.Name == "n" {
			captured = true
		}
	}
	if !captured {
		t.Fatalf("expected the inner closure's env to capture n via SetProp, got chunk: %+v", chunk.Code)
	}
}

func TestCompileTrySetupTryAddressRebasesAcrossProgram(t *testing.T) {
	chunk := compileSource(t, `
		try {
			throw "boom";
		} catch (e) {
			log e;
		} finally {
			log "done";
		}
	`)
	if countOp(chunk, bytecode.OpSetupTry) != 1 {
		t.Fatalf("expected one SetupTry")
	}
	if countOp(chunk, bytecode.OpThrow) != 1 {
		t.Fatalf("expected one explicit Throw")
	}
	filler := compileSource(t, `let padding = 1 + 1;`)
	prog := bytecode.NewProgram()
	prog.Append(filler)
	entry := prog.Append(chunk)
	if entry == 0 {
		t.Fatalf("expected the try chunk to land after the filler chunk")
	}
	sawRebasedSetupTry := false
	for _, in := range prog.Code[entry:] {
		if in.Op == bytecode.OpSetupTry {
			if in.A < entry {
				t.Fatalf("SetupTry target was not rebased by Program.Append: got %d, entry %d", in.A, entry)
			}
			sawRebasedSetupTry = true
		}
	}
	if !sawRebasedSetupTry {
		t.Fatalf("expected a SetupTry instruction in the appended chunk")
	}
}

func TestCompileClassLitBuildsDescriptorAndConstructor(t *testing.T) {
	chunk := compileSource(t, `
		class Point {
			constructor(x, y) {
				this.x = x;
				this.y = y;
			}
			sum() {
				return this.x + this.y;
			}
		}
	`)
	if countOp(chunk, bytecode.OpCall) == 0 {
		t.Fatalf("expected a __defineClass__ call in the compiled chunk")
	}
	found := false
	for _, in := range chunk.Code {
		if in.Op == bytecode.OpCall && in.Name == "__defineClass__" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected __defineClass__ call, chunk: %+v", chunk.Code)
	}
}

func TestCompileAssignExpressionYieldsStoredValue(t *testing.T) {
	chunk := compileSource(t, `
		let x = 1;
		let y = (x = 2);
	`)
	if countOp(chunk, bytecode.OpStore) != 1 {
		t.Fatalf("expected one Store for the assignment")
	}
	if countOp(chunk, bytecode.OpLoad) < 1 {
		t.Fatalf("expected the assignment's target to be re-read after Store")
	}
}
