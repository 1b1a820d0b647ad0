package optimize_test

import (
	"testing"

	"nyx/internal/bytecode"
	"nyx/internal/compiler"
	"nyx/internal/lexer"
	"nyx/internal/lifter"
	"nyx/internal/optimize"
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

func countOps(fn *ssa.Function, code ssa.Opcode) int {
	n := 0
	for _, blk := range fn.Blocks {
		for _, op := range blk.Ops {
			if op.Code == code {
				n++
			}
		}
	}
	return n
}

func findOp(fn *ssa.Function, code ssa.Opcode) *ssa.Op {
	for _, blk := range fn.Blocks {
		for _, op := range blk.Ops {
			if op.Code == code {
				return op
			}
		}
	}
	return nil
}

func TestOptimizeFoldsNestedConstantArithmetic(t *testing.T) {
	p := liftSource(t, "let x = 1 + 2 * 3;")
	optimize.OptimizeFunction(p.Entry)

	if countOps(p.Entry, ssa.OpMulNum) != 0 || countOps(p.Entry, ssa.OpAddNum) != 0 {
		t.Fatalf("expected constant arithmetic to fold away entirely")
	}
	store := findOp(p.Entry, ssa.OpStoreLocal)
	if store == nil {
		t.Fatal("expected a StoreLocal for x")
	}
	def := findOp(p.Entry, ssa.OpConst)
	if def == nil {
		t.Fatal("expected a folded Const op")
	}
	if def.Const.(float64) != 7 {
		t.Fatalf("expected 1 + 2*3 to fold to 7, got %v", def.Const)
	}
}

func TestOptimizeEliminatesDeadPureExpression(t *testing.T) {
	p := liftSource(t, `
		1 + 2;
		let kept = 9;
	`)
	before := len(p.Entry.Blocks[0].Ops)
	optimize.OptimizeFunction(p.Entry)
	after := len(p.Entry.Blocks[0].Ops)

	if countOps(p.Entry, ssa.OpAddNum) != 0 && countOps(p.Entry, ssa.OpAddAny) != 0 {
		t.Fatalf("expected the unused '1 + 2' expression statement to be removed")
	}
	if after >= before {
		t.Fatalf("expected dead code elimination to shrink the entry block, had %d now %d", before, after)
	}
	kept := findOp(p.Entry, ssa.OpConst)
	if kept == nil || kept.Const.(float64) != 9 {
		t.Fatalf("expected the live 'kept' store to survive, got %v", kept)
	}
}

func TestOptimizeMergesRepeatedLoadOfSameSlot(t *testing.T) {
	p := liftSource(t, `
		let a = 1;
		log a + a;
	`)
	optimize.OptimizeFunction(p.Entry)

	if countOps(p.Entry, ssa.OpLoadLocal) > 1 {
		t.Fatalf("expected the two reads of 'a' with no intervening store to collapse to one LoadLocal, got %d",
			countOps(p.Entry, ssa.OpLoadLocal))
	}
}

func TestOptimizeDoesNotMergeLoadsAcrossAnInterveningStore(t *testing.T) {
	p := liftSource(t, `
		let a = 1;
		log a;
		a = 2;
		log a;
	`)
	optimize.OptimizeFunction(p.Entry)

	if countOps(p.Entry, ssa.OpLoadLocal) < 2 {
		t.Fatalf("expected the store between the two reads of 'a' to prevent CSE, got %d LoadLocal ops",
			countOps(p.Entry, ssa.OpLoadLocal))
	}
}

func TestOptimizeCollapsesConstantTernaryThroughBranchAndPhi(t *testing.T) {
	p := liftSource(t, `
		let y = true ? 1 : 2;
		log y;
	`)
	optimize.OptimizeFunction(p.Entry)

	for _, blk := range p.Entry.Blocks {
		if blk.Term.Kind == ssa.TermBranch {
			t.Fatalf("expected the constant-condition branch to simplify to an unconditional jump")
		}
		for _, phi := range blk.Phis {
			if len(phi.Incoming) == 1 {
				t.Fatalf("expected a 1-incoming phi to have been propagated away, found one in block %s", blk.Label)
			}
		}
	}

	def := findOp(p.Entry, ssa.OpConst)
	if def == nil {
		t.Fatal("expected the literal 1 to survive as a Const")
	}
}

func TestOptimizeFunctionIsIdempotent(t *testing.T) {
	p := liftSource(t, `
		let x = 1 + 2 * 3;
		let y = true ? x : 0;
		log y;
	`)
	optimize.OptimizeFunction(p.Entry)
	blocksAfterFirst := len(p.Entry.Blocks)
	opsAfterFirst := 0
	for _, blk := range p.Entry.Blocks {
		opsAfterFirst += len(blk.Ops)
	}

	optimize.OptimizeFunction(p.Entry)
	blocksAfterSecond := len(p.Entry.Blocks)
	opsAfterSecond := 0
	for _, blk := range p.Entry.Blocks {
		opsAfterSecond += len(blk.Ops)
	}

	if blocksAfterFirst != blocksAfterSecond || opsAfterFirst != opsAfterSecond {
		t.Fatalf("expected a second OptimizeFunction pass to be a no-op, got %d blocks/%d ops then %d blocks/%d ops",
			blocksAfterFirst, opsAfterFirst, blocksAfterSecond, opsAfterSecond)
	}
}

func TestOptimizePreservesObservableSideEffectsAcrossCalls(t *testing.T) {
	p := liftSource(t, `
		function make() {
			return { n: 1 };
		}
		let a = make();
		let b = make();
		log a;
		log b;
	`)
	optimize.OptimizeFunction(p.Entry)

	calls := 0
	for _, blk := range p.Entry.Blocks {
		for _, op := range blk.Ops {
			if op.Code == ssa.OpCall {
				calls++
			}
		}
	}
	if calls < 2 {
		t.Fatalf("expected both calls to make() to survive as distinct, non-CSE'd effects, found %d", calls)
	}
}

func TestOptimizeRunsOverEveryFunctionInProgram(t *testing.T) {
	p := liftSource(t, `
		function addOne(n) {
			return n + 1 * 1;
		}
		log addOne(2);
	`)
	optimize.Optimize(p)

	var fn *ssa.Function
	for _, f := range p.Functions {
		if f.Name == "addOne" {
			fn = f
		}
	}
	if fn == nil {
		t.Fatal("expected a lifted function named addOne")
	}
	if countOps(fn, ssa.OpMulNum) != 0 {
		t.Fatalf("expected Optimize to fold constants inside addOne too, not just the module entry")
	}
}
