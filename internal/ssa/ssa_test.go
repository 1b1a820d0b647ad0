package ssa_test

import (
	"bytes"
	"strings"
	"testing"

	"nyx/internal/ssa"
)

func TestJoinLattice(t *testing.T) {
	cases := []struct {
		a, b, want ssa.Type
	}{
		{ssa.TypeNumber, ssa.TypeNumber, ssa.TypeNumber},
		{ssa.TypeNever, ssa.TypeString, ssa.TypeString},
		{ssa.TypeBoolean, ssa.TypeNever, ssa.TypeBoolean},
		{ssa.TypeNumber, ssa.TypeString, ssa.TypeAny},
		{ssa.TypeAny, ssa.TypeNumber, ssa.TypeAny},
	}
	for _, c := range cases {
		if got := ssa.Join(c.a, c.b); got != c.want {
			t.Errorf("Join(%v, %v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestNewRegAllocatesInDefinitionOrder(t *testing.T) {
	fn := ssa.NewFunction("f", 0)
	r1 := fn.NewReg()
	r2 := fn.NewReg()
	r3 := fn.NewReg()
	if r1 >= r2 || r2 >= r3 {
		t.Fatalf("expected strictly increasing register ids, got %v %v %v", r1, r2, r3)
	}
	if r1 == ssa.NoReg {
		t.Fatalf("first allocated register must not be NoReg")
	}
	for _, r := range []ssa.Reg{r1, r2, r3} {
		info := fn.Info(r)
		if info.Type != ssa.TypeAny || info.Ownership != ssa.Owned || info.Storage != ssa.RegisterStorage {
			t.Errorf("register %v: expected default Any/Owned/Register, got %+v", r, info)
		}
	}
}

func TestAddBlockTracksEntry(t *testing.T) {
	fn := ssa.NewFunction("f", 0)
	b0 := fn.AddBlock("entry", 0)
	b1 := fn.AddBlock("L1", 4)
	if fn.Entry != b0 {
		t.Fatalf("expected first added block to become Entry")
	}
	if len(fn.Blocks) != 2 || fn.Blocks[0] != b0 || fn.Blocks[1] != b1 {
		t.Fatalf("expected Blocks to preserve creation order")
	}
}

func TestPrintRendersFunctionShape(t *testing.T) {
	fn := ssa.NewFunction("main", 0)
	entry := fn.AddBlock("entry", 0)
	r1 := fn.NewReg()
	entry.Ops = append(entry.Ops, &ssa.Op{Code: ssa.OpConst, Dst: r1, Const: 1.0})
	entry.Term = ssa.Terminator{Kind: ssa.TermReturn, Value: r1, HasVal: true}

	prog := ssa.NewProgram()
	prog.Functions = append(prog.Functions, fn)
	prog.Entry = fn

	var buf bytes.Buffer
	ssa.Print(&buf, prog)
	out := buf.String()

	for _, want := range []string{"function main(", "entry(", "Const", "return r1"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestPrintIsDeterministicAcrossCalls(t *testing.T) {
	build := func() *ssa.Program {
		fn := ssa.NewFunction("f", 0)
		entry := fn.AddBlock("entry", 0)
		r1 := fn.NewReg()
		r2 := fn.NewReg()
		entry.Ops = append(entry.Ops,
			&ssa.Op{Code: ssa.OpConst, Dst: r1, Const: 1.0},
			&ssa.Op{Code: ssa.OpConst, Dst: r2, Const: 2.0},
			&ssa.Op{Code: ssa.OpAddNum, Dst: fn.NewReg(), Args: []ssa.Reg{r1, r2}},
		)
		entry.Term = ssa.Terminator{Kind: ssa.TermReturn}
		prog := ssa.NewProgram()
		prog.Functions = append(prog.Functions, fn)
		return prog
	}

	var a, b bytes.Buffer
	ssa.Print(&a, build())
	ssa.Print(&b, build())
	if a.String() != b.String() {
		t.Fatalf("expected identical IR text across independent builds:\n%s\n---\n%s", a.String(), b.String())
	}
}
