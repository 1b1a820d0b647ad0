package bytecode

import (
	"bytes"
	"testing"
)

func TestChunkConstantDedup(t *testing.T) {
	c := NewChunk()
	i1 := c.AddConstant(float64(42))
	i2 := c.AddConstant(float64(42))
	if i1 != i2 {
		t.Fatalf("expect constant dedup, got %d and %d", i1, i2)
	}
	i3 := c.AddConstant("hello")
	if i3 == i1 {
		t.Fatalf("expect distinct slot for distinct constant")
	}
}

func TestProgramAppendRebasesAddresses(t *testing.T) {
	p := NewProgram()
	first := NewChunk()
	first.Emit(Instruction{Op: OpPush, ConstIndex: first.AddConstant(float64(1))})
	first.Emit(Instruction{Op: OpReturn})
	p.Append(first)

	second := NewChunk()
	jumpIdx := second.Emit(Instruction{Op: OpJump, A: 5})
	second.Emit(Instruction{Op: OpReturn})
	entry := p.Append(second)

	if entry != 2 {
		t.Fatalf("expect second chunk entry at 2, got %d", entry)
	}
	rebased := p.Code[entry+0]
	if rebased.Op != OpJump || rebased.A != 5+entry {
		t.Fatalf("expect jump target rebased to %d, got %d", 5+entry, rebased.A)
	}
	_ = jumpIdx
}

func TestSerializeRoundTrip(t *testing.T) {
	c := NewChunk()
	ci := c.AddConstant("greeting")
	c.Emit(Instruction{Op: OpPush, ConstIndex: ci})
	c.Emit(Instruction{Op: OpJump, A: 10})
	c.Functions = append(c.Functions, FunctionInfo{Name: "main", EntryAddr: 0, Arity: 0})

	out, err := RoundTrip(c)
	if err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if len(out.Code) != 2 || out.Code[1].A != 10 {
		t.Fatalf("unexpected round-tripped code: %#v", out.Code)
	}
	if out.Constants[ci] != "greeting" {
		t.Fatalf("unexpected round-tripped constant: %#v", out.Constants[ci])
	}
	if len(out.Functions) != 1 || out.Functions[0].Name != "main" {
		t.Fatalf("unexpected round-tripped function table: %#v", out.Functions)
	}
}

func TestSerializeRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("XXXX")
	buf.Write([]byte{1, 0, 0, 0})
	if _, err := Deserialize(&buf); err == nil {
		t.Fatalf("expect error on bad magic")
	}
}
