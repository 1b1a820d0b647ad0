package vmvalue

import (
	"math"
	"testing"
)

func TestNumberRoundTrip(t *testing.T) {
	for _, f := range []float64{0, 1, -1, 3.25, math.Inf(1), math.Inf(-1)} {
		v := Number(f)
		if !v.IsNumber() {
			t.Fatalf("expect %v to be a number", f)
		}
		if v.AsNumber() != f {
			t.Fatalf("round trip mismatch: got %v want %v", v.AsNumber(), f)
		}
	}
}

func TestNaNIsNormalizedAndStillNumber(t *testing.T) {
	v := Number(math.NaN())
	if !v.IsNumber() {
		t.Fatalf("NaN must still report IsNumber")
	}
	if !math.IsNaN(v.AsNumber()) {
		t.Fatalf("expect NaN payload to survive boxing")
	}
	other := Number(math.Float64frombits(0x7FF8000000000099)) // a different (quiet) NaN payload
	if uint64(v) != uint64(other) {
		t.Fatalf("expect all NaNs to normalize to the same canonical bit pattern")
	}
}

func TestSingletonsAreDistinctFixedPatterns(t *testing.T) {
	if Nil() == Value(uint64(Bool(true))) || Nil() == Value(uint64(Bool(false))) {
		t.Fatalf("nil must not collide with true/false")
	}
	if Undefined() == Nil() {
		t.Fatalf("undefined must not collide with nil")
	}
	if !Bool(true).AsBool() || Bool(false).AsBool() {
		t.Fatalf("bool round trip failed")
	}
}

func TestHandleRoundTripAndKindTag(t *testing.T) {
	v := Handle(KindArray, 42)
	if !v.IsHandle() || !v.IsKind(KindArray) {
		t.Fatalf("expect array-kind handle")
	}
	kind, idx := v.AsHandle()
	if kind != KindArray || idx != 42 {
		t.Fatalf("unexpected handle decode: %v %v", kind, idx)
	}
	if v.IsNumber() {
		t.Fatalf("a handle must never be mistaken for a number")
	}
}

func TestMovedSlotIsDistinctFromEveryOtherSingleton(t *testing.T) {
	m := Moved()
	if !m.IsMoved() {
		t.Fatalf("expect IsMoved")
	}
	if m == Nil() || m == Undefined() || m == Bool(true) || m == Bool(false) {
		t.Fatalf("moved sentinel collides with another singleton")
	}
}

func TestTruthy(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{Nil(), false},
		{Undefined(), false},
		{Bool(false), false},
		{Bool(true), true},
		{Number(0), false},
		{Number(math.NaN()), false},
		{Number(1), true},
	}
	for _, c := range cases {
		if got := c.v.Truthy(); got != c.want {
			t.Fatalf("Truthy(%v) = %v, want %v", c.v, got, c.want)
		}
	}
}

func TestHeapAllocAndReleaseReusesHandles(t *testing.T) {
	h := NewHeap()
	a := h.NewArray([]Value{Number(1), Number(2)})
	_, idxA := a.AsHandle()

	h.Release(a)
	b := h.NewArray([]Value{Number(3)})
	_, idxB := b.AsHandle()
	if idxA != idxB {
		t.Fatalf("expect released handle index to be reused, got %d then %d", idxA, idxB)
	}
	if len(h.Array(b).Elements) != 1 || h.Array(b).Elements[0].AsNumber() != 3 {
		t.Fatalf("unexpected reused array contents")
	}
}

func TestHeapObjectPropertiesAreUnique(t *testing.T) {
	h := NewHeap()
	obj := h.NewObject(&ObjectRec{Proto: Nil()})
	rec := h.Object(obj)
	rec.Props["x"] = Number(1)
	rec.Props["x"] = Number(2)
	if len(rec.Props) != 1 || rec.Props["x"].AsNumber() != 2 {
		t.Fatalf("expect single unique key 'x' with latest value")
	}
}
