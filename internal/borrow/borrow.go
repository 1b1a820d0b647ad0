// Package borrow implements the move/borrow analysis of spec §4.8,
// walking SSA after internal/typeinfer has narrowed every register's
// type. Because internal/lifter keeps named locals as memory-like
// LoadLocal/StoreLocal ops rather than promoting them to phi'd
// registers, ownership is tracked per slot name, flow-sensitively, using
// each slot's nearest dominating write or move event — the dominator
// tree stands in for the "dominator region" the spec describes a
// borrow's lifetime by, and for the set of program points a move is
// visible from ("all post-dominated uses").
//
// Four violations are detected, matching diag.BorrowSubkind exactly:
//
//   - UseAfterMove: reading a non-Copy slot after its current value was
//     consumed by a plain slot-to-slot assignment (`let b = a;`) of an
//     Owned value.
//   - MovedCapture: reading a slot outside a closure after it was
//     captured into that closure's environment by value (this compiler's
//     only capture mode — internal/compiler/func.go's compileFunctionLit
//     always snapshots a captured name's current value into the
//     closure's env object, never by reference), when the slot held an
//     Owned, non-Copy value at the capture site.
//   - OverlappingMutableBorrow: the same capture-then-reread shape, but
//     for a slot declared `&mut` — a mutable borrow captured into a
//     closure while the enclosing function goes on using it is two live
//     accesses to the same exclusive borrow.
//   - EscapingBorrow: a function returning a value read directly from a
//     `&`/`&mut` parameter or local, whose borrow cannot outlive the
//     call that introduced it.
//
// The surface language only ever produces a BorrowedImm/BorrowedMut tag
// through a `let`/parameter ownership annotation (there is no `&x`
// expression that borrows an arbitrary existing place — internal/parser
// only recognizes the sigil in parseTypeAnnotation); every rule here is
// scoped to what that surface syntax can actually construct.
package borrow

import (
	"fmt"

	"nyx/internal/diag"
	"nyx/internal/ssa"
)

// Check runs CheckFunction over every function in prog.
func Check(prog *ssa.Program) []*diag.Diagnostic {
	var out []*diag.Diagnostic
	for _, fn := range prog.Functions {
		out = append(out, CheckFunction(fn)...)
	}
	return out
}

type eventKind int

const (
	eventWrite eventKind = iota
	eventMove
)

type event struct {
	idx     int
	kind    eventKind
	subkind diag.BorrowSubkind
	op      *ssa.Op
}

type checker struct {
	fn        *ssa.Function
	idom      map[*ssa.Block]*ssa.Block
	regDefs   map[ssa.Reg]*ssa.Op
	ownership map[string]ssa.Ownership
	events    map[string]map[*ssa.Block][]event
	diags     []*diag.Diagnostic
}

// CheckFunction runs the borrow analysis over one function, returning
// every violation it finds (nil if none).
func CheckFunction(fn *ssa.Function) []*diag.Diagnostic {
	c := &checker{
		fn:        fn,
		idom:      immediateDominators(fn),
		regDefs:   make(map[ssa.Reg]*ssa.Op),
		ownership: make(map[string]ssa.Ownership),
		events:    make(map[string]map[*ssa.Block][]event),
	}
	for _, p := range fn.Params {
		c.ownership[p.Name] = p.Ownership
	}
	for _, blk := range fn.Blocks {
		for _, op := range blk.Ops {
			if op.Dst != ssa.NoReg {
				c.regDefs[op.Dst] = op
			}
			if op.Code == ssa.OpStoreLocal && op.Decl {
				c.ownership[op.Slot] = op.DeclOwnership
			}
		}
	}

	for _, blk := range fn.Blocks {
		for idx, op := range blk.Ops {
			c.recordEvents(blk, idx, op)
		}
	}
	for _, blk := range fn.Blocks {
		for idx, op := range blk.Ops {
			if op.Code == ssa.OpLoadLocal {
				c.checkRead(blk, idx, op)
			}
		}
		c.checkReturn(blk)
	}
	return c.diags
}

func (c *checker) addEvent(slot string, blk *ssa.Block, idx int, e event) {
	if c.events[slot] == nil {
		c.events[slot] = make(map[*ssa.Block][]event)
	}
	c.events[slot][blk] = append(c.events[slot][blk], e)
}

func (c *checker) isCopy(r ssa.Reg) bool {
	t := c.fn.Info(r).Type
	return t == ssa.TypeNumber || t == ssa.TypeBoolean
}

// recordEvents notices the two ways a StoreLocal/MakeClosure op can move
// or capture a slot it isn't itself writing to.
func (c *checker) recordEvents(blk *ssa.Block, idx int, op *ssa.Op) {
	switch op.Code {
	case ssa.OpStoreLocal:
		c.addEvent(op.Slot, blk, idx, event{idx: idx, kind: eventWrite, op: op})
		if len(op.Args) != 1 {
			return
		}
		src := c.regDefs[op.Args[0]]
		if src == nil || src.Code != ssa.OpLoadLocal || src.Slot == op.Slot {
			return
		}
		srcSlot := src.Slot
		if c.ownership[srcSlot] != ssa.Owned || c.isCopy(op.Args[0]) {
			return
		}
		c.addEvent(srcSlot, blk, idx, event{
			idx: idx, kind: eventMove, subkind: diag.UseAfterMove, op: op,
		})

	case ssa.OpMakeClosure:
		if len(op.Args) != 1 {
			return
		}
		env := op.Args[0]
		for j := idx - 1; j >= 0; j-- {
			setProp := blk.Ops[j]
			if setProp.Code != ssa.OpSetProp || len(setProp.Args) != 2 || setProp.Args[0] != env {
				break
			}
			capturedVal := setProp.Args[1]
			capturedDef := c.regDefs[capturedVal]
			if capturedDef == nil || capturedDef.Code != ssa.OpLoadLocal {
				continue
			}
			slot := capturedDef.Slot
			switch c.ownership[slot] {
			case ssa.BorrowedImm:
				// multiple immutable borrows may coexist; capturing one
				// by value changes nothing observable.
			case ssa.BorrowedMut:
				c.addEvent(slot, blk, idx, event{idx: idx, kind: eventMove, subkind: diag.OverlappingMutableBorrow, op: op})
			default:
				if !c.isCopy(capturedVal) {
					c.addEvent(slot, blk, idx, event{idx: idx, kind: eventMove, subkind: diag.MovedCapture, op: op})
				}
			}
		}
	}
}

// nearestEvent finds the closest event recorded for slot that dominates
// the program point (blk, beforeIdx): first the same block's own
// history strictly before beforeIdx, then each ancestor in the
// dominator tree's full history (every op in a dominator already ran
// unconditionally before control reaches blk).
func (c *checker) nearestEvent(slot string, blk *ssa.Block, beforeIdx int) *event {
	byBlock := c.events[slot]
	if byBlock == nil {
		return nil
	}
	if list := byBlock[blk]; list != nil {
		for i := len(list) - 1; i >= 0; i-- {
			if list[i].idx < beforeIdx {
				e := list[i]
				return &e
			}
		}
	}
	for b := blk; b != c.fn.Entry; {
		parent := c.idom[b]
		if parent == nil || parent == b {
			break
		}
		b = parent
		if list := byBlock[b]; len(list) > 0 {
			e := list[len(list)-1]
			return &e
		}
	}
	return nil
}

func (c *checker) checkRead(blk *ssa.Block, idx int, op *ssa.Op) {
	ev := c.nearestEvent(op.Slot, blk, idx)
	if ev == nil || ev.kind != eventMove {
		return
	}
	c.diags = append(c.diags, diag.NewBorrowError(ev.subkind, fmt.Sprintf(
		"%s: %q read in function %q after it was %s", ev.subkind, op.Slot, c.fn.Name, moveDescription(ev.subkind))))
}

func moveDescription(sub diag.BorrowSubkind) string {
	switch sub {
	case diag.MovedCapture:
		return "captured into a closure"
	case diag.OverlappingMutableBorrow:
		return "captured into a closure while still mutably borrowed"
	default:
		return "moved"
	}
}

// checkReturn flags a bare return of a borrowed parameter or local: the
// borrow's lifetime is the call that introduced it, which ends before
// the value could reach the caller.
func (c *checker) checkReturn(blk *ssa.Block) {
	if blk.Term.Kind != ssa.TermReturn || !blk.Term.HasVal {
		return
	}
	def := c.regDefs[blk.Term.Value]
	if def == nil || def.Code != ssa.OpLoadLocal {
		return
	}
	switch c.ownership[def.Slot] {
	case ssa.BorrowedImm, ssa.BorrowedMut:
		c.diags = append(c.diags, diag.NewBorrowError(diag.EscapingBorrow, fmt.Sprintf(
			"function %q returns borrowed slot %q, whose lifetime does not outlive the call", c.fn.Name, def.Slot)))
	}
}
