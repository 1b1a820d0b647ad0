package vm

import "nyx/internal/vmvalue"

// frame is one call's bindings and bookkeeping, generalizing the
// teacher's EnhancedCallFrame from a slot-indexed locals array to a
// name-keyed scope (spec §4.3's Let/Store/Load rule). Because a closure
// captures its free variables by value into an environment object at
// MakeClosure time rather than by a live reference to an enclosing
// frame, a frame never needs a parent pointer: every name reachable from
// the function body is either one of its own params/locals or was
// pre-seeded from the closure's captured environment when the frame was
// built (see (*VM).pushClosureFrame).
type frame struct {
	vars map[string][]vmvalue.Value

	this    vmvalue.Value
	hasThis bool

	super vmvalue.Value // superclass wrapper, Nil() if not inside a method/ctor

	retIP int

	// isConstructor/instanceVal make Return push instanceVal instead of
	// the computed return value, implementing `new` (spec §4.5's
	// Construct rule: "the new Object... " is what `new Expr(...)`
	// evaluates to, not whatever the constructor body returns).
	isConstructor bool
	instanceVal   vmvalue.Value

	stackMark int // value-stack depth at entry, for Throw/Return unwinding

	classWrapper vmvalue.Value // the class whose field initializers should run ahead of this ctor, Nil() otherwise

	// moduleNS is the namespace object a module's top-level frame writes
	// its "__export_x__" bindings into as they are declared, not just
	// once the module finishes running (module.go's load), so a
	// circular importer observes exports in declaration order instead
	// of an all-or-nothing namespace. Nil() for an ordinary call frame.
	moduleNS vmvalue.Value
}

func newFrame(stackMark int) *frame {
	return &frame{vars: make(map[string][]vmvalue.Value), stackMark: stackMark}
}

func (f *frame) let(name string, v vmvalue.Value) {
	f.vars[name] = append(f.vars[name], v)
}

func (f *frame) drop(name string) {
	stack := f.vars[name]
	if len(stack) == 0 {
		return
	}
	f.vars[name] = stack[:len(stack)-1]
}

func (f *frame) load(name string) (vmvalue.Value, bool) {
	stack := f.vars[name]
	if len(stack) == 0 {
		return vmvalue.Value(0), false
	}
	return stack[len(stack)-1], true
}

func (f *frame) store(name string, v vmvalue.Value) bool {
	stack := f.vars[name]
	if len(stack) == 0 {
		return false
	}
	stack[len(stack)-1] = v
	return true
}

// tryFrame tracks one active try/catch/finally region so Throw can
// unwind to it (spec §4.5's Throw semantics).
type tryFrame struct {
	catchAddr  int
	stackDepth int // value-stack length to truncate to on transfer
	frameDepth int // call-frame count to unwind to (handler runs in the same frame)
}
