package vmvalue

// ObjectRec backs the "Object" heap kind: a property map plus optional
// prototype and super links for class wrappers (spec §3.2).
type ObjectRec struct {
	Props map[string]Value
	Proto Value // Nil() if absent
	Super Value // Nil() if absent (class wrapper __super__)
}

// ArrayRec backs the "Array" heap kind.
type ArrayRec struct {
	Elements []Value
}

// StringRec backs the "String" heap kind: raw UTF-8 bytes, not
// NUL-terminated.
type StringRec struct {
	Bytes []byte
}

// ClosureRec backs the "Closure" heap kind: a code entry point plus the
// captured-environment object handle it closed over.
type ClosureRec struct {
	EntryAddr int
	Env       Value // handle to an ObjectRec holding exactly the captured slots
	Arity     int
	Name      string
	IsAsync   bool

	// BoundThis/HasThis let GetSuperProp hand back a method pre-bound to
	// the current instance, since an ordinary Call has no receiver to
	// supply `this` from (spec §4.3 "super.m(...)" rule).
	BoundThis Value
	HasThis   bool

	// OwnerSuper is the superclass wrapper (Nil() if none) of the class
	// that defined this closure as a method/getter/setter/constructor,
	// stamped by __defineClass__. A running frame's `super` binding
	// comes from the invoked closure's OwnerSuper, not from the
	// receiver's own class, so an inherited-but-not-overridden method
	// still resolves `super` against the class that actually wrote it.
	OwnerSuper Value
}

// PromiseState is one of the three states an I5-invariant promise may be in.
type PromiseState uint8

const (
	PromisePending PromiseState = iota
	PromiseFulfilled
	PromiseRejected
)

// PromiseReaction is one .then/.catch registration: the (possibly
// Undefined/absent) fulfill and reject callbacks, and the derived
// promise that callback's return value settles.
type PromiseReaction struct {
	OnFulfill Value
	OnReject  Value
	Result    Value
}

// PromiseRec backs the "Promise" heap kind (spec §3.2, §5).
type PromiseRec struct {
	State     PromiseState
	Result    Value // the fulfilled value or rejection reason
	Reactions []PromiseReaction
}

// PatchEntry records a pending fixup site in a ByteStream. Neither the
// bytecode serializer nor Program.Append's address rebasing uses it.
type PatchEntry struct {
	Offset int
	Kind   string
}

// ByteStreamRec backs the "ByteStream" heap kind: a growable byte buffer
// with cursor and pending patch table.
type ByteStreamRec struct {
	Buf    []byte
	Cursor int
	Patches []PatchEntry
}

// NativeFnRec backs the "NativeFn" heap kind: an index into the VM's
// process-wide native function table (resolved by the VM, not here, to
// avoid an import cycle between vmvalue and vm).
type NativeFnRec struct {
	Index int
	Name  string
}
