// Package ssa defines the register-based SSA intermediate representation
// the lifter (internal/lifter) produces from bytecode and the middle end
// (internal/typeinfer, internal/borrow, internal/optimize) consumes and
// rewrites in place (spec §3.5, §6.5). It mirrors the shape of
// internal/bytecode's Instruction/Chunk/Program trio one level up: a
// tagged-union Op carrying explicit destination and source register ids
// instead of a stack-machine opcode, grouped into ordered, labeled Blocks,
// grouped into named Functions, grouped into one Program.
package ssa

// Type is a node in the inference lattice (spec §4.7): Never at the
// bottom, Any at the top, the concrete Nyx runtime kinds in between.
type Type int

const (
	TypeNever Type = iota
	TypeNumber
	TypeString
	TypeBoolean
	TypeObject
	TypeArray
	TypeFunction
	TypeVoid
	TypeAny
)

func (t Type) String() string {
	switch t {
	case TypeNever:
		return "never"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeBoolean:
		return "boolean"
	case TypeObject:
		return "object"
	case TypeArray:
		return "array"
	case TypeFunction:
		return "function"
	case TypeVoid:
		return "void"
	default:
		return "any"
	}
}

// Join computes the least upper bound of two lattice elements (spec
// §4.7's phi-output rule): identical types join to themselves, Never
// joins to the other operand, anything else joins to Any.
func Join(a, b Type) Type {
	if a == b {
		return a
	}
	if a == TypeNever {
		return b
	}
	if b == TypeNever {
		return a
	}
	return TypeAny
}

// Ownership is the borrow checker's tag on a Value (spec §4.8).
type Ownership int

const (
	Owned Ownership = iota
	Moved
	BorrowedImm
	BorrowedMut
	Captured
)

func (o Ownership) String() string {
	switch o {
	case Owned:
		return "owned"
	case Moved:
		return "moved"
	case BorrowedImm:
		return "&"
	case BorrowedMut:
		return "&mut"
	case Captured:
		return "captured"
	default:
		return "?"
	}
}

// Storage is a hint for where a Value ultimately lives; the lifter
// always emits Register, typeinfer/borrow never change it, and a future
// native emitter is free to consult it (spec §6.6 is explicit that only
// documented-stable ABI details may be depended on, so this hint alone
// must never be load-bearing for IR semantics).
type Storage int

const (
	StackStorage Storage = iota
	HeapStorage
	RegisterStorage
)

// Reg names an SSA register, unique within its owning Function. Register
// zero is never a valid id for a defined value; it is reserved so a
// zero-valued Reg field reads as "no value" in Ops that have an optional
// operand (e.g. Return with no expression).
type Reg int

const NoReg Reg = 0

// ValueInfo is the per-register metadata a Function accumulates as
// typeinfer and borrow analyze it; the lifter seeds Type=Any,
// Ownership=Owned, Storage=RegisterStorage for every register it defines
// and later passes narrow Type/Ownership in place without renumbering.
type ValueInfo struct {
	Type      Type
	Ownership Ownership
	Storage   Storage
}

// Param is one function parameter: name plus the same (type, ownership)
// pair a local Value carries, since spec §3.5 types params identically to
// SSA values.
type Param struct {
	Name      string
	Reg       Reg
	Type      Type
	Ownership Ownership
}

// Op is one SSA instruction: an opcode tag plus destination/source
// register operands. Not every field is meaningful for every Opcode,
// mirroring bytecode.Instruction's own tagged-union shape.
type Op struct {
	Code      Opcode
	Dst       Reg
	Args      []Reg
	CalleeReg Reg        // callee (Call)/receiver (CallMethod, CallSuper)/class (Construct) register; NoReg for a by-name native Call
	Const     interface{} // literal operand for Const
	Slot      string      // local variable name for LoadLocal/StoreLocal
	Name      string      // property / method / specifier / by-name-native name
	Callee    *Function   // non-nil when Direct: the statically resolved function a Call/MakeClosure targets
	Direct    bool        // true when Callee was resolved at lift time (spec §4.6's direct/indirect Call marking)
	FlagA     bool        // generic boolean operand (e.g. GetExport.IsDefault)
	Arity     int         // MakeClosure's declared parameter count
	IsAsync   bool        // MakeClosure's async flag

	Decl          bool      // true when StoreLocal is a fresh binding (Let), false for a plain reassignment (Store)
	DeclOwnership Ownership // the binding's surface ownership sigil, meaningful only when Decl
}

// Opcode enumerates SSA-level operations. Arithmetic/comparison ops come
// in "Any" (dynamic, spec §4.6) and type-specialized forms (spec §4.7);
// the lifter only ever emits the Any forms, typeinfer rewrites Op.Code to
// the specialized form in place when it proves the operand types.
type Opcode int

const (
	OpConst Opcode = iota
	OpLoadLocal
	OpStoreLocal
	OpLoadGlobal
	OpStoreGlobal
	OpLoadThis

	OpAddAny
	OpSubAny
	OpMulAny
	OpDivAny
	OpModAny
	OpNegAny
	OpNotAny
	OpAndAny
	OpOrAny
	OpEqAny
	OpNotEqAny
	OpLtAny
	OpLtEqAny
	OpGtAny
	OpGtEqAny

	OpAddNum
	OpSubNum
	OpMulNum
	OpDivNum
	OpModNum
	OpNegNum
	OpEqNum
	OpNotEqNum
	OpLtNum
	OpLtEqNum
	OpGtNum
	OpGtEqNum
	OpConcatStr
	OpEqStr
	OpNotEqStr

	OpNewObject
	OpNewArray
	OpSetProp
	OpGetProp
	OpStoreElement
	OpLoadElement
	OpSetProto
	OpLoadSuper
	OpGetSuperProp

	OpMakeClosure
	OpCall
	OpCallMethod
	OpCallSuper
	OpConstruct
	OpApplyDecorator

	OpImportAsync
	OpGetExport
	OpAwait
	OpRequire

	// OpOpaque lowers any bytecode instruction the SSA form has no
	// dedicated representation for (Drop, Throw/try-machinery — the
	// latter never reach here because the lifter rejects functions that
	// contain them, spec §4.6). Kept as an explicit escape hatch rather
	// than silently dropping operands.
	OpOpaque
)

// Phi is a join-point value: one incoming Reg per predecessor Block,
// positionally aligned with the owning Block's Preds slice (spec §3.5's
// "block parameters encoding SSA phis", §6.5).
type Phi struct {
	Dst      Reg
	Incoming []Reg // Incoming[i] is the value flowing in from Preds[i]
}

// TermKind is a Block's terminator shape (spec §3.5: Jump, Branch, or
// Return — the only three control transfers a lifted function may end a
// block with).
type TermKind int

const (
	TermJump TermKind = iota
	TermBranch
	TermReturn
)

// Terminator closes a Block. For TermJump, Target is the successor. For
// TermBranch, Cond selects between IfTrue and IfFalse. For TermReturn,
// Value is NoReg for a bare return.
type Terminator struct {
	Kind    TermKind
	Cond    Reg
	Target  *Block
	IfTrue  *Block
	IfFalse *Block
	Value   Reg
	HasVal  bool
}

// Block is an ordered list of Ops closed by exactly one Terminator, plus
// the Phis live at its entry. Preds/Succs are populated once the whole
// function's CFG is known (the lifter's second pass) and never mutated
// by typeinfer or borrow; optimize's unreachable-block removal is the one
// pass permitted to delete entries from a Function's Blocks and to prune
// the corresponding Phi.Incoming slots.
type Block struct {
	Label string
	Addr  int // originating bytecode address, for diagnostics
	Phis  []*Phi
	Ops   []*Op
	Term  Terminator
	Preds []*Block
	Succs []*Block
}

// Function is one lifted function: the entry block plus every block
// reachable from it (spec §3.5). Registers number in definition order
// starting at 1 (see Reg/NoReg); Blocks are ordered entry-first then by
// first-reference order, never by map/hash iteration, so two lifts of the
// same bytecode always produce byte-identical IR text (spec §6.5).
type Function struct {
	Name      string
	Params    []Param
	Blocks    []*Block
	Entry     *Block
	Values    map[Reg]*ValueInfo
	IsAsync   bool
	EntryAddr int // the bytecode address this function was lifted from
	nextReg   Reg
}

func NewFunction(name string, entryAddr int) *Function {
	return &Function{
		Name:      name,
		Values:    make(map[Reg]*ValueInfo),
		EntryAddr: entryAddr,
		nextReg:   1,
	}
}

// NewReg allocates the next register in definition order and seeds its
// default metadata (Any / Owned / Register), returning it for immediate
// use as an Op's Dst.
func (f *Function) NewReg() Reg {
	r := f.nextReg
	f.nextReg++
	f.Values[r] = &ValueInfo{Type: TypeAny, Ownership: Owned, Storage: RegisterStorage}
	return r
}

// Info returns r's metadata, or a fresh Any/Owned/Register entry if r was
// never registered through NewReg (defensive default; every lifter-
// produced register is always registered).
func (f *Function) Info(r Reg) *ValueInfo {
	if info, ok := f.Values[r]; ok {
		return info
	}
	info := &ValueInfo{Type: TypeAny, Ownership: Owned, Storage: RegisterStorage}
	f.Values[r] = info
	return info
}

// AddBlock appends a new, empty block with the given label to f, in
// creation order. Callers are responsible for maintaining the
// entry-first-then-first-reference ordering contract when they build the
// CFG incrementally (the lifter adds blocks in exactly that order as it
// discovers them; optimize's unreachable-block pass is the only later
// pass allowed to remove entries).
func (f *Function) AddBlock(label string, addr int) *Block {
	b := &Block{Label: label, Addr: addr}
	f.Blocks = append(f.Blocks, b)
	if f.Entry == nil {
		f.Entry = b
	}
	return b
}

// Program is a module's complete lifted output: every function extracted
// from its bytecode.Program, ordered lexicographically by Name (spec
// §3.5's determinism rule). Entry identifies the module's top-level
// function regardless of where lexicographic order places it in
// Functions.
type Program struct {
	Functions []*Function
	Entry     *Function
}

func NewProgram() *Program {
	return &Program{}
}
