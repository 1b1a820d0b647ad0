// Package bytecode defines the Nyx instruction set and the in-memory
// program representation produced by the compiler (spec §3.4, §4.3),
// generalizing the teacher's flat byte-oriented opcode table to the
// full opcode set required by classes, modules, exceptions, and async.
package bytecode

// Op identifies a bytecode instruction. The serializer writes the
// numeric values as-is, so they are part of the on-disk encoding:
// reordering them changes serialized output (spec §4.4).
type Op byte

const (
	OpPush Op = iota
	OpPop
	OpDup
	OpSwap

	OpLet   // Let(name): bind in innermost frame, shadowing
	OpStore // Store(name): walk frames outward, fail if unbound
	OpLoad  // Load(name): walk frames outward

	OpStoreLocal // StoreLocal(slot)
	OpLoadLocal  // LoadLocal(slot)
	OpLoadThis

	OpNewObject
	OpNewArray // NewArray(n)
	OpSetProp  // SetProp(key)
	OpGetProp  // GetProp(key)

	OpStoreElement
	OpLoadElement

	OpCall       // Call(argc)
	OpCallMethod // CallMethod(argc, name)
	OpConstruct  // Construct(argc)
	OpReturn

	OpJump        // Jump(addr)
	OpJumpIfFalse // JumpIfFalse(addr)
	OpMakeClosure // MakeClosure(addr)
	OpDrop        // Drop(name)

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNeg
	OpNot
	OpAnd
	OpOr

	OpEq
	OpNotEq
	OpLt
	OpLtEq
	OpGt
	OpGtEq

	OpThrow
	OpSetupTry // SetupTry{catch_addr, finally_addr}
	OpPopTry
	OpEnterFinally // EnterFinally(from_throw bool)

	OpSetProto
	OpLoadSuper
	OpCallSuper   // CallSuper(argc)
	OpGetSuperProp // GetSuperProp(name)
	OpApplyDecorator

	OpImportAsync // ImportAsync(specifier)
	OpGetExport   // GetExport{name, is_default}
	OpAwait
	OpRequire

	OpHalt
)

var opNames = map[Op]string{
	OpPush: "Push", OpPop: "Pop", OpDup: "Dup", OpSwap: "Swap",
	OpLet: "Let", OpStore: "Store", OpLoad: "Load",
	OpStoreLocal: "StoreLocal", OpLoadLocal: "LoadLocal", OpLoadThis: "LoadThis",
	OpNewObject: "NewObject", OpNewArray: "NewArray", OpSetProp: "SetProp", OpGetProp: "GetProp",
	OpStoreElement: "StoreElement", OpLoadElement: "LoadElement",
	OpCall: "Call", OpCallMethod: "CallMethod", OpConstruct: "Construct", OpReturn: "Return",
	OpJump: "Jump", OpJumpIfFalse: "JumpIfFalse", OpMakeClosure: "MakeClosure", OpDrop: "Drop",
	OpAdd: "Add", OpSub: "Sub", OpMul: "Mul", OpDiv: "Div", OpMod: "Mod",
	OpNeg: "Neg", OpNot: "Not", OpAnd: "And", OpOr: "Or",
	OpEq: "Eq", OpNotEq: "NotEq", OpLt: "Lt", OpLtEq: "LtEq", OpGt: "Gt", OpGtEq: "GtEq",
	OpThrow: "Throw", OpSetupTry: "SetupTry", OpPopTry: "PopTry", OpEnterFinally: "EnterFinally",
	OpSetProto: "SetProto", OpLoadSuper: "LoadSuper", OpCallSuper: "CallSuper",
	OpGetSuperProp: "GetSuperProp", OpApplyDecorator: "ApplyDecorator",
	OpImportAsync: "ImportAsync", OpGetExport: "GetExport", OpAwait: "Await", OpRequire: "Require",
	OpHalt: "Halt",
}

func (o Op) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return "Unknown"
}

// addrOps carry an absolute code index operand that must be rebased when
// their containing chunk is appended to a running program (spec §4.4).
var addrOps = map[Op]bool{
	OpJump: true, OpJumpIfFalse: true, OpMakeClosure: true, OpSetupTry: true,
}

// IsAddrOp reports whether op's operand is an absolute code address.
func IsAddrOp(op Op) bool { return addrOps[op] }
