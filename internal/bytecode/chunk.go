package bytecode

// DebugInfo carries the source location and enclosing function name for
// one instruction, used by the VM and diagnostics to render stack traces.
type DebugInfo struct {
	Line     int
	Column   int
	File     string
	Function string
}

// Instruction is one tagged-union bytecode operation (spec §3.4). Not
// every field is meaningful for every Op; see the compiler for which
// fields each Op populates.
type Instruction struct {
	Op         Op
	A          int    // slot / argc / addr / element count, depending on Op
	B          int    // secondary int operand (e.g. MakeClosure arity)
	Name       string // identifier / property / method / specifier operand
	ConstIndex int    // index into Chunk.Constants, for Push
	Flag       bool   // EnterFinally.from_throw, GetExport.is_default
	Ownership  string // Let/param binding's surface sigil: "", "own", "borrow", "borrowmut"
}

// FunctionInfo records a named function's entry point for export
// extraction and debugging; closures compiled for arrow/anonymous
// literals do not appear here.
type FunctionInfo struct {
	Name      string
	EntryAddr int
	Arity     int
	IsAsync   bool
}

// Chunk is a compiled unit of code: one module, appended in full to a
// running Program by the module loader (spec §4.5.1).
type Chunk struct {
	Code      []Instruction
	Constants []interface{}
	Debug     []DebugInfo
	Functions []FunctionInfo

	constIndex map[interface{}]int
}

func NewChunk() *Chunk {
	return &Chunk{constIndex: make(map[interface{}]int)}
}

// Emit appends an instruction with no debug info attached (filled in by
// EmitWithDebug at call sites that track source spans).
func (c *Chunk) Emit(in Instruction) int {
	c.Code = append(c.Code, in)
	c.Debug = append(c.Debug, DebugInfo{})
	return len(c.Code) - 1
}

func (c *Chunk) EmitWithDebug(in Instruction, debug DebugInfo) int {
	c.Code = append(c.Code, in)
	c.Debug = append(c.Debug, debug)
	return len(c.Code) - 1
}

// Patch overwrites an already-emitted instruction's address operand,
// used for forward jumps whose target is only known once the jumped-over
// code has been emitted (if/while/for backpatching).
func (c *Chunk) Patch(addr int, target int) {
	c.Code[addr].A = target
}

func (c *Chunk) PatchB(addr int, target int) {
	c.Code[addr].B = target
}

// AddConstant interns val by value identity for comparable kinds
// (numbers, strings, booleans) so repeated literals share one slot;
// deduplication uses insertion order, never a hash-ordered scan, to
// keep the constant pool deterministic (spec §4.4).
func (c *Chunk) AddConstant(val interface{}) int {
	if idx, ok := c.constIndex[val]; ok {
		return idx
	}
	c.Constants = append(c.Constants, val)
	idx := len(c.Constants) - 1
	if isHashable(val) {
		c.constIndex[val] = idx
	}
	return idx
}

func isHashable(v interface{}) bool {
	switch v.(type) {
	case float64, string, bool, nil:
		return true
	default:
		return false
	}
}

func (c *Chunk) GetDebugInfo(ip int) DebugInfo {
	if ip >= 0 && ip < len(c.Debug) {
		return c.Debug[ip]
	}
	return DebugInfo{}
}

func (c *Chunk) Len() int { return len(c.Code) }
