package bytecode

// Program is the VM's running code image: the concatenation of the
// entry module's chunk plus every dynamically loaded module chunk,
// appended with address rebasing (spec §4.4, §4.5.1).
type Program struct {
	Code      []Instruction
	Constants []interface{}
	Debug     []DebugInfo
	Functions []FunctionInfo
}

func NewProgram() *Program {
	return &Program{}
}

// Append concatenates chunk onto p, rebasing every absolute-address
// operand (Jump, JumpIfFalse, MakeClosure, SetupTry) by the pre-append length of
// p.Code, and returns the entry address of the appended code (where
// chunk.Code[0] now lives).
func (p *Program) Append(chunk *Chunk) (entryAddr int) {
	codeBase := len(p.Code)
	constBase := len(p.Constants)

	for _, in := range chunk.Code {
		if IsAddrOp(in.Op) {
			in.A += codeBase
		}
		if in.Op == OpPush {
			in.ConstIndex += constBase
		}
		p.Code = append(p.Code, in)
	}
	p.Debug = append(p.Debug, chunk.Debug...)
	p.Constants = append(p.Constants, chunk.Constants...)

	for _, fn := range chunk.Functions {
		fn.EntryAddr += codeBase
		p.Functions = append(p.Functions, fn)
	}
	return codeBase
}

func (p *Program) Len() int { return len(p.Code) }

func (p *Program) GetDebugInfo(ip int) DebugInfo {
	if ip >= 0 && ip < len(p.Debug) {
		return p.Debug[ip]
	}
	return DebugInfo{}
}
