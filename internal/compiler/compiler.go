// Package compiler walks the Nyx AST and emits bytecode (spec §4.3),
// generalizing the teacher's StmtCompiler/HoistingCompiler pair: a scope
// stack with Drop-based block exit, a loop-context stack for labeled
// break/continue, a try-context stack, an async-context flag, and
// closure capture via an explicit environment object.
package compiler

import (
	"fmt"

	"nyx/internal/ast"
	"nyx/internal/bytecode"
)

// CompileError reports a compile-time violation (unknown label, invalid
// assignment target that slipped past the parser, etc).
type CompileError struct {
	Message string
	Line    int
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("CompileError: %s at line %d", e.Message, e.Line)
}

type blockScope struct {
	declared []string
}

type loopCtx struct {
	label      string
	blockDepth int // len(c.blocks) at loop entry, i.e. the depth break/continue unwind to
	continueAt int // address continue jumps to (update expr for `for`, cond for while/do-while)
	breakJumps []int
}

type tryCtx struct {
	blockDepth int
}

// Compiler turns a parsed Program into a single bytecode.Chunk. Nested
// function bodies are compiled inline into the same chunk, reached via a
// Jump that skips over them at their declaration site (so MakeClosure can
// reference a stable address within this chunk).
type Compiler struct {
	chunk    *bytecode.Chunk
	fileName string
	line     int

	blocks     []*blockScope
	loopStack  []*loopCtx
	tryStack   []*tryCtx
	asyncDepth int

	// funcBlockBase tracks len(c.blocks) at each enclosing function's
	// entry, so a `return` inside nested blocks unwinds only its own
	// function's locals rather than every enclosing function's too.
	funcBlockBase []int

	// scopeNames is a stack of name-sets, one per enclosing function,
	// used by freeVariables to decide whether an identifier referenced
	// inside a nested function literal must be captured.
	scopeNames []map[string]bool

	Errors []error
}

func New(fileName string) *Compiler {
	return &Compiler{
		chunk:      bytecode.NewChunk(),
		fileName:   fileName,
		scopeNames: []map[string]bool{make(map[string]bool)},
	}
}

// Compile compiles an entire module/script into one chunk ending in Halt.
func (c *Compiler) Compile(prog *ast.Program) *bytecode.Chunk {
	c.compileStmtsHoisted(prog.Stmts)
	c.emit(bytecode.Instruction{Op: bytecode.OpHalt})
	return c.chunk
}

// ---------------------------------------------------------------- helpers

func (c *Compiler) emit(in bytecode.Instruction) int {
	return c.chunk.EmitWithDebug(in, bytecode.DebugInfo{Line: c.line, File: c.fileName})
}

func (c *Compiler) fail(msg string) {
	c.Errors = append(c.Errors, &CompileError{Message: msg, Line: c.line})
}

func (c *Compiler) pushBlock() { c.blocks = append(c.blocks, &blockScope{}) }

func (c *Compiler) popBlock() *blockScope {
	last := c.blocks[len(c.blocks)-1]
	c.blocks = c.blocks[:len(c.blocks)-1]
	return last
}

func (c *Compiler) declare(name string) {
	if len(c.blocks) > 0 {
		b := c.blocks[len(c.blocks)-1]
		b.declared = append(b.declared, name)
	}
	c.scopeNames[len(c.scopeNames)-1][name] = true
}

func (c *Compiler) emitDropsFor(b *blockScope) {
	for i := len(b.declared) - 1; i >= 0; i-- {
		c.emit(bytecode.Instruction{Op: bytecode.OpDrop, Name: b.declared[i]})
	}
}

// unwindTo emits Drop for every declared name in blocks [depth, top],
// without popping the compiler's own tracking stack — used when a
// break/continue/return jumps out of nested blocks.
func (c *Compiler) unwindTo(depth int) {
	for i := len(c.blocks) - 1; i >= depth; i-- {
		c.emitDropsFor(c.blocks[i])
	}
}

func (c *Compiler) compileBlock(b *ast.BlockStmt) {
	c.pushBlock()
	c.compileStmtsHoisted(b.Stmts)
	scope := c.popBlock()
	c.emitDropsFor(scope)
}

// compileStmtsHoisted emits all function declarations in stmts before any
// other statement, matching the teacher's two-pass HoistingCompiler so a
// function can be called from code that lexically precedes its decl.
func (c *Compiler) compileStmtsHoisted(stmts []ast.Stmt) {
	for _, s := range stmts {
		if fd, ok := s.(*ast.FunctionDecl); ok {
			c.compileFunctionDecl(fd)
		}
	}
	for _, s := range stmts {
		if _, ok := s.(*ast.FunctionDecl); ok {
			continue
		}
		c.compileStmt(s)
	}
}
