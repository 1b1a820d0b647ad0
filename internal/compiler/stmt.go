package compiler

import (
	"nyx/internal/ast"
	"nyx/internal/bytecode"
)

func (c *Compiler) compileStmt(s ast.Stmt) {
	c.line = s.Span().Line
	switch st := s.(type) {
	case *ast.ExpressionStmt:
		c.compileExpr(st.Expr)
		c.emit(bytecode.Instruction{Op: bytecode.OpPop})
	case *ast.LetStmt:
		if st.Expr != nil {
			c.compileExpr(st.Expr)
		} else {
			c.emit(bytecode.Instruction{Op: bytecode.OpPush, ConstIndex: c.chunk.AddConstant(nil)})
		}
		c.declare(st.Name)
		c.emit(bytecode.Instruction{Op: bytecode.OpLet, Name: st.Name, Ownership: st.Ownership})
	case *ast.PrintStmt:
		c.compileExpr(st.Expr)
		c.emit(bytecode.Instruction{Op: bytecode.OpCall, Name: "log", A: 1})
		c.emit(bytecode.Instruction{Op: bytecode.OpPop})
	case *ast.BlockStmt:
		c.compileBlock(st)
	case *ast.FunctionDecl:
		c.compileFunctionDecl(st)
	case *ast.ClassDecl:
		c.compileExpr(st.Class)
		c.declare(st.Class.Name)
		c.emit(bytecode.Instruction{Op: bytecode.OpLet, Name: st.Class.Name})
	case *ast.ReturnStmt:
		c.compileReturnStmt(st)
	case *ast.ThrowStmt:
		c.compileExpr(st.Value)
		c.emit(bytecode.Instruction{Op: bytecode.OpThrow})
	case *ast.IfStmt:
		c.compileIfStmt(st)
	case *ast.WhileStmt:
		c.compileWhileStmt(st)
	case *ast.DoWhileStmt:
		c.compileDoWhileStmt(st)
	case *ast.ForStmt:
		c.compileForStmt(st)
	case *ast.ForInStmt:
		c.compileForInStmt(st)
	case *ast.BreakStmt:
		c.compileBreakStmt(st)
	case *ast.ContinueStmt:
		c.compileContinueStmt(st)
	case *ast.LabeledStmt:
		c.compileLabeledStmt(st)
	case *ast.TryStmt:
		c.compileTryStmt(st)
	case *ast.ImportStmt:
		c.compileImportStmt(st)
	case *ast.ExportStmt:
		c.compileExportStmt(st)
	default:
		c.fail("unsupported statement node")
	}
}

func (c *Compiler) compileReturnStmt(st *ast.ReturnStmt) {
	if st.Value != nil {
		c.compileExpr(st.Value)
	} else {
		c.emit(bytecode.Instruction{Op: bytecode.OpPush, ConstIndex: c.chunk.AddConstant(nil)})
	}
	base := 0
	if len(c.funcBlockBase) > 0 {
		base = c.funcBlockBase[len(c.funcBlockBase)-1]
	}
	c.unwindTo(base)
	c.emitReturnValue()
}

func (c *Compiler) compileIfStmt(st *ast.IfStmt) {
	c.compileExpr(st.Cond)
	jf := c.emit(bytecode.Instruction{Op: bytecode.OpJumpIfFalse})
	c.compileBlock(st.Then)
	if st.Else != nil {
		jend := c.emit(bytecode.Instruction{Op: bytecode.OpJump})
		c.chunk.Patch(jf, c.chunk.Len())
		c.compileStmt(st.Else)
		c.chunk.Patch(jend, c.chunk.Len())
	} else {
		c.chunk.Patch(jf, c.chunk.Len())
	}
}

func (c *Compiler) pushLoop(label string) *loopCtx {
	lc := &loopCtx{label: label, blockDepth: len(c.blocks)}
	c.loopStack = append(c.loopStack, lc)
	return lc
}

func (c *Compiler) popLoop() {
	lc := c.loopStack[len(c.loopStack)-1]
	c.loopStack = c.loopStack[:len(c.loopStack)-1]
	for _, j := range lc.breakJumps {
		c.chunk.Patch(j, c.chunk.Len())
	}
}

func (c *Compiler) compileWhileStmt(st *ast.WhileStmt) {
	lc := c.pushLoop(st.Label)
	condAddr := c.chunk.Len()
	lc.continueAt = condAddr
	c.compileExpr(st.Cond)
	jf := c.emit(bytecode.Instruction{Op: bytecode.OpJumpIfFalse})
	c.compileBlock(st.Body)
	c.emit(bytecode.Instruction{Op: bytecode.OpJump, A: condAddr})
	c.chunk.Patch(jf, c.chunk.Len())
	c.popLoop()
}

func (c *Compiler) compileDoWhileStmt(st *ast.DoWhileStmt) {
	lc := c.pushLoop(st.Label)
	bodyAddr := c.chunk.Len()
	c.compileBlock(st.Body)
	condAddr := c.chunk.Len()
	lc.continueAt = condAddr
	c.compileExpr(st.Cond)
	c.emit(bytecode.Instruction{Op: bytecode.OpJumpIfFalse, A: 0})
	jt := c.chunk.Len() - 1
	c.emit(bytecode.Instruction{Op: bytecode.OpJump, A: bodyAddr})
	c.chunk.Patch(jt, c.chunk.Len())
	c.popLoop()
}

func (c *Compiler) compileForStmt(st *ast.ForStmt) {
	c.pushBlock()
	if st.Init != nil {
		c.compileStmt(st.Init)
	}
	lc := c.pushLoop(st.Label)
	lc.blockDepth = len(c.blocks)
	condAddr := c.chunk.Len()
	var jf int
	hasCond := st.Cond != nil
	if hasCond {
		c.compileExpr(st.Cond)
		jf = c.emit(bytecode.Instruction{Op: bytecode.OpJumpIfFalse})
	}
	c.compileBlock(st.Body)
	updateAddr := c.chunk.Len()
	lc.continueAt = updateAddr
	if st.Update != nil {
		c.compileExpr(st.Update)
		c.emit(bytecode.Instruction{Op: bytecode.OpPop})
	}
	c.emit(bytecode.Instruction{Op: bytecode.OpJump, A: condAddr})
	if hasCond {
		c.chunk.Patch(jf, c.chunk.Len())
	}
	c.popLoop()
	scope := c.popBlock()
	c.emitDropsFor(scope)
}

// compileForInStmt lowers both `for (x in obj)` and `for (x of iterable)`
// to the same native-iterator protocol: __iterate__ builds an iterator
// object (key enumeration for `in`, value iteration for `of`), and each
// pass calls the iterator's hasNext and next methods.
func (c *Compiler) compileForInStmt(st *ast.ForInStmt) {
	c.compileExpr(st.Collection)
	mode := "in"
	if st.IsOf {
		mode = "of"
	}
	c.emit(bytecode.Instruction{Op: bytecode.OpPush, ConstIndex: c.chunk.AddConstant(mode)})
	c.emit(bytecode.Instruction{Op: bytecode.OpCall, Name: "__iterate__", A: 2})
	c.pushBlock()
	iterSlot := "__iter$" + st.Var
	c.declare(iterSlot)
	c.emit(bytecode.Instruction{Op: bytecode.OpLet, Name: iterSlot})

	c.pushBlock()
	lc := c.pushLoop(st.Label)
	condAddr := c.chunk.Len()
	lc.continueAt = condAddr
	c.emit(bytecode.Instruction{Op: bytecode.OpLoad, Name: iterSlot})
	c.emit(bytecode.Instruction{Op: bytecode.OpCallMethod, Name: "hasNext", A: 0})
	jf := c.emit(bytecode.Instruction{Op: bytecode.OpJumpIfFalse})

	c.emit(bytecode.Instruction{Op: bytecode.OpLoad, Name: iterSlot})
	c.emit(bytecode.Instruction{Op: bytecode.OpCallMethod, Name: "next", A: 0})
	c.declare(st.Var)
	c.emit(bytecode.Instruction{Op: bytecode.OpLet, Name: st.Var})

	c.compileBlock(st.Body)
	c.emit(bytecode.Instruction{Op: bytecode.OpJump, A: condAddr})
	c.chunk.Patch(jf, c.chunk.Len())
	c.popLoop()
	scope := c.popBlock()
	c.emitDropsFor(scope)

	b := c.popBlock()
	c.emitDropsFor(b)
}

func (c *Compiler) findLoop(label string) *loopCtx {
	if label == "" {
		if len(c.loopStack) == 0 {
			return nil
		}
		return c.loopStack[len(c.loopStack)-1]
	}
	for i := len(c.loopStack) - 1; i >= 0; i-- {
		if c.loopStack[i].label == label {
			return c.loopStack[i]
		}
	}
	return nil
}

func (c *Compiler) compileBreakStmt(st *ast.BreakStmt) {
	lc := c.findLoop(st.Label)
	if lc == nil {
		c.fail("break outside of a loop")
		return
	}
	c.unwindTo(lc.blockDepth)
	j := c.emit(bytecode.Instruction{Op: bytecode.OpJump})
	lc.breakJumps = append(lc.breakJumps, j)
}

func (c *Compiler) compileContinueStmt(st *ast.ContinueStmt) {
	lc := c.findLoop(st.Label)
	if lc == nil {
		c.fail("continue outside of a loop")
		return
	}
	c.unwindTo(lc.blockDepth)
	c.emit(bytecode.Instruction{Op: bytecode.OpJump, A: lc.continueAt})
}

// compileLabeledStmt threads the label through to the loop it decorates
// so compileBreakStmt/compileContinueStmt can resolve it; any other
// labeled statement just executes its body (break <label> out of a
// labeled block is not meaningful here and is rejected at the loop
// lookup).
func (c *Compiler) compileLabeledStmt(st *ast.LabeledStmt) {
	switch inner := st.Stmt.(type) {
	case *ast.WhileStmt:
		inner.Label = st.Label
		c.compileWhileStmt(inner)
	case *ast.DoWhileStmt:
		inner.Label = st.Label
		c.compileDoWhileStmt(inner)
	case *ast.ForStmt:
		inner.Label = st.Label
		c.compileForStmt(inner)
	case *ast.ForInStmt:
		inner.Label = st.Label
		c.compileForInStmt(inner)
	default:
		c.compileStmt(st.Stmt)
	}
}

// compileTryStmt emits SetupTry with a placeholder catch address,
// patched once the handler is compiled; its B operand stays 0 since
// finally code is never jumped to through SetupTry. A finally block is
// duplicated inline after the try body (normal fall-through path) and
// after the catch body, matching the common "finally always runs"
// semantics without routing break/continue/return through a shared
// trampoline; known simplification, see DESIGN.md.
func (c *Compiler) compileTryStmt(st *ast.TryStmt) {
	c.tryStack = append(c.tryStack, &tryCtx{blockDepth: len(c.blocks)})
	setup := c.emit(bytecode.Instruction{Op: bytecode.OpSetupTry})

	c.compileBlock(st.TryBlock)
	c.emit(bytecode.Instruction{Op: bytecode.OpPopTry})
	if st.FinallyBlock != nil {
		c.compileBlock(st.FinallyBlock)
	}
	jend := c.emit(bytecode.Instruction{Op: bytecode.OpJump})

	catchAddr := c.chunk.Len()
	if st.CatchBlock != nil {
		c.emit(bytecode.Instruction{Op: bytecode.OpEnterFinally, Flag: true})
		c.pushBlock()
		if st.CatchParam != "" {
			c.declare(st.CatchParam)
			c.emit(bytecode.Instruction{Op: bytecode.OpLet, Name: st.CatchParam})
		} else {
			c.emit(bytecode.Instruction{Op: bytecode.OpPop})
		}
		c.compileStmtsHoisted(st.CatchBlock.Stmts)
		scope := c.popBlock()
		c.emitDropsFor(scope)
		if st.FinallyBlock != nil {
			c.compileBlock(st.FinallyBlock)
		}
	} else if st.FinallyBlock != nil {
		c.emit(bytecode.Instruction{Op: bytecode.OpEnterFinally, Flag: true})
		c.compileBlock(st.FinallyBlock)
		c.emit(bytecode.Instruction{Op: bytecode.OpThrow})
	}

	c.chunk.Patch(jend, c.chunk.Len())
	c.chunk.Patch(setup, catchAddr)
	c.tryStack = c.tryStack[:len(c.tryStack)-1]
}

func (c *Compiler) compileImportStmt(st *ast.ImportStmt) {
	c.emit(bytecode.Instruction{Op: bytecode.OpImportAsync, Name: st.Path})
	if st.SideEffectOnly {
		c.emit(bytecode.Instruction{Op: bytecode.OpAwait})
		c.emit(bytecode.Instruction{Op: bytecode.OpPop})
		return
	}
	c.emit(bytecode.Instruction{Op: bytecode.OpAwait})
	for _, spec := range st.Specifiers {
		c.emit(bytecode.Instruction{Op: bytecode.OpDup})
		switch {
		case spec.IsNamespace:
			c.declare(spec.Local)
			c.emit(bytecode.Instruction{Op: bytecode.OpLet, Name: spec.Local})
		case spec.IsDefault:
			c.emit(bytecode.Instruction{Op: bytecode.OpGetExport, Name: "default", Flag: true})
			c.declare(spec.Local)
			c.emit(bytecode.Instruction{Op: bytecode.OpLet, Name: spec.Local})
		default:
			c.emit(bytecode.Instruction{Op: bytecode.OpGetExport, Name: spec.Imported})
			c.declare(spec.Local)
			c.emit(bytecode.Instruction{Op: bytecode.OpLet, Name: spec.Local})
		}
	}
	c.emit(bytecode.Instruction{Op: bytecode.OpPop})
}

func (c *Compiler) compileExportStmt(st *ast.ExportStmt) {
	switch {
	case st.IsDefault:
		c.compileExpr(st.DefaultExpr)
		c.emit(bytecode.Instruction{Op: bytecode.OpLet, Name: "__export_default__"})
	case st.IsStarExport:
		c.emit(bytecode.Instruction{Op: bytecode.OpImportAsync, Name: st.FromPath})
		c.emit(bytecode.Instruction{Op: bytecode.OpAwait})
		c.emit(bytecode.Instruction{Op: bytecode.OpCall, Name: "__reexportAll__", A: 1})
		c.emit(bytecode.Instruction{Op: bytecode.OpPop})
	case st.Decl != nil:
		c.compileStmt(st.Decl)
		name := exportedDeclName(st.Decl)
		if name != "" {
			c.emit(bytecode.Instruction{Op: bytecode.OpLoad, Name: name})
			c.emit(bytecode.Instruction{Op: bytecode.OpLet, Name: "__export_" + name + "__"})
		}
	default:
		if st.FromPath != "" {
			c.emit(bytecode.Instruction{Op: bytecode.OpImportAsync, Name: st.FromPath})
			c.emit(bytecode.Instruction{Op: bytecode.OpAwait})
		}
		for _, spec := range st.Specifiers {
			if st.FromPath != "" {
				c.emit(bytecode.Instruction{Op: bytecode.OpDup})
				c.emit(bytecode.Instruction{Op: bytecode.OpGetExport, Name: spec.Local})
			} else {
				c.emit(bytecode.Instruction{Op: bytecode.OpLoad, Name: spec.Local})
			}
			c.emit(bytecode.Instruction{Op: bytecode.OpLet, Name: "__export_" + spec.Exported + "__"})
		}
		if st.FromPath != "" {
			c.emit(bytecode.Instruction{Op: bytecode.OpPop})
		}
	}
}

func exportedDeclName(s ast.Stmt) string {
	switch d := s.(type) {
	case *ast.FunctionDecl:
		return d.Fn.Name
	case *ast.ClassDecl:
		return d.Class.Name
	case *ast.LetStmt:
		return d.Name
	}
	return ""
}
