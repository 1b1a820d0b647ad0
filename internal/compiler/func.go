package compiler

import (
	"nyx/internal/ast"
	"nyx/internal/bytecode"
)

// compileFunctionDecl binds a named function declaration into the
// enclosing scope as `let name = <closure>`.
func (c *Compiler) compileFunctionDecl(fd *ast.FunctionDecl) {
	c.compileFunctionLit(fd.Fn)
	c.declare(fd.Fn.Name)
	c.emit(bytecode.Instruction{Op: bytecode.OpLet, Name: fd.Fn.Name})
}

// compileFunctionLit emits: build-captured-env, jump-over-body,
// <body>, then MakeClosure(bodyAddr) at the original site, leaving one
// Closure value on the stack (spec §4.3's closure-capture rule).
func (c *Compiler) compileFunctionLit(fn *ast.FunctionLit) {
	captured := freeVariables(fn)

	c.emit(bytecode.Instruction{Op: bytecode.OpNewObject})
	for _, name := range captured {
		c.emit(bytecode.Instruction{Op: bytecode.OpDup})
		c.emit(bytecode.Instruction{Op: bytecode.OpLoad, Name: name})
		c.emit(bytecode.Instruction{Op: bytecode.OpSetProp, Name: name})
	}

	skipJump := c.emit(bytecode.Instruction{Op: bytecode.OpJump})
	bodyAddr := c.chunk.Len()

	c.scopeNames = append(c.scopeNames, make(map[string]bool))
	wasAsync := fn.IsAsync
	if wasAsync {
		c.asyncDepth++
	}
	c.pushBlock()
	c.funcBlockBase = append(c.funcBlockBase, len(c.blocks)-1)

	for i := len(fn.Params) - 1; i >= 0; i-- {
		c.declare(fn.Params[i].Name)
		c.emit(bytecode.Instruction{Op: bytecode.OpLet, Name: fn.Params[i].Name, Ownership: fn.Params[i].Ownership})
	}
	for _, name := range captured {
		c.declare(name)
	}

	if fn.ExprBody != nil {
		c.compileExpr(fn.ExprBody)
		c.emitReturnValue()
	} else {
		c.compileStmtsHoisted(fn.Body)
		c.emit(bytecode.Instruction{Op: bytecode.OpPush, ConstIndex: c.chunk.AddConstant(nil)})
		c.emitReturnValue()
	}

	c.funcBlockBase = c.funcBlockBase[:len(c.funcBlockBase)-1]
	scope := c.popBlock()
	c.emitDropsFor(scope)
	if wasAsync {
		c.asyncDepth--
	}
	c.scopeNames = c.scopeNames[:len(c.scopeNames)-1]

	c.chunk.Patch(skipJump, c.chunk.Len())

	if fn.Name != "" {
		c.chunk.Functions = append(c.chunk.Functions, bytecode.FunctionInfo{
			Name: fn.Name, EntryAddr: bodyAddr, Arity: len(fn.Params), IsAsync: fn.IsAsync,
		})
	}
	c.emit(bytecode.Instruction{Op: bytecode.OpMakeClosure, A: bodyAddr, B: len(fn.Params), Name: fn.Name, Flag: fn.IsAsync})
}

// emitReturnValue assumes the return value is already on top of the
// stack and emits Return, wrapping it in a resolved promise first when
// compiling inside an async function (spec §4.3's async-context rule).
func (c *Compiler) emitReturnValue() {
	if c.asyncDepth > 0 {
		c.emit(bytecode.Instruction{Op: bytecode.OpCall, Name: "Promise.resolve", A: 1})
	}
	c.emit(bytecode.Instruction{Op: bytecode.OpReturn})
}
