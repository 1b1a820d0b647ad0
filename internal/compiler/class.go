package compiler

import (
	"nyx/internal/ast"
	"nyx/internal/bytecode"
)

// compileClassLit builds a class as a plain descriptor object —
// {name, __ctor__, methods, staticMethods, getters, setters, fields,
// staticFields} — then hands it, after the superclass (null when there
// is none), to the "__defineClass__" native, which wires up the
// prototype chain and evaluates field initializers against `this` at
// construction time. Method decorators are applied via ApplyDecorator
// to each method closure before it is stored, and class decorators to
// the finished class; field decorators are not applied.
func (c *Compiler) compileClassLit(cls *ast.ClassLit) {
	if cls.Superclass != nil {
		c.compileExpr(cls.Superclass)
	} else {
		c.emit(bytecode.Instruction{Op: bytecode.OpPush, ConstIndex: c.chunk.AddConstant(nil)})
	}

	c.emit(bytecode.Instruction{Op: bytecode.OpNewObject})
	c.emit(bytecode.Instruction{Op: bytecode.OpDup})
	c.emit(bytecode.Instruction{Op: bytecode.OpPush, ConstIndex: c.chunk.AddConstant(cls.Name)})
	c.emit(bytecode.Instruction{Op: bytecode.OpSetProp, Name: "name"})

	c.emit(bytecode.Instruction{Op: bytecode.OpDup})
	c.compileConstructor(cls)
	c.emit(bytecode.Instruction{Op: bytecode.OpSetProp, Name: "__ctor__"})

	c.emit(bytecode.Instruction{Op: bytecode.OpDup})
	c.buildMethodsObject(cls, false, "method")
	c.emit(bytecode.Instruction{Op: bytecode.OpSetProp, Name: "methods"})

	c.emit(bytecode.Instruction{Op: bytecode.OpDup})
	c.buildMethodsObject(cls, true, "method")
	c.emit(bytecode.Instruction{Op: bytecode.OpSetProp, Name: "staticMethods"})

	c.emit(bytecode.Instruction{Op: bytecode.OpDup})
	c.buildMethodsObject(cls, false, "get")
	c.emit(bytecode.Instruction{Op: bytecode.OpSetProp, Name: "getters"})

	c.emit(bytecode.Instruction{Op: bytecode.OpDup})
	c.buildMethodsObject(cls, false, "set")
	c.emit(bytecode.Instruction{Op: bytecode.OpSetProp, Name: "setters"})

	c.emit(bytecode.Instruction{Op: bytecode.OpDup})
	c.buildFieldsArray(cls, false)
	c.emit(bytecode.Instruction{Op: bytecode.OpSetProp, Name: "fields"})

	c.emit(bytecode.Instruction{Op: bytecode.OpDup})
	c.buildFieldsArray(cls, true)
	c.emit(bytecode.Instruction{Op: bytecode.OpSetProp, Name: "staticFields"})

	c.emit(bytecode.Instruction{Op: bytecode.OpCall, Name: "__defineClass__", A: 2})

	for _, d := range cls.Decorators {
		c.compileExpr(d.Callee)
		for _, a := range d.Args {
			c.compileExpr(a)
		}
		c.emit(bytecode.Instruction{Op: bytecode.OpApplyDecorator, A: len(d.Args)})
	}
}

// compileConstructor compiles the explicit `constructor` method if one
// is declared, else a default constructor: one whose body is a bare
// `super()` call when the class extends another, or an empty no-arg
// body otherwise. The default constructor declares no parameters, so
// arguments given to `new` are not passed on to the superclass.
func (c *Compiler) compileConstructor(cls *ast.ClassLit) {
	for _, m := range cls.Methods {
		if m.Kind == "constructor" {
			c.compileFunctionLit(m.Fn)
			return
		}
	}
	fn := &ast.FunctionLit{}
	if cls.Superclass != nil {
		fn.Body = []ast.Stmt{
			&ast.ExpressionStmt{Expr: &ast.SuperCallExpr{}},
		}
	}
	c.compileFunctionLit(fn)
}

// buildMethodsObject assembles {name: closure, ...} for every
// non-constructor method matching kind and static-ness, leaving the
// object on top of the stack.
func (c *Compiler) buildMethodsObject(cls *ast.ClassLit, static bool, kind string) {
	c.emit(bytecode.Instruction{Op: bytecode.OpNewObject})
	for _, m := range cls.Methods {
		if m.Kind == "constructor" || m.Static != static || m.Kind != kind {
			continue
		}
		c.emit(bytecode.Instruction{Op: bytecode.OpDup})
		c.compileFunctionLit(m.Fn)
		for _, d := range m.Decorators {
			c.compileExpr(d.Callee)
			for _, a := range d.Args {
				c.compileExpr(a)
			}
			c.emit(bytecode.Instruction{Op: bytecode.OpApplyDecorator, A: len(d.Args)})
		}
		c.emit(bytecode.Instruction{Op: bytecode.OpSetProp, Name: m.Name})
	}
}

// buildFieldsArray assembles [[name, initThunk], ...] for every field
// matching static-ness; fields with no initializer get a thunk
// returning undefined. Thunks are zero-arg closures evaluated against
// the new instance's `this` at construction time, so a field
// initializer can reference other already-initialized fields.
func (c *Compiler) buildFieldsArray(cls *ast.ClassLit, static bool) {
	n := 0
	for _, f := range cls.Fields {
		if f.Static != static {
			continue
		}
		c.emit(bytecode.Instruction{Op: bytecode.OpPush, ConstIndex: c.chunk.AddConstant(f.Name)})
		thunk := &ast.FunctionLit{ExprBody: f.Init}
		if f.Init == nil {
			thunk.ExprBody = &ast.NullLit{}
		}
		c.compileFunctionLit(thunk)
		c.emit(bytecode.Instruction{Op: bytecode.OpNewArray, A: 2})
		n++
	}
	c.emit(bytecode.Instruction{Op: bytecode.OpNewArray, A: n})
}
