package compiler

import (
	"nyx/internal/ast"
	"nyx/internal/bytecode"
)

func (c *Compiler) compileExpr(e ast.Expr) {
	c.line = e.Span().Line
	switch ex := e.(type) {
	case *ast.NumberLit:
		c.emit(bytecode.Instruction{Op: bytecode.OpPush, ConstIndex: c.chunk.AddConstant(ex.Value)})
	case *ast.StringLit:
		c.emit(bytecode.Instruction{Op: bytecode.OpPush, ConstIndex: c.chunk.AddConstant(ex.Value)})
	case *ast.BoolLit:
		c.emit(bytecode.Instruction{Op: bytecode.OpPush, ConstIndex: c.chunk.AddConstant(ex.Value)})
	case *ast.NullLit:
		c.emit(bytecode.Instruction{Op: bytecode.OpPush, ConstIndex: c.chunk.AddConstant(nil)})
	case *ast.UndefinedLit:
		c.emit(bytecode.Instruction{Op: bytecode.OpPush, ConstIndex: c.chunk.AddConstant(nil)})
	case *ast.TemplateLit:
		c.compileTemplateLit(ex)
	case *ast.Ident:
		c.emit(bytecode.Instruction{Op: bytecode.OpLoad, Name: ex.Name})
	case *ast.PrivateIdent:
		c.emit(bytecode.Instruction{Op: bytecode.OpLoad, Name: ex.Name})
	case *ast.This:
		c.emit(bytecode.Instruction{Op: bytecode.OpLoadThis})
	case *ast.ArrayLit:
		c.compileArrayLit(ex)
	case *ast.ObjectLit:
		c.compileObjectLit(ex)
	case *ast.UnaryExpr:
		c.compileExpr(ex.Operand)
		c.emitUnary(ex.Operator)
	case *ast.BinaryExpr:
		c.compileExpr(ex.Left)
		c.compileExpr(ex.Right)
		c.emitBinary(ex.Operator)
	case *ast.LogicalExpr:
		c.compileLogical(ex)
	case *ast.TernaryExpr:
		c.compileTernary(ex)
	case *ast.AssignExpr:
		c.compileAssign(ex)
	case *ast.MemberExpr:
		c.compileExpr(ex.Object)
		c.emit(bytecode.Instruction{Op: bytecode.OpGetProp, Name: ex.Property})
	case *ast.PrivateMemberExpr:
		c.compileExpr(ex.Object)
		c.emit(bytecode.Instruction{Op: bytecode.OpGetProp, Name: ex.Property})
	case *ast.IndexExpr:
		c.compileExpr(ex.Object)
		c.compileExpr(ex.Index)
		c.emit(bytecode.Instruction{Op: bytecode.OpLoadElement})
	case *ast.CallExpr:
		c.compileCall(ex)
	case *ast.NewExpr:
		for _, a := range ex.Args {
			c.compileExpr(a)
		}
		c.compileExpr(ex.Callee)
		c.emit(bytecode.Instruction{Op: bytecode.OpConstruct, A: len(ex.Args)})
	case *ast.SuperCallExpr:
		for _, a := range ex.Args {
			c.compileExpr(a)
		}
		c.emit(bytecode.Instruction{Op: bytecode.OpLoadSuper})
		c.emit(bytecode.Instruction{Op: bytecode.OpCallSuper, A: len(ex.Args)})
	case *ast.SuperMemberExpr:
		c.emit(bytecode.Instruction{Op: bytecode.OpGetSuperProp, Name: ex.Property})
	case *ast.FunctionLit:
		c.compileFunctionLit(ex)
	case *ast.ClassLit:
		c.compileClassLit(ex)
	case *ast.AwaitExpr:
		c.compileExpr(ex.Operand)
		c.emit(bytecode.Instruction{Op: bytecode.OpAwait})
	default:
		c.fail("unsupported expression node")
	}
}

// compileTemplateLit lowers quasis/exprs into a left-to-right chain of
// Add instructions; the VM's Add performs string concatenation when
// either operand is a string, so no separate Concat opcode is needed.
func (c *Compiler) compileTemplateLit(t *ast.TemplateLit) {
	c.emit(bytecode.Instruction{Op: bytecode.OpPush, ConstIndex: c.chunk.AddConstant(t.Quasis[0])})
	for i, ex := range t.Exprs {
		c.compileExpr(ex)
		c.emit(bytecode.Instruction{Op: bytecode.OpCall, Name: "String", A: 1})
		c.emit(bytecode.Instruction{Op: bytecode.OpAdd})
		quasi := t.Quasis[i+1]
		if quasi != "" {
			c.emit(bytecode.Instruction{Op: bytecode.OpPush, ConstIndex: c.chunk.AddConstant(quasi)})
			c.emit(bytecode.Instruction{Op: bytecode.OpAdd})
		}
	}
}

// compileArrayLit pushes exactly one stack value per source element;
// a spread element (`...xs`) is wrapped with the "__spread__" native so
// NewArray can recognize and flatten it while popping its len(Elements)
// operands, keeping the popped-value count equal to the element count
// regardless of how many spreads expand into.
func (c *Compiler) compileArrayLit(a *ast.ArrayLit) {
	for i, el := range a.Elements {
		c.compileExpr(el)
		if i < len(a.Spreads) && a.Spreads[i] {
			c.emit(bytecode.Instruction{Op: bytecode.OpCall, Name: "__spread__", A: 1})
		}
	}
	c.emit(bytecode.Instruction{Op: bytecode.OpNewArray, A: len(a.Elements)})
}

// compileObjectLit keeps exactly one object value on the stack across
// the whole literal: every branch Dups it, consumes the dup via
// SetProp/StoreElement (both pop-only, no push-back), and leaves the
// original sitting on top for the next property. Spread merges via the
// "__mergeSpread__" native method, which returns its receiver so the
// same invariant holds.
func (c *Compiler) compileObjectLit(o *ast.ObjectLit) {
	c.emit(bytecode.Instruction{Op: bytecode.OpNewObject})
	for _, p := range o.Props {
		if p.Spread {
			c.compileExpr(p.Value)
			c.emit(bytecode.Instruction{Op: bytecode.OpCallMethod, Name: "__mergeSpread__", A: 1})
			continue
		}
		c.emit(bytecode.Instruction{Op: bytecode.OpDup})
		if p.Computed {
			c.compileExpr(p.Key)
			c.compileExpr(p.Value)
			c.emit(bytecode.Instruction{Op: bytecode.OpStoreElement})
		} else {
			c.compileExpr(p.Value)
			c.emit(bytecode.Instruction{Op: bytecode.OpSetProp, Name: propKeyName(p.Key)})
		}
	}
}

func propKeyName(e ast.Expr) string {
	switch k := e.(type) {
	case *ast.Ident:
		return k.Name
	case *ast.StringLit:
		return k.Value
	default:
		return ""
	}
}

func (c *Compiler) emitUnary(op string) {
	switch op {
	case "-":
		c.emit(bytecode.Instruction{Op: bytecode.OpNeg})
	case "!":
		c.emit(bytecode.Instruction{Op: bytecode.OpNot})
	case "typeof":
		c.emit(bytecode.Instruction{Op: bytecode.OpCall, Name: "typeof", A: 1})
	}
}

func (c *Compiler) emitBinary(op string) {
	switch op {
	case "+":
		c.emit(bytecode.Instruction{Op: bytecode.OpAdd})
	case "-":
		c.emit(bytecode.Instruction{Op: bytecode.OpSub})
	case "*":
		c.emit(bytecode.Instruction{Op: bytecode.OpMul})
	case "/":
		c.emit(bytecode.Instruction{Op: bytecode.OpDiv})
	case "%":
		c.emit(bytecode.Instruction{Op: bytecode.OpMod})
	case "**":
		c.emit(bytecode.Instruction{Op: bytecode.OpCall, Name: "pow", A: 2})
	case "==":
		c.emit(bytecode.Instruction{Op: bytecode.OpEq})
	case "!=":
		c.emit(bytecode.Instruction{Op: bytecode.OpNotEq})
	case "<":
		c.emit(bytecode.Instruction{Op: bytecode.OpLt})
	case "<=":
		c.emit(bytecode.Instruction{Op: bytecode.OpLtEq})
	case ">":
		c.emit(bytecode.Instruction{Op: bytecode.OpGt})
	case ">=":
		c.emit(bytecode.Instruction{Op: bytecode.OpGtEq})
	case "instanceof":
		c.emit(bytecode.Instruction{Op: bytecode.OpCall, Name: "instanceof", A: 2})
	}
}

func (c *Compiler) compileLogical(l *ast.LogicalExpr) {
	c.compileExpr(l.Left)
	switch l.Operator {
	case "&&":
		c.emit(bytecode.Instruction{Op: bytecode.OpDup})
		jf := c.emit(bytecode.Instruction{Op: bytecode.OpJumpIfFalse})
		c.emit(bytecode.Instruction{Op: bytecode.OpPop})
		c.compileExpr(l.Right)
		c.chunk.Patch(jf, c.chunk.Len())
	case "||":
		c.emit(bytecode.Instruction{Op: bytecode.OpDup})
		c.emit(bytecode.Instruction{Op: bytecode.OpNot})
		jf := c.emit(bytecode.Instruction{Op: bytecode.OpJumpIfFalse})
		c.emit(bytecode.Instruction{Op: bytecode.OpPop})
		c.compileExpr(l.Right)
		c.chunk.Patch(jf, c.chunk.Len())
	case "??":
		c.emit(bytecode.Instruction{Op: bytecode.OpDup})
		c.emit(bytecode.Instruction{Op: bytecode.OpCall, Name: "isNullish", A: 1})
		jf := c.emit(bytecode.Instruction{Op: bytecode.OpJumpIfFalse})
		c.emit(bytecode.Instruction{Op: bytecode.OpPop})
		c.compileExpr(l.Right)
		c.chunk.Patch(jf, c.chunk.Len())
	}
}

func (c *Compiler) compileTernary(t *ast.TernaryExpr) {
	c.compileExpr(t.Cond)
	jf := c.emit(bytecode.Instruction{Op: bytecode.OpJumpIfFalse})
	c.compileExpr(t.Then)
	jend := c.emit(bytecode.Instruction{Op: bytecode.OpJump})
	c.chunk.Patch(jf, c.chunk.Len())
	c.compileExpr(t.Else)
	c.chunk.Patch(jend, c.chunk.Len())
}

// emitAssignValue pushes the value side of an assignment, desugaring
// `x += e` to `x = x + e`.
func (c *Compiler) emitAssignValue(a *ast.AssignExpr) {
	if a.Operator != "=" {
		binOp := a.Operator[:len(a.Operator)-1]
		c.compileExpr(a.Target)
		c.compileExpr(a.Value)
		c.emitBinary(binOp)
	} else {
		c.compileExpr(a.Value)
	}
}

// compileAssign emits object/index operands before the value so SetProp
// and StoreElement see a consistent (object[, index], value) stack order
// with value on top; the target is then re-read so the assignment
// expression still yields the stored value.
func (c *Compiler) compileAssign(a *ast.AssignExpr) {
	switch target := a.Target.(type) {
	case *ast.Ident:
		c.emitAssignValue(a)
		c.emit(bytecode.Instruction{Op: bytecode.OpStore, Name: target.Name})
		c.emit(bytecode.Instruction{Op: bytecode.OpLoad, Name: target.Name})
	case *ast.PrivateMemberExpr:
		c.compileExpr(target.Object)
		c.emitAssignValue(a)
		c.emit(bytecode.Instruction{Op: bytecode.OpSetProp, Name: target.Property})
		c.compileExpr(target.Object)
		c.emit(bytecode.Instruction{Op: bytecode.OpGetProp, Name: target.Property})
	case *ast.MemberExpr:
		c.compileExpr(target.Object)
		c.emitAssignValue(a)
		c.emit(bytecode.Instruction{Op: bytecode.OpSetProp, Name: target.Property})
		c.compileExpr(target.Object)
		c.emit(bytecode.Instruction{Op: bytecode.OpGetProp, Name: target.Property})
	case *ast.IndexExpr:
		c.compileExpr(target.Object)
		c.compileExpr(target.Index)
		c.emitAssignValue(a)
		c.emit(bytecode.Instruction{Op: bytecode.OpStoreElement})
		c.compileExpr(target.Object)
		c.compileExpr(target.Index)
		c.emit(bytecode.Instruction{Op: bytecode.OpLoadElement})
	default:
		c.fail("invalid assignment target")
	}
}

func (c *Compiler) compileCall(call *ast.CallExpr) {
	if method, ok := call.Callee.(*ast.MemberExpr); ok {
		c.compileExpr(method.Object)
		for _, a := range call.Args {
			c.compileExpr(a)
		}
		c.emit(bytecode.Instruction{Op: bytecode.OpCallMethod, A: len(call.Args), Name: method.Property})
		return
	}
	for _, a := range call.Args {
		c.compileExpr(a)
	}
	c.compileExpr(call.Callee)
	c.emit(bytecode.Instruction{Op: bytecode.OpCall, A: len(call.Args)})
}
