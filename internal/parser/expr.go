package parser

import (
	"strconv"
	"strings"

	"nyx/internal/ast"
	"nyx/internal/lexer"
)

func (p *Parser) expression() ast.Expr {
	return p.assignment()
}

func (p *Parser) assignment() ast.Expr {
	left := p.ternary()
	if p.check(lexer.TokenEqual) {
		op := p.advance().Lexeme
		value := p.assignment()
		switch left.(type) {
		case *ast.Ident, *ast.MemberExpr, *ast.IndexExpr, *ast.PrivateMemberExpr:
			return &ast.AssignExpr{Base: spanOf(left), Target: left, Operator: op, Value: value}
		}
		p.fail("invalid assignment target")
		return left
	}
	return left
}

func (p *Parser) ternary() ast.Expr {
	cond := p.nullish()
	if p.match(lexer.TokenQuestion) {
		then := p.assignment()
		p.consume(lexer.TokenColon, "expect ':' in ternary expression")
		els := p.assignment()
		return &ast.TernaryExpr{Base: spanOf(cond), Cond: cond, Then: then, Else: els}
	}
	return cond
}

func (p *Parser) nullish() ast.Expr {
	left := p.logicalOr()
	for p.check(lexer.TokenQQ) {
		op := p.advance().Lexeme
		right := p.logicalOr()
		left = &ast.LogicalExpr{Base: spanOf(left), Left: left, Operator: op, Right: right}
	}
	return left
}

func (p *Parser) logicalOr() ast.Expr {
	left := p.logicalAnd()
	for p.check(lexer.TokenOr) {
		op := p.advance().Lexeme
		right := p.logicalAnd()
		left = &ast.LogicalExpr{Base: spanOf(left), Left: left, Operator: op, Right: right}
	}
	return left
}

func (p *Parser) logicalAnd() ast.Expr {
	left := p.equality()
	for p.check(lexer.TokenAnd) {
		op := p.advance().Lexeme
		right := p.equality()
		left = &ast.LogicalExpr{Base: spanOf(left), Left: left, Operator: op, Right: right}
	}
	return left
}

func (p *Parser) equality() ast.Expr {
	left := p.relational()
	for p.check(lexer.TokenDoubleEqual) || p.check(lexer.TokenNotEqual) {
		op := p.advance().Lexeme
		right := p.relational()
		left = &ast.BinaryExpr{Base: spanOf(left), Left: left, Operator: op, Right: right}
	}
	return left
}

func (p *Parser) relational() ast.Expr {
	left := p.additive()
	for p.check(lexer.TokenLT) || p.check(lexer.TokenGT) || p.check(lexer.TokenLE) ||
		p.check(lexer.TokenGE) || p.check(lexer.TokenInstance) {
		op := p.advance().Lexeme
		right := p.additive()
		left = &ast.BinaryExpr{Base: spanOf(left), Left: left, Operator: op, Right: right}
	}
	return left
}

func (p *Parser) additive() ast.Expr {
	left := p.multiplicative()
	for p.check(lexer.TokenPlus) || p.check(lexer.TokenMinus) {
		op := p.advance().Lexeme
		right := p.multiplicative()
		left = &ast.BinaryExpr{Base: spanOf(left), Left: left, Operator: op, Right: right}
	}
	return left
}

func (p *Parser) multiplicative() ast.Expr {
	left := p.exponent()
	for p.check(lexer.TokenStar) || p.check(lexer.TokenSlash) || p.check(lexer.TokenPercent) {
		op := p.advance().Lexeme
		right := p.exponent()
		left = &ast.BinaryExpr{Base: spanOf(left), Left: left, Operator: op, Right: right}
	}
	return left
}

func (p *Parser) exponent() ast.Expr {
	left := p.unary()
	if p.check(lexer.TokenStarStar) {
		op := p.advance().Lexeme
		right := p.exponent() // right-associative
		return &ast.BinaryExpr{Base: spanOf(left), Left: left, Operator: op, Right: right}
	}
	return left
}

func (p *Parser) unary() ast.Expr {
	if p.check(lexer.TokenNot) || p.check(lexer.TokenMinus) || p.check(lexer.TokenTypeof) {
		tok := p.advance()
		operand := p.unary()
		return &ast.UnaryExpr{Base: ast.Base{Sp: tok.Span}, Operator: tok.Lexeme, Operand: operand}
	}
	if p.check(lexer.TokenAwait) {
		tok := p.advance()
		operand := p.unary()
		return &ast.AwaitExpr{Base: ast.Base{Sp: tok.Span}, Operand: operand}
	}
	return p.postfix()
}

func (p *Parser) postfix() ast.Expr {
	expr := p.primary()
	for {
		switch {
		case p.check(lexer.TokenDot):
			p.advance()
			if p.check(lexer.TokenPrivate) {
				name := p.advance().Lexeme
				expr = &ast.PrivateMemberExpr{Base: spanOf(expr), Object: expr, Property: name}
			} else {
				name := p.consume(lexer.TokenIdent, "expect property name after '.'").Lexeme
				expr = &ast.MemberExpr{Base: spanOf(expr), Object: expr, Property: name}
			}
		case p.check(lexer.TokenQDot):
			p.advance()
			name := p.consume(lexer.TokenIdent, "expect property name after '?.'").Lexeme
			expr = &ast.MemberExpr{Base: spanOf(expr), Object: expr, Property: name, Optional: true}
		case p.check(lexer.TokenLBracket):
			p.advance()
			idx := p.expression()
			p.consume(lexer.TokenRBracket, "expect ']' after index expression")
			expr = &ast.IndexExpr{Base: spanOf(expr), Object: expr, Index: idx}
		case p.check(lexer.TokenLParen):
			expr = p.finishCall(expr)
		default:
			return expr
		}
	}
}

func (p *Parser) finishCall(callee ast.Expr) ast.Expr {
	p.consume(lexer.TokenLParen, "expect '('")
	var args []ast.Expr
	var spreads []bool
	for !p.check(lexer.TokenRParen) && !p.isAtEnd() {
		spread := p.match(lexer.TokenDotDotDot)
		args = append(args, p.assignment())
		spreads = append(spreads, spread)
		if !p.match(lexer.TokenComma) {
			break
		}
	}
	p.consume(lexer.TokenRParen, "expect ')' after arguments")
	return &ast.CallExpr{Base: spanOf(callee), Callee: callee, Args: args, Spreads: spreads}
}

func (p *Parser) primary() ast.Expr {
	tok := p.peek()
	switch {
	case p.match(lexer.TokenNumber):
		return &ast.NumberLit{Base: ast.Base{Sp: tok.Span}, Value: parseNumber(tok.Lexeme)}
	case p.match(lexer.TokenString):
		return &ast.StringLit{Base: ast.Base{Sp: tok.Span}, Value: tok.Lexeme}
	case p.match(lexer.TokenTrue):
		return &ast.BoolLit{Base: ast.Base{Sp: tok.Span}, Value: true}
	case p.match(lexer.TokenFalse):
		return &ast.BoolLit{Base: ast.Base{Sp: tok.Span}, Value: false}
	case p.match(lexer.TokenNull):
		return &ast.NullLit{Base: ast.Base{Sp: tok.Span}}
	case p.match(lexer.TokenUndefined):
		return &ast.UndefinedLit{Base: ast.Base{Sp: tok.Span}}
	case p.match(lexer.TokenThis):
		return &ast.This{Base: ast.Base{Sp: tok.Span}}
	case p.check(lexer.TokenTplStart):
		return p.templateLiteral()
	case p.check(lexer.TokenSuper):
		return p.superExpr()
	case p.check(lexer.TokenNew):
		return p.newExpr()
	case p.check(lexer.TokenLParen):
		return p.parenOrArrow()
	case p.check(lexer.TokenLBracket):
		return p.arrayLiteral()
	case p.check(lexer.TokenLBrace):
		return p.objectLiteral()
	case p.check(lexer.TokenFn):
		return p.functionLiteral(false)
	case p.check(lexer.TokenAsync):
		return p.asyncExprOrArrow()
	case p.check(lexer.TokenClass):
		return p.classLiteral()
	case p.check(lexer.TokenIdent):
		if p.peekAt(1).Type == lexer.TokenArrow {
			return p.singleIdentArrow()
		}
		p.advance()
		return &ast.Ident{Base: ast.Base{Sp: tok.Span}, Name: tok.Lexeme}
	case p.check(lexer.TokenPrivate):
		p.advance()
		return &ast.PrivateIdent{Base: ast.Base{Sp: tok.Span}, Name: tok.Lexeme}
	}
	p.fail("expect expression")
	p.advance()
	return &ast.NullLit{Base: ast.Base{Sp: tok.Span}}
}

func (p *Parser) singleIdentArrow() ast.Expr {
	tok := p.advance()
	p.consume(lexer.TokenArrow, "expect '=>'")
	params := []ast.Param{{Name: tok.Lexeme}}
	return p.arrowBody(ast.Base{Sp: tok.Span}, params, false)
}

func (p *Parser) parenOrArrow() ast.Expr {
	start := p.peek()
	save := p.current
	if params, ok := p.tryParseArrowParams(); ok {
		return p.arrowBody(ast.Base{Sp: start.Span}, params, false)
	}
	p.current = save
	p.consume(lexer.TokenLParen, "expect '('")
	e := p.expression()
	p.consume(lexer.TokenRParen, "expect ')'")
	return e
}

// tryParseArrowParams speculatively parses "(params) =>"; restores position on failure.
func (p *Parser) tryParseArrowParams() ([]ast.Param, bool) {
	if !p.check(lexer.TokenLParen) {
		return nil, false
	}
	save := p.current
	savedErrs := len(p.Errors)
	p.advance()
	var params []ast.Param
	for !p.check(lexer.TokenRParen) && !p.isAtEnd() {
		if !p.check(lexer.TokenIdent) {
			p.current = save
			p.Errors = p.Errors[:savedErrs]
			return nil, false
		}
		param := ast.Param{Name: p.advance().Lexeme}
		if p.match(lexer.TokenColon) {
			param.Ownership, param.Type = p.parseTypeAnnotation()
		}
		params = append(params, param)
		if !p.match(lexer.TokenComma) {
			break
		}
	}
	if !p.check(lexer.TokenRParen) {
		p.current = save
		p.Errors = p.Errors[:savedErrs]
		return nil, false
	}
	p.advance()
	if !p.check(lexer.TokenArrow) {
		p.current = save
		p.Errors = p.Errors[:savedErrs]
		return nil, false
	}
	p.advance()
	return params, true
}

// parseTypeAnnotation parses an optional ownership sigil (& / &mut) followed
// by a type name, e.g. `x: &mut Point`.
func (p *Parser) parseTypeAnnotation() (ownership, typ string) {
	if p.match(lexer.TokenAmpMut) {
		ownership = "borrowmut"
	} else if p.match(lexer.TokenAmp) {
		ownership = "borrow"
	} else {
		ownership = "own"
	}
	if p.check(lexer.TokenIdent) {
		typ = p.advance().Lexeme
	}
	return
}

func (p *Parser) arrowBody(sp ast.Base, params []ast.Param, isAsync bool) ast.Expr {
	fn := &ast.FunctionLit{Base: sp, Params: params, IsArrow: true, IsAsync: isAsync}
	if p.check(lexer.TokenLBrace) {
		fn.Body = p.blockStmt().Stmts
	} else {
		fn.ExprBody = p.assignment()
	}
	return fn
}

func (p *Parser) asyncExprOrArrow() ast.Expr {
	tok := p.advance() // 'async'
	if p.check(lexer.TokenFn) {
		fn := p.functionLiteral(true)
		return fn
	}
	if params, ok := p.tryParseArrowParams(); ok {
		return p.arrowBody(ast.Base{Sp: tok.Span}, params, true)
	}
	if p.check(lexer.TokenIdent) {
		name := p.advance().Lexeme
		p.consume(lexer.TokenArrow, "expect '=>'")
		return p.arrowBody(ast.Base{Sp: tok.Span}, []ast.Param{{Name: name}}, true)
	}
	p.fail("expect function or arrow after 'async'")
	return &ast.NullLit{Base: ast.Base{Sp: tok.Span}}
}

func (p *Parser) functionLiteral(isAsync bool) *ast.FunctionLit {
	tok := p.consume(lexer.TokenFn, "expect 'fn'")
	name := ""
	if p.check(lexer.TokenIdent) {
		name = p.advance().Lexeme
	}
	params := p.paramList()
	retType := ""
	if p.match(lexer.TokenColon) {
		_, retType = p.parseTypeAnnotation()
	}
	body := p.blockStmt()
	return &ast.FunctionLit{Base: ast.Base{Sp: tok.Span}, Name: name, Params: params, ReturnType: retType, Body: body.Stmts, IsAsync: isAsync}
}

func (p *Parser) paramList() []ast.Param {
	p.consume(lexer.TokenLParen, "expect '(' before parameters")
	var params []ast.Param
	for !p.check(lexer.TokenRParen) && !p.isAtEnd() {
		name := p.consume(lexer.TokenIdent, "expect parameter name").Lexeme
		param := ast.Param{Name: name}
		if p.match(lexer.TokenColon) {
			param.Ownership, param.Type = p.parseTypeAnnotation()
		}
		params = append(params, param)
		if !p.match(lexer.TokenComma) {
			break
		}
	}
	p.consume(lexer.TokenRParen, "expect ')' after parameters")
	return params
}

func (p *Parser) arrayLiteral() ast.Expr {
	tok := p.consume(lexer.TokenLBracket, "expect '['")
	lit := &ast.ArrayLit{Base: ast.Base{Sp: tok.Span}}
	for !p.check(lexer.TokenRBracket) && !p.isAtEnd() {
		spread := p.match(lexer.TokenDotDotDot)
		lit.Elements = append(lit.Elements, p.assignment())
		lit.Spreads = append(lit.Spreads, spread)
		if !p.match(lexer.TokenComma) {
			break
		}
	}
	p.consume(lexer.TokenRBracket, "expect ']' after array elements")
	return lit
}

func (p *Parser) objectLiteral() ast.Expr {
	tok := p.consume(lexer.TokenLBrace, "expect '{'")
	lit := &ast.ObjectLit{Base: ast.Base{Sp: tok.Span}}
	for !p.check(lexer.TokenRBrace) && !p.isAtEnd() {
		if p.match(lexer.TokenDotDotDot) {
			v := p.assignment()
			lit.Props = append(lit.Props, ast.ObjectProp{Spread: true, Value: v})
			if !p.match(lexer.TokenComma) {
				break
			}
			continue
		}
		prop := ast.ObjectProp{}
		if p.match(lexer.TokenLBracket) {
			prop.Computed = true
			prop.Key = p.expression()
			p.consume(lexer.TokenRBracket, "expect ']' after computed key")
		} else if p.check(lexer.TokenString) {
			k := p.advance()
			prop.Key = &ast.StringLit{Base: ast.Base{Sp: k.Span}, Value: k.Lexeme}
		} else {
			k := p.consume(lexer.TokenIdent, "expect property key")
			prop.Key = &ast.Ident{Base: ast.Base{Sp: k.Span}, Name: k.Lexeme}
		}
		if p.match(lexer.TokenColon) {
			prop.Value = p.assignment()
		} else {
			// shorthand { x }
			if id, ok := prop.Key.(*ast.Ident); ok {
				prop.Value = &ast.Ident{Base: id.Base, Name: id.Name}
				prop.Shorthand = true
			} else {
				p.fail("expect ':' after property key")
			}
		}
		lit.Props = append(lit.Props, prop)
		if !p.match(lexer.TokenComma) {
			break
		}
	}
	p.consume(lexer.TokenRBrace, "expect '}' after object literal")
	return lit
}

func (p *Parser) templateLiteral() ast.Expr {
	tok := p.consume(lexer.TokenTplStart, "expect template literal")
	lit := &ast.TemplateLit{Base: ast.Base{Sp: tok.Span}}
	for {
		q := p.consume(lexer.TokenTplQuasi, "expect template text")
		lit.Quasis = append(lit.Quasis, q.Lexeme)
		if p.match(lexer.TokenTplEnd) {
			return lit
		}
		p.consume(lexer.TokenTplExprStart, "expect '${'")
		lit.Exprs = append(lit.Exprs, p.expression())
		p.consume(lexer.TokenTplExprEnd, "expect '}' closing interpolation")
	}
}

func (p *Parser) superExpr() ast.Expr {
	tok := p.consume(lexer.TokenSuper, "expect 'super'")
	if p.check(lexer.TokenLParen) {
		call := p.finishCall(&ast.Super{Base: ast.Base{Sp: tok.Span}})
		c := call.(*ast.CallExpr)
		return &ast.SuperCallExpr{Base: ast.Base{Sp: tok.Span}, Args: c.Args}
	}
	p.consume(lexer.TokenDot, "expect '.' after 'super'")
	name := p.consume(lexer.TokenIdent, "expect method name after 'super.'").Lexeme
	return &ast.SuperMemberExpr{Base: ast.Base{Sp: tok.Span}, Property: name}
}

func (p *Parser) newExpr() ast.Expr {
	tok := p.consume(lexer.TokenNew, "expect 'new'")
	callee := p.postfixNoCall()
	var args []ast.Expr
	if p.check(lexer.TokenLParen) {
		call := p.finishCall(callee)
		args = call.(*ast.CallExpr).Args
	}
	return &ast.NewExpr{Base: ast.Base{Sp: tok.Span}, Callee: callee, Args: args}
}

// postfixNoCall parses member access but leaves a trailing '(' for newExpr
// to consume as the constructor argument list (so `new A().b` parses A's
// args, not a chained call on the member expression).
func (p *Parser) postfixNoCall() ast.Expr {
	expr := p.primary()
	for {
		switch {
		case p.check(lexer.TokenDot):
			p.advance()
			name := p.consume(lexer.TokenIdent, "expect property name after '.'").Lexeme
			expr = &ast.MemberExpr{Base: spanOf(expr), Object: expr, Property: name}
		default:
			return expr
		}
	}
}

func (p *Parser) classLiteral() ast.Expr {
	return p.classBody(nil)
}

// classBody parses `class Name extends Super { ... }`; decorators (already
// consumed by the caller) are attached to the returned literal.
func (p *Parser) classBody(decorators []ast.Decorator) *ast.ClassLit {
	tok := p.consume(lexer.TokenClass, "expect 'class'")
	name := ""
	if p.check(lexer.TokenIdent) {
		name = p.advance().Lexeme
	}
	cls := &ast.ClassLit{Base: ast.Base{Sp: tok.Span}, Name: name, Decorators: decorators}
	if p.match(lexer.TokenExtends) {
		cls.Superclass = p.postfix()
	}
	p.consume(lexer.TokenLBrace, "expect '{' to start class body")
	for !p.check(lexer.TokenRBrace) && !p.isAtEnd() {
		p.classMember(cls)
	}
	p.consume(lexer.TokenRBrace, "expect '}' to close class body")
	return cls
}

func (p *Parser) classMember(cls *ast.ClassLit) {
	var decorators []ast.Decorator
	for p.check(lexer.TokenAt) {
		decorators = append(decorators, p.decorator())
	}
	static := p.match(lexer.TokenStatic)
	kind := "method"
	if p.check(lexer.TokenGet) && p.peekAt(1).Type != lexer.TokenLParen {
		p.advance()
		kind = "get"
	} else if p.check(lexer.TokenSet) && p.peekAt(1).Type != lexer.TokenLParen {
		p.advance()
		kind = "set"
	}
	private := p.check(lexer.TokenPrivate)
	var name string
	if private {
		name = p.advance().Lexeme
	} else {
		name = p.consume(lexer.TokenIdent, "expect member name").Lexeme
	}
	if name == "constructor" {
		kind = "constructor"
	}
	if p.check(lexer.TokenLParen) {
		params := p.paramList()
		body := p.blockStmt()
		fn := &ast.FunctionLit{Base: ast.Base{Sp: p.previous().Span}, Name: name, Params: params, Body: body.Stmts}
		cls.Methods = append(cls.Methods, ast.ClassMethod{Name: name, Kind: kind, Static: static, Private: private, Fn: fn, Decorators: decorators})
		return
	}
	field := ast.ClassField{Name: name, Static: static, Private: private, Decorators: decorators}
	if p.match(lexer.TokenColon) {
		p.parseTypeAnnotation()
	}
	if p.match(lexer.TokenEqual) {
		field.Init = p.assignment()
	}
	p.match(lexer.TokenSemicolon)
	cls.Fields = append(cls.Fields, field)
}

func (p *Parser) decorator() ast.Decorator {
	p.consume(lexer.TokenAt, "expect '@'")
	callee := p.postfix()
	if call, ok := callee.(*ast.CallExpr); ok {
		return ast.Decorator{Callee: call.Callee, Args: call.Args}
	}
	return ast.Decorator{Callee: callee}
}

// ------------------------------------------------------------ small utils

func spanOf(e ast.Expr) ast.Base {
	return ast.Base{Sp: e.Span()}
}

func parseNumber(lexeme string) float64 {
	if strings.HasPrefix(lexeme, "0x") || strings.HasPrefix(lexeme, "0X") {
		n, _ := strconv.ParseInt(lexeme[2:], 16, 64)
		return float64(n)
	}
	if strings.HasPrefix(lexeme, "0b") || strings.HasPrefix(lexeme, "0B") {
		n, _ := strconv.ParseInt(lexeme[2:], 2, 64)
		return float64(n)
	}
	if strings.HasPrefix(lexeme, "0o") || strings.HasPrefix(lexeme, "0O") {
		n, _ := strconv.ParseInt(lexeme[2:], 8, 64)
		return float64(n)
	}
	f, _ := strconv.ParseFloat(lexeme, 64)
	return f
}
