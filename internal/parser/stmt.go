package parser

import (
	"nyx/internal/ast"
	"nyx/internal/lexer"
)

func (p *Parser) statement() ast.Stmt {
	switch {
	case p.check(lexer.TokenLBrace):
		return p.blockStmt()
	case p.check(lexer.TokenLet), p.check(lexer.TokenConst):
		return p.letStmt()
	case p.check(lexer.TokenFn):
		return p.functionDecl()
	case p.check(lexer.TokenAsync) && p.peekAt(1).Type == lexer.TokenFn:
		return p.asyncFunctionDecl()
	case p.check(lexer.TokenClass):
		return p.classDecl()
	case p.check(lexer.TokenIf):
		return p.ifStmt()
	case p.check(lexer.TokenWhile):
		return p.whileStmt("")
	case p.check(lexer.TokenDo):
		return p.doWhileStmt("")
	case p.check(lexer.TokenFor):
		return p.forStmt("")
	case p.check(lexer.TokenReturn):
		return p.returnStmt()
	case p.check(lexer.TokenBreak):
		return p.breakStmt()
	case p.check(lexer.TokenContinue):
		return p.continueStmt()
	case p.check(lexer.TokenThrow):
		return p.throwStmt()
	case p.check(lexer.TokenTry):
		return p.tryStmt()
	case p.check(lexer.TokenLog):
		return p.printStmt()
	case p.check(lexer.TokenIdent) && p.peekAt(1).Type == lexer.TokenColon:
		return p.labeledStmt()
	default:
		return p.exprStmt()
	}
}

func (p *Parser) blockStmt() *ast.BlockStmt {
	tok := p.consume(lexer.TokenLBrace, "expect '{'")
	block := &ast.BlockStmt{Base: ast.Base{Sp: tok.Span}}
	for !p.check(lexer.TokenRBrace) && !p.isAtEnd() {
		block.Stmts = append(block.Stmts, p.statement())
		if len(p.Errors) > 0 {
			break
		}
	}
	p.consume(lexer.TokenRBrace, "expect '}' to close block")
	return block
}

func (p *Parser) letStmt() ast.Stmt {
	tok := p.advance()
	isConst := tok.Type == lexer.TokenConst
	name := p.consume(lexer.TokenIdent, "expect variable name").Lexeme
	stmt := &ast.LetStmt{Base: ast.Base{Sp: tok.Span}, Name: name, IsConst: isConst, Ownership: "own"}
	if p.match(lexer.TokenColon) {
		stmt.Ownership, stmt.Type = p.parseTypeAnnotation()
	}
	if p.match(lexer.TokenEqual) {
		stmt.Expr = p.expression()
	}
	p.match(lexer.TokenSemicolon)
	return stmt
}

func (p *Parser) printStmt() ast.Stmt {
	tok := p.advance()
	e := p.expression()
	p.match(lexer.TokenSemicolon)
	return &ast.PrintStmt{Base: ast.Base{Sp: tok.Span}, Expr: e}
}

func (p *Parser) functionDecl() ast.Stmt {
	fn := p.functionLiteral(false)
	return &ast.FunctionDecl{Base: fn.Base, Fn: fn}
}

func (p *Parser) asyncFunctionDecl() ast.Stmt {
	tok := p.advance() // 'async'
	fn := p.functionLiteral(true)
	fn.Base = ast.Base{Sp: tok.Span}
	return &ast.FunctionDecl{Base: fn.Base, Fn: fn}
}

func (p *Parser) classDecl() ast.Stmt {
	cls := p.classBody(nil)
	return &ast.ClassDecl{Base: cls.Base, Class: cls}
}

func (p *Parser) ifStmt() ast.Stmt {
	tok := p.consume(lexer.TokenIf, "expect 'if'")
	p.consume(lexer.TokenLParen, "expect '(' after 'if'")
	cond := p.expression()
	p.consume(lexer.TokenRParen, "expect ')' after condition")
	then := p.blockStmt()
	stmt := &ast.IfStmt{Base: ast.Base{Sp: tok.Span}, Cond: cond, Then: then}
	if p.match(lexer.TokenElse) {
		if p.check(lexer.TokenIf) {
			stmt.Else = p.ifStmt()
		} else {
			stmt.Else = p.blockStmt()
		}
	}
	return stmt
}

func (p *Parser) whileStmt(label string) ast.Stmt {
	tok := p.consume(lexer.TokenWhile, "expect 'while'")
	p.consume(lexer.TokenLParen, "expect '(' after 'while'")
	cond := p.expression()
	p.consume(lexer.TokenRParen, "expect ')' after condition")
	body := p.blockStmt()
	return &ast.WhileStmt{Base: ast.Base{Sp: tok.Span}, Label: label, Cond: cond, Body: body}
}

func (p *Parser) doWhileStmt(label string) ast.Stmt {
	tok := p.consume(lexer.TokenDo, "expect 'do'")
	body := p.blockStmt()
	p.consume(lexer.TokenWhile, "expect 'while' after 'do' block")
	p.consume(lexer.TokenLParen, "expect '(' after 'while'")
	cond := p.expression()
	p.consume(lexer.TokenRParen, "expect ')' after condition")
	p.match(lexer.TokenSemicolon)
	return &ast.DoWhileStmt{Base: ast.Base{Sp: tok.Span}, Label: label, Body: body, Cond: cond}
}

// forStmt parses both the classic C-style `for(init;cond;update)` and the
// `for (x in obj)` / `for (x of arr)` enumeration forms, disambiguating
// after the binder is parsed (spec §4.2 for-statement grammar).
func (p *Parser) forStmt(label string) ast.Stmt {
	tok := p.consume(lexer.TokenFor, "expect 'for'")
	p.consume(lexer.TokenLParen, "expect '(' after 'for'")

	if (p.check(lexer.TokenLet) || p.check(lexer.TokenConst)) &&
		p.peekAt(1).Type == lexer.TokenIdent &&
		(p.peekAt(2).Type == lexer.TokenIn || p.peekAt(2).Type == lexer.TokenOf) {
		p.advance() // let/const
		varName := p.advance().Lexeme
		isOf := p.advance().Type == lexer.TokenOf
		collection := p.expression()
		p.consume(lexer.TokenRParen, "expect ')' after for-in/for-of clause")
		body := p.blockStmt()
		return &ast.ForInStmt{Base: ast.Base{Sp: tok.Span}, Label: label, Var: varName, Collection: collection, IsOf: isOf, Body: body}
	}

	forTok := &ast.ForStmt{Base: ast.Base{Sp: tok.Span}, Label: label}
	if !p.check(lexer.TokenSemicolon) {
		if p.check(lexer.TokenLet) || p.check(lexer.TokenConst) {
			forTok.Init = p.letStmt()
		} else {
			forTok.Init = p.exprStmt()
		}
	} else {
		p.advance()
	}
	if !p.check(lexer.TokenSemicolon) {
		forTok.Cond = p.expression()
	}
	p.consume(lexer.TokenSemicolon, "expect ';' after for-loop condition")
	if !p.check(lexer.TokenRParen) {
		forTok.Update = p.expression()
	}
	p.consume(lexer.TokenRParen, "expect ')' after for-loop clauses")
	forTok.Body = p.blockStmt()
	return forTok
}

func (p *Parser) returnStmt() ast.Stmt {
	tok := p.consume(lexer.TokenReturn, "expect 'return'")
	stmt := &ast.ReturnStmt{Base: ast.Base{Sp: tok.Span}}
	if !p.check(lexer.TokenSemicolon) && !p.check(lexer.TokenRBrace) {
		stmt.Value = p.expression()
	}
	p.match(lexer.TokenSemicolon)
	return stmt
}

func (p *Parser) breakStmt() ast.Stmt {
	tok := p.consume(lexer.TokenBreak, "expect 'break'")
	stmt := &ast.BreakStmt{Base: ast.Base{Sp: tok.Span}}
	if p.check(lexer.TokenIdent) {
		stmt.Label = p.advance().Lexeme
	}
	p.match(lexer.TokenSemicolon)
	return stmt
}

func (p *Parser) continueStmt() ast.Stmt {
	tok := p.consume(lexer.TokenContinue, "expect 'continue'")
	stmt := &ast.ContinueStmt{Base: ast.Base{Sp: tok.Span}}
	if p.check(lexer.TokenIdent) {
		stmt.Label = p.advance().Lexeme
	}
	p.match(lexer.TokenSemicolon)
	return stmt
}

func (p *Parser) throwStmt() ast.Stmt {
	tok := p.consume(lexer.TokenThrow, "expect 'throw'")
	value := p.expression()
	p.match(lexer.TokenSemicolon)
	return &ast.ThrowStmt{Base: ast.Base{Sp: tok.Span}, Value: value}
}

func (p *Parser) tryStmt() ast.Stmt {
	tok := p.consume(lexer.TokenTry, "expect 'try'")
	stmt := &ast.TryStmt{Base: ast.Base{Sp: tok.Span}}
	stmt.TryBlock = p.blockStmt()
	if p.match(lexer.TokenCatch) {
		if p.match(lexer.TokenLParen) {
			stmt.CatchParam = p.consume(lexer.TokenIdent, "expect catch parameter name").Lexeme
			p.consume(lexer.TokenRParen, "expect ')' after catch parameter")
		}
		stmt.CatchBlock = p.blockStmt()
	}
	if p.match(lexer.TokenFinally) {
		stmt.FinallyBlock = p.blockStmt()
	}
	return stmt
}

func (p *Parser) labeledStmt() ast.Stmt {
	tok := p.advance()
	label := tok.Lexeme
	p.consume(lexer.TokenColon, "expect ':' after label")
	switch {
	case p.check(lexer.TokenWhile):
		return p.whileStmt(label)
	case p.check(lexer.TokenDo):
		return p.doWhileStmt(label)
	case p.check(lexer.TokenFor):
		return p.forStmt(label)
	default:
		inner := p.statement()
		return &ast.LabeledStmt{Base: ast.Base{Sp: tok.Span}, Label: label, Stmt: inner}
	}
}

func (p *Parser) exprStmt() ast.Stmt {
	tok := p.peek()
	e := p.expression()
	p.match(lexer.TokenSemicolon)
	return &ast.ExpressionStmt{Base: ast.Base{Sp: tok.Span}, Expr: e}
}

// ---------------------------------------------------------------- modules

// importStmt parses the forms from spec §6.2:
//
//	import "path";
//	import { a, b as c } from "path";
//	import * as ns from "path";
//	import def from "path";
func (p *Parser) importStmt() ast.Stmt {
	tok := p.consume(lexer.TokenImport, "expect 'import'")
	stmt := &ast.ImportStmt{Base: ast.Base{Sp: tok.Span}}

	if p.check(lexer.TokenString) {
		stmt.Path = p.advance().Lexeme
		stmt.SideEffectOnly = true
		p.match(lexer.TokenSemicolon)
		return stmt
	}

	if p.match(lexer.TokenStar) {
		p.consume(lexer.TokenAs, "expect 'as' after '*'")
		local := p.consume(lexer.TokenIdent, "expect namespace binding name").Lexeme
		stmt.Specifiers = append(stmt.Specifiers, ast.ImportSpecifier{Local: local, IsNamespace: true})
	} else if p.match(lexer.TokenLBrace) {
		for !p.check(lexer.TokenRBrace) && !p.isAtEnd() {
			imported := p.consume(lexer.TokenIdent, "expect imported name").Lexeme
			local := imported
			if p.match(lexer.TokenAs) {
				local = p.consume(lexer.TokenIdent, "expect local binding name").Lexeme
			}
			stmt.Specifiers = append(stmt.Specifiers, ast.ImportSpecifier{Imported: imported, Local: local})
			if !p.match(lexer.TokenComma) {
				break
			}
		}
		p.consume(lexer.TokenRBrace, "expect '}' after import specifiers")
	} else {
		local := p.consume(lexer.TokenIdent, "expect default import binding").Lexeme
		stmt.Specifiers = append(stmt.Specifiers, ast.ImportSpecifier{Local: local, IsDefault: true})
	}

	p.consume(lexer.TokenFrom, "expect 'from' after import specifiers")
	stmt.Path = p.consume(lexer.TokenString, "expect module path string").Lexeme
	p.match(lexer.TokenSemicolon)
	return stmt
}

// exportStmt parses the forms from spec §6.2:
//
//	export let/const/function/class ...
//	export default <expr>;
//	export { a, b as c };
//	export * from "path";
func (p *Parser) exportStmt() ast.Stmt {
	tok := p.consume(lexer.TokenExport, "expect 'export'")
	stmt := &ast.ExportStmt{Base: ast.Base{Sp: tok.Span}}

	if p.match(lexer.TokenDefault) {
		stmt.IsDefault = true
		if p.check(lexer.TokenFn) || p.check(lexer.TokenClass) {
			stmt.Decl = p.statement()
		} else {
			stmt.DefaultExpr = p.assignment()
			p.match(lexer.TokenSemicolon)
		}
		return stmt
	}

	if p.match(lexer.TokenStar) {
		stmt.IsStarExport = true
		p.consume(lexer.TokenFrom, "expect 'from' after 'export *'")
		stmt.FromPath = p.consume(lexer.TokenString, "expect module path string").Lexeme
		p.match(lexer.TokenSemicolon)
		return stmt
	}

	if p.match(lexer.TokenLBrace) {
		for !p.check(lexer.TokenRBrace) && !p.isAtEnd() {
			local := p.consume(lexer.TokenIdent, "expect exported name").Lexeme
			exported := local
			if p.match(lexer.TokenAs) {
				exported = p.consume(lexer.TokenIdent, "expect export alias name").Lexeme
			}
			stmt.Specifiers = append(stmt.Specifiers, ast.ExportSpecifier{Exported: exported, Local: local})
			if !p.match(lexer.TokenComma) {
				break
			}
		}
		p.consume(lexer.TokenRBrace, "expect '}' after export specifiers")
		if p.match(lexer.TokenFrom) {
			stmt.FromPath = p.consume(lexer.TokenString, "expect module path string").Lexeme
		}
		p.match(lexer.TokenSemicolon)
		return stmt
	}

	stmt.Decl = p.statement()
	return stmt
}
