package compiler

import "nyx/internal/ast"

// freeVariables returns the names referenced inside fn that are not bound
// by fn's own parameters or declarations, used to build the closure's
// captured-environment object (spec §4.3 "closures capture by environment
// object").
func freeVariables(fn *ast.FunctionLit) []string {
	bound := make(map[string]bool)
	for _, p := range fn.Params {
		bound[p.Name] = true
	}
	used := make(map[string]bool)
	collectDeclared(fn.Body, bound)
	for _, s := range fn.Body {
		collectIdentsStmt(s, bound, used)
	}
	if fn.ExprBody != nil {
		collectIdentsExpr(fn.ExprBody, bound, used)
	}
	names := make([]string, 0, len(used))
	for n := range used {
		names = append(names, n)
	}
	return names
}

// collectDeclared walks stmts (non-recursively into nested function
// bodies) collecting every name a `let`/`const`/function/class
// declaration introduces anywhere in this function's body, nested
// blocks included, so those names are excluded from capture.
func collectDeclared(stmts []ast.Stmt, bound map[string]bool) {
	for _, s := range stmts {
		switch st := s.(type) {
		case *ast.LetStmt:
			bound[st.Name] = true
		case *ast.FunctionDecl:
			bound[st.Fn.Name] = true
		case *ast.ClassDecl:
			bound[st.Class.Name] = true
		case *ast.BlockStmt:
			collectDeclared(st.Stmts, bound)
		case *ast.IfStmt:
			collectDeclared(st.Then.Stmts, bound)
			if eb, ok := st.Else.(*ast.BlockStmt); ok {
				collectDeclared(eb.Stmts, bound)
			}
		case *ast.WhileStmt:
			collectDeclared(st.Body.Stmts, bound)
		case *ast.DoWhileStmt:
			collectDeclared(st.Body.Stmts, bound)
		case *ast.ForStmt:
			if lt, ok := st.Init.(*ast.LetStmt); ok {
				bound[lt.Name] = true
			}
			collectDeclared(st.Body.Stmts, bound)
		case *ast.ForInStmt:
			bound[st.Var] = true
			collectDeclared(st.Body.Stmts, bound)
		case *ast.TryStmt:
			collectDeclared(st.TryBlock.Stmts, bound)
			if st.CatchBlock != nil {
				collectDeclared(st.CatchBlock.Stmts, bound)
			}
			if st.FinallyBlock != nil {
				collectDeclared(st.FinallyBlock.Stmts, bound)
			}
		}
	}
}

func collectIdentsStmt(s ast.Stmt, bound, used map[string]bool) {
	switch st := s.(type) {
	case *ast.ExpressionStmt:
		collectIdentsExpr(st.Expr, bound, used)
	case *ast.LetStmt:
		if st.Expr != nil {
			collectIdentsExpr(st.Expr, bound, used)
		}
	case *ast.PrintStmt:
		collectIdentsExpr(st.Expr, bound, used)
	case *ast.ReturnStmt:
		if st.Value != nil {
			collectIdentsExpr(st.Value, bound, used)
		}
	case *ast.ThrowStmt:
		collectIdentsExpr(st.Value, bound, used)
	case *ast.IfStmt:
		collectIdentsExpr(st.Cond, bound, used)
		for _, s2 := range st.Then.Stmts {
			collectIdentsStmt(s2, bound, used)
		}
		if st.Else != nil {
			collectIdentsStmt(st.Else, bound, used)
		}
	case *ast.WhileStmt:
		collectIdentsExpr(st.Cond, bound, used)
		for _, s2 := range st.Body.Stmts {
			collectIdentsStmt(s2, bound, used)
		}
	case *ast.DoWhileStmt:
		collectIdentsExpr(st.Cond, bound, used)
		for _, s2 := range st.Body.Stmts {
			collectIdentsStmt(s2, bound, used)
		}
	case *ast.ForStmt:
		if st.Init != nil {
			collectIdentsStmt(st.Init, bound, used)
		}
		if st.Cond != nil {
			collectIdentsExpr(st.Cond, bound, used)
		}
		if st.Update != nil {
			collectIdentsExpr(st.Update, bound, used)
		}
		for _, s2 := range st.Body.Stmts {
			collectIdentsStmt(s2, bound, used)
		}
	case *ast.ForInStmt:
		collectIdentsExpr(st.Collection, bound, used)
		for _, s2 := range st.Body.Stmts {
			collectIdentsStmt(s2, bound, used)
		}
	case *ast.BlockStmt:
		for _, s2 := range st.Stmts {
			collectIdentsStmt(s2, bound, used)
		}
	case *ast.TryStmt:
		for _, s2 := range st.TryBlock.Stmts {
			collectIdentsStmt(s2, bound, used)
		}
		if st.CatchBlock != nil {
			for _, s2 := range st.CatchBlock.Stmts {
				collectIdentsStmt(s2, bound, used)
			}
		}
		if st.FinallyBlock != nil {
			for _, s2 := range st.FinallyBlock.Stmts {
				collectIdentsStmt(s2, bound, used)
			}
		}
	case *ast.FunctionDecl:
		for _, inner := range freeVariables(st.Fn) {
			if !bound[inner] {
				used[inner] = true
			}
		}
	}
}

func collectIdentsExpr(e ast.Expr, bound, used map[string]bool) {
	switch ex := e.(type) {
	case *ast.Ident:
		if !bound[ex.Name] {
			used[ex.Name] = true
		}
	case *ast.UnaryExpr:
		collectIdentsExpr(ex.Operand, bound, used)
	case *ast.BinaryExpr:
		collectIdentsExpr(ex.Left, bound, used)
		collectIdentsExpr(ex.Right, bound, used)
	case *ast.LogicalExpr:
		collectIdentsExpr(ex.Left, bound, used)
		collectIdentsExpr(ex.Right, bound, used)
	case *ast.AssignExpr:
		collectIdentsExpr(ex.Target, bound, used)
		collectIdentsExpr(ex.Value, bound, used)
	case *ast.TernaryExpr:
		collectIdentsExpr(ex.Cond, bound, used)
		collectIdentsExpr(ex.Then, bound, used)
		collectIdentsExpr(ex.Else, bound, used)
	case *ast.MemberExpr:
		collectIdentsExpr(ex.Object, bound, used)
	case *ast.PrivateMemberExpr:
		collectIdentsExpr(ex.Object, bound, used)
	case *ast.IndexExpr:
		collectIdentsExpr(ex.Object, bound, used)
		collectIdentsExpr(ex.Index, bound, used)
	case *ast.CallExpr:
		collectIdentsExpr(ex.Callee, bound, used)
		for _, a := range ex.Args {
			collectIdentsExpr(a, bound, used)
		}
	case *ast.NewExpr:
		collectIdentsExpr(ex.Callee, bound, used)
		for _, a := range ex.Args {
			collectIdentsExpr(a, bound, used)
		}
	case *ast.ArrayLit:
		for _, el := range ex.Elements {
			collectIdentsExpr(el, bound, used)
		}
	case *ast.ObjectLit:
		for _, p := range ex.Props {
			if p.Computed {
				collectIdentsExpr(p.Key, bound, used)
			}
			if p.Value != nil {
				collectIdentsExpr(p.Value, bound, used)
			}
		}
	case *ast.TemplateLit:
		for _, ie := range ex.Exprs {
			collectIdentsExpr(ie, bound, used)
		}
	case *ast.AwaitExpr:
		collectIdentsExpr(ex.Operand, bound, used)
	case *ast.FunctionLit:
		for _, inner := range freeVariables(ex) {
			if !bound[inner] {
				used[inner] = true
			}
		}
	}
}
