package lexer

import "testing"

func kinds(toks []Token) []TokenType {
	out := make([]TokenType, len(toks))
	for i, t := range toks {
		out[i] = t.Type
	}
	return out
}

func TestScanBasicTokens(t *testing.T) {
	toks := NewScanner("let x = 1 + 2;").ScanTokens()
	want := []TokenType{TokenLet, TokenIdent, TokenEqual, TokenNumber, TokenPlus, TokenNumber, TokenSemicolon, TokenEOF}
	got := kinds(toks)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: got %s want %s", i, got[i], want[i])
		}
	}
}

func TestScanKeywordsAndPrivate(t *testing.T) {
	toks := NewScanner("class A { #x = 1; async fn m() { await f(); } }").ScanTokens()
	found := map[TokenType]bool{}
	for _, tk := range toks {
		found[tk.Type] = true
	}
	for _, want := range []TokenType{TokenClass, TokenPrivate, TokenAsync, TokenFn, TokenAwait} {
		if !found[want] {
			t.Errorf("expected token kind %s in stream", want)
		}
	}
}

func TestScanOwnershipSigils(t *testing.T) {
	toks := NewScanner("fn f(x: &Point, y: &mut Point) {}").ScanTokens()
	got := kinds(toks)
	hasAmp, hasAmpMut := false, false
	for _, k := range got {
		if k == TokenAmp {
			hasAmp = true
		}
		if k == TokenAmpMut {
			hasAmpMut = true
		}
	}
	if !hasAmp || !hasAmpMut {
		t.Fatalf("expected both & and &mut tokens, got %v", got)
	}
}

func TestScanTemplateLiteral(t *testing.T) {
	toks := NewScanner("`hello ${name}!`").ScanTokens()
	want := []TokenType{TokenTplStart, TokenTplQuasi, TokenTplExprStart, TokenIdent, TokenTplExprEnd, TokenTplQuasi, TokenTplEnd, TokenEOF}
	got := kinds(toks)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: got %s want %s", i, got[i], want[i])
		}
	}
	if toks[1].Lexeme != "hello " {
		t.Errorf("first quasi = %q, want %q", toks[1].Lexeme, "hello ")
	}
	if toks[5].Lexeme != "!" {
		t.Errorf("second quasi = %q, want %q", toks[5].Lexeme, "!")
	}
}

func TestScanTemplateWithObjectLiteralInside(t *testing.T) {
	// The interpolation's own '{' must not be mistaken for the template close.
	toks := NewScanner("`v=${ {a: 1}.a }`").ScanTokens()
	got := kinds(toks)
	endCount := 0
	for _, k := range got {
		if k == TokenTplEnd {
			endCount++
		}
	}
	if endCount != 1 {
		t.Fatalf("expected exactly one TplEnd, got %d in %v", endCount, got)
	}
}

func TestUnterminatedStringReportsLexError(t *testing.T) {
	s := NewScanner("\"abc")
	s.ScanTokens()
	if len(s.Errors) == 0 {
		t.Fatal("expected a LexError for unterminated string")
	}
}
