package parser

import (
	"testing"
)

func TestLexerBasicTokens(t *testing.T) {
	tests := []struct {
		input    string
		expected []TokenType
	}{
		{
			"SELECT * FROM users;",
			[]TokenType{TK_KEYWORD, TK_STAR, TK_KEYWORD, TK_ID, TK_SYMBOL, TK_EOF},
		},
		{
			"INSERT INTO t VALUES (1, 'a', ?)",
			[]TokenType{TK_KEYWORD, TK_KEYWORD, TK_ID, TK_KEYWORD, TK_SYMBOL, TK_NUMBER, TK_SYMBOL, TK_STRING, TK_SYMBOL, TK_PARAM, TK_SYMBOL, TK_EOF},
		},
		{
			"a.b <= -3.5",
			[]TokenType{TK_ID, TK_SYMBOL, TK_ID, TK_OPERATOR, TK_NUMBER, TK_EOF},
		},
		{
			"x'00ff' `odd name`",
			[]TokenType{TK_BLOB, TK_ID, TK_EOF},
		},
		{
			"SELECT 1 -- trailing\n/* block */ ;",
			[]TokenType{TK_KEYWORD, TK_NUMBER, TK_COMMENT, TK_COMMENT, TK_SYMBOL, TK_EOF},
		},
	}

	for _, tt := range tests {
		lexer := NewLexer(tt.input)
		tokens := make([]TokenType, 0)

		for {
			tok := lexer.NextToken()
			tokens = append(tokens, tok.Type)
			if tok.Type == TK_EOF {
				break
			}
		}

		if len(tokens) != len(tt.expected) {
			t.Errorf("token count mismatch for %q: got %v, want %v", tt.input, tokens, tt.expected)
			continue
		}

		for i, tokType := range tokens {
			if tokType != tt.expected[i] {
				t.Errorf("token %d mismatch for %q: got %s, want %s", i, tt.input, tokType, tt.expected[i])
			}
		}
	}
}

func TestLexerOperators(t *testing.T) {
	tests := []struct {
		input  string
		typ    TokenType
		lexeme string
	}{
		{"=", TK_SYMBOL, "="},
		{"<", TK_SYMBOL, "<"},
		{">", TK_SYMBOL, ">"},
		{"!", TK_SYMBOL, "!"},
		{"<=", TK_OPERATOR, "<="},
		{">=", TK_OPERATOR, ">="},
		{"!=", TK_OPERATOR, "!="},
		{"<>", TK_OPERATOR, "<>"},
		{"*", TK_STAR, "*"},
		{"?", TK_PARAM, "?"},
	}

	for _, tt := range tests {
		tok := NewLexer(tt.input).NextToken()
		if tok.Type != tt.typ || tok.Lexeme != tt.lexeme {
			t.Errorf("NextToken(%q) = %s %q, want %s %q", tt.input, tok.Type, tok.Lexeme, tt.typ, tt.lexeme)
		}
	}
}

func TestLexerKeywordsAreCaseInsensitive(t *testing.T) {
	tok := NewLexer("sElEcT").NextToken()
	if tok.Type != TK_KEYWORD || tok.Value != "SELECT" || tok.Lexeme != "sElEcT" {
		t.Errorf("got %s value %q lexeme %q", tok.Type, tok.Value, tok.Lexeme)
	}
	tok = NewLexer("users").NextToken()
	if tok.Type != TK_ID || tok.Value != "users" {
		t.Errorf("identifier: got %s %q", tok.Type, tok.Value)
	}
	if !IsKeyword("select") || IsKeyword("users") {
		t.Error("IsKeyword mismatch")
	}
}

func TestLexerStrings(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`'hello'`, "hello"},
		{`"double"`, "double"},
		{`'it''s'`, "it's"},
		{`'a\nb'`, "a\nb"},
		{`'tab\there'`, "tab\there"},
		{`'back\\slash'`, `back\slash`},
		{`'q\'uote'`, "q'uote"},
		{`"dq\"uote"`, `dq"uote`},
		{`'unknown\q'`, `unknown\q`},
		{`'unterminated`, "unterminated"},
		{`''`, ""},
	}

	for _, tt := range tests {
		tok := NewLexer(tt.input).NextToken()
		if tok.Type != TK_STRING {
			t.Errorf("NextToken(%q) type = %s", tt.input, tok.Type)
			continue
		}
		if tok.Value != tt.want {
			t.Errorf("NextToken(%q) value = %q, want %q", tt.input, tok.Value, tt.want)
		}
	}
}

func TestLexerNumbers(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"42", "42"},
		{"-7", "-7"},
		{"3.14", "3.14"},
		{".5", ".5"},
		{"-.5", "-.5"},
		{"1e10", "1e10"},
		{"2.5E-3", "2.5E-3"},
		{"10.", "10."},
	}

	for _, tt := range tests {
		tok := NewLexer(tt.input).NextToken()
		if tok.Type != TK_NUMBER || tok.Lexeme != tt.want {
			t.Errorf("NextToken(%q) = %s %q, want NUMBER %q", tt.input, tok.Type, tok.Lexeme, tt.want)
		}
	}
}

func TestLexerMinusWithoutDigitIsIllegal(t *testing.T) {
	tok := NewLexer("- 1").NextToken()
	if tok.Type != TK_ILLEGAL {
		t.Errorf("got %s, want ILLEGAL", tok.Type)
	}
}

func TestLexerPositions(t *testing.T) {
	toks := Tokenize("SELECT a\n  FROM t")
	want := []struct{ line, col, pos int }{
		{1, 1, 0},
		{1, 8, 7},
		{2, 3, 11},
		{2, 8, 16},
	}
	for i, w := range want {
		tok := toks[i]
		if tok.Line != w.line || tok.Col != w.col || tok.Pos != w.pos {
			t.Errorf("token %d %q at %d:%d (pos %d), want %d:%d (pos %d)", i, tok.Lexeme, tok.Line, tok.Col, tok.Pos, w.line, w.col, w.pos)
		}
	}
}

func TestTokenizeSkipsCommentsAndStopsAtIllegal(t *testing.T) {
	toks := Tokenize("SELECT /* x */ 1 -- y\n")
	if len(toks) != 3 || toks[2].Type != TK_EOF {
		t.Fatalf("Tokenize() = %v", toks)
	}

	toks = Tokenize("SELECT 1 # 2")
	last := toks[len(toks)-1]
	if last.Type != TK_ILLEGAL || last.Lexeme != "#" {
		t.Errorf("last token = %s %q, want ILLEGAL #", last.Type, last.Lexeme)
	}
}

func TestUnterminatedBlockCommentRunsToEnd(t *testing.T) {
	toks := Tokenize("SELECT 1 /* never closed")
	if len(toks) != 3 || toks[2].Type != TK_EOF {
		t.Errorf("Tokenize() = %v", toks)
	}
}

func TestQuoteStringRoundTrip(t *testing.T) {
	for _, s := range []string{"plain", "it's", `back\slash`, "new\nline", ""} {
		tok := NewLexer(QuoteString(s)).NextToken()
		if tok.Value != s {
			t.Errorf("QuoteString(%q) lexes back as %q", s, tok.Value)
		}
	}
}
