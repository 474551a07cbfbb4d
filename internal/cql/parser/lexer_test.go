package parser

import (
	"testing"
)

func TestLexer_BasicTokens(t *testing.T) {
	input := "SELECT * FROM ks.users WHERE id = 42 LIMIT 10;"
	expected := []struct {
		typ     TokenType
		literal string
	}{
		{TokenSelect, "SELECT"},
		{TokenStar, "*"},
		{TokenFrom, "FROM"},
		{TokenIdent, "ks"},
		{TokenDot, "."},
		{TokenIdent, "users"},
		{TokenWhere, "WHERE"},
		{TokenIdent, "id"},
		{TokenEq, "="},
		{TokenInteger, "42"},
		{TokenLimit, "LIMIT"},
		{TokenInteger, "10"},
		{TokenSemicolon, ";"},
		{TokenEOF, ""},
	}

	l := NewLexer(input)
	for i, exp := range expected {
		tok := l.NextToken()
		if tok.Type != exp.typ {
			t.Errorf("token %d: type = %s, want %s", i, tok.Type, exp.typ)
		}
		if tok.Literal != exp.literal {
			t.Errorf("token %d: literal = %q, want %q", i, tok.Literal, exp.literal)
		}
	}
}

func TestLexer_CaseFolding(t *testing.T) {
	l := NewLexer("select MyColumn from T")
	tokens := l.Tokenize()
	if tokens[0].Type != TokenSelect {
		t.Errorf("keyword type = %s, want SELECT", tokens[0].Type)
	}
	if tokens[1].Literal != "mycolumn" {
		t.Errorf("unquoted ident = %q, want folded to lower case", tokens[1].Literal)
	}
}

func TestLexer_QuotedIdentifier(t *testing.T) {
	l := NewLexer(`SELECT "MyColumn" FROM t`)
	tokens := l.Tokenize()
	if tokens[1].Type != TokenIdent || tokens[1].Literal != "MyColumn" {
		t.Errorf("quoted ident = %s %q, want IDENT \"MyColumn\"", tokens[1].Type, tokens[1].Literal)
	}
}

func TestLexer_Strings(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple", "'hello'", "hello"},
		{"empty", "''", ""},
		{"escaped quote", "'it''s'", "it's"},
		{"spaces", "'a b c'", "a b c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := NewLexer(tt.input).NextToken()
			if tok.Type != TokenString {
				t.Fatalf("type = %s, want STRING", tok.Type)
			}
			if tok.Literal != tt.want {
				t.Errorf("literal = %q, want %q", tok.Literal, tt.want)
			}
		})
	}
}

func TestLexer_UnterminatedString(t *testing.T) {
	tok := NewLexer("'oops").NextToken()
	if tok.Type != TokenError {
		t.Errorf("type = %s, want ERROR", tok.Type)
	}
}

func TestLexer_Numbers(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
		want  string
	}{
		{"0", TokenInteger, "0"},
		{"1234", TokenInteger, "1234"},
		{"-17", TokenInteger, "-17"},
		{"3.25", TokenFloat, "3.25"},
		{"-0.5", TokenFloat, "-0.5"},
		{"1e10", TokenFloat, "1e10"},
		{"2.5e-3", TokenFloat, "2.5e-3"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tok := NewLexer(tt.input).NextToken()
			if tok.Type != tt.typ {
				t.Errorf("type = %s, want %s", tok.Type, tt.typ)
			}
			if tok.Literal != tt.want {
				t.Errorf("literal = %q, want %q", tok.Literal, tt.want)
			}
		})
	}
}

func TestLexer_BlobLiteral(t *testing.T) {
	tok := NewLexer("0xCAFE01").NextToken()
	if tok.Type != TokenBlobLit {
		t.Fatalf("type = %s, want BLOB", tok.Type)
	}
	if tok.Literal != "CAFE01" {
		t.Errorf("literal = %q, want CAFE01", tok.Literal)
	}
}

func TestLexer_UuidLiteral(t *testing.T) {
	input := "550e8400-e29b-41d4-a716-446655440000"
	tok := NewLexer(input).NextToken()
	if tok.Type != TokenUuidLit {
		t.Fatalf("type = %s, want UUID", tok.Type)
	}
	if tok.Literal != input {
		t.Errorf("literal = %q, want %q", tok.Literal, input)
	}

	// A number that merely starts with hex digits must not lex as a UUID.
	tok = NewLexer("12345678").NextToken()
	if tok.Type != TokenInteger {
		t.Errorf("type = %s, want INTEGER", tok.Type)
	}
}

func TestLexer_BindMarkers(t *testing.T) {
	l := NewLexer("? :name")
	tok := l.NextToken()
	if tok.Type != TokenQuestion {
		t.Errorf("type = %s, want ?", tok.Type)
	}
	tok = l.NextToken()
	if tok.Type != TokenColon {
		t.Errorf("type = %s, want :", tok.Type)
	}
	tok = l.NextToken()
	if tok.Type != TokenIdent || tok.Literal != "name" {
		t.Errorf("token = %s %q, want IDENT name", tok.Type, tok.Literal)
	}
}

func TestLexer_CollectionPunctuation(t *testing.T) {
	l := NewLexer("{ 'a' : 1 } [ 2 ] ( 3 )")
	want := []TokenType{
		TokenLBrace, TokenString, TokenColon, TokenInteger, TokenRBrace,
		TokenLBracket, TokenInteger, TokenRBracket,
		TokenLParen, TokenInteger, TokenRParen,
		TokenEOF,
	}
	for i, w := range want {
		tok := l.NextToken()
		if tok.Type != w {
			t.Errorf("token %d: type = %s, want %s", i, tok.Type, w)
		}
	}
}

func TestLexer_Operators(t *testing.T) {
	l := NewLexer("< <= > >= =")
	want := []TokenType{TokenLt, TokenLe, TokenGt, TokenGe, TokenEq, TokenEOF}
	for i, w := range want {
		tok := l.NextToken()
		if tok.Type != w {
			t.Errorf("token %d: type = %s, want %s", i, tok.Type, w)
		}
	}
}

func TestLexer_PositionTracking(t *testing.T) {
	l := NewLexer("SELECT id")
	first := l.NextToken()
	second := l.NextToken()
	if first.Pos != 0 {
		t.Errorf("first token pos = %d, want 0", first.Pos)
	}
	if second.Pos != 7 {
		t.Errorf("second token pos = %d, want 7", second.Pos)
	}
}
