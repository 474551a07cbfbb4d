// Package parser provides CQL statement parsing for the query layer.
package parser

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenType represents the type of a lexical token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError
	TokenIdent
	TokenInteger
	TokenFloat
	TokenString
	TokenBlobLit
	TokenUuidLit

	// Keywords
	TokenSelect
	TokenFrom
	TokenWhere
	TokenAnd
	TokenOrder
	TokenBy
	TokenLimit
	TokenAsc
	TokenDesc
	TokenIn
	TokenAs
	TokenAllow
	TokenFiltering
	TokenUse
	TokenCreate
	TokenDrop
	TokenAlter
	TokenTable
	TokenKeyspace
	TokenIndex
	TokenOn
	TokenAdd
	TokenIf
	TokenNot
	TokenExists
	TokenPrimary
	TokenKey
	TokenWith
	TokenSet
	TokenUpdate
	TokenDelete
	TokenInsert
	TokenInto
	TokenValues
	TokenUsing
	TokenTimestamp
	TokenTtl
	TokenJson
	TokenBegin
	TokenBatch
	TokenApply
	TokenUnlogged
	TokenLogged
	TokenCounter
	TokenTrue
	TokenFalse
	TokenNull
	TokenClustering

	// Operators and punctuation
	TokenEq        // =
	TokenLt        // <
	TokenGt        // >
	TokenLe        // <=
	TokenGe        // >=
	TokenComma     // ,
	TokenLParen    // (
	TokenRParen    // )
	TokenLBracket  // [
	TokenRBracket  // ]
	TokenLBrace    // {
	TokenRBrace    // }
	TokenColon     // :
	TokenSemicolon // ;
	TokenDot       // .
	TokenStar      // *
	TokenQuestion  // ?
)

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int // Position in input
}

// String returns a string representation of the token.
func (t Token) String() string {
	return fmt.Sprintf("Token{%s, %q, %d}", t.Type.String(), t.Literal, t.Pos)
}

// tokenNames maps token types to their display names.
var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenError:      "ERROR",
	TokenIdent:      "IDENT",
	TokenInteger:    "INTEGER",
	TokenFloat:      "FLOAT",
	TokenString:     "STRING",
	TokenBlobLit:    "BLOB",
	TokenUuidLit:    "UUID",
	TokenSelect:     "SELECT",
	TokenFrom:       "FROM",
	TokenWhere:      "WHERE",
	TokenAnd:        "AND",
	TokenOrder:      "ORDER",
	TokenBy:         "BY",
	TokenLimit:      "LIMIT",
	TokenAsc:        "ASC",
	TokenDesc:       "DESC",
	TokenIn:         "IN",
	TokenAs:         "AS",
	TokenAllow:      "ALLOW",
	TokenFiltering:  "FILTERING",
	TokenUse:        "USE",
	TokenCreate:     "CREATE",
	TokenDrop:       "DROP",
	TokenAlter:      "ALTER",
	TokenTable:      "TABLE",
	TokenKeyspace:   "KEYSPACE",
	TokenIndex:      "INDEX",
	TokenOn:         "ON",
	TokenAdd:        "ADD",
	TokenIf:         "IF",
	TokenNot:        "NOT",
	TokenExists:     "EXISTS",
	TokenPrimary:    "PRIMARY",
	TokenKey:        "KEY",
	TokenWith:       "WITH",
	TokenSet:        "SET",
	TokenUpdate:     "UPDATE",
	TokenDelete:     "DELETE",
	TokenInsert:     "INSERT",
	TokenInto:       "INTO",
	TokenValues:     "VALUES",
	TokenUsing:      "USING",
	TokenTimestamp:  "TIMESTAMP",
	TokenTtl:        "TTL",
	TokenJson:       "JSON",
	TokenBegin:      "BEGIN",
	TokenBatch:      "BATCH",
	TokenApply:      "APPLY",
	TokenUnlogged:   "UNLOGGED",
	TokenLogged:     "LOGGED",
	TokenCounter:    "COUNTER",
	TokenTrue:       "TRUE",
	TokenFalse:      "FALSE",
	TokenNull:       "NULL",
	TokenClustering: "CLUSTERING",
	TokenEq:         "=",
	TokenLt:         "<",
	TokenGt:         ">",
	TokenLe:         "<=",
	TokenGe:         ">=",
	TokenComma:      ",",
	TokenLParen:     "(",
	TokenRParen:     ")",
	TokenLBracket:   "[",
	TokenRBracket:   "]",
	TokenLBrace:     "{",
	TokenRBrace:     "}",
	TokenColon:      ":",
	TokenSemicolon:  ";",
	TokenDot:        ".",
	TokenStar:       "*",
	TokenQuestion:   "?",
}

// String returns the string representation of a TokenType.
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// keywords maps CQL keywords to their token types.
var keywords = map[string]TokenType{
	"SELECT":     TokenSelect,
	"FROM":       TokenFrom,
	"WHERE":      TokenWhere,
	"AND":        TokenAnd,
	"ORDER":      TokenOrder,
	"BY":         TokenBy,
	"LIMIT":      TokenLimit,
	"ASC":        TokenAsc,
	"DESC":       TokenDesc,
	"IN":         TokenIn,
	"AS":         TokenAs,
	"ALLOW":      TokenAllow,
	"FILTERING":  TokenFiltering,
	"USE":        TokenUse,
	"CREATE":     TokenCreate,
	"DROP":       TokenDrop,
	"ALTER":      TokenAlter,
	"TABLE":      TokenTable,
	"KEYSPACE":   TokenKeyspace,
	"INDEX":      TokenIndex,
	"ON":         TokenOn,
	"ADD":        TokenAdd,
	"IF":         TokenIf,
	"NOT":        TokenNot,
	"EXISTS":     TokenExists,
	"PRIMARY":    TokenPrimary,
	"KEY":        TokenKey,
	"WITH":       TokenWith,
	"SET":        TokenSet,
	"UPDATE":     TokenUpdate,
	"DELETE":     TokenDelete,
	"INSERT":     TokenInsert,
	"INTO":       TokenInto,
	"VALUES":     TokenValues,
	"USING":      TokenUsing,
	"TIMESTAMP":  TokenTimestamp,
	"TTL":        TokenTtl,
	"JSON":       TokenJson,
	"BEGIN":      TokenBegin,
	"BATCH":      TokenBatch,
	"APPLY":      TokenApply,
	"UNLOGGED":   TokenUnlogged,
	"LOGGED":     TokenLogged,
	"COUNTER":    TokenCounter,
	"TRUE":       TokenTrue,
	"FALSE":      TokenFalse,
	"NULL":       TokenNull,
	"CLUSTERING": TokenClustering,
}

// Lexer tokenizes CQL input.
type Lexer struct {
	input   string
	pos     int  // Current position in input
	readPos int  // Reading position (after current char)
	ch      byte // Current character
}

// NewLexer creates a new Lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

// readChar reads the next character and advances the position.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
}

// peekChar returns the next character without advancing.
func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

// skipWhitespace skips whitespace characters.
func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	startPos := l.pos
	var tok Token

	switch l.ch {
	case '=':
		tok = Token{Type: TokenEq, Literal: "=", Pos: startPos}
	case '<':
		if l.peekChar() == '=' {
			l.readChar()
			tok = Token{Type: TokenLe, Literal: "<=", Pos: startPos}
		} else {
			tok = Token{Type: TokenLt, Literal: "<", Pos: startPos}
		}
	case '>':
		if l.peekChar() == '=' {
			l.readChar()
			tok = Token{Type: TokenGe, Literal: ">=", Pos: startPos}
		} else {
			tok = Token{Type: TokenGt, Literal: ">", Pos: startPos}
		}
	case ',':
		tok = Token{Type: TokenComma, Literal: ",", Pos: startPos}
	case '(':
		tok = Token{Type: TokenLParen, Literal: "(", Pos: startPos}
	case ')':
		tok = Token{Type: TokenRParen, Literal: ")", Pos: startPos}
	case '[':
		tok = Token{Type: TokenLBracket, Literal: "[", Pos: startPos}
	case ']':
		tok = Token{Type: TokenRBracket, Literal: "]", Pos: startPos}
	case '{':
		tok = Token{Type: TokenLBrace, Literal: "{", Pos: startPos}
	case '}':
		tok = Token{Type: TokenRBrace, Literal: "}", Pos: startPos}
	case ':':
		tok = Token{Type: TokenColon, Literal: ":", Pos: startPos}
	case ';':
		tok = Token{Type: TokenSemicolon, Literal: ";", Pos: startPos}
	case '.':
		tok = Token{Type: TokenDot, Literal: ".", Pos: startPos}
	case '*':
		tok = Token{Type: TokenStar, Literal: "*", Pos: startPos}
	case '?':
		tok = Token{Type: TokenQuestion, Literal: "?", Pos: startPos}
	case '-':
		if isDigit(l.peekChar()) {
			l.readChar()
			return l.readNumber(startPos, true)
		}
		tok = Token{Type: TokenError, Literal: string(l.ch), Pos: startPos}
	case '\'':
		tok = l.readString()
	case '"':
		tok = l.readQuotedIdentifier()
	case 0:
		tok = Token{Type: TokenEOF, Literal: "", Pos: startPos}
	default:
		if uuid, ok := l.tryReadUuid(); ok {
			return uuid
		}
		if isLetter(l.ch) || l.ch == '_' {
			return l.readIdentifier()
		} else if isDigit(l.ch) {
			return l.readNumber(startPos, false)
		}
		tok = Token{Type: TokenError, Literal: string(l.ch), Pos: startPos}
	}

	l.readChar()
	return tok
}

// readIdentifier reads an identifier or keyword.
func (l *Lexer) readIdentifier() Token {
	startPos := l.pos
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	literal := l.input[start:l.pos]
	upper := strings.ToUpper(literal)

	if tokType, ok := keywords[upper]; ok {
		return Token{Type: tokType, Literal: upper, Pos: startPos}
	}

	// Unquoted identifiers are case-insensitive and fold to lower case.
	return Token{Type: TokenIdent, Literal: strings.ToLower(literal), Pos: startPos}
}

// readQuotedIdentifier reads a double-quoted identifier, which preserves case.
func (l *Lexer) readQuotedIdentifier() Token {
	startPos := l.pos
	l.readChar() // Skip opening quote
	start := l.pos

	for l.ch != '"' && l.ch != 0 {
		l.readChar()
	}

	if l.ch == 0 {
		return Token{Type: TokenError, Literal: "unterminated identifier", Pos: startPos}
	}

	return Token{Type: TokenIdent, Literal: l.input[start:l.pos], Pos: startPos}
}

// readNumber reads a numeric literal, or a hex blob literal starting with 0x.
func (l *Lexer) readNumber(startPos int, negative bool) Token {
	if !negative && l.ch == '0' && (l.peekChar() == 'x' || l.peekChar() == 'X') {
		l.readChar()
		l.readChar()
		start := l.pos
		for isHexDigit(l.ch) {
			l.readChar()
		}
		return Token{Type: TokenBlobLit, Literal: l.input[start:l.pos], Pos: startPos}
	}

	start := l.pos
	hasDecimal := false
	for isDigit(l.ch) || (l.ch == '.' && !hasDecimal && isDigit(l.peekChar())) {
		if l.ch == '.' {
			hasDecimal = true
		}
		l.readChar()
	}

	hasExponent := false
	if l.ch == 'e' || l.ch == 'E' {
		next := l.peekChar()
		signed := next == '+' || next == '-'
		if isDigit(next) || (signed && l.readPos+1 < len(l.input) && isDigit(l.input[l.readPos+1])) {
			hasExponent = true
			l.readChar()
			if signed {
				l.readChar()
			}
			for isDigit(l.ch) {
				l.readChar()
			}
		}
	}

	literal := l.input[start:l.pos]
	if negative {
		literal = "-" + literal
	}
	if hasDecimal || hasExponent {
		return Token{Type: TokenFloat, Literal: literal, Pos: startPos}
	}
	return Token{Type: TokenInteger, Literal: literal, Pos: startPos}
}

// readString reads a string literal enclosed in single quotes, with ''
// as the escape for a literal quote.
func (l *Lexer) readString() Token {
	startPos := l.pos
	l.readChar() // Skip opening quote

	var sb strings.Builder
	for {
		if l.ch == 0 {
			return Token{Type: TokenError, Literal: "unterminated string", Pos: startPos}
		}
		if l.ch == '\'' {
			if l.peekChar() == '\'' {
				sb.WriteByte('\'')
				l.readChar()
				l.readChar()
				continue
			}
			break
		}
		sb.WriteByte(l.ch)
		l.readChar()
	}

	// Closing quote is consumed by NextToken.
	return Token{Type: TokenString, Literal: sb.String(), Pos: startPos}
}

// tryReadUuid attempts to read an unquoted UUID literal of the canonical
// 8-4-4-4-12 form. It only consumes input on success.
func (l *Lexer) tryReadUuid() (Token, bool) {
	const uuidLen = 36
	if l.pos+uuidLen > len(l.input) {
		return Token{}, false
	}
	candidate := l.input[l.pos : l.pos+uuidLen]
	for i := 0; i < uuidLen; i++ {
		switch i {
		case 8, 13, 18, 23:
			if candidate[i] != '-' {
				return Token{}, false
			}
		default:
			if !isHexDigit(candidate[i]) {
				return Token{}, false
			}
		}
	}
	// Must not run into a longer identifier.
	if l.pos+uuidLen < len(l.input) {
		next := l.input[l.pos+uuidLen]
		if isLetter(next) || isDigit(next) || next == '_' || next == '-' {
			return Token{}, false
		}
	}

	startPos := l.pos
	for i := 0; i < uuidLen; i++ {
		l.readChar()
	}
	return Token{Type: TokenUuidLit, Literal: candidate, Pos: startPos}, true
}

// Tokenize returns all tokens from the input.
func (l *Lexer) Tokenize() []Token {
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			break
		}
	}
	return tokens
}

// isLetter returns true if the character is a letter.
func isLetter(ch byte) bool {
	return unicode.IsLetter(rune(ch))
}

// isDigit returns true if the character is a digit.
func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

// isHexDigit returns true if the character is a hexadecimal digit.
func isHexDigit(ch byte) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}
