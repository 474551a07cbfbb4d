package parser

import (
	"fmt"
	"strings"

	"github.com/arkilian/minicql/pkg/types"
)

// ParseError represents a parsing error with location information.
type ParseError struct {
	Message  string
	Position int
	Token    Token
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at position %d: %s (got %s)", e.Position, e.Message, e.Token.Literal)
}

// Parser parses CQL statements into AST.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	markers   int
}

// NewParser creates a new Parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{
		lexer: NewLexer(input),
	}
	// Read two tokens to initialize curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a single CQL statement, allowing one trailing semicolon.
func Parse(input string) (Statement, error) {
	p := NewParser(input)
	stmt, err := p.ParseStatement()
	if err != nil {
		return nil, err
	}
	if p.curTokenIs(TokenSemicolon) {
		p.nextToken()
	}
	if !p.curTokenIs(TokenEOF) {
		return nil, p.errorf(p.curToken, "unexpected input after statement")
	}
	return stmt, nil
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// peekTokenIs checks if the peek token is of the given type.
func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

// expect consumes the current token if it matches, otherwise errors.
func (p *Parser) expect(t TokenType) error {
	if !p.curTokenIs(t) {
		return p.errorf(p.curToken, "expected %s", t.String())
	}
	p.nextToken()
	return nil
}

// errorf builds a ParseError anchored at the given token.
func (p *Parser) errorf(tok Token, format string, args ...interface{}) *ParseError {
	return &ParseError{
		Message:  fmt.Sprintf(format, args...),
		Position: tok.Pos,
		Token:    tok,
	}
}

// newMarker allocates the next bind marker in appearance order.
func (p *Parser) newMarker(name string) *BindMarker {
	m := &BindMarker{Name: name, Index: p.markers}
	p.markers++
	return m
}

// ParseStatement parses a single CQL statement. The current token is left
// on the first token after the statement.
func (p *Parser) ParseStatement() (Statement, error) {
	switch p.curToken.Type {
	case TokenSelect:
		return p.parseSelect()
	case TokenInsert:
		return p.parseInsert()
	case TokenUpdate:
		return p.parseUpdate()
	case TokenDelete:
		return p.parseDelete()
	case TokenUse:
		return p.parseUse()
	case TokenBegin:
		return p.parseBatch()
	case TokenCreate:
		switch p.peekToken.Type {
		case TokenKeyspace:
			return p.parseCreateKeyspace()
		case TokenTable:
			return p.parseCreateTable()
		case TokenIndex:
			return p.parseCreateIndex()
		default:
			return nil, p.errorf(p.peekToken, "expected KEYSPACE, TABLE or INDEX after CREATE")
		}
	case TokenDrop:
		switch p.peekToken.Type {
		case TokenKeyspace:
			return p.parseDropKeyspace()
		case TokenTable:
			return p.parseDropTable()
		default:
			return nil, p.errorf(p.peekToken, "expected KEYSPACE or TABLE after DROP")
		}
	case TokenAlter:
		return p.parseAlterTable()
	default:
		return nil, p.errorf(p.curToken, "unexpected start of statement")
	}
}

// identLike reports whether tok can serve as an identifier. CQL leaves
// these keywords unreserved, and columns named after them exist in the
// wild: system.local's partition key column is named "key".
func identLike(tok TokenType) bool {
	switch tok {
	case TokenIdent, TokenKey, TokenTimestamp, TokenTtl, TokenValues,
		TokenCounter, TokenJson, TokenClustering, TokenExists, TokenFiltering:
		return true
	default:
		return false
	}
}

// identLiteral returns the identifier form of a token. Keyword tokens
// carry their uppercase literal and fold to lower case here.
func identLiteral(tok Token) string {
	if tok.Type == TokenIdent {
		return tok.Literal
	}
	return strings.ToLower(tok.Literal)
}

// parseIdent consumes an identifier, or an unreserved keyword used as
// one, and returns its name.
func (p *Parser) parseIdent(what string) (string, error) {
	if !identLike(p.curToken.Type) {
		return "", p.errorf(p.curToken, "expected %s name", what)
	}
	name := identLiteral(p.curToken)
	p.nextToken()
	return name, nil
}

// parseQualifiedName consumes `name` or `keyspace.name`.
func (p *Parser) parseQualifiedName() (keyspace, name string, err error) {
	first, err := p.parseIdent("table")
	if err != nil {
		return "", "", err
	}
	if !p.curTokenIs(TokenDot) {
		return "", first, nil
	}
	p.nextToken()
	second, err := p.parseIdent("table")
	if err != nil {
		return "", "", err
	}
	return first, second, nil
}

func (p *Parser) parseUse() (*UseStatement, error) {
	p.nextToken() // Skip USE
	name, err := p.parseIdent("keyspace")
	if err != nil {
		return nil, err
	}
	return &UseStatement{Keyspace: name}, nil
}

// parseIfNotExists consumes an optional IF NOT EXISTS clause.
func (p *Parser) parseIfNotExists() (bool, error) {
	if !p.curTokenIs(TokenIf) {
		return false, nil
	}
	p.nextToken()
	if err := p.expect(TokenNot); err != nil {
		return false, err
	}
	if err := p.expect(TokenExists); err != nil {
		return false, err
	}
	return true, nil
}

// parseIfExists consumes an optional IF EXISTS clause.
func (p *Parser) parseIfExists() (bool, error) {
	if !p.curTokenIs(TokenIf) {
		return false, nil
	}
	if !p.peekTokenIs(TokenExists) {
		return false, nil
	}
	p.nextToken()
	p.nextToken()
	return true, nil
}

func (p *Parser) parseCreateKeyspace() (*CreateKeyspaceStatement, error) {
	p.nextToken() // Skip CREATE
	p.nextToken() // Skip KEYSPACE

	stmt := &CreateKeyspaceStatement{}
	var err error
	if stmt.IfNotExists, err = p.parseIfNotExists(); err != nil {
		return nil, err
	}
	if stmt.Name, err = p.parseIdent("keyspace"); err != nil {
		return nil, err
	}

	if p.curTokenIs(TokenWith) {
		stmt.Options = make(map[string]Term)
		p.nextToken()
		for {
			key, err := p.parseIdent("option")
			if err != nil {
				return nil, err
			}
			if err := p.expect(TokenEq); err != nil {
				return nil, err
			}
			value, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			stmt.Options[key] = value
			if !p.curTokenIs(TokenAnd) {
				break
			}
			p.nextToken()
		}
	}
	return stmt, nil
}

func (p *Parser) parseDropKeyspace() (*DropKeyspaceStatement, error) {
	p.nextToken() // Skip DROP
	p.nextToken() // Skip KEYSPACE

	stmt := &DropKeyspaceStatement{}
	var err error
	if stmt.IfExists, err = p.parseIfExists(); err != nil {
		return nil, err
	}
	if stmt.Name, err = p.parseIdent("keyspace"); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseCreateTable() (*CreateTableStatement, error) {
	p.nextToken() // Skip CREATE
	p.nextToken() // Skip TABLE

	stmt := &CreateTableStatement{}
	var err error
	if stmt.IfNotExists, err = p.parseIfNotExists(); err != nil {
		return nil, err
	}
	if stmt.Keyspace, stmt.Name, err = p.parseQualifiedName(); err != nil {
		return nil, err
	}
	if err := p.expect(TokenLParen); err != nil {
		return nil, err
	}

	for {
		if p.curTokenIs(TokenPrimary) {
			if len(stmt.PartitionKey) > 0 {
				return nil, p.errorf(p.curToken, "duplicate PRIMARY KEY declaration")
			}
			if err := p.parsePrimaryKey(stmt); err != nil {
				return nil, err
			}
		} else {
			name, err := p.parseIdent("column")
			if err != nil {
				return nil, err
			}
			colType, err := p.parseTypeRef()
			if err != nil {
				return nil, err
			}
			stmt.Columns = append(stmt.Columns, ColumnDef{Name: name, Type: colType})
			// Inline single-column primary key
			if p.curTokenIs(TokenPrimary) {
				p.nextToken()
				if err := p.expect(TokenKey); err != nil {
					return nil, err
				}
				if len(stmt.PartitionKey) > 0 {
					return nil, p.errorf(p.curToken, "duplicate PRIMARY KEY declaration")
				}
				stmt.PartitionKey = []string{name}
			}
		}

		if p.curTokenIs(TokenComma) {
			p.nextToken()
			continue
		}
		break
	}
	if err := p.expect(TokenRParen); err != nil {
		return nil, err
	}

	if p.curTokenIs(TokenWith) {
		p.nextToken()
		if err := p.parseTableOptions(stmt); err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

// parsePrimaryKey parses `PRIMARY KEY (pk, ck...)` with an optional
// composite partition key `((pk1, pk2), ck...)`.
func (p *Parser) parsePrimaryKey(stmt *CreateTableStatement) error {
	p.nextToken() // Skip PRIMARY
	if err := p.expect(TokenKey); err != nil {
		return err
	}
	if err := p.expect(TokenLParen); err != nil {
		return err
	}

	if p.curTokenIs(TokenLParen) {
		p.nextToken()
		for {
			name, err := p.parseIdent("partition key column")
			if err != nil {
				return err
			}
			stmt.PartitionKey = append(stmt.PartitionKey, name)
			if !p.curTokenIs(TokenComma) {
				break
			}
			p.nextToken()
		}
		if err := p.expect(TokenRParen); err != nil {
			return err
		}
	} else {
		name, err := p.parseIdent("partition key column")
		if err != nil {
			return err
		}
		stmt.PartitionKey = []string{name}
	}

	for p.curTokenIs(TokenComma) {
		p.nextToken()
		name, err := p.parseIdent("clustering key column")
		if err != nil {
			return err
		}
		stmt.ClusteringKey = append(stmt.ClusteringKey, name)
	}
	return p.expect(TokenRParen)
}

// parseTableOptions parses the WITH clause of CREATE TABLE. Only
// CLUSTERING ORDER BY affects behavior; other options are accepted and
// discarded.
func (p *Parser) parseTableOptions(stmt *CreateTableStatement) error {
	for {
		if p.curTokenIs(TokenClustering) {
			p.nextToken()
			if err := p.expect(TokenOrder); err != nil {
				return err
			}
			if err := p.expect(TokenBy); err != nil {
				return err
			}
			if err := p.expect(TokenLParen); err != nil {
				return err
			}
			for {
				name, err := p.parseIdent("clustering column")
				if err != nil {
					return err
				}
				ord := Ordering{Column: name}
				if p.curTokenIs(TokenDesc) {
					ord.Desc = true
					p.nextToken()
				} else if p.curTokenIs(TokenAsc) {
					p.nextToken()
				}
				stmt.ClusteringOrder = append(stmt.ClusteringOrder, ord)
				if !p.curTokenIs(TokenComma) {
					break
				}
				p.nextToken()
			}
			if err := p.expect(TokenRParen); err != nil {
				return err
			}
		} else {
			if _, err := p.parseIdent("option"); err != nil {
				return err
			}
			if err := p.expect(TokenEq); err != nil {
				return err
			}
			if _, err := p.parseTerm(); err != nil {
				return err
			}
		}
		if !p.curTokenIs(TokenAnd) {
			return nil
		}
		p.nextToken()
	}
}

// parseTypeRef reads a column type reference, rebuilding the type string
// from tokens up to the next comma or closing paren at angle depth zero.
func (p *Parser) parseTypeRef() (types.ColumnType, error) {
	startTok := p.curToken
	var sb strings.Builder
	depth := 0
	for {
		switch p.curToken.Type {
		case TokenLt:
			depth++
			sb.WriteByte('<')
		case TokenGt:
			if depth == 0 {
				return types.ColumnType{}, p.errorf(p.curToken, "unexpected > in type")
			}
			depth--
			sb.WriteByte('>')
		case TokenComma:
			if depth == 0 {
				return p.finishTypeRef(sb.String(), startTok)
			}
			sb.WriteByte(',')
		case TokenIdent, TokenTimestamp, TokenSet, TokenCounter:
			sb.WriteString(strings.ToLower(p.curToken.Literal))
		case TokenRParen, TokenPrimary, TokenSemicolon, TokenEOF:
			return p.finishTypeRef(sb.String(), startTok)
		default:
			return types.ColumnType{}, p.errorf(p.curToken, "unexpected token in type")
		}
		p.nextToken()
	}
}

func (p *Parser) finishTypeRef(s string, startTok Token) (types.ColumnType, error) {
	ct, err := types.ParseType(s)
	if err != nil {
		return types.ColumnType{}, p.errorf(startTok, "invalid type %q: %v", s, err)
	}
	return ct, nil
}

func (p *Parser) parseAlterTable() (*AlterTableStatement, error) {
	p.nextToken() // Skip ALTER
	if err := p.expect(TokenTable); err != nil {
		return nil, err
	}

	stmt := &AlterTableStatement{}
	var err error
	if stmt.Keyspace, stmt.Name, err = p.parseQualifiedName(); err != nil {
		return nil, err
	}

	switch p.curToken.Type {
	case TokenAdd:
		p.nextToken()
		stmt.Op = AlterAdd
		if stmt.Column, err = p.parseIdent("column"); err != nil {
			return nil, err
		}
		if stmt.Type, err = p.parseTypeRef(); err != nil {
			return nil, err
		}
	case TokenDrop:
		p.nextToken()
		stmt.Op = AlterDrop
		if stmt.Column, err = p.parseIdent("column"); err != nil {
			return nil, err
		}
	default:
		return nil, p.errorf(p.curToken, "expected ADD or DROP")
	}
	return stmt, nil
}

func (p *Parser) parseDropTable() (*DropTableStatement, error) {
	p.nextToken() // Skip DROP
	p.nextToken() // Skip TABLE

	stmt := &DropTableStatement{}
	var err error
	if stmt.IfExists, err = p.parseIfExists(); err != nil {
		return nil, err
	}
	if stmt.Keyspace, stmt.Name, err = p.parseQualifiedName(); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseCreateIndex() (*CreateIndexStatement, error) {
	p.nextToken() // Skip CREATE
	p.nextToken() // Skip INDEX

	stmt := &CreateIndexStatement{}
	var err error
	if stmt.IfNotExists, err = p.parseIfNotExists(); err != nil {
		return nil, err
	}
	if identLike(p.curToken.Type) {
		stmt.Name = identLiteral(p.curToken)
		p.nextToken()
	}
	if err := p.expect(TokenOn); err != nil {
		return nil, err
	}
	if stmt.Keyspace, stmt.Table, err = p.parseQualifiedName(); err != nil {
		return nil, err
	}
	if err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	if stmt.Column, err = p.parseIdent("column"); err != nil {
		return nil, err
	}
	if err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseInsert() (*InsertStatement, error) {
	p.nextToken() // Skip INSERT
	if err := p.expect(TokenInto); err != nil {
		return nil, err
	}

	stmt := &InsertStatement{}
	var err error
	if stmt.Keyspace, stmt.Table, err = p.parseQualifiedName(); err != nil {
		return nil, err
	}

	if p.curTokenIs(TokenJson) {
		p.nextToken()
		if stmt.JSON, err = p.parseTerm(); err != nil {
			return nil, err
		}
	} else {
		if err := p.expect(TokenLParen); err != nil {
			return nil, err
		}
		for {
			name, err := p.parseIdent("column")
			if err != nil {
				return nil, err
			}
			stmt.Columns = append(stmt.Columns, name)
			if !p.curTokenIs(TokenComma) {
				break
			}
			p.nextToken()
		}
		if err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		if err := p.expect(TokenValues); err != nil {
			return nil, err
		}
		if err := p.expect(TokenLParen); err != nil {
			return nil, err
		}
		for {
			value, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			stmt.Values = append(stmt.Values, value)
			if !p.curTokenIs(TokenComma) {
				break
			}
			p.nextToken()
		}
		if err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		if len(stmt.Values) != len(stmt.Columns) {
			return nil, p.errorf(p.curToken, "%d columns but %d values", len(stmt.Columns), len(stmt.Values))
		}
	}

	for {
		if p.curTokenIs(TokenIf) {
			if stmt.IfNotExists, err = p.parseIfNotExists(); err != nil {
				return nil, err
			}
		} else if p.curTokenIs(TokenUsing) {
			if err := p.parseUsing(&stmt.Using); err != nil {
				return nil, err
			}
		} else {
			break
		}
	}
	return stmt, nil
}

func (p *Parser) parseUpdate() (*UpdateStatement, error) {
	p.nextToken() // Skip UPDATE

	stmt := &UpdateStatement{}
	var err error
	if stmt.Keyspace, stmt.Table, err = p.parseQualifiedName(); err != nil {
		return nil, err
	}

	if p.curTokenIs(TokenUsing) {
		if err := p.parseUsing(&stmt.Using); err != nil {
			return nil, err
		}
	}

	if err := p.expect(TokenSet); err != nil {
		return nil, err
	}
	for {
		name, err := p.parseIdent("column")
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokenEq); err != nil {
			return nil, err
		}
		value, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		stmt.Assignments = append(stmt.Assignments, Assignment{Column: name, Value: value})
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}

	if err := p.expect(TokenWhere); err != nil {
		return nil, err
	}
	if stmt.Where, err = p.parseRelations(); err != nil {
		return nil, err
	}

	stmt.IfExists, stmt.Conditions, err = p.parseIfClause()
	if err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseDelete() (*DeleteStatement, error) {
	p.nextToken() // Skip DELETE

	stmt := &DeleteStatement{}
	for identLike(p.curToken.Type) {
		stmt.Columns = append(stmt.Columns, identLiteral(p.curToken))
		p.nextToken()
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}

	if err := p.expect(TokenFrom); err != nil {
		return nil, err
	}
	var err error
	if stmt.Keyspace, stmt.Table, err = p.parseQualifiedName(); err != nil {
		return nil, err
	}

	if p.curTokenIs(TokenUsing) {
		if err := p.parseUsing(&stmt.Using); err != nil {
			return nil, err
		}
	}

	if err := p.expect(TokenWhere); err != nil {
		return nil, err
	}
	if stmt.Where, err = p.parseRelations(); err != nil {
		return nil, err
	}

	stmt.IfExists, stmt.Conditions, err = p.parseIfClause()
	if err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseSelect() (*SelectStatement, error) {
	p.nextToken() // Skip SELECT

	stmt := &SelectStatement{}
	if p.curTokenIs(TokenJson) {
		stmt.JSON = true
		p.nextToken()
	}

	var err error
	if stmt.Selectors, err = p.parseSelectors(); err != nil {
		return nil, err
	}

	if err := p.expect(TokenFrom); err != nil {
		return nil, err
	}
	if stmt.Keyspace, stmt.Table, err = p.parseQualifiedName(); err != nil {
		return nil, err
	}

	if p.curTokenIs(TokenWhere) {
		p.nextToken()
		if stmt.Where, err = p.parseRelations(); err != nil {
			return nil, err
		}
	}

	if p.curTokenIs(TokenOrder) {
		p.nextToken()
		if err := p.expect(TokenBy); err != nil {
			return nil, err
		}
		for {
			name, err := p.parseIdent("ordering column")
			if err != nil {
				return nil, err
			}
			ord := Ordering{Column: name}
			if p.curTokenIs(TokenDesc) {
				ord.Desc = true
				p.nextToken()
			} else if p.curTokenIs(TokenAsc) {
				p.nextToken()
			}
			stmt.OrderBy = append(stmt.OrderBy, ord)
			if !p.curTokenIs(TokenComma) {
				break
			}
			p.nextToken()
		}
	}

	if p.curTokenIs(TokenLimit) {
		p.nextToken()
		if stmt.Limit, err = p.parseTerm(); err != nil {
			return nil, err
		}
	}

	if p.curTokenIs(TokenAllow) {
		p.nextToken()
		if err := p.expect(TokenFiltering); err != nil {
			return nil, err
		}
		stmt.AllowFiltering = true
	}
	return stmt, nil
}

// parseSelectors parses the SELECT projection list.
func (p *Parser) parseSelectors() ([]Selector, error) {
	if p.curTokenIs(TokenStar) {
		p.nextToken()
		return []Selector{{Star: true}}, nil
	}

	var selectors []Selector
	for {
		sel := Selector{}
		if !identLike(p.curToken.Type) {
			return nil, p.errorf(p.curToken, "expected selector")
		}
		name := identLiteral(p.curToken)
		p.nextToken()

		if p.curTokenIs(TokenLParen) {
			if name != "tojson" {
				return nil, p.errorf(p.curToken, "unknown function %q", name)
			}
			p.nextToken()
			col, err := p.parseIdent("column")
			if err != nil {
				return nil, err
			}
			if err := p.expect(TokenRParen); err != nil {
				return nil, err
			}
			sel.ToJson = true
			sel.Column = col
		} else {
			sel.Column = name
		}

		if p.curTokenIs(TokenAs) {
			p.nextToken()
			alias, err := p.parseIdent("alias")
			if err != nil {
				return nil, err
			}
			sel.Alias = alias
		}

		selectors = append(selectors, sel)
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	return selectors, nil
}

// parseRelations parses a conjunction of WHERE clause comparisons.
func (p *Parser) parseRelations() ([]Relation, error) {
	var relations []Relation
	for {
		rel := Relation{}
		var err error
		if rel.Column, err = p.parseIdent("column"); err != nil {
			return nil, err
		}

		switch p.curToken.Type {
		case TokenEq:
			rel.Op = OpEq
		case TokenLt:
			rel.Op = OpLt
		case TokenLe:
			rel.Op = OpLe
		case TokenGt:
			rel.Op = OpGt
		case TokenGe:
			rel.Op = OpGe
		case TokenIn:
			rel.Op = OpIn
		default:
			return nil, p.errorf(p.curToken, "expected comparison operator")
		}
		p.nextToken()

		if rel.Op == OpIn {
			if p.curTokenIs(TokenQuestion) || p.curTokenIs(TokenColon) {
				// The whole alternative list is a single bound value.
				value, err := p.parseTerm()
				if err != nil {
					return nil, err
				}
				rel.Value = value
			} else {
				if err := p.expect(TokenLParen); err != nil {
					return nil, err
				}
				if !p.curTokenIs(TokenRParen) {
					for {
						value, err := p.parseTerm()
						if err != nil {
							return nil, err
						}
						rel.Values = append(rel.Values, value)
						if !p.curTokenIs(TokenComma) {
							break
						}
						p.nextToken()
					}
				}
				if err := p.expect(TokenRParen); err != nil {
					return nil, err
				}
			}
		} else {
			if rel.Value, err = p.parseTerm(); err != nil {
				return nil, err
			}
		}

		relations = append(relations, rel)
		if !p.curTokenIs(TokenAnd) {
			return relations, nil
		}
		p.nextToken()
	}
}

// parseIfClause parses an optional lightweight transaction clause:
// either IF EXISTS or a conjunction of column equality checks.
func (p *Parser) parseIfClause() (bool, []Condition, error) {
	if !p.curTokenIs(TokenIf) {
		return false, nil, nil
	}
	p.nextToken()

	if p.curTokenIs(TokenExists) {
		p.nextToken()
		return true, nil, nil
	}

	var conditions []Condition
	for {
		cond := Condition{}
		var err error
		if cond.Column, err = p.parseIdent("column"); err != nil {
			return false, nil, err
		}
		if err := p.expect(TokenEq); err != nil {
			return false, nil, err
		}
		if cond.Value, err = p.parseTerm(); err != nil {
			return false, nil, err
		}
		conditions = append(conditions, cond)
		if !p.curTokenIs(TokenAnd) {
			return false, conditions, nil
		}
		p.nextToken()
	}
}

// parseUsing parses `USING TIMESTAMP t [AND TTL n]` in either order.
func (p *Parser) parseUsing(using *UsingClause) error {
	p.nextToken() // Skip USING
	for {
		switch p.curToken.Type {
		case TokenTimestamp:
			p.nextToken()
			value, err := p.parseTerm()
			if err != nil {
				return err
			}
			using.Timestamp = value
		case TokenTtl:
			p.nextToken()
			value, err := p.parseTerm()
			if err != nil {
				return err
			}
			using.TTL = value
		default:
			return p.errorf(p.curToken, "expected TIMESTAMP or TTL")
		}
		if !p.curTokenIs(TokenAnd) {
			return nil
		}
		p.nextToken()
	}
}

func (p *Parser) parseBatch() (*BatchStatement, error) {
	p.nextToken() // Skip BEGIN

	stmt := &BatchStatement{}
	switch p.curToken.Type {
	case TokenUnlogged:
		stmt.Unlogged = true
		p.nextToken()
	case TokenCounter:
		stmt.Counter = true
		p.nextToken()
	case TokenLogged:
		p.nextToken()
	}
	if err := p.expect(TokenBatch); err != nil {
		return nil, err
	}

	if p.curTokenIs(TokenUsing) {
		if err := p.parseUsing(&stmt.Using); err != nil {
			return nil, err
		}
	}

	for !p.curTokenIs(TokenApply) {
		if p.curTokenIs(TokenEOF) {
			return nil, p.errorf(p.curToken, "expected APPLY BATCH")
		}
		child, err := p.ParseStatement()
		if err != nil {
			return nil, err
		}
		switch child.(type) {
		case *InsertStatement, *UpdateStatement, *DeleteStatement:
		default:
			return nil, p.errorf(p.curToken, "only INSERT, UPDATE and DELETE are allowed in a batch")
		}
		stmt.Children = append(stmt.Children, child)
		if p.curTokenIs(TokenSemicolon) {
			p.nextToken()
		}
	}

	p.nextToken() // Skip APPLY
	if err := p.expect(TokenBatch); err != nil {
		return nil, err
	}
	return stmt, nil
}

// parseTerm parses a literal or bind marker.
func (p *Parser) parseTerm() (Term, error) {
	switch p.curToken.Type {
	case TokenInteger:
		lit := &Literal{Kind: LitInteger, Text: p.curToken.Literal}
		p.nextToken()
		return lit, nil
	case TokenFloat:
		lit := &Literal{Kind: LitFloat, Text: p.curToken.Literal}
		p.nextToken()
		return lit, nil
	case TokenString:
		lit := &Literal{Kind: LitString, Text: p.curToken.Literal}
		p.nextToken()
		return lit, nil
	case TokenBlobLit:
		lit := &Literal{Kind: LitBlob, Text: p.curToken.Literal}
		p.nextToken()
		return lit, nil
	case TokenUuidLit:
		lit := &Literal{Kind: LitUuid, Text: p.curToken.Literal}
		p.nextToken()
		return lit, nil
	case TokenTrue:
		p.nextToken()
		return &Literal{Kind: LitBoolean, Text: "true"}, nil
	case TokenFalse:
		p.nextToken()
		return &Literal{Kind: LitBoolean, Text: "false"}, nil
	case TokenNull:
		p.nextToken()
		return &Literal{Kind: LitNull}, nil
	case TokenQuestion:
		p.nextToken()
		return p.newMarker(""), nil
	case TokenColon:
		p.nextToken()
		name, err := p.parseIdent("bind marker")
		if err != nil {
			return nil, err
		}
		return p.newMarker(name), nil
	case TokenLBracket:
		return p.parseListLiteral()
	case TokenLBrace:
		return p.parseBraceLiteral()
	case TokenLParen:
		return p.parseTupleLiteral()
	default:
		return nil, p.errorf(p.curToken, "expected value")
	}
}

func (p *Parser) parseListLiteral() (Term, error) {
	p.nextToken() // Skip [
	lit := &Literal{Kind: LitList}
	if !p.curTokenIs(TokenRBracket) {
		for {
			elem, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			lit.Elems = append(lit.Elems, elem)
			if !p.curTokenIs(TokenComma) {
				break
			}
			p.nextToken()
		}
	}
	if err := p.expect(TokenRBracket); err != nil {
		return nil, err
	}
	return lit, nil
}

// parseBraceLiteral parses a set or map literal. Empty braces parse as an
// empty map; the declared column type decides the actual collection kind.
func (p *Parser) parseBraceLiteral() (Term, error) {
	p.nextToken() // Skip {
	if p.curTokenIs(TokenRBrace) {
		p.nextToken()
		return &Literal{Kind: LitMap}, nil
	}

	first, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	if p.curTokenIs(TokenColon) {
		lit := &Literal{Kind: LitMap}
		p.nextToken()
		value, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		lit.Entries = append(lit.Entries, MapEntry{Key: first, Val: value})
		for p.curTokenIs(TokenComma) {
			p.nextToken()
			key, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			if err := p.expect(TokenColon); err != nil {
				return nil, err
			}
			value, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			lit.Entries = append(lit.Entries, MapEntry{Key: key, Val: value})
		}
		if err := p.expect(TokenRBrace); err != nil {
			return nil, err
		}
		return lit, nil
	}

	lit := &Literal{Kind: LitSet, Elems: []Term{first}}
	for p.curTokenIs(TokenComma) {
		p.nextToken()
		elem, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		lit.Elems = append(lit.Elems, elem)
	}
	if err := p.expect(TokenRBrace); err != nil {
		return nil, err
	}
	return lit, nil
}

func (p *Parser) parseTupleLiteral() (Term, error) {
	p.nextToken() // Skip (
	lit := &Literal{Kind: LitTuple}
	for {
		elem, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		lit.Elems = append(lit.Elems, elem)
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	if err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return lit, nil
}
