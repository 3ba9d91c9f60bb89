package parser

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/RibbitDB/core/errors"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/schema"
)

const snippetRadius = 25

const supportedStatements = "SELECT, INSERT, UPDATE, DELETE, CREATE, DROP, ALTER, PRAGMA, " +
	"BEGIN, COMMIT, ROLLBACK, SAVEPOINT, RELEASE, DESCRIBE, SHOW, EXPLAIN"

var aggregates = map[string]bool{"COUNT": true, "SUM": true, "AVG": true, "MIN": true, "MAX": true}

// Parser implements a recursive descent parser for SQL.
type Parser struct {
	input   string
	tokens  []Token
	current int
	params  int
}

// NewParser creates a new parser for the given SQL input.
func NewParser(input string) *Parser {
	return &Parser{input: input}
}

// Parse parses the SQL input and returns a list of statements.
func (p *Parser) Parse() ([]Statement, error) {
	p.tokens = Tokenize(p.input)
	if last := p.tokens[len(p.tokens)-1]; last.Type == TK_ILLEGAL {
		p.current = len(p.tokens) - 1
		return nil, p.errorAt(last, fmt.Sprintf("Unexpected character '%s'", last.Lexeme), "")
	}

	statements := make([]Statement, 0)

	for !p.isAtEnd() {
		if p.matchSymbol(";") {
			continue // skip empty statements
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return statements, err
		}
		statements = append(statements, stmt)

		if !p.isAtEnd() && !p.checkSymbol(";") {
			return statements, p.expected("';' or end of statement")
		}
	}

	return statements, nil
}

// ParamCount returns the number of '?' placeholders seen by Parse.
func (p *Parser) ParamCount() int {
	return p.params
}

// parseStatement parses a single SQL statement.
func (p *Parser) parseStatement() (Statement, error) {
	tok := p.peek()
	if tok.Type != TK_KEYWORD {
		return nil, p.errorAt(tok, "Unsupported SQL statement: "+tok.Lexeme, "Supported commands: "+supportedStatements)
	}
	switch {
	case p.matchKeyword("SELECT"):
		return p.parseSelect()
	case p.matchKeyword("INSERT"):
		return p.parseInsert()
	case p.matchKeyword("UPDATE"):
		return p.parseUpdate()
	case p.matchKeyword("DELETE"):
		return p.parseDelete()
	case p.matchKeyword("CREATE"):
		return p.parseCreate()
	case p.matchKeyword("DROP"):
		return p.parseDrop()
	case p.matchKeyword("ALTER"):
		return p.parseAlter()
	case p.matchKeyword("PRAGMA"):
		return p.parsePragma()
	case p.matchKeyword("BEGIN"):
		p.matchKeyword("TRANSACTION")
		return &BeginStmt{}, nil
	case p.matchKeyword("COMMIT"):
		p.matchKeyword("TRANSACTION")
		return &CommitStmt{}, nil
	case p.matchKeyword("ROLLBACK"):
		return p.parseRollback()
	case p.matchKeyword("SAVEPOINT"):
		name, err := p.identifier("savepoint name")
		if err != nil {
			return nil, err
		}
		return &SavepointStmt{Name: name}, nil
	case p.matchKeyword("RELEASE"):
		p.matchKeyword("SAVEPOINT")
		name, err := p.identifier("savepoint name")
		if err != nil {
			return nil, err
		}
		return &ReleaseStmt{Name: name}, nil
	case p.matchKeyword("DESCRIBE", "DESC"):
		name, err := p.identifier("table name")
		if err != nil {
			return nil, err
		}
		return &DescribeStmt{Table: name}, nil
	case p.matchKeyword("SHOW"):
		return p.parseShow()
	case p.matchKeyword("EXPLAIN"):
		// Skip QUERY PLAN and parse the actual statement
		if p.checkWord("QUERY") && strings.EqualFold(p.peekAhead(1).Lexeme, "PLAN") {
			p.advance()
			p.advance()
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		return &ExplainStmt{Stmt: stmt}, nil
	}
	return nil, p.errorAt(tok, "Unsupported SQL statement: "+tok.Value, "Supported commands: "+supportedStatements)
}

// =============================================================================
// SELECT
// =============================================================================

func (p *Parser) parseSelect() (*SelectStmt, error) {
	stmt := &SelectStmt{}

	// DISTINCT or ALL
	if p.matchKeyword("DISTINCT") {
		stmt.Distinct = true
	} else {
		p.matchKeyword("ALL")
	}

	cols, err := p.parseResultColumns()
	if err != nil {
		return nil, err
	}
	stmt.Columns = cols

	if p.matchKeyword("FROM") {
		ref, err := p.parseTableRef()
		if err != nil {
			return nil, err
		}
		stmt.From = ref
		for p.isJoinKeyword() {
			join, err := p.parseJoin()
			if err != nil {
				return nil, err
			}
			stmt.Joins = append(stmt.Joins, *join)
		}
	}

	if p.matchKeyword("WHERE") {
		if stmt.Where, err = p.parsePredicate(false); err != nil {
			return nil, err
		}
	}

	if p.matchKeyword("GROUP") {
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			ref, err := p.parseColumnRef()
			if err != nil {
				return nil, err
			}
			stmt.GroupBy = append(stmt.GroupBy, ref)
			if !p.matchSymbol(",") {
				break
			}
		}
		if p.matchKeyword("HAVING") {
			if stmt.Having, err = p.parsePredicate(true); err != nil {
				return nil, err
			}
		}
	}

	if p.matchKeyword("ORDER") {
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		if stmt.OrderBy, err = p.parseOrderBy(); err != nil {
			return nil, err
		}
	}

	if p.matchKeyword("LIMIT") {
		if stmt.Limit, err = p.parseCount("LIMIT"); err != nil {
			return nil, err
		}
		if p.matchKeyword("OFFSET") {
			if stmt.Offset, err = p.parseCount("OFFSET"); err != nil {
				return nil, err
			}
		}
	}

	if p.matchKeyword("UNION") {
		union := &Union{All: p.matchKeyword("ALL")}
		if err := p.expectKeyword("SELECT"); err != nil {
			return nil, err
		}
		if union.Select, err = p.parseSelect(); err != nil {
			return nil, err
		}
		stmt.Union = union
	}

	return stmt, nil
}

func (p *Parser) parseResultColumns() ([]ResultColumn, error) {
	var cols []ResultColumn
	for {
		var col ResultColumn
		switch {
		case p.check(TK_STAR):
			p.advance()
			col.Star = true
		case p.isName(p.peek()) && p.peekAhead(1).Lexeme == "." && p.peekAhead(2).Type == TK_STAR:
			col.Star = true
			col.Table = p.nameOf(p.advance())
			p.advance()
			p.advance()
		default:
			expr, err := p.parseOperand(true)
			if err != nil {
				return nil, err
			}
			col.Expr = expr
			alias, err := p.parseAlias()
			if err != nil {
				return nil, err
			}
			col.Alias = alias
		}
		cols = append(cols, col)
		if !p.matchSymbol(",") {
			return cols, nil
		}
	}
}

// parseAlias reads [AS] alias. Without AS only a plain identifier is taken.
func (p *Parser) parseAlias() (string, error) {
	if p.matchKeyword("AS") {
		return p.identifier("alias")
	}
	if p.check(TK_ID) {
		return p.nameOf(p.advance()), nil
	}
	return "", nil
}

func (p *Parser) parseTableRef() (*TableRef, error) {
	name, err := p.identifier("table name")
	if err != nil {
		return nil, err
	}
	alias, err := p.parseAlias()
	if err != nil {
		return nil, err
	}
	return &TableRef{Name: name, Alias: alias}, nil
}

func (p *Parser) isJoinKeyword() bool {
	return p.checkKeyword("JOIN", "INNER", "LEFT", "RIGHT")
}

func (p *Parser) parseJoin() (*Join, error) {
	join := &Join{Type: JoinInner}
	switch {
	case p.matchKeyword("INNER"):
	case p.matchKeyword("LEFT"):
		join.Type = JoinLeft
		p.matchKeyword("OUTER")
	case p.matchKeyword("RIGHT"):
		join.Type = JoinRight
		p.matchKeyword("OUTER")
	}
	if err := p.expectKeyword("JOIN"); err != nil {
		return nil, err
	}
	ref, err := p.parseTableRef()
	if err != nil {
		return nil, err
	}
	join.Table = *ref
	if err := p.expectKeyword("ON"); err != nil {
		return nil, err
	}
	if join.Left, err = p.parseColumnRef(); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("="); err != nil {
		return nil, err
	}
	if join.Right, err = p.parseColumnRef(); err != nil {
		return nil, err
	}
	return join, nil
}

func (p *Parser) parseOrderBy() ([]OrderTerm, error) {
	var terms []OrderTerm
	for {
		var term OrderTerm
		if p.isAggregateCall() {
			agg, err := p.parseAggregate()
			if err != nil {
				return nil, err
			}
			term.Expr = agg
		} else if tok := p.peek(); tok.Type == TK_NUMBER {
			// A column position in the select list, counted from 1.
			n, err := strconv.ParseInt(tok.Lexeme, 10, 64)
			if err != nil {
				return nil, p.expected("column position in ORDER BY")
			}
			p.advance()
			term.Expr = &Literal{Value: n}
		} else {
			ref, err := p.parseColumnRef()
			if err != nil {
				return nil, err
			}
			term.Expr = ref
		}
		if p.matchKeyword("DESC") {
			term.Desc = true
		} else {
			p.matchKeyword("ASC")
		}
		terms = append(terms, term)
		if !p.matchSymbol(",") {
			return terms, nil
		}
	}
}

// parseCount reads a LIMIT or OFFSET value: a non-negative integer or a
// parameter.
func (p *Parser) parseCount(clause string) (Operand, error) {
	tok := p.peek()
	if tok.Type == TK_PARAM {
		return p.parseOperand(false)
	}
	if tok.Type == TK_NUMBER {
		n, err := strconv.ParseInt(tok.Lexeme, 10, 64)
		if err == nil && n >= 0 {
			p.advance()
			return &Literal{Value: n}, nil
		}
	}
	return nil, p.expected("non-negative integer after " + clause)
}

// =============================================================================
// Predicates and operands
// =============================================================================

// parsePredicate parses a flat AND/OR chain. Aggregate calls are operands
// only when allowAggregates is set (HAVING).
func (p *Parser) parsePredicate(allowAggregates bool) (*Predicate, error) {
	first, err := p.parseCondition(allowAggregates)
	if err != nil {
		return nil, err
	}
	pred := &Predicate{First: first}
	for {
		var conj Conj
		switch {
		case p.matchKeyword("AND"):
			conj = ConjAnd
		case p.matchKeyword("OR"):
			conj = ConjOr
		default:
			return pred, nil
		}
		cond, err := p.parseCondition(allowAggregates)
		if err != nil {
			return nil, err
		}
		pred.Rest = append(pred.Rest, Link{Conj: conj, Cond: cond})
	}
}

func (p *Parser) parseCondition(allowAggregates bool) (*Condition, error) {
	left, err := p.parseOperand(allowAggregates)
	if err != nil {
		return nil, err
	}
	cond := &Condition{Left: left}

	if p.matchKeyword("IS") {
		cond.Op = OpIsNull
		cond.Not = p.matchKeyword("NOT")
		if err := p.expectKeyword("NULL"); err != nil {
			return nil, err
		}
		return cond, nil
	}

	cond.Not = p.matchKeyword("NOT")
	switch {
	case p.matchKeyword("LIKE"):
		cond.Op = OpLike
		cond.Right, err = p.parseOperand(allowAggregates)
		return cond, err
	case p.matchKeyword("IN"):
		cond.Op = OpIn
		if err := p.expectSymbol("("); err != nil {
			return nil, err
		}
		for {
			item, err := p.parseOperand(false)
			if err != nil {
				return nil, err
			}
			cond.List = append(cond.List, item)
			if !p.matchSymbol(",") {
				break
			}
		}
		return cond, p.expectSymbol(")")
	case p.matchKeyword("BETWEEN"):
		cond.Op = OpBetween
		if cond.Low, err = p.parseOperand(allowAggregates); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("AND"); err != nil {
			return nil, err
		}
		cond.High, err = p.parseOperand(allowAggregates)
		return cond, err
	}
	if cond.Not {
		return nil, p.expected("LIKE, IN or BETWEEN after NOT")
	}

	op, ok := comparison(p.peek())
	if !ok {
		return nil, p.expected("comparison operator")
	}
	p.advance()
	cond.Op = op
	cond.Right, err = p.parseOperand(allowAggregates)
	return cond, err
}

func comparison(tok Token) (CondOp, bool) {
	if tok.Type != TK_SYMBOL && tok.Type != TK_OPERATOR {
		return 0, false
	}
	switch tok.Lexeme {
	case "=":
		return OpEq, true
	case "!=", "<>":
		return OpNe, true
	case "<":
		return OpLt, true
	case "<=":
		return OpLe, true
	case ">":
		return OpGt, true
	case ">=":
		return OpGe, true
	}
	return 0, false
}

// parseOperand parses a literal, parameter, time function, column
// reference or, when allowed, an aggregate call.
func (p *Parser) parseOperand(allowAggregates bool) (Operand, error) {
	tok := p.peek()
	switch tok.Type {
	case TK_NUMBER:
		p.advance()
		return &Literal{Value: numberValue(tok.Lexeme)}, nil
	case TK_STRING:
		p.advance()
		return &Literal{Value: tok.Value}, nil
	case TK_BLOB:
		b, err := hex.DecodeString(tok.Value)
		if err != nil {
			return nil, p.errorAt(tok, "Invalid blob literal "+tok.Lexeme, "")
		}
		p.advance()
		return &Literal{Value: b}, nil
	case TK_PARAM:
		p.advance()
		param := &Param{Index: p.params}
		p.params++
		return param, nil
	case TK_KEYWORD:
		switch tok.Value {
		case "NULL":
			p.advance()
			return &Literal{}, nil
		case "TRUE":
			p.advance()
			return &Literal{Value: int64(1)}, nil
		case "FALSE":
			p.advance()
			return &Literal{Value: int64(0)}, nil
		case "CURRENT_TIMESTAMP", "CURRENT_DATE", "CURRENT_TIME":
			p.advance()
			f, _ := schema.ParseTimeFunc(tok.Value)
			return &TimeFuncExpr{Func: f}, nil
		}
		if p.isAggregateCall() {
			if !allowAggregates {
				return nil, p.errorAt(tok, "Aggregate "+tok.Value+" is not allowed here", "Aggregates may appear in the select list, HAVING and ORDER BY")
			}
			return p.parseAggregate()
		}
	}
	if p.isName(tok) {
		return p.parseColumnRef()
	}
	return nil, p.expected("value or column name")
}

func numberValue(lexeme string) any {
	if n, err := strconv.ParseInt(lexeme, 10, 64); err == nil {
		return n
	}
	f, _ := strconv.ParseFloat(lexeme, 64)
	return f
}

func (p *Parser) isAggregateCall() bool {
	tok := p.peek()
	return tok.Type == TK_KEYWORD && aggregates[tok.Value] && p.peekAhead(1).Lexeme == "("
}

func (p *Parser) parseAggregate() (*Aggregate, error) {
	agg := &Aggregate{Func: p.advance().Value}
	p.advance() // consume '('
	if p.check(TK_STAR) {
		if agg.Func != "COUNT" {
			return nil, p.expected("column name in " + agg.Func)
		}
		p.advance()
		agg.Star = true
	} else {
		ref, err := p.parseColumnRef()
		if err != nil {
			return nil, err
		}
		agg.Arg = ref
	}
	return agg, p.expectSymbol(")")
}

func (p *Parser) parseColumnRef() (*ColumnRef, error) {
	name, err := p.identifier("column name")
	if err != nil {
		return nil, err
	}
	if p.matchSymbol(".") {
		col, err := p.identifier("column name")
		if err != nil {
			return nil, err
		}
		return &ColumnRef{Table: name, Column: col}, nil
	}
	return &ColumnRef{Column: name}, nil
}

// =============================================================================
// INSERT, UPDATE, DELETE
// =============================================================================

func (p *Parser) parseInsert() (*InsertStmt, error) {
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	table, err := p.identifier("table name")
	if err != nil {
		return nil, err
	}
	stmt := &InsertStmt{Table: table}

	if p.matchSymbol("(") {
		if stmt.Columns, err = p.parseNameList("column name"); err != nil {
			return nil, err
		}
	}

	if err := p.expectKeyword("VALUES"); err != nil {
		return nil, err
	}
	for {
		if err := p.expectSymbol("("); err != nil {
			return nil, err
		}
		var tuple []Operand
		for {
			v, err := p.parseOperand(false)
			if err != nil {
				return nil, err
			}
			tuple = append(tuple, v)
			if !p.matchSymbol(",") {
				break
			}
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		stmt.Values = append(stmt.Values, tuple)
		if !p.matchSymbol(",") {
			return stmt, nil
		}
	}
}

func (p *Parser) parseUpdate() (*UpdateStmt, error) {
	table, err := p.identifier("table name")
	if err != nil {
		return nil, err
	}
	stmt := &UpdateStmt{Table: table}
	if err := p.expectKeyword("SET"); err != nil {
		return nil, err
	}
	for {
		col, err := p.identifier("column name")
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol("="); err != nil {
			return nil, err
		}
		v, err := p.parseOperand(false)
		if err != nil {
			return nil, err
		}
		stmt.Set = append(stmt.Set, Assignment{Column: col, Value: v})
		if !p.matchSymbol(",") {
			break
		}
	}
	if p.matchKeyword("WHERE") {
		if stmt.Where, err = p.parsePredicate(false); err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

func (p *Parser) parseDelete() (*DeleteStmt, error) {
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.identifier("table name")
	if err != nil {
		return nil, err
	}
	stmt := &DeleteStmt{Table: table}
	if p.matchKeyword("WHERE") {
		if stmt.Where, err = p.parsePredicate(false); err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

// =============================================================================
// CREATE, DROP, ALTER
// =============================================================================

func (p *Parser) parseCreate() (Statement, error) {
	switch {
	case p.matchKeyword("TABLE"):
		return p.parseCreateTable()
	case p.matchKeyword("UNIQUE"):
		if err := p.expectKeyword("INDEX"); err != nil {
			return nil, err
		}
		return p.parseCreateIndex(true)
	case p.matchKeyword("INDEX"):
		return p.parseCreateIndex(false)
	case p.matchKeyword("VIEW"):
		return p.parseCreateView()
	case p.checkKeyword("TRIGGER"):
		return nil, errors.NewUnsupported("CREATE TRIGGER", "triggers are not supported")
	}
	tok := p.peek()
	return nil, p.errorAt(tok, "Unsupported CREATE statement: "+tok.Lexeme, "Supported: CREATE TABLE, CREATE VIEW, CREATE INDEX")
}

// parseIfNotExists consumes IF NOT EXISTS. A bare EXISTS gets a hint.
func (p *Parser) parseIfNotExists() (bool, error) {
	if p.checkKeyword("IF") && p.peekAhead(1).Value == "NOT" {
		p.advance()
		p.advance()
		return true, p.expectKeyword("EXISTS")
	}
	if p.checkKeyword("EXISTS") {
		return false, p.errorAt(p.peek(), "Expected name, got 'EXISTS'", "Missing 'IF' keyword before 'EXISTS'")
	}
	return false, nil
}

func (p *Parser) parseCreateTable() (*CreateTableStmt, error) {
	stmt := &CreateTableStmt{}
	var err error
	if stmt.IfNotExists, err = p.parseIfNotExists(); err != nil {
		return nil, err
	}
	if stmt.Name, err = p.identifier("table name"); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}

	for {
		if p.isTableConstraint() {
			if err := p.parseTableConstraint(stmt); err != nil {
				return nil, err
			}
		} else {
			col, err := p.parseColumnDef()
			if err != nil {
				return nil, err
			}
			stmt.Columns = append(stmt.Columns, col)
		}
		if !p.matchSymbol(",") {
			break
		}
	}

	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) isTableConstraint() bool {
	return p.checkKeyword("CONSTRAINT", "PRIMARY", "FOREIGN", "UNIQUE", "CHECK")
}

func (p *Parser) parseTableConstraint(stmt *CreateTableStmt) error {
	if p.matchKeyword("CONSTRAINT") {
		if _, err := p.identifier("constraint name"); err != nil {
			return err
		}
	}

	switch {
	case p.matchKeyword("PRIMARY"):
		if err := p.expectKeyword("KEY"); err != nil {
			return err
		}
		return p.applyToColumns(stmt, "PRIMARY KEY", func(c *ColumnDef) { c.PrimaryKey = true })
	case p.matchKeyword("UNIQUE"):
		return p.applyToColumns(stmt, "UNIQUE", func(c *ColumnDef) { c.Unique = true })
	case p.matchKeyword("FOREIGN"):
		if err := p.expectKeyword("KEY"); err != nil {
			return err
		}
		if err := p.expectSymbol("("); err != nil {
			return err
		}
		tok := p.peek()
		name, err := p.identifier("column name")
		if err != nil {
			return err
		}
		if err := p.expectSymbol(")"); err != nil {
			return err
		}
		col := findColumn(stmt.Columns, name)
		if col == nil {
			return p.errorAt(tok, fmt.Sprintf("Unknown column '%s' in FOREIGN KEY constraint", name), "Declare the column before the constraint")
		}
		if err := p.expectKeyword("REFERENCES"); err != nil {
			return err
		}
		col.References, err = p.parseReference()
		return err
	case p.matchKeyword("CHECK"):
		text, err := p.parseParenthesized()
		if err != nil {
			return err
		}
		stmt.Checks = append(stmt.Checks, text)
		return nil
	}
	return p.expected("PRIMARY KEY, FOREIGN KEY, UNIQUE or CHECK")
}

// applyToColumns parses "(c, ...)" and applies set to each named column.
func (p *Parser) applyToColumns(stmt *CreateTableStmt, constraint string, set func(*ColumnDef)) error {
	if err := p.expectSymbol("("); err != nil {
		return err
	}
	for {
		tok := p.peek()
		name, err := p.identifier("column name")
		if err != nil {
			return err
		}
		col := findColumn(stmt.Columns, name)
		if col == nil {
			return p.errorAt(tok, fmt.Sprintf("Unknown column '%s' in %s constraint", name, constraint), "Declare the column before the constraint")
		}
		set(col)
		if !p.matchSymbol(",") {
			break
		}
	}
	return p.expectSymbol(")")
}

func findColumn(cols []*ColumnDef, name string) *ColumnDef {
	for _, c := range cols {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}

func (p *Parser) parseColumnDef() (*ColumnDef, error) {
	name, err := p.identifier("column name")
	if err != nil {
		return nil, err
	}
	col := &ColumnDef{Name: name, Type: p.parseTypeName()}

	for {
		switch {
		case p.matchKeyword("PRIMARY"):
			if err := p.expectKeyword("KEY"); err != nil {
				return nil, err
			}
			col.PrimaryKey = true
			if !p.matchKeyword("ASC") {
				p.matchKeyword("DESC")
			}
			if p.matchKeyword("AUTOINCREMENT") {
				col.AutoIncrement = true
			}
		case p.matchKeyword("AUTOINCREMENT"):
			col.AutoIncrement = true
		case p.matchKeyword("NOT"):
			if err := p.expectKeyword("NULL"); err != nil {
				return nil, err
			}
			col.NotNull = true
		case p.matchKeyword("NULL"):
		case p.matchKeyword("UNIQUE"):
			col.Unique = true
		case p.matchKeyword("DEFAULT"):
			v, err := p.parseDefault()
			if err != nil {
				return nil, err
			}
			col.HasDefault = true
			col.Default = v
		case p.matchKeyword("CHECK"):
			if col.Check, err = p.parseParenthesized(); err != nil {
				return nil, err
			}
		case p.matchKeyword("REFERENCES"):
			if col.References, err = p.parseReference(); err != nil {
				return nil, err
			}
		case p.matchKeyword("CONSTRAINT"):
			if _, err := p.identifier("constraint name"); err != nil {
				return nil, err
			}
		default:
			return col, nil
		}
	}
}

// parseTypeName reads type words and an optional "(n[, m])" size and
// returns the normalized declaration, or "" when no type is declared.
func (p *Parser) parseTypeName() string {
	var words []string
	for p.check(TK_ID) || (p.check(TK_KEYWORD) && !reserved[p.peek().Value] && !p.checkKeyword("AUTOINCREMENT")) {
		words = append(words, p.advance().Lexeme)
	}
	if len(words) == 0 {
		return ""
	}
	typ := strings.Join(words, " ")
	if p.checkSymbol("(") && p.peekAhead(1).Type == TK_NUMBER {
		p.advance()
		sizes := []string{p.advance().Lexeme}
		if p.matchSymbol(",") && p.check(TK_NUMBER) {
			sizes = append(sizes, p.advance().Lexeme)
		}
		p.matchSymbol(")")
		typ += "(" + strings.Join(sizes, ",") + ")"
	}
	if n, err := schema.ParseTypeName(typ); err == nil {
		return n.String()
	}
	return typ
}

func (p *Parser) parseDefault() (any, error) {
	if p.matchSymbol("(") {
		v, err := p.parseDefault()
		if err != nil {
			return nil, err
		}
		return v, p.expectSymbol(")")
	}
	tok := p.peek()
	literal := tok.Type == TK_NUMBER || tok.Type == TK_STRING || tok.Type == TK_BLOB ||
		p.checkKeyword("NULL", "TRUE", "FALSE", "CURRENT_TIMESTAMP", "CURRENT_DATE", "CURRENT_TIME")
	if !literal {
		return nil, p.expected("default value")
	}
	v, err := p.parseOperand(false)
	if err != nil {
		return nil, err
	}
	if f, ok := v.(*TimeFuncExpr); ok {
		return f.Func, nil
	}
	return v.(*Literal).Value, nil
}

// parseParenthesized returns the source text between balanced parentheses.
func (p *Parser) parseParenthesized() (string, error) {
	if err := p.expectSymbol("("); err != nil {
		return "", err
	}
	start := p.peek().Pos
	depth := 1
	for !p.isAtEnd() {
		tok := p.peek()
		if tok.Type == TK_SYMBOL {
			switch tok.Lexeme {
			case "(":
				depth++
			case ")":
				depth--
			}
		}
		if depth == 0 {
			p.advance()
			return strings.TrimSpace(p.input[start:tok.Pos]), nil
		}
		p.advance()
	}
	return "", p.expected("')'")
}

func (p *Parser) parseReference() (*schema.ForeignKey, error) {
	table, err := p.identifier("table name")
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	col, err := p.identifier("column name")
	if err != nil {
		return nil, err
	}
	return &schema.ForeignKey{Table: table, Column: col}, p.expectSymbol(")")
}

func (p *Parser) parseCreateIndex(unique bool) (*CreateIndexStmt, error) {
	stmt := &CreateIndexStmt{Unique: unique}
	var err error
	if stmt.IfNotExists, err = p.parseIfNotExists(); err != nil {
		return nil, err
	}
	if stmt.Name, err = p.identifier("index name"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("ON"); err != nil {
		return nil, err
	}
	if stmt.Table, err = p.identifier("table name"); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	for {
		col, err := p.identifier("column name")
		if err != nil {
			return nil, err
		}
		if !p.matchKeyword("ASC") {
			p.matchKeyword("DESC")
		}
		stmt.Columns = append(stmt.Columns, col)
		if !p.matchSymbol(",") {
			break
		}
	}
	return stmt, p.expectSymbol(")")
}

func (p *Parser) parseCreateView() (*CreateViewStmt, error) {
	stmt := &CreateViewStmt{}
	var err error
	if stmt.IfNotExists, err = p.parseIfNotExists(); err != nil {
		return nil, err
	}
	if stmt.Name, err = p.identifier("view name"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("AS"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("SELECT"); err != nil {
		return nil, err
	}
	stmt.Select, err = p.parseSelect()
	return stmt, err
}

func (p *Parser) parseDrop() (Statement, error) {
	var object string
	switch {
	case p.matchKeyword("TABLE"):
		object = "TABLE"
	case p.matchKeyword("INDEX"):
		object = "INDEX"
	case p.matchKeyword("VIEW"):
		object = "VIEW"
	default:
		tok := p.peek()
		return nil, p.errorAt(tok, "Unsupported DROP statement: "+tok.Lexeme, "Supported: DROP TABLE, DROP VIEW, DROP INDEX")
	}

	ifExists := false
	if p.checkKeyword("IF") && p.peekAhead(1).Value == "EXISTS" {
		p.advance()
		p.advance()
		ifExists = true
	}
	name, err := p.identifier(strings.ToLower(object) + " name")
	if err != nil {
		return nil, err
	}

	switch object {
	case "INDEX":
		return &DropIndexStmt{Name: name, IfExists: ifExists}, nil
	case "VIEW":
		return &DropViewStmt{Name: name, IfExists: ifExists}, nil
	}
	return &DropTableStmt{Name: name, IfExists: ifExists}, nil
}

func (p *Parser) parseAlter() (*AlterTableStmt, error) {
	if err := p.expectKeyword("TABLE"); err != nil {
		return nil, err
	}
	table, err := p.identifier("table name")
	if err != nil {
		return nil, err
	}
	stmt := &AlterTableStmt{Table: table}
	switch {
	case p.matchKeyword("RENAME"):
		if err := p.expectKeyword("TO"); err != nil {
			return nil, err
		}
		stmt.RenameTo, err = p.identifier("table name")
		return stmt, err
	case p.matchKeyword("ADD"):
		p.matchKeyword("COLUMN")
		stmt.AddColumn, err = p.parseColumnDef()
		return stmt, err
	}
	return nil, p.expected("RENAME TO or ADD COLUMN")
}

// =============================================================================
// Utility statements
// =============================================================================

func (p *Parser) parsePragma() (*PragmaStmt, error) {
	name, err := p.identifier("pragma name")
	if err != nil {
		return nil, err
	}
	stmt := &PragmaStmt{Name: strings.ToLower(name)}
	if p.matchSymbol("(") {
		for !p.checkSymbol(")") {
			arg, err := p.parseOperand(false)
			if err != nil {
				return nil, err
			}
			stmt.Args = append(stmt.Args, arg)
			if !p.matchSymbol(",") {
				break
			}
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
	} else if p.matchSymbol("=") {
		if stmt.Value, err = p.parseOperand(false); err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

func (p *Parser) parseRollback() (*RollbackStmt, error) {
	p.matchKeyword("TRANSACTION")
	if !p.matchKeyword("TO") {
		return &RollbackStmt{}, nil
	}
	p.matchKeyword("SAVEPOINT")
	name, err := p.identifier("savepoint name")
	if err != nil {
		return nil, err
	}
	return &RollbackStmt{Savepoint: name}, nil
}

func (p *Parser) parseShow() (*ShowStmt, error) {
	switch {
	case p.matchKeyword("TABLES"):
		return &ShowStmt{}, nil
	case p.matchKeyword("INDEXES", "INDEX"):
		stmt := &ShowStmt{Indexes: true}
		p.matchKeyword("FROM", "IN")
		if p.isName(p.peek()) {
			stmt.Table = p.nameOf(p.advance())
		}
		return stmt, nil
	}
	tok := p.peek()
	return nil, p.errorAt(tok, "Unsupported SHOW statement: "+tok.Lexeme, "Supported: SHOW TABLES, SHOW INDEXES [table]")
}

func (p *Parser) parseNameList(what string) ([]string, error) {
	var names []string
	for {
		name, err := p.identifier(what)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
		if !p.matchSymbol(",") {
			break
		}
	}
	return names, p.expectSymbol(")")
}

// =============================================================================
// Token helpers
// =============================================================================

// isName reports whether tok can be used as an identifier: a plain or
// quoted identifier, a double-quoted string or a non-reserved keyword.
func (p *Parser) isName(tok Token) bool {
	switch tok.Type {
	case TK_ID:
		return true
	case TK_STRING:
		return strings.HasPrefix(tok.Lexeme, `"`)
	case TK_KEYWORD:
		return !reserved[tok.Value]
	}
	return false
}

func (p *Parser) nameOf(tok Token) string {
	if tok.Type == TK_KEYWORD {
		return tok.Lexeme
	}
	return tok.Value
}

func (p *Parser) identifier(what string) (string, error) {
	if !p.isName(p.peek()) {
		return "", p.expected(what)
	}
	return p.nameOf(p.advance()), nil
}

func (p *Parser) peek() Token {
	if p.current >= len(p.tokens) {
		return Token{Type: TK_EOF, Pos: len(p.input)}
	}
	return p.tokens[p.current]
}

func (p *Parser) peekAhead(n int) Token {
	pos := p.current + n
	if pos >= len(p.tokens) {
		return Token{Type: TK_EOF, Pos: len(p.input)}
	}
	return p.tokens[pos]
}

func (p *Parser) previous() Token {
	if p.current == 0 {
		return Token{}
	}
	return p.tokens[p.current-1]
}

func (p *Parser) advance() Token {
	if !p.isAtEnd() {
		p.current++
	}
	return p.previous()
}

func (p *Parser) check(t TokenType) bool {
	if p.isAtEnd() {
		return false
	}
	return p.peek().Type == t
}

func (p *Parser) checkKeyword(kws ...string) bool {
	tok := p.peek()
	if tok.Type != TK_KEYWORD {
		return false
	}
	for _, kw := range kws {
		if tok.Value == kw {
			return true
		}
	}
	return false
}

func (p *Parser) matchKeyword(kws ...string) bool {
	if p.checkKeyword(kws...) {
		p.advance()
		return true
	}
	return false
}

// checkWord matches a bare word that is not a keyword.
func (p *Parser) checkWord(word string) bool {
	return p.check(TK_ID) && strings.EqualFold(p.peek().Lexeme, word)
}

func (p *Parser) checkSymbol(s string) bool {
	tok := p.peek()
	return (tok.Type == TK_SYMBOL || tok.Type == TK_OPERATOR) && tok.Lexeme == s
}

func (p *Parser) matchSymbol(s string) bool {
	if p.checkSymbol(s) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expectKeyword(kw string) error {
	if p.matchKeyword(kw) {
		return nil
	}
	return p.expected(kw)
}

func (p *Parser) expectSymbol(s string) error {
	if p.matchSymbol(s) {
		return nil
	}
	return p.expected("'" + s + "'")
}

func (p *Parser) isAtEnd() bool {
	return p.current >= len(p.tokens) || p.peek().Type == TK_EOF
}

// expected reports that the current token is not what the grammar needs.
func (p *Parser) expected(what string) error {
	tok := p.peek()
	if tok.Type == TK_EOF {
		return p.errorAt(tok, "Unexpected end of SQL statement", "Expected: "+what)
	}
	return p.errorAt(tok, fmt.Sprintf("Expected %s, got %s", what, tok.describe()), p.hint(what, tok))
}

// hint suggests a fix for common mistakes around IF [NOT] EXISTS.
func (p *Parser) hint(what string, tok Token) string {
	if tok.Type != TK_KEYWORD {
		return ""
	}
	prev := p.previous()
	switch {
	case tok.Value == "NOT" && prev.Type == TK_KEYWORD && prev.Value == "TABLE":
		return "Did you mean 'CREATE TABLE IF NOT EXISTS'?"
	case tok.Value == "NOT" && what == "'('":
		return "Did you mean 'IF NOT EXISTS'?"
	case tok.Value == "EXISTS" && prev.Type == TK_KEYWORD && prev.Value == "TABLE":
		return "Missing 'IF' keyword before 'EXISTS'"
	}
	return ""
}

// errorAt builds a SyntaxError pointing at tok.
func (p *Parser) errorAt(tok Token, msg, hint string) error {
	line, col := tok.Line, tok.Col
	if tok.Type == TK_EOF && line == 0 {
		line, col = lineCol(p.input, len(p.input))
	}
	snippet, caret := snippetAt(p.input, line, col)
	return &errors.SyntaxError{
		Message: msg,
		Line:    line,
		Column:  col,
		Snippet: snippet,
		Caret:   caret,
		Hint:    hint,
	}
}

// lineCol converts a byte offset into a 1-based line and column.
func lineCol(input string, pos int) (int, int) {
	line, col := 1, 1
	for i := 0; i < pos && i < len(input); i++ {
		if input[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}

// snippetAt returns up to 2*snippetRadius characters of the given line
// around col and the offset of col inside the snippet.
func snippetAt(input string, line, col int) (string, int) {
	lines := strings.Split(input, "\n")
	if line < 1 || line > len(lines) {
		return "", 0
	}
	text := lines[line-1]
	at := col - 1
	if at > len(text) {
		at = len(text)
	}
	if at < 0 {
		at = 0
	}
	start := max(at-snippetRadius, 0)
	end := min(at+snippetRadius, len(text))
	return text[start:end], at - start
}

// ParseString is a convenience function to parse a SQL string.
func ParseString(sql string) ([]Statement, error) {
	parser := NewParser(sql)
	return parser.Parse()
}

// ParseOne parses input that must hold exactly one statement.
func ParseOne(sql string) (Statement, error) {
	stmts, err := ParseString(sql)
	if err != nil {
		return nil, err
	}
	if len(stmts) != 1 {
		return nil, &errors.SyntaxError{Message: fmt.Sprintf("expected one statement, got %d", len(stmts)), Line: 1, Column: 1}
	}
	return stmts[0], nil
}
