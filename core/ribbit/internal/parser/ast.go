package parser

import (
	"strconv"
	"strings"

	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/schema"
)

// Node is the interface that all AST nodes implement.
type Node interface {
	node()
	String() string
}

// Statement represents a SQL statement.
type Statement interface {
	Node
	statement()
	// Kind names the statement, e.g. "SELECT" or "CREATE TABLE".
	Kind() string
}

// Operand is a value position in a condition, projection or tuple.
type Operand interface {
	Node
	operand()
}

// =============================================================================
// Operands
// =============================================================================

// ColumnRef names a column, optionally qualified by table or alias.
type ColumnRef struct {
	Table  string
	Column string
}

func (c *ColumnRef) node()    {}
func (c *ColumnRef) operand() {}
func (c *ColumnRef) String() string {
	if c.Table != "" {
		return quoteIdent(c.Table) + "." + quoteIdent(c.Column)
	}
	return quoteIdent(c.Column)
}

// Literal is a constant: nil, int64, float64, string or []byte.
type Literal struct {
	Value any
}

func (l *Literal) node()    {}
func (l *Literal) operand() {}
func (l *Literal) String() string {
	if s, ok := l.Value.(string); ok {
		return QuoteString(s)
	}
	return schema.FormatLiteral(l.Value)
}

// Param is a positional '?' placeholder. Index is 0-based in order of
// appearance across the whole input.
type Param struct {
	Index int
}

func (p *Param) node()          {}
func (p *Param) operand()       {}
func (p *Param) String() string { return "?" }

// TimeFuncExpr is CURRENT_TIMESTAMP, CURRENT_DATE or CURRENT_TIME.
type TimeFuncExpr struct {
	Func schema.TimeFunc
}

func (t *TimeFuncExpr) node()          {}
func (t *TimeFuncExpr) operand()       {}
func (t *TimeFuncExpr) String() string { return string(t.Func) }

// Aggregate is COUNT, SUM, AVG, MIN or MAX over a column or '*'.
type Aggregate struct {
	Func string // upper case
	Star bool
	Arg  *ColumnRef
}

func (a *Aggregate) node()    {}
func (a *Aggregate) operand() {}
func (a *Aggregate) String() string {
	if a.Star {
		return a.Func + "(*)"
	}
	return a.Func + "(" + a.Arg.String() + ")"
}

// DefaultAlias is the output name of an unaliased aggregate, e.g.
// "count_*" or "sum_amount".
func (a *Aggregate) DefaultAlias() string {
	if a.Star {
		return strings.ToLower(a.Func) + "_*"
	}
	return strings.ToLower(a.Func) + "_" + a.Arg.Column
}

// =============================================================================
// Predicates
// =============================================================================

// CondOp is a condition operator.
type CondOp int

const (
	OpEq CondOp = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpLike
	OpIn
	OpBetween
	OpIsNull
)

var condOpNames = [...]string{"=", "!=", "<", "<=", ">", ">=", "LIKE", "IN", "BETWEEN", "IS NULL"}

func (o CondOp) String() string {
	if int(o) < len(condOpNames) {
		return condOpNames[o]
	}
	return "CondOp(" + strconv.Itoa(int(o)) + ")"
}

// Condition is one comparison. Right is used by the binary operators,
// List by IN, Low and High by BETWEEN. Not negates LIKE, IN, BETWEEN and
// IS NULL.
type Condition struct {
	Left  Operand
	Op    CondOp
	Not   bool
	Right Operand
	List  []Operand
	Low   Operand
	High  Operand
}

func (c *Condition) node() {}
func (c *Condition) String() string {
	var sb strings.Builder
	sb.WriteString(c.Left.String())
	switch c.Op {
	case OpIsNull:
		if c.Not {
			sb.WriteString(" IS NOT NULL")
		} else {
			sb.WriteString(" IS NULL")
		}
		return sb.String()
	case OpLike, OpIn, OpBetween:
		if c.Not {
			sb.WriteString(" NOT")
		}
	}
	sb.WriteString(" ")
	sb.WriteString(c.Op.String())
	switch c.Op {
	case OpIn:
		sb.WriteString(" (")
		sb.WriteString(joinNodes(c.List))
		sb.WriteString(")")
	case OpBetween:
		sb.WriteString(" ")
		sb.WriteString(c.Low.String())
		sb.WriteString(" AND ")
		sb.WriteString(c.High.String())
	default:
		sb.WriteString(" ")
		sb.WriteString(c.Right.String())
	}
	return sb.String()
}

// Conj joins two conditions.
type Conj int

const (
	ConjAnd Conj = iota
	ConjOr
)

func (c Conj) String() string {
	if c == ConjOr {
		return "OR"
	}
	return "AND"
}

// Link is a conjunction followed by a condition.
type Link struct {
	Conj Conj
	Cond *Condition
}

// Predicate is a flat chain of conditions evaluated left to right.
type Predicate struct {
	First *Condition
	Rest  []Link
}

func (p *Predicate) node() {}
func (p *Predicate) String() string {
	var sb strings.Builder
	sb.WriteString(p.First.String())
	for _, l := range p.Rest {
		sb.WriteString(" ")
		sb.WriteString(l.Conj.String())
		sb.WriteString(" ")
		sb.WriteString(l.Cond.String())
	}
	return sb.String()
}

// Conditions returns every condition in order.
func (p *Predicate) Conditions() []*Condition {
	out := []*Condition{p.First}
	for _, l := range p.Rest {
		out = append(out, l.Cond)
	}
	return out
}

// =============================================================================
// SELECT
// =============================================================================

// SelectStmt represents a SELECT statement.
type SelectStmt struct {
	Distinct bool
	Columns  []ResultColumn
	From     *TableRef // nil for SELECT without FROM
	Joins    []Join
	Where    *Predicate
	GroupBy  []*ColumnRef
	Having   *Predicate
	OrderBy  []OrderTerm
	Limit    Operand
	Offset   Operand
	Union    *Union
}

func (s *SelectStmt) node()        {}
func (s *SelectStmt) statement()   {}
func (s *SelectStmt) Kind() string { return "SELECT" }
func (s *SelectStmt) String() string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	if s.Distinct {
		sb.WriteString("DISTINCT ")
	}
	for i, c := range s.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c.String())
	}
	if s.From != nil {
		sb.WriteString(" FROM ")
		sb.WriteString(s.From.String())
	}
	for _, j := range s.Joins {
		sb.WriteString(" ")
		sb.WriteString(j.String())
	}
	if s.Where != nil {
		sb.WriteString(" WHERE ")
		sb.WriteString(s.Where.String())
	}
	if len(s.GroupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		for i, g := range s.GroupBy {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(g.String())
		}
		if s.Having != nil {
			sb.WriteString(" HAVING ")
			sb.WriteString(s.Having.String())
		}
	}
	if len(s.OrderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		for i, o := range s.OrderBy {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(o.Expr.String())
			if o.Desc {
				sb.WriteString(" DESC")
			}
		}
	}
	if s.Limit != nil {
		sb.WriteString(" LIMIT ")
		sb.WriteString(s.Limit.String())
	}
	if s.Offset != nil {
		sb.WriteString(" OFFSET ")
		sb.WriteString(s.Offset.String())
	}
	if s.Union != nil {
		sb.WriteString(" UNION ")
		if s.Union.All {
			sb.WriteString("ALL ")
		}
		sb.WriteString(s.Union.Select.String())
	}
	return sb.String()
}

// HasAggregates reports whether any result column is an aggregate.
func (s *SelectStmt) HasAggregates() bool {
	for _, c := range s.Columns {
		if _, ok := c.Expr.(*Aggregate); ok {
			return true
		}
	}
	return false
}

// ResultColumn represents a column in the SELECT clause.
type ResultColumn struct {
	Star  bool   // true for SELECT * and t.*
	Table string // for SELECT t.*
	Expr  Operand
	Alias string
}

func (r ResultColumn) String() string {
	if r.Star {
		if r.Table != "" {
			return quoteIdent(r.Table) + ".*"
		}
		return "*"
	}
	s := r.Expr.String()
	if r.Alias != "" {
		s += " AS " + quoteIdent(r.Alias)
	}
	return s
}

// Name is the output column name: the alias, the default aggregate
// alias, the column name or the rendered operand.
func (r ResultColumn) Name() string {
	if r.Alias != "" {
		return r.Alias
	}
	switch e := r.Expr.(type) {
	case *Aggregate:
		return e.DefaultAlias()
	case *ColumnRef:
		return e.Column
	}
	return r.Expr.String()
}

// TableRef is a table, view or system table with an optional alias.
type TableRef struct {
	Name  string
	Alias string
}

func (t *TableRef) String() string {
	if t.Alias != "" {
		return quoteIdent(t.Name) + " AS " + quoteIdent(t.Alias)
	}
	return quoteIdent(t.Name)
}

// Ref is the name columns of this table are qualified with.
func (t *TableRef) Ref() string {
	if t.Alias != "" {
		return t.Alias
	}
	return t.Name
}

// JoinType is the kind of join.
type JoinType int

const (
	JoinInner JoinType = iota
	JoinLeft
	JoinRight
)

func (j JoinType) String() string {
	switch j {
	case JoinLeft:
		return "LEFT"
	case JoinRight:
		return "RIGHT"
	}
	return "INNER"
}

// Join is an equi-join on one pair of columns.
type Join struct {
	Type  JoinType
	Table TableRef
	Left  *ColumnRef
	Right *ColumnRef
}

func (j Join) String() string {
	return j.Type.String() + " JOIN " + j.Table.String() + " ON " + j.Left.String() + " = " + j.Right.String()
}

// OrderTerm is one ORDER BY key.
type OrderTerm struct {
	Expr Operand
	Desc bool
}

// Union appends the rows of a second SELECT.
type Union struct {
	All    bool
	Select *SelectStmt
}

// =============================================================================
// DML
// =============================================================================

// InsertStmt represents an INSERT statement.
type InsertStmt struct {
	Table   string
	Columns []string
	Values  [][]Operand
}

func (s *InsertStmt) node()        {}
func (s *InsertStmt) statement()   {}
func (s *InsertStmt) Kind() string { return "INSERT" }
func (s *InsertStmt) String() string {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(quoteIdent(s.Table))
	if len(s.Columns) > 0 {
		sb.WriteString(" (")
		sb.WriteString(joinIdents(s.Columns))
		sb.WriteString(")")
	}
	sb.WriteString(" VALUES ")
	for i, tuple := range s.Values {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		sb.WriteString(joinNodes(tuple))
		sb.WriteString(")")
	}
	return sb.String()
}

// Assignment is one SET col = value pair.
type Assignment struct {
	Column string
	Value  Operand
}

// UpdateStmt represents an UPDATE statement.
type UpdateStmt struct {
	Table string
	Set   []Assignment
	Where *Predicate
}

func (s *UpdateStmt) node()        {}
func (s *UpdateStmt) statement()   {}
func (s *UpdateStmt) Kind() string { return "UPDATE" }
func (s *UpdateStmt) String() string {
	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(quoteIdent(s.Table))
	sb.WriteString(" SET ")
	for i, a := range s.Set {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(quoteIdent(a.Column))
		sb.WriteString(" = ")
		sb.WriteString(a.Value.String())
	}
	if s.Where != nil {
		sb.WriteString(" WHERE ")
		sb.WriteString(s.Where.String())
	}
	return sb.String()
}

// DeleteStmt represents a DELETE statement.
type DeleteStmt struct {
	Table string
	Where *Predicate
}

func (s *DeleteStmt) node()        {}
func (s *DeleteStmt) statement()   {}
func (s *DeleteStmt) Kind() string { return "DELETE" }
func (s *DeleteStmt) String() string {
	if s.Where != nil {
		return "DELETE FROM " + quoteIdent(s.Table) + " WHERE " + s.Where.String()
	}
	return "DELETE FROM " + quoteIdent(s.Table)
}

// =============================================================================
// DDL
// =============================================================================

// ColumnDef is a column definition with its constraints. Table-level
// constraints are folded into the columns they name.
type ColumnDef struct {
	Name          string
	Type          string
	PrimaryKey    bool
	AutoIncrement bool
	NotNull       bool
	Unique        bool
	HasDefault    bool
	Default       any // nil, int64, float64, string, []byte or schema.TimeFunc
	Check         string
	References    *schema.ForeignKey
}

func (c *ColumnDef) String() string {
	var sb strings.Builder
	sb.WriteString(quoteIdent(c.Name))
	if c.Type != "" {
		sb.WriteString(" ")
		sb.WriteString(c.Type)
	}
	if c.PrimaryKey {
		sb.WriteString(" PRIMARY KEY")
	}
	if c.AutoIncrement {
		sb.WriteString(" AUTOINCREMENT")
	}
	if c.NotNull {
		sb.WriteString(" NOT NULL")
	}
	if c.Unique {
		sb.WriteString(" UNIQUE")
	}
	if c.HasDefault {
		sb.WriteString(" DEFAULT ")
		sb.WriteString((&Literal{Value: c.Default}).String())
	}
	if c.Check != "" {
		sb.WriteString(" CHECK (")
		sb.WriteString(c.Check)
		sb.WriteString(")")
	}
	if c.References != nil {
		sb.WriteString(" REFERENCES ")
		sb.WriteString(quoteIdent(c.References.Table))
		sb.WriteString("(")
		sb.WriteString(quoteIdent(c.References.Column))
		sb.WriteString(")")
	}
	return sb.String()
}

// Column converts the definition into a catalog column.
func (c *ColumnDef) Column() schema.Column {
	col := schema.NewColumn(c.Name, c.Type)
	col.PrimaryKey = c.PrimaryKey
	col.AutoIncrement = c.AutoIncrement
	col.NotNull = c.NotNull
	col.Unique = c.Unique
	if c.HasDefault {
		col.Default = c.Default
	}
	col.Check = c.Check
	col.References = c.References
	return col
}

// CreateTableStmt represents a CREATE TABLE statement.
type CreateTableStmt struct {
	Name        string
	IfNotExists bool
	Columns     []*ColumnDef
	Checks      []string // table-level CHECK expressions
}

func (s *CreateTableStmt) node()        {}
func (s *CreateTableStmt) statement()   {}
func (s *CreateTableStmt) Kind() string { return "CREATE TABLE" }
func (s *CreateTableStmt) String() string {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	if s.IfNotExists {
		sb.WriteString("IF NOT EXISTS ")
	}
	sb.WriteString(quoteIdent(s.Name))
	sb.WriteString(" (")
	for i, c := range s.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c.String())
	}
	for _, chk := range s.Checks {
		sb.WriteString(", CHECK (")
		sb.WriteString(chk)
		sb.WriteString(")")
	}
	sb.WriteString(")")
	return sb.String()
}

// CreateIndexStmt represents a CREATE INDEX statement.
type CreateIndexStmt struct {
	Name        string
	Table       string
	Columns     []string
	Unique      bool
	IfNotExists bool
}

func (s *CreateIndexStmt) node()        {}
func (s *CreateIndexStmt) statement()   {}
func (s *CreateIndexStmt) Kind() string { return "CREATE INDEX" }
func (s *CreateIndexStmt) String() string {
	var sb strings.Builder
	sb.WriteString("CREATE ")
	if s.Unique {
		sb.WriteString("UNIQUE ")
	}
	sb.WriteString("INDEX ")
	if s.IfNotExists {
		sb.WriteString("IF NOT EXISTS ")
	}
	sb.WriteString(quoteIdent(s.Name))
	sb.WriteString(" ON ")
	sb.WriteString(quoteIdent(s.Table))
	sb.WriteString(" (")
	sb.WriteString(joinIdents(s.Columns))
	sb.WriteString(")")
	return sb.String()
}

// CreateViewStmt represents a CREATE VIEW statement.
type CreateViewStmt struct {
	Name        string
	IfNotExists bool
	Select      *SelectStmt
}

func (s *CreateViewStmt) node()        {}
func (s *CreateViewStmt) statement()   {}
func (s *CreateViewStmt) Kind() string { return "CREATE VIEW" }
func (s *CreateViewStmt) String() string {
	ine := ""
	if s.IfNotExists {
		ine = "IF NOT EXISTS "
	}
	return "CREATE VIEW " + ine + quoteIdent(s.Name) + " AS " + s.Select.String()
}

// DropTableStmt represents a DROP TABLE statement.
type DropTableStmt struct {
	Name     string
	IfExists bool
}

func (s *DropTableStmt) node()          {}
func (s *DropTableStmt) statement()     {}
func (s *DropTableStmt) Kind() string   { return "DROP TABLE" }
func (s *DropTableStmt) String() string { return renderDrop("TABLE", s.Name, s.IfExists) }

// DropIndexStmt represents a DROP INDEX statement.
type DropIndexStmt struct {
	Name     string
	IfExists bool
}

func (s *DropIndexStmt) node()          {}
func (s *DropIndexStmt) statement()     {}
func (s *DropIndexStmt) Kind() string   { return "DROP INDEX" }
func (s *DropIndexStmt) String() string { return renderDrop("INDEX", s.Name, s.IfExists) }

// DropViewStmt represents a DROP VIEW statement.
type DropViewStmt struct {
	Name     string
	IfExists bool
}

func (s *DropViewStmt) node()          {}
func (s *DropViewStmt) statement()     {}
func (s *DropViewStmt) Kind() string   { return "DROP VIEW" }
func (s *DropViewStmt) String() string { return renderDrop("VIEW", s.Name, s.IfExists) }

func renderDrop(object, name string, ifExists bool) string {
	if ifExists {
		return "DROP " + object + " IF EXISTS " + quoteIdent(name)
	}
	return "DROP " + object + " " + quoteIdent(name)
}

// AlterTableStmt is ALTER TABLE ... RENAME TO or ADD COLUMN. Exactly one
// of RenameTo and AddColumn is set.
type AlterTableStmt struct {
	Table     string
	RenameTo  string
	AddColumn *ColumnDef
}

func (s *AlterTableStmt) node()        {}
func (s *AlterTableStmt) statement()   {}
func (s *AlterTableStmt) Kind() string { return "ALTER TABLE" }
func (s *AlterTableStmt) String() string {
	if s.AddColumn != nil {
		return "ALTER TABLE " + quoteIdent(s.Table) + " ADD COLUMN " + s.AddColumn.String()
	}
	return "ALTER TABLE " + quoteIdent(s.Table) + " RENAME TO " + quoteIdent(s.RenameTo)
}

// =============================================================================
// Utility statements
// =============================================================================

// PragmaStmt is PRAGMA name [(args)] or PRAGMA name = value. Bare
// identifiers in Args and Value parse as column references.
type PragmaStmt struct {
	Name  string
	Args  []Operand
	Value Operand
}

func (s *PragmaStmt) node()        {}
func (s *PragmaStmt) statement()   {}
func (s *PragmaStmt) Kind() string { return "PRAGMA" }
func (s *PragmaStmt) String() string {
	out := "PRAGMA " + s.Name
	if len(s.Args) > 0 {
		out += "(" + joinNodes(s.Args) + ")"
	}
	if s.Value != nil {
		out += " = " + s.Value.String()
	}
	return out
}

// BeginStmt represents BEGIN [TRANSACTION].
type BeginStmt struct{}

func (s *BeginStmt) node()          {}
func (s *BeginStmt) statement()     {}
func (s *BeginStmt) Kind() string   { return "BEGIN" }
func (s *BeginStmt) String() string { return "BEGIN" }

// CommitStmt represents COMMIT.
type CommitStmt struct{}

func (s *CommitStmt) node()          {}
func (s *CommitStmt) statement()     {}
func (s *CommitStmt) Kind() string   { return "COMMIT" }
func (s *CommitStmt) String() string { return "COMMIT" }

// RollbackStmt represents ROLLBACK [TO savepoint].
type RollbackStmt struct {
	Savepoint string
}

func (s *RollbackStmt) node()        {}
func (s *RollbackStmt) statement()   {}
func (s *RollbackStmt) Kind() string { return "ROLLBACK" }
func (s *RollbackStmt) String() string {
	if s.Savepoint != "" {
		return "ROLLBACK TO SAVEPOINT " + quoteIdent(s.Savepoint)
	}
	return "ROLLBACK"
}

// SavepointStmt represents SAVEPOINT name.
type SavepointStmt struct {
	Name string
}

func (s *SavepointStmt) node()          {}
func (s *SavepointStmt) statement()     {}
func (s *SavepointStmt) Kind() string   { return "SAVEPOINT" }
func (s *SavepointStmt) String() string { return "SAVEPOINT " + quoteIdent(s.Name) }

// ReleaseStmt represents RELEASE [SAVEPOINT] name.
type ReleaseStmt struct {
	Name string
}

func (s *ReleaseStmt) node()          {}
func (s *ReleaseStmt) statement()     {}
func (s *ReleaseStmt) Kind() string   { return "RELEASE" }
func (s *ReleaseStmt) String() string { return "RELEASE SAVEPOINT " + quoteIdent(s.Name) }

// DescribeStmt represents DESCRIBE table.
type DescribeStmt struct {
	Table string
}

func (s *DescribeStmt) node()          {}
func (s *DescribeStmt) statement()     {}
func (s *DescribeStmt) Kind() string   { return "DESCRIBE" }
func (s *DescribeStmt) String() string { return "DESCRIBE " + quoteIdent(s.Table) }

// ShowStmt represents SHOW TABLES or SHOW INDEXES [FROM table].
type ShowStmt struct {
	Indexes bool
	Table   string
}

func (s *ShowStmt) node()        {}
func (s *ShowStmt) statement()   {}
func (s *ShowStmt) Kind() string { return "SHOW" }
func (s *ShowStmt) String() string {
	if !s.Indexes {
		return "SHOW TABLES"
	}
	if s.Table != "" {
		return "SHOW INDEXES FROM " + quoteIdent(s.Table)
	}
	return "SHOW INDEXES"
}

// ExplainStmt wraps a statement whose plan is requested.
type ExplainStmt struct {
	Stmt Statement
}

func (s *ExplainStmt) node()          {}
func (s *ExplainStmt) statement()     {}
func (s *ExplainStmt) Kind() string   { return "EXPLAIN" }
func (s *ExplainStmt) String() string { return "EXPLAIN " + s.Stmt.String() }

// =============================================================================
// Rendering helpers
// =============================================================================

// quoteIdent backticks keywords and names that would not lex back as one
// identifier.
func quoteIdent(name string) string {
	if name == "" {
		return "``"
	}
	plain := !keywords[strings.ToUpper(name)] && !isDigit(name[0])
	for i := 0; i < len(name) && plain; i++ {
		ch := name[i]
		plain = isLetter(ch) || isDigit(ch) || ch == '_' || ch == '$'
	}
	if plain {
		return name
	}
	return "`" + name + "`"
}

func joinIdents(names []string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = quoteIdent(n)
	}
	return strings.Join(parts, ", ")
}

func joinNodes[T Node](nodes []T) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return strings.Join(parts, ", ")
}
