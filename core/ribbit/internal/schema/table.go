package schema

import (
	"fmt"
	"strings"
	"time"

	"github.com/FocuswithJustin/RibbitDB/core/errors"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/record"
)

// ForeignKey is a stored, unenforced reference to another table's column.
type ForeignKey struct {
	Table  string
	Column string
}

func (fk *ForeignKey) String() string {
	return fk.Table + "(" + fk.Column + ")"
}

// ParseForeignKey reads the table(column) form written by String.
func ParseForeignKey(s string) (*ForeignKey, bool) {
	open := strings.IndexByte(s, '(')
	if open <= 0 || !strings.HasSuffix(s, ")") {
		return nil, false
	}
	return &ForeignKey{Table: s[:open], Column: s[open+1 : len(s)-1]}, true
}

// Column describes one table column.
type Column struct {
	Name          string
	Type          DataType
	TypeName      string // declaration as written, e.g. VARCHAR(64)
	PrimaryKey    bool
	NotNull       bool
	Unique        bool // stored, not enforced
	AutoIncrement bool
	Default       any    // literal value, TimeFunc or nil
	Check         string // stored, not evaluated
	References    *ForeignKey
}

// NewColumn returns a column whose storage class is derived from decl. An
// empty declaration accepts any value.
func NewColumn(name, decl string) Column {
	if strings.TrimSpace(decl) == "" {
		return Column{Name: name, Type: Null}
	}
	c := Column{Name: name, TypeName: decl, Type: TypeOf(decl)}
	if n, err := ParseTypeName(decl); err == nil {
		c.TypeName = n.String()
	}
	return c
}

// DeclaredType returns the declaration, or the storage class name when
// none was recorded.
func (c *Column) DeclaredType() string {
	if c.TypeName != "" {
		return c.TypeName
	}
	return c.Type.String()
}

// DefaultValue evaluates the column default at insert time.
func (c *Column) DefaultValue(now time.Time) any {
	if f, ok := c.Default.(TimeFunc); ok {
		return f.Eval(now)
	}
	return c.Default
}

// StoredDefault is the value read back for rows stored before the column
// existed. Time function defaults read back as NULL.
func (c *Column) StoredDefault() any {
	if _, ok := c.Default.(TimeFunc); ok {
		return nil
	}
	return c.Default
}

// Table is an ordered set of columns. Column lookups ignore case.
type Table struct {
	Name    string
	Columns []Column
	SQL     string

	columnMap map[string]int
}

// NewTable builds a table and its column map.
func NewTable(name string, columns []Column) *Table {
	t := &Table{Name: name, Columns: columns}
	t.reindex()
	return t
}

func (t *Table) reindex() {
	t.columnMap = make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		t.columnMap[strings.ToLower(c.Name)] = i
	}
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.columnMap[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return &t.Columns[i], true
}

// ColumnIndex returns the position of the named column or -1.
func (t *Table) ColumnIndex(name string) int {
	if i, ok := t.columnMap[strings.ToLower(name)]; ok {
		return i
	}
	return -1
}

// ColumnNames returns column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// PrimaryKey returns the first primary key column name, or "".
func (t *Table) PrimaryKey() string {
	for _, c := range t.Columns {
		if c.PrimaryKey {
			return c.Name
		}
	}
	return ""
}

// AddColumn appends a column. The name must be new.
func (t *Table) AddColumn(c Column) error {
	if _, exists := t.Column(c.Name); exists {
		return errors.NewSchema("column", t.Name+"."+c.Name, "already exists")
	}
	if t.columnMap == nil {
		t.reindex()
	}
	t.Columns = append(t.Columns, c)
	t.columnMap[strings.ToLower(c.Name)] = len(t.Columns) - 1
	return nil
}

// PadRow extends a row stored before later columns were added.
func (t *Table) PadRow(row []any) []any {
	if len(row) >= len(t.Columns) {
		return row[:len(t.Columns)]
	}
	out := make([]any, len(t.Columns))
	copy(out, row)
	for i := len(row); i < len(t.Columns); i++ {
		out[i] = t.Columns[i].StoredDefault()
	}
	return out
}

// Coerce checks v against column c and returns the value to store.
// Integers widen to REAL; NULL is checked by ValidateRow.
func (t *Table) Coerce(c *Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	ok := false
	switch c.Type {
	case Null:
		ok = true
	case Integer:
		_, ok = v.(int64)
	case Real:
		switch x := v.(type) {
		case float64:
			ok = true
		case int64:
			return float64(x), nil
		}
	case Text:
		_, ok = v.(string)
	case Blob:
		_, ok = v.([]byte)
	}
	if !ok {
		return nil, &errors.TypeError{
			Table:    t.Name,
			Column:   c.Name,
			Expected: c.Type.String(),
			Got:      record.TypeName(v),
		}
	}
	return v, nil
}

// ValidateRow checks NOT NULL and types for a full row and returns the
// coerced values.
func (t *Table) ValidateRow(row []any) ([]any, error) {
	if len(row) != len(t.Columns) {
		return nil, errors.NewValidation("values", fmt.Sprintf("table %s has %d columns but %d values were supplied",
			t.Name, len(t.Columns), len(row)))
	}
	out := make([]any, len(row))
	for i := range t.Columns {
		c := &t.Columns[i]
		if row[i] == nil {
			if c.NotNull {
				return nil, errors.NewConstraint("NOT NULL",
					fmt.Sprintf("column '%s' of table '%s' cannot be NULL", c.Name, t.Name))
			}
			continue
		}
		v, err := t.Coerce(c, row[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
