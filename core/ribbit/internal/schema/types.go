// Package schema holds the in-memory catalog of tables, columns, indexes
// and views, and the layout of the system tables that persist it.
package schema

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// DataType is a column storage class.
type DataType int

// Storage classes.
const (
	Null DataType = iota
	Integer
	Real
	Text
	Blob
)

func (t DataType) String() string {
	switch t {
	case Null:
		return "NULL"
	case Integer:
		return "INTEGER"
	case Real:
		return "REAL"
	case Text:
		return "TEXT"
	case Blob:
		return "BLOB"
	}
	return fmt.Sprintf("DataType(%d)", int(t))
}

// TypeName is a parsed column type declaration such as VARCHAR(255) or
// DOUBLE PRECISION.
//
//nolint:govet // participle grammar tags are not standard struct tags
type TypeName struct {
	Words []string `@Ident+`
	Size  *int     `( "(" @Int`
	Scale *int     `  ( "," @Int )? ")" )?`
}

// String renders the declaration in canonical upper case.
func (n *TypeName) String() string {
	var sb strings.Builder
	sb.WriteString(strings.ToUpper(strings.Join(n.Words, " ")))
	if n.Size != nil {
		fmt.Fprintf(&sb, "(%d", *n.Size)
		if n.Scale != nil {
			fmt.Fprintf(&sb, ",%d", *n.Scale)
		}
		sb.WriteString(")")
	}
	return sb.String()
}

// Affinity maps the declaration to a storage class. Unknown names store
// text.
func (n *TypeName) Affinity() DataType {
	name := strings.ToUpper(strings.Join(n.Words, " "))
	switch {
	case strings.Contains(name, "INT"), strings.Contains(name, "BOOL"):
		return Integer
	case strings.Contains(name, "BLOB"), name == "BYTEA", name == "BINARY", name == "VARBINARY":
		return Blob
	case strings.Contains(name, "REAL"), strings.Contains(name, "FLOA"),
		strings.Contains(name, "DOUB"), strings.Contains(name, "DEC"),
		strings.Contains(name, "NUMERIC"):
		return Real
	case name == "NULL":
		return Null
	}
	return Text
}

var typeLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Punct", Pattern: `[(),]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var typeParser = participle.MustBuild[TypeName](
	participle.Lexer(typeLexer),
	participle.Elide("Whitespace"),
)

// ParseTypeName parses a column type declaration.
func ParseTypeName(s string) (*TypeName, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty type name")
	}
	n, err := typeParser.ParseString("", s)
	if err != nil {
		return nil, fmt.Errorf("invalid type name %q: %w", s, err)
	}
	return n, nil
}

// TypeOf returns the storage class for a declaration, falling back to
// TEXT when it cannot be parsed.
func TypeOf(decl string) DataType {
	n, err := ParseTypeName(decl)
	if err != nil {
		return Text
	}
	return n.Affinity()
}
