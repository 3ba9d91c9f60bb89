package schema

import (
	"fmt"
	"strings"
)

// System table names.
const (
	TablesTable     = "__tables"
	ColumnsTable    = "__columns"
	IndexesTable    = "__indexes"
	ViewsTable      = "__views"
	MigrationsTable = "__migrations"
)

// viewDefinitionVersion prefixes the stored view definition.
const viewDefinitionVersion byte = 1

// IsSystemTable reports whether name is one of the catalog tables.
func IsSystemTable(name string) bool {
	switch strings.ToLower(name) {
	case TablesTable, ColumnsTable, IndexesTable, ViewsTable, MigrationsTable:
		return true
	}
	return false
}

func col(name, decl string, opts ...func(*Column)) Column {
	c := NewColumn(name, decl)
	for _, o := range opts {
		o(&c)
	}
	return c
}

func pk(c *Column)      { c.PrimaryKey = true }
func notNull(c *Column) { c.NotNull = true }
func unique(c *Column)  { c.Unique = true }
func autoinc(c *Column) { c.AutoIncrement = true }
func zero(c *Column)    { c.Default = int64(0) }

// SystemTables returns fresh definitions of the catalog tables in
// bootstrap order.
func SystemTables() []*Table {
	return []*Table{
		NewTable(TablesTable, []Column{
			col("name", "TEXT", pk, notNull),
			col("type", "TEXT", notNull),
			col("sql", "TEXT"),
			col("created_at", "TEXT", notNull),
		}),
		NewTable(ColumnsTable, []Column{
			col("table_name", "TEXT", notNull),
			col("column_name", "TEXT", notNull),
			col("column_type", "TEXT", notNull),
			col("not_null", "INTEGER", zero),
			col("default_value", "TEXT"),
			col("primary_key", "INTEGER", zero),
			col("autoincrement", "INTEGER", zero),
			col("unique_constraint", "INTEGER", zero),
			col("position", "INTEGER", notNull),
			col("check_expression", "TEXT"),
			col("foreign_key", "TEXT"),
		}),
		NewTable(IndexesTable, []Column{
			col("name", "TEXT", notNull),
			col("table_name", "TEXT", notNull),
			col("column_name", "TEXT", notNull),
			col("unique_index", "INTEGER", zero),
			col("created_at", "TEXT", notNull),
		}),
		NewTable(ViewsTable, []Column{
			col("name", "TEXT", pk, notNull),
			col("sql", "TEXT", notNull),
			col("definition", "BLOB"),
			col("created_at", "TEXT", notNull),
		}),
		NewTable(MigrationsTable, []Column{
			col("id", "INTEGER", pk, autoinc),
			col("name", "TEXT", unique, notNull),
			col("applied_at", "TEXT", notNull),
		}),
	}
}

func flag(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// TableRow is the __tables row for t.
func TableRow(t *Table, createdAt string) []any {
	return []any{t.Name, "table", t.SQL, createdAt}
}

// ColumnRow is the __columns row for column c at position pos of table.
func ColumnRow(table string, c *Column, pos int) []any {
	var def any
	if c.Default != nil {
		def = FormatLiteral(c.Default)
	}
	var fk any
	if c.References != nil {
		fk = c.References.String()
	}
	return []any{
		table,
		c.Name,
		c.DeclaredType(),
		flag(c.NotNull),
		def,
		flag(c.PrimaryKey),
		flag(c.AutoIncrement),
		flag(c.Unique),
		int64(pos),
		nullable(c.Check),
		fk,
	}
}

// ColumnFromRow rebuilds a column from its __columns row and returns the
// owning table name and position.
func ColumnFromRow(row []any) (table string, pos int, c Column, err error) {
	if len(row) < 9 {
		return "", 0, c, fmt.Errorf("catalog column row has %d values", len(row))
	}
	table = asString(row[0])
	decl := asString(row[2])
	c = NewColumn(asString(row[1]), decl)
	if decl == "NULL" {
		c.TypeName = ""
	}
	c.NotNull = asInt(row[3]) != 0
	if s, ok := row[4].(string); ok {
		if c.Default, err = ParseLiteral(s); err != nil {
			return "", 0, c, fmt.Errorf("column %s.%s: %w", table, c.Name, err)
		}
	}
	c.PrimaryKey = asInt(row[5]) != 0
	c.AutoIncrement = asInt(row[6]) != 0
	c.Unique = asInt(row[7]) != 0
	pos = int(asInt(row[8]))
	if len(row) > 9 {
		c.Check = asString(row[9])
	}
	if len(row) > 10 {
		if fk, ok := ParseForeignKey(asString(row[10])); ok {
			c.References = fk
		}
	}
	return table, pos, c, nil
}

// IndexRows returns one __indexes row per indexed column.
func IndexRows(idx *Index) [][]any {
	rows := make([][]any, len(idx.Columns))
	for i, c := range idx.Columns {
		rows[i] = []any{idx.Name, idx.Table, c, flag(idx.Unique), idx.CreatedAt}
	}
	return rows
}

// IndexesFromRows groups __indexes rows by index name, keeping row order.
func IndexesFromRows(rows [][]any) []*Index {
	var out []*Index
	byName := make(map[string]*Index)
	for _, r := range rows {
		if len(r) < 5 {
			continue
		}
		name := asString(r[0])
		idx, ok := byName[key(name)]
		if !ok {
			idx = &Index{
				Name:      name,
				Table:     asString(r[1]),
				Unique:    asInt(r[3]) != 0,
				CreatedAt: asString(r[4]),
			}
			byName[key(name)] = idx
			out = append(out, idx)
		}
		idx.Columns = append(idx.Columns, asString(r[2]))
	}
	return out
}

// ViewRow is the __views row for v.
func ViewRow(v *View) []any {
	return []any{v.Name, v.SQL, EncodeViewDefinition(v.SQL), v.CreatedAt}
}

// ViewFromRow rebuilds a view, preferring the versioned definition.
func ViewFromRow(row []any) (*View, error) {
	if len(row) < 4 {
		return nil, fmt.Errorf("catalog view row has %d values", len(row))
	}
	v := &View{Name: asString(row[0]), SQL: asString(row[1]), CreatedAt: asString(row[3])}
	if def, ok := row[2].([]byte); ok && len(def) > 0 {
		sql, err := DecodeViewDefinition(def)
		if err != nil {
			return nil, fmt.Errorf("view %s: %w", v.Name, err)
		}
		v.SQL = sql
	}
	return v, nil
}

// EncodeViewDefinition stores canonical SQL behind a version byte.
func EncodeViewDefinition(sql string) []byte {
	return append([]byte{viewDefinitionVersion}, sql...)
}

// DecodeViewDefinition reverses EncodeViewDefinition.
func DecodeViewDefinition(b []byte) (string, error) {
	if len(b) == 0 {
		return "", fmt.Errorf("empty view definition")
	}
	if b[0] != viewDefinitionVersion {
		return "", fmt.Errorf("unsupported view definition version %d", b[0])
	}
	return string(b[1:]), nil
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

func asInt(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case float64:
		return int64(x)
	}
	return 0
}
