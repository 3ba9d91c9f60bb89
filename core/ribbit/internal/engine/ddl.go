package engine

import (
	"fmt"
	"strings"

	"github.com/FocuswithJustin/RibbitDB/core/errors"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/parser"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/schema"
)

// Catalog rows are written directly: DDL is not logged for undo.

func (e *Engine) systemTable(name string) *schema.Table {
	t, _ := e.catalog.Table(name)
	return t
}

func (e *Engine) catalogAppend(table string, row []any) error {
	t := e.systemTable(table)
	valid, err := t.ValidateRow(row)
	if err != nil {
		return err
	}
	return e.appendRow(t, valid)
}

// catalogDelete removes the rows of a system table for which match holds.
func (e *Engine) catalogDelete(table string, match func(row []any) bool) error {
	t := e.systemTable(table)
	rows := e.rows(t)
	kept := rows[:0:0]
	for _, r := range rows {
		if !match(r) {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(rows) {
		return nil
	}
	return e.rewrite(t, kept)
}

// catalogUpdate rewrites a system table when fn reports a change to any
// row. fn edits rows in place.
func (e *Engine) catalogUpdate(table string, fn func(row []any) bool) error {
	t := e.systemTable(table)
	rows := e.rows(t)
	changed := false
	for _, r := range rows {
		if fn(r) {
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return e.rewrite(t, rows)
}

// named matches catalog rows whose column i holds name, ignoring case.
func named(i int, name string) func(row []any) bool {
	return func(row []any) bool {
		s, _ := row[i].(string)
		return strings.EqualFold(s, name)
	}
}

// columnDef converts a catalog column back into its definition.
func columnDef(c schema.Column) *parser.ColumnDef {
	return &parser.ColumnDef{
		Name:          c.Name,
		Type:          c.TypeName,
		PrimaryKey:    c.PrimaryKey,
		AutoIncrement: c.AutoIncrement,
		NotNull:       c.NotNull,
		Unique:        c.Unique,
		HasDefault:    c.Default != nil,
		Default:       c.Default,
		Check:         c.Check,
		References:    c.References,
	}
}

// tableSQL renders the CREATE TABLE statement for the current columns.
func tableSQL(t *schema.Table) string {
	stmt := &parser.CreateTableStmt{Name: t.Name}
	for _, c := range t.Columns {
		stmt.Columns = append(stmt.Columns, columnDef(c))
	}
	return stmt.String()
}

func (e *Engine) nameTaken(name string) error {
	if e.catalog.TableExists(name) {
		return errors.NewTableExists(name)
	}
	if _, ok := e.catalog.View(name); ok {
		return errors.NewSchema("view", name, "already exists")
	}
	return nil
}

func (e *Engine) execCreateTable(s *parser.CreateTableStmt) (*Result, error) {
	if err := e.nameTaken(s.Name); err != nil {
		if s.IfNotExists {
			return boolResult(false, "table %s already exists", s.Name), nil
		}
		return nil, err
	}
	cols := make([]schema.Column, 0, len(s.Columns))
	seen := make(map[string]bool)
	for _, def := range s.Columns {
		if seen[strings.ToLower(def.Name)] {
			return nil, errors.NewSchema("column", s.Name+"."+def.Name, "is declared twice")
		}
		seen[strings.ToLower(def.Name)] = true
		cols = append(cols, def.Column())
	}
	if err := e.createTable(s.Name, cols, s.String()); err != nil {
		return nil, err
	}
	return boolResult(true, "Table %s created", s.Name), nil
}

// createTable registers a table, mirrors it into __tables and __columns
// and indexes its primary key. No pages are allocated until the first
// insert.
func (e *Engine) createTable(name string, cols []schema.Column, sql string) error {
	if len(cols) == 0 {
		return errors.NewSchema("table", name, "must have at least one column")
	}
	t := schema.NewTable(name, cols)
	t.SQL = sql
	pk := t.PrimaryKey()
	if _, exists := e.catalog.Index(schema.PrimaryKeyIndex(name)); pk != "" && exists {
		return errors.NewSchema("index", schema.PrimaryKeyIndex(name), "already exists")
	}
	if err := e.catalog.CreateTable(t); err != nil {
		return err
	}
	created := e.timestamp()
	if err := e.catalogAppend(schema.TablesTable, schema.TableRow(t, created)); err != nil {
		return err
	}
	for i := range t.Columns {
		if err := e.catalogAppend(schema.ColumnsTable, schema.ColumnRow(t.Name, &t.Columns[i], i)); err != nil {
			return err
		}
	}
	if pk == "" {
		return nil
	}
	return e.createIndex(&schema.Index{
		Name:      schema.PrimaryKeyIndex(t.Name),
		Table:     t.Name,
		Columns:   []string{pk},
		Unique:    true,
		CreatedAt: created,
	})
}

func (e *Engine) createIndex(def *schema.Index) error {
	if err := e.catalog.CreateIndex(def); err != nil {
		return err
	}
	for _, row := range schema.IndexRows(def) {
		if err := e.catalogAppend(schema.IndexesTable, row); err != nil {
			return err
		}
	}
	return e.buildIndex(def)
}

func (e *Engine) execCreateIndex(s *parser.CreateIndexStmt) (*Result, error) {
	if _, exists := e.catalog.Index(s.Name); exists {
		if s.IfNotExists {
			return boolResult(false, "index %s already exists", s.Name), nil
		}
		return nil, errors.NewSchema("index", s.Name, "already exists")
	}
	if _, err := e.writable(s.Table); err != nil {
		return nil, err
	}
	def := &schema.Index{
		Name:      s.Name,
		Table:     s.Table,
		Columns:   append([]string(nil), s.Columns...),
		Unique:    s.Unique,
		CreatedAt: e.timestamp(),
	}
	if err := e.createIndex(def); err != nil {
		return nil, err
	}
	return boolResult(true, "Index %s created", s.Name), nil
}

// checkSources verifies that every table a SELECT reads exists.
func (e *Engine) checkSources(s *parser.SelectStmt) error {
	for ; s != nil; s = unionNext(s) {
		refs := make([]string, 0, 1+len(s.Joins))
		if s.From != nil {
			refs = append(refs, s.From.Name)
		}
		for _, j := range s.Joins {
			refs = append(refs, j.Table.Name)
		}
		for _, name := range refs {
			if _, isView := e.catalog.View(name); !isView && !e.catalog.TableExists(name) {
				return errors.NewTableNotFound(name)
			}
		}
	}
	return nil
}

func unionNext(s *parser.SelectStmt) *parser.SelectStmt {
	if s.Union == nil {
		return nil
	}
	return s.Union.Select
}

func (e *Engine) execCreateView(s *parser.CreateViewStmt) (*Result, error) {
	if err := e.nameTaken(s.Name); err != nil {
		if s.IfNotExists {
			return boolResult(false, "view %s already exists", s.Name), nil
		}
		return nil, err
	}
	if err := e.checkSources(s.Select); err != nil {
		return nil, err
	}
	v := &schema.View{Name: s.Name, SQL: s.Select.String(), CreatedAt: e.timestamp()}
	if err := e.catalog.CreateView(v); err != nil {
		return nil, err
	}
	if err := e.catalogAppend(schema.ViewsTable, schema.ViewRow(v)); err != nil {
		return nil, err
	}
	return messageResult("View %s created", s.Name), nil
}

func (e *Engine) execDropTable(s *parser.DropTableStmt) (*Result, error) {
	if !e.catalog.TableExists(s.Name) && s.IfExists {
		return boolResult(false, "table %s does not exist", s.Name), nil
	}
	t, err := e.writable(s.Name)
	if err != nil {
		return nil, err
	}
	name := t.Name
	dropped, err := e.catalog.DropTable(name)
	if err != nil {
		return nil, err
	}
	for _, idx := range dropped {
		delete(e.indexes, indexName(idx.Name))
	}
	if err := e.catalogDelete(schema.TablesTable, named(0, name)); err != nil {
		return nil, err
	}
	if err := e.catalogDelete(schema.ColumnsTable, named(0, name)); err != nil {
		return nil, err
	}
	if err := e.catalogDelete(schema.IndexesTable, named(1, name)); err != nil {
		return nil, err
	}
	delete(e.meta.Tables, pageKey(name))
	return boolResult(true, "Table %s dropped", name), nil
}

func (e *Engine) execDropIndex(s *parser.DropIndexStmt) (*Result, error) {
	if _, ok := e.catalog.Index(s.Name); !ok && s.IfExists {
		return boolResult(false, "index %s does not exist", s.Name), nil
	}
	idx, err := e.catalog.DropIndex(s.Name)
	if err != nil {
		return nil, err
	}
	delete(e.indexes, indexName(idx.Name))
	if err := e.catalogDelete(schema.IndexesTable, named(0, idx.Name)); err != nil {
		return nil, err
	}
	return boolResult(true, "Index %s dropped", idx.Name), nil
}

func (e *Engine) execDropView(s *parser.DropViewStmt) (*Result, error) {
	if _, ok := e.catalog.View(s.Name); !ok && s.IfExists {
		return boolResult(false, "view %s does not exist", s.Name), nil
	}
	v, err := e.catalog.DropView(s.Name)
	if err != nil {
		return nil, err
	}
	if err := e.catalogDelete(schema.ViewsTable, named(0, v.Name)); err != nil {
		return nil, err
	}
	return boolResult(true, "View %s dropped", v.Name), nil
}

func (e *Engine) execAlterTable(s *parser.AlterTableStmt) (*Result, error) {
	t, err := e.writable(s.Table)
	if err != nil {
		return nil, err
	}
	if s.RenameTo != "" {
		return e.renameTable(t, s.RenameTo)
	}
	return e.addColumn(t, s.AddColumn)
}

func (e *Engine) renameTable(t *schema.Table, to string) (*Result, error) {
	from := t.Name
	if !strings.EqualFold(from, to) {
		if err := e.nameTaken(to); err != nil {
			return nil, err
		}
	}
	pkFrom, pkTo := schema.PrimaryKeyIndex(from), schema.PrimaryKeyIndex(to)
	def, hasPK := e.catalog.Index(pkFrom)
	hasPK = hasPK && strings.EqualFold(def.Table, from)
	if _, err := e.catalog.RenameTable(from, to); err != nil {
		return nil, err
	}
	if ix, ok := e.indexes[indexName(pkFrom)]; ok && hasPK {
		delete(e.indexes, indexName(pkFrom))
		e.indexes[indexName(pkTo)] = ix
	}
	t.SQL = tableSQL(t)

	err := e.catalogUpdate(schema.TablesTable, func(row []any) bool {
		if !named(0, from)(row) {
			return false
		}
		row[0], row[2] = to, t.SQL
		return true
	})
	if err == nil {
		err = e.catalogUpdate(schema.ColumnsTable, func(row []any) bool {
			if !named(0, from)(row) {
				return false
			}
			row[0] = to
			return true
		})
	}
	if err == nil {
		err = e.catalogUpdate(schema.IndexesTable, func(row []any) bool {
			if !named(1, from)(row) {
				return false
			}
			if hasPK && named(0, pkFrom)(row) {
				row[0] = pkTo
			}
			row[1] = to
			return true
		})
	}
	if err != nil {
		return nil, err
	}

	if pages, ok := e.meta.Tables[pageKey(from)]; ok {
		delete(e.meta.Tables, pageKey(from))
		e.meta.Tables[pageKey(to)] = pages
	}
	return boolResult(true, "Table %s renamed to %s", from, to), nil
}

func (e *Engine) addColumn(t *schema.Table, def *parser.ColumnDef) (*Result, error) {
	col := def.Column()
	if col.NotNull && col.StoredDefault() == nil && len(e.rows(t)) > 0 {
		return nil, errors.NewConstraint("NOT NULL",
			fmt.Sprintf("cannot add NOT NULL column '%s' without a default to non-empty table '%s'", col.Name, t.Name))
	}
	if err := t.AddColumn(col); err != nil {
		return nil, err
	}
	pos := len(t.Columns) - 1
	if err := e.catalogAppend(schema.ColumnsTable, schema.ColumnRow(t.Name, &t.Columns[pos], pos)); err != nil {
		return nil, err
	}
	t.SQL = tableSQL(t)
	err := e.catalogUpdate(schema.TablesTable, func(row []any) bool {
		if !named(0, t.Name)(row) {
			return false
		}
		row[2] = t.SQL
		return true
	})
	if err != nil {
		return nil, err
	}
	e.reindex(t)
	return boolResult(true, "Column %s added to %s", col.Name, t.Name), nil
}
