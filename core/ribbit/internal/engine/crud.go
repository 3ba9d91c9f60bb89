package engine

import (
	"slices"

	"github.com/FocuswithJustin/RibbitDB/core/errors"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/pager"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/parser"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/record"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/schema"
)

// The helpers below build statements and run them like parsed SQL, so
// they are logged, replicated and undone the same way.

// CreateTable creates a table from column definitions.
func (e *Engine) CreateTable(name string, columns []schema.Column) error {
	stmt := &parser.CreateTableStmt{Name: name}
	for _, c := range columns {
		stmt.Columns = append(stmt.Columns, columnDef(c))
	}
	_, err := e.run(stmt, stmt.String(), nil)
	return err
}

// Insert stores one row given as column values.
func (e *Engine) Insert(table string, values map[string]any) (int64, error) {
	if len(values) == 0 {
		return 0, errors.NewValidation("values", "no columns given")
	}
	stmt := &parser.InsertStmt{Table: table}
	tuple := make([]parser.Operand, 0, len(values))
	for _, k := range sortedKeys(values) {
		v, err := record.Normalize(values[k])
		if err != nil {
			return 0, errors.NewValidation(k, err.Error())
		}
		stmt.Columns = append(stmt.Columns, k)
		tuple = append(tuple, &parser.Literal{Value: v})
	}
	stmt.Values = [][]parser.Operand{tuple}
	res, err := e.run(stmt, stmt.String(), nil)
	if err != nil {
		return 0, err
	}
	return res.Affected, nil
}

// Select returns the rows of table whose columns equal every value in
// where. An empty where matches all rows.
func (e *Engine) Select(table string, where map[string]any) ([]map[string]any, error) {
	pred, err := equalities(where)
	if err != nil {
		return nil, err
	}
	stmt := &parser.SelectStmt{
		Columns: []parser.ResultColumn{{Star: true}},
		From:    &parser.TableRef{Name: table},
		Where:   pred,
	}
	res, err := e.run(stmt, stmt.String(), nil)
	if err != nil {
		return nil, err
	}
	return res.Maps(), nil
}

// Delete removes the rows matching where and returns how many were
// removed. An empty where removes every row.
func (e *Engine) Delete(table string, where map[string]any) (int64, error) {
	pred, err := equalities(where)
	if err != nil {
		return 0, err
	}
	stmt := &parser.DeleteStmt{Table: table, Where: pred}
	res, err := e.run(stmt, stmt.String(), nil)
	if err != nil {
		return 0, err
	}
	return res.Affected, nil
}

// TableExists reports whether a table, including a system table, exists.
func (e *Engine) TableExists(name string) bool {
	return e.catalog.TableExists(name)
}

// equalities builds col = value AND ... in column name order.
func equalities(where map[string]any) (*parser.Predicate, error) {
	var pred *parser.Predicate
	for _, k := range sortedKeys(where) {
		v, err := record.Normalize(where[k])
		if err != nil {
			return nil, errors.NewValidation(k, err.Error())
		}
		c := &parser.Condition{Left: &parser.ColumnRef{Column: k}, Op: parser.OpEq, Right: &parser.Literal{Value: v}}
		if pred == nil {
			pred = &parser.Predicate{First: c}
			continue
		}
		pred.Rest = append(pred.Rest, parser.Link{Conj: parser.ConjAnd, Cond: c})
	}
	return pred, nil
}

// Migration is one applied schema migration.
type Migration struct {
	ID        int64
	Name      string
	AppliedAt string
}

// RecordMigration marks name as applied. Recording the same name twice
// is an error. Inside a transaction the record is rolled back with it.
func (e *Engine) RecordMigration(name string) error {
	if name == "" {
		return errors.NewValidation("name", "migration name is empty")
	}
	if e.pager.ReadOnly() {
		return errors.NewOperational("record migration", e.pager.Path(), pager.ErrReadOnly)
	}
	t := e.systemTable(schema.MigrationsTable)
	for _, r := range e.rows(t) {
		if applied, _ := r[1].(string); applied == name {
			return errors.NewMigration(name, "already applied at "+record.Format(r[2]))
		}
	}
	_, err := e.insert(t, []string{"name", "applied_at"},
		[][]parser.Operand{{&parser.Literal{Value: name}, &parser.Literal{Value: e.timestamp()}}})
	if err != nil {
		return err
	}
	e.results.Invalidate()
	return nil
}

// Migrations lists applied migrations in the order they were recorded.
func (e *Engine) Migrations() []Migration {
	rows := e.rows(e.systemTable(schema.MigrationsTable))
	out := make([]Migration, 0, len(rows))
	for _, r := range rows {
		m := Migration{}
		m.ID, _ = r[0].(int64)
		m.Name, _ = r[1].(string)
		m.AppliedAt, _ = r[2].(string)
		out = append(out, m)
	}
	slices.SortStableFunc(out, func(a, b Migration) int { return int(a.ID - b.ID) })
	return out
}
