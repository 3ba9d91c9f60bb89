package engine

import (
	"fmt"
	"slices"

	"github.com/FocuswithJustin/RibbitDB/core/errors"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/parser"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/schema"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/txn"
)

// writable returns the named user table. System tables are maintained by
// the engine and cannot be changed through SQL.
func (e *Engine) writable(name string) (*schema.Table, error) {
	t, ok := e.catalog.Table(name)
	if !ok {
		if _, isView := e.catalog.View(name); isView {
			return nil, errors.NewSchema("view", name, "cannot be modified")
		}
		return nil, errors.NewTableNotFound(name)
	}
	if schema.IsSystemTable(t.Name) {
		return nil, errors.NewSchema("table", t.Name, "is a system table and cannot be modified")
	}
	return t, nil
}

func (e *Engine) execInsert(s *parser.InsertStmt) (*Result, error) {
	t, err := e.writable(s.Table)
	if err != nil {
		return nil, err
	}
	n, err := e.insert(t, s.Columns, s.Values)
	if err != nil {
		return nil, err
	}
	return countResult(n), nil
}

// insert validates every tuple before storing any of them. Missing
// columns are filled by autoincrement, then the column default, then NULL.
func (e *Engine) insert(t *schema.Table, columns []string, tuples [][]parser.Operand) (int64, error) {
	positions := make([]int, len(columns))
	for i, c := range columns {
		positions[i] = t.ColumnIndex(c)
		if positions[i] < 0 {
			return 0, errors.NewColumnNotFound(t.Name, c)
		}
	}
	if len(columns) == 0 {
		positions = make([]int, len(t.Columns))
		for i := range positions {
			positions[i] = i
		}
	}

	now := e.now()
	sc := &scope{rel: &relation{}, now: now}
	var next map[int]int64 // next autoincrement value per column
	rows := make([][]any, 0, len(tuples))
	for _, tuple := range tuples {
		if len(tuple) != len(positions) {
			return 0, errors.NewValidation("values",
				fmt.Sprintf("table %s: %d values for %d columns", t.Name, len(tuple), len(positions)))
		}
		row := make([]any, len(t.Columns))
		given := make([]bool, len(t.Columns))
		for i, op := range tuple {
			v, err := e.value(op, sc)
			if err != nil {
				return 0, err
			}
			row[positions[i]] = v
			given[positions[i]] = true
		}

		for i := range t.Columns {
			c := &t.Columns[i]
			switch {
			case c.AutoIncrement && row[i] == nil:
				if next == nil {
					next = make(map[int]int64)
				}
				if _, ok := next[i]; !ok {
					next[i] = e.maxInt(t, i, rows) + 1
				}
				row[i] = next[i]
				next[i]++
			case !given[i]:
				row[i] = c.DefaultValue(now)
			}
			if v, ok := row[i].(int64); ok && c.AutoIncrement {
				if n, tracked := next[i]; tracked && v >= n {
					next[i] = v + 1
				}
			}
		}

		valid, err := t.ValidateRow(row)
		if err != nil {
			return 0, err
		}
		rows = append(rows, valid)
	}

	tx := e.txns.Active()
	pk := t.PrimaryKey()
	pkPos := t.ColumnIndex(pk)
	ixs := e.tableIndexes(t.Name)
	for _, row := range rows {
		if err := e.appendRow(t, row); err != nil {
			return 0, err
		}
		for _, ix := range ixs {
			ix.add(row)
		}
		if tx != nil {
			op := txn.Operation{Kind: txn.DeleteRow, Table: t.Name, Row: row}
			if pkPos >= 0 && row[pkPos] != nil {
				op.Column, op.Key = pk, row[pkPos]
			}
			tx.Log(op)
		}
	}
	return int64(len(rows)), nil
}

// maxInt is the largest integer in column i among stored and pending rows,
// or 0.
func (e *Engine) maxInt(t *schema.Table, i int, pending [][]any) int64 {
	var best int64
	for _, set := range [][][]any{e.rows(t), pending} {
		for _, r := range set {
			if v, ok := r[i].(int64); ok && v > best {
				best = v
			}
		}
	}
	return best
}

func (e *Engine) execUpdate(s *parser.UpdateStmt) (*Result, error) {
	t, err := e.writable(s.Table)
	if err != nil {
		return nil, err
	}
	positions := make([]int, len(s.Set))
	for i, a := range s.Set {
		if positions[i] = t.ColumnIndex(a.Column); positions[i] < 0 {
			return nil, errors.NewColumnNotFound(t.Name, a.Column)
		}
	}

	rel := tableRelation(t)
	if err := check(s.Where, rel, nil); err != nil {
		return nil, err
	}
	for _, a := range s.Set {
		if err := checkOperand(a.Value, rel, nil); err != nil {
			return nil, err
		}
	}

	rel.rows = e.rows(t)
	sc := &scope{rel: rel, now: e.now()}
	updated := make([][]any, len(rel.rows))
	var affected int64
	for i, row := range rel.rows {
		sc.row = row
		ok, err := e.matches(s.Where, sc)
		if err != nil {
			return nil, err
		}
		if !ok {
			updated[i] = row
			continue
		}
		next := slices.Clone(row)
		for j, a := range s.Set {
			if next[positions[j]], err = e.value(a.Value, sc); err != nil {
				return nil, err
			}
		}
		if updated[i], err = t.ValidateRow(next); err != nil {
			return nil, err
		}
		affected++
	}

	if affected > 0 {
		if err := e.replace(t, rel.rows, updated); err != nil {
			return nil, err
		}
	}
	return countResult(affected), nil
}

func (e *Engine) execDelete(s *parser.DeleteStmt) (*Result, error) {
	t, err := e.writable(s.Table)
	if err != nil {
		return nil, err
	}
	rel := tableRelation(t)
	if err := check(s.Where, rel, nil); err != nil {
		return nil, err
	}
	rel.rows = e.rows(t)
	sc := &scope{rel: rel, now: e.now()}
	var kept [][]any
	for _, row := range rel.rows {
		sc.row = row
		ok, err := e.matches(s.Where, sc)
		if err != nil {
			return nil, err
		}
		if !ok {
			kept = append(kept, row)
		}
	}

	affected := int64(len(rel.rows) - len(kept))
	if affected > 0 {
		if err := e.replace(t, rel.rows, kept); err != nil {
			return nil, err
		}
	}
	return countResult(affected), nil
}

// replace rewrites t with rows, logging the prior rows for undo.
func (e *Engine) replace(t *schema.Table, prior, rows [][]any) error {
	if err := e.rewrite(t, rows); err != nil {
		return err
	}
	if tx := e.txns.Active(); tx != nil {
		tx.Log(txn.Operation{Kind: txn.RestoreTable, Table: t.Name, Rows: prior})
	}
	e.reindex(t)
	return nil
}

// tableRelation is an empty relation with the columns of t.
func tableRelation(t *schema.Table) *relation {
	rel := &relation{}
	for _, c := range t.Columns {
		rel.cols = append(rel.cols, column{qual: t.Name, table: t.Name, name: c.Name})
	}
	return rel
}
