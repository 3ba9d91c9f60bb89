package engine

import (
	"github.com/FocuswithJustin/RibbitDB/core/errors"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/parser"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/record"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/txn"
	"github.com/FocuswithJustin/RibbitDB/internal/logging"
)

func (e *Engine) execBegin() (*Result, error) {
	if e.txns.Active() != nil {
		return boolResult(false, "a transaction is already active"), nil
	}
	if _, err := e.txns.Begin(); err != nil {
		return nil, err
	}
	return boolResult(true, "Transaction started"), nil
}

// execCommit discards the undo log and flushes. Without a transaction it
// still flushes and reports false.
func (e *Engine) execCommit() (*Result, error) {
	tx := e.txns.Active()
	ok := tx != nil && e.txns.Commit(tx)
	if err := e.Flush(); err != nil {
		return nil, err
	}
	if !ok {
		return boolResult(false, "no active transaction"), nil
	}
	return boolResult(true, "Transaction committed"), nil
}

func (e *Engine) execRollback(s *parser.RollbackStmt) (*Result, error) {
	tx := e.txns.Active()
	if s.Savepoint != "" {
		if tx == nil {
			return nil, errors.NewTransaction("ROLLBACK TO", "no active transaction")
		}
		ops, err := tx.RollbackTo(s.Savepoint)
		if err != nil {
			return nil, err
		}
		if err := e.undo(ops); err != nil {
			return nil, err
		}
		return boolResult(true, "Rolled back to savepoint %s", s.Savepoint), nil
	}

	if tx == nil {
		return boolResult(false, "no active transaction"), nil
	}
	ops, _ := e.txns.Rollback(tx)
	if err := e.undo(ops); err != nil {
		return nil, err
	}
	return boolResult(true, "Transaction rolled back"), nil
}

func (e *Engine) execSavepoint(s *parser.SavepointStmt) (*Result, error) {
	tx := e.txns.Active()
	if tx == nil {
		return nil, errors.NewTransaction("SAVEPOINT", "no active transaction")
	}
	if err := tx.Savepoint(s.Name); err != nil {
		return nil, err
	}
	return boolResult(true, "Savepoint %s created", s.Name), nil
}

func (e *Engine) execRelease(s *parser.ReleaseStmt) (*Result, error) {
	tx := e.txns.Active()
	if tx == nil {
		return nil, errors.NewTransaction("RELEASE", "no active transaction")
	}
	if err := tx.Release(s.Name); err != nil {
		return nil, err
	}
	return boolResult(true, "Savepoint %s released", s.Name), nil
}

// undo applies compensating operations, newest first as given. Tables
// dropped since the operation was logged are skipped.
func (e *Engine) undo(ops []txn.Operation) error {
	touched := make(map[string]bool)
	for _, op := range ops {
		t, ok := e.catalog.Table(op.Table)
		if !ok {
			logging.Warn("undo skipped for missing table", "table", op.Table, "operation", op.Kind.String())
			continue
		}
		var err error
		switch op.Kind {
		case txn.DeleteRow:
			err = e.undoInsert(op)
		case txn.InsertRows:
			for _, r := range op.Rows {
				if err = e.appendRow(t, t.PadRow(r)); err != nil {
					break
				}
			}
		case txn.RestoreTable:
			rows := make([][]any, len(op.Rows))
			for i, r := range op.Rows {
				rows[i] = t.PadRow(r)
			}
			err = e.rewrite(t, rows)
		}
		if err != nil {
			return err
		}
		touched[pageKey(t.Name)] = true
	}
	for name := range touched {
		if t, ok := e.catalog.Table(name); ok {
			e.reindex(t)
		}
	}
	e.results.Invalidate()
	return nil
}

// undoInsert removes the newest row matching the logged key, or the whole
// logged row when the table has no primary key value.
func (e *Engine) undoInsert(op txn.Operation) error {
	t, _ := e.catalog.Table(op.Table)
	rows := e.rows(t)
	pos := -1
	if op.Column != "" {
		pos = t.ColumnIndex(op.Column)
	}
	for i := len(rows) - 1; i >= 0; i-- {
		if !undoMatch(rows[i], op, pos) {
			continue
		}
		return e.rewrite(t, append(rows[:i:i], rows[i+1:]...))
	}
	logging.Warn("undo found no row to remove", "table", t.Name)
	return nil
}

func undoMatch(row []any, op txn.Operation, pos int) bool {
	if pos >= 0 {
		return record.Equal(row[pos], op.Key)
	}
	if len(op.Row) > len(row) {
		return false
	}
	for i, v := range op.Row {
		if !record.Equal(row[i], v) {
			return false
		}
	}
	return true
}
