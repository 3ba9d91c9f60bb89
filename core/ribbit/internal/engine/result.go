package engine

import (
	"fmt"
	"slices"
)

// ResultKind tells which fields of a Result are meaningful.
type ResultKind int

// Result kinds
const (
	// KindRows carries Columns and Rows.
	KindRows ResultKind = iota
	// KindCount carries Affected.
	KindCount
	// KindBool carries OK and usually a Message.
	KindBool
	// KindMessage carries Message.
	KindMessage
)

func (k ResultKind) String() string {
	switch k {
	case KindRows:
		return "rows"
	case KindCount:
		return "count"
	case KindBool:
		return "bool"
	case KindMessage:
		return "message"
	}
	return fmt.Sprintf("ResultKind(%d)", int(k))
}

// Result represents the result of executing a SQL statement.
// Results served from the query cache own their Columns and Rows slices
// but share the row values, which must not be modified.
type Result struct {
	Kind ResultKind

	// Columns contains the names of result columns (for KindRows)
	Columns []string

	// Rows contains all result rows (for KindRows)
	Rows [][]any

	// Affected is the number of rows changed by INSERT, UPDATE or DELETE
	Affected int64

	// OK is the outcome of DDL and transaction control statements
	OK bool

	Message string
}

// clone copies r with its own Columns and Rows slices.
func (r *Result) clone() *Result {
	cp := *r
	cp.Columns = slices.Clone(r.Columns)
	cp.Rows = slices.Clone(r.Rows)
	return &cp
}

// RowCount returns the number of rows in the result.
func (r *Result) RowCount() int {
	return len(r.Rows)
}

// Maps returns the rows keyed by column name. When two columns share a
// name the later one wins.
func (r *Result) Maps() []map[string]any {
	out := make([]map[string]any, len(r.Rows))
	for i, row := range r.Rows {
		m := make(map[string]any, len(r.Columns))
		for j, c := range r.Columns {
			if j < len(row) {
				m[c] = row[j]
			}
		}
		out[i] = m
	}
	return out
}

func rowsResult(columns []string, rows [][]any) *Result {
	if rows == nil {
		rows = [][]any{}
	}
	return &Result{Kind: KindRows, Columns: columns, Rows: rows}
}

func countResult(n int64) *Result {
	return &Result{Kind: KindCount, Affected: n}
}

func boolResult(ok bool, format string, args ...any) *Result {
	return &Result{Kind: KindBool, OK: ok, Message: fmt.Sprintf(format, args...)}
}

func messageResult(format string, args ...any) *Result {
	return &Result{Kind: KindMessage, OK: true, Message: fmt.Sprintf(format, args...)}
}

// size is the row count logged for a statement.
func (r *Result) size() int64 {
	if r.Kind == KindCount {
		return r.Affected
	}
	return int64(len(r.Rows))
}
