package engine

import (
	"fmt"
	"slices"
	"strings"

	"github.com/FocuswithJustin/RibbitDB/core/errors"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/parser"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/schema"
	"github.com/FocuswithJustin/RibbitDB/internal/logging"
)

// pragmaArg returns the first argument of a pragma as a name.
func pragmaArg(s *parser.PragmaStmt) string {
	ops := s.Args
	if len(ops) == 0 && s.Value != nil {
		ops = []parser.Operand{s.Value}
	}
	if len(ops) == 0 {
		return ""
	}
	switch o := ops[0].(type) {
	case *parser.ColumnRef:
		return o.Column
	case *parser.Literal:
		if str, ok := o.Value.(string); ok {
			return str
		}
	}
	return ""
}

func (e *Engine) execPragma(s *parser.PragmaStmt) (*Result, error) {
	switch s.Name {
	case "table_exists":
		var exists int64
		if e.catalog.TableExists(pragmaArg(s)) {
			exists = 1
		}
		return rowsResult([]string{"exists"}, [][]any{{exists}}), nil

	case "table_info":
		name := pragmaArg(s)
		if !e.catalog.TableExists(name) {
			return nil, errors.NewTableNotFound(name)
		}
		columnsT := e.systemTable(schema.ColumnsTable)
		var rows [][]any
		for _, r := range e.rows(columnsT) {
			if named(0, name)(r) {
				rows = append(rows, r)
			}
		}
		slices.SortStableFunc(rows, func(a, b []any) int {
			pa, _ := a[8].(int64)
			pb, _ := b[8].(int64)
			return int(pa - pb)
		})
		return rowsResult(columnsT.ColumnNames(), rows), nil

	case "database_list":
		return rowsResult([]string{"seq", "name", "file"}, [][]any{{int64(0), "main", e.pager.Path()}}), nil

	case "page_size":
		return rowsResult([]string{"page_size"}, [][]any{{int64(e.pager.PageSize())}}), nil

	case "page_count":
		return rowsResult([]string{"page_count"}, [][]any{{int64(e.pager.PageCount())}}), nil

	case "integrity_check":
		var rows [][]any
		for _, p := range e.IntegrityCheck() {
			rows = append(rows, []any{p})
		}
		return rowsResult([]string{"integrity_check"}, rows), nil
	}
	logging.Debug("unknown pragma", "pragma", s.Name)
	return rowsResult(nil, nil), nil
}

// IntegrityCheck reads every table and reports rows that fail to decode
// or verify and page map entries without a table. It returns ["ok"] when
// nothing is wrong.
func (e *Engine) IntegrityCheck() []string {
	var problems []string
	for _, t := range e.catalog.Tables() {
		if _, corrupt := e.scan(t); corrupt > 0 {
			problems = append(problems, fmt.Sprintf("table %s: %d corrupt rows", t.Name, corrupt))
		}
	}
	for _, k := range sortedKeys(e.meta.Tables) {
		if !e.catalog.TableExists(k) {
			problems = append(problems, fmt.Sprintf("page map entry %s has no table", k))
		}
	}
	if len(problems) == 0 {
		return []string{"ok"}
	}
	return problems
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (e *Engine) execDescribe(s *parser.DescribeStmt) (*Result, error) {
	t, ok := e.catalog.Table(s.Table)
	if !ok {
		return nil, errors.NewTableNotFound(s.Table)
	}
	indexed := make(map[string]bool)
	for _, idx := range e.catalog.Indexes(t.Name) {
		indexed[strings.ToLower(idx.Columns[0])] = true
	}

	rows := make([][]any, len(t.Columns))
	for i, c := range t.Columns {
		null := "YES"
		if c.NotNull || c.PrimaryKey {
			null = "NO"
		}
		var key string
		switch {
		case c.PrimaryKey:
			key = "PRI"
		case c.Unique:
			key = "UNI"
		case indexed[strings.ToLower(c.Name)]:
			key = "MUL"
		}
		var def any
		if c.Default != nil {
			def = schema.FormatLiteral(c.Default)
		}
		var extra string
		if c.AutoIncrement {
			extra = "autoincrement"
		}
		rows[i] = []any{c.Name, c.DeclaredType(), null, key, def, extra}
	}
	return rowsResult([]string{"Field", "Type", "Null", "Key", "Default", "Extra"}, rows), nil
}

func (e *Engine) execShow(s *parser.ShowStmt) (*Result, error) {
	if !s.Indexes {
		var rows [][]any
		for _, t := range e.catalog.UserTables() {
			rows = append(rows, []any{t.Name})
		}
		return rowsResult([]string{"table_name"}, rows), nil
	}

	if s.Table != "" && !e.catalog.TableExists(s.Table) {
		return nil, errors.NewTableNotFound(s.Table)
	}
	indexesT := e.systemTable(schema.IndexesTable)
	var rows [][]any
	for _, r := range e.rows(indexesT) {
		if s.Table == "" || named(1, s.Table)(r) {
			rows = append(rows, r)
		}
	}
	return rowsResult(indexesT.ColumnNames(), rows), nil
}

// step is one line of an EXPLAIN plan.
type step struct {
	op     string
	detail string
}

func (e *Engine) execExplain(s *parser.ExplainStmt) (*Result, error) {
	steps := e.plan(s.Stmt)
	rows := make([][]any, len(steps))
	for i, st := range steps {
		rows[i] = []any{int64(i), st.op, st.detail}
	}
	return rowsResult([]string{"id", "operation", "detail"}, rows), nil
}

// plan describes how a statement would run. Nothing is executed.
func (e *Engine) plan(stmt parser.Statement) []step {
	switch s := stmt.(type) {
	case *parser.SelectStmt:
		return e.selectPlan(s)
	case *parser.InsertStmt:
		return []step{{"INSERT", fmt.Sprintf("%s (%d rows)", s.Table, len(s.Values))}}
	case *parser.UpdateStmt:
		cols := make([]string, len(s.Set))
		for i, a := range s.Set {
			cols[i] = a.Column
		}
		return append(e.scanPlan(s.Table, s.Where), step{"UPDATE", s.Table + " SET " + strings.Join(cols, ", ")})
	case *parser.DeleteStmt:
		return append(e.scanPlan(s.Table, s.Where), step{"DELETE", s.Table})
	case *parser.ExplainStmt:
		return e.plan(s.Stmt)
	}
	return []step{{stmt.Kind(), stmt.String()}}
}

func (e *Engine) scanPlan(table string, where *parser.Predicate) []step {
	steps := []step{{"SCAN", table}}
	if where != nil {
		steps = append(steps, step{"FILTER", where.String()})
	}
	return steps
}

func (e *Engine) selectPlan(s *parser.SelectStmt) []step {
	steps := []step{{"CONSTANT", "single row"}}
	if s.From != nil {
		steps = []step{e.sourcePlan(s)}
	}
	for _, j := range s.Joins {
		steps = append(steps, step{"JOIN", j.String()})
	}
	if s.Where != nil {
		steps = append(steps, step{"FILTER", s.Where.String()})
	}

	if len(s.GroupBy) > 0 || s.HasAggregates() {
		detail := "all rows"
		if len(s.GroupBy) > 0 {
			names := make([]string, len(s.GroupBy))
			for i, g := range s.GroupBy {
				names[i] = g.String()
			}
			detail = strings.Join(names, ", ")
		}
		steps = append(steps, step{"GROUP", detail})
		if s.Having != nil {
			steps = append(steps, step{"HAVING", s.Having.String()})
		}
	}

	cols := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = c.String()
	}
	steps = append(steps, step{"PROJECT", strings.Join(cols, ", ")})
	if s.Distinct {
		steps = append(steps, step{"DISTINCT", ""})
	}

	if len(s.OrderBy) > 0 {
		terms := make([]string, len(s.OrderBy))
		for i, o := range s.OrderBy {
			terms[i] = o.Expr.String()
			if o.Desc {
				terms[i] += " DESC"
			}
		}
		steps = append(steps, step{"SORT", strings.Join(terms, ", ")})
	}
	if s.Offset != nil {
		steps = append(steps, step{"OFFSET", s.Offset.String()})
	}
	if s.Limit != nil {
		steps = append(steps, step{"LIMIT", s.Limit.String()})
	}

	if s.Union != nil {
		op := "UNION"
		if s.Union.All {
			op = "UNION ALL"
		}
		steps = append(steps, step{op, ""})
		steps = append(steps, e.selectPlan(s.Union.Select)...)
	}
	return steps
}

func (e *Engine) sourcePlan(s *parser.SelectStmt) step {
	name := s.From.Name
	if t, ok := e.catalog.Table(name); ok {
		if len(s.Joins) == 0 {
			if ix, _ := e.seek(t, s.Where); ix != nil {
				return step{"SEARCH", fmt.Sprintf("%s USING INDEX %s (%s = ?)", t.Name, ix.def.Name, ix.def.Columns[0])}
			}
		}
		if schema.IsSystemTable(t.Name) {
			return step{"SCAN", "system table " + t.Name}
		}
		return step{"SCAN", t.Name}
	}
	if v, ok := e.catalog.View(name); ok {
		return step{"SCAN", "view " + v.Name}
	}
	return step{"SCAN", name + " (missing)"}
}
