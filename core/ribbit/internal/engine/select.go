package engine

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/RibbitDB/core/errors"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/parser"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/record"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/schema"
)

// maxViewDepth bounds view expansion so a view cycle cannot recurse forever.
const maxViewDepth = 32

// output is a projected row together with the source row it came from,
// which ORDER BY may still reference.
type output struct {
	vals []any
	src  []any
}

func (e *Engine) execSelect(s *parser.SelectStmt) (*Result, error) {
	cols, rows, err := e.query(s, 0)
	if err != nil {
		return nil, err
	}
	return rowsResult(cols, rows), nil
}

// query runs the SELECT pipeline: source, joins, WHERE, grouping or
// projection, ORDER BY, OFFSET, LIMIT, then UNION.
func (e *Engine) query(s *parser.SelectStmt, depth int) ([]string, [][]any, error) {
	if depth > maxViewDepth {
		return nil, nil, errors.NewSchema("view", "", "views nest too deeply")
	}
	rel, err := e.from(s, depth)
	if err != nil {
		return nil, nil, err
	}

	sc := &scope{rel: rel, now: e.now()}
	if err := check(s.Where, rel, nil); err != nil {
		return nil, nil, err
	}
	if s.Where != nil {
		kept := rel.rows[:0:0]
		for _, row := range rel.rows {
			sc.row = row
			ok, err := e.matches(s.Where, sc)
			if err != nil {
				return nil, nil, err
			}
			if ok {
				kept = append(kept, row)
			}
		}
		rel.rows = kept
	}

	var names []string
	var out []output
	if len(s.GroupBy) > 0 || s.HasAggregates() || s.Having != nil {
		names, out, err = e.group(s, rel)
	} else {
		names, out, err = e.project(s, rel)
	}
	if err != nil {
		return nil, nil, err
	}

	if len(s.OrderBy) > 0 {
		if err := e.order(s, rel, names, out); err != nil {
			return nil, nil, err
		}
	}

	if s.Offset != nil {
		n, err := e.intValue(s.Offset, "OFFSET")
		if err != nil {
			return nil, nil, err
		}
		out = out[min(max(n, 0), int64(len(out))):]
	}
	if s.Limit != nil {
		n, err := e.intValue(s.Limit, "LIMIT")
		if err != nil {
			return nil, nil, err
		}
		if n >= 0 && n < int64(len(out)) {
			out = out[:n]
		}
	}

	rows := make([][]any, len(out))
	for i, o := range out {
		rows[i] = o.vals
	}

	if s.Union != nil {
		other, more, err := e.query(s.Union.Select, depth)
		if err != nil {
			return nil, nil, err
		}
		if len(other) != len(names) {
			return nil, nil, errors.NewValidation("UNION",
				fmt.Sprintf("SELECTs to the left and right of UNION do not have the same number of result columns (%d and %d)", len(names), len(other)))
		}
		rows = append(rows, more...)
		if !s.Union.All {
			rows = distinct(rows)
		}
	}
	return names, rows, nil
}

// from builds the source relation and applies the joins.
func (e *Engine) from(s *parser.SelectStmt, depth int) (*relation, error) {
	if s.From == nil {
		return &relation{rows: [][]any{{}}}, nil
	}
	rel, err := e.source(s.From, s.Where, len(s.Joins) == 0, depth)
	if err != nil {
		return nil, err
	}
	for _, j := range s.Joins {
		right, err := e.source(&j.Table, nil, false, depth)
		if err != nil {
			return nil, err
		}
		if rel, err = join(rel, right, j); err != nil {
			return nil, err
		}
	}
	return rel, nil
}

// source materializes a table, system table or view. When useIndex is
// set and where pins an indexed column to a literal, only that key's rows
// are read.
func (e *Engine) source(ref *parser.TableRef, where *parser.Predicate, useIndex bool, depth int) (*relation, error) {
	if t, ok := e.catalog.Table(ref.Name); ok {
		rel := &relation{}
		for _, c := range t.Columns {
			rel.cols = append(rel.cols, column{qual: ref.Ref(), table: t.Name, name: c.Name})
		}
		if useIndex {
			if ix, key := e.seek(t, where); ix != nil {
				bucket, _ := ix.tree.Search(key)
				rel.rows = cloneRows(bucket)
				return rel, nil
			}
		}
		rel.rows = e.rows(t)
		return rel, nil
	}

	if v, ok := e.catalog.View(ref.Name); ok {
		stmt, err := parser.ParseOne(v.SQL)
		if err != nil {
			return nil, errors.Wrapf(err, "view %s", v.Name)
		}
		sel, ok := stmt.(*parser.SelectStmt)
		if !ok {
			return nil, errors.NewSchema("view", v.Name, "definition is not a SELECT")
		}
		names, rows, err := e.query(sel, depth+1)
		if err != nil {
			return nil, err
		}
		rel := &relation{rows: rows}
		for _, n := range names {
			rel.cols = append(rel.cols, column{qual: ref.Ref(), table: v.Name, name: n})
		}
		return rel, nil
	}
	return nil, errors.NewTableNotFound(ref.Name)
}

// seek finds an index usable for where: an AND-only chain containing
// col = literal on the first column of a single-column index.
func (e *Engine) seek(t *schema.Table, where *parser.Predicate) (*index, any) {
	if where == nil {
		return nil, nil
	}
	for _, l := range where.Rest {
		if l.Conj != parser.ConjAnd {
			return nil, nil
		}
	}
	for _, c := range where.Conditions() {
		if c.Op != parser.OpEq {
			continue
		}
		ref, lit := eqOperands(c)
		if ref == nil || lit.Value == nil {
			continue
		}
		if ref.Table != "" && !strings.EqualFold(ref.Table, t.Name) {
			continue
		}
		for _, ix := range e.tableIndexes(t.Name) {
			if len(ix.cols) == 1 && strings.EqualFold(ix.def.Columns[0], ref.Column) {
				return ix, keyOf(lit.Value)
			}
		}
	}
	return nil, nil
}

// eqOperands returns the column and literal of a col = literal condition
// written either way round.
func eqOperands(c *parser.Condition) (*parser.ColumnRef, *parser.Literal) {
	if ref, ok := c.Left.(*parser.ColumnRef); ok {
		if lit, ok := c.Right.(*parser.Literal); ok {
			return ref, lit
		}
	}
	if ref, ok := c.Right.(*parser.ColumnRef); ok {
		if lit, ok := c.Left.(*parser.Literal); ok {
			return ref, lit
		}
	}
	return nil, nil
}

// join is a nested loop join on an equality. Keys compare as in WHERE, so
// a NULL key matches a NULL key. RIGHT joins run as LEFT joins with the
// inputs swapped; columns keep left-then-right order.
func join(left, right *relation, j parser.Join) (*relation, error) {
	li, ri := left.find(j.Left), right.find(j.Right)
	if li < 0 || ri < 0 {
		li, ri = left.find(j.Right), right.find(j.Left)
	}
	if li < 0 {
		_, err := left.resolve(j.Left)
		return nil, err
	}
	if ri < 0 {
		_, err := right.resolve(j.Right)
		return nil, err
	}

	out := &relation{cols: append(slices.Clone(left.cols), right.cols...)}
	combine := func(l, r []any) []any {
		row := make([]any, 0, len(left.cols)+len(right.cols))
		if l == nil {
			l = make([]any, len(left.cols))
		}
		if r == nil {
			r = make([]any, len(right.cols))
		}
		return append(append(row, l...), r...)
	}

	outer, inner, oi, ii := left.rows, right.rows, li, ri
	if j.Type == parser.JoinRight {
		outer, inner, oi, ii = right.rows, left.rows, ri, li
	}
	for _, o := range outer {
		matched := false
		for _, in := range inner {
			if !record.Equal(o[oi], in[ii]) {
				continue
			}
			matched = true
			if j.Type == parser.JoinRight {
				out.rows = append(out.rows, combine(in, o))
			} else {
				out.rows = append(out.rows, combine(o, in))
			}
		}
		if !matched {
			switch j.Type {
			case parser.JoinLeft:
				out.rows = append(out.rows, combine(o, nil))
			case parser.JoinRight:
				out.rows = append(out.rows, combine(nil, o))
			}
		}
	}
	return out, nil
}

// outCol is one output column. pos is the source position for plain
// column references and stars, otherwise -1 and expr is evaluated.
type outCol struct {
	name string
	pos  int
	expr parser.Operand
}

// expand resolves the select list, expanding * and t.*.
func expand(s *parser.SelectStmt, rel *relation) ([]outCol, error) {
	var cols []outCol
	for _, rc := range s.Columns {
		if !rc.Star {
			if err := checkOperand(rc.Expr, rel, nil); err != nil {
				return nil, err
			}
			pos := -1
			if ref, ok := rc.Expr.(*parser.ColumnRef); ok {
				pos = rel.find(ref)
			}
			cols = append(cols, outCol{name: rc.Name(), pos: pos, expr: rc.Expr})
			continue
		}
		found := false
		for i, c := range rel.cols {
			if rc.Table == "" || strings.EqualFold(rc.Table, c.qual) || strings.EqualFold(rc.Table, c.table) {
				cols = append(cols, outCol{name: c.name, pos: i})
				found = true
			}
		}
		if rc.Table != "" && !found {
			return nil, errors.NewTableNotFound(rc.Table)
		}
	}
	return cols, nil
}

func colNames(cols []outCol) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}
	return names
}

// project evaluates the select list for every row, then drops duplicates
// for DISTINCT.
func (e *Engine) project(s *parser.SelectStmt, rel *relation) ([]string, []output, error) {
	cols, err := expand(s, rel)
	if err != nil {
		return nil, nil, err
	}
	sc := &scope{rel: rel, now: e.now()}
	out := make([]output, 0, len(rel.rows))
	for _, row := range rel.rows {
		vals := make([]any, len(cols))
		sc.row = row
		for i, c := range cols {
			if c.pos >= 0 {
				vals[i] = row[c.pos]
				continue
			}
			if vals[i], err = e.value(c.expr, sc); err != nil {
				return nil, nil, err
			}
		}
		out = append(out, output{vals: vals, src: row})
	}
	if s.Distinct {
		seen := make(map[string]bool, len(out))
		kept := out[:0]
		for _, o := range out {
			k := rowKey(o.vals)
			if !seen[k] {
				seen[k] = true
				kept = append(kept, o)
			}
		}
		out = kept
	}
	return colNames(cols), out, nil
}

// group evaluates GROUP BY, aggregates and HAVING. Without GROUP BY the
// whole input is one group, so an aggregate over no rows still yields one
// row.
func (e *Engine) group(s *parser.SelectStmt, rel *relation) ([]string, []output, error) {
	cols, err := expand(s, rel)
	if err != nil {
		return nil, nil, err
	}
	keyPos := make([]int, len(s.GroupBy))
	for i, ref := range s.GroupBy {
		if keyPos[i], err = rel.resolve(ref); err != nil {
			return nil, nil, err
		}
	}
	names := colNames(cols)
	if err := check(s.Having, rel, names); err != nil {
		return nil, nil, err
	}

	var groups [][][]any
	if len(keyPos) == 0 {
		groups = [][][]any{rel.rows}
	} else {
		at := make(map[string]int)
		for _, row := range rel.rows {
			key := make([]any, len(keyPos))
			for i, p := range keyPos {
				key[i] = row[p]
			}
			k := rowKey(key)
			i, ok := at[k]
			if !ok {
				i = len(groups)
				at[k] = i
				groups = append(groups, nil)
			}
			groups[i] = append(groups[i], row)
		}
	}

	out := make([]output, 0, len(groups))
	for _, g := range groups {
		var first []any
		if len(g) > 0 {
			first = g[0]
		}
		sc := &scope{rel: rel, row: first, group: g, grouped: true, now: e.now()}
		vals := make([]any, len(cols))
		for i, c := range cols {
			if c.pos >= 0 {
				if first != nil {
					vals[i] = first[c.pos]
				}
				continue
			}
			if vals[i], err = e.value(c.expr, sc); err != nil {
				return nil, nil, err
			}
		}
		if s.Having != nil {
			sc.out, sc.names = vals, names
			ok, err := e.matches(s.Having, sc)
			if err != nil {
				return nil, nil, err
			}
			if !ok {
				continue
			}
		}
		out = append(out, output{vals: vals, src: first})
	}
	return names, out, nil
}

// aggregate computes COUNT, SUM, AVG, MIN or MAX over rows. Everything but
// COUNT(*) skips NULL; SUM, AVG, MIN and MAX of no values are NULL.
func aggregate(a *parser.Aggregate, rel *relation, rows [][]any) (any, error) {
	if a.Star {
		return int64(len(rows)), nil
	}
	pos, err := rel.resolve(a.Arg)
	if err != nil {
		return nil, err
	}
	var values []any
	for _, r := range rows {
		if r[pos] != nil {
			values = append(values, r[pos])
		}
	}

	switch a.Func {
	case "COUNT":
		return int64(len(values)), nil
	case "MIN", "MAX":
		if len(values) == 0 {
			return nil, nil
		}
		best := values[0]
		for _, v := range values[1:] {
			c := record.Compare(v, best)
			if (a.Func == "MIN" && c < 0) || (a.Func == "MAX" && c > 0) {
				best = v
			}
		}
		return best, nil
	case "SUM", "AVG":
		if len(values) == 0 {
			return nil, nil
		}
		var isum int64
		var fsum float64
		ints := true
		for _, v := range values {
			switch n := v.(type) {
			case int64:
				isum += n
				fsum += float64(n)
			case float64:
				ints = false
				fsum += n
			case string:
				ints = false
				f, _ := strconv.ParseFloat(strings.TrimSpace(n), 64)
				fsum += f
			default:
				ints = false
			}
		}
		if a.Func == "AVG" {
			return fsum / float64(len(values)), nil
		}
		if ints {
			return isum, nil
		}
		return fsum, nil
	}
	return nil, errors.NewUnsupported(a.Func, "aggregate function is not supported")
}

// order sorts out stably. Terms resolve against output names and aliases
// first, then against source columns. An integer literal is a 1-based
// output position.
func (e *Engine) order(s *parser.SelectStmt, rel *relation, names []string, out []output) error {
	type term struct {
		outPos int
		srcPos int
		desc   bool
	}
	terms := make([]term, 0, len(s.OrderBy))
	for _, ot := range s.OrderBy {
		t := term{outPos: -1, srcPos: -1, desc: ot.Desc}
		switch x := ot.Expr.(type) {
		case *parser.ColumnRef:
			if x.Table == "" {
				t.outPos = slices.IndexFunc(names, func(n string) bool { return strings.EqualFold(n, x.Column) })
			}
			if t.outPos < 0 {
				pos, err := rel.resolve(x)
				if err != nil {
					return err
				}
				t.srcPos = pos
			}
		case *parser.Aggregate:
			want := x.String()
			for i, rc := range s.Columns {
				if rc.Expr != nil && rc.Expr.String() == want && i < len(names) {
					t.outPos = i
				}
			}
			if t.outPos < 0 {
				t.outPos = slices.Index(names, x.DefaultAlias())
			}
			if t.outPos < 0 {
				return errors.NewValidation("ORDER BY", fmt.Sprintf("%s must appear in the select list", x))
			}
		case *parser.Literal:
			n, ok := x.Value.(int64)
			if !ok {
				continue
			}
			if n < 1 || int(n) > len(names) {
				return errors.NewValidation("ORDER BY", fmt.Sprintf("term %d is out of range: should be between 1 and %d", n, len(names)))
			}
			t.outPos = int(n) - 1
		default:
			continue
		}
		terms = append(terms, t)
	}

	slices.SortStableFunc(out, func(a, b output) int {
		for _, t := range terms {
			var x, y any
			if t.outPos >= 0 {
				x, y = a.vals[t.outPos], b.vals[t.outPos]
			} else if a.src != nil && b.src != nil {
				x, y = a.src[t.srcPos], b.src[t.srcPos]
			}
			c := record.Compare(x, y)
			if t.desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
	return nil
}

// rowKey is a map key identifying a row by value, so 1 and 1.0 match but
// 1 and '1' do not.
func rowKey(vals []any) string {
	var sb strings.Builder
	for _, v := range vals {
		k := record.Key(v)
		fmt.Fprintf(&sb, "%T:%v\x1f", k, k)
	}
	return sb.String()
}

func distinct(rows [][]any) [][]any {
	seen := make(map[string]bool, len(rows))
	out := rows[:0:0]
	for _, r := range rows {
		k := rowKey(r)
		if !seen[k] {
			seen[k] = true
			out = append(out, r)
		}
	}
	return out
}
