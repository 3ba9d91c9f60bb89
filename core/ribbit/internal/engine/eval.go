package engine

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/FocuswithJustin/RibbitDB/core/errors"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/parser"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/record"
)

// column is one column of an intermediate relation. qual is the name the
// column is qualified with (the alias when one was given); table is the
// underlying table or view name.
type column struct {
	qual  string
	table string
	name  string
}

// relation is a materialized row set flowing through a SELECT.
type relation struct {
	cols []column
	rows [][]any
}

// find returns the position of ref, or -1. Unqualified names match the
// first column with that name.
func (r *relation) find(ref *parser.ColumnRef) int {
	for i, c := range r.cols {
		if !strings.EqualFold(c.name, ref.Column) {
			continue
		}
		if ref.Table == "" || strings.EqualFold(ref.Table, c.qual) || strings.EqualFold(ref.Table, c.table) {
			return i
		}
	}
	return -1
}

func (r *relation) resolve(ref *parser.ColumnRef) (int, error) {
	if i := r.find(ref); i >= 0 {
		return i, nil
	}
	table := ref.Table
	if table == "" && len(r.cols) > 0 {
		table = r.cols[0].table
	}
	return -1, errors.NewColumnNotFound(table, ref.Column)
}

// scope is what an operand is evaluated against: a source row, and while
// aggregating, the rows of the current group and its output row.
type scope struct {
	rel     *relation
	row     []any
	group   [][]any
	grouped bool
	out     []any
	names   []string
	now     time.Time
}

func (sc *scope) alias(name string) (int, bool) {
	for i, n := range sc.names {
		if strings.EqualFold(n, name) {
			return i, true
		}
	}
	return -1, false
}

// value evaluates an operand.
func (e *Engine) value(op parser.Operand, sc *scope) (any, error) {
	switch o := op.(type) {
	case *parser.Literal:
		return o.Value, nil
	case *parser.TimeFuncExpr:
		return o.Func.Eval(sc.now), nil
	case *parser.ColumnRef:
		if i := sc.rel.find(o); i >= 0 {
			if sc.row == nil {
				return nil, nil
			}
			return sc.row[i], nil
		}
		if o.Table == "" && sc.out != nil {
			if i, ok := sc.alias(o.Column); ok {
				return sc.out[i], nil
			}
		}
		_, err := sc.rel.resolve(o)
		return nil, err
	case *parser.Aggregate:
		if !sc.grouped {
			return nil, errors.NewValidation("aggregate", fmt.Sprintf("%s is only allowed in an aggregate query", o))
		}
		return aggregate(o, sc.rel, sc.group)
	case *parser.Param:
		return nil, errors.NewValidation("parameters", fmt.Sprintf("placeholder %d is not bound", o.Index+1))
	}
	return nil, errors.NewUnsupported(fmt.Sprintf("%T", op), "operand is not supported")
}

// check resolves every column reference of pred up front so an unknown
// column fails even when there are no rows. names are output columns
// usable by unqualified references.
func check(pred *parser.Predicate, rel *relation, names []string) error {
	if pred == nil {
		return nil
	}
	for _, c := range pred.Conditions() {
		ops := append([]parser.Operand{c.Left, c.Right, c.Low, c.High}, c.List...)
		for _, op := range ops {
			if err := checkOperand(op, rel, names); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkOperand(op parser.Operand, rel *relation, names []string) error {
	switch o := op.(type) {
	case *parser.ColumnRef:
		if rel.find(o) >= 0 {
			return nil
		}
		if o.Table == "" {
			for _, n := range names {
				if strings.EqualFold(n, o.Column) {
					return nil
				}
			}
		}
		_, err := rel.resolve(o)
		return err
	case *parser.Aggregate:
		if o.Arg != nil {
			_, err := rel.resolve(o.Arg)
			return err
		}
	}
	return nil
}

// matches evaluates a flat AND/OR chain left to right without precedence.
func (e *Engine) matches(pred *parser.Predicate, sc *scope) (bool, error) {
	if pred == nil {
		return true, nil
	}
	result, err := e.condition(pred.First, sc)
	if err != nil {
		return false, err
	}
	for _, link := range pred.Rest {
		ok, err := e.condition(link.Cond, sc)
		if err != nil {
			return false, err
		}
		if link.Conj == parser.ConjAnd {
			result = result && ok
		} else {
			result = result || ok
		}
	}
	return result, nil
}

// condition evaluates one comparison. Equality treats two NULLs as equal;
// ordering comparisons with NULL or across storage classes are false.
func (e *Engine) condition(c *parser.Condition, sc *scope) (bool, error) {
	left, err := e.value(c.Left, sc)
	if err != nil {
		return false, err
	}

	switch c.Op {
	case parser.OpIsNull:
		return (left == nil) != c.Not, nil

	case parser.OpIn:
		found := false
		for _, item := range c.List {
			v, err := e.value(item, sc)
			if err != nil {
				return false, err
			}
			if record.Equal(left, v) {
				found = true
				break
			}
		}
		return found != c.Not, nil

	case parser.OpBetween:
		low, err := e.value(c.Low, sc)
		if err != nil {
			return false, err
		}
		high, err := e.value(c.High, sc)
		if err != nil {
			return false, err
		}
		if !record.Comparable(left, low) || !record.Comparable(left, high) {
			return false, nil
		}
		in := record.Compare(left, low) >= 0 && record.Compare(left, high) <= 0
		return in != c.Not, nil
	}

	right, err := e.value(c.Right, sc)
	if err != nil {
		return false, err
	}
	switch c.Op {
	case parser.OpEq:
		return record.Equal(left, right), nil
	case parser.OpNe:
		return !record.Equal(left, right), nil
	case parser.OpLike:
		if left == nil || right == nil {
			return false, nil
		}
		return like(record.Format(left), record.Format(right)) != c.Not, nil
	}

	if !record.Comparable(left, right) {
		return false, nil
	}
	cmp := record.Compare(left, right)
	switch c.Op {
	case parser.OpLt:
		return cmp < 0, nil
	case parser.OpLe:
		return cmp <= 0, nil
	case parser.OpGt:
		return cmp > 0, nil
	case parser.OpGe:
		return cmp >= 0, nil
	}
	return false, errors.NewUnsupported(c.Op.String(), "operator is not supported")
}

// like matches s against a LIKE pattern over the whole string, ignoring
// case. '%' matches any run of characters and '_' exactly one.
func like(s, pattern string) bool {
	s, pattern = strings.ToLower(s), strings.ToLower(pattern)
	// Backtrack to the most recent '%' on mismatch.
	si, pi := 0, 0
	starP, starS := -1, 0
	for si < len(s) {
		if pi < len(pattern) {
			pr, pw := utf8.DecodeRuneInString(pattern[pi:])
			sr, sw := utf8.DecodeRuneInString(s[si:])
			switch {
			case pr == '%':
				starP, starS = pi, si
				pi += pw
				continue
			case pr == '_' || pr == sr:
				si += sw
				pi += pw
				continue
			}
		}
		if starP < 0 {
			return false
		}
		_, sw := utf8.DecodeRuneInString(s[starS:])
		starS += sw
		si = starS
		pi = starP + 1
	}
	for pi < len(pattern) && pattern[pi] == '%' {
		pi++
	}
	return pi == len(pattern)
}

// intValue reads a LIMIT or OFFSET operand.
func (e *Engine) intValue(op parser.Operand, clause string) (int64, error) {
	v, err := e.value(op, &scope{rel: &relation{}, now: e.now()})
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case float64:
		if n == float64(int64(n)) {
			return int64(n), nil
		}
	}
	return 0, errors.NewValidation(clause, fmt.Sprintf("%s must be an integer, got %s", clause, record.Format(v)))
}
