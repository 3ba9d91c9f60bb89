package parser

import (
	"fmt"

	"github.com/FocuswithJustin/RibbitDB/core/errors"
)

// Bind replaces every '?' placeholder in stmts with the argument at its
// index. The number of arguments must match the number of placeholders.
// Arguments must already be normalized storage values.
func Bind(stmts []Statement, args []any) error {
	b := &binder{args: args}
	for _, s := range stmts {
		b.statement(s)
	}
	if b.err != nil {
		return b.err
	}
	if b.seen != len(args) {
		return errors.NewValidation("parameters", fmt.Sprintf("statement has %d placeholders, got %d arguments", b.seen, len(args)))
	}
	return nil
}

type binder struct {
	args []any
	seen int
	err  error
}

func (b *binder) operand(o Operand) Operand {
	p, ok := o.(*Param)
	if !ok {
		return o
	}
	b.seen++
	if p.Index >= len(b.args) {
		if b.err == nil {
			b.err = errors.NewValidation("parameters", fmt.Sprintf("missing argument for placeholder %d", p.Index+1))
		}
		return o
	}
	return &Literal{Value: b.args[p.Index]}
}

func (b *binder) operands(list []Operand) {
	for i, o := range list {
		list[i] = b.operand(o)
	}
}

func (b *binder) predicate(pred *Predicate) {
	if pred == nil {
		return
	}
	for _, c := range pred.Conditions() {
		c.Left = b.operand(c.Left)
		if c.Right != nil {
			c.Right = b.operand(c.Right)
		}
		if c.Low != nil {
			c.Low = b.operand(c.Low)
		}
		if c.High != nil {
			c.High = b.operand(c.High)
		}
		b.operands(c.List)
	}
}

func (b *binder) selectStmt(s *SelectStmt) {
	for s != nil {
		for i := range s.Columns {
			if s.Columns[i].Expr != nil {
				s.Columns[i].Expr = b.operand(s.Columns[i].Expr)
			}
		}
		b.predicate(s.Where)
		b.predicate(s.Having)
		if s.Limit != nil {
			s.Limit = b.operand(s.Limit)
		}
		if s.Offset != nil {
			s.Offset = b.operand(s.Offset)
		}
		if s.Union == nil {
			return
		}
		s = s.Union.Select
	}
}

func (b *binder) statement(stmt Statement) {
	switch s := stmt.(type) {
	case *SelectStmt:
		b.selectStmt(s)
	case *InsertStmt:
		for _, tuple := range s.Values {
			b.operands(tuple)
		}
	case *UpdateStmt:
		for i := range s.Set {
			s.Set[i].Value = b.operand(s.Set[i].Value)
		}
		b.predicate(s.Where)
	case *DeleteStmt:
		b.predicate(s.Where)
	case *CreateViewStmt:
		b.selectStmt(s.Select)
	case *PragmaStmt:
		b.operands(s.Args)
		if s.Value != nil {
			s.Value = b.operand(s.Value)
		}
	case *ExplainStmt:
		b.statement(s.Stmt)
	}
}
