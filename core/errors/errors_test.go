package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"
)

func TestSyntaxError(t *testing.T) {
	tests := []struct {
		name      string
		err       *SyntaxError
		wantParts []string
	}{
		{
			name: "with snippet and hint",
			err: &SyntaxError{
				Message: "expected '(' but got 'NOT'",
				Line:    1,
				Column:  21,
				Snippet: "CREATE TABLE users NOT EXISTS (id INT)",
				Caret:   19,
				Hint:    "Did you mean 'IF NOT EXISTS'?",
			},
			wantParts: []string{
				"syntax error: expected '(' but got 'NOT' at line 1, column 21",
				"\n  CREATE TABLE users NOT EXISTS (id INT)\n",
				"\n  " + strings.Repeat(" ", 19) + "^",
				"Hint: Did you mean 'IF NOT EXISTS'?",
			},
		},
		{
			name:      "message only",
			err:       &SyntaxError{Message: "unexpected end of input", Line: 3, Column: 1},
			wantParts: []string{"syntax error: unexpected end of input at line 3, column 1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			for _, part := range tt.wantParts {
				if !strings.Contains(got, part) {
					t.Errorf("Error() = %q, want it to contain %q", got, part)
				}
			}
			if !errors.Is(tt.err, ErrSyntax) {
				t.Errorf("errors.Is(%v, ErrSyntax) = false", tt.err)
			}
		})
	}

	t.Run("no hint section without hint", func(t *testing.T) {
		err := &SyntaxError{Message: "m", Line: 1, Column: 1, Snippet: "x"}
		if strings.Contains(err.Error(), "Hint:") {
			t.Errorf("Error() = %q, did not expect a hint", err.Error())
		}
	})
}

func TestTypedErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantMsg  string
		wantBase error
	}{
		{
			name:     "table not found",
			err:      NewTableNotFound("users"),
			wantMsg:  "Table 'users' does not exist",
			wantBase: ErrSchema,
		},
		{
			name:     "table exists",
			err:      NewTableExists("users"),
			wantMsg:  "Table 'users' already exists",
			wantBase: ErrSchema,
		},
		{
			name:     "column not found",
			err:      NewColumnNotFound("users", "age"),
			wantMsg:  "Column 'users.age' does not exist",
			wantBase: ErrSchema,
		},
		{
			name:     "type mismatch",
			err:      &TypeError{Table: "t", Column: "id", Expected: "INTEGER", Got: "TEXT"},
			wantMsg:  "type mismatch for t.id: expected INTEGER, got TEXT",
			wantBase: ErrType,
		},
		{
			name:     "not null",
			err:      NewConstraint("NOT NULL", "Column 'id' cannot be NULL"),
			wantMsg:  "NOT NULL constraint violation: Column 'id' cannot be NULL",
			wantBase: ErrConstraint,
		},
		{
			name:     "transaction",
			err:      NewTransaction("SAVEPOINT", "no active transaction"),
			wantMsg:  "cannot SAVEPOINT: no active transaction",
			wantBase: ErrTransaction,
		},
		{
			name:     "unsupported without reason",
			err:      NewUnsupported("CREATE TRIGGER", ""),
			wantMsg:  "feature 'CREATE TRIGGER' is not supported yet",
			wantBase: ErrUnsupported,
		},
		{
			name:     "unsupported with reason",
			err:      NewUnsupported("subquery", "only table sources are allowed"),
			wantMsg:  "feature 'subquery' is not supported: only table sources are allowed",
			wantBase: ErrUnsupported,
		},
		{
			name:     "migration",
			err:      NewMigration("001_init", "already applied"),
			wantMsg:  "migration 001_init: already applied",
			wantBase: ErrMigration,
		},
		{
			name:     "validation",
			err:      NewValidation("args", "expected 2 parameters, got 1"),
			wantMsg:  "validation failed for args: expected 2 parameters, got 1",
			wantBase: ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if !errors.Is(tt.err, tt.wantBase) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.wantBase)
			}
		})
	}
}

func TestOperationalError(t *testing.T) {
	tests := []struct {
		name    string
		err     *OperationalError
		wantMsg string
	}{
		{
			name:    "with path and cause",
			err:     NewOperational("open", "/tmp/db.rbx", fs.ErrPermission),
			wantMsg: "failed to open /tmp/db.rbx: permission denied",
		},
		{
			name:    "cause only",
			err:     NewOperational("flush", "", fmt.Errorf("disk full")),
			wantMsg: "failed to flush: disk full",
		},
		{
			name:    "path only",
			err:     NewOperational("validate header of", "a.rbx", nil),
			wantMsg: "failed to validate header of a.rbx",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if !errors.Is(tt.err, ErrOperational) {
				t.Error("errors.Is(err, ErrOperational) = false")
			}
		})
	}

	t.Run("unwraps to cause", func(t *testing.T) {
		err := NewOperational("open", "x", fs.ErrNotExist)
		if !errors.Is(err, fs.ErrNotExist) {
			t.Error("errors.Is(err, fs.ErrNotExist) = false")
		}
	})
}

func TestWrap(t *testing.T) {
	t.Run("wraps error", func(t *testing.T) {
		baseErr := fmt.Errorf("base error")
		wrapped := Wrap(baseErr, "context message")
		if wrapped == nil {
			t.Fatal("Wrap() returned nil")
		}
		if !errors.Is(wrapped, baseErr) {
			t.Errorf("Wrap() error does not unwrap to base error")
		}
		wantMsg := "context message: base error"
		if wrapped.Error() != wantMsg {
			t.Errorf("Wrap() = %q, want %q", wrapped.Error(), wantMsg)
		}
	})

	t.Run("nil error returns nil", func(t *testing.T) {
		if got := Wrap(nil, "context"); got != nil {
			t.Errorf("Wrap(nil) = %v, want nil", got)
		}
	})

	t.Run("keeps classification", func(t *testing.T) {
		wrapped := Wrapf(NewTableNotFound("x"), "executing %s", "SELECT")
		if !Is(wrapped, ErrSchema) {
			t.Error("Wrapf() lost the ErrSchema classification")
		}
	})
}

func TestWrapf(t *testing.T) {
	t.Run("wraps error with formatting", func(t *testing.T) {
		baseErr := fmt.Errorf("base error")
		wrapped := Wrapf(baseErr, "failed to process %s", "file.txt")
		if wrapped == nil {
			t.Fatal("Wrapf() returned nil")
		}
		wantMsg := "failed to process file.txt: base error"
		if wrapped.Error() != wantMsg {
			t.Errorf("Wrapf() = %q, want %q", wrapped.Error(), wantMsg)
		}
	})

	t.Run("nil error returns nil", func(t *testing.T) {
		if got := Wrapf(nil, "context %s", "test"); got != nil {
			t.Errorf("Wrapf(nil) = %v, want nil", got)
		}
	})
}

func TestAs(t *testing.T) {
	err := Wrap(&SyntaxError{Message: "bad", Line: 2, Column: 7}, "parse")
	var synErr *SyntaxError
	if !As(err, &synErr) {
		t.Fatal("As() failed to match SyntaxError")
	}
	if synErr.Line != 2 || synErr.Column != 7 {
		t.Errorf("As() position = %d:%d, want 2:7", synErr.Line, synErr.Column)
	}
}
