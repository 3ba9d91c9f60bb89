// Package txn tracks the single active transaction of an engine, its undo
// log and its savepoints. It records what must be undone; the engine
// applies the returned operations.
package txn

import (
	"fmt"
	"time"

	"github.com/FocuswithJustin/RibbitDB/core/errors"
	"github.com/FocuswithJustin/RibbitDB/internal/logging"
)

// State is the lifecycle state of a transaction.
type State int

// Transaction states. COMMITTED and ABORTED are terminal.
const (
	Active State = iota
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Active:
		return "ACTIVE"
	case Committed:
		return "COMMITTED"
	case Aborted:
		return "ABORTED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Errors returned by the manager. Each unwraps to errors.ErrTransaction.
var (
	ErrActive      = errors.NewTransaction("BEGIN", "a transaction is already active")
	ErrNotActive   = errors.NewTransaction("continue", "transaction is not active")
	ErrNoSavepoint = errors.NewTransaction("ROLLBACK TO", "no such savepoint")
)

// OpKind identifies an undo operation.
type OpKind int

// Undo operation kinds.
const (
	// DeleteRow removes a row added by INSERT.
	DeleteRow OpKind = iota
	// InsertRows appends rows back to a table.
	InsertRows
	// RestoreTable replaces a table's rows with a saved copy, undoing
	// UPDATE and DELETE.
	RestoreTable
)

func (k OpKind) String() string {
	switch k {
	case DeleteRow:
		return "DELETE_ROW"
	case InsertRows:
		return "INSERT_ROWS"
	case RestoreTable:
		return "RESTORE_TABLE"
	}
	return fmt.Sprintf("OpKind(%d)", int(k))
}

// Operation is one undo log entry.
type Operation struct {
	Kind  OpKind
	Table string
	// Column and Key identify the row for DeleteRow by primary key. When
	// Column is empty, Row must match every column.
	Column string
	Key    any
	Row    []any
	// Rows holds the rows for InsertRows and RestoreTable.
	Rows [][]any
}

type savepoint struct {
	name string
	pos  int
}

// Transaction is one unit of work. It is never reused once finished.
type Transaction struct {
	ID        uint64
	State     State
	StartedAt time.Time

	ops        []Operation
	savepoints []savepoint
}

// Log appends an undo operation.
func (tx *Transaction) Log(op Operation) {
	if tx.State != Active {
		return
	}
	tx.ops = append(tx.ops, op)
}

// Len returns the number of logged operations.
func (tx *Transaction) Len() int {
	return len(tx.ops)
}

// Operations returns the log, oldest first.
func (tx *Transaction) Operations() []Operation {
	return tx.ops
}

// Savepoint records the current log position under name. A repeated name
// shadows the earlier savepoint.
func (tx *Transaction) Savepoint(name string) error {
	if tx.State != Active {
		return ErrNotActive
	}
	tx.savepoints = append(tx.savepoints, savepoint{name: name, pos: len(tx.ops)})
	return nil
}

func (tx *Transaction) find(name string) int {
	for i := len(tx.savepoints) - 1; i >= 0; i-- {
		if tx.savepoints[i].name == name {
			return i
		}
	}
	return -1
}

// HasSavepoint reports whether name is a live savepoint.
func (tx *Transaction) HasSavepoint(name string) bool {
	return tx.find(name) >= 0
}

// RollbackTo truncates the log to the savepoint and returns the removed
// operations newest first. The savepoint stays; later ones are dropped.
func (tx *Transaction) RollbackTo(name string) ([]Operation, error) {
	if tx.State != Active {
		return nil, ErrNotActive
	}
	i := tx.find(name)
	if i < 0 {
		return nil, errors.NewTransaction("ROLLBACK TO", fmt.Sprintf("no such savepoint: %s", name))
	}
	pos := tx.savepoints[i].pos
	undo := reversed(tx.ops[pos:])
	tx.ops = tx.ops[:pos]
	tx.savepoints = tx.savepoints[:i+1]
	logging.TransactionEvent("rollback_to", tx.ID, len(undo), "savepoint", name)
	return undo, nil
}

// Release forgets the savepoint and every later one. The log is kept.
func (tx *Transaction) Release(name string) error {
	if tx.State != Active {
		return ErrNotActive
	}
	i := tx.find(name)
	if i < 0 {
		return errors.NewTransaction("RELEASE", fmt.Sprintf("no such savepoint: %s", name))
	}
	tx.savepoints = tx.savepoints[:i]
	return nil
}

func reversed(ops []Operation) []Operation {
	out := make([]Operation, len(ops))
	for i, op := range ops {
		out[len(ops)-1-i] = op
	}
	return out
}

// Manager owns the single active transaction.
type Manager struct {
	nextID uint64
	active *Transaction
	now    func() time.Time
}

// NewManager returns a manager with no active transaction.
func NewManager() *Manager {
	return &Manager{now: time.Now}
}

// Active returns the active transaction or nil.
func (m *Manager) Active() *Transaction {
	return m.active
}

// Begin starts a transaction with a fresh id.
func (m *Manager) Begin() (*Transaction, error) {
	if m.active != nil {
		return nil, ErrActive
	}
	m.nextID++
	tx := &Transaction{ID: m.nextID, State: Active, StartedAt: m.now()}
	m.active = tx
	logging.TransactionEvent("begin", tx.ID, 0)
	return tx, nil
}

// Commit finishes tx. It returns false when tx is not active.
func (m *Manager) Commit(tx *Transaction) bool {
	if tx == nil || tx.State != Active {
		return false
	}
	tx.State = Committed
	n := len(tx.ops)
	tx.ops = nil
	tx.savepoints = nil
	if m.active == tx {
		m.active = nil
	}
	logging.TransactionEvent("commit", tx.ID, n)
	return true
}

// Rollback aborts tx and returns its operations newest first. It returns
// false when tx is not active.
func (m *Manager) Rollback(tx *Transaction) ([]Operation, bool) {
	if tx == nil || tx.State != Active {
		return nil, false
	}
	undo := reversed(tx.ops)
	tx.State = Aborted
	tx.ops = nil
	tx.savepoints = nil
	if m.active == tx {
		m.active = nil
	}
	logging.TransactionEvent("rollback", tx.ID, len(undo))
	return undo, true
}
