package engine

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/FocuswithJustin/RibbitDB/core/errors"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/pager"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/wal"
)

// openAt opens an uncompressed database at path.
func openAt(t *testing.T, path string, opts Options) *Engine {
	t.Helper()
	p, err := pager.Open(path, pager.Options{})
	if err != nil {
		t.Fatalf("pager.Open() error = %v", err)
	}
	e, err := New(p, opts)
	if err != nil {
		p.Close()
		t.Fatalf("New() error = %v", err)
	}
	return e
}

// newTestEngine opens a fresh database that is closed when the test ends.
func newTestEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.rbx")
	e := openAt(t, path, Options{})
	t.Cleanup(func() { e.Close() })
	return e, path
}

func mustExec(t *testing.T, e *Engine, sql string, args ...any) *Result {
	t.Helper()
	res, err := e.Execute(sql, args...)
	if err != nil {
		t.Fatalf("Execute(%q) error = %v", sql, err)
	}
	return res
}

// column returns one column of a row result.
func columnOf(t *testing.T, res *Result, name string) []any {
	t.Helper()
	pos := -1
	for i, c := range res.Columns {
		if c == name {
			pos = i
		}
	}
	if pos < 0 {
		t.Fatalf("result has no column %q: %v", name, res.Columns)
	}
	out := make([]any, len(res.Rows))
	for i, r := range res.Rows {
		out[i] = r[pos]
	}
	return out
}

func seedUsers(t *testing.T, e *Engine) {
	t.Helper()
	mustExec(t, e, `CREATE TABLE users (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		age INTEGER,
		city TEXT
	)`)
	mustExec(t, e, `INSERT INTO users VALUES
		(1, 'alice', 30, 'paris'),
		(2, 'bob', 25, 'rome'),
		(3, 'carol', 35, 'paris'),
		(4, 'dave', NULL, 'oslo')`)
}

func TestOpenCreatesCatalog(t *testing.T) {
	e, path := newTestEngine(t)
	if e.DatabaseID() == "" {
		t.Error("DatabaseID() is empty")
	}
	for _, name := range []string{"__tables", "__columns", "__indexes", "__views", "__migrations"} {
		if !e.TableExists(name) {
			t.Errorf("system table %s missing", name)
		}
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file not created: %v", err)
	}
	res := mustExec(t, e, "SHOW TABLES")
	if res.RowCount() != 0 {
		t.Errorf("SHOW TABLES on a new database = %v, want none", res.Rows)
	}
}

func TestReopenPersistsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.rbx")
	e := openAt(t, path, Options{})
	seedUsers(t, e)
	mustExec(t, e, "CREATE INDEX idx_city ON users (city)")
	mustExec(t, e, "CREATE VIEW parisians AS SELECT name FROM users WHERE city = 'paris'")
	id := e.DatabaseID()
	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	e = openAt(t, path, Options{})
	defer e.Close()
	if e.DatabaseID() != id {
		t.Errorf("DatabaseID() = %q after reopen, want %q", e.DatabaseID(), id)
	}
	res := mustExec(t, e, "SELECT name FROM users ORDER BY id")
	want := []any{"alice", "bob", "carol", "dave"}
	if got := columnOf(t, res, "name"); !reflect.DeepEqual(got, want) {
		t.Errorf("names = %v, want %v", got, want)
	}
	rows, err := e.IndexLookup("idx_city", "paris")
	if err != nil {
		t.Fatalf("IndexLookup() error = %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("IndexLookup(paris) = %d rows, want 2", len(rows))
	}
	res = mustExec(t, e, "SELECT name FROM parisians ORDER BY name")
	if got := columnOf(t, res, "name"); !reflect.DeepEqual(got, []any{"alice", "carol"}) {
		t.Errorf("view rows = %v", got)
	}
	tbl, _ := e.Catalog().Table("users")
	if tbl.PrimaryKey() != "id" || len(tbl.Columns) != 4 {
		t.Errorf("reloaded table = %+v", tbl)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "close.rbx")
	e := openAt(t, path, Options{})
	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := e.Execute("SELECT 1"); err == nil {
		t.Error("Execute() after Close() succeeded")
	}
}

func TestErrorKinds(t *testing.T) {
	e, _ := newTestEngine(t)
	seedUsers(t, e)

	tests := []struct {
		name string
		sql  string
		args []any
		kind error
	}{
		{name: "syntax", sql: "SELEC * FROM users", kind: errors.ErrSyntax},
		{name: "missing table", sql: "SELECT * FROM nope", kind: errors.ErrSchema},
		{name: "missing column", sql: "SELECT nope FROM users", kind: errors.ErrSchema},
		{name: "missing where column", sql: "DELETE FROM users WHERE nope = 1", kind: errors.ErrSchema},
		{name: "duplicate table", sql: "CREATE TABLE users (id INTEGER)", kind: errors.ErrSchema},
		{name: "system table write", sql: "INSERT INTO __tables VALUES ('x', 'table', '', 'now')", kind: errors.ErrSchema},
		{name: "not null", sql: "INSERT INTO users (id) VALUES (9)", kind: errors.ErrConstraint},
		{name: "type mismatch", sql: "INSERT INTO users VALUES ('x', 'eve', 1, 'rome')", kind: errors.ErrType},
		{name: "value count", sql: "INSERT INTO users VALUES (9, 'eve')", kind: errors.ErrInvalidInput},
		{name: "unbound parameter", sql: "SELECT * FROM users WHERE id = ?", kind: errors.ErrInvalidInput},
		{name: "extra parameter", sql: "SELECT * FROM users", args: []any{1}, kind: errors.ErrInvalidInput},
		{name: "savepoint outside transaction", sql: "SAVEPOINT s1", kind: errors.ErrTransaction},
		{name: "union width", sql: "SELECT id FROM users UNION SELECT id, name FROM users", kind: errors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Execute(tt.sql, tt.args...)
			if err == nil {
				t.Fatalf("Execute(%q) succeeded", tt.sql)
			}
			if !errors.Is(err, tt.kind) {
				t.Errorf("Execute(%q) error = %v, want %v", tt.sql, err, tt.kind)
			}
		})
	}
}

func TestParametersAndMultipleStatements(t *testing.T) {
	e, _ := newTestEngine(t)
	seedUsers(t, e)

	res := mustExec(t, e, "SELECT name FROM users WHERE id = ? OR name = ?", 2, "carol")
	if got := columnOf(t, res, "name"); !reflect.DeepEqual(got, []any{"bob", "carol"}) {
		t.Errorf("bound query = %v", got)
	}

	res = mustExec(t, e, "INSERT INTO users VALUES (5, 'erin', 41, 'rome'); SELECT COUNT(*) FROM users")
	if res.Kind != KindRows || res.Rows[0][0] != int64(5) {
		t.Errorf("last result = %+v, want count 5", res)
	}

	res = mustExec(t, e, "  ;  ")
	if res.Kind != KindMessage {
		t.Errorf("empty input kind = %v", res.Kind)
	}
}

func TestQueryCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.rbx")
	e := openAt(t, path, Options{QueryCacheTTL: time.Minute})
	defer e.Close()
	seedUsers(t, e)

	first := mustExec(t, e, "SELECT COUNT(*) FROM users")
	hits, _ := e.results.Stats()
	second := mustExec(t, e, "SELECT COUNT(*) FROM users")
	if after, _ := e.results.Stats(); after != hits+1 {
		t.Error("repeated SELECT was not served from the cache")
	}
	if !reflect.DeepEqual(first.Rows, second.Rows) {
		t.Errorf("cached rows = %v, want %v", second.Rows, first.Rows)
	}
	mustExec(t, e, "INSERT INTO users VALUES (5, 'erin', 41, 'rome')")
	third := mustExec(t, e, "SELECT COUNT(*) FROM users")
	if third.Rows[0][0] != int64(5) {
		t.Errorf("cache not invalidated by INSERT: %v", third.Rows)
	}
	a := mustExec(t, e, "SELECT name FROM users WHERE id = ?", 1)
	b := mustExec(t, e, "SELECT name FROM users WHERE id = ?", 2)
	if reflect.DeepEqual(a.Rows, b.Rows) {
		t.Error("results with different arguments share a cache entry")
	}
}

func TestQueryCacheReturnsCopies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache_copy.rbx")
	e := openAt(t, path, Options{QueryCacheTTL: time.Minute})
	defer e.Close()
	seedUsers(t, e)

	const query = "SELECT id FROM users ORDER BY id"
	want := [][]any{{int64(1)}, {int64(2)}, {int64(3)}, {int64(4)}}
	tests := []struct {
		name   string
		mutate func(res *Result)
	}{
		{name: "truncate", mutate: func(res *Result) { res.Rows = res.Rows[:1] }},
		{name: "replace row", mutate: func(res *Result) { res.Rows[0] = []any{int64(99)} }},
		{name: "reverse", mutate: func(res *Result) { slices.Reverse(res.Rows) }},
		{name: "append", mutate: func(res *Result) { res.Rows = append(res.Rows[:2], []any{int64(7)}) }},
		{name: "rename column", mutate: func(res *Result) { res.Columns[0] = "changed" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mutate(mustExec(t, e, query))
			res := mustExec(t, e, query)
			if !reflect.DeepEqual(res.Rows, want) {
				t.Errorf("rows after %s = %v, want %v", tt.name, res.Rows, want)
			}
			if !reflect.DeepEqual(res.Columns, []string{"id"}) {
				t.Errorf("columns after %s = %v", tt.name, res.Columns)
			}
		})
	}
	if hits, _ := e.results.Stats(); hits == 0 {
		t.Error("query was never served from the cache")
	}
}

func TestReplicationLog(t *testing.T) {
	dir := t.TempDir()
	log, err := wal.Open(filepath.Join(dir, "test.wal"))
	if err != nil {
		t.Fatalf("wal.Open() error = %v", err)
	}
	e := openAt(t, filepath.Join(dir, "test.rbx"), Options{Log: log})
	mustExec(t, e, "CREATE TABLE kv (k TEXT PRIMARY KEY, v INTEGER)")
	mustExec(t, e, "INSERT INTO kv VALUES (?, ?)", "a", 1)
	mustExec(t, e, "SELECT * FROM kv")
	mustExec(t, e, "BEGIN; UPDATE kv SET v = 2 WHERE k = 'a'; COMMIT")
	if _, err := e.Execute("INSERT INTO missing VALUES (1)"); err == nil {
		t.Fatal("insert into missing table succeeded")
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	entries, err := wal.ReadFile(filepath.Join(dir, "test.wal"), 0)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var sqls []string
	for _, en := range entries {
		sqls = append(sqls, en.SQL)
	}
	if len(entries) != 5 {
		t.Fatalf("log has %d entries, want 5: %q", len(entries), sqls)
	}
	if !strings.HasPrefix(sqls[0], "CREATE TABLE") {
		t.Errorf("entry 1 = %q", sqls[0])
	}
	if sqls[1] != "INSERT INTO kv VALUES (?, ?)" || !reflect.DeepEqual(entries[1].Args, []any{"a", int64(1)}) {
		t.Errorf("entry 2 = %q %v", sqls[1], entries[1].Args)
	}
	if sqls[2] != "BEGIN" || !strings.Contains(sqls[3], "UPDATE") || sqls[4] != "COMMIT" {
		t.Errorf("transaction entries = %q", sqls[2:])
	}
}

func TestCorruptRowIsSkipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.rbx")
	e := openAt(t, path, Options{})
	mustExec(t, e, "CREATE TABLE notes (id INTEGER, body TEXT)")
	mustExec(t, e, "INSERT INTO notes VALUES (1, 'keep-this-note'), (2, 'damaged-note-body'), (3, 'keep-that-note')")
	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	at := bytes.Index(data, []byte("damaged-note-body"))
	if at < 0 {
		t.Fatal("row payload not found in file")
	}
	data[at] = 'D'
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	e = openAt(t, path, Options{})
	defer e.Close()
	res := mustExec(t, e, "SELECT id FROM notes ORDER BY id")
	if got := columnOf(t, res, "id"); !reflect.DeepEqual(got, []any{int64(1), int64(3)}) {
		t.Errorf("ids = %v, want [1 3]", got)
	}
	problems := e.IntegrityCheck()
	if len(problems) != 1 || !strings.Contains(problems[0], "notes") {
		t.Errorf("IntegrityCheck() = %v", problems)
	}
}

func TestMetaSpansOverflowPages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.rbx")
	e := openAt(t, path, Options{})
	const n = 120
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("table_with_a_rather_long_descriptive_name_%03d", i)
		mustExec(t, e, "CREATE TABLE "+name+" (id INTEGER)")
		mustExec(t, e, "INSERT INTO "+name+" VALUES (?)", i)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	e = openAt(t, path, Options{})
	defer e.Close()
	if got := len(e.Catalog().UserTables()); got != n {
		t.Fatalf("reopened with %d tables, want %d", got, n)
	}
	res := mustExec(t, e, "SELECT id FROM table_with_a_rather_long_descriptive_name_077")
	if res.RowCount() != 1 || res.Rows[0][0] != int64(77) {
		t.Errorf("rows = %v", res.Rows)
	}
}
