package engine

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/FocuswithJustin/RibbitDB/core/errors"
)

func TestCreateTableIfNotExists(t *testing.T) {
	e, _ := newTestEngine(t)
	res := mustExec(t, e, "CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)")
	if !res.OK || res.Kind != KindBool {
		t.Fatalf("CREATE TABLE = %+v", res)
	}
	res = mustExec(t, e, "CREATE TABLE IF NOT EXISTS t (x INTEGER)")
	if res.OK {
		t.Error("CREATE TABLE IF NOT EXISTS on an existing table reported OK")
	}
	if _, err := e.Execute("CREATE TABLE d (a INTEGER, A TEXT)"); !errors.Is(err, errors.ErrSchema) {
		t.Errorf("duplicate column error = %v", err)
	}
	if _, ok := e.Catalog().Index("t_pk"); !ok {
		t.Error("primary key index t_pk not created")
	}
}

func TestDefaultsAndAutoIncrement(t *testing.T) {
	e, _ := newTestEngine(t)
	mustExec(t, e, `CREATE TABLE items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		label TEXT NOT NULL,
		status TEXT DEFAULT 'new',
		price REAL DEFAULT 1.5,
		created TEXT DEFAULT CURRENT_DATE
	)`)
	mustExec(t, e, "INSERT INTO items (label) VALUES ('a'), ('b')")
	mustExec(t, e, "INSERT INTO items (id, label) VALUES (10, 'x')")
	mustExec(t, e, "INSERT INTO items (label, price) VALUES ('y', 3)")

	res := mustExec(t, e, "SELECT id, status, price FROM items ORDER BY id")
	want := [][]any{
		{int64(1), "new", 1.5},
		{int64(2), "new", 1.5},
		{int64(10), "new", 1.5},
		{int64(11), "new", 3.0},
	}
	if !reflect.DeepEqual(res.Rows, want) {
		t.Errorf("rows = %v, want %v", res.Rows, want)
	}
	created := mustExec(t, e, "SELECT created FROM items WHERE id = 1").Rows[0][0]
	if s, _ := created.(string); len(s) != len("2006-01-02") {
		t.Errorf("CURRENT_DATE default = %v", created)
	}
}

func TestInsertIsAllOrNothing(t *testing.T) {
	e, _ := newTestEngine(t)
	mustExec(t, e, "CREATE TABLE t (id INTEGER, name TEXT NOT NULL)")
	if _, err := e.Execute("INSERT INTO t VALUES (1, 'a'), (2, NULL)"); !errors.Is(err, errors.ErrConstraint) {
		t.Fatalf("error = %v, want constraint violation", err)
	}
	if n := mustExec(t, e, "SELECT COUNT(*) FROM t").Rows[0][0]; n != int64(0) {
		t.Errorf("rows stored after failed insert = %v", n)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	e, _ := newTestEngine(t)
	seedUsers(t, e)

	res := mustExec(t, e, "UPDATE users SET age = 31, city = 'lyon' WHERE name = 'alice'")
	if res.Kind != KindCount || res.Affected != 1 {
		t.Fatalf("UPDATE = %+v", res)
	}
	row := mustExec(t, e, "SELECT age, city FROM users WHERE id = 1").Rows[0]
	if !reflect.DeepEqual(row, []any{int64(31), "lyon"}) {
		t.Errorf("updated row = %v", row)
	}
	if res := mustExec(t, e, "UPDATE users SET age = 0 WHERE id = 99"); res.Affected != 0 {
		t.Errorf("UPDATE of no rows affected %d", res.Affected)
	}
	if _, err := e.Execute("UPDATE users SET nope = 1"); !errors.Is(err, errors.ErrSchema) {
		t.Errorf("unknown SET column error = %v", err)
	}
	if _, err := e.Execute("UPDATE users SET name = NULL WHERE id = 2"); !errors.Is(err, errors.ErrConstraint) {
		t.Errorf("NOT NULL update error = %v", err)
	}

	res = mustExec(t, e, "DELETE FROM users WHERE city = 'paris' OR city = 'oslo'")
	if res.Affected != 2 {
		t.Errorf("DELETE affected %d, want 2", res.Affected)
	}
	if n := mustExec(t, e, "SELECT COUNT(*) FROM users").Rows[0][0]; n != int64(2) {
		t.Errorf("remaining rows = %v", n)
	}
	rows, err := e.IndexLookup("users_pk", 3)
	if err != nil || len(rows) != 0 {
		t.Errorf("pk index still holds deleted row: %v %v", rows, err)
	}

	res = mustExec(t, e, "DELETE FROM users")
	if res.Affected != 2 {
		t.Errorf("DELETE without WHERE affected %d", res.Affected)
	}
	mustExec(t, e, "INSERT INTO users (id, name) VALUES (7, 'gina')")
	if n := mustExec(t, e, "SELECT COUNT(*) FROM users").Rows[0][0]; n != int64(1) {
		t.Errorf("rows after refill = %v", n)
	}
}

func TestLargeTableSpansPages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "large.rbx")
	e := openAt(t, path, Options{})
	mustExec(t, e, "CREATE TABLE big (id INTEGER PRIMARY KEY, body TEXT)")
	body := strings.Repeat("x", 500)
	for i := 0; i < 200; i++ {
		mustExec(t, e, "INSERT INTO big VALUES (?, ?)", i, body)
	}
	mustExec(t, e, "DELETE FROM big WHERE id >= 100")
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}

	e = openAt(t, path, Options{})
	defer e.Close()
	res := mustExec(t, e, "SELECT COUNT(*), MAX(id) FROM big")
	if !reflect.DeepEqual(res.Rows[0], []any{int64(100), int64(99)}) {
		t.Errorf("after reopen = %v", res.Rows)
	}
	if _, err := e.Execute("INSERT INTO big VALUES (1000, ?)", strings.Repeat("y", 10000)); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("oversized row error = %v", err)
	}
}

func TestDropTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drop.rbx")
	e := openAt(t, path, Options{})
	seedUsers(t, e)
	mustExec(t, e, "CREATE INDEX idx_city ON users (city)")

	res := mustExec(t, e, "DROP TABLE users")
	if !res.OK {
		t.Fatalf("DROP TABLE = %+v", res)
	}
	if e.TableExists("users") {
		t.Error("table still exists")
	}
	if _, err := e.IndexLookup("idx_city", "paris"); err == nil {
		t.Error("index of dropped table still usable")
	}
	if res := mustExec(t, e, "DROP TABLE IF EXISTS users"); res.OK {
		t.Error("DROP TABLE IF EXISTS on a missing table reported OK")
	}
	if _, err := e.Execute("DROP TABLE users"); !errors.Is(err, errors.ErrSchema) {
		t.Errorf("DROP of a missing table error = %v", err)
	}
	if _, err := e.Execute("DROP TABLE __tables"); !errors.Is(err, errors.ErrSchema) {
		t.Errorf("DROP of a system table error = %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}

	e = openAt(t, path, Options{})
	defer e.Close()
	if e.TableExists("users") {
		t.Error("dropped table reappeared after reopen")
	}
	if n := mustExec(t, e, "SELECT COUNT(*) FROM __indexes").Rows[0][0]; n != int64(0) {
		t.Errorf("__indexes rows after drop = %v", n)
	}
	if got := e.IntegrityCheck(); !reflect.DeepEqual(got, []string{"ok"}) {
		t.Errorf("IntegrityCheck() = %v", got)
	}
}

func TestDropIndex(t *testing.T) {
	e, _ := newTestEngine(t)
	seedUsers(t, e)
	mustExec(t, e, "CREATE INDEX idx_age ON users (age)")
	if res := mustExec(t, e, "CREATE INDEX IF NOT EXISTS idx_age ON users (age)"); res.OK {
		t.Error("CREATE INDEX IF NOT EXISTS on an existing index reported OK")
	}
	if _, err := e.Execute("CREATE INDEX idx_age ON users (age)"); !errors.Is(err, errors.ErrSchema) {
		t.Errorf("duplicate index error = %v", err)
	}
	mustExec(t, e, "DROP INDEX idx_age")
	if _, ok := e.Catalog().Index("idx_age"); ok {
		t.Error("index still in catalog")
	}
	if res := mustExec(t, e, "DROP INDEX IF EXISTS idx_age"); res.OK {
		t.Error("DROP INDEX IF EXISTS on a missing index reported OK")
	}
	if _, err := e.Execute("CREATE INDEX idx_bad ON users (nope)"); err == nil {
		t.Error("index on a missing column succeeded")
	}
}

func TestAlterTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alter.rbx")
	e := openAt(t, path, Options{})
	seedUsers(t, e)
	mustExec(t, e, "CREATE INDEX idx_city ON users (city)")

	mustExec(t, e, "ALTER TABLE users RENAME TO people")
	if e.TableExists("users") || !e.TableExists("people") {
		t.Fatal("rename did not move the table")
	}
	if _, err := e.Execute("ALTER TABLE people RENAME TO __views"); err == nil {
		t.Error("rename onto a system table succeeded")
	}

	mustExec(t, e, "ALTER TABLE people ADD COLUMN country TEXT DEFAULT 'fr'")
	mustExec(t, e, "ALTER TABLE people ADD COLUMN nickname TEXT")
	if _, err := e.Execute("ALTER TABLE people ADD COLUMN score INTEGER NOT NULL"); !errors.Is(err, errors.ErrConstraint) {
		t.Errorf("NOT NULL column without default error = %v", err)
	}
	if _, err := e.Execute("ALTER TABLE people ADD COLUMN city TEXT"); !errors.Is(err, errors.ErrSchema) {
		t.Errorf("duplicate column error = %v", err)
	}
	mustExec(t, e, "INSERT INTO people (id, name, country) VALUES (5, 'erin', 'it')")
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}

	e = openAt(t, path, Options{})
	defer e.Close()
	res := mustExec(t, e, "SELECT id, country, nickname FROM people WHERE id IN (1, 5) ORDER BY id")
	want := [][]any{{int64(1), "fr", nil}, {int64(5), "it", nil}}
	if !reflect.DeepEqual(res.Rows, want) {
		t.Errorf("rows = %v, want %v", res.Rows, want)
	}
	rows, err := e.IndexLookup("idx_city", "paris")
	if err != nil || len(rows) != 2 {
		t.Errorf("index after rename = %v %v", rows, err)
	}
	sql := mustExec(t, e, "SELECT sql FROM __tables WHERE name = 'people'").Rows[0][0].(string)
	if !strings.Contains(sql, "people") || !strings.Contains(sql, "country") {
		t.Errorf("stored sql = %q", sql)
	}
}

func TestRenameMovesPrimaryKeyIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rename_pk.rbx")
	e := openAt(t, path, Options{})
	mustExec(t, e, "CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)")
	mustExec(t, e, "INSERT INTO t VALUES (1, 'old')")
	mustExec(t, e, "ALTER TABLE t RENAME TO u")
	mustExec(t, e, "CREATE TABLE t (id INTEGER PRIMARY KEY)")
	mustExec(t, e, "INSERT INTO t VALUES (7)")

	check := func(e *Engine) {
		t.Helper()
		tests := []struct {
			table string
			index string
			key   int64
		}{
			{table: "u", index: "u_pk", key: 1},
			{table: "t", index: "t_pk", key: 7},
		}
		for _, tt := range tests {
			res := mustExec(t, e, "SHOW INDEXES FROM "+tt.table)
			if got := columnOf(t, res, "name"); !reflect.DeepEqual(got, []any{tt.index}) {
				t.Errorf("SHOW INDEXES FROM %s = %v, want [%s]", tt.table, got, tt.index)
			}
			def, ok := e.Catalog().Index(tt.index)
			if !ok || def.Table != tt.table {
				t.Errorf("Index(%s) = %+v, %v", tt.index, def, ok)
			}
			rows, err := e.IndexLookup(tt.index, tt.key)
			if err != nil || len(rows) != 1 || rows[0][0] != tt.key {
				t.Errorf("IndexLookup(%s, %d) = %v, %v", tt.index, tt.key, rows, err)
			}
		}
	}
	check(e)
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	e = openAt(t, path, Options{})
	defer e.Close()
	check(e)
}

func TestCreateTableRejectsTakenPrimaryKeyIndex(t *testing.T) {
	e, _ := newTestEngine(t)
	mustExec(t, e, "CREATE TABLE other (id INTEGER PRIMARY KEY, n INTEGER)")
	mustExec(t, e, "CREATE INDEX t_pk ON other (n)")

	if _, err := e.Execute("CREATE TABLE t (id INTEGER PRIMARY KEY)"); !errors.Is(err, errors.ErrSchema) {
		t.Fatalf("CREATE TABLE with a taken pk index name error = %v, want schema error", err)
	}
	if e.TableExists("t") {
		t.Error("table registered after a failed CREATE TABLE")
	}
	mustExec(t, e, "CREATE TABLE t (v TEXT)")
}
