package wal

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	dberrors "github.com/FocuswithJustin/RibbitDB/core/errors"
)

func openTemp(t *testing.T) (*Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db.rwal")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l, path
}

func TestAppendAndReadFrom(t *testing.T) {
	l, _ := openTemp(t)
	fixed := time.Unix(1700000000, 123)
	l.now = func() time.Time { return fixed }

	stmts := []struct {
		sql  string
		args []any
	}{
		{"CREATE TABLE t (id INTEGER, name TEXT)", nil},
		{"INSERT INTO t VALUES (?, ?)", []any{int64(1), "alice"}},
		{"UPDATE t SET name = ? WHERE id = ?", []any{nil, 2.5}},
		{"INSERT INTO t VALUES (?, ?)", []any{int64(3), []byte{0, 1, 2}}},
	}
	for i, s := range stmts {
		e, err := l.Append(s.sql, s.args)
		if err != nil {
			t.Fatalf("Append(%d) error = %v", i, err)
		}
		if e.LSN != uint64(i+1) {
			t.Errorf("Append(%d) LSN = %d", i, e.LSN)
		}
	}
	if l.LSN() != 4 {
		t.Errorf("LSN() = %d, want 4", l.LSN())
	}

	entries, err := l.ReadFrom(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("ReadFrom(1) returned %d entries", len(entries))
	}
	e := entries[0]
	if e.LSN != 2 || e.SQL != stmts[1].sql || !e.Time.Equal(fixed) {
		t.Errorf("entry = %+v", e)
	}
	if len(e.Args) != 2 || e.Args[0] != int64(1) || e.Args[1] != "alice" {
		t.Errorf("args = %#v", e.Args)
	}
	if entries[1].Args[0] != nil || entries[1].Args[1] != 2.5 {
		t.Errorf("args = %#v", entries[1].Args)
	}
	if b, ok := entries[2].Args[1].([]byte); !ok || len(b) != 3 {
		t.Errorf("blob arg = %#v", entries[2].Args[1])
	}
	if entries[0].ID == entries[1].ID {
		t.Error("entry ids repeat")
	}

	if all, _ := l.ReadFrom(0); len(all) != 4 {
		t.Errorf("ReadFrom(0) returned %d entries", len(all))
	}
	if none, _ := l.ReadFrom(4); len(none) != 0 {
		t.Errorf("ReadFrom(4) returned %d entries", len(none))
	}
}

func TestReopenContinuesNumbering(t *testing.T) {
	l, path := openTemp(t)
	for i := 0; i < 3; i++ {
		if _, err := l.Append("DELETE FROM t", nil); err != nil {
			t.Fatal(err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	l2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l2.Close()
	if l2.LSN() != 3 {
		t.Errorf("reopened LSN() = %d, want 3", l2.LSN())
	}
	e, err := l2.Append("COMMIT", nil)
	if err != nil || e.LSN != 4 {
		t.Errorf("Append() = %d, %v", e.LSN, err)
	}

	entries, err := ReadFile(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 4 || entries[3].SQL != "COMMIT" {
		t.Errorf("ReadFile() = %d entries", len(entries))
	}
}

func TestTornTailIsCut(t *testing.T) {
	l, path := openTemp(t)
	l.Append("INSERT INTO t VALUES (1)", nil)
	l.Append("INSERT INTO t VALUES (2)", nil)
	good := l.Size()
	l.Close()

	// Simulate a crash in the middle of writing a third frame.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.Write([]byte(Magic + "\x01partial"))
	f.Close()

	l2, err := Open(path)
	if err != nil {
		t.Fatalf("Open() on torn log error = %v", err)
	}
	defer l2.Close()
	if l2.LSN() != 2 || l2.Size() != good {
		t.Errorf("LSN %d size %d, want 2 and %d", l2.LSN(), l2.Size(), good)
	}
	info, _ := os.Stat(path)
	if info.Size() != good {
		t.Errorf("file size %d, want %d", info.Size(), good)
	}
	if e, err := l2.Append("INSERT INTO t VALUES (3)", nil); err != nil || e.LSN != 3 {
		t.Errorf("Append() after repair = %d, %v", e.LSN, err)
	}
	entries, _ := l2.ReadFrom(0)
	if len(entries) != 3 {
		t.Errorf("entries after repair = %d", len(entries))
	}
}

func TestCorruptFrameStopsScan(t *testing.T) {
	l, path := openTemp(t)
	l.Append("INSERT INTO t VALUES (1)", nil)
	first := l.Size()
	l.Append("INSERT INTO t VALUES (2)", nil)
	l.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// Flip a digest byte of the second frame.
	data[first+50] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := ReadFile(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("ReadFile() = %d entries, want 1", len(entries))
	}

	_, _, err = readFrame(bytes.NewReader(data[first:]))
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("readFrame() error = %v, want ErrCorrupt", err)
	}
}

func TestTruncate(t *testing.T) {
	l, path := openTemp(t)
	for i := 0; i < 5; i++ {
		l.Append("INSERT INTO t VALUES (?)", []any{int64(i)})
	}
	if err := l.Truncate(3); err != nil {
		t.Fatal(err)
	}
	entries, err := l.ReadFrom(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].LSN != 4 || entries[1].Args[0] != int64(4) {
		t.Errorf("after Truncate(3): %+v", entries)
	}
	if e, _ := l.Append("COMMIT", nil); e.LSN != 6 {
		t.Errorf("LSN after truncate = %d, want 6", e.LSN)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temporary file left behind: %v", err)
	}
	if onDisk, _ := ReadFile(path, 0); len(onDisk) != 3 {
		t.Errorf("ReadFile() after truncate = %d entries", len(onDisk))
	}
}

func TestClosedLog(t *testing.T) {
	l, _ := openTemp(t)
	l.Close()
	if _, err := l.Append("COMMIT", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Append() error = %v", err)
	}
	if _, err := l.ReadFrom(0); !errors.Is(err, ErrClosed) {
		t.Errorf("ReadFrom() error = %v", err)
	}
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "db.rwal"))
	if !errors.Is(err, dberrors.ErrOperational) {
		t.Errorf("Open() in missing dir error = %v", err)
	}
	if _, err := ReadFile(filepath.Join(t.TempDir(), "nope"), 0); !errors.Is(err, dberrors.ErrOperational) {
		t.Errorf("ReadFile() error = %v", err)
	}
}

func TestUnsupportedArgument(t *testing.T) {
	l, _ := openTemp(t)
	if _, err := l.Append("INSERT", []any{struct{}{}}); err == nil {
		t.Error("Append() accepted an unencodable argument")
	}
	if l.LSN() != 0 {
		t.Errorf("failed append advanced LSN to %d", l.LSN())
	}
}
