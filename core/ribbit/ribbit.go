// Package ribbit provides RibbitDB, an embedded relational database that
// stores its tables in a single LZMA-compressed page file.
//
// A DB speaks a small SQL dialect through Execute and Query and offers
// map-based helpers for callers that do not want to build SQL strings.
// Changes are flushed to disk on COMMIT, Commit and Close.
//
// Usage:
//
//	db, err := ribbit.Open("app.rbx")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	_, err = db.Execute("CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)")
package ribbit

import (
	"time"

	"github.com/FocuswithJustin/RibbitDB/core/errors"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/btree"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/engine"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/pager"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/schema"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/wal"
	"github.com/FocuswithJustin/RibbitDB/internal/validation"
)

type (
	// Result is the outcome of one statement.
	Result = engine.Result
	// ResultKind tells which fields of a Result are meaningful.
	ResultKind = engine.ResultKind
	// Column describes a table column for CreateTable.
	Column = schema.Column
	// Migration is one applied schema migration.
	Migration = engine.Migration
	// LogEntry is one statement from the replication log.
	LogEntry = wal.Entry
	// Report describes a database file; see Inspect.
	Report = pager.Report
	// PageInfo summarizes one page of a Report.
	PageInfo = pager.PageInfo
	// PagerStats counts page reads, writes and cache use.
	PagerStats = pager.Stats
	// IndexStats counts lookups against one index.
	IndexStats = btree.Stats
)

// Result kinds.
const (
	KindRows    = engine.KindRows
	KindCount   = engine.KindCount
	KindBool    = engine.KindBool
	KindMessage = engine.KindMessage
)

// NewColumn returns a nullable column with the declared SQL type decl,
// for example "INTEGER" or "VARCHAR(40)".
func NewColumn(name, decl string) Column {
	return schema.NewColumn(name, decl)
}

// Option adjusts the configuration used by Open.
type Option func(*options)

type options struct {
	cfg Config
	now func() time.Time
}

// WithPageSize sets the page size of a new file. Existing files keep theirs.
func WithPageSize(n int) Option {
	return func(o *options) { o.cfg.PageSize = n }
}

// WithCachePages bounds the number of clean pages kept in memory.
func WithCachePages(n int) Option {
	return func(o *options) { o.cfg.CachePages = n }
}

// WithCompressionLevel sets the LZMA level, 0 (raw pages) to 9.
func WithCompressionLevel(level int) Option {
	return func(o *options) { o.cfg.CompressionLevel = level }
}

// WithBTreeOrder sets the fan-out of index trees.
func WithBTreeOrder(order int) Option {
	return func(o *options) { o.cfg.BTreeOrder = order }
}

// WithBTreeCache sets the per-index lookup cache size.
func WithBTreeCache(n int) Option {
	return func(o *options) { o.cfg.BTreeCache = n }
}

// WithWAL appends every change to the replication log at path.
func WithWAL(path string) Option {
	return func(o *options) { o.cfg.WALPath = path }
}

// WithQueryCacheTTL caches SELECT results for ttl. Any change clears the cache.
func WithQueryCacheTTL(ttl time.Duration) Option {
	return func(o *options) { o.cfg.QueryCacheTTL = ttl }
}

// WithReadOnly opens the file without write access.
func WithReadOnly() Option {
	return func(o *options) { o.cfg.ReadOnly = true }
}

// WithClock replaces time.Now for time defaults and catalog timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// DB is an open database. It is not safe for concurrent use.
type DB struct {
	path   string
	cfg    Config
	pager  *pager.Pager
	engine *engine.Engine
	log    *wal.Log
}

// Open opens or creates the database at path.
func Open(path string, opts ...Option) (*DB, error) {
	o := options{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	return open(path, o)
}

// OpenConfig opens the database at path with cfg, typically the result
// of LoadConfig.
func OpenConfig(path string, cfg Config) (*DB, error) {
	return open(path, options{cfg: cfg})
}

func open(path string, o options) (*DB, error) {
	if err := validation.ValidatePath(path); err != nil {
		return nil, errors.NewValidation("path", err.Error())
	}
	if err := validation.ExpectFileType(path, validation.FileTypeRibbit, true); errors.Is(err, validation.ErrFileType) {
		return nil, errors.NewValidation("path", err.Error())
	}
	cfg := o.cfg
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p, err := pager.Open(path, pager.Options{
		PageSize:         cfg.PageSize,
		CacheSize:        cfg.CachePages,
		CompressionLevel: cfg.CompressionLevel,
		ReadOnly:         cfg.ReadOnly,
	})
	if err != nil {
		return nil, err
	}

	var log *wal.Log
	if cfg.WALPath != "" && !cfg.ReadOnly {
		if log, err = wal.Open(cfg.WALPath); err != nil {
			p.Close()
			return nil, err
		}
	}

	e, err := engine.New(p, engine.Options{
		BTreeOrder:    cfg.BTreeOrder,
		BTreeCache:    cfg.BTreeCache,
		QueryCacheTTL: cfg.QueryCacheTTL,
		Log:           log,
		Now:           o.now,
	})
	if err != nil {
		p.Close()
		if log != nil {
			log.Close()
		}
		return nil, err
	}
	return &DB{path: path, cfg: cfg, pager: p, engine: e, log: log}, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Config returns the configuration the database was opened with.
func (db *DB) Config() Config {
	return db.cfg
}

// DatabaseID returns the identifier stored in the file's META page.
func (db *DB) DatabaseID() string {
	return db.engine.DatabaseID()
}

// Execute runs one or more ';'-separated statements, binding args to '?'
// placeholders, and returns the result of the last one.
func (db *DB) Execute(sql string, args ...any) (*Result, error) {
	return db.engine.Execute(sql, args...)
}

// Query runs sql and returns its rows keyed by column name. Statements
// that return no rows yield an empty slice.
func (db *DB) Query(sql string, args ...any) ([]map[string]any, error) {
	res, err := db.engine.Execute(sql, args...)
	if err != nil {
		return nil, err
	}
	if res.Kind != KindRows {
		return []map[string]any{}, nil
	}
	return res.Maps(), nil
}

// TableExists reports whether a table, including a system table, exists.
func (db *DB) TableExists(name string) bool {
	return db.engine.TableExists(name)
}

// CreateTable creates a table from column descriptions.
func (db *DB) CreateTable(name string, columns []Column) error {
	return db.engine.CreateTable(name, columns)
}

// Insert adds one row and returns the number of rows inserted.
func (db *DB) Insert(table string, values map[string]any) (int64, error) {
	return db.engine.Insert(table, values)
}

// Select returns the rows of table whose columns equal every value in where.
func (db *DB) Select(table string, where map[string]any) ([]map[string]any, error) {
	return db.engine.Select(table, where)
}

// Delete removes the rows of table matching where and returns their count.
func (db *DB) Delete(table string, where map[string]any) (int64, error) {
	return db.engine.Delete(table, where)
}

// IndexLookup returns the rows whose indexed columns equal key. Composite
// indexes take a []any with one value per column.
func (db *DB) IndexLookup(index string, key any) ([][]any, error) {
	return db.engine.IndexLookup(index, key)
}

// IndexRange returns the rows whose keys fall in [lo, hi], in key order.
func (db *DB) IndexRange(index string, lo, hi any) ([][]any, error) {
	return db.engine.IndexRange(index, lo, hi)
}

// IndexStats returns the counters of one index.
func (db *DB) IndexStats(index string) (IndexStats, error) {
	return db.engine.IndexStats(index)
}

// InTransaction reports whether BEGIN is in effect.
func (db *DB) InTransaction() bool {
	return db.engine.InTransaction()
}

// Commit ends the active transaction, if any, and flushes every dirty
// page and the replication log.
func (db *DB) Commit() error {
	if db.engine.InTransaction() {
		if _, err := db.engine.Execute("COMMIT"); err != nil {
			return err
		}
	} else if err := db.engine.Flush(); err != nil {
		return err
	}
	if db.log != nil {
		return db.log.Sync()
	}
	return nil
}

// RecordMigration marks the migration name as applied.
func (db *DB) RecordMigration(name string) error {
	return db.engine.RecordMigration(name)
}

// Migrations returns the applied migrations in order.
func (db *DB) Migrations() []Migration {
	return db.engine.Migrations()
}

// IntegrityCheck returns ["ok"] or one line per problem found.
func (db *DB) IntegrityCheck() []string {
	return db.engine.IntegrityCheck()
}

// Stats returns the pager counters.
func (db *DB) Stats() PagerStats {
	return db.engine.PagerStats()
}

// ReplicationLog returns the logged statements with an LSN greater than
// from. The database must have been opened with a WAL path.
func (db *DB) ReplicationLog(from uint64) ([]LogEntry, error) {
	if db.cfg.WALPath == "" {
		return nil, errors.NewUnsupported("replication log", "no WAL path configured")
	}
	return ReadLog(db.cfg.WALPath, from)
}

// TruncateLog drops the replication log entries at or below lsn, once
// every follower has applied them.
func (db *DB) TruncateLog(lsn uint64) error {
	if db.log == nil {
		return errors.NewUnsupported("replication log", "no writable WAL configured")
	}
	return db.log.Truncate(lsn)
}

// Close flushes and closes the database. An active transaction is
// written as is.
func (db *DB) Close() error {
	return db.engine.Close()
}

// Inspect summarizes the header and pages of the file at path without
// opening it for writing.
func Inspect(path string) (*Report, error) {
	return pager.Inspect(path)
}

// ReadLog reads the entries after lsn from the replication log at path
// without opening it for writing.
func ReadLog(path string, from uint64) ([]LogEntry, error) {
	return wal.ReadFile(path, from)
}
