// Package engine executes parsed SQL against paged table storage.
//
// An Engine owns one pager, the in-memory catalog rebuilt from the system
// tables, the B-tree indexes, the transaction manager and, optionally, a
// query result cache and a replication log. It is not safe for
// concurrent use.
package engine

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/FocuswithJustin/RibbitDB/core/errors"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/btree"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/pager"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/parser"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/record"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/schema"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/txn"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/wal"
	"github.com/FocuswithJustin/RibbitDB/internal/cache"
	"github.com/FocuswithJustin/RibbitDB/internal/logging"
)

// Options configures an Engine.
type Options struct {
	// BTreeOrder and BTreeCache size the index trees.
	BTreeOrder int
	BTreeCache int

	// QueryCacheTTL enables the SELECT result cache when positive.
	QueryCacheTTL time.Duration
	// QueryCacheSize bounds the number of cached results.
	QueryCacheSize int

	// Log receives every successful mutating statement when set. The
	// engine closes it on Close.
	Log *wal.Log

	// Now is the clock for time defaults and catalog timestamps.
	Now func() time.Time
}

// DefaultOptions returns the options used when fields are left zero.
func DefaultOptions() Options {
	return Options{
		BTreeOrder:     btree.DefaultOrder,
		BTreeCache:     btree.DefaultCacheSize,
		QueryCacheSize: 256,
		Now:            time.Now,
	}
}

// Engine is the query executor for one database file.
type Engine struct {
	pager   *pager.Pager
	catalog *schema.Manager
	meta    *metaDoc
	indexes map[string]*index
	txns    *txn.Manager
	results *cache.TTLCache[string, *Result]
	log     *wal.Log
	opts    Options
	now     func() time.Time
	closed  bool
}

// New bootstraps the catalog of the database behind p. A fresh file gets
// a new META document and empty system tables; an existing one has its
// tables, indexes and views rebuilt from the system table rows.
func New(p *pager.Pager, opts Options) (*Engine, error) {
	def := DefaultOptions()
	if opts.BTreeOrder <= 0 {
		opts.BTreeOrder = def.BTreeOrder
	}
	if opts.BTreeCache <= 0 {
		opts.BTreeCache = def.BTreeCache
	}
	if opts.QueryCacheSize <= 0 {
		opts.QueryCacheSize = def.QueryCacheSize
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}

	e := &Engine{
		pager:   p,
		catalog: schema.NewManager(),
		indexes: make(map[string]*index),
		txns:    txn.NewManager(),
		results: cache.New[string, *Result](opts.QueryCacheTTL, opts.QueryCacheSize),
		log:     opts.Log,
		opts:    opts,
		now:     opts.Now,
	}

	for _, t := range schema.SystemTables() {
		if err := e.catalog.CreateTable(t); err != nil {
			return nil, err
		}
	}

	meta, err := loadMeta(p)
	switch {
	case errors.Is(err, errNotInitialized):
		e.meta = newMeta()
		if err := e.Flush(); err != nil {
			return nil, err
		}
		logging.Info("catalog initialized", "path", p.Path(), "database_id", e.meta.DatabaseID)
	case err != nil:
		return nil, err
	default:
		e.meta = meta
		if err := e.loadCatalog(); err != nil {
			return nil, err
		}
	}
	logging.CatalogLoaded(len(e.catalog.UserTables()), len(e.catalog.Views()), len(e.catalog.Indexes("")),
		"database_id", e.meta.DatabaseID)
	return e, nil
}

// loadCatalog rebuilds user tables, indexes and views from system rows.
func (e *Engine) loadCatalog() error {
	tablesT, _ := e.catalog.Table(schema.TablesTable)
	columnsT, _ := e.catalog.Table(schema.ColumnsTable)
	indexesT, _ := e.catalog.Table(schema.IndexesTable)
	viewsT, _ := e.catalog.Table(schema.ViewsTable)

	type positioned struct {
		pos int
		col schema.Column
	}
	columns := make(map[string][]positioned)
	for _, row := range e.rows(columnsT) {
		table, pos, c, err := schema.ColumnFromRow(row)
		if err != nil {
			return errors.NewOperational("load catalog", e.pager.Path(), err)
		}
		k := pageKey(table)
		columns[k] = append(columns[k], positioned{pos, c})
	}

	for _, row := range e.rows(tablesT) {
		name, _ := row[0].(string)
		if typ, _ := row[1].(string); typ != "table" || name == "" {
			continue
		}
		cols := columns[pageKey(name)]
		slices.SortStableFunc(cols, func(a, b positioned) int { return a.pos - b.pos })
		defs := make([]schema.Column, len(cols))
		for i, c := range cols {
			defs[i] = c.col
		}
		t := schema.NewTable(name, defs)
		t.SQL, _ = row[2].(string)
		if err := e.catalog.CreateTable(t); err != nil {
			return errors.NewOperational("load catalog", e.pager.Path(), err)
		}
	}

	for _, def := range schema.IndexesFromRows(e.rows(indexesT)) {
		if err := e.catalog.CreateIndex(def); err != nil {
			logging.Warn("skipping catalog index", "index", def.Name, "error", err.Error())
			continue
		}
		if err := e.buildIndex(def); err != nil {
			return err
		}
	}

	for _, row := range e.rows(viewsT) {
		v, err := schema.ViewFromRow(row)
		if err != nil {
			logging.Warn("skipping catalog view", "error", err.Error())
			continue
		}
		if err := e.catalog.CreateView(v); err != nil {
			logging.Warn("skipping catalog view", "view", v.Name, "error", err.Error())
		}
	}
	return nil
}

// DatabaseID returns the id recorded when the file was created.
func (e *Engine) DatabaseID() string {
	return e.meta.DatabaseID
}

// Catalog exposes the in-memory schema.
func (e *Engine) Catalog() *schema.Manager {
	return e.catalog
}

// InTransaction reports whether a transaction is active.
func (e *Engine) InTransaction() bool {
	return e.txns.Active() != nil
}

// PagerStats returns the pager counters.
func (e *Engine) PagerStats() pager.Stats {
	return e.pager.Stats()
}

// Flush saves the META document and writes every dirty page.
func (e *Engine) Flush() error {
	if err := saveMeta(e.pager, e.meta); err != nil {
		return err
	}
	return e.pager.Flush()
}

// Close flushes and closes the pager and the replication log. An active
// transaction is not rolled back; its changes are written like any other.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if tx := e.txns.Active(); tx != nil {
		logging.Warn("closing with an active transaction", "transaction_id", tx.ID, "operations", tx.Len())
	}
	var err error
	if !e.pager.ReadOnly() {
		err = saveMeta(e.pager, e.meta)
	}
	if cerr := e.pager.Close(); err == nil {
		err = cerr
	}
	if e.log != nil {
		if lerr := e.log.Close(); err == nil {
			err = lerr
		}
	}
	e.results.Invalidate()
	return err
}

// Execute parses sql, binds args to its '?' placeholders and runs every
// statement in order. It returns the result of the last statement; the
// first failure stops execution and earlier statements stay applied.
func (e *Engine) Execute(sql string, args ...any) (*Result, error) {
	if e.closed {
		return nil, pager.ErrClosed
	}
	bound := make([]any, len(args))
	for i, a := range args {
		v, err := record.Normalize(a)
		if err != nil {
			return nil, errors.NewValidation("parameters", fmt.Sprintf("argument %d: %v", i+1, err))
		}
		bound[i] = v
	}

	cacheKey := sql
	if len(bound) > 0 {
		cacheKey = fmt.Sprintf("%s\x00%#v", sql, bound)
	}
	if res, ok := e.results.Get(cacheKey); ok {
		return res.clone(), nil
	}

	stmts, err := parser.ParseString(sql)
	if err != nil {
		logging.StatementFailed("PARSE", err)
		return nil, err
	}
	if err := parser.Bind(stmts, bound); err != nil {
		return nil, err
	}
	if len(stmts) == 0 {
		return messageResult(""), nil
	}

	var res *Result
	for _, stmt := range stmts {
		text, logArgs := stmt.String(), []any(nil)
		if len(stmts) == 1 {
			text, logArgs = sql, bound
		}
		if res, err = e.run(stmt, text, logArgs); err != nil {
			return nil, err
		}
	}

	if len(stmts) == 1 {
		if _, ok := stmts[0].(*parser.SelectStmt); ok && e.results.Enabled() {
			e.results.Set(cacheKey, res)
			return res.clone(), nil
		}
	}
	return res, nil
}

// run executes one bound statement with logging, cache invalidation and
// replication.
func (e *Engine) run(stmt parser.Statement, text string, args []any) (*Result, error) {
	if mutates(stmt) && e.pager.ReadOnly() {
		return nil, errors.NewOperational(strings.ToLower(stmt.Kind()), e.pager.Path(), pager.ErrReadOnly)
	}
	start := time.Now()
	res, err := e.dispatch(stmt)
	if err != nil {
		logging.StatementFailed(stmt.Kind(), err)
		return nil, err
	}
	logging.StatementExecuted(stmt.Kind(), time.Since(start), res.size())

	if mutates(stmt) {
		e.results.Invalidate()
		if e.log != nil {
			if _, err := e.log.Append(text, args); err != nil {
				logging.Warn("replication append failed", "kind", stmt.Kind(), "error", err.Error())
			}
		}
	}
	return res, nil
}

// mutates reports whether stmt changes data, schema or transaction state.
func mutates(stmt parser.Statement) bool {
	switch stmt.(type) {
	case *parser.SelectStmt, *parser.PragmaStmt, *parser.DescribeStmt, *parser.ShowStmt, *parser.ExplainStmt:
		return false
	}
	return true
}

// dispatch runs stmt.
func (e *Engine) dispatch(stmt parser.Statement) (*Result, error) {
	switch s := stmt.(type) {
	case *parser.SelectStmt:
		return e.execSelect(s)
	case *parser.InsertStmt:
		return e.execInsert(s)
	case *parser.UpdateStmt:
		return e.execUpdate(s)
	case *parser.DeleteStmt:
		return e.execDelete(s)
	case *parser.CreateTableStmt:
		return e.execCreateTable(s)
	case *parser.CreateIndexStmt:
		return e.execCreateIndex(s)
	case *parser.CreateViewStmt:
		return e.execCreateView(s)
	case *parser.DropTableStmt:
		return e.execDropTable(s)
	case *parser.DropIndexStmt:
		return e.execDropIndex(s)
	case *parser.DropViewStmt:
		return e.execDropView(s)
	case *parser.AlterTableStmt:
		return e.execAlterTable(s)
	case *parser.PragmaStmt:
		return e.execPragma(s)
	case *parser.BeginStmt:
		return e.execBegin()
	case *parser.CommitStmt:
		return e.execCommit()
	case *parser.RollbackStmt:
		return e.execRollback(s)
	case *parser.SavepointStmt:
		return e.execSavepoint(s)
	case *parser.ReleaseStmt:
		return e.execRelease(s)
	case *parser.DescribeStmt:
		return e.execDescribe(s)
	case *parser.ShowStmt:
		return e.execShow(s)
	case *parser.ExplainStmt:
		return e.execExplain(s)
	}
	return nil, errors.NewUnsupported(stmt.Kind(), "statement is not supported by the executor")
}

// timestamp is the catalog creation time format.
func (e *Engine) timestamp() string {
	return e.now().UTC().Format(schema.TimestampLayout)
}
