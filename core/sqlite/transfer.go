package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/FocuswithJustin/RibbitDB/core/errors"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit"
	"github.com/FocuswithJustin/RibbitDB/internal/logging"
	"github.com/FocuswithJustin/RibbitDB/internal/validation"
)

// Stats counts what a transfer copied.
type Stats struct {
	Tables  int   `json:"tables"`
	Indexes int   `json:"indexes"`
	Rows    int64 `json:"rows"`
}

type indexDef struct {
	name    string
	table   string
	columns []string
	unique  bool
}

func (d indexDef) sql() string {
	kw := "INDEX"
	if d.unique {
		kw = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s %s ON %s (%s)", kw, quote(d.name), quote(d.table), quoteList(d.columns))
}

// Export copies every user table of src, its rows and its secondary
// indexes into dst inside one SQLite transaction. Tables are created
// from their stored CREATE TABLE text.
func Export(ctx context.Context, src *ribbit.DB, dst *sql.DB) (Stats, error) {
	var st Stats
	tables, err := src.Query("SHOW TABLES")
	if err != nil {
		return st, err
	}

	tx, err := dst.BeginTx(ctx, nil)
	if err != nil {
		return st, fmt.Errorf("begin export: %w", err)
	}
	defer tx.Rollback()

	for _, t := range tables {
		name, _ := t["table_name"].(string)
		n, err := exportTable(ctx, src, tx, name)
		if err != nil {
			return st, fmt.Errorf("export table %s: %w", name, err)
		}
		st.Tables++
		st.Rows += n

		indexes, err := ribbitIndexes(src, name)
		if err != nil {
			return st, err
		}
		for _, ix := range indexes {
			if _, err := tx.ExecContext(ctx, ix.sql()); err != nil {
				return st, fmt.Errorf("export index %s: %w", ix.name, err)
			}
			st.Indexes++
		}
	}

	if err := tx.Commit(); err != nil {
		return st, fmt.Errorf("commit export: %w", err)
	}
	logging.Info("exported to sqlite", "tables", st.Tables, "indexes", st.Indexes, "rows", st.Rows)
	return st, nil
}

func exportTable(ctx context.Context, src *ribbit.DB, tx *sql.Tx, name string) (int64, error) {
	def, err := src.Query("SELECT sql FROM __tables WHERE name = ?", name)
	if err != nil {
		return 0, err
	}
	if len(def) == 0 {
		return 0, errors.NewSchema("table", name, "no stored definition")
	}
	ddl, _ := def[0]["sql"].(string)
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return 0, err
	}

	res, err := src.Execute("SELECT * FROM " + quote(name))
	if err != nil {
		return 0, err
	}
	if len(res.Rows) == 0 {
		return 0, nil
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(name), quoteList(res.Columns), placeholders(len(res.Columns))))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	for _, row := range res.Rows {
		args := make([]any, len(row))
		for i, v := range row {
			args[i] = sqlValue(v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, err
		}
	}
	return int64(len(res.Rows)), nil
}

// ribbitIndexes lists the indexes of table other than the automatic
// primary key index, which SQLite provides on its own.
func ribbitIndexes(src *ribbit.DB, table string) ([]indexDef, error) {
	rows, err := src.Query("SHOW INDEXES FROM " + quote(table))
	if err != nil {
		return nil, err
	}
	var out []indexDef
	pos := make(map[string]int)
	for _, r := range rows {
		name, _ := r["name"].(string)
		if strings.EqualFold(name, table+"_pk") {
			continue
		}
		col, _ := r["column_name"].(string)
		i, ok := pos[name]
		if !ok {
			unique, _ := r["unique_index"].(int64)
			pos[name] = len(out)
			out = append(out, indexDef{name: name, table: table, unique: unique != 0})
			i = len(out) - 1
		}
		out[i].columns = append(out[i].columns, col)
	}
	return out, nil
}

// Import copies every table of src, its rows and its indexes into dst.
// Rows are inserted inside one RibbitDB transaction that is rolled back
// on failure; tables created before the failure remain.
func Import(ctx context.Context, src *sql.DB, dst *ribbit.DB) (Stats, error) {
	var st Stats
	if dst.InTransaction() {
		return st, errors.NewTransaction("import", "a transaction is already active")
	}

	names, err := queryStrings(ctx, src,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return st, err
	}
	for _, name := range names {
		if err := validation.ValidateIdentifier(name); err != nil {
			return st, errors.NewValidation("table", err.Error())
		}
	}
	for _, name := range names {
		ddl, err := createTableSQL(ctx, src, name)
		if err != nil {
			return st, fmt.Errorf("import table %s: %w", name, err)
		}
		if _, err := dst.Execute(ddl); err != nil {
			return st, fmt.Errorf("import table %s: %w", name, err)
		}
		st.Tables++
	}

	if _, err := dst.Execute("BEGIN"); err != nil {
		return st, err
	}
	for _, name := range names {
		n, err := importRows(ctx, src, dst, name)
		if err != nil {
			if _, rerr := dst.Execute("ROLLBACK"); rerr != nil {
				logging.Warn("import rollback failed", "table", name, "error", rerr.Error())
			}
			return st, fmt.Errorf("import rows of %s: %w", name, err)
		}
		st.Rows += n
	}
	if err := dst.Commit(); err != nil {
		return st, err
	}

	indexes, err := sqliteIndexes(ctx, src)
	if err != nil {
		return st, err
	}
	for _, ix := range indexes {
		if _, err := dst.Execute(ix.sql()); err != nil {
			return st, fmt.Errorf("import index %s: %w", ix.name, err)
		}
		st.Indexes++
	}
	logging.Info("imported from sqlite", "tables", st.Tables, "indexes", st.Indexes, "rows", st.Rows)
	return st, nil
}

// createTableSQL rebuilds a RibbitDB CREATE TABLE from PRAGMA table_info.
// A composite primary key is dropped since RibbitDB indexes a single key
// column.
func createTableSQL(ctx context.Context, src *sql.DB, name string) (string, error) {
	rows, err := src.QueryContext(ctx, "SELECT name, type, \"notnull\", dflt_value, pk FROM pragma_table_info(?)", name)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	type column struct {
		name, typ string
		notNull   bool
		dflt      sql.NullString
		pk        int
	}
	var cols []column
	pks := 0
	for rows.Next() {
		var c column
		if err := rows.Scan(&c.name, &c.typ, &c.notNull, &c.dflt, &c.pk); err != nil {
			return "", err
		}
		if c.pk > 0 {
			pks++
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	defs := make([]string, len(cols))
	for i, c := range cols {
		var sb strings.Builder
		sb.WriteString(quote(c.name))
		if c.typ != "" {
			sb.WriteString(" " + c.typ)
		}
		if pks == 1 && c.pk == 1 {
			sb.WriteString(" PRIMARY KEY")
		}
		if c.notNull {
			sb.WriteString(" NOT NULL")
		}
		if c.dflt.Valid {
			sb.WriteString(" DEFAULT " + c.dflt.String)
		}
		defs[i] = sb.String()
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quote(name), strings.Join(defs, ", ")), nil
}

func importRows(ctx context.Context, src *sql.DB, dst *ribbit.DB, name string) (int64, error) {
	rows, err := src.QueryContext(ctx, "SELECT * FROM "+quote(name))
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return 0, err
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quote(name), quoteList(cols), placeholders(len(cols)))
	var n int64
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return n, err
		}
		if _, err := dst.Execute(insert, vals...); err != nil {
			return n, err
		}
		n++
	}
	return n, rows.Err()
}

// sqliteIndexes lists the explicitly created indexes of src.
func sqliteIndexes(ctx context.Context, src *sql.DB) ([]indexDef, error) {
	rows, err := src.QueryContext(ctx,
		"SELECT name, tbl_name, sql FROM sqlite_master WHERE type = 'index' AND sql IS NOT NULL ORDER BY name")
	if err != nil {
		return nil, err
	}
	var out []indexDef
	for rows.Next() {
		var d indexDef
		var ddl string
		if err := rows.Scan(&d.name, &d.table, &ddl); err != nil {
			rows.Close()
			return nil, err
		}
		d.unique = strings.HasPrefix(strings.ToUpper(ddl), "CREATE UNIQUE")
		out = append(out, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		cols, err := queryStrings(ctx, src, "SELECT name FROM pragma_index_info(?) ORDER BY seqno", out[i].name)
		if err != nil {
			return nil, err
		}
		out[i].columns = cols
	}
	return out, nil
}

func queryStrings(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// sqlValue converts a stored value into one database/sql accepts.
func sqlValue(v any) any {
	switch v.(type) {
	case nil, int64, float64, string, []byte:
		return v
	}
	return fmt.Sprint(v)
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteList(names []string) string {
	q := make([]string, len(names))
	for i, n := range names {
		q[i] = quote(n)
	}
	return strings.Join(q, ", ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
