// Command ribbit is the CLI for RibbitDB databases.
// It provides an interactive shell, one-shot statement execution, file
// inspection, integrity checks, replication log dumps and SQLite transfer.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"

	"github.com/FocuswithJustin/RibbitDB/core/ribbit"
	"github.com/FocuswithJustin/RibbitDB/core/sqlite"
	"github.com/FocuswithJustin/RibbitDB/internal/validation"
)

const version = "0.1.0"

// Globals are the flags shared by every command.
type Globals struct {
	Config    string `name:"config" short:"c" help:"YAML configuration file" type:"path" env:"RIBBIT_CONFIG"`
	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)"`
	LogFormat string `name:"log-format" help:"Log format (text, json)"`
}

// config loads the configuration file and environment, applies the log
// flags and configures logging.
func (g *Globals) config() (ribbit.Config, error) {
	cfg, err := ribbit.LoadConfig(g.Config)
	if err != nil {
		return cfg, err
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if g.LogFormat != "" {
		cfg.Log.Format = g.LogFormat
	}
	if err := cfg.ApplyLogging(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (g *Globals) open(path string) (*ribbit.DB, error) {
	cfg, err := g.config()
	if err != nil {
		return nil, err
	}
	return ribbit.OpenConfig(path, cfg)
}

func (g *Globals) openReadOnly(path string) (*ribbit.DB, error) {
	cfg, err := g.config()
	if err != nil {
		return nil, err
	}
	cfg.ReadOnly = true
	return ribbit.OpenConfig(path, cfg)
}

// CLI defines the command-line interface for ribbit.
type CLI struct {
	Globals

	Shell   ShellCmd   `cmd:"" help:"Open an interactive SQL shell"`
	Exec    ExecCmd    `cmd:"" help:"Execute SQL statements"`
	Inspect InspectCmd `cmd:"" help:"Show the file header and page table"`
	Check   CheckCmd   `cmd:"" help:"Run an integrity check"`
	WAL     WALCmd     `cmd:"" name:"wal" help:"Print replication log entries"`
	Export  ExportCmd  `cmd:"" help:"Copy tables into a SQLite database"`
	Import  ImportCmd  `cmd:"" help:"Copy tables from a SQLite database"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// ExecCmd runs statements and prints the result of each.
type ExecCmd struct {
	Path   string   `arg:"" help:"Database file" type:"path"`
	SQL    []string `arg:"" help:"SQL statements; each argument runs separately"`
	Format string   `short:"f" help:"Output format (table, json, csv)" default:"table" enum:"table,json,csv"`
}

func (c *ExecCmd) Run(g *Globals, out io.Writer) error {
	db, err := g.open(c.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, sql := range c.SQL {
		res, err := db.Execute(sql)
		if err != nil {
			return err
		}
		if err := renderResult(out, res, c.Format); err != nil {
			return err
		}
	}
	return nil
}

// InspectCmd prints the header and page table of a database file.
type InspectCmd struct {
	Path  string `arg:"" help:"Database file" type:"existingfile"`
	Pages bool   `help:"List every page"`
}

func (c *InspectCmd) Run(g *Globals, out io.Writer) error {
	if _, err := g.config(); err != nil {
		return err
	}
	if err := validation.ExpectFileType(c.Path, validation.FileTypeRibbit, false); err != nil {
		return err
	}
	r, err := ribbit.Inspect(c.Path)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "File:         %s\n", r.Path)
	fmt.Fprintf(out, "Magic:        %s\n", strings.TrimRight(string(r.Header.Magic[:]), "\x00"))
	fmt.Fprintf(out, "Version:      %d\n", r.Header.Version)
	fmt.Fprintf(out, "Page size:    %d\n", r.Header.PageSize)
	fmt.Fprintf(out, "File size:    %d\n", r.Size)
	fmt.Fprintf(out, "Pages:        %d\n", len(r.Pages))
	fmt.Fprintf(out, "Unreadable:   %d\n", r.Unusable)

	summary := table.NewWriter()
	summary.SetOutputMirror(out)
	summary.SetStyle(table.StyleLight)
	summary.AppendHeader(table.Row{"type", "pages"})
	for t, n := range r.ByType {
		summary.AppendRow(table.Row{t.String(), n})
	}
	summary.SortBy([]table.SortBy{{Name: "type", Mode: table.Asc}})
	summary.Render()

	if !c.Pages {
		return nil
	}
	pages := table.NewWriter()
	pages.SetOutputMirror(out)
	pages.SetStyle(table.StyleLight)
	pages.AppendHeader(table.Row{"id", "type", "records", "free", "prev", "next", "stored", "compressed"})
	for _, p := range r.Pages {
		if p.Err != nil {
			pages.AppendRow(table.Row{p.ID, "ERROR", "", "", "", "", "", p.Err.Error()})
			continue
		}
		pages.AppendRow(table.Row{p.ID, p.Type.String(), p.RecordCount, p.FreeSpace, p.Prev, p.Next, p.StoredBytes, p.Compressed})
	}
	pages.Render()
	return nil
}

// CheckCmd runs PRAGMA integrity_check.
type CheckCmd struct {
	Path string `arg:"" help:"Database file" type:"existingfile"`
}

func (c *CheckCmd) Run(g *Globals, out io.Writer) error {
	db, err := g.openReadOnly(c.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	problems := db.IntegrityCheck()
	for _, p := range problems {
		fmt.Fprintln(out, p)
	}
	if len(problems) == 1 && problems[0] == "ok" {
		return nil
	}
	return fmt.Errorf("integrity check found %d problem(s)", len(problems))
}

// WALCmd prints the entries of a replication log.
type WALCmd struct {
	Path   string `arg:"" help:"Replication log file" type:"existingfile"`
	From   uint64 `help:"Print entries after this LSN" default:"0"`
	Format string `short:"f" help:"Output format (table, json, csv)" default:"table" enum:"table,json,csv"`
}

func (c *WALCmd) Run(g *Globals, out io.Writer) error {
	if _, err := g.config(); err != nil {
		return err
	}
	if err := validation.ExpectFileType(c.Path, validation.FileTypeWAL, false); err != nil {
		return err
	}
	entries, err := ribbit.ReadLog(c.Path, c.From)
	if err != nil {
		return err
	}
	res := &ribbit.Result{Kind: ribbit.KindRows, Columns: []string{"lsn", "time", "id", "sql", "args"}}
	for _, e := range entries {
		args := make([]string, len(e.Args))
		for i, a := range e.Args {
			args[i] = formatValue(a)
		}
		res.Rows = append(res.Rows, []any{
			int64(e.LSN),
			e.Time.UTC().Format(time.RFC3339Nano),
			e.ID.String(),
			e.SQL,
			strings.Join(args, ", "),
		})
	}
	return renderResult(out, res, c.Format)
}

// ExportCmd copies a database into a SQLite file.
type ExportCmd struct {
	Path   string `arg:"" help:"Database file" type:"existingfile"`
	SQLite string `arg:"" help:"SQLite file to write" type:"path"`
}

func (c *ExportCmd) Run(ctx context.Context, g *Globals, out io.Writer) error {
	db, err := g.openReadOnly(c.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := validation.ExpectFileType(c.SQLite, validation.FileTypeSQLite, true); err != nil {
		return err
	}
	lite, err := sqlite.Open(c.SQLite)
	if err != nil {
		return err
	}
	defer lite.Close()

	st, err := sqlite.Export(ctx, db, lite)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "exported %d table(s), %d index(es), %d row(s)\n", st.Tables, st.Indexes, st.Rows)
	return nil
}

// ImportCmd copies a SQLite file into a database.
type ImportCmd struct {
	SQLite string `arg:"" help:"SQLite file to read" type:"existingfile"`
	Path   string `arg:"" help:"Database file (created when missing)" type:"path"`
}

func (c *ImportCmd) Run(ctx context.Context, g *Globals, out io.Writer) error {
	if err := validation.ExpectFileType(c.SQLite, validation.FileTypeSQLite, false); err != nil {
		return err
	}
	lite, err := sqlite.OpenReadOnly(c.SQLite)
	if err != nil {
		return err
	}
	defer lite.Close()

	db, err := g.open(c.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	st, err := sqlite.Import(ctx, lite, db)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "imported %d table(s), %d index(es), %d row(s)\n", st.Tables, st.Indexes, st.Rows)
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(out io.Writer) error {
	info := sqlite.GetInfo(context.Background(), nil)
	fmt.Fprintf(out, "ribbit version %s (sqlite transfer via %s)\n", version, info.Package)
	return nil
}

// newParser builds the kong parser writing command output to out.
func newParser(cli *CLI, out io.Writer, options ...kong.Option) (*kong.Kong, error) {
	options = append([]kong.Option{
		kong.Name("ribbit"),
		kong.Description("RibbitDB - embedded relational database"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Bind(&cli.Globals),
		kong.BindTo(out, (*io.Writer)(nil)),
		kong.BindTo(context.Background(), (*context.Context)(nil)),
	}, options...)
	return kong.New(cli, options...)
}

func main() {
	// A missing .env is not an error.
	_ = godotenv.Load()

	var cli CLI
	parser, err := newParser(&cli, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)
	err = ctx.Run()
	ctx.FatalIfErrorf(err)
}
