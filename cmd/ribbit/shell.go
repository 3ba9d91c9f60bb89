package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/FocuswithJustin/RibbitDB/core/ribbit"
)

const (
	prompt         = "ribbit> "
	continuePrompt = "   ...> "
)

// ShellCmd opens an interactive SQL shell.
type ShellCmd struct {
	Path    string `arg:"" help:"Database file (created when missing)" type:"path"`
	Format  string `help:"Initial output mode (table, json, csv)" default:"table"`
	History string `help:"History file (default: ~/.ribbit_history)" type:"path"`
}

func (c *ShellCmd) Run(g *Globals, out io.Writer) error {
	db, err := g.open(c.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	sh, err := newShell(db, out, os.Stderr, c.Format)
	if err != nil {
		return err
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     c.historyFile(),
		AutoComplete:    sh.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize shell: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(out, "RibbitDB %s (%s)\n", version, db.Path())
	fmt.Fprintln(out, `Enter ".help" for usage hints.`)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			sh.reset()
			rl.SetPrompt(prompt)
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if sh.feed(line) {
			break
		}
		rl.SetPrompt(sh.prompt())
	}
	return sh.flush()
}

func (c *ShellCmd) historyFile() string {
	if c.History != "" {
		return c.History
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ribbit_history")
}

// shell holds the state of one interactive session.
type shell struct {
	db     *ribbit.DB
	out    io.Writer
	errOut io.Writer
	mode   string
	timer  bool
	buf    strings.Builder
}

func newShell(db *ribbit.DB, out, errOut io.Writer, mode string) (*shell, error) {
	if !validFormat(mode) {
		return nil, fmt.Errorf("unknown output mode %q", mode)
	}
	return &shell{db: db, out: out, errOut: errOut, mode: mode}, nil
}

func (s *shell) prompt() string {
	if s.buf.Len() > 0 {
		return continuePrompt
	}
	return prompt
}

func (s *shell) reset() {
	s.buf.Reset()
}

// feed handles one input line and reports whether the session should end.
// SQL is buffered until a line ends with ';'.
func (s *shell) feed(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if s.buf.Len() == 0 && strings.HasPrefix(line, ".") {
		return s.dot(line)
	}

	s.buf.WriteString(line)
	if !strings.HasSuffix(line, ";") {
		s.buf.WriteString("\n")
		return false
	}
	sql := s.buf.String()
	s.buf.Reset()
	s.run(sql)
	return false
}

// flush runs a statement left unterminated at end of input.
func (s *shell) flush() error {
	if strings.TrimSpace(s.buf.String()) == "" {
		return nil
	}
	sql := s.buf.String()
	s.buf.Reset()
	s.run(sql)
	return nil
}

func (s *shell) run(sql string) {
	start := time.Now()
	res, err := s.db.Execute(sql)
	if err != nil {
		fmt.Fprintf(s.errOut, "Error: %v\n", err)
		return
	}
	if err := renderResult(s.out, res, s.mode); err != nil {
		fmt.Fprintf(s.errOut, "Error: %v\n", err)
	}
	if s.timer {
		fmt.Fprintf(s.out, "Run Time: %s\n", time.Since(start).Round(time.Microsecond))
	}
}

func (s *shell) dot(line string) bool {
	parts := strings.Fields(line)
	arg := ""
	if len(parts) > 1 {
		arg = parts[1]
	}

	switch strings.ToLower(parts[0]) {
	case ".quit", ".exit":
		return true
	case ".help":
		fmt.Fprint(s.out, shellHelp)
	case ".tables":
		s.run("SHOW TABLES")
	case ".schema":
		if arg != "" {
			s.run("DESCRIBE " + arg)
			return false
		}
		s.schema()
	case ".indexes":
		if arg != "" {
			s.run("SHOW INDEXES FROM " + arg)
			return false
		}
		s.run("SHOW INDEXES")
	case ".mode":
		if !validFormat(arg) {
			fmt.Fprintln(s.errOut, "Usage: .mode table|json|csv")
			return false
		}
		s.mode = arg
	case ".timer":
		switch strings.ToLower(arg) {
		case "on":
			s.timer = true
		case "off":
			s.timer = false
		default:
			fmt.Fprintln(s.errOut, "Usage: .timer on|off")
		}
	default:
		fmt.Fprintf(s.errOut, "Unknown command: %s (type .help for commands)\n", parts[0])
	}
	return false
}

// schema prints the CREATE statements of every table and view.
func (s *shell) schema() {
	tables, err := s.db.Query("SELECT sql FROM __tables ORDER BY name")
	if err != nil {
		fmt.Fprintf(s.errOut, "Error: %v\n", err)
		return
	}
	for _, r := range tables {
		fmt.Fprintf(s.out, "%v;\n", r["sql"])
	}
	views, err := s.db.Query("SELECT name, sql FROM __views ORDER BY name")
	if err != nil {
		fmt.Fprintf(s.errOut, "Error: %v\n", err)
		return
	}
	for _, r := range views {
		fmt.Fprintf(s.out, "CREATE VIEW %v AS %v;\n", r["name"], r["sql"])
	}
}

func (s *shell) completer() *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface
	if rows, err := s.db.Query("SHOW TABLES"); err == nil {
		for _, r := range rows {
			if name, ok := r["table_name"].(string); ok {
				items = append(items, readline.PcItem(name))
			}
		}
	}
	for _, cmd := range []string{".help", ".tables", ".schema", ".indexes", ".mode", ".timer", ".quit"} {
		items = append(items, readline.PcItem(cmd))
	}
	return readline.NewPrefixCompleter(items...)
}

const shellHelp = `
Commands:
  .help              Show this help message
  .tables            List tables
  .schema [table]    Show CREATE statements, or the columns of one table
  .indexes [table]   List indexes
  .mode MODE         Set output mode: table, json or csv
  .timer on|off      Print the run time of each statement
  .quit / .exit      Exit the shell

SQL statements end with a semicolon (;) and may span several lines.
`
