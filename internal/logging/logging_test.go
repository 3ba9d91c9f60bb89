package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

// captureLogOutput redirects the global logger to a buffer at the given
// level for the duration of f.
func captureLogOutput(l Level, f Format, fn func()) string {
	var buf bytes.Buffer
	SetOutput(&buf)
	InitLogger(l, f)

	fn()

	SetOutput(os.Stderr)
	InitLogger(LevelWarn, FormatText)
	return buf.String()
}

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name   string
		level  Level
		format Format
	}{
		{name: "Debug level JSON format", level: LevelDebug, format: FormatJSON},
		{name: "Info level JSON format", level: LevelInfo, format: FormatJSON},
		{name: "Warn level Text format", level: LevelWarn, format: FormatText},
		{name: "Error level Text format", level: LevelError, format: FormatText},
		{name: "Default level (invalid value)", level: Level(999), format: FormatJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			InitLogger(tt.level, tt.format)
			if GetLogger() == nil {
				t.Error("Expected logger to be initialized, got nil")
			}
		})
	}
	InitLogger(LevelWarn, FormatText)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "debug", want: LevelDebug},
		{in: "INFO", want: LevelInfo},
		{in: "", want: LevelInfo},
		{in: "warning", want: LevelWarn},
		{in: " error ", want: LevelError},
		{in: "verbose", want: LevelInfo, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("JSON"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(JSON) = %v, %v", f, err)
	}
	if f, err := ParseFormat("text"); err != nil || f != FormatText {
		t.Errorf("ParseFormat(text) = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) expected error")
	}
}

func TestLevelFiltering(t *testing.T) {
	output := captureLogOutput(LevelWarn, FormatJSON, func() {
		Debug("hidden debug")
		Info("hidden info")
		Warn("shown warning", "key", "value")
	})

	if strings.Contains(output, "hidden") {
		t.Errorf("output contains filtered messages: %s", output)
	}
	if !strings.Contains(output, "shown warning") {
		t.Errorf("output missing warning: %s", output)
	}
}

func TestLoggingFunctions(t *testing.T) {
	tests := []struct {
		name string
		fn   func()
	}{
		{name: "Debug", fn: func() { Debug("debug message", "key", "value") }},
		{name: "Info", fn: func() { Info("info message", "key", "value") }},
		{name: "Warn", fn: func() { Warn("warning message", "key", "value") }},
		{name: "Error", fn: func() { Error("error message", "key", "value") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := captureLogOutput(LevelDebug, FormatJSON, tt.fn)
			if output == "" {
				t.Error("Expected log output, got empty string")
			}
		})
	}
}

func TestDomainHelpers(t *testing.T) {
	tests := []struct {
		name   string
		fn     func()
		fields []string
	}{
		{
			name:   "DatabaseOpened",
			fn:     func() { DatabaseOpened("/tmp/a.rbx", 4096, 3, true) },
			fields: []string{"database_opened", "/tmp/a.rbx", "4096"},
		},
		{
			name:   "CatalogLoaded",
			fn:     func() { CatalogLoaded(2, 1, 0) },
			fields: []string{"catalog_loaded", `"tables":2`},
		},
		{
			name:   "StatementExecuted",
			fn:     func() { StatementExecuted("SELECT", 3*time.Millisecond, 10) },
			fields: []string{"statement_executed", "SELECT", `"rows":10`},
		},
		{
			name:   "StatementFailed",
			fn:     func() { StatementFailed("INSERT", errors.New("boom")) },
			fields: []string{"statement_failed", "boom"},
		},
		{
			name:   "PagesFlushed",
			fn:     func() { PagesFlushed("db.rbx", 7, time.Millisecond) },
			fields: []string{"pages_flushed", `"pages":7`},
		},
		{
			name:   "TransactionEvent",
			fn:     func() { TransactionEvent("commit", 4, 2) },
			fields: []string{"transaction_event", "commit", `"txn_id":4`},
		},
		{
			name:   "CorruptRow",
			fn:     func() { CorruptRow("users", 3, 120) },
			fields: []string{"corrupt_row_skipped", "users", `"offset":120`},
		},
		{
			name:   "ReplicationAppend",
			fn:     func() { ReplicationAppend(9, 64, "kind", "INSERT") },
			fields: []string{"replication_append", `"lsn":9`, "INSERT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := captureLogOutput(LevelDebug, FormatJSON, tt.fn)
			for _, f := range tt.fields {
				if !strings.Contains(output, f) {
					t.Errorf("output %q missing %q", output, f)
				}
			}
		})
	}
}

func TestReplaceAttrTimestamp(t *testing.T) {
	output := captureLogOutput(LevelInfo, FormatJSON, func() {
		Info("stamp")
	})

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(output)), &entry); err != nil {
		t.Fatalf("json.Unmarshal() error = %v (output %q)", err, output)
	}
	ts, ok := entry["time"].(string)
	if !ok {
		t.Fatalf("time field = %v, want string", entry["time"])
	}
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("time %q is not RFC3339: %v", ts, err)
	}
}

func TestTextFormat(t *testing.T) {
	output := captureLogOutput(LevelInfo, FormatText, func() {
		Info("plain", "key", "value")
	})
	if !strings.Contains(output, "key=value") {
		t.Errorf("text output = %q, want key=value", output)
	}
}
