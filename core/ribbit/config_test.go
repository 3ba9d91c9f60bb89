package ribbit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/FocuswithJustin/RibbitDB/core/errors"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg != DefaultConfig() {
		t.Errorf("LoadConfig(\"\") = %+v, want %+v", cfg, DefaultConfig())
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ribbit.yaml")
	yaml := `page_size: 8192
compression_level: 3
wal_path: /tmp/ribbit.wal
query_cache_ttl: 30s
log:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RIBBIT_COMPRESSION_LEVEL", "1")
	t.Setenv("RIBBIT_BTREE_ORDER", "32")
	t.Setenv("RIBBIT_LOG__FORMAT", "text")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		got  any
		want any
	}{
		{"page_size", cfg.PageSize, 8192},
		{"compression_level", cfg.CompressionLevel, 1},
		{"btree_order", cfg.BTreeOrder, 32},
		{"btree_cache", cfg.BTreeCache, DefaultConfig().BTreeCache},
		{"wal_path", cfg.WALPath, "/tmp/ribbit.wal"},
		{"query_cache_ttl", cfg.QueryCacheTTL, 30 * time.Second},
		{"log.level", cfg.Log.Level, "debug"},
		{"log.format", cfg.Log.Format, "text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); !errors.Is(err, errors.ErrOperational) {
		t.Errorf("missing file error = %v", err)
	}

	tests := []struct {
		name string
		yaml string
	}{
		{"page size", "page_size: 3000\n"},
		{"compression", "compression_level: 10\n"},
		{"log level", "log:\n  level: loud\n"},
		{"negative cache", "cache_pages: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadConfig(path); !errors.Is(err, errors.ErrInvalidInput) {
				t.Errorf("LoadConfig() error = %v, want validation error", err)
			}
		})
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("page_size: [\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(bad); err == nil {
		t.Error("malformed YAML accepted")
	}
}

func TestOpenConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CompressionLevel = 0
	cfg.WALPath = filepath.Join(t.TempDir(), "cfg.wal")
	db, err := OpenConfig(filepath.Join(t.TempDir(), "cfg.rbx"), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	mustExecute(t, db, "CREATE TABLE t (a INTEGER)")
	if entries, err := db.ReplicationLog(0); err != nil || len(entries) != 1 {
		t.Errorf("ReplicationLog() = %v, %v", entries, err)
	}
	if _, err := OpenConfig(filepath.Join(t.TempDir(), "zero.rbx"), Config{}); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("OpenConfig(Config{}) error = %v", err)
	}
}

func TestApplyLogging(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.ApplyLogging(); err != nil {
		t.Fatal(err)
	}
	cfg.Log.Format = "xml"
	if err := cfg.ApplyLogging(); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("ApplyLogging() error = %v", err)
	}
}
