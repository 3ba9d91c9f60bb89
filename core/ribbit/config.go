package ribbit

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/FocuswithJustin/RibbitDB/core/errors"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/btree"
	"github.com/FocuswithJustin/RibbitDB/core/ribbit/internal/pager"
	"github.com/FocuswithJustin/RibbitDB/internal/logging"
	"github.com/FocuswithJustin/RibbitDB/internal/validation"
)

// EnvPrefix is the prefix of environment variables read by LoadConfig.
// A double underscore separates nested keys: RIBBIT_LOG__LEVEL sets log.level.
const EnvPrefix = "RIBBIT_"

// Config holds the tunables of an open database.
type Config struct {
	PageSize         int           `koanf:"page_size" json:"page_size" validate:"gte=1024,lte=32768"`
	CachePages       int           `koanf:"cache_pages" json:"cache_pages" validate:"gte=0"`
	CompressionLevel int           `koanf:"compression_level" json:"compression_level" validate:"gte=0,lte=9"`
	BTreeOrder       int           `koanf:"btree_order" json:"btree_order" validate:"eq=0|gte=3"`
	BTreeCache       int           `koanf:"btree_cache" json:"btree_cache" validate:"gte=0"`
	WALPath          string        `koanf:"wal_path" json:"wal_path,omitempty"`
	QueryCacheTTL    time.Duration `koanf:"query_cache_ttl" json:"query_cache_ttl" validate:"gte=0"`
	ReadOnly         bool          `koanf:"read_only" json:"read_only"`
	Log              LogConfig     `koanf:"log" json:"log"`
}

// LogConfig selects the level and format of the global logger.
type LogConfig struct {
	Level  string `koanf:"level" json:"level"`
	Format string `koanf:"format" json:"format"`
}

// DefaultConfig returns the configuration used by Open without options.
func DefaultConfig() Config {
	return Config{
		PageSize:         pager.DefaultPageSize,
		CachePages:       1000,
		CompressionLevel: pager.DefaultCompression,
		BTreeOrder:       btree.DefaultOrder,
		BTreeCache:       btree.DefaultCacheSize,
		Log:              LogConfig{Level: "warn", Format: "text"},
	}
}

func defaultsMap() map[string]any {
	d := DefaultConfig()
	return map[string]any{
		"page_size":         d.PageSize,
		"cache_pages":       d.CachePages,
		"compression_level": d.CompressionLevel,
		"btree_order":       d.BTreeOrder,
		"btree_cache":       d.BTreeCache,
		"wal_path":          d.WALPath,
		"query_cache_ttl":   d.QueryCacheTTL.String(),
		"read_only":         d.ReadOnly,
		"log.level":         d.Log.Level,
		"log.format":        d.Log.Format,
	}
}

// LoadConfig builds a Config from defaults, the YAML file at path when
// path is not empty, and RIBBIT_* environment variables, in that order of
// precedence.
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultsMap(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return Config{}, errors.NewOperational("load config", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// RIBBIT_PAGE_SIZE -> page_size, RIBBIT_LOG__LEVEL -> log.level
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first out-of-range setting.
func (c Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		var fe *validation.FieldError
		if errors.As(err, &fe) {
			return errors.NewValidation(fe.Field, fe.Message())
		}
		return errors.NewValidation("config", err.Error())
	}
	if err := pager.ValidatePageSize(c.PageSize); err != nil {
		return errors.NewValidation("page_size", err.Error())
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return errors.NewValidation("log.level", err.Error())
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		return errors.NewValidation("log.format", err.Error())
	}
	if c.WALPath != "" {
		if err := validation.ValidatePath(c.WALPath); err != nil {
			return errors.NewValidation("wal_path", err.Error())
		}
		if err := validation.ExpectFileType(c.WALPath, validation.FileTypeWAL, true); errors.Is(err, validation.ErrFileType) {
			return errors.NewValidation("wal_path", err.Error())
		}
	}
	return nil
}

// ApplyLogging configures the global logger from c.Log.
func (c Config) ApplyLogging() error {
	l, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return errors.NewValidation("log.level", err.Error())
	}
	f, err := logging.ParseFormat(c.Log.Format)
	if err != nil {
		return errors.NewValidation("log.format", err.Error())
	}
	logging.InitLogger(l, f)
	return nil
}
