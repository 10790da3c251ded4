package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config captures CLI and server options sourced from config files, the
// environment or flags.
type Config struct {
	Paths []string `koanf:"paths"`
	Jobs  []string `koanf:"jobs"`

	OnlySteps []string `koanf:"only_step"`
	SkipSteps []string `koanf:"skip_step"`

	Format     string `koanf:"format"`
	FormatHint string `koanf:"format_hint"`
	Diagram    string `koanf:"diagram"`
	MaxBytes   int    `koanf:"max_bytes"`
	MaxNodes   int    `koanf:"max_nodes"`

	Serve ServeConfig `koanf:"serve"`
	Log   LogConfig   `koanf:"log"`
}

// ServeConfig controls the HTTP surface.
type ServeConfig struct {
	Addr           string   `koanf:"addr"`
	CacheSize      int      `koanf:"cache_size"`
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `koanf:"level"`
	File  string `koanf:"file"`
}

const (
	// FileName is the config file looked up in the working tree root.
	FileName = ".pipeviz.yml"
	// EnvPrefix prefixes environment overrides, e.g. PIPEVIZ_MAX_NODES or PIPEVIZ_SERVE__ADDR.
	EnvPrefix = "PIPEVIZ_"

	// FormatPretty renders human readable output.
	FormatPretty = "pretty"
	// FormatJSON renders machine readable output.
	FormatJSON = "json"

	DiagramMermaid = "mermaid"
	DiagramDOT     = "dot"
)

// Default returns the baseline configuration used when no file, environment
// or flags specify values.
func Default() Config {
	return Config{
		Format:   FormatPretty,
		Diagram:  DiagramMermaid,
		MaxBytes: 2 << 20,
		MaxNodes: 500,
		Serve: ServeConfig{
			Addr:           "127.0.0.1:8080",
			CacheSize:      128,
			AllowedOrigins: []string{"*"},
		},
		Log: LogConfig{Level: "warn"},
	}
}

// Load reads .pipeviz.yml from root when present, then overlays PIPEVIZ_*
// environment variables. Missing files are ignored.
func Load(root string) (Config, error) {
	return LoadFile(filepath.Join(root, FileName), false)
}

// LoadFile reads the config at path. When required is false a missing file
// yields the defaults plus environment overrides.
func LoadFile(path string, required bool) (Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return cfg, fmt.Errorf("parse config %q: %w", path, err)
		}
	} else if required || !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return cfg, fmt.Errorf("load env overrides: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("decode config %q: %w", path, err)
	}
	return cfg, nil
}

// envKey maps PIPEVIZ_SERVE__CACHE_SIZE to serve.cache_size.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate reports the first invalid value.
func (c Config) Validate() error {
	switch c.Format {
	case FormatPretty, FormatJSON:
	default:
		return fmt.Errorf("unknown output format %q (pretty|json)", c.Format)
	}
	switch c.Diagram {
	case DiagramMermaid, DiagramDOT:
	default:
		return fmt.Errorf("unknown diagram %q (mermaid|dot)", c.Diagram)
	}
	if c.MaxBytes <= 0 {
		return fmt.Errorf("max_bytes must be positive, got %d", c.MaxBytes)
	}
	if c.MaxNodes <= 0 {
		return fmt.Errorf("max_nodes must be positive, got %d", c.MaxNodes)
	}
	if c.Serve.CacheSize <= 0 {
		return fmt.Errorf("serve.cache_size must be positive, got %d", c.Serve.CacheSize)
	}
	return nil
}

// ApplyFlags mutates cfg by applying values from CLI flags when they are present.
func ApplyFlags(cfg *Config, flags FlagValues) {
	if len(flags.Paths.Values) > 0 {
		cfg.Paths = append([]string{}, flags.Paths.Values...)
	}
	if len(flags.Jobs.Values) > 0 {
		cfg.Jobs = append([]string{}, flags.Jobs.Values...)
	}
	if len(flags.OnlySteps.Values) > 0 {
		cfg.OnlySteps = append([]string{}, flags.OnlySteps.Values...)
	}
	if len(flags.SkipSteps.Values) > 0 {
		cfg.SkipSteps = append([]string{}, flags.SkipSteps.Values...)
	}
	if flags.Format.Set {
		cfg.Format = flags.Format.Value
	}
	if flags.FormatHint.Set {
		cfg.FormatHint = flags.FormatHint.Value
	}
	if flags.Diagram.Set {
		cfg.Diagram = flags.Diagram.Value
	}
	if flags.MaxBytes.Set {
		cfg.MaxBytes = flags.MaxBytes.Value
	}
	if flags.MaxNodes.Set {
		cfg.MaxNodes = flags.MaxNodes.Value
	}
	if flags.LogLevel.Set {
		cfg.Log.Level = flags.LogLevel.Value
	}
	if flags.LogFile.Set {
		cfg.Log.File = flags.LogFile.Value
	}
	if flags.Addr.Set {
		cfg.Serve.Addr = flags.Addr.Value
	}
	if flags.CacheSize.Set {
		cfg.Serve.CacheSize = flags.CacheSize.Value
	}
}

// FlagValues captures CLI flag state with knowledge of whether each flag was set explicitly.
type FlagValues struct {
	Paths      SliceFlag
	Jobs       SliceFlag
	OnlySteps  SliceFlag
	SkipSteps  SliceFlag
	Format     StringFlag
	FormatHint StringFlag
	Diagram    StringFlag
	MaxBytes   IntFlag
	MaxNodes   IntFlag
	LogLevel   StringFlag
	LogFile    StringFlag
	Addr       StringFlag
	CacheSize  IntFlag
}

// StringFlag represents a string flag and whether it was set.
type StringFlag struct {
	Value string
	Set   bool
}

// SliceFlag represents a slice flag and whether it captured values via CLI.
type SliceFlag struct {
	Values []string
}

// IntFlag represents an int flag and whether it was set.
type IntFlag struct {
	Value int
	Set   bool
}
