// Package config loads processor settings from an HCL file, a .env file and
// the environment, in increasing order of precedence. Command-line flags are
// applied on top by cmd.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/agentic-research/cspec/internal/parser"
	"github.com/agentic-research/cspec/internal/validate"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/joho/godotenv"
)

// DefaultPath is the config file read when none is named.
const DefaultPath = "csprocessor.hcl"

// Environment overrides.
const (
	EnvDatabase   = "CSP_DATABASE"
	EnvLogLevel   = "CSP_LOG_LEVEL"
	EnvPermissive = "CSP_PERMISSIVE"
)

// Config is the resolved processor configuration.
type Config struct {
	Database   string
	LogLevel   string
	LogFormat  string
	CacheSize  int
	Validation Validation
	Parser     Parser
}

// Validation mirrors the validation block.
type Validation struct {
	Permissive                bool
	AllowEmptyLevels          bool
	AllowDuplicateLevelTitles bool
}

// Parser mirrors the parser block.
type Parser struct {
	IndentWidth int
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Database:  "cspec.db",
		LogLevel:  "info",
		LogFormat: "text",
		CacheSize: 1024,
		Parser:    Parser{IndentWidth: 2},
	}
}

// hclFile is the decoding target. Every attribute is optional so absent
// settings keep their defaults.
type hclFile struct {
	Database   *string        `hcl:"database,optional"`
	LogLevel   *string        `hcl:"log_level,optional"`
	LogFormat  *string        `hcl:"log_format,optional"`
	CacheSize  *int           `hcl:"cache_size,optional"`
	Validation *hclValidation `hcl:"validation,block"`
	Parser     *hclParser     `hcl:"parser,block"`
}

type hclValidation struct {
	Permissive                *bool `hcl:"permissive,optional"`
	AllowEmptyLevels          *bool `hcl:"allow_empty_levels,optional"`
	AllowDuplicateLevelTitles *bool `hcl:"allow_duplicate_level_titles,optional"`
}

type hclParser struct {
	IndentWidth *int `hcl:"indent_width,optional"`
}

// Parse decodes HCL source over the defaults. filename is used in diagnostics.
func Parse(src []byte, filename string) (Config, error) {
	cfg := Default()
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return cfg, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	var raw hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &raw); diags.HasErrors() {
		return cfg, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	setString(&cfg.Database, raw.Database)
	setString(&cfg.LogLevel, raw.LogLevel)
	setString(&cfg.LogFormat, raw.LogFormat)
	if raw.CacheSize != nil {
		cfg.CacheSize = *raw.CacheSize
	}
	if v := raw.Validation; v != nil {
		setBool(&cfg.Validation.Permissive, v.Permissive)
		setBool(&cfg.Validation.AllowEmptyLevels, v.AllowEmptyLevels)
		setBool(&cfg.Validation.AllowDuplicateLevelTitles, v.AllowDuplicateLevelTitles)
	}
	if p := raw.Parser; p != nil && p.IndentWidth != nil {
		cfg.Parser.IndentWidth = *p.IndentWidth
	}
	return cfg, cfg.validate()
}

// Load reads the config file at path, then applies .env and environment
// overrides. A missing file is only an error when it was named explicitly.
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	cfg := Default()
	src, err := os.ReadFile(path)
	switch {
	case err == nil:
		if cfg, err = Parse(src, path); err != nil {
			return cfg, err
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

// ApplyEnv overrides fields from CSP_* environment variables.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvDatabase); ok && v != "" {
		c.Database = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := os.LookupEnv(EnvPermissive); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPermissive, err)
		}
		c.Validation.Permissive = b
	}
	return nil
}

// ParserConfig returns the settings the parser consumes.
func (c Config) ParserConfig() parser.Config {
	return parser.Config{IndentWidth: c.Parser.IndentWidth}
}

// ValidateConfig returns the settings the validator consumes.
func (c Config) ValidateConfig() validate.Config {
	return validate.Config{
		Permissive:                c.Validation.Permissive,
		AllowEmptyLevels:          c.Validation.AllowEmptyLevels,
		AllowDuplicateLevelTitles: c.Validation.AllowDuplicateLevelTitles,
	}
}

func (c Config) validate() error {
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	if c.Parser.IndentWidth <= 0 {
		return fmt.Errorf("parser.indent_width must be positive, got %d", c.Parser.IndentWidth)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache_size must not be negative, got %d", c.CacheSize)
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
