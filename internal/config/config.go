// Package config handles loading and resolving filings configuration.
// Resolution order (later layers win):
//  1. config.json in the current working directory
//  2. Environment variables FILINGS_BASE_URL and FILINGS_DB_PATH
//  3. CLI flag --base-url
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/derickschaefer/filings/internal/filter"
	"github.com/derickschaefer/filings/internal/model"
	"github.com/derickschaefer/filings/internal/xbrlapi"
)

const (
	DefaultConfigFile  = "config.json"
	DefaultFormat      = "table"
	DefaultTimeout     = 30 * time.Second
	DefaultConcurrency = 5
	DefaultRate        = 5.0
	EnvBaseURL         = "FILINGS_BASE_URL"
	EnvDBPath          = "FILINGS_DB_PATH"
)

// DefaultLanguages is the language preference used to resolve duplicate
// language versions when none is configured.
var DefaultLanguages = []string{"en"}

// File is the on-disk representation of config.json.
type File struct {
	BaseURL          string   `json:"base_url"`
	DefaultFormat    string   `json:"default_format"`
	Timeout          string   `json:"timeout"`
	Rate             float64  `json:"rate"`
	Concurrency      int      `json:"concurrency"`
	MaxPageSize      int      `json:"max_page_size"`
	YearFilterMonths [][]int  `json:"year_filter_months,omitempty"`
	Languages        []string `json:"languages,omitempty"`
	DBPath           string   `json:"db_path"`
}

// Config is the fully-resolved runtime configuration.
// All callers use this struct; the File is only read during loading.
type Config struct {
	BaseURL     string
	Format      string
	Timeout     time.Duration
	Rate        float64
	Concurrency int
	MaxPageSize int
	YearScope   filter.YearScope
	Languages   []string
	DBPath      string
	ConfigPath  string // path of the config.json that was loaded (empty if none found)

	// Runtime overrides set from CLI flags after Load()
	Quiet   bool
	Verbose bool
	Debug   bool
}

// Load resolves configuration from all sources.
// flagBaseURL is the value of --base-url (empty string if not set).
// A config.json that exists but cannot be parsed is an error.
func Load(flagBaseURL string) (*Config, error) {
	cfg := &Config{
		BaseURL:     xbrlapi.DefaultBaseURL,
		Format:      DefaultFormat,
		Timeout:     DefaultTimeout,
		Rate:        DefaultRate,
		Concurrency: DefaultConcurrency,
		MaxPageSize: filter.DefaultMaxPageSize,
		YearScope:   filter.DefaultYearScope,
		Languages:   DefaultLanguages,
	}

	// Layer 1: config.json (lowest priority)
	f, path, err := loadFile()
	if err != nil {
		return nil, err
	}
	if f != nil {
		if err := applyFile(cfg, f, path); err != nil {
			return nil, err
		}
	}

	// Layer 2: environment variables
	if v := os.Getenv(EnvBaseURL); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.DBPath = v
	}

	// Layer 3: CLI flag (highest priority)
	if flagBaseURL != "" {
		cfg.BaseURL = flagBaseURL
	}

	// Set default DB path if still unset
	if cfg.DBPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.DBPath = filepath.Join(home, ".filings", "filings.db")
		}
	}

	return cfg, nil
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	if c.Concurrency < 1 {
		return &model.ConfigError{Field: "concurrency", Value: strconv.Itoa(c.Concurrency), Reason: "must be at least 1"}
	}
	if c.MaxPageSize < 1 {
		return &model.ConfigError{Field: "max_page_size", Value: strconv.Itoa(c.MaxPageSize), Reason: "must be at least 1"}
	}
	if c.Rate <= 0 {
		return &model.ConfigError{Field: "rate", Value: strconv.FormatFloat(c.Rate, 'f', -1, 64), Reason: "must be positive"}
	}
	return c.YearScope.Validate()
}

// FilterOptions returns the compiler options of the configuration.
func (c *Config) FilterOptions() filter.Options {
	return filter.Options{MaxPageSize: c.MaxPageSize, YearScope: c.YearScope}
}

// loadFile reads config.json from the current working directory. A
// missing file returns (nil, "", nil).
func loadFile() (*File, string, error) {
	path, err := filepath.Abs(DefaultConfigFile)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("reading config.json: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, "", fmt.Errorf("parsing config.json: %w", err)
	}
	return &f, path, nil
}

// applyFile copies values from a parsed File into cfg,
// skipping any fields that are zero/empty.
func applyFile(cfg *Config, f *File, path string) error {
	cfg.ConfigPath = path
	if f.BaseURL != "" {
		cfg.BaseURL = f.BaseURL
	}
	if f.DefaultFormat != "" {
		cfg.Format = f.DefaultFormat
	}
	if f.Timeout != "" {
		if d, err := time.ParseDuration(f.Timeout); err == nil {
			cfg.Timeout = d
		}
	}
	if f.Rate > 0 {
		cfg.Rate = f.Rate
	}
	if f.Concurrency != 0 {
		cfg.Concurrency = f.Concurrency
	}
	if f.MaxPageSize != 0 {
		cfg.MaxPageSize = f.MaxPageSize
	}
	if f.YearFilterMonths != nil {
		scope, err := parseYearScope(f.YearFilterMonths)
		if err != nil {
			return err
		}
		cfg.YearScope = scope
	}
	if len(f.Languages) > 0 {
		cfg.Languages = f.Languages
	}
	if f.DBPath != "" {
		cfg.DBPath = f.DBPath
	}
	return nil
}

// parseYearScope reads [[start_offset, start_month], [stop_offset, stop_month]].
func parseYearScope(v [][]int) (filter.YearScope, error) {
	if len(v) != 2 || len(v[0]) != 2 || len(v[1]) != 2 {
		return filter.YearScope{}, &model.ConfigError{
			Field:  "year_filter_months",
			Value:  fmt.Sprint(v),
			Reason: "expected [[year_offset, month], [year_offset, month]]",
		}
	}
	return filter.YearScope{
		Start: filter.MonthRef{YearOffset: v[0][0], Month: v[0][1]},
		Stop:  filter.MonthRef{YearOffset: v[1][0], Month: v[1][1]},
	}, nil
}

// Template returns a File populated with sensible defaults, suitable for
// writing an initial config.json via `filings config init`.
func Template() File {
	s := filter.DefaultYearScope
	return File{
		BaseURL:          xbrlapi.DefaultBaseURL,
		DefaultFormat:    DefaultFormat,
		Timeout:          "30s",
		Rate:             DefaultRate,
		Concurrency:      DefaultConcurrency,
		MaxPageSize:      filter.DefaultMaxPageSize,
		YearFilterMonths: [][]int{{s.Start.YearOffset, s.Start.Month}, {s.Stop.YearOffset, s.Stop.Month}},
		Languages:        DefaultLanguages,
	}
}

// WriteFile serialises a File to the given path.
func WriteFile(path string, f File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0600)
}
