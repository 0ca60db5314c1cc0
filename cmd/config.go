package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/filings/internal/config"
	"github.com/derickschaefer/filings/internal/render"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage filings configuration",
	Long:  `Read and write filings configuration stored in config.json.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a template config.json in the current directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigFile
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config.json already exists at %s (delete it first to re-initialise)", path)
		}
		if err := config.WriteFile(path, config.Template()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Created %s\n", path)
		fmt.Fprintln(cmd.OutOrStdout(), "  Edit year_filter_months and languages to match the reports you follow.")
		return nil
	},
}

// configOut is the resolved configuration as printed by `config get`.
type configOut struct {
	BaseURL          string   `json:"base_url"`
	Format           string   `json:"default_format"`
	Timeout          string   `json:"timeout"`
	Rate             float64  `json:"rate"`
	Concurrency      int      `json:"concurrency"`
	MaxPageSize      int      `json:"max_page_size"`
	YearFilterMonths [][]int  `json:"year_filter_months"`
	Languages        []string `json:"languages"`
	DBPath           string   `json:"db_path"`
	ConfigFile       string   `json:"config_file"`
}

func resolvedConfig(cfg *config.Config) configOut {
	src := "(not found)"
	if cfg.ConfigPath != "" {
		src = cfg.ConfigPath
	}
	s := cfg.YearScope
	return configOut{
		BaseURL:          cfg.BaseURL,
		Format:           cfg.Format,
		Timeout:          cfg.Timeout.String(),
		Rate:             cfg.Rate,
		Concurrency:      cfg.Concurrency,
		MaxPageSize:      cfg.MaxPageSize,
		YearFilterMonths: [][]int{{s.Start.YearOffset, s.Start.Month}, {s.Stop.YearOffset, s.Stop.Month}},
		Languages:        cfg.Languages,
		DBPath:           cfg.DBPath,
		ConfigFile:       src,
	}
}

var configGetCmd = &cobra.Command{
	Use:     "get",
	Aliases: []string{"show"},
	Short:   "Print the current resolved configuration",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(globalFlags.BaseURL)
		if err != nil {
			return err
		}
		out := resolvedConfig(cfg)

		format := cfg.Format
		if globalFlags.Format != "" {
			format = globalFlags.Format
		}
		if format == render.FormatJSON || format == render.FormatJSONL {
			enc := json.NewEncoder(cmd.OutOrStdout())
			if format == render.FormatJSON {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(out)
		}

		printKVTable(cmd.OutOrStdout(), [][]string{
			{"base_url", out.BaseURL},
			{"default_format", out.Format},
			{"timeout", out.Timeout},
			{"rate", fmt.Sprintf("%.1f req/s", out.Rate)},
			{"concurrency", strconv.Itoa(out.Concurrency)},
			{"max_page_size", strconv.Itoa(out.MaxPageSize)},
			{"year_filter_months", fmt.Sprint(out.YearFilterMonths)},
			{"languages", strings.Join(out.Languages, ", ")},
			{"db_path", out.DBPath},
			{"config_file", out.ConfigFile},
		})
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in config.json",
	Example: `  filings config set concurrency 10
  filings config set languages fi,en
  filings config set year_filter_months 0,1,1,7`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigFile
		f, err := loadConfigFile(path)
		if err != nil {
			return err
		}
		key := strings.ToLower(args[0])
		if err := setConfigValue(f, key, args[1]); err != nil {
			return err
		}
		if err := config.WriteFile(path, *f); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Set %s in %s\n", key, path)
		return nil
	},
}

// setConfigValue parses val and stores it under key in f.
func setConfigValue(f *config.File, key, val string) error {
	switch key {
	case "base_url":
		f.BaseURL = val
	case "default_format", "format":
		if !render.ValidFormat(val) {
			return fmt.Errorf("invalid format %q (valid: %s)", val, strings.Join(render.Formats, ", "))
		}
		f.DefaultFormat = val
	case "timeout":
		f.Timeout = val
	case "rate":
		r, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("rate must be a number")
		}
		f.Rate = r
	case "concurrency":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("concurrency must be an integer")
		}
		f.Concurrency = n
	case "max_page_size":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("max_page_size must be an integer")
		}
		f.MaxPageSize = n
	case "year_filter_months":
		parts := strings.Split(val, ",")
		if len(parts) != 4 {
			return fmt.Errorf("year_filter_months takes start_offset,start_month,stop_offset,stop_month")
		}
		var v [4]int
		for i, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return fmt.Errorf("year_filter_months: %q is not an integer", p)
			}
			v[i] = n
		}
		f.YearFilterMonths = [][]int{{v[0], v[1]}, {v[2], v[3]}}
	case "languages":
		var langs []string
		for _, l := range strings.Split(val, ",") {
			if l = strings.TrimSpace(l); l != "" {
				langs = append(langs, l)
			}
		}
		f.Languages = langs
	case "db_path":
		f.DBPath = val
	default:
		return fmt.Errorf("unknown config key: %q\n\nValid keys: base_url, default_format, timeout, rate, concurrency, max_page_size, year_filter_months, languages, db_path", key)
	}
	return nil
}

// loadConfigFile reads config.json from path, or returns the template
// when it does not exist.
func loadConfigFile(path string) (*config.File, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		f := config.Template()
		return &f, nil
	}
	if err != nil {
		return nil, err
	}
	var f config.File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &f, nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
}
