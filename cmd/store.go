package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/filings/internal/model"
	"github.com/derickschaefer/filings/internal/render"
	"github.com/derickschaefer/filings/internal/store"
	"github.com/derickschaefer/filings/internal/util"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect and manage the local filings database",
	Long: `Commands for the local bbolt database.

Filings are accumulated with 'filings get --store' or 'filings download --store'.
It is an intentional data store, not a transparent cache: queries always go
to the API and data persists until you explicitly clear it.`,
}

// ─── store list ───────────────────────────────────────────────────────────────

var storeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List filings accumulated in the local database",
	Example: `  filings store list
  filings store list --format jsonl | filings download package --stdin`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		format := resolveFormat(deps.Config.Format)
		if format == render.FormatJSON || format == render.FormatJSONL {
			// Structured output carries the stored relations.
			set, err := deps.Store.LoadFilingSet()
			if err != nil {
				return fmt.Errorf("reading store: %w", err)
			}
			fs := set.Filings()
			return emit(cmd.OutOrStdout(), buildResult(model.ResultFilings, "store list", fs, len(fs)), format)
		}

		fs, err := deps.Store.ListFilings()
		if err != nil {
			return fmt.Errorf("reading store: %w", err)
		}
		if len(fs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No filings in local database.")
			fmt.Fprintln(cmd.OutOrStdout(), "  Use: filings get --filter ... --store")
			return nil
		}
		return emit(cmd.OutOrStdout(), buildResult(model.ResultFilings, "store list", fs, len(fs)), format)
	},
}

// ─── store stats ──────────────────────────────────────────────────────────────

var storeStatsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Show row counts and sizes for each bucket",
	Example: `  filings store stats`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		stats, err := deps.Store.Stats()
		if err != nil {
			return fmt.Errorf("reading store stats: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Database: %s\n\n", deps.Store.Path())
		printSimpleTable(cmd.OutOrStdout(), []string{"BUCKET", "ROWS", "SIZE"}, func(add func(...string)) {
			for _, s := range stats {
				add(s.Name, strconv.Itoa(s.Count), util.FormatBytes(s.Bytes))
			}
		})
		return nil
	},
}

// ─── store clear ──────────────────────────────────────────────────────────────

var storeClearAll bool

var storeClearCmd = &cobra.Command{
	Use:   "clear [bucket]",
	Short: "Delete entries from the local database",
	Long: `Delete entries from one bucket or, with --all, from every bucket.

Buckets: ` + strings.Join(store.AllBuckets, ", ") + `

bbolt does not shrink the database file after clearing; freed pages are
reused by later writes.`,
	Example: `  filings store clear --all
  filings store clear validation_messages`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if storeClearAll == (len(args) == 1) {
			return fmt.Errorf("specify either --all or one bucket\n\nBuckets: %s", strings.Join(store.AllBuckets, ", "))
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		if storeClearAll {
			if err := deps.Store.ClearAll(); err != nil {
				return fmt.Errorf("clearing all buckets: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Cleared all buckets")
			return nil
		}
		if err := deps.Store.ClearBucket(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Cleared bucket %q\n", args[0])
		return nil
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.AddCommand(storeListCmd)
	storeCmd.AddCommand(storeStatsCmd)
	storeCmd.AddCommand(storeClearCmd)

	storeClearCmd.Flags().BoolVar(&storeClearAll, "all", false, "clear every bucket")
}
