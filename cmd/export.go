package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/filings/internal/export"
	"github.com/derickschaefer/filings/internal/filingset"
)

var exportFlags struct {
	Update bool
	Stdin  bool
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export filings to other databases",
}

var exportSQLiteCmd = &cobra.Command{
	Use:   "sqlite <path>",
	Short: "Write the stored filings to an SQLite database",
	Long: `Write filings, entities and validation messages to an SQLite database
with one table per resource type and the views ViewEnclosure,
ViewFilingAge and ViewNumericErrors.

Filings come from the local database, or from JSON lines on stdin with
--stdin. An existing file is refused unless --update is given; rows with
the same api_id are then replaced.`,
	Example: `  filings export sqlite filings.sqlite
  filings get --filter country=FI --include all --format jsonl | filings export sqlite fi.sqlite --stdin
  filings export sqlite filings.sqlite --update`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		var set *filingset.Set
		if exportFlags.Stdin {
			set, err = readPipedFilings(cmd)
		} else if err = deps.RequireStore(); err == nil {
			set, err = deps.Store.LoadFilingSet()
		}
		if err != nil {
			return err
		}
		if set.Len() == 0 {
			return fmt.Errorf("no filings to export\n\n  Use: filings get --filter ... --store")
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()
		sum, err := export.ToSQLite(ctx, args[0], set, export.Options{Update: exportFlags.Update})
		if err != nil {
			return err
		}
		printKVTable(cmd.OutOrStdout(), [][]string{
			{"database", sum.Path},
			{"filings", fmt.Sprint(sum.Filings)},
			{"entities", fmt.Sprint(sum.Entities)},
			{"validation_messages", fmt.Sprint(sum.ValidationMessages)},
		})
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.AddCommand(exportSQLiteCmd)
	exportSQLiteCmd.Flags().BoolVar(&exportFlags.Update, "update", false,
		"add to an existing database, replacing rows with the same api_id")
	exportSQLiteCmd.Flags().BoolVar(&exportFlags.Stdin, "stdin", false,
		"read filings as JSON lines from stdin instead of the local database")
}
