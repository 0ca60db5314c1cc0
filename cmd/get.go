package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/filings/internal/export"
	"github.com/derickschaefer/filings/internal/filingset"
	"github.com/derickschaefer/filings/internal/model"
	"github.com/derickschaefer/filings/internal/query"
)

var getFlags struct {
	query         queryFlags
	Show          string
	Store         bool
	SQLite        string
	SQLiteUpdate  bool
	PopDuplicates bool
}

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Query filings and print them",
	Long: `Query the filings index and print the matching filings, or the entities
or validation messages related to them.

A field given several values runs one query per value; several such
fields run every combination. Results are merged by api_id.`,
	Example: `  filings get --filter country=FI --filter last_end_date=2022
  filings get --filter country=FI,SE,NO --sort -date_added --limit 50
  filings get --filter entity.identifier=743700Z1PBB0ZFUR2S62 --include all --show messages
  filings get --filter country=FI --pop-duplicates --store
  filings get --filter country=DK --include all --sqlite dk.db`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		spec, err := getFlags.query.spec()
		if err != nil {
			return err
		}
		show, err := showKind(getFlags.Show)
		if err != nil {
			return err
		}
		switch show {
		case model.ResultEntities:
			spec.Include |= model.IncludeEntity
		case model.ResultValidationMessages:
			spec.Include |= model.IncludeValidationMessages
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		set, stats, fetchErr := deps.Engine().FilingsWithStats(ctx, spec)
		if set == nil {
			return fetchErr
		}
		var warnings []string
		if fetchErr != nil {
			var re *model.RetrievalError
			if !errors.As(fetchErr, &re) {
				return fetchErr
			}
			warnings = append(warnings, fmt.Sprintf("incomplete result: %v", fetchErr))
		}

		if getFlags.PopDuplicates {
			popped := set.PopDuplicates(deps.Config.Languages)
			slog.Info("language versions removed", "count", len(popped))
			if len(popped) > 0 {
				warnings = append(warnings, fmt.Sprintf("%d duplicate language versions removed", len(popped)))
			}
		}

		if getFlags.Store {
			if err := deps.RequireStore(); err != nil {
				return err
			}
			n, err := deps.Store.PutFilingSet(set)
			if err != nil {
				return fmt.Errorf("storing filings: %w", err)
			}
			slog.Info("filings stored", "count", n, "db", deps.Store.Path())
		}
		if getFlags.SQLite != "" {
			sum, err := export.ToSQLite(ctx, getFlags.SQLite, set, export.Options{Update: getFlags.SQLiteUpdate})
			if err != nil {
				return err
			}
			slog.Info("sqlite export written", "path", sum.Path, "filings", sum.Filings)
		}

		result := setResult("get", show, set, stats)
		result.Warnings = warnings
		if err := emit(cmd.OutOrStdout(), result, resolveFormat(deps.Config.Format)); err != nil {
			return err
		}
		return fetchErr
	},
}

// showKind maps the --show value to a result kind.
func showKind(s string) (string, error) {
	switch s {
	case "", "filings":
		return model.ResultFilings, nil
	case "entities":
		return model.ResultEntities, nil
	case "messages", "validation_messages":
		return model.ResultValidationMessages, nil
	}
	return "", &model.ConfigError{Field: "show", Value: s, Reason: "expected filings, entities or messages"}
}

// setResult builds the envelope of one view of set.
func setResult(command, kind string, set *filingset.Set, stats query.Stats) *model.Result {
	var r *model.Result
	switch kind {
	case model.ResultEntities:
		es := set.Entities()
		r = buildResult(kind, command, es, len(es))
	case model.ResultValidationMessages:
		ms := set.ValidationMessages()
		r = buildResult(kind, command, ms, len(ms))
	default:
		fs := set.Filings()
		r = buildResult(model.ResultFilings, command, fs, len(fs))
	}
	r.Stats.Pages = stats.Pages
	r.Stats.DurationMs = stats.Duration.Milliseconds()
	return r
}

func init() {
	getFlags.query.register(getCmd)
	f := getCmd.Flags()
	f.StringVar(&getFlags.Show, "show", "filings",
		"what to print: filings, entities or messages")
	f.BoolVar(&getFlags.Store, "store", false,
		"save the filings to the local database")
	f.StringVar(&getFlags.SQLite, "sqlite", "",
		"also write the filings to this SQLite database")
	f.BoolVar(&getFlags.SQLiteUpdate, "sqlite-update", false,
		"add to an existing --sqlite database instead of refusing")
	f.BoolVar(&getFlags.PopDuplicates, "pop-duplicates", false,
		"keep one language version per report (see config languages)")
	rootCmd.AddCommand(getCmd)
}
