package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/filings/internal/model"
	"github.com/derickschaefer/filings/internal/pager"
	"github.com/derickschaefer/filings/internal/render"
)

var pagesFlags struct {
	query queryFlags
}

var pagesCmd = &cobra.Command{
	Use:   "pages",
	Short: "Walk the API pages of a query and summarise each one",
	Long: `Run a query page by page and print one summary row per retrieved page:
the sub-query it belongs to, the number of new records and included
resources, the reported total and the next-page link.

With --format jsonl each summary is written as soon as its page arrives.`,
	Example: `  filings pages --filter country=FI,SE --limit 500
  filings pages --filter last_end_date=2022 --format jsonl`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		spec, err := pagesFlags.query.spec()
		if err != nil {
			return err
		}
		it, err := deps.Engine().Pages(spec)
		if err != nil {
			return err
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		format := resolveFormat(deps.Config.Format)
		out, closeFn, err := outputWriter(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer closeFn()
		enc := json.NewEncoder(out)

		start := time.Now()
		var summaries []model.PageSummary
		perQuery := make(map[int]int)
		for it.Next(ctx) {
			p := it.Page()
			perQuery[p.QueryIndex]++
			s := summarise(p, perQuery[p.QueryIndex])
			if format == render.FormatJSONL {
				if err := enc.Encode(s); err != nil {
					return err
				}
				continue
			}
			summaries = append(summaries, s)
		}

		var warnings []string
		for qi, total := range it.Counts() {
			if total < 0 && perQuery[qi] > 0 {
				warnings = append(warnings, fmt.Sprintf("query %d: the API reported no total count", qi))
			}
		}
		if format != render.FormatJSONL {
			result := buildResult(model.ResultPages, "pages", summaries, it.Delivered())
			result.Stats.Pages = len(summaries)
			result.Stats.DurationMs = time.Since(start).Milliseconds()
			result.Warnings = warnings
			if err := render.Render(out, result, format); err != nil {
				return err
			}
			if !globalFlags.Quiet {
				render.PrintFooter(cmd.ErrOrStderr(), result, globalFlags.Verbose)
			}
		}
		return it.Err()
	},
}

// summarise describes page p, the n-th page of its query.
func summarise(p *pager.Page, n int) model.PageSummary {
	return model.PageSummary{
		QueryIndex: p.QueryIndex,
		Page:       n,
		Records:    len(p.Records),
		Included:   len(p.Included),
		Total:      p.Total,
		Next:       p.Next,
		RequestURL: p.RequestURL,
		QueryTime:  p.QueryTime,
	}
}

func init() {
	pagesFlags.query.register(pagesCmd)
	rootCmd.AddCommand(pagesCmd)
}
