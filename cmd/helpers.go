package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/derickschaefer/filings/internal/filter"
	"github.com/derickschaefer/filings/internal/filingset"
	"github.com/derickschaefer/filings/internal/model"
	"github.com/derickschaefer/filings/internal/pipeline"
	"github.com/derickschaefer/filings/internal/render"
)

// resolveFormat returns the effective format string, falling back to "table".
func resolveFormat(cfgFormat string) string {
	if globalFlags.Format != "" {
		return globalFlags.Format
	}
	if cfgFormat != "" {
		return cfgFormat
	}
	return render.FormatTable
}

// commandContext returns a context cancelled on interrupt.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt)
}

// outputWriter returns the writer selected by --out, or def when unset.
// The returned close function must always be called.
func outputWriter(def io.Writer) (io.Writer, func() error, error) {
	if globalFlags.Out == "" {
		return def, func() error { return nil }, nil
	}
	f, err := os.Create(globalFlags.Out)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output file: %w", err)
	}
	return f, f.Close, nil
}

// ─── Query flags ──────────────────────────────────────────────────────────────

// queryFlags are the filter/sort/limit/include flags shared by commands
// that run a query.
type queryFlags struct {
	Filters []string
	Sort    []string
	Limit   int
	Include string
}

func (q *queryFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringArrayVar(&q.Filters, "filter", nil,
		"field=value[,value...] equality filter; repeat for more fields")
	f.StringSliceVar(&q.Sort, "sort", nil,
		"sort fields, '-' prefix for descending (e.g. -date_added)")
	f.IntVar(&q.Limit, "limit", 0,
		"maximum number of filings (0: no limit)")
	f.StringVar(&q.Include, "include", "",
		"related resources: entity, messages, all, none")
}

// spec converts the flags into a query spec.
func (q *queryFlags) spec() (filter.Spec, error) {
	filters, err := parseFilterFlags(q.Filters)
	if err != nil {
		return filter.Spec{}, err
	}
	inc, err := model.ParseInclude(q.Include)
	if err != nil {
		return filter.Spec{}, err
	}
	return filter.Spec{
		Filters: filters,
		Sort:    q.Sort,
		Limit:   q.Limit,
		Include: inc,
	}, nil
}

// parseFilterFlags parses "field=v1,v2" arguments. Values of a repeated
// field accumulate.
func parseFilterFlags(args []string) (filter.Filters, error) {
	fs := filter.Filters{}
	for _, a := range args {
		field, vals, ok := strings.Cut(a, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, &model.ConfigError{Field: "filter", Value: a, Reason: "expected field=value"}
		}
		for _, v := range strings.Split(vals, ",") {
			if v = strings.TrimSpace(v); v != "" {
				fs.Add(field, v)
			}
		}
		if len(fs[field]) == 0 {
			return nil, &model.ConfigError{Field: "filter", Value: a, Reason: "no value given"}
		}
	}
	return fs, nil
}

// ─── Output ───────────────────────────────────────────────────────────────────

// printSimpleTable renders a simple table with headers using tablewriter.
// The add callback is called with row values as variadic strings.
func printSimpleTable(w io.Writer, headers []string, fill func(add func(...string))) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(headers)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)

	fill(func(cols ...string) {
		tw.Append(cols)
	})
	tw.Render()
}

// printKVTable renders a two-column key/value listing using aligned columns.
func printKVTable(w io.Writer, rows [][]string) {
	maxKey := 0
	for _, r := range rows {
		if len(r[0]) > maxKey {
			maxKey = len(r[0])
		}
	}
	for _, r := range rows {
		padding := strings.Repeat(" ", maxKey-len(r[0]))
		fmt.Fprintf(w, "  %s%s  %s\n", r[0], padding, r[1])
	}
}

// buildResult wraps a payload in a Result envelope.
func buildResult(kind, command string, data any, items int) *model.Result {
	return &model.Result{
		Kind:        kind,
		GeneratedAt: time.Now(),
		Command:     command,
		Data:        data,
		Stats:       model.ResultStats{Items: items},
	}
}

// emit renders result to --out or w and prints the footer unless quiet.
func emit(w io.Writer, result *model.Result, format string) error {
	if err := render.RenderTo(w, globalFlags.Out, result, format); err != nil {
		return err
	}
	if !globalFlags.Quiet {
		render.PrintFooter(os.Stderr, result, globalFlags.Verbose)
	}
	return nil
}

// readPipedFilings reads the JSONL output of an earlier command from the
// command's input. A terminal on stdin means nothing was piped.
func readPipedFilings(cmd *cobra.Command) (*filingset.Set, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && pipeline.IsTTY(f) {
		return nil, &model.ConfigError{Field: "source", Reason: "--stdin given but nothing is piped in"}
	}
	return pipeline.ReadFilings(in)
}
