package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/filings/internal/download"
	"github.com/derickschaefer/filings/internal/filingset"
	"github.com/derickschaefer/filings/internal/model"
	"github.com/derickschaefer/filings/internal/util"
)

var downloadFlags struct {
	query       queryFlags
	Stdin       bool
	FromStore   bool
	ToDir       string
	KindDirs    map[string]string
	StemPattern string
	Filename    string
	Concurrency int
	Progressive bool
	Store       bool
}

var downloadCmd = &cobra.Command{
	Use:   "download <kind>...",
	Short: "Download the files of filings (json, package, xhtml)",
	Long: `Download files of the selected filings. Kinds are json (xBRL-JSON),
package (report package zip) and xhtml (inline XBRL report).

Filings are selected by the query flags, read as JSON lines from stdin
(--stdin, e.g. piped from 'filings get --format jsonl'), or taken from
the local database (--from-store).

Files are written as <name>.unfinished and renamed once complete. A
package whose SHA-256 does not match the one published by the API is
kept with a .corrupt suffix and reported as failed.`,
	Example: `  filings download package --filter country=FI --limit 10 --to-dir dl
  filings get --filter country=SE --format jsonl | filings download json --stdin
  filings download json xhtml --from-store --kind-dir json=dl/json --kind-dir xhtml=dl/xhtml
  filings download package --filter api_id=4261 --filename apetit.zip
  filings download package --from-store --stem-pattern /name/_orig --progressive`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kinds, err := parseKinds(args)
		if err != nil {
			return err
		}
		if downloadFlags.Stdin && downloadFlags.FromStore {
			return &model.ConfigError{Field: "source", Reason: "--stdin and --from-store are exclusive"}
		}
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		if downloadFlags.Concurrency > 0 {
			deps.Config.Concurrency = downloadFlags.Concurrency
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		var set *filingset.Set
		switch {
		case downloadFlags.Stdin:
			set, err = readPipedFilings(cmd)
		case downloadFlags.FromStore:
			if err = deps.RequireStore(); err == nil {
				set, err = deps.Store.LoadFilingSet()
			}
		default:
			spec, serr := downloadFlags.query.spec()
			if serr != nil {
				return serr
			}
			set, err = deps.Engine().Filings(ctx, spec)
		}
		if err != nil {
			return err
		}

		naming, err := downloadNaming()
		if err != nil {
			return err
		}
		items, err := download.Plan(set.Filings(), kinds, naming)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			slog.Warn("no filings selected, nothing to download")
			return nil
		}
		dl, err := deps.Downloader()
		if err != nil {
			return err
		}

		var outcomes []download.Outcome
		if downloadFlags.Progressive {
			outcomes = progressive(ctx, dl, items, cmd.ErrOrStderr())
		} else {
			outcomes = dl.Download(ctx, items)
		}

		if downloadFlags.Store {
			if err := deps.RequireStore(); err != nil {
				return err
			}
			if _, err := deps.Store.PutFilingSet(set); err != nil {
				return fmt.Errorf("storing download paths: %w", err)
			}
		}

		records := downloadRecords(outcomes)
		result := buildResult(model.ResultDownloads, "download", records, len(records))
		tally := download.Count(outcomes)
		result.Stats.Bytes = tally.Bytes
		slog.Info("downloads finished", "completed", tally.Completed, "failed", tally.Failed, "bytes", tally.Bytes)
		if tally.Failed > 0 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%d of %d downloads failed", tally.Failed, len(outcomes)))
		}
		if err := emit(cmd.OutOrStdout(), result, resolveFormat(deps.Config.Format)); err != nil {
			return err
		}
		return download.Failures(outcomes)
	},
}

// progressive runs items as a stream and reports each one on w as it
// finishes. Outcomes are returned in submission order; items that never
// started are left out.
func progressive(ctx context.Context, dl *download.Downloader, items []download.Item, w io.Writer) []download.Outcome {
	s := dl.Stream(ctx, items)
	defer s.Close()

	done := make([]*download.Outcome, len(items))
	n := 0
	for o := range s.Outcomes() {
		n++
		done[o.Index] = &o
		if globalFlags.Quiet {
			continue
		}
		if o.OK() {
			fmt.Fprintf(w, "[%d/%d] %s %s -> %s (%s)\n", n, len(items), o.Item.Kind, filingLabel(o.Item), o.Path, util.FormatBytes(o.Bytes))
		} else {
			fmt.Fprintf(w, "[%d/%d] %s %s failed: %v\n", n, len(items), o.Item.Kind, filingLabel(o.Item), o.Err)
		}
	}

	outcomes := make([]download.Outcome, 0, n)
	for _, o := range done {
		if o != nil {
			outcomes = append(outcomes, *o)
		}
	}
	return outcomes
}

func filingLabel(it download.Item) string {
	if it.Filing == nil {
		return it.URL
	}
	return it.Filing.String()
}

// parseKinds converts command arguments into file kinds.
func parseKinds(args []string) ([]model.FileKind, error) {
	kinds := make([]model.FileKind, 0, len(args))
	for _, a := range args {
		k, err := model.ParseFileKind(a)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// downloadNaming builds the download targets from the flags. --kind-dir
// entries override --to-dir for their kind.
func downloadNaming() (download.Naming, error) {
	def := download.Target{
		Dir:         downloadFlags.ToDir,
		StemPattern: downloadFlags.StemPattern,
		Filename:    downloadFlags.Filename,
	}
	n := download.Naming{Default: def}
	for name, dir := range downloadFlags.KindDirs {
		k, err := model.ParseFileKind(name)
		if err != nil {
			return n, err
		}
		if n.PerKind == nil {
			n.PerKind = make(map[model.FileKind]download.Target)
		}
		t := def
		t.Dir = dir
		n.PerKind[k] = t
	}
	return n, nil
}

// downloadRecords turns outcomes into report rows.
func downloadRecords(outcomes []download.Outcome) []model.DownloadRecord {
	records := make([]model.DownloadRecord, 0, len(outcomes))
	for _, o := range outcomes {
		r := model.DownloadRecord{
			Kind:   o.Item.Kind,
			URL:    o.Item.URL,
			Status: download.Completed.String(),
			Path:   o.Path,
			Bytes:  o.Bytes,
		}
		if o.Item.Filing != nil {
			r.FilingAPIID = o.Item.Filing.APIID
		}
		if o.Err != nil {
			r.Status = download.Failed.String()
			r.Error = o.Err.Error()
			var cde *download.CorruptDownloadError
			if errors.As(o.Err, &cde) {
				r.Path = cde.Path
			}
		}
		records = append(records, r)
	}
	return records
}

func init() {
	downloadFlags.query.register(downloadCmd)
	f := downloadCmd.Flags()
	f.BoolVar(&downloadFlags.Stdin, "stdin", false,
		"read filings as JSON lines from stdin")
	f.BoolVar(&downloadFlags.FromStore, "from-store", false,
		"download the filings saved in the local database")
	f.StringVar(&downloadFlags.ToDir, "to-dir", "",
		"directory for downloaded files (default: current directory)")
	f.StringToStringVar(&downloadFlags.KindDirs, "kind-dir", nil,
		"directory per kind, e.g. --kind-dir json=dl/json")
	f.StringVar(&downloadFlags.StemPattern, "stem-pattern", "",
		"rewrite file stems, /name/ is the original stem (e.g. /name/_orig)")
	f.StringVar(&downloadFlags.Filename, "filename", "",
		"explicit file name (single filing only)")
	f.IntVar(&downloadFlags.Concurrency, "concurrency", 0,
		"parallel downloads (default from config)")
	f.BoolVar(&downloadFlags.Progressive, "progressive", false,
		"report each download as soon as it finishes")
	f.BoolVar(&downloadFlags.Store, "store", false,
		"save the filings with their download paths to the local database")
	rootCmd.AddCommand(downloadCmd)
}
