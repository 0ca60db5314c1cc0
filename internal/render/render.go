// Package render converts Result values into human-readable or machine-parseable
// output. Each format is a separate function; the top-level Render dispatcher
// selects based on the format string.
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/derickschaefer/filings/internal/model"
	"github.com/derickschaefer/filings/internal/pipeline"
	"github.com/derickschaefer/filings/internal/util"
)

// Format constants matching --format flag values.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
	FormatTSV   = "tsv"
	FormatMD    = "md"
)

// Formats lists every accepted format.
var Formats = []string{FormatTable, FormatJSON, FormatJSONL, FormatCSV, FormatTSV, FormatMD}

// ValidFormat reports whether f is an accepted format.
func ValidFormat(f string) bool {
	for _, v := range Formats {
		if v == f {
			return true
		}
	}
	return false
}

// Render writes result to w in the specified format.
func Render(w io.Writer, result *model.Result, format string) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, result)
	case FormatJSONL:
		return renderJSONL(w, result)
	case FormatCSV:
		return renderDelimited(w, result, ',')
	case FormatTSV:
		return renderDelimited(w, result, '\t')
	case FormatMD:
		return renderMarkdown(w, result)
	default:
		return renderTable(w, result)
	}
}

// RenderTo writes to def by default; if path is non-empty, writes to file.
func RenderTo(def io.Writer, path string, result *model.Result, format string) error {
	if path == "" {
		return Render(def, result, format)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if err := Render(f, result, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ─── JSON ─────────────────────────────────────────────────────────────────────

func renderJSON(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if fs, ok := result.Data.([]*model.Filing); ok {
		// Filings carry their loaded relations in every JSON form.
		lines := make([]pipeline.Line, len(fs))
		for i, f := range fs {
			lines[i] = pipeline.NewLine(f)
		}
		env := *result
		env.Data = lines
		return enc.Encode(&env)
	}
	return enc.Encode(result)
}

// ─── JSONL ────────────────────────────────────────────────────────────────────

// renderJSONL writes one record per line. Filings use the pipeline line
// format so the output can be piped into `filings download --stdin`.
func renderJSONL(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	switch data := result.Data.(type) {
	case []*model.Filing:
		return pipeline.WriteFilings(w, data)
	case []*model.Entity:
		for _, e := range data {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
	case []*model.ValidationMessage:
		for _, m := range data {
			if err := enc.Encode(m); err != nil {
				return err
			}
		}
	case []model.DownloadRecord:
		for _, r := range data {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
	case []model.PageSummary:
		for _, p := range data {
			if err := enc.Encode(p); err != nil {
				return err
			}
		}
	default:
		return enc.Encode(result.Data)
	}
	return nil
}

// ─── Tabulation ───────────────────────────────────────────────────────────────

// tabulate turns the payload into a header and rows. wide selects every
// column; the terminal table uses the compact set.
func tabulate(result *model.Result, wide bool) ([]string, [][]string, bool) {
	switch data := result.Data.(type) {
	case []*model.Filing:
		return filingRows(data, wide)
	case []*model.Entity:
		return entityRows(data, wide)
	case []*model.ValidationMessage:
		return messageRows(data, wide)
	case []model.DownloadRecord:
		return downloadRows(data)
	case []model.PageSummary:
		return pageRows(data, wide)
	}
	return nil, nil, false
}

func filingRows(fs []*model.Filing, wide bool) ([]string, [][]string, bool) {
	if !wide {
		header := []string{"API ID", "FILING", "COUNTRY", "LANG", "PERIOD END", "ERR", "INC", "WARN", "ADDED"}
		rows := make([][]string, 0, len(fs))
		for _, f := range fs {
			rows = append(rows, []string{
				f.APIID,
				truncate(f.String(), 50),
				f.Country,
				f.Language,
				util.FormatDate(f.ReportingDate),
				strconv.Itoa(f.ErrorCount),
				strconv.Itoa(f.InconsistencyCount),
				strconv.Itoa(f.WarningCount),
				util.FormatDate(f.AddedTime),
			})
		}
		return header, rows, true
	}
	header := []string{
		"api_id", "country", "filing_index", "language", "last_end_date", "reporting_date",
		"error_count", "inconsistency_count", "warning_count", "added_time", "processed_time",
		"entity_api_id", "json_url", "package_url", "viewer_url", "xhtml_url", "package_sha256",
		"json_download_path", "package_download_path", "xhtml_download_path",
		"query_time", "request_url",
	}
	rows := make([][]string, 0, len(fs))
	for _, f := range fs {
		rows = append(rows, []string{
			f.APIID, f.Country, f.FilingIndex, f.Language,
			util.FormatDate(f.LastEndDate), util.FormatDate(f.ReportingDate),
			strconv.Itoa(f.ErrorCount), strconv.Itoa(f.InconsistencyCount), strconv.Itoa(f.WarningCount),
			util.FormatTime(f.AddedTime), util.FormatTime(f.ProcessedTime),
			f.EntityAPIID, f.JSONURL, f.PackageURL, f.ViewerURL, f.XHTMLURL, f.PackageSHA256,
			f.JSONDownloadPath, f.PackageDownloadPath, f.XHTMLDownloadPath,
			util.FormatTime(f.QueryTime), f.RequestURL,
		})
	}
	return header, rows, true
}

func entityRows(es []*model.Entity, wide bool) ([]string, [][]string, bool) {
	header := []string{"API ID", "IDENTIFIER", "NAME", "FILINGS"}
	if wide {
		header = []string{"api_id", "identifier", "name", "observed_filings", "api_entity_filings_url", "query_time", "request_url"}
	}
	rows := make([][]string, 0, len(es))
	for _, e := range es {
		n := strconv.Itoa(len(e.Filings()))
		if wide {
			rows = append(rows, []string{e.APIID, e.Identifier, e.Name, n, e.FilingsURL, util.FormatTime(e.QueryTime), e.RequestURL})
		} else {
			rows = append(rows, []string{e.APIID, e.Identifier, truncate(e.Name, 50), n})
		}
	}
	return header, rows, true
}

func messageRows(ms []*model.ValidationMessage, wide bool) ([]string, [][]string, bool) {
	if !wide {
		header := []string{"API ID", "FILING", "SEVERITY", "CODE", "MESSAGE"}
		rows := make([][]string, 0, len(ms))
		for _, m := range ms {
			rows = append(rows, []string{m.APIID, m.FilingAPIID, m.Severity, m.Code, truncate(m.Text, 60)})
		}
		return header, rows, true
	}
	header := []string{
		"api_id", "filing_api_id", "severity", "code", "text",
		"calc_computed_sum", "calc_reported_sum", "calc_context_id", "calc_line_item",
		"calc_short_role", "calc_unreported_items", "duplicate_greater", "duplicate_lesser",
	}
	rows := make([][]string, 0, len(ms))
	for _, m := range ms {
		rows = append(rows, []string{
			m.APIID, m.FilingAPIID, m.Severity, m.Code, m.Text,
			util.FormatFloat(m.CalcComputedSum), util.FormatFloat(m.CalcReportedSum),
			m.CalcContextID, m.CalcLineItem, m.CalcShortRole,
			strings.Join(m.CalcUnreportedItems, " "),
			util.FormatFloat(m.DuplicateGreater), util.FormatFloat(m.DuplicateLesser),
		})
	}
	return header, rows, true
}

func downloadRows(rs []model.DownloadRecord) ([]string, [][]string, bool) {
	header := []string{"FILING", "KIND", "STATUS", "PATH", "SIZE", "ERROR"}
	rows := make([][]string, 0, len(rs))
	for _, r := range rs {
		size := ""
		if r.Status == "completed" {
			size = util.FormatBytes(r.Bytes)
		}
		rows = append(rows, []string{r.FilingAPIID, string(r.Kind), r.Status, r.Path, size, r.Error})
	}
	return header, rows, true
}

func pageRows(ps []model.PageSummary, wide bool) ([]string, [][]string, bool) {
	header := []string{"QUERY", "PAGE", "RECORDS", "INCLUDED", "TOTAL", "NEXT"}
	if wide {
		header = append(header, "REQUEST URL", "QUERY TIME")
	}
	rows := make([][]string, 0, len(ps))
	for _, p := range ps {
		total := strconv.Itoa(p.Total)
		if p.Total < 0 {
			total = ""
		}
		row := []string{
			strconv.Itoa(p.QueryIndex), strconv.Itoa(p.Page), strconv.Itoa(p.Records),
			strconv.Itoa(p.Included), total, p.Next,
		}
		if wide {
			row = append(row, p.RequestURL, util.FormatTime(p.QueryTime))
		}
		rows = append(rows, row)
	}
	return header, rows, true
}

// ─── Table ────────────────────────────────────────────────────────────────────

func renderTable(w io.Writer, result *model.Result) error {
	header, rows, ok := tabulate(result, false)
	if !ok {
		// Fallback: JSON
		return renderJSON(w, result)
	}
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)
	tw.AppendBulk(rows)
	tw.Render()
	return nil
}

// ─── CSV / TSV ────────────────────────────────────────────────────────────────

func renderDelimited(w io.Writer, result *model.Result, sep rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = sep

	header, rows, ok := tabulate(result, true)
	if ok {
		_ = cw.Write(header)
		_ = cw.WriteAll(rows)
	} else {
		// Fallback: serialize as JSON on a single line
		b, _ := json.Marshal(result.Data)
		_ = cw.Write([]string{string(b)})
	}

	cw.Flush()
	return cw.Error()
}

// ─── Markdown ─────────────────────────────────────────────────────────────────

func renderMarkdown(w io.Writer, result *model.Result) error {
	header, rows, ok := tabulate(result, false)
	if !ok {
		return renderJSON(w, result)
	}
	fmt.Fprintf(w, "| %s |\n", strings.Join(header, " | "))
	seps := make([]string, len(header))
	for i := range seps {
		seps[i] = "----"
	}
	fmt.Fprintf(w, "|%s|\n", strings.Join(seps, "|"))
	for _, r := range rows {
		cells := make([]string, len(r))
		for i, c := range r {
			cells[i] = mdEscape(c)
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))
	}
	return nil
}

// ─── Warnings / Stats Footer ─────────────────────────────────────────────────

// PrintFooter writes warnings and stats to w when verbose mode is on.
func PrintFooter(w io.Writer, result *model.Result, verbose bool) {
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "⚠  %s\n", warn)
	}
	if verbose {
		fmt.Fprintf(w, "\n[%s • %d items • %d pages • %dms]\n",
			result.GeneratedAt.Format(time.RFC3339),
			result.Stats.Items,
			result.Stats.Pages,
			result.Stats.DurationMs,
		)
	}
	if result.Stats.Bytes > 0 {
		fmt.Fprintf(w, "%s saved\n", util.FormatBytes(result.Stats.Bytes))
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
