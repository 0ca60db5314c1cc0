package render_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/derickschaefer/filings/internal/model"
	"github.com/derickschaefer/filings/internal/pipeline"
	"github.com/derickschaefer/filings/internal/render"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

func filingsResult() *model.Result {
	e := &model.Entity{APIID: "e1", Name: "Apetit Oyj", Identifier: "743700Z1PBB0ZFUR2S62"}
	f := &model.Filing{
		APIID:         "4261",
		Country:       "FI",
		Language:      "fi",
		ReportingDate: time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC),
		ErrorCount:    2,
		PackageURL:    "https://filings.xbrl.org/743700Z1PBB0ZFUR2S62/2022-12-31/ESEF/FI/0/report.zip",
	}
	f.SetEntity(e)
	return &model.Result{
		Kind:        model.ResultFilings,
		GeneratedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Command:     "get",
		Data:        []*model.Filing{f},
		Stats:       model.ResultStats{Items: 1, Pages: 1},
	}
}

func render1(t *testing.T, r *model.Result, format string) string {
	t.Helper()
	var buf bytes.Buffer
	if err := render.Render(&buf, r, format); err != nil {
		t.Fatalf("Render(%s): %v", format, err)
	}
	return buf.String()
}

// ─── Formats ──────────────────────────────────────────────────────────────────

func TestRenderTableFilings(t *testing.T) {
	out := render1(t, filingsResult(), render.FormatTable)
	for _, want := range []string{"API ID", "4261", "Apetit Oyj 2022 [fi]", "2022-12-31"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestRenderJSONEnvelopeCarriesRelations(t *testing.T) {
	out := render1(t, filingsResult(), render.FormatJSON)
	var env struct {
		Kind string `json:"kind"`
		Data []struct {
			APIID  string `json:"api_id"`
			Entity struct {
				Name string `json:"name"`
			} `json:"entity"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(out), &env); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if env.Kind != model.ResultFilings || len(env.Data) != 1 || env.Data[0].Entity.Name != "Apetit Oyj" {
		t.Errorf("unexpected envelope: %+v", env)
	}
}

func TestRenderJSONLFeedsPipeline(t *testing.T) {
	out := render1(t, filingsResult(), render.FormatJSONL)
	set, err := pipeline.ReadFilings(strings.NewReader(out))
	if err != nil {
		t.Fatalf("ReadFilings: %v", err)
	}
	f, ok := set.Get("4261")
	if !ok || !f.HasEntity() {
		t.Errorf("filing not read back with its entity: %v", f)
	}
}

func TestRenderCSVWideColumns(t *testing.T) {
	out := render1(t, filingsResult(), render.FormatCSV)
	recs, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected header + 1 row, got %d", len(recs))
	}
	col := -1
	for i, h := range recs[0] {
		if h == "package_url" {
			col = i
		}
	}
	if col < 0 || !strings.HasSuffix(recs[1][col], "report.zip") {
		t.Errorf("package_url column missing: %v", recs)
	}
}

func TestRenderTSVUsesTabs(t *testing.T) {
	out := render1(t, filingsResult(), render.FormatTSV)
	if !strings.Contains(strings.Split(out, "\n")[0], "api_id\tcountry") {
		t.Errorf("TSV header: %q", strings.Split(out, "\n")[0])
	}
}

func TestRenderMarkdownEscapesPipes(t *testing.T) {
	r := &model.Result{
		Kind: model.ResultValidationMessages,
		Data: []*model.ValidationMessage{{APIID: "m1", Severity: "ERROR", Text: "a | b"}},
	}
	out := render1(t, r, render.FormatMD)
	if !strings.HasPrefix(out, "| API ID |") || !strings.Contains(out, `a \| b`) {
		t.Errorf("markdown:\n%s", out)
	}
}

func TestRenderPagesBlankTotalWhenMissing(t *testing.T) {
	r := &model.Result{
		Kind: model.ResultPages,
		Data: []model.PageSummary{{QueryIndex: 0, Page: 1, Records: 3, Total: -1}},
	}
	out := render1(t, r, render.FormatCSV)
	recs, _ := csv.NewReader(strings.NewReader(out)).ReadAll()
	if len(recs) != 2 || recs[1][4] != "" {
		t.Errorf("missing total should render blank: %v", recs)
	}
}

func TestRenderDownloads(t *testing.T) {
	r := &model.Result{
		Kind: model.ResultDownloads,
		Data: []model.DownloadRecord{
			{FilingAPIID: "1", Kind: model.FilePackage, Status: "completed", Path: "dl/report.zip"},
			{FilingAPIID: "2", Kind: model.FileJSON, Status: "failed", Error: "file not available"},
		},
	}
	out := render1(t, r, render.FormatJSONL)
	if n := strings.Count(out, "\n"); n != 2 {
		t.Errorf("expected 2 JSONL lines, got %d", n)
	}
	if !strings.Contains(render1(t, r, render.FormatTable), "file not available") {
		t.Error("table should show the error")
	}
	r.Data.([]model.DownloadRecord)[0].Bytes = 2048
	if !strings.Contains(render1(t, r, render.FormatTable), "2.0 KiB") {
		t.Error("table should show the saved size")
	}
}

func TestRenderToFileOrDefault(t *testing.T) {
	var buf bytes.Buffer
	if err := render.RenderTo(&buf, "", filingsResult(), render.FormatJSONL); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"4261"`) {
		t.Errorf("default writer: %s", buf.String())
	}

	buf.Reset()
	p := filepath.Join(t.TempDir(), "filings.csv")
	if err := render.RenderTo(&buf, p, filingsResult(), render.FormatCSV); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Error("nothing should reach the default writer when a path is given")
	}
	data, err := os.ReadFile(p)
	if err != nil || !strings.HasPrefix(string(data), "api_id,") {
		t.Errorf("file = %q, %v", data, err)
	}
}

func TestRenderUnknownPayloadFallsBackToJSON(t *testing.T) {
	r := &model.Result{Kind: "other", Data: map[string]int{"n": 1}}
	out := render1(t, r, render.FormatTable)
	if !strings.Contains(out, `"n": 1`) {
		t.Errorf("fallback: %s", out)
	}
}

func TestValidFormat(t *testing.T) {
	for _, f := range render.Formats {
		if !render.ValidFormat(f) {
			t.Errorf("%s should be valid", f)
		}
	}
	if render.ValidFormat("xml") {
		t.Error("xml should be invalid")
	}
}

func TestPrintFooterVerbose(t *testing.T) {
	var buf bytes.Buffer
	r := filingsResult()
	r.Warnings = []string{"query 1: HTTP 502"}
	render.PrintFooter(&buf, r, true)
	out := buf.String()
	if !strings.Contains(out, "query 1: HTTP 502") || !strings.Contains(out, "1 items") {
		t.Errorf("footer: %s", out)
	}
}

func TestPrintFooterSavedBytes(t *testing.T) {
	var buf bytes.Buffer
	r := &model.Result{Kind: model.ResultDownloads, Stats: model.ResultStats{Bytes: 3 << 20}}
	render.PrintFooter(&buf, r, false)
	if !strings.Contains(buf.String(), "3.0 MiB saved") {
		t.Errorf("footer: %q", buf.String())
	}
}
