package cmd

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/derickschaefer/filings/internal/config"
	"github.com/derickschaefer/filings/internal/pipeline"
	"github.com/derickschaefer/filings/internal/store"
)

// ─── Harness ──────────────────────────────────────────────────────────────────

const packageBody = "PK fake report package"

// fakeAPI serves one page with a single Finnish filing and its entity,
// plus the package file.
func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	sum := sha256.Sum256([]byte(packageBody))
	page := fmt.Sprintf(`{
  "data": [{
    "type": "filing", "id": "4261",
    "attributes": {
      "country": "FI", "fxo_id": "743700Z1PBB0ZFUR2S62-2022-12-31-ESEF-FI-0",
      "period_end": "2022-12-31", "error_count": 1,
      "package_url": "/743700Z1PBB0ZFUR2S62/2022-12-31/ESEF/FI/0/apetit-2022-12-31-fi.zip",
      "sha256": %q
    },
    "relationships": {"entity": {"data": {"type": "entity", "id": "e1"}}}
  }],
  "included": [{"type": "entity", "id": "e1", "attributes": {"name": "Apetit Oyj", "identifier": "743700Z1PBB0ZFUR2S62"}}],
  "meta": {"count": 1},
  "links": {}
}`, hex.EncodeToString(sum[:]))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/filings":
			w.Header().Set("Content-Type", "application/vnd.api+json")
			_, _ = io.WriteString(w, page)
		case strings.HasSuffix(r.URL.Path, ".zip"):
			_, _ = io.WriteString(w, packageBody)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// runCLI executes the root command with args and returns stdout. Flag
// variables are reset first since cobra binds them to package state.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	for _, v := range []any{&globalFlags, &getFlags, &pagesFlags, &downloadFlags, &exportFlags} {
		reflect.ValueOf(v).Elem().SetZero()
	}
	storeClearAll = false

	var out bytes.Buffer
	rootCmd.SetArgs(append(args, "--quiet"))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(stdin))
	err := rootCmd.Execute()
	return out.String(), err
}

// isolate runs the test in an empty directory with its own database.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv(config.EnvBaseURL, "")
	t.Setenv(config.EnvDBPath, filepath.Join(dir, "db", "filings.db"))
	return dir
}

// ─── Commands ─────────────────────────────────────────────────────────────────

func TestGetJSONLFeedsDownload(t *testing.T) {
	dir := isolate(t)
	srv := fakeAPI(t)
	base := srv.URL + "/api/filings"

	out, err := runCLI(t, "", "get", "--base-url", base, "--filter", "country=FI", "--include", "entity", "--format", "jsonl")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	set, err := pipeline.ReadFilings(strings.NewReader(out))
	if err != nil {
		t.Fatalf("get output is not a filing stream: %v\n%s", err, out)
	}
	f, ok := set.Get("4261")
	if !ok || f.Language != "fi" || !f.HasEntity() {
		t.Fatalf("filing = %+v", f)
	}

	dl := filepath.Join(dir, "dl")
	if _, err := runCLI(t, out, "download", "package", "--stdin", "--to-dir", dl, "--base-url", base, "--format", "csv"); err != nil {
		t.Fatalf("download: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dl, "apetit-2022-12-31-fi.zip"))
	if err != nil || string(data) != packageBody {
		t.Errorf("downloaded file = %q, %v", data, err)
	}
}

func TestGetStoreThenList(t *testing.T) {
	dir := isolate(t)
	srv := fakeAPI(t)

	if _, err := runCLI(t, "", "get", "--base-url", srv.URL+"/api/filings", "--include", "entity", "--store"); err != nil {
		t.Fatalf("get --store: %v", err)
	}
	out, err := runCLI(t, "", "store", "list", "--format", "csv")
	if err != nil {
		t.Fatalf("store list: %v", err)
	}
	if !strings.Contains(out, "4261") {
		t.Errorf("store list output:\n%s", out)
	}

	s, err := store.Open(filepath.Join(dir, "db", "filings.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	set, err := s.LoadFilingSet()
	if err != nil {
		t.Fatal(err)
	}
	if f, ok := set.Get("4261"); !ok || !f.HasEntity() {
		t.Errorf("stored filing lost its entity: %v", f)
	}
}

func TestExportSQLiteFromStdin(t *testing.T) {
	dir := isolate(t)
	srv := fakeAPI(t)

	out, err := runCLI(t, "", "get", "--base-url", srv.URL+"/api/filings", "--include", "entity", "--format", "jsonl")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "fi.sqlite")
	res, err := runCLI(t, out, "export", "sqlite", path, "--stdin")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(res, "filings") || !strings.Contains(res, "1") {
		t.Errorf("summary:\n%s", res)
	}
	if _, err := runCLI(t, out, "export", "sqlite", path, "--stdin"); err == nil {
		t.Error("expected refusal to overwrite without --update")
	}
	if _, err := runCLI(t, out, "export", "sqlite", path, "--stdin", "--update"); err != nil {
		t.Errorf("export --update: %v", err)
	}
}

func TestPagesJSONL(t *testing.T) {
	isolate(t)
	srv := fakeAPI(t)

	out, err := runCLI(t, "", "pages", "--base-url", srv.URL+"/api/filings", "--format", "jsonl")
	if err != nil {
		t.Fatalf("pages: %v", err)
	}
	if n := strings.Count(strings.TrimSpace(out), "\n") + 1; n != 1 {
		t.Errorf("expected one page summary, got %d:\n%s", n, out)
	}
	if !strings.Contains(out, `"records":1`) {
		t.Errorf("summary: %s", out)
	}
}

func TestGetRejectsBadFormat(t *testing.T) {
	isolate(t)
	if _, err := runCLI(t, "", "get", "--format", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestConfigInitAndGet(t *testing.T) {
	isolate(t)
	if _, err := runCLI(t, "", "config", "init"); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := runCLI(t, "", "config", "init"); err == nil {
		t.Error("second init should refuse to overwrite")
	}
	if _, err := runCLI(t, "", "config", "set", "concurrency", "8"); err != nil {
		t.Fatalf("config set: %v", err)
	}
	out, err := runCLI(t, "", "config", "get", "--format", "json")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"concurrency": 8`) {
		t.Errorf("config get:\n%s", out)
	}
}
