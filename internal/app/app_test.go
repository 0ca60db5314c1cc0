package app_test

import (
	"path/filepath"
	"testing"

	"github.com/derickschaefer/filings/internal/app"
	"github.com/derickschaefer/filings/internal/config"
	"github.com/derickschaefer/filings/internal/filter"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		BaseURL:     "http://127.0.0.1:1/api/filings",
		Rate:        5,
		Concurrency: 3,
		MaxPageSize: 50,
		YearScope:   filter.DefaultYearScope,
		DBPath:      filepath.Join(t.TempDir(), "nested", "filings.db"),
	}
}

func TestNewWiresClient(t *testing.T) {
	deps := app.New(testConfig(t))
	if deps.Client == nil || deps.Client.BaseURL() != "http://127.0.0.1:1/api/filings" {
		t.Errorf("client not wired: %+v", deps.Client)
	}
	if deps.Store != nil {
		t.Error("store should not be opened until required")
	}
	if deps.Engine().Options.MaxPageSize != 50 {
		t.Error("engine should carry the configured page size")
	}
}

func TestDownloaderUsesConfiguredConcurrency(t *testing.T) {
	cfg := testConfig(t)
	cfg.Concurrency = 0
	if _, err := app.New(cfg).Downloader(); err == nil {
		t.Error("expected error for zero concurrency")
	}
}

func TestRequireStoreOpensOnceAndCloses(t *testing.T) {
	deps := app.New(testConfig(t))
	if err := deps.RequireStore(); err != nil {
		t.Fatalf("RequireStore: %v", err)
	}
	first := deps.Store
	if err := deps.RequireStore(); err != nil || deps.Store != first {
		t.Error("second RequireStore should reuse the open store")
	}
	if err := deps.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if deps.Store != nil {
		t.Error("Close should release the store")
	}
	if err := deps.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
