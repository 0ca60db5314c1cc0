package store_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/derickschaefer/filings/internal/filingset"
	"github.com/derickschaefer/filings/internal/model"
	"github.com/derickschaefer/filings/internal/store"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// testDB opens a fresh isolated database in t.TempDir().
// It is closed and deleted automatically when the test ends.
func testDB(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// makeFiling builds a filing of an entity with two validation messages.
func makeFiling(id, entityID string) *model.Filing {
	f := &model.Filing{
		APIID:         id,
		Country:       "FI",
		FilingIndex:   "743700Z1PBB0ZFUR2S62-2022-12-31-ESEF-FI-" + id,
		Language:      "fi",
		ReportingDate: time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC),
		EntityAPIID:   entityID,
		PackageURL:    "https://filings.xbrl.org/" + id + "/report.zip",
	}
	f.SetEntity(&model.Entity{APIID: entityID, Name: "Apetit Oyj", Identifier: "743700Z1PBB0ZFUR2S62"})
	f.SetValidationMessages([]*model.ValidationMessage{
		{APIID: id + "-m2", Severity: "WARNING", Code: "message:tech_duplicated_facts1"},
		{APIID: id + "-m1", Severity: "ERROR", Code: "xbrl.5.2.5.2:calcInconsistency"},
	})
	return f
}

// ─── Open / Path ──────────────────────────────────────────────────────────────

func TestOpenCreatesDB(t *testing.T) {
	s := testDB(t)
	if s.Path() == "" {
		t.Error("Path() should return the db path after open")
	}
}

func TestOpenCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "c", "test.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open with nested path: %v", err)
	}
	defer s.Close()
	if s.Path() != path {
		t.Errorf("Path: expected %q, got %q", path, s.Path())
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.PutFilingSet(filingset.New(makeFiling("11", "e1"))); err != nil {
		t.Fatalf("PutFilingSet: %v", err)
	}
	s.Close()

	s, err = store.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	filings, err := s.ListFilings()
	if err != nil || len(filings) != 1 {
		t.Fatalf("ListFilings after reopen: %d, %v", len(filings), err)
	}
}

// ─── Filing sets ──────────────────────────────────────────────────────────────

func TestPutLoadFilingSetRelinksRelations(t *testing.T) {
	s := testDB(t)
	n, err := s.PutFilingSet(filingset.New(makeFiling("11", "e1"), makeFiling("12", "e1")))
	if err != nil {
		t.Fatalf("PutFilingSet: %v", err)
	}
	if n != 2 {
		t.Errorf("wrote %d filings, want 2", n)
	}

	set, err := s.LoadFilingSet()
	if err != nil {
		t.Fatalf("LoadFilingSet: %v", err)
	}
	if set.Len() != 2 {
		t.Fatalf("Len = %d", set.Len())
	}
	f, _ := set.Get("11")
	if f.Country != "FI" || !f.ReportingDate.Equal(time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("scalars not preserved: %+v", f)
	}
	ent, err := f.Entity()
	if err != nil || ent == nil || ent.Name != "Apetit Oyj" {
		t.Fatalf("Entity = %v, %v", ent, err)
	}
	if got := len(ent.Filings()); got != 2 {
		t.Errorf("entity back-references = %d, want 2", got)
	}
	msgs, err := f.ValidationMessages()
	if err != nil || len(msgs) != 2 {
		t.Fatalf("ValidationMessages = %v, %v", msgs, err)
	}
	if msgs[0].APIID != "11-m1" || msgs[0].Filing() != f {
		t.Errorf("messages not sorted or not linked: %+v", msgs[0])
	}
	if len(set.Entities()) != 1 {
		t.Errorf("entities = %d, want 1 shared entity", len(set.Entities()))
	}
}

func TestLoadFilingSetKeepsUnloadedRelationsUnloaded(t *testing.T) {
	s := testDB(t)
	bare := &model.Filing{APIID: "30", EntityAPIID: "e3"}
	if _, err := s.PutFilingSet(filingset.New(bare)); err != nil {
		t.Fatal(err)
	}
	set, err := s.LoadFilingSet()
	if err != nil {
		t.Fatal(err)
	}
	f, _ := set.Get("30")
	if f.HasEntity() || f.HasValidationMessages() {
		t.Error("relations should stay unloaded")
	}
	if _, err := f.Entity(); err != model.ErrRelationNotLoaded {
		t.Errorf("Entity err = %v", err)
	}
}

func TestPutFilingSetMergesExisting(t *testing.T) {
	s := testDB(t)
	first := makeFiling("11", "e1")
	first.SetDownloadPath(model.FilePackage, "/tmp/report.zip")
	if _, err := s.PutFilingSet(filingset.New(first)); err != nil {
		t.Fatal(err)
	}

	later := &model.Filing{APIID: "11", Country: "SE", EntityAPIID: "e1"}
	if _, err := s.PutFilingSet(filingset.New(later)); err != nil {
		t.Fatal(err)
	}

	set, err := s.LoadFilingSet()
	if err != nil {
		t.Fatal(err)
	}
	f, _ := set.Get("11")
	if f.Country != "SE" {
		t.Errorf("Country = %q, latest write should win", f.Country)
	}
	if !f.HasEntity() || !f.HasValidationMessages() {
		t.Error("relations loaded earlier should survive")
	}
	if got := f.DownloadPath(model.FilePackage); got != "/tmp/report.zip" {
		t.Errorf("download path = %q", got)
	}
}

func TestListFilingsSortedByAPIID(t *testing.T) {
	s := testDB(t)
	_, _ = s.PutFilingSet(filingset.New(makeFiling("3", "e1"), makeFiling("1", "e2"), makeFiling("2", "e1")))
	filings, err := s.ListFilings()
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, f := range filings {
		ids = append(ids, f.APIID)
	}
	if len(ids) != 3 || ids[0] != "1" || ids[1] != "2" || ids[2] != "3" {
		t.Errorf("ids = %v", ids)
	}
}

func TestListFilingsEmpty(t *testing.T) {
	s := testDB(t)
	filings, err := s.ListFilings()
	if err != nil {
		t.Fatal(err)
	}
	if len(filings) != 0 {
		t.Errorf("expected empty list, got %d", len(filings))
	}
}

// ─── Stats ────────────────────────────────────────────────────────────────────

func TestStatsEmpty(t *testing.T) {
	s := testDB(t)
	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) != len(store.AllBuckets) {
		t.Errorf("expected %d buckets, got %d", len(store.AllBuckets), len(stats))
	}
	for _, bs := range stats {
		if bs.Count != 0 {
			t.Errorf("bucket %q: expected 0 rows on fresh db, got %d", bs.Name, bs.Count)
		}
	}
}

func TestStatsCountsRows(t *testing.T) {
	s := testDB(t)
	_, _ = s.PutFilingSet(filingset.New(makeFiling("11", "e1"), makeFiling("12", "e1")))

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	byName := make(map[string]int)
	for _, bs := range stats {
		byName[bs.Name] = bs.Count
	}
	if byName["filings"] != 2 {
		t.Errorf("filings: expected 2, got %d", byName["filings"])
	}
	if byName["entities"] != 1 {
		t.Errorf("entities: expected 1, got %d", byName["entities"])
	}
	if byName["validation_messages"] != 4 {
		t.Errorf("validation_messages: expected 4, got %d", byName["validation_messages"])
	}
}

// ─── ClearBucket / ClearAll ───────────────────────────────────────────────────

func TestClearBucket(t *testing.T) {
	s := testDB(t)
	_, _ = s.PutFilingSet(filingset.New(makeFiling("11", "e1")))

	if err := s.ClearBucket("filings"); err != nil {
		t.Fatalf("ClearBucket: %v", err)
	}
	filings, _ := s.ListFilings()
	if len(filings) != 0 {
		t.Errorf("expected 0 filings after ClearBucket, got %d", len(filings))
	}
}

func TestClearBucketUnknown(t *testing.T) {
	s := testDB(t)
	if err := s.ClearBucket("nope"); err == nil {
		t.Error("expected error for unknown bucket")
	}
}

func TestClearAll(t *testing.T) {
	s := testDB(t)
	_, _ = s.PutFilingSet(filingset.New(makeFiling("11", "e1")))

	if err := s.ClearAll(); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	stats, _ := s.Stats()
	for _, bs := range stats {
		if bs.Count != 0 {
			t.Errorf("bucket %q: %d rows after ClearAll", bs.Name, bs.Count)
		}
	}
}

// ─── Isolation ────────────────────────────────────────────────────────────────

func TestEachTestGetsIsolatedDB(t *testing.T) {
	s1 := testDB(t)
	_, _ = s1.PutFilingSet(filingset.New(makeFiling("11", "e1")))

	s2 := testDB(t)
	filings, err := s2.ListFilings()
	if err != nil {
		t.Fatalf("ListFilings on s2: %v", err)
	}
	if len(filings) != 0 {
		t.Error("s2 should not see data written to s1")
	}
}
