package filingset_test

import (
	"testing"
	"time"

	"github.com/derickschaefer/filings/internal/filingset"
	"github.com/derickschaefer/filings/internal/model"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

func filing(id string) *model.Filing {
	return &model.Filing{APIID: id, Country: "FI"}
}

func setOf(ids ...string) *filingset.Set {
	s := filingset.New()
	for _, id := range ids {
		s.Add(filing(id))
	}
	return s
}

func ids(s *filingset.Set) []string {
	var out []string
	for _, f := range s.Filings() {
		out = append(out, f.APIID)
	}
	return out
}

func assertIDs(t *testing.T, s *filingset.Set, want ...string) {
	t.Helper()
	got := ids(s)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

// ─── Membership ───────────────────────────────────────────────────────────────

func TestAddMergesByAPIID(t *testing.T) {
	s := filingset.New()
	first := &model.Filing{APIID: "1", ErrorCount: 3}
	first.SetDownloadPath(model.FilePackage, "/tmp/a.zip")
	s.Add(first)
	s.Add(&model.Filing{APIID: "1", ErrorCount: 5})

	if s.Len() != 1 {
		t.Fatalf("Len = %d", s.Len())
	}
	got, _ := s.Get("1")
	if got != first {
		t.Error("the existing object should stay the member")
	}
	if got.ErrorCount != 5 {
		t.Errorf("latest scalar should win, got %d", got.ErrorCount)
	}
	if got.PackageDownloadPath != "/tmp/a.zip" {
		t.Error("download path should survive the merge")
	}
}

func TestMergeKeepsRelationUnion(t *testing.T) {
	withEntity := &model.Filing{APIID: "1"}
	withEntity.SetEntity(&model.Entity{APIID: "e1", Name: "Apetit Oyj"})
	withMsgs := &model.Filing{APIID: "1"}
	withMsgs.SetValidationMessages([]*model.ValidationMessage{{APIID: "m1"}})

	s := filingset.New(withEntity, withMsgs)
	f, _ := s.Get("1")
	if !f.HasEntity() || !f.HasValidationMessages() {
		t.Fatalf("entity=%v messages=%v", f.HasEntity(), f.HasValidationMessages())
	}
	msgs, _ := f.ValidationMessages()
	if msgs[0].Filing() != f {
		t.Error("message back reference should point at the member")
	}

	// A later instance whose included entity could not be resolved keeps
	// the known one.
	unresolved := &model.Filing{APIID: "1"}
	unresolved.SetEntity(nil)
	s.Add(unresolved)
	if e, err := f.Entity(); err != nil || e == nil || e.APIID != "e1" {
		t.Errorf("entity after unresolved merge = %v, %v", e, err)
	}
}

func TestFilingsIsSnapshot(t *testing.T) {
	s := setOf("b", "a", "c")
	snap := s.Filings()
	s.Remove("a")
	s.Add(filing("d"))
	if len(snap) != 3 || snap[0].APIID != "a" {
		t.Errorf("snapshot changed: %v", snap)
	}
	assertIDs(t, s, "b", "c", "d")
}

func TestEntitiesAndMessagesDeduplicated(t *testing.T) {
	e := &model.Entity{APIID: "e1"}
	a, b := filing("1"), filing("2")
	a.SetEntity(e)
	b.SetEntity(&model.Entity{APIID: "e1"})
	a.SetValidationMessages([]*model.ValidationMessage{{APIID: "m2"}, {APIID: "m1"}})
	c := filing("3") // relations not loaded

	s := filingset.New(a, b, c)
	if n := len(s.Entities()); n != 1 {
		t.Errorf("entities = %d", n)
	}
	msgs := s.ValidationMessages()
	if len(msgs) != 2 || msgs[0].APIID != "m1" {
		t.Errorf("messages = %v", msgs)
	}
}

func TestEntitiesStableAcrossQueries(t *testing.T) {
	first := &model.Entity{APIID: "e1", Name: "first query", QueryTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	second := &model.Entity{APIID: "e1", Name: "second query", QueryTime: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)}
	f1, f2, f3 := filing("1"), filing("2"), filing("3")
	f1.SetEntity(first)
	f2.SetEntity(second)
	f3.SetEntity(second)

	s := filingset.New(f1)
	s.Update(filingset.New(f2, f3))

	for range 50 {
		ents := s.Entities()
		if len(ents) != 1 {
			t.Fatalf("entities = %d", len(ents))
		}
		e := ents[0]
		if e.Name != "second query" {
			t.Fatalf("latest observation should represent the entity, got %q", e.Name)
		}
		if n := len(e.Filings()); n != 3 {
			t.Fatalf("entity filings = %d, want 3", n)
		}
	}
}

func TestNilSetIsEmpty(t *testing.T) {
	var none *filingset.Set
	if !filingset.New().Equal(none) || setOf("1").Equal(none) {
		t.Error("nil should equal only the empty set")
	}
	if setOf("1").IsSubset(none) || !none.IsSubset(setOf("1")) {
		t.Error("nil subset relations")
	}
	if !setOf("1").IsDisjoint(none) || none.Len() != 0 {
		t.Error("nil is disjoint and empty")
	}
	assertIDs(t, setOf("1").Union(none), "1")
	assertIDs(t, setOf("1").SymmetricDifference(none), "1")
	s := setOf("1")
	s.Update(none)
	assertIDs(t, s, "1")
}

// ─── Algebra ──────────────────────────────────────────────────────────────────

func TestPureOperations(t *testing.T) {
	a := setOf("1", "2", "3")
	b := setOf("3", "4")

	assertIDs(t, a.Union(b), "1", "2", "3", "4")
	assertIDs(t, a.Intersection(b), "3")
	assertIDs(t, a.Difference(b), "1", "2")
	assertIDs(t, a.SymmetricDifference(b), "1", "2", "4")

	// Inputs untouched.
	assertIDs(t, a, "1", "2", "3")
	assertIDs(t, b, "3", "4")
}

func TestPureOperationsCloneMembers(t *testing.T) {
	a := setOf("1")
	u := a.Union(setOf("2"))
	orig, _ := a.Get("1")
	cp, _ := u.Get("1")
	if orig == cp {
		t.Fatal("result should hold a clone")
	}
	cp.ErrorCount = 99
	if orig.ErrorCount == 99 {
		t.Error("mutating the result changed the input")
	}
}

func TestUnionMergesLatestWins(t *testing.T) {
	a := filingset.New(&model.Filing{APIID: "1", WarningCount: 1})
	b := filingset.New(&model.Filing{APIID: "1", WarningCount: 2})
	f, _ := a.Union(b).Get("1")
	if f.WarningCount != 2 {
		t.Errorf("WarningCount = %d", f.WarningCount)
	}
	orig, _ := a.Get("1")
	if orig.WarningCount != 1 {
		t.Error("input member modified")
	}
}

func TestInPlaceOperations(t *testing.T) {
	a := setOf("1", "2", "3")
	a.Update(setOf("3", "4"))
	assertIDs(t, a, "1", "2", "3", "4")

	a.IntersectionUpdate(setOf("2", "3", "9"))
	assertIDs(t, a, "2", "3")

	a.DifferenceUpdate(setOf("3"))
	assertIDs(t, a, "2")

	a.SymmetricDifferenceUpdate(setOf("2", "5"))
	assertIDs(t, a, "5")
}

func TestUpdateMergesIntoExistingMember(t *testing.T) {
	a := setOf("1")
	before, _ := a.Get("1")
	a.Update(filingset.New(&model.Filing{APIID: "1", ErrorCount: 7}))
	after, _ := a.Get("1")
	if before != after || after.ErrorCount != 7 {
		t.Errorf("expected in-place merge, got %+v", after)
	}
}

func TestAlgebraicProperties(t *testing.T) {
	a := setOf("1", "2", "3")
	b := setOf("2", "3", "4")

	if !a.Union(a).Equal(a) {
		t.Error("A ∪ A should equal A")
	}
	if !a.Intersection(a).Equal(a) {
		t.Error("A ∩ A should equal A")
	}
	if a.Difference(a).Len() != 0 {
		t.Error("A − A should be empty")
	}
	if !a.Union(b).Equal(b.Union(a)) {
		t.Error("union should commute")
	}
	if !a.Intersection(b).Equal(b.Intersection(a)) {
		t.Error("intersection should commute")
	}
	sym := a.SymmetricDifference(b)
	if !sym.Equal(a.Union(b).Difference(a.Intersection(b))) {
		t.Error("A △ B should equal (A ∪ B) − (A ∩ B)")
	}
	if !a.Intersection(b).IsSubset(a) || !a.Union(b).IsSuperset(b) {
		t.Error("subset relations broken")
	}
	if !a.Difference(b).IsDisjoint(b) {
		t.Error("A − B should be disjoint from B")
	}
}

func TestSelfUpdates(t *testing.T) {
	a := setOf("1", "2")
	a.Update(a)
	assertIDs(t, a, "1", "2")
	a.IntersectionUpdate(a)
	assertIDs(t, a, "1", "2")
	a.SymmetricDifferenceUpdate(a)
	if a.Len() != 0 {
		t.Errorf("A △= A should empty the set, got %v", ids(a))
	}
}

// ─── PopDuplicates ────────────────────────────────────────────────────────────

func version(id, index, lang string) *model.Filing {
	return &model.Filing{APIID: id, FilingIndex: index, Language: lang}
}

func TestPopDuplicatesPrefersLanguages(t *testing.T) {
	s := filingset.New(
		version("10", "LEI1-2022-12-31-ESEF-FI-0", "fi"),
		version("11", "LEI1-2022-12-31-ESEF-FI-1", "en"),
		version("20", "LEI2-2022-12-31-ESEF-FI-0", "sv"),
		version("21", "LEI2-2022-12-31-ESEF-FI-1", "fi"),
		version("30", "LEI3-2022-12-31-ESEF-FI-0", "fi"),
	)
	removed := s.PopDuplicates([]string{"en", "fi"})
	assertIDs(t, s, "11", "21", "30")
	if len(removed) != 2 || removed[0].APIID != "10" || removed[1].APIID != "20" {
		t.Errorf("removed = %v", removed)
	}
	// No two remaining members share a report.
	seen := map[string]bool{}
	for _, f := range s.Filings() {
		key := f.FilingIndex[:len(f.FilingIndex)-2]
		if seen[key] {
			t.Errorf("duplicate report %s survived", key)
		}
		seen[key] = true
	}
}

func TestPopDuplicatesFallsBackToSequence(t *testing.T) {
	s := filingset.New(
		version("7", "LEI4-2021-12-31-ESEF-DE-2", "de"),
		version("8", "LEI4-2021-12-31-ESEF-DE-1", "fr"),
	)
	removed := s.PopDuplicates([]string{"en"})
	assertIDs(t, s, "8")
	if len(removed) != 1 || removed[0].APIID != "7" {
		t.Errorf("removed = %v", removed)
	}
}

func TestPopDuplicatesLeavesUnindexedAlone(t *testing.T) {
	s := filingset.New(version("1", "", "en"), version("2", "", "en"))
	if removed := s.PopDuplicates([]string{"en"}); len(removed) != 0 {
		t.Errorf("removed = %v", removed)
	}
}
