package pager_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/derickschaefer/filings/internal/filter"
	"github.com/derickschaefer/filings/internal/jsonapi"
	"github.com/derickschaefer/filings/internal/model"
	"github.com/derickschaefer/filings/internal/pager"
	"github.com/derickschaefer/filings/internal/xbrlapi"
)

// ─── Fake transport ───────────────────────────────────────────────────────────

type fakeTransport struct {
	pages map[string]*jsonapi.Document // "<query index>|<cursor>"
	errs  map[string]error
	calls []string
}

func newFake() *fakeTransport {
	return &fakeTransport{pages: map[string]*jsonapi.Document{}, errs: map[string]error{}}
}

func (f *fakeTransport) set(qi int, cursor string, doc *jsonapi.Document) {
	f.pages[fmt.Sprintf("%d|%s", qi, cursor)] = doc
}

func (f *fakeTransport) FetchPage(ctx context.Context, q filter.Query, cursor string) (*xbrlapi.PageResponse, error) {
	key := fmt.Sprintf("%d|%s", q.Index, cursor)
	f.calls = append(f.calls, key)
	if err := f.errs[key]; err != nil {
		return nil, err
	}
	doc, ok := f.pages[key]
	if !ok {
		return nil, fmt.Errorf("no page for %s", key)
	}
	return &xbrlapi.PageResponse{Document: doc, URL: "http://test/" + key, Fetched: time.Now()}, nil
}

func page(total int, next string, ids ...string) *jsonapi.Document {
	doc := &jsonapi.Document{}
	for _, id := range ids {
		doc.Data = append(doc.Data, jsonapi.Resource{Type: "filing", ID: id})
	}
	doc.Meta.Count = &total
	doc.Links.Next = next
	return doc
}

func queries(n int) []filter.Query {
	qs := make([]filter.Query, n)
	for i := range qs {
		qs[i] = filter.Query{Index: i}
	}
	return qs
}

func drain(t *testing.T, it *pager.Iterator) (ids []string, pages int) {
	t.Helper()
	for it.Next(context.Background()) {
		pages++
		for _, r := range it.Page().Records {
			ids = append(ids, r.ID)
		}
	}
	return ids, pages
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ─── Fetcher ──────────────────────────────────────────────────────────────────

func TestFetcherWrapsErrors(t *testing.T) {
	ft := newFake()
	ft.errs["0|next-1"] = errors.New("boom")
	f := &pager.Fetcher{Transport: ft}

	_, err := f.Fetch(context.Background(), filter.Query{Index: 0}, "next-1")
	var re *model.RetrievalError
	if !errors.As(err, &re) {
		t.Fatalf("expected *model.RetrievalError, got %T", err)
	}
	if re.Cursor != "next-1" || re.QueryIndex != 0 {
		t.Errorf("unexpected context %+v", re)
	}
}

func TestFetcherMissingCount(t *testing.T) {
	ft := newFake()
	ft.set(0, "", &jsonapi.Document{Data: []jsonapi.Resource{{Type: "filing", ID: "1"}}})
	p, err := (&pager.Fetcher{Transport: ft}).Fetch(context.Background(), filter.Query{}, "")
	if err != nil {
		t.Fatal(err)
	}
	if p.Total != -1 {
		t.Errorf("Total = %d, want -1", p.Total)
	}
}

// ─── Iterator ─────────────────────────────────────────────────────────────────

func TestIteratorWalksAllPages(t *testing.T) {
	ft := newFake()
	ft.set(0, "", page(5, "p2", "1", "2"))
	ft.set(0, "p2", page(5, "p3", "3", "4"))
	ft.set(0, "p3", page(5, "", "5"))

	it := pager.NewIterator(&pager.Fetcher{Transport: ft}, queries(1), 0)
	ids, pages := drain(t, it)
	if err := it.Err(); err != nil {
		t.Fatal(err)
	}
	if !equal(ids, []string{"1", "2", "3", "4", "5"}) || pages != 3 {
		t.Errorf("ids=%v pages=%d", ids, pages)
	}
	if c := it.Counts(); len(c) != 1 || c[0] != 5 {
		t.Errorf("counts = %v", c)
	}
}

func TestIteratorDropsRepeatsAcrossQueries(t *testing.T) {
	ft := newFake()
	ft.set(0, "", page(2, "", "1", "2"))
	ft.set(1, "", page(2, "", "2", "3"))
	ft.set(2, "", page(1, "", "1"))

	it := pager.NewIterator(&pager.Fetcher{Transport: ft}, queries(3), 0)
	ids, pages := drain(t, it)
	if !equal(ids, []string{"1", "2", "3"}) {
		t.Errorf("ids = %v", ids)
	}
	if pages != 2 {
		t.Errorf("a page of repeats only should be skipped; got %d pages", pages)
	}
	if c := it.Counts(); c[0] != 2 || c[1] != 2 || c[2] != 1 {
		t.Errorf("counts = %v", c)
	}
}

func TestIteratorCapTrimsAndStops(t *testing.T) {
	ft := newFake()
	ft.set(0, "", page(10, "p2", "1", "2"))
	ft.set(0, "p2", page(10, "p3", "3", "4"))
	ft.set(0, "p3", page(10, "", "5", "6"))
	ft.set(1, "", page(4, "", "7"))

	it := pager.NewIterator(&pager.Fetcher{Transport: ft}, queries(2), 3)
	ids, _ := drain(t, it)
	if !equal(ids, []string{"1", "2", "3"}) {
		t.Errorf("ids = %v", ids)
	}
	if len(ft.calls) != 2 {
		t.Errorf("expected 2 requests, got %v", ft.calls)
	}
	if c := it.Counts(); c[0] != 10 || c[1] != -1 {
		t.Errorf("counts = %v", c)
	}
	if it.Next(context.Background()) {
		t.Error("Next after cap should stay false")
	}
}

func TestIteratorEmptyPageEndsQuery(t *testing.T) {
	ft := newFake()
	ft.set(0, "", page(0, "p2"))
	ft.set(1, "", page(1, "", "9"))

	it := pager.NewIterator(&pager.Fetcher{Transport: ft}, queries(2), 0)
	ids, _ := drain(t, it)
	if !equal(ids, []string{"9"}) {
		t.Errorf("ids = %v", ids)
	}
	for _, c := range ft.calls {
		if c == "0|p2" {
			t.Error("next link of an empty page should not be followed")
		}
	}
}

func TestIteratorErrorKeepsYieldedPages(t *testing.T) {
	ft := newFake()
	ft.set(0, "", page(4, "p2", "1", "2"))
	ft.errs["0|p2"] = errors.New("connection reset")

	it := pager.NewIterator(&pager.Fetcher{Transport: ft}, queries(1), 0)
	if !it.Next(context.Background()) {
		t.Fatal("first page expected")
	}
	first := it.Page()
	if it.Next(context.Background()) {
		t.Fatal("second Next should fail")
	}
	var re *model.RetrievalError
	if !errors.As(it.Err(), &re) || re.Cursor != "p2" {
		t.Fatalf("expected retrieval error at p2, got %v", it.Err())
	}
	if len(first.Records) != 2 || first.Records[0].ID != "1" {
		t.Errorf("yielded page changed: %+v", first.Records)
	}
}

func TestIteratorDeduplicatesIncluded(t *testing.T) {
	ft := newFake()
	p1 := page(2, "p2", "1")
	p1.Included = []jsonapi.Resource{{Type: "entity", ID: "e1"}}
	p2 := page(2, "", "2")
	p2.Included = []jsonapi.Resource{{Type: "entity", ID: "e1"}, {Type: "validation_message", ID: "m1"}}
	ft.set(0, "", p1)
	ft.set(0, "p2", p2)

	it := pager.NewIterator(&pager.Fetcher{Transport: ft}, queries(1), 0)
	it.Next(context.Background())
	if n := len(it.Page().Included); n != 1 {
		t.Fatalf("first page included = %d", n)
	}
	it.Next(context.Background())
	inc := it.Page().Included
	if len(inc) != 1 || inc[0].ID != "m1" {
		t.Errorf("second page included = %+v", inc)
	}
}
