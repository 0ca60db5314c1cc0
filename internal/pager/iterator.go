package pager

import (
	"context"
	"log/slog"
	"slices"

	"github.com/derickschaefer/filings/internal/filter"
	"github.com/derickschaefer/filings/internal/jsonapi"
)

// Iterator yields the pages of a list of sub-queries lazily. Each call to
// Next issues at most the requests needed to produce one page; nothing is
// prefetched. Sub-queries run one after another, each to exhaustion.
//
// A filing is yielded at most once across all sub-queries: records whose
// api_id was already delivered are dropped, as are included resources
// already delivered. When limit is positive no more than limit filings are
// yielded in total.
//
// Typical use:
//
//	it := pager.NewIterator(f, queries, 0)
//	for it.Next(ctx) {
//		p := it.Page()
//		...
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator struct {
	fetcher *Fetcher
	queries []filter.Query
	limit   int

	qi     int
	cursor string
	counts []int

	seen         map[string]bool
	seenIncluded map[string]bool
	delivered    int

	page *Page
	err  error
	done bool
}

// NewIterator creates an iterator over queries. limit <= 0 means no cap.
func NewIterator(f *Fetcher, queries []filter.Query, limit int) *Iterator {
	counts := make([]int, len(queries))
	for i := range counts {
		counts[i] = -1
	}
	return &Iterator{
		fetcher:      f,
		queries:      queries,
		limit:        limit,
		counts:       counts,
		seen:         make(map[string]bool),
		seenIncluded: make(map[string]bool),
	}
}

// Next advances to the next non-empty page. It returns false when every
// sub-query is exhausted, the cap is reached, or a request failed; Err
// tells the last case apart.
func (it *Iterator) Next(ctx context.Context) bool {
	it.page = nil
	for !it.done {
		if it.qi >= len(it.queries) || it.capReached() {
			it.done = true
			break
		}
		q := it.queries[it.qi]
		p, err := it.fetcher.Fetch(ctx, q, it.cursor)
		if err != nil {
			it.err = err
			it.done = true
			break
		}
		if it.counts[it.qi] < 0 {
			it.counts[it.qi] = p.Total
		}
		slog.Debug("page fetched", "query", it.qi, "records", len(p.Records), "total", p.Total, "next", p.Next)

		exhausted := len(p.Records) == 0 || p.Next == "" || p.Next == it.cursor
		p.Records = it.fresh(p.Records)
		if exhausted {
			it.qi++
			it.cursor = ""
		} else {
			it.cursor = p.Next
		}

		if it.limit > 0 && it.delivered+len(p.Records) > it.limit {
			p.Records = p.Records[:it.limit-it.delivered]
		}
		if len(p.Records) == 0 {
			continue
		}
		p.Included = it.freshIncluded(p.Included)
		it.delivered += len(p.Records)
		it.page = p
		return true
	}
	return false
}

// Page returns the page produced by the last successful Next.
func (it *Iterator) Page() *Page { return it.page }

// Err returns the retrieval error that stopped the iterator, if any.
func (it *Iterator) Err() error { return it.err }

// Counts returns the match count of every sub-query as reported by its
// first page, or -1 for sub-queries not fetched yet or without a count.
func (it *Iterator) Counts() []int { return slices.Clone(it.counts) }

// Delivered returns the number of filings yielded so far.
func (it *Iterator) Delivered() int { return it.delivered }

func (it *Iterator) capReached() bool {
	return it.limit > 0 && it.delivered >= it.limit
}

func (it *Iterator) fresh(records []jsonapi.Resource) []jsonapi.Resource {
	out := make([]jsonapi.Resource, 0, len(records))
	for _, r := range records {
		if it.seen[r.ID] {
			slog.Warn("same filing returned again", "api_id", r.ID, "query", it.qi)
			continue
		}
		it.seen[r.ID] = true
		out = append(out, r)
	}
	return out
}

func (it *Iterator) freshIncluded(included []jsonapi.Resource) []jsonapi.Resource {
	out := make([]jsonapi.Resource, 0, len(included))
	for _, r := range included {
		key := r.NormType() + ":" + r.ID
		if it.seenIncluded[key] {
			continue
		}
		it.seenIncluded[key] = true
		out = append(out, r)
	}
	return out
}
