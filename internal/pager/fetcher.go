// Package pager retrieves the result pages of compiled queries. The
// Fetcher performs exactly one request per call; the Iterator walks every
// sub-query of a multifilter request to exhaustion, one page at a time,
// and enforces the record cap and the no-repeat guarantee.
package pager

import (
	"context"
	"time"

	"github.com/derickschaefer/filings/internal/filter"
	"github.com/derickschaefer/filings/internal/jsonapi"
	"github.com/derickschaefer/filings/internal/model"
	"github.com/derickschaefer/filings/internal/xbrlapi"
)

// Transport performs a single page request. *xbrlapi.Client implements it.
type Transport interface {
	FetchPage(ctx context.Context, q filter.Query, cursor string) (*xbrlapi.PageResponse, error)
}

// Page is one retrieved page. Total is the match count reported by the
// API for the whole sub-query, or -1 when the response omitted it. Next
// is empty on the last page.
type Page struct {
	QueryIndex int
	Records    []jsonapi.Resource
	Included   []jsonapi.Resource
	Total      int
	Next       string
	RequestURL string
	QueryTime  time.Time
}

// Fetcher turns transport responses into pages.
type Fetcher struct {
	Transport Transport
}

// Fetch retrieves the first page of q, or the page at cursor. Every
// failure is returned as a *model.RetrievalError.
func (f *Fetcher) Fetch(ctx context.Context, q filter.Query, cursor string) (*Page, error) {
	resp, err := f.Transport.FetchPage(ctx, q, cursor)
	if err != nil {
		return nil, &model.RetrievalError{QueryIndex: q.Index, Query: q.String(), Cursor: cursor, Err: err}
	}
	doc := resp.Document
	total := -1
	if doc.Meta.Count != nil {
		total = *doc.Meta.Count
	}
	return &Page{
		QueryIndex: q.Index,
		Records:    doc.Data,
		Included:   doc.Included,
		Total:      total,
		Next:       doc.Links.Next,
		RequestURL: resp.URL,
		QueryTime:  resp.Fetched,
	}, nil
}
