// Package query is the library entry point: it compiles a filter request,
// iterates its pages and materializes the results into a filing set.
package query

import (
	"context"
	"log/slog"
	"time"

	"github.com/derickschaefer/filings/internal/filingset"
	"github.com/derickschaefer/filings/internal/filter"
	"github.com/derickschaefer/filings/internal/pager"
	"github.com/derickschaefer/filings/internal/resource"
)

// Engine runs queries against a transport.
type Engine struct {
	Transport pager.Transport
	Options   filter.Options
}

// Stats describes a finished retrieval.
type Stats struct {
	Pages    int
	Counts   []int
	Duration time.Duration
}

// Pages compiles spec and returns a lazy iterator over its pages. No
// request is made until the first call to Next.
func (e *Engine) Pages(spec filter.Spec) (*pager.Iterator, error) {
	queries, err := filter.Compile(spec, e.Options)
	if err != nil {
		return nil, err
	}
	slog.Debug("query compiled", "subqueries", len(queries), "limit", spec.Limit)
	return pager.NewIterator(&pager.Fetcher{Transport: e.Transport}, queries, spec.Limit), nil
}

// Filings retrieves every filing matching spec. On a retrieval error the
// filings collected so far are returned together with the error.
func (e *Engine) Filings(ctx context.Context, spec filter.Spec) (*filingset.Set, error) {
	set, _, err := e.FilingsWithStats(ctx, spec)
	return set, err
}

// FilingsWithStats is Filings reporting page and match counts as well.
func (e *Engine) FilingsWithStats(ctx context.Context, spec filter.Spec) (*filingset.Set, Stats, error) {
	start := time.Now()
	it, err := e.Pages(spec)
	if err != nil {
		return nil, Stats{}, err
	}

	set := filingset.New()
	mat := resource.NewMaterializer(spec.Include)
	var stats Stats
	for it.Next(ctx) {
		stats.Pages++
		for _, f := range mat.Page(it.Page()) {
			set.Add(f)
		}
	}
	stats.Counts = it.Counts()
	stats.Duration = time.Since(start)
	return set, stats, it.Err()
}
