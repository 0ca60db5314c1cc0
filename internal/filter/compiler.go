// Package filter compiles a declarative filter/sort request into the
// concrete, network-ready queries sent to the filings API.
//
// The API only supports equality filtering of one value per attribute.
// A field given several values (a multifilter) is expanded into one query
// per value, and several multifilters into their Cartesian product. Date
// fields given a bare year or a year-month are resolved to literal
// month-end dates before expansion.
package filter

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/derickschaefer/filings/internal/model"
)

// DefaultMaxPageSize is the largest page requested from the API.
const DefaultMaxPageSize = 200

// Filters maps an attribute to its candidate values. One value filters by
// equality; more values are ORed by running one query per value.
type Filters map[string][]string

// Add appends values to field.
func (f Filters) Add(field string, values ...string) {
	f[field] = append(f[field], values...)
}

// Spec is a query as the caller states it.
type Spec struct {
	Filters Filters
	Sort    []string // attribute names, "-" prefix for descending
	Limit   int      // maximum number of filings, 0 for no limit
	Include model.Include
	Extra   map[string]string // additional raw JSON:API parameters
}

// Options are the compiler knobs owned by configuration.
type Options struct {
	MaxPageSize int
	YearScope   YearScope
}

// Condition is one resolved filter term.
type Condition struct {
	Field string // JSON:API attribute name
	Op    string
	Value string
}

// OpEq is the only operator the API supports.
const OpEq = "eq"

// Query is one compiled, network-ready request.
type Query struct {
	Index      int
	Conditions []Condition
	Sort       string
	PageSize   int
	Include    model.Include
	Extra      map[string]string
}

// Params encodes the query as JSON:API request parameters.
func (q Query) Params() url.Values {
	v := url.Values{}
	for _, c := range q.Conditions {
		v.Set("filter["+c.Field+"]", c.Value)
	}
	if q.Sort != "" {
		v.Set("sort", q.Sort)
	}
	if q.PageSize > 0 {
		v.Set("page[size]", strconv.Itoa(q.PageSize))
	}
	if names := q.Include.Names(); len(names) > 0 {
		v.Set("include", strings.Join(names, ","))
	}
	for k, val := range q.Extra {
		v.Set(k, val)
	}
	return v
}

// String renders the parameters unescaped, for logs and error messages.
func (q Query) String() string {
	s, err := url.QueryUnescape(q.Params().Encode())
	if err != nil {
		return q.Params().Encode()
	}
	return s
}

// Compile validates spec and expands it into one Query per combination
// of multifilter values. No I/O is performed; every error is a
// *model.ConfigError.
func Compile(spec Spec, opts Options) ([]Query, error) {
	if spec.Limit < 0 {
		return nil, &model.ConfigError{Field: "limit", Value: strconv.Itoa(spec.Limit), Reason: "may not be negative"}
	}
	if opts.MaxPageSize < 0 {
		return nil, &model.ConfigError{Field: "max_page_size", Value: strconv.Itoa(opts.MaxPageSize), Reason: "may not be negative"}
	}
	if opts.MaxPageSize == 0 {
		opts.MaxPageSize = DefaultMaxPageSize
	}
	if opts.YearScope == (YearScope{}) {
		opts.YearScope = DefaultYearScope
	}
	if err := opts.YearScope.Validate(); err != nil {
		return nil, err
	}

	sortParam, err := compileSort(spec.Sort)
	if err != nil {
		return nil, err
	}

	pageSize := opts.MaxPageSize
	if spec.Limit > 0 && spec.Limit < pageSize {
		pageSize = spec.Limit
	}

	columns, err := compileFilters(spec.Filters, opts.YearScope)
	if err != nil {
		return nil, err
	}

	combos := product(columns)
	queries := make([]Query, len(combos))
	for i, conds := range combos {
		queries[i] = Query{
			Index:      i,
			Conditions: conds,
			Sort:       sortParam,
			PageSize:   pageSize,
			Include:    spec.Include,
			Extra:      spec.Extra,
		}
	}
	return queries, nil
}

// column is one filter field with its resolved candidate values.
type column struct {
	api    string
	values []string
}

func compileFilters(filters Filters, scope YearScope) ([]column, error) {
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)

	seenAPI := make(map[string]string)
	columns := make([]column, 0, len(names))
	for _, name := range names {
		f, err := lookupField(name)
		if err != nil {
			return nil, err
		}
		if prev, dup := seenAPI[f.API]; dup {
			return nil, &model.ConfigError{Field: "filter field", Value: name, Reason: "same attribute already filtered as " + prev}
		}
		seenAPI[f.API] = name

		raw := filters[name]
		if len(raw) == 0 {
			return nil, &model.ConfigError{Field: "filter field", Value: name, Reason: "no values given"}
		}
		var values []string
		for _, v := range raw {
			v = strings.TrimSpace(v)
			if f.Date {
				resolved, err := resolveDate(name, v, scope)
				if err != nil {
					return nil, err
				}
				values = append(values, resolved...)
				continue
			}
			values = append(values, v)
		}
		columns = append(columns, column{api: f.API, values: dedupe(values)})
	}
	return columns, nil
}

func compileSort(fields []string) (string, error) {
	parts := make([]string, 0, len(fields))
	for _, s := range fields {
		s = strings.TrimSpace(s)
		desc := strings.HasPrefix(s, "-")
		name := strings.TrimPrefix(s, "-")
		f, err := lookupField(name)
		if err != nil {
			return "", &model.ConfigError{Field: "sort field", Value: name, Reason: err.(*model.ConfigError).Reason}
		}
		if desc {
			parts = append(parts, "-"+f.API)
		} else {
			parts = append(parts, f.API)
		}
	}
	return strings.Join(parts, ","), nil
}

// product returns the Cartesian product of the columns. The last column
// varies fastest. No columns give a single empty combination.
func product(columns []column) [][]Condition {
	total := 1
	for _, c := range columns {
		total *= len(c.values)
	}
	out := make([][]Condition, 0, total)
	idx := make([]int, len(columns))
	for n := 0; n < total; n++ {
		conds := make([]Condition, len(columns))
		for i, c := range columns {
			conds[i] = Condition{Field: c.api, Op: OpEq, Value: c.values[idx[i]]}
		}
		out = append(out, conds)
		for i := len(columns) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(columns[i].values) {
				break
			}
			idx[i] = 0
		}
	}
	return out
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := values[:0:0]
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
