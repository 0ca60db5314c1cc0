package filter

import (
	"strings"

	"github.com/derickschaefer/filings/internal/model"
)

// field describes one attribute accepted by the API for filtering and
// sorting. Name is the library name, API the JSON:API name.
type field struct {
	Name string
	API  string
	Date bool
}

// queryable lists the attributes the API accepts in filter[...] and sort.
var queryable = []field{
	{Name: "api_id", API: "id"},
	{Name: "country", API: "country"},
	{Name: "filing_index", API: "fxo_id"},
	{Name: "last_end_date", API: "period_end", Date: true},
	{Name: "added_time", API: "date_added"},
	{Name: "processed_time", API: "processed"},
	{Name: "package_sha256", API: "sha256"},
	{Name: "entity.identifier", API: "entity.identifier"},
	{Name: "entity.name", API: "entity.name"},
	{Name: "validation_messages.code", API: "validation_messages.code"},
	{Name: "validation_messages.severity", API: "validation_messages.severity"},
}

// derived attributes exist only client-side.
var derived = map[string]bool{
	"reporting_date": true,
	"language":       true,
}

// lookupField resolves a library or API attribute name. Count and URL
// attributes are rejected because the API ignores them for filtering and
// sorting.
func lookupField(name string) (field, error) {
	for _, f := range queryable {
		if f.Name == name || f.API == name {
			return f, nil
		}
	}
	switch {
	case strings.HasSuffix(name, "_count"):
		return field{}, &model.ConfigError{Field: "filter field", Value: name, Reason: "count attributes cannot be queried"}
	case strings.HasSuffix(name, "_url"):
		return field{}, &model.ConfigError{Field: "filter field", Value: name, Reason: "download URL attributes cannot be queried"}
	case derived[name]:
		return field{}, &model.ConfigError{Field: "filter field", Value: name, Reason: "derived attributes cannot be queried"}
	}
	return field{}, &model.ConfigError{Field: "filter field", Value: name, Reason: "unknown attribute"}
}

// QueryableFields returns the library names of all queryable attributes.
func QueryableFields() []string {
	out := make([]string, len(queryable))
	for i, f := range queryable {
		out[i] = f.Name
	}
	return out
}
