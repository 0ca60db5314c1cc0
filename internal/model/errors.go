package model

import (
	"errors"
	"fmt"
)

// ErrRelationNotLoaded is returned when a relation is read from a filing
// whose query did not request it. An absent relation is not an empty one.
var ErrRelationNotLoaded = errors.New("relation not loaded: include flag was not set for the query")

// ConfigError reports invalid caller input detected before any I/O.
type ConfigError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// RetrievalError reports a failed page request. Query holds the encoded
// request parameters and Cursor the page link that was being fetched
// (empty for the first page).
type RetrievalError struct {
	QueryIndex int
	Query      string
	Cursor     string
	Err        error
}

func (e *RetrievalError) Error() string {
	if e.Cursor != "" {
		return fmt.Sprintf("query #%d (%s) page %s: %v", e.QueryIndex+1, e.Query, e.Cursor, e.Err)
	}
	return fmt.Sprintf("query #%d (%s): %v", e.QueryIndex+1, e.Query, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }
