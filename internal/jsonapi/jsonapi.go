// Package jsonapi decodes JSON:API response documents into raw resource
// records. It knows the document structure only; turning records into
// typed filings is the job of package resource.
package jsonapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Identifier is a resource linkage object: {"type": ..., "id": ...}.
type Identifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Relationship is one member of a resource's "relationships" object.
// Data is either a single Identifier, an array of them, or null.
type Relationship struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Links struct {
		Related string `json:"related,omitempty"`
	} `json:"links"`
}

// Refs returns the linked identifiers regardless of to-one or to-many form.
func (r Relationship) Refs() []Identifier {
	data := bytes.TrimSpace(r.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '[' {
		var many []Identifier
		if err := json.Unmarshal(data, &many); err != nil {
			return nil
		}
		return many
	}
	var one Identifier
	if err := json.Unmarshal(data, &one); err != nil || one.ID == "" {
		return nil
	}
	return []Identifier{one}
}

// Resource is one raw record from "data" or "included".
type Resource struct {
	Type          string                     `json:"type"`
	ID            string                     `json:"id"`
	Attributes    map[string]json.RawMessage `json:"attributes,omitempty"`
	Relationships map[string]Relationship    `json:"relationships,omitempty"`
	Links         map[string]string          `json:"links,omitempty"`
}

// NormType returns the lower-cased resource type.
func (r Resource) NormType() string {
	return strings.ToLower(r.Type)
}

// String returns the attribute as a string. Numbers are rendered in their
// JSON form; null and missing attributes give "".
func (r Resource) String(name string) string {
	raw, ok := r.Attributes[name]
	if !ok {
		return ""
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	}
	return string(raw)
}

// Int returns the attribute as an int, accepting numbers and numeric
// strings. Anything else gives 0.
func (r Resource) Int(name string) int {
	var n int
	if _, err := fmt.Sscanf(r.String(name), "%d", &n); err != nil {
		return 0
	}
	return n
}

// Rel returns the identifiers linked by the named relationship.
func (r Resource) Rel(name string) []Identifier {
	rel, ok := r.Relationships[name]
	if !ok {
		return nil
	}
	return rel.Refs()
}

// RelLink returns the "related" link of the named relationship.
func (r Resource) RelLink(name string) string {
	return r.Relationships[name].Links.Related
}

// ErrorObject is one member of a top-level "errors" array.
type ErrorObject struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Code   string `json:"code"`
	Status string `json:"status"`
}

// Document is a decoded JSON:API top-level document.
type Document struct {
	Data     []Resource    `json:"data"`
	Included []Resource    `json:"included,omitempty"`
	Errors   []ErrorObject `json:"errors,omitempty"`
	Meta     struct {
		Count *int `json:"count,omitempty"`
	} `json:"meta"`
	Links struct {
		Self  string `json:"self,omitempty"`
		First string `json:"first,omitempty"`
		Prev  string `json:"prev,omitempty"`
		Next  string `json:"next,omitempty"`
		Last  string `json:"last,omitempty"`
	} `json:"links"`
	JSONAPI struct {
		Version string `json:"version,omitempty"`
	} `json:"jsonapi"`
}

// Decode parses a response body. A single resource object in "data" is
// accepted and returned as a one-element slice.
func Decode(body []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(body, &doc); err == nil {
		return &doc, nil
	}

	// Retry with data as a single object.
	var single struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, fmt.Errorf("decoding JSON:API document: %w", err)
	}
	var one Resource
	if err := json.Unmarshal(single.Data, &one); err != nil {
		return nil, fmt.Errorf("decoding JSON:API data: %w", err)
	}
	patched := bytes.Replace(body, single.Data, []byte("[]"), 1)
	if err := json.Unmarshal(patched, &doc); err != nil {
		return nil, fmt.Errorf("decoding JSON:API document: %w", err)
	}
	doc.Data = []Resource{one}
	return &doc, nil
}
