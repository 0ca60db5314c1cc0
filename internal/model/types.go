// Package model defines the canonical data types used throughout filings.
// These types are the single source of truth for the filings.xbrl.org
// resources (filings, entities, validation messages) and the result envelope
// that every command returns.
package model

import (
	"strings"
	"time"
)

// ─── Resource Identity ────────────────────────────────────────────────────────

// Kind names a JSON:API resource type.
type Kind string

const (
	KindFiling            Kind = "filing"
	KindEntity            Kind = "entity"
	KindValidationMessage Kind = "validation_message"
)

// Key is the identity of a resource. Two resources are the same resource
// when their keys are equal, regardless of which objects hold them.
type Key struct {
	Kind  Kind
	APIID string
}

func (k Key) String() string {
	return string(k.Kind) + ":" + k.APIID
}

// ─── Inclusion Flags ──────────────────────────────────────────────────────────

// Include selects which related resources are requested alongside filings.
type Include uint8

const (
	IncludeEntity Include = 1 << iota
	IncludeValidationMessages

	IncludeNone Include = 0
	IncludeAll          = IncludeEntity | IncludeValidationMessages
)

// Has reports whether all flags in f are set.
func (i Include) Has(f Include) bool {
	return i&f == f && f != 0
}

// Names returns the JSON:API include parameter names in a fixed order.
func (i Include) Names() []string {
	var out []string
	if i.Has(IncludeEntity) {
		out = append(out, "entity")
	}
	if i.Has(IncludeValidationMessages) {
		out = append(out, "validation_messages")
	}
	return out
}

// ParseInclude parses a comma-separated list such as "entity,messages".
// Accepted names: entity, messages, validation_messages, all, none.
func ParseInclude(s string) (Include, error) {
	var inc Include
	for _, part := range strings.Split(s, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "":
		case "none":
		case "entity", "entities":
			inc |= IncludeEntity
		case "messages", "validation_messages", "vmessages":
			inc |= IncludeValidationMessages
		case "all", "both":
			inc |= IncludeAll
		default:
			return 0, &ConfigError{Field: "include", Value: part, Reason: "expected entity, messages, all or none"}
		}
	}
	return inc, nil
}

// ─── File Kinds ───────────────────────────────────────────────────────────────

// FileKind names a downloadable file of a filing.
type FileKind string

const (
	FileJSON    FileKind = "json"
	FilePackage FileKind = "package"
	FileXHTML   FileKind = "xhtml"
)

// FileKinds lists every downloadable kind in display order.
var FileKinds = []FileKind{FileJSON, FilePackage, FileXHTML}

// ParseFileKind validates a file kind name.
func ParseFileKind(s string) (FileKind, error) {
	switch k := FileKind(strings.ToLower(strings.TrimSpace(s))); k {
	case FileJSON, FilePackage, FileXHTML:
		return k, nil
	}
	return "", &ConfigError{Field: "file", Value: s, Reason: "expected json, package or xhtml"}
}

// ─── Result Envelope ─────────────────────────────────────────────────────────

// ResultStats carries performance metadata for a command result.
type ResultStats struct {
	Pages      int   `json:"pages"`
	DurationMs int64 `json:"duration_ms"`
	Items      int   `json:"items"`
	Bytes      int64 `json:"bytes,omitempty"`
}

// Result is the uniform envelope returned by every command.
// The Data field holds the typed payload; Kind identifies what is in it.
// Renderers switch on Kind to format output appropriately.
type Result struct {
	Kind        string      `json:"kind"`
	GeneratedAt time.Time   `json:"generated_at"`
	Command     string      `json:"command"`
	Data        interface{} `json:"data"`
	Warnings    []string    `json:"warnings,omitempty"`
	Stats       ResultStats `json:"stats"`
}

// Kind constants for Result.Kind.
const (
	ResultFilings            = "filings"
	ResultEntities           = "entities"
	ResultValidationMessages = "validation_messages"
	ResultDownloads          = "downloads"
	ResultPages              = "pages"
)

// ─── Report Rows ──────────────────────────────────────────────────────────────

// DownloadRecord is the reported outcome of one downloaded file.
type DownloadRecord struct {
	FilingAPIID string   `json:"filing_api_id"`
	Kind        FileKind `json:"kind"`
	URL         string   `json:"url,omitempty"`
	Status      string   `json:"status"`
	Path        string   `json:"path,omitempty"`
	Bytes       int64    `json:"bytes,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// PageSummary describes one retrieved page without its records.
type PageSummary struct {
	QueryIndex int       `json:"query_index"`
	Page       int       `json:"page"`
	Records    int       `json:"records"`
	Included   int       `json:"included"`
	Total      int       `json:"total"` // -1 when the response carried no count
	Next       string    `json:"next,omitempty"`
	RequestURL string    `json:"request_url"`
	QueryTime  time.Time `json:"query_time"`
}
