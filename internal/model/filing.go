package model

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"
)

// Filing is a single XBRL report package in the filings.xbrl.org index.
// Language versions of the same report are separate filings sharing the
// same FilingIndex apart from its trailing sequence number.
//
// Scalar fields are set once at materialization. The entity and validation
// message relations are present only when the query requested them, and
// the *DownloadPath fields are written when a download completes.
type Filing struct {
	APIID              string    `json:"api_id"`
	Country            string    `json:"country,omitempty"`
	FilingIndex        string    `json:"filing_index,omitempty"`
	Language           string    `json:"language,omitempty"`
	LastEndDate        time.Time `json:"last_end_date,omitzero"`
	ReportingDate      time.Time `json:"reporting_date,omitzero"`
	ErrorCount         int       `json:"error_count"`
	InconsistencyCount int       `json:"inconsistency_count"`
	WarningCount       int       `json:"warning_count"`
	AddedTime          time.Time `json:"added_time,omitzero"`
	ProcessedTime      time.Time `json:"processed_time,omitzero"`
	EntityAPIID        string    `json:"entity_api_id,omitempty"`
	JSONURL            string    `json:"json_url,omitempty"`
	PackageURL         string    `json:"package_url,omitempty"`
	ViewerURL          string    `json:"viewer_url,omitempty"`
	XHTMLURL           string    `json:"xhtml_url,omitempty"`
	PackageSHA256      string    `json:"package_sha256,omitempty"`

	// One field per file kind so concurrent downloads of different kinds
	// of the same filing never write the same location.
	JSONDownloadPath    string `json:"json_download_path,omitempty"`
	PackageDownloadPath string `json:"package_download_path,omitempty"`
	XHTMLDownloadPath   string `json:"xhtml_download_path,omitempty"`

	QueryTime  time.Time `json:"query_time,omitzero"`
	RequestURL string    `json:"request_url,omitempty"`

	entity         *Entity
	entityLoaded   bool
	messages       []*ValidationMessage
	messagesLoaded bool
}

// Key returns the identity of the filing.
func (f *Filing) Key() Key {
	return Key{Kind: KindFiling, APIID: f.APIID}
}

// ─── Relations ────────────────────────────────────────────────────────────────

// HasEntity reports whether the entity relation was loaded.
func (f *Filing) HasEntity() bool { return f.entityLoaded }

// Entity returns the filer. It fails with ErrRelationNotLoaded when the
// query did not include entities. A loaded relation may still be nil if
// the API omitted the included record.
func (f *Filing) Entity() (*Entity, error) {
	if !f.entityLoaded {
		return nil, ErrRelationNotLoaded
	}
	return f.entity, nil
}

// SetEntity marks the entity relation as loaded and links both sides.
func (f *Filing) SetEntity(e *Entity) {
	f.entity = e
	f.entityLoaded = true
	if e != nil {
		e.AddFiling(f)
	}
}

// HasValidationMessages reports whether the validation message relation
// was loaded.
func (f *Filing) HasValidationMessages() bool { return f.messagesLoaded }

// ValidationMessages returns the messages of the filing, sorted by api_id.
// It fails with ErrRelationNotLoaded when the query did not include them.
func (f *Filing) ValidationMessages() ([]*ValidationMessage, error) {
	if !f.messagesLoaded {
		return nil, ErrRelationNotLoaded
	}
	return f.messages, nil
}

// SetValidationMessages marks the relation as loaded and sets the back
// reference of every message.
func (f *Filing) SetValidationMessages(msgs []*ValidationMessage) {
	out := make([]*ValidationMessage, 0, len(msgs))
	seen := make(map[string]bool, len(msgs))
	for _, m := range msgs {
		if m == nil || seen[m.APIID] {
			continue
		}
		seen[m.APIID] = true
		m.filing = f
		m.FilingAPIID = f.APIID
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].APIID < out[j].APIID })
	f.messages = out
	f.messagesLoaded = true
}

// ─── Files ────────────────────────────────────────────────────────────────────

// DownloadURL returns the remote URL for kind, or "" if the API did not
// publish one.
func (f *Filing) DownloadURL(kind FileKind) string {
	switch kind {
	case FileJSON:
		return f.JSONURL
	case FilePackage:
		return f.PackageURL
	case FileXHTML:
		return f.XHTMLURL
	}
	return ""
}

// ExpectedSHA256 returns the published content hash for kind. Only report
// packages carry one.
func (f *Filing) ExpectedSHA256(kind FileKind) string {
	if kind == FilePackage {
		return f.PackageSHA256
	}
	return ""
}

// DownloadPath returns the local path recorded for kind.
func (f *Filing) DownloadPath(kind FileKind) string {
	switch kind {
	case FileJSON:
		return f.JSONDownloadPath
	case FilePackage:
		return f.PackageDownloadPath
	case FileXHTML:
		return f.XHTMLDownloadPath
	}
	return ""
}

// SetDownloadPath records a completed download.
func (f *Filing) SetDownloadPath(kind FileKind, path string) {
	switch kind {
	case FileJSON:
		f.JSONDownloadPath = path
	case FilePackage:
		f.PackageDownloadPath = path
	case FileXHTML:
		f.XHTMLDownloadPath = path
	}
}

// ─── Copy & Merge ─────────────────────────────────────────────────────────────

// Clone returns a shallow copy. Related entity and message objects are
// shared with the original.
func (f *Filing) Clone() *Filing {
	c := *f
	c.messages = slices.Clone(f.messages)
	return &c
}

// Merge folds a later observation of the same filing into f.
// Scalars take the values of other (latest write wins). A relation is
// present afterwards if it was present on either side, preferring the one
// on other. Download paths survive unless other carries its own. The
// related entity and messages are re-pointed at f.
func (f *Filing) Merge(other *Filing) {
	if other == nil || other == f {
		return
	}
	f.mergeFrom(other)
	if f.entity != nil {
		f.entity.AddFiling(f)
	}
	for _, m := range f.messages {
		m.filing = f
	}
}

// Merged returns the merge of f and other as a new filing. Neither input
// nor any related object is modified.
func (f *Filing) Merged(other *Filing) *Filing {
	c := f.Clone()
	if other != nil && other != f {
		c.mergeFrom(other)
	}
	return c
}

func (f *Filing) mergeFrom(other *Filing) {
	prev := *f
	*f = *other
	f.messages = slices.Clone(other.messages)

	if !f.entityLoaded && prev.entityLoaded {
		f.entity, f.entityLoaded = prev.entity, true
	}
	// A loaded but unresolved entity does not erase a known one.
	if f.entity == nil && prev.entity != nil {
		f.entity = prev.entity
	}
	if !f.messagesLoaded && prev.messagesLoaded {
		f.messages, f.messagesLoaded = prev.messages, true
	}
	for _, kind := range FileKinds {
		if f.DownloadPath(kind) == "" {
			f.SetDownloadPath(kind, prev.DownloadPath(kind))
		}
	}
}

// ─── Display ──────────────────────────────────────────────────────────────────

// String renders the entity name (or filing index), the reporting period
// and the language, e.g. "Apetit Oyj 2022 [fi]".
func (f *Filing) String() string {
	var parts []string
	if f.entity != nil && f.entity.Name != "" {
		parts = append(parts, f.entity.Name)
	}
	if len(parts) == 0 && f.FilingIndex != "" {
		parts = append(parts, f.FilingIndex)
	}
	if !f.ReportingDate.IsZero() {
		parts = append(parts, simpleReportingDate(f.ReportingDate))
	}
	if f.Language != "" {
		parts = append(parts, fmt.Sprintf("[%s]", f.Language))
	}
	return strings.Join(parts, " ")
}

func simpleReportingDate(d time.Time) string {
	if d.Month() == time.December && d.Day() == 31 {
		return fmt.Sprintf("%d", d.Year())
	}
	if d.AddDate(0, 0, 1).Month() != d.Month() {
		return d.Format("Jan-2006")
	}
	return d.Format("2006-01-02")
}
