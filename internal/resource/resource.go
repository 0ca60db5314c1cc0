// Package resource turns raw JSON:API records into typed filings,
// entities and validation messages, and links them to each other as the
// query's inclusion flags allow.
//
// The record constructors are pure: the same record and origin always
// give the same object, and nothing is fetched.
package resource

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/derickschaefer/filings/internal/jsonapi"
	"github.com/derickschaefer/filings/internal/model"
	"github.com/derickschaefer/filings/internal/pager"
	"github.com/derickschaefer/filings/internal/util"
)

// Origin records where a record came from.
type Origin struct {
	RequestURL string
	QueryTime  time.Time
}

// ─── Record constructors ──────────────────────────────────────────────────────

// FilingFromRecord builds a filing. Relations are left unloaded; the
// Materializer links them.
func FilingFromRecord(r jsonapi.Resource, o Origin) (*model.Filing, error) {
	if err := checkType(r, model.KindFiling); err != nil {
		return nil, err
	}
	f := &model.Filing{
		APIID:              r.ID,
		Country:            r.String("country"),
		FilingIndex:        r.String("fxo_id"),
		LastEndDate:        parseDate(r.String("period_end"), "period_end"),
		ErrorCount:         r.Int("error_count"),
		InconsistencyCount: r.Int("inconsistency_count"),
		WarningCount:       r.Int("warning_count"),
		AddedTime:          parseTime(r.String("date_added"), "date_added"),
		ProcessedTime:      parseTime(r.String("processed"), "processed"),
		JSONURL:            absURL(r.String("json_url"), o.RequestURL),
		PackageURL:         absURL(r.String("package_url"), o.RequestURL),
		ViewerURL:          absURL(r.String("viewer_url"), o.RequestURL),
		XHTMLURL:           absURL(r.String("report_url"), o.RequestURL),
		PackageSHA256:      r.String("sha256"),
		QueryTime:          o.QueryTime,
		RequestURL:         o.RequestURL,
	}
	if refs := r.Rel("entity"); len(refs) > 0 {
		f.EntityAPIID = refs[0].ID
	}
	f.Language = DeriveLanguage(f.PackageURL, f.XHTMLURL, f.Country)
	f.ReportingDate = DeriveReportingDate(f.PackageURL, f.LastEndDate)
	return f, nil
}

// EntityFromRecord builds an entity.
func EntityFromRecord(r jsonapi.Resource, o Origin) (*model.Entity, error) {
	if err := checkType(r, model.KindEntity); err != nil {
		return nil, err
	}
	return &model.Entity{
		APIID:      r.ID,
		Identifier: r.String("identifier"),
		Name:       r.String("name"),
		FilingsURL: absURL(r.RelLink("filings"), o.RequestURL),
		QueryTime:  o.QueryTime,
		RequestURL: o.RequestURL,
	}, nil
}

// MessageFromRecord builds a validation message, parsing the derived
// fields of the codes that carry them.
func MessageFromRecord(r jsonapi.Resource, o Origin) (*model.ValidationMessage, error) {
	if err := checkType(r, model.KindValidationMessage); err != nil {
		return nil, err
	}
	m := &model.ValidationMessage{
		APIID:      r.ID,
		Severity:   r.String("severity"),
		Text:       strings.TrimSpace(r.String("message")),
		Code:       r.String("code"),
		QueryTime:  o.QueryTime,
		RequestURL: o.RequestURL,
	}
	deriveMessageFields(m)
	return m, nil
}

// typeKinds maps resource type names, singular or plural, to kinds.
var typeKinds = map[string]model.Kind{
	"filing":              model.KindFiling,
	"filings":             model.KindFiling,
	"entity":              model.KindEntity,
	"entities":            model.KindEntity,
	"validation_message":  model.KindValidationMessage,
	"validation_messages": model.KindValidationMessage,
}

func checkType(r jsonapi.Resource, want model.Kind) error {
	if typeKinds[r.NormType()] == want {
		return nil
	}
	return fmt.Errorf("record %s is of type %q, not %s", r.ID, r.Type, want)
}

// ─── Value parsing ────────────────────────────────────────────────────────────

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// parseTime parses an ISO 8601 timestamp. Timestamps without a zone are
// taken as UTC. Unparseable values are logged and left zero.
func parseTime(s, attr string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	slog.Warn("could not parse timestamp", "attribute", attr, "value", s)
	return time.Time{}
}

func parseDate(s, attr string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := util.ParseDate(s)
	if err != nil {
		slog.Warn("could not parse date", "attribute", attr, "value", s)
		return time.Time{}
	}
	return t
}

// absURL resolves a possibly relative URL against base.
func absURL(ref, base string) string {
	if ref == "" || base == "" {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// ─── Materializer ─────────────────────────────────────────────────────────────

// Materializer builds filings from pages and links their relations. It
// keeps the entities and messages of the session by api_id so that a
// related record delivered on an earlier page is shared, not duplicated.
type Materializer struct {
	include  model.Include
	entities map[string]*model.Entity
	messages map[string]*model.ValidationMessage
}

// NewMaterializer creates a Materializer for a query with the given
// inclusion flags.
func NewMaterializer(include model.Include) *Materializer {
	return &Materializer{
		include:  include,
		entities: make(map[string]*model.Entity),
		messages: make(map[string]*model.ValidationMessage),
	}
}

// Page materializes the filings of p. A relation is loaded only when its
// flag was requested; a related record missing from the response is
// logged and left out.
func (m *Materializer) Page(p *pager.Page) []*model.Filing {
	o := Origin{RequestURL: p.RequestURL, QueryTime: p.QueryTime}

	for _, r := range p.Included {
		switch typeKinds[r.NormType()] {
		case model.KindEntity:
			if e, err := EntityFromRecord(r, o); err == nil {
				m.entities[e.APIID] = e
			}
		case model.KindValidationMessage:
			if vm, err := MessageFromRecord(r, o); err == nil {
				m.messages[vm.APIID] = vm
			}
		default:
			slog.Debug("skipping included record", "type", r.Type, "id", r.ID)
		}
	}

	out := make([]*model.Filing, 0, len(p.Records))
	for _, r := range p.Records {
		f, err := FilingFromRecord(r, o)
		if err != nil {
			slog.Warn("skipping record", "err", err)
			continue
		}
		if m.include.Has(model.IncludeEntity) {
			e := m.entities[f.EntityAPIID]
			if e == nil && f.EntityAPIID != "" {
				slog.Warn("entity not found in response", "filing", f.APIID, "entity", f.EntityAPIID)
			}
			f.SetEntity(e)
		}
		if m.include.Has(model.IncludeValidationMessages) {
			refs := r.Rel("validation_messages")
			msgs := make([]*model.ValidationMessage, 0, len(refs))
			for _, ref := range refs {
				vm := m.messages[ref.ID]
				if vm == nil {
					slog.Warn("validation message not found in response", "filing", f.APIID, "message", ref.ID)
					continue
				}
				msgs = append(msgs, vm)
			}
			f.SetValidationMessages(msgs)
		}
		out = append(out, f)
	}
	return out
}
