package model

import (
	"sort"
	"time"
)

// Entity is a filer. Filings holds only the filings observed by queries of
// the current session, never the complete filing history of the entity.
type Entity struct {
	APIID      string    `json:"api_id"`
	Identifier string    `json:"identifier,omitempty"` // LEI code for ESEF filers
	Name       string    `json:"name,omitempty"`
	FilingsURL string    `json:"api_entity_filings_url,omitempty"`
	QueryTime  time.Time `json:"query_time,omitzero"`
	RequestURL string    `json:"request_url,omitempty"`

	filings map[string]*Filing
}

// Key returns the identity of the entity.
func (e *Entity) Key() Key {
	return Key{Kind: KindEntity, APIID: e.APIID}
}

// AddFiling links f to the entity, replacing any earlier object with the
// same api_id.
func (e *Entity) AddFiling(f *Filing) {
	if e.filings == nil {
		e.filings = make(map[string]*Filing)
	}
	e.filings[f.APIID] = f
}

// RemoveFiling unlinks the filing with the given api_id.
func (e *Entity) RemoveFiling(apiID string) {
	delete(e.filings, apiID)
}

// Filings returns the observed filings sorted by api_id.
func (e *Entity) Filings() []*Filing {
	out := make([]*Filing, 0, len(e.filings))
	for _, f := range e.filings {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].APIID < out[j].APIID })
	return out
}

func (e *Entity) String() string {
	switch {
	case e.Name != "" && e.Identifier != "":
		return e.Name + " (" + e.Identifier + ")"
	case e.Name != "":
		return e.Name
	default:
		return e.Identifier
	}
}
