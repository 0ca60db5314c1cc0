package model

import "time"

// Validation message codes with derived fields.
const (
	CodeCalcInconsistency = "xbrl.5.2.5.2:calcInconsistency"
	CodeDuplicateFacts    = "message:tech_duplicated_facts1"
)

// ValidationMessage is one issue found when the filing was validated.
// Severity is ERROR, WARNING or INCONSISTENCY.
//
// The Calc* fields are parsed from Text for calculation inconsistencies
// and the Duplicate* fields for duplicated facts; they are nil/empty for
// every other code.
type ValidationMessage struct {
	APIID       string `json:"api_id"`
	Severity    string `json:"severity,omitempty"`
	Text        string `json:"text,omitempty"`
	Code        string `json:"code,omitempty"`
	FilingAPIID string `json:"filing_api_id,omitempty"`

	CalcComputedSum     *float64 `json:"calc_computed_sum,omitempty"`
	CalcReportedSum     *float64 `json:"calc_reported_sum,omitempty"`
	CalcContextID       string   `json:"calc_context_id,omitempty"`
	CalcLineItem        string   `json:"calc_line_item,omitempty"`
	CalcShortRole       string   `json:"calc_short_role,omitempty"`
	CalcUnreportedItems []string `json:"calc_unreported_items,omitempty"`
	DuplicateGreater    *float64 `json:"duplicate_greater,omitempty"`
	DuplicateLesser     *float64 `json:"duplicate_lesser,omitempty"`

	QueryTime  time.Time `json:"query_time,omitzero"`
	RequestURL string    `json:"request_url,omitempty"`

	filing *Filing
}

// Key returns the identity of the message.
func (m *ValidationMessage) Key() Key {
	return Key{Kind: KindValidationMessage, APIID: m.APIID}
}

// Filing returns the owning filing, or nil when the message was not
// linked to one.
func (m *ValidationMessage) Filing() *Filing { return m.filing }

func (m *ValidationMessage) String() string { return m.Text }
