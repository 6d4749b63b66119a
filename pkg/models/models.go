package models

import (
	"encoding/json"
	"sort"
	"time"
)

// CapturedAtUnknown is stored when a document's clinical date could not be
// parsed. Ingestion never fails on a bad date.
const CapturedAtUnknown = "Unknown"

// ValueKind discriminates the two shapes a measurement value can take.
type ValueKind string

const (
	ValueKindNumeric ValueKind = "numeric"
	ValueKindText    ValueKind = "text"
)

// MeasurementValue is a tagged variant: either a decimal number or free text.
// It marshals to a plain JSON number or string.
type MeasurementValue struct {
	Kind ValueKind
	Num  float64
	Text string
}

// NumericValue creates a numeric measurement value.
func NumericValue(n float64) MeasurementValue {
	return MeasurementValue{Kind: ValueKindNumeric, Num: n}
}

// TextValue creates a textual measurement value.
func TextValue(s string) MeasurementValue {
	return MeasurementValue{Kind: ValueKindText, Text: s}
}

// MarshalJSON encodes numeric values as JSON numbers and text as strings.
func (v MeasurementValue) MarshalJSON() ([]byte, error) {
	if v.Kind == ValueKindNumeric {
		return json.Marshal(v.Num)
	}
	return json.Marshal(v.Text)
}

// UnmarshalJSON accepts either a JSON number or a JSON string.
func (v *MeasurementValue) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*v = NumericValue(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*v = TextValue(s)
	return nil
}

// Measurement is a single normalized metric reading within a report.
type Measurement struct {
	Value          MeasurementValue `json:"value"`
	Unit           string           `json:"unit,omitempty"`
	ReferenceRange string           `json:"reference_range,omitempty"`
	Abnormal       bool             `json:"is_abnormal"`
}

// Report is a canonical medical record derived from one uploaded document.
// It is immutable after creation; there is no update path.
type Report struct {
	ID                  string                 `json:"id"`
	OwnerID             string                 `json:"owner_id"`
	ReportType          string                 `json:"report_type,omitempty"`
	SourceFacility      string                 `json:"source_facility,omitempty"`
	CapturedAt          string                 `json:"captured_at"`
	IngestedAt          time.Time              `json:"ingested_at"`
	Values              map[string]Measurement `json:"values"`
	Findings            []string               `json:"findings"`
	Medications         []string               `json:"medications"`
	Diagnoses           []string               `json:"diagnoses"`
	SummaryForPatient   string                 `json:"summary_for_patient"`
	SummaryForClinician string                 `json:"summary_for_clinician"`
}

// SortTimeline orders reports by clinical date descending, with unknown dates
// last and ties broken by ingestion time descending. CapturedAt uses the
// YYYY-MM-DD form, so lexicographic comparison is chronological.
func SortTimeline(reports []*Report) {
	sort.SliceStable(reports, func(i, j int) bool {
		a, b := reports[i], reports[j]
		aKnown := a.CapturedAt != CapturedAtUnknown && a.CapturedAt != ""
		bKnown := b.CapturedAt != CapturedAtUnknown && b.CapturedAt != ""
		if aKnown != bKnown {
			return aKnown
		}
		if aKnown && a.CapturedAt != b.CapturedAt {
			return a.CapturedAt > b.CapturedAt
		}
		return a.IngestedAt.After(b.IngestedAt)
	})
}

// AccessGrant is a capability: an unguessable bearer token scoped to a fixed
// set of report ids and a fixed expiry window. Only Active is ever mutated,
// and only from true to false.
type AccessGrant struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	OwnerID   string    `json:"owner_id"`
	Scope     []string  `json:"scope"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Active    bool      `json:"active"`
}

// Valid reports whether the grant authorizes access at the given instant.
// Expiry is a read-side check; a revoked grant never becomes valid again.
func (g *AccessGrant) Valid(now time.Time) bool {
	return g.Active && now.Before(g.ExpiresAt)
}

// Clone returns a deep copy so store internals are never aliased by callers.
func (g *AccessGrant) Clone() *AccessGrant {
	c := *g
	c.Scope = append([]string(nil), g.Scope...)
	return &c
}
