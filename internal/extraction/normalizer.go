package extraction

import (
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/savegress/recordvault/pkg/models"
)

var strictDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Fallback layouts tried when the clinical date is not already YYYY-MM-DD.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"02-01-2006",
}

// Normalizer converts raw extraction payloads into canonical reports. It is
// deterministic and total: malformed input degrades field by field, it never
// rejects a whole document.
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer creates a new normalizer
func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

// WithClock overrides the ingestion clock, for tests.
func (n *Normalizer) WithClock(now func() time.Time) *Normalizer {
	n.now = now
	return n
}

// Normalize builds a canonical report from an unvalidated extraction payload.
// A fresh id and ingestion timestamp are assigned; collections are never nil.
func (n *Normalizer) Normalize(ownerID string, raw *RawReport) *models.Report {
	report := &models.Report{
		ID:                  uuid.New().String(),
		OwnerID:             ownerID,
		ReportType:          raw.ReportType,
		SourceFacility:      raw.SourceFacility,
		CapturedAt:          normalizeDate(raw.CapturedAt),
		IngestedAt:          n.now().UTC(),
		Values:              make(map[string]models.Measurement, len(raw.Values)),
		Findings:            copyStrings(raw.Findings),
		Medications:         copyStrings(raw.Medications),
		Diagnoses:           copyStrings(raw.Diagnoses),
		SummaryForPatient:   raw.SummaryForPatient,
		SummaryForClinician: raw.SummaryForClinician,
	}

	for name, rm := range raw.Values {
		report.Values[name] = models.Measurement{
			Value:          coerceValue(rm.Value),
			Unit:           rm.Unit,
			ReferenceRange: rm.ReferenceRange,
			Abnormal:       coerceAbnormal(rm.Abnormal),
		}
	}

	return report
}

// coerceValue maps the loosely-typed measurement value onto the tagged
// variant. Strings that fully parse as a finite decimal number become
// numeric; ParseFloat also accepts "NaN" and infinity tokens, which have no
// JSON representation, so those stay text.
func coerceValue(v interface{}) models.MeasurementValue {
	switch val := v.(type) {
	case float64:
		return models.NumericValue(val)
	case int:
		return models.NumericValue(float64(val))
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return models.NumericValue(f)
		}
		return models.TextValue(val)
	case nil:
		return models.TextValue("")
	default:
		return models.TextValue("")
	}
}

// coerceAbnormal is strict: only boolean true or the exact token "true" count.
func coerceAbnormal(v interface{}) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val == "true"
	default:
		return false
	}
}

// normalizeDate keeps strict YYYY-MM-DD dates as-is, reformats anything a
// known layout can parse, and falls back to the Unknown sentinel. Losing a
// date is less harmful than losing the whole record.
func normalizeDate(s string) string {
	if strictDatePattern.MatchString(s) {
		return s
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return models.CapturedAtUnknown
}

func copyStrings(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
