package extraction

// RawReport is the payload returned by the external document-understanding
// service. Field types are deliberately loose: the service emits whatever its
// model produced, and the normalizer is responsible for coercion.
type RawReport struct {
	ReportType          string                    `json:"report_type"`
	SourceFacility      string                    `json:"source_facility"`
	CapturedAt          string                    `json:"captured_at"`
	Values              map[string]RawMeasurement `json:"values"`
	Findings            []string                  `json:"findings"`
	Medications         []string                  `json:"medications"`
	Diagnoses           []string                  `json:"diagnoses"`
	SummaryForPatient   string                    `json:"summary_for_patient"`
	SummaryForClinician string                    `json:"summary_for_clinician"`
}

// RawMeasurement is a single unvalidated metric reading. Value may be a JSON
// number or string; Abnormal may be a boolean or a string token.
type RawMeasurement struct {
	Value          interface{} `json:"value"`
	Unit           string      `json:"unit"`
	ReferenceRange string      `json:"reference_range"`
	Abnormal       interface{} `json:"is_abnormal"`
}

// ExtractRequest identifies the document to analyze.
type ExtractRequest struct {
	DocumentURI string `json:"document_uri"`
	MimeType    string `json:"mime_type"`
}
