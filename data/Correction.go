package data

// CorrectionRaw is the verbatim correction record as stored in corrections_raw.
type CorrectionRaw struct {
	Id       int64  `json:"id"`
	EcfrId   int64  `json:"ecfr_id"`
	Data     string `json:"-"`
	Checksum string `json:"checksum"`
}

// CorrectionRow is an enriched correction in corrections_parsed.
// Dates are kept as the source strings; LagDays is derived from them.
type CorrectionRow struct {
	Id               int64   `json:"id"`
	EcfrId           int64   `json:"ecfr_id"`
	CfrReference     *string `json:"cfr_reference"`
	Title            *int64  `json:"title"`
	Chapter          *string `json:"chapter"`
	Part             *string `json:"part"`
	Section          *string `json:"section"`
	CorrectiveAction *string `json:"corrective_action"`
	ErrorOccurred    *string `json:"error_occurred"`
	ErrorCorrected   *string `json:"error_corrected"`
	LagDays          *int64  `json:"lag_days"`
	FrCitation       *string `json:"fr_citation"`
	Year             *int64  `json:"year"`
	Checksum         string  `json:"checksum"`
}
