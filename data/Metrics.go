package data

import "time"

// AgencyMetric is one row of agency_metrics. Rvi is nil when the agency has
// no CFR references.
type AgencyMetric struct {
	Slug              string   `json:"slug"`
	Name              string   `json:"name"`
	CfrReferenceCount int      `json:"cfr_reference_count"`
	TotalCorrections  int      `json:"total_corrections"`
	Rvi               *float64 `json:"rvi"`
}

// YearlyTrend is one row of correction_trends_yearly.
type YearlyTrend struct {
	Year            int64    `json:"year"`
	CorrectionCount int      `json:"correction_count"`
	AvgLagDays      *float64 `json:"avg_lag_days"`
}

// SummaryReport is the body of summary_report.json.
type SummaryReport struct {
	GeneratedAt    time.Time            `json:"generated_at"`
	Totals         SummaryTotals        `json:"totals"`
	AverageLagDays *float64             `json:"average_lag_days"`
	TopAgencies    []*AgencyMetric      `json:"top_agencies"`
	RecentLoads    []*IngestionLogEntry `json:"recent_loads"`
}

type SummaryTotals struct {
	Agencies       int `json:"agencies"`
	ParentAgencies int `json:"parent_agencies"`
	SubAgencies    int `json:"sub_agencies"`
	CfrReferences  int `json:"cfr_references"`
	Corrections    int `json:"corrections"`
	Years          int `json:"years"`
}
