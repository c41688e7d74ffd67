package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sam-berry/ecfr-lake/dao"
	"github.com/sam-berry/ecfr-lake/data"
)

const reportRecentYears = 5

// GenerateSummaryReport renders the summary and the latest yearly trends as
// plain text.
func (s *ExportService) GenerateSummaryReport(ctx context.Context) (string, error) {
	summary, err := s.Summary(ctx)
	if err != nil {
		return "", err
	}
	trends, err := (&dao.MetricsDAO{Db: s.Db}).FindYearlyTrends(ctx)
	if err != nil {
		return "", err
	}
	return renderSummary(summary, trends), nil
}

func renderSummary(summary *data.SummaryReport, trends []*data.YearlyTrend) string {
	var report strings.Builder
	t := summary.Totals

	report.WriteString(fmt.Sprintf("eCFR Lake Summary (%s)\n\n", summary.GeneratedAt.Format("2006-01-02 15:04:05 MST")))
	report.WriteString(fmt.Sprintf("Agencies: %d (%d parent, %d sub-agencies)\n", t.Agencies, t.ParentAgencies, t.SubAgencies))
	report.WriteString(fmt.Sprintf("CFR references: %d\n", t.CfrReferences))
	report.WriteString(fmt.Sprintf("Corrections: %d across %d years\n", t.Corrections, t.Years))
	if summary.AverageLagDays != nil {
		report.WriteString(fmt.Sprintf("Average lag: %.1f days\n", *summary.AverageLagDays))
	}

	if len(summary.TopAgencies) > 0 {
		report.WriteString("\nTop agencies by correction count:\n")
		for _, m := range summary.TopAgencies {
			report.WriteString(fmt.Sprintf("  %s: %d corrections (RVI: %s)\n", m.Name, m.TotalCorrections, formatRVI(m.Rvi)))
		}
	}

	if len(trends) > 0 {
		report.WriteString("\nRecent correction trends:\n")
		start := len(trends) - reportRecentYears
		if start < 0 {
			start = 0
		}
		for i := len(trends) - 1; i >= start; i-- {
			tr := trends[i]
			lag := "n/a"
			if tr.AvgLagDays != nil {
				lag = fmt.Sprintf("%.1f", *tr.AvgLagDays)
			}
			report.WriteString(fmt.Sprintf("  %d: %d corrections (avg lag: %s days)\n", tr.Year, tr.CorrectionCount, lag))
		}
	}

	if len(summary.RecentLoads) > 0 {
		report.WriteString("\nRecent loads:\n")
		for _, l := range summary.RecentLoads {
			report.WriteString(fmt.Sprintf(
				"  %s %s %s: %d records (sha256 %s)\n",
				l.IngestedAt.Format("2006-01-02 15:04:05"),
				l.Entity,
				l.SourceFile,
				l.RecordCount,
				l.FileChecksum,
			))
		}
	}
	return report.String()
}
