package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/gofiber/fiber/v2/log"
	"github.com/sam-berry/ecfr-lake/checksum"
	"github.com/sam-berry/ecfr-lake/config"
	"github.com/sam-berry/ecfr-lake/dao"
	"github.com/sam-berry/ecfr-lake/data"
	"github.com/sam-berry/ecfr-lake/metrics"
	"github.com/sam-berry/ecfr-lake/parser"
	"github.com/sam-berry/ecfr-lake/transform"
)

// Names of the verification checks as they appear in a report.
const (
	CheckAgencyChecksum     = "agency_checksum"
	CheckCorrectionChecksum = "correction_checksum"
	CheckChecksumPresent    = "checksum_present"
	CheckUniqueSlug         = "unique_slug"
	CheckUniqueCorrectionId = "unique_correction_id"
	CheckReferenceIntegrity = "reference_integrity"
	CheckParentLink         = "parent_link"
	CheckChildCount         = "child_count"
	CheckReferenceCount     = "reference_count"
	CheckLagDays            = "lag_days"
	CheckRVI                = "rvi"
	CheckAgencyMetrics      = "agency_metrics"
	CheckYearlyTrends       = "yearly_trends"
	CheckExports            = "exports"
)

// VerificationService re-derives checksums and derived fields from stored
// rows and reports every disagreement. SampleSize limits the checksum
// round trip to the first rows by id, never fewer than config.MinSampleSize;
// 0 checks them all. Exports are checked
// only when ExportDir is set.
type VerificationService struct {
	Db         *sql.DB
	SampleSize int
	ExportDir  string
}

func (s *VerificationService) Verify(ctx context.Context) (*data.VerificationReport, error) {
	s.logInfo("Start")
	report := data.NewVerificationReport()

	agencies, refs, corrections, err := loadFlattened(ctx, s.Db)
	if err != nil {
		return nil, err
	}

	if err := s.verifyAgencyChecksums(ctx, report); err != nil {
		return nil, err
	}
	if err := s.verifyCorrectionChecksums(ctx, report); err != nil {
		return nil, err
	}
	verifyAgencyStructure(report, agencies, refs)
	verifyCorrections(report, corrections)
	if err := s.verifyMetrics(ctx, report, agencies, refs, corrections); err != nil {
		return nil, err
	}
	if s.ExportDir != "" {
		if err := s.verifyExports(ctx, report); err != nil {
			return nil, err
		}
	}

	if report.OK() {
		s.logInfo("Complete - no mismatches")
	} else {
		for _, m := range report.Mismatches {
			log.Warnf("Verification: %s", m)
		}
		s.logInfo(fmt.Sprintf("Complete - %d mismatches", len(report.Mismatches)))
	}
	return report, nil
}

func (s *VerificationService) verifyAgencyChecksums(ctx context.Context, report *data.VerificationReport) error {
	raw, err := (&dao.AgencyDAO{Db: s.Db}).FindAllRaw(ctx, s.sampleLimit())
	if err != nil {
		return fmt.Errorf("failed to read raw agencies, %w", err)
	}
	report.Examined(CheckAgencyChecksum, len(raw))
	for _, a := range raw {
		record, err := parser.DecodeRecord([]byte(a.Data))
		if err != nil {
			report.Add(data.Mismatch{Check: CheckAgencyChecksum, Key: a.Slug, Detail: err.Error()})
			continue
		}
		sum, err := checksum.AgencyChecksum(record)
		if err != nil {
			report.Add(data.Mismatch{Check: CheckAgencyChecksum, Key: a.Slug, Detail: err.Error()})
			continue
		}
		if sum != a.Checksum {
			report.Add(data.Mismatch{Check: CheckAgencyChecksum, Key: a.Slug, Expected: a.Checksum, Actual: sum})
		}
		if stored, _ := record[checksum.FieldChecksum].(string); stored != a.Checksum {
			report.Add(data.Mismatch{
				Check:    CheckAgencyChecksum,
				Key:      a.Slug,
				Expected: a.Checksum,
				Actual:   stored,
				Detail:   "record data carries a different checksum",
			})
		}
	}
	return nil
}

func (s *VerificationService) verifyCorrectionChecksums(ctx context.Context, report *data.VerificationReport) error {
	raw, err := (&dao.CorrectionDAO{Db: s.Db}).FindAllRaw(ctx, s.sampleLimit())
	if err != nil {
		return fmt.Errorf("failed to read raw corrections, %w", err)
	}
	report.Examined(CheckCorrectionChecksum, len(raw))
	for _, c := range raw {
		key := strconv.FormatInt(c.EcfrId, 10)
		record, err := parser.DecodeRecord([]byte(c.Data))
		if err != nil {
			report.Add(data.Mismatch{Check: CheckCorrectionChecksum, Key: key, Detail: err.Error()})
			continue
		}
		sum, err := checksum.CorrectionChecksum(record)
		if err != nil {
			report.Add(data.Mismatch{Check: CheckCorrectionChecksum, Key: key, Detail: err.Error()})
			continue
		}
		if sum != c.Checksum {
			report.Add(data.Mismatch{Check: CheckCorrectionChecksum, Key: key, Expected: c.Checksum, Actual: sum})
		}
	}
	return nil
}

func verifyAgencyStructure(report *data.VerificationReport, agencies []*data.AgencyRow, refs []*data.CfrReference) {
	bySlug := make(map[string][]*data.AgencyRow, len(agencies))
	children := make(map[string]int)
	for _, a := range agencies {
		bySlug[a.Slug] = append(bySlug[a.Slug], a)
		if a.ParentSlug != nil {
			children[*a.ParentSlug]++
		}
	}
	refCounts := make(map[string]int)
	for _, r := range refs {
		refCounts[r.AgencySlug]++
	}

	report.Examined(CheckChecksumPresent, len(agencies))
	report.Examined(CheckUniqueSlug, len(agencies))
	report.Examined(CheckChildCount, len(agencies))
	report.Examined(CheckReferenceCount, len(agencies))
	for _, a := range agencies {
		if a.Checksum == "" {
			report.Add(data.Mismatch{Check: CheckChecksumPresent, Key: a.Slug, Detail: "agency without checksum"})
		}
		if a.ChildCount != children[a.Slug] {
			report.Add(data.Mismatch{
				Check:    CheckChildCount,
				Key:      a.Slug,
				Expected: strconv.Itoa(children[a.Slug]),
				Actual:   strconv.Itoa(a.ChildCount),
			})
		}
		if a.CfrReferenceCount != refCounts[a.Slug] {
			report.Add(data.Mismatch{
				Check:    CheckReferenceCount,
				Key:      a.Slug,
				Expected: strconv.Itoa(refCounts[a.Slug]),
				Actual:   strconv.Itoa(a.CfrReferenceCount),
			})
		}
		if a.ParentSlug == nil {
			continue
		}
		report.Examined(CheckParentLink, 1)
		parents := bySlug[*a.ParentSlug]
		switch {
		case len(parents) != 1:
			report.Add(data.Mismatch{Check: CheckParentLink, Key: a.Slug, Detail: fmt.Sprintf("%d agencies match parent %s", len(parents), *a.ParentSlug)})
		case !parents[0].IsTopLevel():
			report.Add(data.Mismatch{Check: CheckParentLink, Key: a.Slug, Detail: "parent is itself a sub-agency"})
		case a.ParentId == nil || *a.ParentId != parents[0].Id:
			report.Add(data.Mismatch{Check: CheckParentLink, Key: a.Slug, Expected: strconv.FormatInt(parents[0].Id, 10), Actual: formatInt(a.ParentId)})
		}
	}

	for _, slug := range sortedKeys(bySlug) {
		if n := len(bySlug[slug]); n > 1 {
			report.Add(data.Mismatch{Check: CheckUniqueSlug, Key: slug, Detail: fmt.Sprintf("%d agencies share the slug", n)})
		}
	}

	report.Examined(CheckReferenceIntegrity, len(refs))
	for _, slug := range sortedKeys(refCounts) {
		if n := len(bySlug[slug]); n != 1 {
			report.Add(data.Mismatch{Check: CheckReferenceIntegrity, Key: slug, Detail: fmt.Sprintf("references match %d agencies", n)})
		}
	}
}

func verifyCorrections(report *data.VerificationReport, corrections []*data.CorrectionRow) {
	seen := make(map[int64]int, len(corrections))
	report.Examined(CheckUniqueCorrectionId, len(corrections))
	report.Examined(CheckLagDays, len(corrections))
	for _, c := range corrections {
		key := strconv.FormatInt(c.EcfrId, 10)
		seen[c.EcfrId]++
		if seen[c.EcfrId] == 2 {
			report.Add(data.Mismatch{Check: CheckUniqueCorrectionId, Key: key, Detail: "id stored more than once"})
		}
		if c.Checksum == "" {
			report.Add(data.Mismatch{Check: CheckChecksumPresent, Key: key, Detail: "correction without checksum"})
		}

		want := transform.LagDays(c.ErrorOccurred, c.ErrorCorrected)
		if !equalInt(want, c.LagDays) {
			report.Add(data.Mismatch{Check: CheckLagDays, Key: key, Expected: formatInt(want), Actual: formatInt(c.LagDays)})
		}
	}
	report.Examined(CheckChecksumPresent, len(corrections))
}

func (s *VerificationService) verifyMetrics(
	ctx context.Context,
	report *data.VerificationReport,
	agencies []*data.AgencyRow,
	refs []*data.CfrReference,
	corrections []*data.CorrectionRow,
) error {
	metricsDAO := &dao.MetricsDAO{Db: s.Db}
	stored, err := metricsDAO.FindAgencyMetrics(ctx)
	if err != nil {
		return fmt.Errorf("failed to read agency metrics, %w", err)
	}

	report.Examined(CheckRVI, len(stored))
	for _, m := range stored {
		want := metrics.RVI(m.TotalCorrections, m.CfrReferenceCount)
		if !equalFloat(want, m.Rvi) {
			report.Add(data.Mismatch{Check: CheckRVI, Key: m.Slug, Expected: formatFloat(want), Actual: formatFloat(m.Rvi)})
		}
	}

	if len(stored) > 0 {
		derived := metrics.AgencyMetrics(agencies, refs, corrections)
		storedBySlug := make(map[string]*data.AgencyMetric, len(stored))
		for _, m := range stored {
			storedBySlug[m.Slug] = m
		}
		report.Examined(CheckAgencyMetrics, len(derived))
		for _, want := range derived {
			got, ok := storedBySlug[want.Slug]
			switch {
			case !ok:
				report.Add(data.Mismatch{Check: CheckAgencyMetrics, Key: want.Slug, Detail: "no stored metric"})
			case got.TotalCorrections != want.TotalCorrections || got.CfrReferenceCount != want.CfrReferenceCount:
				report.Add(data.Mismatch{
					Check:    CheckAgencyMetrics,
					Key:      want.Slug,
					Expected: fmt.Sprintf("%d/%d", want.TotalCorrections, want.CfrReferenceCount),
					Actual:   fmt.Sprintf("%d/%d", got.TotalCorrections, got.CfrReferenceCount),
					Detail:   "total corrections / reference count",
				})
			}
		}
	}

	trends, err := metricsDAO.FindYearlyTrends(ctx)
	if err != nil {
		return fmt.Errorf("failed to read yearly trends, %w", err)
	}
	if len(trends) == 0 && len(stored) == 0 {
		return nil
	}
	derived := metrics.YearlyTrends(corrections)
	storedByYear := make(map[int64]*data.YearlyTrend, len(trends))
	for _, t := range trends {
		storedByYear[t.Year] = t
	}
	report.Examined(CheckYearlyTrends, len(derived))
	for _, want := range derived {
		key := strconv.FormatInt(want.Year, 10)
		got, ok := storedByYear[want.Year]
		switch {
		case !ok:
			report.Add(data.Mismatch{Check: CheckYearlyTrends, Key: key, Detail: "no stored trend"})
		case got.CorrectionCount != want.CorrectionCount:
			report.Add(data.Mismatch{Check: CheckYearlyTrends, Key: key, Expected: strconv.Itoa(want.CorrectionCount), Actual: strconv.Itoa(got.CorrectionCount)})
		case !equalFloat(want.AvgLagDays, got.AvgLagDays):
			report.Add(data.Mismatch{Check: CheckYearlyTrends, Key: key, Expected: formatFloat(want.AvgLagDays), Actual: formatFloat(got.AvgLagDays), Detail: "average lag"})
		}
		delete(storedByYear, want.Year)
	}
	leftover := make([]int64, 0, len(storedByYear))
	for year := range storedByYear {
		leftover = append(leftover, year)
	}
	sort.Slice(leftover, func(i, j int) bool { return leftover[i] < leftover[j] })
	for _, year := range leftover {
		report.Add(data.Mismatch{Check: CheckYearlyTrends, Key: strconv.FormatInt(year, 10), Detail: "stored year has no corrections"})
	}
	return nil
}

func (s *VerificationService) verifyExports(ctx context.Context, report *data.VerificationReport) error {
	names := []string{ExportAgencies, ExportCorrections, ExportAgencyMetrics, ExportTimeSeries, ExportSummary}
	report.Examined(CheckExports, len(names))
	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(s.ExportDir, name))
		if err != nil {
			report.Add(data.Mismatch{Check: CheckExports, Key: name, Detail: "missing export file"})
			continue
		}
		table, isList := ExportTables[name]
		if !isList {
			var body map[string]any
			if err := json.Unmarshal(content, &body); err != nil || body == nil {
				report.Add(data.Mismatch{Check: CheckExports, Key: name, Detail: "not a JSON object"})
			}
			continue
		}

		var items []json.RawMessage
		if err := json.Unmarshal(content, &items); err != nil || items == nil {
			report.Add(data.Mismatch{Check: CheckExports, Key: name, Detail: "not a JSON array"})
			continue
		}
		n, err := dao.CountRows(ctx, s.Db, table)
		if err != nil {
			return err
		}
		if n != len(items) {
			report.Add(data.Mismatch{Check: CheckExports, Key: name, Expected: strconv.Itoa(n), Actual: strconv.Itoa(len(items)), Detail: "record count differs from " + table})
		}
	}
	return nil
}

// sampleLimit raises a positive sample below the minimum to the minimum.
func (s *VerificationService) sampleLimit() int {
	if s.SampleSize > 0 && s.SampleSize < config.MinSampleSize {
		return config.MinSampleSize
	}
	return s.SampleSize
}

func equalInt(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return metrics.WithinTolerance(*a, *b)
}

func formatInt(v *int64) string {
	if v == nil {
		return "null"
	}
	return strconv.FormatInt(*v, 10)
}

func formatFloat(v *float64) string {
	if v == nil {
		return "null"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *VerificationService) logInfo(message string) {
	log.Info(fmt.Sprintf("Verification: %v", message))
}
