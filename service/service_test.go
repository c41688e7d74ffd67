package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/sam-berry/ecfr-lake/dao"
	"github.com/sam-berry/ecfr-lake/data"
	"github.com/sam-berry/ecfr-lake/parser"
	"github.com/sam-berry/ecfr-lake/transform"
)

const (
	agenciesFile            = "testdata/agencies.json"
	correctionsFile         = "testdata/corrections.json"
	agenciesChecksumsFile   = "testdata/agencies_with_checksums.json"
	correctionsChecksumFile = "testdata/corrections_with_checksums.json"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := dao.ApplySchema(context.Background(), db); err != nil {
		t.Fatal(err)
	}
	return db
}

func fixedNow() time.Time {
	return time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
}

func loadFixtures(t *testing.T, db *sql.DB) {
	t.Helper()
	s := &IngestionService{Db: db, Now: fixedNow}
	if _, err := s.LoadAll(context.Background(), agenciesFile, correctionsFile); err != nil {
		t.Fatal(err)
	}
}

// expectedChecksums reads the checksums an external exporter wrote into the
// pre-checksummed fixtures, keyed by slug or correction id.
func expectedChecksums(t *testing.T) (map[string]string, map[int64]string) {
	t.Helper()
	content, err := os.ReadFile(agenciesChecksumsFile)
	if err != nil {
		t.Fatal(err)
	}
	agencies, err := parser.ParseAgencies(content)
	if err != nil {
		t.Fatal(err)
	}
	bySlug := map[string]string{}
	for _, a := range agencies {
		bySlug[a["slug"].(string)] = a["checksum"].(string)
		children, _ := a["children"].([]any)
		for _, c := range children {
			child := c.(map[string]any)
			bySlug[child["slug"].(string)] = child["checksum"].(string)
		}
	}

	content, err = os.ReadFile(correctionsChecksumFile)
	if err != nil {
		t.Fatal(err)
	}
	corrections, err := parser.ParseCorrections(content)
	if err != nil {
		t.Fatal(err)
	}
	byID := map[int64]string{}
	for _, c := range corrections {
		id, err := c["id"].(json.Number).Int64()
		if err != nil {
			t.Fatal(err)
		}
		byID[id] = c["checksum"].(string)
	}
	return bySlug, byID
}

func TestLoadAgenciesComputesReferenceChecksums(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	s := &IngestionService{Db: db, Now: fixedNow}

	result, err := s.LoadAgencies(ctx, agenciesFile)
	if err != nil {
		t.Fatal(err)
	}
	if result.Parents != 14 || result.Children != 12 || result.ChecksumsComputed != 26 {
		t.Fatalf("unexpected load result %+v", result)
	}
	if result.Entry.RecordCount != 26 || result.Entry.Entity != data.EntityAgencies || len(result.Entry.FileChecksum) != 64 {
		t.Fatalf("unexpected log entry %+v", result.Entry)
	}
	if rows, err := dao.CountRows(ctx, db, dao.TableAgenciesParsed); err != nil || rows != result.Entry.RecordCount {
		t.Fatalf("log counts %d records, agencies_parsed holds %d (%v)", result.Entry.RecordCount, rows, err)
	}

	bySlug, _ := expectedChecksums(t)
	raw, err := (&dao.AgencyDAO{Db: db}).FindAllRaw(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != 26 {
		t.Fatalf("expected 26 raw agencies, got %d", len(raw))
	}
	for _, a := range raw {
		if a.Checksum != bySlug[a.Slug] {
			t.Fatalf("%s: checksum %s, want %s", a.Slug, a.Checksum, bySlug[a.Slug])
		}
	}
	if bySlug["department-of-commerce-bureau-1"] != "766c141cc49300095a890fd8ce2a968135eaee8402debe67798a3c32b6b4a72b" {
		t.Fatal("fixture checksum changed")
	}
	if bySlug["office-of-government-ethics"] != "2dfebc451a726c698c37aeec2ad70acb3073feb358d0e3b3ec2289b6a0860979" {
		t.Fatal("fixture checksum changed")
	}
}

func TestLoadCorrectionsComputesReferenceChecksums(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	s := &IngestionService{Db: db, Now: fixedNow}

	result, err := s.LoadCorrections(ctx, correctionsFile)
	if err != nil {
		t.Fatal(err)
	}
	if result.Entry.RecordCount != 16 || result.ChecksumsComputed != 16 {
		t.Fatalf("unexpected load result %+v", result)
	}

	_, byID := expectedChecksums(t)
	rows, err := (&dao.CorrectionDAO{Db: db}).FindAllParsed(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 16 {
		t.Fatalf("expected 16 corrections, got %d", len(rows))
	}
	for _, c := range rows {
		if c.Checksum != byID[c.EcfrId] {
			t.Fatalf("%d: checksum %s, want %s", c.EcfrId, c.Checksum, byID[c.EcfrId])
		}
	}

	lags := map[int64]*int64{}
	for _, c := range rows {
		lags[c.EcfrId] = c.LagDays
	}
	if *lags[40000] != 30 || *lags[40009] != -31 || *lags[40002] != 0 {
		t.Fatalf("unexpected lags 40000=%v 40009=%v 40002=%v", *lags[40000], *lags[40009], *lags[40002])
	}
	if lags[40003] != nil || lags[40005] != nil {
		t.Fatal("missing or invalid dates should give a null lag")
	}
	if rows[7].CfrReference != nil || rows[7].Chapter != nil {
		t.Fatalf("correction without references should have no citation: %+v", rows[7])
	}
}

func TestReingestingChecksummedFilesKeepsChecksums(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	s := &IngestionService{Db: db, Now: fixedNow}

	agencies, err := s.LoadAgencies(ctx, agenciesChecksumsFile)
	if err != nil {
		t.Fatal(err)
	}
	corrections, err := s.LoadCorrections(ctx, correctionsChecksumFile)
	if err != nil {
		t.Fatal(err)
	}
	if agencies.ChecksumsComputed != 0 || corrections.ChecksumsComputed != 0 {
		t.Fatalf("existing checksums were recomputed: %d, %d", agencies.ChecksumsComputed, corrections.ChecksumsComputed)
	}

	// Loading again replaces rows instead of duplicating them.
	if _, err := s.LoadAgencies(ctx, agenciesChecksumsFile); err != nil {
		t.Fatal(err)
	}
	if n, _ := dao.CountRows(ctx, db, dao.TableAgenciesParsed); n != 26 {
		t.Fatalf("expected 26 agencies after reload, got %d", n)
	}
	if n, _ := dao.CountRows(ctx, db, dao.TableIngestionLog); n != 3 {
		t.Fatalf("ingestion log should keep every load, got %d entries", n)
	}

	report, err := (&VerificationService{Db: db}).Verify(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !report.OK() {
		t.Fatalf("unexpected mismatches %v", report.Mismatches)
	}
}

func TestFailedLoadLeavesPreviousDataIntact(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	loadFixtures(t, db)

	bad := filepath.Join(t.TempDir(), "agencies.json")
	doc := `{"agencies":[{"slug":"ok","name":"OK"},{"slug":"","name":"No slug"}]}`
	if err := os.WriteFile(bad, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := (&IngestionService{Db: db}).LoadAgencies(ctx, bad)
	var loadErr *LoadError
	if !errors.As(err, &loadErr) || loadErr.SourceFile != bad {
		t.Fatalf("expected LoadError naming %s, got %v", bad, err)
	}
	var recErr *transform.RecordError
	if !errors.As(err, &recErr) || recErr.Index != 1 {
		t.Fatalf("expected RecordError at index 1, got %v", err)
	}

	if n, _ := dao.CountRows(ctx, db, dao.TableAgenciesParsed); n != 26 {
		t.Fatalf("previous agencies should survive a failed load, got %d rows", n)
	}
	if n, _ := dao.CountRows(ctx, db, dao.TableIngestionLog); n != 2 {
		t.Fatalf("failed load must not be logged, got %d entries", n)
	}

	if _, err := (&IngestionService{Db: db}).LoadCorrections(ctx, filepath.Join(t.TempDir(), "missing.json")); !errors.As(err, &loadErr) {
		t.Fatalf("expected LoadError for a missing file, got %v", err)
	}
}

func TestGetAgencyMetric(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	loadFixtures(t, db)
	s := &MetricsService{Db: db}

	if _, err := s.GetAgencyMetric(ctx, "department-of-labor"); !errors.Is(err, ErrMetricsNotComputed) {
		t.Fatalf("expected ErrMetricsNotComputed before refresh, got %v", err)
	}
	if _, err := s.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	m, err := s.GetAgencyMetric(ctx, "department-of-labor")
	if err != nil {
		t.Fatal(err)
	}
	if m.TotalCorrections != 1 || m.Rvi == nil || *m.Rvi != 33.33 {
		t.Fatalf("unexpected metric %+v", m)
	}
	if _, err := s.GetAgencyMetric(ctx, "no-such-agency"); !errors.Is(err, ErrUnknownAgency) {
		t.Fatalf("expected ErrUnknownAgency, got %v", err)
	}
}

func TestRefreshMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	loadFixtures(t, db)

	s := &MetricsService{Db: db}
	if _, err := s.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	stored, err := s.GetAgencyMetrics(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 26 {
		t.Fatalf("expected 26 metrics, got %d", len(stored))
	}
	bySlug := map[string]*data.AgencyMetric{}
	for _, m := range stored {
		bySlug[m.Slug] = m
	}
	tests := []struct {
		slug  string
		total int
		rvi   float64
	}{
		{slug: "department-of-agriculture", total: 2, rvi: 100},
		{slug: "department-of-defense", total: 2, rvi: 200},
		{slug: "department-of-labor", total: 1, rvi: 33.33},
		{slug: "department-of-education", total: 1, rvi: 50},
		{slug: "department-of-the-interior", total: 0, rvi: 0},
	}
	for _, tt := range tests {
		m := bySlug[tt.slug]
		if m == nil || m.TotalCorrections != tt.total || m.Rvi == nil || *m.Rvi != tt.rvi {
			t.Fatalf("%s: got %+v, want total %d rvi %v", tt.slug, m, tt.total, tt.rvi)
		}
	}
	if ethics := bySlug["office-of-government-ethics"]; ethics.Rvi != nil || ethics.CfrReferenceCount != 0 {
		t.Fatalf("agency without references must have no rvi: %+v", ethics)
	}

	trends, err := s.GetYearlyTrends(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(trends) != 2 || trends[0].Year != 2023 || trends[0].CorrectionCount != 5 || *trends[0].AvgLagDays != 12.6 {
		t.Fatalf("unexpected trends %+v", trends)
	}
	if trends[1].CorrectionCount != 11 || *trends[1].AvgLagDays < 6.77 || *trends[1].AvgLagDays > 6.78 {
		t.Fatalf("unexpected 2024 trend %+v", trends[1])
	}
}

func TestVerifyFullPipeline(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	loadFixtures(t, db)
	if _, err := (&MetricsService{Db: db}).Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	files, err := (&ExportService{Db: db, Now: fixedNow}).ExportAll(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 5 || files[0].Name != ExportAgencies || files[0].Records != 26 {
		t.Fatalf("unexpected export files %+v", files)
	}

	report, err := (&VerificationService{Db: db, SampleSize: 10, ExportDir: dir}).Verify(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !report.OK() {
		t.Fatalf("unexpected mismatches %v", report.Mismatches)
	}
	if report.Checked[CheckAgencyChecksum] != 10 || report.Checked[CheckCorrectionChecksum] != 10 {
		t.Fatalf("sample size not honoured: %v", report.Checked)
	}
	if report.Checked[CheckExports] != 5 || report.Checked[CheckRVI] != 26 {
		t.Fatalf("unexpected coverage %v", report.Checked)
	}

	small, err := (&VerificationService{Db: db, SampleSize: 3}).Verify(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if small.Checked[CheckAgencyChecksum] != 10 || small.Checked[CheckCorrectionChecksum] != 10 {
		t.Fatalf("small sample not raised to the minimum: %v", small.Checked)
	}
}

func TestVerifyReportsEveryMismatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	loadFixtures(t, db)
	if _, err := (&MetricsService{Db: db}).Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	tamper := []string{
		`UPDATE agencies_raw SET checksum = 'bad' WHERE slug = 'department-of-energy'`,
		`UPDATE corrections_parsed SET lag_days = 99 WHERE ecfr_id = 40000`,
		`UPDATE agency_metrics SET rvi = 12.5 WHERE slug = 'department-of-labor'`,
		`UPDATE agencies_parsed SET child_count = 5 WHERE slug = 'department-of-state'`,
		`INSERT INTO cfr_references VALUES ('no-such-agency', 1, NULL, NULL, NULL)`,
		`UPDATE correction_trends_yearly SET correction_count = 1 WHERE year = 2023`,
	}
	for _, stmt := range tamper {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ExportAgencies), []byte(`[{}]`), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := (&VerificationService{Db: db, ExportDir: dir}).Verify(ctx)
	if err != nil {
		t.Fatal(err)
	}
	found := map[string]bool{}
	for _, m := range report.Mismatches {
		found[m.Check+"/"+m.Key] = true
	}
	for _, want := range []string{
		CheckAgencyChecksum + "/department-of-energy",
		CheckLagDays + "/40000",
		CheckRVI + "/department-of-labor",
		CheckChildCount + "/department-of-state",
		CheckReferenceIntegrity + "/no-such-agency",
		CheckYearlyTrends + "/2023",
		CheckExports + "/" + ExportAgencies,
		CheckExports + "/" + ExportSummary,
	} {
		if !found[want] {
			t.Fatalf("missing mismatch %s in %v", want, report.Mismatches)
		}
	}
}

func TestSummaryReport(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	loadFixtures(t, db)

	summary, err := (&ExportService{Db: db, Now: fixedNow}).Summary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := data.SummaryTotals{Agencies: 26, ParentAgencies: 14, SubAgencies: 12, CfrReferences: 33, Corrections: 16, Years: 2}
	if summary.Totals != want {
		t.Fatalf("totals %+v, want %+v", summary.Totals, want)
	}
	if len(summary.RecentLoads) != 2 || !summary.RecentLoads[0].IngestedAt.Equal(fixedNow()) {
		t.Fatalf("unexpected recent loads %+v", summary.RecentLoads)
	}
	if len(summary.TopAgencies) == 0 || summary.TopAgencies[0].TotalCorrections != 2 {
		t.Fatalf("unexpected top agencies %+v", summary.TopAgencies)
	}
}

func TestGenerateSummaryReport(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	loadFixtures(t, db)
	if _, err := (&MetricsService{Db: db}).Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	report, err := (&ExportService{Db: db, Now: fixedNow}).GenerateSummaryReport(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"eCFR Lake Summary (2024-06-01 09:30:00 UTC)",
		"Agencies: 26 (14 parent, 12 sub-agencies)",
		"Department of Defense: 2 corrections (RVI: 200.00)",
		"2024: 11 corrections (avg lag: 6.8 days)",
		"2023: 5 corrections (avg lag: 12.6 days)",
		"corrections testdata/corrections.json: 16 records",
	} {
		if !strings.Contains(report, want) {
			t.Fatalf("report missing %q:\n%s", want, report)
		}
	}
	if strings.Index(report, "2024:") > strings.Index(report, "2023:") {
		t.Fatal("years should be listed newest first")
	}
}

func TestVerifyListsStrayYearsInOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	loadFixtures(t, db)
	refresh, err := (&MetricsService{Db: db}).Refresh(ctx)
	if err != nil {
		t.Fatal(err)
	}

	trends := append([]*data.YearlyTrend{}, refresh.Yearly...)
	for _, year := range []int64{2031, 1999, 2015, 2027, 2003} {
		trends = append(trends, &data.YearlyTrend{Year: year, CorrectionCount: 1})
	}
	if err := (&dao.MetricsDAO{Db: db}).ReplaceYearlyTrends(ctx, trends); err != nil {
		t.Fatal(err)
	}

	for run := 0; run < 3; run++ {
		report, err := (&VerificationService{Db: db}).Verify(ctx)
		if err != nil {
			t.Fatal(err)
		}
		var keys []string
		for _, m := range report.Mismatches {
			if m.Check == CheckYearlyTrends {
				keys = append(keys, m.Key)
			}
		}
		if got := strings.Join(keys, ","); got != "1999,2003,2015,2027,2031" {
			t.Fatalf("run %d: stray years reported as %s", run, got)
		}
	}
}
