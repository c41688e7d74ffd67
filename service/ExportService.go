package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/sam-berry/ecfr-lake/concurrent"
	"github.com/sam-berry/ecfr-lake/dao"
	"github.com/sam-berry/ecfr-lake/data"
	"github.com/sam-berry/ecfr-lake/metrics"
)

const (
	ExportAgencies      = "agencies.json"
	ExportCorrections   = "corrections.json"
	ExportAgencyMetrics = "agency_metrics.json"
	ExportTimeSeries    = "time_series.json"
	ExportSummary       = "summary_report.json"
)

// ExportTables maps each list export to the table whose row count it must
// match. The summary is an object and has no table.
var ExportTables = map[string]string{
	ExportAgencies:      dao.TableAgenciesParsed,
	ExportCorrections:   dao.TableCorrectionsParsed,
	ExportAgencyMetrics: dao.TableAgencyMetrics,
	ExportTimeSeries:    dao.TableYearlyTrends,
}

const (
	summaryTopAgencies = 10
	summaryRecentLoads = 10
)

type ExportService struct {
	Db  *sql.DB
	Now func() time.Time
}

type ExportFile struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Records int    `json:"records"`
}

type exportJob struct {
	name  string
	build func(ctx context.Context) (any, int, error)
}

// ExportAll writes every export file into dir concurrently. Files are written
// through a temporary name so a reader never sees a partial file.
func (s *ExportService) ExportAll(ctx context.Context, dir string) ([]ExportFile, error) {
	s.logInfo(fmt.Sprintf("Start - exporting to %s", dir))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export dir %s, %w", dir, err)
	}

	jobs := []exportJob{
		{name: ExportAgencies, build: s.buildAgencies},
		{name: ExportCorrections, build: s.buildCorrections},
		{name: ExportAgencyMetrics, build: s.buildAgencyMetrics},
		{name: ExportTimeSeries, build: s.buildTimeSeries},
		{name: ExportSummary, build: s.buildSummary},
	}

	runner := concurrent.NewRunner[exportJob, ExportFile](concurrent.RunnerConfig{
		MaxConcurrency: 3,
		LogPrefix:      "Export",
	})
	result := runner.Run(ctx, jobs, func(
		ctx context.Context,
		job exportJob,
		messages chan<- string,
		results chan<- ExportFile,
		errors chan<- error,
	) {
		body, records, err := job.build(ctx)
		if err != nil {
			errors <- fmt.Errorf("%s: %w", job.name, err)
			return
		}
		path := filepath.Join(dir, job.name)
		if err := writeJSONFile(path, body); err != nil {
			errors <- fmt.Errorf("%s: %w", job.name, err)
			return
		}
		messages <- fmt.Sprintf("Wrote %s (%d records)", job.name, records)
		results <- ExportFile{Name: job.name, Path: path, Records: records}
	})

	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to export, %w", err)
	}

	files := result.Results
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	s.logInfo(fmt.Sprintf("Complete - %d files", len(files)))
	return files, nil
}

func (s *ExportService) buildAgencies(ctx context.Context) (any, int, error) {
	agencies, err := (&dao.AgencyDAO{Db: s.Db}).FindAllParsed(ctx)
	if err != nil {
		return nil, 0, err
	}
	return nonNil(agencies), len(agencies), nil
}

func (s *ExportService) buildCorrections(ctx context.Context) (any, int, error) {
	corrections, err := (&dao.CorrectionDAO{Db: s.Db}).FindAllParsed(ctx)
	if err != nil {
		return nil, 0, err
	}
	return nonNil(corrections), len(corrections), nil
}

func (s *ExportService) buildAgencyMetrics(ctx context.Context) (any, int, error) {
	m, err := (&dao.MetricsDAO{Db: s.Db}).FindAgencyMetrics(ctx)
	if err != nil {
		return nil, 0, err
	}
	return nonNil(m), len(m), nil
}

func (s *ExportService) buildTimeSeries(ctx context.Context) (any, int, error) {
	t, err := (&dao.MetricsDAO{Db: s.Db}).FindYearlyTrends(ctx)
	if err != nil {
		return nil, 0, err
	}
	return nonNil(t), len(t), nil
}

func (s *ExportService) buildSummary(ctx context.Context) (any, int, error) {
	report, err := s.Summary(ctx)
	if err != nil {
		return nil, 0, err
	}
	return report, 1, nil
}

// Summary assembles totals, the agencies with the most corrections and the
// latest loads. Top agencies come from the materialized metrics when present.
func (s *ExportService) Summary(ctx context.Context) (*data.SummaryReport, error) {
	agencies, refs, corrections, err := loadFlattened(ctx, s.Db)
	if err != nil {
		return nil, err
	}
	agencyMetrics, err := (&dao.MetricsDAO{Db: s.Db}).FindAgencyMetrics(ctx)
	if err != nil {
		return nil, err
	}
	if len(agencyMetrics) == 0 {
		agencyMetrics = metrics.AgencyMetrics(agencies, refs, corrections)
	}
	loads, err := (&dao.IngestionLogDAO{Db: s.Db}).FindRecent(ctx, summaryRecentLoads)
	if err != nil {
		return nil, err
	}

	totals := data.SummaryTotals{
		Agencies:      len(agencies),
		CfrReferences: len(refs),
		Corrections:   len(corrections),
		Years:         len(metrics.YearlyTrends(corrections)),
	}
	for _, a := range agencies {
		if a.IsTopLevel() {
			totals.ParentAgencies++
		} else {
			totals.SubAgencies++
		}
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return &data.SummaryReport{
		GeneratedAt:    now().UTC(),
		Totals:         totals,
		AverageLagDays: metrics.AverageLag(corrections),
		TopAgencies:    nonNil(metrics.TopAgencies(agencyMetrics, summaryTopAgencies)),
		RecentLoads:    nonNil(loads),
	}, nil
}

func writeJSONFile(path string, v any) error {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal export, %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file, %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(body, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write export, %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write export, %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move export into place, %w", err)
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (s *ExportService) logInfo(message string) {
	log.Info(fmt.Sprintf("Export: %v", message))
}
