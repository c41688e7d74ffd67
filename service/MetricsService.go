package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"github.com/sam-berry/ecfr-lake/dao"
	"github.com/sam-berry/ecfr-lake/data"
	"github.com/sam-berry/ecfr-lake/metrics"
	"github.com/sam-berry/ecfr-lake/store"
)

var (
	ErrUnknownAgency      = errors.New("unknown agency")
	ErrMetricsNotComputed = errors.New("metrics not computed")
)

type MetricsService struct {
	Db *sql.DB
}

type MetricsRefresh struct {
	Agencies []*data.AgencyMetric `json:"agencies"`
	Yearly   []*data.YearlyTrend  `json:"yearly"`
}

// Refresh derives agency metrics and yearly trends from the flattened tables
// and replaces both materialized tables together.
func (s *MetricsService) Refresh(ctx context.Context) (*MetricsRefresh, error) {
	s.logInfo("Start")

	agencies, refs, corrections, err := loadFlattened(ctx, s.Db)
	if err != nil {
		return nil, err
	}

	result := &MetricsRefresh{
		Agencies: metrics.AgencyMetrics(agencies, refs, corrections),
		Yearly:   metrics.YearlyTrends(corrections),
	}

	err = store.WithTx(ctx, s.Db, func(tx *sql.Tx) error {
		m := &dao.MetricsDAO{Db: tx}
		if err := m.ReplaceAgencyMetrics(ctx, result.Agencies); err != nil {
			return err
		}
		return m.ReplaceYearlyTrends(ctx, result.Yearly)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store metrics, %w", err)
	}

	for _, m := range metrics.TopAgencies(result.Agencies, 5) {
		s.logInfo(fmt.Sprintf("%s: %d corrections (RVI: %s)", m.Name, m.TotalCorrections, formatRVI(m.Rvi)))
	}
	s.logInfo(fmt.Sprintf("Complete - %d agencies, %d years", len(result.Agencies), len(result.Yearly)))
	return result, nil
}

func (s *MetricsService) GetAgencyMetrics(ctx context.Context) ([]*data.AgencyMetric, error) {
	m, err := (&dao.MetricsDAO{Db: s.Db}).FindAgencyMetrics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find agency metrics, %w", err)
	}
	return m, nil
}

// GetAgencyMetric returns the stored metric of one agency. It fails with
// ErrUnknownAgency when the slug is not loaded and ErrMetricsNotComputed when
// the agency is loaded but metrics have not been refreshed since.
func (s *MetricsService) GetAgencyMetric(ctx context.Context, slug string) (*data.AgencyMetric, error) {
	agency, err := (&dao.AgencyDAO{Db: s.Db}).FindBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to find agency, %w", err)
	}
	if agency == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgency, slug)
	}
	m, err := (&dao.MetricsDAO{Db: s.Db}).FindAgencyMetric(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to find agency metric, %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: %s", ErrMetricsNotComputed, slug)
	}
	return m, nil
}

func (s *MetricsService) GetYearlyTrends(ctx context.Context) ([]*data.YearlyTrend, error) {
	t, err := (&dao.MetricsDAO{Db: s.Db}).FindYearlyTrends(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find yearly trends, %w", err)
	}
	return t, nil
}

func loadFlattened(
	ctx context.Context,
	db dao.DBTX,
) ([]*data.AgencyRow, []*data.CfrReference, []*data.CorrectionRow, error) {
	agencyDAO := &dao.AgencyDAO{Db: db}
	agencies, err := agencyDAO.FindAllParsed(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to find agencies, %w", err)
	}
	refs, err := agencyDAO.FindAllReferences(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to find cfr references, %w", err)
	}
	corrections, err := (&dao.CorrectionDAO{Db: db}).FindAllParsed(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to find corrections, %w", err)
	}
	return agencies, refs, corrections, nil
}

func formatRVI(rvi *float64) string {
	if rvi == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *rvi)
}

func (s *MetricsService) logInfo(message string) {
	log.Info(fmt.Sprintf("Metrics: %v", message))
}
