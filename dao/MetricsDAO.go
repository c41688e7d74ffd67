package dao

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sam-berry/ecfr-lake/data"
)

type MetricsDAO struct {
	Db DBTX
}

// ReplaceAgencyMetrics swaps the whole agency_metrics table. Run it inside a
// transaction to make the swap atomic.
func (d *MetricsDAO) ReplaceAgencyMetrics(ctx context.Context, metrics []*data.AgencyMetric) error {
	if err := deleteAll(ctx, d.Db, TableAgencyMetrics); err != nil {
		return err
	}
	return batchInsert(
		ctx,
		d.Db,
		TableAgencyMetrics,
		[]string{"slug", "name", "cfr_reference_count", "total_corrections", "rvi"},
		len(metrics),
		func(i int) []any {
			m := metrics[i]
			return []any{m.Slug, m.Name, int64(m.CfrReferenceCount), int64(m.TotalCorrections), nullFloat(m.Rvi)}
		},
	)
}

func (d *MetricsDAO) ReplaceYearlyTrends(ctx context.Context, trends []*data.YearlyTrend) error {
	if err := deleteAll(ctx, d.Db, TableYearlyTrends); err != nil {
		return err
	}
	return batchInsert(
		ctx,
		d.Db,
		TableYearlyTrends,
		[]string{"year", "correction_count", "avg_lag_days"},
		len(trends),
		func(i int) []any {
			t := trends[i]
			return []any{t.Year, int64(t.CorrectionCount), nullFloat(t.AvgLagDays)}
		},
	)
}

// FindAgencyMetrics returns metrics ordered by slug.
func (d *MetricsDAO) FindAgencyMetrics(ctx context.Context) ([]*data.AgencyMetric, error) {
	rows, err := d.Db.QueryContext(
		ctx,
		`SELECT slug, name, cfr_reference_count, total_corrections, rvi
		FROM agency_metrics
		ORDER BY slug`,
	)
	if err != nil {
		return nil, fmt.Errorf("error finding agency metrics: %w", err)
	}
	defer rows.Close()

	return scanAgencyMetrics(rows)
}

// FindAgencyMetric returns nil when no metric is stored for the slug.
func (d *MetricsDAO) FindAgencyMetric(ctx context.Context, slug string) (*data.AgencyMetric, error) {
	rows, err := d.Db.QueryContext(
		ctx,
		`SELECT slug, name, cfr_reference_count, total_corrections, rvi
		FROM agency_metrics
		WHERE slug = $1`,
		slug,
	)
	if err != nil {
		return nil, fmt.Errorf("error finding agency metric %s: %w", slug, err)
	}
	defer rows.Close()

	metrics, err := scanAgencyMetrics(rows)
	if err != nil || len(metrics) == 0 {
		return nil, err
	}
	return metrics[0], nil
}

func scanAgencyMetrics(rows *sql.Rows) ([]*data.AgencyMetric, error) {
	var metrics []*data.AgencyMetric
	for rows.Next() {
		var m data.AgencyMetric
		if err := rows.Scan(&m.Slug, &m.Name, &m.CfrReferenceCount, &m.TotalCorrections, &m.Rvi); err != nil {
			return nil, fmt.Errorf("error scanning agency metric row: %w", err)
		}
		metrics = append(metrics, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agency metric rows: %w", err)
	}
	return metrics, nil
}

// FindYearlyTrends returns trends by ascending year.
func (d *MetricsDAO) FindYearlyTrends(ctx context.Context) ([]*data.YearlyTrend, error) {
	rows, err := d.Db.QueryContext(
		ctx,
		`SELECT year, correction_count, avg_lag_days
		FROM correction_trends_yearly
		ORDER BY year`,
	)
	if err != nil {
		return nil, fmt.Errorf("error finding yearly trends: %w", err)
	}
	defer rows.Close()

	var trends []*data.YearlyTrend
	for rows.Next() {
		var t data.YearlyTrend
		if err := rows.Scan(&t.Year, &t.CorrectionCount, &t.AvgLagDays); err != nil {
			return nil, fmt.Errorf("error scanning yearly trend row: %w", err)
		}
		trends = append(trends, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating yearly trend rows: %w", err)
	}
	return trends, nil
}
