package dao

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
)

// DBTX is satisfied by *sql.DB, *sql.Conn and *sql.Tx, so a DAO can run on
// the pool or inside a caller's transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

const (
	TableAgenciesRaw       = "agencies_raw"
	TableAgenciesParsed    = "agencies_parsed"
	TableCfrReferences     = "cfr_references"
	TableCorrectionsRaw    = "corrections_raw"
	TableCorrectionsParsed = "corrections_parsed"
	TableIngestionLog      = "ingestion_log"
	TableAgencyMetrics     = "agency_metrics"
	TableYearlyTrends      = "correction_trends_yearly"
)

var tables = map[string]bool{
	TableAgenciesRaw:       true,
	TableAgenciesParsed:    true,
	TableCfrReferences:     true,
	TableCorrectionsRaw:    true,
	TableCorrectionsParsed: true,
	TableIngestionLog:      true,
	TableAgencyMetrics:     true,
	TableYearlyTrends:      true,
}

//go:embed schema.sql
var schemaSQL string

// ApplySchema creates any missing table. It is safe to run on every start.
func ApplySchema(ctx context.Context, db DBTX) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("error applying schema: %w", err)
		}
	}
	return nil
}

// CountRows returns the row count of one of the store tables.
func CountRows(ctx context.Context, db DBTX, table string) (int, error) {
	if !tables[table] {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int
	if err := db.QueryRowContext(ctx, "SELECT count(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("error counting %s: %w", table, err)
	}
	return n, nil
}

func deleteAll(ctx context.Context, db DBTX, names ...string) error {
	for _, table := range names {
		if !tables[table] {
			return fmt.Errorf("unknown table %q", table)
		}
		if _, err := db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("error clearing %s: %w", table, err)
		}
	}
	return nil
}

// batchInsert prepares one INSERT for table and runs it for every row.
func batchInsert(
	ctx context.Context,
	db DBTX,
	table string,
	columns []string,
	count int,
	args func(i int) []any,
) error {
	if count == 0 {
		return nil
	}
	if !tables[table] {
		return fmt.Errorf("unknown table %q", table)
	}

	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(
		"INSERT INTO %s(%s) VALUES (%s)",
		table,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
	)

	stmt, err := db.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("error preparing insert into %s: %w", table, err)
	}
	defer stmt.Close()

	for i := 0; i < count; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			return fmt.Errorf("error inserting into %s row %d: %w", table, i, err)
		}
	}
	return nil
}

// Drivers disagree on binding typed nil pointers, so optional values are
// handed over as plain values or untyped nil.

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullInt(i *int64) any {
	if i == nil {
		return nil
	}
	return *i
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}
