package dao

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sam-berry/ecfr-lake/data"
)

type CorrectionDAO struct {
	Db DBTX
}

func (d *CorrectionDAO) DeleteAll(ctx context.Context) error {
	return deleteAll(ctx, d.Db, TableCorrectionsParsed, TableCorrectionsRaw)
}

func (d *CorrectionDAO) BatchInsertRaw(ctx context.Context, corrections []data.CorrectionRaw) error {
	return batchInsert(
		ctx,
		d.Db,
		TableCorrectionsRaw,
		[]string{"id", "ecfr_id", "data", "checksum"},
		len(corrections),
		func(i int) []any {
			c := corrections[i]
			return []any{c.Id, c.EcfrId, c.Data, c.Checksum}
		},
	)
}

func (d *CorrectionDAO) BatchInsertParsed(ctx context.Context, corrections []data.CorrectionRow) error {
	return batchInsert(
		ctx,
		d.Db,
		TableCorrectionsParsed,
		[]string{
			"id", "ecfr_id", "cfr_reference", "title", "chapter", "part", "section",
			"corrective_action", "error_occurred", "error_corrected", "lag_days",
			"fr_citation", "year", "checksum",
		},
		len(corrections),
		func(i int) []any {
			c := corrections[i]
			return []any{
				c.Id,
				c.EcfrId,
				nullString(c.CfrReference),
				nullInt(c.Title),
				nullString(c.Chapter),
				nullString(c.Part),
				nullString(c.Section),
				nullString(c.CorrectiveAction),
				nullString(c.ErrorOccurred),
				nullString(c.ErrorCorrected),
				nullInt(c.LagDays),
				nullString(c.FrCitation),
				nullInt(c.Year),
				c.Checksum,
			}
		},
	)
}

// FindAllRaw returns raw corrections ordered by id; limit <= 0 returns all.
func (d *CorrectionDAO) FindAllRaw(ctx context.Context, limit int) ([]*data.CorrectionRaw, error) {
	rows, err := d.Db.QueryContext(
		ctx,
		`SELECT id, ecfr_id, data, checksum
		FROM corrections_raw
		ORDER BY id`+limitClause(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("error finding raw corrections: %w", err)
	}
	defer rows.Close()

	var corrections []*data.CorrectionRaw
	for rows.Next() {
		var c data.CorrectionRaw
		var checksum sql.NullString
		if err := rows.Scan(&c.Id, &c.EcfrId, &c.Data, &checksum); err != nil {
			return nil, fmt.Errorf("error scanning raw correction row: %w", err)
		}
		c.Checksum = checksum.String
		corrections = append(corrections, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating raw correction rows: %w", err)
	}
	return corrections, nil
}

// FindAllParsed returns enriched corrections ordered by id.
func (d *CorrectionDAO) FindAllParsed(ctx context.Context) ([]*data.CorrectionRow, error) {
	rows, err := d.Db.QueryContext(
		ctx,
		`SELECT id, ecfr_id, cfr_reference, title, chapter, part, section,
			corrective_action, error_occurred, error_corrected, lag_days,
			fr_citation, year, checksum
		FROM corrections_parsed
		ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("error finding corrections: %w", err)
	}
	defer rows.Close()

	var corrections []*data.CorrectionRow
	for rows.Next() {
		var c data.CorrectionRow
		var checksum sql.NullString
		err := rows.Scan(
			&c.Id,
			&c.EcfrId,
			&c.CfrReference,
			&c.Title,
			&c.Chapter,
			&c.Part,
			&c.Section,
			&c.CorrectiveAction,
			&c.ErrorOccurred,
			&c.ErrorCorrected,
			&c.LagDays,
			&c.FrCitation,
			&c.Year,
			&checksum,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning correction row: %w", err)
		}
		c.Checksum = checksum.String
		corrections = append(corrections, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating correction rows: %w", err)
	}
	return corrections, nil
}
