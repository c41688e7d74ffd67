package dao

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sam-berry/ecfr-lake/data"
)

type AgencyDAO struct {
	Db DBTX
}

// DeleteAll clears every agency table ahead of a reload.
func (d *AgencyDAO) DeleteAll(ctx context.Context) error {
	return deleteAll(ctx, d.Db, TableCfrReferences, TableAgenciesParsed, TableAgenciesRaw)
}

func (d *AgencyDAO) BatchInsertRaw(ctx context.Context, agencies []data.AgencyRaw) error {
	return batchInsert(
		ctx,
		d.Db,
		TableAgenciesRaw,
		[]string{"id", "slug", "name", "short_name", "parent_slug", "data", "checksum"},
		len(agencies),
		func(i int) []any {
			a := agencies[i]
			return []any{a.Id, a.Slug, a.Name, nullString(a.ShortName), nullString(a.ParentSlug), a.Data, a.Checksum}
		},
	)
}

func (d *AgencyDAO) BatchInsertParsed(ctx context.Context, agencies []data.AgencyRow) error {
	return batchInsert(
		ctx,
		d.Db,
		TableAgenciesParsed,
		[]string{
			"id", "slug", "name", "short_name", "parent_id", "parent_slug",
			"cfr_reference_count", "child_count", "checksum",
		},
		len(agencies),
		func(i int) []any {
			a := agencies[i]
			return []any{
				a.Id,
				a.Slug,
				a.Name,
				nullString(a.ShortName),
				nullInt(a.ParentId),
				nullString(a.ParentSlug),
				int64(a.CfrReferenceCount),
				int64(a.ChildCount),
				a.Checksum,
			}
		},
	)
}

func (d *AgencyDAO) BatchInsertReferences(ctx context.Context, refs []data.CfrReference) error {
	return batchInsert(
		ctx,
		d.Db,
		TableCfrReferences,
		[]string{"agency_slug", "title", "chapter", "subtitle", "part"},
		len(refs),
		func(i int) []any {
			r := refs[i]
			return []any{r.AgencySlug, nullInt(r.Title), nullString(r.Chapter), nullString(r.Subtitle), nullString(r.Part)}
		},
	)
}

// FindAllRaw returns raw agencies ordered by id; limit <= 0 returns all.
func (d *AgencyDAO) FindAllRaw(ctx context.Context, limit int) ([]*data.AgencyRaw, error) {
	rows, err := d.Db.QueryContext(
		ctx,
		`SELECT id, slug, name, short_name, parent_slug, data, checksum
		FROM agencies_raw
		ORDER BY id`+limitClause(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("error finding raw agencies: %w", err)
	}
	defer rows.Close()

	var agencies []*data.AgencyRaw
	for rows.Next() {
		var a data.AgencyRaw
		var name, checksum sql.NullString
		if err := rows.Scan(&a.Id, &a.Slug, &name, &a.ShortName, &a.ParentSlug, &a.Data, &checksum); err != nil {
			return nil, fmt.Errorf("error scanning raw agency row: %w", err)
		}
		a.Name = name.String
		a.Checksum = checksum.String
		agencies = append(agencies, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating raw agency rows: %w", err)
	}
	return agencies, nil
}

// FindAllParsed returns the flattened agencies ordered by id.
func (d *AgencyDAO) FindAllParsed(ctx context.Context) ([]*data.AgencyRow, error) {
	rows, err := d.Db.QueryContext(
		ctx,
		`SELECT id, slug, name, short_name, parent_id, parent_slug,
			cfr_reference_count, child_count, checksum
		FROM agencies_parsed
		ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("error finding agencies: %w", err)
	}
	defer rows.Close()

	return d.scanAgencies(rows)
}

// FindBySlug returns nil when no agency has the slug.
func (d *AgencyDAO) FindBySlug(ctx context.Context, slug string) (*data.AgencyRow, error) {
	rows, err := d.Db.QueryContext(
		ctx,
		`SELECT id, slug, name, short_name, parent_id, parent_slug,
			cfr_reference_count, child_count, checksum
		FROM agencies_parsed
		WHERE slug = $1`,
		slug,
	)
	if err != nil {
		return nil, fmt.Errorf("error finding agency %s: %w", slug, err)
	}
	defer rows.Close()

	agencies, err := d.scanAgencies(rows)
	if err != nil || len(agencies) == 0 {
		return nil, err
	}
	return agencies[0], nil
}

func (d *AgencyDAO) FindAllReferences(ctx context.Context) ([]*data.CfrReference, error) {
	rows, err := d.Db.QueryContext(
		ctx,
		`SELECT agency_slug, title, chapter, subtitle, part
		FROM cfr_references
		ORDER BY agency_slug, title, chapter, subtitle, part`,
	)
	if err != nil {
		return nil, fmt.Errorf("error finding cfr references: %w", err)
	}
	defer rows.Close()

	var refs []*data.CfrReference
	for rows.Next() {
		var r data.CfrReference
		if err := rows.Scan(&r.AgencySlug, &r.Title, &r.Chapter, &r.Subtitle, &r.Part); err != nil {
			return nil, fmt.Errorf("error scanning cfr reference row: %w", err)
		}
		refs = append(refs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cfr reference rows: %w", err)
	}
	return refs, nil
}

func (d *AgencyDAO) scanAgencies(rows *sql.Rows) ([]*data.AgencyRow, error) {
	var agencies []*data.AgencyRow

	for rows.Next() {
		var a data.AgencyRow
		var name, checksum sql.NullString
		err := rows.Scan(
			&a.Id,
			&a.Slug,
			&name,
			&a.ShortName,
			&a.ParentId,
			&a.ParentSlug,
			&a.CfrReferenceCount,
			&a.ChildCount,
			&checksum,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning agency row: %w", err)
		}
		a.Name = name.String
		a.Checksum = checksum.String
		agencies = append(agencies, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agency rows: %w", err)
	}

	return agencies, nil
}
