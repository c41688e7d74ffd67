package dao

import (
	"context"
	"fmt"

	"github.com/sam-berry/ecfr-lake/data"
)

// IngestionLogDAO only ever appends; past entries are never rewritten.
type IngestionLogDAO struct {
	Db DBTX
}

func (d *IngestionLogDAO) Append(ctx context.Context, entry *data.IngestionLogEntry) error {
	_, err := d.Db.ExecContext(
		ctx,
		`INSERT INTO ingestion_log(
			load_id, entity, source_file, record_count, file_checksum, ingested_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.LoadId,
		entry.Entity,
		entry.SourceFile,
		int64(entry.RecordCount),
		entry.FileChecksum,
		entry.IngestedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("error inserting ingestion log entry: %w", err)
	}
	return nil
}

// FindRecent returns the newest entries first; limit <= 0 returns all.
func (d *IngestionLogDAO) FindRecent(ctx context.Context, limit int) ([]*data.IngestionLogEntry, error) {
	rows, err := d.Db.QueryContext(
		ctx,
		`SELECT load_id, entity, source_file, record_count, file_checksum, ingested_at
		FROM ingestion_log
		ORDER BY ingested_at DESC, load_id`+limitClause(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("error finding ingestion log entries: %w", err)
	}
	defer rows.Close()

	var entries []*data.IngestionLogEntry
	for rows.Next() {
		var e data.IngestionLogEntry
		if err := rows.Scan(&e.LoadId, &e.Entity, &e.SourceFile, &e.RecordCount, &e.FileChecksum, &e.IngestedAt); err != nil {
			return nil, fmt.Errorf("error scanning ingestion log row: %w", err)
		}
		e.IngestedAt = e.IngestedAt.UTC()
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ingestion log rows: %w", err)
	}
	return entries, nil
}
