package service

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/sam-berry/ecfr-lake/checksum"
	"github.com/sam-berry/ecfr-lake/dao"
	"github.com/sam-berry/ecfr-lake/data"
	"github.com/sam-berry/ecfr-lake/parser"
	"github.com/sam-berry/ecfr-lake/store"
	"github.com/sam-berry/ecfr-lake/transform"
)

// IngestionService loads source documents into the store. Each file is one
// unit of work: its rows replace the previous rows of the same entity and the
// provenance entry is appended in the same transaction.
type IngestionService struct {
	Db  *sql.DB
	Now func() time.Time
}

func (s *IngestionService) LoadAgencies(ctx context.Context, path string) (*data.LoadResult, error) {
	s.logInfo(fmt.Sprintf("Start - agencies from %s", path))

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{SourceFile: path, Err: err}
	}
	result, err := s.loadAgencies(ctx, path, content)
	if err != nil {
		log.Errorf("Ingestion: %s: %v", path, err)
		return nil, &LoadError{SourceFile: path, Err: err}
	}

	s.logInfo(fmt.Sprintf(
		"Loaded %d agencies (%d parents, %d children), computed %d checksums",
		result.Parents+result.Children,
		result.Parents,
		result.Children,
		result.ChecksumsComputed,
	))
	return result, nil
}

func (s *IngestionService) loadAgencies(ctx context.Context, path string, content []byte) (*data.LoadResult, error) {
	records, err := parser.ParseAgencies(content)
	if err != nil {
		return nil, err
	}

	computed := 0
	for i, record := range records {
		n, err := checksum.EnsureAgencyChecksums(record)
		if err != nil {
			slug, _ := record["slug"].(string)
			return nil, &transform.RecordError{
				Entity: "agency",
				Index:  i,
				Key:    slug,
				Reason: "cannot compute checksum",
				Err:    err,
			}
		}
		computed += n
	}

	flat, err := transform.FlattenAgencies(records)
	if err != nil {
		return nil, err
	}

	entry := s.newEntry(data.EntityAgencies, path, flat.Parents+flat.Children, content)
	err = store.WithTx(ctx, s.Db, func(tx *sql.Tx) error {
		agencies := &dao.AgencyDAO{Db: tx}
		if err := agencies.DeleteAll(ctx); err != nil {
			return err
		}
		if err := agencies.BatchInsertRaw(ctx, flat.Raw); err != nil {
			return err
		}
		if err := agencies.BatchInsertParsed(ctx, flat.Agencies); err != nil {
			return err
		}
		if err := agencies.BatchInsertReferences(ctx, flat.References); err != nil {
			return err
		}
		return (&dao.IngestionLogDAO{Db: tx}).Append(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	return &data.LoadResult{
		Entry:             *entry,
		Parents:           flat.Parents,
		Children:          flat.Children,
		ChecksumsComputed: computed,
	}, nil
}

func (s *IngestionService) LoadCorrections(ctx context.Context, path string) (*data.LoadResult, error) {
	s.logInfo(fmt.Sprintf("Start - corrections from %s", path))

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{SourceFile: path, Err: err}
	}
	result, err := s.loadCorrections(ctx, path, content)
	if err != nil {
		log.Errorf("Ingestion: %s: %v", path, err)
		return nil, &LoadError{SourceFile: path, Err: err}
	}

	s.logInfo(fmt.Sprintf(
		"Loaded %d corrections, computed %d checksums",
		result.Entry.RecordCount,
		result.ChecksumsComputed,
	))
	return result, nil
}

func (s *IngestionService) loadCorrections(ctx context.Context, path string, content []byte) (*data.LoadResult, error) {
	records, err := parser.ParseCorrections(content)
	if err != nil {
		return nil, err
	}

	computed := 0
	for i, record := range records {
		ok, err := checksum.EnsureCorrectionChecksum(record)
		if err != nil {
			return nil, &transform.RecordError{
				Entity: "correction",
				Index:  i,
				Key:    fmt.Sprint(record["id"]),
				Reason: "cannot compute checksum",
				Err:    err,
			}
		}
		if ok {
			computed++
		}
	}

	enriched, err := transform.EnrichCorrections(records)
	if err != nil {
		return nil, err
	}

	entry := s.newEntry(data.EntityCorrections, path, len(records), content)
	err = store.WithTx(ctx, s.Db, func(tx *sql.Tx) error {
		corrections := &dao.CorrectionDAO{Db: tx}
		if err := corrections.DeleteAll(ctx); err != nil {
			return err
		}
		if err := corrections.BatchInsertRaw(ctx, enriched.Raw); err != nil {
			return err
		}
		if err := corrections.BatchInsertParsed(ctx, enriched.Rows); err != nil {
			return err
		}
		return (&dao.IngestionLogDAO{Db: tx}).Append(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	return &data.LoadResult{
		Entry:             *entry,
		ChecksumsComputed: computed,
	}, nil
}

// LoadAll loads agencies then corrections and stops at the first failing
// file. A file that loaded before the failure stays loaded.
func (s *IngestionService) LoadAll(ctx context.Context, agenciesPath, correctionsPath string) ([]*data.LoadResult, error) {
	agencies, err := s.LoadAgencies(ctx, agenciesPath)
	if err != nil {
		return nil, err
	}
	corrections, err := s.LoadCorrections(ctx, correctionsPath)
	if err != nil {
		return []*data.LoadResult{agencies}, err
	}
	return []*data.LoadResult{agencies, corrections}, nil
}

// RecentLoads returns the newest ingestion log entries.
func (s *IngestionService) RecentLoads(ctx context.Context, limit int) ([]*data.IngestionLogEntry, error) {
	entries, err := (&dao.IngestionLogDAO{Db: s.Db}).FindRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read ingestion log, %w", err)
	}
	return entries, nil
}

func (s *IngestionService) newEntry(entity, path string, count int, content []byte) *data.IngestionLogEntry {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return &data.IngestionLogEntry{
		LoadId:       uuid.New().String(),
		Entity:       entity,
		SourceFile:   path,
		RecordCount:  count,
		FileChecksum: checksum.DigestBytes(content),
		IngestedAt:   now().UTC().Truncate(time.Microsecond),
	}
}

func (s *IngestionService) logInfo(message string) {
	log.Info(fmt.Sprintf("Ingestion: %v", message))
}
