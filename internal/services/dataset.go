package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/sheetdrop/apiserver/config"
	"github.com/sheetdrop/apiserver/internal/events"
	"github.com/sheetdrop/apiserver/internal/sheet"
	"github.com/sheetdrop/apiserver/internal/storage"
	"github.com/sheetdrop/apiserver/types"
)

// DatasetRepository defines persistence operations for datasets.
type DatasetRepository interface {
	Create(ctx context.Context, dataset types.Dataset) (types.Dataset, error)
	GetByID(ctx context.Context, id int) (types.Dataset, error)
	List(ctx context.Context, offset, limit int) ([]types.DatasetSummary, int, error)
}

// IngestInput is one admitted upload handed to the pipeline.
type IngestInput struct {
	Filename    string
	ContentType string
	Data        []byte
}

// DatasetService runs the ingestion pipeline: persist the raw upload,
// parse the first worksheet, store the dataset, then apply the retention
// policy and announce the result.
type DatasetService struct {
	repo      DatasetRepository
	uploadDir string
	retention config.RetentionPolicy
	archive   storage.Backend
	publisher *events.Publisher
}

func NewDatasetService(
	repo DatasetRepository,
	uploadCfg config.UploadConfig,
	archive storage.Backend,
	publisher *events.Publisher,
) *DatasetService {
	return &DatasetService{
		repo:      repo,
		uploadDir: uploadCfg.Dir,
		retention: uploadCfg.Retention,
		archive:   archive,
		publisher: publisher,
	}
}

// Ingest processes one admitted upload synchronously and returns the full
// stored dataset. Parse and store failures abort with no partial result;
// the transient file is left behind on failure for inspection.
func (s *DatasetService) Ingest(ctx context.Context, in IngestInput) (types.Dataset, error) {
	arrival := time.Now()
	storedName := fmt.Sprintf("%d-%s", arrival.UnixMilli(), filepath.Base(in.Filename))

	if err := s.saveTransient(storedName, in.Data); err != nil {
		return types.Dataset{}, fmt.Errorf("save upload: %w", err)
	}

	headers, records, err := sheet.Parse(in.Data)
	if err != nil {
		return types.Dataset{}, fmt.Errorf("parse upload: %w", err)
	}

	dataset, err := s.repo.Create(ctx, types.Dataset{
		Filename:   in.Filename,
		StoredName: storedName,
		UploadedAt: arrival,
		Headers:    headers,
		Records:    records,
		RowCount:   len(records),
	})
	if err != nil {
		return types.Dataset{}, fmt.Errorf("store dataset: %w", err)
	}

	// Retention and notification run after commit and never fail the
	// request.
	s.applyRetention(ctx, storedName, in)
	if err := s.publisher.DatasetIngested(ctx, events.DatasetIngested{
		DatasetID:  dataset.ID,
		Filename:   dataset.Filename,
		RowCount:   dataset.RowCount,
		UploadedAt: dataset.UploadedAt,
	}); err != nil {
		log.Printf("dataset %d: publish ingested event: %v", dataset.ID, err)
	}

	return dataset, nil
}

// Get returns one dataset with its full record payload.
func (s *DatasetService) Get(ctx context.Context, id int) (types.Dataset, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns dataset summaries, newest first.
func (s *DatasetService) List(ctx context.Context, offset, limit int) ([]types.DatasetSummary, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.List(ctx, offset, limit)
}

// saveTransient writes the raw upload under its timestamped name. An
// identical stored name overwrites the earlier file.
func (s *DatasetService) saveTransient(storedName string, data []byte) error {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.uploadDir, storedName), data, 0o644)
}

func (s *DatasetService) applyRetention(ctx context.Context, storedName string, in IngestInput) {
	switch s.retention {
	case config.RetentionDelete:
		s.removeTransient(storedName)
	case config.RetentionArchive:
		if s.archive == nil {
			log.Printf("upload %s: archive retention configured without a backend", storedName)
			return
		}
		path := filepath.Join(s.uploadDir, storedName)
		f, err := os.Open(path)
		if err != nil {
			log.Printf("upload %s: open for archive: %v", storedName, err)
			return
		}
		err = s.archive.Archive(ctx, storedName, f, int64(len(in.Data)), in.ContentType)
		_ = f.Close()
		if err != nil {
			log.Printf("upload %s: archive to %s: %v", storedName, s.archive.Bucket(), err)
			return
		}
		s.removeTransient(storedName)
	}
}

func (s *DatasetService) removeTransient(storedName string) {
	if err := os.Remove(filepath.Join(s.uploadDir, storedName)); err != nil {
		log.Printf("upload %s: remove transient file: %v", storedName, err)
	}
}
