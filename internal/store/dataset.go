package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/sheetdrop/apiserver/types"
)

// DatasetRepository handles persistence for ingested datasets. Headers and
// records are stored as JSONB documents; a dataset row is written once and
// never updated.
type DatasetRepository struct {
	db *sql.DB
}

func NewDatasetRepository(db *sql.DB) *DatasetRepository {
	return &DatasetRepository{db: db}
}

func (r *DatasetRepository) Create(ctx context.Context, dataset types.Dataset) (types.Dataset, error) {
	if dataset.UploadedAt.IsZero() {
		dataset.UploadedAt = time.Now()
	}

	headers, err := json.Marshal(headersOrEmpty(dataset.Headers))
	if err != nil {
		return types.Dataset{}, err
	}
	records, err := json.Marshal(recordsOrEmpty(dataset.Records))
	if err != nil {
		return types.Dataset{}, err
	}

	const query = `
		INSERT INTO datasets (filename, stored_name, uploaded_at, headers, records, row_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		dataset.Filename,
		dataset.StoredName,
		dataset.UploadedAt,
		headers,
		records,
		dataset.RowCount,
	).Scan(&dataset.ID); err != nil {
		return types.Dataset{}, err
	}
	return dataset, nil
}

func (r *DatasetRepository) GetByID(ctx context.Context, id int) (types.Dataset, error) {
	const query = `
		SELECT id, filename, stored_name, uploaded_at, headers, records, row_count
		FROM datasets
		WHERE id = $1`

	var (
		dataset types.Dataset
		headers []byte
		records []byte
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&dataset.ID,
		&dataset.Filename,
		&dataset.StoredName,
		&dataset.UploadedAt,
		&headers,
		&records,
		&dataset.RowCount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Dataset{}, ErrNotFound
		}
		return types.Dataset{}, err
	}

	if err := json.Unmarshal(headers, &dataset.Headers); err != nil {
		return types.Dataset{}, err
	}
	if err := json.Unmarshal(records, &dataset.Records); err != nil {
		return types.Dataset{}, err
	}
	return dataset, nil
}

// List returns dataset summaries, newest first, without the row payload.
func (r *DatasetRepository) List(ctx context.Context, offset, limit int) ([]types.DatasetSummary, int, error) {
	const countQuery = `SELECT count(*) FROM datasets`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, err
	}

	const query = `
		SELECT id, filename, stored_name, uploaded_at, headers, row_count
		FROM datasets
		ORDER BY uploaded_at DESC, id DESC
		OFFSET $1 LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var summaries []types.DatasetSummary
	for rows.Next() {
		var (
			summary types.DatasetSummary
			headers []byte
		)
		if err := rows.Scan(
			&summary.ID,
			&summary.Filename,
			&summary.StoredName,
			&summary.UploadedAt,
			&headers,
			&summary.RowCount,
		); err != nil {
			return nil, 0, err
		}
		if err := json.Unmarshal(headers, &summary.Headers); err != nil {
			return nil, 0, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, total, rows.Err()
}

func headersOrEmpty(headers []string) []string {
	if headers == nil {
		return []string{}
	}
	return headers
}

func recordsOrEmpty(records []types.Row) []types.Row {
	if records == nil {
		return []types.Row{}
	}
	return records
}
