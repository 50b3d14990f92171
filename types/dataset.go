package types

import "time"

// Row is one spreadsheet row keyed by column header. Cell values are
// whatever the parsing library produced for the cell; blank cells are
// absent from the map.
type Row map[string]any

// Dataset is the persisted result of one successful spreadsheet ingestion.
// It is immutable after creation.
type Dataset struct {
	// ID is the unique identifier assigned by the store.
	ID int `json:"id" db:"id"`

	// Filename is the original name of the uploaded file as sent by the
	// client.
	Filename string `json:"filename" db:"filename"`

	// StoredName is the name the raw upload was written under in the
	// upload directory (arrival timestamp plus Filename). A later upload
	// producing the same StoredName overwrites the earlier file.
	StoredName string `json:"stored_name" db:"stored_name"`

	// UploadedAt is the time the file was processed.
	UploadedAt time.Time `json:"uploaded_at" db:"uploaded_at"`

	// Headers holds the column headers in worksheet order. Empty when the
	// worksheet had no rows.
	Headers []string `json:"headers" db:"headers"`

	// Records holds one Row per data row, in worksheet order.
	Records []Row `json:"records" db:"records"`

	// RowCount always equals len(Records).
	RowCount int `json:"row_count" db:"row_count"`
}

// DatasetSummary is the listing projection of a Dataset: metadata without
// the row payload.
type DatasetSummary struct {
	ID         int       `json:"id"`
	Filename   string    `json:"filename"`
	StoredName string    `json:"stored_name"`
	UploadedAt time.Time `json:"uploaded_at"`
	Headers    []string  `json:"headers"`
	RowCount   int       `json:"row_count"`
}

// Summary returns the listing projection of the dataset.
func (d Dataset) Summary() DatasetSummary {
	return DatasetSummary{
		ID:         d.ID,
		Filename:   d.Filename,
		StoredName: d.StoredName,
		UploadedAt: d.UploadedAt,
		Headers:    d.Headers,
		RowCount:   d.RowCount,
	}
}
