package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sheetdrop/apiserver/internal/metrics"
	"github.com/sheetdrop/apiserver/internal/services"
	"github.com/sheetdrop/apiserver/types"
)

const (
	maxUploadBytes     = 5 << 20
	maxMultipartMemory = 8 << 20
	formFieldFile      = "file"

	mimeExcelLegacy = "application/vnd.ms-excel"
	mimeExcelOOXML  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var errUploadTooLarge = errors.New("upload exceeds size limit")

// UploadHandler admits spreadsheet uploads and hands them to the ingestion
// pipeline.
type UploadHandler struct {
	datasetService *services.DatasetService
	collector      *metrics.Collector
}

// NewUploadHandler constructs an UploadHandler with the provided dependencies.
func NewUploadHandler(datasetService *services.DatasetService, collector *metrics.Collector) *UploadHandler {
	return &UploadHandler{
		datasetService: datasetService,
		collector:      collector,
	}
}

// UploadRouter registers the upload route on the given router.
func UploadRouter(r chi.Router, datasetService *services.DatasetService, collector *metrics.Collector) {
	handler := NewUploadHandler(datasetService, collector)
	r.Post("/", handler.Upload)
}

// Upload accepts one multipart spreadsheet. Admission (field present, MIME
// whitelist, 5 MiB cap) happens before any parsing; an admitted file is
// ingested synchronously and the full dataset is returned.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	// Cap the request body just above the file limit so an oversized
	// upload fails while reading the form, not after buffering it all.
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+maxMultipartMemory)

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.reject(w, http.StatusRequestEntityTooLarge, "file exceeds the 5 MiB limit", "too_large")
			return
		}
		h.reject(w, http.StatusBadRequest, "please upload an excel file", "missing_file")
		return
	}

	file, header, err := r.FormFile(formFieldFile)
	if err != nil {
		h.reject(w, http.StatusBadRequest, "please upload an excel file", "missing_file")
		return
	}
	defer file.Close()

	switch header.Header.Get("Content-Type") {
	case mimeExcelLegacy, mimeExcelOOXML:
	default:
		h.reject(w, http.StatusUnsupportedMediaType, "only excel files are allowed", "media_type")
		return
	}

	data, err := readFileLimited(file, maxUploadBytes)
	if err != nil {
		if errors.Is(err, errUploadTooLarge) {
			h.reject(w, http.StatusRequestEntityTooLarge, "file exceeds the 5 MiB limit", "too_large")
			return
		}
		h.reject(w, http.StatusBadRequest, "failed to read upload", "read_error")
		return
	}
	h.collector.RecordUploadAccepted()

	dataset, err := h.datasetService.Ingest(r.Context(), services.IngestInput{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		h.collector.RecordIngestFailure()
		writeError(w, http.StatusInternalServerError, "error processing file")
		return
	}
	h.collector.RecordDatasetStored(dataset.RowCount)

	writeJSON(w, http.StatusOK, UploadResponse{
		Message:  "file uploaded and data saved successfully",
		Filename: dataset.Filename,
		Headers:  dataset.Headers,
		Data:     dataset.Records,
		RowCount: dataset.RowCount,
	})
}

func (h *UploadHandler) reject(w http.ResponseWriter, status int, message, reason string) {
	h.collector.RecordUploadRejected(reason)
	writeError(w, status, message)
}

// UploadResponse mirrors the stored dataset back to the uploader.
type UploadResponse struct {
	Message  string      `json:"message"`
	Filename string      `json:"filename"`
	Headers  []string    `json:"headers"`
	Data     []types.Row `json:"data"`
	RowCount int         `json:"rowCount"`
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errUploadTooLarge
	}
	return data, nil
}
