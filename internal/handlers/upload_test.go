package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/sheetdrop/apiserver/config"
	"github.com/sheetdrop/apiserver/internal/metrics"
	"github.com/sheetdrop/apiserver/internal/services"
	"github.com/sheetdrop/apiserver/internal/store"
	"github.com/sheetdrop/apiserver/types"
	"github.com/xuri/excelize/v2"
)

type mockDatasetRepo struct {
	createFn func(ctx context.Context, dataset types.Dataset) (types.Dataset, error)
	getFn    func(ctx context.Context, id int) (types.Dataset, error)
	listFn   func(ctx context.Context, offset, limit int) ([]types.DatasetSummary, int, error)
}

func (m *mockDatasetRepo) Create(ctx context.Context, dataset types.Dataset) (types.Dataset, error) {
	if m.createFn != nil {
		return m.createFn(ctx, dataset)
	}
	dataset.ID = 1
	return dataset, nil
}

func (m *mockDatasetRepo) GetByID(ctx context.Context, id int) (types.Dataset, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return types.Dataset{}, store.ErrNotFound
}

func (m *mockDatasetRepo) List(ctx context.Context, offset, limit int) ([]types.DatasetSummary, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, offset, limit)
	}
	return nil, 0, nil
}

func uploadRouter(t *testing.T, repo *mockDatasetRepo, uploadDir string) *chi.Mux {
	t.Helper()
	service := services.NewDatasetService(repo, config.UploadConfig{
		Dir:       uploadDir,
		Retention: config.RetentionKeep,
	}, nil, nil)

	router := chi.NewRouter()
	router.Route("/upload", func(r chi.Router) {
		UploadRouter(r, service, metrics.NewCollector())
	})
	return router
}

func multipartBody(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func buildTestWorkbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	rows := [][]any{
		{"Name", "Age"},
		{"Alice", 30},
		{"Bob", 25},
	}
	for i, cells := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &cells); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func TestUploadMissingFile(t *testing.T) {
	router := uploadRouter(t, &mockDatasetRepo{}, t.TempDir())

	req := httptest.NewRequest(http.MethodPost, "/upload/", strings.NewReader("plain body"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestUploadRejectsUnsupportedMediaType(t *testing.T) {
	createCalled := false
	repo := &mockDatasetRepo{
		createFn: func(ctx context.Context, dataset types.Dataset) (types.Dataset, error) {
			createCalled = true
			dataset.ID = 1
			return dataset, nil
		},
	}
	router := uploadRouter(t, repo, t.TempDir())

	body, contentType := multipartBody(t, "data.csv", "text/csv", []byte("a,b\n1,2\n"))
	req := httptest.NewRequest(http.MethodPost, "/upload/", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", w.Code)
	}
	if createCalled {
		t.Error("rejected media type must never reach the pipeline")
	}
}

func TestUploadRejectsOversizeFile(t *testing.T) {
	createCalled := false
	repo := &mockDatasetRepo{
		createFn: func(ctx context.Context, dataset types.Dataset) (types.Dataset, error) {
			createCalled = true
			return dataset, nil
		},
	}
	uploadDir := t.TempDir()
	router := uploadRouter(t, repo, uploadDir)

	oversize := make([]byte, (5<<20)+1)
	body, contentType := multipartBody(t, "big.xlsx",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", oversize)
	req := httptest.NewRequest(http.MethodPost, "/upload/", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", w.Code)
	}
	if createCalled {
		t.Error("oversize upload must never reach the pipeline")
	}
	entries, err := os.ReadDir(uploadDir)
	if err != nil {
		t.Fatalf("read upload dir: %v", err)
	}
	if len(entries) != 0 {
		t.Error("rejected upload must not be written to disk")
	}
}

func TestUploadIngestsWorkbook(t *testing.T) {
	var stored types.Dataset
	repo := &mockDatasetRepo{
		createFn: func(ctx context.Context, dataset types.Dataset) (types.Dataset, error) {
			dataset.ID = 11
			stored = dataset
			return dataset, nil
		},
	}
	uploadDir := t.TempDir()
	router := uploadRouter(t, repo, uploadDir)

	body, contentType := multipartBody(t, "people.xlsx",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buildTestWorkbook(t))
	req := httptest.NewRequest(http.MethodPost, "/upload/", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}

	var resp UploadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Filename != "people.xlsx" {
		t.Errorf("filename = %q, want people.xlsx", resp.Filename)
	}
	if resp.RowCount != 2 || len(resp.Data) != 2 {
		t.Errorf("rowCount = %d, len(data) = %d, want 2 and 2", resp.RowCount, len(resp.Data))
	}
	if len(resp.Headers) != 2 || resp.Headers[0] != "Name" || resp.Headers[1] != "Age" {
		t.Errorf("headers = %v, want [Name Age]", resp.Headers)
	}
	for i, record := range resp.Data {
		for key := range record {
			if key != "Name" && key != "Age" {
				t.Errorf("data[%d] has unexpected key %q", i, key)
			}
		}
	}
	if stored.RowCount != len(stored.Records) {
		t.Errorf("stored rowCount = %d, len(records) = %d, must be equal", stored.RowCount, len(stored.Records))
	}

	// Retention "keep": the raw upload stays on disk under its
	// timestamped name.
	entries, err := os.ReadDir(uploadDir)
	if err != nil {
		t.Fatalf("read upload dir: %v", err)
	}
	if len(entries) != 1 || !strings.HasSuffix(entries[0].Name(), "-people.xlsx") {
		t.Errorf("upload dir = %v, want one *-people.xlsx file", entries)
	}
	if filepath.Base(stored.StoredName) != entries[0].Name() {
		t.Errorf("stored name %q does not match file on disk %q", stored.StoredName, entries[0].Name())
	}
}

func TestUploadLegacyMIMEAdmitted(t *testing.T) {
	repo := &mockDatasetRepo{}
	router := uploadRouter(t, repo, t.TempDir())

	body, contentType := multipartBody(t, "people.xls", "application/vnd.ms-excel", buildTestWorkbook(t))
	req := httptest.NewRequest(http.MethodPost, "/upload/", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}
}

func TestUploadParseFailureIsProcessingError(t *testing.T) {
	router := uploadRouter(t, &mockDatasetRepo{}, t.TempDir())

	body, contentType := multipartBody(t, "broken.xlsx",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", []byte("not a workbook"))
	req := httptest.NewRequest(http.MethodPost, "/upload/", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}
