package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sheetdrop/apiserver/internal/services"
	"github.com/sheetdrop/apiserver/internal/store"
	"github.com/sheetdrop/apiserver/types"
)

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
)

// DatasetHandler provides the read side of ingested datasets.
type DatasetHandler struct {
	datasetService *services.DatasetService
}

// NewDatasetHandler constructs a DatasetHandler with the provided service.
func NewDatasetHandler(datasetService *services.DatasetService) *DatasetHandler {
	return &DatasetHandler{datasetService: datasetService}
}

// DatasetRouter registers dataset read routes. Both routes sit behind the
// auth guard and the admin gate.
func DatasetRouter(r chi.Router, datasetService *services.DatasetService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewDatasetHandler(datasetService)

	r.With(authMiddleware, requireAdmin).Get("/", handler.ListDatasets)
	r.With(authMiddleware, requireAdmin).Get("/{datasetID}", handler.GetDataset)
}

func (h *DatasetHandler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.datasetService.List(r.Context(), offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list datasets")
		return
	}
	if items == nil {
		items = []types.DatasetSummary{}
	}

	writeJSON(w, http.StatusOK, DatasetListResponse{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *DatasetHandler) GetDataset(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "datasetID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid dataset id")
		return
	}

	dataset, err := h.datasetService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "dataset not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch dataset")
		return
	}

	writeJSON(w, http.StatusOK, dataset)
}

// DatasetListResponse is the paginated list response payload.
type DatasetListResponse struct {
	Items []types.DatasetSummary `json:"items"`
	Page  int                    `json:"page"`
	Limit int                    `json:"limit"`
	Total int                    `json:"total"`
}

func parsePagination(r *http.Request) (page, limit, offset int, err error) {
	page = defaultPage
	limit = defaultLimit

	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, 0, errors.New("invalid page")
		}
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return 0, 0, 0, errors.New("invalid limit")
		}
	}

	if limit > maxLimit {
		limit = maxLimit
	}

	offset = (page - 1) * limit
	return page, limit, offset, nil
}
