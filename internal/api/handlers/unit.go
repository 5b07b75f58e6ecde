package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/crosscheckhq/veritas/internal/domain"
	"github.com/crosscheckhq/veritas/internal/service"
	"github.com/crosscheckhq/veritas/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type UnitHandler struct {
	ingest     *service.IngestService
	validation *service.CrossValidationService
	units      domain.UnitStore
	comparisons domain.ComparisonStore
}

func NewUnitHandler(ingest *service.IngestService, validation *service.CrossValidationService, units domain.UnitStore, comparisons domain.ComparisonStore) *UnitHandler {
	return &UnitHandler{ingest: ingest, validation: validation, units: units, comparisons: comparisons}
}

type ingestRequest struct {
	SourceText        string  `json:"source_text"`
	SourceType        string  `json:"source_type"`
	SourceID          string  `json:"source_id"`
	SourceCredibility float64 `json:"source_credibility"`
	IssueID           string  `json:"issue_id,omitempty"`
}

func (h *UnitHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SourceText == "" {
		writeError(w, http.StatusBadRequest, "source_text is required")
		return
	}
	if req.SourceCredibility < 0 || req.SourceCredibility > 1 {
		writeError(w, http.StatusBadRequest, "source_credibility must be in [0,1]")
		return
	}

	ingestReq := &service.IngestRequest{
		SourceText:        req.SourceText,
		SourceType:        req.SourceType,
		SourceID:          req.SourceID,
		SourceCredibility: req.SourceCredibility,
	}
	if req.IssueID != "" {
		issueID, err := uuid.Parse(req.IssueID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid issue_id")
			return
		}
		ingestReq.IssueID = &issueID
	}

	result, err := h.ingest.Ingest(r.Context(), ingestReq)
	if err != nil {
		writeError(w, http.StatusBadGateway, "decomposition failed")
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func (h *UnitHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid unit id")
		return
	}

	unit, err := h.units.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unit not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch unit")
		return
	}

	writeJSON(w, http.StatusOK, unit)
}

func (h *UnitHandler) FindComparable(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid unit id")
		return
	}

	minOverlap := service.DefaultMinConceptOverlap
	if raw := r.URL.Query().Get("min_concept_overlap"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 1 {
			writeError(w, http.StatusBadRequest, "invalid min_concept_overlap")
			return
		}
		minOverlap = v
	}

	candidates, err := h.validation.FindComparable(r.Context(), id, minOverlap)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unit not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to find comparable units")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"candidates": candidates, "count": len(candidates)})
}

func (h *UnitHandler) GetComparisons(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid unit id")
		return
	}

	comparisons, err := h.comparisons.GetByUnit(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch comparisons")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"comparisons": comparisons, "count": len(comparisons)})
}
