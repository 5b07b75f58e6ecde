package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/crosscheckhq/veritas/internal/domain"
	"github.com/crosscheckhq/veritas/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// EntityHandler manages the pattern and source records that feedback
// events target.
type EntityHandler struct {
	patterns domain.PatternStore
	sources  domain.SourceStore
}

func NewEntityHandler(patterns domain.PatternStore, sources domain.SourceStore) *EntityHandler {
	return &EntityHandler{patterns: patterns, sources: sources}
}

type createPatternRequest struct {
	Name        string   `json:"name"`
	PatternType string   `json:"pattern_type"`
	Domains     []string `json:"domains"`
	Confidence  float64  `json:"confidence"`
}

func (h *EntityHandler) CreatePattern(w http.ResponseWriter, r *http.Request) {
	var req createPatternRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	pattern := &domain.Pattern{
		Name:        req.Name,
		PatternType: req.PatternType,
		Domains:     req.Domains,
		Confidence:  domain.ClampPatternConfidence(req.Confidence),
	}
	if err := h.patterns.Create(r.Context(), pattern); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create pattern")
		return
	}
	writeJSON(w, http.StatusCreated, pattern)
}

func (h *EntityHandler) GetPattern(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid pattern id")
		return
	}

	pattern, err := h.patterns.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "pattern not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch pattern")
		return
	}
	writeJSON(w, http.StatusOK, pattern)
}

type createSourceRequest struct {
	Name               string  `json:"name"`
	URL                string  `json:"url,omitempty"`
	DynamicReliability float64 `json:"dynamic_reliability"`
}

func (h *EntityHandler) CreateSource(w http.ResponseWriter, r *http.Request) {
	var req createSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	src := &domain.Source{
		Name:               req.Name,
		URL:                req.URL,
		DynamicReliability: domain.ClampConfidence(req.DynamicReliability),
		Healthy:            true,
	}
	if err := h.sources.Create(r.Context(), src); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create source")
		return
	}
	writeJSON(w, http.StatusCreated, src)
}

func (h *EntityHandler) GetSource(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid source id")
		return
	}

	src, err := h.sources.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "source not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch source")
		return
	}
	writeJSON(w, http.StatusOK, src)
}
