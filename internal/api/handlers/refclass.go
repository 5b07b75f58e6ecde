package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/crosscheckhq/veritas/internal/domain"
	"github.com/crosscheckhq/veritas/internal/service"
	"github.com/crosscheckhq/veritas/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type ReferenceClassHandler struct {
	svc *service.ReferenceClassService
}

func NewReferenceClassHandler(svc *service.ReferenceClassService) *ReferenceClassHandler {
	return &ReferenceClassHandler{svc: svc}
}

func (h *ReferenceClassHandler) List(w http.ResponseWriter, r *http.Request) {
	classes, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list reference classes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"classes": classes, "count": len(classes)})
}

func (h *ReferenceClassHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid reference class id")
		return
	}

	rc, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "reference class not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch reference class")
		return
	}
	writeJSON(w, http.StatusOK, rc)
}

// BaseRate answers (domains, patternTypes, field) queries with the
// best-matching class's posterior mean and credibility.
func (h *ReferenceClassHandler) BaseRate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	field := q.Get("field")
	if field == "" {
		field = string(domain.BaseRateIsReal)
	}
	if !domain.ValidBaseRateField(field) {
		writeError(w, http.StatusBadRequest, "invalid field")
		return
	}

	estimate, err := h.svc.BaseRate(r.Context(), splitCSV(q.Get("domains")), splitCSV(q.Get("pattern_types")), domain.BaseRateField(field))
	if err != nil {
		if errors.Is(err, domain.ErrNoReferenceClasses) {
			writeError(w, http.StatusConflict, "reference classes are not seeded")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to compute base rate")
		return
	}
	writeJSON(w, http.StatusOK, estimate)
}

type observeRequest struct {
	Field   string `json:"field"`
	Success bool   `json:"success"`
}

func (h *ReferenceClassHandler) Observe(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid reference class id")
		return
	}

	var req observeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !domain.ValidBaseRateField(req.Field) {
		writeError(w, http.StatusBadRequest, "invalid field")
		return
	}

	if err := h.svc.Observe(r.Context(), id, domain.BaseRateField(req.Field), req.Success); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "reference class not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to apply observation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

func (h *ReferenceClassHandler) Seed(w http.ResponseWriter, r *http.Request) {
	seeded, err := h.svc.Seed(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "seeding failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"seeded": seeded})
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
