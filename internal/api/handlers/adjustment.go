package handlers

import (
	"net/http"
	"strconv"

	"github.com/crosscheckhq/veritas/internal/domain"
	"github.com/google/uuid"
)

type AdjustmentHandler struct {
	adjustments domain.AdjustmentStore
	learnings   domain.LearningStore
}

func NewAdjustmentHandler(adjustments domain.AdjustmentStore, learnings domain.LearningStore) *AdjustmentHandler {
	return &AdjustmentHandler{adjustments: adjustments, learnings: learnings}
}

// ListByEntity returns the adjustment history for one entity, newest
// first.
func (h *AdjustmentHandler) ListByEntity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entityType := q.Get("entity_type")
	if entityType == "" {
		writeError(w, http.StatusBadRequest, "entity_type is required")
		return
	}
	entityID, err := uuid.Parse(q.Get("entity_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entity_id")
		return
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	adjustments, err := h.adjustments.ListByEntity(r.Context(), entityType, entityID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list adjustments")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"adjustments": adjustments, "count": len(adjustments)})
}

// ListLearnings returns all learning buckets in one category.
func (h *AdjustmentHandler) ListLearnings(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	switch domain.LearningCategory(category) {
	case domain.LearningVerification, domain.LearningSolution, domain.LearningSource, domain.LearningPlaybook:
	default:
		writeError(w, http.StatusBadRequest, "invalid category")
		return
	}

	learnings, err := h.learnings.ListByCategory(r.Context(), domain.LearningCategory(category))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list learnings")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"learnings": learnings, "count": len(learnings)})
}
