package handlers

import (
	"errors"
	"net/http"

	"github.com/crosscheckhq/veritas/internal/service"
	"github.com/crosscheckhq/veritas/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// issueEntityType is the entity type consistency snapshots are keyed by.
const issueEntityType = "issue"

type ValidationHandler struct {
	validation  *service.CrossValidationService
	consistency *service.ConsistencyService
}

func NewValidationHandler(validation *service.CrossValidationService, consistency *service.ConsistencyService) *ValidationHandler {
	return &ValidationHandler{validation: validation, consistency: consistency}
}

func (h *ValidationHandler) ValidateIssue(w http.ResponseWriter, r *http.Request) {
	issueID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid issue id")
		return
	}

	result, err := h.validation.ValidateIssue(r.Context(), issueID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cross-validation failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *ValidationHandler) RecomputeConsistency(w http.ResponseWriter, r *http.Request) {
	issueID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid issue id")
		return
	}

	snapshot, err := h.consistency.Recompute(r.Context(), issueEntityType, issueID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "issue has no units")
			return
		}
		writeError(w, http.StatusInternalServerError, "consistency recompute failed")
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

func (h *ValidationHandler) GetConsistency(w http.ResponseWriter, r *http.Request) {
	issueID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid issue id")
		return
	}

	snapshot, err := h.consistency.Get(r.Context(), issueEntityType, issueID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no consistency snapshot for issue")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch consistency")
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}
