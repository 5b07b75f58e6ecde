package handlers

import (
	"errors"
	"net/http"

	"github.com/crosscheckhq/veritas/internal/domain"
	"github.com/crosscheckhq/veritas/internal/service"
	"github.com/crosscheckhq/veritas/internal/store"
)

type EvaluationHandler struct {
	svc  *service.EvaluationService
	runs domain.EvaluationStore
}

func NewEvaluationHandler(svc *service.EvaluationService, runs domain.EvaluationStore) *EvaluationHandler {
	return &EvaluationHandler{svc: svc, runs: runs}
}

func (h *EvaluationHandler) Run(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.RunOnce(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "evaluation run failed")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *EvaluationHandler) Latest(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.Latest(r.Context())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no evaluation runs yet")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch latest run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}
