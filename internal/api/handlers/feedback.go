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

type FeedbackHandler struct {
	processor *service.FeedbackProcessor
	events    domain.FeedbackStore
}

func NewFeedbackHandler(processor *service.FeedbackProcessor, events domain.FeedbackStore) *FeedbackHandler {
	return &FeedbackHandler{processor: processor, events: events}
}

type enqueueFeedbackRequest struct {
	Type             string          `json:"type"`
	SourceEntityType string          `json:"source_entity_type"`
	SourceEntityID   string          `json:"source_entity_id"`
	TargetEntityType string          `json:"target_entity_type"`
	TargetEntityID   string          `json:"target_entity_id"`
	Payload          json.RawMessage `json:"payload"`
}

func (h *FeedbackHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !domain.ValidFeedbackType(req.Type) {
		writeError(w, http.StatusBadRequest, "invalid feedback type")
		return
	}

	targetID, err := uuid.Parse(req.TargetEntityID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid target_entity_id")
		return
	}
	var sourceID uuid.UUID
	if req.SourceEntityID != "" {
		sourceID, err = uuid.Parse(req.SourceEntityID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid source_entity_id")
			return
		}
	}

	event := &domain.FeedbackEvent{
		Type:         domain.FeedbackType(req.Type),
		SourceEntity: domain.EntityRef{Type: req.SourceEntityType, ID: sourceID},
		TargetEntity: domain.EntityRef{Type: req.TargetEntityType, ID: targetID},
		Payload:      req.Payload,
	}

	if err := h.processor.Enqueue(r.Context(), event); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// Process drains pending events. The optional max query parameter caps
// the batch below the configured default.
func (h *FeedbackHandler) Process(w http.ResponseWriter, r *http.Request) {
	maxEvents := 0
	if raw := r.URL.Query().Get("max"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "invalid max")
			return
		}
		maxEvents = v
	}

	result, err := h.processor.ProcessPending(r.Context(), maxEvents)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "feedback processing failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *FeedbackHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	event, err := h.events.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch event")
		return
	}

	writeJSON(w, http.StatusOK, event)
}
