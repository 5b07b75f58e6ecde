package domain

import (
	"time"

	"github.com/google/uuid"
)

// NegligibleDelta is the floor below which a confidence change is applied
// but not audited.
const NegligibleDelta = 0.001

// Pattern confidence bounds. Multiplicative adjustments never push a
// pattern outside this band.
const (
	MinPatternConfidence = 0.1
	MaxPatternConfidence = 1.0
)

// ClampPatternConfidence bounds a pattern confidence to its band.
func ClampPatternConfidence(v float64) float64 {
	if v < MinPatternConfidence {
		return MinPatternConfidence
	}
	if v > MaxPatternConfidence {
		return MaxPatternConfidence
	}
	return v
}

// ConfidenceAdjustment is the audit record of one applied mutation.
type ConfidenceAdjustment struct {
	ID            uuid.UUID      `json:"id"`
	EntityType    string         `json:"entity_type"`
	EntityID      uuid.UUID      `json:"entity_id"`
	Field         string         `json:"field"`
	PreviousValue float64        `json:"previous_value"`
	NewValue      float64        `json:"new_value"`
	Delta         float64        `json:"delta"`
	Reason        string         `json:"reason"`
	EventID       *uuid.UUID     `json:"event_id,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}
