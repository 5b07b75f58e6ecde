package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FeedbackType discriminates the tagged union of feedback payloads.
type FeedbackType string

const (
	FeedbackVerificationResult FeedbackType = "verification_result"
	FeedbackSolutionOutcome    FeedbackType = "solution_outcome"
	FeedbackSourceAccuracy     FeedbackType = "source_accuracy"
	FeedbackPlaybookExecution  FeedbackType = "playbook_execution"
	FeedbackManualCorrection   FeedbackType = "manual_correction"
)

func ValidFeedbackType(t string) bool {
	switch FeedbackType(t) {
	case FeedbackVerificationResult, FeedbackSolutionOutcome, FeedbackSourceAccuracy,
		FeedbackPlaybookExecution, FeedbackManualCorrection:
		return true
	}
	return false
}

type FeedbackStatus string

const (
	StatusPending   FeedbackStatus = "pending"
	StatusProcessed FeedbackStatus = "processed"
	StatusFailed    FeedbackStatus = "failed"
	StatusSkipped   FeedbackStatus = "skipped"
)

// ErrEventSkipped tells the event resolver that the target entity is
// absent or the payload carries nothing to apply; the event is marked
// skipped, not failed.
var ErrEventSkipped = errors.New("event skipped")

// EntityRef points at an adjustment source or target.
type EntityRef struct {
	Type string    `json:"type"`
	ID   uuid.UUID `json:"id"`
}

// FeedbackEvent is an immutable fact about an observed outcome. Status
// transitions pending -> {processed|failed|skipped} exactly once.
type FeedbackEvent struct {
	ID                uuid.UUID       `json:"id"`
	Type              FeedbackType    `json:"type"`
	SourceEntity      EntityRef       `json:"source_entity"`
	TargetEntity      EntityRef       `json:"target_entity"`
	Payload           json.RawMessage `json:"payload"`
	Status            FeedbackStatus  `json:"status"`
	ProcessedAt       *time.Time      `json:"processed_at,omitempty"`
	AdjustmentApplied bool            `json:"adjustment_applied"`
	ErrorMessage      string          `json:"error_message,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// VerificationStatus is the outcome class of one verification pass.
type VerificationStatus string

const (
	VerificationCorroborated       VerificationStatus = "corroborated"
	VerificationPartiallySupported VerificationStatus = "partially_supported"
	VerificationContested          VerificationStatus = "contested"
	VerificationUnverified         VerificationStatus = "unverified"
)

// VerificationMultipliers maps verification outcomes to pattern
// confidence multipliers. Results are clamped to [MinPatternConfidence,
// MaxPatternConfidence] after application.
var VerificationMultipliers = map[VerificationStatus]float64{
	VerificationCorroborated:       1.05,
	VerificationPartiallySupported: 0.95,
	VerificationContested:          0.85,
	VerificationUnverified:         0.98,
}

type VerificationResultPayload struct {
	VerificationStatus VerificationStatus `json:"verification_status"`
	OriginalConfidence float64            `json:"original_confidence"`
	AdjustedConfidence float64            `json:"adjusted_confidence"`
}

type SolutionOutcomePayload struct {
	EffectivenessScore float64  `json:"effectiveness_score"`
	ImpactVariance     float64  `json:"impact_variance"`
	MetricsAchieved    []string `json:"metrics_achieved,omitempty"`
	MetricsMissed      []string `json:"metrics_missed,omitempty"`
}

type SourceAccuracyPayload struct {
	AccuracyScore     float64 `json:"accuracy_score"`
	VerificationCount int     `json:"verification_count"`
	Alignment         string  `json:"alignment,omitempty"`
}

type PlaybookExecutionPayload struct {
	PlaybookID     string  `json:"playbook_id"`
	Success        bool    `json:"success"`
	CompletionRate float64 `json:"completion_rate"`
	DurationMs     int64   `json:"duration_ms"`
	ErrorCount     int     `json:"error_count"`
}

type ManualCorrectionPayload struct {
	Field    string  `json:"field"`
	NewValue float64 `json:"new_value"`
	Reason   string  `json:"reason"`
}

// DecodePayload unmarshals the event payload into the concrete type for
// the event's feedback kind. Unknown kinds are an error, not a silent
// map decode.
func (e *FeedbackEvent) DecodePayload() (any, error) {
	switch e.Type {
	case FeedbackVerificationResult:
		var p VerificationResultPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode verification_result payload: %w", err)
		}
		return &p, nil
	case FeedbackSolutionOutcome:
		var p SolutionOutcomePayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode solution_outcome payload: %w", err)
		}
		return &p, nil
	case FeedbackSourceAccuracy:
		var p SourceAccuracyPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode source_accuracy payload: %w", err)
		}
		return &p, nil
	case FeedbackPlaybookExecution:
		var p PlaybookExecutionPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode playbook_execution payload: %w", err)
		}
		return &p, nil
	case FeedbackManualCorrection:
		var p ManualCorrectionPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode manual_correction payload: %w", err)
		}
		return &p, nil
	default:
		return nil, fmt.Errorf("unknown feedback type: %s", e.Type)
	}
}
