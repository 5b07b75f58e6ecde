package domain

import (
	"time"

	"github.com/google/uuid"
)

// TrendDirection classifies a metric's movement between two runs.
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendDeclining TrendDirection = "declining"
	TrendStable    TrendDirection = "stable"
)

// Classify compares current against previous with a per-metric threshold.
// higherIsBetter flips the sign for metrics like backlog or lag.
func Classify(current, previous, threshold float64, higherIsBetter bool) TrendDirection {
	delta := current - previous
	if !higherIsBetter {
		delta = -delta
	}
	if delta > threshold {
		return TrendImproving
	}
	if delta < -threshold {
		return TrendDeclining
	}
	return TrendStable
}

type AlertSeverity string

const (
	AlertWarning  AlertSeverity = "warning"
	AlertCritical AlertSeverity = "critical"
)

// EvaluationAlert is raised by the evaluation job when a subsystem
// crosses a health threshold.
type EvaluationAlert struct {
	Severity  AlertSeverity `json:"severity"`
	Subsystem string        `json:"subsystem"`
	Message   string        `json:"message"`
}

// EvaluationRun is a point-in-time snapshot of system-wide metrics plus
// the trend classification against the previous run.
type EvaluationRun struct {
	ID                       uuid.UUID                 `json:"id"`
	PatternCount             int                       `json:"pattern_count"`
	PatternAvgConfidence     float64                   `json:"pattern_avg_confidence"`
	PatternLowConfidenceRate float64                   `json:"pattern_low_confidence_rate"`
	SourceHealthyCount       int                       `json:"source_healthy_count"`
	SourceUnhealthyCount     int                       `json:"source_unhealthy_count"`
	SourceAvgReliability     float64                   `json:"source_avg_reliability"`
	SolutionAvgEffectiveness float64                   `json:"solution_avg_effectiveness"`
	FeedbackBacklog          int                       `json:"feedback_backlog"`
	FeedbackLagSeconds       float64                   `json:"feedback_lag_seconds"`
	Trends                   map[string]TrendDirection `json:"trends,omitempty"`
	Alerts                   []EvaluationAlert         `json:"alerts,omitempty"`
	CreatedAt                time.Time                 `json:"created_at"`
}
