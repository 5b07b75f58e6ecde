package domain

import (
	"time"

	"github.com/google/uuid"
)

// LearningCategory partitions learnings so unrelated keys cannot collide.
type LearningCategory string

const (
	LearningVerification LearningCategory = "verification"
	LearningSolution     LearningCategory = "solution"
	LearningSource       LearningCategory = "source"
	LearningPlaybook     LearningCategory = "playbook"
)

// LearningKey is the structured composite key for a learning bucket.
type LearningKey struct {
	Category LearningCategory `json:"category"`
	Key      string           `json:"key"`
}

// MaxInsights bounds the free-text insight list per bucket; the oldest
// entries are dropped first.
const MaxInsights = 20

// LearningInsight is one qualitative observation with provenance.
type LearningInsight struct {
	Text      string     `json:"text"`
	EventID   *uuid.UUID `json:"event_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// SystemLearning is a rolling aggregate for one (category, key) bucket.
type SystemLearning struct {
	ID               uuid.UUID         `json:"id"`
	Category         LearningCategory  `json:"category"`
	Key              string            `json:"key"`
	SampleSize       int               `json:"sample_size"`
	SuccessCount     int               `json:"success_count"`
	FailureCount     int               `json:"failure_count"`
	SuccessRate      float64           `json:"success_rate"`
	AvgConfidence    float64           `json:"avg_confidence"`
	AvgEffectiveness float64           `json:"avg_effectiveness"`
	AvgAccuracy      float64           `json:"avg_accuracy"`
	Insights         []LearningInsight `json:"insights,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// Observe folds one success/failure observation into the bucket.
func (l *SystemLearning) Observe(success bool) {
	l.SampleSize++
	if success {
		l.SuccessCount++
	} else {
		l.FailureCount++
	}
	total := l.SuccessCount + l.FailureCount
	if total > 0 {
		l.SuccessRate = float64(l.SuccessCount) / float64(total)
	}
}

// runningAvg folds x into avg as the n-th observation.
func runningAvg(avg, x float64, n int) float64 {
	if n <= 1 {
		return x
	}
	return avg + (x-avg)/float64(n)
}

// ObserveConfidence folds a confidence observation into the running mean.
func (l *SystemLearning) ObserveConfidence(x float64) {
	l.AvgConfidence = runningAvg(l.AvgConfidence, x, l.SampleSize)
}

// ObserveEffectiveness folds an effectiveness observation into the running mean.
func (l *SystemLearning) ObserveEffectiveness(x float64) {
	l.AvgEffectiveness = runningAvg(l.AvgEffectiveness, x, l.SampleSize)
}

// ObserveAccuracy folds an accuracy observation into the running mean.
func (l *SystemLearning) ObserveAccuracy(x float64) {
	l.AvgAccuracy = runningAvg(l.AvgAccuracy, x, l.SampleSize)
}

// AddInsight appends a qualitative insight, evicting the oldest past
// MaxInsights.
func (l *SystemLearning) AddInsight(text string, eventID *uuid.UUID, at time.Time) {
	l.Insights = append(l.Insights, LearningInsight{Text: text, EventID: eventID, CreatedAt: at})
	if len(l.Insights) > MaxInsights {
		l.Insights = l.Insights[len(l.Insights)-MaxInsights:]
	}
}
