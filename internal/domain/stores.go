package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type UnitStore interface {
	// Create inserts the unit unless another unit shares its statement
	// fingerprint; in that case the existing unit is returned and created
	// is false. The conflict check is a storage-level unique constraint.
	Create(ctx context.Context, u *InformationUnit) (unit *InformationUnit, created bool, err error)
	GetByID(ctx context.Context, id uuid.UUID) (*InformationUnit, error)
	GetByFingerprint(ctx context.Context, fingerprint string) (*InformationUnit, error)
	FindByGranularity(ctx context.Context, level GranularityLevel, domains []string) ([]InformationUnit, error)
	FindByIssue(ctx context.Context, issueID uuid.UUID) ([]InformationUnit, error)
	// UpdateConfidence clamps to [0,1] in SQL and bumps update_count.
	UpdateConfidence(ctx context.Context, id uuid.UUID, confidence float64) error
	FindSimilarStatements(ctx context.Context, embedding []float32, threshold float32, limit int) ([]UnitWithScore, error)
}

type ComparisonStore interface {
	// Create persists the comparison. Returns false when the unordered
	// pair was already compared at this granularity level (no-op).
	Create(ctx context.Context, c *UnitComparison) (created bool, err error)
	Exists(ctx context.Context, a, b uuid.UUID, level GranularityLevel) (bool, error)
	GetByUnit(ctx context.Context, unitID uuid.UUID) ([]UnitComparison, error)
	GetByUnits(ctx context.Context, unitIDs []uuid.UUID) ([]UnitComparison, error)
}

type ConsistencyStore interface {
	Upsert(ctx context.Context, c *ClaimConsistency) error
	GetByEntity(ctx context.Context, entityType string, entityID uuid.UUID) (*ClaimConsistency, error)
}

type ReferenceClassStore interface {
	Create(ctx context.Context, rc *ReferenceClass) error
	GetByID(ctx context.Context, id uuid.UUID) (*ReferenceClass, error)
	List(ctx context.Context) ([]ReferenceClass, error)
	Count(ctx context.Context) (int, error)
	// ApplyObservation folds exactly one unit of evidence into the field:
	// success increments alpha, failure increments beta, samples += 1.
	ApplyObservation(ctx context.Context, id uuid.UUID, field BaseRateField, success bool) error
}

// EventOutcome is the terminal state the resolver writes for one event.
type EventOutcome struct {
	Status   FeedbackStatus
	Error    string
	Adjusted bool
}

// AdjustmentTx is the transactional surface available while resolving a
// feedback event. Lock* reads take a row lock so two adjustments to the
// same entity apply in submission order.
type AdjustmentTx interface {
	LockPattern(ctx context.Context, id uuid.UUID) (*Pattern, error)
	SetPatternConfidence(ctx context.Context, id uuid.UUID, confidence float64) error
	LockSource(ctx context.Context, id uuid.UUID) (*Source, error)
	SetSourceReliability(ctx context.Context, id uuid.UUID, reliability float64, totalVerifications int) error
	RecordAdjustment(ctx context.Context, a *ConfidenceAdjustment) error
	GetLearning(ctx context.Context, key LearningKey) (*SystemLearning, error)
	UpsertLearning(ctx context.Context, l *SystemLearning) error
}

type FeedbackStore interface {
	Enqueue(ctx context.Context, e *FeedbackEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*FeedbackEvent, error)
	ListPending(ctx context.Context, limit int) ([]FeedbackEvent, error)
	CountPending(ctx context.Context) (int, error)
	OldestPendingAge(ctx context.Context) (time.Duration, error)
	// Resolve runs mutate and the event's status transition in one
	// transaction. mutate returning nil marks the event processed,
	// ErrEventSkipped marks it skipped, any other error rolls the
	// mutation back and marks the event failed with the error text.
	Resolve(ctx context.Context, eventID uuid.UUID, mutate func(ctx context.Context, tx AdjustmentTx) (adjusted bool, err error)) (EventOutcome, error)
}

type AdjustmentStore interface {
	ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]ConfidenceAdjustment, error)
}

type LearningStore interface {
	GetByKey(ctx context.Context, key LearningKey) (*SystemLearning, error)
	ListByCategory(ctx context.Context, category LearningCategory) ([]SystemLearning, error)
}

// PatternStats aggregates the pattern table for evaluation snapshots.
type PatternStats struct {
	Count             int
	AvgConfidence     float64
	LowConfidenceRate float64
}

type PatternStore interface {
	Create(ctx context.Context, p *Pattern) error
	GetByID(ctx context.Context, id uuid.UUID) (*Pattern, error)
	Stats(ctx context.Context) (PatternStats, error)
}

// SourceStats aggregates the source table for evaluation snapshots.
type SourceStats struct {
	HealthyCount   int
	UnhealthyCount int
	AvgReliability float64
}

type SourceStore interface {
	Create(ctx context.Context, s *Source) error
	GetByID(ctx context.Context, id uuid.UUID) (*Source, error)
	Stats(ctx context.Context) (SourceStats, error)
}

type EvaluationStore interface {
	Create(ctx context.Context, run *EvaluationRun) error
	Latest(ctx context.Context) (*EvaluationRun, error)
}

// DecomposedUnit is one analyzer-proposed evidentiary unit before
// persistence.
type DecomposedUnit struct {
	Statement             string           `json:"statement"`
	Granularity           GranularityLevel `json:"granularity"`
	GranularityConfidence float64          `json:"granularity_confidence"`
	TemporalScope         TemporalScope    `json:"temporal_scope"`
	SpatialScope          SpatialScope     `json:"spatial_scope"`
	Domains               []string         `json:"domains"`
	Concepts              []string         `json:"concepts"`
	Falsifiability        float64          `json:"falsifiability"`
	Quantitative          map[string]any   `json:"quantitative,omitempty"`
}

// ComparisonVerdict is the analyzer's judgment on one qualifying pair.
// ConfidenceImpact is in [-1,1] and is applied symmetrically to both
// units.
type ComparisonVerdict struct {
	Relationship      Relationship       `json:"relationship"`
	AgreementScore    float64            `json:"agreement_score"`
	ContradictionType *ContradictionType `json:"contradiction_type,omitempty"`
	ConfidenceImpact  float64            `json:"confidence_impact"`
	Explanation       string             `json:"explanation"`
}

// ClaimAnalyzer is the external model-backed collaborator. Its output is
// treated as ground truth input; its failures are always a skip, never a
// crash.
type ClaimAnalyzer interface {
	Decompose(ctx context.Context, sourceText string, sourceCredibility float64) ([]DecomposedUnit, error)
	Compare(ctx context.Context, a, b *InformationUnit) (*ComparisonVerdict, error)
}

type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
