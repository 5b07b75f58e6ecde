package domain

import (
	"time"

	"github.com/google/uuid"
)

// LevelSupport summarizes the evidentiary units backing an entity at one
// granularity level.
type LevelSupport struct {
	Level              GranularityLevel `json:"level"`
	UnitCount          int              `json:"unit_count"`
	SourceCount        int              `json:"source_count"`
	AvgConfidence      float64          `json:"avg_confidence"`
	AgreementRate      float64          `json:"agreement_rate"`
	ContradictionCount int              `json:"contradiction_count"`
}

// ClaimConsistency is the aggregate snapshot for one entity, upserted on
// every material change of the entity's unit set. UnitSetFingerprint is a
// hash of the contributing unit IDs and their update counts, used to keep
// recomputes idempotent.
type ClaimConsistency struct {
	ID                  uuid.UUID      `json:"id"`
	EntityType          string         `json:"entity_type"`
	EntityID            uuid.UUID      `json:"entity_id"`
	Levels              []LevelSupport `json:"levels"`
	OverallConsistency  float64        `json:"overall_consistency"`
	WeightedConsistency float64        `json:"weighted_consistency"`
	RecommendedDelta    float64        `json:"recommended_delta"`
	Rationale           string         `json:"rationale"`
	UnitSetFingerprint  string         `json:"unit_set_fingerprint"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}
