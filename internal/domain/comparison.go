package domain

import (
	"time"

	"github.com/google/uuid"
)

// Relationship is the analyzer's verdict on a unit pair.
type Relationship string

const (
	RelationshipAgrees            Relationship = "agrees"
	RelationshipContradicts       Relationship = "contradicts"
	RelationshipUnrelated         Relationship = "unrelated"
	RelationshipPartiallySupports Relationship = "partially_supports"
)

func ValidRelationship(r string) bool {
	switch Relationship(r) {
	case RelationshipAgrees, RelationshipContradicts, RelationshipUnrelated, RelationshipPartiallySupports:
		return true
	}
	return false
}

// ContradictionType classifies how two units disagree.
type ContradictionType string

const (
	ContradictionDirect         ContradictionType = "direct"
	ContradictionPartial        ContradictionType = "partial"
	ContradictionContextual     ContradictionType = "contextual"
	ContradictionMethodological ContradictionType = "methodological"
)

func ValidContradictionType(c string) bool {
	switch ContradictionType(c) {
	case ContradictionDirect, ContradictionPartial, ContradictionContextual, ContradictionMethodological:
		return true
	}
	return false
}

// ComparabilityFactors holds the named contributors to a pair's
// comparability score. All values are in [0,1] and computed
// deterministically, with no model calls.
type ComparabilityFactors struct {
	ConceptOverlap  float64 `json:"concept_overlap"`
	TemporalOverlap float64 `json:"temporal_overlap"`
	SpatialOverlap  float64 `json:"spatial_overlap"`
	Comparability   float64 `json:"comparability"`
}

// UnitComparison is the immutable record of one evaluated pair. Pair
// uniqueness on (min(A,B), max(A,B), granularity) is enforced by the
// storage layer; a second insert for the same pair is a no-op.
type UnitComparison struct {
	ID                uuid.UUID            `json:"id"`
	UnitAID           uuid.UUID            `json:"unit_a_id"`
	UnitBID           uuid.UUID            `json:"unit_b_id"`
	Granularity       GranularityLevel     `json:"granularity"`
	Factors           ComparabilityFactors `json:"factors"`
	Relationship      Relationship         `json:"relationship"`
	AgreementScore    float64              `json:"agreement_score"`
	ContradictionType *ContradictionType   `json:"contradiction_type,omitempty"`
	ConfidenceImpact  float64              `json:"confidence_impact"`
	Explanation       string               `json:"explanation,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
}
