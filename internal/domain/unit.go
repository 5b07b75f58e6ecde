package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GranularityLevel is a rung on the falsifiability ladder, ordered from
// least falsifiable (paradigm) to most falsifiable (data_point).
type GranularityLevel string

const (
	GranularityParadigm    GranularityLevel = "paradigm"
	GranularityTheory      GranularityLevel = "theory"
	GranularityMechanism   GranularityLevel = "mechanism"
	GranularityCausalClaim GranularityLevel = "causal_claim"
	GranularityStatistical GranularityLevel = "statistical"
	GranularityObservation GranularityLevel = "observation"
	GranularityDataPoint   GranularityLevel = "data_point"
)

// GranularityLevels lists all levels in ascending falsifiability order.
var GranularityLevels = []GranularityLevel{
	GranularityParadigm,
	GranularityTheory,
	GranularityMechanism,
	GranularityCausalClaim,
	GranularityStatistical,
	GranularityObservation,
	GranularityDataPoint,
}

func ValidGranularityLevel(g string) bool {
	switch GranularityLevel(g) {
	case GranularityParadigm, GranularityTheory, GranularityMechanism,
		GranularityCausalClaim, GranularityStatistical, GranularityObservation, GranularityDataPoint:
		return true
	}
	return false
}

// Rank returns the position on the ladder, 0 = paradigm.
func (g GranularityLevel) Rank() int {
	for i, level := range GranularityLevels {
		if level == g {
			return i
		}
	}
	return -1
}

// FalsifiabilityWeight returns the aggregation weight for the level.
// More falsifiable levels carry more weight in consistency rollups.
func (g GranularityLevel) FalsifiabilityWeight() float64 {
	switch g {
	case GranularityParadigm:
		return 0.10
	case GranularityTheory:
		return 0.30
	case GranularityMechanism:
		return 0.45
	case GranularityCausalClaim:
		return 0.60
	case GranularityStatistical:
		return 0.75
	case GranularityObservation:
		return 0.85
	case GranularityDataPoint:
		return 0.95
	default:
		return 0.50
	}
}

// TemporalScope is a 6-point ordinal from timeless to point-in-time.
type TemporalScope string

const (
	TemporalTimeless TemporalScope = "timeless"
	TemporalEra      TemporalScope = "era"
	TemporalDecade   TemporalScope = "decade"
	TemporalYear     TemporalScope = "year"
	TemporalRecent   TemporalScope = "recent"
	TemporalPoint    TemporalScope = "point"
)

var temporalOrder = []TemporalScope{
	TemporalTimeless, TemporalEra, TemporalDecade, TemporalYear, TemporalRecent, TemporalPoint,
}

func (t TemporalScope) Rank() int {
	for i, s := range temporalOrder {
		if s == t {
			return i
		}
	}
	return -1
}

func ValidTemporalScope(t string) bool {
	return TemporalScope(t).Rank() >= 0
}

// SpatialScope is a 6-point ordinal from universal to site-specific.
type SpatialScope string

const (
	SpatialUniversal SpatialScope = "universal"
	SpatialGlobal    SpatialScope = "global"
	SpatialRegional  SpatialScope = "regional"
	SpatialNational  SpatialScope = "national"
	SpatialLocal     SpatialScope = "local"
	SpatialSpecific  SpatialScope = "specific"
)

var spatialOrder = []SpatialScope{
	SpatialUniversal, SpatialGlobal, SpatialRegional, SpatialNational, SpatialLocal, SpatialSpecific,
}

func (s SpatialScope) Rank() int {
	for i, sc := range spatialOrder {
		if sc == s {
			return i
		}
	}
	return -1
}

func ValidSpatialScope(s string) bool {
	return SpatialScope(s).Rank() >= 0
}

// Fingerprint returns the deterministic content hash used for
// upsert-by-content deduplication. Normalization: lowercase, collapse
// whitespace runs, strip trailing sentence punctuation.
func Fingerprint(statement string) string {
	normalized := strings.ToLower(strings.TrimSpace(statement))
	normalized = strings.Join(strings.Fields(normalized), " ")
	normalized = strings.TrimRight(normalized, ".!?")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// InformationUnit is an atomic, falsifiable-or-not statement decomposed
// from one source item. Confidence is mutated only by the cross-validation
// engine and the feedback processor; units are superseded, never deleted.
type InformationUnit struct {
	ID                    uuid.UUID        `json:"id"`
	Statement             string           `json:"statement"`
	Fingerprint           string           `json:"fingerprint"`
	SourceType            string           `json:"source_type"`
	SourceID              string           `json:"source_id"`
	IssueID               *uuid.UUID       `json:"issue_id,omitempty"`
	Granularity           GranularityLevel `json:"granularity"`
	GranularityConfidence float64          `json:"granularity_confidence"`
	TemporalScope         TemporalScope    `json:"temporal_scope"`
	SpatialScope          SpatialScope     `json:"spatial_scope"`
	Domains               []string         `json:"domains"`
	Concepts              []string         `json:"concepts"`
	Falsifiability        float64          `json:"falsifiability"`
	Quantitative          map[string]any   `json:"quantitative,omitempty"`
	PriorConfidence       float64          `json:"prior_confidence"`
	Confidence            float64          `json:"confidence"`
	UpdateCount           int              `json:"update_count"`
	KBValidated           bool             `json:"kb_validated"`
	Embedding             []float32        `json:"-"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
}

// UnitWithScore pairs a unit with a similarity score from vector lookup.
type UnitWithScore struct {
	InformationUnit
	Score float32 `json:"score"`
}

// ClampConfidence bounds a confidence value to [0,1].
func ClampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
