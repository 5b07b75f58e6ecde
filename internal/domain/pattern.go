package domain

import (
	"time"

	"github.com/google/uuid"
)

// Pattern is a recurring issue signature whose confidence is adjusted by
// verification feedback.
type Pattern struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	PatternType string    `json:"pattern_type"`
	Domains     []string  `json:"domains"`
	Confidence  float64   `json:"confidence"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Source is an external information origin whose dynamic reliability is
// blended with observed verification accuracy.
type Source struct {
	ID                 uuid.UUID  `json:"id"`
	Name               string     `json:"name"`
	URL                string     `json:"url,omitempty"`
	DynamicReliability float64    `json:"dynamic_reliability"`
	TotalVerifications int        `json:"total_verifications"`
	Healthy            bool       `json:"healthy"`
	LastVerifiedAt     *time.Time `json:"last_verified_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// ReliabilityBlendCap limits how much a single accuracy observation can
// move a source's reliability (30%).
const ReliabilityBlendCap = 0.3

// BlendWeight returns the observation weight for a source with n total
// verifications: min(0.3, n*0.05). Influence grows with evidence, capped.
func BlendWeight(totalVerifications int) float64 {
	w := float64(totalVerifications) * 0.05
	if w > ReliabilityBlendCap {
		return ReliabilityBlendCap
	}
	return w
}
