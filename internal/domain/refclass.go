package domain

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

// ErrNoReferenceClasses signals an unseeded reference_classes table.
// Matching never invents a default bucket; seeding is an explicit step.
var ErrNoReferenceClasses = errors.New("no reference classes exist")

// BaseRateField names one of the two tracked probabilities per class.
type BaseRateField string

const (
	BaseRateIsReal     BaseRateField = "is_real"
	BaseRateIsSolvable BaseRateField = "is_solvable"
)

func ValidBaseRateField(f string) bool {
	switch BaseRateField(f) {
	case BaseRateIsReal, BaseRateIsSolvable:
		return true
	}
	return false
}

// DefaultReferenceClassName is the universal fallback bucket.
const DefaultReferenceClassName = "Default"

// ReferenceClass is a Laplace-smoothed Beta prior bucket keyed by
// domain/pattern-type overlap. Invariants: alpha, beta >= 1 and
// samples = alpha + beta - 2, incremented by exactly 1 per observation.
type ReferenceClass struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Domains         []string  `json:"domains"`
	PatternTypes    []string  `json:"pattern_types"`
	RealAlpha       float64   `json:"real_alpha"`
	RealBeta        float64   `json:"real_beta"`
	RealSamples     int       `json:"real_samples"`
	SolvableAlpha   float64   `json:"solvable_alpha"`
	SolvableBeta    float64   `json:"solvable_beta"`
	SolvableSamples int       `json:"solvable_samples"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (rc *ReferenceClass) params(field BaseRateField) (alpha, beta float64, samples int) {
	if field == BaseRateIsSolvable {
		return rc.SolvableAlpha, rc.SolvableBeta, rc.SolvableSamples
	}
	return rc.RealAlpha, rc.RealBeta, rc.RealSamples
}

// Mean returns the posterior mean alpha/(alpha+beta) for the field.
func (rc *ReferenceClass) Mean(field BaseRateField) float64 {
	alpha, beta, _ := rc.params(field)
	if alpha+beta == 0 {
		return 0.5
	}
	return alpha / (alpha + beta)
}

// Confidence returns 1 - e^(-n/10): asymptotic credibility in the mean
// that grows with sample size regardless of which way the evidence points.
func (rc *ReferenceClass) Confidence(field BaseRateField) float64 {
	_, _, samples := rc.params(field)
	return 1 - math.Exp(-float64(samples)/10)
}

// MatchScore scores the class against a query: 2 per shared domain plus
// 1 per shared pattern type.
func (rc *ReferenceClass) MatchScore(domains, patternTypes []string) int {
	score := 0
	for _, d := range domains {
		for _, cd := range rc.Domains {
			if d == cd {
				score += 2
				break
			}
		}
	}
	for _, p := range patternTypes {
		for _, cp := range rc.PatternTypes {
			if p == cp {
				score++
				break
			}
		}
	}
	return score
}
