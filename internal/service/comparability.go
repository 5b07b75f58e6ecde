package service

import (
	"strings"

	"github.com/crosscheckhq/veritas/internal/domain"
)

// ComparabilityThreshold is the floor below which a pair never reaches
// the analyzer.
const ComparabilityThreshold = 0.3

// DefaultMinConceptOverlap is the candidate-listing floor when the
// caller does not supply one.
const DefaultMinConceptOverlap = 0.1

const (
	conceptWeight  = 0.5
	temporalWeight = 0.25
	spatialWeight  = 0.25
)

// Comparability scores how meaningfully two units at the same
// granularity level can be compared. It is deterministic and makes no
// model calls; this score alone gates which pairs are ever evaluated,
// so it must stay bit-reproducible.
func Comparability(a, b *domain.InformationUnit) domain.ComparabilityFactors {
	f := domain.ComparabilityFactors{
		ConceptOverlap:  conceptOverlap(a, b),
		TemporalOverlap: ordinalOverlap(a.TemporalScope.Rank(), b.TemporalScope.Rank()),
		SpatialOverlap:  ordinalOverlap(a.SpatialScope.Rank(), b.SpatialScope.Rank()),
	}
	f.Comparability = conceptWeight*f.ConceptOverlap +
		temporalWeight*f.TemporalOverlap +
		spatialWeight*f.SpatialOverlap
	return f
}

// Qualifies reports whether a scored pair may be sent to the analyzer.
func Qualifies(f domain.ComparabilityFactors, minConceptOverlap float64) bool {
	return f.Comparability >= ComparabilityThreshold && f.ConceptOverlap >= minConceptOverlap
}

// conceptOverlap is the Jaccard similarity of each unit's combined
// concept and domain tag set. Tags are lowercased so casing drift
// between sources does not split a concept.
func conceptOverlap(a, b *domain.InformationUnit) float64 {
	setA := tagSet(a)
	setB := tagSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}

	intersection := 0
	for tag := range setA {
		if _, ok := setB[tag]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tagSet(u *domain.InformationUnit) map[string]struct{} {
	set := make(map[string]struct{}, len(u.Concepts)+len(u.Domains))
	for _, c := range u.Concepts {
		set[strings.ToLower(strings.TrimSpace(c))] = struct{}{}
	}
	for _, d := range u.Domains {
		set[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}
	delete(set, "")
	return set
}

// ordinalOverlap maps distance on a 6-point ordinal scale to a score:
// identical 1.0, adjacent 0.5, anything further 0.2.
func ordinalOverlap(a, b int) float64 {
	d := a - b
	if d < 0 {
		d = -d
	}
	switch d {
	case 0:
		return 1.0
	case 1:
		return 0.5
	default:
		return 0.2
	}
}
