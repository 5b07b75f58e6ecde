package domain

import (
	"testing"
)

func TestReferenceClass_MeanMonotonicInEvidence(t *testing.T) {
	rc := &ReferenceClass{RealAlpha: 1, RealBeta: 1}

	prev := rc.Mean(BaseRateIsReal)
	for i := 0; i < 20; i++ {
		rc.RealAlpha++
		rc.RealSamples++
		mean := rc.Mean(BaseRateIsReal)
		if mean <= prev {
			t.Fatalf("expected mean strictly increasing with successes, got %f after %f", mean, prev)
		}
		prev = mean
	}
	if prev >= 1 {
		t.Fatalf("expected mean below 1, got %f", prev)
	}
}

func TestReferenceClass_ConfidenceAsymptote(t *testing.T) {
	rc := &ReferenceClass{RealAlpha: 1, RealBeta: 1}

	if rc.Confidence(BaseRateIsReal) != 0 {
		t.Fatalf("expected zero confidence at zero samples, got %f", rc.Confidence(BaseRateIsReal))
	}

	prev := 0.0
	for samples := 1; samples <= 200; samples *= 2 {
		rc.RealSamples = samples
		c := rc.Confidence(BaseRateIsReal)
		if c <= prev {
			t.Fatalf("expected confidence strictly increasing, got %f after %f at %d samples", c, prev, samples)
		}
		if c >= 1 {
			t.Fatalf("expected confidence below 1, got %f at %d samples", c, samples)
		}
		prev = c
	}
}

func TestReferenceClass_MatchScoreWeighting(t *testing.T) {
	rc := &ReferenceClass{
		Domains:      []string{"networking", "infrastructure"},
		PatternTypes: []string{"outage", "degradation"},
	}

	// Two shared domains and one shared pattern type: 2+2+1.
	score := rc.MatchScore([]string{"networking", "infrastructure", "security"}, []string{"outage"})
	if score != 5 {
		t.Fatalf("expected score 5, got %d", score)
	}
	if rc.MatchScore([]string{"astrology"}, []string{"horoscope"}) != 0 {
		t.Fatal("expected zero score without overlap")
	}
	// Duplicate query tags only count once per class entry.
	if rc.MatchScore([]string{"networking"}, nil) != 2 {
		t.Fatal("expected single domain match to score 2")
	}
}
