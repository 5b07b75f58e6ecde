package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/crosscheckhq/veritas/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultAnalyzerTimeout bounds one analyzer call; a timeout is a skip,
// never a crash.
const DefaultAnalyzerTimeout = 30 * time.Second

// ComparableCandidate is one same-level unit ranked against a subject
// unit.
type ComparableCandidate struct {
	Unit    domain.InformationUnit      `json:"unit"`
	Factors domain.ComparabilityFactors `json:"factors"`
}

// ValidationResult summarizes one cross-validation pass over an entity.
type ValidationResult struct {
	UnitCount       int `json:"unit_count"`
	PairsConsidered int `json:"pairs_considered"`
	PairsCompared   int `json:"pairs_compared"`
	PairsSkipped    int `json:"pairs_skipped"`
	AnalyzerErrors  int `json:"analyzer_errors"`
}

type CrossValidationService struct {
	units           domain.UnitStore
	comparisons     domain.ComparisonStore
	analyzer        domain.ClaimAnalyzer
	analyzerTimeout time.Duration
	logger          *zap.Logger
}

func NewCrossValidationService(units domain.UnitStore, comparisons domain.ComparisonStore, analyzer domain.ClaimAnalyzer, analyzerTimeout time.Duration, logger *zap.Logger) *CrossValidationService {
	if analyzerTimeout <= 0 {
		analyzerTimeout = DefaultAnalyzerTimeout
	}
	return &CrossValidationService{
		units:           units,
		comparisons:     comparisons,
		analyzer:        analyzer,
		analyzerTimeout: analyzerTimeout,
		logger:          logger,
	}
}

// FindComparable returns same-granularity candidates for the unit,
// ranked by comparability, filtered by the concept-overlap floor.
func (s *CrossValidationService) FindComparable(ctx context.Context, unitID uuid.UUID, minConceptOverlap float64) ([]ComparableCandidate, error) {
	if minConceptOverlap <= 0 {
		minConceptOverlap = DefaultMinConceptOverlap
	}

	subject, err := s.units.GetByID(ctx, unitID)
	if err != nil {
		return nil, err
	}

	peers, err := s.units.FindByGranularity(ctx, subject.Granularity, subject.Domains)
	if err != nil {
		return nil, fmt.Errorf("find comparable candidates: %w", err)
	}

	var candidates []ComparableCandidate
	for i := range peers {
		if peers[i].ID == subject.ID {
			continue
		}
		f := Comparability(subject, &peers[i])
		if !Qualifies(f, minConceptOverlap) {
			continue
		}
		candidates = append(candidates, ComparableCandidate{Unit: peers[i], Factors: f})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Factors.Comparability > candidates[j].Factors.Comparability
	})
	return candidates, nil
}

// ValidateIssue cross-validates every qualifying same-level pair among
// the issue's units. Each new comparison's confidence impact is applied
// identically to both units; agreement and contradiction are treated as
// evidence about both claims equally. Already-compared pairs are
// skipped, so repeat invocations are no-ops.
func (s *CrossValidationService) ValidateIssue(ctx context.Context, issueID uuid.UUID) (*ValidationResult, error) {
	if s.analyzer == nil {
		return nil, errors.New("analyzer client not configured")
	}

	units, err := s.units.FindByIssue(ctx, issueID)
	if err != nil {
		return nil, fmt.Errorf("load issue units: %w", err)
	}

	result := &ValidationResult{UnitCount: len(units)}

	byLevel := make(map[domain.GranularityLevel][]*domain.InformationUnit)
	for i := range units {
		byLevel[units[i].Granularity] = append(byLevel[units[i].Granularity], &units[i])
	}

	for _, level := range domain.GranularityLevels {
		peers := byLevel[level]
		for i := 0; i < len(peers); i++ {
			for j := i + 1; j < len(peers); j++ {
				result.PairsConsidered++
				if err := s.validatePair(ctx, peers[i], peers[j], result); err != nil {
					return nil, err
				}
			}
		}
	}

	s.logger.Info("cross-validation pass complete",
		zap.String("issue_id", issueID.String()),
		zap.Int("units", result.UnitCount),
		zap.Int("compared", result.PairsCompared),
		zap.Int("skipped", result.PairsSkipped),
		zap.Int("analyzer_errors", result.AnalyzerErrors))
	return result, nil
}

func (s *CrossValidationService) validatePair(ctx context.Context, a, b *domain.InformationUnit, result *ValidationResult) error {
	factors := Comparability(a, b)
	if !Qualifies(factors, DefaultMinConceptOverlap) {
		result.PairsSkipped++
		return nil
	}

	exists, err := s.comparisons.Exists(ctx, a.ID, b.ID, a.Granularity)
	if err != nil {
		return fmt.Errorf("check pair history: %w", err)
	}
	if exists {
		result.PairsSkipped++
		return nil
	}

	verdict, err := s.compare(ctx, a, b)
	if err != nil {
		// Analyzer trouble skips the pair; the batch continues.
		s.logger.Warn("analyzer comparison failed, skipping pair",
			zap.String("unit_a", a.ID.String()),
			zap.String("unit_b", b.ID.String()),
			zap.Error(err))
		result.AnalyzerErrors++
		result.PairsSkipped++
		return nil
	}

	comparison := &domain.UnitComparison{
		UnitAID:           a.ID,
		UnitBID:           b.ID,
		Granularity:       a.Granularity,
		Factors:           factors,
		Relationship:      verdict.Relationship,
		AgreementScore:    verdict.AgreementScore,
		ContradictionType: verdict.ContradictionType,
		ConfidenceImpact:  clampImpact(verdict.ConfidenceImpact),
		Explanation:       verdict.Explanation,
	}

	created, err := s.comparisons.Create(ctx, comparison)
	if err != nil {
		return fmt.Errorf("persist comparison: %w", err)
	}
	if !created {
		// A concurrent worker got there first; its delta already applied.
		result.PairsSkipped++
		return nil
	}

	if err := s.applyImpact(ctx, a, comparison.ConfidenceImpact); err != nil {
		return err
	}
	if err := s.applyImpact(ctx, b, comparison.ConfidenceImpact); err != nil {
		return err
	}

	result.PairsCompared++
	return nil
}

func (s *CrossValidationService) compare(ctx context.Context, a, b *domain.InformationUnit) (*domain.ComparisonVerdict, error) {
	cctx, cancel := context.WithTimeout(ctx, s.analyzerTimeout)
	defer cancel()
	return s.analyzer.Compare(cctx, a, b)
}

// applyImpact shifts one unit's confidence by delta and keeps the
// in-memory copy current so later pairs in the same pass see the shift.
func (s *CrossValidationService) applyImpact(ctx context.Context, u *domain.InformationUnit, delta float64) error {
	next := domain.ClampConfidence(u.Confidence + delta)
	if err := s.units.UpdateConfidence(ctx, u.ID, next); err != nil {
		return fmt.Errorf("apply confidence impact to unit %s: %w", u.ID, err)
	}
	u.Confidence = next
	u.UpdateCount++
	return nil
}

func clampImpact(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
