package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"github.com/crosscheckhq/veritas/internal/domain"
	"github.com/crosscheckhq/veritas/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Recommended-delta shaping. The weighted score's distance from neutral
// is scaled down and capped so one recompute can never swing an entity
// by more than 0.1.
const (
	deltaScale = 0.2
	deltaCap   = 0.1
)

// Base-rate observation bands. A recompute only counts as evidence when
// the weighted score leaves the neutral middle.
const (
	highConsistencyBand = 0.7
	lowConsistencyBand  = 0.3
)

// baseRateObserver routes one observation to the best-matching
// reference class.
type baseRateObserver interface {
	ObserveBestMatch(ctx context.Context, domains, patternTypes []string, field domain.BaseRateField, success bool) error
}

type ConsistencyService struct {
	units       domain.UnitStore
	comparisons domain.ComparisonStore
	snapshots   domain.ConsistencyStore
	baseRates   baseRateObserver
	logger      *zap.Logger
}

func NewConsistencyService(units domain.UnitStore, comparisons domain.ComparisonStore, snapshots domain.ConsistencyStore, baseRates baseRateObserver, logger *zap.Logger) *ConsistencyService {
	return &ConsistencyService{
		units:       units,
		comparisons: comparisons,
		snapshots:   snapshots,
		baseRates:   baseRates,
		logger:      logger,
	}
}

// Recompute rebuilds the entity's consistency snapshot from its current
// unit set and comparison history, then upserts it. When the weighted
// score leaves the neutral band and the unit set actually changed since
// the previous snapshot, one base-rate observation is fed to the
// reference classes.
func (s *ConsistencyService) Recompute(ctx context.Context, entityType string, entityID uuid.UUID) (*domain.ClaimConsistency, error) {
	units, err := s.units.FindByIssue(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("load entity units: %w", err)
	}
	if len(units) == 0 {
		return nil, store.ErrNotFound
	}

	unitIDs := make([]uuid.UUID, len(units))
	for i := range units {
		unitIDs[i] = units[i].ID
	}
	comparisons, err := s.comparisons.GetByUnits(ctx, unitIDs)
	if err != nil {
		return nil, fmt.Errorf("load entity comparisons: %w", err)
	}

	snapshot := buildSnapshot(entityType, entityID, units, comparisons)

	previous, err := s.snapshots.GetByEntity(ctx, entityType, entityID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load previous snapshot: %w", err)
	}
	unitSetChanged := previous == nil || previous.UnitSetFingerprint != snapshot.UnitSetFingerprint

	if err := s.snapshots.Upsert(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("upsert consistency snapshot: %w", err)
	}

	if unitSetChanged {
		s.feedBaseRate(ctx, units, snapshot.WeightedConsistency)
	}

	s.logger.Info("consistency recomputed",
		zap.String("entity_type", entityType),
		zap.String("entity_id", entityID.String()),
		zap.Float64("weighted", snapshot.WeightedConsistency),
		zap.Float64("overall", snapshot.OverallConsistency),
		zap.Bool("unit_set_changed", unitSetChanged))
	return snapshot, nil
}

func (s *ConsistencyService) Get(ctx context.Context, entityType string, entityID uuid.UUID) (*domain.ClaimConsistency, error) {
	return s.snapshots.GetByEntity(ctx, entityType, entityID)
}

// feedBaseRate treats a decisive consistency score as one observation of
// "is-real" for the entity's domains. Failures here are logged, not
// surfaced; the snapshot is already durable.
func (s *ConsistencyService) feedBaseRate(ctx context.Context, units []domain.InformationUnit, weighted float64) {
	var success bool
	switch {
	case weighted >= highConsistencyBand:
		success = true
	case weighted <= lowConsistencyBand:
		success = false
	default:
		return
	}

	domainSet := map[string]struct{}{}
	var domains []string
	for i := range units {
		for _, d := range units[i].Domains {
			if _, ok := domainSet[d]; !ok {
				domainSet[d] = struct{}{}
				domains = append(domains, d)
			}
		}
	}

	if err := s.baseRates.ObserveBestMatch(ctx, domains, nil, domain.BaseRateIsReal, success); err != nil {
		s.logger.Warn("base rate observation failed", zap.Error(err))
	}
}

func buildSnapshot(entityType string, entityID uuid.UUID, units []domain.InformationUnit, comparisons []domain.UnitComparison) *domain.ClaimConsistency {
	type levelAcc struct {
		count          int
		confidenceSum  float64
		sources        map[string]struct{}
		comparisons    int
		agreements     int
		contradictions int
	}

	levelByUnit := make(map[uuid.UUID]domain.GranularityLevel, len(units))
	acc := map[domain.GranularityLevel]*levelAcc{}
	for i := range units {
		u := &units[i]
		levelByUnit[u.ID] = u.Granularity
		la := acc[u.Granularity]
		if la == nil {
			la = &levelAcc{sources: map[string]struct{}{}}
			acc[u.Granularity] = la
		}
		la.count++
		la.confidenceSum += u.Confidence
		la.sources[u.SourceType+":"+u.SourceID] = struct{}{}
	}

	totalComparisons := 0
	totalAgreements := 0
	for i := range comparisons {
		c := &comparisons[i]
		totalComparisons++
		agrees := c.Relationship == domain.RelationshipAgrees
		if agrees {
			totalAgreements++
		}
		if la := acc[levelByUnit[c.UnitAID]]; la != nil {
			la.comparisons++
			if agrees {
				la.agreements++
			}
			if c.Relationship == domain.RelationshipContradicts {
				la.contradictions++
			}
		}
	}

	var levels []domain.LevelSupport
	var weightedSum, weightTotal float64
	for _, level := range domain.GranularityLevels {
		la := acc[level]
		if la == nil {
			continue
		}
		avg := la.confidenceSum / float64(la.count)
		support := domain.LevelSupport{
			Level:              level,
			UnitCount:          la.count,
			SourceCount:        len(la.sources),
			AvgConfidence:      avg,
			ContradictionCount: la.contradictions,
		}
		if la.comparisons > 0 {
			support.AgreementRate = float64(la.agreements) / float64(la.comparisons)
		}
		levels = append(levels, support)

		w := level.FalsifiabilityWeight()
		weightedSum += w * avg * float64(la.count)
		weightTotal += w * float64(la.count)
	}

	weighted := 0.0
	if weightTotal > 0 {
		weighted = weightedSum / weightTotal
	}
	overall := float64(totalAgreements) / float64(max(1, totalComparisons))

	delta := (weighted - 0.5) * deltaScale
	if delta > deltaCap {
		delta = deltaCap
	}
	if delta < -deltaCap {
		delta = -deltaCap
	}

	return &domain.ClaimConsistency{
		EntityType:          entityType,
		EntityID:            entityID,
		Levels:              levels,
		OverallConsistency:  overall,
		WeightedConsistency: weighted,
		RecommendedDelta:    delta,
		Rationale:           buildRationale(levels, overall, weighted, totalComparisons),
		UnitSetFingerprint:  unitSetFingerprint(units),
	}
}

func buildRationale(levels []domain.LevelSupport, overall, weighted float64, comparisons int) string {
	unitTotal := 0
	for _, l := range levels {
		unitTotal += l.UnitCount
	}
	return fmt.Sprintf("%d units across %d granularity levels; %d comparisons; overall agreement %.2f; falsifiability-weighted consistency %.2f",
		unitTotal, len(levels), comparisons, overall, weighted)
}

// unitSetFingerprint hashes the contributing unit IDs with their update
// counts, sorted, so a recompute over an unchanged set is detectable.
func unitSetFingerprint(units []domain.InformationUnit) string {
	parts := make([]string, len(units))
	for i := range units {
		parts[i] = fmt.Sprintf("%s:%d", units[i].ID, units[i].UpdateCount)
	}
	sort.Strings(parts)

	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
