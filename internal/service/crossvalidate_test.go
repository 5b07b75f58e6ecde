package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/crosscheckhq/veritas/internal/analyzer"
	"github.com/crosscheckhq/veritas/internal/domain"
	"github.com/crosscheckhq/veritas/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

// mockUnitStore implements domain.UnitStore in memory.
type mockUnitStore struct {
	units []*domain.InformationUnit
}

func newMockUnitStore() *mockUnitStore {
	return &mockUnitStore{}
}

func (m *mockUnitStore) Create(ctx context.Context, u *domain.InformationUnit) (*domain.InformationUnit, bool, error) {
	if u.Fingerprint == "" {
		u.Fingerprint = domain.Fingerprint(u.Statement)
	}
	for _, existing := range m.units {
		if existing.Fingerprint == u.Fingerprint {
			return existing, false, nil
		}
	}
	u.ID = uuid.New()
	stored := *u
	m.units = append(m.units, &stored)
	return &stored, true, nil
}

func (m *mockUnitStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.InformationUnit, error) {
	for _, u := range m.units {
		if u.ID == id {
			copied := *u
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockUnitStore) GetByFingerprint(ctx context.Context, fingerprint string) (*domain.InformationUnit, error) {
	for _, u := range m.units {
		if u.Fingerprint == fingerprint {
			copied := *u
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockUnitStore) FindByGranularity(ctx context.Context, level domain.GranularityLevel, domains []string) ([]domain.InformationUnit, error) {
	var result []domain.InformationUnit
	for _, u := range m.units {
		if u.Granularity != level {
			continue
		}
		if len(domains) > 0 && !domainsOverlap(u.Domains, domains) {
			continue
		}
		result = append(result, *u)
	}
	return result, nil
}

func (m *mockUnitStore) FindByIssue(ctx context.Context, issueID uuid.UUID) ([]domain.InformationUnit, error) {
	var result []domain.InformationUnit
	for _, u := range m.units {
		if u.IssueID != nil && *u.IssueID == issueID {
			result = append(result, *u)
		}
	}
	return result, nil
}

func (m *mockUnitStore) UpdateConfidence(ctx context.Context, id uuid.UUID, confidence float64) error {
	for _, u := range m.units {
		if u.ID == id {
			u.Confidence = domain.ClampConfidence(confidence)
			u.UpdateCount++
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *mockUnitStore) FindSimilarStatements(ctx context.Context, embedding []float32, threshold float32, limit int) ([]domain.UnitWithScore, error) {
	return nil, nil
}

func (m *mockUnitStore) add(u *domain.InformationUnit) *domain.InformationUnit {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Fingerprint == "" {
		u.Fingerprint = domain.Fingerprint(u.Statement)
	}
	m.units = append(m.units, u)
	return u
}

func domainsOverlap(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// mockComparisonStore implements domain.ComparisonStore with the same
// unordered-pair uniqueness the real store enforces.
type mockComparisonStore struct {
	comparisons []domain.UnitComparison
}

func newMockComparisonStore() *mockComparisonStore {
	return &mockComparisonStore{}
}

func pairKey(a, b uuid.UUID, level domain.GranularityLevel) string {
	lo, hi := a.String(), b.String()
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + "|" + hi + "|" + string(level)
}

func (m *mockComparisonStore) Create(ctx context.Context, c *domain.UnitComparison) (bool, error) {
	key := pairKey(c.UnitAID, c.UnitBID, c.Granularity)
	for i := range m.comparisons {
		if pairKey(m.comparisons[i].UnitAID, m.comparisons[i].UnitBID, m.comparisons[i].Granularity) == key {
			return false, nil
		}
	}
	c.ID = uuid.New()
	m.comparisons = append(m.comparisons, *c)
	return true, nil
}

func (m *mockComparisonStore) Exists(ctx context.Context, a, b uuid.UUID, level domain.GranularityLevel) (bool, error) {
	key := pairKey(a, b, level)
	for i := range m.comparisons {
		if pairKey(m.comparisons[i].UnitAID, m.comparisons[i].UnitBID, m.comparisons[i].Granularity) == key {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockComparisonStore) GetByUnit(ctx context.Context, unitID uuid.UUID) ([]domain.UnitComparison, error) {
	var result []domain.UnitComparison
	for i := range m.comparisons {
		if m.comparisons[i].UnitAID == unitID || m.comparisons[i].UnitBID == unitID {
			result = append(result, m.comparisons[i])
		}
	}
	return result, nil
}

func (m *mockComparisonStore) GetByUnits(ctx context.Context, unitIDs []uuid.UUID) ([]domain.UnitComparison, error) {
	ids := make(map[uuid.UUID]bool, len(unitIDs))
	for _, id := range unitIDs {
		ids[id] = true
	}
	var result []domain.UnitComparison
	for i := range m.comparisons {
		if ids[m.comparisons[i].UnitAID] || ids[m.comparisons[i].UnitBID] {
			result = append(result, m.comparisons[i])
		}
	}
	return result, nil
}

func issueUnit(issueID uuid.UUID, statement string, level domain.GranularityLevel, confidence float64, concepts []string) *domain.InformationUnit {
	return &domain.InformationUnit{
		Statement:     statement,
		IssueID:       &issueID,
		Granularity:   level,
		TemporalScope: domain.TemporalRecent,
		SpatialScope:  domain.SpatialLocal,
		Concepts:      concepts,
		Domains:       []string{"networking"},
		Confidence:    confidence,
	}
}

func TestValidateIssue_AppliesImpactToBothUnits(t *testing.T) {
	unitStore := newMockUnitStore()
	comparisonStore := newMockComparisonStore()
	mockAnalyzer := analyzer.NewMockClient()
	mockAnalyzer.CompareResponse = &domain.ComparisonVerdict{
		Relationship:     domain.RelationshipAgrees,
		AgreementScore:   0.9,
		ConfidenceImpact: 0.05,
		Explanation:      "consistent measurements",
	}

	issueID := uuid.New()
	a := unitStore.add(issueUnit(issueID, "p99 latency rose to 800ms", domain.GranularityObservation, 0.5, []string{"latency"}))
	b := unitStore.add(issueUnit(issueID, "dashboard shows p99 at 790ms", domain.GranularityObservation, 0.6, []string{"latency"}))

	svc := NewCrossValidationService(unitStore, comparisonStore, mockAnalyzer, 0, testLogger())
	result, err := svc.ValidateIssue(context.Background(), issueID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if result.PairsCompared != 1 || result.PairsConsidered != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if math.Abs(a.Confidence-0.55) > 1e-9 {
		t.Fatalf("expected unit a confidence 0.55, got %f", a.Confidence)
	}
	if math.Abs(b.Confidence-0.65) > 1e-9 {
		t.Fatalf("expected unit b confidence 0.65, got %f", b.Confidence)
	}
	if len(comparisonStore.comparisons) != 1 {
		t.Fatalf("expected one stored comparison, got %d", len(comparisonStore.comparisons))
	}
}

func TestValidateIssue_RepeatRunIsNoOp(t *testing.T) {
	unitStore := newMockUnitStore()
	comparisonStore := newMockComparisonStore()
	mockAnalyzer := analyzer.NewMockClient()

	issueID := uuid.New()
	a := unitStore.add(issueUnit(issueID, "disk usage exceeds 90%", domain.GranularityDataPoint, 0.5, []string{"disk"}))
	unitStore.add(issueUnit(issueID, "df reports 92% on the primary volume", domain.GranularityDataPoint, 0.5, []string{"disk"}))

	svc := NewCrossValidationService(unitStore, comparisonStore, mockAnalyzer, 0, testLogger())
	if _, err := svc.ValidateIssue(context.Background(), issueID); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	confAfterFirst := a.Confidence

	result, err := svc.ValidateIssue(context.Background(), issueID)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if result.PairsCompared != 0 || result.PairsSkipped != 1 {
		t.Fatalf("expected repeat pass to skip the pair, got %+v", result)
	}
	if a.Confidence != confAfterFirst {
		t.Fatalf("expected confidence untouched on repeat, got %f", a.Confidence)
	}
	if len(mockAnalyzer.CompareCalls) != 1 {
		t.Fatalf("expected one analyzer call across both passes, got %d", len(mockAnalyzer.CompareCalls))
	}
}

func TestValidateIssue_AnalyzerFailureSkipsPair(t *testing.T) {
	unitStore := newMockUnitStore()
	comparisonStore := newMockComparisonStore()
	mockAnalyzer := analyzer.NewMockClient()
	mockAnalyzer.CompareError = errors.New("model unavailable")

	issueID := uuid.New()
	a := unitStore.add(issueUnit(issueID, "cache hit rate fell sharply", domain.GranularityObservation, 0.5, []string{"cache"}))
	unitStore.add(issueUnit(issueID, "hit rate dropped from 95% to 60%", domain.GranularityObservation, 0.5, []string{"cache"}))

	svc := NewCrossValidationService(unitStore, comparisonStore, mockAnalyzer, 0, testLogger())
	result, err := svc.ValidateIssue(context.Background(), issueID)
	if err != nil {
		t.Fatalf("expected analyzer trouble to be non-fatal, got %v", err)
	}
	if result.AnalyzerErrors != 1 || result.PairsSkipped != 1 || result.PairsCompared != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if a.Confidence != 0.5 {
		t.Fatalf("expected confidence untouched, got %f", a.Confidence)
	}
	if len(comparisonStore.comparisons) != 0 {
		t.Fatal("expected no comparison persisted on analyzer failure")
	}
}

func TestValidateIssue_UnqualifiedPairNeverReachesAnalyzer(t *testing.T) {
	unitStore := newMockUnitStore()
	comparisonStore := newMockComparisonStore()
	mockAnalyzer := analyzer.NewMockClient()

	issueID := uuid.New()
	a := issueUnit(issueID, "checkout conversion dipped", domain.GranularityObservation, 0.5, []string{"conversion"})
	a.Domains = []string{"business"}
	b := issueUnit(issueID, "pod restarts spiked", domain.GranularityObservation, 0.5, []string{"kubernetes"})
	b.Domains = []string{"infrastructure"}
	b.TemporalScope = domain.TemporalEra
	b.SpatialScope = domain.SpatialUniversal
	unitStore.add(a)
	unitStore.add(b)

	svc := NewCrossValidationService(unitStore, comparisonStore, mockAnalyzer, 0, testLogger())
	result, err := svc.ValidateIssue(context.Background(), issueID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.PairsSkipped != 1 || result.PairsCompared != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(mockAnalyzer.CompareCalls) != 0 {
		t.Fatalf("expected no analyzer calls for unqualified pair, got %d", len(mockAnalyzer.CompareCalls))
	}
}

func TestValidateIssue_ImpactNeverLeavesUnitRange(t *testing.T) {
	unitStore := newMockUnitStore()
	comparisonStore := newMockComparisonStore()
	mockAnalyzer := analyzer.NewMockClient()
	mockAnalyzer.CompareResponse = &domain.ComparisonVerdict{
		Relationship:     domain.RelationshipContradicts,
		AgreementScore:   0.05,
		ConfidenceImpact: -0.9,
		Explanation:      "directly incompatible values",
	}

	issueID := uuid.New()
	a := unitStore.add(issueUnit(issueID, "requests succeeded during the window", domain.GranularityObservation, 0.03, []string{"availability"}))
	b := unitStore.add(issueUnit(issueID, "all requests failed during the window", domain.GranularityObservation, 0.98, []string{"availability"}))

	svc := NewCrossValidationService(unitStore, comparisonStore, mockAnalyzer, 0, testLogger())
	if _, err := svc.ValidateIssue(context.Background(), issueID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if a.Confidence != 0 {
		t.Fatalf("expected confidence floored at 0, got %f", a.Confidence)
	}
	if math.Abs(b.Confidence-0.08) > 1e-9 {
		t.Fatalf("expected confidence 0.08, got %f", b.Confidence)
	}
}

func TestFindComparable_RanksByComparability(t *testing.T) {
	unitStore := newMockUnitStore()
	comparisonStore := newMockComparisonStore()

	subject := unitStore.add(&domain.InformationUnit{
		Statement:     "error rate doubled after the deploy",
		Granularity:   domain.GranularityObservation,
		TemporalScope: domain.TemporalRecent,
		SpatialScope:  domain.SpatialLocal,
		Concepts:      []string{"error_rate", "deploy"},
		Domains:       []string{"networking"},
	})

	// Strong overlap: same concepts, same scopes.
	strong := unitStore.add(&domain.InformationUnit{
		Statement:     "5xx rate doubled within minutes of the rollout",
		Granularity:   domain.GranularityObservation,
		TemporalScope: domain.TemporalRecent,
		SpatialScope:  domain.SpatialLocal,
		Concepts:      []string{"error_rate", "deploy"},
		Domains:       []string{"networking"},
	})
	// Weaker overlap: one shared tag, adjacent scopes.
	weak := unitStore.add(&domain.InformationUnit{
		Statement:     "deploys have been slower this quarter",
		Granularity:   domain.GranularityObservation,
		TemporalScope: domain.TemporalYear,
		SpatialScope:  domain.SpatialRegional,
		Concepts:      []string{"deploy", "build_time"},
		Domains:       []string{"networking"},
	})
	// Shares only the domain tag, diluted below the concept-overlap floor.
	unitStore.add(&domain.InformationUnit{
		Statement:     "the login page has a typo",
		Granularity:   domain.GranularityObservation,
		TemporalScope: domain.TemporalRecent,
		SpatialScope:  domain.SpatialLocal,
		Concepts:      []string{"copywriting", "login", "signup", "branding", "typo", "footer", "header", "palette"},
		Domains:       []string{"networking"},
	})

	svc := NewCrossValidationService(unitStore, comparisonStore, analyzer.NewMockClient(), 0, testLogger())
	candidates, err := svc.FindComparable(context.Background(), subject.ID, 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if candidates[0].Unit.ID != strong.ID {
		t.Fatalf("expected strongest candidate first, got %s", candidates[0].Unit.Statement)
	}
	if candidates[1].Unit.ID != weak.ID {
		t.Fatalf("expected weaker candidate second, got %s", candidates[1].Unit.Statement)
	}
	if candidates[0].Factors.Comparability <= candidates[1].Factors.Comparability {
		t.Fatal("expected descending comparability order")
	}
}

func TestFindComparable_UnknownUnit(t *testing.T) {
	svc := NewCrossValidationService(newMockUnitStore(), newMockComparisonStore(), analyzer.NewMockClient(), 0, testLogger())
	if _, err := svc.FindComparable(context.Background(), uuid.New(), 0); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestValidateIssue_UnconfiguredAnalyzerIsAnError(t *testing.T) {
	issueID := uuid.New()
	unitStore := newMockUnitStore()
	unitStore.add(issueUnit(issueID, "cache hit rate dropped", domain.GranularityObservation, 0.5, []string{"cache"}))
	unitStore.add(issueUnit(issueID, "cache eviction is too aggressive", domain.GranularityObservation, 0.5, []string{"cache"}))

	svc := NewCrossValidationService(unitStore, newMockComparisonStore(), nil, 0, testLogger())
	if _, err := svc.ValidateIssue(context.Background(), issueID); err == nil {
		t.Fatal("expected error when no analyzer client is configured")
	}
}
