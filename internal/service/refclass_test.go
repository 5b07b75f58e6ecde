package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/crosscheckhq/veritas/internal/domain"
	"github.com/crosscheckhq/veritas/internal/store"
	"github.com/google/uuid"
)

// mockReferenceClassStore implements domain.ReferenceClassStore with the
// real store's upsert-by-name behavior.
type mockReferenceClassStore struct {
	classes []domain.ReferenceClass
}

func newMockReferenceClassStore() *mockReferenceClassStore {
	return &mockReferenceClassStore{}
}

func (m *mockReferenceClassStore) Create(ctx context.Context, rc *domain.ReferenceClass) error {
	for i := range m.classes {
		if m.classes[i].Name == rc.Name {
			m.classes[i].Domains = rc.Domains
			m.classes[i].PatternTypes = rc.PatternTypes
			*rc = m.classes[i]
			return nil
		}
	}
	rc.ID = uuid.New()
	m.classes = append(m.classes, *rc)
	return nil
}

func (m *mockReferenceClassStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ReferenceClass, error) {
	for i := range m.classes {
		if m.classes[i].ID == id {
			copied := m.classes[i]
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockReferenceClassStore) List(ctx context.Context) ([]domain.ReferenceClass, error) {
	return append([]domain.ReferenceClass(nil), m.classes...), nil
}

func (m *mockReferenceClassStore) Count(ctx context.Context) (int, error) {
	return len(m.classes), nil
}

func (m *mockReferenceClassStore) ApplyObservation(ctx context.Context, id uuid.UUID, field domain.BaseRateField, success bool) error {
	for i := range m.classes {
		if m.classes[i].ID != id {
			continue
		}
		rc := &m.classes[i]
		if field == domain.BaseRateIsSolvable {
			if success {
				rc.SolvableAlpha++
			} else {
				rc.SolvableBeta++
			}
			rc.SolvableSamples++
		} else {
			if success {
				rc.RealAlpha++
			} else {
				rc.RealBeta++
			}
			rc.RealSamples++
		}
		return nil
	}
	return store.ErrNotFound
}

func (m *mockReferenceClassStore) add(name string, domains, patternTypes []string) *domain.ReferenceClass {
	rc := domain.ReferenceClass{
		ID:            uuid.New(),
		Name:          name,
		Domains:       domains,
		PatternTypes:  patternTypes,
		RealAlpha:     1,
		RealBeta:      1,
		SolvableAlpha: 1,
		SolvableBeta:  1,
	}
	m.classes = append(m.classes, rc)
	return &m.classes[len(m.classes)-1]
}

func TestFindBestMatch_DomainsOutweighPatternTypes(t *testing.T) {
	rcStore := newMockReferenceClassStore()
	rcStore.add(domain.DefaultReferenceClassName, nil, nil)
	rcStore.add("Pattern Heavy", nil, []string{"outage"})
	domainHeavy := rcStore.add("Domain Heavy", []string{"networking"}, nil)

	svc := NewReferenceClassService(rcStore, testLogger())

	// One shared domain (2) beats one shared pattern type (1).
	got, err := svc.FindBestMatch(context.Background(), []string{"networking"}, []string{"outage"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.ID != domainHeavy.ID {
		t.Fatalf("expected %q to win, got %q", domainHeavy.Name, got.Name)
	}
}

func TestFindBestMatch_FallsBackToDefault(t *testing.T) {
	rcStore := newMockReferenceClassStore()
	rcStore.add("Infrastructure Incidents", []string{"infrastructure"}, []string{"outage"})
	def := rcStore.add(domain.DefaultReferenceClassName, nil, nil)

	svc := NewReferenceClassService(rcStore, testLogger())
	got, err := svc.FindBestMatch(context.Background(), []string{"astrology"}, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.ID != def.ID {
		t.Fatalf("expected Default fallback, got %q", got.Name)
	}
}

func TestFindBestMatch_NoDefaultFallsBackToFirst(t *testing.T) {
	rcStore := newMockReferenceClassStore()
	first := rcStore.add("Only Class", []string{"security"}, nil)

	svc := NewReferenceClassService(rcStore, testLogger())
	got, err := svc.FindBestMatch(context.Background(), []string{"astrology"}, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.ID != first.ID {
		t.Fatalf("expected first class fallback, got %q", got.Name)
	}
}

func TestFindBestMatch_EmptyTable(t *testing.T) {
	svc := NewReferenceClassService(newMockReferenceClassStore(), testLogger())
	if _, err := svc.FindBestMatch(context.Background(), []string{"networking"}, nil); !errors.Is(err, domain.ErrNoReferenceClasses) {
		t.Fatalf("expected ErrNoReferenceClasses, got %v", err)
	}
}

func TestBaseRate_PosteriorMeanAndConfidence(t *testing.T) {
	rcStore := newMockReferenceClassStore()
	rc := rcStore.add("Infrastructure Incidents", []string{"infrastructure"}, nil)
	rc.RealAlpha, rc.RealBeta, rc.RealSamples = 3, 1, 10

	svc := NewReferenceClassService(rcStore, testLogger())
	est, err := svc.BaseRate(context.Background(), []string{"infrastructure"}, nil, domain.BaseRateIsReal)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if math.Abs(est.Mean-0.75) > 1e-9 {
		t.Fatalf("expected posterior mean 0.75, got %f", est.Mean)
	}
	wantConfidence := 1 - math.Exp(-1)
	if math.Abs(est.Confidence-wantConfidence) > 1e-9 {
		t.Fatalf("expected confidence %f, got %f", wantConfidence, est.Confidence)
	}
	if est.Samples != 10 {
		t.Fatalf("expected 10 samples, got %d", est.Samples)
	}
}

func TestBaseRate_UninformativePriorIsNeutral(t *testing.T) {
	rcStore := newMockReferenceClassStore()
	rcStore.add(domain.DefaultReferenceClassName, nil, nil)

	svc := NewReferenceClassService(rcStore, testLogger())
	est, err := svc.BaseRate(context.Background(), nil, nil, domain.BaseRateIsSolvable)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if est.Mean != 0.5 {
		t.Fatalf("expected Beta(1,1) mean 0.5, got %f", est.Mean)
	}
	if est.Confidence != 0 {
		t.Fatalf("expected zero confidence at zero samples, got %f", est.Confidence)
	}
}

func TestObserve_InvalidatesCache(t *testing.T) {
	rcStore := newMockReferenceClassStore()
	rc := rcStore.add(domain.DefaultReferenceClassName, nil, nil)

	svc := NewReferenceClassService(rcStore, testLogger())

	// Prime the cache.
	if _, err := svc.List(context.Background()); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	if err := svc.Observe(context.Background(), rc.ID, domain.BaseRateIsReal, true); err != nil {
		t.Fatalf("observe: %v", err)
	}

	classes, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("list after observe: %v", err)
	}
	if classes[0].RealAlpha != 2 || classes[0].RealSamples != 1 {
		t.Fatalf("expected observation visible after cache flush, got %+v", classes[0])
	}
}

func TestObserveBestMatch_RoutesToMatchedClass(t *testing.T) {
	rcStore := newMockReferenceClassStore()
	rcStore.add(domain.DefaultReferenceClassName, nil, nil)
	target := rcStore.add("Performance Regressions", []string{"performance"}, nil)

	svc := NewReferenceClassService(rcStore, testLogger())
	if err := svc.ObserveBestMatch(context.Background(), []string{"performance"}, nil, domain.BaseRateIsReal, false); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	updated, _ := rcStore.GetByID(context.Background(), target.ID)
	if updated.RealBeta != 2 || updated.RealSamples != 1 {
		t.Fatalf("expected failure observation on matched class, got %+v", updated)
	}
}

func TestSeed_IsIdempotent(t *testing.T) {
	rcStore := newMockReferenceClassStore()
	svc := NewReferenceClassService(rcStore, testLogger())

	first, err := svc.Seed(context.Background())
	if err != nil {
		t.Fatalf("first seed: %v", err)
	}
	if first == 0 {
		t.Fatal("expected seed to create classes")
	}

	// Accumulate evidence, then reseed.
	var def *domain.ReferenceClass
	for i := range rcStore.classes {
		if rcStore.classes[i].Name == domain.DefaultReferenceClassName {
			def = &rcStore.classes[i]
		}
	}
	if def == nil {
		t.Fatal("expected Default class seeded")
	}
	if err := rcStore.ApplyObservation(context.Background(), def.ID, domain.BaseRateIsReal, true); err != nil {
		t.Fatalf("apply observation: %v", err)
	}

	second, err := svc.Seed(context.Background())
	if err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if second != first {
		t.Fatalf("expected reseed to touch the same %d classes, got %d", first, second)
	}
	count, _ := rcStore.Count(context.Background())
	if count != first {
		t.Fatalf("expected %d classes after reseed, got %d", first, count)
	}
	if def.RealAlpha != 2 {
		t.Fatalf("expected reseed to keep accumulated evidence, got alpha %f", def.RealAlpha)
	}
}
