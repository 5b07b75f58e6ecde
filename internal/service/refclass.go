package service

import (
	"context"
	"fmt"
	"time"

	"github.com/crosscheckhq/veritas/internal/domain"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const (
	refClassCacheKey = "reference_classes"
	refClassCacheTTL = 5 * time.Minute
)

// BaseRateEstimate is the queryable output of one reference class for
// one field.
type BaseRateEstimate struct {
	ClassID    uuid.UUID `json:"class_id"`
	ClassName  string    `json:"class_name"`
	Mean       float64   `json:"mean"`
	Confidence float64   `json:"confidence"`
	Samples    int       `json:"samples"`
}

type ReferenceClassService struct {
	store  domain.ReferenceClassStore
	cache  *gocache.Cache
	logger *zap.Logger
}

func NewReferenceClassService(store domain.ReferenceClassStore, logger *zap.Logger) *ReferenceClassService {
	return &ReferenceClassService{
		store:  store,
		cache:  gocache.New(refClassCacheTTL, 2*refClassCacheTTL),
		logger: logger,
	}
}

func (s *ReferenceClassService) listCached(ctx context.Context) ([]domain.ReferenceClass, error) {
	if cached, ok := s.cache.Get(refClassCacheKey); ok {
		return cached.([]domain.ReferenceClass), nil
	}
	classes, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Set(refClassCacheKey, classes, gocache.DefaultExpiration)
	return classes, nil
}

// FindBestMatch scores every class as 2 per shared domain plus 1 per
// shared pattern type. Highest positive score wins; with no overlap at
// all the "Default" bucket is returned, and failing that any class. An
// empty table is an initialization error, never a guessed prior.
func (s *ReferenceClassService) FindBestMatch(ctx context.Context, domains, patternTypes []string) (*domain.ReferenceClass, error) {
	classes, err := s.listCached(ctx)
	if err != nil {
		return nil, fmt.Errorf("list reference classes: %w", err)
	}
	if len(classes) == 0 {
		return nil, domain.ErrNoReferenceClasses
	}

	var best *domain.ReferenceClass
	bestScore := 0
	for i := range classes {
		score := classes[i].MatchScore(domains, patternTypes)
		if score > bestScore {
			best = &classes[i]
			bestScore = score
		}
	}
	if best != nil {
		return best, nil
	}

	for i := range classes {
		if classes[i].Name == domain.DefaultReferenceClassName {
			return &classes[i], nil
		}
	}
	return &classes[0], nil
}

// BaseRate returns the best-matching class's posterior for the field.
func (s *ReferenceClassService) BaseRate(ctx context.Context, domains, patternTypes []string, field domain.BaseRateField) (*BaseRateEstimate, error) {
	rc, err := s.FindBestMatch(ctx, domains, patternTypes)
	if err != nil {
		return nil, err
	}
	est := &BaseRateEstimate{
		ClassID:    rc.ID,
		ClassName:  rc.Name,
		Mean:       rc.Mean(field),
		Confidence: rc.Confidence(field),
	}
	if field == domain.BaseRateIsSolvable {
		est.Samples = rc.SolvableSamples
	} else {
		est.Samples = rc.RealSamples
	}
	return est, nil
}

// Observe applies exactly one unit of evidence to a class and drops the
// cache so the next match sees it.
func (s *ReferenceClassService) Observe(ctx context.Context, id uuid.UUID, field domain.BaseRateField, success bool) error {
	if err := s.store.ApplyObservation(ctx, id, field, success); err != nil {
		return err
	}
	s.cache.Flush()
	return nil
}

// ObserveBestMatch routes one observation to the best-matching class.
func (s *ReferenceClassService) ObserveBestMatch(ctx context.Context, domains, patternTypes []string, field domain.BaseRateField, success bool) error {
	rc, err := s.FindBestMatch(ctx, domains, patternTypes)
	if err != nil {
		return err
	}
	if err := s.Observe(ctx, rc.ID, field, success); err != nil {
		return err
	}
	s.logger.Debug("reference class observation applied",
		zap.String("class", rc.Name),
		zap.String("field", string(field)),
		zap.Bool("success", success))
	return nil
}

func (s *ReferenceClassService) List(ctx context.Context) ([]domain.ReferenceClass, error) {
	return s.listCached(ctx)
}

func (s *ReferenceClassService) GetByID(ctx context.Context, id uuid.UUID) (*domain.ReferenceClass, error) {
	return s.store.GetByID(ctx, id)
}

// seedClasses are the initial prior buckets, including the universal
// fallback. All start at the uninformative Beta(1,1).
var seedClasses = []domain.ReferenceClass{
	{Name: domain.DefaultReferenceClassName},
	{Name: "Infrastructure Incidents", Domains: []string{"infrastructure", "networking", "operations"}, PatternTypes: []string{"outage", "degradation"}},
	{Name: "Performance Regressions", Domains: []string{"performance", "latency"}, PatternTypes: []string{"regression", "resource_exhaustion"}},
	{Name: "Data Quality Issues", Domains: []string{"data", "analytics"}, PatternTypes: []string{"drift", "corruption", "missing_data"}},
	{Name: "Security Findings", Domains: []string{"security", "access_control"}, PatternTypes: []string{"misconfiguration", "vulnerability"}},
}

// Seed inserts the initial class set. Existing classes keep their
// accumulated evidence; only descriptive fields are refreshed.
func (s *ReferenceClassService) Seed(ctx context.Context) (int, error) {
	seeded := 0
	for i := range seedClasses {
		rc := seedClasses[i]
		rc.RealAlpha, rc.RealBeta = 1, 1
		rc.SolvableAlpha, rc.SolvableBeta = 1, 1
		if err := s.store.Create(ctx, &rc); err != nil {
			return seeded, fmt.Errorf("seed reference class %q: %w", rc.Name, err)
		}
		seeded++
	}
	s.cache.Flush()
	return seeded, nil
}
