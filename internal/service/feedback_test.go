package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/crosscheckhq/veritas/internal/domain"
	"github.com/crosscheckhq/veritas/internal/store"
	"github.com/google/uuid"
)

// mockAdjustmentTx implements domain.AdjustmentTx in memory.
type mockAdjustmentTx struct {
	patterns    map[uuid.UUID]*domain.Pattern
	sources     map[uuid.UUID]*domain.Source
	learnings   map[domain.LearningKey]*domain.SystemLearning
	adjustments []domain.ConfidenceAdjustment
}

func newMockAdjustmentTx() *mockAdjustmentTx {
	return &mockAdjustmentTx{
		patterns:  make(map[uuid.UUID]*domain.Pattern),
		sources:   make(map[uuid.UUID]*domain.Source),
		learnings: make(map[domain.LearningKey]*domain.SystemLearning),
	}
}

func (m *mockAdjustmentTx) clone() *mockAdjustmentTx {
	c := newMockAdjustmentTx()
	for id, p := range m.patterns {
		copied := *p
		c.patterns[id] = &copied
	}
	for id, s := range m.sources {
		copied := *s
		c.sources[id] = &copied
	}
	for key, l := range m.learnings {
		copied := *l
		c.learnings[key] = &copied
	}
	c.adjustments = append(c.adjustments, m.adjustments...)
	return c
}

func (m *mockAdjustmentTx) LockPattern(ctx context.Context, id uuid.UUID) (*domain.Pattern, error) {
	p, ok := m.patterns[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *mockAdjustmentTx) SetPatternConfidence(ctx context.Context, id uuid.UUID, confidence float64) error {
	p, ok := m.patterns[id]
	if !ok {
		return store.ErrNotFound
	}
	p.Confidence = confidence
	return nil
}

func (m *mockAdjustmentTx) LockSource(ctx context.Context, id uuid.UUID) (*domain.Source, error) {
	s, ok := m.sources[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (m *mockAdjustmentTx) SetSourceReliability(ctx context.Context, id uuid.UUID, reliability float64, totalVerifications int) error {
	s, ok := m.sources[id]
	if !ok {
		return store.ErrNotFound
	}
	s.DynamicReliability = reliability
	s.TotalVerifications = totalVerifications
	return nil
}

func (m *mockAdjustmentTx) RecordAdjustment(ctx context.Context, a *domain.ConfidenceAdjustment) error {
	copied := *a
	copied.ID = uuid.New()
	m.adjustments = append(m.adjustments, copied)
	return nil
}

func (m *mockAdjustmentTx) GetLearning(ctx context.Context, key domain.LearningKey) (*domain.SystemLearning, error) {
	l, ok := m.learnings[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *l
	return &copied, nil
}

func (m *mockAdjustmentTx) UpsertLearning(ctx context.Context, l *domain.SystemLearning) error {
	copied := *l
	m.learnings[domain.LearningKey{Category: l.Category, Key: l.Key}] = &copied
	return nil
}

// mockFeedbackStore implements domain.FeedbackStore. Resolve mirrors the
// real store's transaction: the mutation runs on a scratch copy that is
// merged back only when the mutation succeeds.
type mockFeedbackStore struct {
	events map[uuid.UUID]*domain.FeedbackEvent
	order  []uuid.UUID
	tx     *mockAdjustmentTx
}

func newMockFeedbackStore() *mockFeedbackStore {
	return &mockFeedbackStore{
		events: make(map[uuid.UUID]*domain.FeedbackEvent),
		tx:     newMockAdjustmentTx(),
	}
}

func (m *mockFeedbackStore) Enqueue(ctx context.Context, e *domain.FeedbackEvent) error {
	e.ID = uuid.New()
	e.Status = domain.StatusPending
	e.CreatedAt = time.Now()
	m.events[e.ID] = e
	m.order = append(m.order, e.ID)
	return nil
}

func (m *mockFeedbackStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.FeedbackEvent, error) {
	e, ok := m.events[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *e
	return &copied, nil
}

func (m *mockFeedbackStore) ListPending(ctx context.Context, limit int) ([]domain.FeedbackEvent, error) {
	var pending []domain.FeedbackEvent
	for _, id := range m.order {
		if len(pending) >= limit {
			break
		}
		if m.events[id].Status == domain.StatusPending {
			pending = append(pending, *m.events[id])
		}
	}
	return pending, nil
}

func (m *mockFeedbackStore) CountPending(ctx context.Context) (int, error) {
	count := 0
	for _, e := range m.events {
		if e.Status == domain.StatusPending {
			count++
		}
	}
	return count, nil
}

func (m *mockFeedbackStore) OldestPendingAge(ctx context.Context) (time.Duration, error) {
	var oldest time.Time
	for _, e := range m.events {
		if e.Status != domain.StatusPending {
			continue
		}
		if oldest.IsZero() || e.CreatedAt.Before(oldest) {
			oldest = e.CreatedAt
		}
	}
	if oldest.IsZero() {
		return 0, nil
	}
	return time.Since(oldest), nil
}

func (m *mockFeedbackStore) Resolve(ctx context.Context, eventID uuid.UUID, mutate func(ctx context.Context, tx domain.AdjustmentTx) (bool, error)) (domain.EventOutcome, error) {
	event, ok := m.events[eventID]
	if !ok {
		return domain.EventOutcome{}, store.ErrNotFound
	}
	if event.Status != domain.StatusPending {
		return domain.EventOutcome{Status: event.Status, Adjusted: event.AdjustmentApplied}, nil
	}

	scratch := m.tx.clone()
	adjusted, err := mutate(ctx, scratch)

	now := time.Now()
	event.ProcessedAt = &now
	switch {
	case err == nil:
		m.tx = scratch
		event.Status = domain.StatusProcessed
		event.AdjustmentApplied = adjusted
	case errors.Is(err, domain.ErrEventSkipped):
		event.Status = domain.StatusSkipped
	default:
		event.Status = domain.StatusFailed
		event.ErrorMessage = err.Error()
	}
	return domain.EventOutcome{Status: event.Status, Error: event.ErrorMessage, Adjusted: event.AdjustmentApplied}, nil
}

func (m *mockFeedbackStore) addPattern(confidence float64, patternType string) *domain.Pattern {
	p := &domain.Pattern{ID: uuid.New(), Name: "test pattern", PatternType: patternType, Confidence: confidence}
	m.tx.patterns[p.ID] = p
	return p
}

func (m *mockFeedbackStore) addSource(reliability float64, totalVerifications int) *domain.Source {
	s := &domain.Source{ID: uuid.New(), Name: "test source", DynamicReliability: reliability, TotalVerifications: totalVerifications, Healthy: true}
	m.tx.sources[s.ID] = s
	return s
}

func enqueueEvent(t *testing.T, m *mockFeedbackStore, typ domain.FeedbackType, target domain.EntityRef, payload any) *domain.FeedbackEvent {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	event := &domain.FeedbackEvent{Type: typ, TargetEntity: target, Payload: raw}
	if err := m.Enqueue(context.Background(), event); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return event
}

func TestProcessPending_VerificationMultipliers(t *testing.T) {
	cases := []struct {
		status domain.VerificationStatus
		want   float64
	}{
		{domain.VerificationCorroborated, 0.60 * 1.05},
		{domain.VerificationPartiallySupported, 0.60 * 0.95},
		{domain.VerificationContested, 0.60 * 0.85},
		{domain.VerificationUnverified, 0.60 * 0.98},
	}

	for _, c := range cases {
		events := newMockFeedbackStore()
		pattern := events.addPattern(0.60, "outage")
		enqueueEvent(t, events, domain.FeedbackVerificationResult,
			domain.EntityRef{Type: "pattern", ID: pattern.ID},
			domain.VerificationResultPayload{VerificationStatus: c.status})

		processor := NewFeedbackProcessor(events, 0, testLogger())
		result, err := processor.ProcessPending(context.Background(), 0)
		if err != nil {
			t.Fatalf("%s: %v", c.status, err)
		}
		if result.Processed != 1 || result.Adjusted != 1 {
			t.Fatalf("%s: unexpected result %+v", c.status, result)
		}
		if got := events.tx.patterns[pattern.ID].Confidence; math.Abs(got-c.want) > 1e-9 {
			t.Fatalf("%s: expected confidence %f, got %f", c.status, c.want, got)
		}
		if len(events.tx.adjustments) != 1 {
			t.Fatalf("%s: expected one audit record, got %d", c.status, len(events.tx.adjustments))
		}
	}
}

func TestProcessPending_VerificationUpdatesLearning(t *testing.T) {
	events := newMockFeedbackStore()
	pattern := events.addPattern(0.60, "outage")
	enqueueEvent(t, events, domain.FeedbackVerificationResult,
		domain.EntityRef{Type: "pattern", ID: pattern.ID},
		domain.VerificationResultPayload{VerificationStatus: domain.VerificationCorroborated})

	processor := NewFeedbackProcessor(events, 0, testLogger())
	if _, err := processor.ProcessPending(context.Background(), 0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	key := domain.LearningKey{Category: domain.LearningVerification, Key: "outage"}
	learning, ok := events.tx.learnings[key]
	if !ok {
		t.Fatal("expected a verification learning bucket keyed by pattern type")
	}
	if learning.SampleSize != 1 || learning.SuccessCount != 1 {
		t.Fatalf("unexpected learning counters: %+v", learning)
	}
	if math.Abs(learning.AvgConfidence-0.63) > 1e-9 {
		t.Fatalf("expected avg confidence 0.63, got %f", learning.AvgConfidence)
	}
}

func TestProcessPending_PatternConfidenceFloor(t *testing.T) {
	events := newMockFeedbackStore()
	pattern := events.addPattern(0.11, "outage")
	enqueueEvent(t, events, domain.FeedbackVerificationResult,
		domain.EntityRef{Type: "pattern", ID: pattern.ID},
		domain.VerificationResultPayload{VerificationStatus: domain.VerificationContested})

	processor := NewFeedbackProcessor(events, 0, testLogger())
	if _, err := processor.ProcessPending(context.Background(), 0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := events.tx.patterns[pattern.ID].Confidence; got != domain.MinPatternConfidence {
		t.Fatalf("expected confidence floored at %f, got %f", domain.MinPatternConfidence, got)
	}
}

func TestProcessPending_SourceAccuracyBlend(t *testing.T) {
	events := newMockFeedbackStore()
	src := events.addSource(0.50, 4)
	enqueueEvent(t, events, domain.FeedbackSourceAccuracy,
		domain.EntityRef{Type: "source", ID: src.ID},
		domain.SourceAccuracyPayload{AccuracyScore: 0.90, VerificationCount: 1})

	processor := NewFeedbackProcessor(events, 0, testLogger())
	result, err := processor.ProcessPending(context.Background(), 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Processed != 1 || result.Adjusted != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	// Fifth verification: weight min(0.3, 5*0.05) = 0.25.
	// 0.50*0.75 + 0.90*0.25 = 0.60.
	got := events.tx.sources[src.ID]
	if math.Abs(got.DynamicReliability-0.60) > 1e-9 {
		t.Fatalf("expected reliability 0.60, got %f", got.DynamicReliability)
	}
	if got.TotalVerifications != 5 {
		t.Fatalf("expected total verifications 5, got %d", got.TotalVerifications)
	}
}

func TestProcessPending_MissingTargetIsSkipped(t *testing.T) {
	events := newMockFeedbackStore()
	event := enqueueEvent(t, events, domain.FeedbackVerificationResult,
		domain.EntityRef{Type: "pattern", ID: uuid.New()},
		domain.VerificationResultPayload{VerificationStatus: domain.VerificationCorroborated})

	processor := NewFeedbackProcessor(events, 0, testLogger())
	result, err := processor.ProcessPending(context.Background(), 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Skipped != 1 || result.Processed != 0 || result.Failed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if events.events[event.ID].Status != domain.StatusSkipped {
		t.Fatalf("expected event marked skipped, got %s", events.events[event.ID].Status)
	}
}

func TestProcessPending_FailureDoesNotAbortBatch(t *testing.T) {
	events := newMockFeedbackStore()
	pattern := events.addPattern(0.60, "outage")

	enqueueEvent(t, events, domain.FeedbackVerificationResult,
		domain.EntityRef{Type: "pattern", ID: pattern.ID},
		domain.VerificationResultPayload{VerificationStatus: domain.VerificationCorroborated})
	failing := enqueueEvent(t, events, domain.FeedbackVerificationResult,
		domain.EntityRef{Type: "pattern", ID: pattern.ID},
		domain.VerificationResultPayload{VerificationStatus: "hearsay"})
	enqueueEvent(t, events, domain.FeedbackVerificationResult,
		domain.EntityRef{Type: "pattern", ID: pattern.ID},
		domain.VerificationResultPayload{VerificationStatus: domain.VerificationCorroborated})

	processor := NewFeedbackProcessor(events, 0, testLogger())
	result, err := processor.ProcessPending(context.Background(), 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Processed != 2 || result.Failed != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if events.events[failing.ID].Status != domain.StatusFailed {
		t.Fatalf("expected failing event marked failed, got %s", events.events[failing.ID].Status)
	}
	if events.events[failing.ID].ErrorMessage == "" {
		t.Fatal("expected failure reason recorded on the event")
	}

	// Both good events applied: 0.60 * 1.05 * 1.05.
	want := 0.60 * 1.05 * 1.05
	if got := events.tx.patterns[pattern.ID].Confidence; math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected confidence %f, got %f", want, got)
	}
}

func TestProcessPending_NegligibleDeltaIsNotAudited(t *testing.T) {
	events := newMockFeedbackStore()
	src := events.addSource(0.50, 10)
	enqueueEvent(t, events, domain.FeedbackManualCorrection,
		domain.EntityRef{Type: "source", ID: src.ID},
		domain.ManualCorrectionPayload{Field: "dynamic_reliability", NewValue: 0.50, Reason: "confirming current value"})

	processor := NewFeedbackProcessor(events, 0, testLogger())
	result, err := processor.ProcessPending(context.Background(), 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Processed != 1 || result.Adjusted != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(events.tx.adjustments) != 0 {
		t.Fatalf("expected no audit record for a negligible delta, got %d", len(events.tx.adjustments))
	}
}

func TestProcessPending_ManualCorrectionClampsToRange(t *testing.T) {
	events := newMockFeedbackStore()
	src := events.addSource(0.50, 3)
	enqueueEvent(t, events, domain.FeedbackManualCorrection,
		domain.EntityRef{Type: "source", ID: src.ID},
		domain.ManualCorrectionPayload{Field: "dynamic_reliability", NewValue: 1.4, Reason: "operator override"})

	processor := NewFeedbackProcessor(events, 0, testLogger())
	if _, err := processor.ProcessPending(context.Background(), 0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	got := events.tx.sources[src.ID]
	if got.DynamicReliability != 1.0 {
		t.Fatalf("expected reliability clamped to 1.0, got %f", got.DynamicReliability)
	}
	if got.TotalVerifications != 3 {
		t.Fatalf("expected manual correction to leave the verification count at 3, got %d", got.TotalVerifications)
	}
}

func TestProcessPending_PlaybookExecutionInsights(t *testing.T) {
	events := newMockFeedbackStore()
	enqueueEvent(t, events, domain.FeedbackPlaybookExecution,
		domain.EntityRef{Type: "playbook", ID: uuid.New()},
		domain.PlaybookExecutionPayload{
			PlaybookID:     "pb-rollback",
			Success:        false,
			CompletionRate: 0.4,
			DurationMs:     int64(6 * time.Minute / time.Millisecond),
			ErrorCount:     2,
		})

	processor := NewFeedbackProcessor(events, 0, testLogger())
	result, err := processor.ProcessPending(context.Background(), 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Processed != 1 || result.Adjusted != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	for _, key := range []string{"pb-rollback", "global"} {
		learning, ok := events.tx.learnings[domain.LearningKey{Category: domain.LearningPlaybook, Key: key}]
		if !ok {
			t.Fatalf("expected learning bucket %q", key)
		}
		if learning.SampleSize != 1 || learning.FailureCount != 1 {
			t.Fatalf("%s: unexpected counters %+v", key, learning)
		}
		// Slow execution plus low completion yields two insights.
		if len(learning.Insights) != 2 {
			t.Fatalf("%s: expected 2 insights, got %d", key, len(learning.Insights))
		}
	}
}

func TestProcessPending_SolutionOutcomeVarianceInsight(t *testing.T) {
	events := newMockFeedbackStore()
	target := uuid.New()
	enqueueEvent(t, events, domain.FeedbackSolutionOutcome,
		domain.EntityRef{Type: "solution", ID: target},
		domain.SolutionOutcomePayload{EffectivenessScore: 0.8, ImpactVariance: -0.35, MetricsAchieved: []string{"mttr"}})

	processor := NewFeedbackProcessor(events, 0, testLogger())
	if _, err := processor.ProcessPending(context.Background(), 0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	learning, ok := events.tx.learnings[domain.LearningKey{Category: domain.LearningSolution, Key: target.String()}]
	if !ok {
		t.Fatal("expected a solution learning bucket")
	}
	if learning.SuccessCount != 1 {
		t.Fatalf("expected effectiveness 0.8 to count as success, got %+v", learning)
	}
	if len(learning.Insights) != 1 {
		t.Fatalf("expected one variance insight, got %d", len(learning.Insights))
	}
}

func TestProcessPending_BatchAccounting(t *testing.T) {
	events := newMockFeedbackStore()
	pattern := events.addPattern(0.60, "outage")

	// 100 events, every tenth one carrying an unknown status.
	for i := 0; i < 100; i++ {
		status := domain.VerificationUnverified
		if i%10 == 9 {
			status = "hearsay"
		}
		enqueueEvent(t, events, domain.FeedbackVerificationResult,
			domain.EntityRef{Type: "pattern", ID: pattern.ID},
			domain.VerificationResultPayload{VerificationStatus: status})
	}

	processor := NewFeedbackProcessor(events, 100, testLogger())
	result, err := processor.ProcessPending(context.Background(), 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Processed != 90 || result.Failed != 10 || result.Skipped != 0 {
		t.Fatalf("unexpected accounting: %+v", result)
	}
	remaining, _ := events.CountPending(context.Background())
	if remaining != 0 {
		t.Fatalf("expected queue drained, got %d pending", remaining)
	}
}

func TestProcessPending_HonorsMaxEvents(t *testing.T) {
	events := newMockFeedbackStore()
	pattern := events.addPattern(0.60, "outage")
	for i := 0; i < 5; i++ {
		enqueueEvent(t, events, domain.FeedbackVerificationResult,
			domain.EntityRef{Type: "pattern", ID: pattern.ID},
			domain.VerificationResultPayload{VerificationStatus: domain.VerificationUnverified})
	}

	processor := NewFeedbackProcessor(events, 0, testLogger())
	result, err := processor.ProcessPending(context.Background(), 2)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Processed != 2 {
		t.Fatalf("expected 2 processed, got %d", result.Processed)
	}
	remaining, _ := events.CountPending(context.Background())
	if remaining != 3 {
		t.Fatalf("expected 3 still pending, got %d", remaining)
	}
}

func TestEnqueue_Validation(t *testing.T) {
	events := newMockFeedbackStore()
	processor := NewFeedbackProcessor(events, 0, testLogger())

	err := processor.Enqueue(context.Background(), &domain.FeedbackEvent{
		Type:    "gossip",
		Payload: json.RawMessage(`{}`),
	})
	if err == nil {
		t.Fatal("expected invalid type to be rejected")
	}

	err = processor.Enqueue(context.Background(), &domain.FeedbackEvent{
		Type: domain.FeedbackSourceAccuracy,
	})
	if err == nil {
		t.Fatal("expected empty payload to be rejected")
	}

	err = processor.Enqueue(context.Background(), &domain.FeedbackEvent{
		Type:    domain.FeedbackSourceAccuracy,
		Payload: json.RawMessage(`{"accuracy_score":0.9}`),
	})
	if err != nil {
		t.Fatalf("expected valid event accepted, got %v", err)
	}
}
