package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crosscheckhq/veritas/internal/domain"
	"github.com/crosscheckhq/veritas/internal/store"
	"go.uber.org/zap"
)

// DefaultFeedbackBatchSize caps one drain pass; the cap substitutes for
// cooperative cancellation in long batches.
const DefaultFeedbackBatchSize = 100

// Playbook insight thresholds.
const (
	slowPlaybookDuration  = 5 * time.Minute
	lowCompletionRate     = 0.5
	notableImpactVariance = 0.2
)

// successEffectivenessFloor divides effective from ineffective outcomes
// in learning buckets.
const successEffectivenessFloor = 0.5

// globalLearningKey aggregates across all playbooks.
const globalLearningKey = "global"

// ProcessResult reports one drain pass. Every selected event leaves
// pending exactly once unless storage itself failed.
type ProcessResult struct {
	Processed int `json:"processed"`
	Adjusted  int `json:"adjusted"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

type FeedbackProcessor struct {
	events    domain.FeedbackStore
	batchSize int
	logger    *zap.Logger
}

func NewFeedbackProcessor(events domain.FeedbackStore, batchSize int, logger *zap.Logger) *FeedbackProcessor {
	if batchSize <= 0 {
		batchSize = DefaultFeedbackBatchSize
	}
	return &FeedbackProcessor{events: events, batchSize: batchSize, logger: logger}
}

// Enqueue validates and persists one feedback event as pending.
func (p *FeedbackProcessor) Enqueue(ctx context.Context, e *domain.FeedbackEvent) error {
	if !domain.ValidFeedbackType(string(e.Type)) {
		return fmt.Errorf("invalid feedback type: %s", e.Type)
	}
	if len(e.Payload) == 0 {
		return errors.New("feedback payload is required")
	}
	return p.events.Enqueue(ctx, e)
}

// ProcessPending drains up to maxEvents pending events (batch default
// when <= 0). One event's failure, including a panic in its dispatch,
// never aborts the batch: the event is marked failed and the loop moves
// on. A storage-level failure leaves the event pending for a later run.
func (p *FeedbackProcessor) ProcessPending(ctx context.Context, maxEvents int) (*ProcessResult, error) {
	if maxEvents <= 0 {
		maxEvents = p.batchSize
	}

	pending, err := p.events.ListPending(ctx, maxEvents)
	if err != nil {
		return nil, fmt.Errorf("list pending events: %w", err)
	}

	result := &ProcessResult{}
	for i := range pending {
		event := &pending[i]
		outcome, err := p.events.Resolve(ctx, event.ID, p.dispatch(event))
		if err != nil {
			p.logger.Error("event resolution failed at storage, leaving pending",
				zap.String("event_id", event.ID.String()),
				zap.Error(err))
			continue
		}

		switch outcome.Status {
		case domain.StatusProcessed:
			result.Processed++
			if outcome.Adjusted {
				result.Adjusted++
			}
		case domain.StatusSkipped:
			result.Skipped++
		case domain.StatusFailed:
			result.Failed++
			p.logger.Warn("feedback event failed",
				zap.String("event_id", event.ID.String()),
				zap.String("type", string(event.Type)),
				zap.String("error", outcome.Error))
		}
	}

	p.logger.Info("feedback drain complete",
		zap.Int("selected", len(pending)),
		zap.Int("processed", result.Processed),
		zap.Int("adjusted", result.Adjusted),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

// dispatch builds the transactional mutation for one event. Panics in
// the per-type handlers are converted to a failed outcome.
func (p *FeedbackProcessor) dispatch(event *domain.FeedbackEvent) func(ctx context.Context, tx domain.AdjustmentTx) (bool, error) {
	return func(ctx context.Context, tx domain.AdjustmentTx) (adjusted bool, err error) {
		defer func() {
			if r := recover(); r != nil {
				adjusted = false
				err = fmt.Errorf("panic during dispatch: %v", r)
			}
		}()

		payload, err := event.DecodePayload()
		if err != nil {
			return false, err
		}

		switch pl := payload.(type) {
		case *domain.VerificationResultPayload:
			return p.applyVerificationResult(ctx, tx, event, pl)
		case *domain.SourceAccuracyPayload:
			return p.applySourceAccuracy(ctx, tx, event, pl)
		case *domain.SolutionOutcomePayload:
			return p.applySolutionOutcome(ctx, tx, event, pl)
		case *domain.PlaybookExecutionPayload:
			return p.applyPlaybookExecution(ctx, tx, event, pl)
		case *domain.ManualCorrectionPayload:
			return p.applyManualCorrection(ctx, tx, event, pl)
		default:
			return false, fmt.Errorf("no handler for feedback type %s", event.Type)
		}
	}
}

// applyVerificationResult multiplies the target pattern's confidence by
// the outcome multiplier, clamped to the pattern band.
func (p *FeedbackProcessor) applyVerificationResult(ctx context.Context, tx domain.AdjustmentTx, event *domain.FeedbackEvent, pl *domain.VerificationResultPayload) (bool, error) {
	multiplier, ok := domain.VerificationMultipliers[pl.VerificationStatus]
	if !ok {
		return false, fmt.Errorf("unknown verification status: %s", pl.VerificationStatus)
	}

	pattern, err := tx.LockPattern(ctx, event.TargetEntity.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, domain.ErrEventSkipped
		}
		return false, fmt.Errorf("lock pattern: %w", err)
	}

	previous := pattern.Confidence
	next := domain.ClampPatternConfidence(previous * multiplier)
	if err := tx.SetPatternConfidence(ctx, pattern.ID, next); err != nil {
		return false, fmt.Errorf("set pattern confidence: %w", err)
	}

	adjusted, err := p.recordDelta(ctx, tx, event, "pattern", "confidence", previous, next,
		fmt.Sprintf("verification %s applied x%.2f multiplier", pl.VerificationStatus, multiplier))
	if err != nil {
		return false, err
	}

	learning, err := p.loadLearning(ctx, tx, domain.LearningKey{Category: domain.LearningVerification, Key: pattern.PatternType})
	if err != nil {
		return false, err
	}
	learning.Observe(pl.VerificationStatus == domain.VerificationCorroborated)
	learning.ObserveConfidence(next)
	if err := tx.UpsertLearning(ctx, learning); err != nil {
		return false, fmt.Errorf("upsert verification learning: %w", err)
	}
	return adjusted, nil
}

// applySourceAccuracy blends the source's dynamic reliability with the
// observed accuracy. The blend weight grows with total verifications
// and is capped, so a new source moves slowly and an established one
// never swings more than 30% per event.
func (p *FeedbackProcessor) applySourceAccuracy(ctx context.Context, tx domain.AdjustmentTx, event *domain.FeedbackEvent, pl *domain.SourceAccuracyPayload) (bool, error) {
	src, err := tx.LockSource(ctx, event.TargetEntity.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, domain.ErrEventSkipped
		}
		return false, fmt.Errorf("lock source: %w", err)
	}

	total := src.TotalVerifications + 1
	weight := domain.BlendWeight(total)
	previous := src.DynamicReliability
	next := domain.ClampConfidence(previous*(1-weight) + pl.AccuracyScore*weight)

	if err := tx.SetSourceReliability(ctx, src.ID, next, total); err != nil {
		return false, fmt.Errorf("set source reliability: %w", err)
	}

	adjusted, err := p.recordDelta(ctx, tx, event, "source", "dynamic_reliability", previous, next,
		fmt.Sprintf("accuracy %.2f blended at weight %.2f", pl.AccuracyScore, weight))
	if err != nil {
		return false, err
	}

	learning, err := p.loadLearning(ctx, tx, domain.LearningKey{Category: domain.LearningSource, Key: src.Name})
	if err != nil {
		return false, err
	}
	learning.Observe(pl.AccuracyScore >= successEffectivenessFloor)
	learning.ObserveAccuracy(pl.AccuracyScore)
	if err := tx.UpsertLearning(ctx, learning); err != nil {
		return false, fmt.Errorf("upsert source learning: %w", err)
	}
	return adjusted, nil
}

// applySolutionOutcome never mutates a confidence field; it only folds
// the outcome into learnings, with an insight for surprising variance.
func (p *FeedbackProcessor) applySolutionOutcome(ctx context.Context, tx domain.AdjustmentTx, event *domain.FeedbackEvent, pl *domain.SolutionOutcomePayload) (bool, error) {
	learning, err := p.loadLearning(ctx, tx, domain.LearningKey{Category: domain.LearningSolution, Key: event.TargetEntity.ID.String()})
	if err != nil {
		return false, err
	}
	learning.Observe(pl.EffectivenessScore >= successEffectivenessFloor)
	learning.ObserveEffectiveness(pl.EffectivenessScore)

	variance := pl.ImpactVariance
	if variance < 0 {
		variance = -variance
	}
	if variance > notableImpactVariance {
		learning.AddInsight(
			fmt.Sprintf("impact variance %.2f with effectiveness %.2f; achieved %d metrics, missed %d",
				pl.ImpactVariance, pl.EffectivenessScore, len(pl.MetricsAchieved), len(pl.MetricsMissed)),
			&event.ID, time.Now().UTC())
	}

	if err := tx.UpsertLearning(ctx, learning); err != nil {
		return false, fmt.Errorf("upsert solution learning: %w", err)
	}
	return false, nil
}

// applyPlaybookExecution folds one run into the per-playbook and global
// effectiveness buckets.
func (p *FeedbackProcessor) applyPlaybookExecution(ctx context.Context, tx domain.AdjustmentTx, event *domain.FeedbackEvent, pl *domain.PlaybookExecutionPayload) (bool, error) {
	keys := []string{pl.PlaybookID, globalLearningKey}
	if pl.PlaybookID == "" {
		keys = keys[1:]
	}

	for _, key := range keys {
		learning, err := p.loadLearning(ctx, tx, domain.LearningKey{Category: domain.LearningPlaybook, Key: key})
		if err != nil {
			return false, err
		}
		learning.Observe(pl.Success)
		learning.ObserveEffectiveness(pl.CompletionRate)

		duration := time.Duration(pl.DurationMs) * time.Millisecond
		if duration > slowPlaybookDuration {
			learning.AddInsight(
				fmt.Sprintf("slow execution: %s with %d errors", duration, pl.ErrorCount),
				&event.ID, time.Now().UTC())
		}
		if pl.CompletionRate < lowCompletionRate {
			learning.AddInsight(
				fmt.Sprintf("low completion: %.0f%% of steps finished", pl.CompletionRate*100),
				&event.ID, time.Now().UTC())
		}

		if err := tx.UpsertLearning(ctx, learning); err != nil {
			return false, fmt.Errorf("upsert playbook learning %q: %w", key, err)
		}
	}
	return false, nil
}

// applyManualCorrection sets the named field directly; operator intent
// overrides the multiplicative bounds but not the [0,1] clamp.
func (p *FeedbackProcessor) applyManualCorrection(ctx context.Context, tx domain.AdjustmentTx, event *domain.FeedbackEvent, pl *domain.ManualCorrectionPayload) (bool, error) {
	next := domain.ClampConfidence(pl.NewValue)
	reason := pl.Reason
	if reason == "" {
		reason = "manual correction"
	}

	switch event.TargetEntity.Type {
	case "pattern":
		pattern, err := tx.LockPattern(ctx, event.TargetEntity.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return false, domain.ErrEventSkipped
			}
			return false, fmt.Errorf("lock pattern: %w", err)
		}
		if err := tx.SetPatternConfidence(ctx, pattern.ID, next); err != nil {
			return false, fmt.Errorf("set pattern confidence: %w", err)
		}
		return p.recordDelta(ctx, tx, event, "pattern", "confidence", pattern.Confidence, next, reason)
	case "source":
		src, err := tx.LockSource(ctx, event.TargetEntity.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return false, domain.ErrEventSkipped
			}
			return false, fmt.Errorf("lock source: %w", err)
		}
		if err := tx.SetSourceReliability(ctx, src.ID, next, src.TotalVerifications); err != nil {
			return false, fmt.Errorf("set source reliability: %w", err)
		}
		return p.recordDelta(ctx, tx, event, "source", "dynamic_reliability", src.DynamicReliability, next, reason)
	default:
		return false, fmt.Errorf("manual correction cannot target entity type %q", event.TargetEntity.Type)
	}
}

// recordDelta writes the audit row when the change is non-negligible.
// The mutation itself has already been applied either way.
func (p *FeedbackProcessor) recordDelta(ctx context.Context, tx domain.AdjustmentTx, event *domain.FeedbackEvent, entityType, field string, previous, next float64, reason string) (bool, error) {
	delta := next - previous
	abs := delta
	if abs < 0 {
		abs = -abs
	}
	if abs <= domain.NegligibleDelta {
		return false, nil
	}

	adj := &domain.ConfidenceAdjustment{
		EntityType:    entityType,
		EntityID:      event.TargetEntity.ID,
		Field:         field,
		PreviousValue: previous,
		NewValue:      next,
		Delta:         delta,
		Reason:        reason,
		EventID:       &event.ID,
	}
	if err := tx.RecordAdjustment(ctx, adj); err != nil {
		return false, fmt.Errorf("record adjustment: %w", err)
	}
	return true, nil
}

func (p *FeedbackProcessor) loadLearning(ctx context.Context, tx domain.AdjustmentTx, key domain.LearningKey) (*domain.SystemLearning, error) {
	learning, err := tx.GetLearning(ctx, key)
	if err == nil {
		return learning, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return &domain.SystemLearning{Category: key.Category, Key: key.Key}, nil
	}
	return nil, fmt.Errorf("load learning %s/%s: %w", key.Category, key.Key, err)
}
