package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crosscheckhq/veritas/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const feedbackColumns = `id, type, source_entity_type, source_entity_id, target_entity_type, target_entity_id, payload, status, processed_at, adjustment_applied, error_message, created_at`

type FeedbackStore struct {
	db *pgxpool.Pool
}

func NewFeedbackStore(db *pgxpool.Pool) *FeedbackStore {
	return &FeedbackStore{db: db}
}

func scanFeedbackEvent(row pgx.Row, e *domain.FeedbackEvent) error {
	return row.Scan(&e.ID, &e.Type, &e.SourceEntity.Type, &e.SourceEntity.ID,
		&e.TargetEntity.Type, &e.TargetEntity.ID, &e.Payload, &e.Status,
		&e.ProcessedAt, &e.AdjustmentApplied, &e.ErrorMessage, &e.CreatedAt)
}

func (s *FeedbackStore) Enqueue(ctx context.Context, e *domain.FeedbackEvent) error {
	e.Status = domain.StatusPending
	err := s.db.QueryRow(ctx,
		`INSERT INTO feedback_events (type, source_entity_type, source_entity_id, target_entity_type, target_entity_id, payload, status)
		 VALUES ($1, $2, $3, $4, $5, $6, 'pending')
		 RETURNING id, created_at`,
		e.Type, e.SourceEntity.Type, e.SourceEntity.ID,
		e.TargetEntity.Type, e.TargetEntity.ID, e.Payload,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("enqueue feedback event: %w", err)
	}
	return nil
}

func (s *FeedbackStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.FeedbackEvent, error) {
	e := &domain.FeedbackEvent{}
	err := scanFeedbackEvent(s.db.QueryRow(ctx,
		`SELECT `+feedbackColumns+` FROM feedback_events WHERE id = $1`, id), e)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func (s *FeedbackStore) ListPending(ctx context.Context, limit int) ([]domain.FeedbackEvent, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+feedbackColumns+` FROM feedback_events
		 WHERE status = 'pending'
		 ORDER BY created_at ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending events: %w", err)
	}
	defer rows.Close()

	var events []domain.FeedbackEvent
	for rows.Next() {
		var e domain.FeedbackEvent
		if err := scanFeedbackEvent(rows, &e); err != nil {
			return nil, fmt.Errorf("scan feedback event row: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *FeedbackStore) CountPending(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM feedback_events WHERE status = 'pending'`).Scan(&count)
	return count, err
}

func (s *FeedbackStore) OldestPendingAge(ctx context.Context) (time.Duration, error) {
	var oldest *time.Time
	err := s.db.QueryRow(ctx,
		`SELECT MIN(created_at) FROM feedback_events WHERE status = 'pending'`).Scan(&oldest)
	if err != nil {
		return 0, err
	}
	if oldest == nil {
		return 0, nil
	}
	return time.Since(*oldest), nil
}

// Resolve runs mutate and the event's status transition inside one
// transaction. mutate returning nil commits the mutation and marks the
// event processed; domain.ErrEventSkipped commits nothing and marks it
// skipped; any other error rolls the mutation back and marks the event
// failed with the error text. The status update is guarded by
// status='pending' so an event resolves exactly once even under
// concurrent workers.
func (s *FeedbackStore) Resolve(ctx context.Context, eventID uuid.UUID, mutate func(ctx context.Context, tx domain.AdjustmentTx) (adjusted bool, err error)) (domain.EventOutcome, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return domain.EventOutcome{}, fmt.Errorf("begin resolve tx: %w", err)
	}
	defer tx.Rollback(ctx)

	adjusted, mutateErr := mutate(ctx, &adjustmentTx{tx: tx})
	if mutateErr == nil {
		if err := s.markResolved(ctx, tx, eventID, domain.StatusProcessed, "", adjusted); err != nil {
			return domain.EventOutcome{}, err
		}
		if err := tx.Commit(ctx); err != nil {
			return domain.EventOutcome{}, fmt.Errorf("commit resolve tx: %w", err)
		}
		return domain.EventOutcome{Status: domain.StatusProcessed, Adjusted: adjusted}, nil
	}

	if errors.Is(mutateErr, domain.ErrEventSkipped) {
		// Skip must not carry partial mutations from before the skip
		// decision, so roll back and transition in a fresh tx.
		_ = tx.Rollback(ctx)
		if err := s.markResolvedDirect(ctx, eventID, domain.StatusSkipped, "", false); err != nil {
			return domain.EventOutcome{}, err
		}
		return domain.EventOutcome{Status: domain.StatusSkipped}, nil
	}

	_ = tx.Rollback(ctx)
	if err := s.markResolvedDirect(ctx, eventID, domain.StatusFailed, mutateErr.Error(), false); err != nil {
		return domain.EventOutcome{}, err
	}
	return domain.EventOutcome{Status: domain.StatusFailed, Error: mutateErr.Error()}, nil
}

func (s *FeedbackStore) markResolved(ctx context.Context, tx pgx.Tx, eventID uuid.UUID, status domain.FeedbackStatus, errMsg string, adjusted bool) error {
	tag, err := tx.Exec(ctx,
		`UPDATE feedback_events
		 SET status = $2, error_message = $3, adjustment_applied = $4, processed_at = NOW()
		 WHERE id = $1 AND status = 'pending'`,
		eventID, status, errMsg, adjusted,
	)
	if err != nil {
		return fmt.Errorf("transition event %s to %s: %w", eventID, status, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event %s is not pending", eventID)
	}
	return nil
}

func (s *FeedbackStore) markResolvedDirect(ctx context.Context, eventID uuid.UUID, status domain.FeedbackStatus, errMsg string, adjusted bool) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE feedback_events
		 SET status = $2, error_message = $3, adjustment_applied = $4, processed_at = NOW()
		 WHERE id = $1 AND status = 'pending'`,
		eventID, status, errMsg, adjusted,
	)
	if err != nil {
		return fmt.Errorf("transition event %s to %s: %w", eventID, status, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event %s is not pending", eventID)
	}
	return nil
}

// adjustmentTx implements domain.AdjustmentTx over a single pgx
// transaction. Lock* reads take FOR UPDATE so adjustments to the same
// entity serialize in submission order.
type adjustmentTx struct {
	tx pgx.Tx
}

func (a *adjustmentTx) LockPattern(ctx context.Context, id uuid.UUID) (*domain.Pattern, error) {
	p := &domain.Pattern{}
	err := a.tx.QueryRow(ctx,
		`SELECT id, name, pattern_type, domains, confidence, created_at, updated_at
		 FROM patterns WHERE id = $1 FOR UPDATE`,
		id,
	).Scan(&p.ID, &p.Name, &p.PatternType, &p.Domains, &p.Confidence, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (a *adjustmentTx) SetPatternConfidence(ctx context.Context, id uuid.UUID, confidence float64) error {
	tag, err := a.tx.Exec(ctx,
		`UPDATE patterns SET confidence = $2, updated_at = NOW() WHERE id = $1`,
		id, confidence,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (a *adjustmentTx) LockSource(ctx context.Context, id uuid.UUID) (*domain.Source, error) {
	src := &domain.Source{}
	err := a.tx.QueryRow(ctx,
		`SELECT id, name, url, dynamic_reliability, total_verifications, healthy, last_verified_at, created_at, updated_at
		 FROM sources WHERE id = $1 FOR UPDATE`,
		id,
	).Scan(&src.ID, &src.Name, &src.URL, &src.DynamicReliability, &src.TotalVerifications,
		&src.Healthy, &src.LastVerifiedAt, &src.CreatedAt, &src.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return src, nil
}

func (a *adjustmentTx) SetSourceReliability(ctx context.Context, id uuid.UUID, reliability float64, totalVerifications int) error {
	tag, err := a.tx.Exec(ctx,
		`UPDATE sources
		 SET dynamic_reliability = GREATEST(0, LEAST(1, $2)),
		     total_verifications = $3,
		     last_verified_at = NOW(),
		     updated_at = NOW()
		 WHERE id = $1`,
		id, reliability, totalVerifications,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (a *adjustmentTx) RecordAdjustment(ctx context.Context, adj *domain.ConfidenceAdjustment) error {
	return a.tx.QueryRow(ctx,
		`INSERT INTO confidence_adjustments (entity_type, entity_id, field, previous_value, new_value, delta, reason, event_id, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at`,
		adj.EntityType, adj.EntityID, adj.Field, adj.PreviousValue, adj.NewValue,
		adj.Delta, adj.Reason, adj.EventID, adj.Metadata,
	).Scan(&adj.ID, &adj.CreatedAt)
}

func (a *adjustmentTx) GetLearning(ctx context.Context, key domain.LearningKey) (*domain.SystemLearning, error) {
	l := &domain.SystemLearning{}
	err := a.tx.QueryRow(ctx,
		`SELECT `+learningColumns+` FROM system_learnings
		 WHERE category = $1 AND key = $2 FOR UPDATE`,
		key.Category, key.Key,
	).Scan(&l.ID, &l.Category, &l.Key, &l.SampleSize, &l.SuccessCount, &l.FailureCount,
		&l.SuccessRate, &l.AvgConfidence, &l.AvgEffectiveness, &l.AvgAccuracy,
		&l.Insights, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return l, nil
}

func (a *adjustmentTx) UpsertLearning(ctx context.Context, l *domain.SystemLearning) error {
	return a.tx.QueryRow(ctx,
		`INSERT INTO system_learnings (category, key, sample_size, success_count, failure_count, success_rate, avg_confidence, avg_effectiveness, avg_accuracy, insights)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (category, key) DO UPDATE SET
		    sample_size = EXCLUDED.sample_size,
		    success_count = EXCLUDED.success_count,
		    failure_count = EXCLUDED.failure_count,
		    success_rate = EXCLUDED.success_rate,
		    avg_confidence = EXCLUDED.avg_confidence,
		    avg_effectiveness = EXCLUDED.avg_effectiveness,
		    avg_accuracy = EXCLUDED.avg_accuracy,
		    insights = EXCLUDED.insights,
		    updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		l.Category, l.Key, l.SampleSize, l.SuccessCount, l.FailureCount,
		l.SuccessRate, l.AvgConfidence, l.AvgEffectiveness, l.AvgAccuracy, l.Insights,
	).Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
}
