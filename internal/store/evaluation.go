package store

import (
	"context"
	"errors"

	"github.com/crosscheckhq/veritas/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const evaluationColumns = `id, pattern_count, pattern_avg_confidence, pattern_low_confidence_rate, source_healthy_count, source_unhealthy_count, source_avg_reliability, solution_avg_effectiveness, feedback_backlog, feedback_lag_seconds, trends, alerts, created_at`

type EvaluationStore struct {
	db *pgxpool.Pool
}

func NewEvaluationStore(db *pgxpool.Pool) *EvaluationStore {
	return &EvaluationStore{db: db}
}

func (s *EvaluationStore) Create(ctx context.Context, run *domain.EvaluationRun) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO evaluation_runs (pattern_count, pattern_avg_confidence, pattern_low_confidence_rate, source_healthy_count, source_unhealthy_count, source_avg_reliability, solution_avg_effectiveness, feedback_backlog, feedback_lag_seconds, trends, alerts)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id, created_at`,
		run.PatternCount, run.PatternAvgConfidence, run.PatternLowConfidenceRate,
		run.SourceHealthyCount, run.SourceUnhealthyCount, run.SourceAvgReliability,
		run.SolutionAvgEffectiveness, run.FeedbackBacklog, run.FeedbackLagSeconds,
		run.Trends, run.Alerts,
	).Scan(&run.ID, &run.CreatedAt)
}

func (s *EvaluationStore) Latest(ctx context.Context) (*domain.EvaluationRun, error) {
	run := &domain.EvaluationRun{}
	err := s.db.QueryRow(ctx,
		`SELECT `+evaluationColumns+` FROM evaluation_runs
		 ORDER BY created_at DESC LIMIT 1`,
	).Scan(&run.ID, &run.PatternCount, &run.PatternAvgConfidence, &run.PatternLowConfidenceRate,
		&run.SourceHealthyCount, &run.SourceUnhealthyCount, &run.SourceAvgReliability,
		&run.SolutionAvgEffectiveness, &run.FeedbackBacklog, &run.FeedbackLagSeconds,
		&run.Trends, &run.Alerts, &run.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return run, nil
}
