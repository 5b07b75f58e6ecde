package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/crosscheckhq/veritas/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const learningColumns = `id, category, key, sample_size, success_count, failure_count, success_rate, avg_confidence, avg_effectiveness, avg_accuracy, insights, created_at, updated_at`

type LearningStore struct {
	db *pgxpool.Pool
}

func NewLearningStore(db *pgxpool.Pool) *LearningStore {
	return &LearningStore{db: db}
}

func scanLearning(row pgx.Row, l *domain.SystemLearning) error {
	return row.Scan(&l.ID, &l.Category, &l.Key, &l.SampleSize, &l.SuccessCount, &l.FailureCount,
		&l.SuccessRate, &l.AvgConfidence, &l.AvgEffectiveness, &l.AvgAccuracy,
		&l.Insights, &l.CreatedAt, &l.UpdatedAt)
}

func (s *LearningStore) GetByKey(ctx context.Context, key domain.LearningKey) (*domain.SystemLearning, error) {
	l := &domain.SystemLearning{}
	err := scanLearning(s.db.QueryRow(ctx,
		`SELECT `+learningColumns+` FROM system_learnings WHERE category = $1 AND key = $2`,
		key.Category, key.Key), l)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return l, nil
}

func (s *LearningStore) ListByCategory(ctx context.Context, category domain.LearningCategory) ([]domain.SystemLearning, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+learningColumns+` FROM system_learnings WHERE category = $1 ORDER BY key ASC`,
		category,
	)
	if err != nil {
		return nil, fmt.Errorf("list learnings: %w", err)
	}
	defer rows.Close()

	var learnings []domain.SystemLearning
	for rows.Next() {
		var l domain.SystemLearning
		if err := scanLearning(rows, &l); err != nil {
			return nil, fmt.Errorf("scan learning row: %w", err)
		}
		learnings = append(learnings, l)
	}
	return learnings, rows.Err()
}
