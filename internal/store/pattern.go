package store

import (
	"context"
	"errors"

	"github.com/crosscheckhq/veritas/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// lowConfidenceThreshold marks a pattern as needing review in stats.
const lowConfidenceThreshold = 0.4

type PatternStore struct {
	db *pgxpool.Pool
}

func NewPatternStore(db *pgxpool.Pool) *PatternStore {
	return &PatternStore{db: db}
}

func (s *PatternStore) Create(ctx context.Context, p *domain.Pattern) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO patterns (name, pattern_type, domains, confidence)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		p.Name, p.PatternType, p.Domains, p.Confidence,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (s *PatternStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Pattern, error) {
	p := &domain.Pattern{}
	err := s.db.QueryRow(ctx,
		`SELECT id, name, pattern_type, domains, confidence, created_at, updated_at
		 FROM patterns WHERE id = $1`,
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

func (s *PatternStore) Stats(ctx context.Context) (domain.PatternStats, error) {
	var stats domain.PatternStats
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*),
		        COALESCE(AVG(confidence), 0),
		        COALESCE(AVG(CASE WHEN confidence < $1 THEN 1.0 ELSE 0.0 END), 0)
		 FROM patterns`,
		lowConfidenceThreshold,
	).Scan(&stats.Count, &stats.AvgConfidence, &stats.LowConfidenceRate)
	return stats, err
}
