package store

import (
	"context"
	"errors"

	"github.com/crosscheckhq/veritas/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SourceStore struct {
	db *pgxpool.Pool
}

func NewSourceStore(db *pgxpool.Pool) *SourceStore {
	return &SourceStore{db: db}
}

func (s *SourceStore) Create(ctx context.Context, src *domain.Source) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO sources (name, url, dynamic_reliability, total_verifications, healthy)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		src.Name, src.URL, src.DynamicReliability, src.TotalVerifications, src.Healthy,
	).Scan(&src.ID, &src.CreatedAt, &src.UpdatedAt)
}

func (s *SourceStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Source, error) {
	src := &domain.Source{}
	err := s.db.QueryRow(ctx,
		`SELECT id, name, url, dynamic_reliability, total_verifications, healthy, last_verified_at, created_at, updated_at
		 FROM sources WHERE id = $1`,
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

func (s *SourceStore) Stats(ctx context.Context) (domain.SourceStats, error) {
	var stats domain.SourceStats
	err := s.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(CASE WHEN healthy THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN healthy THEN 0 ELSE 1 END), 0),
		        COALESCE(AVG(dynamic_reliability), 0)
		 FROM sources`,
	).Scan(&stats.HealthyCount, &stats.UnhealthyCount, &stats.AvgReliability)
	return stats, err
}
