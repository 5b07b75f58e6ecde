package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/crosscheckhq/veritas/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ConsistencyStore struct {
	db *pgxpool.Pool
}

func NewConsistencyStore(db *pgxpool.Pool) *ConsistencyStore {
	return &ConsistencyStore{db: db}
}

func (s *ConsistencyStore) Upsert(ctx context.Context, c *domain.ClaimConsistency) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO claim_consistency (entity_type, entity_id, levels, overall_consistency, weighted_consistency, recommended_delta, rationale, unit_set_fingerprint)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (entity_type, entity_id) DO UPDATE SET
		    levels = EXCLUDED.levels,
		    overall_consistency = EXCLUDED.overall_consistency,
		    weighted_consistency = EXCLUDED.weighted_consistency,
		    recommended_delta = EXCLUDED.recommended_delta,
		    rationale = EXCLUDED.rationale,
		    unit_set_fingerprint = EXCLUDED.unit_set_fingerprint,
		    updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		c.EntityType, c.EntityID, c.Levels, c.OverallConsistency, c.WeightedConsistency,
		c.RecommendedDelta, c.Rationale, c.UnitSetFingerprint,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

func (s *ConsistencyStore) GetByEntity(ctx context.Context, entityType string, entityID uuid.UUID) (*domain.ClaimConsistency, error) {
	c := &domain.ClaimConsistency{}
	err := s.db.QueryRow(ctx,
		`SELECT id, entity_type, entity_id, levels, overall_consistency, weighted_consistency, recommended_delta, rationale, unit_set_fingerprint, created_at, updated_at
		 FROM claim_consistency WHERE entity_type = $1 AND entity_id = $2`,
		entityType, entityID,
	).Scan(&c.ID, &c.EntityType, &c.EntityID, &c.Levels, &c.OverallConsistency, &c.WeightedConsistency,
		&c.RecommendedDelta, &c.Rationale, &c.UnitSetFingerprint, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get consistency: %w", err)
	}
	return c, nil
}
