package store

import (
	"context"
	"fmt"

	"github.com/crosscheckhq/veritas/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AdjustmentStore struct {
	db *pgxpool.Pool
}

func NewAdjustmentStore(db *pgxpool.Pool) *AdjustmentStore {
	return &AdjustmentStore{db: db}
}

func (s *AdjustmentStore) ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]domain.ConfidenceAdjustment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, entity_type, entity_id, field, previous_value, new_value, delta, reason, event_id, metadata, created_at
		 FROM confidence_adjustments
		 WHERE entity_type = $1 AND entity_id = $2
		 ORDER BY created_at DESC
		 LIMIT $3`,
		entityType, entityID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list adjustments: %w", err)
	}
	defer rows.Close()

	var adjustments []domain.ConfidenceAdjustment
	for rows.Next() {
		var a domain.ConfidenceAdjustment
		if err := rows.Scan(&a.ID, &a.EntityType, &a.EntityID, &a.Field,
			&a.PreviousValue, &a.NewValue, &a.Delta, &a.Reason, &a.EventID,
			&a.Metadata, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan adjustment row: %w", err)
		}
		adjustments = append(adjustments, a)
	}
	return adjustments, rows.Err()
}
