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

const comparisonColumns = `id, unit_a_id, unit_b_id, granularity, concept_overlap, temporal_overlap, spatial_overlap, comparability, relationship, agreement_score, contradiction_type, confidence_impact, explanation, created_at`

type ComparisonStore struct {
	db *pgxpool.Pool
}

func NewComparisonStore(db *pgxpool.Pool) *ComparisonStore {
	return &ComparisonStore{db: db}
}

// Create persists the comparison. A unique index on
// (LEAST(unit_a_id, unit_b_id), GREATEST(unit_a_id, unit_b_id), granularity)
// makes a second insert for the same unordered pair a no-op, returning
// false. The guard lives in storage so concurrent workers cannot race it.
func (s *ComparisonStore) Create(ctx context.Context, c *domain.UnitComparison) (bool, error) {
	err := s.db.QueryRow(ctx,
		`INSERT INTO unit_comparisons (unit_a_id, unit_b_id, granularity, concept_overlap, temporal_overlap, spatial_overlap, comparability, relationship, agreement_score, contradiction_type, confidence_impact, explanation)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT DO NOTHING
		 RETURNING id, created_at`,
		c.UnitAID, c.UnitBID, c.Granularity,
		c.Factors.ConceptOverlap, c.Factors.TemporalOverlap, c.Factors.SpatialOverlap, c.Factors.Comparability,
		c.Relationship, c.AgreementScore, c.ContradictionType, c.ConfidenceImpact, c.Explanation,
	).Scan(&c.ID, &c.CreatedAt)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("create comparison: %w", err)
}

func (s *ComparisonStore) Exists(ctx context.Context, a, b uuid.UUID, level domain.GranularityLevel) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM unit_comparisons
		   WHERE LEAST(unit_a_id, unit_b_id) = LEAST($1::uuid, $2::uuid)
		     AND GREATEST(unit_a_id, unit_b_id) = GREATEST($1::uuid, $2::uuid)
		     AND granularity = $3
		 )`,
		a, b, level,
	).Scan(&exists)
	return exists, err
}

func (s *ComparisonStore) GetByUnit(ctx context.Context, unitID uuid.UUID) ([]domain.UnitComparison, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+comparisonColumns+` FROM unit_comparisons
		 WHERE unit_a_id = $1 OR unit_b_id = $1
		 ORDER BY created_at DESC`,
		unitID,
	)
	if err != nil {
		return nil, fmt.Errorf("get comparisons by unit: %w", err)
	}
	defer rows.Close()

	return collectComparisons(rows)
}

func (s *ComparisonStore) GetByUnits(ctx context.Context, unitIDs []uuid.UUID) ([]domain.UnitComparison, error) {
	if len(unitIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+comparisonColumns+` FROM unit_comparisons
		 WHERE unit_a_id = ANY($1) AND unit_b_id = ANY($1)
		 ORDER BY created_at ASC`,
		unitIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("get comparisons by units: %w", err)
	}
	defer rows.Close()

	return collectComparisons(rows)
}

func collectComparisons(rows pgx.Rows) ([]domain.UnitComparison, error) {
	var comparisons []domain.UnitComparison
	for rows.Next() {
		var c domain.UnitComparison
		if err := rows.Scan(&c.ID, &c.UnitAID, &c.UnitBID, &c.Granularity,
			&c.Factors.ConceptOverlap, &c.Factors.TemporalOverlap, &c.Factors.SpatialOverlap, &c.Factors.Comparability,
			&c.Relationship, &c.AgreementScore, &c.ContradictionType, &c.ConfidenceImpact, &c.Explanation,
			&c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comparison row: %w", err)
		}
		comparisons = append(comparisons, c)
	}
	return comparisons, rows.Err()
}
