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

const refClassColumns = `id, name, domains, pattern_types, real_alpha, real_beta, real_samples, solvable_alpha, solvable_beta, solvable_samples, created_at, updated_at`

type ReferenceClassStore struct {
	db *pgxpool.Pool
}

func NewReferenceClassStore(db *pgxpool.Pool) *ReferenceClassStore {
	return &ReferenceClassStore{db: db}
}

func scanReferenceClass(row pgx.Row, rc *domain.ReferenceClass) error {
	return row.Scan(&rc.ID, &rc.Name, &rc.Domains, &rc.PatternTypes,
		&rc.RealAlpha, &rc.RealBeta, &rc.RealSamples,
		&rc.SolvableAlpha, &rc.SolvableBeta, &rc.SolvableSamples,
		&rc.CreatedAt, &rc.UpdatedAt)
}

func (s *ReferenceClassStore) Create(ctx context.Context, rc *domain.ReferenceClass) error {
	// Laplace smoothing: parameters start at 1.
	if rc.RealAlpha < 1 {
		rc.RealAlpha = 1
	}
	if rc.RealBeta < 1 {
		rc.RealBeta = 1
	}
	if rc.SolvableAlpha < 1 {
		rc.SolvableAlpha = 1
	}
	if rc.SolvableBeta < 1 {
		rc.SolvableBeta = 1
	}

	return s.db.QueryRow(ctx,
		`INSERT INTO reference_classes (name, domains, pattern_types, real_alpha, real_beta, real_samples, solvable_alpha, solvable_beta, solvable_samples)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (name) DO UPDATE SET
		    domains = EXCLUDED.domains,
		    pattern_types = EXCLUDED.pattern_types,
		    updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		rc.Name, rc.Domains, rc.PatternTypes,
		rc.RealAlpha, rc.RealBeta, rc.RealSamples,
		rc.SolvableAlpha, rc.SolvableBeta, rc.SolvableSamples,
	).Scan(&rc.ID, &rc.CreatedAt, &rc.UpdatedAt)
}

func (s *ReferenceClassStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ReferenceClass, error) {
	rc := &domain.ReferenceClass{}
	err := scanReferenceClass(s.db.QueryRow(ctx,
		`SELECT `+refClassColumns+` FROM reference_classes WHERE id = $1`, id), rc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rc, nil
}

func (s *ReferenceClassStore) List(ctx context.Context) ([]domain.ReferenceClass, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+refClassColumns+` FROM reference_classes ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list reference classes: %w", err)
	}
	defer rows.Close()

	var classes []domain.ReferenceClass
	for rows.Next() {
		var rc domain.ReferenceClass
		if err := scanReferenceClass(rows, &rc); err != nil {
			return nil, fmt.Errorf("scan reference class row: %w", err)
		}
		classes = append(classes, rc)
	}
	return classes, rows.Err()
}

func (s *ReferenceClassStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM reference_classes`).Scan(&count)
	return count, err
}

// ApplyObservation folds exactly one unit of evidence into the field's
// Beta parameters. The increments run in SQL so concurrent observers
// cannot lose updates.
func (s *ReferenceClassStore) ApplyObservation(ctx context.Context, id uuid.UUID, field domain.BaseRateField, success bool) error {
	alphaInc, betaInc := 0, 1
	if success {
		alphaInc, betaInc = 1, 0
	}

	var query string
	switch field {
	case domain.BaseRateIsSolvable:
		query = `UPDATE reference_classes
		         SET solvable_alpha = solvable_alpha + $2,
		             solvable_beta = solvable_beta + $3,
		             solvable_samples = solvable_samples + 1,
		             updated_at = NOW()
		         WHERE id = $1`
	case domain.BaseRateIsReal:
		query = `UPDATE reference_classes
		         SET real_alpha = real_alpha + $2,
		             real_beta = real_beta + $3,
		             real_samples = real_samples + 1,
		             updated_at = NOW()
		         WHERE id = $1`
	default:
		return fmt.Errorf("unknown base rate field: %s", field)
	}

	tag, err := s.db.Exec(ctx, query, id, alphaInc, betaInc)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
