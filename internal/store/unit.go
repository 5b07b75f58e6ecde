package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/crosscheckhq/veritas/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

const unitColumns = `id, statement, fingerprint, source_type, source_id, issue_id, granularity, granularity_confidence, temporal_scope, spatial_scope, domains, concepts, falsifiability, quantitative, prior_confidence, confidence, update_count, kb_validated, created_at, updated_at`

type UnitStore struct {
	db *pgxpool.Pool
}

func NewUnitStore(db *pgxpool.Pool) *UnitStore {
	return &UnitStore{db: db}
}

func scanUnit(row pgx.Row, u *domain.InformationUnit) error {
	return row.Scan(&u.ID, &u.Statement, &u.Fingerprint, &u.SourceType, &u.SourceID, &u.IssueID,
		&u.Granularity, &u.GranularityConfidence, &u.TemporalScope, &u.SpatialScope,
		&u.Domains, &u.Concepts, &u.Falsifiability, &u.Quantitative,
		&u.PriorConfidence, &u.Confidence, &u.UpdateCount, &u.KBValidated,
		&u.CreatedAt, &u.UpdatedAt)
}

// Create inserts the unit; the unique index on fingerprint makes this an
// upsert-by-content. On conflict the already-stored unit is returned and
// created is false.
func (s *UnitStore) Create(ctx context.Context, u *domain.InformationUnit) (*domain.InformationUnit, bool, error) {
	if u.Fingerprint == "" {
		u.Fingerprint = domain.Fingerprint(u.Statement)
	}

	var embedding *pgvector.Vector
	if len(u.Embedding) > 0 {
		v := pgvector.NewVector(u.Embedding)
		embedding = &v
	}

	err := s.db.QueryRow(ctx,
		`INSERT INTO information_units (statement, fingerprint, source_type, source_id, issue_id, granularity, granularity_confidence, temporal_scope, spatial_scope, domains, concepts, falsifiability, quantitative, prior_confidence, confidence, update_count, kb_validated, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 0, $16, $17)
		 ON CONFLICT (fingerprint) DO NOTHING
		 RETURNING id, created_at, updated_at`,
		u.Statement, u.Fingerprint, u.SourceType, u.SourceID, u.IssueID,
		u.Granularity, u.GranularityConfidence, u.TemporalScope, u.SpatialScope,
		u.Domains, u.Concepts, u.Falsifiability, u.Quantitative,
		u.PriorConfidence, u.Confidence, u.KBValidated, embedding,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err == nil {
		return u, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("create unit: %w", err)
	}

	existing, err := s.GetByFingerprint(ctx, u.Fingerprint)
	if err != nil {
		return nil, false, fmt.Errorf("fetch unit after fingerprint conflict: %w", err)
	}
	return existing, false, nil
}

func (s *UnitStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.InformationUnit, error) {
	u := &domain.InformationUnit{}
	err := scanUnit(s.db.QueryRow(ctx,
		`SELECT `+unitColumns+` FROM information_units WHERE id = $1`, id), u)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func (s *UnitStore) GetByFingerprint(ctx context.Context, fingerprint string) (*domain.InformationUnit, error) {
	u := &domain.InformationUnit{}
	err := scanUnit(s.db.QueryRow(ctx,
		`SELECT `+unitColumns+` FROM information_units WHERE fingerprint = $1`, fingerprint), u)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func (s *UnitStore) FindByGranularity(ctx context.Context, level domain.GranularityLevel, domains []string) ([]domain.InformationUnit, error) {
	query := `SELECT ` + unitColumns + ` FROM information_units WHERE granularity = $1`
	args := []any{level}
	if len(domains) > 0 {
		query += ` AND domains && $2`
		args = append(args, domains)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find by granularity: %w", err)
	}
	defer rows.Close()

	return collectUnits(rows)
}

func (s *UnitStore) FindByIssue(ctx context.Context, issueID uuid.UUID) ([]domain.InformationUnit, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+unitColumns+` FROM information_units WHERE issue_id = $1 ORDER BY created_at ASC`,
		issueID,
	)
	if err != nil {
		return nil, fmt.Errorf("find by issue: %w", err)
	}
	defer rows.Close()

	return collectUnits(rows)
}

// UpdateConfidence clamps in SQL so no writer can skip the bound, and
// bumps update_count.
func (s *UnitStore) UpdateConfidence(ctx context.Context, id uuid.UUID, confidence float64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE information_units
		 SET confidence = GREATEST(0, LEAST(1, $2)),
		     update_count = update_count + 1,
		     updated_at = NOW()
		 WHERE id = $1`,
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

func (s *UnitStore) FindSimilarStatements(ctx context.Context, embedding []float32, threshold float32, limit int) ([]domain.UnitWithScore, error) {
	if limit <= 0 {
		limit = 10
	}
	vec := pgvector.NewVector(embedding)

	rows, err := s.db.Query(ctx,
		`SELECT `+unitColumns+`, 1 - (embedding <=> $1) AS score
		 FROM information_units
		 WHERE embedding IS NOT NULL AND 1 - (embedding <=> $1) >= $2
		 ORDER BY score DESC
		 LIMIT $3`,
		vec, threshold, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("find similar statements: %w", err)
	}
	defer rows.Close()

	var results []domain.UnitWithScore
	for rows.Next() {
		var us domain.UnitWithScore
		if err := rows.Scan(&us.ID, &us.Statement, &us.Fingerprint, &us.SourceType, &us.SourceID, &us.IssueID,
			&us.Granularity, &us.GranularityConfidence, &us.TemporalScope, &us.SpatialScope,
			&us.Domains, &us.Concepts, &us.Falsifiability, &us.Quantitative,
			&us.PriorConfidence, &us.Confidence, &us.UpdateCount, &us.KBValidated,
			&us.CreatedAt, &us.UpdatedAt, &us.Score); err != nil {
			return nil, fmt.Errorf("scan similar statement row: %w", err)
		}
		results = append(results, us)
	}
	return results, rows.Err()
}

func collectUnits(rows pgx.Rows) ([]domain.InformationUnit, error) {
	var units []domain.InformationUnit
	for rows.Next() {
		var u domain.InformationUnit
		if err := scanUnit(rows, &u); err != nil {
			return nil, fmt.Errorf("scan unit row: %w", err)
		}
		units = append(units, u)
	}
	return units, rows.Err()
}
