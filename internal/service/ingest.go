package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crosscheckhq/veritas/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Initial confidence shaping: a unit starts near neutral, nudged by its
// source's credibility.
const (
	baseInitialConfidence = 0.4
	credibilityInfluence  = 0.3
)

// nearDuplicateThreshold flags semantically close statements that the
// exact-fingerprint check cannot catch.
const nearDuplicateThreshold = 0.95

// IngestRequest is one source item to decompose into units.
type IngestRequest struct {
	SourceText        string     `json:"source_text"`
	SourceType        string     `json:"source_type"`
	SourceID          string     `json:"source_id"`
	SourceCredibility float64    `json:"source_credibility"`
	IssueID           *uuid.UUID `json:"issue_id,omitempty"`
}

// IngestResult reports one decomposition pass.
type IngestResult struct {
	Units      []domain.InformationUnit `json:"units"`
	Created    int                      `json:"created"`
	Duplicates int                      `json:"duplicates"`
	Rejected   int                      `json:"rejected"`
}

type IngestService struct {
	units           domain.UnitStore
	analyzer        domain.ClaimAnalyzer
	embeddings      domain.EmbeddingClient
	analyzerTimeout time.Duration
	logger          *zap.Logger
}

func NewIngestService(units domain.UnitStore, analyzer domain.ClaimAnalyzer, embeddings domain.EmbeddingClient, analyzerTimeout time.Duration, logger *zap.Logger) *IngestService {
	if analyzerTimeout <= 0 {
		analyzerTimeout = DefaultAnalyzerTimeout
	}
	return &IngestService{
		units:           units,
		analyzer:        analyzer,
		embeddings:      embeddings,
		analyzerTimeout: analyzerTimeout,
		logger:          logger,
	}
}

// Ingest decomposes one source item into units and persists them.
// Exact duplicates collapse onto the stored unit via the statement
// fingerprint; analyzer candidates with invalid enum fields are
// rejected individually rather than failing the whole item.
func (s *IngestService) Ingest(ctx context.Context, req *IngestRequest) (*IngestResult, error) {
	if s.analyzer == nil {
		return nil, errors.New("analyzer client not configured")
	}

	dctx, cancel := context.WithTimeout(ctx, s.analyzerTimeout)
	defer cancel()

	candidates, err := s.analyzer.Decompose(dctx, req.SourceText, req.SourceCredibility)
	if err != nil {
		return nil, fmt.Errorf("decompose source item: %w", err)
	}

	result := &IngestResult{}
	for i := range candidates {
		c := &candidates[i]
		if !validCandidate(c) {
			s.logger.Warn("rejecting malformed decomposed unit",
				zap.String("statement", c.Statement),
				zap.String("granularity", string(c.Granularity)))
			result.Rejected++
			continue
		}

		initial := domain.ClampConfidence(baseInitialConfidence + credibilityInfluence*req.SourceCredibility)
		unit := &domain.InformationUnit{
			Statement:             c.Statement,
			SourceType:            req.SourceType,
			SourceID:              req.SourceID,
			IssueID:               req.IssueID,
			Granularity:           c.Granularity,
			GranularityConfidence: c.GranularityConfidence,
			TemporalScope:         c.TemporalScope,
			SpatialScope:          c.SpatialScope,
			Domains:               c.Domains,
			Concepts:              c.Concepts,
			Falsifiability:        c.Falsifiability,
			Quantitative:          c.Quantitative,
			PriorConfidence:       initial,
			Confidence:            initial,
		}
		s.embed(ctx, unit)

		stored, created, err := s.units.Create(ctx, unit)
		if err != nil {
			return nil, fmt.Errorf("persist unit: %w", err)
		}
		if created {
			result.Created++
			s.flagNearDuplicates(ctx, stored)
		} else {
			result.Duplicates++
		}
		result.Units = append(result.Units, *stored)
	}

	s.logger.Info("source item ingested",
		zap.String("source_type", req.SourceType),
		zap.String("source_id", req.SourceID),
		zap.Int("created", result.Created),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("rejected", result.Rejected))
	return result, nil
}

// embed attaches an embedding when a client is configured. Embedding
// trouble degrades to fingerprint-only dedup.
func (s *IngestService) embed(ctx context.Context, unit *domain.InformationUnit) {
	if s.embeddings == nil {
		return
	}
	vec, err := s.embeddings.Embed(ctx, unit.Statement)
	if err != nil {
		s.logger.Warn("embedding failed, unit stored without vector", zap.Error(err))
		return
	}
	unit.Embedding = vec
}

// flagNearDuplicates logs semantically close existing statements. They
// stay separate units; only exact fingerprints collapse.
func (s *IngestService) flagNearDuplicates(ctx context.Context, unit *domain.InformationUnit) {
	if len(unit.Embedding) == 0 {
		return
	}
	similar, err := s.units.FindSimilarStatements(ctx, unit.Embedding, nearDuplicateThreshold, 3)
	if err != nil {
		s.logger.Warn("near-duplicate lookup failed", zap.Error(err))
		return
	}
	for i := range similar {
		if similar[i].ID == unit.ID {
			continue
		}
		s.logger.Info("near-duplicate statement detected",
			zap.String("unit_id", unit.ID.String()),
			zap.String("similar_unit_id", similar[i].ID.String()),
			zap.Float32("score", similar[i].Score))
	}
}

func validCandidate(c *domain.DecomposedUnit) bool {
	if c.Statement == "" {
		return false
	}
	if !domain.ValidGranularityLevel(string(c.Granularity)) {
		return false
	}
	if !domain.ValidTemporalScope(string(c.TemporalScope)) {
		return false
	}
	if !domain.ValidSpatialScope(string(c.SpatialScope)) {
		return false
	}
	return c.Falsifiability >= 0 && c.Falsifiability <= 1
}
