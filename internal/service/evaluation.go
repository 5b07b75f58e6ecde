package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/crosscheckhq/veritas/internal/domain"
	"github.com/crosscheckhq/veritas/internal/store"
	"go.uber.org/zap"
)

// DefaultEvaluationInterval spaces periodic snapshot runs.
const DefaultEvaluationInterval = 1 * time.Hour

// Alert thresholds.
const (
	minHealthyPatternConfidence = 0.5
	maxLowConfidenceRate        = 0.3
	maxFeedbackLag              = 24 * time.Hour
)

// trendMetric pairs a snapshot field with its classification threshold.
type trendMetric struct {
	name           string
	threshold      float64
	higherIsBetter bool
	value          func(*domain.EvaluationRun) float64
}

var trendMetrics = []trendMetric{
	{"pattern_confidence", 0.02, true, func(r *domain.EvaluationRun) float64 { return r.PatternAvgConfidence }},
	{"pattern_low_confidence_rate", 0.05, false, func(r *domain.EvaluationRun) float64 { return r.PatternLowConfidenceRate }},
	{"source_reliability", 0.02, true, func(r *domain.EvaluationRun) float64 { return r.SourceAvgReliability }},
	{"solution_effectiveness", 0.05, true, func(r *domain.EvaluationRun) float64 { return r.SolutionAvgEffectiveness }},
	{"feedback_backlog", 5, false, func(r *domain.EvaluationRun) float64 { return float64(r.FeedbackBacklog) }},
	{"feedback_lag_seconds", 3600, false, func(r *domain.EvaluationRun) float64 { return r.FeedbackLagSeconds }},
}

type EvaluationService struct {
	patterns  domain.PatternStore
	sources   domain.SourceStore
	learnings domain.LearningStore
	feedback  domain.FeedbackStore
	runs      domain.EvaluationStore
	interval  time.Duration
	logger    *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewEvaluationService(patterns domain.PatternStore, sources domain.SourceStore, learnings domain.LearningStore, feedback domain.FeedbackStore, runs domain.EvaluationStore, interval time.Duration, logger *zap.Logger) *EvaluationService {
	if interval <= 0 {
		interval = DefaultEvaluationInterval
	}
	return &EvaluationService{
		patterns:  patterns,
		sources:   sources,
		learnings: learnings,
		feedback:  feedback,
		runs:      runs,
		interval:  interval,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the periodic snapshot loop.
func (s *EvaluationService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("evaluation job started", zap.Duration("interval", s.interval))
		for {
			select {
			case <-ticker.C:
				if _, err := s.RunOnce(context.Background()); err != nil {
					s.logger.Error("evaluation run failed", zap.Error(err))
				}
			case <-s.stopCh:
				s.logger.Info("evaluation job stopped")
				return
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight run to finish.
func (s *EvaluationService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// RunOnce snapshots current metrics, classifies trends against the
// previous run, raises alerts, and persists the result. A failing
// collector zeroes its own subsystem's metrics instead of aborting the
// run, so one broken metrics source cannot blind the rest of the report.
func (s *EvaluationService) RunOnce(ctx context.Context) (*domain.EvaluationRun, error) {
	run := &domain.EvaluationRun{}
	s.collect(ctx, run)

	previous, err := s.runs.Latest(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load previous run: %w", err)
	}
	if previous != nil {
		run.Trends = make(map[string]domain.TrendDirection, len(trendMetrics))
		for _, m := range trendMetrics {
			run.Trends[m.name] = domain.Classify(m.value(run), m.value(previous), m.threshold, m.higherIsBetter)
		}
	}

	run.Alerts = buildAlerts(run)

	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("persist evaluation run: %w", err)
	}

	s.logger.Info("evaluation snapshot recorded",
		zap.Int("patterns", run.PatternCount),
		zap.Float64("pattern_avg_confidence", run.PatternAvgConfidence),
		zap.Int("feedback_backlog", run.FeedbackBacklog),
		zap.Int("alerts", len(run.Alerts)))
	return run, nil
}

func (s *EvaluationService) collect(ctx context.Context, run *domain.EvaluationRun) {
	if stats, err := s.patterns.Stats(ctx); err != nil {
		s.logger.Warn("pattern metrics collection failed, using zero defaults", zap.Error(err))
	} else {
		run.PatternCount = stats.Count
		run.PatternAvgConfidence = stats.AvgConfidence
		run.PatternLowConfidenceRate = stats.LowConfidenceRate
	}

	if stats, err := s.sources.Stats(ctx); err != nil {
		s.logger.Warn("source metrics collection failed, using zero defaults", zap.Error(err))
	} else {
		run.SourceHealthyCount = stats.HealthyCount
		run.SourceUnhealthyCount = stats.UnhealthyCount
		run.SourceAvgReliability = stats.AvgReliability
	}

	if learnings, err := s.learnings.ListByCategory(ctx, domain.LearningSolution); err != nil {
		s.logger.Warn("solution metrics collection failed, using zero defaults", zap.Error(err))
	} else if len(learnings) > 0 {
		sum := 0.0
		for i := range learnings {
			sum += learnings[i].AvgEffectiveness
		}
		run.SolutionAvgEffectiveness = sum / float64(len(learnings))
	}

	if backlog, err := s.feedback.CountPending(ctx); err != nil {
		s.logger.Warn("feedback backlog collection failed, using zero defaults", zap.Error(err))
	} else {
		run.FeedbackBacklog = backlog
	}
	if lag, err := s.feedback.OldestPendingAge(ctx); err != nil {
		s.logger.Warn("feedback lag collection failed, using zero defaults", zap.Error(err))
	} else {
		run.FeedbackLagSeconds = lag.Seconds()
	}
}

func buildAlerts(run *domain.EvaluationRun) []domain.EvaluationAlert {
	var alerts []domain.EvaluationAlert

	if run.PatternCount > 0 && run.PatternAvgConfidence < minHealthyPatternConfidence {
		alerts = append(alerts, domain.EvaluationAlert{
			Severity:  domain.AlertWarning,
			Subsystem: "patterns",
			Message:   fmt.Sprintf("average pattern confidence %.2f is below %.2f", run.PatternAvgConfidence, minHealthyPatternConfidence),
		})
	}
	if run.PatternLowConfidenceRate > maxLowConfidenceRate {
		alerts = append(alerts, domain.EvaluationAlert{
			Severity:  domain.AlertWarning,
			Subsystem: "patterns",
			Message:   fmt.Sprintf("%.0f%% of patterns are low-confidence", run.PatternLowConfidenceRate*100),
		})
	}
	if run.SourceUnhealthyCount > 0 {
		alerts = append(alerts, domain.EvaluationAlert{
			Severity:  domain.AlertCritical,
			Subsystem: "sources",
			Message:   fmt.Sprintf("%d sources are unhealthy", run.SourceUnhealthyCount),
		})
	}
	if run.FeedbackLagSeconds > maxFeedbackLag.Seconds() {
		alerts = append(alerts, domain.EvaluationAlert{
			Severity:  domain.AlertCritical,
			Subsystem: "feedback",
			Message:   fmt.Sprintf("oldest pending event is %.1f hours old", run.FeedbackLagSeconds/3600),
		})
	}
	return alerts
}
