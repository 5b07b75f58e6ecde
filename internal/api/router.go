package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/crosscheckhq/veritas/internal/analyzer"
	"github.com/crosscheckhq/veritas/internal/api/handlers"
	mw "github.com/crosscheckhq/veritas/internal/api/middleware"
	"github.com/crosscheckhq/veritas/internal/config"
	"github.com/crosscheckhq/veritas/internal/domain"
	"github.com/crosscheckhq/veritas/internal/embedding"
	"github.com/crosscheckhq/veritas/internal/service"
	"github.com/crosscheckhq/veritas/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// App holds the router and background services for lifecycle management.
type App struct {
	Router       *chi.Mux
	Evaluation   *service.EvaluationService
	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

func NewApp(db *pgxpool.Pool, logger *zap.Logger) *App {
	// Stores
	unitStore := store.NewUnitStore(db)
	comparisonStore := store.NewComparisonStore(db)
	consistencyStore := store.NewConsistencyStore(db)
	refClassStore := store.NewReferenceClassStore(db)
	feedbackStore := store.NewFeedbackStore(db)
	adjustmentStore := store.NewAdjustmentStore(db)
	learningStore := store.NewLearningStore(db)
	patternStore := store.NewPatternStore(db)
	sourceStore := store.NewSourceStore(db)
	evaluationStore := store.NewEvaluationStore(db)

	// External clients via provider factory
	analyzerClient, err := analyzer.NewClient(config.AnalyzerProvider(), config.AnalyzerAPIKey())
	if err != nil {
		logger.Warn("analyzer client initialization failed", zap.String("provider", config.AnalyzerProvider()), zap.Error(err))
	} else {
		logger.Info("analyzer client initialized", zap.String("provider", config.AnalyzerProvider()))
	}

	embeddingClient, err := embedding.NewClient(config.EmbeddingProvider(), config.EmbeddingAPIKey(), config.EmbeddingModel())
	if err != nil {
		logger.Warn("embedding client initialization failed", zap.String("provider", config.EmbeddingProvider()), zap.Error(err))
	} else {
		logger.Info("embedding client initialized", zap.String("provider", config.EmbeddingProvider()))
	}

	// Services
	ingestSvc := service.NewIngestService(unitStore, analyzerClient, embeddingClient, config.AnalyzerTimeout(), logger)
	validationSvc := service.NewCrossValidationService(unitStore, comparisonStore, analyzerClient, config.AnalyzerTimeout(), logger)
	refClassSvc := service.NewReferenceClassService(refClassStore, logger)
	consistencySvc := service.NewConsistencyService(unitStore, comparisonStore, consistencyStore, refClassSvc, logger)
	processorSvc := service.NewFeedbackProcessor(feedbackStore, config.FeedbackBatchSize(), logger)
	evaluationSvc := service.NewEvaluationService(patternStore, sourceStore, learningStore, feedbackStore, evaluationStore, config.EvaluationInterval(), logger)

	// Handlers
	unitHandler := handlers.NewUnitHandler(ingestSvc, validationSvc, unitStore, comparisonStore)
	validationHandler := handlers.NewValidationHandler(validationSvc, consistencySvc)
	refClassHandler := handlers.NewReferenceClassHandler(refClassSvc)
	feedbackHandler := handlers.NewFeedbackHandler(processorSvc, feedbackStore)
	adjustmentHandler := handlers.NewAdjustmentHandler(adjustmentStore, learningStore)
	evaluationHandler := handlers.NewEvaluationHandler(evaluationSvc, evaluationStore)
	entityHandler := handlers.NewEntityHandler(patternStore, sourceStore)

	r := chi.NewRouter()

	app := &App{
		Router:     r,
		Evaluation: evaluationSvc,
		startTime:  time.Now(),
	}

	// Metrics collector for middleware
	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	r.Get("/health", healthHandler(db))
	r.Get("/metrics", app.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		// Information units
		r.Route("/units", func(r chi.Router) {
			r.Post("/ingest", unitHandler.Ingest)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", unitHandler.GetByID)
				r.Get("/comparable", unitHandler.FindComparable)
				r.Get("/comparisons", unitHandler.GetComparisons)
			})
		})

		// Per-issue cross-validation and consistency
		r.Route("/issues/{id}", func(r chi.Router) {
			r.Post("/validate", validationHandler.ValidateIssue)
			r.Post("/consistency", validationHandler.RecomputeConsistency)
			r.Get("/consistency", validationHandler.GetConsistency)
		})

		// Reference classes
		r.Route("/reference-classes", func(r chi.Router) {
			r.Get("/", refClassHandler.List)
			r.Get("/base-rate", refClassHandler.BaseRate)
			r.Post("/seed", refClassHandler.Seed)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", refClassHandler.GetByID)
				r.Post("/observe", refClassHandler.Observe)
			})
		})

		// Feedback queue
		r.Route("/feedback", func(r chi.Router) {
			r.Post("/", feedbackHandler.Enqueue)
			r.Post("/process", feedbackHandler.Process)
			r.Get("/{id}", feedbackHandler.GetByID)
		})

		// Adjustment history and learnings
		r.Get("/adjustments", adjustmentHandler.ListByEntity)
		r.Get("/learnings", adjustmentHandler.ListLearnings)

		// Evaluation snapshots
		r.Route("/evaluations", func(r chi.Router) {
			r.Post("/run", evaluationHandler.Run)
			r.Get("/latest", evaluationHandler.Latest)
		})

		// Feedback target entities
		r.Route("/patterns", func(r chi.Router) {
			r.Post("/", entityHandler.CreatePattern)
			r.Get("/{id}", entityHandler.GetPattern)
		})
		r.Route("/sources", func(r chi.Router) {
			r.Post("/", entityHandler.CreateSource)
			r.Get("/{id}", entityHandler.GetSource)
		})
	})

	return app
}

// NewRouter returns just the chi.Mux for callers that do not manage
// background services.
func NewRouter(db *pgxpool.Pool, logger *zap.Logger) *chi.Mux {
	return NewApp(db, logger).Router
}

func healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.UnitStore           = (*store.UnitStore)(nil)
	_ domain.ComparisonStore     = (*store.ComparisonStore)(nil)
	_ domain.ConsistencyStore    = (*store.ConsistencyStore)(nil)
	_ domain.ReferenceClassStore = (*store.ReferenceClassStore)(nil)
	_ domain.FeedbackStore       = (*store.FeedbackStore)(nil)
	_ domain.AdjustmentStore     = (*store.AdjustmentStore)(nil)
	_ domain.LearningStore       = (*store.LearningStore)(nil)
	_ domain.PatternStore        = (*store.PatternStore)(nil)
	_ domain.SourceStore         = (*store.SourceStore)(nil)
	_ domain.EvaluationStore     = (*store.EvaluationStore)(nil)
	_ domain.ClaimAnalyzer       = (*analyzer.OpenAIClient)(nil)
	_ domain.ClaimAnalyzer       = (*analyzer.AnthropicClient)(nil)
	_ domain.ClaimAnalyzer       = (*analyzer.MockClient)(nil)
	_ domain.EmbeddingClient     = (*embedding.OpenAIClient)(nil)
	_ domain.EmbeddingClient     = (*embedding.MockClient)(nil)
)
