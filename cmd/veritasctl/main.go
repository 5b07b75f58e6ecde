package main

import (
	"context"
	"fmt"
	"os"

	"github.com/crosscheckhq/veritas/internal/config"
	"github.com/crosscheckhq/veritas/internal/service"
	"github.com/crosscheckhq/veritas/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// veritasctl is the external driver for batch operations: seeding
// reference classes, draining the feedback queue, and forcing an
// evaluation snapshot.
func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "veritasctl",
		Short:         "Operational tooling for the claim cross-validation service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(seedCmd(), processFeedbackCmd(), evaluateCmd())
	return root
}

// withPool loads config, opens the database pool, and hands both to fn.
func withPool(fn func(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error) error {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	if err := config.Load(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dbURL := config.DatabaseURL()
	if dbURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return fn(ctx, pool, logger)
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed the initial reference class buckets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
				svc := service.NewReferenceClassService(store.NewReferenceClassStore(pool), logger)
				seeded, err := svc.Seed(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("seeded %d reference classes\n", seeded)
				return nil
			})
		},
	}
}

func processFeedbackCmd() *cobra.Command {
	var maxEvents int
	cmd := &cobra.Command{
		Use:   "process-feedback",
		Short: "Drain pending feedback events and apply adjustments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
				processor := service.NewFeedbackProcessor(store.NewFeedbackStore(pool), config.FeedbackBatchSize(), logger)
				result, err := processor.ProcessPending(ctx, maxEvents)
				if err != nil {
					return err
				}
				fmt.Printf("processed=%d adjusted=%d failed=%d skipped=%d\n",
					result.Processed, result.Adjusted, result.Failed, result.Skipped)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&maxEvents, "max", 0, "maximum events to drain (0 uses the configured batch size)")
	return cmd
}

func evaluateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate",
		Short: "Run one evaluation snapshot and print its alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
				svc := service.NewEvaluationService(
					store.NewPatternStore(pool),
					store.NewSourceStore(pool),
					store.NewLearningStore(pool),
					store.NewFeedbackStore(pool),
					store.NewEvaluationStore(pool),
					config.EvaluationInterval(),
					logger,
				)
				run, err := svc.RunOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("patterns=%d avg_confidence=%.2f backlog=%d alerts=%d\n",
					run.PatternCount, run.PatternAvgConfidence, run.FeedbackBacklog, len(run.Alerts))
				for _, a := range run.Alerts {
					fmt.Printf("  [%s] %s: %s\n", a.Severity, a.Subsystem, a.Message)
				}
				return nil
			})
		},
	}
}
