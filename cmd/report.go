package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eugenetaranov/router-reset-dns/api/schemas"
	"github.com/eugenetaranov/router-reset-dns/internal/config"
	"github.com/eugenetaranov/router-reset-dns/internal/observability"
	"github.com/eugenetaranov/router-reset-dns/internal/store"
)

// outcomeStore records device outcomes and reads whole runs back.
type outcomeStore interface {
	schemas.ResultSink
	LoadRun(ctx context.Context, runID string) (*schemas.RunSummary, error)
}

// storeProvider creates the outcome store. Tests inject a fake instead of a
// live database connection.
type storeProvider interface {
	// Create returns the store and a cleanup function releasing its resources.
	Create(ctx context.Context, cfg config.Interface) (outcomeStore, func(), error)
}

type defaultStoreProvider struct{}

// NewStoreProvider returns the PostgreSQL backed provider.
func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

// Create connects to PostgreSQL, makes sure the outcome table exists and
// returns the store with a cleanup closing the pool.
func (p *defaultStoreProvider) Create(ctx context.Context, cfg config.Interface) (outcomeStore, func(), error) {
	logger := observability.GetLogger()
	if cfg.Database().URL == "" {
		return nil, nil, errors.New("database URL is not configured (ROUTER_RESET_DATABASE_URL)")
	}

	pool, err := pgxpool.New(ctx, cfg.Database().URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize store service: %w", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	cleanup := func() {
		pool.Close()
		logger.Debug("Database connection pool closed.")
	}
	return s, cleanup, nil
}

func newReportCmd(provider storeProvider) *cobra.Command {
	var runID, outputPath, format string

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a report for a stored run",
		Long: `Loads the outcomes recorded for a run from the database and renders them
as JSON, JUnit XML or a text table.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runReport(ctx, observability.GetLogger(), cfg, runID, outputPath, format, provider)
		},
	}

	reportCmd.Flags().StringVar(&runID, "run-id", "", "The ID of the run to report on (required)")
	_ = reportCmd.MarkFlagRequired("run-id")
	reportCmd.Flags().StringVarP(&outputPath, "output", "o", "stdout", "Output file path, or \"stdout\"")
	reportCmd.Flags().StringVarP(&format, "format", "f", "text", "Report format: json, junit or text")

	return reportCmd
}

// runReport contains the core, testable logic for generating a report.
func runReport(
	ctx context.Context,
	logger *zap.Logger,
	cfg config.Interface,
	runID, outputPath, format string,
	provider storeProvider,
) error {
	logger.Info("Starting report generation", zap.String("run_id", runID))

	s, cleanup, err := provider.Create(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	summary, err := s.LoadRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	return writeSummary(logger, summary, format, outputPath)
}
