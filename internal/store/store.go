package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eugenetaranov/router-reset-dns/api/schemas"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

const createTableSQL = `
        CREATE TABLE IF NOT EXISTS device_outcomes (
            run_id      TEXT        NOT NULL,
            row_index   INTEGER     NOT NULL,
            address     TEXT        NOT NULL,
            model       TEXT        NOT NULL,
            group_name  TEXT        NOT NULL,
            operation   TEXT        NOT NULL,
            status      TEXT        NOT NULL,
            kind        TEXT        NOT NULL,
            reason      TEXT        NOT NULL,
            started_at  TIMESTAMPTZ NOT NULL,
            duration_ms BIGINT      NOT NULL,
            PRIMARY KEY (run_id, row_index, operation)
        );
    `

const selectRunSQL = `
        SELECT row_index, address, model, group_name, operation, status, kind, reason, started_at, duration_ms
        FROM device_outcomes
        WHERE run_id = $1
        ORDER BY row_index ASC, started_at ASC;
    `

var outcomeColumns = []string{
	"run_id", "row_index", "address", "model", "group_name",
	"operation", "status", "kind", "reason", "started_at", "duration_ms",
}

// Store persists device outcomes to PostgreSQL. It implements schemas.ResultSink.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.ResultSink = (*Store)(nil)

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the outcome table if it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create device_outcomes table: %w", err)
	}
	return nil
}

// Record writes every operation of res in one transaction.
func (s *Store) Record(ctx context.Context, runID string, res schemas.DeviceResult) error {
	if len(res.Operations) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	rows := make([][]interface{}, len(res.Operations))
	for i, op := range res.Operations {
		rows[i] = []interface{}{
			runID, res.Row, res.Address, res.Model, res.Group,
			string(op.Operation), string(op.Outcome.Status), string(op.Outcome.Kind), op.Outcome.Reason,
			op.StartedAt.UTC(), op.Duration.Milliseconds(),
		}
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"device_outcomes"}, outcomeColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy outcomes: %w", err)
	}
	if int(copyCount) != len(rows) {
		return fmt.Errorf("mismatch in copied outcomes count: expected %d, got %d", len(rows), copyCount)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Recorded device outcomes.", zap.String("run_id", runID), zap.Int("row", res.Row), zap.Int("operations", len(rows)))
	return nil
}

// LoadRun rebuilds the summary of a past run from its stored outcomes.
func (s *Store) LoadRun(ctx context.Context, runID string) (*schemas.RunSummary, error) {
	rows, err := s.pool.Query(ctx, selectRunSQL, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var (
		devices []schemas.DeviceResult
		first   time.Time
		last    time.Time
	)
	for rows.Next() {
		var (
			dev                      schemas.DeviceResult
			op, status, kind, reason string
			startedAt                time.Time
			durationMS               int64
		)
		if err := rows.Scan(&dev.Row, &dev.Address, &dev.Model, &dev.Group, &op, &status, &kind, &reason, &startedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("failed to scan outcome row: %w", err)
		}

		res := schemas.OperationResult{
			Operation: schemas.Operation(op),
			Outcome: schemas.Outcome{
				Status: schemas.OutcomeStatus(status),
				Kind:   schemas.ErrorKind(kind),
				Reason: reason,
			},
			StartedAt: startedAt,
			Duration:  time.Duration(durationMS) * time.Millisecond,
		}
		if first.IsZero() || startedAt.Before(first) {
			first = startedAt
		}
		if end := startedAt.Add(res.Duration); end.After(last) {
			last = end
		}

		if n := len(devices); n > 0 && devices[n-1].Row == dev.Row {
			devices[n-1].Operations = append(devices[n-1].Operations, res)
			continue
		}
		dev.Operations = []schemas.OperationResult{res}
		devices = append(devices, dev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("no outcomes stored for run %s", runID)
	}

	summary := schemas.NewRunSummary(runID, first)
	summary.FinishedAt = last
	for _, dev := range devices {
		summary.Record(dev)
	}
	return summary, nil
}
