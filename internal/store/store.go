package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalewob/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

//go:embed schema.sql
var schemaSQL string

// DBPool abstracts pgxpool.Pool so tests can run against pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ErrNotFound is returned by GetEvaluation for an unknown run.
var ErrNotFound = errors.New("evaluation run not found")

var trajectoryColumns = []string{"run_id", "seq", "kind", "action", "outcome", "data", "recorded_at"}

const (
	sqlInsertRun = `
        INSERT INTO evaluation_runs (run_id, session_id, env_id, task_id, platform, success, score, message, details, params, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
    `
	sqlSelectRun = `
        SELECT session_id, env_id, task_id, platform, success, score, message, details, params, started_at, finished_at
        FROM evaluation_runs
        WHERE run_id = $1;
    `
	sqlSelectEntries = `
        SELECT kind, action, outcome, data, recorded_at
        FROM trajectory_entries
        WHERE run_id = $1
        ORDER BY seq ASC;
    `
)

// Store persists finished evaluation rounds in PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// PersistEvaluation writes the run and its trajectory in one transaction.
func (s *Store) PersistEvaluation(ctx context.Context, rec *schemas.EvaluationRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback after a successful Commit reports ErrTxClosed, which is expected.
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	details, err := encodeJSON(rec.Result.Details)
	if err != nil {
		return fmt.Errorf("failed to encode details: %w", err)
	}
	params, err := encodeJSON(rec.Result.Params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}

	if _, err := tx.Exec(ctx, sqlInsertRun,
		rec.RunID, rec.SessionID, rec.EnvID, rec.TaskID, string(rec.Platform),
		rec.Result.Success, rec.Result.Score, rec.Result.Message,
		details, params,
		rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to insert evaluation run: %w", err)
	}

	if len(rec.Trajectory) > 0 {
		if err := s.persistTrajectory(ctx, tx, rec.RunID, rec.Trajectory); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Evaluation persisted.", zap.String("run_id", rec.RunID), zap.Int("entries", len(rec.Trajectory)))
	return nil
}

func (s *Store) persistTrajectory(ctx context.Context, tx pgx.Tx, runID string, entries []schemas.TrajectoryEntry) error {
	rows := make([][]interface{}, len(entries))
	for i, e := range entries {
		data, err := encodeJSON(e.Data)
		if err != nil {
			return fmt.Errorf("failed to encode trajectory entry %d: %w", i, err)
		}
		rows[i] = []interface{}{
			runID, i, string(e.Kind), string(e.Action), string(e.Outcome), data, e.Timestamp.UTC(),
		}
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"trajectory_entries"}, trajectoryColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy trajectory entries: %w", err)
	}
	if int(copyCount) != len(entries) {
		return fmt.Errorf("mismatch in copied trajectory count: expected %d, got %d", len(entries), copyCount)
	}
	return nil
}

// GetEvaluation reads a run and its trajectory back.
func (s *Store) GetEvaluation(ctx context.Context, runID string) (*schemas.EvaluationRecord, error) {
	rows, err := s.pool.Query(ctx, sqlSelectRun, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query evaluation run: %w", err)
	}
	rec := &schemas.EvaluationRecord{RunID: runID}
	found := false
	for rows.Next() {
		var platform string
		var details, params []byte
		if err := rows.Scan(
			&rec.SessionID, &rec.EnvID, &rec.TaskID, &platform,
			&rec.Result.Success, &rec.Result.Score, &rec.Result.Message,
			&details, &params,
			&rec.StartedAt, &rec.FinishedAt,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan evaluation run: %w", err)
		}
		rec.Platform = schemas.Platform(platform)
		rec.Result.TaskID = rec.TaskID
		rec.Result.FinishedAt = rec.FinishedAt
		if rec.Result.Details, err = decodeJSON(details); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to decode details: %w", err)
		}
		if rec.Result.Params, err = decodeJSON(params); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to decode params: %w", err)
		}
		found = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}

	entries, err := s.pool.Query(ctx, sqlSelectEntries, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trajectory: %w", err)
	}
	defer entries.Close()
	for entries.Next() {
		var e schemas.TrajectoryEntry
		var kind, action, outcome string
		var data []byte
		if err := entries.Scan(&kind, &action, &outcome, &data, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan trajectory entry: %w", err)
		}
		e.Kind = schemas.TrajectoryKind(kind)
		e.Action = schemas.GestureKind(action)
		e.Outcome = schemas.Outcome(outcome)
		if e.Data, err = decodeJSON(data); err != nil {
			return nil, fmt.Errorf("failed to decode trajectory data: %w", err)
		}
		rec.Trajectory = append(rec.Trajectory, e)
	}
	if err := entries.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return rec, nil
}

// encodeJSON never yields null; the columns are NOT NULL objects.
func encodeJSON(m map[string]interface{}) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func decodeJSON(b []byte) (map[string]interface{}, error) {
	if len(b) == 0 || string(b) == "null" || string(b) == "{}" {
		return nil, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
