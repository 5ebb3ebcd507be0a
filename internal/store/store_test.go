package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/scalewob/api/schemas"
)

// flexibleSQLMatcher builds a whitespace-insensitive regex for a statement.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func newMockStore(t *testing.T, logger *zap.Logger) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	s, err := New(context.Background(), mockPool, logger)
	require.NoError(t, err)
	return s, mockPool
}

func sampleRecord() *schemas.EvaluationRecord {
	score := 0.75
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.FixedZone("CET", 3600))
	return &schemas.EvaluationRecord{
		RunID:     uuid.NewString(),
		SessionID: uuid.NewString(),
		EnvID:     "shop-1",
		TaskID:    "shop-1",
		Platform:  schemas.PlatformMobile,
		Result: schemas.EvaluationResult{
			Success: true,
			Score:   &score,
			Message: "order placed",
			Params:  map[string]interface{}{"item": "lamp"},
		},
		Trajectory: []schemas.TrajectoryEntry{
			{Timestamp: started.Add(time.Second), Kind: schemas.TrajectoryClick, Action: schemas.GestureTap,
				Outcome: schemas.OutcomeOK, Data: map[string]interface{}{"x": 10.0, "y": 20.0}},
			{Timestamp: started.Add(2 * time.Second), Kind: schemas.TrajectoryKeypress, Action: schemas.GestureType,
				Outcome: schemas.OutcomeOK, Data: map[string]interface{}{"text": "lamp"}},
		},
		StartedAt:  started,
		FinishedAt: started.Add(5 * time.Second),
	}
}

func TestNewStore(t *testing.T) {
	mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mockPool.Close()

	pingErr := errors.New("database unavailable")
	mockPool.ExpectPing().WillReturnError(pingErr)

	_, err = New(context.Background(), mockPool, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, pingErr)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	mockPool.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS evaluation_runs")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPersistEvaluation(t *testing.T) {
	ctx := context.Background()

	t.Run("commits without logging the closed rollback", func(t *testing.T) {
		core, logs := observer.New(zapcore.ErrorLevel)
		s, mockPool := newMockStore(t, zap.New(core))
		rec := sampleRecord()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).
			WithArgs(
				rec.RunID, rec.SessionID, "shop-1", "shop-1", "mobile",
				true, rec.Result.Score, "order placed",
				[]byte("{}"), pgxmock.AnyArg(),
				rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCopyFrom(pgx.Identifier{"trajectory_entries"}, trajectoryColumns).
			WillReturnResult(2)
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.PersistEvaluation(ctx, rec))
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Empty(t, logs.All(), "rollback after commit is not an error")
	})

	t.Run("skips the copy for an empty trajectory", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		rec := sampleRecord()
		rec.Trajectory = nil

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.PersistEvaluation(ctx, rec))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("rolls back when the copy count is short", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		rec := sampleRecord()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCopyFrom(pgx.Identifier{"trajectory_entries"}, trajectoryColumns).
			WillReturnResult(1)
		mockPool.ExpectRollback()

		err := s.PersistEvaluation(ctx, rec)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expected 2, got 1")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("insert failure", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		dup := errors.New("duplicate key value violates unique constraint")

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).WillReturnError(dup)
		mockPool.ExpectRollback()

		err := s.PersistEvaluation(ctx, sampleRecord())
		assert.ErrorIs(t, err, dup)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestGetEvaluation(t *testing.T) {
	ctx := context.Background()

	t.Run("reads run and trajectory", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		rec := sampleRecord()

		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectRun)).
			WithArgs(rec.RunID).
			WillReturnRows(pgxmock.NewRows([]string{
				"session_id", "env_id", "task_id", "platform", "success", "score", "message", "details", "params", "started_at", "finished_at",
			}).AddRow(
				rec.SessionID, "shop-1", "shop-1", "mobile", true, rec.Result.Score, "order placed",
				[]byte("{}"), []byte(`{"item":"lamp"}`), rec.StartedAt, rec.FinishedAt,
			))
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectEntries)).
			WithArgs(rec.RunID).
			WillReturnRows(pgxmock.NewRows([]string{"kind", "action", "outcome", "data", "recorded_at"}).
				AddRow("click", "tap", "ok", []byte(`{"x":10,"y":20}`), rec.Trajectory[0].Timestamp).
				AddRow("keypress", "type", "ok", []byte(`{"text":"lamp"}`), rec.Trajectory[1].Timestamp))

		got, err := s.GetEvaluation(ctx, rec.RunID)
		require.NoError(t, err)
		assert.Equal(t, schemas.PlatformMobile, got.Platform)
		assert.Equal(t, 0.75, *got.Result.Score)
		assert.Nil(t, got.Result.Details)
		assert.Equal(t, map[string]interface{}{"item": "lamp"}, got.Result.Params)
		require.Len(t, got.Trajectory, 2)
		assert.Equal(t, schemas.GestureType, got.Trajectory[1].Action)
		assert.Equal(t, 10.0, got.Trajectory[0].Data["x"])
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("unknown run", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectRun)).
			WithArgs("missing").
			WillReturnRows(pgxmock.NewRows([]string{"session_id"}))

		_, err := s.GetEvaluation(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
