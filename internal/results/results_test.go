package results

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/scalewob/api/schemas"
	"github.com/xkilldash9x/scalewob/internal/mocks"
)

func record() schemas.EvaluationRecord {
	return schemas.EvaluationRecord{
		RunID:    "run-1",
		EnvID:    "shop-1",
		Platform: schemas.PlatformDesktop,
		Result:   schemas.EvaluationResult{Success: true, Message: "done"},
		Trajectory: []schemas.TrajectoryEntry{{
			Timestamp: time.UnixMilli(1700000000123),
			Kind:      schemas.TrajectoryClick,
			Action:    schemas.GestureTap,
			Outcome:   schemas.OutcomeOK,
			Data:      map[string]interface{}{"x": 1.0},
		}},
	}
}

func TestFanout_PublishesToAll(t *testing.T) {
	boom := errors.New("disk full")
	ok := &mocks.MockSink{}
	ok.On("Name").Return("ok").Maybe()
	ok.On("Publish", mock.Anything, mock.MatchedBy(func(r schemas.EvaluationRecord) bool { return r.RunID == "run-1" })).Return(nil).Once()

	bad := &mocks.MockSink{}
	bad.On("Name").Return("bad")
	bad.On("Publish", mock.Anything, mock.Anything).Return(boom).Once()

	f := NewFanout(zaptest.NewLogger(t), ok, bad)
	assert.Equal(t, 2, f.Len())

	err := f.Publish(context.Background(), record())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "sink bad")
	ok.AssertExpectations(t)
	bad.AssertExpectations(t)
}

func TestFanout_Empty(t *testing.T) {
	assert.NoError(t, NewFanout(nil).Publish(context.Background(), record()))
}

type fakePersister struct {
	got *schemas.EvaluationRecord
	err error
}

func (p *fakePersister) PersistEvaluation(ctx context.Context, rec *schemas.EvaluationRecord) error {
	p.got = rec
	return p.err
}

func TestStoreSink(t *testing.T) {
	p := &fakePersister{}
	s := NewStoreSink(p)
	assert.Equal(t, "postgres", s.Name())
	require.NoError(t, s.Publish(context.Background(), record()))
	require.NotNil(t, p.got)
	assert.Equal(t, "shop-1", p.got.EnvID)
}

type fakeConn struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	flushErr error
	drained  bool
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

func (c *fakeConn) FlushWithContext(ctx context.Context) error { return c.flushErr }

func (c *fakeConn) Drain() error {
	c.drained = true
	return nil
}

func TestNATSSink_Publish(t *testing.T) {
	conn := &fakeConn{}
	s := newNATSSink(conn, "", zaptest.NewLogger(t))

	require.NoError(t, s.Publish(context.Background(), record()))
	require.Len(t, conn.payloads, 1)
	assert.Equal(t, DefaultSubject, conn.subjects[0])

	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(conn.payloads[0], &wire))
	assert.Equal(t, "run-1", wire["runId"])
	entry := wire["trajectory"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, float64(1700000000123), entry["timestamp"])
	assert.Equal(t, "click", entry["type"])

	require.NoError(t, s.Close())
	assert.True(t, conn.drained)
}

func TestNATSSink_FlushError(t *testing.T) {
	conn := &fakeConn{flushErr: errors.New("nats: connection closed")}
	s := newNATSSink(conn, "custom.subject", zaptest.NewLogger(t))

	err := s.Publish(context.Background(), record())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "custom.subject")
}
