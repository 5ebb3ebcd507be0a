// Package results delivers finished evaluation rounds to their consumers:
// the Postgres store, a NATS subject, or several at once.
package results

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/scalewob/api/schemas"
)

// Sink consumes finished evaluation records.
type Sink interface {
	Name() string
	Publish(ctx context.Context, record schemas.EvaluationRecord) error
}

// Fanout publishes to every sink concurrently. One failing sink never keeps
// a record from the others.
type Fanout struct {
	sinks  []Sink
	logger *zap.Logger
}

func NewFanout(logger *zap.Logger, sinks ...Sink) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{sinks: sinks, logger: logger.Named("results")}
}

func (f *Fanout) Name() string { return "fanout" }

func (f *Fanout) Len() int { return len(f.sinks) }

// Publish returns the joined errors of all failing sinks.
func (f *Fanout) Publish(ctx context.Context, record schemas.EvaluationRecord) error {
	errs := make([]error, len(f.sinks))
	var g errgroup.Group
	for i, s := range f.sinks {
		g.Go(func() error {
			if err := s.Publish(ctx, record); err != nil {
				f.logger.Warn("Result sink failed.", zap.String("sink", s.Name()), zap.String("run_id", record.RunID), zap.Error(err))
				errs[i] = fmt.Errorf("sink %s: %w", s.Name(), err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Persister is the part of store.Store a StoreSink needs.
type Persister interface {
	PersistEvaluation(ctx context.Context, rec *schemas.EvaluationRecord) error
}

// StoreSink writes records to Postgres.
type StoreSink struct {
	store Persister
}

func NewStoreSink(store Persister) *StoreSink { return &StoreSink{store: store} }

func (s *StoreSink) Name() string { return "postgres" }

func (s *StoreSink) Publish(ctx context.Context, record schemas.EvaluationRecord) error {
	return s.store.PersistEvaluation(ctx, &record)
}
