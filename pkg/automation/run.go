package automation

import (
	"context"
	"errors"
)

// Run creates a session, hands it to fn and closes it on every exit path,
// panics included. fn is responsible for calling Start.
func Run(ctx context.Context, opts Options, fn func(context.Context, *Session) error, options ...Option) (err error) {
	s, err := New(opts, options...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return fn(ctx, s)
}
