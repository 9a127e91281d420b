// Package saga runs a sequence of external calls where each committed step
// may register an undo action. When a step fails, the undo actions of the
// already committed steps run in reverse order.
package saga

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/jjbank/internal/logger"
)

const defaultCompensationTimeout = 30 * time.Second

// Step is one unit of work. Compensate may be nil.
type Step struct {
	Name       string
	Do         func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Error is returned by Run and Fail. Err is the failure that aborted the
// saga; Compensation holds the combined undo failures, if any.
type Error struct {
	Saga         string
	Step         string
	Err          error
	Compensation error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: step %q failed: %v", e.Saga, e.Step, e.Err)
	if e.Compensation != nil {
		msg += fmt.Sprintf(" (compensation failed: %v)", e.Compensation)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Saga struct {
	name                string
	compensationTimeout time.Duration
	committed           []Step
}

type Option func(*Saga)

// WithCompensationTimeout bounds the whole undo phase.
func WithCompensationTimeout(d time.Duration) Option {
	return func(s *Saga) {
		s.compensationTimeout = d
	}
}

func New(name string, opts ...Option) *Saga {
	s := &Saga{
		name:                name,
		compensationTimeout: defaultCompensationTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Run executes step. On success the step is committed; on failure every
// committed step is compensated and a *Error is returned.
func (s *Saga) Run(ctx context.Context, step Step) error {
	logger.Log.Debugw("saga step", "saga", s.name, "step", step.Name)

	if err := step.Do(ctx); err != nil {
		return s.abort(ctx, step.Name, err)
	}
	s.committed = append(s.committed, step)

	return nil
}

// Fail aborts the saga for a reason found outside of a step, e.g. a
// precondition check on a step result.
func (s *Saga) Fail(ctx context.Context, stepName string, err error) error {
	return s.abort(ctx, stepName, err)
}

// Committed returns the names of the committed steps in order.
func (s *Saga) Committed() []string {
	names := make([]string, 0, len(s.committed))
	for _, step := range s.committed {
		names = append(names, step.Name)
	}
	return names
}

func (s *Saga) abort(ctx context.Context, stepName string, cause error) error {
	logger.Log.Errorw(
		"saga step failed",
		"saga", s.name,
		"step", stepName,
		zap.Error(cause),
	)

	// The request context may already be canceled; undo must still run.
	compCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.compensationTimeout)
	defer cancel()

	var compErr error
	for i := len(s.committed) - 1; i >= 0; i-- {
		step := s.committed[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(compCtx); err != nil {
			logger.Log.Errorw(
				"saga compensation failed",
				"saga", s.name,
				"step", step.Name,
				zap.Error(err),
			)
			compErr = multierr.Append(compErr, fmt.Errorf("undo %q: %w", step.Name, err))
		}
	}
	s.committed = nil

	return &Error{
		Saga:         s.name,
		Step:         stepName,
		Err:          cause,
		Compensation: compErr,
	}
}
