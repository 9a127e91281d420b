package saga

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestSagaCompensatesInReverse(t *testing.T) {
	var undone []string
	undo := func(name string) func(context.Context) error {
		return func(context.Context) error {
			undone = append(undone, name)
			return nil
		}
	}
	ok := func(context.Context) error { return nil }
	boom := errors.New("boom")

	s := New("link")
	ctx := context.Background()
	require.NoError(t, s.Run(ctx, Step{Name: "a", Do: ok, Compensate: undo("a")}))
	require.NoError(t, s.Run(ctx, Step{Name: "b", Do: ok}))
	require.NoError(t, s.Run(ctx, Step{Name: "c", Do: ok, Compensate: undo("c")}))
	assert.Equal(t, []string{"a", "b", "c"}, s.Committed())

	err := s.Run(ctx, Step{
		Name:       "d",
		Do:         func(context.Context) error { return boom },
		Compensate: undo("d"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"c", "a"}, undone)

	var sagaErr *Error
	require.ErrorAs(t, err, &sagaErr)
	assert.Equal(t, "d", sagaErr.Step)
	assert.NoError(t, sagaErr.Compensation)
	assert.Empty(t, s.Committed())
}

func TestSagaCollectsCompensationErrors(t *testing.T) {
	first := errors.New("first undo")
	second := errors.New("second undo")
	cause := errors.New("no funding source")

	s := New("link")
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Run(ctx, Step{
		Name:       "a",
		Do:         func(context.Context) error { return nil },
		Compensate: func(context.Context) error { return first },
	}))
	require.NoError(t, s.Run(ctx, Step{
		Name: "b",
		Do:   func(context.Context) error { return nil },
		Compensate: func(ctx context.Context) error {
			// undo runs even when the caller's context is gone
			assert.NoError(t, ctx.Err())
			return second
		},
	}))
	cancel()

	err := s.Fail(ctx, "check", cause)
	var sagaErr *Error
	require.ErrorAs(t, err, &sagaErr)
	assert.ErrorIs(t, err, cause)
	assert.Len(t, multierr.Errors(sagaErr.Compensation), 2)
	assert.ErrorIs(t, sagaErr.Compensation, first)
	assert.ErrorIs(t, sagaErr.Compensation, second)
	assert.Contains(t, err.Error(), "compensation failed")
}
