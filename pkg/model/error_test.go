package model

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestMark(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	re.NoError(Mark(nil, ErrStorage))

	cause := errors.Wrap(context.Canceled, "write checkpoint")
	err := Mark(cause, ErrStorage)
	re.ErrorIs(err, ErrStorage)
	re.ErrorIs(err, context.Canceled)
	re.NotErrorIs(err, ErrCorruptState)
	re.Equal("checkpoint storage error: write checkpoint: context canceled", err.Error())

	wrapped := errors.WithMessage(err, "reserve")
	re.ErrorIs(wrapped, ErrStorage)
	re.Equal(context.Canceled, errors.Cause(wrapped))
}
