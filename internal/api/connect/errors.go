package connect

import (
	"context"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"

	"github.com/osa030/crate/internal/app/playback"
	"github.com/osa030/crate/internal/app/preview"
	"github.com/osa030/crate/internal/infra/content"
	"github.com/osa030/crate/internal/infra/store"
)

// toConnectError maps application errors to Connect codes.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}
	var ce *connect.Error
	if errors.As(err, &ce) {
		return ce
	}

	code := connect.CodeInternal
	switch {
	case errors.IsAny(err, playback.ErrNoAudio, playback.ErrEmptyTracklist, playback.ErrInvalidIndex):
		code = connect.CodeInvalidArgument
	case errors.IsAny(err, content.ErrNotFound, store.ErrNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, preview.ErrNoPlayable):
		code = connect.CodeFailedPrecondition
	case errors.IsAny(err, playback.ErrClosed, preview.ErrServiceClosed):
		code = connect.CodeUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	}
	return connect.NewError(code, err)
}

func invalidArgument(msg string) error {
	return connect.NewError(connect.CodeInvalidArgument, errors.New(msg))
}
