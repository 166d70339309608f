package connect

import (
	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"

	"github.com/osa030/podcastr/internal/app/playback"
	"github.com/osa030/podcastr/internal/app/player"
	"github.com/osa030/podcastr/internal/app/session"
)

// toConnectError maps domain errors to Connect codes.
func toConnectError(err error) error {
	switch {
	case errors.Is(err, session.ErrEpisodeNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, playback.ErrIndexOutOfRange):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, playback.ErrNoEpisode),
		errors.Is(err, playback.ErrNoNext),
		errors.Is(err, playback.ErrNoPrevious),
		errors.Is(err, playback.ErrEmptyList):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, session.ErrSessionNotRunning),
		errors.Is(err, player.ErrNotStarted),
		errors.Is(err, player.ErrClosed):
		return connect.NewError(connect.CodeUnavailable, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
