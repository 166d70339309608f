package connect

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/osa030/podcastr/internal/app/notification"
	"github.com/osa030/podcastr/internal/domain/episode"
)

// PlayerServiceName is the fully-qualified name of the PlayerService.
const PlayerServiceName = "podcastr.v1.PlayerService"

// Procedure paths of the PlayerService.
const (
	GetStateProcedure               = "/" + PlayerServiceName + "/GetState"
	ListEpisodesProcedure           = "/" + PlayerServiceName + "/ListEpisodes"
	TogglePlayProcedure             = "/" + PlayerServiceName + "/TogglePlay"
	PlayNextProcedure               = "/" + PlayerServiceName + "/PlayNext"
	PlayPreviousProcedure           = "/" + PlayerServiceName + "/PlayPrevious"
	ToggleLoopProcedure             = "/" + PlayerServiceName + "/ToggleLoop"
	ToggleShuffleProcedure          = "/" + PlayerServiceName + "/ToggleShuffle"
	ClearProcedure                  = "/" + PlayerServiceName + "/Clear"
	SeekProcedure                   = "/" + PlayerServiceName + "/Seek"
	PlayEpisodeProcedure            = "/" + PlayerServiceName + "/PlayEpisode"
	PlayFromProcedure               = "/" + PlayerServiceName + "/PlayFrom"
	SubscribeNotificationsProcedure = "/" + PlayerServiceName + "/SubscribeNotifications"
)

// Session is the part of the session manager the PlayerService drives.
type Session interface {
	Episodes() []episode.Episode
	PlayEpisode(id string) error
	PlayFrom(index int) error
	TogglePlay() error
	ToggleLoop() error
	ToggleShuffle() error
	PlayNext() error
	PlayPrevious() error
	Clear() error
	Seek(seconds int) (int, error)
	StateMessage() (*structpb.Struct, error)
	Notifications() *notification.Manager
	Done() <-chan struct{}
}

// PlayerService implements the PlayerService RPC.
type PlayerService struct {
	session Session
}

// NewPlayerService creates a new PlayerService.
func NewPlayerService(session Session) *PlayerService {
	return &PlayerService{
		session: session,
	}
}

// NewPlayerServiceHandler builds an HTTP handler serving every PlayerService
// procedure. Mutating procedures additionally get controlOpts, which is where
// the control token interceptor goes.
func NewPlayerServiceHandler(svc *PlayerService, controlOpts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()

	mux.Handle(GetStateProcedure, connect.NewUnaryHandler(GetStateProcedure, svc.GetState))
	mux.Handle(ListEpisodesProcedure, connect.NewUnaryHandler(ListEpisodesProcedure, svc.ListEpisodes))
	mux.Handle(SubscribeNotificationsProcedure, connect.NewServerStreamHandler(SubscribeNotificationsProcedure, svc.SubscribeNotifications))

	mux.Handle(TogglePlayProcedure, connect.NewUnaryHandler(TogglePlayProcedure, svc.TogglePlay, controlOpts...))
	mux.Handle(PlayNextProcedure, connect.NewUnaryHandler(PlayNextProcedure, svc.PlayNext, controlOpts...))
	mux.Handle(PlayPreviousProcedure, connect.NewUnaryHandler(PlayPreviousProcedure, svc.PlayPrevious, controlOpts...))
	mux.Handle(ToggleLoopProcedure, connect.NewUnaryHandler(ToggleLoopProcedure, svc.ToggleLoop, controlOpts...))
	mux.Handle(ToggleShuffleProcedure, connect.NewUnaryHandler(ToggleShuffleProcedure, svc.ToggleShuffle, controlOpts...))
	mux.Handle(ClearProcedure, connect.NewUnaryHandler(ClearProcedure, svc.Clear, controlOpts...))
	mux.Handle(SeekProcedure, connect.NewUnaryHandler(SeekProcedure, svc.Seek, controlOpts...))
	mux.Handle(PlayEpisodeProcedure, connect.NewUnaryHandler(PlayEpisodeProcedure, svc.PlayEpisode, controlOpts...))
	mux.Handle(PlayFromProcedure, connect.NewUnaryHandler(PlayFromProcedure, svc.PlayFrom, controlOpts...))

	return "/" + PlayerServiceName + "/", mux
}

// GetState returns the current player state.
func (s *PlayerService) GetState(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.stateResponse()
}

// ListEpisodes returns the episode catalog.
func (s *PlayerService) ListEpisodes(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	msg, err := EpisodesMessage(s.session.Episodes())
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

// TogglePlay handles play/pause requests.
func (s *PlayerService) TogglePlay(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.apply(s.session.TogglePlay())
}

// PlayNext handles next-episode requests.
func (s *PlayerService) PlayNext(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.apply(s.session.PlayNext())
}

// PlayPrevious handles previous-episode requests.
func (s *PlayerService) PlayPrevious(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.apply(s.session.PlayPrevious())
}

// ToggleLoop handles loop mode requests.
func (s *PlayerService) ToggleLoop(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.apply(s.session.ToggleLoop())
}

// ToggleShuffle handles shuffle mode requests.
func (s *PlayerService) ToggleShuffle(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.apply(s.session.ToggleShuffle())
}

// Clear empties the player.
func (s *PlayerService) Clear(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.apply(s.session.Clear())
}

// Seek moves playback to the requested second.
func (s *PlayerService) Seek(
	ctx context.Context,
	req *connect.Request[wrapperspb.Int64Value],
) (*connect.Response[structpb.Struct], error) {
	_, err := s.session.Seek(int(req.Msg.GetValue()))
	return s.apply(err)
}

// PlayEpisode plays a single episode by ID.
func (s *PlayerService) PlayEpisode(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[structpb.Struct], error) {
	if req.Msg.GetValue() == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("episode id is required"))
	}
	return s.apply(s.session.PlayEpisode(req.Msg.GetValue()))
}

// PlayFrom plays the catalog starting at an index.
func (s *PlayerService) PlayFrom(
	ctx context.Context,
	req *connect.Request[wrapperspb.Int64Value],
) (*connect.Response[structpb.Struct], error) {
	return s.apply(s.session.PlayFrom(int(req.Msg.GetValue())))
}

// SubscribeNotifications sends the current state, then every change until
// the client disconnects or the session ends.
func (s *PlayerService) SubscribeNotifications(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
	stream *connect.ServerStream[structpb.Struct],
) error {
	notifManager := s.session.Notifications()

	initial, err := s.session.StateMessage()
	if err != nil {
		return connect.NewError(connect.CodeInternal, err)
	}
	notification.Stamp(initial, notifManager.NextSequenceNo())

	adapter := &notificationStreamAdapter{stream: stream}
	if err := adapter.Send(initial); err != nil {
		return err
	}

	subscriptionID := notifManager.Subscribe(adapter)
	zlog.Debug().Msgf("notification stream opened: subscription=%s", subscriptionID)

	// Wait for context cancellation or session end
	select {
	case <-ctx.Done():
	case <-s.session.Done():
	}

	notifManager.Unsubscribe(subscriptionID)
	zlog.Debug().Msgf("notification stream closed: subscription=%s", subscriptionID)
	return nil
}

// apply turns the outcome of a control call into a state response.
func (s *PlayerService) apply(err error) (*connect.Response[structpb.Struct], error) {
	if err != nil {
		return nil, toConnectError(err)
	}
	return s.stateResponse()
}

func (s *PlayerService) stateResponse() (*connect.Response[structpb.Struct], error) {
	msg, err := s.session.StateMessage()
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

// EpisodesMessage converts an episode list into an {"episodes": [...]} message.
func EpisodesMessage(episodes []episode.Episode) (*structpb.Struct, error) {
	data, err := json.Marshal(map[string]any{"episodes": episodes})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal episodes")
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal episodes")
	}
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build message")
	}
	return msg, nil
}

// notificationStreamAdapter adapts connect.ServerStream to notification.Stream.
// Sends are serialized because a timed-out broadcast may still be writing.
type notificationStreamAdapter struct {
	mu     sync.Mutex
	stream *connect.ServerStream[structpb.Struct]
}

func (a *notificationStreamAdapter) Send(msg *structpb.Struct) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stream.Send(msg)
}
