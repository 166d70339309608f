package connect

import (
	"context"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// PlayerClient is a client for the PlayerService.
type PlayerClient struct {
	getState      *connect.Client[emptypb.Empty, structpb.Struct]
	listEpisodes  *connect.Client[emptypb.Empty, structpb.Struct]
	togglePlay    *connect.Client[emptypb.Empty, structpb.Struct]
	playNext      *connect.Client[emptypb.Empty, structpb.Struct]
	playPrevious  *connect.Client[emptypb.Empty, structpb.Struct]
	toggleLoop    *connect.Client[emptypb.Empty, structpb.Struct]
	toggleShuffle *connect.Client[emptypb.Empty, structpb.Struct]
	clear         *connect.Client[emptypb.Empty, structpb.Struct]
	seek          *connect.Client[wrapperspb.Int64Value, structpb.Struct]
	playEpisode   *connect.Client[wrapperspb.StringValue, structpb.Struct]
	playFrom      *connect.Client[wrapperspb.Int64Value, structpb.Struct]
	subscribe     *connect.Client[emptypb.Empty, structpb.Struct]
}

// NewPlayerClient creates a PlayerService client for the server at baseURL.
func NewPlayerClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *PlayerClient {
	baseURL = strings.TrimRight(baseURL, "/")
	return &PlayerClient{
		getState:      connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+GetStateProcedure, opts...),
		listEpisodes:  connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+ListEpisodesProcedure, opts...),
		togglePlay:    connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+TogglePlayProcedure, opts...),
		playNext:      connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+PlayNextProcedure, opts...),
		playPrevious:  connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+PlayPreviousProcedure, opts...),
		toggleLoop:    connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+ToggleLoopProcedure, opts...),
		toggleShuffle: connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+ToggleShuffleProcedure, opts...),
		clear:         connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+ClearProcedure, opts...),
		seek:          connect.NewClient[wrapperspb.Int64Value, structpb.Struct](httpClient, baseURL+SeekProcedure, opts...),
		playEpisode:   connect.NewClient[wrapperspb.StringValue, structpb.Struct](httpClient, baseURL+PlayEpisodeProcedure, opts...),
		playFrom:      connect.NewClient[wrapperspb.Int64Value, structpb.Struct](httpClient, baseURL+PlayFromProcedure, opts...),
		subscribe:     connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+SubscribeNotificationsProcedure, opts...),
	}
}

// GetState returns the current player state.
func (c *PlayerClient) GetState(ctx context.Context) (*structpb.Struct, error) {
	return unary(ctx, c.getState, &emptypb.Empty{})
}

// ListEpisodes returns the episode catalog.
func (c *PlayerClient) ListEpisodes(ctx context.Context) (*structpb.Struct, error) {
	return unary(ctx, c.listEpisodes, &emptypb.Empty{})
}

// TogglePlay flips play/pause.
func (c *PlayerClient) TogglePlay(ctx context.Context) (*structpb.Struct, error) {
	return unary(ctx, c.togglePlay, &emptypb.Empty{})
}

// PlayNext moves to the next episode.
func (c *PlayerClient) PlayNext(ctx context.Context) (*structpb.Struct, error) {
	return unary(ctx, c.playNext, &emptypb.Empty{})
}

// PlayPrevious moves to the previous episode.
func (c *PlayerClient) PlayPrevious(ctx context.Context) (*structpb.Struct, error) {
	return unary(ctx, c.playPrevious, &emptypb.Empty{})
}

// ToggleLoop flips the loop mode.
func (c *PlayerClient) ToggleLoop(ctx context.Context) (*structpb.Struct, error) {
	return unary(ctx, c.toggleLoop, &emptypb.Empty{})
}

// ToggleShuffle flips the shuffle mode.
func (c *PlayerClient) ToggleShuffle(ctx context.Context) (*structpb.Struct, error) {
	return unary(ctx, c.toggleShuffle, &emptypb.Empty{})
}

// Clear empties the player.
func (c *PlayerClient) Clear(ctx context.Context) (*structpb.Struct, error) {
	return unary(ctx, c.clear, &emptypb.Empty{})
}

// Seek moves playback to seconds.
func (c *PlayerClient) Seek(ctx context.Context, seconds int64) (*structpb.Struct, error) {
	return unary(ctx, c.seek, wrapperspb.Int64(seconds))
}

// PlayEpisode plays a single episode by ID.
func (c *PlayerClient) PlayEpisode(ctx context.Context, id string) (*structpb.Struct, error) {
	return unary(ctx, c.playEpisode, wrapperspb.String(id))
}

// PlayFrom plays the catalog starting at index.
func (c *PlayerClient) PlayFrom(ctx context.Context, index int64) (*structpb.Struct, error) {
	return unary(ctx, c.playFrom, wrapperspb.Int64(index))
}

// SubscribeNotifications opens the notification stream.
func (c *PlayerClient) SubscribeNotifications(ctx context.Context) (*connect.ServerStreamForClient[structpb.Struct], error) {
	return c.subscribe.CallServerStream(ctx, connect.NewRequest(&emptypb.Empty{}))
}

func unary[Req any](ctx context.Context, client *connect.Client[Req, structpb.Struct], msg *Req) (*structpb.Struct, error) {
	res, err := client.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}
