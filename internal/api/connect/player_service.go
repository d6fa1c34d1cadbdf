package connect

import (
	"context"

	"connectrpc.com/connect"

	"github.com/osa030/crate/internal/app/bus"
	"github.com/osa030/crate/internal/app/playback"
	"github.com/osa030/crate/internal/app/preview"
	"github.com/osa030/crate/internal/domain/track"
)

// PlayerService implements the PlayerService RPC.
type PlayerService struct {
	player  *playback.Controller
	preview *preview.Service
}

// NewPlayerService creates a new PlayerService.
func NewPlayerService(player *playback.Controller, previews *preview.Service) *PlayerService {
	return &PlayerService{
		player:  player,
		preview: previews,
	}
}

// GetState returns the current playback state.
func (s *PlayerService) GetState(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[PlayerState], error) {
	state := toPlayerState(s.player.Snapshot())
	return connect.NewResponse(&state), nil
}

// PlayProduct plays a product's tracklist and enriches it in the background.
func (s *PlayerService) PlayProduct(
	ctx context.Context,
	req *connect.Request[PlayProductRequest],
) (*connect.Response[PlayProductResponse], error) {
	if req.Msg.DocumentID == "" && req.Msg.CommerceID == "" {
		return nil, invalidArgument("documentId or commerceId is required")
	}

	key := (&ProductRequest{DocumentID: req.Msg.DocumentID, CommerceID: req.Msg.CommerceID}).Key()
	p, err := s.preview.PlayProduct(ctx, key, req.Msg.StartIndex)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&PlayProductResponse{
		Title:  p.Title,
		Artist: p.Artist,
		State:  toPlayerState(s.player.Snapshot()),
	}), nil
}

// PlayTracklist plays an explicit tracklist.
func (s *PlayerService) PlayTracklist(
	ctx context.Context,
	req *connect.Request[PlayTracklistRequest],
) (*connect.Response[TransportResponse], error) {
	tracks := make([]track.Track, len(req.Msg.Tracks))
	for i, t := range req.Msg.Tracks {
		tracks[i] = fromTrack(t)
	}
	if err := s.player.PlayTracklist(tracks, req.Msg.StartIndex); err != nil {
		return nil, toConnectError(err)
	}
	return s.transport(true), nil
}

// Next advances to the next track in the play history.
func (s *PlayerService) Next(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[TransportResponse], error) {
	return s.transport(s.player.Next()), nil
}

// Previous returns to the previous track in the play history.
func (s *PlayerService) Previous(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[TransportResponse], error) {
	return s.transport(s.player.Previous()), nil
}

// Pause pauses playback.
func (s *PlayerService) Pause(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[TransportResponse], error) {
	return s.transport(s.player.Pause()), nil
}

// Resume resumes paused playback.
func (s *PlayerService) Resume(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[TransportResponse], error) {
	return s.transport(s.player.Resume()), nil
}

// Stop stops playback.
func (s *PlayerService) Stop(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[TransportResponse], error) {
	s.player.Stop()
	return s.transport(true), nil
}

// ClearHistory forgets the play history and album context. The current track
// keeps playing.
func (s *PlayerService) ClearHistory(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[TransportResponse], error) {
	s.player.ClearPlayHistory()
	return s.transport(true), nil
}

// EnrichProduct runs the enrichment pipeline for a product and waits for the outcome.
func (s *PlayerService) EnrichProduct(
	ctx context.Context,
	req *connect.Request[ProductRequest],
) (*connect.Response[EnrichmentResponse], error) {
	key := req.Msg.Key()
	if key.IsZero() {
		return nil, invalidArgument("documentId or commerceId is required")
	}

	res, err := s.preview.Enrich(ctx, key)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(toEnrichmentResponse(res)), nil
}

// WatchState streams the playback state: once on subscribe, on every state
// change, and on every poll tick while a track is playing.
func (s *PlayerService) WatchState(
	ctx context.Context,
	req *connect.Request[Empty],
	stream *connect.ServerStream[PlayerState],
) error {
	changed := make(chan struct{}, 1)
	listener := bus.NewListenerFunc(func() { signal(changed) })
	s.player.Subscribe(listener)
	defer s.player.Unsubscribe(listener)

	initial := toPlayerState(s.player.Snapshot())
	if err := stream.Send(&initial); err != nil {
		return err
	}

	ticks := make(chan struct{}, 1)
	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go bus.Poll(pollCtx, s.player.PollInterval(), func() { signal(ticks) })

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
		case <-ticks:
			if !s.player.Snapshot().IsPlaying {
				continue
			}
		}
		state := toPlayerState(s.player.Snapshot())
		if err := stream.Send(&state); err != nil {
			return err
		}
	}
}

func (s *PlayerService) transport(changed bool) *connect.Response[TransportResponse] {
	return connect.NewResponse(&TransportResponse{
		Changed: changed,
		State:   toPlayerState(s.player.Snapshot()),
	})
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
