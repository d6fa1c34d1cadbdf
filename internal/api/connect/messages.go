package connect

import (
	"time"

	"github.com/osa030/crate/internal/app/cache"
	"github.com/osa030/crate/internal/app/enrichment"
	"github.com/osa030/crate/internal/app/notification"
	"github.com/osa030/crate/internal/app/playback"
	"github.com/osa030/crate/internal/domain/product"
	"github.com/osa030/crate/internal/domain/track"
)

// Empty is the message of calls without parameters.
type Empty struct{}

// Track is the wire form of track.Track.
type Track struct {
	Title       string `json:"title"`
	Artist      string `json:"artist,omitempty"`
	Album       string `json:"album,omitempty"`
	AudioURL    string `json:"audioUrl,omitempty"`
	ProductID   string `json:"productId,omitempty"`
	CommerceID  string `json:"commerceId,omitempty"`
	CatalogID   string `json:"catalogId,omitempty"`
	ProductSlug string `json:"slug,omitempty"`
	TrackIndex  int    `json:"trackIndex"`
	DurationMs  int64  `json:"durationMs,omitempty"`
}

// PlayerState is the wire form of playback.Snapshot.
type PlayerState struct {
	State                  string  `json:"state"`
	IsPlaying              bool    `json:"isPlaying"`
	CurrentTrack           *Track  `json:"currentTrack,omitempty"`
	CurrentTimeMs          int64   `json:"currentTimeMs"`
	DurationMs             int64   `json:"durationMs"`
	PlayHistory            []Track `json:"playHistory"`
	CurrentTrackIndex      int     `json:"currentTrackIndex"`
	CurrentAlbumTracks     []Track `json:"currentAlbumTracks"`
	CurrentAlbumStartIndex int     `json:"currentAlbumStartIndex"`
	LastTrack              *Track  `json:"lastTrack,omitempty"`
	StopReason             string  `json:"stopReason,omitempty"`
	LastError              string  `json:"lastError,omitempty"`
}

// ProductRequest identifies a product.
type ProductRequest struct {
	DocumentID string `json:"documentId"`
	CommerceID string `json:"commerceId,omitempty"`
}

// Key returns the product key of the request.
func (r *ProductRequest) Key() product.Key {
	return product.Key{DocumentID: r.DocumentID, CommerceID: r.CommerceID}
}

// PlayProductRequest asks to play a product's tracklist.
type PlayProductRequest struct {
	DocumentID string `json:"documentId"`
	CommerceID string `json:"commerceId,omitempty"`
	StartIndex int    `json:"startIndex"`
}

// PlayProductResponse describes the product now playing.
type PlayProductResponse struct {
	Title  string      `json:"title"`
	Artist string      `json:"artist"`
	State  PlayerState `json:"state"`
}

// PlayTracklistRequest asks to play an explicit tracklist.
type PlayTracklistRequest struct {
	Tracks     []Track `json:"tracks"`
	StartIndex int     `json:"startIndex"`
}

// TransportResponse is returned by transport commands.
type TransportResponse struct {
	Changed bool        `json:"changed"`
	State   PlayerState `json:"state"`
}

// EnrichmentResponse is the outcome of an enrichment run.
type EnrichmentResponse struct {
	Reason           string                         `json:"reason"`
	Tracklist        []Track                        `json:"tracklist"`
	EnhancementTypes *notification.EnhancementTypes `json:"enhancementTypes,omitempty"`
}

// ClearCacheRequest names the namespace to clear, all when empty.
type ClearCacheRequest struct {
	Namespace string `json:"namespace,omitempty"`
}

// ClearCacheResponse reports the cache state after clearing.
type ClearCacheResponse struct {
	Stats cache.Stats `json:"stats"`
}

// StoredTracklistResponse returns a tracklist from the local store.
type StoredTracklistResponse struct {
	Tracklist []Track `json:"tracklist"`
}

func toTrack(t track.Track) Track {
	return Track{
		Title:       t.Title,
		Artist:      t.Artist,
		Album:       t.Album,
		AudioURL:    t.AudioURL,
		ProductID:   t.ProductID,
		CommerceID:  t.CommerceID,
		CatalogID:   t.CatalogID,
		ProductSlug: t.ProductSlug,
		TrackIndex:  t.TrackIndex,
		DurationMs:  t.Duration.Milliseconds(),
	}
}

func fromTrack(t Track) track.Track {
	return track.Track{
		Title:       t.Title,
		Artist:      t.Artist,
		Album:       t.Album,
		AudioURL:    t.AudioURL,
		ProductID:   t.ProductID,
		CommerceID:  t.CommerceID,
		CatalogID:   t.CatalogID,
		ProductSlug: t.ProductSlug,
		TrackIndex:  t.TrackIndex,
		Duration:    time.Duration(t.DurationMs) * time.Millisecond,
	}
}

func toTracks(tracks []track.Track) []Track {
	out := make([]Track, len(tracks))
	for i, t := range tracks {
		out[i] = toTrack(t)
	}
	return out
}

func toTrackPtr(t *track.Track) *Track {
	if t == nil {
		return nil
	}
	w := toTrack(*t)
	return &w
}

func toPlayerState(s playback.Snapshot) PlayerState {
	return PlayerState{
		State:                  s.State.String(),
		IsPlaying:              s.IsPlaying,
		CurrentTrack:           toTrackPtr(s.CurrentTrack),
		CurrentTimeMs:          s.CurrentTime.Milliseconds(),
		DurationMs:             s.Duration.Milliseconds(),
		PlayHistory:            toTracks(s.PlayHistory),
		CurrentTrackIndex:      s.CurrentTrackIndex,
		CurrentAlbumTracks:     toTracks(s.CurrentAlbumTracks),
		CurrentAlbumStartIndex: s.CurrentAlbumStartIndex,
		LastTrack:              toTrackPtr(s.LastTrack),
		StopReason:             string(s.StopReason),
		LastError:              s.LastError,
	}
}

func toEnrichmentResponse(r enrichment.Result) *EnrichmentResponse {
	return &EnrichmentResponse{
		Reason:           string(r.Reason),
		Tracklist:        toTracks(r.Tracklist),
		EnhancementTypes: r.EnhancementTypes,
	}
}
