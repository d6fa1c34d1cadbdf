// Package catalog provides external-catalog release lookup strategies used to
// enrich placeholder track metadata.
package catalog

import (
	"context"
	"time"

	"github.com/osa030/crate/internal/infra/discogs"
	"github.com/osa030/crate/internal/infra/lastfm"
	"github.com/osa030/crate/internal/infra/spotify"
)

// Query identifies the release to look up.
type Query struct {
	CatalogID string // External release ID (Discogs)
	Album     string // Release title, used by search-based providers
	Artist    string // Release artist, used by search-based providers
}

// Release is an external catalog record reduced to what enrichment needs.
type Release struct {
	Source string
	Tracks []ReleaseTrack
}

// ReleaseTrack is one track of a Release, positionally aligned with the
// storefront tracklist.
type ReleaseTrack struct {
	Title        string
	Duration     time.Duration // 0 if unknown
	Artists      []string
	ExtraArtists []string
}

// HasTracks reports whether the release carries any track data.
func (r *Release) HasTracks() bool {
	return r != nil && len(r.Tracks) > 0
}

// Provider is the interface for external catalog providers.
type Provider interface {
	// FetchRelease retrieves the release matching q.
	// Returns a release without tracks when the provider knows nothing about it.
	FetchRelease(ctx context.Context, q Query) (*Release, error)

	// Name returns the provider name (used in config).
	Name() string
}

// DiscogsClient defines the Discogs operations needed by the Discogs provider.
type DiscogsClient interface {
	GetRelease(ctx context.Context, releaseID string) (*discogs.Release, error)
}

// SpotifyClient defines the Spotify operations needed by the Spotify provider.
type SpotifyClient interface {
	FindAlbum(ctx context.Context, album, artist string, limit int) (*spotify.Album, error)
}

// LastFMClient defines the Last.fm operations needed by the Last.fm provider.
type LastFMClient interface {
	GetAlbumInfo(ctx context.Context, album, artist string) (*lastfm.Album, error)
}
