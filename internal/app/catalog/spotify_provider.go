package catalog

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// SpotifyProviderConfig holds the settings of a spotify provider.
type SpotifyProviderConfig struct {
	SearchLimit int `yaml:"search_limit" mapstructure:"search_limit" default:"5" validate:"gte=1,lte=50"`
}

// SpotifyProvider finds releases by album title and artist search.
type SpotifyProvider struct {
	spotify SpotifyClient
	config  *SpotifyProviderConfig
}

// NewSpotifyProvider creates a provider from raw settings.
func NewSpotifyProvider(spotify SpotifyClient, settings map[string]any) (*SpotifyProvider, error) {
	if spotify == nil {
		return nil, errors.New("spotify client is required")
	}

	var config SpotifyProviderConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}

	return &SpotifyProvider{
		spotify: spotify,
		config:  &config,
	}, nil
}

// Name returns the provider name.
func (p *SpotifyProvider) Name() string {
	return "spotify"
}

// FetchRelease searches for the album named in q.
// A query without an album title yields an empty release.
func (p *SpotifyProvider) FetchRelease(ctx context.Context, q Query) (*Release, error) {
	if q.Album == "" {
		return &Release{Source: p.Name()}, nil
	}

	album, err := p.spotify.FindAlbum(ctx, q.Album, q.Artist, p.config.SearchLimit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to find spotify album %q", q.Album)
	}

	release := &Release{Source: p.Name()}
	if album == nil {
		return release, nil
	}
	for _, t := range album.Tracks {
		release.Tracks = append(release.Tracks, ReleaseTrack{
			Title:    t.Name,
			Duration: t.Duration,
			Artists:  t.Artists,
		})
	}
	return release, nil
}
