package catalog

import (
	"context"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/crate/internal/infra/lastfm"
)

// compilationArtist is the album artist Last.fm files compilations under.
const compilationArtist = "Various Artists"

// LastFMProviderConfig holds the settings of a lastfm provider.
type LastFMProviderConfig struct {
	APIKey    string `yaml:"api_key" mapstructure:"api_key" validate:"required"`
	TimeoutMs int    `yaml:"timeout_ms" mapstructure:"timeout_ms" default:"10000" validate:"gte=100"`
}

// LastFMProvider looks albums up by title and artist on Last.fm.
type LastFMProvider struct {
	client LastFMClient
}

// NewLastFMProvider creates a provider from raw settings.
func NewLastFMProvider(settings map[string]any) (*LastFMProvider, error) {
	var config LastFMProviderConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}

	client, err := lastfm.New(lastfm.Config{
		APIKey:  config.APIKey,
		Timeout: time.Duration(config.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create last.fm client")
	}
	return NewLastFMProviderWithClient(client), nil
}

// NewLastFMProviderWithClient creates a provider around an existing client.
func NewLastFMProviderWithClient(client LastFMClient) *LastFMProvider {
	return &LastFMProvider{client: client}
}

// Name returns the provider name.
func (p *LastFMProvider) Name() string {
	return "lastfm"
}

// FetchRelease looks up the album named in q. Compilations are searched under
// the "Various Artists" album artist. Unknown albums yield an empty release.
func (p *LastFMProvider) FetchRelease(ctx context.Context, q Query) (*Release, error) {
	release := &Release{Source: p.Name()}
	if q.Album == "" {
		return release, nil
	}
	artist := q.Artist
	if artist == "" {
		artist = compilationArtist
	}

	album, err := p.client.GetAlbumInfo(ctx, q.Album, artist)
	if errors.Is(err, lastfm.ErrNotFound) {
		return release, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get last.fm album %q", q.Album)
	}

	tracks := append([]lastfm.AlbumTrack(nil), album.Tracks...)
	sort.SliceStable(tracks, func(i, j int) bool { return tracks[i].Rank < tracks[j].Rank })
	for _, t := range tracks {
		rt := ReleaseTrack{Title: t.Name, Duration: t.Duration}
		if t.Artist != "" {
			rt.Artists = []string{t.Artist}
		}
		release.Tracks = append(release.Tracks, rt)
	}
	return release, nil
}
