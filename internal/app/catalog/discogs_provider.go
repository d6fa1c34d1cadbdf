package catalog

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/crate/internal/infra/discogs"
)

// DiscogsProviderConfig holds the settings of a discogs provider.
type DiscogsProviderConfig struct {
	Token             string `yaml:"token" mapstructure:"token" validate:"required"`
	UserAgent         string `yaml:"user_agent" mapstructure:"user_agent" default:"crate/1.0"`
	RequestsPerMinute int    `yaml:"requests_per_minute" mapstructure:"requests_per_minute" default:"60" validate:"gte=1,lte=240"`
	TimeoutMs         int    `yaml:"timeout_ms" mapstructure:"timeout_ms" default:"10000" validate:"gte=100"`
}

// DiscogsProvider looks releases up by their Discogs release ID.
type DiscogsProvider struct {
	client DiscogsClient
}

// NewDiscogsProvider creates a provider from raw settings.
func NewDiscogsProvider(settings map[string]any) (*DiscogsProvider, error) {
	if len(settings) == 0 {
		return nil, errors.New("settings are required")
	}

	var config DiscogsProviderConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}

	client, err := discogs.New(discogs.Config{
		Token:             config.Token,
		UserAgent:         config.UserAgent,
		RequestsPerMinute: config.RequestsPerMinute,
		Timeout:           time.Duration(config.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create discogs client")
	}
	return NewDiscogsProviderWithClient(client), nil
}

// NewDiscogsProviderWithClient creates a provider around an existing client.
func NewDiscogsProviderWithClient(client DiscogsClient) *DiscogsProvider {
	return &DiscogsProvider{client: client}
}

// Name returns the provider name.
func (p *DiscogsProvider) Name() string {
	return "discogs"
}

// FetchRelease fetches the release identified by q.CatalogID.
// A query without a catalog ID yields an empty release.
func (p *DiscogsProvider) FetchRelease(ctx context.Context, q Query) (*Release, error) {
	if q.CatalogID == "" {
		return &Release{Source: p.Name()}, nil
	}

	r, err := p.client.GetRelease(ctx, q.CatalogID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get discogs release %s", q.CatalogID)
	}

	release := &Release{
		Source: p.Name(),
		Tracks: make([]ReleaseTrack, 0, len(r.Tracklist)),
	}
	for _, t := range r.Tracklist {
		release.Tracks = append(release.Tracks, ReleaseTrack{
			Title:        t.Title,
			Duration:     t.Duration,
			Artists:      t.Artists,
			ExtraArtists: t.ExtraArtists,
		})
	}
	return release, nil
}
