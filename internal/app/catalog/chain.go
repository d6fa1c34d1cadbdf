package catalog

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// ErrNoRelease marks the error returned when every provider failed.
var ErrNoRelease = errors.New("no provider returned release data")

// ProviderWithMetadata wraps a provider with its metadata.
type ProviderWithMetadata struct {
	Provider    Provider
	DisplayName string
}

// Chain tries multiple providers in order until one returns track data.
type Chain struct {
	providers []ProviderWithMetadata
}

// NewChain creates a new provider chain.
func NewChain(providers []ProviderWithMetadata) *Chain {
	return &Chain{
		providers: providers,
	}
}

// FetchRelease returns the first release with tracks. Provider errors are
// logged and the next provider is tried. If every provider answered without
// error but none had tracks, an empty release is returned. If every provider
// failed, the last error is returned.
func (c *Chain) FetchRelease(ctx context.Context, q Query) (*Release, error) {
	var lastErr error
	answered := false

	for i, pm := range c.providers {
		zlog.Debug().Msgf("trying catalog provider: index=%d total=%d name=%s provider_type=%s",
			i+1, len(c.providers), pm.DisplayName, pm.Provider.Name())

		release, err := pm.Provider.FetchRelease(ctx, q)
		if err != nil {
			zlog.Warn().Msgf("catalog provider failed, trying next: provider=%s error=%v", pm.DisplayName, err)
			lastErr = err
			continue
		}
		answered = true

		if !release.HasTracks() {
			zlog.Debug().Msgf("catalog provider returned no tracks: provider=%s", pm.DisplayName)
			continue
		}

		zlog.Info().Msgf("catalog provider returned release: provider=%s tracks=%d", pm.DisplayName, len(release.Tracks))
		return release, nil
	}

	if answered || len(c.providers) == 0 {
		return &Release{}, nil
	}
	return nil, errors.Mark(errors.Wrap(lastErr, "all catalog providers failed"), ErrNoRelease)
}

// Len returns the number of providers in the chain.
func (c *Chain) Len() int {
	return len(c.providers)
}

// Name returns the chain name.
func (c *Chain) Name() string {
	return "provider_chain"
}
