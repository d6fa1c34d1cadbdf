package connect

import (
	"context"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/crate/internal/app/cache"
	"github.com/osa030/crate/internal/app/preview"
	"github.com/osa030/crate/internal/domain/product"
	"github.com/osa030/crate/internal/domain/track"
)

// TracklistStore reads enriched tracklists from local storage.
type TracklistStore interface {
	Load(ctx context.Context, key product.Key) ([]track.Track, error)
}

// AdminService implements the AdminService RPC.
type AdminService struct {
	cache   *cache.Manager
	preview *preview.Service
	store   TracklistStore
}

// NewAdminService creates a new AdminService. store may be nil.
func NewAdminService(c *cache.Manager, previews *preview.Service, store TracklistStore) *AdminService {
	return &AdminService{
		cache:   c,
		preview: previews,
		store:   store,
	}
}

// CacheStats returns per-namespace cache statistics.
func (s *AdminService) CacheStats(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[cache.Stats], error) {
	stats := s.cache.Stats()
	return connect.NewResponse(&stats), nil
}

// ClearCache clears one namespace, or every namespace when none is named.
func (s *AdminService) ClearCache(
	ctx context.Context,
	req *connect.Request[ClearCacheRequest],
) (*connect.Response[ClearCacheResponse], error) {
	ns := req.Msg.Namespace
	if ns == "" {
		s.cache.ClearAll()
		zlog.Info().Msg("admin: all cache namespaces cleared")
	} else {
		if _, ok := s.cache.Stats().Namespace(ns); !ok {
			return nil, connect.NewError(connect.CodeNotFound, errors.Newf("unknown cache namespace %q", ns))
		}
		s.cache.Clear(ns)
		zlog.Info().Msgf("admin: cache namespace cleared: namespace=%s", ns)
	}

	return connect.NewResponse(&ClearCacheResponse{Stats: s.cache.Stats()}), nil
}

// RetryEnrichment forgets previous enrichment outcomes for a product and runs
// the pipeline again.
func (s *AdminService) RetryEnrichment(
	ctx context.Context,
	req *connect.Request[ProductRequest],
) (*connect.Response[EnrichmentResponse], error) {
	key := req.Msg.Key()
	if key.IsZero() {
		return nil, invalidArgument("documentId or commerceId is required")
	}

	res, err := s.preview.Retry(ctx, key)
	if err != nil {
		return nil, toConnectError(err)
	}
	zlog.Info().Msgf("admin: enrichment retried: product=%s reason=%s", key, res.Reason)
	return connect.NewResponse(toEnrichmentResponse(res)), nil
}

// StoredTracklist returns the enriched tracklist saved in local storage.
func (s *AdminService) StoredTracklist(
	ctx context.Context,
	req *connect.Request[ProductRequest],
) (*connect.Response[StoredTracklistResponse], error) {
	if s.store == nil {
		return nil, connect.NewError(connect.CodeFailedPrecondition, errors.New("local store is not configured"))
	}
	key := req.Msg.Key()
	if key.IsZero() {
		return nil, invalidArgument("documentId or commerceId is required")
	}

	tracks, err := s.store.Load(ctx, key)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&StoredTracklistResponse{Tracklist: toTracks(tracks)}), nil
}
