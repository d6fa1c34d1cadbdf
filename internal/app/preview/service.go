// Package preview provides the storefront preview service: it resolves a
// product, hands its tracklist to the player and keeps the tracklist enriched.
package preview

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/crate/internal/app/cache"
	"github.com/osa030/crate/internal/app/enrichment"
	"github.com/osa030/crate/internal/domain/product"
	"github.com/osa030/crate/internal/domain/track"
)

// NamespaceProducts caches product records from the content source.
const NamespaceProducts = "products"

// DefaultProductsNamespace is used when the namespace was not created beforehand.
var DefaultProductsNamespace = cache.NamespaceConfig{TTL: 10 * time.Minute, MaxEntries: 200, MaxMemory: 2 << 20}

// DefaultEnrichTimeout bounds a background enrichment run.
const DefaultEnrichTimeout = 30 * time.Second

var (
	ErrServiceClosed = errors.New("preview service is closed")
	ErrNoPlayable    = errors.New("product has no playable tracks")
)

// ProductSource supplies product records.
type ProductSource interface {
	GetProduct(ctx context.Context, key product.Key) (*product.Product, error)
}

// Player plays tracklists.
type Player interface {
	PlayTracklist(tracks []track.Track, startIndex int) error
}

// Enricher runs the enrichment pipeline.
type Enricher interface {
	Enrich(ctx context.Context, req enrichment.Request) enrichment.Result
	RetryUpdate(key product.Key)
}

// Service coordinates product lookup, playback and enrichment.
type Service struct {
	mu     sync.Mutex
	closed bool

	products ProductSource
	cache    *cache.Manager
	player   Player
	enricher Enricher

	enrichTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a new preview service.
func NewService(products ProductSource, c *cache.Manager, player Player, enricher Enricher) *Service {
	c.CreateNamespace(NamespaceProducts, DefaultProductsNamespace)

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		products:      products,
		cache:         c,
		player:        player,
		enricher:      enricher,
		enrichTimeout: DefaultEnrichTimeout,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Product returns the product identified by key, from cache when possible.
func (s *Service) Product(ctx context.Context, key product.Key) (*product.Product, error) {
	if key.IsZero() {
		return nil, errors.New("product key is required")
	}
	if p, ok := cache.Lookup[*product.Product](s.cache, NamespaceProducts, key); ok {
		return p, nil
	}

	p, err := s.products.GetProduct(ctx, key)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get product %s", key)
	}
	s.cache.Set(NamespaceProducts, key, p)
	if p.Key != key {
		s.cache.Set(NamespaceProducts, p.Key, p)
	}
	return p, nil
}

// PlayProduct plays the tracklist of the product identified by key starting
// at startIndex, then enriches the tracklist in the background. Enriched
// metadata reaches the player through the pipeline's playback patch.
func (s *Service) PlayProduct(ctx context.Context, key product.Key, startIndex int) (*product.Product, error) {
	if s.isClosed() {
		return nil, ErrServiceClosed
	}

	p, err := s.Product(ctx, key)
	if err != nil {
		return nil, err
	}

	tracks := p.Tracks()
	if !hasAudio(tracks) {
		return nil, errors.Wrapf(ErrNoPlayable, "product %s", p.Key)
	}
	if err := s.player.PlayTracklist(tracks, startIndex); err != nil {
		return nil, errors.Wrap(err, "failed to play tracklist")
	}

	zlog.Info().Msgf("preview: product playing: product=%s title=%s tracks=%d start=%d", p.Key, p.Title, len(tracks), startIndex)

	s.enrichAsync(p)
	return p, nil
}

// Enrich runs the enrichment pipeline for the product identified by key.
func (s *Service) Enrich(ctx context.Context, key product.Key) (enrichment.Result, error) {
	if s.isClosed() {
		return enrichment.Result{}, ErrServiceClosed
	}

	p, err := s.Product(ctx, key)
	if err != nil {
		return enrichment.Result{}, err
	}
	return s.enricher.Enrich(ctx, enrichment.NewRequest(p)), nil
}

// Retry forgets previous enrichment outcomes for key and the cached product
// record, then enriches again.
func (s *Service) Retry(ctx context.Context, key product.Key) (enrichment.Result, error) {
	if s.isClosed() {
		return enrichment.Result{}, ErrServiceClosed
	}

	s.enricher.RetryUpdate(key)
	s.cache.Delete(NamespaceProducts, key)
	return s.Enrich(ctx, key)
}

// Close cancels background enrichments and waits for them to return.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	zlog.Info().Msg("preview: service closed")
}

func (s *Service) enrichAsync(p *product.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	req := enrichment.NewRequest(p)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.enrichTimeout)
		defer cancel()

		res := s.enricher.Enrich(ctx, req)
		zlog.Debug().Msgf("preview: background enrichment finished: product=%s reason=%s", req.Key, res.Reason)
	}()
}

func (s *Service) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func hasAudio(tracks []track.Track) bool {
	for i := range tracks {
		if tracks[i].HasAudio() {
			return true
		}
	}
	return false
}
