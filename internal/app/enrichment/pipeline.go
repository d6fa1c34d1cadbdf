package enrichment

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/osa030/crate/internal/app/cache"
	"github.com/osa030/crate/internal/app/catalog"
	"github.com/osa030/crate/internal/app/notification"
	"github.com/osa030/crate/internal/domain/product"
	"github.com/osa030/crate/internal/domain/track"
	"github.com/osa030/crate/internal/infra/content"
)

// Cache namespaces owned by the pipeline.
const (
	NamespaceTracklists = "tracklists"
	NamespaceProcessed  = "tracklists_processed"
)

// Namespace defaults used when the namespaces were not created beforehand.
var (
	DefaultTracklistsNamespace = cache.NamespaceConfig{TTL: 30 * time.Minute, MaxEntries: 500, MaxMemory: 5 << 20}
	DefaultProcessedNamespace  = cache.NamespaceConfig{TTL: 60 * time.Minute, MaxEntries: 1000, MaxMemory: 512 << 10}
)

// DefaultRunTimeout bounds one shared enrichment run.
const DefaultRunTimeout = 30 * time.Second

// Config holds pipeline options.
type Config struct {
	TrustEnhancedFlag bool          // stop with already_enhanced when the content source says so
	RequireCatalogID  bool          // stop with no_discogs_id when the product has no release ID
	RunTimeout        time.Duration // 0 means DefaultRunTimeout
}

// Deps are the pipeline collaborators. Cache, Events and Catalog are required.
type Deps struct {
	Cache     *cache.Manager
	Events    *notification.Manager
	Catalog   CatalogSource
	Persister Persister       // optional, enables the persistence path
	Saver     Saver           // optional, stores catalog-path results
	Playback  PlaybackPatcher // optional
	Recorder  Recorder        // optional
}

// Pipeline runs the enrichment decision chain.
type Pipeline struct {
	cache     *cache.Manager
	events    *notification.Manager
	catalog   CatalogSource
	persister Persister
	saver     Saver
	playback  PlaybackPatcher
	recorder  Recorder
	gates     *GateChain
	timeout   time.Duration
	group     singleflight.Group
	subID     string
	now       func() time.Time
}

// New creates a pipeline and subscribes it to content updates so tracklists
// saved through the persistence path land in the data cache.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if deps.Cache == nil {
		return nil, errors.New("cache is required")
	}
	if deps.Events == nil {
		return nil, errors.New("notification manager is required")
	}
	if deps.Catalog == nil && deps.Persister == nil {
		return nil, errors.New("catalog source or persister is required")
	}

	deps.Cache.CreateNamespace(NamespaceTracklists, DefaultTracklistsNamespace)
	deps.Cache.CreateNamespace(NamespaceProcessed, DefaultProcessedNamespace)

	gates := NewGateChain()
	gates.Add(noTracklistGate{})
	gates.Add(&cachedGate{cache: deps.Cache})
	gates.Add(&alreadyEnhancedGate{trust: cfg.TrustEnhancedFlag})
	gates.Add(&processedGate{cache: deps.Cache})
	gates.Add(&catalogIDGate{require: cfg.RequireCatalogID})
	gates.Add(needsUpdateGate{})

	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}

	p := &Pipeline{
		cache:     deps.Cache,
		events:    deps.Events,
		catalog:   deps.Catalog,
		persister: deps.Persister,
		saver:     deps.Saver,
		playback:  deps.Playback,
		recorder:  deps.Recorder,
		gates:     gates,
		timeout:   cfg.RunTimeout,
		now:       time.Now,
	}
	p.subID = deps.Events.Subscribe(p.onContentData, notification.KindContentDataUpdated)

	zlog.Info().Msgf("enrichment: pipeline created: persistence=%t trust_enhanced=%t require_catalog_id=%t",
		p.persister != nil, cfg.TrustEnhancedFlag, cfg.RequireCatalogID)
	return p, nil
}

// Enrich runs the pipeline for req. Concurrent calls for the same key join
// the run already in flight. Enrich never fails: every outcome is reported
// through Result.Reason and a TracklistUpdated broadcast.
//
// The shared run is detached from ctx and bounded by Config.RunTimeout. A
// caller whose ctx ends first gets its own tracklist back with
// ReasonCatalogError while the run continues and broadcasts its real outcome.
func (p *Pipeline) Enrich(ctx context.Context, req Request) Result {
	ch := p.group.DoChan(req.Key.String(), func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()
		return p.run(runCtx, req), nil
	})

	select {
	case out := <-ch:
		res := out.Val.(Result)
		if out.Shared {
			zlog.Debug().Msgf("enrichment: joined in-flight run: product=%s reason=%s", req.Key, res.Reason)
		}
		res.Tracklist = track.Clone(res.Tracklist)
		return res
	case <-ctx.Done():
		zlog.Debug().Msgf("enrichment: caller left before run finished: product=%s error=%v", req.Key, ctx.Err())
		return Result{Reason: notification.ReasonCatalogError, Tracklist: track.Clone(req.Tracklist)}
	}
}

// RetryUpdate forgets the cached tracklist and the processed guard of key so
// the next Enrich starts from scratch.
func (p *Pipeline) RetryUpdate(key product.Key) {
	p.cache.Delete(NamespaceTracklists, key)
	p.cache.Delete(NamespaceProcessed, key)
	zlog.Info().Msgf("enrichment: retry requested: product=%s", key)
}

// Close stops listening for content updates.
func (p *Pipeline) Close() {
	p.events.Unsubscribe(p.subID)
}

func (p *Pipeline) run(ctx context.Context, req Request) Result {
	if d := p.gates.Execute(ctx, &req); d.Stop {
		zlog.Debug().Msgf("enrichment: short-circuit: product=%s reason=%s", req.Key, d.Reason)
		return p.finish(&req, d.Reason, d.Tracklist, d.Cache, nil)
	}
	return p.enrich(ctx, &req)
}

// enrich performs the external call. The processed guard is set afterwards
// whatever the outcome.
func (p *Pipeline) enrich(ctx context.Context, req *Request) (result Result) {
	defer p.markProcessed(req.Key)
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("enrichment: panic during enrichment: product=%s panic=%v", req.Key, r)
			result = p.finish(req, notification.ReasonCatalogError, req.Tracklist, true, nil)
		}
	}()

	if p.persister != nil {
		return p.persist(ctx, req)
	}
	return p.fetchAndMerge(ctx, req)
}

// persist delegates fetching and saving to the persistence endpoint. The
// result is cached under the request key; the ContentDataUpdated broadcast
// may carry a commerce ID the request did not have.
func (p *Pipeline) persist(ctx context.Context, req *Request) Result {
	titles, artists := needsUpdate(req)
	out, err := p.persister.Persist(ctx, req.Key.DocumentID, req.Tracklist, content.EnhancementRequest{
		EnhanceTitles:  titles,
		EnhanceArtists: artists,
		Timestamp:      p.now().UnixMilli(),
	})
	if err != nil {
		zlog.Warn().Msgf("enrichment: persistence failed: product=%s error=%v", req.Key, err)
		return p.finish(req, notification.ReasonAPIError, req.Tracklist, true, nil)
	}

	tracks := restamp(out.Tracklist, req)
	types := notification.EnhancementTypes{
		Titles:      out.TitleEnhancements > 0,
		Artists:     out.ArtistEnhancements > 0,
		TitleCount:  out.TitleEnhancements,
		ArtistCount: out.ArtistEnhancements,
	}
	commerceID := req.Key.CommerceID
	if commerceID == "" {
		commerceID = out.CommerceID
	}

	p.events.Broadcast(notification.ContentDataUpdated{
		Type:       notification.ContentUpdateTracklist,
		DocumentID: req.Key.DocumentID,
		CommerceID: commerceID,
		Tracklist:  tracks,
	})
	zlog.Info().Msgf("enrichment: tracklist persisted: product=%s titles=%d artists=%d",
		req.Key, types.TitleCount, types.ArtistCount)

	return p.finish(req, notification.ReasonCatalogSuccess, tracks, true, &types)
}

// fetchAndMerge looks the release up in the catalog and merges it locally.
func (p *Pipeline) fetchAndMerge(ctx context.Context, req *Request) Result {
	q := catalog.Query{CatalogID: req.CatalogID}
	if len(req.Tracklist) > 0 {
		q.Album = req.Tracklist[0].Album
	}
	if !req.IsCompilation() {
		q.Artist = req.ProductArtist
	}

	release, err := p.catalog.FetchRelease(ctx, q)
	if err != nil {
		zlog.Warn().Msgf("enrichment: catalog lookup failed: product=%s catalog_id=%s error=%v", req.Key, req.CatalogID, err)
		return p.finish(req, notification.ReasonCatalogError, req.Tracklist, true, nil)
	}
	if !release.HasTracks() {
		zlog.Info().Msgf("enrichment: catalog has no track data: product=%s catalog_id=%s", req.Key, req.CatalogID)
		return p.finish(req, notification.ReasonNoData, req.Tracklist, true, nil)
	}

	merged, types := Merge(req.Tracklist, release, req.IsCompilation())
	if p.saver != nil {
		if err := p.saver.Save(ctx, req.Key, merged); err != nil {
			zlog.Warn().Msgf("enrichment: failed to save merged tracklist: product=%s error=%v", req.Key, err)
		}
	}
	zlog.Info().Msgf("enrichment: tracklist merged: product=%s source=%s titles=%d artists=%d",
		req.Key, release.Source, types.TitleCount, types.ArtistCount)

	return p.finish(req, notification.ReasonCatalogSuccess, merged, true, &types)
}

// finish caches, patches playback and broadcasts the outcome of a run.
func (p *Pipeline) finish(req *Request, reason notification.Reason, tracks []track.Track, cacheIt bool, types *notification.EnhancementTypes) Result {
	if cacheIt {
		if !p.cache.Set(NamespaceTracklists, req.Key, track.Clone(tracks)) {
			zlog.Debug().Msgf("enrichment: tracklist not cached: product=%s", req.Key)
		}
	}

	if p.playback != nil && (reason == notification.ReasonCached || reason == notification.ReasonCatalogSuccess) {
		p.playback.ApplyTracklistUpdate(req.Key, tracks)
	}

	if types != nil {
		p.events.Broadcast(notification.EnhancedTracklistAvailable{
			ProductID:         req.Key.DocumentID,
			Key:               req.Key,
			EnhancedTracklist: tracks,
			EnhancementTypes:  *types,
		})
	}
	p.events.Broadcast(notification.TracklistUpdated{
		Key:              req.Key,
		Tracklist:        tracks,
		Reason:           reason,
		EnhancementTypes: types,
	})

	if p.recorder != nil {
		p.recorder.RecordEnrichment(reason)
	}

	return Result{Reason: reason, Tracklist: tracks, EnhancementTypes: types}
}

func (p *Pipeline) markProcessed(key product.Key) {
	p.cache.Set(NamespaceProcessed, key, true)
}

// onContentData caches tracklists announced on the content-update channel.
func (p *Pipeline) onContentData(seq uint64, e notification.Event) {
	update, ok := e.(notification.ContentDataUpdated)
	if !ok || update.Type != notification.ContentUpdateTracklist {
		return
	}
	key := product.Key{DocumentID: update.DocumentID, CommerceID: update.CommerceID}
	if p.cache.Set(NamespaceTracklists, key, track.Clone(update.Tracklist)) {
		zlog.Debug().Msgf("enrichment: cached content update: product=%s seq=%d", key, seq)
	}
}
