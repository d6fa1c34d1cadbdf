package enrichment

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/crate/internal/app/cache"
	"github.com/osa030/crate/internal/app/catalog"
	"github.com/osa030/crate/internal/app/notification"
	"github.com/osa030/crate/internal/domain/product"
	"github.com/osa030/crate/internal/domain/track"
	"github.com/osa030/crate/internal/infra/content"
)

type fakeCatalog struct {
	release  *catalog.Release
	err      error
	panics   bool
	calls    atomic.Int32
	gotQuery catalog.Query
	ctxErr   error
	started  chan struct{}
	unblock  chan struct{}
}

func (f *fakeCatalog) FetchRelease(ctx context.Context, q catalog.Query) (*catalog.Release, error) {
	if f.calls.Add(1) == 1 && f.started != nil {
		close(f.started)
	}
	if f.unblock != nil {
		<-f.unblock
	}
	f.gotQuery = q
	f.ctxErr = ctx.Err()
	if f.panics {
		panic("catalog exploded")
	}
	return f.release, f.err
}

type fakePersister struct {
	result      *content.PersistResult
	err         error
	calls       int
	gotDocument string
	gotRequest  content.EnhancementRequest
}

func (f *fakePersister) Persist(ctx context.Context, documentID string, tracks []track.Track, req content.EnhancementRequest) (*content.PersistResult, error) {
	f.calls++
	f.gotDocument = documentID
	f.gotRequest = req
	return f.result, f.err
}

type fakeSaver struct {
	saved map[product.Key][]track.Track
	err   error
}

func (f *fakeSaver) Save(ctx context.Context, key product.Key, tracks []track.Track) error {
	if f.saved == nil {
		f.saved = make(map[product.Key][]track.Track)
	}
	f.saved[key] = tracks
	return f.err
}

type fakePatcher struct {
	mu    sync.Mutex
	calls []product.Key
}

func (f *fakePatcher) ApplyTracklistUpdate(key product.Key, tracks []track.Track) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, key)
	return true
}

type fakeRecorder struct {
	mu      sync.Mutex
	reasons []notification.Reason
}

func (f *fakeRecorder) RecordEnrichment(reason notification.Reason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reasons = append(f.reasons, reason)
}

type harness struct {
	pipeline *Pipeline
	cache    *cache.Manager
	events   *notification.Manager
	catalog  *fakeCatalog
	patcher  *fakePatcher
	recorder *fakeRecorder

	mu       sync.Mutex
	received []notification.Event
}

func newHarness(t *testing.T, cfg Config, mutate func(d *Deps)) *harness {
	t.Helper()
	h := &harness{
		cache:    cache.New(cache.Config{}),
		events:   notification.NewManager(),
		catalog:  &fakeCatalog{},
		patcher:  &fakePatcher{},
		recorder: &fakeRecorder{},
	}
	deps := Deps{
		Cache:    h.cache,
		Events:   h.events,
		Catalog:  h.catalog,
		Playback: h.patcher,
		Recorder: h.recorder,
	}
	if mutate != nil {
		mutate(&deps)
	}
	p, err := New(cfg, deps)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	h.pipeline = p

	h.events.Subscribe(func(seq uint64, e notification.Event) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.received = append(h.received, e)
	})
	return h
}

func (h *harness) kinds() []notification.Kind {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]notification.Kind, len(h.received))
	for i, e := range h.received {
		out[i] = e.Kind()
	}
	return out
}

func (h *harness) lastUpdate(t *testing.T) notification.TracklistUpdated {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.received) - 1; i >= 0; i-- {
		if u, ok := h.received[i].(notification.TracklistUpdated); ok {
			return u
		}
	}
	t.Fatal("no TracklistUpdated received")
	return notification.TracklistUpdated{}
}

var testKey = product.Key{DocumentID: "doc-1", CommerceID: "sku-1"}

func compilationRequest() Request {
	p := &product.Product{
		Key:       testKey,
		Title:     "Deep Space Compilation",
		Artist:    "Various Artists",
		CatalogID: "1234",
		Tracklist: []track.Track{
			{Title: "Track 1", AudioURL: "https://cdn.example.com/1.mp3"},
			{Title: "Dreams", Artist: "Mood II Swing", AudioURL: "https://cdn.example.com/2.mp3"},
			{Title: "Track 3", AudioURL: "https://cdn.example.com/3.mp3"},
		},
	}
	return NewRequest(p)
}

func externalRelease() *catalog.Release {
	return &catalog.Release{
		Source: "discogs",
		Tracks: []catalog.ReleaseTrack{
			{Title: "Morning Factory", Artists: []string{"Ron Trent (2)"}, Duration: 6 * time.Minute},
			{Title: "Not This", Artists: []string{"Someone Else"}},
			{Title: "Night Drive", ExtraArtists: []string{"Chez Damier"}},
		},
	}
}

func cachedTracklist(h *harness, key product.Key) ([]track.Track, bool) {
	return cache.Lookup[[]track.Track](h.cache, NamespaceTracklists, key)
}

func TestNew_RequiredDeps(t *testing.T) {
	_, err := New(Config{}, Deps{})
	assert.Error(t, err)

	_, err = New(Config{}, Deps{Cache: cache.New(cache.Config{})})
	assert.Error(t, err)

	_, err = New(Config{}, Deps{Cache: cache.New(cache.Config{}), Events: notification.NewManager()})
	assert.Error(t, err)
}

func TestEnrich_ShortCircuits(t *testing.T) {
	plain := Request{
		Key:           testKey,
		ProductArtist: "Theo Parrish",
		CatalogID:     "1",
		Tracklist:     []track.Track{{Title: "Falling Up", Artist: "Theo Parrish"}},
	}
	placeholder := Request{
		Key:           testKey,
		ProductArtist: "Theo Parrish",
		Tracklist:     []track.Track{{Title: "Track 1"}},
	}

	tests := []struct {
		name        string
		cfg         Config
		req         Request
		wantReason  notification.Reason
		wantCached  bool
		wantTracks  int
		wantFetches int32
	}{
		{
			name:       "empty tracklist",
			req:        Request{Key: testKey},
			wantReason: notification.ReasonNoTracklist,
			wantTracks: 0,
		},
		{
			name: "already enhanced and trusted",
			cfg:  Config{TrustEnhancedFlag: true},
			req: func() Request {
				r := placeholder
				r.AlreadyEnhanced = true
				return r
			}(),
			wantReason: notification.ReasonAlreadyEnhanced,
			wantCached: true,
			wantTracks: 1,
		},
		{
			name:       "missing catalog id when required",
			cfg:        Config{RequireCatalogID: true},
			req:        placeholder,
			wantReason: notification.ReasonNoCatalogID,
			wantCached: true,
			wantTracks: 1,
		},
		{
			name:       "nothing to update",
			req:        plain,
			wantReason: notification.ReasonSkipped,
			wantCached: true,
			wantTracks: 1,
		},
		{
			name: "placeholder artist on a single-artist release",
			req: Request{
				Key:           testKey,
				ProductArtist: "Theo Parrish",
				Tracklist:     []track.Track{{Title: "Falling Up", Artist: ""}},
			},
			wantReason: notification.ReasonSkipped,
			wantCached: true,
			wantTracks: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.cfg, nil)

			res := h.pipeline.Enrich(context.Background(), tt.req)

			assert.Equal(t, tt.wantReason, res.Reason)
			assert.Len(t, res.Tracklist, tt.wantTracks)
			assert.Nil(t, res.EnhancementTypes)
			assert.Equal(t, tt.wantFetches, h.catalog.calls.Load())

			_, cached := cachedTracklist(h, testKey)
			assert.Equal(t, tt.wantCached, cached)

			update := h.lastUpdate(t)
			assert.Equal(t, tt.wantReason, update.Reason)
			assert.Equal(t, testKey, update.Key)
			assert.Len(t, update.Tracklist, tt.wantTracks)
			assert.Equal(t, []notification.Reason{tt.wantReason}, h.recorder.reasons)
		})
	}
}

func TestEnrich_RequireCatalogIDWithoutNetwork(t *testing.T) {
	h := newHarness(t, Config{RequireCatalogID: true}, nil)
	req := compilationRequest()
	req.CatalogID = ""

	res := h.pipeline.Enrich(context.Background(), req)

	assert.Equal(t, notification.ReasonNoCatalogID, res.Reason)
	assert.Equal(t, req.Tracklist, res.Tracklist, "tracklist is unchanged")
	assert.Equal(t, int32(0), h.catalog.calls.Load(), "no network call")
}

func TestEnrich_UntrustedEnhancedFlagIsIgnored(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	h.catalog.release = externalRelease()
	req := compilationRequest()
	req.AlreadyEnhanced = true

	res := h.pipeline.Enrich(context.Background(), req)

	assert.Equal(t, notification.ReasonCatalogSuccess, res.Reason)
	assert.Equal(t, int32(1), h.catalog.calls.Load())
}

func TestEnrich_CatalogSuccess(t *testing.T) {
	saver := &fakeSaver{}
	h := newHarness(t, Config{}, func(d *Deps) { d.Saver = saver })
	h.catalog.release = externalRelease()
	req := compilationRequest()

	res := h.pipeline.Enrich(context.Background(), req)

	require.Equal(t, notification.ReasonCatalogSuccess, res.Reason)
	require.Len(t, res.Tracklist, 3)
	assert.Equal(t, "Morning Factory", res.Tracklist[0].Title)
	assert.Equal(t, "Ron Trent", res.Tracklist[0].Artist)
	assert.Equal(t, 6*time.Minute, res.Tracklist[0].Duration)
	assert.Equal(t, "Dreams", res.Tracklist[1].Title, "real title kept")
	assert.Equal(t, "Mood II Swing", res.Tracklist[1].Artist, "real artist kept")
	assert.Equal(t, "Night Drive", res.Tracklist[2].Title)
	assert.Equal(t, "Chez Damier", res.Tracklist[2].Artist)
	assert.Equal(t, "https://cdn.example.com/3.mp3", res.Tracklist[2].AudioURL)

	require.NotNil(t, res.EnhancementTypes)
	assert.Equal(t, notification.EnhancementTypes{Titles: true, Artists: true, TitleCount: 2, ArtistCount: 2}, *res.EnhancementTypes)

	assert.Equal(t, "1234", h.catalog.gotQuery.CatalogID)
	assert.Equal(t, "Deep Space Compilation", h.catalog.gotQuery.Album)
	assert.Empty(t, h.catalog.gotQuery.Artist, "compilation artist is not searched")

	assert.Equal(t, []notification.Kind{
		notification.KindEnhancedTracklistAvailable,
		notification.KindTracklistUpdated,
	}, h.kinds())
	update := h.lastUpdate(t)
	require.NotNil(t, update.EnhancementTypes)
	assert.Equal(t, 2, update.EnhancementTypes.TitleCount)

	cached, ok := cachedTracklist(h, testKey)
	require.True(t, ok)
	assert.Equal(t, "Morning Factory", cached[0].Title)
	assert.Equal(t, "Morning Factory", saver.saved[testKey][0].Title)
	assert.Equal(t, []product.Key{testKey}, h.patcher.calls)

	_, guarded := h.cache.Get(NamespaceProcessed, testKey)
	assert.True(t, guarded)
}

func TestEnrich_AtMostOneAttempt(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	h.catalog.release = externalRelease()

	first := h.pipeline.Enrich(context.Background(), compilationRequest())
	second := h.pipeline.Enrich(context.Background(), compilationRequest())

	assert.Equal(t, notification.ReasonCatalogSuccess, first.Reason)
	assert.Equal(t, notification.ReasonCached, second.Reason)
	assert.Equal(t, first.Tracklist, second.Tracklist)

	// The guard still holds once the data cache lost the entry.
	h.cache.Delete(NamespaceTracklists, testKey)
	third := h.pipeline.Enrich(context.Background(), compilationRequest())
	assert.Equal(t, notification.ReasonAlreadyProcessed, third.Reason)

	assert.Equal(t, int32(1), h.catalog.calls.Load())
}

func TestEnrich_ConcurrentCallersShareOneFetch(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	h.catalog.release = externalRelease()
	h.catalog.started = make(chan struct{})
	h.catalog.unblock = make(chan struct{})

	const callers = 5
	results := make([]Result, callers)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = h.pipeline.Enrich(context.Background(), compilationRequest())
	}()
	<-h.catalog.started

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = h.pipeline.Enrich(context.Background(), compilationRequest())
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(h.catalog.unblock)
	wg.Wait()

	assert.Equal(t, int32(1), h.catalog.calls.Load())
	for i, res := range results {
		assert.Contains(t, []notification.Reason{notification.ReasonCatalogSuccess, notification.ReasonCached}, res.Reason, "caller %d", i)
		assert.Equal(t, "Morning Factory", res.Tracklist[0].Title, "caller %d", i)
	}
}

func TestEnrich_CallerCancelDoesNotFailJoinedCallers(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	h.catalog.release = externalRelease()
	h.catalog.started = make(chan struct{})
	h.catalog.unblock = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan Result, 1)
	go func() {
		first <- h.pipeline.Enrich(ctx, compilationRequest())
	}()
	<-h.catalog.started

	second := make(chan Result, 1)
	go func() {
		second <- h.pipeline.Enrich(context.Background(), compilationRequest())
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case res := <-first:
		assert.Equal(t, notification.ReasonCatalogError, res.Reason)
		assert.Equal(t, "Track 1", res.Tracklist[0].Title)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(h.catalog.unblock)
	res := <-second
	assert.Equal(t, notification.ReasonCatalogSuccess, res.Reason)
	assert.Equal(t, "Morning Factory", res.Tracklist[0].Title)
	assert.NoError(t, h.catalog.ctxErr, "shared run keeps its own context")
	assert.Equal(t, int32(1), h.catalog.calls.Load())
	assert.Equal(t, notification.ReasonCatalogSuccess, h.lastUpdate(t).Reason)
}

func TestEnrich_CatalogFailures(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(f *fakeCatalog)
		wantReason notification.Reason
	}{
		{
			name:       "no track data",
			setup:      func(f *fakeCatalog) { f.release = &catalog.Release{} },
			wantReason: notification.ReasonNoData,
		},
		{
			name:       "nil release",
			setup:      func(f *fakeCatalog) {},
			wantReason: notification.ReasonNoData,
		},
		{
			name:       "lookup error",
			setup:      func(f *fakeCatalog) { f.err = errors.New("503 Service Unavailable") },
			wantReason: notification.ReasonCatalogError,
		},
		{
			name:       "panic",
			setup:      func(f *fakeCatalog) { f.panics = true },
			wantReason: notification.ReasonCatalogError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{}, nil)
			tt.setup(h.catalog)
			req := compilationRequest()

			res := h.pipeline.Enrich(context.Background(), req)

			assert.Equal(t, tt.wantReason, res.Reason)
			assert.Equal(t, req.Tracklist, res.Tracklist, "original tracklist is kept")

			cached, ok := cachedTracklist(h, testKey)
			require.True(t, ok, "original is cached to suppress retries")
			assert.Equal(t, "Track 1", cached[0].Title)

			_, guarded := h.cache.Get(NamespaceProcessed, testKey)
			assert.True(t, guarded)
			assert.Empty(t, h.patcher.calls)
			assert.Equal(t, tt.wantReason, h.lastUpdate(t).Reason)
		})
	}
}

func TestEnrich_PersistencePath(t *testing.T) {
	persister := &fakePersister{
		result: &content.PersistResult{
			Tracklist: []track.Track{
				{Title: "Morning Factory", Artist: "Ron Trent"},
				{Title: "Dreams", Artist: "Mood II Swing"},
				{Title: "Night Drive", Artist: "Chez Damier"},
			},
			CommerceID:         "sku-1",
			TitleEnhancements:  2,
			ArtistEnhancements: 2,
		},
	}
	h := newHarness(t, Config{}, func(d *Deps) { d.Persister = persister })

	res := h.pipeline.Enrich(context.Background(), compilationRequest())

	require.Equal(t, notification.ReasonCatalogSuccess, res.Reason)
	assert.Equal(t, 1, persister.calls)
	assert.Equal(t, int32(0), h.catalog.calls.Load())
	assert.Equal(t, "doc-1", persister.gotDocument)
	assert.True(t, persister.gotRequest.EnhanceTitles)
	assert.True(t, persister.gotRequest.EnhanceArtists)
	assert.Positive(t, persister.gotRequest.Timestamp)

	assert.Equal(t, "Morning Factory", res.Tracklist[0].Title)
	assert.Equal(t, "https://cdn.example.com/1.mp3", res.Tracklist[0].AudioURL, "identifiers restamped")
	assert.Equal(t, "doc-1", res.Tracklist[0].ProductID)

	assert.Equal(t, []notification.Kind{
		notification.KindContentDataUpdated,
		notification.KindEnhancedTracklistAvailable,
		notification.KindTracklistUpdated,
	}, h.kinds())

	cached, ok := cachedTracklist(h, testKey)
	require.True(t, ok, "content update populates the data cache")
	assert.Equal(t, "Night Drive", cached[2].Title)

	again := h.pipeline.Enrich(context.Background(), compilationRequest())
	assert.Equal(t, notification.ReasonCached, again.Reason)
	assert.Equal(t, 1, persister.calls)
}

func TestEnrich_PersistenceCachesUnderRequestKey(t *testing.T) {
	persister := &fakePersister{
		result: &content.PersistResult{
			Tracklist: []track.Track{
				{Title: "Morning Factory", Artist: "Ron Trent"},
				{Title: "Dreams", Artist: "Mood II Swing"},
				{Title: "Night Drive", Artist: "Chez Damier"},
			},
			CommerceID:        "sku-resolved",
			TitleEnhancements: 2,
		},
	}
	h := newHarness(t, Config{}, func(d *Deps) { d.Persister = persister })
	key := product.Key{DocumentID: "doc-1"}
	req := compilationRequest()
	req.Key = key

	res := h.pipeline.Enrich(context.Background(), req)
	require.Equal(t, notification.ReasonCatalogSuccess, res.Reason)

	cached, ok := cachedTracklist(h, key)
	require.True(t, ok)
	assert.Equal(t, "Morning Factory", cached[0].Title)

	again := h.pipeline.Enrich(context.Background(), req)
	assert.Equal(t, notification.ReasonCached, again.Reason)
	assert.Equal(t, "Morning Factory", again.Tracklist[0].Title)
	assert.Equal(t, 1, persister.calls)
}

func TestEnrich_PersistenceFailure(t *testing.T) {
	persister := &fakePersister{err: content.ErrPersistRejected}
	h := newHarness(t, Config{}, func(d *Deps) { d.Persister = persister })
	req := compilationRequest()

	res := h.pipeline.Enrich(context.Background(), req)

	assert.Equal(t, notification.ReasonAPIError, res.Reason)
	assert.Equal(t, req.Tracklist, res.Tracklist)
	cached, ok := cachedTracklist(h, testKey)
	require.True(t, ok)
	assert.Equal(t, "Track 1", cached[0].Title)
	assert.Equal(t, []notification.Kind{notification.KindTracklistUpdated}, h.kinds())
}

func TestRetryUpdate(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	h.catalog.err = errors.New("timeout")

	first := h.pipeline.Enrich(context.Background(), compilationRequest())
	require.Equal(t, notification.ReasonCatalogError, first.Reason)

	h.catalog.err = nil
	h.catalog.release = externalRelease()
	assert.Equal(t, notification.ReasonCached, h.pipeline.Enrich(context.Background(), compilationRequest()).Reason)

	h.pipeline.RetryUpdate(testKey)
	retried := h.pipeline.Enrich(context.Background(), compilationRequest())

	assert.Equal(t, notification.ReasonCatalogSuccess, retried.Reason)
	assert.Equal(t, int32(2), h.catalog.calls.Load())
}

func TestEnrich_ResultIsIsolatedFromCache(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	h.catalog.release = externalRelease()

	res := h.pipeline.Enrich(context.Background(), compilationRequest())
	res.Tracklist[0].Title = "mutated"

	cached, ok := cachedTracklist(h, testKey)
	require.True(t, ok)
	assert.Equal(t, "Morning Factory", cached[0].Title)
}

func TestClose_StopsContentCaching(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	h.pipeline.Close()

	h.events.Broadcast(notification.ContentDataUpdated{
		Type:       notification.ContentUpdateTracklist,
		DocumentID: testKey.DocumentID,
		CommerceID: testKey.CommerceID,
		Tracklist:  []track.Track{{Title: "x"}},
	})

	_, ok := cachedTracklist(h, testKey)
	assert.False(t, ok)
}
