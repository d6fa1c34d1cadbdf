package connect

import (
	"context"
	"net/http"

	"connectrpc.com/connect"

	"github.com/osa030/crate/internal/app/cache"
)

const (
	PlayerServiceName = "crate.v1.PlayerService"
	AdminServiceName  = "crate.v1.AdminService"
)

// Procedure paths.
const (
	PlayerGetStateProcedure      = "/" + PlayerServiceName + "/GetState"
	PlayerPlayProductProcedure   = "/" + PlayerServiceName + "/PlayProduct"
	PlayerPlayTracklistProcedure = "/" + PlayerServiceName + "/PlayTracklist"
	PlayerNextProcedure          = "/" + PlayerServiceName + "/Next"
	PlayerPreviousProcedure      = "/" + PlayerServiceName + "/Previous"
	PlayerPauseProcedure         = "/" + PlayerServiceName + "/Pause"
	PlayerResumeProcedure        = "/" + PlayerServiceName + "/Resume"
	PlayerStopProcedure          = "/" + PlayerServiceName + "/Stop"
	PlayerClearHistoryProcedure  = "/" + PlayerServiceName + "/ClearHistory"
	PlayerEnrichProductProcedure = "/" + PlayerServiceName + "/EnrichProduct"
	PlayerWatchStateProcedure    = "/" + PlayerServiceName + "/WatchState"

	AdminCacheStatsProcedure      = "/" + AdminServiceName + "/CacheStats"
	AdminClearCacheProcedure      = "/" + AdminServiceName + "/ClearCache"
	AdminRetryEnrichmentProcedure = "/" + AdminServiceName + "/RetryEnrichment"
	AdminStoredTracklistProcedure = "/" + AdminServiceName + "/StoredTracklist"
)

func handlerOptions(opts []connect.HandlerOption) []connect.HandlerOption {
	return append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)
}

func clientOptions(opts []connect.ClientOption) []connect.ClientOption {
	return append([]connect.ClientOption{connect.WithCodec(JSONCodec{})}, opts...)
}

// NewPlayerServiceHandler builds an HTTP handler from the service
// implementation. It returns the path on which to mount the handler and the
// handler itself.
func NewPlayerServiceHandler(svc *PlayerService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)

	mux := http.NewServeMux()
	mux.Handle(PlayerGetStateProcedure, connect.NewUnaryHandler(PlayerGetStateProcedure, svc.GetState, opts...))
	mux.Handle(PlayerPlayProductProcedure, connect.NewUnaryHandler(PlayerPlayProductProcedure, svc.PlayProduct, opts...))
	mux.Handle(PlayerPlayTracklistProcedure, connect.NewUnaryHandler(PlayerPlayTracklistProcedure, svc.PlayTracklist, opts...))
	mux.Handle(PlayerNextProcedure, connect.NewUnaryHandler(PlayerNextProcedure, svc.Next, opts...))
	mux.Handle(PlayerPreviousProcedure, connect.NewUnaryHandler(PlayerPreviousProcedure, svc.Previous, opts...))
	mux.Handle(PlayerPauseProcedure, connect.NewUnaryHandler(PlayerPauseProcedure, svc.Pause, opts...))
	mux.Handle(PlayerResumeProcedure, connect.NewUnaryHandler(PlayerResumeProcedure, svc.Resume, opts...))
	mux.Handle(PlayerStopProcedure, connect.NewUnaryHandler(PlayerStopProcedure, svc.Stop, opts...))
	mux.Handle(PlayerClearHistoryProcedure, connect.NewUnaryHandler(PlayerClearHistoryProcedure, svc.ClearHistory, opts...))
	mux.Handle(PlayerEnrichProductProcedure, connect.NewUnaryHandler(PlayerEnrichProductProcedure, svc.EnrichProduct, opts...))
	mux.Handle(PlayerWatchStateProcedure, connect.NewServerStreamHandler(PlayerWatchStateProcedure, svc.WatchState, opts...))

	return "/" + PlayerServiceName + "/", mux
}

// NewAdminServiceHandler builds an HTTP handler for the admin service. Pass
// connect.WithInterceptors(NewAdminAuthInterceptor(token)) to require the
// admin token.
func NewAdminServiceHandler(svc *AdminService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)

	mux := http.NewServeMux()
	mux.Handle(AdminCacheStatsProcedure, connect.NewUnaryHandler(AdminCacheStatsProcedure, svc.CacheStats, opts...))
	mux.Handle(AdminClearCacheProcedure, connect.NewUnaryHandler(AdminClearCacheProcedure, svc.ClearCache, opts...))
	mux.Handle(AdminRetryEnrichmentProcedure, connect.NewUnaryHandler(AdminRetryEnrichmentProcedure, svc.RetryEnrichment, opts...))
	mux.Handle(AdminStoredTracklistProcedure, connect.NewUnaryHandler(AdminStoredTracklistProcedure, svc.StoredTracklist, opts...))

	return "/" + AdminServiceName + "/", mux
}

// PlayerClient is a client for the PlayerService.
type PlayerClient struct {
	getState      *connect.Client[Empty, PlayerState]
	playProduct   *connect.Client[PlayProductRequest, PlayProductResponse]
	playTracklist *connect.Client[PlayTracklistRequest, TransportResponse]
	next          *connect.Client[Empty, TransportResponse]
	previous      *connect.Client[Empty, TransportResponse]
	pause         *connect.Client[Empty, TransportResponse]
	resume        *connect.Client[Empty, TransportResponse]
	stop          *connect.Client[Empty, TransportResponse]
	clearHistory  *connect.Client[Empty, TransportResponse]
	enrichProduct *connect.Client[ProductRequest, EnrichmentResponse]
	watchState    *connect.Client[Empty, PlayerState]
}

// NewPlayerClient constructs a client for the PlayerService at baseURL.
func NewPlayerClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *PlayerClient {
	opts = clientOptions(opts)
	return &PlayerClient{
		getState:      connect.NewClient[Empty, PlayerState](httpClient, baseURL+PlayerGetStateProcedure, opts...),
		playProduct:   connect.NewClient[PlayProductRequest, PlayProductResponse](httpClient, baseURL+PlayerPlayProductProcedure, opts...),
		playTracklist: connect.NewClient[PlayTracklistRequest, TransportResponse](httpClient, baseURL+PlayerPlayTracklistProcedure, opts...),
		next:          connect.NewClient[Empty, TransportResponse](httpClient, baseURL+PlayerNextProcedure, opts...),
		previous:      connect.NewClient[Empty, TransportResponse](httpClient, baseURL+PlayerPreviousProcedure, opts...),
		pause:         connect.NewClient[Empty, TransportResponse](httpClient, baseURL+PlayerPauseProcedure, opts...),
		resume:        connect.NewClient[Empty, TransportResponse](httpClient, baseURL+PlayerResumeProcedure, opts...),
		stop:          connect.NewClient[Empty, TransportResponse](httpClient, baseURL+PlayerStopProcedure, opts...),
		clearHistory:  connect.NewClient[Empty, TransportResponse](httpClient, baseURL+PlayerClearHistoryProcedure, opts...),
		enrichProduct: connect.NewClient[ProductRequest, EnrichmentResponse](httpClient, baseURL+PlayerEnrichProductProcedure, opts...),
		watchState:    connect.NewClient[Empty, PlayerState](httpClient, baseURL+PlayerWatchStateProcedure, opts...),
	}
}

// GetState calls PlayerService.GetState.
func (c *PlayerClient) GetState(ctx context.Context) (*PlayerState, error) {
	return unary(ctx, c.getState, &Empty{})
}

// PlayProduct calls PlayerService.PlayProduct.
func (c *PlayerClient) PlayProduct(ctx context.Context, req *PlayProductRequest) (*PlayProductResponse, error) {
	return unary(ctx, c.playProduct, req)
}

// PlayTracklist calls PlayerService.PlayTracklist.
func (c *PlayerClient) PlayTracklist(ctx context.Context, req *PlayTracklistRequest) (*TransportResponse, error) {
	return unary(ctx, c.playTracklist, req)
}

// Next calls PlayerService.Next.
func (c *PlayerClient) Next(ctx context.Context) (*TransportResponse, error) {
	return unary(ctx, c.next, &Empty{})
}

// Previous calls PlayerService.Previous.
func (c *PlayerClient) Previous(ctx context.Context) (*TransportResponse, error) {
	return unary(ctx, c.previous, &Empty{})
}

// Pause calls PlayerService.Pause.
func (c *PlayerClient) Pause(ctx context.Context) (*TransportResponse, error) {
	return unary(ctx, c.pause, &Empty{})
}

// Resume calls PlayerService.Resume.
func (c *PlayerClient) Resume(ctx context.Context) (*TransportResponse, error) {
	return unary(ctx, c.resume, &Empty{})
}

// Stop calls PlayerService.Stop.
func (c *PlayerClient) Stop(ctx context.Context) (*TransportResponse, error) {
	return unary(ctx, c.stop, &Empty{})
}

// ClearHistory calls PlayerService.ClearHistory.
func (c *PlayerClient) ClearHistory(ctx context.Context) (*TransportResponse, error) {
	return unary(ctx, c.clearHistory, &Empty{})
}

// EnrichProduct calls PlayerService.EnrichProduct.
func (c *PlayerClient) EnrichProduct(ctx context.Context, req *ProductRequest) (*EnrichmentResponse, error) {
	return unary(ctx, c.enrichProduct, req)
}

// WatchState calls PlayerService.WatchState. The caller must Close the stream.
func (c *PlayerClient) WatchState(ctx context.Context) (*connect.ServerStreamForClient[PlayerState], error) {
	return c.watchState.CallServerStream(ctx, connect.NewRequest(&Empty{}))
}

// AdminClient is a client for the AdminService.
type AdminClient struct {
	cacheStats      *connect.Client[Empty, cache.Stats]
	clearCache      *connect.Client[ClearCacheRequest, ClearCacheResponse]
	retryEnrichment *connect.Client[ProductRequest, EnrichmentResponse]
	storedTracklist *connect.Client[ProductRequest, StoredTracklistResponse]
}

// NewAdminClient constructs a client for the AdminService at baseURL that
// authenticates with token.
func NewAdminClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *AdminClient {
	opts = clientOptions(append(opts, connect.WithInterceptors(NewAdminTokenInterceptor(token))))
	return &AdminClient{
		cacheStats:      connect.NewClient[Empty, cache.Stats](httpClient, baseURL+AdminCacheStatsProcedure, opts...),
		clearCache:      connect.NewClient[ClearCacheRequest, ClearCacheResponse](httpClient, baseURL+AdminClearCacheProcedure, opts...),
		retryEnrichment: connect.NewClient[ProductRequest, EnrichmentResponse](httpClient, baseURL+AdminRetryEnrichmentProcedure, opts...),
		storedTracklist: connect.NewClient[ProductRequest, StoredTracklistResponse](httpClient, baseURL+AdminStoredTracklistProcedure, opts...),
	}
}

// CacheStats calls AdminService.CacheStats.
func (c *AdminClient) CacheStats(ctx context.Context) (*cache.Stats, error) {
	return unary(ctx, c.cacheStats, &Empty{})
}

// ClearCache calls AdminService.ClearCache.
func (c *AdminClient) ClearCache(ctx context.Context, namespace string) (*ClearCacheResponse, error) {
	return unary(ctx, c.clearCache, &ClearCacheRequest{Namespace: namespace})
}

// RetryEnrichment calls AdminService.RetryEnrichment.
func (c *AdminClient) RetryEnrichment(ctx context.Context, req *ProductRequest) (*EnrichmentResponse, error) {
	return unary(ctx, c.retryEnrichment, req)
}

// StoredTracklist calls AdminService.StoredTracklist.
func (c *AdminClient) StoredTracklist(ctx context.Context, req *ProductRequest) (*StoredTracklistResponse, error) {
	return unary(ctx, c.storedTracklist, req)
}

func unary[Req, Res any](ctx context.Context, client *connect.Client[Req, Res], msg *Req) (*Res, error) {
	resp, err := client.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
