// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	apiconnect "github.com/osa030/crate/internal/api/connect"
	"github.com/osa030/crate/internal/app/bus"
	"github.com/osa030/crate/internal/app/cache"
	"github.com/osa030/crate/internal/app/catalog"
	"github.com/osa030/crate/internal/app/enrichment"
	"github.com/osa030/crate/internal/app/notification"
	"github.com/osa030/crate/internal/app/playback"
	"github.com/osa030/crate/internal/app/preview"
	"github.com/osa030/crate/internal/infra/config"
	"github.com/osa030/crate/internal/infra/content"
	"github.com/osa030/crate/internal/infra/logger"
	"github.com/osa030/crate/internal/infra/media"
	"github.com/osa030/crate/internal/infra/metrics"
	"github.com/osa030/crate/internal/infra/spotify"
	"github.com/osa030/crate/internal/infra/store"
)

var (
	app        = kingpin.New("crate-server", "crate record shop preview server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
	logFormat  = app.Flag("log-format", "Log format").Default(logger.FormatConsole).Enum(logger.FormatConsole, logger.FormatJSON)

	checkConfigCmd = app.Command("check-config", "Validate the config file and exit")
)

func init() {
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
		Format: *logFormat,
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	closer, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closer.Close()

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if command == checkConfigCmd.FullCommand() {
		fmt.Printf("config ok: providers=%d namespaces=%d\n", len(cfg.Catalog.Providers), len(cfg.Cache.Namespaces))
		return
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// components holds everything run wires together, in dependency order.
type components struct {
	cache    *cache.Manager
	events   *notification.Manager
	player   *playback.Controller
	pipeline *enrichment.Pipeline
	previews *preview.Service
	store    *store.Store
	mux      *http.ServeMux
}

// build wires the application from configuration.
func build(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*components, error) {
	c := &components{}

	c.cache = cache.New(cache.Config{
		GlobalMaxMemory: cfg.Cache.GlobalMaxMemory,
		SweepInterval:   cfg.Cache.SweepInterval(),
	})
	for name, ns := range cfg.Cache.Namespaces {
		c.cache.CreateNamespace(name, cache.NamespaceConfig{
			TTL:        ns.TTL(),
			MaxEntries: ns.MaxEntries,
			MaxMemory:  ns.MaxMemory,
		})
	}

	c.events = notification.NewManager()
	c.events.Subscribe(logEvent,
		notification.KindTracklistUpdated,
		notification.KindEnhancedTracklistAvailable,
		notification.KindContentDataUpdated,
	)

	factory := media.NewFactory(media.Config{
		ProbeTimeout:  cfg.Playback.ProbeTimeout(),
		PreviewLength: cfg.Playback.PreviewLength(),
	})
	c.player = playback.NewController(factory, bus.New(), playback.Config{
		GracePeriod:  cfg.Playback.GracePeriod(),
		PollInterval: cfg.Playback.PollInterval(),
	})

	var spotifyClient catalog.SpotifyClient
	if cfg.HasSpotifyCredentials() {
		sc, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			Market:       cfg.Spotify.Market,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create Spotify client")
		}
		spotifyClient = sc
	}
	chain, err := catalog.NewChainFromConfig(cfg, spotifyClient)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create catalog chain")
	}

	contentClient, err := content.New(content.Config{
		BaseURL: cfg.Content.BaseURL,
		Token:   cfg.Content.Token,
		Timeout: cfg.Content.Timeout(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create content client")
	}

	m := metrics.New(reg, c.cache)
	deps := enrichment.Deps{
		Cache:    c.cache,
		Events:   c.events,
		Catalog:  chain,
		Playback: c.player,
		Recorder: m,
	}
	if cfg.Enrichment.PersistViaContent {
		deps.Persister = contentClient
	}
	if cfg.Store.Path != "" {
		c.store, err = store.Open(cfg.Store.Path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open store")
		}
		deps.Saver = c.store
	}

	c.pipeline, err = enrichment.New(enrichment.Config{
		TrustEnhancedFlag: cfg.Enrichment.TrustEnhancedFlag,
		RequireCatalogID:  cfg.Enrichment.RequireCatalogID,
	}, deps)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create enrichment pipeline")
	}

	c.previews = preview.NewService(contentClient, c.cache, c.player, c.pipeline)

	var tracklists apiconnect.TracklistStore
	if c.store != nil {
		tracklists = c.store
	}

	c.mux = http.NewServeMux()
	c.mux.Handle(apiconnect.NewPlayerServiceHandler(apiconnect.NewPlayerService(c.player, c.previews)))
	c.mux.Handle(apiconnect.NewAdminServiceHandler(
		apiconnect.NewAdminService(c.cache, c.previews, tracklists),
		connect.WithInterceptors(apiconnect.NewAdminAuthInterceptor(cfg.Admin.Token)),
	))
	c.mux.Handle("/metrics", promhttp.Handler())

	return c, nil
}

// close releases components in reverse dependency order.
func (c *components) close() {
	c.previews.Close()
	c.pipeline.Close()
	c.player.Close()
	c.events.Close()
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			zlog.Error().Msgf("Failed to close store: %v", err)
		}
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := build(ctx, cfg, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer c.close()

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h2c.NewHandler(c.mux, &http2.Server{}),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.cache.Run(gctx)
	})
	g.Go(func() error {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server error")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zlog.Info().Msg("Shutting down...")

		c.player.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zlog.Error().Msgf("Failed to shutdown server: %v", err)
		}
		return nil
	})

	// Give the listener a moment before running startup hooks.
	select {
	case <-gctx.Done():
	case <-time.After(100 * time.Millisecond):
		executeHooks(cfg.Server.Hooks.OnStarted, "on_started")
	}

	err = g.Wait()
	zlog.Info().Msg("Server stopped")
	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func logEvent(seq uint64, e notification.Event) {
	switch ev := e.(type) {
	case notification.TracklistUpdated:
		zlog.Debug().Msgf("event: tracklist updated: seq=%d product=%s reason=%s tracks=%d", seq, ev.Key, ev.Reason, len(ev.Tracklist))
	case notification.EnhancedTracklistAvailable:
		zlog.Info().Msgf("event: enhanced tracklist available: seq=%d product=%s titles=%d artists=%d",
			seq, ev.Key, ev.EnhancementTypes.TitleCount, ev.EnhancementTypes.ArtistCount)
	case notification.ContentDataUpdated:
		zlog.Debug().Msgf("event: content data updated: seq=%d type=%s document=%s", seq, ev.Type, ev.DocumentID)
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
