package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/keonramses/cinephage/internal/api"
	"github.com/keonramses/cinephage/internal/config"
	"github.com/keonramses/cinephage/internal/indexer"
	"github.com/keonramses/cinephage/internal/indexer/ratelimit"
	"github.com/keonramses/cinephage/internal/indexer/search"
	"github.com/keonramses/cinephage/internal/indexer/status"
	"github.com/keonramses/cinephage/internal/livetv"
	"github.com/keonramses/cinephage/internal/livetv/iptvorg"
	"github.com/keonramses/cinephage/internal/livetv/m3u"
	"github.com/keonramses/cinephage/internal/livetv/stalker"
	"github.com/keonramses/cinephage/internal/livetv/xstream"
	"github.com/keonramses/cinephage/internal/logger"
	"github.com/keonramses/cinephage/internal/metadata"
	"github.com/keonramses/cinephage/internal/scheduler"
	"github.com/keonramses/cinephage/internal/ssrf"
	"github.com/keonramses/cinephage/internal/usenet"
	"github.com/keonramses/cinephage/internal/usenet/nntp"
	"github.com/keonramses/cinephage/internal/usenet/yenc"
	"github.com/keonramses/cinephage/internal/websocket"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer log.Close()

	log.Info().
		Str("logLevel", cfg.Logging.Level).
		Msg("starting cinephage")

	hub := websocket.NewHub()
	go hub.Run()

	// Search stack
	registry := indexer.NewRegistry()
	tracker := status.NewTracker(log.Logger)
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		QueryLimit:  cfg.Search.QueryLimit,
		QueryPeriod: cfg.Search.QueryPeriod,
	}, log.Logger)
	hostLimiter := ratelimit.NewHostLimiter(ratelimit.HostConfig{
		RequestsPerSecond: cfg.Search.HostRatePerS,
		Burst:             cfg.Search.HostRateBurst,
	}, log.Logger)

	orchestrator := search.NewOrchestrator(registry, tracker, log.Logger)
	orchestrator.SetRateLimiters(limiter, hostLimiter)
	orchestrator.SetBroadcaster(hub)
	orchestrator.SetReleaseCache(search.NewReleaseCache(search.CacheConfig{
		TTL:     cfg.Search.CacheTTL,
		MaxSize: cfg.Search.CacheMaxSize,
	}, log.Logger))

	if cfg.Metadata.APIKey != "" {
		orchestrator.SetMetadataClient(metadata.NewClient(metadata.Config{
			BaseURL: cfg.Metadata.BaseURL,
			APIKey:  cfg.Metadata.APIKey,
			Timeout: cfg.Metadata.Timeout,
		}, log.Logger))
	} else {
		log.Warn().Msg("no TMDB API key configured, ID enrichment disabled")
	}

	// Live TV stack
	guard := ssrf.NewGuard(log.Logger)
	guard.AllowPrivate = cfg.LiveTV.AllowPrivateHosts

	urlCache := livetv.NewURLCache(livetv.URLCacheConfig{
		MaxEntries: cfg.LiveTV.URLCacheMaxEntries,
		HLSTTL:     cfg.LiveTV.URLCacheHLSTTL,
		DirectTTL:  cfg.LiveTV.URLCacheDirectTTL,
	}, log.Logger)

	store := livetv.NewMemoryStore()
	resolver := livetv.NewResolver(store, store, urlCache, guard, log.Logger)

	stalkerPool := stalker.NewClientPool(stalker.DefaultPoolConfig(), log.Logger)
	resolver.RegisterProvider(stalker.NewProvider(stalkerPool, log.Logger))
	resolver.RegisterInvalidator(livetv.ProviderStalker, stalkerPool)
	resolver.RegisterProvider(xstream.NewProvider(log.Logger))
	resolver.RegisterProvider(m3u.NewProvider(log.Logger))
	resolver.RegisterProvider(iptvorg.NewProvider(log.Logger))

	direct := livetv.NewDirectStream(resolver, guard, log.Logger)
	hlsConverter := livetv.NewHLSConverter(resolver, guard, log.Logger)

	// Usenet stack
	providerConfigs := make([]nntp.ProviderConfig, 0, len(cfg.Usenet.Providers))
	for _, p := range cfg.Usenet.Providers {
		providerConfigs = append(providerConfigs, nntp.ProviderConfig{
			Name:           p.Name,
			Host:           p.Host,
			Port:           p.Port,
			TLS:            p.TLS,
			Username:       p.Username,
			Password:       p.Password,
			MaxConnections: p.MaxConnections,
			Priority:       p.Priority,
		})
	}
	decoder := yenc.NewDecoder(log.Logger)
	decoder.StrictCRC = cfg.Usenet.StrictCRC
	nntpManager := nntp.NewManager(providerConfigs, decoder, log.Logger)

	mounts := usenet.NewMemoryMounts()
	usenetService := usenet.NewService(mounts, nntpManager, log.Logger)

	// Scheduler drives the cache sweepers
	sched, err := scheduler.New(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler")
	}
	if err := sched.RegisterTask(scheduler.TaskConfig{
		ID:          "urlcache-sweep",
		Name:        "URL Cache Sweep",
		Description: "Evicts expired live TV stream URLs",
		Interval:    time.Minute,
		Func: func(ctx context.Context) error {
			urlCache.Sweep()
			return nil
		},
	}); err != nil {
		log.Error().Err(err).Msg("failed to register task")
	}
	if err := sched.Start(); err != nil {
		log.Error().Err(err).Msg("failed to start scheduler")
	}

	server := api.NewServer(api.Deps{
		Hub:          hub,
		Orchestrator: orchestrator,
		Tracker:      tracker,
		Resolver:     resolver,
		Direct:       direct,
		HLS:          hlsConverter,
		Guard:        guard,
		Usenet:       usenetService,
		Scheduler:    sched,
	}, cfg, log.Logger)

	go func() {
		if err := server.Start(cfg.Server.Address()); err != nil {
			log.Info().Msg("server stopped")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info().Msg("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	if err := sched.Stop(); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown error")
	}
	nntpManager.Close()

	log.Info().Msg("server stopped")
}
