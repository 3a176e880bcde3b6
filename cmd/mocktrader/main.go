package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/alert"
	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/catalog"
	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/config"
	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/domain"
	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/engine"
	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/gateway"
	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/handler"
	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/hub"
	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/service"
	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/store"
	"github.com/commerceday/vageesha-stock-exchange-sub000/internal/upstream"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	instruments, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Error("failed to load catalog", slog.String("error", err.Error()))
		os.Exit(1)
	}
	tradable, indices := catalog.Split(instruments)
	logger.Info("catalog loaded",
		slog.Int("tradable", tradable.Len()),
		slog.Int("indices", indices.Len()),
	)

	// Gateway side: upstream provider behind two batch services.
	var provider upstream.Provider
	switch cfg.QuoteProvider {
	case config.ProviderHTTP:
		provider = upstream.NewHTTPProvider(cfg.UpstreamBaseURL, cfg.UpstreamSymbolSuffix, cfg.UpstreamTimeout)
	default:
		provider = upstream.NewSyntheticProvider(instruments, cfg.SyntheticVolatility, uint64(time.Now().UnixNano()))
	}
	quoteSvc := service.NewQuoteService(provider, cfg.StockBatchMax, cfg.UpstreamConcurrency, time.Now, logger)
	indexSvc := service.NewQuoteService(provider, cfg.IndexBatchMax, cfg.UpstreamConcurrency, time.Now, logger)

	// Optional Redis snapshot cache.
	var cache *store.SnapshotCache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		cache = store.NewSnapshotCache(rdb, cfg.SnapshotTTL)
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := cache.Ping(pingCtx)
		pingCancel()
		if err != nil {
			logger.Error("failed to connect to redis",
				slog.String("addr", cfg.RedisAddr),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
		logger.Info("snapshot cache enabled", slog.String("addr", cfg.RedisAddr))
	}

	notifier := alert.NewNotifier(cfg.AlertWebhookURL, cfg.AlertTimeout, logger)

	// Engine side: one poller per loop, each with its own reconciler,
	// history and hub.
	gatewayBase := strings.TrimRight(cfg.GatewayURL, "/")
	loops := []struct {
		name     string
		catalog  *domain.Catalog
		path     string
		interval time.Duration
		maxBatch int
	}{
		{"stocks", tradable, "/api/quotes", cfg.StockPollInterval, cfg.StockBatchMax},
		{"indices", indices, "/api/indices", cfg.IndexPollInterval, cfg.IndexBatchMax},
	}

	var (
		pollers []*engine.Poller
		hubs    []*hub.Hub
		markets = make(map[string]handler.Market, len(loops))
	)
	for _, l := range loops {
		if l.catalog.Len() == 0 {
			logger.Warn("loop has no instruments, not starting", slog.String("loop", l.name))
			continue
		}
		client := gateway.NewClient(gatewayBase+l.path, cfg.GatewayToken, l.maxBatch, cfg.BatchDelay, cfg.GatewayTimeout)
		rec := engine.NewReconciler(l.name, l.catalog, store.NewHistoryStore(cfg.HistoryCapacity), time.Now())
		h := hub.New(logger.With(slog.String("loop", l.name)))

		publishers := []engine.Publisher{h}
		if cache != nil {
			publishers = append(publishers, cache)
		}
		p := engine.NewPoller(l.name, l.interval, client, rec, logger, publishers...)
		p.SetAlertDispatcher(notifier)

		pollers = append(pollers, p)
		hubs = append(hubs, h)
		markets[l.name] = handler.Market{Source: p, Hub: h}
	}

	var reader handler.SnapshotReader
	if cache != nil {
		reader = cache
	}
	router := handler.NewRouter(quoteSvc, indexSvc, markets, reader, cfg.GatewayToken, logger)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Listen before the pollers start so their first tick can reach the
	// in-process gateway.
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("failed to listen", slog.String("addr", addr), slog.String("error", err.Error()))
		os.Exit(1)
	}
	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, p := range pollers {
		p.Start(ctx)
		logger.Info("poller started", slog.String("loop", p.Name()))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Stop the pollers first so no tick runs against a closing server.
	for _, p := range pollers {
		p.Stop()
	}
	cancel()
	for _, h := range hubs {
		h.Close()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	notifier.Wait()
	if cache != nil {
		if err := cache.Close(); err != nil {
			logger.Warn("redis close error", slog.String("error", err.Error()))
		}
	}

	logger.Info("server stopped")
}
