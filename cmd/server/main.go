package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tilecache/internal/platform/config"
	"tilecache/internal/platform/httpserver"
	"tilecache/internal/platform/logger"
	httpmetrics "tilecache/internal/platform/metrics"
	redisclient "tilecache/internal/platform/redis"
	"tilecache/internal/tilecache/handler"
	tcmetrics "tilecache/internal/tilecache/metrics"
	"tilecache/internal/tilecache/registry"
	"tilecache/internal/tilecache/service"
	dErrors "tilecache/pkg/domain-errors"
	"tilecache/pkg/platform/httputil"
	"tilecache/pkg/platform/middleware/metadata"
	"tilecache/pkg/platform/middleware/requesttime"
)

const shutdownTimeout = 10 * time.Second

// main wires the tier backend, the session registry and the HTTP router, and
// keeps the server lifecycle small. Cache semantics live in internal/tilecache.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tiers, health, closeTiers, err := buildTiers(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeTiers()

	reg := registry.New(tiers,
		registry.WithLogger(log),
		registry.WithMetrics(tcmetrics.New()),
		registry.WithCapacity(cfg.Sessions.Capacity),
		registry.WithIdleTTL(cfg.Sessions.IdleTTL),
		registry.WithSessionOptions(service.WithDelays(service.Delays{
			Prompt:  cfg.Delays.Prompt,
			Restore: cfg.Delays.Restore,
			Evict:   cfg.Delays.Evict,
		})),
	)
	defer reg.Close()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer, metadata.RequestID, requesttime.Middleware, httpmetrics.New().Middleware)
	r.Get("/health", healthHandler(health))
	r.Handle("/metrics", promhttp.Handler())
	handler.New(reg, handler.Defaults{
		MaxSectionsToStore: cfg.Defaults.MaxSectionsToStore,
		StaleMinutes:       cfg.Defaults.StaleMinutes,
		AssumeConsent:      cfg.Defaults.AssumeConsent,
	}, log).Register(r)

	srv := httpserver.New(cfg.Addr, r)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting tilecache", "addr", cfg.Addr, "backend", cfg.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildTiers returns the tier source for the configured backend, a health
// check for it and a release func.
func buildTiers(ctx context.Context, cfg config.Config) (registry.TierSource, func(context.Context) error, func(), error) {
	if cfg.Backend != config.BackendRedis {
		return registry.NewMemoryTiers(), func(context.Context) error { return nil }, func() {}, nil
	}
	client, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, nil, err
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			slog.Warn("redis close failed", "error", err)
		}
	}
	return registry.NewRedisTiers(client.Client, cfg.Sessions.IdleTTL), client.Health, closeFn, nil
}

func healthHandler(check func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := check(r.Context()); err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "tier backend unreachable"))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
