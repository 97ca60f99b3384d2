// Command students-api serves the student registry: students are read from
// the external user directory when it answers and from the local SQLite
// database when it does not; courses and enrollments are local only.
//
// Startup order: config, logger, database, directory client + metrics,
// result cache, reconciliation service (and optional seeding), routes,
// server. SIGINT/SIGTERM drains in-flight requests before exiting.
//
//	CONFIG_PATH=config/local.yaml go run ./cmd/students-api
//	go run ./cmd/students-api --config=config/local.yaml
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/aanand-mishra/students-api/internal/cache"
	"github.com/aanand-mishra/students-api/internal/config"
	"github.com/aanand-mishra/students-api/internal/directory"
	"github.com/aanand-mishra/students-api/internal/http/middleware"
	"github.com/aanand-mishra/students-api/internal/http/router"
	"github.com/aanand-mishra/students-api/internal/reconcile"
	"github.com/aanand-mishra/students-api/internal/seed"
	"github.com/aanand-mishra/students-api/internal/storage/sqlite"
)

func main() {
	// ── 1. Config ─────────────────────────────────────────────────────────
	cfg := config.MustLoad()

	// ── 2. Logger ─────────────────────────────────────────────────────────
	// Handlers log through the slog package functions, so the logger is
	// also installed as the default one.
	log := setupLogger(cfg.Env, os.Stdout)
	slog.SetDefault(log)

	log.Info("starting students-api",
		slog.String("env", cfg.Env),
		slog.String("version", "1.0.0"),
	)

	// ── 3. Local Database ─────────────────────────────────────────────────
	storage, err := sqlite.New(cfg)
	if err != nil {
		log.Error("failed to initialise storage",
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer storage.Close()

	log.Info("storage initialised",
		slog.String("path", cfg.StoragePath))

	// ── 4. External Directory Client ──────────────────────────────────────
	// A private registry keeps /metrics limited to what we register here.
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	remote := directory.New(cfg.Remote,
		directory.WithLogger(log),
		directory.WithMetrics(directory.NewMetrics(registry)),
	)

	log.Info("directory client configured",
		slog.String("base_url", cfg.Remote.BaseURL),
		slog.String("resource_path", cfg.Remote.ResourcePath),
		slog.Uint64("max_attempts", uint64(cfg.Remote.MaxAttempts)),
	)

	// ── 5. Result Cache ───────────────────────────────────────────────────
	store, closeStore, err := newCacheStore(cfg.Cache)
	if err != nil {
		log.Error("failed to initialise cache",
			slog.String("backend", cfg.Cache.Backend),
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeStore()

	results := cache.New(store, log)

	log.Info("cache initialised",
		slog.String("backend", cfg.Cache.Backend),
		slog.Bool("invalidate_on_write", cfg.Cache.InvalidateOnWrite))

	// ── 6. Reconciliation Service (+ optional seeding) ────────────────────
	opts := []reconcile.Option{reconcile.WithLogger(log)}
	if cfg.Cache.InvalidateOnWrite {
		opts = append(opts, reconcile.WithInvalidateOnWrite())
	}
	students := reconcile.New(remote, storage, results, opts...)

	if cfg.Seed {
		if _, err := seed.New(storage, students, seed.WithLogger(log)).Run(context.Background()); err != nil {
			// Sample data is a convenience; the API works without it.
			log.Warn("seeding failed", slog.String("error", err.Error()))
		}
	}

	// ── 7. Routes + HTTP Server ───────────────────────────────────────────
	handler := router.New(router.Deps{
		Students: students,
		Courses:  storage,
		Gatherer: registry,
		Log:      log,
	})

	// WriteTimeout must leave room for the directory's worst case:
	// every attempt timing out plus the backoff between them.
	server := &http.Server{
		Addr:         cfg.HTTPServer.Addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: time.Duration(cfg.Remote.MaxAttempts)*(cfg.Remote.Timeout+cfg.Remote.MaxBackoff) + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server started", slog.String("address", cfg.HTTPServer.Addr))

		if err := server.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			log.Error("server encountered an error",
				slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// ── 8. Wait for Shutdown Signal ───────────────────────────────────────
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	<-done

	log.Info("shutdown signal received, stopping server...")

	// ── 9. Graceful Shutdown ──────────────────────────────────────────────
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("failed to shutdown server gracefully",
			slog.String("error", err.Error()))
		return
	}

	log.Info("server stopped gracefully")
}

// newCacheStore builds the configured cache backend. The returned func
// releases its resources.
func newCacheStore(cfg config.Cache) (cache.Store, func(), error) {
	if cfg.Backend != config.CacheBackendRedis {
		return cache.NewMemory(), func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rdb, err := cache.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	return cache.NewRedis(rdb, cfg.Redis.Prefix), func() { _ = rdb.Close() }, nil
}

// setupLogger picks the handler for env:
//
//	dev (and unknown)  text, DEBUG
//	staging            JSON, DEBUG
//	prod               JSON, INFO
//
// The handler is wrapped so records logged with a request context carry
// the request_id attribute.
func setupLogger(env string, w io.Writer) *slog.Logger {
	var h slog.Handler
	switch env {
	case "prod":
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	case "staging":
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	default: // "dev" and anything unrecognised
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	return slog.New(middleware.NewLogHandler(h))
}
