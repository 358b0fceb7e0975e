package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	cdhttp "github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/adapter/http"
	cdnats "github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/adapter/nats"
	otelx "github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/adapter/otel"
	"github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/adapter/postgres"
	"github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/adapter/sse"
	"github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/adapter/ws"
	"github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/config"
	"github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/logger"
	"github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/port/changefeed"
	"github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/resilience"
	"github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/service"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"notify_source", cfg.Notify.Source,
		"log_level", cfg.Logging.Level,
	)

	ctx := context.Background()

	// --- Telemetry ---
	telemetryShutdown, err := otelx.Init(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	// --- Infrastructure ---
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	store := postgres.NewStore(pool)

	var feed changefeed.Feed
	switch cfg.Notify.Source {
	case "nats":
		natsFeed, err := cdnats.Connect(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = natsFeed.Close() }()
		feed = natsFeed
	default:
		feed = postgres.NewListener(cfg.Postgres.DSN, cfg.Notify.Channel)
	}

	// --- Broadcaster core ---
	metrics, err := otelx.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	registry := service.NewRegistry()
	if err := otelx.RegisterSubscriberGauge(registry.Len); err != nil {
		return fmt.Errorf("subscriber gauge: %w", err)
	}

	dispatcher := service.NewDispatcher(registry, metrics)
	backoff := resilience.NewBackoff(cfg.Listener.MinBackoff, cfg.Listener.MaxBackoff)
	listener := service.NewChangeListener(feed, store, dispatcher, backoff, metrics)

	listener.Start(ctx)
	defer listener.Stop()

	// --- HTTP ---
	handlers := &cdhttp.Handlers{Store: store}
	wsHandler := ws.NewHandler(registry, store)
	sseHandler := sse.NewHandler(registry, store)

	r := chi.NewRouter()

	// No global request timeout: /ws and /sse hold their connections open.
	r.Use(cdhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(cdhttp.RequestID)
	r.Use(cdhttp.Logger)
	r.Use(otelx.HTTPMiddleware(cfg.Logging.Service))
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/health", healthHandler(cfg, registry))
	r.Get("/ws", wsHandler.ServeHTTP)
	r.Get("/sse", sseHandler.ServeHTTP)

	cdhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// Read/Write timeouts stay zero: subscriber connections are
		// long-lived push streams.
		IdleTimeout: 120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	listener.Stop()

	// Close live subscriber connections so Shutdown is not held open by
	// long-lived push streams.
	for _, e := range registry.Snapshot() {
		registry.Deregister(e.Handle)
		e.Sub.Close()
	}

	if err := telemetryShutdown(shutdownCtx); err != nil {
		slog.Error("telemetry shutdown failed", "error", err)
	}

	return srv.Shutdown(shutdownCtx)
}

// healthHandler returns an http.HandlerFunc that reports service health.
func healthHandler(cfg *config.Config, registry *service.Registry) http.HandlerFunc {
	type healthStatus struct {
		Status      string `json:"status"`
		Source      string `json:"notify_source"`
		Subscribers int    `json:"subscribers"`
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		status := healthStatus{
			Status:      "ok",
			Source:      cfg.Notify.Source,
			Subscribers: registry.Len(),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status)
	}
}
