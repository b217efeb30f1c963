// PromptBoost - prompt enhancement server
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

	"github.com/ashureev/promptboost/internal/api"
	"github.com/ashureev/promptboost/internal/config"
	"github.com/ashureev/promptboost/internal/events"
	"github.com/ashureev/promptboost/internal/generation"
	"github.com/ashureev/promptboost/internal/identity"
	"github.com/ashureev/promptboost/internal/middleware"
	"github.com/ashureev/promptboost/internal/observability"
	"github.com/ashureev/promptboost/internal/orchestrator"
	"github.com/ashureev/promptboost/internal/quality"
	"github.com/ashureev/promptboost/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "postgres", cfg.UsePostgres())

	repo, err := openStore(cfg)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	gateway := buildGateway(cfg, logger)

	// The classifier is optional; without one every candidate is accepted.
	var gate quality.Gate = quality.AlwaysAccept
	if cfg.QualityAddr != "" {
		grpcGate, err := quality.DialGRPC(quality.DefaultGRPCClientConfig(cfg.QualityAddr), logger)
		if err != nil {
			slog.Warn("Quality classifier unavailable, accepting all candidates", "error", err)
		} else {
			defer grpcGate.Close()
			gate = grpcGate
		}
	} else {
		slog.Info("Quality classifier disabled (QUALITY_ADDR not set)")
	}

	orch := orchestrator.New(repo, gateway, gate, metrics, logger, orchestrator.Options{
		GenerationRetries: cfg.GenerationRetries,
		RequestTimeout:    cfg.RequestTimeout,
	})

	hub := events.NewHub()
	baseHandler := api.NewHandler(orch, repo, hub, metrics, logger)
	enhanceHandler := api.NewEnhanceHandler(baseHandler)
	ledgerHandler := api.NewLedgerHandler(baseHandler)
	healthHandler := api.NewHealthHandler(repo)
	wsHandler := events.NewWebSocketHandler(hub, cfg.FrontendURL, cfg.IsDevelopment())

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(allowedOrigins(cfg)))

	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(identity.Middleware(cfg.IsDevelopment()))
		healthHandler.RegisterHealth(r)
		enhanceHandler.RegisterRoutes(r)
		ledgerHandler.RegisterRoutes(r)
		r.Get("/events", wsHandler.ServeHTTP)
	})

	// The events stream is long lived, so there is no WriteTimeout.
	// Enhance requests are bounded by REQUEST_TIMEOUT inside the orchestrator.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

func openStore(cfg *config.Config) (store.Repository, error) {
	if cfg.UsePostgres() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return store.NewPostgres(ctx, cfg.DatabaseURL)
	}
	return store.NewSQLite(cfg.DBPath)
}

// buildGateway chains the primary and optional fallback providers behind
// one rate limiter.
func buildGateway(cfg *config.Config, logger *slog.Logger) generation.Gateway {
	providers := []generation.NamedGateway{{
		Name:    cfg.Generation.Model,
		Gateway: generation.NewOpenAIProvider(openAIConfig(cfg.Generation), logger),
	}}
	if cfg.FallbackGeneration.Enabled() {
		providers = append(providers, generation.NamedGateway{
			Name:    cfg.FallbackGeneration.Model,
			Gateway: generation.NewOpenAIProvider(openAIConfig(cfg.FallbackGeneration), logger),
		})
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.GenerationRPS), max(1, int(cfg.GenerationRPS)))
	return generation.RateLimited(generation.NewChain(logger, providers...), limiter)
}

func openAIConfig(p config.ProviderConfig) generation.OpenAIConfig {
	return generation.OpenAIConfig{
		APIKey:      p.APIKey,
		BaseURL:     p.BaseURL,
		Model:       p.Model,
		Temperature: float32(p.Temperature),
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.IsDevelopment() || cfg.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}
