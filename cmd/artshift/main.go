// Package main is the entry point for the artshift image generation
// gateway. It loads configuration, connects to services, sets up routing,
// and starts the HTTP server with graceful shutdown support.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"artshift/internal/ai"
	"artshift/internal/cache"
	"artshift/internal/config"
	"artshift/internal/database"
	"artshift/internal/handlers"
	"artshift/internal/metrics"
	"artshift/internal/middleware"
	"artshift/internal/router"
	"artshift/internal/session"
	"artshift/internal/storage"
	"artshift/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured logger: text in development, JSON everywhere else.
	var handler slog.Handler
	if cfg.IsDev() {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(handler))

	slog.Info("configuration loaded",
		"env", cfg.Env,
		"addr", cfg.Addr(),
	)

	db, err := database.Connect(cfg.DSN())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Valkey holds the sessions issued by the account service.
	valkeyClient, err := cache.ConnectValkey(cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword)
	if err != nil {
		slog.Error("failed to connect to valkey", "error", err)
		os.Exit(1)
	}
	defer valkeyClient.Close()

	sessionStore := session.NewStore(valkeyClient)

	profileStore := store.NewProfileStore(db)
	generationStore := store.NewGenerationStore(db)

	collector := metrics.NewCollector("artshift")

	registry := ai.NewRegistry(ai.Config{
		OpenAI: ai.OpenAIConfig{
			ProviderConfig: ai.ProviderConfig{BaseURL: cfg.OpenAIBaseURL, Model: cfg.OpenAIModel, Timeout: cfg.ProviderTimeout},
			Strategy:       ai.OpenAIStrategy(cfg.OpenAIStrategy),
		},
		Stability:  ai.ProviderConfig{BaseURL: cfg.StabilityBaseURL, Model: cfg.StabilityEngine, Timeout: cfg.ProviderTimeout},
		Midjourney: ai.ProviderConfig{BaseURL: cfg.MidjourneyBaseURL, Timeout: cfg.ProviderTimeout},
		Leonardo: ai.LeonardoConfig{
			ProviderConfig: ai.ProviderConfig{BaseURL: cfg.LeonardoBaseURL, Model: cfg.LeonardoModel, Timeout: cfg.ProviderTimeout},
			PollInterval:   cfg.LeonardoPollInterval,
			MaxAttempts:    cfg.LeonardoMaxAttempts,
		},
	})
	keys := ai.StaticKeys{
		ai.OpenAI:     cfg.OpenAIKey,
		ai.Stability:  cfg.StabilityKey,
		ai.Midjourney: cfg.MidjourneyKey,
		ai.Leonardo:   cfg.LeonardoKey,
	}

	gatewayOpts := []ai.GatewayOption{ai.WithObserver(collector)}

	// S3 storage is optional; without it byte results are returned as data URLs.
	var objects handlers.ObjectStore
	storageClient, err := storage.New(storage.Config{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3BucketPublic,
		PublicURL: cfg.S3PublicURL,
	})
	if err != nil {
		slog.Error("failed to initialize S3 storage", "error", err)
		os.Exit(1)
	}
	if storageClient != nil {
		gatewayOpts = append(gatewayOpts, ai.WithResultSink(storageClient))
		objects = storageClient
		slog.Info("s3 storage connected", "endpoint", cfg.S3Endpoint, "bucket", cfg.S3BucketPublic)
	} else {
		slog.Warn("s3 storage not configured, byte results are returned as data URLs")
	}

	if cfg.ModerationEnabled {
		if cfg.OpenAIKey == "" {
			slog.Warn("moderation enabled but OPENAI_API_KEY is empty, prompts are not moderated")
		} else {
			gatewayOpts = append(gatewayOpts, ai.WithModerator(ai.NewOpenAIModerator(cfg.OpenAIKey, cfg.OpenAIBaseURL)))
		}
	}

	gateway := ai.NewGateway(registry, keys, gatewayOpts...)

	slog.Info("ai providers initialized",
		"available", registry.Available(),
		"default_keys", keys.String(),
		"openai_strategy", cfg.OpenAIStrategy,
	)

	generate := handlers.NewGenerate(gateway, profileStore, handlers.GenerateOptions{
		FreeGenerations: cfg.FreeGenerations,
		MaxUploadBytes:  cfg.MaxUploadBytes(),
		History:         generationStore,
		Usage:           collector,
	})

	limiter := middleware.NewRateLimiter(cfg.GenerateRateLimit, time.Minute)
	limiter.TrustProxies(cfg.TrustedProxies...)
	defer limiter.Stop()

	r := router.New(router.Deps{
		Sessions:    sessionStore,
		Generate:    generate,
		Download:    handlers.NewDownload(nil, objects),
		Metrics:     collector.Handler(),
		HTTPMetrics: collector,
		RateLimiter: limiter,
		CORSOrigins: cfg.CORSAllowedOrigins,
	})

	// WriteTimeout must outlast the slowest provider: Leonardo polls for up
	// to LEONARDO_MAX_ATTEMPTS x LEONARDO_POLL_INTERVAL (60s by default).
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown: wait for SIGINT or SIGTERM, then drain connections.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// Let pending usage increments land before the pool closes.
	generate.Wait()

	slog.Info("server stopped gracefully")
}
