package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sungwon/campaign-dispatch/internal/api"
	"github.com/sungwon/campaign-dispatch/internal/auth"
	"github.com/sungwon/campaign-dispatch/internal/bootstrap"
	"github.com/sungwon/campaign-dispatch/internal/config"
	"github.com/sungwon/campaign-dispatch/internal/delivery"
	"github.com/sungwon/campaign-dispatch/internal/provider"
	"github.com/sungwon/campaign-dispatch/internal/queue"
	"github.com/sungwon/campaign-dispatch/internal/storage"
	"github.com/sungwon/campaign-dispatch/internal/tracking"
)

func main() {
	configDir := flag.String("config", "config", "directory containing config.yaml")
	genKey := flag.Bool("gen-api-key", false, "print a new operator API key and exit")
	seedDemo := flag.Int("seed-demo", 0, "seed a demo campaign with this many recipients on startup")
	flag.Parse()

	if *genKey {
		key, err := auth.GenerateAPIKey()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to generate API key: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(key)
		return
	}

	// Optional .env for local development
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := bootstrap.Logger(cfg.Logging)
	log.Info().Msg("starting API server")

	// Connect to database
	ctx := context.Background()
	db, err := storage.NewDB(
		ctx,
		cfg.Database.URL,
		cfg.Database.PoolMin,
		cfg.Database.PoolMax,
		cfg.Database.ConnectTimeout,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	log.Info().Msg("database connection established")
	if err := db.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		log.Warn().Err(err).Msg("database pool metrics unavailable")
	}
	queries := db.Queries()

	if *seedDemo > 0 {
		if _, err := bootstrap.SeedDemoCampaign(ctx, db, log, bootstrap.DemoRecipients(*seedDemo)); err != nil {
			log.Fatal().Err(err).Msg("failed to seed demo campaign")
		}
	}

	arch, err := bootstrap.Archive(cfg.Archive, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open archive")
	}
	dispatcher := bootstrap.NewDispatcher(cfg, queries, arch, log)

	// Dispatch inline, or hand requests to the dispatch worker
	var deliverySvc delivery.Service
	if cfg.API.AsyncDispatch {
		enqueuer, _, err := queue.NewQueue(bootstrap.QueueConfig(cfg.Queue), nil, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create dispatch queue")
		}
		deliverySvc = delivery.NewAsyncService(dispatcher, enqueuer, log)
		log.Info().Str("queue", cfg.Queue.Type).Msg("async dispatch enabled")
	} else {
		deliverySvc = delivery.NewSyncService(dispatcher, log)
	}

	// Background transport health for /readyz
	var transportStatus api.TransportStatus
	transport, err := bootstrap.Transport(cfg.Provider)(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("transport health checks disabled")
	} else {
		checker := provider.NewHealthChecker(transport)
		checker.Start()
		defer func() {
			checker.Stop()
			if c, ok := transport.(io.Closer); ok {
				_ = c.Close()
			}
		}()
		transportStatus = checker
	}

	deps := api.Dependencies{
		Delivery:        deliverySvc,
		Campaigns:       dispatcher,
		Tracking:        tracking.NewService(queries, cfg.Tracking.OpenDedupWindow, log),
		Reports:         queries,
		Archive:         arch,
		DB:              db,
		Transport:       transportStatus,
		TestSendLimiter: newTestSendLimiter(ctx, cfg, log),
		APIKeys:         cfg.API.APIKeys,
		AllowedOrigins:  cfg.API.AllowedOrigins,
	}
	if err := auth.ValidateKeys(deps.APIKeys); err != nil {
		log.Fatal().Err(err).Msg("invalid api.api_keys")
	}
	if len(deps.APIKeys) == 0 {
		log.Warn().Msg("no api.api_keys configured; operator endpoints are unauthenticated")
	}
	for name, key := range deps.APIKeys {
		log.Info().Str("operator", name).Str("key_fingerprint", auth.Fingerprint(key)).Msg("operator key loaded")
	}

	router := api.NewRouter(deps, log)

	// Configure HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("API server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down server")

	// Graceful shutdown with 30-second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// newTestSendLimiter connects the test-send limiter to the queue's Redis.
// Without Redis the limiter lets every request through.
func newTestSendLimiter(ctx context.Context, cfg *config.Config, log zerolog.Logger) *auth.RateLimiter {
	if cfg.API.TestSendLimit <= 0 {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Queue.RedisAddr,
		Password: cfg.Queue.RedisPassword,
		DB:       cfg.Queue.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Queue.RedisAddr).Msg("redis unavailable; test sends are not rate limited")
		_ = client.Close()
		return nil
	}

	return auth.NewRateLimiter(client, "test-send", auth.RateLimitConfig{
		Limit:  cfg.API.TestSendLimit,
		Window: cfg.API.TestSendWindow,
	})
}
