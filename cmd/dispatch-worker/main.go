package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/sungwon/campaign-dispatch/internal/bootstrap"
	"github.com/sungwon/campaign-dispatch/internal/config"
	"github.com/sungwon/campaign-dispatch/internal/queue"
	"github.com/sungwon/campaign-dispatch/internal/storage"
	"github.com/sungwon/campaign-dispatch/internal/worker"
)

func main() {
	configDir := flag.String("config", "config", "directory containing config.yaml")
	noQueue := flag.Bool("scheduler-only", false, "only run scheduled campaigns; do not consume the dispatch queue")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := bootstrap.Logger(cfg.Logging)
	log.Info().Msg("starting dispatch worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	db, err := storage.NewDB(ctx, cfg.Database.URL, cfg.Database.PoolMin, cfg.Database.PoolMax, cfg.Database.ConnectTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	arch, err := bootstrap.Archive(cfg.Archive, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open archive")
	}
	dispatcher := bootstrap.NewDispatcher(cfg, db.Queries(), arch, log)

	// Consume dispatch requests published by the API server.
	var dequeuer queue.Dequeuer
	if !*noQueue {
		qcfg := bootstrap.QueueConfig(cfg.Queue)
		_, dequeuer, err = queue.NewQueue(qcfg, worker.NewHandler(dispatcher, log), log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create dispatch queue")
		}
		if err := dequeuer.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start queue consumer")
		}
		log.Info().
			Str("type", qcfg.Type).
			Int("workers", qcfg.WorkerCount).
			Msg("queue consumer started")
	}

	// Dispatch scheduled campaigns as they come due.
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		dispatcher.RunScheduler(ctx, cfg.Dispatch.ScheduleInterval)
	}()

	// Wait for interrupt signal for graceful shutdown.
	<-ctx.Done()
	log.Info().Msg("shutting down dispatch worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.ShutdownTimeout)
	defer cancel()

	if dequeuer != nil {
		if err := dequeuer.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("queue consumer did not stop cleanly")
		}
	}
	select {
	case <-schedulerDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("scheduler did not stop before shutdown timeout")
	}

	log.Info().Msg("dispatch worker stopped")
}
