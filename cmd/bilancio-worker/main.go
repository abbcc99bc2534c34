package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/cli"
	applog "bilancio/internal/log"
	"bilancio/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		slog.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg.LogLevel).WithComponent(applog.ComponentWorker)
	logger.Info("Starting bilancio-worker")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required by the worker")
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, nil)

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize reports", applog.FieldError, err)
		os.Exit(1)
	}
	defer app.Close()

	repo, err := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", applog.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	w := worker.NewRecomputeWorker(app.Reports, repo, logger)

	// Snapshots from a previous run may be stale if the logs changed while
	// the worker was down.
	logger.Info("Performing startup recompute")
	if err := w.StartupRecompute(ctx); err != nil {
		logger.Error("Startup recompute failed", applog.FieldError, err)
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	go func() {
		if err := client.ConsumeRecompute(runCtx, w.HandleRecomputeMessage); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", applog.FieldError, err)
		}
		stop()
	}()

	if cfg.SnapshotRetention > 0 && cfg.PruneInterval > 0 {
		go prune(runCtx, w, cfg.PruneInterval, cfg.SnapshotRetention, logger)
	} else {
		logger.Info("Snapshot pruning disabled")
	}

	<-runCtx.Done()
	if ctx.Err() == nil {
		// The consumer stopped on its own; nothing else keeps the worker useful.
		logger.Error("Worker stopping after consumer exit")
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}

func prune(ctx context.Context, w *worker.RecomputeWorker, every, age time.Duration, logger *applog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.PruneSnapshots(ctx, age); err != nil {
				logger.Error("Periodic pruning failed", applog.FieldError, err)
			}
		}
	}
}
