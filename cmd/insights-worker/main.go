package main

import (
	"context"
	"errors"
	"os"
	"time"

	"insights/internal/backend"
	"insights/internal/cli"
	"insights/internal/log"
	"insights/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL")).WithComponent(log.ComponentWorker)
	logger.Info("Starting insights-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the export worker")
		os.Exit(1)
	}

	result, backendCfg := cli.InitBackend(context.Background(), logger, cfg)
	if result.AMQP == nil {
		logger.Error("AMQP client unavailable, cannot consume export requests", "queue", cfg.AMQPQueue)
		_ = result.Cleanup()
		os.Exit(1)
	}

	exporter, err := backend.NewFactory(logger).CreateExporter(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize exporter", "error", err, "export_backend", backendCfg.Export)
		_ = result.Cleanup()
		os.Exit(1)
	}

	exportWorker := worker.NewExportWorker(result.Reports, exporter).WithLogger(logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	go func() {
		err := result.AMQP.ConsumeExportRequests(ctx, exportWorker.HandleExportRequest)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Export consumption failed", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("Consuming export requests",
		"queue", cfg.AMQPQueue,
		"export_backend", backendCfg.Export)

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
