package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"insights/internal/cli"
	apphttp "insights/internal/http"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	result, backendCfg := cli.InitBackend(context.Background(), logger, cfg)

	deps := apphttp.Deps{
		Reports: result.Reports,
		Store:   result.Store,
		Logger:  logger,
	}
	// A nil *amqp.Client must not become a non-nil interface.
	if result.AMQP != nil {
		deps.Exports = result.AMQP
	}

	srv := apphttp.NewServer(":"+cfg.Port, deps)
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	logger.Info("Starting insights server",
		"port", cfg.Port,
		"dialect", backendCfg.Store.Dialect,
		"reports", result.Reports.Catalogue().Len(),
		"exports_enabled", deps.Exports != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
