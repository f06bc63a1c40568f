package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orderdispatch/cmd"
	"orderdispatch/internal/pkg/metrics"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
)

const shutdownTimeout = 15 * time.Second

func main() {
	config, err := cmd.LoadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	metrics.Register(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := cmd.NewCompositionRoot(ctx, config, logger)
	if err != nil {
		log.Fatalf("Failed to build application: %v", err)
	}
	defer func() {
		if closeErr := app.Close(); closeErr != nil {
			logger.Error("close adapters", "error", closeErr)
		}
	}()

	pool, err := app.CreateShardPool()
	if err != nil {
		log.Fatalf("Failed to create shard pool: %v", err)
	}
	// Processing gets its own context so queued events drain after a signal.
	pool.Start(context.Background())

	events, err := app.CreateIngress(pool)
	if err != nil {
		log.Fatalf("Failed to create ingress: %v", err)
	}

	jobManager := app.CreateJobManager()
	if err = jobManager.StartAll(); err != nil {
		log.Fatalf("Failed to start jobs: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	app.CreateHTTPServer(events).Register(e)

	go func() {
		if startErr := e.Start(fmt.Sprintf("0.0.0.0:%s", config.HTTPPort)); startErr != nil &&
			!errors.Is(startErr, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", startErr)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err = e.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	jobManager.StopAll()
	pool.Stop()
}
