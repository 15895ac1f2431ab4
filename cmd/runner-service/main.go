// runner-service is the HTTP API server for submitting and tracking jobs on
// a configured runner backend (local processes, Grid Engine, or Docker).
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

	"jobrunner/internal/api"
	"jobrunner/internal/config"
	"jobrunner/internal/dispatcher"
	"jobrunner/internal/health"
	"jobrunner/internal/job"
	"jobrunner/internal/observability"
	"jobrunner/internal/runner"
	"jobrunner/internal/watch"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Load configuration
	svcCfg := config.LoadServiceConfig()
	dispatcherCfg := dispatcher.LoadConfigFromEnv()

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	// Create callback dispatcher
	eventDispatcher := dispatcher.NewMemory(dispatcherCfg, metrics)

	// Create the runner backend from its specification string
	backend := runner.BackendName(svcCfg.RunnerSpec)
	rnr, err := runner.Parse(svcCfg.RunnerSpec)
	if err != nil {
		return err
	}
	if closer, ok := rnr.(io.Closer); ok {
		defer closer.Close()
	}
	if svcCfg.LogDir != "" {
		rnr.SetLogDir(svcCfg.LogDir)
	}

	slog.Info("Runner backend configured", "backend", backend, "logDir", svcCfg.LogDir)

	// Create the job watcher feeding lifecycle events to the dispatcher
	watcher := watch.New(rnr, eventDispatcher, watch.Config{
		Source:     svcCfg.EventSource,
		SigningKey: svcCfg.CallbackKey,
		OnFinished: func(id runner.JobID, name string, elapsed time.Duration) {
			metrics.RecordJobFinished(context.Background(), backend, elapsed.Seconds())
		},
	})

	// Create health checker around the backend's readiness probe
	readiness, _ := rnr.(health.ReadinessChecker)
	healthChecker := health.NewChecker(readiness)

	// Create job service
	jobService := job.NewService(rnr, backend, watcher, metrics)

	// Create API router
	router := api.NewRouter(api.RouterConfig{
		JobService:    jobService,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		Dispatcher:    eventDispatcher,
		Watcher:       watcher,
		APIKey:        svcCfg.APIKey,
	})

	if svcCfg.APIKey != "" {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no API_KEY configured")
	}

	// Create API server
	apiServer := &http.Server{
		Addr:         ":" + svcCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Create metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + svcCfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Channel to capture server errors
	serverErr := make(chan error, 1)

	// Start API server
	go func() {
		slog.Info("Starting API server", "port", svcCfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Start metrics server
	go func() {
		slog.Info("Starting metrics server", "port", svcCfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// shutdown closes both servers gracefully
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	// Wait for interrupt signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Phase 1: Mark service as unhealthy for load balancer draining
	healthChecker.SetShuttingDown()

	// Wait for load balancers to stop sending traffic
	if svcCfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", svcCfg.ShutdownDrainWait)
		time.Sleep(svcCfg.ShutdownDrainWait)
	}

	// Phase 2: Graceful shutdown - stop accepting new connections, finish in-flight requests
	slog.Info("Starting graceful shutdown")
	shutdown(25 * time.Second)

	// Phase 3: Stop the job watcher and drain the callback dispatcher
	slog.Info("Stopping job watcher", "watched", watcher.Active())
	watcher.Close()

	slog.Info("Draining callback dispatcher")
	dispatcherCtx, dispatcherCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dispatcherCancel()
	if err := eventDispatcher.Close(dispatcherCtx); err != nil {
		slog.Warn("Dispatcher shutdown error", "error", err)
	}

	// Log final dispatcher stats
	stats := eventDispatcher.Stats()
	slog.Info("Dispatcher stats",
		"delivered", stats.Delivered,
		"failed", stats.Failed,
		"dropped", stats.Dropped,
	)

	// Submitted jobs keep running on their backend; only the in-process
	// tracking state is lost.
	slog.Info("Submitted jobs continue on the backend")
	slog.Info("Shutdown complete")
	return nil
}
