// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kadirpekel/r4u-trace/internal/config"
	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/autograde"
	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/grouping"
	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/httpapi"
	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/ingest"
	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/observability"
	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/storage"
)

// ServeCmd starts the trace ingestion HTTP server.
type ServeCmd struct {
	Port  int  `help:"Port to listen on (overrides server.port in config)."`
	Watch bool `help:"Watch the config file for changes and log the reloaded worker settings (the running worker keeps its startup settings)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	_ = config.LoadEnvFiles()

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	logger, cleanupLog, err := initLoggerFromCLI(cli.LogLevel, cli.LogFile, cli.LogFormat)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer cleanupLog()

	shutdownTracing, err := observability.NewTracerProvider(ctx, cfg.ObservabilitySettings())
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	pool := storage.NewPool()
	store, err := storage.Open(ctx, pool, cfg.StorageConfig())
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	queue := grouping.NewQueue(cfg.Queue.Capacity, logger)
	worker := grouping.NewWorker(queue, store, cfg.GroupingConfig(), nil, logger)
	go worker.Run(ctx)

	grading := autograde.NewDispatcher(autograde.LoggingRunner{Log: logger})
	ingestSvc := ingest.NewService(store, queue, grading, logger)

	registry := prometheus.NewRegistry()
	metrics := httpapi.NewMetrics(registry)
	handlers := httpapi.NewHandlers(store, ingestSvc, nil, queue)

	rateLimiter, err := cfg.RateLimiter()
	if err != nil {
		return fmt.Errorf("init rate limiter: %w", err)
	}

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Handlers:    handlers,
		Metrics:     metrics,
		Auth:        cfg.AuthValidator(),
		RateLimiter: rateLimiter,
		Logger:      logger,
	})
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	router.Get("/api/schema", schemaHandler)
	router.Get("/health", healthHandler)

	if c.Watch {
		watcher, err := config.NewWatcher(cli.Config, func(newCfg *config.Config) {
			logger.Info("config reloaded; the running worker keeps its startup thresholds",
				"min_cluster_size", newCfg.Worker.MinClusterSize)
		})
		if err != nil {
			logger.Warn("config watch disabled", "error", err)
		} else {
			go watcher.Run(ctx)
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{Addr: addr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("tracepipeline server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), time.Duration(cfg.Queue.ShutdownTimeoutMS)*time.Millisecond)
	defer cancelShutdown()
	return httpServer.Shutdown(shutdownCtx)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func schemaHandler(w http.ResponseWriter, r *http.Request) {
	reflector := &jsonschema.Reflector{AllowAdditionalProperties: false, DoNotReference: true}
	schema := reflector.Reflect(&config.Config{})
	schema.Title = "Trace Pipeline Configuration Schema"

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(schema)
}
