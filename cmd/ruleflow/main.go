// Package main runs the ruleflow engine: it connects NATS, opens storage,
// wires the executor to the trigger stream, and serves metrics and health
// over HTTP until interrupted.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/ruleflow/config"
	"github.com/c360/ruleflow/dispatch"
	"github.com/c360/ruleflow/engine"
	"github.com/c360/ruleflow/field"
	"github.com/c360/ruleflow/metric"
	"github.com/c360/ruleflow/natsclient"
	"github.com/c360/ruleflow/notify"
	"github.com/c360/ruleflow/service"
	"github.com/c360/ruleflow/store/memory"
	"github.com/c360/ruleflow/store/postgres"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "ruleflow"
)

const shutdownTimeout = 10 * time.Second

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath   = flag.String("config", "", "path to YAML config file")
		validateOnly = flag.Bool("validate", false, "validate configuration and exit")
		logLevel     = flag.String("log-level", "", "override logging level (debug|info|warn|error)")
		logFormat    = flag.String("log-format", "", "override logging format (json|text)")
		showVersion  = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", appName, Version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	if *validateOnly {
		logger.Info("configuration is valid", "config", *configPath)
		return nil
	}

	ctx := context.Background()

	// Core infrastructure
	registry := metric.NewRegistry()

	client, err := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithClientName(cfg.NATS.ClientName),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait),
		natsclient.WithConnectTimeout(cfg.NATS.ConnectTimeout),
	)
	if err != nil {
		return fmt.Errorf("create nats client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}
	defer client.Close(ctx) //nolint:errcheck

	stores, cleanup, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	// Engine wiring
	sink := notify.NewSink(client)
	dispatcher := dispatch.NewDispatcher(stores.records, sink,
		dispatch.WithWebhookRateLimit(cfg.Engine.WebhookRatePerSec, cfg.Engine.WebhookBurst))

	executor, err := engine.NewExecutor(stores.rules, stores.records, stores.logs,
		stores.fields, dispatcher, registry)
	if err != nil {
		return fmt.Errorf("create executor: %w", err)
	}

	triggers, err := service.NewTriggerService(client, executor, service.Config{
		Workers:      cfg.Engine.Workers,
		QueueSize:    cfg.Engine.QueueSize,
		ConsumerName: cfg.Engine.ConsumerName,
	}, registry)
	if err != nil {
		return fmt.Errorf("create trigger service: %w", err)
	}
	if err := triggers.Start(ctx); err != nil {
		return fmt.Errorf("start trigger service: %w", err)
	}
	defer triggers.Stop(shutdownTimeout) //nolint:errcheck

	// Metrics and health listener
	httpServer := serveHTTP(cfg.HTTP.Addr, registry, triggers)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("ruleflow started",
		"nats_url", cfg.NATS.URL,
		"database", cfg.Database.Driver,
		"http_addr", cfg.HTTP.Addr,
		"workers", cfg.Engine.Workers)

	// Block until interrupted
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())
	return nil
}

// storage bundles the executor's persistence collaborators
type storage struct {
	rules   engine.RuleSource
	records interface {
		engine.RecordSource
		dispatch.RecordStore
	}
	logs   engine.LogStore
	fields field.Registry
}

func openStorage(ctx context.Context, cfg *config.Config) (*storage, func(), error) {
	switch cfg.Database.Driver {
	case "postgres":
		store, err := postgres.NewStore(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		return &storage{rules: store, records: store, logs: store, fields: store},
			store.Close, nil
	default:
		store := memory.NewStore()
		return &storage{rules: store, records: store, logs: store, fields: store},
			func() {}, nil
	}
}

func serveHTTP(addr string, registry *metric.Registry, triggers *service.TriggerService) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		health := triggers.Health()
		w.Header().Set("Content-Type", "application/json")
		if !health.Started {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(health)
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http listener failed", "error", err)
		}
	}()
	return server
}
