package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"powerperp/config"
	"powerperp/observability/logging"
	telemetry "powerperp/observability/otel"
	"powerperp/storage"
)

const serviceName = "powerperpd"

func main() {
	var (
		cfgPath      string
		scenario     bool
		scenarioOnly bool
	)
	flag.StringVar(&cfgPath, "config", "powerperp.toml", "path to the TOML or YAML configuration file")
	flag.BoolVar(&scenario, "scenario", false, "run the demonstration scenario on a simulated clock at startup")
	flag.BoolVar(&scenarioOnly, "scenario-only", false, "exit after the scenario instead of serving metrics")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("powerperpd: load config: %v", err)
	}
	logger := logging.SetupWithOptions(serviceName, cfg.Environment, cfg.LoggingOptions())
	logger.Info("powerperpd starting",
		logging.MaskField("config", cfgPath),
		logging.MaskField("storage_backend", cfg.Storage.Backend),
		logging.MaskField("storage_path", cfg.Storage.Path),
		logging.MaskField("metrics_addr", cfg.Metrics.ListenAddress),
		logging.MaskField("tracing_endpoint", cfg.Tracing.Endpoint),
		logging.MaskHeaders("tracing_headers", telemetry.ParseHeaders(cfg.Tracing.Headers)))

	if strings.TrimSpace(cfg.Tracing.Endpoint) != "" {
		shutdownTelemetry, err := telemetry.Init(context.Background(), cfg.TracingConfig(serviceName))
		if err != nil {
			log.Fatalf("powerperpd: init telemetry: %v", err)
		}
		defer func() {
			_ = shutdownTelemetry(context.Background())
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, scenario || scenarioOnly, scenarioOnly); err != nil {
		logger.Error("powerperpd stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, scenario, scenarioOnly bool) error {
	if scenario {
		// The scenario owns its clock and prices, so it always runs on a
		// fresh in-memory store.
		clock := newSimClock(time.Now())
		n, err := newNode(cfg, storage.NewMemDB(), clock.Now, logger)
		if err != nil {
			return err
		}
		defer n.Close()
		if _, err := runScenario(ctx, n, clock); err != nil {
			return err
		}
		if scenarioOnly {
			return nil
		}
	}

	db, err := openDatabase(cfg.Storage)
	if err != nil {
		return err
	}
	n, err := newNode(cfg, db, time.Now, logger)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer n.Close()
	if err := n.seedPrices(cfg, time.Now().Add(-seedLookback(cfg))); err != nil {
		return err
	}

	if cfg.Keeper.IntervalSeconds > 0 {
		go n.runKeeper(ctx, time.Duration(cfg.Keeper.IntervalSeconds)*time.Second)
	}
	return serveMetrics(ctx, cfg.Metrics.ListenAddress, logger)
}

func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) error {
	if strings.TrimSpace(addr) == "" {
		<-ctx.Done()
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", otelhttp.NewHandler(promhttp.Handler(), "powerperpd.metrics"))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
