// Package run is the shared bootstrap for the keeper binaries: flags,
// configuration, logging, telemetry, the module lifecycle and the
// supervisor exit contract. Each binary describes itself as a Keeper
// and hands it to Main.
package run

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"

	chainDI "github.com/dexkeep/keeperbot/business/chain/di"
	keeperApp "github.com/dexkeep/keeperbot/business/keeper/app"
	"github.com/dexkeep/keeperbot/internal/apm"
	"github.com/dexkeep/keeperbot/internal/config"
	"github.com/dexkeep/keeperbot/internal/health"
	"github.com/dexkeep/keeperbot/internal/logger"
	"github.com/dexkeep/keeperbot/internal/metrics"
	"github.com/dexkeep/keeperbot/internal/monolith"
)

// shutdownTimeout bounds the orderly-shutdown hook after the loop stops.
const shutdownTimeout = 2 * time.Minute

// Keeper describes one keeper binary to the shared bootstrap.
type Keeper struct {
	// Name is the binary name, used in logs and the version line.
	Name string

	// Modules are registered and started in the order given.
	Modules []monolith.Module

	// Assemble builds the strategy loop once the modules have started.
	Assemble func(mono monolith.Monolith) (*keeperApp.Driver, error)

	// Shutdown, when set, runs after the loop stops. The maker keeper
	// sweeps its own orders here.
	Shutdown func(ctx context.Context, mono monolith.Monolith) error
}

// Build carries the version information injected at build time.
type Build struct {
	Version string
	Commit  string
	Date    string
}

// Main runs the keeper and returns the process exit code: 0 after a
// cancelled run, 1 when Run or the boot sequence returns an error. The
// external supervisor owns restarts.
func Main(k Keeper, build Build) int {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s (commit: %s, built: %s)\n", k.Name, build.Version, build.Commit, build.Date)
		return 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		cancel()
	}()

	if err := runKeeper(ctx, k, build, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func runKeeper(ctx context.Context, k Keeper, build Build, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logLevel := logger.LevelInfo
	switch cfg.App.LogLevel {
	case "debug":
		logLevel = logger.LevelDebug
	case "warn":
		logLevel = logger.LevelWarn
	case "error":
		logLevel = logger.LevelError
	}

	log := logger.New(os.Stderr, logLevel, k.Name, func(ctx context.Context) string {
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			return sc.TraceID().String()
		}
		return ""
	})
	log.Info(ctx, "starting keeper",
		"keeper", k.Name,
		"version", build.Version,
		"environment", cfg.App.Environment,
	)

	var (
		traceProvider  apm.TraceProvider
		metricProvider metrics.MetricProvider
	)
	if cfg.Telemetry.Enabled {
		serviceName := cfg.Telemetry.ServiceName
		if serviceName == "" {
			serviceName = k.Name
		}
		tp, err := apm.NewTraceProvider(log, apm.Options{
			Provider:    apm.Provider(cfg.Telemetry.TraceProvider),
			ServiceName: serviceName,
			Endpoint:    cfg.Telemetry.OTLPEndpoint,
			Headers:     cfg.Telemetry.OTLPHeaders,
		})
		if err != nil {
			// A broken collector must not keep the keeper from trading.
			log.Warn(ctx, "tracing disabled", "error", err)
		} else {
			traceProvider = tp
			log.Info(ctx, "tracing initialized", "provider", cfg.Telemetry.TraceProvider)
		}

		exporters := []metrics.ExporterConfig{{Exporter: metrics.PrometheusExporter}}
		switch cfg.Telemetry.TraceProvider {
		case "otlp_grpc", "otlp_http":
			// Metrics ride to the same collector as traces.
			exporters = append(exporters, metrics.ExporterConfig{
				Exporter: metrics.OTLPExporter,
				Endpoint: cfg.Telemetry.OTLPEndpoint,
				Headers:  cfg.Telemetry.OTLPHeaders,
			})
		}
		mp, err := metrics.NewMetricProvider(metrics.Options{
			ServiceName: serviceName,
			Exporters:   exporters,
		})
		if err != nil {
			log.Warn(ctx, "metrics disabled", "error", err)
		} else {
			metricProvider = mp
		}

		port := cfg.Telemetry.PrometheusPort
		if port == 0 {
			port = 9090
		}
		go func() {
			if err := metrics.ServePrometheus(port); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error(context.Background(), "metrics server stopped", "error", err)
			}
		}()
		log.Info(ctx, "prometheus metrics server started", "port", port)
	}
	defer func() {
		if traceProvider != nil {
			traceProvider.Stop()
		}
		if metricProvider != nil {
			metricProvider.Shutdown(context.Background())
		}
	}()

	healthPort := cfg.Health.Port
	if healthPort == 0 {
		healthPort = 8081
	}
	healthServer := health.NewServer(healthPort, build.Version, log)
	if err := healthServer.Start(); err != nil {
		log.Warn(ctx, "failed to start health server", "error", err)
	} else {
		log.Info(ctx, "health server started", "port", healthPort)
	}
	defer healthServer.Stop(context.Background())

	mono, err := monolith.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}
	defer mono.Close()

	if err := mono.RegisterModules(k.Modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}
	if err := mono.StartModules(ctx, k.Modules...); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}

	driver, err := k.Assemble(mono)
	if err != nil {
		return fmt.Errorf("failed to assemble strategy loop: %w", err)
	}

	registerChecks(healthServer, mono, driver)

	runErr := driver.Run(ctx)

	if k.Shutdown != nil {
		// The run context is gone by now; the hook gets its own deadline.
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		if err := k.Shutdown(shutdownCtx, mono); err != nil {
			log.Error(shutdownCtx, "shutdown hook failed", "error", err)
		}
	}

	return runErr
}

// registerChecks wires the readiness probes: the node must be synced and
// the strategy loop must keep finishing cycles.
func registerChecks(server *health.Server, mono monolith.Monolith, driver *keeperApp.Driver) {
	gateway := chainDI.GetGateway(mono.Services())

	server.RegisterCheck("node_synced", func(ctx context.Context) (bool, string) {
		synced, err := gateway.IsSynced(ctx)
		if err != nil {
			return false, err.Error()
		}
		if !synced {
			return false, "node is syncing"
		}
		return true, ""
	})

	server.RegisterCheck("loop_alive", func(ctx context.Context) (bool, string) {
		last := driver.LastCycle()
		if last.IsZero() {
			return true, "starting"
		}
		age := time.Since(last)
		if age > 3*driver.Interval() {
			return false, fmt.Sprintf("last cycle %s ago", age.Round(time.Second))
		}
		return true, ""
	})
}
