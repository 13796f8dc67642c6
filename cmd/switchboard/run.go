package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"halcyon-hq/switchboard/pkg/cli"
	"halcyon-hq/switchboard/pkg/config"
	"halcyon-hq/switchboard/pkg/server"
	"halcyon-hq/switchboard/pkg/telemetry/logging"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the switchboard turn API",
	Long: `Start the switchboard turn API with the specified configuration.

The server accepts turn requests on /v1/turns, runs each utterance through
the triage, classification, and policy stages, and returns the action the
voice layer should take next.

Examples:
  # Start with default config
  switchboard run

  # Start with custom config
  switchboard run --config /etc/switchboard/config.yaml

  # Override listen address
  switchboard run --listen 0.0.0.0:8080

  # Validate config without starting the server
  switchboard run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	logger, err := logging.New(logging.Config{
		Level:          cfg.Telemetry.Logging.Level,
		Format:         cfg.Telemetry.Logging.Format,
		AddSource:      cfg.Telemetry.Logging.AddSource,
		RedactPII:      cfg.Telemetry.Logging.RedactPII,
		BufferSize:     cfg.Telemetry.Logging.BufferSize,
		RedactPatterns: cfg.Telemetry.Logging.RedactPatterns,
	})
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	defer logger.Shutdown()

	// The config watcher logs through slog, so point the default logger
	// at a JSON handler to keep its lines in the structured stream.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	fmt.Printf("Halcyon Switchboard v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	// Derive everything from a signal-aware root so SIGINT/SIGTERM
	// unwinds the watcher, scheduled jobs, and in-flight turns even
	// when the listener has not started yet.
	ctx, cancel := context.WithCancel(cli.SetupSignalHandler())
	defer cancel()

	comps, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer func() {
		if err := comps.Close(); err != nil {
			logger.Error("component shutdown incomplete", "error", err)
		}
	}()

	fmt.Printf("✓ Document store ready (%s)\n", cfg.Store.Backend)
	fmt.Printf("✓ Artifact cache ready (%s)\n", cfg.Cache.Backend)
	if cfg.Completion.BaseURL != "" {
		fmt.Printf("✓ Completion service: %s (%s)\n", cfg.Completion.BaseURL, cfg.Completion.Model)
	}
	if cfg.Audit.Enabled {
		fmt.Printf("✓ Audit trail ready (%s)\n", cfg.Audit.Backend)
	}

	// Watch the config file so operators see a log line when an edit
	// lands. Pipeline settings bake into compiled artifacts and the
	// running server, so a restart is still required for most of them.
	watcher, err := config.NewWatcher(config.WatcherConfig{Path: cfgFile}, nil)
	if err != nil {
		logger.Warn("config watcher unavailable", "error", err)
	} else {
		go func() {
			err := watcher.Watch(ctx, func(next *config.Config) {
				logger.Warn("configuration file changed; most settings apply on restart",
					"path", cfgFile,
				)
			})
			if err != nil {
				logger.Warn("config watcher stopped", "error", err)
			}
		}()
		defer watcher.Stop()
	}

	// A nonzero metrics port moves /metrics off the public listener so
	// the scrape endpoint never has to be exposed alongside the API.
	var serverMetrics = comps.collector
	if comps.collector != nil && cfg.Telemetry.Metrics.Port > 0 {
		serverMetrics = nil
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Telemetry.Metrics.Path, comps.collector.Handler())
		metricsSrv := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Telemetry.Metrics.Port),
			Handler: metricsMux,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics listener failed", "error", err)
			}
		}()
		defer metricsSrv.Close()
		fmt.Printf("✓ Metrics endpoint: http://localhost:%d%s\n", cfg.Telemetry.Metrics.Port, cfg.Telemetry.Metrics.Path)
	}

	srv, err := server.New(cfg.Server, cfg.Security, server.Deps{
		Orchestrator: comps.orchestrator,
		Health:       comps.health,
		Logger:       logger,
		Metrics:      serverMetrics,
		AuditStorage: comps.auditStorage,
		Tracer:       comps.tracer,
		Build: server.BuildInfo{
			Version:   Version,
			Commit:    GitCommit,
			BuildTime: BuildDate,
		},
	})
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Println()
	fmt.Printf("✓ Turn API listening on %s\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Health endpoint: http://%s/health\n", cfg.Server.ListenAddress)
	fmt.Println("\nPress Ctrl+C to stop")

	// Start blocks until a shutdown signal, context cancellation, or a
	// listener error, and drains connections before returning.
	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Println("✓ Server stopped")
	return nil
}
