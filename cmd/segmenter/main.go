// Command segmenter is the main entry point for the live audio segmentation
// service.
package main

import (
	"cmp"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/app"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/config"
	"github.com/TamNguyen8021/meeting-note-summarizer-sub001/internal/observe"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file; empty uses built-in defaults")
	watch := flag.Bool("watch", true, "reload log level and pipeline tuning when the config file changes")
	watchInterval := flag.Duration("watch-interval", 5*time.Second, "config file polling interval")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg := config.Defaults()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				fmt.Fprintf(os.Stderr, "segmenter: config file %q not found; pass -config \"\" to run with defaults\n", *configPath)
			} else {
				fmt.Fprintf(os.Stderr, "segmenter: %v\n", err)
			}
			return 1
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.SlogLevel())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("segmenter starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	registry := prometheus.NewRegistry()
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cmp.Or(cfg.Telemetry.ServiceVersion, version),
		Registry:       registry,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(tctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Application ───────────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg,
		app.WithMetrics(observe.DefaultMetrics()),
		app.WithLevelVar(level),
		app.WithMetricsHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Hot reload ────────────────────────────────────────────────────────────
	if *watch && *configPath != "" {
		watcher, err := config.NewWatcher(*configPath, func(next *config.Config) {
			application.Reload(next)
		}, config.WithInterval(*watchInterval))
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			go watcher.Run(ctx) //nolint:errcheck // Run always returns nil
		}
	}

	slog.Info("server ready; press Ctrl+C to shut down")

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return code
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	p := cfg.Pipeline
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       segmenter: startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Format", p.Format().String())
	printRow("Segment", fmt.Sprintf("%s / %s overlap", p.SegmentDuration, p.OverlapDuration))
	printRow("Sources", fmt.Sprintf("%v", cfg.Source.Preferred))
	if cfg.Transcription.Enabled {
		names := make([]string, 0, len(cfg.Transcription.Providers))
		for _, e := range cfg.Transcription.Providers {
			names = append(names, e.Name)
		}
		printRow("Hand-off", fmt.Sprintf("%v", names))
	} else {
		printRow("Hand-off", "(disabled)")
	}
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len(value) > 22 {
		value = value[:19] + "..."
	}
	fmt.Printf("║  %-12s : %-22s ║\n", label, value)
}
