// Command voxmimic is the main entry point for the voxmimic voice-cloning
// TTS server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voxmimic/voxmimic/internal/config"
	"github.com/voxmimic/voxmimic/internal/health"
	"github.com/voxmimic/voxmimic/internal/observe"
	"github.com/voxmimic/voxmimic/internal/server"
	"github.com/voxmimic/voxmimic/internal/tts"
	"github.com/voxmimic/voxmimic/internal/voice"
	"github.com/voxmimic/voxmimic/pkg/engine/indextts"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxmimic: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxmimic: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("voxmimic starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voxmimic",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Voice registry ────────────────────────────────────────────────────────
	if err := config.EnsureDirectories(cfg); err != nil {
		slog.Error("failed to create directories", "err", err)
		return 1
	}

	voices := voice.New(voice.Config{
		VoicesDir:     cfg.Paths.VoicesDir,
		MetadataPath:  cfg.Paths.MetadataPath,
		DefaultID:     cfg.DefaultVoice.ID,
		DefaultName:   cfg.DefaultVoice.Name,
		DefaultSource: cfg.DefaultVoice.Source,
	})
	if err := voices.Bootstrap(); err != nil {
		slog.Error("failed to bootstrap voice registry", "err", err)
		return 1
	}
	metrics.VoicesTotal.Add(ctx, int64(voices.Count()))
	slog.Info("voice registry ready", "voices", voices.Count(), "dir", cfg.Paths.VoicesDir)

	// ── Synthesis engine + orchestrator ───────────────────────────────────────
	eng := indextts.New(indextts.Config{
		BinaryPath: cfg.Engine.Binary,
		ModelDir:   cfg.Paths.ModelDir,
		ConfigPath: cfg.Paths.ModelConfig,
		Device:     string(cfg.Engine.Device),
		UseFP16:    cfg.Engine.FP16,
	})
	svc := tts.New(tts.Config{
		OutputDir:          cfg.Paths.OutputDir,
		SerializeSynthesis: cfg.Engine.SerializeSynthesis,
	}, voices, eng, metrics)

	// ── HTTP server ───────────────────────────────────────────────────────────
	hc := health.New(
		health.DirWritable("voices_dir", cfg.Paths.VoicesDir),
		health.DirWritable("output_dir", cfg.Paths.OutputDir),
		health.Func("voices", func(_ context.Context) error {
			if voices.Count() == 0 {
				return errors.New("no voices registered")
			}
			return nil
		}),
		health.Func("engine", func(_ context.Context) error {
			return svc.LoadFailure()
		}),
	)

	srv := server.New(server.Config{OutputDir: cfg.Paths.OutputDir}, voices, svc, metrics, hc)
	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level updated", "level", d.NewLogLevel)
		}
		if d.RestartRequired {
			slog.Warn("config change requires a restart to take effect")
		}
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server listening", "addr", cfg.Server.ListenAddr, "tls", cfg.Server.TLS != nil)
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	if cfg.Engine.AutoloadModel {
		g.Go(func() error {
			if err := svc.EnsureLoaded(gctx); err != nil {
				// Readiness reports the failure; requests fail fast with the
				// same cause. The server stays up for /voices and /health.
				slog.Error("model autoload failed", "err", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// slogLevel maps the config log level onto slog's.
func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
