package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mirrorcast/signal-relay/internal/config"
	"github.com/mirrorcast/signal-relay/internal/httpserver"
	"github.com/mirrorcast/signal-relay/internal/metrics"
	"github.com/mirrorcast/signal-relay/internal/signaling"
)

// Populated via -ldflags at release build time.
var (
	commit    = ""
	buildTime = ""
)

func main() {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("exiting", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	build := resolveBuildInfo()
	logger.Info("starting",
		"mode", cfg.Mode,
		"listen_addr", cfg.ListenAddr,
		"commit", build.Commit,
	)
	logStartupWarnings(logger, cfg)

	m := metrics.New()
	hub := signaling.NewHub(signaling.HubConfig{
		MaxClients:        cfg.MaxClients,
		MaxViewersPerRoom: cfg.MaxViewersPerRoom,
		Logger:            logger,
		Metrics:           m,
	})
	defer hub.Close()

	srv := httpserver.New(cfg, logger, build)
	srv.Mux().Handle("GET /ws", signaling.NewWebSocketServer(cfg, hub, logger))
	srv.Mux().Handle("GET /metrics", metrics.PrometheusHandler(m))

	l, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(l)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	// Graceful shutdown never completes while signaling WebSockets are open;
	// closing the hub first tears them down.
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-serveErr; err != nil && !errors.Is(err, httpserver.ErrServerClosed) {
		return err
	}
	return nil
}

func resolveBuildInfo() httpserver.BuildInfo {
	info := httpserver.BuildInfo{Commit: commit, BuildTime: buildTime}
	if info.Commit != "" {
		return info
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				info.Commit = s.Value
			case "vcs.time":
				if info.BuildTime == "" {
					info.BuildTime = s.Value
				}
			}
		}
	}
	if info.Commit == "" {
		info.Commit = "unknown"
	}
	return info
}
