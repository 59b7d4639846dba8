// Package main provides the fritzbox-exporter entry point. The
// exporter polls a FRITZ!Box over TR-064 for configured values and
// exposes them as Prometheus metrics.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/term"

	"github.com/paketb0te/fritzbox-exporter/internal/config"
	"github.com/paketb0te/fritzbox-exporter/internal/fritz"
	"github.com/paketb0te/fritzbox-exporter/internal/health"
	"github.com/paketb0te/fritzbox-exporter/internal/poller"
	"github.com/paketb0te/fritzbox-exporter/internal/registry"
	"github.com/paketb0te/fritzbox-exporter/internal/server"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func setupLogger(cfg config.Config) {
	var handler slog.Handler
	level := slog.LevelInfo

	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// promptMissing asks interactively for any credential the flags and
// environment left empty.
func promptMissing(cfg *config.Config) error {
	reader := bufio.NewReader(os.Stdin)

	if cfg.Address == "" {
		fmt.Print("FRITZ!Box address: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read address: %w", err)
		}
		cfg.Address = strings.TrimSpace(line)
	}

	if cfg.Username == "" {
		fmt.Print("Username: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read username: %w", err)
		}
		cfg.Username = strings.TrimSpace(line)
	}

	if cfg.Password == "" {
		fmt.Print("Password: ")
		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		cfg.Password = string(secret)
	}

	return nil
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if cfg.ShowVersion {
		fmt.Printf("fritzbox-exporter %s (built: %s)\n", version, buildTime)
		if info, ok := debug.ReadBuildInfo(); ok {
			fmt.Printf("go version: %s\n", info.GoVersion)
		}
		os.Exit(0)
	}

	setupLogger(cfg)

	if err := promptMissing(&cfg); err != nil {
		slog.Error("Credential prompt failed", "error", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	server.SetVersion(version, buildTime)

	slog.Info("Starting fritzbox-exporter",
		"version", version,
		"build_time", buildTime,
		"address", cfg.Address,
		"metrics_file", cfg.MetricsFile,
		"listen", cfg.Listen)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := fritz.NewClient(cfg.Address, cfg.Username, cfg.Password)
	if err := client.Connect(ctx); err != nil {
		slog.Error("FRITZ!Box connection failed", "address", cfg.Address, "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to FRITZ!Box", "address", cfg.Address)

	store, err := registry.NewStore(cfg.MetricsFile, prometheus.DefaultRegisterer)
	if err != nil {
		slog.Error("Loading metric definitions failed", "file", cfg.MetricsFile, "error", err)
		os.Exit(1)
	}
	slog.Info("Metric definitions loaded", "file", cfg.MetricsFile, "metrics", store.Current().Len())

	sched := poller.NewScheduler(poller.NewSampler(client, cfg.CallTimeout), store)

	hc := health.NewChecker()
	hc.RegisterComponent(health.Func{Name: "fritzbox", Check: func(ctx context.Context) error {
		_, err := client.Call(ctx, "DeviceInfo1", "GetInfo")
		return err
	}})
	hc.RegisterComponent(sched)
	server.SetHealthChecker(hc)

	go func() {
		if err := store.Watch(ctx); err != nil && ctx.Err() == nil {
			slog.Error("Definition file watcher stopped", "error", err)
		}
	}()
	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("Poller stopped", "error", err)
		}
	}()

	if err := server.Run(ctx, cfg.Listen, prometheus.DefaultGatherer); err != nil {
		slog.Error("Shutdown with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}
