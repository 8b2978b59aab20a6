// chatserver runs the in-memory development chat service.
// Usage: go run ./cmd/chatserver --config configs/chatlink.yaml
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/sadnxai/chatlink/internal/config"
	"github.com/sadnxai/chatlink/internal/devserver"
	"github.com/sadnxai/chatlink/internal/metrics"
	"github.com/sadnxai/chatlink/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults when empty)")
	listen := flag.String("listen", "", "override server.listen_addr")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Server.ListenAddr = *listen
	}

	logger, err := cfg.Log.NewLogger(os.Stdout)
	if err != nil {
		slog.Error("failed to build logger", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)
	logger.Info("starting chatserver", version.LogAttrs()...)

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector, err = metrics.New(prometheus.DefaultRegisterer)
		if err != nil {
			logger.Error("failed to register metrics", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := devserver.New(cfg.DevServer(), logger, collector)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("chatserver stopped")
}
