// shoal-proxy is the per-client-instance reverse proxy. It resolves its
// identity from the environment once at start-up and forwards all traffic to
// the primary backend until terminated.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/shoalproj/shoal/internal/config"
	"github.com/shoalproj/shoal/internal/proxy"
)

func main() {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))

	cfg, err := config.FromEnv()
	if err != nil {
		level.Error(logger).Log("msg", "failed to load configuration", "err", err)
		os.Exit(1)
	}

	srv := proxy.New(cfg, logger)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start() }()

	level.Info(logger).Log("msg", "proxy listening",
		"instance", cfg.InstanceID, "port", cfg.ListenPort, "upstream", cfg.Upstream)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		level.Info(logger).Log("msg", "shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			level.Error(logger).Log("msg", "shutdown", "err", err)
			os.Exit(1)
		}
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			level.Error(logger).Log("msg", "serve", "err", err)
			os.Exit(1)
		}
	}
}
