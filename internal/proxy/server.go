// Package proxy implements the per-client-instance reverse proxy. Every
// inbound request is forwarded to the primary backend; the proxy itself
// holds no per-request state beyond the lifetime of the exchange, so any
// number of requests may be in flight concurrently.
package proxy

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-kit/log"
	"github.com/labstack/echo/v4"
	"github.com/shoalproj/shoal/internal/config"
)

// Server fronts one client instance. Configuration is fixed at construction;
// nothing here is mutated after Start.
type Server struct {
	cfg    config.Config
	logger log.Logger
	echo   *echo.Echo

	// upstream carries forwarded traffic; its timeout is the hard cap on a
	// single exchange. probe is the short-fuse client used only by /health.
	upstream *http.Client
	probe    *http.Client
}

// New builds the proxy server for the given configuration.
func New(cfg config.Config, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		cfg:      cfg,
		logger:   log.WithPrefix(logger, "component", "proxy", "instance", cfg.InstanceID),
		echo:     e,
		upstream: &http.Client{Timeout: cfg.ForwardTimeout},
		probe:    &http.Client{Timeout: cfg.ProbeTimeout},
	}

	// GET /health is the proxy's own surface. Other methods on the path
	// still belong to the upstream, as does everything else.
	e.Any("/health", s.handleHealthOrForward)
	e.Any("/*", s.handleForward)

	return s
}

// Start serves on the configured listen port until Shutdown or a fatal
// listener error.
func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%d", s.cfg.ListenPort))
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
