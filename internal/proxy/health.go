package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthStatus is the proxy's view of its upstream, computed fresh on every
// health check, never cached.
type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Degraded  HealthStatus = "degraded"
	Unhealthy HealthStatus = "unhealthy"
)

type healthResponse struct {
	Status     HealthStatus `json:"status"`
	ClientID   int          `json:"client_id"`
	MainServer string       `json:"main_server"`
	Upstream   string       `json:"upstream_error,omitempty"`
}

// handleHealthOrForward keeps only GET on the proxy's own health surface so
// an upstream serving other methods on the path is not shadowed.
func (s *Server) handleHealthOrForward(c echo.Context) error {
	if c.Request().Method == http.MethodGet {
		return s.handleHealth(c)
	}
	return s.handleForward(c)
}

// handleHealth reports the proxy's identity and a best-effort view of the
// upstream. It always answers 200: orchestration polls this endpoint to tell
// a degraded proxy from a crashed one, so upstream trouble is surfaced in the
// body, never as a 5xx of our own.
func (s *Server) handleHealth(c echo.Context) error {
	status, probeErr := s.probeUpstream(c.Request().Context())

	resp := healthResponse{
		Status:     status,
		ClientID:   s.cfg.InstanceID,
		MainServer: s.cfg.Upstream,
	}
	if probeErr != nil {
		resp.Upstream = probeErr.Error()
	}
	return c.JSON(http.StatusOK, resp)
}

// probeUpstream classifies the upstream tri-state: reachable and happy,
// reachable but erroring, or unreachable.
func (s *Server) probeUpstream(ctx context.Context) (HealthStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.Upstream+"/health", nil)
	if err != nil {
		return Unhealthy, err
	}

	resp, err := s.probe.Do(req)
	if err != nil {
		return Unhealthy, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= http.StatusBadRequest {
		return Degraded, fmt.Errorf("upstream health returned HTTP %d", resp.StatusCode)
	}
	return Healthy, nil
}
