package ready

import (
	"context"
	"fmt"
	"net/http"
)

// HTTP probes an endpoint with a GET. Anything below 500 counts as ready; a
// 404 still proves the server is up and routing requests.
type HTTP struct {
	Path string // default "/"
}

func (h *HTTP) Check(ctx context.Context, addr string) error {
	path := h.Path
	if path == "" {
		path = "/"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+path, nil)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: probeTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}
