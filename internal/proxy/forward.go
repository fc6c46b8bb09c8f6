package proxy

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"

	"github.com/go-kit/log/level"
	"github.com/labstack/echo/v4"
)

// ClientIDHeader tags forwarded requests with the originating instance so the
// backend can correlate traffic per client.
const ClientIDHeader = "X-Shoal-Client-Id"

// hopByHop headers describe the connection to the proxy, not the exchange,
// and must not be forwarded in either direction (RFC 9110 §7.6.1).
var hopByHop = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleForward relays one request to the primary backend. The inbound
// request's context is propagated, so a caller hanging up abandons the
// upstream call; the upstream client's timeout is the hard cap regardless.
func (s *Server) handleForward(c echo.Context) error {
	req := c.Request()

	target := s.cfg.Upstream + req.URL.EscapedPath()

	var body io.Reader = req.Body
	rebuiltType := ""
	if isMultipart(req.Header.Get("Content-Type")) {
		// Forwarding multipart bytes verbatim corrupts boundaries once
		// headers are rewritten, so the body is decomposed and re-encoded
		// with a fresh boundary. Parts stream through a pipe; large uploads
		// are never buffered whole.
		rebuilt, contentType, err := rebuildMultipart(req)
		if err != nil {
			level.Warn(s.logger).Log("msg", "multipart decode failed", "path", req.URL.Path, "err", err)
			return c.JSON(http.StatusBadGateway, errorResponse{
				Error: fmt.Sprintf("rebuilding multipart body: %v", err),
			})
		}
		defer rebuilt.Close()
		body = rebuilt
		rebuiltType = contentType
	}

	out, err := http.NewRequestWithContext(req.Context(), req.Method, target, body)
	if err != nil {
		return c.JSON(http.StatusBadGateway, errorResponse{
			Error: fmt.Sprintf("building upstream request: %v", err),
		})
	}
	out.URL.RawQuery = req.URL.RawQuery

	copyHeaders(out.Header, req.Header)
	if rebuiltType != "" {
		// The rebuilt body has its own boundary and unknown length.
		out.Header.Set("Content-Type", rebuiltType)
		out.Header.Del("Content-Length")
		out.ContentLength = -1
	} else {
		out.ContentLength = req.ContentLength
	}
	out.Header.Set(ClientIDHeader, strconv.Itoa(s.cfg.InstanceID))

	resp, err := s.upstream.Do(out)
	if err != nil {
		status, msg := classifyTransportError(err, s.cfg.Upstream)
		level.Warn(s.logger).Log("msg", "forward failed", "method", req.Method, "path", req.URL.Path, "status", status, "err", err)
		return c.JSON(status, errorResponse{Error: msg})
	}
	defer resp.Body.Close()

	// Mirror the upstream response verbatim.
	respHeader := c.Response().Header()
	for name, values := range resp.Header {
		if hopByHop[http.CanonicalHeaderKey(name)] {
			continue
		}
		for _, v := range values {
			respHeader.Add(name, v)
		}
	}
	c.Response().WriteHeader(resp.StatusCode)
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		// Headers are already on the wire; nothing to do but note it.
		level.Debug(s.logger).Log("msg", "response copy interrupted", "path", req.URL.Path, "err", err)
	}
	return nil
}

// copyHeaders copies end-to-end headers from in to out. The Host header is
// not in the map (net/http keeps it on Request.Host), so the upstream host is
// set by the outbound URL, which is the rewrite a reverse proxy needs.
func copyHeaders(out, in http.Header) {
	for name, values := range in {
		if hopByHop[http.CanonicalHeaderKey(name)] {
			continue
		}
		for _, v := range values {
			out.Add(name, v)
		}
	}
}

func isMultipart(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "multipart/form-data"
}

// classifyTransportError maps a transport failure to the status the caller
// sees. Timeouts are 504; everything else is 502, with unreachable targets
// named explicitly because they are the overwhelmingly common case.
func classifyTransportError(err error, target string) (int, string) {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return http.StatusGatewayTimeout,
			fmt.Sprintf("upstream %s did not respond within the timeout", target)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return http.StatusGatewayTimeout,
			fmt.Sprintf("upstream %s did not respond within the timeout", target)
	}

	var dnsErr *net.DNSError
	if errors.Is(err, syscall.ECONNREFUSED) || errors.As(err, &dnsErr) ||
		strings.Contains(err.Error(), "connection refused") {
		return http.StatusBadGateway,
			fmt.Sprintf("upstream %s is unreachable", target)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return http.StatusBadGateway,
			fmt.Sprintf("upstream %s is unreachable: %v", target, opErr)
	}

	return http.StatusBadGateway, fmt.Sprintf("forwarding to %s failed: %v", target, err)
}
