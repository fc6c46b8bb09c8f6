package proxy_test

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoalproj/shoal/internal/config"
	"github.com/shoalproj/shoal/internal/proxy"
)

// newProxy wires a proxy instance in front of the given upstream and returns
// it as an httptest server.
func newProxy(t *testing.T, upstream string, instanceID int, forwardTimeout time.Duration) *httptest.Server {
	t.Helper()

	cfg := config.Config{
		InstanceID:     instanceID,
		Upstream:       strings.TrimSuffix(upstream, "/"),
		ForwardTimeout: forwardTimeout,
		ProbeTimeout:   500 * time.Millisecond,
	}
	srv := httptest.NewServer(proxy.New(cfg, nil).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestForward_Fidelity(t *testing.T) {
	var (
		gotMethod, gotPath, gotQuery, gotTestHeader, gotHost, gotClientID string
	)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotTestHeader = r.Header.Get("X-Test")
		gotHost = r.Host
		gotClientID = r.Header.Get(proxy.ClientIDHeader)
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	p := newProxy(t, upstream.URL, 3, 5*time.Second)

	req, err := http.NewRequest(http.MethodGet, p.URL+"/foo?x=1", nil)
	require.NoError(t, err)
	req.Header.Set("X-Test", "abc")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, http.MethodGet, gotMethod)
	assert.Equal(t, "/foo", gotPath)
	assert.Equal(t, "x=1", gotQuery)
	assert.Equal(t, "abc", gotTestHeader)
	assert.Equal(t, "3", gotClientID)
	// Host must name the upstream, not the proxy.
	assert.Equal(t, strings.TrimPrefix(upstream.URL, "http://"), gotHost)
	assert.NotEqual(t, strings.TrimPrefix(p.URL, "http://"), gotHost)
}

func TestForward_AllMethods(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]string{}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		seen[r.Method] = string(body)
		mu.Unlock()
	}))
	defer upstream.Close()

	p := newProxy(t, upstream.URL, 1, 5*time.Second)

	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		var body io.Reader
		if method != http.MethodGet && method != http.MethodDelete {
			body = strings.NewReader("payload-" + method)
		}
		req, err := http.NewRequest(method, p.URL+"/api/things", body)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err, method)
		resp.Body.Close()
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 5)
	assert.Equal(t, "payload-POST", seen[http.MethodPost])
	assert.Equal(t, "payload-PUT", seen[http.MethodPut])
	assert.Equal(t, "payload-PATCH", seen[http.MethodPatch])
}

func TestForward_MirrorsUpstreamResponse(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusTeapot)
		fmt.Fprint(w, `{"short":"stout"}`)
	}))
	defer upstream.Close()

	p := newProxy(t, upstream.URL, 1, 5*time.Second)

	resp, err := http.Get(p.URL + "/teapot")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Equal(t, "yes", resp.Header.Get("X-Upstream"))
	assert.Equal(t, `{"short":"stout"}`, string(body))
}

func TestForward_MultipartRoundTrip(t *testing.T) {
	fileContent := []byte("def main():\n    return 42\n")

	var (
		gotFilename string
		gotContent  []byte
		gotField    string
		gotBoundary string
	)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBoundary = r.Header.Get("Content-Type")
		require.NoError(t, r.ParseMultipartForm(1<<20))

		gotField = r.FormValue("note")
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		gotFilename = header.Filename
		gotContent, _ = io.ReadAll(file)
	}))
	defer upstream.Close()

	p := newProxy(t, upstream.URL, 1, 5*time.Second)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "answer.py")
	require.NoError(t, err)
	_, err = part.Write(fileContent)
	require.NoError(t, err)
	require.NoError(t, w.WriteField("note", "for review"))
	require.NoError(t, w.Close())

	resp, err := http.Post(p.URL+"/upload", w.FormDataContentType(), &buf)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "answer.py", gotFilename)
	assert.Equal(t, fileContent, gotContent)
	assert.Equal(t, "for review", gotField)
	// The body was re-encoded, not replayed byte for byte.
	assert.NotEqual(t, w.FormDataContentType(), gotBoundary)
	assert.Contains(t, gotBoundary, "multipart/form-data")
}

func TestForward_UpstreamUnreachable(t *testing.T) {
	// A port with nothing listening.
	p := newProxy(t, "http://127.0.0.1:1", 1, 2*time.Second)

	resp, err := http.Get(p.URL + "/anything")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, string(body), "http://127.0.0.1:1")
}

func TestForward_TimeoutClassification(t *testing.T) {
	release := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer upstream.Close()
	defer close(release)

	p := newProxy(t, upstream.URL, 1, 300*time.Millisecond)

	start := time.Now()
	resp, err := http.Get(p.URL + "/slow")
	require.NoError(t, err)
	defer resp.Body.Close()
	elapsed := time.Since(start)

	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
	// Must take at least the configured bound but not much longer.
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestForward_ConcurrentIsolation(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Echo the caller's marker back after a jitter-free tiny delay so
		// responses interleave across goroutines.
		time.Sleep(5 * time.Millisecond)
		fmt.Fprint(w, r.Header.Get("X-Marker"))
	}))
	defer upstream.Close()

	p := newProxy(t, upstream.URL, 1, 5*time.Second)

	const n = 100
	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			marker := fmt.Sprintf("marker-%d", i)

			req, err := http.NewRequest(http.MethodGet, p.URL+"/echo", nil)
			if err != nil {
				errs <- err
				return
			}
			req.Header.Set("X-Marker", marker)

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				errs <- err
				return
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				errs <- err
				return
			}
			if string(body) != marker {
				errs <- fmt.Errorf("cross-talk: sent %q, received %q", marker, body)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}
