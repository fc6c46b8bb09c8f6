// Package dockerutil exposes a process-wide Docker client. The orchestrator,
// the preflight validator, and the status command all talk to the same daemon,
// so they share one connection-pooling client instead of each dialing the
// socket themselves.
package dockerutil

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/docker/docker/client"
)

var connect = sync.OnceValues(newClient)

// Client returns the shared Docker client. Safe for concurrent use; callers
// must not Close it.
func Client() (*client.Client, error) {
	return connect()
}

func newClient() (*client.Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}

	// Without DOCKER_HOST the SDK only tries /var/run/docker.sock. Probe the
	// rootless and Docker Desktop socket locations too, passing the host via
	// a client option rather than os.Setenv (not concurrent-safe).
	if os.Getenv("DOCKER_HOST") == "" {
		if sock := findSocket(); sock != "" {
			opts = append(opts, client.WithHost("unix://"+sock))
		}
	}

	return client.NewClientWithOpts(opts...)
}

// findSocket returns the first Docker socket that exists, or "".
func findSocket() string {
	candidates := []string{"/var/run/docker.sock"}

	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".docker", "run", "docker.sock"),
			filepath.Join(home, ".colima", "default", "docker.sock"),
		)
	}
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		candidates = append(candidates, filepath.Join(runtimeDir, "docker.sock"))
	}

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
