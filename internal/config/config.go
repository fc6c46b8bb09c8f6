// Package config resolves the proxy's configuration from the environment.
// Everything is read exactly once at start-up; the resulting value is
// immutable for the life of the process.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultForwardTimeout bounds a single upstream call. Generous because
	// multipart uploads of large documents ride through the proxy.
	DefaultForwardTimeout = 60 * time.Second
	// DefaultProbeTimeout bounds the best-effort upstream probe on /health.
	DefaultProbeTimeout = 2 * time.Second
)

// Config is the proxy's start-up configuration.
type Config struct {
	InstanceID     int
	ListenPort     int
	Upstream       string // primary backend base URL, no trailing slash
	ForwardTimeout time.Duration
	ProbeTimeout   time.Duration
}

// FromEnv loads configuration from environment variables.
// SHOAL_INSTANCE_ID, SHOAL_LISTEN_PORT and SHOAL_UPSTREAM_URL are required.
func FromEnv() (Config, error) {
	instanceID, err := requireInt("SHOAL_INSTANCE_ID")
	if err != nil {
		return Config{}, err
	}
	if instanceID < 1 {
		return Config{}, fmt.Errorf("SHOAL_INSTANCE_ID must be a positive integer, got %d", instanceID)
	}

	listenPort, err := requireInt("SHOAL_LISTEN_PORT")
	if err != nil {
		return Config{}, err
	}
	if listenPort < 1 || listenPort > 65535 {
		return Config{}, fmt.Errorf("SHOAL_LISTEN_PORT must be in 1..65535, got %d", listenPort)
	}

	upstream := os.Getenv("SHOAL_UPSTREAM_URL")
	if upstream == "" {
		return Config{}, fmt.Errorf("SHOAL_UPSTREAM_URL is required")
	}
	if _, err := url.ParseRequestURI(upstream); err != nil {
		return Config{}, fmt.Errorf("invalid SHOAL_UPSTREAM_URL: %w", err)
	}

	cfg := Config{
		InstanceID:     instanceID,
		ListenPort:     listenPort,
		Upstream:       strings.TrimSuffix(upstream, "/"),
		ForwardTimeout: DefaultForwardTimeout,
		ProbeTimeout:   DefaultProbeTimeout,
	}

	if raw := os.Getenv("SHOAL_FORWARD_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SHOAL_FORWARD_TIMEOUT: %w", err)
		}
		cfg.ForwardTimeout = d
	}

	return cfg, nil
}

func requireInt(name string) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}
