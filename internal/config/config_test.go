package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/shoalproj/shoal/internal/config"
)

func setValidEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SHOAL_INSTANCE_ID", "2")
	t.Setenv("SHOAL_LISTEN_PORT", "8002")
	t.Setenv("SHOAL_UPSTREAM_URL", "http://localhost:8001")
}

func TestFromEnv_Valid(t *testing.T) {
	setValidEnv(t)

	cfg, err := config.FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.InstanceID != 2 || cfg.ListenPort != 8002 {
		t.Errorf("unexpected identity: %+v", cfg)
	}
	if cfg.Upstream != "http://localhost:8001" {
		t.Errorf("unexpected upstream: %q", cfg.Upstream)
	}
	if cfg.ForwardTimeout != config.DefaultForwardTimeout || cfg.ProbeTimeout != config.DefaultProbeTimeout {
		t.Errorf("unexpected timeouts: %+v", cfg)
	}
}

func TestFromEnv_TrailingSlashTrimmed(t *testing.T) {
	setValidEnv(t)
	t.Setenv("SHOAL_UPSTREAM_URL", "http://localhost:8001/")

	cfg, err := config.FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Upstream != "http://localhost:8001" {
		t.Errorf("trailing slash not trimmed: %q", cfg.Upstream)
	}
}

func TestFromEnv_MissingRequired(t *testing.T) {
	for _, name := range []string{"SHOAL_INSTANCE_ID", "SHOAL_LISTEN_PORT", "SHOAL_UPSTREAM_URL"} {
		t.Run(name, func(t *testing.T) {
			setValidEnv(t)
			t.Setenv(name, "")

			_, err := config.FromEnv()
			if err == nil || !strings.Contains(err.Error(), name) {
				t.Errorf("expected error naming %s, got: %v", name, err)
			}
		})
	}
}

func TestFromEnv_NonPositiveInstanceID(t *testing.T) {
	setValidEnv(t)
	t.Setenv("SHOAL_INSTANCE_ID", "0")

	_, err := config.FromEnv()
	if err == nil || !strings.Contains(err.Error(), "positive") {
		t.Errorf("expected positivity error, got: %v", err)
	}
}

func TestFromEnv_ListenPortRange(t *testing.T) {
	for _, raw := range []string{"0", "-1", "70000"} {
		t.Run(raw, func(t *testing.T) {
			setValidEnv(t)
			t.Setenv("SHOAL_LISTEN_PORT", raw)

			_, err := config.FromEnv()
			if err == nil || !strings.Contains(err.Error(), "SHOAL_LISTEN_PORT") {
				t.Errorf("expected port range error, got: %v", err)
			}
		})
	}
}

func TestFromEnv_ForwardTimeoutOverride(t *testing.T) {
	setValidEnv(t)
	t.Setenv("SHOAL_FORWARD_TIMEOUT", "45s")

	cfg, err := config.FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ForwardTimeout != 45*time.Second {
		t.Errorf("expected 45s, got %s", cfg.ForwardTimeout)
	}
}

func TestFromEnv_BadForwardTimeout(t *testing.T) {
	setValidEnv(t)
	t.Setenv("SHOAL_FORWARD_TIMEOUT", "soon")

	if _, err := config.FromEnv(); err == nil {
		t.Error("expected error for unparseable duration")
	}
}
