package preflight_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shoalproj/shoal/internal/preflight"
)

func TestAcceleratorProbe_Success(t *testing.T) {
	var ranArgs []string
	p := &preflight.AcceleratorProbe{
		LookPath: func(file string) (string, error) { return "/usr/bin/" + file, nil },
		Run: func(ctx context.Context, path string, args ...string) error {
			ranArgs = append([]string{path}, args...)
			return nil
		},
	}

	if err := p.Probe(context.Background()); err != nil {
		t.Fatalf("expected success, got: %v", err)
	}
	if len(ranArgs) != 2 || ranArgs[0] != "/usr/bin/nvidia-smi" || ranArgs[1] != "-L" {
		t.Errorf("unexpected invocation: %v", ranArgs)
	}
}

func TestAcceleratorProbe_ToolMissing(t *testing.T) {
	p := &preflight.AcceleratorProbe{
		LookPath: func(string) (string, error) { return "", errors.New("not found") },
		Run: func(context.Context, string, ...string) error {
			t.Fatal("must not run the tool when LookPath fails")
			return nil
		},
	}

	err := p.Probe(context.Background())
	if err == nil || !strings.Contains(err.Error(), "not found on PATH") {
		t.Errorf("expected PATH error, got: %v", err)
	}
}

func TestAcceleratorProbe_ToolFails(t *testing.T) {
	p := &preflight.AcceleratorProbe{
		LookPath: func(file string) (string, error) { return "/usr/bin/" + file, nil },
		Run: func(context.Context, string, ...string) error {
			return errors.New("exit status 9")
		},
	}

	err := p.Probe(context.Background())
	if err == nil || !strings.Contains(err.Error(), "no driver or no device") {
		t.Errorf("expected device error, got: %v", err)
	}
}

func TestAcceleratorProbe_CustomTool(t *testing.T) {
	var looked string
	p := &preflight.AcceleratorProbe{
		Tool:     "rocm-smi",
		LookPath: func(file string) (string, error) { looked = file; return "/opt/rocm/bin/rocm-smi", nil },
		Run:      func(context.Context, string, ...string) error { return nil },
	}

	if err := p.Probe(context.Background()); err != nil {
		t.Fatalf("expected success, got: %v", err)
	}
	if looked != "rocm-smi" {
		t.Errorf("expected rocm-smi lookup, got %q", looked)
	}
}
