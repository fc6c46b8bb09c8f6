package preflight

import (
	"context"
	"fmt"
	"os/exec"
)

// AcceleratorProbe checks that a GPU is visible to the host. Both conditions
// must hold: the device-query tool exists, and it exits cleanly. A present
// tool with no driver loaded exits non-zero, which is exactly the case the
// second condition catches.
//
// The probe gates the primary topology only; client instances never need an
// accelerator.
type AcceleratorProbe struct {
	Tool     string                                              // default "nvidia-smi"
	LookPath func(file string) (string, error)                   // default exec.LookPath
	Run      func(ctx context.Context, path string, args ...string) error // default runs the command
}

// Probe returns nil when an accelerator is available.
func (p *AcceleratorProbe) Probe(ctx context.Context) error {
	tool := p.Tool
	if tool == "" {
		tool = "nvidia-smi"
	}
	lookPath := p.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	run := p.Run
	if run == nil {
		run = func(ctx context.Context, path string, args ...string) error {
			return exec.CommandContext(ctx, path, args...).Run()
		}
	}

	path, err := lookPath(tool)
	if err != nil {
		return fmt.Errorf("%s not found on PATH: %w", tool, err)
	}
	if err := run(ctx, path, "-L"); err != nil {
		return fmt.Errorf("%s failed (no driver or no device?): %w", tool, err)
	}
	return nil
}
