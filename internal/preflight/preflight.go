// Package preflight validates deployment prerequisites before any resource is
// committed. Every check is read-only, so validation is safe to run
// repeatedly; a failed run leaves the machine exactly as it found it.
package preflight

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/shoalproj/shoal/internal/identity"
)

// Mode selects how artifacts may be obtained during bring-up.
type Mode string

const (
	// Connected permits network fetches (image pulls, package downloads).
	Connected Mode = "connected"
	// AirGapped requires every artifact to be pre-staged locally.
	AirGapped Mode = "air-gapped"
)

// Check is the outcome of a single prerequisite check. Remediation is a
// concrete operator action, usually a copy-pasteable command, and is only set
// when the check failed.
type Check struct {
	Name        string
	Passed      bool
	Remediation string
}

// Report is the immutable outcome of one validation pass. OK is true iff
// every recorded check passed.
type Report struct {
	OK     bool
	Checks []Check
}

// Failed returns the checks that did not pass, in recorded order.
func (r Report) Failed() []Check {
	var failed []Check
	for _, c := range r.Checks {
		if !c.Passed {
			failed = append(failed, c)
		}
	}
	return failed
}

// DockerAPI is the slice of the Docker client the validator needs.
type DockerAPI interface {
	Ping(ctx context.Context) (types.Ping, error)
	ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error)
}

// ArtifactSet names the artifacts that must be pre-staged for an air-gapped
// deployment.
type ArtifactSet struct {
	// Images are required for every topology.
	Images []string
	// PrimaryImages are additionally required for the primary topology
	// (the inference runtime image).
	PrimaryImages []string
	// WheelDir is the local dependency cache; it must hold at least one
	// package artifact.
	WheelDir string
	// Model must already be registered with the inference runtime for a
	// primary deployment.
	Model string
	// RuntimeURL is the inference runtime's API base, queried for the
	// registered model list.
	RuntimeURL string
}

// Validator runs the prerequisite checks for a deployment attempt.
type Validator struct {
	Docker      DockerAPI
	Accelerator *AcceleratorProbe
	Artifacts   ArtifactSet
	HTTP        *http.Client // model-list queries; defaulted if nil
	Logger      log.Logger
}

// Validate produces a readiness report for the given topology and mode.
//
// Checks that depend on a failed prerequisite are skipped rather than
// reported as noise: when the container runtime is unreachable, image
// presence cannot be determined, so those checks are omitted. Independent
// checks (accelerator, dependency cache, model registry) always run and are
// always recorded.
func (v *Validator) Validate(ctx context.Context, topology identity.Topology, mode Mode) Report {
	logger := v.logger()
	var checks []Check

	record := func(name string, err error, remediation string) bool {
		c := Check{Name: name, Passed: err == nil}
		if err != nil {
			c.Remediation = fmt.Sprintf("%s (%v)", remediation, err)
			level.Warn(logger).Log("check", name, "passed", false, "err", err)
		} else {
			level.Debug(logger).Log("check", name, "passed", true)
		}
		checks = append(checks, c)
		return c.Passed
	}

	_, pingErr := v.Docker.Ping(ctx)
	runtimeUp := record("container runtime", pingErr,
		"start the Docker daemon (systemctl start docker), or point DOCKER_HOST at a reachable daemon")

	if topology == identity.Primary {
		accel := v.Accelerator
		if accel == nil {
			accel = &AcceleratorProbe{}
		}
		record("accelerator", accel.Probe(ctx),
			"install the NVIDIA driver so nvidia-smi is on PATH and reports at least one GPU")
	}

	if mode == AirGapped {
		images := v.Artifacts.Images
		if topology == identity.Primary {
			images = append(images[:len(images):len(images)], v.Artifacts.PrimaryImages...)
		}
		if runtimeUp {
			for _, img := range images {
				_, _, err := v.Docker.ImageInspectWithRaw(ctx, img)
				record("image "+img, err,
					fmt.Sprintf("pre-stage the image on a connected host: docker pull %s && docker save %s | ssh <host> docker load", img, img))
			}
		}

		record("dependency cache", checkWheelDir(v.Artifacts.WheelDir),
			fmt.Sprintf("pre-stage packages: pip download -r requirements.txt -d %s", v.Artifacts.WheelDir))

		if topology == identity.Primary {
			record("model "+v.Artifacts.Model, v.checkModel(ctx),
				fmt.Sprintf("register the model with the inference runtime: ollama pull %s", v.Artifacts.Model))
		}
	}

	ok := runtimeUp
	for _, c := range checks {
		ok = ok && c.Passed
	}
	return Report{OK: ok, Checks: checks}
}

func (v *Validator) logger() log.Logger {
	if v.Logger != nil {
		return v.Logger
	}
	return log.NewNopLogger()
}

func (v *Validator) httpClient() *http.Client {
	if v.HTTP != nil {
		return v.HTTP
	}
	return &http.Client{Timeout: 5 * time.Second}
}
