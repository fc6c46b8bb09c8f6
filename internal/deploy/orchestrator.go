// Package deploy sequences a deployment attempt: validate prerequisites,
// resolve the instance's network identity, bring up its container group, and
// wait for it to become healthy. One invocation drives exactly one instance
// through the phase machine; phases advance strictly sequentially and a
// terminal phase ends the attempt.
package deploy

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/shoalproj/shoal/internal/identity"
	"github.com/shoalproj/shoal/internal/preflight"
	"github.com/shoalproj/shoal/internal/ready"
)

// Phase is a state of the deployment machine. Rejected, Ready and Failed are
// terminal; a new operator invocation starts a fresh machine.
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseValidating        Phase = "validating"
	PhaseAdmitted          Phase = "admitted"
	PhaseRejected          Phase = "rejected"
	PhaseProvisioning      Phase = "provisioning"
	PhaseAwaitingReadiness Phase = "awaiting-readiness"
	PhaseReady             Phase = "ready"
	PhaseFailed            Phase = "failed"
)

// DockerAPI is the slice of the Docker client the orchestrator needs.
type DockerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
}

// Options fixes the images, the inference runtime location, and the readiness
// budget for a deployment.
type Options struct {
	Mode preflight.Mode

	BackendImage  string
	FrontendImage string
	ProxyImage    string
	RuntimeImage  string

	Model        string
	RuntimeURL   string // inference runtime API base on the host
	RuntimeAddr  string // host:port probed for runtime readiness
	RuntimeProbe string // "http", "grpc" or "tcp"

	WheelDir string

	ReadyAttempts int
	ReadyInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.Mode == "" {
		o.Mode = preflight.Connected
	}
	if o.BackendImage == "" {
		o.BackendImage = "shoal/backend:latest"
	}
	if o.FrontendImage == "" {
		o.FrontendImage = "shoal/frontend:latest"
	}
	if o.ProxyImage == "" {
		o.ProxyImage = "shoal/proxy:latest"
	}
	if o.RuntimeImage == "" {
		o.RuntimeImage = "ollama/ollama:latest"
	}
	if o.Model == "" {
		o.Model = "codellama"
	}
	if o.RuntimeURL == "" {
		o.RuntimeURL = "http://localhost:11434"
	}
	if o.RuntimeAddr == "" {
		o.RuntimeAddr = "127.0.0.1:11434"
	}
	if o.RuntimeProbe == "" {
		o.RuntimeProbe = "http"
	}
	if o.WheelDir == "" {
		o.WheelDir = "./wheelhouse"
	}
	if o.ReadyAttempts == 0 {
		o.ReadyAttempts = ready.DefaultAttempts
	}
	if o.ReadyInterval == 0 {
		o.ReadyInterval = ready.DefaultInterval
	}
	return o
}

// Request is one operator deployment request.
type Request struct {
	Topology   identity.Topology
	InstanceID int    // ignored for primary; required for client
	Upstream   string // primary backend base URL, client only
}

// Result reports where the machine ended up and the identity it resolved.
type Result struct {
	Descriptor identity.Descriptor
	Binding    identity.PortBinding
	Report     preflight.Report
	Phase      Phase
}

// Orchestrator drives deployment attempts. Zero value is not usable; Docker
// and Validator must be set.
type Orchestrator struct {
	Docker    DockerAPI
	Validator *preflight.Validator
	Logger    log.Logger
	Options   Options

	// WaitReady overrides the readiness wait; tests use it. Nil means
	// ready.Wait with the configured budget.
	WaitReady func(ctx context.Context, checker ready.Checker, addr string) error
}

// Deploy runs the full phase machine for one request. On a non-nil error the
// returned Result still carries the terminal phase and, when validation ran,
// the readiness report. A post-commit failure leaves the partially started
// instance running for inspection.
func (o *Orchestrator) Deploy(ctx context.Context, req Request) (Result, error) {
	opts := o.Options.withDefaults()
	logger := o.logger()
	res := Result{Phase: PhaseIdle}

	instanceID, err := resolveInstanceID(req)
	if err != nil {
		res.Phase = PhaseRejected
		return res, err
	}
	res.Descriptor = identity.Descriptor{InstanceID: instanceID, Topology: req.Topology}

	res.Phase = PhaseValidating
	level.Info(logger).Log("phase", res.Phase, "topology", req.Topology, "instance", instanceID, "mode", opts.Mode)

	report := o.Validator.Validate(ctx, req.Topology, opts.Mode)
	res.Report = report
	if !report.OK {
		res.Phase = PhaseRejected
		return res, &RejectedError{Report: report}
	}
	res.Phase = PhaseAdmitted

	res.Binding = identity.Allocate(instanceID)
	level.Info(logger).Log("phase", res.Phase, "frontend_port", res.Binding.Frontend, "backend_port", res.Binding.Backend)

	res.Phase = PhaseProvisioning
	if err := o.provision(ctx, req.Topology, instanceID, res.Binding, req.Upstream, opts); err != nil {
		res.Phase = PhaseFailed
		return res, err
	}

	res.Phase = PhaseAwaitingReadiness
	level.Info(logger).Log("phase", res.Phase)
	if err := o.awaitReadiness(ctx, req.Topology, res.Binding, opts); err != nil {
		// Deliberately no teardown: the operator inspects the containers.
		res.Phase = PhaseFailed
		return res, err
	}

	res.Phase = PhaseReady
	level.Info(logger).Log("phase", res.Phase, "frontend", res.Binding.FrontendURL(), "backend", res.Binding.BackendURL())
	return res, nil
}

func resolveInstanceID(req Request) (int, error) {
	switch req.Topology {
	case identity.Primary:
		return identity.PrimaryInstanceID, nil
	case identity.Client:
		if req.InstanceID < 1 {
			return 0, fmt.Errorf("client topology requires a positive instance id, got %d", req.InstanceID)
		}
		if req.InstanceID == identity.PrimaryInstanceID {
			return 0, fmt.Errorf("instance id %d is reserved for the primary", identity.PrimaryInstanceID)
		}
		return req.InstanceID, nil
	default:
		return 0, fmt.Errorf("unknown topology %q", req.Topology)
	}
}

func (o *Orchestrator) awaitReadiness(ctx context.Context, topology identity.Topology, binding identity.PortBinding, opts Options) error {
	wait := o.WaitReady
	if wait == nil {
		wait = func(ctx context.Context, checker ready.Checker, addr string) error {
			return ready.Wait(ctx, checker, addr, opts.ReadyAttempts, opts.ReadyInterval, func(attempt int, err error) {
				level.Debug(o.logger()).Log("msg", "readiness probe failed", "addr", addr, "attempt", attempt, "err", err)
			})
		}
	}

	backendAddr := fmt.Sprintf("127.0.0.1:%d", binding.Backend)

	if topology == identity.Primary {
		if err := wait(ctx, runtimeChecker(opts.RuntimeProbe), opts.RuntimeAddr); err != nil {
			return &ReadinessError{Dependency: "inference runtime", Err: err}
		}
		if err := wait(ctx, &ready.HTTP{Path: "/health"}, backendAddr); err != nil {
			return &ReadinessError{Dependency: "backend API", Err: err}
		}
		return nil
	}

	if err := wait(ctx, &ready.HTTP{Path: "/health"}, backendAddr); err != nil {
		return &ReadinessError{Dependency: "client proxy", Err: err}
	}
	return nil
}

func runtimeChecker(probe string) ready.Checker {
	switch probe {
	case "grpc":
		return ready.GRPC{}
	case "tcp":
		return ready.TCP{}
	default:
		return &ready.HTTP{}
	}
}

func (o *Orchestrator) logger() log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.NewNopLogger()
}
