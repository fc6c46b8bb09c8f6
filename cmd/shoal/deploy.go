package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/pflag"

	"github.com/shoalproj/shoal/internal/deploy"
	"github.com/shoalproj/shoal/internal/dockerutil"
	"github.com/shoalproj/shoal/internal/identity"
	"github.com/shoalproj/shoal/internal/preflight"
)

// defaultUpstream is the primary backend on the same host, the common case
// for client instances co-located with the primary.
const defaultUpstream = "http://localhost:8001"

func runDeploy(args []string) error {
	flags := pflag.NewFlagSet("deploy", pflag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: shoal deploy <primary|client> [instance_id] [flags]\n\nFlags:\n%s", flags.FlagUsages())
	}

	var (
		upstream      = flags.String("upstream", "", "primary backend base URL for client deploys (prompted when omitted, default "+defaultUpstream+")")
		airGapped     = flags.Bool("air-gapped", false, "require all artifacts to be pre-staged locally")
		model         = flags.String("model", "codellama", "model that must be registered with the inference runtime")
		wheelDir      = flags.String("wheel-dir", "./wheelhouse", "local dependency cache checked in air-gapped mode")
		runtimeProbe  = flags.String("runtime-probe", "http", "inference runtime readiness probe: http, grpc or tcp")
		runtimeAddr   = flags.String("runtime-addr", "127.0.0.1:11434", "host:port probed for inference runtime readiness")
		readyAttempts = flags.Int("ready-attempts", 30, "readiness probe attempts before giving up")
		readyInterval = flags.Duration("ready-interval", 2*time.Second, "delay between readiness probes")
		verbose       = flags.BoolP("verbose", "v", false, "debug logging")
	)

	if err := flags.Parse(args); err != nil {
		return err
	}
	rest := flags.Args()
	if len(rest) < 1 {
		flags.Usage()
		return fmt.Errorf("topology is required")
	}

	topology := identity.Topology(rest[0])
	if !topology.Valid() {
		return fmt.Errorf("topology must be %q or %q, got %q", identity.Primary, identity.Client, rest[0])
	}

	switch *runtimeProbe {
	case "http", "grpc", "tcp":
	default:
		return fmt.Errorf("runtime-probe must be http, grpc or tcp, got %q", *runtimeProbe)
	}

	req := deploy.Request{Topology: topology}
	if topology == identity.Client {
		if len(rest) < 2 {
			return fmt.Errorf("client topology requires an instance id")
		}
		id, err := strconv.Atoi(rest[1])
		if err != nil || id < 1 {
			return fmt.Errorf("instance id must be a positive integer, got %q", rest[1])
		}
		req.InstanceID = id

		req.Upstream = *upstream
		if req.Upstream == "" {
			req.Upstream = promptUpstream(os.Stdin, os.Stderr)
		}
	}

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	if *verbose {
		logger = level.NewFilter(logger, level.AllowDebug())
	} else {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	docker, err := dockerutil.Client()
	if err != nil {
		return fmt.Errorf("docker client: %w", err)
	}

	opts := deploy.Options{
		Mode:          preflight.Connected,
		Model:         *model,
		WheelDir:      *wheelDir,
		RuntimeProbe:  *runtimeProbe,
		RuntimeAddr:   *runtimeAddr,
		ReadyAttempts: *readyAttempts,
		ReadyInterval: *readyInterval,
	}
	if *airGapped {
		opts.Mode = preflight.AirGapped
	}
	opts = applyDefaults(opts)

	o := &deploy.Orchestrator{
		Docker: docker,
		Validator: &preflight.Validator{
			Docker:      docker,
			Accelerator: &preflight.AcceleratorProbe{},
			Artifacts: preflight.ArtifactSet{
				Images:        []string{opts.BackendImage, opts.FrontendImage, opts.ProxyImage},
				PrimaryImages: []string{opts.RuntimeImage},
				WheelDir:      opts.WheelDir,
				Model:         opts.Model,
				RuntimeURL:    opts.RuntimeURL,
			},
			Logger: logger,
		},
		Logger:  logger,
		Options: opts,
	}

	res, err := o.Deploy(context.Background(), req)
	if err != nil {
		var rejected *deploy.RejectedError
		if errors.As(err, &rejected) {
			fmt.Fprintln(os.Stderr, "prerequisites not met:")
			for _, check := range rejected.Report.Failed() {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", check.Name, check.Remediation)
			}
		}
		return err
	}

	fmt.Printf("instance %d (%s) is ready\n", res.Descriptor.InstanceID, res.Descriptor.Topology)
	fmt.Printf("  frontend: %s\n", res.Binding.FrontendURL())
	fmt.Printf("  backend:  %s\n", res.Binding.BackendURL())
	return nil
}

// applyDefaults fills the image and runtime fields the flag set doesn't
// cover. Kept separate so the zero-config path and the flag path agree.
func applyDefaults(opts deploy.Options) deploy.Options {
	if opts.BackendImage == "" {
		opts.BackendImage = "shoal/backend:latest"
	}
	if opts.FrontendImage == "" {
		opts.FrontendImage = "shoal/frontend:latest"
	}
	if opts.ProxyImage == "" {
		opts.ProxyImage = "shoal/proxy:latest"
	}
	if opts.RuntimeImage == "" {
		opts.RuntimeImage = "ollama/ollama:latest"
	}
	if opts.RuntimeURL == "" {
		opts.RuntimeURL = "http://localhost:11434"
	}
	return opts
}

// promptUpstream asks for the primary backend URL, accepting empty input as
// the documented default.
func promptUpstream(in io.Reader, out io.Writer) string {
	fmt.Fprintf(out, "Primary backend URL [%s]: ", defaultUpstream)

	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return defaultUpstream
	}
	answer := strings.TrimSpace(scanner.Text())
	if answer == "" {
		return defaultUpstream
	}
	return answer
}
