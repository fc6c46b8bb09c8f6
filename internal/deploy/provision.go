package deploy

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/go-connections/nat"
	"github.com/go-kit/log/level"

	"github.com/shoalproj/shoal/internal/identity"
)

// NamespaceLabel keys every container to its instance. Provisioning removes
// whatever carries the label before creating anew, which is what makes
// re-deploying an id a replace instead of a duplicate.
const NamespaceLabel = "shoal.instance"

// Ports inside the containers; the host side comes from the allocator.
const (
	containerBackendPort  = 8001
	containerFrontendPort = 8501
	runtimePort           = 11434
)

// ContainerName returns the name of one container in an instance's group.
func ContainerName(instanceID int, role string) string {
	return fmt.Sprintf("shoal%d-%s", instanceID, role)
}

// containerSpec is one member of an instance's process group.
type containerSpec struct {
	role     string
	image    string
	env      []string
	hostPort int
	port     int  // container-side port
	gpu      bool // attach all host GPUs
}

func (o *Orchestrator) provision(ctx context.Context, topology identity.Topology, instanceID int, binding identity.PortBinding, upstream string, opts Options) error {
	// Replace, never duplicate: clear the namespace first.
	if err := o.removeNamespace(ctx, instanceID); err != nil {
		return fmt.Errorf("clear instance %d namespace: %w", instanceID, err)
	}

	var specs []containerSpec
	switch topology {
	case identity.Primary:
		specs = []containerSpec{
			{
				role:     "runtime",
				image:    opts.RuntimeImage,
				hostPort: runtimePort,
				port:     runtimePort,
				gpu:      true,
			},
			{
				role:  "backend",
				image: opts.BackendImage,
				env: []string{
					"SHOAL_INSTANCE_ID=" + strconv.Itoa(instanceID),
					"MODEL_NAME=" + opts.Model,
					fmt.Sprintf("RUNTIME_URL=http://host.docker.internal:%d", runtimePort),
				},
				hostPort: binding.Backend,
				port:     containerBackendPort,
			},
			{
				role:  "frontend",
				image: opts.FrontendImage,
				env: []string{
					fmt.Sprintf("BACKEND_URL=http://host.docker.internal:%d", binding.Backend),
				},
				hostPort: binding.Frontend,
				port:     containerFrontendPort,
			},
		}
	case identity.Client:
		specs = []containerSpec{
			{
				role:  "proxy",
				image: opts.ProxyImage,
				env: []string{
					"SHOAL_INSTANCE_ID=" + strconv.Itoa(instanceID),
					"SHOAL_LISTEN_PORT=" + strconv.Itoa(containerBackendPort),
					"SHOAL_UPSTREAM_URL=" + rewriteHostLocal(upstream),
				},
				hostPort: binding.Backend,
				port:     containerBackendPort,
			},
			{
				role:  "frontend",
				image: opts.FrontendImage,
				env: []string{
					fmt.Sprintf("BACKEND_URL=http://host.docker.internal:%d", binding.Backend),
				},
				hostPort: binding.Frontend,
				port:     containerFrontendPort,
			},
		}
	}

	for _, spec := range specs {
		if err := o.createAndStart(ctx, instanceID, spec); err != nil {
			return err
		}
	}
	return nil
}

// rewriteHostLocal maps a host-local upstream URL to the address containers
// reach the host at. The operator thinks in host terms (localhost:8001), but
// inside the proxy container localhost is the proxy's own listener, so
// passing the URL verbatim would make the proxy forward to itself.
func rewriteHostLocal(upstream string) string {
	u, err := url.Parse(upstream)
	if err != nil {
		return upstream
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1":
		if port := u.Port(); port != "" {
			u.Host = "host.docker.internal:" + port
		} else {
			u.Host = "host.docker.internal"
		}
		return u.String()
	}
	return upstream
}

func (o *Orchestrator) createAndStart(ctx context.Context, instanceID int, spec containerSpec) error {
	name := ContainerName(instanceID, spec.role)

	portKey := nat.Port(fmt.Sprintf("%d/tcp", spec.port))
	cfg := &container.Config{
		Image: spec.image,
		Env:   spec.env,
		Labels: map[string]string{
			NamespaceLabel: strconv.Itoa(instanceID),
			"shoal.role":   spec.role,
		},
		ExposedPorts: nat.PortSet{portKey: struct{}{}},
	}
	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			portKey: []nat.PortBinding{{HostPort: strconv.Itoa(spec.hostPort)}},
		},
		ExtraHosts: []string{"host.docker.internal:host-gateway"},
	}
	if spec.gpu {
		hostCfg.Resources.DeviceRequests = []container.DeviceRequest{{
			Driver:       "nvidia",
			Count:        -1, // all GPUs
			Capabilities: [][]string{{"gpu"}},
		}}
	}

	resp, err := o.Docker.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return &ProvisionError{Container: name, Err: fmt.Errorf("create: %w", err)}
	}
	if err := o.Docker.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return &ProvisionError{Container: name, Err: fmt.Errorf("start: %w", err)}
	}

	level.Info(o.logger()).Log("msg", "container started", "container", name, "image", spec.image, "host_port", spec.hostPort)
	return nil
}

// removeNamespace force-removes every container labelled with the instance id.
func (o *Orchestrator) removeNamespace(ctx context.Context, instanceID int) error {
	existing, err := o.Namespace(ctx, instanceID)
	if err != nil {
		return err
	}
	for _, c := range existing {
		if err := o.Docker.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
			return fmt.Errorf("remove container %s: %w", c.ID, err)
		}
		level.Debug(o.logger()).Log("msg", "removed prior container", "id", c.ID)
	}
	return nil
}

// Namespace lists the containers, running or not, that belong to an instance.
func (o *Orchestrator) Namespace(ctx context.Context, instanceID int) ([]types.Container, error) {
	return o.Docker.ContainerList(ctx, container.ListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("label", fmt.Sprintf("%s=%d", NamespaceLabel, instanceID)),
		),
	})
}
