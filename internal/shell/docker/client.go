package docker

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/go-connections/nat"
)

// =============================================================================
// Docker Client Implementation
// =============================================================================

// DockerClient implements the Client interface using the Docker SDK.
type DockerClient struct {
	cli *client.Client
}

// NewDockerClient connects to the Docker engine.
//
// An explicit host is used as given. Otherwise DOCKER_HOST and the default
// socket are tried first, then the per-user sockets of Docker Desktop,
// Colima and rootless Docker. The first one answering a ping wins; when none
// does, the environment default is returned so the caller's Ping reports
// the failure.
func NewDockerClient(ctx context.Context, host string) (*DockerClient, error) {
	if host != "" {
		cli, err := client.NewClientWithOpts(client.WithHost(host), client.WithAPIVersionNegotiation())
		if err != nil {
			return nil, NewDockerError("NewDockerClient", "", host, err.Error(), ErrConnectionFailed)
		}
		return &DockerClient{cli: cli}, nil
	}

	fallback, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, NewDockerError("NewDockerClient", "", "", err.Error(), ErrConnectionFailed)
	}
	if _, err := fallback.Ping(ctx); err == nil || os.Getenv("DOCKER_HOST") != "" {
		return &DockerClient{cli: fallback}, nil
	}

	for _, sock := range userSockets() {
		if _, err := os.Stat(sock); err != nil {
			continue
		}
		cli, err := client.NewClientWithOpts(client.WithHost("unix://"+sock), client.WithAPIVersionNegotiation())
		if err != nil {
			continue
		}
		if _, err := cli.Ping(ctx); err == nil {
			fallback.Close()
			return &DockerClient{cli: cli}, nil
		}
		cli.Close()
	}
	return &DockerClient{cli: fallback}, nil
}

// userSockets lists per-user Docker sockets in probe order.
func userSockets() []string {
	var socks []string
	if home, err := os.UserHomeDir(); err == nil {
		socks = append(socks,
			filepath.Join(home, ".docker", "run", "docker.sock"),
			filepath.Join(home, ".colima", "default", "docker.sock"),
		)
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		socks = append(socks, filepath.Join(dir, "docker.sock"))
	}
	return socks
}

// Ping checks if Docker daemon is reachable.
func (d *DockerClient) Ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return NewDockerError("Ping", "", d.cli.DaemonHost(), err.Error(), ErrConnectionFailed)
	}
	return nil
}

// Close closes the Docker client connection.
func (d *DockerClient) Close() error {
	return d.cli.Close()
}

// =============================================================================
// Container Operations
// =============================================================================

// CreateContainer creates a container attached to spec.Network under its own
// name as alias, so peers on the instance network can resolve it.
func (d *DockerClient) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	config := &container.Config{
		Image:    spec.Image,
		Cmd:      spec.Command,
		Hostname: spec.Hostname,
		Labels:   spec.Labels,
		Env:      envList(spec.Env),
	}
	hostConfig := &container.HostConfig{
		CapAdd: spec.CapAdd,
		Resources: container.Resources{
			Memory: spec.MemoryLimit,
		},
	}
	if spec.RestartPolicy != "" {
		hostConfig.RestartPolicy = container.RestartPolicy{Name: container.RestartPolicyMode(spec.RestartPolicy)}
	}

	if len(spec.Ports) > 0 {
		exposed, bindings, err := portMaps(spec.Ports)
		if err != nil {
			return "", NewDockerError("CreateContainer", "container", spec.Name, err.Error(), err)
		}
		config.ExposedPorts = exposed
		hostConfig.PortBindings = bindings
	}

	for _, v := range spec.Volumes {
		hostConfig.Mounts = append(hostConfig.Mounts, mount.Mount{
			Type:   mount.TypeVolume,
			Source: v.Source,
			Target: v.Target,
		})
	}

	var networkConfig *network.NetworkingConfig
	if spec.Network != "" {
		networkConfig = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				spec.Network: {Aliases: []string{spec.Name}},
			},
		}
	}

	resp, err := d.cli.ContainerCreate(ctx, config, hostConfig, networkConfig, nil, spec.Name)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return "", wrapEngineError("CreateContainer", "image", spec.Image, err)
		}
		return "", wrapEngineError("CreateContainer", "container", spec.Name, err)
	}
	return resp.ID, nil
}

// envList renders env as sorted KEY=value pairs so container configs are
// reproducible.
func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func portMaps(ports []PortBinding) (nat.PortSet, nat.PortMap, error) {
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, p := range ports {
		proto := p.Protocol
		if proto == "" {
			proto = "tcp"
		}
		port, err := nat.NewPort(proto, strconv.Itoa(p.ContainerPort))
		if err != nil {
			return nil, nil, err
		}
		exposed[port] = struct{}{}

		hostPort := ""
		if p.HostPort != 0 {
			hostPort = strconv.Itoa(p.HostPort)
		}
		bindings[port] = append(bindings[port], nat.PortBinding{HostIP: p.HostIP, HostPort: hostPort})
	}
	return exposed, bindings, nil
}

// StartContainer starts a created or stopped container.
func (d *DockerClient) StartContainer(ctx context.Context, containerID string) error {
	err := d.cli.ContainerStart(ctx, containerID, container.StartOptions{})
	return wrapEngineError("StartContainer", "container", containerID, err)
}

// StopContainer stops a running container. A nil timeout uses the engine
// default.
func (d *DockerClient) StopContainer(ctx context.Context, containerID string, timeout *time.Duration) error {
	var opts container.StopOptions
	if timeout != nil {
		seconds := int(timeout.Seconds())
		opts.Timeout = &seconds
	}
	err := d.cli.ContainerStop(ctx, containerID, opts)
	return wrapEngineError("StopContainer", "container", containerID, err)
}

// RemoveContainer removes a container.
func (d *DockerClient) RemoveContainer(ctx context.Context, containerID string, opts RemoveOptions) error {
	err := d.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force:         opts.Force,
		RemoveVolumes: opts.RemoveVolumes,
	})
	return wrapEngineError("RemoveContainer", "container", containerID, err)
}

// InspectContainer returns the state, published ports and network addresses
// of a container.
func (d *DockerClient) InspectContainer(ctx context.Context, containerID string) (*ContainerInfo, error) {
	resp, err := d.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return nil, wrapEngineError("InspectContainer", "container", containerID, err)
	}

	info := &ContainerInfo{
		ID:       resp.ID,
		Name:     strings.TrimPrefix(resp.Name, "/"),
		Networks: map[string]string{},
	}
	info.CreatedAt, _ = time.Parse(time.RFC3339Nano, resp.Created)
	if resp.Config != nil {
		info.Image = resp.Config.Image
		info.Labels = resp.Config.Labels
	}
	if st := resp.State; st != nil {
		info.Status = ContainerStatus(st.Status)
		info.ExitCode = st.ExitCode
		if started, err := time.Parse(time.RFC3339Nano, st.StartedAt); err == nil && !started.IsZero() {
			info.StartedAt = &started
		}
	}
	if ns := resp.NetworkSettings; ns != nil {
		for port, bindings := range ns.Ports {
			for _, b := range bindings {
				hostPort, _ := strconv.Atoi(b.HostPort)
				info.Ports = append(info.Ports, PortBinding{
					ContainerPort: port.Int(),
					HostPort:      hostPort,
					Protocol:      port.Proto(),
					HostIP:        b.HostIP,
				})
			}
		}
		for name, ep := range ns.Networks {
			if ep != nil {
				info.Networks[name] = ep.IPAddress
			}
		}
	}
	return info, nil
}

// ListContainers returns the containers matching opts.
func (d *DockerClient) ListContainers(ctx context.Context, opts ListOptions) ([]ContainerInfo, error) {
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{
		All:     opts.All,
		Filters: filterArgs(opts.Filters),
	})
	if err != nil {
		return nil, wrapEngineError("ListContainers", "container", "", err)
	}

	result := make([]ContainerInfo, 0, len(containers))
	for _, c := range containers {
		info := ContainerInfo{
			ID:        c.ID,
			Image:     c.Image,
			Status:    ContainerStatus(c.State),
			CreatedAt: time.Unix(c.Created, 0),
			Labels:    c.Labels,
		}
		if len(c.Names) > 0 {
			info.Name = strings.TrimPrefix(c.Names[0], "/")
		}
		for _, p := range c.Ports {
			info.Ports = append(info.Ports, PortBinding{
				ContainerPort: int(p.PrivatePort),
				HostPort:      int(p.PublicPort),
				Protocol:      p.Type,
				HostIP:        p.IP,
			})
		}
		result = append(result, info)
	}
	return result, nil
}

// ContainerLogs returns the raw multiplexed log stream of a container.
// Use stdcopy.StdCopy to split it into stdout and stderr.
func (d *DockerClient) ContainerLogs(ctx context.Context, containerID string, opts LogOptions) (io.ReadCloser, error) {
	logOpts := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     opts.Follow,
		Tail:       opts.Tail,
		Timestamps: opts.Timestamps,
	}
	if !opts.Since.IsZero() {
		logOpts.Since = opts.Since.Format(time.RFC3339)
	}

	reader, err := d.cli.ContainerLogs(ctx, containerID, logOpts)
	if err != nil {
		return nil, wrapEngineError("ContainerLogs", "container", containerID, err)
	}
	return reader, nil
}

// =============================================================================
// Network Operations
// =============================================================================

// CreateNetwork creates a network, bridge unless spec says otherwise.
func (d *DockerClient) CreateNetwork(ctx context.Context, spec NetworkSpec) (string, error) {
	driver := spec.Driver
	if driver == "" {
		driver = "bridge"
	}
	resp, err := d.cli.NetworkCreate(ctx, spec.Name, network.CreateOptions{
		Driver: driver,
		Labels: spec.Labels,
	})
	if err != nil {
		return "", wrapEngineError("CreateNetwork", "network", spec.Name, err)
	}
	return resp.ID, nil
}

// RemoveNetwork removes a network.
func (d *DockerClient) RemoveNetwork(ctx context.Context, networkID string) error {
	return wrapEngineError("RemoveNetwork", "network", networkID, d.cli.NetworkRemove(ctx, networkID))
}

// ListNetworks returns the networks matching the given filters.
func (d *DockerClient) ListNetworks(ctx context.Context, opts ListOptions) ([]NetworkInfo, error) {
	networks, err := d.cli.NetworkList(ctx, network.ListOptions{Filters: filterArgs(opts.Filters)})
	if err != nil {
		return nil, wrapEngineError("ListNetworks", "network", "", err)
	}

	result := make([]NetworkInfo, 0, len(networks))
	for _, n := range networks {
		result = append(result, NetworkInfo{ID: n.ID, Name: n.Name, Labels: n.Labels})
	}
	return result, nil
}

// =============================================================================
// Volume Operations
// =============================================================================

// CreateVolume creates a local volume. Creating an existing volume is a no-op.
func (d *DockerClient) CreateVolume(ctx context.Context, spec VolumeSpec) (string, error) {
	resp, err := d.cli.VolumeCreate(ctx, volume.CreateOptions{
		Name:   spec.Name,
		Driver: "local",
		Labels: spec.Labels,
	})
	if err != nil {
		return "", wrapEngineError("CreateVolume", "volume", spec.Name, err)
	}
	return resp.Name, nil
}

// RemoveVolume removes a volume.
func (d *DockerClient) RemoveVolume(ctx context.Context, volumeName string, force bool) error {
	return wrapEngineError("RemoveVolume", "volume", volumeName, d.cli.VolumeRemove(ctx, volumeName, force))
}

// =============================================================================
// Image Operations
// =============================================================================

// PullImage pulls an image and waits for the pull to finish. Errors reported
// inside the progress stream fail the pull as well.
func (d *DockerClient) PullImage(ctx context.Context, ref string) error {
	reader, err := d.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		if cerrdefs.IsNotFound(err) || strings.Contains(err.Error(), "pull access denied") {
			return NewDockerError("PullImage", "image", ref, err.Error(), ErrImageNotFound)
		}
		return NewDockerError("PullImage", "image", ref, err.Error(), ErrImagePullFailed)
	}
	defer reader.Close()

	if err := jsonmessage.DisplayJSONMessagesStream(reader, io.Discard, 0, false, nil); err != nil {
		if strings.Contains(err.Error(), "manifest unknown") || strings.Contains(err.Error(), "not found") {
			return NewDockerError("PullImage", "image", ref, err.Error(), ErrImageNotFound)
		}
		return NewDockerError("PullImage", "image", ref, fmt.Sprintf("pull stream: %v", err), ErrImagePullFailed)
	}
	return nil
}

// ImageExists reports whether an image is present locally.
func (d *DockerClient) ImageExists(ctx context.Context, ref string) (bool, error) {
	if _, err := d.cli.ImageInspect(ctx, ref); err != nil {
		if cerrdefs.IsNotFound(err) {
			return false, nil
		}
		return false, wrapEngineError("ImageExists", "image", ref, err)
	}
	return true, nil
}

func filterArgs(m map[string]string) filters.Args {
	f := filters.NewArgs()
	for k, v := range m {
		f.Add(k, v)
	}
	return f
}
