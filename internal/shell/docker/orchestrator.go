package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/docker/docker/pkg/stdcopy"
	"golang.org/x/sync/errgroup"

	coredeployment "github.com/artpar/redisup/internal/core/deployment"
	"github.com/artpar/redisup/internal/core/domain"
	"github.com/artpar/redisup/internal/core/topology"
	"github.com/artpar/redisup/internal/shell/probe"
	"github.com/artpar/redisup/internal/shell/wiring"
)

// =============================================================================
// Collaborators
// =============================================================================

// ReadinessProbe blocks until a node answers or gives up.
type ReadinessProbe interface {
	WaitForReady(ctx context.Context, t probe.Target) error
}

// Wirer applies cluster and sentinel wiring to ready nodes.
type Wirer interface {
	CreateCluster(ctx context.Context, members []wiring.ClusterMember, password string) error
	MonitorMaster(ctx context.Context, sentinelAddr string, m topology.MonitorConfig) error
}

// =============================================================================
// Orchestrator - Drives Instance Lifecycle
// =============================================================================

// OrchestratorConfig holds orchestrator settings.
type OrchestratorConfig struct {
	// ProbeHost is the host address where published ports are reachable.
	ProbeHost string
	// Images overrides the default images per role.
	Images coredeployment.Images
	// StopTimeout is the grace period given to containers on stop.
	StopTimeout time.Duration
	// TeardownTimeout bounds rollback and removal, which run even after the
	// caller's context is cancelled.
	TeardownTimeout time.Duration
}

// Orchestrator brings instances up phase by phase and tears them down.
type Orchestrator struct {
	docker Client
	probe  ReadinessProbe
	wirer  Wirer
	cfg    OrchestratorConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewOrchestrator creates a new orchestrator.
func NewOrchestrator(docker Client, probe ReadinessProbe, wirer Wirer, cfg OrchestratorConfig, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ProbeHost == "" {
		cfg.ProbeHost = "127.0.0.1"
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 10 * time.Second
	}
	if cfg.TeardownTimeout <= 0 {
		cfg.TeardownTimeout = 60 * time.Second
	}
	cfg.Images = cfg.Images.WithDefaults()
	return &Orchestrator{
		docker: docker,
		probe:  probe,
		wirer:  wirer,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Ping checks that the container runtime is reachable.
func (o *Orchestrator) Ping(ctx context.Context) error {
	if err := o.docker.Ping(ctx); err != nil {
		return domain.NewError("ping", "", nil, domain.ErrRuntimeUnavailable, "", err)
	}
	return nil
}

// =============================================================================
// Deploy
// =============================================================================

// teardownStep undoes one completed forward step.
type teardownStep struct {
	resource string
	undo     func(ctx context.Context) error
}

// deployRun is the state of one Deploy call.
type deployRun struct {
	o        *Orchestrator
	plan     *coredeployment.ResourcePlan
	record   *domain.InstanceRecord
	phase    coredeployment.Phase
	teardown []teardownStep
	logger   *slog.Logger
}

// Deploy creates every resource of the plan and wires the topology.
//
// Phases run strictly in order: network, volumes and images, containers in
// plan order, concurrent readiness probes, then wiring for clusters and
// sentinel groups. Every completed step registers its undo; on any failure,
// including cancellation of ctx, the undo steps run in reverse order.
//
// On success the returned record has status running. On failure the error
// describes the failed step; if teardown also failed, the partial record is
// returned alongside the error with status partially-failed so the caller can
// persist it for a later cleanup.
func (o *Orchestrator) Deploy(ctx context.Context, plan *coredeployment.ResourcePlan, instanceID string) (*domain.InstanceRecord, error) {
	now := o.now().UTC()
	run := &deployRun{
		o:    o,
		plan: plan,
		record: &domain.InstanceRecord{
			ID:        instanceID,
			Name:      plan.Instance,
			Type:      plan.Request.Type,
			Status:    domain.StatusStarting,
			Network:   plan.Network,
			Password:  plan.Request.Password,
			Topology:  plan.Topology(),
			Persist:   plan.Request.Persist,
			Modules:   plan.Request.Modules,
			CreatedAt: now,
			UpdatedAt: now,
		},
		phase:  coredeployment.PhasePlanned,
		logger: o.logger.With("instance", plan.Instance),
	}

	run.logger.Info("deploying instance", "type", plan.Request.Type, "nodes", len(plan.Nodes))

	err := run.execute(ctx)
	if err == nil {
		run.record.Status = domain.StatusRunning
		run.record.UpdatedAt = o.now().UTC()
		run.logger.Info("instance running", "nodes", len(run.record.Nodes))
		return run.record, nil
	}

	run.logger.Error("deploy failed, rolling back", "phase", run.phase, "error", err)
	run.phase = coredeployment.PhaseFailed

	if terr := run.rollback(ctx); terr != nil {
		run.record.Status = domain.StatusPartiallyFailed
		run.record.Error = err.Error()
		run.record.UpdatedAt = o.now().UTC()
		rerr := domain.NewError("rollback", plan.Instance, run.remaining(), domain.ErrRollbackFailed,
			"some resources could not be removed", terr)
		return run.record, errors.Join(err, rerr)
	}
	run.logger.Info("rollback complete")
	return nil, err
}

func (r *deployRun) advance(to coredeployment.Phase) error {
	if err := coredeployment.ValidateTransition(r.phase, to); err != nil {
		return domain.NewError("advance", r.plan.Instance, nil, domain.ErrInvalidTransition, "", err)
	}
	r.logger.Debug("phase", "from", r.phase, "to", to)
	r.phase = to
	return nil
}

func (r *deployRun) push(resource string, undo func(ctx context.Context) error) {
	r.teardown = append(r.teardown, teardownStep{resource: resource, undo: undo})
}

func (r *deployRun) execute(ctx context.Context) error {
	o := r.o

	// 1. Network
	if err := ctx.Err(); err != nil {
		return domain.NewError("create-network", r.plan.Instance, nil, domain.ErrRuntimeUnavailable, "cancelled", err)
	}
	if err := r.createNetwork(ctx); err != nil {
		return err
	}
	if err := r.advance(coredeployment.PhaseNetworkReady); err != nil {
		return err
	}

	// 2. Volumes and images
	if err := r.createVolumes(ctx); err != nil {
		return err
	}
	o.ensureImages(ctx, coredeployment.RequiredImages(r.plan, o.cfg.Images), r.logger)

	// 3. Containers, in plan order
	if err := r.advance(coredeployment.PhaseNodesStarting); err != nil {
		return err
	}
	for _, node := range r.plan.Nodes {
		if err := ctx.Err(); err != nil {
			return domain.NewError("start-node", r.plan.Instance, []string{node.ContainerName}, domain.ErrRuntimeUnavailable, "cancelled", err)
		}
		if err := r.startNode(ctx, node); err != nil {
			return err
		}
	}

	// 4. Readiness, all nodes concurrently
	if err := r.waitReady(ctx); err != nil {
		return err
	}
	if err := r.advance(coredeployment.PhaseNodesReady); err != nil {
		return err
	}

	// 5. Wiring
	next, _ := coredeployment.NextPhase(r.plan.Request.Type, coredeployment.PhaseNodesReady)
	if next == coredeployment.PhaseWiring {
		if err := r.advance(coredeployment.PhaseWiring); err != nil {
			return err
		}
		if err := r.wire(ctx); err != nil {
			return err
		}
	}
	return r.advance(coredeployment.PhaseWired)
}

func (r *deployRun) createNetwork(ctx context.Context) error {
	o := r.o
	name := r.plan.Network
	_, err := o.docker.CreateNetwork(ctx, NetworkSpec{
		Name:   name,
		Driver: "bridge",
		Labels: map[string]string{
			coredeployment.LabelManaged:    "true",
			coredeployment.LabelInstance:   r.plan.Instance,
			coredeployment.LabelInstanceID: r.record.ID,
		},
	})
	if err != nil {
		if errors.Is(err, ErrNetworkAlreadyExists) {
			// Left over from an earlier run; reuse it but leave it in place on rollback.
			r.logger.Debug("network already exists, reusing", "network", name)
			return nil
		}
		return domain.NewError("create-network", r.plan.Instance, []string{name}, runtimeKind(err), "", err)
	}
	r.logger.Debug("created network", "network", name)
	r.push("network "+name, func(ctx context.Context) error {
		return o.docker.RemoveNetwork(ctx, name)
	})
	return nil
}

func (r *deployRun) createVolumes(ctx context.Context) error {
	if !r.plan.Request.Persist {
		return nil
	}
	o := r.o
	for _, node := range r.plan.Nodes {
		if !node.Role.IsRedis() && node.Role != domain.RoleEnterpriseNode {
			continue
		}
		name := coredeployment.VolumeName(node.ContainerName)
		if _, err := o.docker.CreateVolume(ctx, VolumeSpec{
			Name: name,
			Labels: map[string]string{
				coredeployment.LabelManaged:  "true",
				coredeployment.LabelInstance: r.plan.Instance,
			},
		}); err != nil {
			return domain.NewError("create-volume", r.plan.Instance, []string{name}, runtimeKind(err), "", err)
		}
		r.logger.Debug("created volume", "volume", name)
		r.push("volume "+name, func(ctx context.Context) error {
			return o.docker.RemoveVolume(ctx, name, true)
		})
	}
	return nil
}

// ensureImages pulls missing images. Pull failures are logged; container
// creation reports the real error if the image is still absent.
func (o *Orchestrator) ensureImages(ctx context.Context, images []string, logger *slog.Logger) {
	for _, img := range images {
		exists, err := o.docker.ImageExists(ctx, img)
		if err == nil && exists {
			continue
		}
		logger.Info("pulling image", "image", img)
		if err := o.docker.PullImage(ctx, img); err != nil {
			logger.Warn("failed to pull image, trying anyway", "image", img, "error", err)
		}
	}
}

func (r *deployRun) startNode(ctx context.Context, node coredeployment.NodeAllocation) error {
	o := r.o
	plan := coredeployment.BuildContainerPlan(coredeployment.BuildContainerPlanParams{
		Plan:       r.plan,
		Node:       node,
		Images:     o.cfg.Images,
		InstanceID: r.record.ID,
	})
	resources := nodeResources(node)

	id, err := o.docker.CreateContainer(ctx, toContainerSpec(plan))
	if err != nil {
		return domain.NewError("create-node", r.plan.Instance, resources, runtimeKind(err), "", err)
	}
	r.push("container "+node.ContainerName, func(ctx context.Context) error {
		return o.docker.RemoveContainer(ctx, id, RemoveOptions{Force: true})
	})
	r.record.Nodes = append(r.record.Nodes, node.Record(id))

	if err := o.docker.StartContainer(ctx, id); err != nil {
		kind := runtimeKind(err)
		if errors.Is(err, ErrPortAlreadyAllocated) {
			kind = domain.ErrPortConflict
		}
		return domain.NewError("start-node", r.plan.Instance, resources, kind, "", err)
	}
	r.logger.Debug("started container", "container", node.ContainerName, "role", node.Role, "port", node.HostPort)
	return nil
}

func (r *deployRun) waitReady(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, node := range r.plan.Nodes {
		target := r.o.probeTarget(r.plan.Request, node)
		g.Go(func() error {
			if err := r.o.probe.WaitForReady(gctx, target); err != nil {
				return domain.NewError("wait-ready", r.plan.Instance, nodeResources(node), domain.ErrNodeNotReady, "", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (o *Orchestrator) probeTarget(req domain.DeploymentRequest, node coredeployment.NodeAllocation) probe.Target {
	t := probe.Target{Name: node.ContainerName, Host: o.cfg.ProbeHost, Port: node.HostPort}
	switch node.Role {
	case domain.RoleMaster, domain.RoleReplica:
		t.Kind = probe.KindRedis
		t.Password = req.Password
	case domain.RoleSentinel:
		t.Kind = probe.KindRedis
	case domain.RoleEnterpriseNode:
		t.Kind = probe.KindHTTPS
	case domain.RoleInsight:
		t.Kind = probe.KindHTTP
	}
	return t
}

// =============================================================================
// Wiring
// =============================================================================

func (r *deployRun) wire(ctx context.Context) error {
	switch r.plan.Request.Type {
	case domain.TypeCluster:
		return r.wireCluster(ctx)
	case domain.TypeSentinel:
		return r.wireSentinels(ctx)
	}
	return nil
}

func (r *deployRun) wireCluster(ctx context.Context) error {
	o := r.o
	masters := r.plan.NodesByRole(domain.RoleMaster)
	replicas := r.plan.NodesByRole(domain.RoleReplica)

	endpoints := func(nodes []coredeployment.NodeAllocation) ([]topology.Endpoint, error) {
		out := make([]topology.Endpoint, 0, len(nodes))
		for _, n := range nodes {
			info, err := o.docker.InspectContainer(ctx, n.ContainerName)
			if err != nil {
				return nil, domain.NewError("wire-cluster", r.plan.Instance, []string{n.ContainerName}, runtimeKind(err), "", err)
			}
			ip := info.Networks[r.plan.Network]
			if ip == "" {
				return nil, domain.NewError("wire-cluster", r.plan.Instance, []string{n.ContainerName, r.plan.Network},
					domain.ErrWiringFailed, "container has no address on the instance network", nil)
			}
			out = append(out, topology.Endpoint{Host: ip, Port: n.InternalPort})
		}
		return out, nil
	}
	masterEPs, err := endpoints(masters)
	if err != nil {
		return err
	}
	replicaEPs, err := endpoints(replicas)
	if err != nil {
		return err
	}

	layout := topology.ClusterLayout(masterEPs, replicaEPs, r.plan.Request.Replicas)
	nodes := append(append([]coredeployment.NodeAllocation{}, masters...), replicas...)
	members := make([]wiring.ClusterMember, len(layout))
	for i, n := range layout {
		members[i] = wiring.ClusterMember{
			Addr:        net.JoinHostPort(o.cfg.ProbeHost, strconv.Itoa(nodes[i].HostPort)),
			ClusterNode: n,
		}
	}

	r.logger.Info("creating cluster", "masters", len(masters), "replicas", len(replicas))
	if err := o.wirer.CreateCluster(ctx, members, r.plan.Request.Password); err != nil {
		return domain.NewError("wire-cluster", r.plan.Instance, r.plan.ContainerNames(), domain.ErrWiringFailed, "", err)
	}
	return nil
}

func (r *deployRun) wireSentinels(ctx context.Context) error {
	o := r.o
	req := r.plan.Request

	var masters []topology.Endpoint
	for _, m := range r.plan.NodesByRole(domain.RoleMaster) {
		masters = append(masters, topology.Endpoint{Host: m.ContainerName, Port: m.InternalPort})
	}
	monitors := topology.SentinelMonitors(masters, req.Quorum, req.Password)
	sentinels := r.plan.NodesByRole(domain.RoleSentinel)

	var (
		mu     sync.Mutex
		acked  int
		failed []string
		errs   []error
		g      errgroup.Group
	)
	for _, s := range sentinels {
		addr := net.JoinHostPort(o.cfg.ProbeHost, strconv.Itoa(s.HostPort))
		g.Go(func() error {
			for _, m := range monitors {
				if err := o.wirer.MonitorMaster(ctx, addr, m); err != nil {
					err = fmt.Errorf("%s: %w", s.ContainerName, err)
					mu.Lock()
					failed = append(failed, s.ContainerName)
					errs = append(errs, err)
					mu.Unlock()
					return err
				}
			}
			mu.Lock()
			acked++
			mu.Unlock()
			return nil
		})
	}
	// Every goroutine runs to completion; Wait reports the first failure and
	// errs holds all of them.
	waitErr := g.Wait()

	outcome := topology.WiringOutcome{Total: len(sentinels), Acked: acked, Quorum: req.Quorum}
	r.logger.Info("sentinel monitors registered", "acked", outcome.Acked, "total", outcome.Total, "quorum", outcome.Quorum)
	if waitErr == nil && outcome.Complete() {
		return nil
	}
	msg := fmt.Sprintf("%d of %d sentinels acknowledged (quorum %d)", outcome.Acked, outcome.Total, outcome.Quorum)
	if !outcome.QuorumReached() {
		msg += ", quorum not reached"
	}
	return domain.NewError("wire-sentinel", r.plan.Instance, failed, domain.ErrWiringFailed, msg, errors.Join(errs...))
}

// =============================================================================
// Rollback
// =============================================================================

// rollback runs the teardown steps in reverse order. It ignores cancellation
// of ctx so an interrupted deploy still cleans up.
func (r *deployRun) rollback(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.o.cfg.TeardownTimeout)
	defer cancel()

	var errs []error
	var left []teardownStep
	for i := len(r.teardown) - 1; i >= 0; i-- {
		step := r.teardown[i]
		if err := step.undo(ctx); err != nil && !IsNotFound(err) {
			r.logger.Warn("teardown step failed", "resource", step.resource, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", step.resource, err))
			left = append(left, step)
			continue
		}
		r.logger.Debug("removed", "resource", step.resource)
	}
	r.teardown = left
	return errors.Join(errs...)
}

// remaining lists resources whose teardown failed.
func (r *deployRun) remaining() []string {
	out := make([]string, 0, len(r.teardown))
	for _, s := range r.teardown {
		out = append(out, s.resource)
	}
	return out
}

// =============================================================================
// Stop / Remove
// =============================================================================

// Stop stops every container of the instance, last node first. Containers
// that are already stopped or gone are skipped.
func (o *Orchestrator) Stop(ctx context.Context, rec domain.InstanceRecord) error {
	logger := o.logger.With("instance", rec.Name)
	logger.Info("stopping instance", "nodes", len(rec.Nodes))

	timeout := o.cfg.StopTimeout
	var errs []error
	for i := len(rec.Nodes) - 1; i >= 0; i-- {
		n := rec.Nodes[i]
		err := o.docker.StopContainer(ctx, containerRef(n), &timeout)
		switch {
		case err == nil:
			logger.Debug("stopped container", "container", n.ContainerName)
		case errors.Is(err, ErrContainerNotRunning), IsNotFound(err):
			logger.Debug("container already stopped", "container", n.ContainerName)
		default:
			errs = append(errs, domain.NewError("stop-node", rec.Name, []string{n.ContainerName}, runtimeKind(err), "", err))
		}
	}
	return errors.Join(errs...)
}

// Remove force-removes every container and the network of the instance.
// Data volumes are removed only when removeVolumes is set. Resources that are
// already gone count as removed.
func (o *Orchestrator) Remove(ctx context.Context, rec domain.InstanceRecord, removeVolumes bool) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.TeardownTimeout)
	defer cancel()

	logger := o.logger.With("instance", rec.Name)
	logger.Info("removing instance", "nodes", len(rec.Nodes), "volumes", removeVolumes)

	var errs []error
	for i := len(rec.Nodes) - 1; i >= 0; i-- {
		n := rec.Nodes[i]
		if err := o.docker.RemoveContainer(ctx, containerRef(n), RemoveOptions{Force: true}); err != nil && !IsNotFound(err) {
			errs = append(errs, domain.NewError("remove-node", rec.Name, []string{n.ContainerName}, runtimeKind(err), "", err))
			continue
		}
		logger.Debug("removed container", "container", n.ContainerName)
	}

	if rec.Network != "" {
		if err := o.docker.RemoveNetwork(ctx, rec.Network); err != nil && !IsNotFound(err) {
			errs = append(errs, domain.NewError("remove-network", rec.Name, []string{rec.Network}, runtimeKind(err), "", err))
		}
	}

	if removeVolumes && rec.Persist {
		for _, n := range rec.Nodes {
			if !n.Role.IsRedis() && n.Role != domain.RoleEnterpriseNode {
				continue
			}
			name := coredeployment.VolumeName(n.ContainerName)
			if err := o.docker.RemoveVolume(ctx, name, true); err != nil && !IsNotFound(err) {
				errs = append(errs, domain.NewError("remove-volume", rec.Name, []string{name}, runtimeKind(err), "", err))
			}
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// Inspect / Logs
// =============================================================================

// NodeState is the observed runtime state of one recorded node.
type NodeState struct {
	Node   domain.NodeRecord
	Exists bool
	Status ContainerStatus
}

// Running reports whether the node's container is up.
func (s NodeState) Running() bool {
	return s.Exists && s.Status == ContainerStatusRunning
}

// Inspect looks up every node of the instance in the runtime. Missing
// containers are reported with Exists false, not as an error.
func (o *Orchestrator) Inspect(ctx context.Context, rec domain.InstanceRecord) ([]NodeState, error) {
	states := make([]NodeState, 0, len(rec.Nodes))
	for _, n := range rec.Nodes {
		info, err := o.docker.InspectContainer(ctx, n.ContainerName)
		if err != nil {
			if IsNotFound(err) {
				states = append(states, NodeState{Node: n})
				continue
			}
			return nil, domain.NewError("inspect", rec.Name, []string{n.ContainerName}, runtimeKind(err), "", err)
		}
		states = append(states, NodeState{Node: n, Exists: true, Status: info.Status})
	}
	return states, nil
}

// Logs copies a container's log stream to stdout and stderr until it ends or
// ctx is cancelled.
func (o *Orchestrator) Logs(ctx context.Context, container string, opts LogOptions, stdout, stderr io.Writer) error {
	rc, err := o.docker.ContainerLogs(ctx, container, opts)
	if err != nil {
		return domain.NewError("logs", "", []string{container}, runtimeKind(err), "", err)
	}
	defer rc.Close()

	if _, err := stdcopy.StdCopy(stdout, stderr, rc); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("read logs of %s: %w", container, err)
	}
	return nil
}

// Orphans lists managed containers and networks whose instance label is not
// in known.
func (o *Orchestrator) Orphans(ctx context.Context, known map[string]bool) ([]ContainerInfo, []NetworkInfo, error) {
	filter := ListOptions{All: true, Filters: map[string]string{"label": coredeployment.LabelManaged + "=true"}}

	containers, err := o.docker.ListContainers(ctx, filter)
	if err != nil {
		return nil, nil, domain.NewError("list", "", nil, runtimeKind(err), "", err)
	}
	networks, err := o.docker.ListNetworks(ctx, filter)
	if err != nil {
		return nil, nil, domain.NewError("list", "", nil, runtimeKind(err), "", err)
	}

	var orphanContainers []ContainerInfo
	for _, c := range containers {
		if !known[c.Labels[coredeployment.LabelInstance]] {
			orphanContainers = append(orphanContainers, c)
		}
	}
	var orphanNetworks []NetworkInfo
	for _, n := range networks {
		if !known[n.Labels[coredeployment.LabelInstance]] {
			orphanNetworks = append(orphanNetworks, n)
		}
	}
	return orphanContainers, orphanNetworks, nil
}

// RemoveOrphans force-removes the given containers, then the networks.
func (o *Orchestrator) RemoveOrphans(ctx context.Context, containers []ContainerInfo, networks []NetworkInfo) error {
	var errs []error
	for _, c := range containers {
		if err := o.docker.RemoveContainer(ctx, c.ID, RemoveOptions{Force: true}); err != nil && !IsNotFound(err) {
			errs = append(errs, err)
		}
	}
	for _, n := range networks {
		if err := o.docker.RemoveNetwork(ctx, n.Name); err != nil && !IsNotFound(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// Helper Functions
// =============================================================================

// toContainerSpec converts a pure container plan into an adapter spec.
func toContainerSpec(p coredeployment.ContainerPlan) ContainerSpec {
	spec := ContainerSpec{
		Name:          p.Name,
		Image:         p.Image,
		Command:       p.Command,
		Env:           p.Env,
		Labels:        p.Labels,
		Network:       p.Network,
		Hostname:      p.Hostname,
		CapAdd:        p.CapAdd,
		RestartPolicy: p.RestartPolicy,
		MemoryLimit:   p.MemoryLimit,
	}
	for _, port := range p.Ports {
		spec.Ports = append(spec.Ports, PortBinding{
			ContainerPort: port.ContainerPort,
			HostPort:      port.HostPort,
			Protocol:      port.Protocol,
		})
	}
	for _, v := range p.Volumes {
		spec.Volumes = append(spec.Volumes, VolumeMount{Source: v.Source, Target: v.Target})
	}
	return spec
}

// runtimeKind classifies an adapter error for the domain taxonomy.
func runtimeKind(err error) error {
	if errors.Is(err, ErrContainerAlreadyExists) || errors.Is(err, ErrNetworkAlreadyExists) {
		return domain.ErrNameConflict
	}
	return domain.ErrRuntimeUnavailable
}

func nodeResources(n coredeployment.NodeAllocation) []string {
	out := []string{n.ContainerName}
	for _, p := range n.HostPorts() {
		out = append(out, strconv.Itoa(p))
	}
	return out
}

// containerRef prefers the container ID and falls back to the name.
func containerRef(n domain.NodeRecord) string {
	if n.ContainerID != "" {
		return n.ContainerID
	}
	return n.ContainerName
}
