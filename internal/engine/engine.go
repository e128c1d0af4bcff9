// Package engine implements the redisup use-cases on top of the planner, the
// topology orchestrator and the instance registry.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"

	coredeployment "github.com/artpar/redisup/internal/core/deployment"
	"github.com/artpar/redisup/internal/core/domain"
	"github.com/artpar/redisup/internal/core/manifest"
	"github.com/artpar/redisup/internal/core/topology"
	"github.com/artpar/redisup/internal/shell/docker"
)

// =============================================================================
// Dependencies
// =============================================================================

// Registry is the durable instance store.
type Registry interface {
	Load() (*domain.Registry, error)
	Upsert(rec domain.InstanceRecord) error
	Remove(name string) error
}

// Runtime brings instances up and down on the container runtime.
type Runtime interface {
	Ping(ctx context.Context) error
	Deploy(ctx context.Context, plan *coredeployment.ResourcePlan, instanceID string) (*domain.InstanceRecord, error)
	Stop(ctx context.Context, rec domain.InstanceRecord) error
	Remove(ctx context.Context, rec domain.InstanceRecord, removeVolumes bool) error
	Inspect(ctx context.Context, rec domain.InstanceRecord) ([]docker.NodeState, error)
	Logs(ctx context.Context, container string, opts docker.LogOptions, stdout, stderr io.Writer) error
	Orphans(ctx context.Context, known map[string]bool) ([]docker.ContainerInfo, []docker.NetworkInfo, error)
	RemoveOrphans(ctx context.Context, containers []docker.ContainerInfo, networks []docker.NetworkInfo) error
}

// SentinelControl issues commands to a running sentinel.
type SentinelControl interface {
	Failover(ctx context.Context, sentinelAddr, name string) error
	MasterAddr(ctx context.Context, sentinelAddr, name string) (string, error)
}

// Deps holds the collaborators of an Engine.
type Deps struct {
	Registry Registry
	Runtime  Runtime
	Sentinel SentinelControl
	Logger   *slog.Logger
	// ProbeHost is where published ports are reachable from this process.
	ProbeHost string
}

// Engine runs the redisup use-cases.
type Engine struct {
	registry  Registry
	runtime   Runtime
	sentinel  SentinelControl
	logger    *slog.Logger
	probeHost string
	newID     func() string
	now       func() time.Time
}

// New creates an engine.
func New(deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	host := deps.ProbeHost
	if host == "" {
		host = "127.0.0.1"
	}
	return &Engine{
		registry:  deps.Registry,
		runtime:   deps.Runtime,
		sentinel:  deps.Sentinel,
		logger:    logger,
		probeHost: host,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// =============================================================================
// Start
// =============================================================================

// Start provisions one instance.
//
// The request is normalized and planned against the registry, a password is
// generated when none was given, and a starting record reserving the plan's
// names and ports is written before the runtime is touched. The plan is
// re-validated against the registry just before that write. On success the
// record becomes running; on a clean rollback it is removed again; when
// rollback itself fails the partial record is kept as partially-failed.
func (e *Engine) Start(ctx context.Context, req domain.DeploymentRequest) (*domain.InstanceRecord, error) {
	req, err := manifest.Normalize(req)
	if err != nil {
		return nil, err
	}
	if req.Password == "" && req.Type != domain.TypeEnterprise {
		req = req.WithPassword(domain.GeneratePassword())
	}

	reg, err := e.registry.Load()
	if err != nil {
		return nil, err
	}
	plan, err := coredeployment.Plan(req, reg.List())
	if err != nil {
		return nil, err
	}
	logger := e.logger.With("instance", plan.Instance, "type", req.Type)
	logger.Debug("planned instance", "ports", plan.HostPorts(), "containers", plan.ContainerNames())

	if err := e.runtime.Ping(ctx); err != nil {
		return nil, err
	}

	// Narrow the race with concurrent invocations: re-read the registry and
	// reserve the plan before creating anything.
	reg, err = e.registry.Load()
	if err != nil {
		return nil, err
	}
	if err := coredeployment.ValidatePlan(plan, reg.List()); err != nil {
		return nil, err
	}
	id := e.newID()
	reservation := reservationRecord(plan, id, e.now().UTC())
	if err := e.registry.Upsert(reservation); err != nil {
		return nil, err
	}

	rec, deployErr := e.runtime.Deploy(ctx, plan, id)
	if deployErr != nil {
		if rec != nil {
			logger.Error("instance left partially deployed", "error", deployErr)
			if err := e.registry.Upsert(*rec); err != nil {
				return rec, errors.Join(deployErr, err)
			}
			return rec, deployErr
		}
		if err := e.registry.Remove(plan.Instance); err != nil && !errors.Is(err, domain.ErrInstanceNotFound) {
			return nil, errors.Join(deployErr, err)
		}
		return nil, deployErr
	}

	rec.CreatedAt = reservation.CreatedAt
	if err := e.registry.Upsert(*rec); err != nil {
		// The containers are up but the record still says starting; cleanup
		// can remove them.
		logger.Error("instance running but not recorded",
			"containers", rec.ContainerNames(),
			"network", rec.Network,
			"error", err,
		)
		return rec, err
	}
	logger.Info("instance started", "url", rec.ConnectionURL())
	return rec, nil
}

// StartAll starts the requests of a deployment document in order and stops
// at the first failure. Instances started before the failure are kept.
func (e *Engine) StartAll(ctx context.Context, reqs []domain.DeploymentRequest) ([]domain.InstanceRecord, error) {
	var started []domain.InstanceRecord
	for i, req := range reqs {
		rec, err := e.Start(ctx, req)
		if err != nil {
			name := req.Name
			if name == "" {
				name = "#" + strconv.Itoa(i+1)
			}
			return started, fmt.Errorf("deployment %s: %w", name, err)
		}
		started = append(started, *rec)
	}
	return started, nil
}

// reservationRecord is the starting record written before runtime mutation.
func reservationRecord(plan *coredeployment.ResourcePlan, id string, now time.Time) domain.InstanceRecord {
	rec := domain.InstanceRecord{
		ID:        id,
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
	}
	for _, n := range plan.Nodes {
		rec.Nodes = append(rec.Nodes, n.Record(""))
	}
	return rec
}

// =============================================================================
// Stop
// =============================================================================

// Stop stops the containers of an instance and marks its record stopped.
// An empty name selects the latest instance of the type. The record and its
// ports stay reserved until cleanup.
func (e *Engine) Stop(ctx context.Context, t domain.DeploymentType, name string) (*domain.InstanceRecord, error) {
	rec, err := e.resolve(t, name)
	if err != nil {
		return nil, err
	}
	if ok, reason := coredeployment.CanStop(rec.Status); !ok {
		return nil, domain.NewError("stop", rec.Name, nil, domain.ErrInvalidRequest, reason, nil)
	}

	if err := e.runtime.Stop(ctx, rec); err != nil {
		return nil, err
	}
	rec.Status = domain.StatusStopped
	rec.UpdatedAt = e.now().UTC()
	if err := e.registry.Upsert(rec); err != nil {
		return nil, err
	}
	e.logger.Info("instance stopped", "instance", rec.Name)
	return &rec, nil
}

// =============================================================================
// Info / List
// =============================================================================

// Node states reported by reconciliation.
const (
	NodeStateMissing = "missing"
	NodeStateUnknown = "unknown"
)

// NodeView is a recorded node with its observed container state.
type NodeView struct {
	domain.NodeRecord
	State string `json:"state"`
}

// InstanceView is a registry record cross-checked against the runtime.
type InstanceView struct {
	Record domain.InstanceRecord `json:"instance"`
	Nodes  []NodeView            `json:"nodes"`
	// Stale is set when a recorded container is gone, or the record says
	// running while a container is not.
	Stale bool `json:"stale"`
	// RuntimeError is set when the runtime could not be asked.
	RuntimeError string `json:"runtime_error,omitempty"`
}

// Info returns one instance, reconciled. An empty name selects the latest
// instance of the type.
func (e *Engine) Info(ctx context.Context, t domain.DeploymentType, name string) (*InstanceView, error) {
	rec, err := e.resolve(t, name)
	if err != nil {
		return nil, err
	}
	view := e.reconcile(ctx, rec)
	return &view, nil
}

// List returns every instance, optionally of one type, reconciled. Stale
// records are reported, never deleted.
func (e *Engine) List(ctx context.Context, t domain.DeploymentType) ([]InstanceView, error) {
	reg, err := e.registry.Load()
	if err != nil {
		return nil, err
	}
	records := reg.List()
	if t != "" {
		records = reg.ListByType(t)
	}
	views := make([]InstanceView, 0, len(records))
	for _, rec := range records {
		views = append(views, e.reconcile(ctx, rec))
	}
	return views, nil
}

func (e *Engine) reconcile(ctx context.Context, rec domain.InstanceRecord) InstanceView {
	view := InstanceView{Record: rec}
	states, err := e.runtime.Inspect(ctx, rec)
	if err != nil {
		e.logger.Warn("could not reconcile instance", "instance", rec.Name, "error", err)
		view.RuntimeError = err.Error()
		for _, n := range rec.Nodes {
			view.Nodes = append(view.Nodes, NodeView{NodeRecord: n, State: NodeStateUnknown})
		}
		return view
	}
	for _, s := range states {
		nv := NodeView{NodeRecord: s.Node, State: NodeStateMissing}
		if s.Exists {
			nv.State = string(s.Status)
		}
		switch {
		case !s.Exists:
			view.Stale = true
		case rec.Status == domain.StatusRunning && !s.Running():
			view.Stale = true
		}
		view.Nodes = append(view.Nodes, nv)
	}
	return view
}

// =============================================================================
// Logs
// =============================================================================

// LogsRequest selects the container whose logs to stream.
type LogsRequest struct {
	Type       domain.DeploymentType // used when Instance is empty
	Instance   string
	Node       string // container name or 1-based node index; empty for the primary node
	Follow     bool
	Tail       string
	Timestamps bool
}

// Logs streams the logs of one container of an instance.
func (e *Engine) Logs(ctx context.Context, req LogsRequest, stdout, stderr io.Writer) error {
	rec, err := e.resolve(req.Type, req.Instance)
	if err != nil {
		return err
	}
	node, err := selectNode(rec, req.Node)
	if err != nil {
		return err
	}
	opts := docker.LogOptions{Follow: req.Follow, Tail: req.Tail, Timestamps: req.Timestamps}
	if opts.Tail == "" {
		opts.Tail = "all"
	}
	return e.runtime.Logs(ctx, node.ContainerName, opts, stdout, stderr)
}

func selectNode(rec domain.InstanceRecord, sel string) (domain.NodeRecord, error) {
	if sel == "" {
		if n, ok := rec.PrimaryNode(); ok {
			return n, nil
		}
		if len(rec.Nodes) > 0 {
			return rec.Nodes[0], nil
		}
		return domain.NodeRecord{}, domain.NewError("logs", rec.Name, nil, domain.ErrInstanceNotFound, "instance has no nodes", nil)
	}
	if i, err := strconv.Atoi(sel); err == nil && i >= 1 && i <= len(rec.Nodes) {
		return rec.Nodes[i-1], nil
	}
	for _, n := range rec.Nodes {
		if n.ContainerName == sel {
			return n, nil
		}
	}
	return domain.NodeRecord{}, domain.NewError("logs", rec.Name, []string{sel}, domain.ErrInstanceNotFound, "no such node", nil)
}

// =============================================================================
// Cleanup
// =============================================================================

// CleanupOptions selects what cleanup removes.
type CleanupOptions struct {
	Type          domain.DeploymentType // empty for every type
	Instance      string                // one named instance; orphans are left alone
	Force         bool                  // drop records even when removal fails, and remove orphans
	RemoveVolumes bool
}

// CleanupReport lists what cleanup removed.
type CleanupReport struct {
	Removed          []string
	Failed           []string
	OrphanContainers []string
	OrphanNetworks   []string
}

// Cleanup removes the containers, networks and records of every matching
// instance. A record whose removal fails is kept unless Force is set, so a
// later cleanup can retry. With Force, managed containers and networks that
// no record mentions are removed as well, unless a single instance was
// named.
func (e *Engine) Cleanup(ctx context.Context, opts CleanupOptions) (*CleanupReport, error) {
	reg, err := e.registry.Load()
	if err != nil {
		return nil, err
	}
	records := reg.List()
	switch {
	case opts.Instance != "":
		rec, err := e.resolve(opts.Type, opts.Instance)
		if err != nil {
			return nil, err
		}
		records = []domain.InstanceRecord{rec}
	case opts.Type != "":
		records = reg.ListByType(opts.Type)
	}

	report := &CleanupReport{}
	var errs []error
	for _, rec := range records {
		if err := e.runtime.Remove(ctx, rec, opts.RemoveVolumes); err != nil {
			e.logger.Warn("cleanup incomplete", "instance", rec.Name, "error", err)
			errs = append(errs, err)
			if !opts.Force {
				report.Failed = append(report.Failed, rec.Name)
				continue
			}
		}
		if err := e.registry.Remove(rec.Name); err != nil && !errors.Is(err, domain.ErrInstanceNotFound) {
			return report, errors.Join(append(errs, err)...)
		}
		report.Removed = append(report.Removed, rec.Name)
		e.logger.Info("instance removed", "instance", rec.Name)
	}

	if opts.Force && opts.Instance == "" {
		known := make(map[string]bool)
		for _, rec := range reg.List() {
			known[rec.Name] = true
		}
		for _, name := range report.Removed {
			delete(known, name)
		}
		containers, networks, err := e.runtime.Orphans(ctx, known)
		if err != nil {
			return report, errors.Join(append(errs, err)...)
		}
		containers, networks = filterOrphans(containers, networks, opts.Type)
		if err := e.runtime.RemoveOrphans(ctx, containers, networks); err != nil {
			errs = append(errs, err)
		}
		for _, c := range containers {
			report.OrphanContainers = append(report.OrphanContainers, c.Name)
		}
		for _, n := range networks {
			report.OrphanNetworks = append(report.OrphanNetworks, n.Name)
		}
	}
	if len(errs) > 0 && !opts.Force {
		return report, errors.Join(errs...)
	}
	if len(errs) > 0 {
		e.logger.Warn("forced cleanup ignored errors", "count", len(errs))
	}
	return report, nil
}

// Delete removes one instance: its containers, its network and its record.
// The name and ports become free for the next start. A record whose removal
// fails is kept and the error returned.
func (e *Engine) Delete(ctx context.Context, t domain.DeploymentType, name string, removeVolumes bool) (*domain.InstanceRecord, error) {
	if name == "" {
		return nil, domain.NewError("delete", "", nil, domain.ErrInvalidRequest, "instance name required", nil)
	}
	rec, err := e.resolve(t, name)
	if err != nil {
		return nil, err
	}
	if _, err := e.Cleanup(ctx, CleanupOptions{Type: t, Instance: name, RemoveVolumes: removeVolumes}); err != nil {
		return nil, err
	}
	return &rec, nil
}

// filterOrphans keeps orphans of one deployment type. Networks carry no
// type label and are matched through the containers that reference them.
func filterOrphans(containers []docker.ContainerInfo, networks []docker.NetworkInfo, t domain.DeploymentType) ([]docker.ContainerInfo, []docker.NetworkInfo) {
	if t == "" {
		return containers, networks
	}
	instances := make(map[string]bool)
	var keptContainers []docker.ContainerInfo
	for _, c := range containers {
		if c.Labels[coredeployment.LabelType] == string(t) {
			keptContainers = append(keptContainers, c)
			instances[c.Labels[coredeployment.LabelInstance]] = true
		}
	}
	var keptNetworks []docker.NetworkInfo
	for _, n := range networks {
		if instances[n.Labels[coredeployment.LabelInstance]] {
			keptNetworks = append(keptNetworks, n)
		}
	}
	return keptContainers, keptNetworks
}

// =============================================================================
// Failover
// =============================================================================

// Failover asks the first sentinel of a sentinel group to fail over the
// given master (1-based) and returns the address the sentinel reports for
// it afterwards.
func (e *Engine) Failover(ctx context.Context, name string, master int) (string, error) {
	rec, err := e.resolve(domain.TypeSentinel, name)
	if err != nil {
		return "", err
	}
	if master < 1 {
		master = 1
	}
	if master > rec.Topology.Masters {
		return "", domain.NewError("failover", rec.Name, []string{strconv.Itoa(master)}, domain.ErrInvalidRequest,
			fmt.Sprintf("group has %d masters", rec.Topology.Masters), nil)
	}
	sentinels := rec.NodesByRole(domain.RoleSentinel)
	if len(sentinels) == 0 {
		return "", domain.NewError("failover", rec.Name, nil, domain.ErrInvalidRequest, "group has no sentinels", nil)
	}

	addr := net.JoinHostPort(e.probeHost, strconv.Itoa(sentinels[0].HostPort))
	monitor := topology.MonitorName(master)
	e.logger.Info("triggering failover", "instance", rec.Name, "master", monitor, "sentinel", sentinels[0].ContainerName)
	if err := e.sentinel.Failover(ctx, addr, monitor); err != nil {
		return "", domain.NewError("failover", rec.Name, []string{sentinels[0].ContainerName}, domain.ErrWiringFailed, "", err)
	}
	current, err := e.sentinel.MasterAddr(ctx, addr, monitor)
	if err != nil {
		return "", domain.NewError("failover", rec.Name, []string{sentinels[0].ContainerName}, domain.ErrWiringFailed, "", err)
	}
	return current, nil
}

// =============================================================================
// Helpers
// =============================================================================

// resolve finds the named record, or the latest of type t when name is
// empty. A named record of another type is not found.
func (e *Engine) resolve(t domain.DeploymentType, name string) (domain.InstanceRecord, error) {
	reg, err := e.registry.Load()
	if err != nil {
		return domain.InstanceRecord{}, err
	}
	if name == "" {
		rec, ok := reg.Latest(t)
		if !ok {
			return domain.InstanceRecord{}, domain.NewError("resolve", "", nil, domain.ErrInstanceNotFound,
				fmt.Sprintf("no %s instances", t), nil)
		}
		return rec, nil
	}
	rec, ok := reg.Find(name)
	if !ok || (t != "" && rec.Type != t) {
		return domain.InstanceRecord{}, domain.NewError("resolve", name, nil, domain.ErrInstanceNotFound, "", nil)
	}
	return rec, nil
}
