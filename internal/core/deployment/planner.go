package deployment

import (
	"fmt"
	"strconv"

	"github.com/artpar/redisup/internal/core/domain"
)

// =============================================================================
// Resource Planning
// =============================================================================

// slot is one node position in the role layout, before ports are resolved.
type slot struct {
	role      domain.Role
	index     int
	replicaOf int
}

// layout returns the node positions of a request in creation order:
// masters, replicas, sentinels, enterprise nodes, insight.
func layout(req domain.DeploymentRequest) []slot {
	var slots []slot
	switch req.Type {
	case domain.TypeBasic, domain.TypeStack:
		slots = append(slots, slot{role: domain.RoleMaster, index: 1})
	case domain.TypeCluster, domain.TypeSentinel:
		masters := max(req.Masters, 1)
		for i := 1; i <= masters; i++ {
			slots = append(slots, slot{role: domain.RoleMaster, index: i})
		}
		for i := 1; i <= masters*req.Replicas; i++ {
			slots = append(slots, slot{role: domain.RoleReplica, index: i, replicaOf: (i-1)/req.Replicas + 1})
		}
		if req.Type == domain.TypeSentinel {
			for i := 1; i <= max(req.Sentinels, 1); i++ {
				slots = append(slots, slot{role: domain.RoleSentinel, index: i})
			}
		}
	case domain.TypeEnterprise:
		for i := 1; i <= max(req.Nodes, 1); i++ {
			slots = append(slots, slot{role: domain.RoleEnterpriseNode, index: i})
		}
	}
	if req.WithInsight {
		slots = append(slots, slot{role: domain.RoleInsight, index: 1})
	}
	return slots
}

// Plan resolves the instance name, network and every node's container name
// and host ports for req, avoiding everything held by the snapshot.
//
// Ports are assigned in layout order from a running cursor that starts at the
// request's BasePort, or the type default when BasePort is zero. Sentinels and
// the insight container restart the scan at SentinelBasePort / InsightPort when
// those are set.
//
// Example:
//
//	plan, err := Plan(domain.DeploymentRequest{Type: domain.TypeCluster, Masters: 3}, nil)
//	// plan.Instance == "redis-cluster-1"
//	// plan.Nodes[*].HostPort == 7000, 7001, 7002 (bus ports 17000..17002)
func Plan(req domain.DeploymentRequest, snapshot []domain.InstanceRecord) (*ResourcePlan, error) {
	if !req.Type.Valid() {
		return nil, domain.NewError("plan", req.Name, nil, domain.ErrInvalidRequest,
			fmt.Sprintf("unknown deployment type %q", req.Type), nil)
	}

	instances := make(map[string]bool, len(snapshot))
	containers := make(map[string]string)
	names := make([]string, 0, len(snapshot))
	for _, rec := range snapshot {
		instances[rec.Name] = true
		names = append(names, rec.Name)
		for _, c := range rec.ContainerNames() {
			containers[c] = rec.Name
		}
	}

	name := req.Name
	if name == "" {
		name = GenerateInstanceName(req.Type, names)
	}
	if instances[name] {
		return nil, domain.NewError("plan", name, []string{name}, domain.ErrNameConflict,
			fmt.Sprintf("instance %q already exists", name), nil)
	}

	plan := &ResourcePlan{
		Request:  req,
		Instance: name,
		Network:  NetworkName(name),
	}

	alloc := NewPortAllocator(UsedPorts(snapshot))
	cursor := req.BasePort
	if cursor == 0 {
		cursor = DefaultBasePort(req.Type)
	}

	for _, s := range layout(req) {
		start := cursor
		switch {
		case s.role == domain.RoleSentinel && s.index == 1 && req.SentinelBasePort > 0:
			start = req.SentinelBasePort
		case s.role == domain.RoleInsight && req.InsightPort > 0:
			start = req.InsightPort
		}

		node, err := allocateNode(alloc, req, name, s, start)
		if err != nil {
			return nil, err
		}
		if owner, taken := containers[node.ContainerName]; taken || instances[node.ContainerName] {
			if owner == "" {
				owner = node.ContainerName
			}
			return nil, domain.NewError("plan", name, []string{node.ContainerName}, domain.ErrNameConflict,
				fmt.Sprintf("container %q is already used by instance %q", node.ContainerName, owner), nil)
		}
		plan.Nodes = append(plan.Nodes, node)
		cursor = node.HostPort + 1
	}

	return plan, nil
}

func allocateNode(alloc *PortAllocator, req domain.DeploymentRequest, instance string, s slot, start int) (NodeAllocation, error) {
	node := NodeAllocation{
		Role:          s.role,
		Index:         s.index,
		ContainerName: ContainerName(req.Type, instance, s.role, s.index),
		ReplicaOf:     s.replicaOf,
	}

	var offsets []int
	switch {
	case req.Type == domain.TypeCluster && s.role.IsRedis():
		offsets = []int{ClusterBusOffset}
	case s.role == domain.RoleEnterpriseNode:
		offsets = []int{EnterpriseAPIOffset}
	}

	port, err := alloc.Allocate(start, offsets...)
	if err != nil {
		return NodeAllocation{}, domain.NewError("plan", instance,
			[]string{node.ContainerName, strconv.Itoa(start)}, domain.ErrPortRangeExhausted,
			fmt.Sprintf("no free port for %s within %d probes of %d", node.ContainerName, MaxPortProbes, start), err)
	}
	node.HostPort = port

	switch s.role {
	case domain.RoleMaster, domain.RoleReplica:
		node.InternalPort = RedisPort
		if req.Type == domain.TypeCluster {
			// Cluster nodes announce their own port to peers, so the container
			// listens on the host port and the bus port follows it.
			node.InternalPort = port
			node.ExtraPorts = []domain.PortMapping{{
				Name: PortNameBus, HostPort: port + ClusterBusOffset, ContainerPort: port + ClusterBusOffset,
			}}
		}
	case domain.RoleSentinel:
		node.InternalPort = SentinelPort
	case domain.RoleInsight:
		node.InternalPort = InsightPort
	case domain.RoleEnterpriseNode:
		node.InternalPort = EnterpriseUIPort
		node.ExtraPorts = []domain.PortMapping{{
			Name: PortNameAPI, HostPort: port + EnterpriseAPIOffset, ContainerPort: EnterpriseAPIPort,
		}}
		if s.index == 1 {
			dbStart := req.DatabasePort
			if dbStart == 0 {
				dbStart = EnterpriseDBPort
			}
			db, err := alloc.Allocate(dbStart)
			if err != nil {
				return NodeAllocation{}, domain.NewError("plan", instance,
					[]string{node.ContainerName, strconv.Itoa(dbStart)}, domain.ErrPortRangeExhausted,
					"no free database port", err)
			}
			node.ExtraPorts = append(node.ExtraPorts, domain.PortMapping{
				Name: PortNameDatabase, HostPort: db, ContainerPort: db,
			})
		}
	}
	return node, nil
}

// ValidatePlan re-checks a plan against a fresh registry snapshot. The engine
// calls it immediately before handing the plan to the orchestrator, so that a
// concurrent start that reserved the same name or port is caught before any
// container exists.
func ValidatePlan(plan *ResourcePlan, snapshot []domain.InstanceRecord) error {
	containers := make(map[string]string)
	networks := make(map[string]string)
	ports := make(map[int]string)
	for _, rec := range snapshot {
		if rec.Name == plan.Instance {
			return domain.NewError("validate-plan", plan.Instance, []string{plan.Instance}, domain.ErrNameConflict,
				fmt.Sprintf("instance %q already exists", plan.Instance), nil)
		}
		for _, c := range rec.ContainerNames() {
			containers[c] = rec.Name
		}
		if rec.Network != "" {
			networks[rec.Network] = rec.Name
		}
		for _, p := range rec.HostPorts() {
			ports[p] = rec.Name
		}
	}

	if owner, ok := networks[plan.Network]; ok {
		return domain.NewError("validate-plan", plan.Instance, []string{plan.Network}, domain.ErrNameConflict,
			fmt.Sprintf("network is used by instance %q", owner), nil)
	}

	seenNames := make(map[string]bool, len(plan.Nodes))
	seenPorts := make(map[int]bool)
	for _, n := range plan.Nodes {
		if owner, ok := containers[n.ContainerName]; ok || seenNames[n.ContainerName] {
			return domain.NewError("validate-plan", plan.Instance, []string{n.ContainerName}, domain.ErrNameConflict,
				fmt.Sprintf("container name is used by instance %q", ownerOr(owner, plan.Instance)), nil)
		}
		seenNames[n.ContainerName] = true
		for _, p := range n.HostPorts() {
			if owner, ok := ports[p]; ok || seenPorts[p] {
				return domain.NewError("validate-plan", plan.Instance, []string{n.ContainerName, strconv.Itoa(p)},
					domain.ErrPortConflict, fmt.Sprintf("host port %d is used by instance %q", p, ownerOr(owner, plan.Instance)), nil)
			}
			seenPorts[p] = true
		}
	}
	return nil
}

func ownerOr(owner, fallback string) string {
	if owner == "" {
		return fallback
	}
	return owner
}
