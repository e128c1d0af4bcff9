package deployment

import (
	"github.com/artpar/redisup/internal/core/domain"
)

// =============================================================================
// Resource Plan Types
// =============================================================================

// NodeAllocation is one planned container with its resolved name and ports.
type NodeAllocation struct {
	Role          domain.Role
	Index         int // 1-based within the role
	ContainerName string
	HostPort      int
	InternalPort  int
	ExtraPorts    []domain.PortMapping

	// ReplicaOf is the 1-based index of the master a replica follows. Zero
	// for every other role.
	ReplicaOf int
}

// HostPorts returns every host port the node reserves.
func (n NodeAllocation) HostPorts() []int {
	ports := []int{n.HostPort}
	for _, p := range n.ExtraPorts {
		ports = append(ports, p.HostPort)
	}
	return ports
}

// Record converts the allocation into its registry form.
func (n NodeAllocation) Record(containerID string) domain.NodeRecord {
	return domain.NodeRecord{
		ContainerID:   containerID,
		ContainerName: n.ContainerName,
		Role:          n.Role,
		Index:         n.Index,
		HostPort:      n.HostPort,
		InternalPort:  n.InternalPort,
		ExtraPorts:    append([]domain.PortMapping(nil), n.ExtraPorts...),
	}
}

// ResourcePlan is the complete, conflict-free set of resources for one
// instance. It is computed before any runtime mutation.
type ResourcePlan struct {
	Request  domain.DeploymentRequest
	Instance string
	Network  string
	Nodes    []NodeAllocation
}

// HostPorts returns every host port reserved by the plan.
func (p *ResourcePlan) HostPorts() []int {
	var ports []int
	for _, n := range p.Nodes {
		ports = append(ports, n.HostPorts()...)
	}
	return ports
}

// ContainerNames returns container names in plan order.
func (p *ResourcePlan) ContainerNames() []string {
	names := make([]string, 0, len(p.Nodes))
	for _, n := range p.Nodes {
		names = append(names, n.ContainerName)
	}
	return names
}

// NodesByRole returns the allocations of one role in plan order.
func (p *ResourcePlan) NodesByRole(role domain.Role) []NodeAllocation {
	var nodes []NodeAllocation
	for _, n := range p.Nodes {
		if n.Role == role {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// Topology returns the role counts persisted with the instance record.
func (p *ResourcePlan) Topology() domain.Topology {
	return domain.Topology{
		Masters:   len(p.NodesByRole(domain.RoleMaster)),
		Replicas:  p.Request.Replicas,
		Sentinels: len(p.NodesByRole(domain.RoleSentinel)),
		Nodes:     len(p.NodesByRole(domain.RoleEnterpriseNode)),
		Quorum:    p.Request.Quorum,
	}
}

// =============================================================================
// Container Plan Types
// =============================================================================

// ContainerPlan represents a planned container configuration.
// This is the pure output of planning, ready for the shell to execute.
type ContainerPlan struct {
	Name          string
	Image         string
	Command       []string
	Env           map[string]string
	Labels        map[string]string
	Ports         []PortPlan
	Volumes       []VolumePlan
	Network       string
	Hostname      string
	CapAdd        []string
	RestartPolicy string
	MemoryLimit   int64
}

// PortPlan represents a planned port binding.
type PortPlan struct {
	ContainerPort int
	HostPort      int
	Protocol      string
}

// VolumePlan represents a planned named volume mount.
type VolumePlan struct {
	Source string
	Target string
}

// =============================================================================
// Labels
// =============================================================================

// Label keys applied to every container redisup creates.
const (
	LabelManaged    = "com.redisup.managed"
	LabelInstance   = "com.redisup.instance"
	LabelInstanceID = "com.redisup.instance-id"
	LabelType       = "com.redisup.type"
	LabelRole       = "com.redisup.role"
)

// =============================================================================
// Well-known Ports
// =============================================================================

const (
	RedisPort          = 6379
	SentinelPort       = 26379
	InsightPort        = 5540
	EnterpriseUIPort   = 8443
	EnterpriseAPIPort  = 9443
	EnterpriseDBPort   = 12000
	DefaultInsightPort = 8001

	// ClusterBusOffset is added to a cluster node's port to get its bus port.
	ClusterBusOffset = 10000
	// EnterpriseAPIOffset is added to an enterprise node's UI host port to get
	// the host port of its REST API.
	EnterpriseAPIOffset = 1000
)

// Extra port names stored in domain.PortMapping.
const (
	PortNameBus      = "bus"
	PortNameAPI      = "api"
	PortNameDatabase = "database"
)
