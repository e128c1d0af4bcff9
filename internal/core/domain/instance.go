package domain

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// =============================================================================
// Instance Status
// =============================================================================

// InstanceStatus is the lifecycle state recorded for an instance.
type InstanceStatus string

const (
	StatusStarting        InstanceStatus = "starting"
	StatusRunning         InstanceStatus = "running"
	StatusPartiallyFailed InstanceStatus = "partially-failed"
	StatusStopped         InstanceStatus = "stopped"
)

// Valid reports whether s is a known status.
func (s InstanceStatus) Valid() bool {
	switch s {
	case StatusStarting, StatusRunning, StatusPartiallyFailed, StatusStopped:
		return true
	}
	return false
}

// =============================================================================
// Instance Record
// =============================================================================

// PortMapping is an additional published port of a node, besides its primary
// port (cluster bus, enterprise API, enterprise database endpoint).
type PortMapping struct {
	Name          string `json:"name"`
	HostPort      int    `json:"host_port"`
	ContainerPort int    `json:"container_port"`
}

// NodeRecord is one container of an instance.
type NodeRecord struct {
	ContainerID   string        `json:"container_id,omitempty"`
	ContainerName string        `json:"container_name"`
	Role          Role          `json:"role"`
	Index         int           `json:"index"`
	HostPort      int           `json:"host_port"`
	InternalPort  int           `json:"internal_port"`
	ExtraPorts    []PortMapping `json:"extra_ports,omitempty"`
}

// HostPorts returns every host port the node publishes.
func (n NodeRecord) HostPorts() []int {
	ports := []int{n.HostPort}
	for _, p := range n.ExtraPorts {
		ports = append(ports, p.HostPort)
	}
	return ports
}

// Topology holds the role counts needed to rebuild wiring state later
// (info, failover) without falling back to defaults.
type Topology struct {
	Masters   int `json:"masters"`
	Replicas  int `json:"replicas"`
	Sentinels int `json:"sentinels,omitempty"`
	Nodes     int `json:"nodes,omitempty"`
	Quorum    int `json:"quorum,omitempty"`
}

// InstanceRecord is the persisted unit of registry state.
type InstanceRecord struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Type      DeploymentType `json:"type"`
	Status    InstanceStatus `json:"status"`
	Network   string         `json:"network"`
	Nodes     []NodeRecord   `json:"nodes"`
	Password  string         `json:"password,omitempty"`
	Topology  Topology       `json:"topology"`
	Persist   bool           `json:"persist,omitempty"`
	Modules   []string       `json:"modules,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// HostPorts returns every host port held by the instance.
func (r InstanceRecord) HostPorts() []int {
	var ports []int
	for _, n := range r.Nodes {
		ports = append(ports, n.HostPorts()...)
	}
	return ports
}

// ContainerNames returns the container names of the instance in node order.
func (r InstanceRecord) ContainerNames() []string {
	names := make([]string, 0, len(r.Nodes))
	for _, n := range r.Nodes {
		names = append(names, n.ContainerName)
	}
	return names
}

// NodesByRole returns the nodes with the given role in node order.
func (r InstanceRecord) NodesByRole(role Role) []NodeRecord {
	var nodes []NodeRecord
	for _, n := range r.Nodes {
		if n.Role == role {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// PrimaryNode returns the node clients connect to first: the first master,
// or the first enterprise node.
func (r InstanceRecord) PrimaryNode() (NodeRecord, bool) {
	for _, n := range r.Nodes {
		if n.Role == RoleMaster || n.Role == RoleEnterpriseNode {
			return n, true
		}
	}
	return NodeRecord{}, false
}

// ConnectionURL returns a redis:// URL for the primary endpoint on localhost.
// Enterprise instances have no database until setup is completed in the
// management UI, so they have no connection URL.
func (r InstanceRecord) ConnectionURL() string {
	if r.Type == TypeEnterprise {
		return ""
	}
	node, ok := r.PrimaryNode()
	if !ok {
		return ""
	}
	u := url.URL{Scheme: "redis", Host: "localhost:" + strconv.Itoa(node.HostPort)}
	if r.Password != "" {
		u.User = url.UserPassword("default", r.Password)
	}
	return u.String()
}

// UIURL returns the management UI address of an enterprise instance.
func (r InstanceRecord) UIURL() string {
	if r.Type != TypeEnterprise {
		return ""
	}
	node, ok := r.PrimaryNode()
	if !ok {
		return ""
	}
	return fmt.Sprintf("https://localhost:%d", node.HostPort)
}

// APIURL returns the REST API address of an enterprise instance.
func (r InstanceRecord) APIURL() string {
	if r.Type != TypeEnterprise {
		return ""
	}
	node, ok := r.PrimaryNode()
	if !ok {
		return ""
	}
	for _, p := range node.ExtraPorts {
		if p.Name == "api" {
			return fmt.Sprintf("https://localhost:%d", p.HostPort)
		}
	}
	return ""
}
