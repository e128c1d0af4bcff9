package domain

import (
	"fmt"
	"strings"
)

// =============================================================================
// Deployment Types
// =============================================================================

// DeploymentType identifies the Redis topology an instance runs.
type DeploymentType string

const (
	TypeBasic      DeploymentType = "basic"
	TypeStack      DeploymentType = "stack"
	TypeCluster    DeploymentType = "cluster"
	TypeSentinel   DeploymentType = "sentinel"
	TypeEnterprise DeploymentType = "enterprise"
)

// DeploymentTypes lists every supported deployment type in display order.
var DeploymentTypes = []DeploymentType{
	TypeBasic,
	TypeStack,
	TypeCluster,
	TypeSentinel,
	TypeEnterprise,
}

// Valid reports whether t is one of the supported deployment types.
func (t DeploymentType) Valid() bool {
	for _, known := range DeploymentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseDeploymentType parses a case-insensitive type name.
//
// Example:
//
//	ParseDeploymentType("Cluster") // returns TypeCluster, nil
func ParseDeploymentType(s string) (DeploymentType, error) {
	t := DeploymentType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown deployment type %q (valid: basic, stack, cluster, sentinel, enterprise)", ErrInvalidRequest, s)
	}
	return t, nil
}

// =============================================================================
// Node Roles
// =============================================================================

// Role is the function a single container fulfils within an instance.
type Role string

const (
	RoleMaster         Role = "master"
	RoleReplica        Role = "replica"
	RoleSentinel       Role = "sentinel"
	RoleEnterpriseNode Role = "enterprise-node"
	RoleInsight        Role = "insight"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleMaster, RoleReplica, RoleSentinel, RoleEnterpriseNode, RoleInsight:
		return true
	}
	return false
}

// IsRedis reports whether the role runs a redis-server speaking RESP with the
// instance password.
func (r Role) IsRedis() bool {
	return r == RoleMaster || r == RoleReplica
}

// =============================================================================
// Deployment Request
// =============================================================================

// DeploymentRequest is the normalized input of the planner. It is produced by
// the manifest loader (from CLI flags or a YAML document) and never mutated
// afterwards.
//
// A zero BasePort selects the type default. A zero SentinelBasePort or
// InsightPort continues the port scan from the previous role.
type DeploymentRequest struct {
	Type DeploymentType `json:"type" validate:"required"`
	Name string         `json:"name,omitempty" validate:"omitempty,max=48,instancename"`

	Masters   int `json:"masters" validate:"gte=0,lte=64"`
	Replicas  int `json:"replicas" validate:"gte=0,lte=5"`
	Sentinels int `json:"sentinels" validate:"gte=0,lte=15"`
	Nodes     int `json:"nodes" validate:"gte=0,lte=9"`
	Quorum    int `json:"quorum" validate:"gte=0"`

	BasePort         int `json:"base_port" validate:"gte=0,lte=65535"`
	SentinelBasePort int `json:"sentinel_base_port" validate:"gte=0,lte=65535"`
	InsightPort      int `json:"insight_port" validate:"gte=0,lte=65535"`
	DatabasePort     int `json:"database_port" validate:"gte=0,lte=65535"`

	MemoryLimit int64    `json:"memory_limit" validate:"gte=0"`
	Password    string   `json:"-"`
	Persist     bool     `json:"persist"`
	WithInsight bool     `json:"with_insight"`
	UseStack    bool     `json:"use_stack"`
	Modules     []string `json:"modules,omitempty" validate:"dive,oneof=json search timeseries graph bloom"`
}

// TotalRedisNodes returns the number of redis-server containers (masters and
// their replicas) the request asks for.
func (r DeploymentRequest) TotalRedisNodes() int {
	return r.Masters + r.Masters*r.Replicas
}

// NeedsWiring reports whether the topology requires a wiring phase after all
// nodes are ready.
func (r DeploymentRequest) NeedsWiring() bool {
	return r.Type == TypeCluster || r.Type == TypeSentinel
}

// WithPassword returns a copy of the request carrying the given password.
func (r DeploymentRequest) WithPassword(password string) DeploymentRequest {
	r.Password = password
	r.Modules = append([]string(nil), r.Modules...)
	return r
}
