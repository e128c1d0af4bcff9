package deployment

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/artpar/redisup/internal/core/domain"
)

// =============================================================================
// Resource Naming Functions
// =============================================================================

// NetworkName generates the bridge network name for an instance.
// Pattern: {instance}-net
//
// Example:
//
//	NetworkName("redis-cluster-1") // returns "redis-cluster-1-net"
func NetworkName(instance string) string {
	return instance + "-net"
}

// VolumeName generates the data volume name for a container.
// Pattern: {container}-data
//
// Example:
//
//	VolumeName("redis-basic-1") // returns "redis-basic-1-data"
func VolumeName(container string) string {
	return container + "-data"
}

// ContainerName generates a container name for a node of an instance.
// Single-node types name their only master after the instance itself; the
// insight companion has no index.
//
// Example:
//
//	ContainerName(domain.TypeBasic, "redis-basic-1", domain.RoleMaster, 1)     // "redis-basic-1"
//	ContainerName(domain.TypeCluster, "redis-cluster-1", domain.RoleMaster, 2) // "redis-cluster-1-master-2"
//	ContainerName(domain.TypeSentinel, "ha", domain.RoleInsight, 1)            // "ha-insight"
func ContainerName(t domain.DeploymentType, instance string, role domain.Role, index int) string {
	switch role {
	case domain.RoleMaster:
		if t == domain.TypeBasic || t == domain.TypeStack {
			return instance
		}
		return fmt.Sprintf("%s-master-%d", instance, index)
	case domain.RoleReplica:
		return fmt.Sprintf("%s-replica-%d", instance, index)
	case domain.RoleSentinel:
		return fmt.Sprintf("%s-sentinel-%d", instance, index)
	case domain.RoleEnterpriseNode:
		return fmt.Sprintf("%s-node-%d", instance, index)
	case domain.RoleInsight:
		return instance + "-insight"
	}
	return fmt.Sprintf("%s-%s-%d", instance, role, index)
}

// GenerateInstanceName returns "redis-<type>-<n>" with the lowest n >= 1 not
// already taken. Gaps left by removed instances are reused.
//
// Example:
//
//	GenerateInstanceName(domain.TypeBasic, []string{"redis-basic-1", "redis-basic-3"}) // "redis-basic-2"
func GenerateInstanceName(t domain.DeploymentType, existing []string) string {
	prefix := "redis-" + string(t) + "-"
	taken := make(map[int]bool, len(existing))
	for _, name := range existing {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(name, prefix))
		if err == nil && n > 0 {
			taken[n] = true
		}
	}
	n := 1
	for taken[n] {
		n++
	}
	return prefix + strconv.Itoa(n)
}
