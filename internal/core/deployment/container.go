package deployment

import (
	"strconv"
	"strings"

	"github.com/artpar/redisup/internal/core/domain"
)

// =============================================================================
// Images
// =============================================================================

// Images names the image used for each kind of container. Empty fields fall
// back to DefaultImages.
type Images struct {
	Redis      string
	Stack      string
	Insight    string
	Enterprise string
}

// DefaultImages returns the stock image set.
func DefaultImages() Images {
	return Images{
		Redis:      "redis:7-alpine",
		Stack:      "redis/redis-stack-server:latest",
		Insight:    "redis/redisinsight:latest",
		Enterprise: "redislabs/redis:latest",
	}
}

// WithDefaults fills empty fields from DefaultImages.
func (i Images) WithDefaults() Images {
	d := DefaultImages()
	if i.Redis == "" {
		i.Redis = d.Redis
	}
	if i.Stack == "" {
		i.Stack = d.Stack
	}
	if i.Insight == "" {
		i.Insight = d.Insight
	}
	if i.Enterprise == "" {
		i.Enterprise = d.Enterprise
	}
	return i
}

// ImageFor returns the image a node of the given role runs.
func (i Images) ImageFor(req domain.DeploymentRequest, role domain.Role) string {
	i = i.WithDefaults()
	switch role {
	case domain.RoleInsight:
		return i.Insight
	case domain.RoleEnterpriseNode:
		return i.Enterprise
	case domain.RoleSentinel:
		return i.Redis
	}
	if usesStackImage(req) {
		return i.Stack
	}
	return i.Redis
}

// RequiredImages returns the distinct images a plan needs, in plan order.
func RequiredImages(plan *ResourcePlan, images Images) []string {
	seen := make(map[string]bool)
	var out []string
	for _, n := range plan.Nodes {
		img := images.ImageFor(plan.Request, n.Role)
		if !seen[img] {
			seen[img] = true
			out = append(out, img)
		}
	}
	return out
}

func usesStackImage(req domain.DeploymentRequest) bool {
	return req.Type == domain.TypeStack || (req.Type == domain.TypeCluster && req.UseStack)
}

// =============================================================================
// Container Plan Building Functions
// =============================================================================

// BuildContainerPlanParams contains parameters for BuildContainerPlan.
type BuildContainerPlanParams struct {
	Plan       *ResourcePlan
	Node       NodeAllocation
	Images     Images
	InstanceID string
}

// BuildContainerPlan builds the container configuration for one node.
//
// The function:
//   - Picks the image for the node's role
//   - Builds the redis-server, redis-sentinel or product command line
//   - Publishes the node's host port and its extra ports
//   - Mounts a named data volume when persistence is requested
//   - Labels the container with instance, type and role
//
// Example:
//
//	plan, _ := Plan(domain.DeploymentRequest{Type: domain.TypeBasic}, nil)
//	c := BuildContainerPlan(BuildContainerPlanParams{Plan: plan, Node: plan.Nodes[0]})
//	// c.Name == "redis-basic-1", c.Image == "redis:7-alpine"
//	// c.Ports == [{ContainerPort: 6379, HostPort: 6379, Protocol: "tcp"}]
func BuildContainerPlan(params BuildContainerPlanParams) ContainerPlan {
	req := params.Plan.Request
	node := params.Node

	plan := ContainerPlan{
		Name:     node.ContainerName,
		Image:    params.Images.ImageFor(req, node.Role),
		Env:      make(map[string]string),
		Network:  params.Plan.Network,
		Hostname: node.ContainerName,
		Labels: map[string]string{
			LabelManaged:    "true",
			LabelInstance:   params.Plan.Instance,
			LabelInstanceID: params.InstanceID,
			LabelType:       string(req.Type),
			LabelRole:       string(node.Role),
		},
		RestartPolicy: "no",
		MemoryLimit:   req.MemoryLimit,
	}

	plan.Ports = append(plan.Ports, PortPlan{
		ContainerPort: node.InternalPort,
		HostPort:      node.HostPort,
		Protocol:      "tcp",
	})
	for _, p := range node.ExtraPorts {
		plan.Ports = append(plan.Ports, PortPlan{
			ContainerPort: p.ContainerPort,
			HostPort:      p.HostPort,
			Protocol:      "tcp",
		})
	}

	switch node.Role {
	case domain.RoleMaster, domain.RoleReplica:
		args := RedisServerArgs(params.Plan, node)
		if usesStackImage(req) {
			// redis-stack-server's entrypoint loads the bundled modules and
			// appends REDIS_ARGS to its own command line.
			plan.Env["REDIS_ARGS"] = strings.Join(args, " ")
		} else {
			plan.Command = append([]string{"redis-server"}, args...)
		}
		if req.Persist {
			plan.Volumes = append(plan.Volumes, VolumePlan{Source: VolumeName(node.ContainerName), Target: "/data"})
		}

	case domain.RoleSentinel:
		plan.Command = []string{"sh", "-c", SentinelBootstrapScript()}

	case domain.RoleEnterpriseNode:
		plan.CapAdd = []string{"SYS_RESOURCE"}
		if req.Persist {
			plan.Volumes = append(plan.Volumes, VolumePlan{
				Source: VolumeName(node.ContainerName),
				Target: "/var/opt/redislabs/persist",
			})
		}

	case domain.RoleInsight:
		plan.Env["RI_APP_PORT"] = strconv.Itoa(InsightPort)
		if host, port, ok := firstMaster(params.Plan); ok {
			plan.Env["RI_REDIS_HOST"] = host
			plan.Env["RI_REDIS_PORT"] = strconv.Itoa(port)
			if req.Password != "" {
				plan.Env["RI_REDIS_PASSWORD"] = req.Password
			}
		}
	}

	return plan
}

// RedisServerArgs returns the redis-server arguments for a master or replica.
//
// Example:
//
//	// sentinel group, replica 1 following master 1, password "pw"
//	// ["--port", "6379", "--requirepass", "pw", "--masterauth", "pw",
//	//  "--replicaof", "ha-master-1", "6379"]
func RedisServerArgs(plan *ResourcePlan, node NodeAllocation) []string {
	req := plan.Request
	args := []string{"--port", strconv.Itoa(node.InternalPort)}
	if req.Password != "" {
		args = append(args, "--requirepass", req.Password, "--masterauth", req.Password)
	}
	if req.Persist {
		args = append(args, "--appendonly", "yes")
	}
	switch req.Type {
	case domain.TypeCluster:
		args = append(args,
			"--cluster-enabled", "yes",
			"--cluster-config-file", "nodes.conf",
			"--cluster-node-timeout", "5000",
		)
	case domain.TypeSentinel:
		if node.Role == domain.RoleReplica && node.ReplicaOf > 0 {
			master := ContainerName(req.Type, plan.Instance, domain.RoleMaster, node.ReplicaOf)
			args = append(args, "--replicaof", master, strconv.Itoa(RedisPort))
		}
	}
	return args
}

// SentinelBootstrapScript writes a minimal writable sentinel.conf and execs
// redis-sentinel on it. Monitors are registered later over the Redis protocol.
func SentinelBootstrapScript() string {
	lines := []string{
		"port " + strconv.Itoa(SentinelPort),
		"sentinel resolve-hostnames yes",
		"sentinel announce-hostnames yes",
		"dir /tmp",
	}
	return "printf '%s\\n' '" + strings.Join(lines, "' '") + "' > /tmp/sentinel.conf && exec redis-sentinel /tmp/sentinel.conf"
}

// firstMaster returns the in-network address of the first master.
func firstMaster(plan *ResourcePlan) (string, int, bool) {
	for _, n := range plan.Nodes {
		if n.Role == domain.RoleMaster {
			return n.ContainerName, n.InternalPort, true
		}
	}
	return "", 0, false
}
