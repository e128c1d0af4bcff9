package manifest

import (
	"github.com/artpar/redisup/internal/core/domain"
)

// =============================================================================
// Deployment Variants
// =============================================================================

// Spec is the type-specific body of a deployment entry. Each deployment type
// has exactly one implementation, chosen by the entry's "type" key.
type Spec interface {
	// Request converts the body into an unnormalized deployment request.
	Request(name string) (domain.DeploymentRequest, error)
	Type() domain.DeploymentType
}

// Common holds the keys every deployment type accepts.
type Common struct {
	Password    string `yaml:"password,omitempty"`
	Persist     bool   `yaml:"persist,omitempty"`
	Memory      string `yaml:"memory,omitempty"`
	WithInsight bool   `yaml:"with-insight,omitempty"`
	InsightPort int    `yaml:"insight-port,omitempty"`
}

func (c Common) apply(req *domain.DeploymentRequest) error {
	mem, err := ParseMemory(c.Memory)
	if err != nil {
		return err
	}
	req.MemoryLimit = mem
	req.Password = c.Password
	req.Persist = c.Persist
	req.WithInsight = c.WithInsight
	req.InsightPort = c.InsightPort
	return nil
}

// BasicSpec describes a single redis-server.
type BasicSpec struct {
	Port   int `yaml:"port,omitempty"`
	Common `yaml:",inline"`
}

func (s *BasicSpec) Type() domain.DeploymentType { return domain.TypeBasic }

func (s *BasicSpec) Request(name string) (domain.DeploymentRequest, error) {
	req := domain.DeploymentRequest{Type: domain.TypeBasic, Name: name, BasePort: s.Port}
	return req, s.apply(&req)
}

// StackSpec describes a single redis-stack-server.
type StackSpec struct {
	Port    int      `yaml:"port,omitempty"`
	Modules []string `yaml:"modules,omitempty"`
	Common  `yaml:",inline"`
}

func (s *StackSpec) Type() domain.DeploymentType { return domain.TypeStack }

func (s *StackSpec) Request(name string) (domain.DeploymentRequest, error) {
	req := domain.DeploymentRequest{Type: domain.TypeStack, Name: name, BasePort: s.Port, Modules: s.Modules}
	return req, s.apply(&req)
}

// ClusterSpec describes a sharded Redis Cluster. Replicas default to one per
// master in documents.
type ClusterSpec struct {
	Masters  int  `yaml:"masters,omitempty"`
	Replicas *int `yaml:"replicas,omitempty"`
	PortBase int  `yaml:"port-base,omitempty"`
	Stack    bool `yaml:"stack,omitempty"`
	Common   `yaml:",inline"`
}

func (s *ClusterSpec) Type() domain.DeploymentType { return domain.TypeCluster }

func (s *ClusterSpec) Request(name string) (domain.DeploymentRequest, error) {
	replicas := 1
	if s.Replicas != nil {
		replicas = *s.Replicas
	}
	req := domain.DeploymentRequest{
		Type:     domain.TypeCluster,
		Name:     name,
		Masters:  s.Masters,
		Replicas: replicas,
		BasePort: s.PortBase,
		UseStack: s.Stack,
	}
	return req, s.apply(&req)
}

// SentinelSpec describes masters with replicas watched by a sentinel group.
type SentinelSpec struct {
	Masters          int `yaml:"masters,omitempty"`
	Replicas         int `yaml:"replicas,omitempty"`
	Sentinels        int `yaml:"sentinels,omitempty"`
	Quorum           int `yaml:"quorum,omitempty"`
	RedisPortBase    int `yaml:"redis-port-base,omitempty"`
	SentinelPortBase int `yaml:"sentinel-port-base,omitempty"`
	Common           `yaml:",inline"`
}

func (s *SentinelSpec) Type() domain.DeploymentType { return domain.TypeSentinel }

func (s *SentinelSpec) Request(name string) (domain.DeploymentRequest, error) {
	req := domain.DeploymentRequest{
		Type:             domain.TypeSentinel,
		Name:             name,
		Masters:          s.Masters,
		Replicas:         s.Replicas,
		Sentinels:        s.Sentinels,
		Quorum:           s.Quorum,
		BasePort:         s.RedisPortBase,
		SentinelBasePort: s.SentinelPortBase,
	}
	return req, s.apply(&req)
}

// EnterpriseSpec describes a Redis Enterprise cluster.
type EnterpriseSpec struct {
	Nodes    int `yaml:"nodes,omitempty"`
	PortBase int `yaml:"port-base,omitempty"`
	DBPort   int `yaml:"db-port,omitempty"`
	Common   `yaml:",inline"`
}

func (s *EnterpriseSpec) Type() domain.DeploymentType { return domain.TypeEnterprise }

func (s *EnterpriseSpec) Request(name string) (domain.DeploymentRequest, error) {
	req := domain.DeploymentRequest{
		Type:         domain.TypeEnterprise,
		Name:         name,
		Nodes:        s.Nodes,
		BasePort:     s.PortBase,
		DatabasePort: s.DBPort,
	}
	return req, s.apply(&req)
}

// newSpec returns an empty body for a deployment type.
func newSpec(t domain.DeploymentType) Spec {
	switch t {
	case domain.TypeBasic:
		return &BasicSpec{}
	case domain.TypeStack:
		return &StackSpec{}
	case domain.TypeCluster:
		return &ClusterSpec{}
	case domain.TypeSentinel:
		return &SentinelSpec{}
	case domain.TypeEnterprise:
		return &EnterpriseSpec{}
	}
	return nil
}
