package manifest

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/docker/go-units"
	"github.com/go-playground/validator/v10"

	"github.com/artpar/redisup/internal/core/deployment"
	"github.com/artpar/redisup/internal/core/domain"
	"github.com/artpar/redisup/internal/core/topology"
)

var validate = validator.New()

var instanceNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

func init() {
	validate.RegisterValidation("instancename", func(fl validator.FieldLevel) bool {
		return instanceNameRegex.MatchString(fl.Field().String())
	})
}

// Default counts applied when a request leaves them at zero.
const (
	DefaultClusterMasters   = 3
	DefaultSentinels        = 3
	DefaultEnterpriseNodes  = 3
	DefaultSentinelBasePort = 26379
)

// Normalize fills type-specific defaults into req and validates the result.
// Errors wrap domain.ErrInvalidRequest.
//
// Example:
//
//	req, _ := Normalize(domain.DeploymentRequest{Type: domain.TypeSentinel})
//	// req.Masters == 1, req.Sentinels == 3, req.Quorum == 2, req.SentinelBasePort == 26379
func Normalize(req domain.DeploymentRequest) (domain.DeploymentRequest, error) {
	if !req.Type.Valid() {
		return req, fmt.Errorf("%w: unknown deployment type %q", domain.ErrInvalidRequest, req.Type)
	}

	switch req.Type {
	case domain.TypeBasic, domain.TypeStack:
		req.Masters, req.Replicas, req.Sentinels, req.Nodes = 1, 0, 0, 0
	case domain.TypeCluster:
		if req.Masters == 0 {
			req.Masters = DefaultClusterMasters
		}
		req.Sentinels, req.Nodes = 0, 0
	case domain.TypeSentinel:
		if req.Masters == 0 {
			req.Masters = 1
		}
		if req.Sentinels == 0 {
			req.Sentinels = DefaultSentinels
		}
		if req.Quorum == 0 {
			req.Quorum = topology.DefaultQuorum(req.Sentinels)
		}
		if req.SentinelBasePort == 0 {
			req.SentinelBasePort = DefaultSentinelBasePort
		}
		req.Nodes = 0
	case domain.TypeEnterprise:
		if req.Nodes == 0 {
			req.Nodes = DefaultEnterpriseNodes
		}
		if req.DatabasePort == 0 {
			req.DatabasePort = deployment.EnterpriseDBPort
		}
		req.Masters, req.Replicas, req.Sentinels = 0, 0, 0
	}
	if req.WithInsight && req.InsightPort == 0 {
		req.InsightPort = deployment.DefaultInsightPort
	}
	req.Modules = append([]string(nil), req.Modules...)
	for i, m := range req.Modules {
		req.Modules[i] = strings.ToLower(strings.TrimSpace(m))
	}

	if err := validateRequest(req); err != nil {
		return req, err
	}
	return req, nil
}

func validateRequest(req domain.DeploymentRequest) error {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", domain.ErrInvalidRequest, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}

	switch req.Type {
	case domain.TypeCluster:
		if err := topology.ValidateCluster(req.Masters, req.Replicas); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
		}
	case domain.TypeSentinel:
		if err := topology.ValidateQuorum(req.Sentinels, req.Quorum); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
		}
	}
	if len(req.Modules) > 0 && req.Type != domain.TypeStack {
		return fmt.Errorf("%w: modules are only supported by stack instances", domain.ErrInvalidRequest)
	}
	if req.UseStack && req.Type != domain.TypeCluster {
		return fmt.Errorf("%w: the stack image option only applies to clusters", domain.ErrInvalidRequest)
	}
	return nil
}

// ParseMemory parses a human memory size such as "256m" or "1g" into bytes.
// An empty string means no limit.
func ParseMemory(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("%w: memory %q: %v", domain.ErrInvalidRequest, s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: memory %q is negative", domain.ErrInvalidRequest, s)
	}
	return n, nil
}
