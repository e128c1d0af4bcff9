package manifest

import (
	"testing"

	"github.com/artpar/redisup/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Parse Tests
// =============================================================================

func TestParse_AllTypes(t *testing.T) {
	doc := `
api-version: v1
deployments:
  - name: cache
    type: basic
    port: 6390
    memory: 256m
    persist: true
  - name: shards
    type: cluster
    masters: 3
  - name: ha
    type: sentinel
    sentinels: 5
    sentinel-port-base: 26400
  - name: re
    type: enterprise
    nodes: 1
  - type: stack
    modules: [JSON, search]
    with-insight: true
`
	reqs, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, reqs, 5)

	basic := reqs[0]
	assert.Equal(t, domain.TypeBasic, basic.Type)
	assert.Equal(t, "cache", basic.Name)
	assert.Equal(t, 6390, basic.BasePort)
	assert.Equal(t, int64(256*1024*1024), basic.MemoryLimit)
	assert.True(t, basic.Persist)

	cluster := reqs[1]
	assert.Equal(t, 3, cluster.Masters)
	assert.Equal(t, 1, cluster.Replicas, "documents default to one replica per master")

	sentinel := reqs[2]
	assert.Equal(t, 1, sentinel.Masters)
	assert.Equal(t, 5, sentinel.Sentinels)
	assert.Equal(t, 3, sentinel.Quorum)
	assert.Equal(t, 26400, sentinel.SentinelBasePort)

	enterprise := reqs[3]
	assert.Equal(t, 1, enterprise.Nodes)
	assert.Equal(t, 12000, enterprise.DatabasePort)

	stack := reqs[4]
	assert.Empty(t, stack.Name)
	assert.Equal(t, []string{"json", "search"}, stack.Modules)
	assert.Equal(t, 8001, stack.InsightPort)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ``},
		{"no deployments", "api-version: v1\ndeployments: []\n"},
		{"wrong version", "api-version: v2\ndeployments:\n  - type: basic\n"},
		{"unknown type", "deployments:\n  - type: memcached\n"},
		{"unknown top-level key", "apiVersion: v1\ndeployments:\n  - type: basic\n"},
		{"key of another variant", "deployments:\n  - type: basic\n    masters: 3\n"},
		{"too few cluster masters", "deployments:\n  - type: cluster\n    masters: 2\n"},
		{"quorum above sentinels", "deployments:\n  - type: sentinel\n    sentinels: 3\n    quorum: 4\n"},
		{"bad memory", "deployments:\n  - type: basic\n    memory: lots\n"},
		{"bad name", "deployments:\n  - type: basic\n    name: \"my cache\"\n"},
		{"duplicate names", "deployments:\n  - {type: basic, name: a}\n  - {type: stack, name: a}\n"},
		{"unknown module", "deployments:\n  - type: stack\n    modules: [vector]\n"},
		{"port out of range", "deployments:\n  - type: basic\n    port: 70000\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, domain.ErrInvalidRequest)
		})
	}
}

// =============================================================================
// Normalize Tests
// =============================================================================

func TestNormalize_Defaults(t *testing.T) {
	tests := []struct {
		name string
		in   domain.DeploymentRequest
		want func(t *testing.T, got domain.DeploymentRequest)
	}{
		{"basic forces single master", domain.DeploymentRequest{Type: domain.TypeBasic, Masters: 4, Replicas: 2},
			func(t *testing.T, got domain.DeploymentRequest) {
				assert.Equal(t, 1, got.Masters)
				assert.Zero(t, got.Replicas)
			}},
		{"cluster keeps zero replicas", domain.DeploymentRequest{Type: domain.TypeCluster},
			func(t *testing.T, got domain.DeploymentRequest) {
				assert.Equal(t, 3, got.Masters)
				assert.Zero(t, got.Replicas)
			}},
		{"sentinel majority quorum", domain.DeploymentRequest{Type: domain.TypeSentinel, Sentinels: 5},
			func(t *testing.T, got domain.DeploymentRequest) {
				assert.Equal(t, 3, got.Quorum)
				assert.Equal(t, DefaultSentinelBasePort, got.SentinelBasePort)
			}},
		{"insight port", domain.DeploymentRequest{Type: domain.TypeBasic, WithInsight: true},
			func(t *testing.T, got domain.DeploymentRequest) {
				assert.Equal(t, 8001, got.InsightPort)
			}},
		{"explicit base port kept", domain.DeploymentRequest{Type: domain.TypeCluster, BasePort: 30000},
			func(t *testing.T, got domain.DeploymentRequest) {
				assert.Equal(t, 30000, got.BasePort)
			}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.in)
			require.NoError(t, err)
			tt.want(t, got)
		})
	}
}

func TestNormalize_Rejects(t *testing.T) {
	_, err := Normalize(domain.DeploymentRequest{Type: domain.TypeBasic, Modules: []string{"json"}})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = Normalize(domain.DeploymentRequest{Type: domain.TypeSentinel, UseStack: true})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = Normalize(domain.DeploymentRequest{Type: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestParseMemory(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"256m", 256 << 20, false},
		{"1g", 1 << 30, false},
		{"512MB", 512 << 20, false},
		{"lots", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMemory(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidRequest)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// =============================================================================
// Example Tests
// =============================================================================

func TestExamples_ParseBack(t *testing.T) {
	for name, doc := range Examples() {
		t.Run(name, func(t *testing.T) {
			data, err := Marshal(doc)
			require.NoError(t, err)

			reqs, err := Parse(data)
			require.NoError(t, err, string(data))
			assert.Len(t, reqs, len(doc.Deployments))
		})
	}
}

func TestExampleNames(t *testing.T) {
	assert.Equal(t, []string{"all.yaml", "basic.yaml", "cluster.yaml", "enterprise.yaml", "sentinel.yaml", "stack.yaml"}, ExampleNames())
}

func TestMarshal_EntryKeyOrder(t *testing.T) {
	doc := &Document{APIVersion: APIVersion, Deployments: []Entry{
		{Name: "cache", Type: domain.TypeBasic, Spec: &BasicSpec{Port: 6379}},
	}}
	data, err := Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t, "api-version: v1\ndeployments:\n  - name: cache\n    type: basic\n    port: 6379\n", string(data))
}
