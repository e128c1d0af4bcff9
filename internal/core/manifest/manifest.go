package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/artpar/redisup/internal/core/domain"
)

// APIVersion is the only document version understood.
const APIVersion = "v1"

// =============================================================================
// Document Types
// =============================================================================

// Document is a declarative list of deployments.
type Document struct {
	APIVersion  string  `yaml:"api-version"`
	Deployments []Entry `yaml:"deployments"`
}

// Entry is one named deployment. Spec holds the body for Type.
type Entry struct {
	Name string
	Type domain.DeploymentType
	Spec Spec
}

type entryHead struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// UnmarshalYAML decodes the "type" key first, then the body into the matching
// variant. Keys the variant does not know are rejected.
func (e *Entry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: deployment must be a mapping", node.Line)
	}
	var head entryHead
	if err := node.Decode(&head); err != nil {
		return err
	}
	t, err := domain.ParseDeploymentType(head.Type)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	spec := newSpec(t)

	allowed := yamlKeys(reflect.TypeOf(spec).Elem())
	allowed["name"], allowed["type"] = true, true
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		if !allowed[key.Value] {
			return fmt.Errorf("line %d: field %q is not valid for %s deployments", key.Line, key.Value, t)
		}
	}

	if err := node.Decode(spec); err != nil {
		return err
	}
	e.Name, e.Type, e.Spec = head.Name, t, spec
	return nil
}

// MarshalYAML renders name and type ahead of the variant's keys.
func (e Entry) MarshalYAML() (interface{}, error) {
	var body yaml.Node
	if e.Spec != nil {
		if err := body.Encode(e.Spec); err != nil {
			return nil, err
		}
	}
	out := &yaml.Node{Kind: yaml.MappingNode}
	if e.Name != "" {
		out.Content = append(out.Content, scalar("name"), scalar(e.Name))
	}
	out.Content = append(out.Content, scalar("type"), scalar(string(e.Type)))
	out.Content = append(out.Content, body.Content...)
	return out, nil
}

func scalar(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

// yamlKeys collects the yaml keys of a struct type, following inline fields.
func yamlKeys(t reflect.Type) map[string]bool {
	keys := make(map[string]bool)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("yaml")
		name, opts, _ := strings.Cut(tag, ",")
		if strings.Contains(opts, "inline") {
			for k := range yamlKeys(f.Type) {
				keys[k] = true
			}
			continue
		}
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		if name != "-" {
			keys[name] = true
		}
	}
	return keys
}

// =============================================================================
// Parsing
// =============================================================================

// Parse decodes a document, converts every entry into a normalized request and
// checks that entry names are unique within the document.
func Parse(data []byte) ([]domain.DeploymentRequest, error) {
	doc, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return doc.Requests()
}

// Decode reads a document without converting it.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: document is empty", domain.ErrInvalidRequest)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	if doc.APIVersion == "" {
		doc.APIVersion = APIVersion
	}
	if doc.APIVersion != APIVersion {
		return nil, fmt.Errorf("%w: unsupported api-version %q (want %q)", domain.ErrInvalidRequest, doc.APIVersion, APIVersion)
	}
	if len(doc.Deployments) == 0 {
		return nil, fmt.Errorf("%w: document has no deployments", domain.ErrInvalidRequest)
	}
	return &doc, nil
}

// Requests converts and normalizes every entry in document order.
func (d *Document) Requests() ([]domain.DeploymentRequest, error) {
	seen := make(map[string]bool, len(d.Deployments))
	reqs := make([]domain.DeploymentRequest, 0, len(d.Deployments))
	for i, e := range d.Deployments {
		if e.Name != "" {
			if seen[e.Name] {
				return nil, fmt.Errorf("%w: deployment %d: duplicate name %q", domain.ErrInvalidRequest, i+1, e.Name)
			}
			seen[e.Name] = true
		}
		req, err := e.Spec.Request(e.Name)
		if err != nil {
			return nil, fmt.Errorf("deployment %d (%s): %w", i+1, e.Type, err)
		}
		req, err = Normalize(req)
		if err != nil {
			return nil, fmt.Errorf("deployment %d (%s): %w", i+1, e.Type, err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// Marshal renders a document as YAML.
func Marshal(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// =============================================================================
// Examples
// =============================================================================

// Examples returns one sample document per deployment type, keyed by file
// name, plus a combined document.
func Examples() map[string]*Document {
	two := 2
	entries := map[domain.DeploymentType]Entry{
		domain.TypeBasic: {Name: "cache", Type: domain.TypeBasic, Spec: &BasicSpec{
			Port: 6379, Common: Common{Persist: true, Memory: "256m"},
		}},
		domain.TypeStack: {Name: "search", Type: domain.TypeStack, Spec: &StackSpec{
			Port: 6390, Modules: []string{"json", "search"}, Common: Common{WithInsight: true, InsightPort: 8001},
		}},
		domain.TypeCluster: {Name: "shards", Type: domain.TypeCluster, Spec: &ClusterSpec{
			Masters: 3, Replicas: &two, PortBase: 7000,
		}},
		domain.TypeSentinel: {Name: "ha", Type: domain.TypeSentinel, Spec: &SentinelSpec{
			Masters: 1, Replicas: 2, Sentinels: 3, Quorum: 2, RedisPortBase: 6400, SentinelPortBase: 26379,
		}},
		domain.TypeEnterprise: {Name: "re", Type: domain.TypeEnterprise, Spec: &EnterpriseSpec{
			Nodes: 3, PortBase: 8443, DBPort: 12000, Common: Common{Memory: "4g"},
		}},
	}

	docs := make(map[string]*Document, len(entries)+1)
	all := &Document{APIVersion: APIVersion}
	for _, t := range domain.DeploymentTypes {
		e := entries[t]
		docs[string(t)+".yaml"] = &Document{APIVersion: APIVersion, Deployments: []Entry{e}}
		all.Deployments = append(all.Deployments, e)
	}
	docs["all.yaml"] = all
	return docs
}

// ExampleNames returns the keys of Examples in sorted order.
func ExampleNames() []string {
	var names []string
	for name := range Examples() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
