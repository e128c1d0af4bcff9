package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// =============================================================================
// Registry Document
// =============================================================================

// Registry is the in-memory form of the registry document: a mapping from
// instance name to record. It is a plain value; persistence lives in the
// shell (internal/shell/registry).
type Registry struct {
	Instances map[string]InstanceRecord `json:"instances"`
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{Instances: map[string]InstanceRecord{}}
}

// Find returns the record stored under name.
func (r *Registry) Find(name string) (InstanceRecord, bool) {
	rec, ok := r.Instances[name]
	return rec, ok
}

// Upsert inserts or replaces the record keyed by its name.
func (r *Registry) Upsert(rec InstanceRecord) {
	if r.Instances == nil {
		r.Instances = map[string]InstanceRecord{}
	}
	r.Instances[rec.Name] = rec
}

// Remove deletes the record stored under name and reports whether it existed.
func (r *Registry) Remove(name string) bool {
	if _, ok := r.Instances[name]; !ok {
		return false
	}
	delete(r.Instances, name)
	return true
}

// List returns all records sorted by name.
func (r *Registry) List() []InstanceRecord {
	out := make([]InstanceRecord, 0, len(r.Instances))
	for _, rec := range r.Instances {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListByType returns the records of one deployment type sorted by name.
func (r *Registry) ListByType(t DeploymentType) []InstanceRecord {
	var out []InstanceRecord
	for _, rec := range r.List() {
		if rec.Type == t {
			out = append(out, rec)
		}
	}
	return out
}

// Latest returns the record of type t with the highest numeric name suffix,
// breaking ties by creation time. Used when a command omits the instance name.
func (r *Registry) Latest(t DeploymentType) (InstanceRecord, bool) {
	var (
		best  InstanceRecord
		bestN = -1
		found bool
	)
	for _, rec := range r.ListByType(t) {
		n := NameSuffix(rec.Name)
		if !found || n > bestN || (n == bestN && rec.CreatedAt.After(best.CreatedAt)) {
			best, bestN, found = rec, n, true
		}
	}
	return best, found
}

// Validate checks the structural invariants of a loaded document.
func (r *Registry) Validate() error {
	for key, rec := range r.Instances {
		if rec.Name != key {
			return fmt.Errorf("record %q is stored under key %q", rec.Name, key)
		}
		if !rec.Type.Valid() {
			return fmt.Errorf("record %q has unknown type %q", key, rec.Type)
		}
		if !rec.Status.Valid() {
			return fmt.Errorf("record %q has unknown status %q", key, rec.Status)
		}
		for i, n := range rec.Nodes {
			if !n.Role.Valid() {
				return fmt.Errorf("record %q node %d has unknown role %q", key, i, n.Role)
			}
			if n.ContainerName == "" {
				return fmt.Errorf("record %q node %d has no container name", key, i)
			}
		}
	}
	return nil
}

// NameSuffix returns the trailing integer of a name like "redis-basic-3",
// or 0 if the name has no numeric suffix.
func NameSuffix(name string) int {
	idx := strings.LastIndex(name, "-")
	if idx < 0 || idx == len(name)-1 {
		return 0
	}
	n, err := strconv.Atoi(name[idx+1:])
	if err != nil || n < 0 {
		return 0
	}
	return n
}
