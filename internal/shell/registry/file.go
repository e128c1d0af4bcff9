package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/moby/sys/atomicwriter"

	"github.com/artpar/redisup/internal/core/domain"
)

// DefaultFileName is the registry file name under the config directory.
const DefaultFileName = "instances.json"

// DefaultPath returns <user config dir>/redisup/instances.json.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", NewRegistryError("DefaultPath", "", domain.ErrRegistryIO, "no user config directory", err)
	}
	return filepath.Join(dir, "redisup", DefaultFileName), nil
}

// =============================================================================
// FileRegistry
// =============================================================================

// FileRegistry stores the registry document in one JSON file. Every mutation
// reads the current file, applies the change and rewrites the whole file
// atomically, so a crash never leaves a truncated document behind.
//
// Concurrent writers within one process are serialized; across processes the
// last writer wins.
type FileRegistry struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewFileRegistry creates a registry backed by path.
func NewFileRegistry(path string, logger *slog.Logger) *FileRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileRegistry{path: path, logger: logger}
}

// Path returns the backing file path.
func (r *FileRegistry) Path() string {
	return r.path
}

// Load reads the registry document. A missing file is an empty registry.
func (r *FileRegistry) Load() (*domain.Registry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

// Save replaces the registry document.
func (r *FileRegistry) Save(reg *domain.Registry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.save(reg)
}

// Find returns the record stored under name.
func (r *FileRegistry) Find(name string) (domain.InstanceRecord, error) {
	reg, err := r.Load()
	if err != nil {
		return domain.InstanceRecord{}, err
	}
	rec, ok := reg.Find(name)
	if !ok {
		return domain.InstanceRecord{}, domain.NewError("find", name, nil, domain.ErrInstanceNotFound, "", nil)
	}
	return rec, nil
}

// List returns all records sorted by name.
func (r *FileRegistry) List() ([]domain.InstanceRecord, error) {
	reg, err := r.Load()
	if err != nil {
		return nil, err
	}
	return reg.List(), nil
}

// Upsert inserts or replaces one record.
func (r *FileRegistry) Upsert(rec domain.InstanceRecord) error {
	return r.update(func(reg *domain.Registry) error {
		reg.Upsert(rec)
		return nil
	})
}

// Remove deletes the record stored under name. Removing an unknown name
// returns ErrInstanceNotFound.
func (r *FileRegistry) Remove(name string) error {
	return r.update(func(reg *domain.Registry) error {
		if !reg.Remove(name) {
			return domain.NewError("remove", name, nil, domain.ErrInstanceNotFound, "", nil)
		}
		return nil
	})
}

// update applies fn to the current document and saves the result.
func (r *FileRegistry) update(fn func(reg *domain.Registry) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, err := r.load()
	if err != nil {
		return err
	}
	if err := fn(reg); err != nil {
		return err
	}
	return r.save(reg)
}

// =============================================================================
// Encoding
// =============================================================================

// document is the on-disk shape. A pointer distinguishes a missing or null
// instances key from an empty object.
type document struct {
	Instances *map[string]domain.InstanceRecord `json:"instances"`
}

func (r *FileRegistry) load() (*domain.Registry, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.logger.Debug("registry file not found, starting empty", "path", r.path)
			return domain.NewRegistry(), nil
		}
		return nil, NewRegistryError("Load", r.path, domain.ErrRegistryIO, "read failed", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return domain.NewRegistry(), nil
	}

	var doc document
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, NewRegistryError("Load", r.path, domain.ErrRegistryCorrupt, "malformed document", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, NewRegistryError("Load", r.path, domain.ErrRegistryCorrupt, "trailing data after document", err)
	}
	if doc.Instances == nil || *doc.Instances == nil {
		return nil, NewRegistryError("Load", r.path, domain.ErrRegistryCorrupt, "missing instances object", nil)
	}

	reg := &domain.Registry{Instances: *doc.Instances}
	if err := reg.Validate(); err != nil {
		return nil, NewRegistryError("Load", r.path, domain.ErrRegistryCorrupt, "invalid document", err)
	}
	return reg, nil
}

func (r *FileRegistry) save(reg *domain.Registry) error {
	if reg == nil {
		reg = domain.NewRegistry()
	}
	data, err := Encode(reg)
	if err != nil {
		return NewRegistryError("Save", r.path, domain.ErrRegistryCorrupt, "encode failed", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return NewRegistryError("Save", r.path, domain.ErrRegistryIO, "create directory", err)
	}
	// The registry holds instance passwords.
	if err := atomicwriter.WriteFile(r.path, data, 0o600); err != nil {
		return NewRegistryError("Save", r.path, domain.ErrRegistryIO, "write failed", err)
	}
	r.logger.Debug("registry saved", "path", r.path, "instances", len(reg.Instances))
	return nil
}

// Encode renders the registry document. Keys are sorted, so encoding the
// same registry twice yields identical bytes.
func Encode(reg *domain.Registry) ([]byte, error) {
	if reg.Instances == nil {
		reg = &domain.Registry{Instances: map[string]domain.InstanceRecord{}}
	}
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
