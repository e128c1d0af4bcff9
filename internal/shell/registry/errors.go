// Package registry persists the instance registry as a single JSON document
// that is rewritten atomically on every change.
package registry

import (
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

// RegistryError wraps registry failures with the file involved. It unwraps
// to domain.ErrRegistryCorrupt or domain.ErrRegistryIO plus the cause.
type RegistryError struct {
	Op      string // Operation that failed (e.g., "Load", "Save")
	Path    string
	Message string
	Kind    error
	Err     error
}

func (e *RegistryError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RegistryError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewRegistryError creates a new RegistryError.
func NewRegistryError(op, path string, kind error, message string, err error) *RegistryError {
	return &RegistryError{
		Op:      op,
		Path:    path,
		Message: message,
		Kind:    kind,
		Err:     err,
	}
}
