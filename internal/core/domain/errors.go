package domain

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Error Taxonomy
// =============================================================================

var (
	// Planner errors. Returned before any container is touched.
	ErrNameConflict       = errors.New("name already in use")
	ErrPortConflict       = errors.New("host port already in use")
	ErrPortRangeExhausted = errors.New("no free host port in range")
	ErrInvalidRequest     = errors.New("invalid deployment request")

	// Orchestrator errors. Always followed by a rollback attempt.
	ErrRuntimeUnavailable = errors.New("container runtime unavailable")
	ErrNodeNotReady       = errors.New("node did not become ready")
	ErrWiringFailed       = errors.New("topology wiring failed")
	ErrRollbackFailed     = errors.New("rollback incomplete")
	ErrInvalidTransition  = errors.New("invalid phase transition")

	// Registry errors.
	ErrRegistryCorrupt  = errors.New("instance registry is corrupt")
	ErrRegistryIO       = errors.New("instance registry I/O failure")
	ErrInstanceNotFound = errors.New("instance not found")
)

// Error carries the failing operation together with the resources involved,
// so a user can clean up by hand. It unwraps to both the taxonomy sentinel and
// the underlying cause.
type Error struct {
	Op        string   // e.g. "plan", "start-node", "wire-sentinel"
	Instance  string   // instance name, if known
	Resources []string // container names, ports or network names
	Message   string
	Kind      error // one of the sentinel errors above
	Cause     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Instance != "" {
		b.WriteString(" ")
		b.WriteString(e.Instance)
	}
	if len(e.Resources) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Resources, ", "))
	}
	b.WriteString(": ")
	if e.Message != "" {
		b.WriteString(e.Message)
	} else if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// NewError creates a new Error.
func NewError(op, instance string, resources []string, kind error, message string, cause error) *Error {
	return &Error{
		Op:        op,
		Instance:  instance,
		Resources: resources,
		Message:   message,
		Kind:      kind,
		Cause:     cause,
	}
}
