package docker

import (
	"errors"
	"strings"

	cerrdefs "github.com/containerd/errdefs"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Container errors
	ErrContainerNotFound       = errors.New("container not found")
	ErrContainerAlreadyExists  = errors.New("container already exists")
	ErrContainerNotRunning     = errors.New("container is not running")
	ErrContainerAlreadyRunning = errors.New("container is already running")

	// Network errors
	ErrNetworkNotFound      = errors.New("network not found")
	ErrNetworkAlreadyExists = errors.New("network already exists")
	ErrNetworkInUse         = errors.New("network has active endpoints")

	// Volume errors
	ErrVolumeNotFound = errors.New("volume not found")
	ErrVolumeInUse    = errors.New("volume is in use")

	// Image errors
	ErrImageNotFound   = errors.New("image not found")
	ErrImagePullFailed = errors.New("image pull failed")

	// Engine errors
	ErrPortAlreadyAllocated = errors.New("port is already allocated")
	ErrConnectionFailed     = errors.New("docker connection failed")
)

// IsNotFound reports whether err means the container, network or volume is
// already gone. Teardown treats that as success.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrContainerNotFound) ||
		errors.Is(err, ErrNetworkNotFound) ||
		errors.Is(err, ErrVolumeNotFound)
}

// DockerError records which engine call failed on which object.
type DockerError struct {
	Op      string // Operation that failed
	Entity  string // container, network, volume or image
	ID      string // name or ID, if any
	Message string
	Err     error
}

func (e *DockerError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Entity != "" {
		b.WriteString(" ")
		b.WriteString(e.Entity)
	}
	if e.ID != "" {
		b.WriteString(" ")
		b.WriteString(e.ID)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

func (e *DockerError) Unwrap() error {
	return e.Err
}

// NewDockerError creates a new DockerError.
func NewDockerError(op, entity, id, message string, err error) *DockerError {
	return &DockerError{
		Op:      op,
		Entity:  entity,
		ID:      id,
		Message: message,
		Err:     err,
	}
}

// =============================================================================
// Engine Error Classification
// =============================================================================

// notFoundErrs maps an entity to its not-found sentinel.
var notFoundErrs = map[string]error{
	"container": ErrContainerNotFound,
	"network":   ErrNetworkNotFound,
	"volume":    ErrVolumeNotFound,
	"image":     ErrImageNotFound,
}

// conflictErrs maps an entity to the sentinel for a 409 on create.
var conflictErrs = map[string]error{
	"container": ErrContainerAlreadyExists,
	"network":   ErrNetworkAlreadyExists,
	"volume":    ErrVolumeInUse,
}

// wrapEngineError classifies an error returned by the Docker SDK into one of
// the sentinels above and wraps it in a DockerError. Errors that match no
// sentinel keep the SDK error as the cause.
func wrapEngineError(op, entity, id string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)

	var kind error
	switch {
	case cerrdefs.IsNotFound(err):
		kind = notFoundErrs[entity]
	case strings.Contains(lower, "port is already allocated"), strings.Contains(lower, "address already in use"):
		kind = ErrPortAlreadyAllocated
	case strings.Contains(lower, "is already running"):
		kind = ErrContainerAlreadyRunning
	case strings.Contains(lower, "is not running"):
		kind = ErrContainerNotRunning
	case strings.Contains(lower, "has active endpoints"):
		kind = ErrNetworkInUse
	case entity == "volume" && strings.Contains(lower, "in use"):
		kind = ErrVolumeInUse
	case cerrdefs.IsConflict(err), strings.Contains(lower, "already exists"):
		kind = conflictErrs[entity]
	}

	if kind == nil {
		return NewDockerError(op, entity, id, msg, err)
	}
	return NewDockerError(op, entity, id, msg, errors.Join(kind, err))
}
