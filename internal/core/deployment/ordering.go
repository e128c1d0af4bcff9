package deployment

import (
	"fmt"

	"github.com/artpar/redisup/internal/core/domain"
)

// =============================================================================
// Orchestration Phases
// =============================================================================

// Phase is a step of the bring-up sequence for one instance.
type Phase string

const (
	PhasePlanned       Phase = "planned"
	PhaseNetworkReady  Phase = "network-ready"
	PhaseNodesStarting Phase = "nodes-starting"
	PhaseNodesReady    Phase = "nodes-ready"
	PhaseWiring        Phase = "wiring"
	PhaseWired         Phase = "wired"
	PhaseFailed        Phase = "failed"
)

// phaseTransitions lists the forward move out of each phase. Any non-terminal
// phase may also move to PhaseFailed.
var phaseTransitions = map[Phase][]Phase{
	PhasePlanned:       {PhaseNetworkReady},
	PhaseNetworkReady:  {PhaseNodesStarting},
	PhaseNodesStarting: {PhaseNodesReady},
	PhaseNodesReady:    {PhaseWiring, PhaseWired},
	PhaseWiring:        {PhaseWired},
}

// Terminal reports whether no further transition is possible.
func (p Phase) Terminal() bool {
	return p == PhaseWired || p == PhaseFailed
}

// CanTransition reports whether moving from one phase to another is legal.
//
// Example:
//
//	CanTransition(PhaseNodesReady, PhaseWiring) // true
//	CanTransition(PhaseWired, PhaseFailed)      // false
func CanTransition(from, to Phase) bool {
	if to == PhaseFailed {
		return !from.Terminal()
	}
	for _, next := range phaseTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns ErrInvalidTransition when the move is illegal.
func ValidateTransition(from, to Phase) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}
	return nil
}

// NextPhase returns the successful successor of a phase for a deployment type.
// Only cluster and sentinel instances pass through PhaseWiring.
//
// Example:
//
//	NextPhase(domain.TypeBasic, PhaseNodesReady)   // PhaseWired, true
//	NextPhase(domain.TypeCluster, PhaseNodesReady) // PhaseWiring, true
func NextPhase(t domain.DeploymentType, p Phase) (Phase, bool) {
	if p == PhaseNodesReady {
		if t == domain.TypeCluster || t == domain.TypeSentinel {
			return PhaseWiring, true
		}
		return PhaseWired, true
	}
	next := phaseTransitions[p]
	if len(next) == 0 {
		return "", false
	}
	return next[0], true
}

// PhasePath returns the full successful sequence for a type, starting at
// PhasePlanned.
func PhasePath(t domain.DeploymentType) []Phase {
	path := []Phase{PhasePlanned}
	for p := PhasePlanned; ; {
		next, ok := NextPhase(t, p)
		if !ok {
			return path
		}
		path = append(path, next)
		p = next
	}
}

// =============================================================================
// Status Checks
// =============================================================================

// CanStop reports whether an instance in the given status can be stopped,
// with a reason when it cannot.
func CanStop(status domain.InstanceStatus) (bool, string) {
	switch status {
	case domain.StatusRunning, domain.StatusPartiallyFailed, domain.StatusStarting:
		return true, ""
	case domain.StatusStopped:
		return false, "instance is already stopped"
	}
	return false, fmt.Sprintf("unknown status %q", status)
}
