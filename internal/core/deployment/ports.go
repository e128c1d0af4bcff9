package deployment

import (
	"fmt"

	"github.com/artpar/redisup/internal/core/domain"
)

// =============================================================================
// Port Allocation
// =============================================================================

const (
	// MaxPort is the highest valid TCP port.
	MaxPort = 65535
	// MaxPortProbes bounds how many candidates one allocation may try.
	MaxPortProbes = 1000
)

// DefaultBasePort returns the first host port tried for a deployment type.
func DefaultBasePort(t domain.DeploymentType) int {
	switch t {
	case domain.TypeCluster:
		return 7000
	case domain.TypeEnterprise:
		return EnterpriseUIPort
	default:
		return RedisPort
	}
}

// PortAllocator hands out host ports that are not in its used set. Every
// successful allocation is added to the set, so a single allocator never
// returns the same port twice.
type PortAllocator struct {
	used map[int]bool
}

// NewPortAllocator creates an allocator that treats the given ports as taken.
func NewPortAllocator(used []int) *PortAllocator {
	a := &PortAllocator{used: make(map[int]bool, len(used))}
	for _, p := range used {
		a.used[p] = true
	}
	return a
}

// UsedPorts returns every host port (primary and extra) held by the records.
func UsedPorts(records []domain.InstanceRecord) []int {
	var ports []int
	for _, rec := range records {
		ports = append(ports, rec.HostPorts()...)
	}
	return ports
}

// InUse reports whether port is already taken.
func (a *PortAllocator) InUse(port int) bool {
	return a.used[port]
}

// Allocate scans upward from start for a port p such that p and every p+offset
// are free, reserves them all and returns p. The scan gives up after
// MaxPortProbes candidates or when a candidate would exceed MaxPort.
//
// Example:
//
//	a := NewPortAllocator([]int{7000, 17001})
//	a.Allocate(7000, ClusterBusOffset) // 7002: 7000 is taken, 7001's bus port 17001 is taken
func (a *PortAllocator) Allocate(start int, offsets ...int) (int, error) {
	if start < 1 {
		return 0, fmt.Errorf("%w: invalid start port %d", domain.ErrPortRangeExhausted, start)
	}
	for probe := 0; probe < MaxPortProbes; probe++ {
		p := start + probe
		if p > MaxPort {
			break
		}
		if !a.free(p, offsets) {
			continue
		}
		a.used[p] = true
		for _, off := range offsets {
			a.used[p+off] = true
		}
		return p, nil
	}
	return 0, fmt.Errorf("%w: scanned from %d", domain.ErrPortRangeExhausted, start)
}

func (a *PortAllocator) free(p int, offsets []int) bool {
	if a.used[p] {
		return false
	}
	for _, off := range offsets {
		q := p + off
		if q > MaxPort || a.used[q] {
			return false
		}
	}
	return true
}
