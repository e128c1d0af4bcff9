package topology

import (
	"fmt"
	"strconv"
)

// =============================================================================
// Sentinel Monitors
// =============================================================================

const (
	DefaultDownAfterMillis       = 5000
	DefaultFailoverTimeoutMillis = 10000
	DefaultParallelSyncs         = 1
)

// MonitorConfig is one SENTINEL MONITOR registration plus the SENTINEL SET
// options applied right after it.
type MonitorConfig struct {
	Name                  string
	Host                  string
	Port                  int
	Quorum                int
	DownAfterMillis       int
	FailoverTimeoutMillis int
	ParallelSyncs         int
	AuthPass              string
}

// Options returns the SENTINEL SET key/value pairs for the monitor.
func (m MonitorConfig) Options() map[string]string {
	opts := map[string]string{
		"down-after-milliseconds": strconv.Itoa(m.DownAfterMillis),
		"failover-timeout":        strconv.Itoa(m.FailoverTimeoutMillis),
		"parallel-syncs":          strconv.Itoa(m.ParallelSyncs),
	}
	if m.AuthPass != "" {
		opts["auth-pass"] = m.AuthPass
	}
	return opts
}

// MonitorName returns the name sentinels use for the i-th master (1-based).
//
// Example:
//
//	MonitorName(1) // "master-1"
func MonitorName(master int) string {
	return fmt.Sprintf("master-%d", master)
}

// DefaultQuorum returns a strict majority of the sentinels.
//
// Example:
//
//	DefaultQuorum(3) // 2
func DefaultQuorum(sentinels int) int {
	return sentinels/2 + 1
}

// ValidateQuorum checks that a quorum can be reached by the sentinel group.
func ValidateQuorum(sentinels, quorum int) error {
	if sentinels < 1 {
		return fmt.Errorf("sentinel group needs at least one sentinel, got %d", sentinels)
	}
	if quorum < 1 || quorum > sentinels {
		return fmt.Errorf("quorum must be between 1 and %d, got %d", sentinels, quorum)
	}
	return nil
}

// SentinelMonitors returns the monitors every sentinel of the group registers,
// one per master, in master order. masters are in-network endpoints.
func SentinelMonitors(masters []Endpoint, quorum int, password string) []MonitorConfig {
	monitors := make([]MonitorConfig, 0, len(masters))
	for i, m := range masters {
		monitors = append(monitors, MonitorConfig{
			Name:                  MonitorName(i + 1),
			Host:                  m.Host,
			Port:                  m.Port,
			Quorum:                quorum,
			DownAfterMillis:       DefaultDownAfterMillis,
			FailoverTimeoutMillis: DefaultFailoverTimeoutMillis,
			ParallelSyncs:         DefaultParallelSyncs,
			AuthPass:              password,
		})
	}
	return monitors
}

// WiringOutcome summarizes how many sentinels acknowledged their monitors.
type WiringOutcome struct {
	Total  int
	Acked  int
	Quorum int
}

// Complete reports whether every sentinel acknowledged.
func (o WiringOutcome) Complete() bool {
	return o.Acked == o.Total
}

// QuorumReached reports whether at least quorum sentinels acknowledged.
func (o WiringOutcome) QuorumReached() bool {
	return o.Acked >= o.Quorum
}
