// Package topology computes the wiring of multi-node Redis topologies: hash
// slot ownership for clusters and monitor registrations for sentinel groups.
// All functions are pure; internal/shell/wiring applies the results.
package topology
