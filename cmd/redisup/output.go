package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/artpar/redisup/internal/core/domain"
	"github.com/artpar/redisup/internal/engine"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// printStarted reports a freshly started instance with its endpoints.
func printStarted(w io.Writer, rec *domain.InstanceRecord) error {
	fmt.Fprintf(w, "Started %s instance %s\n", rec.Type, rec.Name)
	printEndpoints(w, "  ", rec)
	if rec.Password != "" {
		fmt.Fprintf(w, "  Password: %s\n", rec.Password)
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "  CONTAINER\tROLE\tPORTS")
	for _, n := range rec.Nodes {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", n.ContainerName, n.Role, formatPorts(n))
	}
	return tw.Flush()
}

// printInstance renders one reconciled instance.
func printInstance(w io.Writer, view *engine.InstanceView) error {
	rec := view.Record
	fmt.Fprintf(w, "Name:     %s\n", rec.Name)
	fmt.Fprintf(w, "Type:     %s\n", rec.Type)
	fmt.Fprintf(w, "Status:   %s\n", statusLabel(*view))
	fmt.Fprintf(w, "Network:  %s\n", rec.Network)
	fmt.Fprintf(w, "Created:  %s\n", rec.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	printEndpoints(w, "", &rec)
	if s := topologySummary(rec.Type, rec.Topology); s != "" {
		fmt.Fprintf(w, "Topology: %s\n", s)
	}
	if len(rec.Modules) > 0 {
		fmt.Fprintf(w, "Modules:  %s\n", strings.Join(rec.Modules, ", "))
	}
	if rec.Persist {
		fmt.Fprintln(w, "Persist:  yes")
	}
	if rec.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", rec.Error)
	}
	if view.RuntimeError != "" {
		fmt.Fprintf(w, "Runtime:  %s\n", view.RuntimeError)
	}

	fmt.Fprintln(w)
	tw := newTable(w)
	fmt.Fprintln(tw, "CONTAINER\tROLE\tSTATE\tPORTS")
	for _, n := range view.Nodes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.ContainerName, n.Role, n.State, formatPorts(n.NodeRecord))
	}
	return tw.Flush()
}

// printInstanceJSON writes the reconciled instance as an indented JSON
// document.
func printInstanceJSON(w io.Writer, view *engine.InstanceView) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}

// printEndpoints writes the connection URL, or for enterprise the UI and API
// addresses. Enterprise containers start without a cluster or database.
func printEndpoints(w io.Writer, indent string, rec *domain.InstanceRecord) {
	if url := rec.ConnectionURL(); url != "" {
		fmt.Fprintf(w, "%sConnect:  %s\n", indent, url)
	}
	if ui := rec.UIURL(); ui != "" {
		fmt.Fprintf(w, "%sUI:       %s\n", indent, ui)
		if api := rec.APIURL(); api != "" {
			fmt.Fprintf(w, "%sAPI:      %s\n", indent, api)
		}
		fmt.Fprintf(w, "%sNote:     complete cluster and database setup in the UI at %s\n", indent, ui)
	}
}

// printList renders a table of reconciled instances.
func printList(w io.Writer, views []engine.InstanceView) error {
	if len(views) == 0 {
		fmt.Fprintln(w, "No instances.")
		return nil
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "NAME\tTYPE\tSTATUS\tNODES\tPORTS\tCREATED")
	for _, v := range views {
		rec := v.Record
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			rec.Name,
			rec.Type,
			statusLabel(v),
			len(rec.Nodes),
			portRange(rec.HostPorts()),
			rec.CreatedAt.Local().Format("2006-01-02 15:04"),
		)
	}
	return tw.Flush()
}

// printCleanup summarizes a cleanup report.
func printCleanup(w io.Writer, report *engine.CleanupReport) {
	for _, name := range report.Removed {
		fmt.Fprintf(w, "Removed %s\n", name)
	}
	for _, name := range report.Failed {
		fmt.Fprintf(w, "Failed to remove %s (record kept)\n", name)
	}
	for _, name := range report.OrphanContainers {
		fmt.Fprintf(w, "Removed orphaned container %s\n", name)
	}
	for _, name := range report.OrphanNetworks {
		fmt.Fprintf(w, "Removed orphaned network %s\n", name)
	}
	if len(report.Removed)+len(report.Failed)+len(report.OrphanContainers)+len(report.OrphanNetworks) == 0 {
		fmt.Fprintln(w, "Nothing to clean up.")
	}
}

func topologySummary(t domain.DeploymentType, topo domain.Topology) string {
	switch t {
	case domain.TypeCluster:
		return fmt.Sprintf("%d masters, %d replicas per master", topo.Masters, topo.Replicas)
	case domain.TypeSentinel:
		return fmt.Sprintf("%d masters, %d replicas per master, %d sentinels (quorum %d)",
			topo.Masters, topo.Replicas, topo.Sentinels, topo.Quorum)
	case domain.TypeEnterprise:
		return fmt.Sprintf("%d nodes", topo.Nodes)
	}
	return ""
}

func statusLabel(v engine.InstanceView) string {
	s := string(v.Record.Status)
	if v.Stale {
		s += " (stale)"
	}
	return s
}

func formatPorts(n domain.NodeRecord) string {
	parts := []string{fmt.Sprintf("%d->%d", n.HostPort, n.InternalPort)}
	for _, p := range n.ExtraPorts {
		parts = append(parts, fmt.Sprintf("%d->%d (%s)", p.HostPort, p.ContainerPort, p.Name))
	}
	return strings.Join(parts, ", ")
}

// portRange renders ports as "first-last", or a single port.
func portRange(ports []int) string {
	if len(ports) == 0 {
		return "-"
	}
	lo, hi := ports[0], ports[0]
	for _, p := range ports[1:] {
		lo = min(lo, p)
		hi = max(hi, p)
	}
	if lo == hi {
		return strconv.Itoa(lo)
	}
	return fmt.Sprintf("%d-%d", lo, hi)
}
