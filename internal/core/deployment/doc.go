// Package deployment provides pure functions for planning Redis instances.
//
// Nothing here touches the container runtime or the filesystem. Given a
// DeploymentRequest and a snapshot of the registry, the planner decides every
// name and host port up front, so the orchestrator can create containers
// without discovering conflicts halfway through.
//
// # Functions
//
//   - Planning: Resolve names and ports for every node (Plan, ValidatePlan)
//   - Naming: Generate consistent resource names (NetworkName, ContainerName, VolumeName)
//   - Ports: Allocate free host ports (PortAllocator, DefaultBasePort)
//   - Container: Build container plans per role (BuildContainerPlan)
//   - Ordering: Orchestration phases and their legal moves (CanTransition, NextPhase)
//
// # Usage
//
// The engine plans, the orchestrator (internal/shell/docker) executes:
//
//	plan, err := deployment.Plan(req, registry.List())
//	spec := deployment.BuildContainerPlan(deployment.BuildContainerPlanParams{Plan: plan, Node: plan.Nodes[0]})
package deployment
