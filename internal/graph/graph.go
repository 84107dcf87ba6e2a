// Package graph implements the Container Graph Runtime (spec.md §4.C): it
// drives start/stop of a Project's Containers in dependency order and
// rejects cyclic ContainerConnections before they are ever written.
package graph

import (
	"github.com/tesslate/studio-orchestrator/internal/models"
	"github.com/tesslate/studio-orchestrator/internal/orcherr"
)

// DetectCycle reports whether adding a depends_on edge from->to would
// introduce a cycle into the existing edge set, by walking forward from
// `to` looking for a path back to `from`.
func DetectCycle(existing []models.ContainerConnection, from, to string) bool {
	if from == to {
		return true
	}
	adjacency := make(map[string][]string, len(existing))
	for _, c := range existing {
		if c.Kind != models.ConnectionDependsOn {
			continue
		}
		adjacency[c.FromContainerID] = append(adjacency[c.FromContainerID], c.ToContainerID)
	}
	adjacency[from] = append(adjacency[from], to)

	visited := make(map[string]bool)
	var walk func(node string) bool
	walk = func(node string) bool {
		if node == from {
			return true
		}
		if visited[node] {
			return false
		}
		visited[node] = true
		for _, next := range adjacency[node] {
			if walk(next) {
				return true
			}
		}
		return false
	}
	return walk(to)
}

// TopoOrder returns containerIDs in dependency order: a container appears
// after every container it depends_on. It fails with CodeCycleInGraph if
// the edge set (which should have been cycle-checked at insert time) turns
// out not to be a DAG.
func TopoOrder(containerIDs []string, connections []models.ContainerConnection) ([]string, error) {
	dependsOn := make(map[string][]string, len(containerIDs))
	for _, id := range containerIDs {
		dependsOn[id] = nil
	}
	for _, c := range connections {
		if c.Kind != models.ConnectionDependsOn {
			continue
		}
		dependsOn[c.FromContainerID] = append(dependsOn[c.FromContainerID], c.ToContainerID)
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(containerIDs))
	var order []string

	var visit func(node string) error
	visit = func(node string) error {
		switch color[node] {
		case black:
			return nil
		case gray:
			return orcherr.PermanentError(orcherr.CodeCycleInGraph, "cycle detected among containers", nil)
		}
		color[node] = gray
		for _, dep := range dependsOn[node] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[node] = black
		order = append(order, node)
		return nil
	}

	for _, id := range containerIDs {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// StopOrder is the reverse of start order: containers that depend on
// others stop first.
func StopOrder(containerIDs []string, connections []models.ContainerConnection) ([]string, error) {
	order, err := TopoOrder(containerIDs, connections)
	if err != nil {
		return nil, err
	}
	reversed := make([]string, len(order))
	for i, id := range order {
		reversed[len(order)-1-i] = id
	}
	return reversed, nil
}
