package graph

import (
	"fmt"
	"sort"
)

// undirected builds a neighbour index in which every edge is walkable both ways.
func undirected(adj Adjacency) map[NodeID][]NodeID {
	neighbors := make(map[NodeID][]NodeID, len(adj))
	for from, targets := range adj {
		if _, ok := neighbors[from]; !ok {
			neighbors[from] = nil
		}
		for to := range targets {
			neighbors[from] = append(neighbors[from], to)
			neighbors[to] = append(neighbors[to], from)
		}
	}
	return neighbors
}

func collect(neighbors map[NodeID][]NodeID, start NodeID, visited NodeSet) NodeSet {
	group := NewNodeSet(start)
	visited.Add(start)
	stack := []NodeID{start}
	for len(stack) > 0 {
		curr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range neighbors[curr] {
			if visited.Has(next) {
				continue
			}
			visited.Add(next)
			group.Add(next)
			stack = append(stack, next)
		}
	}
	return group
}

// ReachableSet returns every node weakly reachable from start, start included.
// A start node absent from adj yields just {start}.
func ReachableSet(adj Adjacency, start NodeID) NodeSet {
	return collect(undirected(adj), start, make(NodeSet))
}

// Partition splits the nodes of adj into maximal weakly-connected groups.
// Groups are ordered by their smallest node id so the result is stable.
func Partition(adj Adjacency) []NodeSet {
	neighbors := undirected(adj)
	visited := make(NodeSet, len(neighbors))

	seeds := make([]NodeID, 0, len(neighbors))
	for id := range neighbors {
		seeds = append(seeds, id)
	}
	sortNodes(seeds)

	groups := make([]NodeSet, 0)
	for _, seed := range seeds {
		if visited.Has(seed) {
			continue
		}
		groups = append(groups, collect(neighbors, seed, visited))
	}
	return groups
}

// SplitComponents partitions adj and returns one sub-adjacency per group that
// still holds at least one edge. Edge-less groups are dropped.
func SplitComponents(adj Adjacency) []Adjacency {
	groups := Partition(adj)
	out := make([]Adjacency, 0, len(groups))
	for _, group := range groups {
		sub := adj.Subgraph(group)
		if sub.EdgeCount() == 0 {
			continue
		}
		out = append(out, sub)
	}
	return out
}

// IsWeaklyConnected reports whether adj holds exactly one weakly-connected group.
func IsWeaklyConnected(adj Adjacency) bool {
	if len(adj) == 0 {
		return false
	}
	return len(ReachableSet(adj, adj.Nodes()[0])) == len(undirected(adj))
}

// Validate checks the record invariants: acyclic, a single weakly-connected
// group, and no edge-less nodes.
func (c Component) Validate() error {
	adj := c.Adjacency
	if adj.EdgeCount() == 0 {
		return fmt.Errorf("component %s has no edges", c.ID)
	}
	for id := range undirected(adj) {
		if !adj.HasNode(id) {
			return fmt.Errorf("component %s: edge target %s missing from node set", c.ID, id)
		}
	}
	if !IsAcyclic(adj) {
		return fmt.Errorf("component %s contains a cycle", c.ID)
	}
	if !IsWeaklyConnected(adj) {
		return fmt.Errorf("component %s is not weakly connected", c.ID)
	}
	return nil
}

// SortComponents orders components by creation time, then id.
func SortComponents(components []Component) {
	sort.Slice(components, func(i, j int) bool {
		if components[i].CreatedAt.Equal(components[j].CreatedAt) {
			return components[i].ID.Less(components[j].ID)
		}
		return components[i].CreatedAt.Before(components[j].CreatedAt)
	})
}
