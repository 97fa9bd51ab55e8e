package graph

// WouldCreateCycle reports whether adding from -> to to adj would close a
// directed cycle. That happens when from == to or when from is already
// reachable from to. adj is not modified.
func WouldCreateCycle(adj Adjacency, from, to NodeID) bool {
	return CyclePath(adj, from, to) != nil
}

// CyclePath returns the cycle that from -> to would close, as
// [to, ..., from, to], or nil when the edge is safe.
func CyclePath(adj Adjacency, from, to NodeID) []NodeID {
	if from == to {
		return []NodeID{from, from}
	}

	// Iterative DFS from `to` along outgoing edges looking for `from`.
	parent := map[NodeID]NodeID{}
	visited := NewNodeSet(to)
	stack := []NodeID{to}
	for len(stack) > 0 {
		curr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for next := range adj[curr] {
			if visited.Has(next) {
				continue
			}
			visited.Add(next)
			parent[next] = curr
			if next == from {
				return unwindPath(parent, to, from)
			}
			stack = append(stack, next)
		}
	}
	return nil
}

func unwindPath(parent map[NodeID]NodeID, start, end NodeID) []NodeID {
	path := []NodeID{end}
	for node := end; node != start; {
		node = parent[node]
		path = append(path, node)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return append(path, start)
}

// IsAcyclic runs Kahn's algorithm over the whole adjacency.
func IsAcyclic(adj Adjacency) bool {
	indegree := make(map[NodeID]int, len(adj))
	for id, targets := range adj {
		if _, ok := indegree[id]; !ok {
			indegree[id] = 0
		}
		for to := range targets {
			indegree[to]++
		}
	}

	queue := make([]NodeID, 0, len(indegree))
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	seen := 0
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		seen++
		for to := range adj[curr] {
			indegree[to]--
			if indegree[to] == 0 {
				queue = append(queue, to)
			}
		}
	}
	return seen == len(indegree)
}
