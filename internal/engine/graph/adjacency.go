package graph

import (
	"sort"
	"time"
)

// NodeSet is an unordered set of node ids. Sorted gives a stable view.
type NodeSet map[NodeID]struct{}

func NewNodeSet(ids ...NodeID) NodeSet {
	s := make(NodeSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s NodeSet) Add(id NodeID) { s[id] = struct{}{} }

func (s NodeSet) Has(id NodeID) bool {
	_, ok := s[id]
	return ok
}

func (s NodeSet) Sorted() []NodeID {
	out := make([]NodeID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sortNodes(out)
	return out
}

func (s NodeSet) Clone() NodeSet {
	out := make(NodeSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Edge is a directed dependency edge From -> To.
type Edge struct {
	From NodeID `json:"from"`
	To   NodeID `json:"to"`
}

// Adjacency maps each node to the set of nodes it points at. Every edge target
// is also present as a key, possibly with an empty set.
type Adjacency map[NodeID]NodeSet

func NewAdjacency() Adjacency {
	return make(Adjacency)
}

func (a Adjacency) ensure(id NodeID) NodeSet {
	targets, ok := a[id]
	if !ok {
		targets = make(NodeSet)
		a[id] = targets
	}
	return targets
}

// AddEdge inserts from -> to and reports whether the edge is new.
func (a Adjacency) AddEdge(from, to NodeID) bool {
	targets := a.ensure(from)
	a.ensure(to)
	if targets.Has(to) {
		return false
	}
	targets.Add(to)
	return true
}

func (a Adjacency) HasEdge(from, to NodeID) bool {
	targets, ok := a[from]
	return ok && targets.Has(to)
}

// RemoveEdge deletes from -> to. Both endpoints stay as keys; use Prune to drop
// nodes left without edges.
func (a Adjacency) RemoveEdge(from, to NodeID) bool {
	targets, ok := a[from]
	if !ok || !targets.Has(to) {
		return false
	}
	delete(targets, to)
	return true
}

func (a Adjacency) HasNode(id NodeID) bool {
	_, ok := a[id]
	return ok
}

func (a Adjacency) Nodes() []NodeID {
	out := make([]NodeID, 0, len(a))
	for id := range a {
		out = append(out, id)
	}
	sortNodes(out)
	return out
}

func (a Adjacency) EdgeCount() int {
	n := 0
	for _, targets := range a {
		n += len(targets)
	}
	return n
}

// Edges returns every edge ordered by (From, To).
func (a Adjacency) Edges() []Edge {
	out := make([]Edge, 0, a.EdgeCount())
	for _, from := range a.Nodes() {
		for _, to := range a[from].Sorted() {
			out = append(out, Edge{From: from, To: to})
		}
	}
	return out
}

func (a Adjacency) Clone() Adjacency {
	out := make(Adjacency, len(a))
	for id, targets := range a {
		out[id] = targets.Clone()
	}
	return out
}

// Merge folds every node and edge of other into a.
func (a Adjacency) Merge(other Adjacency) {
	for from, targets := range other {
		dst := a.ensure(from)
		for to := range targets {
			dst.Add(to)
			a.ensure(to)
		}
	}
}

// Subgraph returns the nodes of keep and the edges whose endpoints both lie in keep.
func (a Adjacency) Subgraph(keep NodeSet) Adjacency {
	out := make(Adjacency, len(keep))
	for id := range keep {
		if _, ok := a[id]; !ok {
			continue
		}
		dst := out.ensure(id)
		for to := range a[id] {
			if keep.Has(to) {
				dst.Add(to)
			}
		}
	}
	return out
}

// Prune removes nodes that have neither outgoing nor incoming edges.
func (a Adjacency) Prune() {
	incoming := make(NodeSet)
	for _, targets := range a {
		for to := range targets {
			incoming.Add(to)
		}
	}
	for id, targets := range a {
		if len(targets) == 0 && !incoming.Has(id) {
			delete(a, id)
		}
	}
}

// Component is one persisted weakly-connected piece of a team's dependency forest.
type Component struct {
	ID        ComponentID
	TeamID    TeamID
	Adjacency Adjacency
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c Component) Contains(id NodeID) bool {
	return c.Adjacency.HasNode(id)
}

func (c Component) Clone() Component {
	c.Adjacency = c.Adjacency.Clone()
	return c
}

func sortNodes(ids []NodeID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
}
