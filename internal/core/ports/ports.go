package ports

import (
	"context"
	"time"

	"dagger/internal/engine/graph"
)

// ComponentTx is the read/write view of component records inside one
// storage transaction. Nothing written through it is visible to other readers
// until the surrounding WithinTx call commits.
type ComponentTx interface {
	// FindByNodes returns every record holding at least one of the given nodes.
	FindByNodes(ctx context.Context, nodes []graph.NodeID) ([]graph.Component, error)
	// Get returns the record, or a COMPONENT_NOT_FOUND error.
	Get(ctx context.Context, id graph.ComponentID) (graph.Component, error)
	Insert(ctx context.Context, c graph.Component) error
	Update(ctx context.Context, c graph.Component) error
	Delete(ctx context.Context, id graph.ComponentID) error
}

// ComponentRepository persists component records.
type ComponentRepository interface {
	// WithinTx runs fn in a single transaction. The transaction commits only
	// if fn returns nil and ctx is still live; otherwise it is rolled back.
	WithinTx(ctx context.Context, fn func(tx ComponentTx) error) error
	Get(ctx context.Context, id graph.ComponentID) (graph.Component, error)
	ListByTeam(ctx context.Context, team graph.TeamID) ([]graph.Component, error)
	Ping(ctx context.Context) error
	Close() error
}

// TaskSummary is the slice of task metadata attached to graph responses.
type TaskSummary struct {
	ID        graph.NodeID `json:"id"`
	TeamID    graph.TeamID `json:"team_id"`
	Title     string       `json:"title"`
	Status    string       `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}

// TaskDirectory is the task collaborator. The engine never owns task rows.
type TaskDirectory interface {
	TasksExistAndBelongToTeam(ctx context.Context, ids []graph.NodeID, team graph.TeamID) (bool, error)
	ResolveTasksByIDs(ctx context.Context, ids []graph.NodeID) ([]TaskSummary, error)
}

// AddEdgesResult reports how far an AddEdges call got. Applied edges are
// committed even when a later edge fails.
type AddEdgesResult struct {
	ComponentID graph.ComponentID
	Applied     []graph.Edge
	FailedEdge  *graph.Edge
}

// RemoveResult describes the effect of removing one edge.
type RemoveResult struct {
	ComponentID graph.ComponentID
	Survived    bool
	Created     []graph.ComponentID
}

// DeleteEdgesResult aggregates RemoveResult over several edges.
type DeleteEdgesResult struct {
	ComponentID graph.ComponentID
	Survived    bool
	Created     []graph.ComponentID
	Removed     []graph.Edge
}

// ComponentDetails is a component with the metadata of its tasks attached.
type ComponentDetails struct {
	Component      graph.Component
	Tasks          []TaskSummary
	MissingTaskIDs []graph.NodeID
}

// GraphService is the driving port consumed by the HTTP and CLI adapters.
type GraphService interface {
	CreateFromEdge(ctx context.Context, team graph.TeamID, from, to graph.NodeID) (graph.ComponentID, error)
	AddEdges(ctx context.Context, team graph.TeamID, from graph.NodeID, deps []graph.NodeID) (AddEdgesResult, error)
	DeleteEdges(ctx context.Context, id graph.ComponentID, from graph.NodeID, deps []graph.NodeID) (DeleteEdgesResult, error)
	GetComponent(ctx context.Context, id graph.ComponentID) (graph.Component, error)
	GetComponentDetails(ctx context.Context, id graph.ComponentID) (ComponentDetails, error)
	ListComponentsByTeam(ctx context.Context, team graph.TeamID) ([]graph.Component, error)
}
