package output

import (
	"time"

	"dagger/internal/core/ports"
	"dagger/internal/engine/graph"

	"github.com/goccy/go-json"
)

// ComponentJSON is the wire shape of a component record. Adjacency uses the
// stored encoding.
type ComponentJSON struct {
	ComponentID graph.ComponentID `json:"component_id"`
	TeamID      graph.TeamID      `json:"team_id"`
	Adjacency   json.RawMessage   `json:"adjacency"`
	Edges       []graph.Edge      `json:"edges"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

type DetailsJSON struct {
	ComponentJSON
	Tasks          []ports.TaskSummary `json:"tasks"`
	MissingTaskIDs []graph.NodeID      `json:"missing_task_ids"`
}

func NewComponentJSON(c graph.Component) (ComponentJSON, error) {
	adj, err := graph.EncodeAdjacency(c.Adjacency)
	if err != nil {
		return ComponentJSON{}, err
	}
	return ComponentJSON{
		ComponentID: c.ID,
		TeamID:      c.TeamID,
		Adjacency:   adj,
		Edges:       c.Adjacency.Edges(),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}, nil
}

func NewDetailsJSON(details ports.ComponentDetails) (DetailsJSON, error) {
	c, err := NewComponentJSON(details.Component)
	if err != nil {
		return DetailsJSON{}, err
	}
	return DetailsJSON{
		ComponentJSON:  c,
		Tasks:          details.Tasks,
		MissingTaskIDs: details.MissingTaskIDs,
	}, nil
}

type JSONGenerator struct {
	details ports.ComponentDetails
}

func NewJSONGenerator(details ports.ComponentDetails) *JSONGenerator {
	return &JSONGenerator{details: details}
}

func (j *JSONGenerator) Generate() (string, error) {
	doc, err := NewDetailsJSON(j.details)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}
