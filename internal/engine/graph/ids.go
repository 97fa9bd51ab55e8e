package graph

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
)

// NodeID identifies a task referenced by the graph. Tasks themselves are owned
// by the task store; the graph only keeps references.
type NodeID uuid.UUID

// TeamID identifies the team owning a component.
type TeamID uuid.UUID

// ComponentID identifies one persisted component record.
type ComponentID uuid.UUID

func NewComponentID() ComponentID { return ComponentID(uuid.New()) }

func ParseNodeID(s string) (NodeID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NodeID{}, fmt.Errorf("parse node id %q: %w", s, err)
	}
	return NodeID(u), nil
}

func ParseTeamID(s string) (TeamID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return TeamID{}, fmt.Errorf("parse team id %q: %w", s, err)
	}
	return TeamID(u), nil
}

func ParseComponentID(s string) (ComponentID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ComponentID{}, fmt.Errorf("parse component id %q: %w", s, err)
	}
	return ComponentID(u), nil
}

func (id NodeID) String() string      { return uuid.UUID(id).String() }
func (id TeamID) String() string      { return uuid.UUID(id).String() }
func (id ComponentID) String() string { return uuid.UUID(id).String() }

func (id NodeID) IsZero() bool      { return uuid.UUID(id) == uuid.Nil }
func (id TeamID) IsZero() bool      { return uuid.UUID(id) == uuid.Nil }
func (id ComponentID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }

// Less orders node ids by their raw bytes, which matches the order of their
// canonical string form.
func (id NodeID) Less(other NodeID) bool {
	return bytes.Compare(id[:], other[:]) < 0
}

func (id ComponentID) Less(other ComponentID) bool {
	return bytes.Compare(id[:], other[:]) < 0
}

func (id NodeID) MarshalText() ([]byte, error)      { return []byte(id.String()), nil }
func (id TeamID) MarshalText() ([]byte, error)      { return []byte(id.String()), nil }
func (id ComponentID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *NodeID) UnmarshalText(b []byte) error {
	parsed, err := ParseNodeID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *TeamID) UnmarshalText(b []byte) error {
	parsed, err := ParseTeamID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ComponentID) UnmarshalText(b []byte) error {
	parsed, err := ParseComponentID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
