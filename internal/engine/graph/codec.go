package graph

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// EncodeAdjacency serializes adj as {"<node>": ["<target>", ...]}. Keys and
// target lists are sorted, so equal graphs encode to equal bytes.
func EncodeAdjacency(adj Adjacency) ([]byte, error) {
	wire := make(map[string][]string, len(adj))
	for id, targets := range adj {
		list := make([]string, 0, len(targets))
		for _, to := range targets.Sorted() {
			list = append(list, to.String())
		}
		wire[id.String()] = list
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encode adjacency: %w", err)
	}
	return data, nil
}

// DecodeAdjacency parses the stored form. Targets missing as keys are added
// with an empty set; duplicate targets collapse.
func DecodeAdjacency(data []byte) (Adjacency, error) {
	adj := NewAdjacency()
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return adj, nil
	}

	var wire map[string][]string
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return nil, fmt.Errorf("decode adjacency: %w", err)
	}
	for rawFrom, rawTargets := range wire {
		from, err := ParseNodeID(rawFrom)
		if err != nil {
			return nil, fmt.Errorf("decode adjacency: %w", err)
		}
		adj.ensure(from)
		for _, rawTo := range rawTargets {
			to, err := ParseNodeID(rawTo)
			if err != nil {
				return nil, fmt.Errorf("decode adjacency: %w", err)
			}
			adj.AddEdge(from, to)
		}
	}
	return adj, nil
}
