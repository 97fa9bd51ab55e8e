package output

import (
	"fmt"
	"strings"

	"dagger/internal/engine/graph"
)

type MermaidGenerator struct {
	component graph.Component
	labels    map[graph.NodeID]string
}

func NewMermaidGenerator(c graph.Component, labels map[graph.NodeID]string) *MermaidGenerator {
	return &MermaidGenerator{component: c, labels: labels}
}

func (m *MermaidGenerator) Generate() (string, error) {
	var b strings.Builder
	b.WriteString("flowchart LR\n")

	nodes := m.component.Adjacency.Nodes()
	ids := make(map[graph.NodeID]string, len(nodes))
	for i, id := range nodes {
		ids[id] = fmt.Sprintf("t%d", i)
	}

	roots := rootSet(m.component.Adjacency)
	for _, id := range nodes {
		b.WriteString(fmt.Sprintf("  %s[\"%s\"]\n", ids[id], escapeMermaidLabel(nodeLabel(id, m.labels))))
	}
	for _, e := range m.component.Adjacency.Edges() {
		b.WriteString(fmt.Sprintf("  %s --> %s\n", ids[e.From], ids[e.To]))
	}

	if len(roots) > 0 {
		b.WriteString("  classDef root stroke-width:3px;\n")
		rootIDs := make([]string, 0, len(roots))
		for _, id := range roots.Sorted() {
			rootIDs = append(rootIDs, ids[id])
		}
		b.WriteString(fmt.Sprintf("  class %s root;\n", strings.Join(rootIDs, ",")))
	}
	return b.String(), nil
}

func escapeMermaidLabel(s string) string {
	s = strings.ReplaceAll(s, "\"", "#quot;")
	return strings.ReplaceAll(s, "\n", " ")
}
