package output

import (
	"fmt"
	"strings"

	"dagger/internal/engine/graph"
)

type DOTGenerator struct {
	component graph.Component
	labels    map[graph.NodeID]string
}

func NewDOTGenerator(c graph.Component, labels map[graph.NodeID]string) *DOTGenerator {
	return &DOTGenerator{component: c, labels: labels}
}

// Generate renders the component as a left-to-right digraph. Root tasks
// (nothing points at them) are drawn bold.
func (d *DOTGenerator) Generate() (string, error) {
	var buf strings.Builder

	buf.WriteString(fmt.Sprintf("digraph %q {\n", "component_"+d.component.ID.String()))
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  node [shape=box, style=rounded, fontname=\"Helvetica\", fontsize=10];\n")
	buf.WriteString("  edge [fontname=\"Helvetica\", fontsize=8, penwidth=1.2];\n\n")

	roots := rootSet(d.component.Adjacency)
	for _, id := range d.component.Adjacency.Nodes() {
		attrs := fmt.Sprintf("label=%q", nodeLabel(id, d.labels))
		if roots.Has(id) {
			attrs += ", penwidth=2"
		}
		buf.WriteString(fmt.Sprintf("  %q [%s];\n", id.String(), attrs))
	}
	buf.WriteString("\n")
	for _, e := range d.component.Adjacency.Edges() {
		buf.WriteString(fmt.Sprintf("  %q -> %q;\n", e.From.String(), e.To.String()))
	}
	buf.WriteString("}\n")
	return buf.String(), nil
}
