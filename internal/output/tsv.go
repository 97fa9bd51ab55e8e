package output

import (
	"fmt"
	"strings"

	"dagger/internal/engine/graph"
)

type TSVGenerator struct {
	component graph.Component
	labels    map[graph.NodeID]string
}

func NewTSVGenerator(c graph.Component, labels map[graph.NodeID]string) *TSVGenerator {
	return &TSVGenerator{component: c, labels: labels}
}

func (t *TSVGenerator) Generate() (string, error) {
	var buf strings.Builder

	buf.WriteString("Component\tFrom\tTo\tFromTitle\tToTitle\n")
	for _, e := range t.component.Adjacency.Edges() {
		buf.WriteString(fmt.Sprintf("%s\t%s\t%s\t%s\t%s\n",
			t.component.ID, e.From, e.To, tsvField(t.labels[e.From]), tsvField(t.labels[e.To])))
	}
	return buf.String(), nil
}

func tsvField(s string) string {
	return strings.NewReplacer("\t", " ", "\n", " ").Replace(s)
}
