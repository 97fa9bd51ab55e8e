package output

import (
	"fmt"
	"strings"

	"dagger/internal/core/ports"
	"dagger/internal/engine/graph"
)

type Format string

const (
	FormatJSON    Format = "json"
	FormatDOT     Format = "dot"
	FormatMermaid Format = "mermaid"
	FormatTSV     Format = "tsv"
)

func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatDOT, FormatMermaid, FormatTSV:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format %q (want json, dot, mermaid or tsv)", raw)
	}
}

// ContentType is the HTTP content type of a rendered format.
func (f Format) ContentType() string {
	switch f {
	case FormatDOT:
		return "text/vnd.graphviz; charset=utf-8"
	case FormatTSV:
		return "text/tab-separated-values; charset=utf-8"
	case FormatMermaid:
		return "text/plain; charset=utf-8"
	default:
		return "application/json; charset=utf-8"
	}
}

// Render draws one component in the given format.
func Render(format Format, details ports.ComponentDetails) (string, error) {
	labels := Labels(details.Tasks)
	switch format {
	case FormatJSON:
		return NewJSONGenerator(details).Generate()
	case FormatDOT:
		return NewDOTGenerator(details.Component, labels).Generate()
	case FormatMermaid:
		return NewMermaidGenerator(details.Component, labels).Generate()
	case FormatTSV:
		return NewTSVGenerator(details.Component, labels).Generate()
	default:
		return "", fmt.Errorf("unsupported format %q", format)
	}
}

// Labels maps task ids to their titles.
func Labels(tasks []ports.TaskSummary) map[graph.NodeID]string {
	labels := make(map[graph.NodeID]string, len(tasks))
	for _, task := range tasks {
		if task.Title != "" {
			labels[task.ID] = task.Title
		}
	}
	return labels
}

func nodeLabel(id graph.NodeID, labels map[graph.NodeID]string) string {
	if title, ok := labels[id]; ok {
		return title
	}
	s := id.String()
	return s[:8]
}

// rootSet returns the nodes with no incoming edge.
func rootSet(adj graph.Adjacency) graph.NodeSet {
	incoming := make(graph.NodeSet)
	for _, targets := range adj {
		for to := range targets {
			incoming.Add(to)
		}
	}
	roots := make(graph.NodeSet)
	for id := range adj {
		if !incoming.Has(id) {
			roots.Add(id)
		}
	}
	return roots
}
