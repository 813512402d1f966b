package singleton

import (
	"fmt"
	"strings"
)

// NodeKind distinguishes instances from the dependencies they declare.
type NodeKind string

const (
	NodeInstance   NodeKind = "instance"
	NodeStylesheet NodeKind = "stylesheet"
	NodeScript     NodeKind = "script"
)

type GraphNode struct {
	ID     string   `json:"id"`
	Kind   NodeKind `json:"kind"`
	Label  string   `json:"label"`
	Status string   `json:"status,omitempty"`
}

// GraphEdge means "From owns or depends on To".
type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// Graph returns the namespace tree with declared dependencies as a snapshot.
// Instances come first in creation order, dependencies follow in first-seen order.
func (r *Runtime) Graph() Graph {
	instances := r.Instances()

	var g Graph
	deps := make(map[string]bool)
	var depNodes []GraphNode
	for _, inst := range instances {
		id := inst.id.String()
		g.Nodes = append(g.Nodes, GraphNode{
			ID:     id,
			Kind:   NodeInstance,
			Label:  inst.label(),
			Status: inst.Status().String(),
		})
		if inst.parent != nil {
			g.Edges = append(g.Edges, GraphEdge{From: inst.parent.id.String(), To: id})
		}

		d := inst.descriptor()
		for _, name := range sortedKeys(d.Stylesheets) {
			depID := string(NodeStylesheet) + ":" + name
			if !deps[depID] {
				deps[depID] = true
				depNodes = append(depNodes, GraphNode{ID: depID, Kind: NodeStylesheet, Label: name})
			}
			g.Edges = append(g.Edges, GraphEdge{From: id, To: depID})
		}
		for _, name := range sortedKeys(d.Javascripts) {
			depID := string(NodeScript) + ":" + name
			if !deps[depID] {
				deps[depID] = true
				depNodes = append(depNodes, GraphNode{ID: depID, Kind: NodeScript, Label: name})
			}
			g.Edges = append(g.Edges, GraphEdge{From: id, To: depID})
		}
	}
	g.Nodes = append(g.Nodes, depNodes...)
	return g
}

// DOT exports Graphviz DOT text.
func (g Graph) DOT() string {
	var b strings.Builder
	b.WriteString("digraph singleton {\n")
	b.WriteString("  rankdir=LR;\n")

	aliases := make(map[string]string, len(g.Nodes))
	for i, n := range g.Nodes {
		alias := fmt.Sprintf("n%d", i)
		aliases[n.ID] = alias
		label := escapeDOT(n.Label)
		if n.Kind != NodeInstance {
			label = label + "\\n(" + string(n.Kind) + ")"
		}
		shape := "box"
		if n.Kind != NodeInstance {
			shape = "ellipse"
		}
		b.WriteString(fmt.Sprintf("  %s [label=\"%s\", shape=%s];\n", alias, label, shape))
	}
	for _, e := range g.Edges {
		from, okFrom := aliases[e.From]
		to, okTo := aliases[e.To]
		if !okFrom || !okTo {
			continue
		}
		b.WriteString(fmt.Sprintf("  %s -> %s;\n", from, to))
	}
	b.WriteString("}\n")
	return b.String()
}

// Mermaid exports Mermaid graph text.
func (g Graph) Mermaid() string {
	var b strings.Builder
	b.WriteString("graph TD\n")

	aliases := make(map[string]string, len(g.Nodes))
	for i, n := range g.Nodes {
		alias := fmt.Sprintf("n%d", i)
		aliases[n.ID] = alias
		label := escapeMermaid(n.Label)
		if n.Kind != NodeInstance {
			label = label + "<br/>(" + string(n.Kind) + ")"
			b.WriteString(fmt.Sprintf("    %s([\"%s\"])\n", alias, label))
			continue
		}
		b.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", alias, label))
	}
	for _, e := range g.Edges {
		from, okFrom := aliases[e.From]
		to, okTo := aliases[e.To]
		if !okFrom || !okTo {
			continue
		}
		b.WriteString(fmt.Sprintf("    %s --> %s\n", from, to))
	}
	return b.String()
}

func escapeDOT(s string) string {
	return strings.ReplaceAll(s, "\"", "\\\"")
}

func escapeMermaid(s string) string {
	return strings.ReplaceAll(s, "\"", "#quot;")
}
