package dag

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
)

// ToDOT converts a pipeline to Graphviz DOT format. Declared nodes are
// drawn as rounded boxes; edge targets that were never declared are drawn
// dashed so dangling references stand out. Parallel edges are emitted once
// per occurrence.
func ToDOT(p Pipeline) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14];\n")
	buf.WriteString("\n")

	declared := make(map[string]bool, len(p.Nodes))
	for _, n := range p.Nodes {
		if declared[n.ID] {
			continue
		}
		declared[n.ID] = true
		fmt.Fprintf(&buf, "  %q;\n", n.ID)
	}

	dangling := make(map[string]bool)
	for _, e := range p.Edges {
		if declared[e.Target] || dangling[e.Target] {
			continue
		}
		dangling[e.Target] = true
		fmt.Fprintf(&buf, "  %q [style=\"rounded,dashed\", fontcolor=grey40];\n", e.Target)
	}

	buf.WriteString("\n")
	for _, e := range p.Edges {
		fmt.Fprintf(&buf, "  %q -> %q;\n", e.Source, e.Target)
	}

	buf.WriteString("}\n")
	return buf.String()
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
