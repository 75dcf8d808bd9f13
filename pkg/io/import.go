package io

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/matzehuels/pipelinecheck/pkg/dag"
)

type document struct {
	Nodes *[]node `json:"nodes"`
	Edges *[]edge `json:"edges"`
}

type node struct {
	ID string `json:"id"`
}

type edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// ReadJSON decodes a pipeline from r.
//
// ReadJSON returns an error if the JSON is malformed, if either top-level
// array is missing, or if an edge sets both "source" and "from" (or both
// "target" and "to") to different values. ReadJSON does not close r.
func ReadJSON(r io.Reader) (dag.Pipeline, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return dag.Pipeline{}, fmt.Errorf("decode: %w", err)
	}
	if doc.Nodes == nil {
		return dag.Pipeline{}, fmt.Errorf("missing \"nodes\" array")
	}
	if doc.Edges == nil {
		return dag.Pipeline{}, fmt.Errorf("missing \"edges\" array")
	}

	p := dag.Pipeline{
		Nodes: make([]dag.Node, len(*doc.Nodes)),
		Edges: make([]dag.Edge, len(*doc.Edges)),
	}
	for i, n := range *doc.Nodes {
		p.Nodes[i] = dag.Node{ID: n.ID}
	}
	for i, e := range *doc.Edges {
		src, err := pick(e.Source, e.From)
		if err != nil {
			return dag.Pipeline{}, fmt.Errorf("edge %d source: %w", i, err)
		}
		tgt, err := pick(e.Target, e.To)
		if err != nil {
			return dag.Pipeline{}, fmt.Errorf("edge %d target: %w", i, err)
		}
		p.Edges[i] = dag.Edge{Source: src, Target: tgt}
	}
	return p, nil
}

// pick returns whichever of the two spellings is set.
func pick(primary, alias string) (string, error) {
	if primary != "" && alias != "" && primary != alias {
		return "", fmt.Errorf("conflicting values %q and %q", primary, alias)
	}
	if primary != "" {
		return primary, nil
	}
	return alias, nil
}

// ImportJSON reads the pipeline file at path. The path "-" reads standard
// input.
func ImportJSON(path string) (dag.Pipeline, error) {
	if path == "-" {
		p, err := ReadJSON(os.Stdin)
		if err != nil {
			return dag.Pipeline{}, fmt.Errorf("stdin: %w", err)
		}
		return p, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return dag.Pipeline{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	p, err := ReadJSON(f)
	if err != nil {
		return dag.Pipeline{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}
