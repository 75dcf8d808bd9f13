// Package io reads pipeline descriptions from JSON files and writes
// analysis output.
//
// # JSON Format
//
// A pipeline has two top-level arrays, the same shape the HTTP API accepts:
//
//	{
//	  "nodes": [
//	    {"id": "extract"},
//	    {"id": "transform"},
//	    {"id": "load"}
//	  ],
//	  "edges": [
//	    {"source": "extract", "target": "transform"},
//	    {"source": "transform", "target": "load"}
//	  ]
//	}
//
// Edges may also be written with "from" and "to" keys. Other fields on
// nodes, edges and the top-level object are ignored, so exports from
// pipeline editors that carry positions or labels can be read directly.
//
// Unlike the graph builder in package dag, reading does not check that
// edges reference declared nodes; that is part of the analysis.
//
// # Import
//
// Use [ImportJSON] to read a file, or [ReadJSON] for any io.Reader:
//
//	p, err := io.ImportJSON("pipeline.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := dag.Analyze(p)
//
// # Export
//
// [WriteJSON] writes any value as indented JSON; [WriteFile] writes
// rendered output such as SVG atomically.
package io
