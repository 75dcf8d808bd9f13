// Package pipeline runs pipeline analyses for the CLI and the HTTP API.
//
// The analysis itself lives in [dag.Analyze]. This package adds what both
// entry points share around it: input limits and validation, result
// caching, observability hooks and logging. By centralizing this logic the
// CLI `check` command and the `/pipelines/parse` endpoint report identical
// results and errors.
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	res, err := runner.Analyze(ctx, p)
//	if errors.Is(err, errors.ErrCodeUnknownNode) {
//	    // an edge names a source that is not a node
//	}
//	fmt.Println(res.Analysis.IsDAG, res.CacheHit)
package pipeline

import (
	"fmt"
	"time"

	"github.com/matzehuels/pipelinecheck/pkg/dag"
	"github.com/matzehuels/pipelinecheck/pkg/errors"
)

// =============================================================================
// Default Values
// =============================================================================

const (
	// DefaultMaxNodes is the default cap on submitted nodes.
	DefaultMaxNodes = 100_000

	// DefaultMaxEdges is the default cap on submitted edges.
	DefaultMaxEdges = 500_000
)

// Limits bounds the size of pipelines accepted for analysis. A zero field
// disables that check.
type Limits struct {
	MaxNodes int
	MaxEdges int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{MaxNodes: DefaultMaxNodes, MaxEdges: DefaultMaxEdges}
}

// Result is the outcome of [Runner.Analyze].
type Result struct {
	Analysis dag.Result    // Counts and DAG verdict
	Hash     string        // SHA-256 of the canonical pipeline encoding
	CacheHit bool          // Analysis was served from the cache
	Duration time.Duration // Wall time spent in Analyze
}

// Validate checks p against limits and rejects empty node ids. Limits are
// checked first so oversized inputs are refused without walking them.
//
// Edge endpoints are not checked here. Any string, including "", is a
// valid reference; whether it names a node is a property of the graph
// reported by [dag.Analyze].
func Validate(p dag.Pipeline, limits Limits) error {
	if err := errors.ValidateCount("nodes", len(p.Nodes), limits.MaxNodes); err != nil {
		return err
	}
	if err := errors.ValidateCount("edges", len(p.Edges), limits.MaxEdges); err != nil {
		return err
	}
	for i, n := range p.Nodes {
		if err := errors.ValidateNodeID(fmt.Sprintf("nodes[%d].id", i), n.ID); err != nil {
			return err
		}
	}
	return nil
}

// canonical returns p with nil slices replaced by empty ones so that a
// missing list and an empty list hash to the same key.
func canonical(p dag.Pipeline) dag.Pipeline {
	if p.Nodes == nil {
		p.Nodes = []dag.Node{}
	}
	if p.Edges == nil {
		p.Edges = []dag.Edge{}
	}
	return p
}
