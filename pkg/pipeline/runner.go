package pipeline

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/pipelinecheck/pkg/cache"
	"github.com/matzehuels/pipelinecheck/pkg/dag"
	"github.com/matzehuels/pipelinecheck/pkg/errors"
	"github.com/matzehuels/pipelinecheck/pkg/observability"
)

// keyTypeAnalysis labels cache events emitted by the runner.
const keyTypeAnalysis = "analysis"

// Runner encapsulates analysis execution with caching.
// Both CLI and API use this to avoid duplicating caching logic.
//
// The Runner holds no per-request state, so multiple goroutines can share
// one Runner.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
	Limits Limits
	TTL    time.Duration
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
// Limits default to [DefaultLimits] and TTL to [cache.TTLAnalysis].
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
		Limits: DefaultLimits(),
		TTL:    cache.TTLAnalysis,
	}
}

// Analyze validates p, then returns its counts and DAG verdict, from the
// cache when possible.
//
// Errors are *errors.Error values:
//   - PIPELINE_TOO_LARGE or INVALID_PIPELINE when validation fails
//   - UNKNOWN_NODE when an edge's source is not a declared node
//
// Cache failures are logged and treated as misses; they never fail the
// analysis.
func (r *Runner) Analyze(ctx context.Context, p dag.Pipeline) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := Validate(p, r.Limits); err != nil {
		return nil, err
	}

	start := time.Now()
	hooks := observability.Analysis()
	hooks.OnAnalyzeStart(ctx, len(p.Nodes), len(p.Edges))

	hash, err := cache.HashJSON(canonical(p))
	if err != nil {
		err = errors.Wrap(errors.ErrCodeInternal, err, "hash pipeline")
		hooks.OnAnalyzeComplete(ctx, false, time.Since(start), err)
		return nil, err
	}
	key := r.Keyer.AnalysisKey(hash)

	if res, ok := r.lookup(ctx, key); ok {
		out := &Result{Analysis: res, Hash: hash, CacheHit: true, Duration: time.Since(start)}
		hooks.OnAnalyzeComplete(ctx, res.IsDAG, out.Duration, nil)
		r.Logger.Debug("analysis cache hit", "hash", hash[:12], "is_dag", res.IsDAG)
		return out, nil
	}

	res, err := dag.Analyze(p)
	if err != nil {
		if stderrors.Is(err, dag.ErrUnknownSourceNode) {
			err = errors.Wrap(errors.ErrCodeUnknownNode, err, "unknown node referenced by edge")
		} else {
			err = errors.Wrap(errors.ErrCodeInternal, err, "analyze pipeline")
		}
		hooks.OnAnalyzeComplete(ctx, false, time.Since(start), err)
		r.Logger.Debug("analysis failed", "nodes", len(p.Nodes), "edges", len(p.Edges), "err", err)
		return nil, err
	}

	r.store(ctx, key, res)

	out := &Result{Analysis: res, Hash: hash, Duration: time.Since(start)}
	hooks.OnAnalyzeComplete(ctx, res.IsDAG, out.Duration, nil)
	r.Logger.Debug("analyzed pipeline",
		"nodes", res.NumNodes,
		"edges", res.NumEdges,
		"is_dag", res.IsDAG,
		"duration", out.Duration)
	return out, nil
}

// lookup reads a cached result. Backend errors and undecodable entries
// count as misses.
func (r *Runner) lookup(ctx context.Context, key string) (dag.Result, bool) {
	data, hit, err := r.Cache.Get(ctx, key)
	if err != nil {
		r.Logger.Warn("cache read failed", "err", err)
	}
	if err != nil || !hit {
		observability.Cache().OnCacheMiss(ctx, keyTypeAnalysis)
		return dag.Result{}, false
	}
	var res dag.Result
	if err := json.Unmarshal(data, &res); err != nil {
		r.Logger.Warn("discarding undecodable cache entry", "err", err)
		_ = r.Cache.Delete(ctx, key)
		observability.Cache().OnCacheMiss(ctx, keyTypeAnalysis)
		return dag.Result{}, false
	}
	observability.Cache().OnCacheHit(ctx, keyTypeAnalysis)
	return res, true
}

func (r *Runner) store(ctx context.Context, key string, res dag.Result) {
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := r.Cache.Set(ctx, key, data, r.TTL); err != nil {
		r.Logger.Warn("cache write failed", "err", err)
		return
	}
	observability.Cache().OnCacheSet(ctx, keyTypeAnalysis, len(data))
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}
