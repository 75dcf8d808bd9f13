// Package cache stores computed analysis results keyed by a hash of the
// submitted pipeline.
//
// Three backends are provided:
//   - [NullCache]: never stores anything (the default)
//   - [FileCache]: one JSON file per entry, used by the CLI
//   - [RedisCache]: shared cache for servers running several replicas
//
// Only results are cached. The pipeline itself is reduced to a SHA-256
// digest by [Hash] before it reaches a key, so no submitted graph is ever
// written to a backend.
package cache

import (
	"context"
	"time"
)

// TTLAnalysis is the default lifetime of a cached analysis result.
const TTLAnalysis = 24 * time.Hour

// Cache is a byte-oriented key/value store with per-entry expiration.
//
// Get returns (data, true, nil) on a hit and (nil, false, nil) on a miss.
// An error means the backend could not be queried; callers treat it as a
// miss. Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Keyer builds cache keys. Keys embed a version segment so a change to the
// result encoding invalidates old entries.
type Keyer interface {
	AnalysisKey(pipelineHash string) string
}

// keyVersion is bumped whenever the cached result encoding changes.
const keyVersion = "v1"

// DefaultKeyer produces keys of the form "analysis:v1:<hash>".
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default key scheme.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// AnalysisKey returns the key for the result of a pipeline with the given hash.
func (DefaultKeyer) AnalysisKey(pipelineHash string) string {
	return hashKey("analysis:"+keyVersion, pipelineHash)
}
