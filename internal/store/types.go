// Package store provides the ANN vector index and its on-disk format:
// an HNSW graph binary plus a gob metadata sidecar, persisted as an
// atomic pair.
package store

import (
	"context"
	"fmt"
	"time"
)

// MetaSchemaVersion is the on-disk metadata schema version.
const MetaSchemaVersion = 1

// Capacity policy.
const (
	// MinMaxElements is the floor for index capacity.
	MinMaxElements = 100_000

	// CapacityGrowthFactor sizes capacity relative to the live vector count.
	CapacityGrowthFactor = 1.5

	// ResizeThreshold is the utilization ratio at which the index wants
	// a resize before further writes.
	ResizeThreshold = 0.8
)

// IndexPoint is one vector with its identity and display payload.
// Payload carries whatever the UI needs to render a hit (file path,
// line range, language) without loading the chunk body.
type IndexPoint struct {
	ID      string
	Vector  []float32
	Payload map[string]string
}

// SearchResult is a single ANN search hit.
type SearchResult struct {
	ID       string            // Chunk ID
	Distance float32           // Lower is more similar
	Score    float32           // Normalized similarity (higher is better)
	Payload  map[string]string // Payload stored with the vector
}

// Metadata is the persisted state of the index sidecar. VectorCount
// and MaxElements drive the capacity policy; GraphFile names the
// generation binary the sidecar commits to.
type Metadata struct {
	SchemaVersion  int
	VectorDim      int
	MaxElements    int
	VectorCount    int
	DistanceMetric string // "cos", "l2", "dot"
	LastRebuild    time.Time
	Generation     uint64
	GraphFile      string
}

// StoreConfig configures an HNSWStore.
type StoreConfig struct {
	// Path is the base path for persistence; the graph binary and the
	// ".meta" sidecar derive their names from it.
	Path string

	// Dim is the vector dimension. Zero means "take it from the
	// sidecar on open".
	Dim int

	// Metric is the distance metric: "cos", "l2", "dot" (default "cos").
	Metric string

	// M is HNSW max connections per layer (default 16).
	M int

	// EfSearch is HNSW query-time search width (default 20).
	EfSearch int
}

// DefaultStoreConfig returns sensible defaults for the given dimension.
func DefaultStoreConfig(dimensions int) StoreConfig {
	return StoreConfig{
		Dim:      dimensions,
		Metric:   "cos",
		M:        16,
		EfSearch: 20,
	}
}

// VectorIndex is the contract the indexing pipeline builds against.
type VectorIndex interface {
	// BuildIndex bulk-builds a fresh index sized to the input and
	// persists it as an atomic pair.
	BuildIndex(ctx context.Context, ids []string, vectors [][]float32) error

	// OpenForIncrementalUpdate loads a persisted pair for further
	// writes, self-healing a stale capacity on the way in.
	OpenForIncrementalUpdate(ctx context.Context, path string) error

	// AddOrUpdateVector inserts a vector or overwrites the vector at
	// the id's existing label. Returns the label.
	AddOrUpdateVector(id string, vector []float32, payload map[string]string) (uint64, error)

	// SaveIncrementalUpdate persists the current state as one
	// logically atomic unit.
	SaveIncrementalUpdate() error

	// Rollback discards all in-memory mutations since the last
	// successful save or build.
	Rollback() error

	// ShouldResize reports whether utilization crossed the resize
	// threshold.
	ShouldResize() bool

	// Resize recomputes capacity from the live count.
	Resize() error

	// Search finds the k nearest neighbors to the query vector.
	Search(ctx context.Context, query []float32, k int) ([]*SearchResult, error)

	// Contains checks if an id exists.
	Contains(id string) bool

	// Count returns the number of live vectors.
	Count() int

	// Metadata returns a copy of the current index metadata.
	Metadata() Metadata

	// Close releases resources.
	Close() error
}

// ErrDimensionMismatch indicates a vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (run 'cidx index --reindex')", e.Expected, e.Got)
}

// ErrCapacityExceeded indicates an insert would overflow MaxElements.
// Callers are expected to resize before writing.
type ErrCapacityExceeded struct {
	Count int
	Max   int
}

func (e ErrCapacityExceeded) Error() string {
	return fmt.Sprintf("index capacity exceeded: %d vectors at max %d (resize required)", e.Count, e.Max)
}
