package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// storeState tracks the index lifecycle. Writes are only legal once
// the store is built or loaded; a closed store rejects everything.
type storeState int

const (
	stateUninitialized storeState = iota
	stateBuilt
	stateLoaded
	stateSaved
	stateClosed
)

// HNSWStore implements VectorIndex over the coder/hnsw pure Go graph.
// String ids map to uint64 graph labels; labels are never recycled, so
// a label identifies the same logical chunk for the life of the index.
type HNSWStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config StoreConfig

	meta      Metadata
	idToLabel map[string]uint64
	labelToID map[uint64]string
	nextLabel uint64
	payloads  map[string]map[string]string

	basePath string
	state    storeState
}

// persistedState is the gob sidecar payload. The sidecar commits the
// graph binary it names: replacing the sidecar is the atomic point of
// every save.
type persistedState struct {
	Meta      Metadata
	IDToLabel map[string]uint64
	NextLabel uint64
	Payloads  map[string]map[string]string
}

// NewHNSWStore creates an unopened store. Call BuildIndex for a fresh
// index or OpenForIncrementalUpdate to load a persisted one.
func NewHNSWStore(cfg StoreConfig) (*HNSWStore, error) {
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	switch cfg.Metric {
	case "cos", "l2", "dot":
	default:
		return nil, fmt.Errorf("unsupported distance metric %q", cfg.Metric)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	s := &HNSWStore{
		config:    cfg,
		idToLabel: make(map[string]uint64),
		labelToID: make(map[uint64]string),
		payloads:  make(map[string]map[string]string),
		basePath:  cfg.Path,
		meta: Metadata{
			SchemaVersion:  MetaSchemaVersion,
			VectorDim:      cfg.Dim,
			DistanceMetric: cfg.Metric,
		},
	}
	s.graph = s.newGraph()

	return s, nil
}

// newGraph builds an empty graph configured for the store's metric.
func (s *HNSWStore) newGraph() *hnsw.Graph[uint64] {
	graph := hnsw.NewGraph[uint64]()

	switch s.meta.DistanceMetric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	case "dot":
		graph.Distance = dotProductDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}

	graph.M = s.config.M
	graph.EfSearch = s.config.EfSearch
	graph.Ml = 0.25

	return graph
}

// CalculateDynamicMaxElements returns the capacity for a given vector
// count: half again the count, floored at MinMaxElements.
func CalculateDynamicMaxElements(n int) int {
	scaled := int(math.Ceil(float64(n) * CapacityGrowthFactor))
	if scaled < MinMaxElements {
		return MinMaxElements
	}
	return scaled
}

// BuildIndex bulk-builds a fresh index from ids and vectors, sizes
// capacity to the input, and persists the result as an atomic pair.
// Only legal on an uninitialized store.
func (s *HNSWStore) BuildIndex(ctx context.Context, ids []string, vectors [][]float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed {
		return fmt.Errorf("store is closed")
	}
	if s.state != stateUninitialized {
		return fmt.Errorf("store is already initialized")
	}
	if s.basePath == "" {
		return fmt.Errorf("store path not configured")
	}

	// Adopt the dimension from the input when the config left it open.
	if s.meta.VectorDim == 0 {
		if len(vectors) == 0 {
			return fmt.Errorf("vector dimension not configured")
		}
		s.meta.VectorDim = len(vectors[0])
		s.config.Dim = s.meta.VectorDim
	}

	s.meta.MaxElements = CalculateDynamicMaxElements(len(vectors))
	s.meta.LastRebuild = time.Now()

	for i, id := range ids {
		if _, err := s.insertLocked(id, vectors[i], nil); err != nil {
			return fmt.Errorf("build index: %w", err)
		}
	}

	if err := s.persistLocked(); err != nil {
		return fmt.Errorf("persist built index: %w", err)
	}
	s.state = stateBuilt

	slog.Info("vector index built",
		"vectors", len(s.idToLabel),
		"dimensions", s.meta.VectorDim,
		"max_elements", s.meta.MaxElements,
		"metric", s.meta.DistanceMetric)

	return nil
}

// OpenForIncrementalUpdate loads a persisted pair for further writes.
// A persisted capacity smaller than the live count is recomputed on
// the way in and logged; it is recovery, not an error.
func (s *HNSWStore) OpenForIncrementalUpdate(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed {
		return fmt.Errorf("store is closed")
	}
	if s.state != stateUninitialized {
		return fmt.Errorf("store is already initialized")
	}

	s.basePath = path
	if err := s.loadLocked(); err != nil {
		return err
	}
	s.state = stateLoaded

	// A crash between a binary write and its sidecar commit can leave
	// an uncommitted generation behind; clear it now.
	s.sweepGenerations(filepath.Join(filepath.Dir(s.basePath), s.meta.GraphFile))

	return nil
}

// loadLocked reads the sidecar and the graph binary it names, then
// applies the capacity self-heal.
func (s *HNSWStore) loadLocked() error {
	metaPath := s.basePath + ".meta"

	file, err := os.Open(metaPath)
	if err != nil {
		return fmt.Errorf("open store metadata: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close metadata file", slog.String("error", err.Error()))
		}
	}()

	var persisted persistedState
	if err := gob.NewDecoder(file).Decode(&persisted); err != nil {
		return fmt.Errorf("decode store metadata: %w", err)
	}

	if persisted.Meta.SchemaVersion != MetaSchemaVersion {
		return fmt.Errorf("unsupported store schema version %d (want %d)",
			persisted.Meta.SchemaVersion, MetaSchemaVersion)
	}
	if s.config.Dim != 0 && s.config.Dim != persisted.Meta.VectorDim {
		return ErrDimensionMismatch{Expected: s.config.Dim, Got: persisted.Meta.VectorDim}
	}

	s.meta = persisted.Meta
	s.config.Dim = persisted.Meta.VectorDim
	s.config.Metric = persisted.Meta.DistanceMetric
	s.idToLabel = persisted.IDToLabel
	if s.idToLabel == nil {
		s.idToLabel = make(map[string]uint64)
	}
	s.nextLabel = persisted.NextLabel
	s.payloads = persisted.Payloads
	if s.payloads == nil {
		s.payloads = make(map[string]map[string]string)
	}
	s.labelToID = make(map[uint64]string, len(s.idToLabel))
	for id, label := range s.idToLabel {
		s.labelToID[label] = id
	}

	// The committed binary lives next to the sidecar.
	binPath := filepath.Join(filepath.Dir(s.basePath), s.meta.GraphFile)
	binFile, err := os.Open(binPath)
	if err != nil {
		return fmt.Errorf("open graph binary: %w", err)
	}
	defer func() {
		if err := binFile.Close(); err != nil {
			slog.Warn("failed to close graph binary", slog.String("error", err.Error()))
		}
	}()

	s.graph = s.newGraph()
	// coder/hnsw Import requires an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(binFile)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}

	s.selfHealCapacityLocked()

	return nil
}

// selfHealCapacityLocked recomputes a capacity that the live count has
// outgrown. Stale capacity is a recoverable inconsistency.
func (s *HNSWStore) selfHealCapacityLocked() {
	actual := len(s.idToLabel)

	if s.meta.VectorCount <= s.meta.MaxElements && actual <= s.meta.MaxElements {
		s.meta.VectorCount = actual
		return
	}

	oldMax := s.meta.MaxElements
	s.meta.MaxElements = CalculateDynamicMaxElements(actual)
	s.meta.VectorCount = actual
	s.meta.LastRebuild = time.Now()

	slog.Info("vector index capacity self-healed",
		"vectors", actual,
		"old_max_elements", oldMax,
		"new_max_elements", s.meta.MaxElements)
}

// AddOrUpdateVector inserts a vector or overwrites the vector at the
// id's existing label. A nil payload keeps the previous payload on an
// update. Returns an error rather than exceed MaxElements; callers
// resize first.
func (s *HNSWStore) AddOrUpdateVector(id string, vector []float32, payload map[string]string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed {
		return 0, fmt.Errorf("store is closed")
	}
	if !s.initializedLocked() {
		return 0, fmt.Errorf("store is not initialized")
	}

	return s.insertLocked(id, vector, payload)
}

// insertLocked is the shared insert/overwrite primitive.
func (s *HNSWStore) insertLocked(id string, vector []float32, payload map[string]string) (uint64, error) {
	if len(vector) != s.meta.VectorDim {
		return 0, ErrDimensionMismatch{Expected: s.meta.VectorDim, Got: len(vector)}
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)
	if s.meta.DistanceMetric == "cos" {
		normalizeVectorInPlace(vec)
	}

	if label, exists := s.idToLabel[id]; exists {
		// Same id keeps its label, so an update never consumes capacity.
		if s.graph.Len() == 1 {
			// Deleting the final node leaves coder/hnsw in a broken
			// state; swap in a fresh graph instead.
			s.graph = s.newGraph()
		} else {
			s.graph.Delete(label)
		}
		s.graph.Add(hnsw.MakeNode(label, vec))
		if payload != nil {
			s.payloads[id] = clonePayload(payload)
		}
		return label, nil
	}

	if len(s.idToLabel) >= s.meta.MaxElements {
		return 0, ErrCapacityExceeded{Count: len(s.idToLabel), Max: s.meta.MaxElements}
	}

	label := s.nextLabel
	s.nextLabel++

	s.graph.Add(hnsw.MakeNode(label, vec))
	s.idToLabel[id] = label
	s.labelToID[label] = id
	if payload != nil {
		s.payloads[id] = clonePayload(payload)
	}
	s.meta.VectorCount = len(s.idToLabel)

	return label, nil
}

// ShouldResize reports whether utilization crossed ResizeThreshold.
func (s *HNSWStore) ShouldResize() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.meta.MaxElements == 0 {
		return false
	}
	return float64(len(s.idToLabel))/float64(s.meta.MaxElements) >= ResizeThreshold
}

// Resize recomputes capacity from the live vector count.
func (s *HNSWStore) Resize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed {
		return fmt.Errorf("store is closed")
	}
	if !s.initializedLocked() {
		return fmt.Errorf("store is not initialized")
	}

	oldMax := s.meta.MaxElements
	s.meta.MaxElements = CalculateDynamicMaxElements(len(s.idToLabel))
	s.meta.LastRebuild = time.Now()

	slog.Info("vector index capacity resized",
		"vectors", len(s.idToLabel),
		"old_max_elements", oldMax,
		"new_max_elements", s.meta.MaxElements)

	return nil
}

// SaveIncrementalUpdate persists the current state. The new graph
// binary is written under a fresh generation name and the sidecar
// rename commits it; a crash leaves the old pair or the new pair on
// disk, never a mix.
func (s *HNSWStore) SaveIncrementalUpdate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed {
		return fmt.Errorf("store is closed")
	}
	if !s.initializedLocked() {
		return fmt.Errorf("store is not initialized")
	}

	if err := s.persistLocked(); err != nil {
		return err
	}
	s.state = stateSaved

	return nil
}

// persistLocked writes the generation binary, commits it via the
// sidecar rename, and sweeps superseded generations.
func (s *HNSWStore) persistLocked() error {
	if s.basePath == "" {
		return fmt.Errorf("store path not configured")
	}
	if err := os.MkdirAll(filepath.Dir(s.basePath), 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	gen := s.meta.Generation + 1
	graphFile := fmt.Sprintf("%s.%06d.hnsw", filepath.Base(s.basePath), gen)
	binPath := filepath.Join(filepath.Dir(s.basePath), graphFile)

	if err := s.exportGraph(binPath); err != nil {
		return err
	}

	meta := s.meta
	meta.Generation = gen
	meta.GraphFile = graphFile
	meta.VectorCount = len(s.idToLabel)

	if err := s.writeSidecar(meta); err != nil {
		// The orphaned binary is swept by the next successful save.
		return err
	}
	s.meta = meta

	s.sweepGenerations(binPath)

	return nil
}

// exportGraph writes the graph binary through a temp file.
func (s *HNSWStore) exportGraph(binPath string) error {
	tmpPath := binPath + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create graph file: %w", err)
	}

	if err := s.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync graph file: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close graph file: %w", err)
	}

	if err := os.Rename(tmpPath, binPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename graph file: %w", err)
	}

	return nil
}

// writeSidecar encodes the sidecar to a temp file and renames it into
// place. This rename is the commit point.
func (s *HNSWStore) writeSidecar(meta Metadata) error {
	metaPath := s.basePath + ".meta"
	tmpPath := metaPath + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create metadata file: %w", err)
	}

	persisted := persistedState{
		Meta:      meta,
		IDToLabel: s.idToLabel,
		NextLabel: s.nextLabel,
		Payloads:  s.payloads,
	}

	if err := gob.NewEncoder(file).Encode(persisted); err != nil {
		if closeErr := file.Close(); closeErr != nil {
			slog.Warn("failed to close temp metadata file", slog.String("error", closeErr.Error()))
		}
		_ = os.Remove(tmpPath)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync metadata file: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}

	if err := os.Rename(tmpPath, metaPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename metadata file: %w", err)
	}

	return nil
}

// sweepGenerations removes graph binaries superseded by the committed
// one. Best effort; a leftover orphan costs disk, not correctness.
func (s *HNSWStore) sweepGenerations(current string) {
	matches, err := filepath.Glob(s.basePath + ".*.hnsw")
	if err != nil {
		return
	}
	for _, match := range matches {
		if match == current {
			continue
		}
		if err := os.Remove(match); err != nil {
			slog.Warn("failed to remove superseded graph binary",
				slog.String("path", match),
				slog.String("error", err.Error()))
		}
	}
}

// Rollback discards all in-memory mutations since the last successful
// save or build by reloading the committed pair.
func (s *HNSWStore) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed {
		return fmt.Errorf("store is closed")
	}
	if !s.initializedLocked() {
		return fmt.Errorf("store is not initialized")
	}

	if err := s.loadLocked(); err != nil {
		return fmt.Errorf("rollback to last committed state: %w", err)
	}
	s.state = stateLoaded

	slog.Info("vector index rolled back",
		"vectors", len(s.idToLabel),
		"generation", s.meta.Generation)

	return nil
}

// Search finds the k nearest neighbors to the query vector.
func (s *HNSWStore) Search(ctx context.Context, query []float32, k int) ([]*SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == stateClosed {
		return nil, fmt.Errorf("store is closed")
	}
	if len(query) != s.meta.VectorDim {
		return nil, ErrDimensionMismatch{Expected: s.meta.VectorDim, Got: len(query)}
	}
	if s.graph.Len() == 0 {
		return []*SearchResult{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	if s.meta.DistanceMetric == "cos" {
		normalizeVectorInPlace(normalized)
	}

	nodes := s.graph.Search(normalized, k)

	results := make([]*SearchResult, 0, len(nodes))
	for _, node := range nodes {
		id, exists := s.labelToID[node.Key]
		if !exists {
			continue
		}

		distance := s.graph.Distance(normalized, node.Value)
		results = append(results, &SearchResult{
			ID:       id,
			Distance: distance,
			Score:    distanceToScore(distance, s.meta.DistanceMetric),
			Payload:  clonePayload(s.payloads[id]),
		})
	}

	return results, nil
}

// Contains checks if an id exists.
func (s *HNSWStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == stateClosed {
		return false
	}
	_, exists := s.idToLabel[id]
	return exists
}

// Count returns the number of live vectors.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == stateClosed {
		return 0
	}
	return len(s.idToLabel)
}

// AllIDs returns every vector id in the store.
func (s *HNSWStore) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == stateClosed {
		return nil
	}
	ids := make([]string, 0, len(s.idToLabel))
	for id := range s.idToLabel {
		ids = append(ids, id)
	}
	return ids
}

// Metadata returns a copy of the current index metadata.
func (s *HNSWStore) Metadata() Metadata {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta := s.meta
	meta.VectorCount = len(s.idToLabel)
	return meta
}

// Close releases resources. Unsaved mutations are discarded.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed {
		return nil
	}
	s.state = stateClosed
	s.graph = nil

	return nil
}

func (s *HNSWStore) initializedLocked() bool {
	switch s.state {
	case stateBuilt, stateLoaded, stateSaved:
		return true
	default:
		return false
	}
}

// ReadStoreMetadata reads a persisted store's sidecar without loading
// the graph. Returns zero-value metadata when no sidecar exists.
func ReadStoreMetadata(basePath string) (Metadata, error) {
	file, err := os.Open(basePath + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return Metadata{}, nil
		}
		return Metadata{}, fmt.Errorf("open store metadata: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close metadata file", slog.String("error", err.Error()))
		}
	}()

	var persisted persistedState
	if err := gob.NewDecoder(file).Decode(&persisted); err != nil {
		return Metadata{}, fmt.Errorf("decode store metadata: %w", err)
	}

	return persisted.Meta, nil
}

// ReadStoreDimensions reads the vector dimension from a persisted
// store sidecar. Returns 0 when no sidecar exists (fresh start).
func ReadStoreDimensions(basePath string) (int, error) {
	meta, err := ReadStoreMetadata(basePath)
	if err != nil {
		return 0, err
	}
	return meta.VectorDim, nil
}

// Verify interface implementation
var _ VectorIndex = (*HNSWStore)(nil)

func clonePayload(payload map[string]string) map[string]string {
	if payload == nil {
		return nil
	}
	clone := make(map[string]string, len(payload))
	for k, v := range payload {
		clone[k] = v
	}
	return clone
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

// dotProductDistance orders by negated dot product so that higher dot
// products sort closer.
func dotProductDistance(a, b hnsw.Vector) float32 {
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return -dot
}

// distanceToScore converts a distance to a similarity score.
func distanceToScore(distance float32, metric string) float32 {
	switch metric {
	case "l2":
		return 1.0 / (1.0 + distance)
	case "dot":
		return -distance
	default:
		// Cosine distance ranges 0 (identical) to 2 (opposite).
		return 1.0 - distance/2.0
	}
}
