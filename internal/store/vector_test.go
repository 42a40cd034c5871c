package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeBasePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "vectors")
}

func buildTestStore(t *testing.T, path string, ids []string, vectors [][]float32, dim int) *HNSWStore {
	t.Helper()
	cfg := DefaultStoreConfig(dim)
	cfg.Path = path
	s, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	require.NoError(t, s.BuildIndex(context.Background(), ids, vectors))
	return s
}

// TS01: Capacity Policy
func TestCalculateDynamicMaxElements(t *testing.T) {
	tests := []struct {
		count int
		want  int
	}{
		{0, 100_000},
		{1, 100_000},
		{66_666, 100_000},
		{66_667, 100_001},
		{80_000, 120_000},
		{100_000, 150_000},
		{1_000_000, 1_500_000},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("count=%d", tt.count), func(t *testing.T) {
			assert.Equal(t, tt.want, CalculateDynamicMaxElements(tt.count))
		})
	}
}

func TestHNSWStore_EmptyBuildGetsFloorCapacity(t *testing.T) {
	// Given: a fresh store for 128-dimensional vectors
	// When: I build it with zero vectors
	store := buildTestStore(t, storeBasePath(t), nil, nil, 128)
	defer func() { _ = store.Close() }()

	// Then: capacity is the floor, not zero
	meta := store.Metadata()
	assert.Equal(t, 100_000, meta.MaxElements)
	assert.Equal(t, 0, meta.VectorCount)
	assert.Equal(t, 128, meta.VectorDim)
	assert.False(t, store.ShouldResize())
}

func TestHNSWStore_ShouldResizeAtThreshold(t *testing.T) {
	// Given: a built store whose live count sits just under 80% utilization
	store := buildTestStore(t, storeBasePath(t), nil, nil, 4)
	defer func() { _ = store.Close() }()

	for i := 0; i < 79_999; i++ {
		store.idToLabel[fmt.Sprintf("chunk-%d", i)] = uint64(i)
	}
	store.meta.MaxElements = 100_000

	// Then: no resize wanted below the threshold
	assert.False(t, store.ShouldResize())

	// When: one more vector crosses 80%
	store.idToLabel["chunk-79999"] = 79_999
	assert.True(t, store.ShouldResize())

	// And: resizing recomputes capacity from the live count
	require.NoError(t, store.Resize())
	assert.Equal(t, 120_000, store.Metadata().MaxElements)
	assert.False(t, store.ShouldResize())
}

func TestHNSWStore_ResizeKeepsVectorsRetrievable(t *testing.T) {
	// Given: a built store pushed over the resize threshold
	ids := []string{"a", "b", "c", "d"}
	vectors := [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
	store := buildTestStore(t, storeBasePath(t), ids, vectors, 4)
	defer func() { _ = store.Close() }()

	store.meta.MaxElements = 5
	require.True(t, store.ShouldResize())

	// When: the store resizes
	require.NoError(t, store.Resize())

	// Then: every vector is still reachable under its original id
	assert.Equal(t, len(ids), store.Count())
	for i, id := range ids {
		assert.True(t, store.Contains(id))
		results, err := store.Search(context.Background(), vectors[i], 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, id, results[0].ID)
	}
}

// TS02: Build
func TestHNSWStore_BuildIndexPersistsPair(t *testing.T) {
	// Given: ids and vectors for a fresh index
	path := storeBasePath(t)
	ids := []string{"a", "b", "c"}
	vectors := [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
	}

	// When: I build the index
	store := buildTestStore(t, path, ids, vectors, 4)
	defer func() { _ = store.Close() }()

	// Then: all vectors are present
	assert.Equal(t, 3, store.Count())
	assert.True(t, store.Contains("a"))
	assert.ElementsMatch(t, ids, store.AllIDs())

	// And: the pair is on disk
	_, err := os.Stat(path + ".meta")
	require.NoError(t, err)
	matches, err := filepath.Glob(path + ".*.hnsw")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestHNSWStore_BuildRejectsLengthMismatch(t *testing.T) {
	cfg := DefaultStoreConfig(4)
	cfg.Path = storeBasePath(t)
	store, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	err = store.BuildIndex(context.Background(), []string{"a", "b"}, [][]float32{{1, 0, 0, 0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "length mismatch")
}

func TestHNSWStore_BuildRejectsWrongDimensions(t *testing.T) {
	cfg := DefaultStoreConfig(4)
	cfg.Path = storeBasePath(t)
	store, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	err = store.BuildIndex(context.Background(), []string{"a"}, [][]float32{{1, 0}})
	require.Error(t, err)
	var dimErr ErrDimensionMismatch
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 4, dimErr.Expected)
	assert.Equal(t, 2, dimErr.Got)
}

func TestHNSWStore_BuildAdoptsDimensionsFromInput(t *testing.T) {
	// Given: a config that leaves the dimension open
	cfg := StoreConfig{Path: storeBasePath(t)}
	store, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	// When: I build with 6-dimensional vectors
	err = store.BuildIndex(context.Background(), []string{"a"}, [][]float32{{1, 0, 0, 0, 0, 0}})
	require.NoError(t, err)

	// Then: the store adopted the input dimension
	assert.Equal(t, 6, store.Metadata().VectorDim)
}

func TestHNSWStore_DoubleBuildFails(t *testing.T) {
	store := buildTestStore(t, storeBasePath(t), []string{"a"}, [][]float32{{1, 0, 0, 0}}, 4)
	defer func() { _ = store.Close() }()

	err := store.BuildIndex(context.Background(), []string{"b"}, [][]float32{{0, 1, 0, 0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already initialized")
}

func TestHNSWStore_RejectsUnknownMetric(t *testing.T) {
	cfg := DefaultStoreConfig(4)
	cfg.Metric = "manhattan"
	_, err := NewHNSWStore(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported distance metric")
}

// TS03: Add and Update
func TestHNSWStore_AddAllocatesSequentialLabels(t *testing.T) {
	// Given: a built empty store
	store := buildTestStore(t, storeBasePath(t), nil, nil, 4)
	defer func() { _ = store.Close() }()

	// When: I add three vectors
	la, err := store.AddOrUpdateVector("a", []float32{1, 0, 0, 0}, nil)
	require.NoError(t, err)
	lb, err := store.AddOrUpdateVector("b", []float32{0, 1, 0, 0}, nil)
	require.NoError(t, err)
	lc, err := store.AddOrUpdateVector("c", []float32{0, 0, 1, 0}, nil)
	require.NoError(t, err)

	// Then: labels are allocated in order
	assert.Equal(t, uint64(0), la)
	assert.Equal(t, uint64(1), lb)
	assert.Equal(t, uint64(2), lc)
	assert.Equal(t, 3, store.Count())
}

func TestHNSWStore_UpdateKeepsLabelAndCount(t *testing.T) {
	// Given: a store with vectors "a" and "b"
	store := buildTestStore(t, storeBasePath(t), nil, nil, 4)
	defer func() { _ = store.Close() }()

	la, err := store.AddOrUpdateVector("a", []float32{1, 0, 0, 0}, nil)
	require.NoError(t, err)
	_, err = store.AddOrUpdateVector("b", []float32{0, 1, 0, 0}, nil)
	require.NoError(t, err)

	// When: I overwrite "a" with a new vector
	updated, err := store.AddOrUpdateVector("a", []float32{0, 0, 1, 0}, nil)
	require.NoError(t, err)

	// Then: the label is unchanged and no capacity was consumed
	assert.Equal(t, la, updated)
	assert.Equal(t, 2, store.Count())

	// And: the vector really moved
	results, err := store.Search(context.Background(), []float32{0, 0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	assert.Greater(t, results[0].Score, float32(0.99))

	// And: the next new id continues the label sequence
	lc, err := store.AddOrUpdateVector("c", []float32{0, 1, 1, 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), lc)
}

func TestHNSWStore_UpdateSoleVector(t *testing.T) {
	// Overwriting the only vector in the graph must not corrupt it.
	store := buildTestStore(t, storeBasePath(t), nil, nil, 4)
	defer func() { _ = store.Close() }()

	_, err := store.AddOrUpdateVector("only", []float32{1, 0, 0, 0}, nil)
	require.NoError(t, err)
	_, err = store.AddOrUpdateVector("only", []float32{0, 1, 0, 0}, nil)
	require.NoError(t, err)

	results, err := store.Search(context.Background(), []float32{0, 1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "only", results[0].ID)
	assert.Equal(t, 1, store.Count())
}

func TestHNSWStore_AddAtCapacityFails(t *testing.T) {
	// Given: a store whose capacity is exhausted
	store := buildTestStore(t, storeBasePath(t), nil, nil, 4)
	defer func() { _ = store.Close() }()

	for i, id := range []string{"a", "b", "c"} {
		vec := make([]float32, 4)
		vec[i] = 1
		_, err := store.AddOrUpdateVector(id, vec, nil)
		require.NoError(t, err)
	}
	store.meta.MaxElements = 3

	// When: a new id arrives
	_, err := store.AddOrUpdateVector("d", []float32{1, 1, 0, 0}, nil)

	// Then: the insert is refused with a capacity error
	var capErr ErrCapacityExceeded
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 3, capErr.Count)
	assert.Equal(t, 3, capErr.Max)

	// And: updating an existing id still works at capacity
	_, err = store.AddOrUpdateVector("a", []float32{0, 1, 1, 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, store.Count())
}

func TestHNSWStore_AddOnUninitializedStoreFails(t *testing.T) {
	cfg := DefaultStoreConfig(4)
	cfg.Path = storeBasePath(t)
	store, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	_, err = store.AddOrUpdateVector("a", []float32{1, 0, 0, 0}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not initialized")
}

// TS04: Payloads
func TestHNSWStore_PayloadRoundTrip(t *testing.T) {
	// Given: a vector stored with a payload
	store := buildTestStore(t, storeBasePath(t), nil, nil, 4)
	defer func() { _ = store.Close() }()

	payload := map[string]string{"path": "src/main.go", "lines": "1-40"}
	_, err := store.AddOrUpdateVector("a", []float32{1, 0, 0, 0}, payload)
	require.NoError(t, err)

	// When: I search for it
	results, err := store.Search(context.Background(), []float32{1, 0, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)

	// Then: the payload comes back
	assert.Equal(t, payload, results[0].Payload)

	// And: the result holds a copy, not the stored map
	results[0].Payload["path"] = "mutated"
	again, err := store.Search(context.Background(), []float32{1, 0, 0, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, "src/main.go", again[0].Payload["path"])
}

func TestHNSWStore_NilPayloadKeepsExisting(t *testing.T) {
	// Given: a vector with a payload
	store := buildTestStore(t, storeBasePath(t), nil, nil, 4)
	defer func() { _ = store.Close() }()

	_, err := store.AddOrUpdateVector("a", []float32{1, 0, 0, 0},
		map[string]string{"path": "src/main.go"})
	require.NoError(t, err)

	// When: the vector is updated without a payload
	_, err = store.AddOrUpdateVector("a", []float32{0, 1, 0, 0}, nil)
	require.NoError(t, err)

	// Then: the previous payload survives
	results, err := store.Search(context.Background(), []float32{0, 1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "src/main.go", results[0].Payload["path"])
}

// TS05: Search
func TestHNSWStore_SearchOrdersByProximity(t *testing.T) {
	// Given: vectors a=[1,0,0,0], b=[0,1,0,0], c=[0.9,0.1,0,0]
	store := buildTestStore(t, storeBasePath(t),
		[]string{"a", "b", "c"},
		[][]float32{
			{1, 0, 0, 0},
			{0, 1, 0, 0},
			{0.9, 0.1, 0, 0},
		}, 4)
	defer func() { _ = store.Close() }()

	// When: I search for [1,0,0,0] with k=2
	results, err := store.Search(context.Background(), []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)

	// Then: the exact match comes first, the near match second
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "c", results[1].ID)
	assert.Greater(t, results[0].Score, float32(0.99))
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestHNSWStore_SearchEmptyStore(t *testing.T) {
	store := buildTestStore(t, storeBasePath(t), nil, nil, 4)
	defer func() { _ = store.Close() }()

	results, err := store.Search(context.Background(), []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHNSWStore_SearchRejectsWrongDimensions(t *testing.T) {
	store := buildTestStore(t, storeBasePath(t), []string{"a"}, [][]float32{{1, 0, 0, 0}}, 4)
	defer func() { _ = store.Close() }()

	_, err := store.Search(context.Background(), []float32{1, 0}, 1)
	var dimErr ErrDimensionMismatch
	require.ErrorAs(t, err, &dimErr)
}

func TestHNSWStore_EuclideanMetric(t *testing.T) {
	// Given: an l2 store with two vectors
	cfg := DefaultStoreConfig(2)
	cfg.Path = storeBasePath(t)
	cfg.Metric = "l2"
	store, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.BuildIndex(context.Background(),
		[]string{"near", "far"},
		[][]float32{{1, 1}, {10, 10}}))

	// When: I search close to "near"
	results, err := store.Search(context.Background(), []float32{1.1, 1.1}, 2)
	require.NoError(t, err)

	// Then: ordering follows euclidean distance
	require.Len(t, results, 2)
	assert.Equal(t, "near", results[0].ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestHNSWStore_DotProductMetric(t *testing.T) {
	// Given: a dot-product store where magnitude matters
	cfg := DefaultStoreConfig(2)
	cfg.Path = storeBasePath(t)
	cfg.Metric = "dot"
	store, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.BuildIndex(context.Background(),
		[]string{"strong", "weak"},
		[][]float32{{3, 0}, {1, 0}}))

	// When: I search along the shared direction
	results, err := store.Search(context.Background(), []float32{1, 0}, 2)
	require.NoError(t, err)

	// Then: the higher dot product wins
	require.Len(t, results, 2)
	assert.Equal(t, "strong", results[0].ID)
	assert.InDelta(t, 3.0, float64(results[0].Score), 0.001)
}

// TS06: Persistence
func TestHNSWStore_SaveAndReopen(t *testing.T) {
	// Given: a built store with updates and payloads
	path := storeBasePath(t)
	store := buildTestStore(t, path,
		[]string{"a", "b"},
		[][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}, 4)

	_, err := store.AddOrUpdateVector("c", []float32{0, 0, 1, 0},
		map[string]string{"path": "c.go"})
	require.NoError(t, err)
	require.NoError(t, store.SaveIncrementalUpdate())
	require.NoError(t, store.Close())

	// When: a fresh handle opens the persisted pair
	reopened, err := NewHNSWStore(StoreConfig{})
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	require.NoError(t, reopened.OpenForIncrementalUpdate(context.Background(), path))

	// Then: count, membership, metadata, and payloads all survive
	assert.Equal(t, 3, reopened.Count())
	assert.True(t, reopened.Contains("c"))
	meta := reopened.Metadata()
	assert.Equal(t, 4, meta.VectorDim)
	assert.Equal(t, "cos", meta.DistanceMetric)
	assert.Equal(t, 3, meta.VectorCount)

	results, err := reopened.Search(context.Background(), []float32{0, 0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c", results[0].ID)
	assert.Equal(t, "c.go", results[0].Payload["path"])

	// And: the label sequence continues where it left off
	label, err := reopened.AddOrUpdateVector("d", []float32{1, 1, 0, 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), label)
}

func TestHNSWStore_SaveSweepsOldGenerations(t *testing.T) {
	// Given: a store saved twice
	path := storeBasePath(t)
	store := buildTestStore(t, path, []string{"a"}, [][]float32{{1, 0, 0, 0}}, 4)
	defer func() { _ = store.Close() }()

	_, err := store.AddOrUpdateVector("b", []float32{0, 1, 0, 0}, nil)
	require.NoError(t, err)
	require.NoError(t, store.SaveIncrementalUpdate())

	// Then: exactly one committed binary remains, and no temp files
	matches, err := filepath.Glob(path + ".*.hnsw")
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	tmps, err := filepath.Glob(path + ".*.tmp")
	require.NoError(t, err)
	assert.Empty(t, tmps)
}

func TestHNSWStore_OpenIgnoresUncommittedGeneration(t *testing.T) {
	// A crash after writing a new binary but before the sidecar rename
	// must leave the previous committed pair in effect.
	path := storeBasePath(t)
	store := buildTestStore(t, path,
		[]string{"a", "b"},
		[][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}, 4)
	require.NoError(t, store.Close())

	// Given: an orphaned next-generation binary from the "crash"
	orphan := path + ".000002.hnsw"
	require.NoError(t, os.WriteFile(orphan, []byte("partial garbage"), 0o644))

	// When: the store is reopened
	reopened, err := NewHNSWStore(StoreConfig{})
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	require.NoError(t, reopened.OpenForIncrementalUpdate(context.Background(), path))

	// Then: the committed pair is intact
	assert.Equal(t, 2, reopened.Count())
	assert.True(t, reopened.Contains("a"))
	assert.True(t, reopened.Contains("b"))

	results, err := reopened.Search(context.Background(), []float32{1, 0, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestHNSWStore_RecoveryReprocessingIsIdempotent(t *testing.T) {
	// Re-adding the same ids after crash recovery must not grow the
	// index.
	path := storeBasePath(t)
	store := buildTestStore(t, path,
		[]string{"a", "b"},
		[][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}, 4)
	require.NoError(t, store.Close())

	reopened, err := NewHNSWStore(StoreConfig{})
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	require.NoError(t, reopened.OpenForIncrementalUpdate(context.Background(), path))

	// When: the same chunks are processed again
	_, err = reopened.AddOrUpdateVector("a", []float32{1, 0, 0, 0}, nil)
	require.NoError(t, err)
	_, err = reopened.AddOrUpdateVector("b", []float32{0, 1, 0, 0}, nil)
	require.NoError(t, err)
	require.NoError(t, reopened.SaveIncrementalUpdate())

	// Then: the count is unchanged
	assert.Equal(t, 2, reopened.Count())
	assert.Equal(t, 2, reopened.Metadata().VectorCount)
}

func TestHNSWStore_OpenSelfHealsStaleCapacity(t *testing.T) {
	// Given: a persisted sidecar whose capacity is below its count
	path := storeBasePath(t)
	store := buildTestStore(t, path,
		[]string{"a", "b", "c", "d", "e"},
		[][]float32{
			{1, 0, 0, 0},
			{0, 1, 0, 0},
			{0, 0, 1, 0},
			{0, 0, 0, 1},
			{1, 1, 0, 0},
		}, 4)

	store.meta.MaxElements = 2
	require.NoError(t, store.writeSidecar(store.meta))
	require.NoError(t, store.Close())

	// When: the store is reopened
	reopened, err := NewHNSWStore(StoreConfig{})
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	require.NoError(t, reopened.OpenForIncrementalUpdate(context.Background(), path))

	// Then: capacity was recomputed, not surfaced as an error
	meta := reopened.Metadata()
	assert.Equal(t, 5, meta.VectorCount)
	assert.Equal(t, CalculateDynamicMaxElements(5), meta.MaxElements)
}

func TestHNSWStore_OpenRejectsSchemaMismatch(t *testing.T) {
	path := storeBasePath(t)
	store := buildTestStore(t, path, []string{"a"}, [][]float32{{1, 0, 0, 0}}, 4)

	store.meta.SchemaVersion = 99
	require.NoError(t, store.writeSidecar(store.meta))
	require.NoError(t, store.Close())

	reopened, err := NewHNSWStore(StoreConfig{})
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	err = reopened.OpenForIncrementalUpdate(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema version")
}

func TestHNSWStore_OpenRejectsDimensionMismatch(t *testing.T) {
	// Given: a persisted 4-dimensional index
	path := storeBasePath(t)
	store := buildTestStore(t, path, []string{"a"}, [][]float32{{1, 0, 0, 0}}, 4)
	require.NoError(t, store.Close())

	// When: a handle configured for 16 dimensions opens it
	cfg := DefaultStoreConfig(16)
	reopened, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	err = reopened.OpenForIncrementalUpdate(context.Background(), path)

	// Then: the mismatch is an error, not silent adoption
	var dimErr ErrDimensionMismatch
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 16, dimErr.Expected)
	assert.Equal(t, 4, dimErr.Got)
}

func TestHNSWStore_OpenMissingStoreFails(t *testing.T) {
	store, err := NewHNSWStore(StoreConfig{})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	err = store.OpenForIncrementalUpdate(context.Background(),
		filepath.Join(t.TempDir(), "nothing-here"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadStoreDimensions(t *testing.T) {
	// Fresh path reports zero, persisted path reports its dimension.
	path := storeBasePath(t)

	dims, err := ReadStoreDimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 0, dims)

	store := buildTestStore(t, path, []string{"a"}, [][]float32{{1, 0, 0, 0}}, 4)
	require.NoError(t, store.Close())

	dims, err = ReadStoreDimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 4, dims)
}

// TS07: Rollback
func TestHNSWStore_RollbackDiscardsUnsavedMutations(t *testing.T) {
	// Given: a saved baseline of two vectors
	path := storeBasePath(t)
	store := buildTestStore(t, path,
		[]string{"a", "b"},
		[][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}, 4)
	defer func() { _ = store.Close() }()

	// When: unsaved mutations pile up and rollback is called
	_, err := store.AddOrUpdateVector("c", []float32{0, 0, 1, 0}, nil)
	require.NoError(t, err)
	_, err = store.AddOrUpdateVector("a", []float32{0, 0, 0, 1},
		map[string]string{"path": "changed.go"})
	require.NoError(t, err)
	require.NoError(t, store.Rollback())

	// Then: the store matches the last committed state
	assert.Equal(t, 2, store.Count())
	assert.False(t, store.Contains("c"))

	results, err := store.Search(context.Background(), []float32{1, 0, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	assert.Greater(t, results[0].Score, float32(0.99))
	assert.Empty(t, results[0].Payload)

	// And: label allocation rewinds with the state
	label, err := store.AddOrUpdateVector("d", []float32{1, 1, 0, 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), label)
}

func TestHNSWStore_RollbackThenSaveResumesGenerations(t *testing.T) {
	// Given: a rolled-back store
	path := storeBasePath(t)
	store := buildTestStore(t, path, []string{"a"}, [][]float32{{1, 0, 0, 0}}, 4)
	defer func() { _ = store.Close() }()

	_, err := store.AddOrUpdateVector("junk", []float32{0, 1, 0, 0}, nil)
	require.NoError(t, err)
	require.NoError(t, store.Rollback())

	// When: new work is saved after the rollback
	_, err = store.AddOrUpdateVector("b", []float32{0, 0, 1, 0}, nil)
	require.NoError(t, err)
	require.NoError(t, store.SaveIncrementalUpdate())

	// Then: a reopen sees the post-rollback state
	require.NoError(t, store.Close())
	reopened, err := NewHNSWStore(StoreConfig{})
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	require.NoError(t, reopened.OpenForIncrementalUpdate(context.Background(), path))

	assert.Equal(t, 2, reopened.Count())
	assert.True(t, reopened.Contains("b"))
	assert.False(t, reopened.Contains("junk"))
}

// TS08: Lifecycle
func TestHNSWStore_ClosedStoreRejectsEverything(t *testing.T) {
	store := buildTestStore(t, storeBasePath(t), []string{"a"}, [][]float32{{1, 0, 0, 0}}, 4)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err := store.AddOrUpdateVector("b", []float32{0, 1, 0, 0}, nil)
	assert.Error(t, err)
	assert.Error(t, store.SaveIncrementalUpdate())
	assert.Error(t, store.Rollback())
	assert.Error(t, store.Resize())
	_, err = store.Search(context.Background(), []float32{1, 0, 0, 0}, 1)
	assert.Error(t, err)
	assert.Equal(t, 0, store.Count())
	assert.False(t, store.Contains("a"))
	assert.Nil(t, store.AllIDs())
}

func TestHNSWStore_SaveBeforeInitFails(t *testing.T) {
	cfg := DefaultStoreConfig(4)
	cfg.Path = storeBasePath(t)
	store, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	assert.Error(t, store.SaveIncrementalUpdate())
	assert.Error(t, store.Rollback())
	assert.Error(t, store.Resize())
}

func TestHNSWStore_BuildHonorsCancelledContext(t *testing.T) {
	cfg := DefaultStoreConfig(4)
	cfg.Path = storeBasePath(t)
	store, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = store.BuildIndex(ctx, []string{"a"}, [][]float32{{1, 0, 0, 0}})
	require.ErrorIs(t, err, context.Canceled)
}
