package store

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"
)

const benchDim = 384

// benchVectors returns n deterministic random vectors.
func benchVectors(n int) [][]float32 {
	rng := rand.New(rand.NewSource(42))
	vecs := make([][]float32, n)
	for i := range vecs {
		v := make([]float32, benchDim)
		for j := range v {
			v[j] = rng.Float32()*2 - 1
		}
		vecs[i] = v
	}
	return vecs
}

func benchIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("chunk-%d", i)
	}
	return ids
}

// setupBenchStore builds a store pre-populated with n vectors.
func setupBenchStore(b *testing.B, n int) *HNSWStore {
	b.Helper()

	st, err := NewHNSWStore(StoreConfig{
		Path:     filepath.Join(b.TempDir(), "vectors"),
		Dim:      benchDim,
		Metric:   "cos",
		M:        16,
		EfSearch: 20,
	})
	if err != nil {
		b.Fatalf("failed to create store: %v", err)
	}
	b.Cleanup(func() { _ = st.Close() })

	if err := st.BuildIndex(context.Background(), benchIDs(n), benchVectors(n)); err != nil {
		b.Fatalf("failed to build index: %v", err)
	}
	return st
}

func BenchmarkHNSWStore_AddOrUpdateVector(b *testing.B) {
	st := setupBenchStore(b, 0)
	vecs := benchVectors(10000)
	payload := map[string]string{"path": "internal/service/service.go"}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		id := fmt.Sprintf("chunk-%d", i)
		if _, err := st.AddOrUpdateVector(id, vecs[i%len(vecs)], payload); err != nil {
			b.Fatalf("AddOrUpdateVector failed: %v", err)
		}
	}

	b.ReportMetric(float64(b.N)/b.Elapsed().Seconds(), "vectors/sec")
}

func BenchmarkHNSWStore_Search(b *testing.B) {
	for _, size := range []int{1000, 10000} {
		b.Run(fmt.Sprintf("size_%d", size), func(b *testing.B) {
			st := setupBenchStore(b, size)
			queries := benchVectors(100)
			ctx := context.Background()

			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				if _, err := st.Search(ctx, queries[i%len(queries)], 10); err != nil {
					b.Fatalf("Search failed: %v", err)
				}
			}
		})
	}
}

func BenchmarkHNSWStore_Contains(b *testing.B) {
	st := setupBenchStore(b, 1000)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		st.Contains(fmt.Sprintf("chunk-%d", i%1000))
	}
}

// BenchmarkHNSWStore_SaveIncrementalUpdate measures the per-file
// persistence cost: every successfully indexed file ends with one
// save of the full graph and sidecar.
func BenchmarkHNSWStore_SaveIncrementalUpdate(b *testing.B) {
	for _, size := range []int{100, 1000} {
		b.Run(fmt.Sprintf("size_%d", size), func(b *testing.B) {
			st := setupBenchStore(b, size)

			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				if err := st.SaveIncrementalUpdate(); err != nil {
					b.Fatalf("SaveIncrementalUpdate failed: %v", err)
				}
			}
		})
	}
}
