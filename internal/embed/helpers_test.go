package embed

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
)

// vectorMagnitude computes the magnitude of a vector
func vectorMagnitude(v []float32) float64 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}

// cosineSimilarity computes cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dotProduct, magA, magB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dotProduct / (math.Sqrt(magA) * math.Sqrt(magB))
}

// mockEmbedder counts calls and can be programmed to fail a number of
// times before succeeding.
type mockEmbedder struct {
	dims       int
	model      string
	calls      atomic.Int64
	batchCalls atomic.Int64
	failuresN  atomic.Int64 // fail this many calls before succeeding
	closed     atomic.Bool
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{dims: 4, model: "mock"}
}

func (m *mockEmbedder) failNext(n int) {
	m.failuresN.Store(int64(n))
}

func (m *mockEmbedder) vectorFor(text string) []float32 {
	v := make([]float32, m.dims)
	for i := range v {
		v[i] = float32(len(text)%7 + i)
	}
	return normalizeVector(v)
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	if m.failuresN.Add(-1) >= 0 {
		return nil, fmt.Errorf("transient failure")
	}
	return m.vectorFor(text), nil
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.batchCalls.Add(1)
	if m.failuresN.Add(-1) >= 0 {
		return nil, fmt.Errorf("transient failure")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.vectorFor(t)
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int { return m.dims }

func (m *mockEmbedder) ModelName() string { return m.model }

func (m *mockEmbedder) Available(_ context.Context) bool { return !m.closed.Load() }

func (m *mockEmbedder) Close() error {
	m.closed.Store(true)
	return nil
}
