// Package vectorize runs embedding computation on a fixed worker pool.
// Callers submit chunks and receive futures; the pool applies
// backpressure when full and never drops a submitted chunk.
package vectorize

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jsbattig/code-indexer-sub029/internal/chunk"
	"github.com/jsbattig/code-indexer-sub029/internal/embed"
	apperrors "github.com/jsbattig/code-indexer-sub029/internal/errors"
)

// queueFactor sizes the task queue relative to the worker count.
const queueFactor = 8

// Future resolves to the embedding result of one submitted chunk.
type Future struct {
	done   chan struct{}
	result *embed.EmbeddingResult
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// resolve publishes the outcome. Must be called exactly once.
func (f *Future) resolve(result *embed.EmbeddingResult, err error) {
	f.result = result
	f.err = err
	close(f.done)
}

func failedFuture(err error) *Future {
	f := newFuture()
	f.resolve(nil, err)
	return f
}

// Wait blocks until the future resolves or the context is cancelled.
func (f *Future) Wait(ctx context.Context) (*embed.EmbeddingResult, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done exposes the resolution channel for select loops.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// task pairs a submitted chunk with its pending future.
type task struct {
	chunk  *chunk.Chunk
	future *Future
}

// Options configures Manager construction.
type Options struct {
	// ThreadOverride is the explicit per-run worker count (nil = unset).
	ThreadOverride *int

	// ConfigThreads is the persisted per-provider worker count (nil = unset).
	ConfigThreads *int

	// Provider selects the hard-coded default worker count.
	Provider string

	// Logger receives pool lifecycle events (nil = slog default).
	Logger *slog.Logger
}

// Manager owns a fixed pool of embedding workers fed by a bounded
// task queue. The worker count is resolved once at construction from
// the override / config / default precedence chain.
type Manager struct {
	embedder embed.Embedder
	tasks    chan *task
	wg       sync.WaitGroup
	logger   *slog.Logger

	threads int
	source  ThreadSource

	mu     sync.RWMutex
	closed bool
}

// NewManager creates the pool and starts its workers. The context is
// passed through to embedding calls; cancelling it aborts in-flight
// provider requests.
func NewManager(ctx context.Context, embedder embed.Embedder, opts Options) *Manager {
	def := DefaultThreads(opts.Provider)
	threads, source := ResolveThreadCount(opts.ThreadOverride, opts.ConfigThreads, def)

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		embedder: embedder,
		tasks:    make(chan *task, threads*queueFactor),
		logger:   logger,
		threads:  threads,
		source:   source,
	}

	logger.Info("vectorization pool started",
		"threads", threads,
		"thread_source", string(source),
		"model", embedder.ModelName(),
		"queue_capacity", cap(m.tasks))

	for i := 0; i < threads; i++ {
		m.wg.Add(1)
		go m.worker(ctx)
	}

	return m
}

// Threads reports the resolved worker count and the precedence tier
// it came from.
func (m *Manager) Threads() (int, ThreadSource) {
	return m.threads, m.source
}

// Submit enqueues a chunk for embedding and returns its future. When
// the queue is full, Submit blocks until a worker frees a slot; a
// submitted chunk is never dropped. After Close, Submit returns an
// already-failed future.
func (m *Manager) Submit(c *chunk.Chunk) *Future {
	// The read lock is held across the send so Close cannot close the
	// channel between the closed check and the enqueue.
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return failedFuture(apperrors.New(apperrors.ErrCodeInternal,
			"vectorization pool is closed", nil))
	}

	f := newFuture()
	m.tasks <- &task{chunk: c, future: f}
	return f
}

// worker consumes tasks until the queue is closed and drained.
func (m *Manager) worker(ctx context.Context) {
	defer m.wg.Done()

	for t := range m.tasks {
		vector, err := m.embedder.Embed(ctx, t.chunk.Text)
		if err != nil {
			t.future.resolve(nil, apperrors.New(apperrors.ErrCodeEmbeddingFailed,
				fmt.Sprintf("embedding failed for %s chunk %d", t.chunk.FilePath, t.chunk.ChunkIndex),
				err))
			continue
		}

		t.future.resolve(&embed.EmbeddingResult{
			Vector:     vector,
			Model:      m.embedder.ModelName(),
			TokenCount: embed.EstimateTokens(t.chunk.Text),
		}, nil)
	}
}

// Close stops accepting new work, drains the queue, and waits for
// workers to finish. Every future from an accepted Submit resolves
// before Close returns. Safe to call more than once.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	close(m.tasks)
	m.wg.Wait()

	m.logger.Debug("vectorization pool drained")
}
