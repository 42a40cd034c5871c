// Package index drives indexing runs: a concurrent per-file pipeline
// over a fixed worker pool, and the Runner that wires scanning,
// cataloging, and persistence around it.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/jsbattig/code-indexer-sub029/internal/chunk"
	"github.com/jsbattig/code-indexer-sub029/internal/embed"
	apperrors "github.com/jsbattig/code-indexer-sub029/internal/errors"
	"github.com/jsbattig/code-indexer-sub029/internal/slots"
	"github.com/jsbattig/code-indexer-sub029/internal/store"
	"github.com/jsbattig/code-indexer-sub029/internal/ui"
	"github.com/jsbattig/code-indexer-sub029/internal/vectorize"
)

// FileTask is one file queued for processing.
type FileTask struct {
	// Path is the display path, relative to the project root.
	Path string

	// AbsPath is the absolute path used for reading.
	AbsPath string

	// Size in bytes, shown in the slot panel.
	Size int64

	// ContentHash identifies the content version this task was queued
	// for; the runner records it in the catalog on success.
	ContentHash string
}

// FileResult reports the outcome of processing one file. Exactly one
// result is produced per submitted task, whether the file succeeded,
// failed, or was never started because the run was cancelled.
type FileResult struct {
	Path          string
	Success       bool
	ChunksWritten int
	Err           error
}

// PipelineDeps contains the injected dependencies for Pipeline.
type PipelineDeps struct {
	// Tracker provides the display slots (required).
	Tracker *slots.Tracker

	// Vectors is the embedding worker pool (required).
	Vectors *vectorize.Manager

	// Chunker splits file content into embeddable chunks (required).
	Chunker chunk.Chunker

	// Store receives the vectors (required).
	Store store.VectorIndex

	// Renderer for progress display (optional).
	Renderer ui.Renderer

	// Logger for pipeline events (nil = slog default).
	Logger *slog.Logger

	// Workers is the file worker count; defaults to the tracker's
	// slot capacity.
	Workers int
}

// Pipeline runs files through the chunk/vectorize/finalize state
// machine on a fixed pool of workers. Files advance independently;
// the vector store is the only shared write target and every write
// to it is serialized behind one mutex.
type Pipeline struct {
	tracker  *slots.Tracker
	vectors  *vectorize.Manager
	chunker  chunk.Chunker
	store    store.VectorIndex
	renderer ui.Renderer
	logger   *slog.Logger
	workers  int

	// finalizeMu serializes the resize-check/stage/verify/save span.
	// The store handle is not safe for concurrent mutation, and the
	// serialization also guarantees that staged-but-unsaved vectors
	// always belong to exactly one file, which is what makes Rollback
	// a per-file undo.
	finalizeMu sync.Mutex
}

// NewPipeline creates a Pipeline with injected dependencies.
func NewPipeline(deps PipelineDeps) (*Pipeline, error) {
	if deps.Tracker == nil {
		return nil, fmt.Errorf("slot tracker is required")
	}
	if deps.Vectors == nil {
		return nil, fmt.Errorf("vectorization manager is required")
	}
	if deps.Chunker == nil {
		return nil, fmt.Errorf("chunker is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("vector store is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	workers := deps.Workers
	if workers <= 0 {
		workers = deps.Tracker.Capacity()
	}

	return &Pipeline{
		tracker:  deps.Tracker,
		vectors:  deps.Vectors,
		chunker:  deps.Chunker,
		store:    deps.Store,
		renderer: deps.Renderer,
		logger:   logger,
		workers:  workers,
	}, nil
}

// ProcessFiles runs every task through the per-file state machine and
// returns one result per task, in task order. Cancellation is sampled
// only between files: a file that reached its slot always runs to
// COMPLETE or FAILED, and tasks not yet started when the context is
// cancelled are returned as failed without touching the store.
func (p *Pipeline) ProcessFiles(ctx context.Context, tasks []*FileTask) []FileResult {
	results := make([]FileResult, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	total := len(tasks)
	intake := make(chan int)
	var completed atomic.Int64

	var g errgroup.Group
	for w := 0; w < p.workers; w++ {
		g.Go(func() error {
			for i := range intake {
				// The only cancellation point in the pipeline.
				if err := ctx.Err(); err != nil {
					results[i] = FileResult{
						Path: tasks[i].Path,
						Err: apperrors.New(apperrors.ErrCodeIndexFailed,
							"indexing cancelled before file started", err),
					}
				} else {
					results[i] = p.processFile(ctx, tasks[i])
				}
				p.reportResult(results[i], int(completed.Add(1)), total)
			}
			return nil
		})
	}

	for i := range tasks {
		intake <- i
	}
	close(intake)
	_ = g.Wait()

	return results
}

// processFile drives one file through the state machine:
// slot-acquired, chunking, vectorizing, finalizing, complete.
func (p *Pipeline) processFile(ctx context.Context, task *FileTask) FileResult {
	res := FileResult{Path: task.Path}

	slotID, err := p.tracker.AcquireSlot(ctx, slots.SlotData{
		Filename: task.Path,
		FileSize: task.Size,
	})
	if err != nil {
		res.Err = apperrors.New(apperrors.ErrCodeIndexFailed,
			"indexing cancelled before file started", err)
		return res
	}
	defer p.tracker.ReleaseSlot(slotID)

	// Once the slot is held the file runs to completion; cancellation
	// is sampled again only when the worker picks its next file.
	fileCtx := context.WithoutCancel(ctx)

	p.tracker.UpdateSlot(slotID, slots.StatusChunking)
	content, err := os.ReadFile(task.AbsPath)
	if err != nil {
		res.Err = apperrors.New(apperrors.ErrCodeChunkingFailed,
			fmt.Sprintf("failed to read %s", task.Path), err)
		return res
	}

	chunks, err := p.chunker.Chunk(fileCtx, &chunk.FileInput{
		Path:    task.Path,
		Content: content,
	})
	if err != nil {
		res.Err = apperrors.New(apperrors.ErrCodeChunkingFailed,
			fmt.Sprintf("failed to chunk %s", task.Path), err)
		return res
	}

	// A file with nothing embeddable completes without writes.
	if len(chunks) == 0 {
		p.tracker.UpdateSlot(slotID, slots.StatusComplete)
		res.Success = true
		return res
	}

	p.tracker.UpdateSlot(slotID, slots.StatusVectorizing)
	futures := make([]*vectorize.Future, len(chunks))
	for i, c := range chunks {
		futures[i] = p.vectors.Submit(c)
	}

	// Await every future even after a failure so the whole file's work
	// is settled before the result is reported.
	embeddings := make([]*embed.EmbeddingResult, len(chunks))
	var embedErr error
	for i, f := range futures {
		result, err := f.Wait(fileCtx)
		if err != nil {
			if embedErr == nil {
				embedErr = err
			}
			continue
		}
		embeddings[i] = result
	}
	if embedErr != nil {
		// One failed chunk fails the whole file; nothing was staged,
		// so the store needs no cleanup.
		res.Err = embedErr
		return res
	}

	p.tracker.UpdateSlot(slotID, slots.StatusFinalizing)
	points := make([]store.IndexPoint, len(chunks))
	for i, c := range chunks {
		points[i] = store.IndexPoint{
			ID:      c.ID,
			Vector:  embeddings[i].Vector,
			Payload: chunkPayload(c),
		}
	}

	if err := p.finalize(points); err != nil {
		res.Err = err
		return res
	}

	p.tracker.UpdateSlot(slotID, slots.StatusComplete)
	res.Success = true
	res.ChunksWritten = len(points)
	return res
}

// finalize writes one file's points as a single all-or-nothing unit:
// resize check, staged inserts, verification, save. A failure at any
// step rolls the store back to the last committed generation, so a
// failed file leaves zero points behind.
func (p *Pipeline) finalize(points []store.IndexPoint) error {
	p.finalizeMu.Lock()
	defer p.finalizeMu.Unlock()

	if p.store.ShouldResize() {
		before := p.store.Metadata().MaxElements
		if err := p.store.Resize(); err != nil {
			return apperrors.New(apperrors.ErrCodeIndexFailed,
				"vector index resize failed", err)
		}
		p.logger.Info("vector_index_resized",
			slog.Int("max_elements_before", before),
			slog.Int("max_elements_after", p.store.Metadata().MaxElements))
	}

	for i := range points {
		if _, err := p.store.AddOrUpdateVector(points[i].ID, points[i].Vector, points[i].Payload); err != nil {
			return p.rollback(apperrors.New(apperrors.ErrCodeIndexFailed,
				fmt.Sprintf("failed to stage vector %s", points[i].ID), err))
		}
	}

	// Staged writes become observable only after a successful save;
	// verify the staging took before committing.
	for i := range points {
		if !p.store.Contains(points[i].ID) {
			return p.rollback(apperrors.New(apperrors.ErrCodeIndexFailed,
				fmt.Sprintf("vector %s missing after staging", points[i].ID), nil))
		}
	}

	if err := p.store.SaveIncrementalUpdate(); err != nil {
		return p.rollback(apperrors.New(apperrors.ErrCodeIndexFailed,
			"failed to persist vectors", err))
	}

	return nil
}

// rollback discards staged mutations so the store's in-memory state
// matches the last committed generation. A rollback failure supersedes
// the original cause: the handle can no longer be trusted.
func (p *Pipeline) rollback(cause error) error {
	if err := p.store.Rollback(); err != nil {
		return apperrors.New(apperrors.ErrCodeRollbackFailed,
			"rollback after failed write also failed", err)
	}
	return cause
}

// reportResult publishes one file's outcome to the renderer and log.
func (p *Pipeline) reportResult(res FileResult, done, total int) {
	if p.renderer != nil {
		p.renderer.UpdateProgress(ui.ProgressEvent{
			Stage:       ui.StageIndexing,
			Current:     done,
			Total:       total,
			CurrentFile: res.Path,
		})
		if res.Err != nil {
			p.renderer.AddError(ui.ErrorEvent{File: res.Path, Err: res.Err})
		}
	}

	if res.Err != nil {
		p.logger.Warn("file_failed",
			slog.String("path", res.Path),
			slog.String("error", res.Err.Error()))
	}
}

// chunkPayload builds the display payload stored with each vector.
// Chunk order within the file is preserved through chunk_index so
// line metadata reconstructs correctly at query time.
func chunkPayload(c *chunk.Chunk) map[string]string {
	return map[string]string{
		"path":        c.FilePath,
		"language":    c.Language,
		"chunk_index": strconv.Itoa(c.ChunkIndex),
		"start_line":  strconv.Itoa(c.StartLine),
		"end_line":    strconv.Itoa(c.EndLine),
	}
}
