package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/jsbattig/code-indexer-sub029/internal/catalog"
	"github.com/jsbattig/code-indexer-sub029/internal/chunk"
	"github.com/jsbattig/code-indexer-sub029/internal/config"
	"github.com/jsbattig/code-indexer-sub029/internal/embed"
	apperrors "github.com/jsbattig/code-indexer-sub029/internal/errors"
	"github.com/jsbattig/code-indexer-sub029/internal/scanner"
	"github.com/jsbattig/code-indexer-sub029/internal/slots"
	"github.com/jsbattig/code-indexer-sub029/internal/store"
	"github.com/jsbattig/code-indexer-sub029/internal/ui"
	"github.com/jsbattig/code-indexer-sub029/internal/vectorize"
)

// storeBaseName is the base name of the vector store's file pair
// inside the index directory.
const storeBaseName = "vectors"

// StorePath returns the vector store base path for an index directory.
// The store persists as generation-named <base>.NNNNNN.hnsw binaries
// plus a <base>.meta sidecar next to them.
func StorePath(indexDir string) string {
	return filepath.Join(indexDir, storeBaseName)
}

// CatalogPath returns the catalog database path for an index directory.
func CatalogPath(indexDir string) string {
	return filepath.Join(indexDir, "catalog.db")
}

// RunnerConfig holds per-run parameters.
type RunnerConfig struct {
	// RootDir is the project root being indexed.
	RootDir string

	// IndexDir overrides the index directory (default: the configured
	// store dir under RootDir).
	IndexDir string

	// Reindex drops the catalog and rebuilds the store from scratch
	// instead of skipping unchanged files.
	Reindex bool

	// ThreadOverride forces the vectorization worker count for this
	// run (nil = fall through to config, then provider default).
	ThreadOverride *int
}

// RunnerResult summarizes a completed run.
type RunnerResult struct {
	Files    int
	Skipped  int
	Failed   int
	Chunks   int
	Warnings int
	Duration time.Duration
}

// RunnerDependencies contains the injected dependencies for Runner.
type RunnerDependencies struct {
	// Renderer for progress display (required).
	Renderer ui.Renderer

	// Config is the loaded configuration (required).
	Config *config.Config

	// Catalog records per-file outcomes (required).
	Catalog *catalog.Catalog

	// Store receives the vectors (required). The runner opens or
	// builds it during the run.
	Store store.VectorIndex

	// Embedder produces the vectors (required).
	Embedder embed.Embedder

	// Tracker is the display slot tracker. Optional; when the caller
	// shares one with a TUI renderer, pass the same instance here.
	Tracker *slots.Tracker

	// Chunker splits files (optional, defaults to the configured
	// line-window chunker).
	Chunker chunk.Chunker

	// Scanner walks the tree (optional).
	Scanner *scanner.Scanner

	// Logger for run events (nil = slog default).
	Logger *slog.Logger
}

// Runner orchestrates a full indexing run: lock, scan, filter,
// process, record. Construction validates dependencies; per-run
// parameters arrive at Run time.
type Runner struct {
	renderer ui.Renderer
	config   *config.Config
	catalog  *catalog.Catalog
	store    store.VectorIndex
	embedder embed.Embedder
	tracker  *slots.Tracker
	chunker  chunk.Chunker
	scanner  *scanner.Scanner
	logger   *slog.Logger
}

// NewRunner creates a Runner with injected dependencies.
func NewRunner(deps RunnerDependencies) (*Runner, error) {
	if deps.Renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	chunker := deps.Chunker
	if chunker == nil {
		chunker = chunk.NewLineChunkerWithOptions(chunk.LineChunkerOptions{
			WindowLines:  deps.Config.Chunking.MaxLines,
			OverlapLines: deps.Config.Chunking.OverlapLines,
		})
	}

	sc := deps.Scanner
	if sc == nil {
		var err error
		sc, err = scanner.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create scanner: %w", err)
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		renderer: deps.Renderer,
		config:   deps.Config,
		catalog:  deps.Catalog,
		store:    deps.Store,
		embedder: deps.Embedder,
		tracker:  deps.Tracker,
		chunker:  chunker,
		scanner:  sc,
		logger:   logger,
	}, nil
}

// stageTiming records wall-clock duration per pipeline stage.
type stageTiming struct {
	scan   time.Duration
	filter time.Duration
	index  time.Duration
}

// Run executes one indexing run. The context governs scanning and the
// admission of new files; files already holding a slot when the
// context is cancelled still run to completion so the store and
// catalog stay consistent.
func (r *Runner) Run(ctx context.Context, cfg RunnerConfig) (*RunnerResult, error) {
	runStart := time.Now()

	indexDir := cfg.IndexDir
	if indexDir == "" {
		indexDir = r.config.IndexDir(cfg.RootDir)
	}

	lock := NewRunLock(indexDir)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire index lock: %w", err)
	}
	if !locked {
		return nil, apperrors.New(apperrors.ErrCodeIndexLocked,
			fmt.Sprintf("another indexing run is in progress (lock held at %s)", lock.Path()), nil).
			WithSuggestion("Wait for the other run to finish, or remove the lock file if no cidx process is running")
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			r.logger.Warn("failed to release index lock", slog.String("error", err.Error()))
		}
	}()

	runID, err := r.catalog.StartRun(ctx)
	if err != nil {
		r.logger.Warn("failed to record run start", slog.String("error", err.Error()))
	}

	var timings stageTiming
	var warnings int

	// Stage 1: walk the tree.
	scanStart := time.Now()
	r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageScanning, Message: "Scanning files..."})

	files, scanWarnings, err := r.scanFiles(ctx, cfg.RootDir)
	if err != nil {
		return nil, err
	}
	warnings += scanWarnings
	timings.scan = time.Since(scanStart)

	r.logger.Info("index_scan_complete",
		slog.Int("files", len(files)),
		slog.Int64("duration_ms", timings.scan.Milliseconds()))

	// Stage 2: hash and drop unchanged files.
	filterStart := time.Now()
	r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageFiltering, Message: "Checking for changes..."})

	tasks, skipped, filterWarnings := r.filterFiles(ctx, files, cfg.Reindex)
	warnings += filterWarnings
	timings.filter = time.Since(filterStart)

	r.logger.Info("index_filter_complete",
		slog.Int("changed", len(tasks)),
		slog.Int("unchanged", skipped),
		slog.Int64("duration_ms", timings.filter.Milliseconds()))

	// Open or build the store before starting workers; an unopenable
	// store aborts the run before any file is touched.
	if err := r.openStore(ctx, indexDir, cfg.Reindex); err != nil {
		return nil, err
	}

	// Stage 3: chunk, vectorize, and persist the changed files.
	indexStart := time.Now()

	tracker := r.tracker
	if tracker == nil {
		tracker = slots.NewTracker(r.fileWorkers())
	}

	// The manager outlives cancellation on purpose: chunks of files
	// already in flight must still be embedded.
	manager := vectorize.NewManager(context.WithoutCancel(ctx), r.embedder, vectorize.Options{
		ThreadOverride: cfg.ThreadOverride,
		ConfigThreads:  r.config.ConfiguredThreads(),
		Provider:       r.config.Embeddings.Provider,
		Logger:         r.logger,
	})
	defer manager.Close()

	pipeline, err := NewPipeline(PipelineDeps{
		Tracker:  tracker,
		Vectors:  manager,
		Chunker:  r.chunker,
		Store:    r.store,
		Renderer: r.renderer,
		Logger:   r.logger,
		Workers:  r.fileWorkers(),
	})
	if err != nil {
		return nil, err
	}

	results := pipeline.ProcessFiles(ctx, tasks)
	timings.index = time.Since(indexStart)

	// Stage 4: record outcomes. Completed files are already durable in
	// the store, so the catalog write must not be lost to cancellation.
	recordCtx := context.WithoutCancel(ctx)
	res := &RunnerResult{Skipped: skipped, Warnings: warnings}
	recs := make([]catalog.FileRecord, 0, len(results))
	now := time.Now()
	for i, fr := range results {
		if fr.Success {
			res.Files++
			res.Chunks += fr.ChunksWritten
			recs = append(recs, catalog.FileRecord{
				Path:        fr.Path,
				ContentHash: tasks[i].ContentHash,
				ChunkCount:  fr.ChunksWritten,
				SizeBytes:   tasks[i].Size,
				Status:      catalog.StatusIndexed,
				IndexedAt:   now,
			})
			continue
		}
		// Files the run never reached keep their previous catalog row.
		if errors.Is(fr.Err, context.Canceled) {
			continue
		}
		res.Failed++
		recs = append(recs, catalog.FileRecord{
			Path:        fr.Path,
			ContentHash: tasks[i].ContentHash,
			SizeBytes:   tasks[i].Size,
			Status:      catalog.StatusFailed,
			Error:       fr.Err.Error(),
			IndexedAt:   now,
		})
	}
	if err := r.catalog.RecordFiles(recordCtx, recs); err != nil {
		r.logger.Warn("failed to record file outcomes", slog.String("error", err.Error()))
	}
	if runID != "" {
		if err := r.catalog.FinishRun(recordCtx, runID, catalog.RunTotals{
			FilesIndexed:  res.Files,
			FilesSkipped:  res.Skipped,
			FilesFailed:   res.Failed,
			ChunksIndexed: res.Chunks,
		}); err != nil {
			r.logger.Warn("failed to record run finish", slog.String("error", err.Error()))
		}
	}

	res.Duration = time.Since(runStart)

	threads, source := manager.Threads()
	info := embed.GetInfo(recordCtx, r.embedder)
	r.renderer.Complete(ui.CompletionStats{
		Files:    res.Files,
		Skipped:  res.Skipped,
		Failed:   res.Failed,
		Chunks:   res.Chunks,
		Duration: res.Duration,
		Warnings: res.Warnings,
		Errors:   res.Failed,
		Stages: ui.StageTimings{
			Scan:   timings.scan,
			Filter: timings.filter,
			Index:  timings.index,
		},
		Embedder: ui.EmbedderInfo{
			Provider:   string(info.Provider),
			Model:      info.Model,
			Dimensions: info.Dimensions,
		},
		Pool: ui.PoolInfo{Threads: threads, Source: string(source)},
	})

	r.logger.Info("index_complete",
		slog.Int("files", res.Files),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", res.Failed),
		slog.Int("chunks", res.Chunks),
		slog.Int64("duration_scan_ms", timings.scan.Milliseconds()),
		slog.Int64("duration_filter_ms", timings.filter.Milliseconds()),
		slog.Int64("duration_index_ms", timings.index.Milliseconds()),
		slog.Int64("duration_total_ms", res.Duration.Milliseconds()))

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("indexing interrupted: %w", err)
	}
	return res, nil
}

// scanFiles walks the project tree and collects candidate files.
// Walk-level errors surface as warnings; they skip subtrees without
// failing the run.
func (r *Runner) scanFiles(ctx context.Context, root string) ([]*scanner.FileInfo, int, error) {
	resultCh, err := r.scanner.Scan(ctx, &scanner.Options{
		Root:             root,
		Extensions:       r.chunker.SupportedExtensions(),
		IncludePatterns:  r.config.Paths.Include,
		ExcludePatterns:  r.config.Paths.Exclude,
		RespectGitignore: true,
		MaxFileSize:      int64(r.config.Performance.MaxFileSizeKB) * 1024,
		MaxFiles:         r.config.Performance.MaxFiles,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to scan %s: %w", root, err)
	}

	var files []*scanner.FileInfo
	var warnings int
	for res := range resultCh {
		if res.Err != nil {
			warnings++
			r.renderer.AddError(ui.ErrorEvent{Err: res.Err, IsWarn: true})
			continue
		}
		files = append(files, res.File)
	}
	return files, warnings, nil
}

// filterFiles hashes each candidate and drops files whose content is
// already indexed. Reindex mode keeps every file but still computes
// hashes so the catalog records the indexed content version.
func (r *Runner) filterFiles(ctx context.Context, files []*scanner.FileInfo, reindex bool) ([]*FileTask, int, int) {
	tasks := make([]*FileTask, 0, len(files))
	var skipped, warnings int

	for _, f := range files {
		content, err := os.ReadFile(f.AbsPath)
		if err != nil {
			warnings++
			r.renderer.AddError(ui.ErrorEvent{
				File:   f.Path,
				Err:    fmt.Errorf("failed to read for change check: %w", err),
				IsWarn: true,
			})
			continue
		}
		hash := hashContent(content)

		if !reindex {
			unchanged, err := r.catalog.IsUnchanged(ctx, f.Path, hash)
			if err != nil {
				r.logger.Warn("change check failed, reindexing file",
					slog.String("path", f.Path),
					slog.String("error", err.Error()))
			} else if unchanged {
				skipped++
				continue
			}
		}

		tasks = append(tasks, &FileTask{
			Path:        f.Path,
			AbsPath:     f.AbsPath,
			Size:        f.Size,
			ContentHash: hash,
		})
	}
	return tasks, skipped, warnings
}

// openStore brings the vector store to a writable state: a fresh
// build for new or reindexed projects, an incremental open otherwise.
// Failures here are fatal, unlike per-file errors later in the run.
func (r *Runner) openStore(ctx context.Context, indexDir string, reindex bool) error {
	basePath := StorePath(indexDir)

	if reindex {
		if err := r.catalog.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset catalog: %w", err)
		}
		if err := r.store.BuildIndex(ctx, nil, nil); err != nil {
			return fmt.Errorf("failed to build vector store: %w", err)
		}
		return nil
	}

	dims, err := store.ReadStoreDimensions(basePath)
	if err != nil {
		return apperrors.New(apperrors.ErrCodeStoreOpenFailed,
			"failed to read vector store metadata", err)
	}
	if dims == 0 {
		if err := r.store.BuildIndex(ctx, nil, nil); err != nil {
			return fmt.Errorf("failed to build vector store: %w", err)
		}
		return nil
	}
	if dims != r.embedder.Dimensions() {
		return apperrors.New(apperrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("vector store dimension mismatch: store has %d, embedder %q produces %d",
				dims, r.embedder.ModelName(), r.embedder.Dimensions()), nil).
			WithSuggestion("Run 'cidx index --reindex' to rebuild the store with the current embedder")
	}
	if err := r.store.OpenForIncrementalUpdate(ctx, basePath); err != nil {
		return apperrors.New(apperrors.ErrCodeStoreOpenFailed,
			"failed to open vector store", err)
	}
	return nil
}

// fileWorkers returns the configured file worker count with a sane
// floor.
func (r *Runner) fileWorkers() int {
	if n := r.config.Performance.FileWorkers; n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// hashContent returns the short content hash recorded in the catalog.
func hashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])[:16]
}
