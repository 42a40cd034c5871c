package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jsbattig/code-indexer-sub029/internal/catalog"
	"github.com/jsbattig/code-indexer-sub029/internal/config"
	"github.com/jsbattig/code-indexer-sub029/internal/embed"
	"github.com/jsbattig/code-indexer-sub029/internal/index"
	"github.com/jsbattig/code-indexer-sub029/internal/logging"
	"github.com/jsbattig/code-indexer-sub029/internal/slots"
	"github.com/jsbattig/code-indexer-sub029/internal/store"
	"github.com/jsbattig/code-indexer-sub029/internal/ui"
)

// indexOptions collects the index command's flags.
type indexOptions struct {
	path       string
	plain      bool
	noColor    bool
	reindex    bool
	workers    int
	vecThreads int
	provider   string
	model      string
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a directory for semantic search",
		Long: `Index a directory to enable semantic search over its contents.

This scans files, chunks them into overlapping line windows, embeds
each chunk, and persists the vectors in a local HNSW index.

Change detection:
  Files whose content is unchanged since the last run are skipped.
  Files whose previous run failed are always retried. Use --reindex
  to drop the catalog and rebuild everything from scratch.

Provider Selection:
  (default)           Offline hash embeddings, zero setup
  --provider=ollama   Use an Ollama server for real embeddings`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Ctrl+C cancels the context; files already holding a
			// slot still finish so the store stays consistent.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts.path = "."
			if len(args) > 0 {
				opts.path = args[0]
			}
			return runIndex(ctx, cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Disable the TUI, use plain text output")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().BoolVar(&opts.reindex, "reindex", false, "Rebuild the index from scratch")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Concurrent file workers (0 = use config)")
	cmd.Flags().IntVar(&opts.vecThreads, "vector-threads", 0, "Vectorization threads (0 = use config, then provider default)")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "Embedding provider: static or ollama (default: config)")
	cmd.Flags().StringVar(&opts.model, "model", "", "Embedding model name (default: provider default)")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, opts indexOptions) error {
	// File-only logging so slog output cannot corrupt the renderer.
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if cleanup, err := logging.SetupDefault(logCfg); err == nil {
		defer cleanup()
	}
	// Continue even if logging setup fails - not critical for the CLI

	absPath, err := filepath.Abs(opts.path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	fi, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("failed to access path: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("path is not a directory: %s", absPath)
	}

	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}

	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Flag overrides land on the loaded config before anything is
	// sized from it.
	if opts.workers > 0 {
		cfg.Performance.FileWorkers = opts.workers
	}
	if opts.provider != "" {
		cfg.Embeddings.Provider = opts.provider
	}
	if opts.model != "" {
		cfg.Embeddings.Model = opts.model
	}

	// One tracker shared by the renderer (slot panel) and the runner
	// (slot acquisition).
	tracker := slots.NewTracker(cfg.Performance.FileWorkers)

	uiCfg := ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.plain),
		ui.WithNoColor(opts.noColor),
		ui.WithProjectDir(root),
		ui.WithSlots(tracker),
	)
	renderer := ui.NewRenderer(uiCfg)
	if err := renderer.Start(ctx); err != nil {
		slog.Warn("failed to start progress renderer", slog.String("error", err.Error()))
	}
	defer func() { _ = renderer.Stop() }()

	indexDir := cfg.IndexDir(root)
	if err := os.MkdirAll(indexDir, 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	cat, err := catalog.Open(index.CatalogPath(indexDir))
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	defer func() { _ = cat.Close() }()

	// Check context before potentially blocking embedder init
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	provider := embed.ParseProvider(cfg.Embeddings.Provider)
	renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageScanning,
		Message: fmt.Sprintf("Connecting to %s embedder...", provider),
	})

	// Bounded init so an unreachable provider fails fast instead of
	// hanging the command.
	embedCtx, embedCancel := context.WithTimeout(ctx, 15*time.Second)
	embedder, err := embed.NewEmbedder(embedCtx, provider, embed.Options{
		Model:          cfg.Embeddings.Model,
		Dimensions:     cfg.Embeddings.Dimensions,
		BatchSize:      cfg.Embeddings.BatchSize,
		OllamaHost:     cfg.Embeddings.OllamaHost,
		RequestTimeout: cfg.Embeddings.ParsedRequestTimeout(),
		CacheSize:      cfg.Performance.CacheSize,
	})
	embedCancel()
	if err != nil {
		return fmt.Errorf("embedder initialization failed: %w", err)
	}
	defer func() { _ = embedder.Close() }()

	st, err := store.NewHNSWStore(store.StoreConfig{
		Path:     index.StorePath(indexDir),
		Dim:      embedder.Dimensions(),
		Metric:   cfg.Store.Metric,
		M:        cfg.Store.M,
		EfSearch: cfg.Store.EfSearch,
	})
	if err != nil {
		return fmt.Errorf("failed to create vector store: %w", err)
	}
	defer func() { _ = st.Close() }()

	runner, err := index.NewRunner(index.RunnerDependencies{
		Renderer: renderer,
		Config:   cfg,
		Catalog:  cat,
		Store:    st,
		Embedder: embedder,
		Tracker:  tracker,
	})
	if err != nil {
		return fmt.Errorf("failed to create index runner: %w", err)
	}

	var threadOverride *int
	if opts.vecThreads > 0 {
		threadOverride = &opts.vecThreads
	}

	_, err = runner.Run(ctx, index.RunnerConfig{
		RootDir:        root,
		IndexDir:       indexDir,
		Reindex:        opts.reindex,
		ThreadOverride: threadOverride,
	})
	return err
}
