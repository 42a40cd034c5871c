package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jsbattig/code-indexer-sub029/internal/catalog"
	"github.com/jsbattig/code-indexer-sub029/internal/config"
	"github.com/jsbattig/code-indexer-sub029/internal/embed"
	"github.com/jsbattig/code-indexer-sub029/internal/index"
	"github.com/jsbattig/code-indexer-sub029/internal/store"
	"github.com/jsbattig/code-indexer-sub029/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and status",
		Long: `Display information about the current index including:
  - Number of indexed files and chunks
  - Vector store capacity and utilization
  - Storage sizes (vectors, catalog)
  - Embedder status (type, model, availability)`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}
	indexDir := cfg.IndexDir(root)

	if !fileExists(index.CatalogPath(indexDir)) {
		return fmt.Errorf("no index found in %s\nRun 'cidx index' to create one", root)
	}

	info, err := collectStatus(ctx, root, indexDir, cfg)
	if err != nil {
		return fmt.Errorf("failed to collect status: %w", err)
	}

	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor())
	if jsonOutput {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}

func collectStatus(ctx context.Context, root, indexDir string, cfg *config.Config) (ui.StatusInfo, error) {
	info := ui.StatusInfo{ProjectRoot: root}

	cat, err := catalog.Open(index.CatalogPath(indexDir))
	if err != nil {
		return info, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer func() { _ = cat.Close() }()

	if summary, err := cat.Summary(ctx); err == nil {
		info.TotalFiles = int64(summary.IndexedFiles)
		info.FailedFiles = int64(summary.FailedFiles)
		info.TotalChunks = int64(summary.TotalChunks)
	}
	if last, err := cat.LastRun(ctx); err == nil && last != nil && !last.FinishedAt.IsZero() {
		info.LastIndexed = last.FinishedAt
	}

	basePath := index.StorePath(indexDir)
	meta, err := store.ReadStoreMetadata(basePath)
	if err != nil {
		return info, fmt.Errorf("failed to read store metadata: %w", err)
	}
	info.VectorCount = meta.VectorCount
	info.VectorDim = meta.VectorDim
	info.MaxElements = meta.MaxElements
	info.Metric = meta.DistanceMetric
	info.Generation = meta.Generation
	if meta.MaxElements > 0 {
		info.Utilization = float64(meta.VectorCount) / float64(meta.MaxElements)
	}

	info.VectorSize = getFileSize(basePath + ".meta")
	if meta.GraphFile != "" {
		info.VectorSize += getFileSize(filepath.Join(filepath.Dir(basePath), meta.GraphFile))
	}
	info.CatalogSize = getFileSize(index.CatalogPath(indexDir))
	info.TotalSize = info.VectorSize + info.CatalogSize

	provider := embed.ParseProvider(cfg.Embeddings.Provider)
	info.EmbedderType = string(provider)
	info.EmbedderModel = cfg.Embeddings.Model
	info.EmbedderStatus = "ready"

	// Only remote providers can actually be down; the ping is bounded
	// so status never hangs on a dead server.
	if provider == embed.ProviderOllama {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		embedder, err := embed.NewEmbedder(pingCtx, provider, embed.Options{
			Model:          cfg.Embeddings.Model,
			OllamaHost:     cfg.Embeddings.OllamaHost,
			RequestTimeout: 3 * time.Second,
		})
		if err != nil {
			info.EmbedderStatus = "offline"
		} else {
			if !embedder.Available(pingCtx) {
				info.EmbedderStatus = "offline"
			}
			info.EmbedderModel = embedder.ModelName()
			_ = embedder.Close()
		}
	} else if info.EmbedderModel == "" {
		info.EmbedderModel = embed.NewStaticEmbedder().ModelName()
	}

	return info, nil
}

// fileExists returns true if the path exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// getFileSize returns the size of a file in bytes, 0 if unreadable.
func getFileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}
