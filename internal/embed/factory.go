package embed

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderStatic uses hash-based embeddings (offline default, no setup)
	ProviderStatic ProviderType = "static"

	// ProviderOllama uses the Ollama API for embeddings (opt-in, better quality)
	ProviderOllama ProviderType = "ollama"
)

// Options configures embedder construction.
type Options struct {
	// Model is the embedding model name (provider default when empty)
	Model string

	// Dimensions overrides the provider dimension (0 = provider default / auto-detect)
	Dimensions int

	// BatchSize for batch embedding requests
	BatchSize int

	// OllamaHost is the Ollama API endpoint
	OllamaHost string

	// RequestTimeout applies per API request
	RequestTimeout time.Duration

	// CacheSize is the LRU embedding cache capacity (0 = default)
	CacheSize int
}

// NewEmbedder creates an embedder for the given provider.
// The CIDX_EMBED_PROVIDER environment variable overrides the provider:
//   - "static": hash-based embeddings, no external dependencies
//   - "ollama": Ollama HTTP API, wrapped with retry backoff
//
// Every embedder is wrapped with an LRU cache so unchanged chunks skip
// recomputation. Set CIDX_EMBED_CACHE=false to disable caching.
func NewEmbedder(ctx context.Context, provider ProviderType, opts Options) (Embedder, error) {
	// Environment variable override takes precedence
	if envProvider := os.Getenv("CIDX_EMBED_PROVIDER"); envProvider != "" {
		provider = ParseProvider(envProvider)
	}

	var embedder Embedder
	switch provider {
	case ProviderOllama:
		cfg := DefaultOllamaConfig()
		if opts.Model != "" {
			cfg.Model = opts.Model
		}
		if opts.OllamaHost != "" {
			cfg.Host = opts.OllamaHost
		}
		if host := os.Getenv("CIDX_OLLAMA_HOST"); host != "" {
			cfg.Host = host
		}
		if opts.Dimensions > 0 {
			cfg.Dimensions = opts.Dimensions
		}
		if opts.BatchSize > 0 {
			cfg.BatchSize = opts.BatchSize
		}
		if opts.RequestTimeout > 0 {
			cfg.Timeout = opts.RequestTimeout
		}

		inner, err := NewOllamaEmbedder(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("ollama unavailable: %w\n\nTo fix:\n  1. Start Ollama: ollama serve\n  2. Or use offline mode: cidx index --provider=static", err)
		}
		embedder = NewRetryEmbedder(inner, DefaultRetryConfig())

	case ProviderStatic:
		embedder = NewStaticEmbedderWithDimensions(opts.Dimensions)

	default:
		// Unrecognized or empty: the static embedder always works offline
		embedder = NewStaticEmbedderWithDimensions(opts.Dimensions)
	}

	// Wrap with cache unless disabled
	if !isCacheDisabled() {
		embedder = NewCachedEmbedder(embedder, opts.CacheSize)
	}

	return embedder, nil
}

// isCacheDisabled checks if the embedding cache is disabled via environment.
func isCacheDisabled() bool {
	v := strings.ToLower(os.Getenv("CIDX_EMBED_CACHE"))
	return v == "false" || v == "0" || v == "off" || v == "disabled"
}

// ParseProvider converts a string to ProviderType
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(s) {
	case "ollama":
		return ProviderOllama
	case "static":
		return ProviderStatic
	default:
		// Static works everywhere with no setup
		return ProviderStatic
	}
}

// String returns the string representation of ProviderType
func (p ProviderType) String() string {
	return string(p)
}

// ValidProviders returns all valid provider names
func ValidProviders() []string {
	return []string{
		string(ProviderStatic),
		string(ProviderOllama),
	}
}

// IsValidProvider checks if a provider name is valid
func IsValidProvider(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range ValidProviders() {
		if lower == p {
			return true
		}
	}
	return false
}

// EmbedderInfo contains information about an embedder
type EmbedderInfo struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	Available  bool
}

// GetInfo returns information about an embedder
func GetInfo(ctx context.Context, embedder Embedder) EmbedderInfo {
	info := EmbedderInfo{
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
		Available:  embedder.Available(ctx),
	}

	// Unwrap decorators to find the underlying provider type
	inner := embedder
	for {
		if c, ok := inner.(*CachedEmbedder); ok {
			inner = c.Inner()
			continue
		}
		if r, ok := inner.(*RetryEmbedder); ok {
			inner = r.Inner()
			continue
		}
		break
	}

	switch inner.(type) {
	case *OllamaEmbedder:
		info.Provider = ProviderOllama
	default:
		info.Provider = ProviderStatic
	}

	return info
}
