package vectorize

import (
	"runtime"

	"github.com/jsbattig/code-indexer-sub029/internal/embed"
)

// ThreadSource identifies which precedence tier supplied the worker
// count. The tier is reported alongside the count so operators can see
// where a surprising value came from.
type ThreadSource string

const (
	// SourceOverride means an explicit per-run override was used.
	SourceOverride ThreadSource = "override"
	// SourceConfig means the persisted per-provider config value was used.
	SourceConfig ThreadSource = "config"
	// SourceDefault means the hard-coded provider default was used.
	SourceDefault ThreadSource = "default"
)

// DefaultThreads returns the hard-coded worker default for a provider.
// Ollama is bounded by its connection pool; CPU-bound providers scale
// with the machine.
func DefaultThreads(provider string) int {
	switch provider {
	case "ollama":
		return embed.OllamaPoolSize
	default:
		return runtime.NumCPU()
	}
}

// ResolveThreadCount applies the worker-count precedence chain:
// explicit override, then persisted config, then the provider default.
// A tier must hold a positive value to be taken. Resolution happens
// once, at pool construction.
func ResolveThreadCount(override, configured *int, def int) (int, ThreadSource) {
	if override != nil && *override > 0 {
		return *override, SourceOverride
	}
	if configured != nil && *configured > 0 {
		return *configured, SourceConfig
	}
	if def <= 0 {
		def = 1
	}
	return def, SourceDefault
}
