package vectorize

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jsbattig/code-indexer-sub029/internal/embed"
)

func intPtr(n int) *int { return &n }

// ============ TS01: Precedence Chain ============

func TestResolveThreadCount_Precedence(t *testing.T) {
	tests := []struct {
		name       string
		override   *int
		configured *int
		def        int
		wantCount  int
		wantSource ThreadSource
	}{
		{"override wins over config and default", intPtr(5), intPtr(3), 8, 5, SourceOverride},
		{"config wins over default", nil, intPtr(3), 8, 3, SourceConfig},
		{"default when nothing set", nil, nil, 8, 8, SourceDefault},
		{"zero override falls through to config", intPtr(0), intPtr(3), 8, 3, SourceConfig},
		{"negative override falls through", intPtr(-2), intPtr(3), 8, 3, SourceConfig},
		{"zero config falls through to default", nil, intPtr(0), 8, 8, SourceDefault},
		{"override wins with no config", intPtr(2), nil, 8, 2, SourceOverride},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count, source := ResolveThreadCount(tt.override, tt.configured, tt.def)
			assert.Equal(t, tt.wantCount, count)
			assert.Equal(t, tt.wantSource, source)
		})
	}
}

func TestResolveThreadCount_GuardsBadDefault(t *testing.T) {
	count, source := ResolveThreadCount(nil, nil, 0)
	assert.Equal(t, 1, count)
	assert.Equal(t, SourceDefault, source)
}

// ============ TS02: Provider Defaults ============

func TestDefaultThreads(t *testing.T) {
	assert.Equal(t, embed.OllamaPoolSize, DefaultThreads("ollama"))
	assert.Equal(t, runtime.NumCPU(), DefaultThreads("static"))
	assert.Equal(t, runtime.NumCPU(), DefaultThreads(""))
	assert.Equal(t, runtime.NumCPU(), DefaultThreads("something-else"))
}
