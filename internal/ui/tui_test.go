package ui

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsbattig/code-indexer-sub029/internal/slots"
)

func TestNewTUIRenderer_ReturnsErrorForNonTTY(t *testing.T) {
	// Given: a non-TTY buffer
	buf := &bytes.Buffer{}
	cfg := NewConfig(buf)

	// When: creating TUI renderer
	r, err := NewTUIRenderer(cfg)

	// Then: returns error (can't create TUI for non-TTY)
	assert.Error(t, err)
	assert.Nil(t, r)
}

func TestIndexingModel_InitialView(t *testing.T) {
	// Given: a new indexing model
	model := newIndexingModel(nil, "")

	// When: getting initial view
	view := model.View()

	// Then: view contains stage indicators
	assert.Contains(t, view, "Scan")
	assert.Contains(t, view, "Filter")
	assert.Contains(t, view, "Index")
}

func TestIndexingModel_ProgressDisplay(t *testing.T) {
	// Given: a model with file progress
	model := newIndexingModel(nil, "")
	model.stage = StageIndexing
	model.current = 50
	model.total = 100

	// When: rendering view
	view := model.View()

	// Then: progress counts are shown
	assert.Contains(t, view, "50")
	assert.Contains(t, view, "100")
	assert.Contains(t, view, "files")
}

func TestIndexingModel_SlotRows(t *testing.T) {
	// Given: a tracker with two occupied slots out of three
	tracker := slots.NewTracker(3)
	_, err := tracker.AcquireSlot(context.Background(), slots.SlotData{
		Filename: "src/server/handler.go",
	})
	require.NoError(t, err)
	id2, err := tracker.AcquireSlot(context.Background(), slots.SlotData{
		Filename: "src/client/app.ts",
	})
	require.NoError(t, err)
	tracker.UpdateSlot(id2, slots.StatusVectorizing)

	model := newIndexingModel(tracker, "")
	model.stage = StageIndexing
	model.total = 10

	// When: rendering view
	view := model.View()

	// Then: occupied slots show filenames and statuses, free slot shows idle
	assert.Contains(t, view, "handler.go")
	assert.Contains(t, view, "app.ts")
	assert.Contains(t, view, "vectorizing")
	assert.Contains(t, view, "idle")
}

func TestIndexingModel_ProjectDirInHeader(t *testing.T) {
	// Given: a model with project dir
	model := newIndexingModel(nil, "/home/dev/project")

	// When: rendering view
	view := model.View()

	// Then: header contains the path
	assert.Contains(t, view, "/home/dev/project")
}

func TestIndexingModel_ErrorCountInStatusBar(t *testing.T) {
	// Given: a model that received error and warning events
	model := newIndexingModel(nil, "")
	updated, _ := model.Update(errorMsg{File: "broken.go", Err: assert.AnError})
	model = updated.(*indexingModel)
	updated, _ = model.Update(errorMsg{File: "odd.go", Err: assert.AnError, IsWarn: true})
	model = updated.(*indexingModel)

	// When: rendering view
	view := model.View()

	// Then: counts appear in status bar and recent failure listed
	assert.Contains(t, view, "1 failed")
	assert.Contains(t, view, "1 warnings")
	assert.Contains(t, view, "broken.go")
}

func TestIndexingModel_CompleteMsgQuits(t *testing.T) {
	// Given: a running model
	model := newIndexingModel(nil, "")

	// When: receiving completion
	updated, cmd := model.Update(completeMsg{Files: 100, Chunks: 500})
	model = updated.(*indexingModel)

	// Then: model is complete, quit command issued, view shows summary
	assert.True(t, model.complete)
	require.NotNil(t, cmd)
	view := model.View()
	assert.Contains(t, view, "Indexing Complete")
	assert.Contains(t, view, "100")
	assert.Contains(t, view, "500")
}

func TestIndexingModel_CompleteShowsPoolTier(t *testing.T) {
	// Given: a completed model with pool info
	model := newIndexingModel(nil, "")
	model.complete = true
	model.stats = CompletionStats{
		Files: 4,
		Pool:  PoolInfo{Threads: 5, Source: "override"},
	}

	// When: rendering view
	view := model.View()

	// Then: thread count and tier shown
	assert.Contains(t, view, "5")
	assert.Contains(t, view, "override")
}

func TestIndexingModel_StageChangeResetsETA(t *testing.T) {
	// Given: a model mid-stage with a smoothed ETA
	model := newIndexingModel(nil, "")
	model.stage = StageScanning
	model.lastETA = 42 * time.Second

	// When: a progress event moves to a new stage
	updated, _ := model.Update(progressUpdateMsg{Stage: StageIndexing, Total: 10})
	model = updated.(*indexingModel)

	// Then: smoothing state reset
	assert.Equal(t, StageIndexing, model.stage)
	assert.Equal(t, time.Duration(0), model.lastETA)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{90 * time.Second, "1m 30s"},
		{2 * time.Minute, "2m"},
		{90 * time.Minute, "1h 30m"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatDuration(tt.d))
		})
	}
}

func TestTruncateFilePath_Short(t *testing.T) {
	// Given: a short path
	path := "src/main.go"

	// When: truncating
	result := truncateFilePath(path, 50)

	// Then: unchanged
	assert.Equal(t, path, result)
}

func TestTruncateFilePath_Long(t *testing.T) {
	// Given: a long path
	path := "src/components/very/deeply/nested/directory/file.go"

	// When: truncating to 30 chars
	result := truncateFilePath(path, 30)

	// Then: truncated with ellipsis, filename kept
	assert.LessOrEqual(t, len(result), 30)
	assert.Contains(t, result, "...")
	assert.Contains(t, result, "file.go")
}

func TestTruncateFilePath_Empty(t *testing.T) {
	assert.Equal(t, "", truncateFilePath("", 50))
}
