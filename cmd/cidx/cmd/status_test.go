package cmd

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir switches the working directory for the test and restores it
// afterwards; status resolves the project from the current directory.
func chdir(t *testing.T, dir string) {
	t.Helper()
	oldDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(oldDir) })
}

func TestStatusCmd_NoIndex(t *testing.T) {
	isolateHome(t)
	chdir(t, t.TempDir())

	_, err := runCLI(t, "status")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no index found")
	assert.Contains(t, err.Error(), "cidx index")
}

func TestStatusCmd_AfterIndexing(t *testing.T) {
	// Given: an indexed project
	isolateHome(t)
	dir := writeTestProject(t)
	_, err := runCLI(t, "index", dir, "--plain", "--no-color")
	require.NoError(t, err)

	// When: running status from inside the project
	chdir(t, dir)
	out, err := runCLI(t, "status")

	// Then: it reports files, store capacity, and embedder state
	require.NoError(t, err)
	assert.Contains(t, out, "Index Status:")
	assert.Contains(t, out, "Files:        2")
	assert.Contains(t, out, "capacity")
	assert.Contains(t, out, "ready")
}

func TestStatusCmd_JSONOutput(t *testing.T) {
	isolateHome(t)
	dir := writeTestProject(t)
	_, err := runCLI(t, "index", dir, "--plain", "--no-color")
	require.NoError(t, err)

	chdir(t, dir)
	out, err := runCLI(t, "status", "--json")

	require.NoError(t, err)
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info), "status --json should emit valid JSON")

	assert.EqualValues(t, 2, info["total_files"])
	assert.EqualValues(t, 4, info["vector_count"])
	assert.Equal(t, "static", info["embedder_type"])
	assert.Equal(t, "cos", info["distance_metric"])
}
