package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestProject creates a small project with a config marker so
// the project root resolves to the directory itself.
func writeTestProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	cfgYAML := "chunking:\n  max_lines: 2\n  overlap_lines: 0\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".cidx.yaml"), []byte(cfgYAML), 0o644))

	// Four lines per file, so the two-line window yields two chunks
	// each.
	files := map[string]string{
		"main.go": "package main\n\nfunc main() {\n}\n",
		"util.go": "package main\n\n// helper answers\nfunc helper() int { return 42 }\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

// isolateHome keeps test runs from touching the real home directory
// (log files, user config).
func isolateHome(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestIndexCmd_FullRun(t *testing.T) {
	// Given: a two-file project
	isolateHome(t)
	dir := writeTestProject(t)

	// When: indexing with plain output
	out, err := runCLI(t, "index", dir, "--plain", "--no-color")

	// Then: the run completes and the index artifacts exist
	require.NoError(t, err, "output:\n%s", out)
	assert.Contains(t, out, "Complete: 2 files")
	assert.Contains(t, out, "chunks indexed")

	indexDir := filepath.Join(dir, ".cidx")
	assert.FileExists(t, filepath.Join(indexDir, "catalog.db"))
	assert.FileExists(t, filepath.Join(indexDir, "vectors.meta"))
}

func TestIndexCmd_SecondRunSkipsUnchanged(t *testing.T) {
	isolateHome(t)
	dir := writeTestProject(t)

	_, err := runCLI(t, "index", dir, "--plain", "--no-color")
	require.NoError(t, err)

	out, err := runCLI(t, "index", dir, "--plain", "--no-color")

	require.NoError(t, err)
	assert.Contains(t, out, "Complete: 0 files")
	assert.Contains(t, out, "(2 unchanged)")
}

func TestIndexCmd_ReindexRebuilds(t *testing.T) {
	isolateHome(t)
	dir := writeTestProject(t)

	_, err := runCLI(t, "index", dir, "--plain", "--no-color")
	require.NoError(t, err)

	out, err := runCLI(t, "index", dir, "--plain", "--no-color", "--reindex")

	require.NoError(t, err)
	assert.Contains(t, out, "Complete: 2 files")
	assert.NotContains(t, out, "unchanged")
}

func TestIndexCmd_VectorThreadsOverride(t *testing.T) {
	isolateHome(t)
	dir := writeTestProject(t)

	out, err := runCLI(t, "index", dir, "--plain", "--no-color", "--vector-threads", "2")

	require.NoError(t, err)
	assert.Contains(t, out, "2 threads (override)")
}

func TestIndexCmd_StaticProviderFlag(t *testing.T) {
	isolateHome(t)
	dir := writeTestProject(t)

	out, err := runCLI(t, "index", dir, "--plain", "--no-color", "--provider", "static")

	require.NoError(t, err)
	assert.Contains(t, out, "Backend: static")
}

func TestIndexCmd_RejectsMissingPath(t *testing.T) {
	isolateHome(t)

	_, err := runCLI(t, "index", filepath.Join(t.TempDir(), "does-not-exist"), "--plain")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to access path")
}

func TestIndexCmd_RejectsFilePath(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	file := filepath.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("not a directory\n"), 0o644))

	_, err := runCLI(t, "index", file, "--plain")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "path is not a directory")
}

func TestIndexCmd_PlainOutputHasNoANSI(t *testing.T) {
	isolateHome(t)
	dir := writeTestProject(t)

	out, err := runCLI(t, "index", dir, "--plain", "--no-color")

	require.NoError(t, err)
	assert.False(t, strings.Contains(out, "\x1b["), "plain output should not contain ANSI escapes")
}
