package chunk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// LineChunkerOptions configures the line chunker behavior.
type LineChunkerOptions struct {
	WindowLines  int // Lines per chunk (default: DefaultWindowLines)
	OverlapLines int // Lines repeated from the previous chunk (default: DefaultOverlapLines)
}

// LineChunker splits files into fixed-size line windows with overlap.
// It is language-agnostic: every file is treated as plain lines, with
// the extension used only to tag the chunk's language.
type LineChunker struct {
	options LineChunkerOptions
}

// languageByExtension maps file extensions to language tags.
var languageByExtension = map[string]string{
	".go":    "go",
	".ts":    "typescript",
	".tsx":   "typescript",
	".js":    "javascript",
	".jsx":   "javascript",
	".py":    "python",
	".rb":    "ruby",
	".rs":    "rust",
	".java":  "java",
	".kt":    "kotlin",
	".swift": "swift",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".php":   "php",
	".scala": "scala",
	".sh":    "shell",
	".bash":  "shell",
	".sql":   "sql",
	".html":  "html",
	".css":   "css",
	".json":  "json",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".md":    "markdown",
	".mdx":   "markdown",
	".txt":   "text",
}

// NewLineChunker creates a new line chunker with default options.
func NewLineChunker() *LineChunker {
	return NewLineChunkerWithOptions(LineChunkerOptions{})
}

// NewLineChunkerWithOptions creates a new line chunker with custom options.
// Invalid combinations fall back to the defaults.
func NewLineChunkerWithOptions(opts LineChunkerOptions) *LineChunker {
	if opts.WindowLines <= 0 {
		opts.WindowLines = DefaultWindowLines
	}
	if opts.OverlapLines < 0 {
		opts.OverlapLines = DefaultOverlapLines
	}
	if opts.OverlapLines >= opts.WindowLines {
		opts.OverlapLines = opts.WindowLines / 4
	}
	return &LineChunker{options: opts}
}

// SupportedExtensions returns file extensions this chunker handles.
func (c *LineChunker) SupportedExtensions() []string {
	exts := make([]string, 0, len(languageByExtension))
	for ext := range languageByExtension {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Chunk splits a file into overlapping line windows.
// Empty or whitespace-only files produce no chunks and no error.
func (c *LineChunker) Chunk(_ context.Context, file *FileInput) ([]*Chunk, error) {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	lines := strings.Split(content, "\n")
	// Drop a trailing empty line from a final newline so it doesn't
	// spill into a window of its own.
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return nil, nil
	}

	language := file.Language
	if language == "" {
		language = DetectLanguage(file.Path)
	}

	// lineOffsets[i] is the byte offset where line i starts.
	lineOffsets := make([]int, len(lines))
	offset := 0
	for i, line := range lines {
		lineOffsets[i] = offset
		offset += len(line) + 1 // +1 for the newline
	}

	window := c.options.WindowLines
	overlap := c.options.OverlapLines

	var chunks []*Chunk
	start := 0
	for {
		end := start + window
		if end > len(lines) {
			end = len(lines)
		}

		text := strings.Join(lines[start:end], "\n")
		chunks = append(chunks, &Chunk{
			ID:         generateChunkID(file.Path, text),
			FilePath:   file.Path,
			Text:       text,
			ChunkIndex: len(chunks),
			StartByte:  lineOffsets[start],
			EndByte:    lineOffsets[start] + len(text),
			StartLine:  start + 1,
			EndLine:    end,
			Language:   language,
		})

		if end == len(lines) {
			break
		}
		// Overlap < window guarantees forward progress.
		start = end - overlap
	}

	for _, ch := range chunks {
		ch.TotalChunks = len(chunks)
	}

	return chunks, nil
}

// DetectLanguage returns the language tag for a file path, or "text"
// when the extension is unknown.
func DetectLanguage(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := languageByExtension[ext]; ok {
		return lang
	}
	return "text"
}

// generateChunkID generates a unique chunk identifier.
// Properties:
//   - Deterministic: same file and content = same ID (idempotent re-index)
//   - Different content in same file = different ID (triggers re-embedding)
//   - Same content in different files = different IDs (preserves file context)
func generateChunkID(filePath string, content string) string {
	// Hash the content first
	contentHash := sha256.Sum256([]byte(content))
	contentHashStr := hex.EncodeToString(contentHash[:])[:16]

	// Combine with file path for uniqueness per file
	input := fmt.Sprintf("%s:%s", filePath, contentHashStr)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16]
}

var _ Chunker = (*LineChunker)(nil)
