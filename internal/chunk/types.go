package chunk

import (
	"context"
)

// Chunk size defaults, in lines.
const (
	DefaultWindowLines  = 120
	DefaultOverlapLines = 20
)

// Chunk is an embeddable unit of file content.
type Chunk struct {
	ID          string // SHA256(file_path + content hash)[:16]
	FilePath    string // Relative to project root
	Text        string // Chunk content
	ChunkIndex  int    // 0-based position within the file
	TotalChunks int    // Total chunks produced for the file
	StartByte   int    // Offset of the first byte in the original file
	EndByte     int    // Offset one past the last byte
	StartLine   int    // 1-indexed
	EndLine     int    // Inclusive
	Language    string // go, typescript, python, etc.
}

// FileInput is input for the Chunker interface.
type FileInput struct {
	Path     string // Relative path
	Content  []byte // File content
	Language string // Optional - detected from extension when empty
}

// Chunker is the interface for splitting files into chunks.
// A nil chunk slice with a nil error is valid: the file produced
// nothing embeddable.
type Chunker interface {
	// Chunk splits a file into chunks.
	Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error)

	// SupportedExtensions returns file extensions this chunker handles.
	SupportedExtensions() []string
}
