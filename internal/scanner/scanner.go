// Package scanner discovers indexable files under a repository root.
// It walks the tree once, applies .gitignore rules, exclusion
// patterns, and the extension allowlist, and streams results so the
// pipeline can start working before the walk finishes. Binary files,
// oversized files, generated files, and anything that looks like a
// credential are never emitted.
package scanner

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jsbattig/code-indexer-sub029/internal/gitignore"
)

// DefaultMaxFileSize is the size cap for indexable files (1MB).
// Larger files are almost always data or generated output, not source.
const DefaultMaxFileSize = 1024 * 1024

// gitignoreCacheSize bounds the matcher cache so trees with very many
// nested .gitignore files cannot grow memory without limit.
const gitignoreCacheSize = 1000

// FileInfo contains metadata about a discovered file.
type FileInfo struct {
	Path    string // Relative to the scan root
	AbsPath string // Absolute path
	Size    int64  // File size in bytes
	ModTime time.Time
}

// Result is one streamed scan result. Err carries walk-level failures;
// per-file skips are silent.
type Result struct {
	File *FileInfo
	Err  error
}

// Options configures the scanner behavior.
type Options struct {
	// Root is the directory to scan. Empty means the current directory.
	Root string

	// Extensions is the allowlist of file extensions (including the
	// dot). Empty disables the allowlist and admits every extension.
	Extensions []string

	// IncludePatterns restricts files to those matching any pattern
	// (empty = all).
	IncludePatterns []string

	// ExcludePatterns skips matching files and directories.
	ExcludePatterns []string

	// RespectGitignore applies .gitignore rules found in the tree.
	RespectGitignore bool

	// MaxFileSize is the maximum file size in bytes (0 = DefaultMaxFileSize).
	MaxFileSize int64

	// MaxFiles stops the walk after this many files (0 = unlimited).
	MaxFiles int
}

// Scanner walks a repository tree and streams indexable files.
type Scanner struct {
	// gitignoreCache holds one parsed matcher per directory that has
	// a .gitignore file. The cache is shared across Scan calls.
	gitignoreCache *lru.Cache[string, *gitignore.Matcher]
	cacheMu        sync.RWMutex
}

// New creates a new Scanner.
func New() (*Scanner, error) {
	cache, err := lru.New[string, *gitignore.Matcher](gitignoreCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create gitignore cache: %w", err)
	}
	return &Scanner{gitignoreCache: cache}, nil
}

// Scan discovers indexable files under opts.Root. It returns a channel
// that streams files as they are found; the channel is closed when the
// walk completes.
func (s *Scanner) Scan(ctx context.Context, opts *Options) (<-chan Result, error) {
	if opts == nil {
		opts = &Options{}
	}

	root := opts.Root
	if root == "" {
		root = "."
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", absRoot)
	}

	maxFileSize := opts.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}

	allowed := make(map[string]struct{}, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		allowed[strings.ToLower(ext)] = struct{}{}
	}

	results := make(chan Result, 64)

	go func() {
		defer close(results)
		s.walk(ctx, absRoot, opts, allowed, maxFileSize, results)
	}()

	return results, nil
}

// walk performs the directory traversal.
func (s *Scanner) walk(ctx context.Context, absRoot string, opts *Options, allowed map[string]struct{}, maxFileSize int64, results chan<- Result) {
	emitted := 0

	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return nil // Skip entries we can't access
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil || relPath == "." {
			return nil
		}

		if d.IsDir() {
			if shouldSkipDir(d.Name(), relPath, opts.ExcludePatterns) {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks are never followed.
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		baseName := d.Name()

		if len(allowed) > 0 {
			if _, ok := allowed[strings.ToLower(filepath.Ext(baseName))]; !ok {
				return nil
			}
		}

		if isSensitiveFile(baseName) {
			return nil
		}

		for _, pattern := range opts.ExcludePatterns {
			if matchPattern(relPath, baseName, pattern) {
				return nil
			}
		}
		if opts.RespectGitignore && s.isGitignored(relPath, absRoot) {
			return nil
		}
		if len(opts.IncludePatterns) > 0 && !matchesAny(relPath, baseName, opts.IncludePatterns) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > maxFileSize {
			return nil
		}

		if isBinaryFile(path) || isGeneratedFile(path) {
			return nil
		}

		if opts.MaxFiles > 0 && emitted >= opts.MaxFiles {
			return fs.SkipAll
		}

		fileInfo := &FileInfo{
			Path:    relPath,
			AbsPath: path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}

		select {
		case results <- Result{File: fileInfo}:
			emitted++
		case <-ctx.Done():
			return ctx.Err()
		}

		return nil
	})

	if err != nil && err != context.Canceled {
		select {
		case results <- Result{Err: err}:
		case <-ctx.Done():
		}
	}
}

// skipDirNames are directory names that are never scanned.
var skipDirNames = map[string]struct{}{
	"node_modules": {},
	"vendor":       {},
	"dist":         {},
	"build":        {},
	"target":       {},
	"__pycache__":  {},
}

// shouldSkipDir reports whether a directory is excluded. Hidden
// directories cover VCS metadata and the index directory itself.
func shouldSkipDir(name, relPath string, excludePatterns []string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	if _, ok := skipDirNames[name]; ok {
		return true
	}
	for _, pattern := range excludePatterns {
		if matchDirPattern(relPath, name, pattern) {
			return true
		}
	}
	return false
}

// sensitiveFilePatterns are never indexed, regardless of other options.
var sensitiveFilePatterns = []string{
	".env",
	".env.*",
	"*.pem",
	"*.key",
	"*.p12",
	"*.pfx",
	"*credentials*",
	"*secrets*",
	"*password*",
	".netrc",
	".npmrc",
	".pypirc",
	"id_rsa",
	"id_dsa",
	"id_ecdsa",
	"id_ed25519",
}

// isSensitiveFile reports whether a file name looks like a credential.
func isSensitiveFile(baseName string) bool {
	lower := strings.ToLower(baseName)
	for _, pattern := range sensitiveFilePatterns {
		if matched, _ := filepath.Match(pattern, lower); matched {
			return true
		}
	}
	return false
}

// matchDirPattern checks a directory against one exclusion pattern.
// "**/name/**" matches the name anywhere in the path; "dir/**" matches
// the directory and everything below it.
func matchDirPattern(relPath, name, pattern string) bool {
	if strings.HasPrefix(pattern, "**/") && strings.HasSuffix(pattern, "/**") {
		return name == strings.TrimSuffix(strings.TrimPrefix(pattern, "**/"), "/**")
	}
	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return relPath == prefix || strings.HasPrefix(relPath, prefix+string(filepath.Separator))
	}
	return relPath == pattern
}

// matchPattern checks a file against one pattern. Supports the forms
// used by the default exclusion list: "**/dir/**", "**/*.ext",
// "dir/**", and bare globs on the base name or the relative path.
func matchPattern(relPath, baseName, pattern string) bool {
	switch {
	case strings.HasPrefix(pattern, "**/") && strings.HasSuffix(pattern, "/**"):
		name := strings.TrimSuffix(strings.TrimPrefix(pattern, "**/"), "/**")
		for _, part := range strings.Split(relPath, string(filepath.Separator)) {
			if part == name {
				return true
			}
		}
		return false
	case strings.HasPrefix(pattern, "**/"):
		matched, _ := filepath.Match(strings.TrimPrefix(pattern, "**/"), baseName)
		return matched
	case strings.HasSuffix(pattern, "/**"):
		prefix := strings.TrimSuffix(pattern, "/**")
		return strings.HasPrefix(relPath, prefix+string(filepath.Separator))
	default:
		if matched, _ := filepath.Match(pattern, baseName); matched {
			return true
		}
		matched, _ := filepath.Match(pattern, relPath)
		return matched
	}
}

func matchesAny(relPath, baseName string, patterns []string) bool {
	for _, pattern := range patterns {
		if matchPattern(relPath, baseName, pattern) {
			return true
		}
	}
	return false
}

// isGitignored checks a file against the root .gitignore and every
// .gitignore on the path down to the file's directory. Rules from a
// nested file apply only beneath that directory.
func (s *Scanner) isGitignored(relPath, absRoot string) bool {
	if m := s.getGitignoreMatcher(absRoot, ""); m != nil && m.Match(relPath, false) {
		return true
	}

	parts := strings.Split(filepath.Dir(relPath), string(filepath.Separator))
	currentDir := absRoot
	currentBase := ""
	for _, part := range parts {
		if part == "." {
			continue
		}
		currentDir = filepath.Join(currentDir, part)
		if currentBase == "" {
			currentBase = part
		} else {
			currentBase = filepath.Join(currentBase, part)
		}
		if m := s.getGitignoreMatcher(currentDir, currentBase); m != nil && m.Match(relPath, false) {
			return true
		}
	}
	return false
}

// getGitignoreMatcher returns the cached matcher for a directory,
// parsing its .gitignore on first use. Nil means the directory has no
// .gitignore or it could not be read.
func (s *Scanner) getGitignoreMatcher(dir, base string) *gitignore.Matcher {
	s.cacheMu.RLock()
	matcher, ok := s.gitignoreCache.Get(dir)
	s.cacheMu.RUnlock()
	if ok {
		return matcher
	}

	ignorePath := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(ignorePath); os.IsNotExist(err) {
		return nil
	}

	matcher = gitignore.New()
	if err := matcher.AddFromFile(ignorePath, filepath.ToSlash(base)); err != nil {
		return nil
	}

	s.cacheMu.Lock()
	s.gitignoreCache.Add(dir, matcher)
	s.cacheMu.Unlock()
	return matcher
}

// isBinaryFile checks for null bytes in the first 512 bytes.
func isBinaryFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil {
		return false
	}

	return bytes.Contains(buf[:n], []byte{0})
}

// generatedMarkers identify auto-generated files by their header.
var generatedMarkers = []string{
	"Code generated",
	"DO NOT EDIT",
	"Generated by",
	"@generated",
	"AUTO-GENERATED",
}

// isGeneratedFile checks the first 1KB for generated-file markers.
// Generated files add noise to search results without adding meaning.
func isGeneratedFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, 1024)
	n, err := f.Read(buf)
	if err != nil {
		return false
	}

	content := string(buf[:n])
	for _, marker := range generatedMarkers {
		if strings.Contains(content, marker) {
			return true
		}
	}
	return false
}
