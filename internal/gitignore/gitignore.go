package gitignore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// Matcher evaluates gitignore rules against slash-separated paths
// relative to the repository root. Rules apply in order and the last
// matching rule wins, so a negation can re-admit a path an earlier
// rule ignored.
type Matcher struct {
	mu    sync.RWMutex
	rules []rule
}

// rule is one compiled pattern.
type rule struct {
	pattern  string
	regex    *regexp.Regexp
	negated  bool   // "!" prefix re-admits matches
	dirOnly  bool   // trailing "/" restricts the rule to directories
	anchored bool   // matches from the rule's base, not at any depth
	base     string // directory of the owning .gitignore, "" for the root
}

// New returns an empty Matcher.
func New() *Matcher {
	return &Matcher{}
}

// AddPattern adds one pattern scoped to the repository root.
func (m *Matcher) AddPattern(pattern string) {
	m.AddPatternWithBase(pattern, "")
}

// AddPatternWithBase adds one pattern that applies only under base.
// Nested .gitignore files load their patterns this way so each rule
// keeps the scope of the directory it came from. Blank lines,
// comments, and patterns that fail to compile are dropped.
func (m *Matcher) AddPatternWithBase(pattern, base string) {
	// A trailing "\ " keeps the space; any other trailing whitespace
	// is stripped.
	keepTrailingSpace := strings.HasSuffix(pattern, `\ `)
	pattern = strings.TrimSpace(pattern)

	if pattern == "" || (strings.HasPrefix(pattern, "#") && !strings.HasPrefix(pattern, `\#`)) {
		return
	}

	r := rule{pattern: pattern, base: base}

	switch {
	case strings.HasPrefix(pattern, `\#`), strings.HasPrefix(pattern, `\!`):
		pattern = pattern[1:]
		r.pattern = pattern
	case strings.HasPrefix(pattern, "!"):
		r.negated = true
		pattern = pattern[1:]
	}

	if keepTrailingSpace && strings.HasSuffix(pattern, `\`) {
		pattern = strings.TrimSuffix(pattern, `\`) + " "
	}

	if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		r.anchored = true
		pattern = strings.TrimPrefix(pattern, "/")
	}
	// An interior slash anchors too: "doc/frotz" means /doc/frotz,
	// not **/doc/frotz. Only a leading wildcard keeps it floating.
	if strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "**/") && !strings.HasPrefix(pattern, "*") {
		r.anchored = true
	}

	r.regex = compile(pattern)
	if r.regex == nil {
		return
	}

	m.mu.Lock()
	m.rules = append(m.rules, r)
	m.mu.Unlock()
}

// AddFromFile reads one .gitignore file. base is the file's directory
// relative to the repository root, "" for the root file.
func (m *Matcher) AddFromFile(path, base string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open gitignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m.AddPatternWithBase(sc.Text(), base)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read gitignore file: %w", err)
	}
	return nil
}

// Match reports whether path is ignored. Path separators are
// normalized, so callers may pass OS-native paths.
func (m *Matcher) Match(path string, isDir bool) bool {
	path = filepath.ToSlash(path)

	m.mu.RLock()
	defer m.mu.RUnlock()

	ignored := false
	for _, r := range m.rules {
		if matchRule(path, isDir, r) {
			ignored = !r.negated
		}
	}
	return ignored
}

// matchRule checks one rule. A directory rule also matches every path
// inside that directory, so "temp/" ignores temp/file.go.
func matchRule(path string, isDir bool, r rule) bool {
	if r.base != "" {
		if path != r.base && !strings.HasPrefix(path, r.base+"/") {
			return false
		}
		if path == r.base {
			path = filepath.Base(path)
		} else {
			path = strings.TrimPrefix(path, r.base+"/")
		}
	}

	parts := strings.Split(path, "/")
	basename := parts[len(parts)-1]

	if r.anchored {
		if r.regex.MatchString(path) {
			if r.dirOnly {
				return isDir
			}
			return true
		}
		// Files below an anchored directory rule still match:
		// "src/temp/" ignores src/temp/cache.go.
		if r.dirOnly {
			for i := range parts[:len(parts)-1] {
				if r.regex.MatchString(strings.Join(parts[:i+1], "/")) {
					return true
				}
			}
		}
		return false
	}

	if r.dirOnly {
		// An unanchored directory rule matches that name at any depth
		// and everything beneath it.
		for i, part := range parts {
			if r.regex.MatchString(part) {
				if i == len(parts)-1 {
					return isDir
				}
				return true
			}
		}
		return false
	}

	if r.regex.MatchString(basename) {
		return true
	}
	if r.regex.MatchString(path) {
		return true
	}
	for _, part := range parts {
		if r.regex.MatchString(part) {
			return true
		}
	}
	return false
}

// compile turns a gitignore glob into an anchored regexp. "*" and "?"
// never cross a path separator; "**" does. Nil means the pattern is
// malformed and the rule should be dropped, which is how git treats
// unparseable patterns.
func compile(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteByte('^')

	for i := 0; i < len(pattern); {
		switch c := pattern[i]; c {
		case '*':
			switch {
			case strings.HasPrefix(pattern[i:], "**/"):
				b.WriteString("(?:.*/)?")
				i += 3
			case strings.HasPrefix(pattern[i:], "**") && (i == 0 || pattern[i-1] == '/'):
				b.WriteString(".*")
				i += 2
			default:
				b.WriteString("[^/]*")
				i++
			}
		case '?':
			b.WriteString("[^/]")
			i++
		case '[':
			// Character classes pass through unescaped.
			if end := strings.IndexByte(pattern[i:], ']'); end > 0 {
				b.WriteString(pattern[i : i+end+1])
				i += end + 1
			} else {
				b.WriteString(regexp.QuoteMeta("["))
				i++
			}
		case '\\':
			if i+1 < len(pattern) {
				b.WriteString(regexp.QuoteMeta(string(pattern[i+1])))
				i += 2
			} else {
				b.WriteString(regexp.QuoteMeta(`\`))
				i++
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
			i++
		}
	}

	b.WriteByte('$')
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil
	}
	return re
}
