//go:build ignore

// Command generate-test-corpus writes a synthetic source tree for exercising
// the indexing pipeline at a chosen scale.
//
// Typical use:
//
//	go run scripts/generate-test-corpus.go -files 500 -output /tmp/corpus
//	cidx index /tmp/corpus
//
// The tree mixes Go, TypeScript, Python, and Markdown so every chunker
// language path gets hit. It also carries a .gitignore and a build/
// directory full of artifacts the scanner must skip, which keeps the
// ignore path honest in benchmarks. Output is deterministic for a given
// -seed.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numFiles  = flag.Int("files", 500, "number of indexable files to generate")
	outputDir = flag.String("output", "testdata/corpus", "output directory")
	seed      = flag.Int64("seed", 1, "random seed")
)

const goTemplate = `package %[1]s

import (
	"context"
	"errors"
	"sync"
)

var Err%[2]sClosed = errors.New("%[1]s: %[3]s closed")

// %[2]s keeps %[1]s state in memory. It is safe for concurrent use.
type %[2]s struct {
	mu     sync.RWMutex
	items  map[string]string
	closed bool
}

func New%[2]s() *%[2]s {
	return &%[2]s{items: make(map[string]string)}
}

// %[4]s stores value under key, replacing any previous entry.
func (s *%[2]s) %[4]s(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Err%[2]sClosed
	}
	s.items[key] = value
	return nil
}

func (s *%[2]s) Lookup(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

func (s *%[2]s) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
`

const tsTemplate = `export interface %[1]sRecord {
  id: string;
  value: string;
  updatedAt: number;
}

// %[1]sStore keeps %[2]s records in insertion order.
export class %[1]sStore {
  private records = new Map<string, %[1]sRecord>();

  put(id: string, value: string): %[1]sRecord {
    const record = { id, value, updatedAt: Date.now() };
    this.records.set(id, record);
    return record;
  }

  get(id: string): %[1]sRecord | undefined {
    return this.records.get(id);
  }

  prune(maxAgeMs: number): number {
    const cutoff = Date.now() - maxAgeMs;
    let dropped = 0;
    for (const [id, record] of this.records) {
      if (record.updatedAt < cutoff) {
        this.records.delete(id);
        dropped += 1;
      }
    }
    return dropped;
  }
}

export function create%[1]sStore(): %[1]sStore {
  return new %[1]sStore();
}
`

const pyTemplate = `"""%[1]s support for the %[2]s pipeline."""

import logging
import time
from dataclasses import dataclass, field
from typing import Dict, Optional

logger = logging.getLogger(__name__)


@dataclass
class %[1]sEntry:
    key: str
    value: str
    created_at: float = field(default_factory=time.time)


class %[1]s:
    """Bounded in-memory %[2]s cache with oldest-first eviction."""

    def __init__(self, capacity: int = 128) -> None:
        self.capacity = capacity
        self._entries: Dict[str, %[1]sEntry] = {}

    def %[3]s(self, key: str, value: str) -> "%[1]sEntry":
        if len(self._entries) >= self.capacity:
            oldest = min(self._entries, key=lambda k: self._entries[k].created_at)
            del self._entries[oldest]
            logger.debug("evicted %%s", oldest)
        entry = %[1]sEntry(key=key, value=value)
        self._entries[key] = entry
        return entry

    def get(self, key: str) -> Optional[%[1]sEntry]:
        return self._entries.get(key)

    def __len__(self) -> int:
        return len(self._entries)
`

const mdTemplate = `# %[1]s

Working notes for the %[2]s %[1]s.

## Responsibilities

- Owns %[2]s state for its service
- Small surface: put, get, prune
- No network calls; callers own retries

## Usage

` + "```go" + `
s := %[2]s.New%[1]s()
if err := s.%[3]s(ctx, "alpha", "1"); err != nil {
    return err
}
` + "```" + `

## Invariants

- Keys are unique per instance
- Prune never drops entries newer than the cutoff
- Close is idempotent and safe under concurrency
`

var (
	nouns = []string{
		"Ledger", "Registry", "Planner", "Courier", "Vault",
		"Relay", "Sampler", "Journal", "Broker", "Gauge",
		"Cursor", "Replica", "Snapshot", "Quota", "Beacon",
	}
	verbs = []string{
		"Record", "Resolve", "Publish", "Collect", "Apply",
		"Merge", "Flush", "Claim", "Renew", "Archive",
	}
	domains = []string{
		"billing", "inventory", "telemetry", "provisioning", "replication",
		"notifications", "quotas", "auditing", "migrations", "sessions",
	}
)

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := run(rng); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(rng *rand.Rand) error {
	for _, domain := range domains {
		if err := os.MkdirAll(filepath.Join(*outputDir, "internal", domain), 0o755); err != nil {
			return fmt.Errorf("create internal/%s: %w", domain, err)
		}
	}
	for _, dir := range []string{"web", "tools", "docs", "build"} {
		if err := os.MkdirAll(filepath.Join(*outputDir, dir), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	// Roughly the mix of a service repo: mostly Go, some frontend and
	// tooling, a little prose.
	goN := *numFiles * 45 / 100
	tsN := *numFiles * 25 / 100
	pyN := *numFiles * 15 / 100
	mdN := *numFiles - goN - tsN - pyN

	written := 0
	for i := 0; i < goN; i++ {
		if err := writeGoFile(rng, i); err != nil {
			return err
		}
		written++
	}
	for i := 0; i < tsN; i++ {
		if err := writeTSFile(rng, i); err != nil {
			return err
		}
		written++
	}
	for i := 0; i < pyN; i++ {
		if err := writePyFile(rng, i); err != nil {
			return err
		}
		written++
	}
	for i := 0; i < mdN; i++ {
		if err := writeMDFile(rng, i); err != nil {
			return err
		}
		written++
	}

	// Artifacts under build/ use an indexable extension on purpose: if the
	// index picks them up, gitignore handling is broken.
	ignored := *numFiles / 20
	if ignored < 3 {
		ignored = 3
	}
	for i := 0; i < ignored; i++ {
		if err := writeBuildArtifact(i); err != nil {
			return err
		}
	}
	gitignore := "build/\nnode_modules/\n"
	if err := os.WriteFile(filepath.Join(*outputDir, ".gitignore"), []byte(gitignore), 0o644); err != nil {
		return fmt.Errorf("write .gitignore: %w", err)
	}

	fmt.Printf("wrote %d indexable files and %d ignored files under %s\n", written, ignored, *outputDir)
	return nil
}

func pick(rng *rand.Rand, pool []string) string {
	return pool[rng.Intn(len(pool))]
}

func writeGoFile(rng *rand.Rand, index int) error {
	noun := pick(rng, nouns)
	verb := pick(rng, verbs)
	domain := pick(rng, domains)

	content := fmt.Sprintf(goTemplate, domain, noun, strings.ToLower(noun), verb)
	name := fmt.Sprintf("%s_%d.go", strings.ToLower(noun), index)
	return os.WriteFile(filepath.Join(*outputDir, "internal", domain, name), []byte(content), 0o644)
}

func writeTSFile(rng *rand.Rand, index int) error {
	noun := pick(rng, nouns)
	domain := pick(rng, domains)

	content := fmt.Sprintf(tsTemplate, noun, domain)
	name := fmt.Sprintf("%s_%d.ts", strings.ToLower(noun), index)
	return os.WriteFile(filepath.Join(*outputDir, "web", name), []byte(content), 0o644)
}

func writePyFile(rng *rand.Rand, index int) error {
	noun := pick(rng, nouns)
	verb := pick(rng, verbs)
	domain := pick(rng, domains)

	content := fmt.Sprintf(pyTemplate, noun, domain, strings.ToLower(verb))
	name := fmt.Sprintf("%s_%d.py", strings.ToLower(noun), index)
	return os.WriteFile(filepath.Join(*outputDir, "tools", name), []byte(content), 0o644)
}

func writeMDFile(rng *rand.Rand, index int) error {
	noun := pick(rng, nouns)
	verb := pick(rng, verbs)
	domain := pick(rng, domains)

	content := fmt.Sprintf(mdTemplate, noun, domain, verb)
	name := fmt.Sprintf("%s_%d.md", strings.ToLower(noun), index)
	return os.WriteFile(filepath.Join(*outputDir, "docs", name), []byte(content), 0o644)
}

func writeBuildArtifact(index int) error {
	content := fmt.Sprintf("// generated bundle %d, not meant for indexing\nconst release%d = true;\n", index, index)
	name := fmt.Sprintf("bundle_%d.js", index)
	return os.WriteFile(filepath.Join(*outputDir, "build", name), []byte(content), 0o644)
}
