package indexing

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/sha1n/gitsearch-mcp-server/internal/domain"
)

const shardCount = 32

type lineShard struct {
	mu    sync.Mutex
	lines map[domain.LineKey]string
}

// accumulator collects the line and file records of one repository in
// memory. Appenders hold the read side of gate, so many batches append
// concurrently; drain holds the write side and swaps the maps out atomically.
type accumulator struct {
	gate   sync.RWMutex
	shards [shardCount]lineShard

	filesMu sync.Mutex
	files   map[domain.FileRecord]struct{}

	lineCount atomic.Int64
	fileCount atomic.Int64
	lineLimit int64
	fileLimit int64
}

func newAccumulator(lineLimit, fileLimit int) *accumulator {
	a := &accumulator{
		files:     make(map[domain.FileRecord]struct{}),
		lineLimit: int64(lineLimit),
		fileLimit: int64(fileLimit),
	}
	for i := range a.shards {
		a.shards[i].lines = make(map[domain.LineKey]string)
	}
	return a
}

func shardOf(key domain.LineKey) int {
	h := xxhash.Sum64String(key.Path) ^ xxhash.Sum64String(key.Content) ^ uint64(key.LineNumber)
	return int(h % shardCount)
}

// addFile records the lines of one file seen on branch along with its
// metadata record. Line numbers start at 1.
func (a *accumulator) addFile(path, branch string, lines []string, rec domain.FileRecord) {
	a.gate.RLock()
	defer a.gate.RUnlock()

	for i, content := range lines {
		a.mergeLine(domain.LineKey{Path: path, Content: content, LineNumber: i + 1}, branch)
	}

	a.filesMu.Lock()
	if _, ok := a.files[rec]; !ok {
		a.files[rec] = struct{}{}
		a.fileCount.Add(1)
	}
	a.filesMu.Unlock()
}

// addLine merges a branch list into a single line record.
func (a *accumulator) addLine(key domain.LineKey, branches string) {
	a.gate.RLock()
	defer a.gate.RUnlock()
	a.mergeLine(key, branches)
}

func (a *accumulator) mergeLine(key domain.LineKey, branches string) {
	shard := &a.shards[shardOf(key)]
	shard.mu.Lock()
	existing, ok := shard.lines[key]
	if !ok {
		a.lineCount.Add(1)
	}
	shard.lines[key] = domain.MergeBranches(existing, branches)
	shard.mu.Unlock()
}

// exceeds reports whether either size threshold has been reached.
func (a *accumulator) exceeds() bool {
	return a.lineCount.Load() >= a.lineLimit || a.fileCount.Load() >= a.fileLimit
}

func (a *accumulator) empty() bool {
	return a.lineCount.Load() == 0 && a.fileCount.Load() == 0
}

// drain hands out everything collected so far and resets the accumulator.
func (a *accumulator) drain() (map[domain.LineKey]string, map[domain.FileRecord]struct{}) {
	a.gate.Lock()
	defer a.gate.Unlock()

	lines := make(map[domain.LineKey]string, a.lineCount.Load())
	for i := range a.shards {
		for k, v := range a.shards[i].lines {
			lines[k] = v
		}
		a.shards[i].lines = make(map[domain.LineKey]string)
	}
	files := a.files
	a.files = make(map[domain.FileRecord]struct{})

	a.lineCount.Store(0)
	a.fileCount.Store(0)
	return lines, files
}
