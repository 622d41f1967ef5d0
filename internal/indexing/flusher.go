package indexing

import (
	"sync"
	"sync/atomic"

	"github.com/sha1n/gitsearch-mcp-server/internal/domain"
)

// cacheWriter is the write side of a merge cache.
type cacheWriter interface {
	WriteAndPersist(lines map[domain.LineKey]string, files map[domain.FileRecord]struct{}) error
}

// flusher moves accumulated records into the merge cache. At most one flush
// of a repository is in flight; appenders that hit the threshold while a
// flush runs park on cond until it completes.
type flusher struct {
	acc     *accumulator
	cache   cacheWriter
	persist *persister

	mu       sync.Mutex
	cond     *sync.Cond
	flushing atomic.Bool
	err      error

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	flushes     atomic.Int64
}

func newFlusher(acc *accumulator, cache cacheWriter, persist *persister) *flusher {
	f := &flusher{acc: acc, cache: cache, persist: persist}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// maybeFlush starts an asynchronous flush when the accumulator is over its
// threshold. If another flush is running it waits for that one instead.
func (f *flusher) maybeFlush() {
	if !f.acc.exceeds() {
		return
	}
	if !f.flushing.CompareAndSwap(false, true) {
		f.wait()
		return
	}
	lines, files := f.acc.drain()
	f.persist.submit(func() error {
		err := f.write(lines, files)
		f.finish(err)
		return err
	})
}

// flushFinal waits for a running flush and then synchronously writes what is
// left. It returns the first error of any flush of this repository.
func (f *flusher) flushFinal() error {
	f.wait()
	if !f.acc.empty() {
		f.flushing.Store(true)
		lines, files := f.acc.drain()
		<-f.persist.submit(func() error {
			err := f.write(lines, files)
			f.finish(err)
			return err
		})
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *flusher) wait() {
	f.mu.Lock()
	for f.flushing.Load() {
		f.cond.Wait()
	}
	f.mu.Unlock()
}

func (f *flusher) finish(err error) {
	f.mu.Lock()
	if err != nil && f.err == nil {
		f.err = err
	}
	f.flushing.Store(false)
	f.cond.Broadcast()
	f.mu.Unlock()
}

func (f *flusher) write(lines map[domain.LineKey]string, files map[domain.FileRecord]struct{}) error {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.maxInFlight.Load()
		if n <= peak || f.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}
	f.flushes.Add(1)
	return f.cache.WriteAndPersist(lines, files)
}
