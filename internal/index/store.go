package index

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"
)

const (
	slotA = "a"
	slotB = "b"

	// activeMarkerFile records the active slot across restarts.
	activeMarkerFile = "ACTIVE"
)

// Store owns the two index generations. Readers always go through the
// active one; a rebuild writes only to the staging one and then swaps.
type Store struct {
	dir    string
	slots  [2]*Generation
	active atomic.Pointer[Generation]
	epoch  atomic.Uint64
	swapMu sync.Mutex
	logger *slog.Logger
}

// OpenStore opens or creates both generations under dir.
func OpenStore(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	s := &Store{dir: dir, logger: logger}
	for i, name := range []string{slotA, slotB} {
		g, err := openGeneration(dir, name)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.slots[i] = g
	}

	active := s.slots[0]
	if data, err := os.ReadFile(filepath.Join(dir, activeMarkerFile)); err == nil {
		if strings.TrimSpace(string(data)) == slotB {
			active = s.slots[1]
		}
	}
	s.active.Store(active)

	logger.Info("Opened index store", "dir", dir, "active", active.name)
	return s, nil
}

// Active returns the generation that serves reads.
func (s *Store) Active() *Generation {
	return s.active.Load()
}

// Staging returns the generation rebuilds write to.
func (s *Store) Staging() *Generation {
	return s.other(s.active.Load())
}

// Epoch is incremented by every swap.
func (s *Store) Epoch() uint64 {
	return s.epoch.Load()
}

func (s *Store) other(g *Generation) *Generation {
	if g == s.slots[0] {
		return s.slots[1]
	}
	return s.slots[0]
}

// View runs fn against the active generation. The generation cannot be
// replaced while fn runs, and epoch identifies its contents.
func (s *Store) View(fn func(g *Generation, epoch uint64) error) error {
	for {
		epoch := s.epoch.Load()
		g := s.active.Load()
		g.mu.RLock()
		if s.active.Load() == g && s.epoch.Load() == epoch {
			defer g.mu.RUnlock()
			return fn(g, epoch)
		}
		// swapped in between, retry against the new active generation
		g.mu.RUnlock()
	}
}

// Swap makes the staging generation active and then replaces the old active
// generation with a copy of the new one, so it becomes a consistent staging
// base for the next rebuild.
func (s *Store) Swap() error {
	s.swapMu.Lock()
	defer s.swapMu.Unlock()

	old := s.active.Load()
	next := s.other(old)

	if err := s.writeMarker(next.name); err != nil {
		return err
	}
	s.active.Store(next)
	s.epoch.Add(1)
	s.logger.Info("Swapped index generation", "active", next.name, "epoch", s.epoch.Load())

	if err := replicate(next, old); err != nil {
		return fmt.Errorf("failed to replicate generation %s: %w", next.name, err)
	}
	s.logger.Info("Replicated index generation", "from", next.name, "to", old.name)
	return nil
}

// SyncStaging overwrites the staging generation with a copy of the active
// one. It repairs staging after an aborted rebuild.
func (s *Store) SyncStaging() error {
	s.swapMu.Lock()
	defer s.swapMu.Unlock()

	active := s.active.Load()
	staging := s.other(active)
	if err := replicate(active, staging); err != nil {
		return fmt.Errorf("failed to replicate generation %s: %w", active.name, err)
	}
	s.logger.Info("Resynchronized staging generation", "from", active.name, "to", staging.name)
	return nil
}

func (s *Store) writeMarker(name string) error {
	path := filepath.Join(s.dir, activeMarkerFile)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, []byte(name), 0644); err != nil {
		return fmt.Errorf("failed to write active marker: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename active marker: %w", err)
	}
	return nil
}

// Close closes both generations.
func (s *Store) Close() error {
	var errs []error
	for _, g := range s.slots {
		if g == nil {
			continue
		}
		g.mu.Lock()
		errs = append(errs, g.close())
		g.mu.Unlock()
	}
	return errors.Join(errs...)
}

// replicate replaces the contents of to with an online copy of from. It
// waits for queries running against to.
func replicate(from, to *Generation) error {
	to.mu.Lock()
	defer to.mu.Unlock()

	if err := to.close(); err != nil {
		return fmt.Errorf("failed to close generation %s: %w", to.name, err)
	}
	if err := os.RemoveAll(to.dir); err != nil {
		return fmt.Errorf("failed to remove generation %s: %w", to.name, err)
	}

	copyErr := errors.Join(
		copyIndex(from.lines, filepath.Join(to.dir, linesDir)),
		copyIndex(from.files, filepath.Join(to.dir, filesDir)),
	)
	if copyErr != nil {
		// leave an empty but usable slot behind
		_ = os.RemoveAll(to.dir)
		return errors.Join(copyErr, to.open())
	}
	return to.open()
}

func copyIndex(src bleve.Index, dst string) error {
	copyable, ok := src.(bleve.IndexCopyable)
	if !ok {
		return fmt.Errorf("index %s does not support online copy", src.Name())
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return fmt.Errorf("failed to create copy directory: %w", err)
	}
	if err := copyable.CopyTo(bleve.FileSystemDirectory(dst)); err != nil {
		return fmt.Errorf("failed to copy index to %s: %w", dst, err)
	}
	return nil
}
