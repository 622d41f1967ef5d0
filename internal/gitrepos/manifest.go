package gitrepos

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	// ManifestVersion is the current schema version
	ManifestVersion = 1

	// ManifestFilename is the default manifest filename
	ManifestFilename = "manifest.json"
)

// Manifest stores the outcome of rebuild cycles for all repositories.
type Manifest struct {
	Version   int                  `json:"version"`
	LastCycle time.Time            `json:"last_cycle"`
	Repos     map[string]RepoState `json:"repos"`
	mu        sync.RWMutex         `json:"-"`
}

// RepoState stores the last known indexing state of a single repository.
type RepoState struct {
	URL         string    `json:"url"`
	Type        string    `json:"type"`
	LastIndexed time.Time `json:"last_indexed"`
	Branches    int       `json:"branches"`
	Error       string    `json:"error,omitempty"`
}

// NewManifest creates a new empty manifest.
func NewManifest() *Manifest {
	return &Manifest{
		Version: ManifestVersion,
		Repos:   make(map[string]RepoState),
	}
}

// LoadManifest reads a manifest from disk, or creates a new one if it doesn't exist.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewManifest(), nil
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if manifest.Repos == nil {
		manifest.Repos = make(map[string]RepoState)
	}

	return &manifest, nil
}

// Save writes the manifest to disk atomically.
// Uses write-to-temp + rename pattern to prevent corruption.
func (m *Manifest) Save(path string) error {
	m.mu.RLock()
	data, err := json.MarshalIndent(m, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename manifest file: %w", err)
	}

	return nil
}

// MarkIndexed records a successful rebuild of a repository and clears any
// previous error.
func (m *Manifest) MarkIndexed(name, url, repoType string, branches int, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Repos[name] = RepoState{
		URL:         url,
		Type:        repoType,
		LastIndexed: at,
		Branches:    branches,
	}
}

// SetRepoError records a failure for a repository, keeping its last
// successful state.
func (m *Manifest) SetRepoError(name, url string, err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.Repos[name]
	state.URL = url
	state.Error = err
	m.Repos[name] = state
}

// RemoveStaleRepos removes repositories whose URL is not in the given list.
// Returns the sorted names of removed repositories.
func (m *Manifest) RemoveStaleRepos(urls []string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	expected := make(map[string]bool, len(urls))
	for _, url := range urls {
		expected[RepositoryName(url)] = true
	}

	var removed []string
	for name := range m.Repos {
		if !expected[name] {
			removed = append(removed, name)
		}
	}
	for _, name := range removed {
		delete(m.Repos, name)
	}

	sort.Strings(removed)
	return removed
}

// RecordCycle sets the completion time of the last rebuild cycle.
func (m *Manifest) RecordCycle(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastCycle = at
}

// LastCycleTime returns the completion time of the last rebuild cycle.
func (m *Manifest) LastCycleTime() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastCycle
}

// GetReposWithErrors returns the repositories whose last rebuild failed.
func (m *Manifest) GetReposWithErrors() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]string)
	for name, state := range m.Repos {
		if state.Error != "" {
			result[name] = state.Error
		}
	}
	return result
}

// Snapshot returns a copy of all repository states.
func (m *Manifest) Snapshot() map[string]RepoState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]RepoState, len(m.Repos))
	for name, state := range m.Repos {
		out[name] = state
	}
	return out
}
