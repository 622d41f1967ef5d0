package indexing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"

	"github.com/sha1n/gitsearch-mcp-server/internal/domain"
	"github.com/sha1n/gitsearch-mcp-server/internal/gitrepos"
	"github.com/sha1n/gitsearch-mcp-server/internal/index"
)

const billingRemote = "git@github.com:acme/billing.git"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeBranch struct {
	head  string
	files map[string]string
}

// fakeVCS serves branches from memory. Checkout materializes the files of a
// branch in the clone directory.
type fakeVCS struct {
	mu           sync.Mutex
	repos        map[string]map[string]fakeBranch
	dirs         map[string]string
	failCheckout map[string]bool
	fetchGate    chan struct{}

	fetches   int
	cloneDirs []string
	checkouts []string
}

func newFakeVCS() *fakeVCS {
	return &fakeVCS{
		repos:        make(map[string]map[string]fakeBranch),
		dirs:         make(map[string]string),
		failCheckout: make(map[string]bool),
	}
}

func (f *fakeVCS) setBranch(uri, branch, head string, files map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.repos[uri] == nil {
		f.repos[uri] = make(map[string]fakeBranch)
	}
	f.repos[uri][branch] = fakeBranch{head: head, files: files}
}

func (f *fakeVCS) deleteBranch(uri, branch string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.repos[uri], branch)
}

func (f *fakeVCS) setFailCheckout(branch string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failCheckout[branch] = fail
}

func (f *fakeVCS) counts() (fetches, clones, checkouts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches, len(f.cloneDirs), len(f.checkouts)
}

func (f *fakeVCS) FetchBranches(ctx context.Context, uri string) (map[string]string, error) {
	f.mu.Lock()
	f.fetches++
	gate := f.fetchGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	branches, ok := f.repos[uri]
	if !ok {
		return nil, fmt.Errorf("repository not found: %s", uri)
	}
	heads := make(map[string]string, len(branches))
	for name, b := range branches {
		heads[name] = b.head
	}
	return heads, nil
}

func (f *fakeVCS) Clone(ctx context.Context, uri, dir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.MkdirAll(filepath.Join(dir, ".git"), 0755); err != nil {
		return err
	}
	f.dirs[dir] = uri
	f.cloneDirs = append(f.cloneDirs, dir)
	return nil
}

func (f *fakeVCS) Checkout(ctx context.Context, dir, branch string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkouts = append(f.checkouts, branch)
	if f.failCheckout[branch] {
		return fmt.Errorf("checkout of %s failed", branch)
	}
	b, ok := f.repos[f.dirs[dir]][branch]
	if !ok {
		return fmt.Errorf("unknown branch %s", branch)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name() != ".git" {
			if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
				return err
			}
		}
	}
	if err := os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte(b.head), 0644); err != nil {
		return err
	}
	for rel, content := range b.files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeVCS) LastCommit(ctx context.Context, dir, path string) (domain.Commit, bool) {
	if path == "NOTICE" {
		return domain.Commit{}, false
	}
	return domain.Commit{AuthorEmail: "dev@acme.io", Date: "01.02.2024"}, true
}

type fakeCatalog []domain.Repository

func (c fakeCatalog) ListRepositories() ([]domain.Repository, error) {
	return c, nil
}

type fakeHeads struct {
	mu    sync.Mutex
	heads map[string]map[string]string
}

func newFakeHeads() *fakeHeads {
	return &fakeHeads{heads: make(map[string]map[string]string)}
}

func (h *fakeHeads) FindByRepository(ctx context.Context, uri string) ([]domain.BranchHead, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []domain.BranchHead
	for b, head := range h.heads[uri] {
		out = append(out, domain.BranchHead{RepositoryURI: uri, Branch: b, Head: head})
	}
	return out, nil
}

func (h *fakeHeads) Upsert(ctx context.Context, heads []domain.BranchHead) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, bh := range heads {
		if h.heads[bh.RepositoryURI] == nil {
			h.heads[bh.RepositoryURI] = make(map[string]string)
		}
		h.heads[bh.RepositoryURI][bh.Branch] = bh.Head
	}
	return nil
}

func (h *fakeHeads) Delete(ctx context.Context, uri string, branches []string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, b := range branches {
		delete(h.heads[uri], b)
	}
	return nil
}

func (h *fakeHeads) get(uri string) map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]string)
	for b, head := range h.heads[uri] {
		out[b] = head
	}
	return out
}

type testEnv struct {
	dataDir     string
	store       *index.Store
	vcs         *fakeVCS
	heads       *fakeHeads
	coordinator *Coordinator
}

func newTestEnv(t *testing.T, catalog fakeCatalog, tune func(*Options)) *testEnv {
	t.Helper()
	dataDir := t.TempDir()

	store, err := index.OpenStore(filepath.Join(dataDir, "index"), discardLogger())
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	env := &testEnv{dataDir: dataDir, store: store, vcs: newFakeVCS(), heads: newFakeHeads()}
	opts := Options{
		DataDir:     dataDir,
		Parallelism: 2,
		Logger:      discardLogger(),
	}
	if tune != nil {
		tune(&opts)
	}

	env.coordinator, err = NewCoordinator(store, catalog, env.vcs, env.heads, gitrepos.NewFileFilter(1<<20), opts)
	if err != nil {
		t.Fatalf("NewCoordinator failed: %v", err)
	}
	return env
}

func (e *testEnv) update(t *testing.T) {
	t.Helper()
	if err := e.coordinator.UpdateIndex(context.Background()); err != nil {
		t.Fatalf("UpdateIndex failed: %v", err)
	}
}

// activeLines returns the line documents of the active generation as
// "path:line:content" -> branch list.
func (e *testEnv) activeLines(t *testing.T) map[string][]string {
	t.Helper()
	out := make(map[string][]string)
	err := e.store.View(func(g *index.Generation, _ uint64) error {
		q := bleve.NewMatchAllQuery()
		return index.ForEach(context.Background(), g.Lines(), q, index.LineFields, func(hit *search.DocumentMatch) error {
			key := index.LineKeyFromHit(hit)
			id := fmt.Sprintf("%s:%d:%s", key.Path, key.LineNumber, key.Content)
			out[id] = domain.SplitBranches(index.StringField(hit, domain.LineFieldBranches))
			return nil
		})
	})
	if err != nil {
		t.Fatalf("Failed to read line documents: %v", err)
	}
	return out
}

// activeFiles returns the file documents of the active generation keyed by
// "path@branch".
func (e *testEnv) activeFiles(t *testing.T) map[string]domain.FileDocument {
	t.Helper()
	out := make(map[string]domain.FileDocument)
	err := e.store.View(func(g *index.Generation, _ uint64) error {
		q := bleve.NewMatchAllQuery()
		return index.ForEach(context.Background(), g.Files(), q, index.FileFields, func(hit *search.DocumentMatch) error {
			doc := domain.FileDocument{
				AuthorEmail:    index.StringField(hit, domain.FileFieldAuthorEmail),
				Date:           index.StringField(hit, domain.FileFieldDate),
				Package:        index.StringField(hit, domain.FileFieldPackage),
				Path:           index.StringField(hit, domain.FileFieldPath),
				RepositoryType: index.StringField(hit, domain.FileFieldRepositoryType),
				Branch:         index.StringField(hit, domain.FileFieldBranch),
				Repository:     index.StringField(hit, domain.FileFieldRepository),
			}
			out[doc.Path+"@"+doc.Branch] = doc
			return nil
		})
	})
	if err != nil {
		t.Fatalf("Failed to read file documents: %v", err)
	}
	return out
}
