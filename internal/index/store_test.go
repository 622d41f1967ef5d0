package index

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blevesearch/bleve/v2"

	"github.com/sha1n/gitsearch-mcp-server/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	store, err := OpenStore(dir, discardLogger())
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	return store
}

func closeStore(t *testing.T, store *Store) {
	t.Helper()
	if err := store.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func writeLines(t *testing.T, g *Generation, keys ...domain.LineKey) {
	t.Helper()
	w := g.NewWriter()
	for _, key := range keys {
		if err := w.AddLine(key, "master"); err != nil {
			t.Fatalf("AddLine failed: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
}

func docCount(t *testing.T, idx bleve.Index) uint64 {
	t.Helper()
	count, err := idx.DocCount()
	if err != nil {
		t.Fatalf("DocCount failed: %v", err)
	}
	return count
}

func TestOpenStore_Defaults(t *testing.T) {
	store := openTestStore(t, t.TempDir())
	defer closeStore(t, store)

	if store.Active().Name() != slotA {
		t.Errorf("Expected slot %q to be active, got %q", slotA, store.Active().Name())
	}
	if store.Staging().Name() != slotB {
		t.Errorf("Expected slot %q to be staging, got %q", slotB, store.Staging().Name())
	}
	if store.Epoch() != 0 {
		t.Errorf("Expected epoch 0, got %d", store.Epoch())
	}
}

func TestStore_SwapReplicatesAndPersistsMarker(t *testing.T) {
	dir := t.TempDir()
	store := openTestStore(t, dir)

	staging := store.Staging()
	writeLines(t, staging,
		domain.LineKey{Path: "billing/a.go", Content: "package billing", LineNumber: 1},
		domain.LineKey{Path: "billing/a.go", Content: "", LineNumber: 2},
	)
	if got := docCount(t, store.Active().Lines()); got != 0 {
		t.Fatalf("Expected active to be untouched, got %d docs", got)
	}

	if err := store.Swap(); err != nil {
		t.Fatalf("Swap failed: %v", err)
	}

	if store.Active() != staging {
		t.Error("Expected staging generation to become active")
	}
	if store.Epoch() != 1 {
		t.Errorf("Expected epoch 1, got %d", store.Epoch())
	}
	if got := docCount(t, store.Active().Lines()); got != 2 {
		t.Errorf("Expected 2 active docs, got %d", got)
	}
	if got := docCount(t, store.Staging().Lines()); got != 2 {
		t.Errorf("Expected staging to hold a copy with 2 docs, got %d", got)
	}

	marker, err := os.ReadFile(filepath.Join(dir, activeMarkerFile))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(marker) != slotB {
		t.Errorf("marker = %q, want %q", marker, slotB)
	}

	closeStore(t, store)

	reopened := openTestStore(t, dir)
	defer closeStore(t, reopened)
	if reopened.Active().Name() != slotB {
		t.Errorf("Expected slot %q to stay active after restart, got %q", slotB, reopened.Active().Name())
	}
}

func TestStore_SyncStaging(t *testing.T) {
	store := openTestStore(t, t.TempDir())
	defer closeStore(t, store)

	writeLines(t, store.Staging(), domain.LineKey{Path: "billing/a.go", Content: "x", LineNumber: 1})
	if err := store.Swap(); err != nil {
		t.Fatalf("Swap failed: %v", err)
	}

	// simulate a rebuild that aborted half way
	writeLines(t, store.Staging(), domain.LineKey{Path: "billing/b.go", Content: "y", LineNumber: 1})
	if got := docCount(t, store.Staging().Lines()); got != 2 {
		t.Fatalf("Expected dirty staging with 2 docs, got %d", got)
	}

	if err := store.SyncStaging(); err != nil {
		t.Fatalf("SyncStaging failed: %v", err)
	}
	if got := docCount(t, store.Staging().Lines()); got != 1 {
		t.Errorf("Expected staging to match active, got %d docs", got)
	}
}

func TestStore_ViewSeesWholeGenerations(t *testing.T) {
	store := openTestStore(t, t.TempDir())
	defer closeStore(t, store)

	before := []domain.LineKey{
		{Path: "billing/a.go", Content: "invoice total", LineNumber: 1},
		{Path: "billing/b.go", Content: "invoice tax", LineNumber: 1},
	}
	writeLines(t, store.Staging(), before...)
	if err := store.Swap(); err != nil {
		t.Fatalf("Swap failed: %v", err)
	}

	countInvoices := func(g *Generation) uint64 {
		q := bleve.NewMatchPhraseQuery("invoice")
		q.SetField(domain.LineFieldContent)
		res, err := g.Lines().Search(bleve.NewSearchRequest(q))
		if err != nil {
			t.Errorf("Search failed: %v", err)
			return 0
		}
		return res.Total
	}

	var done atomic.Bool
	var wg sync.WaitGroup
	observed := make(map[uint64]int)
	var mu sync.Mutex

	wg.Add(1)
	go func() {
		defer wg.Done()
		for !done.Load() {
			_ = store.View(func(g *Generation, _ uint64) error {
				n := countInvoices(g)
				mu.Lock()
				observed[n]++
				mu.Unlock()
				return nil
			})
		}
	}()

	// slow staging writes while the reader runs
	for i := 0; i < 5; i++ {
		writeLines(t, store.Staging(), domain.LineKey{Path: "billing/c.go", Content: "invoice line", LineNumber: i + 1})
		time.Sleep(5 * time.Millisecond)
	}
	if err := store.Swap(); err != nil {
		t.Fatalf("Swap failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	done.Store(true)
	wg.Wait()

	for n := range observed {
		if n != 2 && n != 7 {
			t.Errorf("Observed a partial generation with %d matches: %v", n, observed)
		}
	}
	if observed[7] == 0 {
		t.Errorf("Expected reads after the swap to see the new generation: %v", observed)
	}
}

func TestGeneration_PurgeAndScan(t *testing.T) {
	store := openTestStore(t, t.TempDir())
	defer closeStore(t, store)
	g := store.Staging()

	w := g.NewWriter()
	lines := map[domain.LineKey]string{
		{Path: "billing/a.go", Content: "a", LineNumber: 1}:    "master develop",
		{Path: "billing/b.go", Content: "b", LineNumber: 1}:    "develop",
		{Path: "billing-ui/a.ts", Content: "c", LineNumber: 1}: "master",
		{Path: "orders/main.go", Content: "d", LineNumber: 1}:  "master",
	}
	for key, branches := range lines {
		if err := w.AddLine(key, branches); err != nil {
			t.Fatalf("AddLine failed: %v", err)
		}
	}
	files := []domain.FileRecord{
		{Path: "billing/a.go", Branch: "master", Repository: "billing"},
		{Path: "billing/a.go", Branch: "develop", Repository: "billing"},
		{Path: "billing/b.go", Branch: "develop", Repository: "billing"},
		{Path: "billing-ui/a.ts", Branch: "master", Repository: "billing-ui"},
	}
	for _, f := range files {
		if err := w.AddFile(f); err != nil {
			t.Fatalf("AddFile failed: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	ctx := context.Background()
	scanned := make(map[domain.LineKey]string)
	err := g.ScanLines(ctx, RepositoryPrefix("billing"), func(key domain.LineKey, branches string) error {
		scanned[key] = branches
		return nil
	})
	if err != nil {
		t.Fatalf("ScanLines failed: %v", err)
	}
	if len(scanned) != 2 {
		t.Fatalf("Expected 2 billing lines, got %v", scanned)
	}
	if scanned[domain.LineKey{Path: "billing/a.go", Content: "a", LineNumber: 1}] != "master develop" {
		t.Errorf("Unexpected scan result: %v", scanned)
	}

	deletedLines, deletedFiles, err := g.PurgeRepository(ctx, RepositoryPrefix("billing"), []string{"develop"})
	if err != nil {
		t.Fatalf("PurgeRepository failed: %v", err)
	}
	if deletedLines != 2 {
		t.Errorf("Expected 2 deleted lines, got %d", deletedLines)
	}
	if deletedFiles != 2 {
		t.Errorf("Expected 2 deleted files, got %d", deletedFiles)
	}
	if got := docCount(t, g.Lines()); got != 2 {
		t.Errorf("Expected 2 lines left, got %d", got)
	}
	if got := docCount(t, g.Files()); got != 2 {
		t.Errorf("Expected 2 files left (master of billing and billing-ui), got %d", got)
	}
}

func TestLineID(t *testing.T) {
	a := LineID(domain.LineKey{Path: "r/a.go", Content: "x", LineNumber: 1})
	b := LineID(domain.LineKey{Path: "r/a.go", Content: "x", LineNumber: 1})
	c := LineID(domain.LineKey{Path: "r/a.go", Content: "y", LineNumber: 1})
	d := LineID(domain.LineKey{Path: "r/a.go", Content: "x", LineNumber: 2})

	if a != b {
		t.Error("Expected equal keys to share an ID")
	}
	if a == c || a == d {
		t.Error("Expected different keys to get different IDs")
	}
}

func TestDeleteByQuery_ManyPages(t *testing.T) {
	store := openTestStore(t, t.TempDir())
	defer closeStore(t, store)
	g := store.Staging()

	var keys []domain.LineKey
	for i := 0; i < pageSize+10; i++ {
		keys = append(keys, domain.LineKey{Path: "big/file.txt", Content: "line", LineNumber: i + 1})
	}
	writeLines(t, g, keys...)

	q := bleve.NewPrefixQuery("big/")
	q.SetField(domain.LineFieldPath)
	n, err := DeleteByQuery(context.Background(), g.Lines(), q)
	if err != nil {
		t.Fatalf("DeleteByQuery failed: %v", err)
	}
	if n != len(keys) {
		t.Errorf("Deleted %d, want %d", n, len(keys))
	}
	if got := docCount(t, g.Lines()); got != 0 {
		t.Errorf("Expected empty collection, got %d", got)
	}
}
