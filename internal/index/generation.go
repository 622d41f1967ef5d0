package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/sha1n/gitsearch-mcp-server/internal/domain"
)

const (
	linesDir = "lines"
	filesDir = "files"
)

// Generation is one slot of the double-buffered index: a pair of line and
// file collections stored under a single directory.
type Generation struct {
	// mu is held for reading while a query runs and for writing while the
	// slot is replaced by a copy of another generation.
	mu    sync.RWMutex
	name  string
	dir   string
	lines bleve.Index
	files bleve.Index
}

func openGeneration(dir, name string) (*Generation, error) {
	g := &Generation{name: name, dir: filepath.Join(dir, name)}
	if err := g.open(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Generation) open() error {
	lineMapping, err := NewLineMapping()
	if err != nil {
		return err
	}
	fileMapping, err := NewFileMapping()
	if err != nil {
		return err
	}

	lines, err := openOrCreate(filepath.Join(g.dir, linesDir), lineMapping)
	if err != nil {
		return err
	}
	files, err := openOrCreate(filepath.Join(g.dir, filesDir), fileMapping)
	if err != nil {
		_ = lines.Close()
		return err
	}

	g.lines = lines
	g.files = files
	return nil
}

func (g *Generation) close() error {
	var errs []error
	if g.lines != nil {
		errs = append(errs, g.lines.Close())
		g.lines = nil
	}
	if g.files != nil {
		errs = append(errs, g.files.Close())
		g.files = nil
	}
	return errors.Join(errs...)
}

// openOrCreate opens an existing index or creates a new one.
func openOrCreate(path string, m mapping.IndexMapping) (bleve.Index, error) {
	idx, err := bleve.Open(path)
	if err == nil {
		return idx, nil
	}
	if !errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		return nil, fmt.Errorf("failed to open index %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	idx, err = bleve.New(path, m)
	if err != nil {
		return nil, fmt.Errorf("failed to create index %s: %w", path, err)
	}
	return idx, nil
}

// Name returns the slot name.
func (g *Generation) Name() string {
	return g.name
}

// Lines returns the line collection.
func (g *Generation) Lines() bleve.Index {
	return g.lines
}

// Files returns the file collection.
func (g *Generation) Files() bleve.Index {
	return g.files
}

// RepositoryPrefix is the path prefix shared by every document of a repository.
func RepositoryPrefix(repository string) string {
	return repository + "/"
}

func prefixQuery(field, prefix string) query.Query {
	q := bleve.NewPrefixQuery(prefix)
	q.SetField(field)
	return q
}

func termQuery(field, term string) query.Query {
	q := bleve.NewTermQuery(term)
	q.SetField(field)
	return q
}

// ScanLines streams every line document under prefix to fn.
func (g *Generation) ScanLines(ctx context.Context, prefix string, fn func(key domain.LineKey, branches string) error) error {
	q := prefixQuery(domain.LineFieldPath, prefix)
	return ForEach(ctx, g.lines, q, LineFields, func(hit *search.DocumentMatch) error {
		return fn(LineKeyFromHit(hit), StringField(hit, domain.LineFieldBranches))
	})
}

// PurgeRepository removes every line document under prefix and the file
// documents under prefix that belong to one of branches.
func (g *Generation) PurgeRepository(ctx context.Context, prefix string, branches []string) (lines int, files int, err error) {
	lines, err = DeleteByQuery(ctx, g.lines, prefixQuery(domain.LineFieldPath, prefix))
	if err != nil {
		return lines, 0, fmt.Errorf("failed to delete line documents: %w", err)
	}
	if len(branches) == 0 {
		return lines, 0, nil
	}

	branchQueries := make([]query.Query, 0, len(branches))
	for _, b := range branches {
		branchQueries = append(branchQueries, termQuery(domain.FileFieldBranch, b))
	}
	q := bleve.NewConjunctionQuery(
		prefixQuery(domain.FileFieldPath, prefix),
		bleve.NewDisjunctionQuery(branchQueries...),
	)
	files, err = DeleteByQuery(ctx, g.files, q)
	if err != nil {
		return lines, files, fmt.Errorf("failed to delete file documents: %w", err)
	}
	return lines, files, nil
}

// Writer applies merged records to a generation.
type Writer struct {
	lines *BatchWriter
	files *BatchWriter
}

// NewWriter creates a writer targeting this generation.
func (g *Generation) NewWriter() *Writer {
	return &Writer{
		lines: NewBatchWriter(g.lines),
		files: NewBatchWriter(g.files),
	}
}

// AddLine indexes a merged line record.
func (w *Writer) AddLine(key domain.LineKey, branches string) error {
	return w.lines.Index(LineID(key), domain.LineDocumentFromRecord(key, branches))
}

// AddFile indexes a file record.
func (w *Writer) AddFile(r domain.FileRecord) error {
	return w.files.Index(FileID(r), domain.FileDocumentFromRecord(r))
}

// Flush applies any buffered documents.
func (w *Writer) Flush() error {
	return errors.Join(w.lines.Flush(), w.files.Flush())
}

// Totals returns the number of line and file documents written.
func (w *Writer) Totals() (lines, files int) {
	return w.lines.Total(), w.files.Total()
}
