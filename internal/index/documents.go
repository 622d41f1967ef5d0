package index

import (
	"context"
	"fmt"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/cespare/xxhash/v2"

	"github.com/sha1n/gitsearch-mcp-server/internal/domain"
)

const (
	// MaxBatchSize is the maximum number of documents per batch
	MaxBatchSize = 1000

	// pageSize is the number of hits fetched per page when scanning a query
	pageSize = 1000
)

// LineID returns the document ID of a line record. Records with the same
// key share one document.
func LineID(key domain.LineKey) string {
	return key.Path + "#" + strconv.Itoa(key.LineNumber) + "#" + strconv.FormatUint(xxhash.Sum64String(key.Content), 16)
}

// FileID returns the document ID of a file record.
func FileID(r domain.FileRecord) string {
	return r.Path + "@" + r.Branch
}

// BatchWriter buffers index operations and applies them in bounded batches.
type BatchWriter struct {
	index bleve.Index
	batch *bleve.Batch
	size  int
	total int
}

// NewBatchWriter creates a writer for the given index.
func NewBatchWriter(index bleve.Index) *BatchWriter {
	return &BatchWriter{
		index: index,
		batch: index.NewBatch(),
	}
}

// Index adds or replaces a document.
func (w *BatchWriter) Index(id string, doc interface{}) error {
	if err := w.batch.Index(id, doc); err != nil {
		return fmt.Errorf("failed to add document %s to batch: %w", id, err)
	}
	return w.added()
}

// Delete removes a document.
func (w *BatchWriter) Delete(id string) error {
	w.batch.Delete(id)
	return w.added()
}

func (w *BatchWriter) added() error {
	w.size++
	if w.size >= MaxBatchSize {
		return w.Flush()
	}
	return nil
}

// Flush applies the buffered operations.
func (w *BatchWriter) Flush() error {
	if w.size == 0 {
		return nil
	}
	if err := w.index.Batch(w.batch); err != nil {
		return fmt.Errorf("batch index failed: %w", err)
	}
	w.total += w.size
	w.batch.Reset()
	w.size = 0
	return nil
}

// Total returns the number of operations applied so far.
func (w *BatchWriter) Total() int {
	return w.total
}

// ForEach streams every hit of q, in document ID order, to fn.
func ForEach(ctx context.Context, index bleve.Index, q query.Query, fields []string, fn func(hit *search.DocumentMatch) error) error {
	for from := 0; ; from += pageSize {
		req := bleve.NewSearchRequestOptions(q, pageSize, from, false)
		req.Fields = fields
		req.SortBy([]string{"_id"})

		res, err := index.SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		for _, hit := range res.Hits {
			if err := fn(hit); err != nil {
				return err
			}
		}
		if len(res.Hits) < pageSize {
			return nil
		}
	}
}

// DeleteByQuery removes every document matching q and returns how many were
// removed.
func DeleteByQuery(ctx context.Context, index bleve.Index, q query.Query) (int, error) {
	var ids []string
	err := ForEach(ctx, index, q, nil, func(hit *search.DocumentMatch) error {
		ids = append(ids, hit.ID)
		return nil
	})
	if err != nil {
		return 0, err
	}

	w := NewBatchWriter(index)
	for _, id := range ids {
		if err := w.Delete(id); err != nil {
			return w.Total(), err
		}
	}
	if err := w.Flush(); err != nil {
		return w.Total(), err
	}
	return len(ids), nil
}

// StringField returns a stored string field of a hit.
func StringField(hit *search.DocumentMatch, name string) string {
	if v, ok := hit.Fields[name].(string); ok {
		return v
	}
	return ""
}

// IntField returns a stored numeric field of a hit.
func IntField(hit *search.DocumentMatch, name string) int {
	switch v := hit.Fields[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// LineKeyFromHit rebuilds the record key of a line document hit.
func LineKeyFromHit(hit *search.DocumentMatch) domain.LineKey {
	return domain.LineKey{
		Path:       StringField(hit, domain.LineFieldPath),
		Content:    StringField(hit, domain.LineFieldContent),
		LineNumber: IntField(hit, domain.LineFieldLineNumber),
	}
}

// LineFields are the stored fields of a line document.
var LineFields = []string{
	domain.LineFieldContent,
	domain.LineFieldPath,
	domain.LineFieldLineNumber,
	domain.LineFieldBranches,
}

// FileFields are the stored fields of a file document.
var FileFields = []string{
	domain.FileFieldAuthorEmail,
	domain.FileFieldDate,
	domain.FileFieldPackage,
	domain.FileFieldPath,
	domain.FileFieldRepositoryType,
	domain.FileFieldBranch,
	domain.FileFieldRepository,
}
