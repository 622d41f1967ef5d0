// Package search composes exact, fuzzy and filtered queries against the
// active index generation and assembles code snippets.
package search

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	bsearch "github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sha1n/gitsearch-mcp-server/internal/domain"
	"github.com/sha1n/gitsearch-mcp-server/internal/index"
)

// ErrInvalidQuery is returned for blank search strings and incomplete
// snippet requests.
var ErrInvalidQuery = errors.New("invalid query")

const (
	DefaultMaxResults      = 100
	DefaultSnippetRadius   = 3
	DefaultFilterCacheSize = 256
)

// Options tunes a Composer.
type Options struct {
	MaxResults      int
	SnippetRadius   int
	FilterCacheSize int
}

// Composer runs queries against the active generation of a store. It is safe
// for concurrent use.
type Composer struct {
	store  *index.Store
	opts   Options
	allows *lru.Cache[string, []string]
}

// NewComposer creates a composer reading from store.
func NewComposer(store *index.Store, opts Options) (*Composer, error) {
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.SnippetRadius <= 0 {
		opts.SnippetRadius = DefaultSnippetRadius
	}
	if opts.FilterCacheSize <= 0 {
		opts.FilterCacheSize = DefaultFilterCacheSize
	}
	allows, err := lru.New[string, []string](opts.FilterCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create filter cache: %w", err)
	}
	return &Composer{store: store, opts: opts, allows: allows}, nil
}

// ExactSearch finds lines containing s as a case-insensitive substring.
func (c *Composer) ExactSearch(ctx context.Context, s string, filters []domain.Filter, branch string) ([]domain.LineResult, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("%w: empty search string", ErrInvalidQuery)
	}
	q := bleve.NewMatchPhraseQuery(strings.ToLower(s))
	q.SetField(domain.LineFieldContent)
	return c.searchLines(ctx, q, filters, branch)
}

// FuzzySearch finds lines containing every two character chunk of s, in any
// order.
func (c *Composer) FuzzySearch(ctx context.Context, s string, filters []domain.Filter, branch string) ([]domain.LineResult, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("%w: empty search string", ErrInvalidQuery)
	}

	var chunks []query.Query
	for _, chunk := range Chunks(strings.ToLower(s), 2) {
		if utf8.RuneCountInString(chunk) == 2 {
			chunks = append(chunks, termQuery(domain.LineFieldContent, chunk))
			continue
		}
		// a trailing single character matches any bigram containing it
		rq := bleve.NewRegexpQuery(".*" + regexp.QuoteMeta(chunk) + ".*")
		rq.SetField(domain.LineFieldContent)
		chunks = append(chunks, rq)
	}
	return c.searchLines(ctx, bleve.NewConjunctionQuery(chunks...), filters, branch)
}

// Search runs an exact search and falls back to a fuzzy search when it finds
// nothing.
func (c *Composer) Search(ctx context.Context, s string, filters []domain.Filter, branch string) (*domain.SearchResult, error) {
	exact, err := c.ExactSearch(ctx, s, filters, branch)
	if err != nil {
		return nil, err
	}
	res := &domain.SearchResult{Exact: exact, Fuzzy: []domain.LineResult{}}
	if len(exact) > 0 {
		return res, nil
	}
	res.Fuzzy, err = c.FuzzySearch(ctx, s, filters, branch)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Chunks splits s into consecutive chunks of n runes. The last chunk may be
// shorter.
func Chunks(s string, n int) []string {
	runes := []rune(s)
	var chunks []string
	for i := 0; i < len(runes); i += n {
		chunks = append(chunks, string(runes[i:min(i+n, len(runes))]))
	}
	return chunks
}

func (c *Composer) searchLines(ctx context.Context, content query.Query, filters []domain.Filter, branch string) ([]domain.LineResult, error) {
	results := []domain.LineResult{}
	err := c.store.View(func(g *index.Generation, epoch uint64) error {
		q := content
		if len(filters) > 0 {
			paths, err := c.allowList(ctx, g, epoch, filters)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return nil
			}
			pathQueries := make([]query.Query, 0, len(paths))
			for _, p := range paths {
				pathQueries = append(pathQueries, termQuery(domain.LineFieldPath, p))
			}
			q = bleve.NewConjunctionQuery(q, bleve.NewDisjunctionQuery(pathQueries...))
		}
		if branch != "" {
			q = bleve.NewConjunctionQuery(q, termQuery(domain.LineFieldBranches, branch))
		}

		req := bleve.NewSearchRequestOptions(q, c.opts.MaxResults, 0, false)
		req.Fields = index.LineFields
		res, err := g.Lines().SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("line search failed: %w", err)
		}
		for _, hit := range res.Hits {
			results = append(results, lineResult(hit))
		}
		return nil
	})
	return results, err
}

func lineResult(hit *bsearch.DocumentMatch) domain.LineResult {
	key := index.LineKeyFromHit(hit)
	return domain.LineResult{
		Content:    key.Content,
		Path:       key.Path,
		LineNumber: key.LineNumber,
		Branch:     RepresentativeBranch(index.StringField(hit, domain.LineFieldBranches)),
	}
}

// allowList returns the distinct paths of file documents matching every
// filter. Lists are cached per generation epoch.
func (c *Composer) allowList(ctx context.Context, g *index.Generation, epoch uint64, filters []domain.Filter) ([]string, error) {
	cacheKey := filterCacheKey(epoch, filters)
	if paths, ok := c.allows.Get(cacheKey); ok {
		return paths, nil
	}

	predicates := make([]query.Query, 0, len(filters))
	for _, f := range filters {
		predicates = append(predicates, predicate(f))
	}

	seen := make(map[string]struct{})
	fields := []string{domain.FileFieldPath}
	err := index.ForEach(ctx, g.Files(), bleve.NewConjunctionQuery(predicates...), fields, func(hit *bsearch.DocumentMatch) error {
		seen[index.StringField(hit, domain.FileFieldPath)] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("filter search failed: %w", err)
	}

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	c.allows.Add(cacheKey, paths)
	return paths, nil
}

func filterCacheKey(epoch uint64, filters []domain.Filter) string {
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		parts = append(parts, f.Kind()+"="+f.Value())
	}
	sort.Strings(parts)
	return fmt.Sprintf("%d|%s", epoch, strings.Join(parts, "\x00"))
}

// predicate translates a filter into a query over the file collection.
func predicate(f domain.Filter) query.Query {
	switch f := f.(type) {
	case domain.ExtensionFilter:
		return wildcardQuery(domain.FileFieldPath, "*."+strings.ToLower(f.Extension))
	case domain.PackageFilter:
		return wildcardQuery(domain.FileFieldPackage, strings.ToLower(f.Package))
	case domain.FileMaskFilter:
		return wildcardQuery(domain.FileFieldPath, "*"+f.Mask+".*")
	case domain.DirectoryFilter:
		return wildcardQuery(domain.FileFieldPath, "*"+strings.ToLower(f.Directory)+"/*")
	case domain.RepositoryFilter:
		return wildcardQuery(domain.FileFieldRepository, "*"+strings.ToLower(f.Repository)+"*")
	case domain.RepositoryTypeFilter:
		return termQuery(domain.FileFieldRepositoryType, strings.ToLower(f.Type))
	default:
		panic(fmt.Sprintf("unhandled filter %T", f))
	}
}

func termQuery(field, term string) query.Query {
	q := bleve.NewTermQuery(term)
	q.SetField(field)
	return q
}

func wildcardQuery(field, pattern string) query.Query {
	q := bleve.NewWildcardQuery(pattern)
	q.SetField(field)
	return q
}

// RepresentativeBranch picks the branch shown for a line seen on several
// branches: master if present, otherwise the first branch in sorted order.
// The release and patch tiers only apply to branch lists containing the
// literal names "*-release" and "*-patch".
func RepresentativeBranch(branches string) string {
	list := domain.SplitBranches(branches)
	if len(list) == 0 {
		return ""
	}
	if slices.Contains(list, "master") {
		return "master"
	}

	sorted := slices.Clone(list)
	slices.Sort(sorted)
	for _, tier := range []string{"-release", "-patch"} {
		if !slices.Contains(list, "*"+tier) {
			continue
		}
		for _, b := range sorted {
			if strings.Contains(b, tier) {
				return b
			}
		}
	}
	return sorted[0]
}
