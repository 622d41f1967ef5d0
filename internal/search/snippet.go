package search

import (
	"context"
	"fmt"
	"slices"

	"github.com/blevesearch/bleve/v2"

	"github.com/sha1n/gitsearch-mcp-server/internal/domain"
	"github.com/sha1n/gitsearch-mcp-server/internal/index"
)

// Snippet returns up to 2N+1 contiguous lines of path on branch around
// lineNumber. Near the start or end of a file the window shifts so it stays
// as long as possible.
func (c *Composer) Snippet(ctx context.Context, path string, lineNumber int, branch string) (*domain.Snippet, error) {
	if path == "" || branch == "" || lineNumber < 1 {
		return nil, fmt.Errorf("%w: snippet needs a path, a branch and a positive line number", ErrInvalidQuery)
	}

	n := c.opts.SnippetRadius
	snippet := &domain.Snippet{
		Path:        path,
		Branch:      branch,
		Repository:  domain.Unknown,
		AuthorEmail: domain.Unknown,
		Date:        domain.Unknown,
		Lines:       []domain.SnippetLine{},
	}

	err := c.store.View(func(g *index.Generation, _ uint64) error {
		lo, hi := float64(lineNumber-2*n), float64(lineNumber+2*n)
		inclusive := true
		lineRange := bleve.NewNumericRangeInclusiveQuery(&lo, &hi, &inclusive, &inclusive)
		lineRange.SetField(domain.LineFieldLineNumber)

		q := bleve.NewConjunctionQuery(
			termQuery(domain.LineFieldPath, path),
			termQuery(domain.LineFieldBranches, branch),
			lineRange,
		)
		req := bleve.NewSearchRequestOptions(q, 2*(2*n)+1, 0, false)
		req.Fields = index.LineFields
		req.SortBy([]string{domain.LineFieldLineNumber})

		res, err := g.Lines().SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("snippet search failed: %w", err)
		}
		lines := make([]domain.SnippetLine, 0, len(res.Hits))
		for _, hit := range res.Hits {
			key := index.LineKeyFromHit(hit)
			lines = append(lines, domain.SnippetLine{LineNumber: key.LineNumber, Content: key.Content})
		}
		slices.SortFunc(lines, func(a, b domain.SnippetLine) int { return a.LineNumber - b.LineNumber })
		snippet.Lines = Window(lines, lineNumber, n)

		return c.fileMetadata(ctx, g, snippet)
	})
	if err != nil {
		return nil, err
	}
	return snippet, nil
}

func (c *Composer) fileMetadata(ctx context.Context, g *index.Generation, snippet *domain.Snippet) error {
	q := bleve.NewConjunctionQuery(
		termQuery(domain.FileFieldPath, snippet.Path),
		termQuery(domain.FileFieldBranch, snippet.Branch),
	)
	req := bleve.NewSearchRequestOptions(q, 1, 0, false)
	req.Fields = index.FileFields

	res, err := g.Files().SearchInContext(ctx, req)
	if err != nil {
		return fmt.Errorf("file metadata search failed: %w", err)
	}
	if len(res.Hits) == 0 {
		return nil
	}
	hit := res.Hits[0]
	if v := index.StringField(hit, domain.FileFieldRepository); v != "" {
		snippet.Repository = v
	}
	if v := index.StringField(hit, domain.FileFieldAuthorEmail); v != "" {
		snippet.AuthorEmail = v
	}
	if v := index.StringField(hit, domain.FileFieldDate); v != "" {
		snippet.Date = v
	}
	return nil
}

// Window selects the lines around lineNumber from lines sorted by line
// number. It takes n lines on each side and gives the unused allowance of a
// short side to the other one. If lineNumber is missing the window is
// anchored at the first line.
func Window(lines []domain.SnippetLine, lineNumber, n int) []domain.SnippetLine {
	if len(lines) == 0 {
		return lines
	}
	p := 0
	for i, l := range lines {
		if l.LineNumber == lineNumber {
			p = i
			break
		}
	}

	before := p
	after := len(lines) - 1 - p
	extraBefore := n - min(after, n)
	extraAfter := n - min(before, n)

	from := max(p-n-extraBefore, 0)
	to := min(p+n+extraAfter, len(lines)-1)
	return lines[from : to+1]
}
