// Package indexing drives index rebuild cycles: it detects which repository
// branches moved, walks them in parallel into per-repository merge caches and
// applies the caches to the staging generation before swapping it in.
package indexing

import (
	"context"

	"github.com/sha1n/gitsearch-mcp-server/internal/domain"
)

// VersionControl is the subset of git operations a rebuild needs.
type VersionControl interface {
	// FetchBranches lists remote branches and their head commits.
	FetchBranches(ctx context.Context, uri string) (map[string]string, error)
	Clone(ctx context.Context, uri, dir string) error
	Checkout(ctx context.Context, dir, branch string) error
	// LastCommit reports false when the path has no resolvable commit.
	LastCommit(ctx context.Context, dir, path string) (domain.Commit, bool)
}

// RepositoryCatalog lists the repositories to index.
type RepositoryCatalog interface {
	ListRepositories() ([]domain.Repository, error)
}

// BranchStateStore keeps the last indexed head of every branch.
type BranchStateStore interface {
	FindByRepository(ctx context.Context, uri string) ([]domain.BranchHead, error)
	Upsert(ctx context.Context, heads []domain.BranchHead) error
	Delete(ctx context.Context, uri string, branches []string) error
}
