package indexing

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sha1n/gitsearch-mcp-server/internal/cache"
	"github.com/sha1n/gitsearch-mcp-server/internal/domain"
	"github.com/sha1n/gitsearch-mcp-server/internal/gitrepos"
	"github.com/sha1n/gitsearch-mcp-server/internal/index"
)

// RepositoryIndexer rebuilds the records of one repository into a merge
// cache. One instance serves a whole cycle; batches of all repositories share
// its semaphore.
type RepositoryIndexer struct {
	vcs            VersionControl
	filter         *gitrepos.FileFilter
	clonesDir      string
	cacheDir       string
	batchThreshold int
	parallelism    int
	lineLimit      int
	fileLimit      int
	batches        *semaphore.Weighted
	persist        *persister
	logger         *slog.Logger
}

// RepositoryResult is the outcome of indexing one repository.
type RepositoryResult struct {
	Name       string
	Repository domain.Repository
	// Succeeded lists branches walked completely.
	Succeeded []string
	// Failed lists branches that could not be checked out or walked.
	Failed []string
	// Vanished lists branches purged because they no longer exist remotely.
	Vanished []string
	// Cache holds the records to apply to the staging generation. It is nil
	// when nothing had to be written.
	Cache *cache.MergeCache
}

// Index walks branches of repo, carries over the attribution of branches
// that were not walked and purges the repository from staging. The walked
// and carried records are left in the result cache.
func (r *RepositoryIndexer) Index(ctx context.Context, repo domain.Repository, branches, vanished []string, staging *index.Generation) (*RepositoryResult, error) {
	name := gitrepos.RepositoryName(repo.Remote)
	dirName := gitrepos.CloneDirName(repo.Remote)
	logger := r.logger.With("repository", name)

	res := &RepositoryResult{Name: name, Repository: repo, Vanished: vanished}

	repoDir := filepath.Join(r.clonesDir, dirName)
	defer func() {
		if err := os.RemoveAll(repoDir); err != nil {
			logger.Warn("Failed to remove clone directory", "dir", repoDir, "error", err)
		}
	}()

	if err := os.MkdirAll(r.cacheDir, 0755); err != nil {
		return res, fmt.Errorf("failed to create cache directory: %w", err)
	}
	mc, err := cache.Create(filepath.Join(r.cacheDir, dirName+".db"))
	if err != nil {
		return res, err
	}
	res.Cache = mc

	acc := newAccumulator(r.lineLimit, r.fileLimit)
	fl := newFlusher(acc, mc, r.persist)
	// no flush may still be writing once the caller owns the cache
	defer fl.wait()

	logger.Info("Indexing repository", "branches", len(branches), "vanished", len(vanished))
	res.Succeeded, res.Failed = r.runBatches(ctx, logger, name, repo, repoDir, branches, acc, fl)

	purge := append(slices.Clone(res.Succeeded), vanished...)
	if len(purge) == 0 {
		logger.Warn("No branch of repository could be indexed", "failed", len(res.Failed))
		return res, fl.flushFinal()
	}

	prefix := index.RepositoryPrefix(name)
	carried, err := r.carryOver(ctx, staging, prefix, purge, acc, fl)
	if err != nil {
		return res, err
	}
	lines, files, err := staging.PurgeRepository(ctx, prefix, purge)
	if err != nil {
		return res, err
	}
	logger.Info("Purged repository from staging", "lines", lines, "files", files, "carried", carried)

	if err := fl.flushFinal(); err != nil {
		return res, fmt.Errorf("failed to flush records: %w", err)
	}

	logger.Info("Indexed repository",
		"succeeded", len(res.Succeeded),
		"failed", len(res.Failed),
		"flushes", fl.flushes.Load())
	return res, nil
}

// runBatches processes branches inline when there are few of them and
// otherwise splits them into one batch per worker, each with its own clone.
func (r *RepositoryIndexer) runBatches(ctx context.Context, logger *slog.Logger, name string, repo domain.Repository, repoDir string, branches []string, acc *accumulator, fl *flusher) (succeeded, failed []string) {
	if len(branches) == 0 {
		return nil, nil
	}
	if len(branches) <= r.batchThreshold {
		return r.processBatch(ctx, logger, name, repo, filepath.Join(repoDir, "batch-0"), branches, acc, fl)
	}

	var mu sync.Mutex
	var g errgroup.Group
	for i, batch := range splitBatches(branches, r.parallelism) {
		dir := filepath.Join(repoDir, "batch-"+strconv.Itoa(i))
		g.Go(func() error {
			var ok, bad []string
			if err := r.batches.Acquire(ctx, 1); err != nil {
				logger.Error("Batch not started", "batch", i, "error", err)
				bad = batch
			} else {
				ok, bad = r.processBatch(ctx, logger, name, repo, dir, batch, acc, fl)
				r.batches.Release(1)
			}

			mu.Lock()
			succeeded = append(succeeded, ok...)
			failed = append(failed, bad...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	slices.Sort(succeeded)
	slices.Sort(failed)
	return succeeded, failed
}

// splitBatches divides branches into n batches whose sizes differ by at most
// one.
func splitBatches(branches []string, n int) [][]string {
	n = max(1, min(n, len(branches)))
	batches := make([][]string, 0, n)
	for i := 0; i < n; i++ {
		batch := branches[i*len(branches)/n : (i+1)*len(branches)/n]
		if len(batch) > 0 {
			batches = append(batches, batch)
		}
	}
	return batches
}

func (r *RepositoryIndexer) processBatch(ctx context.Context, logger *slog.Logger, name string, repo domain.Repository, dir string, branches []string, acc *accumulator, fl *flusher) (succeeded, failed []string) {
	if err := r.vcs.Clone(ctx, repo.Remote, dir); err != nil {
		logger.Error("Failed to clone repository", "dir", dir, "error", err)
		return nil, slices.Clone(branches)
	}

	for _, branch := range branches {
		if err := r.indexBranch(ctx, name, repo, dir, branch, acc, fl); err != nil {
			logger.Error("Failed to index branch", "branch", branch, "error", err)
			failed = append(failed, branch)
			continue
		}
		succeeded = append(succeeded, branch)
	}
	return succeeded, failed
}

func (r *RepositoryIndexer) indexBranch(ctx context.Context, name string, repo domain.Repository, dir, branch string, acc *accumulator, fl *flusher) error {
	if err := r.vcs.Checkout(ctx, dir, branch); err != nil {
		return err
	}

	repoType := strings.ToLower(repo.Type)
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if path != dir && gitrepos.SkipDirectory(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if r.filter.ShouldExclude(rel) {
			return nil
		}

		lines := r.filter.ReadLines(path)
		commit, ok := r.vcs.LastCommit(ctx, dir, rel)
		if !ok {
			commit = domain.Commit{AuthorEmail: domain.Unknown, Date: domain.Unknown}
		}
		remotePath := name + "/" + rel

		acc.addFile(remotePath, branch, lines, domain.FileRecord{
			AuthorEmail:    commit.AuthorEmail,
			Date:           commit.Date,
			Package:        gitrepos.DetectPackage(lines),
			Path:           remotePath,
			RepositoryType: repoType,
			Branch:         branch,
			Repository:     name,
		})
		fl.maybeFlush()
		return nil
	})
}

// carryOver re-adds the attribution of branches outside purge for every line
// of the repository in staging, since all of its line documents are about to
// be deleted.
func (r *RepositoryIndexer) carryOver(ctx context.Context, staging *index.Generation, prefix string, purge []string, acc *accumulator, fl *flusher) (int, error) {
	carried := 0
	err := staging.ScanLines(ctx, prefix, func(key domain.LineKey, branches string) error {
		var kept []string
		for _, b := range domain.SplitBranches(branches) {
			if !slices.Contains(purge, b) {
				kept = append(kept, b)
			}
		}
		if len(kept) == 0 {
			return nil
		}
		acc.addLine(key, strings.Join(kept, " "))
		fl.maybeFlush()
		carried++
		return nil
	})
	if err != nil {
		return carried, fmt.Errorf("failed to carry over line attribution: %w", err)
	}
	return carried, nil
}
