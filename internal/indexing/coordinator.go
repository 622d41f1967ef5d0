package indexing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sha1n/gitsearch-mcp-server/internal/domain"
	"github.com/sha1n/gitsearch-mcp-server/internal/gitrepos"
	"github.com/sha1n/gitsearch-mcp-server/internal/index"
)

const (
	// LockFilename guards a data directory against concurrent rebuilds by
	// other processes.
	LockFilename = "update.lock"

	// DefaultBatchThreshold is the branch count up to which a repository is
	// walked in a single batch.
	DefaultBatchThreshold = 20

	// InfoTimeLayout formats the last cycle time for display.
	InfoTimeLayout = "03:04"
)

// Options tunes a Coordinator.
type Options struct {
	// DataDir holds clones/, cache/, the update lock and the manifest.
	DataDir        string
	Parallelism    int
	BatchThreshold int
	LinesCacheSize int
	FilesCacheSize int
	Logger         *slog.Logger
	Now            func() time.Time
}

// Coordinator runs rebuild cycles against an index store.
type Coordinator struct {
	store    *index.Store
	catalog  RepositoryCatalog
	vcs      VersionControl
	heads    BranchStateStore
	filter   *gitrepos.FileFilter
	lock     *gitrepos.FileLock
	manifest *gitrepos.Manifest
	opts     Options

	running   atomic.Bool
	dirty     atomic.Bool
	lastCycle atomic.Pointer[time.Time]
}

// NewCoordinator creates a coordinator and loads the cycle manifest of the
// data directory.
func NewCoordinator(store *index.Store, catalog RepositoryCatalog, vcs VersionControl, heads BranchStateStore, filter *gitrepos.FileFilter, opts Options) (*Coordinator, error) {
	if opts.DataDir == "" {
		return nil, fmt.Errorf("data directory cannot be empty")
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = runtime.NumCPU()
	}
	if opts.BatchThreshold <= 0 {
		opts.BatchThreshold = DefaultBatchThreshold
	}
	if opts.LinesCacheSize <= 0 {
		opts.LinesCacheSize = 2_000_000
	}
	if opts.FilesCacheSize <= 0 {
		opts.FilesCacheSize = 200_000
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	manifest, err := gitrepos.LoadManifest(filepath.Join(opts.DataDir, gitrepos.ManifestFilename))
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		store:    store,
		catalog:  catalog,
		vcs:      vcs,
		heads:    heads,
		filter:   filter,
		lock:     gitrepos.NewFileLock(filepath.Join(opts.DataDir, LockFilename)),
		manifest: manifest,
		opts:     opts,
	}
	if last := manifest.LastCycleTime(); !last.IsZero() {
		c.lastCycle.Store(&last)
	}
	return c, nil
}

// repositoryPlan is the change set of one repository.
type repositoryPlan struct {
	repo     domain.Repository
	name     string
	remote   map[string]string
	update   []string
	vanished []string
}

// UpdateIndex runs one rebuild cycle. If a cycle is already running, in this
// process or another one sharing the data directory, it returns nil at once.
func (c *Coordinator) UpdateIndex(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		c.opts.Logger.Info("Index update already running, skipping")
		return nil
	}
	defer c.running.Store(false)

	acquired, err := c.lock.TryLock()
	if err != nil {
		return err
	}
	if !acquired {
		c.opts.Logger.Info("Another process is updating the index, skipping", "lock", c.lock.Path())
		return nil
	}
	defer func() {
		if err := c.lock.Unlock(); err != nil {
			c.opts.Logger.Error("Failed to release update lock", "error", err)
		}
	}()

	logger := c.opts.Logger.With("cycle_id", uuid.NewString())
	started := c.opts.Now()
	logger.Info("Starting index update")

	repos, err := c.catalog.ListRepositories()
	if err != nil {
		return fmt.Errorf("failed to list repositories: %w", err)
	}
	c.dropStaleRepositories(logger, repos)

	plans := c.detectChanges(ctx, logger, repos)
	if len(plans) == 0 {
		logger.Info("No repository changed")
		return c.finishCycle(logger, c.opts.Now())
	}

	if c.dirty.Load() {
		if err := c.store.SyncStaging(); err != nil {
			return err
		}
		c.dirty.Store(false)
	}

	results, err := c.indexRepositories(ctx, logger, plans)
	defer removeCaches(logger, results)
	if err != nil {
		// keep the recorded repository errors even though the cycle aborts
		_ = c.saveManifest(logger)
		return err
	}

	if err := c.apply(logger, results); err != nil {
		return err
	}
	if err := c.store.Swap(); err != nil {
		return err
	}
	c.dirty.Store(false)

	headsErr := c.storeHeads(ctx, plans, results)
	c.recordResults(results)
	if err := c.finishCycle(logger, c.opts.Now()); err != nil {
		return errors.Join(headsErr, err)
	}

	logger.Info("Index update completed", "repositories", len(plans), "duration", c.opts.Now().Sub(started))
	return headsErr
}

// detectChanges compares remote heads with stored heads for every repository
// in parallel. Repositories whose remote cannot be listed are skipped.
func (c *Coordinator) detectChanges(ctx context.Context, logger *slog.Logger, repos []domain.Repository) []*repositoryPlan {
	plans := make([]*repositoryPlan, len(repos))

	var g errgroup.Group
	g.SetLimit(c.opts.Parallelism)
	for i, repo := range repos {
		g.Go(func() error {
			plan, err := c.planRepository(ctx, repo)
			if err != nil {
				logger.Error("Failed to check repository for updates", "repository", repo.Remote, "error", err)
				c.manifest.SetRepoError(gitrepos.RepositoryName(repo.Remote), repo.Remote, err.Error())
				return nil
			}
			if len(plan.update) > 0 || len(plan.vanished) > 0 {
				logger.Info("Repository has updates",
					"repository", plan.name,
					"branches", len(plan.update),
					"vanished", len(plan.vanished))
				plans[i] = plan
			}
			return nil
		})
	}
	_ = g.Wait()

	return slices.DeleteFunc(plans, func(p *repositoryPlan) bool { return p == nil })
}

func (c *Coordinator) planRepository(ctx context.Context, repo domain.Repository) (*repositoryPlan, error) {
	remote, err := c.vcs.FetchBranches(ctx, repo.Remote)
	if err != nil {
		return nil, err
	}
	stored, err := c.heads.FindByRepository(ctx, repo.Remote)
	if err != nil {
		return nil, err
	}

	plan := &repositoryPlan{repo: repo, name: gitrepos.RepositoryName(repo.Remote), remote: remote}
	known := make(map[string]string, len(stored))
	for _, h := range stored {
		known[h.Branch] = h.Head
		if _, ok := remote[h.Branch]; !ok {
			plan.vanished = append(plan.vanished, h.Branch)
		}
	}
	for branch, head := range remote {
		if known[branch] != head {
			plan.update = append(plan.update, branch)
		}
	}
	slices.Sort(plan.update)
	slices.Sort(plan.vanished)
	return plan, nil
}

// indexRepositories runs one RepositoryIndexer per plan on a bounded pool.
// Staging is marked dirty first; it stays dirty when any repository fails.
func (c *Coordinator) indexRepositories(ctx context.Context, logger *slog.Logger, plans []*repositoryPlan) ([]*RepositoryResult, error) {
	persist := newPersister()
	defer persist.close()

	indexer := &RepositoryIndexer{
		vcs:            c.vcs,
		filter:         c.filter,
		clonesDir:      filepath.Join(c.opts.DataDir, "clones"),
		cacheDir:       filepath.Join(c.opts.DataDir, "cache"),
		batchThreshold: c.opts.BatchThreshold,
		parallelism:    c.opts.Parallelism,
		lineLimit:      c.opts.LinesCacheSize,
		fileLimit:      c.opts.FilesCacheSize,
		batches:        semaphore.NewWeighted(int64(c.opts.Parallelism)),
		persist:        persist,
		logger:         logger,
	}

	staging := c.store.Staging()
	c.dirty.Store(true)

	results := make([]*RepositoryResult, len(plans))
	var mu sync.Mutex
	var errs []error

	var g errgroup.Group
	g.SetLimit(c.opts.Parallelism)
	for i, plan := range plans {
		g.Go(func() error {
			res, err := indexer.Index(ctx, plan.repo, plan.update, plan.vanished, staging)
			results[i] = res
			if err != nil {
				c.manifest.SetRepoError(plan.name, plan.repo.Remote, err.Error())
				mu.Lock()
				errs = append(errs, fmt.Errorf("repository %s: %w", plan.name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}

// apply streams every repository cache into staging.
func (c *Coordinator) apply(logger *slog.Logger, results []*RepositoryResult) error {
	staging := c.store.Staging()
	for _, res := range results {
		if res == nil || res.Cache == nil {
			continue
		}
		w := staging.NewWriter()
		err := res.Cache.ReadAndClear(w.AddLine, w.AddFile)
		if err == nil {
			err = w.Flush()
		}
		if err != nil {
			return fmt.Errorf("failed to apply records of %s: %w", res.Name, err)
		}
		lines, files := w.Totals()
		logger.Info("Applied repository records", "repository", res.Name, "lines", lines, "files", files)
	}
	return nil
}

// storeHeads persists the heads of walked branches and forgets vanished ones.
// Failed branches keep their old head so the next cycle retries them.
func (c *Coordinator) storeHeads(ctx context.Context, plans []*repositoryPlan, results []*RepositoryResult) error {
	var errs []error
	for i, plan := range plans {
		res := results[i]
		if res == nil {
			continue
		}
		heads := make([]domain.BranchHead, 0, len(res.Succeeded))
		for _, b := range res.Succeeded {
			heads = append(heads, domain.BranchHead{RepositoryURI: plan.repo.Remote, Branch: b, Head: plan.remote[b]})
		}
		if err := c.heads.Upsert(ctx, heads); err != nil {
			errs = append(errs, fmt.Errorf("failed to store heads of %s: %w", plan.name, err))
		}
		if err := c.heads.Delete(ctx, plan.repo.Remote, res.Vanished); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete heads of %s: %w", plan.name, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Coordinator) recordResults(results []*RepositoryResult) {
	now := c.opts.Now()
	for _, res := range results {
		if res == nil {
			continue
		}
		c.manifest.MarkIndexed(res.Name, res.Repository.Remote, res.Repository.Type, len(res.Succeeded), now)
		if len(res.Failed) > 0 {
			c.manifest.SetRepoError(res.Name, res.Repository.Remote, "failed branches: "+strings.Join(res.Failed, ", "))
		}
	}
}

// dropStaleRepositories forgets manifest entries of repositories that left
// the catalog.
func (c *Coordinator) dropStaleRepositories(logger *slog.Logger, repos []domain.Repository) {
	urls := make([]string, 0, len(repos))
	for _, r := range repos {
		urls = append(urls, r.Remote)
	}
	for _, name := range c.manifest.RemoveStaleRepos(urls) {
		logger.Info("Removed stale repository from manifest", "repository", name)
	}
}

func (c *Coordinator) finishCycle(logger *slog.Logger, at time.Time) error {
	if failing := c.manifest.GetReposWithErrors(); len(failing) > 0 {
		logger.Warn("Repositories with errors", "count", len(failing), "repositories", failing)
	}
	c.manifest.RecordCycle(at)
	c.lastCycle.Store(&at)
	return c.saveManifest(logger)
}

func (c *Coordinator) saveManifest(logger *slog.Logger) error {
	if err := c.manifest.Save(filepath.Join(c.opts.DataDir, gitrepos.ManifestFilename)); err != nil {
		logger.Error("Failed to save manifest", "error", err)
		return err
	}
	return nil
}

func removeCaches(logger *slog.Logger, results []*RepositoryResult) {
	for _, res := range results {
		if res == nil || res.Cache == nil {
			continue
		}
		if err := res.Cache.Remove(); err != nil {
			logger.Warn("Failed to remove merge cache", "repository", res.Name, "error", err)
		}
	}
}

// Running reports whether a cycle is in progress.
func (c *Coordinator) Running() bool {
	return c.running.Load()
}

// LastCycle returns the completion time of the last successful cycle.
func (c *Coordinator) LastCycle() (time.Time, bool) {
	if t := c.lastCycle.Load(); t != nil {
		return *t, true
	}
	return time.Time{}, false
}

// IndexInfo returns the last cycle time formatted for display. The second
// value is false before the first successful cycle.
func (c *Coordinator) IndexInfo() (string, bool) {
	t, ok := c.LastCycle()
	if !ok {
		return "", false
	}
	return t.Format(InfoTimeLayout), true
}

// Repositories returns the per repository state of the last cycles.
func (c *Coordinator) Repositories() map[string]gitrepos.RepoState {
	return c.manifest.Snapshot()
}
