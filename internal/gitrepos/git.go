package gitrepos

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/sha1n/gitsearch-mcp-server/internal/domain"
)

// CommandExecutor abstracts command execution for testing.
type CommandExecutor interface {
	// Run executes a command and returns its standard output.
	Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error)
}

// DefaultExecutor executes commands using os/exec.
type DefaultExecutor struct{}

// Run executes a command and returns its standard output.
func (e *DefaultExecutor) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		// Include stderr in error message for debugging
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}

	return stdout.Bytes(), nil
}

// GitClient drives the git command line.
type GitClient struct {
	executor CommandExecutor
	depth    int
}

// NewGitClient creates a GitClient with the default command executor.
// A positive depth makes clones shallow, which makes LastCommit report the
// oldest fetched commit for files changed before it.
func NewGitClient(depth int) *GitClient {
	return &GitClient{
		executor: &DefaultExecutor{},
		depth:    depth,
	}
}

// NewGitClientWithExecutor creates a GitClient with a custom executor (for testing).
func NewGitClientWithExecutor(executor CommandExecutor, depth int) *GitClient {
	return &GitClient{
		executor: executor,
		depth:    depth,
	}
}

// FetchBranches lists the remote branches of a repository and their head
// commits without cloning it.
func (g *GitClient) FetchBranches(ctx context.Context, url string) (map[string]string, error) {
	output, err := g.executor.Run(ctx, "", "git", "ls-remote", "--heads", url)
	if err != nil {
		return nil, fmt.Errorf("git ls-remote failed: %w", err)
	}

	heads := make(map[string]string)
	for _, line := range strings.Split(string(output), "\n") {
		hash, ref, found := strings.Cut(strings.TrimSpace(line), "\t")
		if !found {
			continue
		}
		branch, ok := strings.CutPrefix(ref, "refs/heads/")
		if !ok || branch == "" {
			continue
		}
		heads[branch] = hash
	}
	return heads, nil
}

// Clone clones the repository without checking out a working tree. All
// remote branches are fetched so any of them can be checked out later.
// Without a depth the clone is blobless: the full commit history is fetched,
// so LastCommit sees the real last change of every path, and file contents
// are fetched on checkout.
func (g *GitClient) Clone(ctx context.Context, url, destDir string) error {
	args := []string{"clone", "--no-checkout"}
	if g.depth > 0 {
		args = append(args, "--depth", strconv.Itoa(g.depth), "--no-single-branch")
	} else {
		args = append(args, "--filter=blob:none")
	}
	args = append(args, url, destDir)

	if _, err := g.executor.Run(ctx, "", "git", args...); err != nil {
		return fmt.Errorf("git clone failed: %w", err)
	}
	return nil
}

// Checkout forces the working tree to the tip of the remote branch and
// removes anything left over from the previous checkout.
func (g *GitClient) Checkout(ctx context.Context, repoDir, branch string) error {
	_, err := g.executor.Run(ctx, repoDir, "git", "checkout", "--force", "-B", branch, "origin/"+branch)
	if err != nil {
		return fmt.Errorf("git checkout failed: %w", err)
	}
	return g.Clean(ctx, repoDir)
}

// LastCommit returns the author and date of the last commit touching path.
// The second return value is false when no commit could be resolved.
func (g *GitClient) LastCommit(ctx context.Context, repoDir, path string) (domain.Commit, bool) {
	output, err := g.executor.Run(ctx, repoDir, "git", "log", "-1", "--format=%ae%x00%at", "--", path)
	if err != nil {
		return domain.Commit{}, false
	}

	email, ts, found := strings.Cut(strings.TrimSpace(string(output)), "\x00")
	if !found {
		return domain.Commit{}, false
	}
	seconds, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return domain.Commit{}, false
	}

	return domain.Commit{
		AuthorEmail: email,
		Date:        time.Unix(seconds, 0).Format(domain.DateLayout),
	}, true
}

// Clean removes untracked files and directories.
func (g *GitClient) Clean(ctx context.Context, repoDir string) error {
	_, err := g.executor.Run(ctx, repoDir, "git", "clean", "-fdx")
	if err != nil {
		return fmt.Errorf("git clean failed: %w", err)
	}
	return nil
}
