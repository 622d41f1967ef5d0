package testkit

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/sha1n/gitsearch-mcp-server/internal/gitrepos"
)

// RequireGit skips the test when no git binary is available.
func RequireGit(t testing.TB) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git is not installed")
	}
}

// GitRemote is a local bare repository that tests commit branches to. It is
// reachable through a file:// URL so shallow clones work as they do against
// a real server.
type GitRemote struct {
	name string
	dir  string
	git  gitrepos.CommandExecutor
}

// NewGitRemote creates a remote named name under baseDir. The repository is
// created by Start.
func NewGitRemote(baseDir, name string) *GitRemote {
	return &GitRemote{
		name: name,
		dir:  filepath.Join(baseDir, name),
		git:  &gitrepos.DefaultExecutor{},
	}
}

// Start creates the bare repository and a work tree pushing to it. The URL
// is published under "<name>.url".
func (r *GitRemote) Start() (map[string]any, error) {
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return nil, err
	}
	steps := [][]string{
		{"init", "--bare", r.bareDir()},
		{"--git-dir", r.bareDir(), "symbolic-ref", "HEAD", "refs/heads/master"},
		{"init", r.workDir()},
	}
	for _, args := range steps {
		if _, err := r.git.Run(context.Background(), "", "git", args...); err != nil {
			return nil, err
		}
	}
	if err := r.run("remote", "add", "origin", r.bareDir()); err != nil {
		return nil, err
	}
	return map[string]any{r.name + ".url": r.URL()}, nil
}

// Stop removes the repository.
func (r *GitRemote) Stop() error {
	return os.RemoveAll(r.dir)
}

// GetName returns the remote name.
func (r *GitRemote) GetName() string {
	return r.name
}

// URL returns the clone URL of the bare repository.
func (r *GitRemote) URL() string {
	return "file://" + r.bareDir()
}

// Commit writes files on branch and pushes the commit. A branch that does not
// exist yet is forked from the current one.
func (r *GitRemote) Commit(branch string, files map[string]string) error {
	if err := r.switchTo(branch); err != nil {
		return err
	}

	for rel, content := range files {
		path := filepath.Join(r.workDir(), rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return err
		}
	}

	if err := r.run("add", "-A"); err != nil {
		return err
	}
	if err := r.run("-c", "user.name=Test", "-c", "user.email=dev@acme.io", "commit", "-q", "-m", "update "+branch); err != nil {
		return err
	}
	return r.run("push", "-q", "origin", branch)
}

func (r *GitRemote) switchTo(branch string) error {
	if r.run("rev-parse", "--verify", "--quiet", "refs/heads/"+branch) == nil {
		return r.run("checkout", "-q", branch)
	}
	// no commit yet: point the unborn HEAD at the branch
	if r.run("rev-parse", "--verify", "--quiet", "HEAD") != nil {
		return r.run("symbolic-ref", "HEAD", "refs/heads/"+branch)
	}
	return r.run("checkout", "-q", "-b", branch)
}

// DeleteBranch removes branch from the remote.
func (r *GitRemote) DeleteBranch(branch string) error {
	return r.run("push", "-q", "origin", "--delete", branch)
}

func (r *GitRemote) run(args ...string) error {
	if _, err := r.git.Run(context.Background(), r.workDir(), "git", args...); err != nil {
		return fmt.Errorf("git %v: %w", args, err)
	}
	return nil
}

func (r *GitRemote) bareDir() string {
	return filepath.Join(r.dir, r.name+".git")
}

func (r *GitRemote) workDir() string {
	return filepath.Join(r.dir, "work")
}
