package gitrepos

import (
	"strings"
	"testing"
)

func TestRepositoryName(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		want string
	}{
		{"scp style with .git", "git@github.com:org/billing.git", "billing"},
		{"scp style without .git", "git@github.com:org/billing", "billing"},
		{"gitlab subgroup", "git@gitlab.com:group/sub/billing.git", "billing"},
		{"ssh url", "ssh://git@github.com/org/billing.git", "billing"},
		{"https url", "https://github.com/org/billing.git", "billing"},
		{"trailing slash", "https://github.com/org/billing/", "billing"},
		{"local path", "/srv/git/billing.git", "billing"},
		{"file url", "file:///srv/git/billing", "billing"},
		{"bare name", "billing", "billing"},
		{"whitespace", "  git@github.com:org/billing.git\n", "billing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RepositoryName(tt.uri); got != tt.want {
				t.Errorf("RepositoryName(%q) = %q, want %q", tt.uri, got, tt.want)
			}
		})
	}
}

func TestSanitizeForFilesystem(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"simple", "simple"},
		{"with/slash", "with_slash"},
		{"with:colon", "with_colon"},
		{"with@at", "with_at"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := sanitizeForFilesystem(tt.input); got != tt.want {
				t.Errorf("sanitizeForFilesystem(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCloneDirName(t *testing.T) {
	a := CloneDirName("git@github.com:acme/billing.git")
	b := CloneDirName("git@github.com:other/billing.git")

	if a == b {
		t.Errorf("Expected distinct directories for remotes sharing a name, got %q", a)
	}
	if !strings.HasPrefix(a, "billing-") {
		t.Errorf("Expected directory to start with the repository name, got %q", a)
	}
	if a != CloneDirName("  git@github.com:acme/billing.git\n") {
		t.Error("Expected surrounding whitespace to be ignored")
	}
	if strings.ContainsAny(a, "/:@") {
		t.Errorf("Expected filesystem safe name, got %q", a)
	}
}
