package gitrepos

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sha1n/gitsearch-mcp-server/internal/domain"
)

// Catalog is the static list of repositories to index, read from a YAML (or
// JSON) file of {remote, type} entries.
type Catalog struct {
	path string
}

// NewCatalog creates a catalog backed by the given file. An empty path means
// no catalog is configured.
func NewCatalog(path string) *Catalog {
	return &Catalog{path: path}
}

// ListRepositories reads the catalog file. A missing file yields an empty list.
func (c *Catalog) ListRepositories() ([]domain.Repository, error) {
	if c.path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	return ParseCatalog(data)
}

// ParseCatalog decodes catalog entries. Entries without a remote are dropped.
// Indexed paths and branch state are keyed by the short repository name, so
// two remotes resolving to the same name are rejected.
func ParseCatalog(data []byte) ([]domain.Repository, error) {
	var entries []domain.Repository
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	repos := make([]domain.Repository, 0, len(entries))
	remotesByName := make(map[string]string, len(entries))
	for _, e := range entries {
		e.Remote = strings.TrimSpace(e.Remote)
		if e.Remote == "" {
			continue
		}
		name := RepositoryName(e.Remote)
		if other, ok := remotesByName[name]; ok {
			return nil, fmt.Errorf("catalog remotes %q and %q share repository name %q", other, e.Remote, name)
		}
		remotesByName[name] = e.Remote
		e.Type = strings.TrimSpace(e.Type)
		repos = append(repos, e)
	}
	return repos, nil
}
