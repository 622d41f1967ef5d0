package gitrepos

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

var (
	// Matches scp-style remotes: git@github.com:org/repo.git
	scpPattern = regexp.MustCompile(`^[\w.-]+@[^:/]+:(.+)$`)

	// Matches scheme-prefixed remotes: https://, ssh://, git://, file://
	schemePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://(.+)$`)
)

// RepositoryName derives the short repository name from a remote URI: the
// scheme, host and ".git" suffix are dropped and the last path segment is
// returned.
//
// Examples:
//   - git@github.com:org/billing.git -> billing
//   - https://gitlab.com/group/sub/billing -> billing
//   - /srv/git/billing.git/ -> billing
func RepositoryName(uri string) string {
	path := strings.TrimSpace(uri)

	if matches := scpPattern.FindStringSubmatch(path); matches != nil {
		path = matches[1]
	} else if matches := schemePattern.FindStringSubmatch(path); matches != nil {
		path = matches[1]
	}

	path = strings.TrimRight(path, "/")
	path = strings.TrimSuffix(path, ".git")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	return path
}

// sanitizeForFilesystem converts a string to a filesystem-safe format.
// Replaces slashes, colons, and @ symbols with underscores.
func sanitizeForFilesystem(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, ":", "_")
	s = strings.ReplaceAll(s, "@", "_")
	return s
}

// CloneDirName returns the directory name used for the temporary clones and
// the merge cache of a repository. Remotes sharing a short name get distinct
// directories.
func CloneDirName(uri string) string {
	sum := xxhash.Sum64String(strings.TrimSpace(uri))
	return sanitizeForFilesystem(RepositoryName(uri)) + "-" + strconv.FormatUint(sum&0xffffffff, 16)
}
