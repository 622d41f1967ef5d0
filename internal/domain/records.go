package domain

import "strings"

// Sentinel values substituted when metadata cannot be resolved.
const (
	Unknown   = "UNKNOWN"
	NoPackage = "NO_PACKAGE"
)

// DateLayout is the display format of the last change date of a file.
const DateLayout = "02.01.2006"

// LineKey identifies a line observation independently of the branch it was seen on.
type LineKey struct {
	Path       string `json:"path"`
	Content    string `json:"content"`
	LineNumber int    `json:"lineNumber"`
}

// FileRecord is the metadata of one file on one branch. It is comparable, so
// records with equal values collapse when used as map keys.
type FileRecord struct {
	AuthorEmail    string `json:"authorEmail"`
	Date           string `json:"date"`
	Package        string `json:"package"`
	Path           string `json:"path"`
	RepositoryType string `json:"repositoryType"`
	Branch         string `json:"branch"`
	Repository     string `json:"repository"`
}

// Repository describes a catalog entry.
type Repository struct {
	Remote string `json:"remote" yaml:"remote"`
	Type   string `json:"type" yaml:"type"`
}

// BranchHead is the last indexed head commit of a branch.
type BranchHead struct {
	RepositoryURI string
	Branch        string
	Head          string
}

// Commit holds last-change metadata of a file.
type Commit struct {
	AuthorEmail string
	Date        string
}

// MergeBranches appends branch to an existing space separated branch list.
// Duplicates are kept.
func MergeBranches(existing, branch string) string {
	if existing == "" {
		return branch
	}
	return existing + " " + branch
}

// SplitBranches splits a space separated branch list.
func SplitBranches(branches string) []string {
	return strings.Fields(branches)
}
