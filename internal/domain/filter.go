package domain

import (
	"fmt"
	"strings"
)

// Filter narrows a search to files matching a metadata predicate. The set of
// implementations is closed: ExtensionFilter, PackageFilter, FileMaskFilter,
// DirectoryFilter, RepositoryFilter and RepositoryTypeFilter.
type Filter interface {
	// Kind returns the wire name of the filter.
	Kind() string
	// Value returns the raw filter argument.
	Value() string

	isFilter()
}

type ExtensionFilter struct{ Extension string }
type PackageFilter struct{ Package string }
type FileMaskFilter struct{ Mask string }
type DirectoryFilter struct{ Directory string }
type RepositoryFilter struct{ Repository string }
type RepositoryTypeFilter struct{ Type string }

func (f ExtensionFilter) Kind() string      { return "EXTENSION" }
func (f PackageFilter) Kind() string        { return "PACKAGE" }
func (f FileMaskFilter) Kind() string       { return "FILE_MASK" }
func (f DirectoryFilter) Kind() string      { return "DIRECTORY" }
func (f RepositoryFilter) Kind() string     { return "REPOSITORY" }
func (f RepositoryTypeFilter) Kind() string { return "REPOSITORY_TYPE" }

func (f ExtensionFilter) Value() string      { return f.Extension }
func (f PackageFilter) Value() string        { return f.Package }
func (f FileMaskFilter) Value() string       { return f.Mask }
func (f DirectoryFilter) Value() string      { return f.Directory }
func (f RepositoryFilter) Value() string     { return f.Repository }
func (f RepositoryTypeFilter) Value() string { return f.Type }

func (ExtensionFilter) isFilter()      {}
func (PackageFilter) isFilter()        {}
func (FileMaskFilter) isFilter()       {}
func (DirectoryFilter) isFilter()      {}
func (RepositoryFilter) isFilter()     {}
func (RepositoryTypeFilter) isFilter() {}

// ParseFilter builds a filter from its wire name, case-insensitively.
func ParseFilter(kind, value string) (Filter, error) {
	if value == "" {
		return nil, fmt.Errorf("filter %s requires a value", kind)
	}
	switch strings.ToUpper(kind) {
	case "EXTENSION":
		return ExtensionFilter{Extension: strings.TrimPrefix(value, ".")}, nil
	case "PACKAGE":
		return PackageFilter{Package: value}, nil
	case "FILE_MASK":
		return FileMaskFilter{Mask: value}, nil
	case "DIRECTORY":
		return DirectoryFilter{Directory: value}, nil
	case "REPOSITORY":
		return RepositoryFilter{Repository: value}, nil
	case "REPOSITORY_TYPE":
		return RepositoryTypeFilter{Type: value}, nil
	default:
		return nil, fmt.Errorf("unknown filter kind: %s", kind)
	}
}
