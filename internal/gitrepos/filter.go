package gitrepos

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultExcludePatterns contains doublestar globs of files that are never
// searched: binary and media files plus generated lock files.
var DefaultExcludePatterns = []string{
	// Generated files
	"**/*.min.js", "**/*.min.css", "**/*.map",
	"**/package-lock.json", "**/yarn.lock", "**/pnpm-lock.yaml",
	"**/go.sum", "**/poetry.lock", "**/Cargo.lock",

	// Images and fonts
	"**/*.{png,jpg,jpeg,gif,ico,bmp,tiff,webp,psd}",
	"**/*.{woff,woff2,ttf,eot,otf}",

	// Archives, executables and libraries
	"**/*.{zip,tar,gz,rar,7z,bz2,xz,jar,war,ear}",
	"**/*.{exe,dll,so,dylib,a,lib,class,pyc,pyo,o,obj}",

	// Documents, databases and media
	"**/*.{pdf,doc,docx,xls,xlsx,ppt,pptx}",
	"**/*.{db,sqlite,sqlite3}",
	"**/*.{mp3,mp4,wav,avi,mov,mkv}",
}

// FileFilter decides which files of a working tree are indexed and how their
// content is read.
type FileFilter struct {
	patterns    []string
	maxFileSize int64
}

// NewFileFilter creates a new FileFilter with default exclusion patterns.
func NewFileFilter(maxFileSize int64) *FileFilter {
	return NewFileFilterWithPatterns(DefaultExcludePatterns, maxFileSize)
}

// NewFileFilterWithPatterns creates a FileFilter with custom patterns.
// Invalid patterns are dropped.
func NewFileFilterWithPatterns(patterns []string, maxFileSize int64) *FileFilter {
	valid := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if doublestar.ValidatePattern(p) {
			valid = append(valid, p)
		}
	}
	return &FileFilter{
		patterns:    valid,
		maxFileSize: maxFileSize,
	}
}

// ShouldExclude returns true if the given path matches any exclusion pattern.
// The path should be relative to the working tree root.
func (f *FileFilter) ShouldExclude(relPath string) bool {
	relPath = filepath.ToSlash(relPath)

	for _, pattern := range f.patterns {
		if matched, _ := doublestar.Match(pattern, relPath); matched {
			return true
		}
	}
	return false
}

// SkipDirectory reports whether a directory is left out of the walk. Names
// containing a dot belong to VCS and tool metadata (.git, .idea, .gradle).
func SkipDirectory(name string) bool {
	return strings.Contains(name, ".")
}

// MaxFileSize returns the maximum file size for indexing.
func (f *FileFilter) MaxFileSize() int64 {
	return f.maxFileSize
}

// ReadLines reads a file as text lines. Files that cannot be read, exceed the
// size limit, look binary or are not valid UTF-8 yield no lines.
func (f *FileFilter) ReadLines(path string) []string {
	info, err := os.Stat(path)
	if err != nil || (f.maxFileSize > 0 && info.Size() > f.maxFileSize) {
		return nil
	}

	content, err := os.ReadFile(path)
	if err != nil || IsBinary(content) || !utf8.Valid(content) {
		return nil
	}
	return SplitLines(content)
}

// SplitLines splits content on \n, \r\n and \r terminators. A trailing
// terminator does not start an extra empty line.
func SplitLines(content []byte) []string {
	if len(content) == 0 {
		return nil
	}

	var lines []string
	for len(content) > 0 {
		i := bytes.IndexAny(content, "\r\n")
		if i < 0 {
			lines = append(lines, string(content))
			break
		}
		lines = append(lines, string(content[:i]))
		if content[i] == '\r' && i+1 < len(content) && content[i+1] == '\n' {
			i++
		}
		content = content[i+1:]
	}
	return lines
}

// IsBinary checks if the content appears to be binary by looking for null bytes
// in the first 512 bytes. This is a heuristic used by git and other tools.
func IsBinary(content []byte) bool {
	checkLen := min(len(content), 512)
	return bytes.IndexByte(content[:checkLen], 0) >= 0
}
