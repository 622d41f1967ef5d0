package app

import (
	"github.com/spf13/pflag"

	"github.com/sha1n/gitsearch-mcp-server/internal/gitrepos"
)

// RegisterFlags registers all CLI flags on the given FlagSet
func RegisterFlags(flags *pflag.FlagSet) {
	flags.StringP("transport", "t", "", "Transport type: stdio or sse")
	flags.StringP("host", "H", "", "Host for SSE transport")
	flags.IntP("port", "p", 0, "Port for SSE transport")

	flags.StringP("data-dir", "d", "", "Directory holding the index, clones, caches and branch state")
	flags.StringP("catalog", "c", "", "Repository catalog file (YAML or JSON list of {remote, type})")
	flags.Duration("update-interval", 0, "Period of index updates, 0 disables periodic updates")
	flags.Bool("update-on-start", true, "Run an index update at startup")
	flags.Int("parallelism", 0, "Number of repositories and branch batches processed in parallel")
	flags.Int("batch-threshold", 0, "Branch count above which a repository is split into batches")
	flags.Int("lines-cache-size", 0, "Buffered line records that trigger a cache flush")
	flags.Int("files-cache-size", 0, "Buffered file records that trigger a cache flush")
	flags.Int64("max-file-size", 0, "Files larger than this many bytes are indexed without content")
	flags.Int("clone-depth", 0, "Shallow clone depth, 0 clones full history without file contents")
	flags.StringSlice("exclude", gitrepos.DefaultExcludePatterns, "Glob patterns of files to skip")

	flags.Int("max-results", 0, "Maximum number of search results")
	flags.Int("snippet-radius", 0, "Lines shown on each side of a snippet line")
}
