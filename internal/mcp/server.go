package mcp

import (
	"context"
	"log/slog"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sha1n/gitsearch-mcp-server/internal/domain"
	"github.com/sha1n/gitsearch-mcp-server/internal/gitrepos"
)

// Searcher answers code search and snippet requests.
type Searcher interface {
	ExactSearch(ctx context.Context, s string, filters []domain.Filter, branch string) ([]domain.LineResult, error)
	FuzzySearch(ctx context.Context, s string, filters []domain.Filter, branch string) ([]domain.LineResult, error)
	Search(ctx context.Context, s string, filters []domain.Filter, branch string) (*domain.SearchResult, error)
	Snippet(ctx context.Context, path string, lineNumber int, branch string) (*domain.Snippet, error)
}

// IndexController reports on and triggers index rebuild cycles.
type IndexController interface {
	UpdateIndex(ctx context.Context) error
	Running() bool
	IndexInfo() (string, bool)
	Repositories() map[string]gitrepos.RepoState
}

// ServerConfig contains configuration for creating an MCP server
type ServerConfig struct {
	Name     string
	Version  string
	Searcher Searcher
	Indexer  IndexController
	Logger   *slog.Logger
	// Tasks tracks index updates started by refresh_index.
	Tasks *sync.WaitGroup
}

// CreateServer creates and configures the MCP server
func CreateServer(cfg ServerConfig) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Searcher != nil {
		RegisterSearchTool(s, cfg.Searcher)
		RegisterSnippetTool(s, cfg.Searcher)
	}
	if cfg.Indexer != nil {
		RegisterIndexInfoTool(s, cfg.Indexer)
		RegisterRefreshTool(s, cfg.Indexer, logger, cfg.Tasks)
	}

	return s
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
		IsError: true,
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}
