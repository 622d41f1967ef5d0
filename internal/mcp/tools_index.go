package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// IndexInfoArgument takes no parameters.
type IndexInfoArgument struct{}

// IndexInfoHandler reports the state of the index.
type IndexInfoHandler struct {
	indexer IndexController
}

// NewIndexInfoHandler creates a new index info handler.
func NewIndexInfoHandler(indexer IndexController) *IndexInfoHandler {
	return &IndexInfoHandler{indexer: indexer}
}

// Handle returns the last cycle time and per repository state.
func (h *IndexInfoHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args IndexInfoArgument) (*mcp.CallToolResult, any, error) {
	var sb strings.Builder
	if at, ok := h.indexer.IndexInfo(); ok {
		fmt.Fprintf(&sb, "Last index update: %s\n", at)
	} else {
		sb.WriteString("The index has not been updated yet\n")
	}
	if h.indexer.Running() {
		sb.WriteString("An index update is running\n")
	}

	repos := h.indexer.Repositories()
	names := make([]string, 0, len(repos))
	for name := range repos {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) > 0 {
		sb.WriteString("\nRepositories:\n")
	}
	for _, name := range names {
		state := repos[name]
		fmt.Fprintf(&sb, "- %s (%s)", name, state.URL)
		if !state.LastIndexed.IsZero() {
			fmt.Fprintf(&sb, ", %d branches indexed at %s", state.Branches, state.LastIndexed.Format("2006-01-02 15:04"))
		}
		if state.Error != "" {
			fmt.Fprintf(&sb, ", error: %s", state.Error)
		}
		sb.WriteString("\n")
	}

	return textResult(sb.String()), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *IndexInfoHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "index_info",
		Description: "Show when the code index was last updated and the indexing state of every repository",
	}
}

// RegisterIndexInfoTool registers the index_info tool with an MCP server.
func RegisterIndexInfoTool(server *mcp.Server, indexer IndexController) {
	handler := NewIndexInfoHandler(indexer)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}

// RefreshArgument takes no parameters.
type RefreshArgument struct{}

// RefreshHandler starts an index update in the background.
type RefreshHandler struct {
	indexer IndexController
	logger  *slog.Logger
	tasks   *sync.WaitGroup
}

// NewRefreshHandler creates a new refresh handler. Background updates are
// tracked on tasks so the owner of the index can wait for them before closing
// it; a nil tasks gets a private group.
func NewRefreshHandler(indexer IndexController, logger *slog.Logger, tasks *sync.WaitGroup) *RefreshHandler {
	if tasks == nil {
		tasks = &sync.WaitGroup{}
	}
	return &RefreshHandler{indexer: indexer, logger: logger, tasks: tasks}
}

// Handle starts an update unless one is already running.
func (h *RefreshHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args RefreshArgument) (*mcp.CallToolResult, any, error) {
	if h.indexer.Running() {
		return textResult("An index update is already running"), nil, nil
	}

	bg := context.WithoutCancel(ctx)
	h.tasks.Add(1)
	go func() {
		defer h.tasks.Done()
		if err := h.indexer.UpdateIndex(bg); err != nil {
			h.logger.Error("Index update failed", "error", err)
		}
	}()
	return textResult("Index update started"), nil, nil
}

// Wait blocks until every update started by Handle has returned.
func (h *RefreshHandler) Wait() {
	h.tasks.Wait()
}

// GetToolDefinition returns the MCP tool definition.
func (h *RefreshHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "refresh_index",
		Description: "Fetch all repositories and update the code index in the background",
	}
}

// RegisterRefreshTool registers the refresh_index tool with an MCP server.
func RegisterRefreshTool(server *mcp.Server, indexer IndexController, logger *slog.Logger, tasks *sync.WaitGroup) {
	handler := NewRefreshHandler(indexer, logger, tasks)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
