package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sha1n/gitsearch-mcp-server/internal/domain"
)

// SnippetArgument defines snippet parameters.
type SnippetArgument struct {
	Path       string `json:"path" jsonschema:"Repository-prefixed file path as returned by search_code"`
	LineNumber int    `json:"lineNumber" jsonschema:"1-based line number to center the snippet on"`
	Branch     string `json:"branch" jsonschema:"Branch to read the file from"`
}

// SnippetHandler handles the snippet MCP tool.
type SnippetHandler struct {
	searcher Searcher
}

// NewSnippetHandler creates a new snippet handler.
func NewSnippetHandler(searcher Searcher) *SnippetHandler {
	return &SnippetHandler{searcher: searcher}
}

// Handle returns the lines around the requested line.
func (h *SnippetHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args SnippetArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Path) == "" {
		return errorResult("Path cannot be empty"), nil, nil
	}
	if strings.TrimSpace(args.Branch) == "" {
		return errorResult("Branch cannot be empty"), nil, nil
	}
	if args.LineNumber < 1 {
		return errorResult("Line number must be positive"), nil, nil
	}

	snippet, err := h.searcher.Snippet(ctx, args.Path, args.LineNumber, args.Branch)
	if err != nil {
		return errorResult(fmt.Sprintf("Snippet failed: %s", err)), nil, nil
	}
	if len(snippet.Lines) == 0 {
		return errorResult(fmt.Sprintf("No lines found for %s on branch %s", args.Path, args.Branch)), nil, nil
	}

	return textResult(formatSnippet(snippet, args.LineNumber)), nil, nil
}

func formatSnippet(s *domain.Snippet, focus int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "File: %s\n", s.Path)
	fmt.Fprintf(&sb, "Branch: %s\n", s.Branch)
	fmt.Fprintf(&sb, "Repository: %s\n", s.Repository)
	fmt.Fprintf(&sb, "Last change: %s by %s\n\n", s.Date, s.AuthorEmail)

	width := len(fmt.Sprint(s.Lines[len(s.Lines)-1].LineNumber))
	sb.WriteString("```\n")
	for _, l := range s.Lines {
		marker := " "
		if l.LineNumber == focus {
			marker = ">"
		}
		fmt.Fprintf(&sb, "%s%*d | %s\n", marker, width, l.LineNumber, l.Content)
	}
	sb.WriteString("```\n")
	return sb.String()
}

// GetToolDefinition returns the MCP tool definition.
func (h *SnippetHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "get_snippet",
		Description: "Get up to seven lines of a file around a line returned by search_code, with the file's last author and change date",
	}
}

// RegisterSnippetTool registers the snippet tool with an MCP server.
func RegisterSnippetTool(server *mcp.Server, searcher Searcher) {
	handler := NewSnippetHandler(searcher)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
