package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sha1n/gitsearch-mcp-server/internal/domain"
	"github.com/sha1n/gitsearch-mcp-server/internal/search"
)

// Search modes.
const (
	ModeAuto  = "auto"
	ModeExact = "exact"
	ModeFuzzy = "fuzzy"
)

// FilterArgument is a single metadata filter.
type FilterArgument struct {
	Kind  string `json:"kind" jsonschema:"One of EXTENSION, PACKAGE, FILE_MASK, DIRECTORY, REPOSITORY, REPOSITORY_TYPE"`
	Value string `json:"value" jsonschema:"Filter value, e.g. kt for EXTENSION or billing for REPOSITORY. EXTENSION and REPOSITORY values are lowercased and compared case-sensitively, so they only match lowercase extensions and repository names"`
}

// SearchArgument defines search parameters.
type SearchArgument struct {
	Query   string           `json:"query" jsonschema:"Text to search for, matched as a case-insensitive substring of a line"`
	Filters []FilterArgument `json:"filters,omitempty" jsonschema:"Metadata filters, all of which must match"`
	Branch  string           `json:"branch,omitempty" jsonschema:"Only return lines present on this branch"`
	Mode    string           `json:"mode,omitempty" jsonschema:"exact, fuzzy or auto (exact with fuzzy fallback, the default)"`
}

// SearchHandler handles the search MCP tool.
type SearchHandler struct {
	searcher Searcher
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(searcher Searcher) *SearchHandler {
	return &SearchHandler{searcher: searcher}
}

// Handle executes the search and returns formatted results.
func (h *SearchHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args SearchArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Query) == "" {
		return errorResult("Query cannot be empty"), nil, nil
	}

	filters, err := parseFilters(args.Filters)
	if err != nil {
		return errorResult(fmt.Sprintf("Invalid filter: %s", err)), nil, nil
	}

	var exact, fuzzy []domain.LineResult
	switch strings.ToLower(args.Mode) {
	case "", ModeAuto:
		var res *domain.SearchResult
		res, err = h.searcher.Search(ctx, args.Query, filters, args.Branch)
		if res != nil {
			exact, fuzzy = res.Exact, res.Fuzzy
		}
	case ModeExact:
		exact, err = h.searcher.ExactSearch(ctx, args.Query, filters, args.Branch)
	case ModeFuzzy:
		fuzzy, err = h.searcher.FuzzySearch(ctx, args.Query, filters, args.Branch)
	default:
		return errorResult(fmt.Sprintf("Unknown search mode: %s", args.Mode)), nil, nil
	}
	if err != nil {
		if errors.Is(err, search.ErrInvalidQuery) {
			return errorResult(err.Error()), nil, nil
		}
		return errorResult(fmt.Sprintf("Search failed: %s", err)), nil, nil
	}

	return formatResults(args.Query, exact, fuzzy), nil, nil
}

func parseFilters(args []FilterArgument) ([]domain.Filter, error) {
	filters := make([]domain.Filter, 0, len(args))
	for _, a := range args {
		f, err := domain.ParseFilter(a.Kind, strings.TrimSpace(a.Value))
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return filters, nil
}

func formatResults(query string, exact, fuzzy []domain.LineResult) *mcp.CallToolResult {
	if len(exact) == 0 && len(fuzzy) == 0 {
		return textResult(fmt.Sprintf("No results found for query: %s", query))
	}

	var sb strings.Builder
	writeSection(&sb, "exact", query, exact)
	writeSection(&sb, "fuzzy", query, fuzzy)
	return textResult(sb.String())
}

func writeSection(sb *strings.Builder, kind, query string, results []domain.LineResult) {
	if len(results) == 0 {
		return
	}
	fmt.Fprintf(sb, "Found %d %s matches for '%s':\n\n", len(results), kind, query)
	for i, r := range results {
		fmt.Fprintf(sb, "%d. %s:%d [%s]\n", i+1, r.Path, r.LineNumber, r.Branch)
		fmt.Fprintf(sb, "   %s\n", strings.TrimSpace(r.Content))
	}
	sb.WriteString("\n")
}

// GetToolDefinition returns the MCP tool definition.
func (h *SearchHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "search_code",
		Description: "Search source lines across all indexed repositories and branches. Exact mode matches a case-insensitive substring, fuzzy mode matches lines containing every two character chunk of the query in any order. EXTENSION and REPOSITORY filter values are lowercased and compared case-sensitively, so a file ending in .KT or a repository named Billing is not matched by them.",
	}
}

// RegisterSearchTool registers the search tool with an MCP server.
func RegisterSearchTool(server *mcp.Server, searcher Searcher) {
	handler := NewSearchHandler(searcher)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
