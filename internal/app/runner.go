package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/pflag"

	"github.com/sha1n/gitsearch-mcp-server/internal/branchstate"
	"github.com/sha1n/gitsearch-mcp-server/internal/config"
	"github.com/sha1n/gitsearch-mcp-server/internal/gitrepos"
	"github.com/sha1n/gitsearch-mcp-server/internal/index"
	"github.com/sha1n/gitsearch-mcp-server/internal/indexing"
	mcputil "github.com/sha1n/gitsearch-mcp-server/internal/mcp"
	"github.com/sha1n/gitsearch-mcp-server/internal/search"
)

const (
	// ServerName is the MCP implementation name.
	ServerName = "gitsearch-mcp"

	indexDirName = "index"
	stateDBName  = "state.db"
)

// RunParams contains dependencies for the run function
type RunParams struct {
	LoadSettings      func(*pflag.FlagSet) (*config.Settings, error)
	ValidSettings     func(*config.Settings) error
	StartSSEServer    func(*mcp.Server, *config.Settings) error
	CreateServer      func(context.Context, *config.Settings, string) (*mcp.Server, func(), error)
	CustomIOTransport mcp.Transport // Optional: for testing with custom IO
}

// DefaultRunParams returns production dependencies
func DefaultRunParams() RunParams {
	return RunParams{
		LoadSettings:   config.LoadSettingsWithFlags,
		ValidSettings:  config.ValidateSettings,
		StartSSEServer: StartSSEServer,
		CreateServer:   CreateMCPServer,
	}
}

// RunWithDeps executes the server with the provided dependencies
func RunWithDeps(ctx context.Context, params RunParams, flags *pflag.FlagSet, version string) error {
	// Load settings
	settings, err := params.LoadSettings(flags)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	// Validate settings for conflicting configurations
	if err := params.ValidSettings(settings); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Configure logging - always use stderr, stdout carries the stdio transport
	handler := slog.NewTextHandler(os.Stderr, nil)
	slog.SetDefault(slog.New(handler))

	slog.Info("Starting gitsearch MCP server", "version", version)
	config.Log(settings)

	mcpServer, cleanup, err := params.CreateServer(ctx, settings, version)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	// Start server
	if settings.Transport == "stdio" {
		// Use custom transport if provided (for testing), otherwise use stdio
		transport := params.CustomIOTransport
		if transport == nil {
			transport = &mcp.StdioTransport{}
		}
		return mcpServer.Run(ctx, transport)
	}

	slog.Info("Starting SSE server", "host", settings.Host, "port", settings.Port)
	return params.StartSSEServer(mcpServer, settings)
}

// CreateMCPServer opens the index and branch state stores under the data
// directory, wires the rebuild coordinator and the query composer into an MCP
// server and starts the update loop. The returned cleanup stops the loop, waits
// for updates started by refresh_index and closes the stores.
func CreateMCPServer(ctx context.Context, settings *config.Settings, version string) (*mcp.Server, func(), error) {
	logger := slog.Default()
	ix := settings.Index

	store, err := index.OpenStore(filepath.Join(ix.DataDir, indexDirName), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open index: %w", err)
	}

	heads, err := branchstate.Open(filepath.Join(ix.DataDir, stateDBName))
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to open branch state: %w", err)
	}

	closeStores := func() error {
		return errors.Join(heads.Close(), store.Close())
	}

	coordinator, err := indexing.NewCoordinator(
		store,
		gitrepos.NewCatalog(ix.Catalog),
		gitrepos.NewGitClient(ix.CloneDepth),
		heads,
		gitrepos.NewFileFilterWithPatterns(ix.Exclude, ix.MaxFileSize),
		indexing.Options{
			DataDir:        ix.DataDir,
			Parallelism:    ix.Parallelism,
			BatchThreshold: ix.BatchThreshold,
			LinesCacheSize: ix.LinesCacheSize,
			FilesCacheSize: ix.FilesCacheSize,
			Logger:         logger,
		},
	)
	if err != nil {
		_ = closeStores()
		return nil, nil, fmt.Errorf("failed to create index coordinator: %w", err)
	}

	composer, err := search.NewComposer(store, search.Options{
		MaxResults:      settings.Search.MaxResults,
		SnippetRadius:   settings.Search.SnippetRadius,
		FilterCacheSize: settings.Search.FilterCacheSize,
	})
	if err != nil {
		_ = closeStores()
		return nil, nil, fmt.Errorf("failed to create search composer: %w", err)
	}

	var refreshes sync.WaitGroup
	server := mcputil.CreateServer(mcputil.ServerConfig{
		Name:     ServerName,
		Version:  version,
		Searcher: composer,
		Indexer:  coordinator,
		Logger:   logger,
		Tasks:    &refreshes,
	})

	loopCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		RunUpdateLoop(loopCtx, coordinator, ix.UpdateInterval, ix.UpdateOnStart, logger)
	}()

	cleanup := func() {
		cancel()
		wg.Wait()
		refreshes.Wait()
		if err := closeStores(); err != nil {
			slog.Error("Failed to close stores", "error", err)
		}
	}

	return server, cleanup, nil
}
