package app

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sha1n/gitsearch-mcp-server/internal/config"
)

// StartSSEServer starts the SSE server
func StartSSEServer(s *mcp.Server, settings *config.Settings) error {
	srv := NewSSEServer(s, settings)

	slog.Info("Server listening (HTTP)", "addr", srv.Addr)
	return srv.ListenAndServe()
}

// NewSSEServer creates a new SSE server exposing the MCP endpoint and a
// health check.
func NewSSEServer(s *mcp.Server, settings *config.Settings) *http.Server {
	// Factory function returns the server instance for each request
	sseHandler := mcp.NewSSEHandler(func(r *http.Request) *mcp.Server {
		return s
	}, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/sse", sseHandler)

	return &http.Server{
		Addr:    fmt.Sprintf("%s:%d", settings.Host, settings.Port),
		Handler: mux,
	}
}
