package mcp

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/skillindex/internal/index"
	"github.com/dshills/skillindex/internal/searcher"
)

const (
	// ServerName is the MCP server name
	ServerName = "skillindex"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Config holds MCP server configuration
type Config struct {
	APIKey   string // administrative secret; empty disables rebuild_index and update_index
	UseCache bool
	Logger   *slog.Logger
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	manager  *index.Manager
	searcher *searcher.Searcher
	config   Config
	logger   *slog.Logger
}

// NewServer creates a new MCP server instance
func NewServer(manager *index.Manager, srch *searcher.Searcher, config *Config) *Server {
	var cfg Config
	if config != nil {
		cfg = *config
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		manager:  manager,
		searcher: srch,
		config:   cfg,
		logger:   cfg.Logger,
	}
	s.registerTools()
	return s
}

// Serve runs the MCP protocol on stdin/stdout until ctx is cancelled or input ends
func (s *Server) Serve(ctx context.Context) error {
	return s.Listen(ctx, os.Stdin, os.Stdout)
}

// Listen runs the MCP protocol over the given streams
func (s *Server) Listen(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	// stdout carries the protocol; transport errors go to the structured log
	stdio.SetErrorLogger(log.New(slogWriter{s.logger}, "", 0))
	return stdio.Listen(ctx, in, out)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(searchDocumentsTool(), s.handleSearchDocuments)
	s.mcp.AddTool(getDocumentTool(), s.handleGetDocument)
	s.mcp.AddTool(rebuildIndexTool(), s.handleRebuildIndex)
	s.mcp.AddTool(updateIndexTool(), s.handleUpdateIndex)
	s.mcp.AddTool(indexStatusTool(), s.handleIndexStatus)
}

// slogWriter adapts a slog.Logger to the io.Writer expected by log.Logger
type slogWriter struct {
	logger *slog.Logger
}

func (w slogWriter) Write(p []byte) (int, error) {
	w.logger.Error("mcp transport error", "message", string(p))
	return len(p), nil
}
