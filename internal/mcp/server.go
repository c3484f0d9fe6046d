package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/codescope/codescope/internal/database"
	"github.com/codescope/codescope/internal/embedder"
	"github.com/codescope/codescope/internal/indexer"
)

const (
	// ServerName is the MCP server name
	ServerName = "codescope"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies.
type Server struct {
	mcp      *server.MCPServer
	db       *database.DB
	indexer  *indexer.Indexer
	searcher *embedder.Searcher
	log      zerolog.Logger
}

// NewServer creates an MCP server over an already-opened database facade.
// The caller owns the facade's lifecycle. A nil emb disables the semantic
// search tool's provider and falls back to the offline embedder.
func NewServer(db *database.DB, emb embedder.Embedder, log zerolog.Logger) *Server {
	if emb == nil {
		emb = embedder.NewLocalProvider(nil)
	}
	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		db:       db,
		indexer:  indexer.New(db, log),
		searcher: embedder.NewSearcher(db, emb),
		log:      log,
	}
	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until the transport
// closes.
func (s *Server) Serve(ctx context.Context) error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(indexProjectTool(), s.handleIndexProject)
	s.mcp.AddTool(searchSymbolsTool(), s.handleSearchSymbols)
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)
	s.mcp.AddTool(dbQueryTool(), s.handleDBQuery)
	s.mcp.AddTool(schemaStatusTool(), s.handleSchemaStatus)
	s.mcp.AddTool(projectStatusTool(), s.handleProjectStatus)
}
