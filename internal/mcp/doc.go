// Package mcp exposes the index database over the Model Context Protocol.
//
// The server speaks MCP on stdio and registers six tools:
//
//   - index_project: walk a Go project and index its symbols and chunks
//   - search_symbols: FTS5 full-text search over names, signatures and docs
//   - search_code: cosine-similarity search over embedded chunks
//   - db_query: read-only SELECT passthrough with a row limit
//   - schema_status: applied schema version and live table shapes
//   - project_status: per-project indexing statistics
//
// Handlers validate arguments up front and fail with typed MCPError values
// carrying JSON-RPC error codes; results are indented JSON text blocks.
// All data access goes through the database facade, so the server works
// identically over a direct connection or a proxied worker process.
package mcp
