package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/codescope/codescope/internal/indexer"
	"github.com/codescope/codescope/internal/schema"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeProjectNotFound    = -32001 // Specified path is not an indexed Go project
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeQueryRejected      = -32003 // Statement is not a read-only SELECT
)

// handleIndexProject handles the index_project tool invocation
func (s *Server) handleIndexProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	if err := validatePath(path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	config := &indexer.Config{
		Force:         getBoolDefault(args, "force", false),
		IncludeTests:  getBoolDefault(args, "include_tests", true),
		IncludeVendor: getBoolDefault(args, "include_vendor", false),
	}

	stats, err := s.indexer.IndexProject(ctx, path, config)
	if errors.Is(err, indexer.ErrIndexInProgress) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "an index operation is already running", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"indexed":           true,
		"project_id":        stats.ProjectID,
		"files_indexed":     stats.FilesIndexed,
		"files_skipped":     stats.FilesSkipped,
		"files_failed":      stats.FilesFailed,
		"symbols_extracted": stats.SymbolsExtracted,
		"chunks_created":    stats.ChunksCreated,
		"duration_ms":       stats.Duration.Milliseconds(),
	}
	if len(stats.ErrorMessages) > 0 {
		response["error_count"] = len(stats.ErrorMessages)
		msgs := stats.ErrorMessages
		if len(msgs) > 5 {
			msgs = msgs[:5]
		}
		response["errors"] = msgs
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchSymbols handles the search_symbols tool invocation
func (s *Server) handleSearchSymbols(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}
	limit := getIntDefault(args, "limit", 20)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}
	kind := getStringDefault(args, "kind", "")

	sqlText := `
		SELECT s.name, s.kind, s.package_name, s.signature, s.doc_comment,
		       s.start_line, s.end_line, f.file_path, bm25(symbols_fts) AS rank
		FROM symbols_fts
		JOIN symbols s ON s.id = symbols_fts.rowid
		JOIN files f ON f.id = s.file_id
		WHERE symbols_fts MATCH ?`
	params := []interface{}{query}
	if kind != "" {
		sqlText += ` AND s.kind = ?`
		params = append(params, kind)
	}
	sqlText += ` ORDER BY rank LIMIT ?`
	params = append(params, limit)

	rows, err := s.db.FetchAll(ctx, sqlText, params...)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		results = append(results, map[string]interface{}{
			"name":        row["name"],
			"kind":        row["kind"],
			"package":     row["package_name"],
			"signature":   row["signature"],
			"doc_comment": row["doc_comment"],
			"file":        row["file_path"],
			"start_line":  row["start_line"],
			"end_line":    row["end_line"],
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"query":   query,
		"count":   len(results),
		"results": results,
	})), nil
}

// handleSearchCode handles the search_code tool invocation
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}
	limit := getIntDefault(args, "limit", 10)
	if limit < 1 || limit > 50 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 50", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}
	minSimilarity, _ := args["min_similarity"].(float64)
	if minSimilarity < 0 || minSimilarity > 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "min_similarity must be between 0 and 1", map[string]interface{}{
			"param": "min_similarity",
			"value": minSimilarity,
		})
	}

	hits, err := s.searcher.Search(ctx, query, limit, minSimilarity)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, 0, len(hits))
	for _, hit := range hits {
		results = append(results, map[string]interface{}{
			"file":       hit.FilePath,
			"start_line": hit.StartLine,
			"end_line":   hit.EndLine,
			"similarity": fmt.Sprintf("%.4f", hit.Similarity),
			"content":    hit.Content,
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"query":   query,
		"count":   len(results),
		"results": results,
	})), nil
}

// handleDBQuery handles the db_query tool invocation. Only single SELECT
// statements pass; everything else is rejected before reaching the driver.
func (s *Server) handleDBQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	sqlText, ok := args["sql"].(string)
	if !ok || strings.TrimSpace(sqlText) == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "sql parameter is required", map[string]interface{}{
			"param":  "sql",
			"reason": "missing or empty",
		})
	}
	if err := validateReadOnly(sqlText); err != nil {
		return nil, newMCPError(ErrorCodeQueryRejected, "statement rejected", map[string]interface{}{
			"reason": err.Error(),
		})
	}
	limit := getIntDefault(args, "limit", 100)
	if limit < 1 || limit > 500 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 500", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	rows, err := s.db.FetchAll(ctx, fmt.Sprintf("SELECT * FROM (%s) LIMIT %d",
		strings.TrimRight(strings.TrimSpace(sqlText), ";"), limit))
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "query failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"count": len(rows),
		"rows":  rows,
	})), nil
}

// handleSchemaStatus handles the schema_status tool invocation
func (s *Server) handleSchemaStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	row, err := s.db.FetchOne(ctx,
		fmt.Sprintf("SELECT value FROM %s WHERE key = 'schema_version'", schema.SettingsTable))
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to read schema version", map[string]interface{}{
			"error": err.Error(),
		})
	}
	version := "unknown"
	if row != nil {
		if v, ok := row["value"].(string); ok {
			version = v
		}
	}

	tables := make([]map[string]interface{}, 0)
	for _, tbl := range schema.Platform().Tables {
		info, err := s.db.TableInfo(ctx, tbl.Name)
		if err != nil {
			tables = append(tables, map[string]interface{}{
				"name":    tbl.Name,
				"missing": true,
			})
			continue
		}
		tables = append(tables, map[string]interface{}{
			"name":      info.Name,
			"columns":   len(info.Columns),
			"indexes":   len(info.Indexes),
			"row_count": info.RowCount,
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"database":       s.db.Path(),
		"schema_version": version,
		"target_version": schema.CurrentVersion,
		"tables":         tables,
	})), nil
}

// handleProjectStatus handles the project_status tool invocation
func (s *Server) handleProjectStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	project, err := s.db.FetchOne(ctx, `
		SELECT id, root_path, module_name, go_version, total_files, last_indexed_at
		FROM projects WHERE root_path = ?`, path)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to read project", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if project == nil {
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{
			"indexed": false,
			"path":    path,
			"message": "Project not indexed. Use the index_project tool first.",
		})), nil
	}

	stats, err := s.db.FetchOne(ctx, `
		SELECT
			(SELECT COUNT(*) FROM files WHERE project_id = p.id) AS files,
			(SELECT COUNT(*) FROM files WHERE project_id = p.id AND dirty = 1) AS dirty_files,
			(SELECT COUNT(*) FROM symbols s JOIN files f ON f.id = s.file_id WHERE f.project_id = p.id) AS symbols,
			(SELECT COUNT(*) FROM chunks c JOIN files f ON f.id = c.file_id WHERE f.project_id = p.id) AS chunks,
			(SELECT COUNT(*) FROM chunks c JOIN files f ON f.id = c.file_id WHERE f.project_id = p.id AND c.embedded = 0) AS pending_chunks
		FROM projects p WHERE p.id = ?`, project["id"])
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to read statistics", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"indexed": true,
		"project": map[string]interface{}{
			"path":            project["root_path"],
			"module_name":     project["module_name"],
			"go_version":      project["go_version"],
			"last_indexed_at": project["last_indexed_at"],
		},
		"statistics": map[string]interface{}{
			"files":          stats["files"],
			"dirty_files":    stats["dirty_files"],
			"symbols":        stats["symbols"],
			"chunks":         stats["chunks"],
			"pending_chunks": stats["pending_chunks"],
		},
	})), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks that path is an absolute, readable directory with at
// least one Go file.
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}

	hasGoFiles := false
	_ = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() && strings.HasSuffix(p, ".go") {
			hasGoFiles = true
		}
		return nil
	})
	if !hasGoFiles {
		return ErrNoGoFiles
	}
	return nil
}

// validateReadOnly accepts a single SELECT statement and nothing else.
func validateReadOnly(sqlText string) error {
	trimmed := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(sqlText), ";"))
	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return errors.New("only SELECT statements are allowed")
	}
	if strings.Contains(trimmed, ";") {
		return errors.New("multiple statements are not allowed")
	}
	return nil
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
	ErrNoGoFiles       = errors.New("directory does not contain Go files")
)
