package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Storage helpers. The indexer only ever talks to the database facade;
// every statement below runs in the worker process regardless of which
// driver backs the facade.

func (idx *Indexer) getOrCreateProject(ctx context.Context, rootPath string) (int64, error) {
	row, err := idx.db.FetchOne(ctx, `SELECT id FROM projects WHERE root_path = ?`, rootPath)
	if err != nil {
		return 0, err
	}
	if row != nil {
		id, ok := row["id"].(int64)
		if !ok {
			return 0, fmt.Errorf("unexpected project id type %T", row["id"])
		}
		return id, nil
	}

	module, goVersion := readGoMod(filepath.Join(rootPath, "go.mod"))
	err = idx.db.Execute(ctx,
		`INSERT INTO projects (root_path, module_name, go_version) VALUES (?, ?, ?)`,
		rootPath, module, goVersion)
	if err != nil {
		return 0, err
	}
	return idx.db.LastInsertID(ctx)
}

// fileHashes returns relPath -> content hash for every tracked file.
func (idx *Indexer) fileHashes(ctx context.Context, projectID int64) (map[string]string, error) {
	rows, err := idx.db.FetchAll(ctx,
		`SELECT file_path, content_hash FROM files WHERE project_id = ? AND dirty = 0`, projectID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		path, _ := row["file_path"].(string)
		hash, _ := row["content_hash"].(string)
		out[path] = hash
	}
	return out, nil
}

// storeFile upserts one file and replaces its symbols and chunks. Runs
// inside the batch transaction.
func (idx *Indexer) storeFile(ctx context.Context, projectID int64, pf *parsedFile) (int, int, error) {
	err := idx.db.Execute(ctx, `
		INSERT INTO files (project_id, file_path, package_name, content_hash, size_bytes, dirty, mod_time, indexed_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(project_id, file_path) DO UPDATE SET
			package_name = excluded.package_name,
			content_hash = excluded.content_hash,
			size_bytes = excluded.size_bytes,
			dirty = 0,
			mod_time = excluded.mod_time,
			indexed_at = excluded.indexed_at`,
		projectID, pf.relPath, pf.result.PackageName, pf.hash, pf.size,
		pf.modTime.UTC().Format(time.RFC3339), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, 0, err
	}

	row, err := idx.db.FetchOne(ctx,
		`SELECT id FROM files WHERE project_id = ? AND file_path = ?`, projectID, pf.relPath)
	if err != nil {
		return 0, 0, err
	}
	fileID, ok := row["id"].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected file id type %T", row["id"])
	}

	// Replace, not merge: stale symbols from the previous parse would
	// otherwise linger after a rename.
	if err := idx.db.Execute(ctx, `DELETE FROM symbols WHERE file_id = ?`, fileID); err != nil {
		return 0, 0, err
	}
	if err := idx.db.Execute(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID); err != nil {
		return 0, 0, err
	}

	for _, sym := range pf.result.Symbols {
		err := idx.db.Execute(ctx, `
			INSERT INTO symbols (file_id, name, kind, package_name, signature, doc_comment, receiver,
				start_line, start_col, end_line, end_col)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			fileID, sym.Name, string(sym.Kind), sym.Package, sym.Signature, sym.DocComment,
			sym.Receiver, sym.Start.Line, sym.Start.Column, sym.End.Line, sym.End.Column)
		if err != nil {
			return 0, 0, err
		}
	}

	for _, ch := range pf.chunks {
		err := idx.db.Execute(ctx,
			`INSERT INTO chunks (file_id, content, start_line, end_line, embedded) VALUES (?, ?, ?, ?, 0)`,
			fileID, ch.Content, ch.StartLine, ch.EndLine)
		if err != nil {
			return 0, 0, err
		}
	}
	return len(pf.result.Symbols), len(pf.chunks), nil
}

// rebuildSymbolIndex refreshes the external-content FTS table after the
// symbols table changed underneath it.
func (idx *Indexer) rebuildSymbolIndex(ctx context.Context) error {
	return idx.db.Execute(ctx, `INSERT INTO symbols_fts(symbols_fts) VALUES('rebuild')`)
}

func (idx *Indexer) updateProjectStats(ctx context.Context, projectID int64) error {
	return idx.db.Execute(ctx, `
		UPDATE projects SET
			total_files = (SELECT COUNT(*) FROM files WHERE project_id = ?),
			last_indexed_at = ?
		WHERE id = ?`,
		projectID, time.Now().UTC().Format(time.RFC3339), projectID)
}

// MarkFileDirty flags a tracked file for re-indexing. Used by the watcher
// when a file changes between runs.
func (idx *Indexer) MarkFileDirty(ctx context.Context, rootPath, relPath string) error {
	return idx.db.Execute(ctx, `
		UPDATE files SET dirty = 1
		WHERE file_path = ? AND project_id = (SELECT id FROM projects WHERE root_path = ?)`,
		relPath, rootPath)
}

// readGoMod extracts the module path and Go version; missing or malformed
// files just yield empty strings.
func readGoMod(goModPath string) (module, goVersion string) {
	content, err := os.ReadFile(goModPath)
	if err != nil {
		return "", ""
	}
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "module ") {
			module = strings.TrimSpace(strings.TrimPrefix(line, "module"))
		} else if strings.HasPrefix(line, "go ") {
			goVersion = strings.TrimSpace(strings.TrimPrefix(line, "go"))
		}
	}
	return module, goVersion
}
