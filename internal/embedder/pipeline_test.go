package embedder_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codescope/codescope/internal/database"
	"github.com/codescope/codescope/internal/embedder"
	"github.com/codescope/codescope/pkg/types"
)

func openDB(t *testing.T) *database.DB {
	t.Helper()
	t.Setenv(types.WorkerEnvMarker, "1")
	cfg := database.DriverConfig{
		Kind: database.KindDirect,
		Path: filepath.Join(t.TempDir(), "embed.db"),
	}
	require.NoError(t, cfg.Validate())
	db, err := database.Open(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedChunks(t *testing.T, db *database.DB, contents ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, db.Execute(ctx, `INSERT INTO projects (root_path) VALUES (?)`, t.TempDir()))
	projectID, err := db.LastInsertID(ctx)
	require.NoError(t, err)
	require.NoError(t, db.Execute(ctx,
		`INSERT INTO files (project_id, file_path, content_hash) VALUES (?, 'main.go', 'h')`, projectID))
	fileID, err := db.LastInsertID(ctx)
	require.NoError(t, err)
	for i, content := range contents {
		require.NoError(t, db.Execute(ctx,
			`INSERT INTO chunks (file_id, content, start_line, end_line, embedded) VALUES (?, ?, ?, ?, 0)`,
			fileID, content, i*10+1, i*10+5))
	}
}

func TestPipelineEmbedsPendingChunks(t *testing.T) {
	db := openDB(t)
	seedChunks(t, db, "func A() {}", "func B() {}", "func C() {}")

	p := embedder.NewPipeline(db, embedder.NewLocalProvider(nil), zerolog.Nop())
	ctx := context.Background()

	pending, err := p.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pending)

	stats, err := p.Run(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.ChunksEmbedded)

	pending, err = p.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	rows, err := db.FetchAll(ctx, `SELECT vector, dimension, model FROM embeddings ORDER BY chunk_id`)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, int64(embedder.LocalDimension), row["dimension"])
		assert.Equal(t, "local-hash", row["model"])
		vector, err := embedder.DecodeVector([]byte(row["vector"].(string)))
		require.NoError(t, err)
		assert.Len(t, vector, embedder.LocalDimension)
	}
}

func TestPipelineIdempotent(t *testing.T) {
	db := openDB(t)
	seedChunks(t, db, "func A() {}")

	p := embedder.NewPipeline(db, embedder.NewLocalProvider(nil), zerolog.Nop())
	ctx := context.Background()

	_, err := p.Run(ctx, 0)
	require.NoError(t, err)

	stats, err := p.Run(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, stats.ChunksEmbedded)

	row, err := db.FetchOne(ctx, `SELECT COUNT(*) AS n FROM embeddings`)
	require.NoError(t, err)
	assert.Equal(t, int64(1), row["n"])
}

func TestPipelineReembedsDirtyChunk(t *testing.T) {
	db := openDB(t)
	seedChunks(t, db, "func A() {}")

	p := embedder.NewPipeline(db, embedder.NewLocalProvider(nil), zerolog.Nop())
	ctx := context.Background()
	_, err := p.Run(ctx, 0)
	require.NoError(t, err)

	// Flipping embedded back to 0 models a chunk rewritten by the indexer.
	require.NoError(t, db.Execute(ctx, `UPDATE chunks SET embedded = 0`))
	stats, err := p.Run(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ChunksEmbedded)

	// Upsert keeps one vector per chunk.
	row, err := db.FetchOne(ctx, `SELECT COUNT(*) AS n FROM embeddings`)
	require.NoError(t, err)
	assert.Equal(t, int64(1), row["n"])
}
