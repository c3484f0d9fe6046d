package embedder

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/codescope/codescope/internal/database"
)

// DefaultPipelineBatch is how many chunks one transaction covers.
const DefaultPipelineBatch = 50

// Pipeline embeds chunks that have no vector yet. It drains the backlog
// in batches so an interrupted run resumes where it stopped.
type Pipeline struct {
	db  *database.DB
	emb Embedder
	log zerolog.Logger
}

// PipelineStats summarizes one pipeline run.
type PipelineStats struct {
	ChunksEmbedded int
	ChunksFailed   int
	Duration       time.Duration
}

// NewPipeline creates a pipeline writing through db.
func NewPipeline(db *database.DB, emb Embedder, log zerolog.Logger) *Pipeline {
	return &Pipeline{db: db, emb: emb, log: log}
}

// Run embeds every pending chunk. batchSize <= 0 uses the default.
func (p *Pipeline) Run(ctx context.Context, batchSize int) (*PipelineStats, error) {
	if batchSize <= 0 {
		batchSize = DefaultPipelineBatch
	}
	if batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}

	start := time.Now()
	stats := &PipelineStats{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := p.runBatch(ctx, batchSize, stats)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
	}
	stats.Duration = time.Since(start)
	if stats.ChunksEmbedded > 0 || stats.ChunksFailed > 0 {
		p.log.Info().
			Int("embedded", stats.ChunksEmbedded).
			Int("failed", stats.ChunksFailed).
			Dur("took", stats.Duration).
			Msg("embedding pipeline finished")
	}
	return stats, nil
}

// runBatch embeds one batch and returns how many pending chunks it saw.
func (p *Pipeline) runBatch(ctx context.Context, batchSize int, stats *PipelineStats) (int, error) {
	rows, err := p.db.FetchAll(ctx,
		`SELECT id, content FROM chunks WHERE embedded = 0 ORDER BY id LIMIT ?`, batchSize)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	ids := make([]int64, 0, len(rows))
	texts := make([]string, 0, len(rows))
	for _, row := range rows {
		id, ok := row["id"].(int64)
		if !ok {
			return 0, fmt.Errorf("unexpected chunk id type %T", row["id"])
		}
		content, _ := row["content"].(string)
		if content == "" {
			// Nothing to embed; mark it done so it stops coming back.
			if err := p.db.Execute(ctx, `UPDATE chunks SET embedded = 1 WHERE id = ?`, id); err != nil {
				return 0, err
			}
			stats.ChunksFailed++
			continue
		}
		ids = append(ids, id)
		texts = append(texts, content)
	}
	if len(ids) == 0 {
		return len(rows), nil
	}

	embeddings, err := p.emb.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed batch: %w", err)
	}

	err = p.db.WithTx(ctx, func(ctx context.Context) error {
		for i, id := range ids {
			emb := embeddings[i]
			err := p.db.Execute(ctx, `
				INSERT INTO embeddings (chunk_id, vector, dimension, model)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(chunk_id) DO UPDATE SET
					vector = excluded.vector,
					dimension = excluded.dimension,
					model = excluded.model`,
				id, EncodeVector(emb.Vector), emb.Dimension, emb.Model)
			if err != nil {
				return err
			}
			if err := p.db.Execute(ctx, `UPDATE chunks SET embedded = 1 WHERE id = ?`, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	stats.ChunksEmbedded += len(ids)
	return len(rows), nil
}

// Pending returns how many chunks still need embedding.
func (p *Pipeline) Pending(ctx context.Context) (int64, error) {
	row, err := p.db.FetchOne(ctx, `SELECT COUNT(*) AS n FROM chunks WHERE embedded = 0`)
	if err != nil {
		return 0, err
	}
	n, ok := row["n"].(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected count type %T", row["n"])
	}
	return n, nil
}
