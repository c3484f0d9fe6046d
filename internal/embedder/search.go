package embedder

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/codescope/codescope/internal/database"
)

// SearchResult is one chunk scored against a query vector.
type SearchResult struct {
	ChunkID    int64
	FilePath   string
	StartLine  int64
	EndLine    int64
	Content    string
	Similarity float64
}

// Searcher ranks stored chunks by cosine similarity to a query. Scoring
// happens in Go so it works with any SQLite build; the vector set of a
// single project comfortably fits in memory.
type Searcher struct {
	db  *database.DB
	emb Embedder
}

// NewSearcher creates a searcher over db using emb for query vectors.
func NewSearcher(db *database.DB, emb Embedder) *Searcher {
	return &Searcher{db: db, emb: emb}
}

// Search embeds the query and returns the limit most similar chunks with
// at least minSimilarity.
func (s *Searcher) Search(ctx context.Context, query string, limit int, minSimilarity float64) ([]SearchResult, error) {
	if query == "" {
		return nil, ErrEmptyText
	}
	if limit <= 0 {
		limit = 10
	}

	queryEmb, err := s.emb.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	queryVec := NormalizeVector(queryEmb.Vector)

	rows, err := s.db.FetchAll(ctx, `
		SELECT c.id, c.content, c.start_line, c.end_line, f.file_path, e.vector
		FROM embeddings e
		JOIN chunks c ON c.id = e.chunk_id
		JOIN files f ON f.id = c.file_id
		WHERE e.dimension = ?`, queryEmb.Dimension)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(rows))
	for _, row := range rows {
		blob, _ := row["vector"].(string)
		vector, err := DecodeVector([]byte(blob))
		if err != nil {
			continue
		}
		sim := CosineSimilarity(queryVec, vector)
		if sim < minSimilarity {
			continue
		}
		chunkID, _ := row["id"].(int64)
		startLine, _ := row["start_line"].(int64)
		endLine, _ := row["end_line"].(int64)
		filePath, _ := row["file_path"].(string)
		content, _ := row["content"].(string)
		results = append(results, SearchResult{
			ChunkID:    chunkID,
			FilePath:   filePath,
			StartLine:  startLine,
			EndLine:    endLine,
			Content:    content,
			Similarity: sim,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// CosineSimilarity computes the cosine similarity of two vectors. Returns
// 0 for mismatched or zero-length inputs.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
