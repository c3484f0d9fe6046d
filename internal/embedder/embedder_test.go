package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheRoundTrip(t *testing.T) {
	cache := NewCache(10)
	emb := &Embedding{Vector: []float32{1, 2, 3}, Dimension: 3, Model: "m", Hash: "h"}
	cache.Set("h", emb)

	got, ok := cache.Get("h")
	require.True(t, ok)
	assert.Equal(t, emb.Vector, got.Vector)

	// Mutating the returned copy must not touch the cached value.
	got.Vector[0] = 99
	again, ok := cache.Get("h")
	require.True(t, ok)
	assert.Equal(t, float32(1), again.Vector[0])

	_, ok = cache.Get("missing")
	assert.False(t, ok)

	cache.Clear()
	assert.Zero(t, cache.Size())
}

func TestCacheEviction(t *testing.T) {
	cache := NewCache(2)
	cache.Set("a", &Embedding{Hash: "a"})
	cache.Set("b", &Embedding{Hash: "b"})
	cache.Set("c", &Embedding{Hash: "c"})

	assert.Equal(t, 2, cache.Size())
	_, ok := cache.Get("a")
	assert.False(t, ok, "oldest entry should have been evicted")
}

func TestVectorCodec(t *testing.T) {
	vector := []float32{0, 1.5, -2.25, 3e7}
	blob := EncodeVector(vector)
	assert.Len(t, blob, 16)

	decoded, err := DecodeVector(blob)
	require.NoError(t, err)
	assert.Equal(t, vector, decoded)

	_, err = DecodeVector([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestLocalProviderDeterministic(t *testing.T) {
	p := NewLocalProvider(nil)
	ctx := context.Background()

	a, err := p.Embed(ctx, "func main() {}")
	require.NoError(t, err)
	b, err := p.Embed(ctx, "func main() {}")
	require.NoError(t, err)
	assert.Equal(t, a.Vector, b.Vector)
	assert.Len(t, a.Vector, LocalDimension)

	c, err := p.Embed(ctx, "func other() {}")
	require.NoError(t, err)
	assert.NotEqual(t, a.Vector, c.Vector)

	_, err = p.Embed(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestNormalizeVector(t *testing.T) {
	v := NormalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := NormalizeVector([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestValidateBatch(t *testing.T) {
	assert.ErrorIs(t, validateBatch(nil), ErrInvalidInput)
	assert.ErrorIs(t, validateBatch([]string{"ok", ""}), ErrInvalidInput)

	big := make([]string, MaxBatchSize+1)
	for i := range big {
		big[i] = "x"
	}
	assert.ErrorIs(t, validateBatch(big), ErrBatchTooLarge)

	assert.NoError(t, validateBatch([]string{"a", "b"}))
}

func fakeOllama(t *testing.T, handler http.HandlerFunc) *OllamaProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOllamaProvider(OllamaConfig{
		BaseURL:    srv.URL,
		Model:      "test-model",
		Dimension:  3,
		RetryDelay: time.Millisecond,
	}, nil)
}

func TestOllamaEmbed(t *testing.T) {
	var gotPrompt string
	p := fakeOllama(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		gotPrompt = req.Prompt
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.1, 0.2, 0.3}})
	})

	emb, err := p.Embed(context.Background(), "some code")
	require.NoError(t, err)
	assert.Equal(t, "some code", gotPrompt)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, emb.Vector)
	assert.Equal(t, 3, emb.Dimension)
	assert.Equal(t, "test-model", emb.Model)
	assert.Equal(t, ComputeHash("some code"), emb.Hash)
}

func TestOllamaRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	p := fakeOllama(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{1}})
	})

	emb, err := p.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []float32{1}, emb.Vector)
}

func TestOllamaGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	p := fakeOllama(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	})

	_, err := p.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.Equal(t, int32(defaultMaxAttempts), calls.Load())
}

func TestOllamaCacheHit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{1, 2}})
	}))
	t.Cleanup(srv.Close)

	p := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL}, NewCache(10))
	ctx := context.Background()
	_, err := p.Embed(ctx, "same text")
	require.NoError(t, err)
	_, err = p.Embed(ctx, "same text")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOllamaBatch(t *testing.T) {
	p := fakeOllama(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.5}})
	})

	embeddings, err := p.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, embeddings, 3)
	for _, emb := range embeddings {
		assert.Equal(t, []float32{0.5}, emb.Vector)
	}
}

func TestOllamaDefaults(t *testing.T) {
	p := NewOllamaProvider(OllamaConfig{}, nil)
	assert.Equal(t, DefaultOllamaModel, p.Model())
	assert.Equal(t, OllamaDimension, p.Dimension())
	assert.Equal(t, DefaultOllamaURL, p.baseURL)
	require.NoError(t, p.Close())
}
