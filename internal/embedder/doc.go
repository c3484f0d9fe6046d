// Package embedder generates vector embeddings for code chunks.
//
// Two providers implement the Embedder interface: OllamaProvider calls a
// local Ollama server's embeddings endpoint with retry and exponential
// backoff, and LocalProvider produces deterministic hash-derived vectors
// when no server is configured. Both share an LRU cache keyed by content
// hash.
//
// Pipeline drains the backlog of chunks without vectors, writing each
// batch's vectors and the embedded flag in one transaction so an
// interrupted run resumes cleanly. Vectors are stored as little-endian
// float32 blobs; EncodeVector and DecodeVector define the format.
package embedder
