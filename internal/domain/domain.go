package domain

import (
	"context"
	"time"
)

// Document is one uploaded source document, already extracted to plain text.
type Document struct {
	ID      string
	Name    string
	Content string
}

// Chunk is a bounded span of document text used for indexing and retrieval.
// Chunks are created once per document during ingestion and never mutated.
type Chunk struct {
	DocumentID string
	ChunkID    string
	Content    string
	Index      int
}

// SearchResult is a retrieved chunk with its similarity score.
type SearchResult struct {
	Chunk Chunk
	Score float32
}

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation.
type Turn struct {
	Role      Role
	Text      string
	Timestamp time.Time
}

// Chunker splits raw document text into overlapping, bounded-size segments.
type Chunker interface {
	Chunk(text string) ([]string, error)
}

// Embedder converts free text into a fixed-width vector representation.
// Implementations may require a preparation phase over the corpus.
// The same embedder instance must be used for both indexing and queries.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorStore holds embedded chunks and supports similarity search.
// A store is built fresh per document set; callers swap the reference
// rather than mutating an existing store.
type VectorStore interface {
	Upsert(ctx context.Context, chunks []Chunk, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, topK int) ([]SearchResult, error)
	Len() int
	Clear(ctx context.Context) error
}

// Completer generates text from a prompt via a hosted language model.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}

// Extractor converts uploaded files into plain-text documents. Type and
// size validation happens here, before any document reaches the pipeline.
type Extractor interface {
	Extract(paths []string) ([]Document, error)
}
