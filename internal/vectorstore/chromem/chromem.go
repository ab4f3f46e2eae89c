package chromem

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"speakdocs/internal/domain"
)

// Config holds configuration for the chromem-go backed store.
type Config struct {
	// Path is the directory for persistent storage. Empty selects a
	// purely in-memory database.
	Path string
	// Collection is the collection name. Default: "speakdocs".
	Collection string
	// Compress enables gzip compression for persisted data.
	Compress bool
}

// Store keeps embedded chunks in a chromem-go collection. chromem-go is
// an embeddable vector database, so the persistent option needs no
// external server. Vectors are precomputed by the pipeline's embedder;
// the collection never embeds on its own.
type Store struct {
	mu         sync.Mutex
	db         *chromem.DB
	collection *chromem.Collection
	name       string
}

// NewStore creates an empty collection. A store is built once per
// ingested document set and must start empty, so any collection already
// persisted under the same name, whether from a retired document set or
// an earlier process run, is dropped first.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Collection == "" {
		cfg.Collection = "speakdocs"
	}
	var db *chromem.DB
	var err error
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("opening chromem DB: %w", err)
		}
	}
	if err := db.DeleteCollection(cfg.Collection); err != nil {
		return nil, fmt.Errorf("dropping stale collection %s: %w", cfg.Collection, err)
	}
	coll, err := db.GetOrCreateCollection(cfg.Collection, nil, rejectEmbedding)
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", cfg.Collection, err)
	}
	return &Store{db: db, collection: coll, name: cfg.Collection}, nil
}

// rejectEmbedding guards against chromem embedding on its own; every
// document added here carries a precomputed vector.
func rejectEmbedding(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("store only accepts precomputed embeddings")
}

// Upsert adds chunks with their precomputed vectors.
func (s *Store) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch")
	}
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(chunks))
	for i, ch := range chunks {
		docs[i] = chromem.Document{
			ID:        ch.ChunkID,
			Content:   ch.Content,
			Embedding: vectors[i],
			Metadata: map[string]string{
				"document_id": ch.DocumentID,
				"index":       strconv.Itoa(ch.Index),
			},
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}
	return nil
}

// Search returns the topK most similar chunks, best first, with the same
// tie-break order as the in-memory store. The comparator must see every
// candidate before the cut at topK, otherwise ties straddling the k-th
// position would be split by chromem's own internal order, so the full
// collection is queried and truncated after sorting. Document sets are
// small enough that this costs nothing.
func (s *Store) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	s.mu.Lock()
	coll := s.collection
	s.mu.Unlock()
	if topK <= 0 {
		topK = 3
	}
	n := coll.Count()
	if n == 0 {
		return nil, nil
	}
	hits, err := coll.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}
	results := make([]domain.SearchResult, len(hits))
	for i, h := range hits {
		idx, _ := strconv.Atoi(h.Metadata["index"])
		results[i] = domain.SearchResult{
			Chunk: domain.Chunk{
				DocumentID: h.Metadata["document_id"],
				ChunkID:    h.ID,
				Content:    h.Content,
				Index:      idx,
			},
			Score: h.Similarity,
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Chunk.Index != results[j].Chunk.Index {
			return results[i].Chunk.Index < results[j].Chunk.Index
		}
		return results[i].Chunk.DocumentID < results[j].Chunk.DocumentID
	})
	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// Len reports the number of stored chunks.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collection.Count()
}

// Clear drops and recreates the collection.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.DeleteCollection(s.name); err != nil {
		return fmt.Errorf("deleting collection %s: %w", s.name, err)
	}
	coll, err := s.db.GetOrCreateCollection(s.name, nil, rejectEmbedding)
	if err != nil {
		return fmt.Errorf("recreating collection %s: %w", s.name, err)
	}
	s.collection = coll
	return nil
}
