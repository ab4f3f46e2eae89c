package memory

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"speakdocs/internal/domain"
)

// Store is an in-memory vector store using brute-force cosine similarity.
// It is the default backend: a document set is small enough that a linear
// scan beats maintaining any index structure.
type Store struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float32
	chunks    []domain.Chunk
}

func NewStore() *Store { return &Store{} }

// Upsert adds chunks with their precomputed vectors. All vectors must
// share one dimension; the first batch fixes it.
func (s *Store) Upsert(_ context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		if s.dimension == 0 {
			s.dimension = len(v)
		}
		if len(v) != s.dimension || s.dimension == 0 {
			return errors.New("vector dimension mismatch")
		}
	}
	s.chunks = append(s.chunks, chunks...)
	s.vectors = append(s.vectors, vectors...)
	return nil
}

// Search returns the topK most similar chunks, best first. Ties are
// broken by chunk index ascending, then document ID ascending, so
// repeated searches over the same store are fully deterministic.
func (s *Store) Search(_ context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		topK = 3
	}
	results := make([]domain.SearchResult, len(s.chunks))
	for i := range s.vectors {
		results[i] = domain.SearchResult{Chunk: s.chunks[i], Score: cosine(s.vectors[i], vector)}
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
	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK], nil
}

// Len reports the number of stored chunks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Clear removes all stored chunks and vectors.
func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = 0
	s.vectors = nil
	s.chunks = nil
	return nil
}

func cosine(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
