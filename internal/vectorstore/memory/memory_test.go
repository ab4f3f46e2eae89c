package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speakdocs/internal/domain"
)

func chunk(doc string, idx int, content string) domain.Chunk {
	return domain.Chunk{DocumentID: doc, ChunkID: doc + ":" + content, Content: content, Index: idx}
}

func TestUpsertLengthMismatch(t *testing.T) {
	s := NewStore()
	err := s.Upsert(context.Background(), []domain.Chunk{chunk("d", 0, "a")}, nil)
	assert.Error(t, err)
}

func TestUpsertDimensionMismatch(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, []domain.Chunk{chunk("d", 0, "a")}, [][]float32{{1, 0}}))
	err := s.Upsert(ctx, []domain.Chunk{chunk("d", 1, "b")}, [][]float32{{1, 0, 0}})
	assert.Error(t, err)
}

func TestSearchOrdersBySimilarity(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	chunks := []domain.Chunk{
		chunk("doc", 0, "north"),
		chunk("doc", 1, "east"),
		chunk("doc", 2, "northeast"),
	}
	vectors := [][]float32{{1, 0}, {0, 1}, {0.7, 0.7}}
	require.NoError(t, s.Upsert(ctx, chunks, vectors))

	res, err := s.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "north", res[0].Chunk.Content)
	assert.Equal(t, "northeast", res[1].Chunk.Content)
	assert.Greater(t, res[0].Score, res[1].Score)
}

func TestSearchTieBreakIsDeterministic(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	// Identical vectors force a tie; order must come from chunk index,
	// then document ID.
	chunks := []domain.Chunk{
		chunk("docB", 1, "b1"),
		chunk("docA", 1, "a1"),
		chunk("docA", 0, "a0"),
	}
	vectors := [][]float32{{1, 1}, {1, 1}, {1, 1}}
	require.NoError(t, s.Upsert(ctx, chunks, vectors))

	for i := 0; i < 5; i++ {
		res, err := s.Search(ctx, []float32{1, 1}, 3)
		require.NoError(t, err)
		require.Len(t, res, 3)
		assert.Equal(t, "a0", res[0].Chunk.Content)
		assert.Equal(t, "a1", res[1].Chunk.Content)
		assert.Equal(t, "b1", res[2].Chunk.Content)
	}
}

func TestSearchClampsK(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, []domain.Chunk{chunk("d", 0, "only")}, [][]float32{{1}}))
	res, err := s.Search(ctx, []float32{1}, 10)
	require.NoError(t, err)
	assert.Len(t, res, 1)
}

func TestClearEmptiesStore(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, []domain.Chunk{chunk("d", 0, "x")}, [][]float32{{1}}))
	require.Equal(t, 1, s.Len())
	require.NoError(t, s.Clear(ctx))
	assert.Equal(t, 0, s.Len())
	res, err := s.Search(ctx, []float32{1}, 3)
	require.NoError(t, err)
	assert.Empty(t, res)
}
