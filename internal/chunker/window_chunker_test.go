package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speakdocs/internal/domain"
)

func reconstruct(chunks []string, overlap int) string {
	var b strings.Builder
	for i, ch := range chunks {
		r := []rune(ch)
		if i == 0 {
			b.WriteString(ch)
			continue
		}
		b.WriteString(string(r[overlap:]))
	}
	return b.String()
}

func TestChunkEmptyInput(t *testing.T) {
	c := NewWindowChunker(100, 20)
	chunks, err := c.Chunk("")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkShortInputSingleChunk(t *testing.T) {
	c := NewWindowChunker(1000, 200)
	chunks, err := c.Chunk("just one small paragraph")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "just one small paragraph", chunks[0])
}

func TestChunkOverlapNotSmallerThanSize(t *testing.T) {
	c := NewWindowChunker(100, 100)
	_, err := c.Chunk("some text")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfig)

	c = NewWindowChunker(100, -1)
	_, err = c.Chunk("some text")
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestChunkWindowInvariants(t *testing.T) {
	sizes := []struct{ size, overlap int }{
		{50, 10}, {100, 0}, {80, 40}, {1000, 200}, {30, 29},
	}
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 60)
	for _, p := range sizes {
		c := NewWindowChunker(p.size, p.overlap)
		chunks, err := c.Chunk(text)
		require.NoError(t, err)
		require.NotEmpty(t, chunks)
		for i, ch := range chunks {
			assert.LessOrEqual(t, len([]rune(ch)), p.size, "chunk %d exceeds size for %+v", i, p)
		}
		for i := 1; i < len(chunks); i++ {
			prev := []rune(chunks[i-1])
			cur := []rune(chunks[i])
			tail := string(prev[len(prev)-p.overlap:])
			head := string(cur[:p.overlap])
			assert.Equal(t, tail, head, "chunks %d/%d overlap mismatch for %+v", i-1, i, p)
		}
		assert.Equal(t, text, reconstruct(chunks, p.overlap), "reconstruction failed for %+v", p)
	}
}

func TestChunkPrefersParagraphBoundary(t *testing.T) {
	para := strings.Repeat("alpha beta gamma delta. ", 3)
	text := para + "\n\n" + strings.Repeat("epsilon zeta eta theta. ", 10)
	c := NewWindowChunker(120, 10)
	chunks, err := c.Chunk(text)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	assert.True(t, strings.HasSuffix(chunks[0], "\n\n"), "first chunk should end at the paragraph break, got %q", chunks[0])
}

func TestChunkAvoidsMidWordCut(t *testing.T) {
	text := strings.Repeat("lorem ipsum dolor sit amet ", 40)
	c := NewWindowChunker(100, 20)
	chunks, err := c.Chunk(text)
	require.NoError(t, err)
	for i, ch := range chunks[:len(chunks)-1] {
		assert.True(t, strings.HasSuffix(ch, " "), "chunk %d cut mid-word: %q", i, ch)
	}
}

func TestChunkDeterministic(t *testing.T) {
	text := strings.Repeat("determinism matters for retrieval. ", 50)
	c := NewWindowChunker(90, 15)
	first, err := c.Chunk(text)
	require.NoError(t, err)
	second, err := c.Chunk(text)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
