package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speakdocs/internal/chunker"
	"speakdocs/internal/composer"
	"speakdocs/internal/domain"
	"speakdocs/internal/embedding/tfidf"
	"speakdocs/internal/session"
	"speakdocs/internal/vectorstore/memory"
)

// countingEmbedder wraps a real embedder to observe and fail calls.
// Every embedder the factory hands out shares one fixture-level counter,
// since each ingested document set gets its own instance.
type countingEmbedder struct {
	inner domain.Embedder
	f     *fixture
}

func (e *countingEmbedder) Name() string { return e.inner.Name() }

func (e *countingEmbedder) Prepare(corpus []string) error { return e.inner.Prepare(corpus) }

func (e *countingEmbedder) Dimension() int { return e.inner.Dimension() }

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.f.embedCalls++
	if e.f.failOn != nil && e.f.failOn(text) {
		return nil, errors.New("embedding backend unreachable")
	}
	return e.inner.Embed(ctx, text)
}

// fakeCompleter answers from whatever context the prompt carries, and
// refuses with the fixed fallback otherwise, mimicking a grounded model.
type fakeCompleter struct {
	calls int
	err   error
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	question := prompt[strings.LastIndex(prompt, "Question: "):]
	// Ground on the Context section only; the conversation history may
	// quote earlier answers.
	ctxSection := prompt
	if start := strings.Index(prompt, "Context:"); start >= 0 {
		ctxSection = prompt[start:]
	}
	if end := strings.Index(ctxSection, "Conversation so far:"); end >= 0 {
		ctxSection = ctxSection[:end]
	} else if end := strings.Index(ctxSection, "Question: "); end >= 0 {
		ctxSection = ctxSection[:end]
	}
	switch {
	case strings.Contains(question, "Nigeria") && strings.Contains(ctxSection, "Abuja"):
		return "The capital of Nigeria is Abuja.", nil
	case strings.Contains(question, "France") && strings.Contains(ctxSection, "Paris"):
		return "The capital of France is Paris.", nil
	}
	return composer.Fallback, nil
}

type fixture struct {
	pipeline  *Pipeline
	sessions  *session.Manager
	completer *fakeCompleter

	embedCalls int
	failOn     func(text string) bool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{completer: &fakeCompleter{}}
	f.sessions = session.NewManager(10, 1800*time.Second)
	f.pipeline = NewPipeline(Params{
		Chunker: chunker.NewWindowChunker(1000, 200),
		NewEmbedder: func() (domain.Embedder, error) {
			return &countingEmbedder{inner: tfidf.NewEmbedder(), f: f}, nil
		},
		Completer: f.completer,
		Strategy:  composer.StrategyWindowed,
		NewStore:  func() (domain.VectorStore, error) { return memory.NewStore(), nil },
		Sessions:  f.sessions,
		TopK:      3,
	})
	return f
}

func nigeriaDoc() domain.Document {
	return domain.Document{ID: "doc-ng", Name: "nigeria.txt", Content: "The capital of Nigeria is Abuja."}
}

func franceDoc() domain.Document {
	return domain.Document{ID: "doc-fr", Name: "france.txt", Content: "The capital of France is Paris."}
}

func TestAskWithoutDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	answer, fallback, err := f.pipeline.Ask(ctx, "s1", "What is the capital of Nigeria?")
	require.NoError(t, err)
	assert.True(t, fallback)
	assert.Equal(t, NoDocumentsAnswer, answer)
	assert.Zero(t, f.completer.calls)

	// The fallback is visible in history as an assistant turn.
	turns := f.pipeline.History("s1")
	require.Len(t, turns, 2)
	assert.Equal(t, domain.RoleUser, turns[0].Role)
	assert.Equal(t, domain.RoleAssistant, turns[1].Role)
	assert.Equal(t, NoDocumentsAnswer, turns[1].Text)
}

func TestGroundedAnswer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.pipeline.Ingest(ctx, "s1", []domain.Document{nigeriaDoc()})
	require.NoError(t, err)

	answer, fallback, err := f.pipeline.Ask(ctx, "s1", "What is the capital of Nigeria?")
	require.NoError(t, err)
	assert.False(t, fallback)
	assert.Contains(t, answer, "Abuja")
}

func TestUngroundedQueryReturnsFallbackSentence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.pipeline.Ingest(ctx, "s1", []domain.Document{nigeriaDoc()})
	require.NoError(t, err)

	answer, _, err := f.pipeline.Ask(ctx, "s1", "What is the population of Mars?")
	require.NoError(t, err)
	assert.Equal(t, composer.Fallback, answer)
}

func TestCacheIdempotence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.pipeline.Ingest(ctx, "s1", []domain.Document{nigeriaDoc()})
	require.NoError(t, err)

	first, _, err := f.pipeline.Ask(ctx, "s1", "What is the capital of Nigeria?")
	require.NoError(t, err)
	completions := f.completer.calls
	embeds := f.embedCalls

	second, _, err := f.pipeline.Ask(ctx, "s1", "What is the capital of Nigeria?")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	// The second submission must not retrieve or compose again.
	assert.Equal(t, completions, f.completer.calls)
	assert.Equal(t, embeds, f.embedCalls)

	// Caching affects computation reuse, not history: both submissions
	// are recorded.
	turns := f.pipeline.History("s1")
	require.Len(t, turns, 4)
	assert.Equal(t, turns[1].Text, turns[3].Text)
}

func TestReuploadInvalidatesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.pipeline.Ingest(ctx, "s1", []domain.Document{nigeriaDoc()})
	require.NoError(t, err)

	_, _, err = f.pipeline.Ask(ctx, "s1", "What is the capital of Nigeria?")
	require.NoError(t, err)
	require.Equal(t, 1, f.completer.calls)

	_, err = f.pipeline.Ingest(ctx, "s1", []domain.Document{franceDoc()})
	require.NoError(t, err)

	// Same query string after rebuild must be a cache miss.
	answer, _, err := f.pipeline.Ask(ctx, "s1", "What is the capital of Nigeria?")
	require.NoError(t, err)
	assert.Equal(t, 2, f.completer.calls)
	assert.Equal(t, composer.Fallback, answer)
}

func TestRetrievalFailureDegrades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.pipeline.Ingest(ctx, "s1", []domain.Document{nigeriaDoc()})
	require.NoError(t, err)

	f.failOn = func(string) bool { return true }
	answer, fallback, err := f.pipeline.Ask(ctx, "s1", "What is the capital of Nigeria?")
	require.NoError(t, err)
	assert.False(t, fallback)
	assert.Equal(t, DegradedAnswer, answer)
	assert.Zero(t, f.completer.calls)

	// The failed turn is visible, not silently dropped.
	turns := f.pipeline.History("s1")
	require.Len(t, turns, 2)
	assert.Equal(t, DegradedAnswer, turns[1].Text)

	// Degraded answers must not be cached.
	f.failOn = nil
	answer, _, err = f.pipeline.Ask(ctx, "s1", "What is the capital of Nigeria?")
	require.NoError(t, err)
	assert.Contains(t, answer, "Abuja")
}

func TestCompositionFailureDegrades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.pipeline.Ingest(ctx, "s1", []domain.Document{nigeriaDoc()})
	require.NoError(t, err)

	f.completer.err = errors.New("model timeout")
	answer, _, err := f.pipeline.Ask(ctx, "s1", "What is the capital of Nigeria?")
	require.NoError(t, err)
	assert.Equal(t, DegradedAnswer, answer)

	turns := f.pipeline.History("s1")
	require.Len(t, turns, 2)
	assert.Equal(t, DegradedAnswer, turns[1].Text)
}

func TestIngestInOneSessionLeavesOthersIntact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.pipeline.Ingest(ctx, "s1", []domain.Document{nigeriaDoc(), franceDoc()})
	require.NoError(t, err)

	answer, _, err := f.pipeline.Ask(ctx, "s1", "What is the capital of France?")
	require.NoError(t, err)
	require.Contains(t, answer, "Paris")

	// An unrelated corpus in another session must not shift the vector
	// space s1 retrieves in.
	_, err = f.pipeline.Ingest(ctx, "s2", []domain.Document{{
		ID:      "doc-qm",
		Name:    "quantum.txt",
		Content: "Quantum entanglement links the states of distant particles.",
	}})
	require.NoError(t, err)

	// Fresh query string, so this is a cache miss and re-embeds in s1.
	answer, _, err = f.pipeline.Ask(ctx, "s1", "Which city is the capital of France?")
	require.NoError(t, err)
	assert.Contains(t, answer, "Paris")

	// And s2 retrieves in its own space.
	answer, _, err = f.pipeline.Ask(ctx, "s2", "What is the capital of France?")
	require.NoError(t, err)
	assert.Equal(t, composer.Fallback, answer)
}

func TestSessionTimeoutResetsBeforeQuery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.pipeline.Ingest(ctx, "s1", []domain.Document{nigeriaDoc()})
	require.NoError(t, err)
	_, _, err = f.pipeline.Ask(ctx, "s1", "What is the capital of Nigeria?")
	require.NoError(t, err)

	s := f.sessions.Get("s1")
	s.Lock()
	s.LastActivity = time.Now().Add(-1801 * time.Second)
	s.Unlock()

	answer, fallback, err := f.pipeline.Ask(ctx, "s1", "What is the capital of Nigeria?")
	require.NoError(t, err)
	assert.True(t, fallback)
	assert.Equal(t, NoDocumentsAnswer, answer)

	s.Lock()
	defer s.Unlock()
	assert.Nil(t, s.Documents)
	assert.Nil(t, s.Store)
	assert.Zero(t, s.Cache.Len())
	// Only the post-reset exchange remains in the conversation.
	assert.Equal(t, 2, s.Conversation.Len())
}

func TestIngestEmptyDocumentSet(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline.Ingest(context.Background(), "s1", []domain.Document{{ID: "empty", Content: ""}})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrIndexEmpty)
}

func TestIngestAllChunksFailToEmbed(t *testing.T) {
	f := newFixture(t)
	f.failOn = func(string) bool { return true }
	_, err := f.pipeline.Ingest(context.Background(), "s1", []domain.Document{nigeriaDoc()})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrIndexEmpty)
}

func TestIngestSkipsFailedChunks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.failOn = func(text string) bool { return strings.Contains(text, "Paris") }
	_, err := f.pipeline.Ingest(ctx, "s1", []domain.Document{nigeriaDoc(), franceDoc()})
	require.NoError(t, err)

	f.failOn = nil
	answer, _, err := f.pipeline.Ask(ctx, "s1", "What is the capital of Nigeria?")
	require.NoError(t, err)
	assert.Contains(t, answer, "Abuja")

	answer, _, err = f.pipeline.Ask(ctx, "s1", "What is the capital of France?")
	require.NoError(t, err)
	assert.Equal(t, composer.Fallback, answer)
}

func TestIngestChunkerConfigError(t *testing.T) {
	p := NewPipeline(Params{
		Chunker:     chunker.NewWindowChunker(100, 100),
		NewEmbedder: func() (domain.Embedder, error) { return tfidf.NewEmbedder(), nil },
		Completer:   &fakeCompleter{},
		Strategy:    composer.StrategyWindowed,
		NewStore:    func() (domain.VectorStore, error) { return memory.NewStore(), nil },
		Sessions:    session.NewManager(10, 0),
	})
	_, err := p.Ingest(context.Background(), "s1", []domain.Document{nigeriaDoc()})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfig)
}
