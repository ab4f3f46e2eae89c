package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"speakdocs/internal/composer"
	"speakdocs/internal/domain"
	"speakdocs/internal/retriever"
	"speakdocs/internal/session"
)

// Fixed user-facing answers. Failures never escape as raw errors; they
// degrade into these strings and are still recorded as turns so the
// transcript reflects what actually happened.
const (
	// NoDocumentsAnswer is returned when a query arrives before any
	// document has been indexed.
	NoDocumentsAnswer = "Please upload a document first so I can answer questions about it."
	// DegradedAnswer is returned when retrieval or composition fails.
	DegradedAnswer = "Sorry, I couldn't process your request at the moment."
)

// Query states, used for log correlation.
type state string

const (
	stateReceived   state = "received"
	stateCacheCheck state = "cache_check"
	stateCacheHit   state = "cache_hit"
	stateRetrieving state = "retrieving"
	stateComposing  state = "composing"
	stateRecorded   state = "recorded"
	stateErrored    state = "errored"
)

// Params wires a Pipeline. Chunker, NewEmbedder, Completer, and
// Sessions are required. NewStore must return a fresh, empty vector
// store and NewEmbedder a fresh, unprepared embedder; both are called
// once per ingested document set, so sessions never share index or
// vocabulary state and run fully in parallel.
type Params struct {
	Chunker     domain.Chunker
	NewEmbedder func() (domain.Embedder, error)
	Completer   domain.Completer
	Strategy    composer.Strategy
	NewStore    func() (domain.VectorStore, error)
	Sessions    *session.Manager

	// Summarizer is optional; when set, Ingest returns a short overview
	// of the document set.
	Summarizer       domain.Summarizer
	SummarySentences int

	TopK   int
	Logger *zap.Logger
}

// Pipeline coordinates the retrieval-augmented answer flow: it owns
// session lifecycle, dedupes repeated queries through the response
// cache, sequences retrieval and composition, and updates the
// conversation store.
type Pipeline struct {
	chunker      domain.Chunker
	newEmbedder  func() (domain.Embedder, error)
	composer     *composer.Composer
	retriever    *retriever.Retriever
	newStore     func() (domain.VectorStore, error)
	sessions     *session.Manager
	summarizer   domain.Summarizer
	summaryLimit int
	topK         int
	logger       *zap.Logger
}

func NewPipeline(p Params) *Pipeline {
	if p.TopK < 1 {
		p.TopK = retriever.DefaultK
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	return &Pipeline{
		chunker:      p.Chunker,
		newEmbedder:  p.NewEmbedder,
		composer:     composer.New(p.Completer, p.Strategy),
		retriever:    retriever.New(p.Strategy.HistoryAware()),
		newStore:     p.NewStore,
		sessions:     p.Sessions,
		summarizer:   p.Summarizer,
		summaryLimit: p.SummarySentences,
		topK:         p.TopK,
		logger:       p.Logger,
	}
}

// Ingest chunks and embeds a document set and installs the resulting
// index in the session, replacing any previous set. The embedder is
// created fresh, prepared on this corpus only, and installed alongside
// the store, so another session's ingest can never shift the vector
// space this session queries in. The swap and the response-cache
// invalidation happen together under the session lock. A chunk whose
// embedding fails is logged and dropped; the build only fails when
// nothing survives.
func (p *Pipeline) Ingest(ctx context.Context, sessionID string, docs []domain.Document) (string, error) {
	s := p.sessions.Get(sessionID)
	s.Lock()
	defer s.Unlock()
	p.sessions.Touch(s)

	var chunks []domain.Chunk
	var texts []string
	var corpus strings.Builder
	for _, doc := range docs {
		parts, err := p.chunker.Chunk(doc.Content)
		if err != nil {
			return "", err
		}
		for i, part := range parts {
			chunks = append(chunks, domain.Chunk{
				DocumentID: doc.ID,
				ChunkID:    doc.ID + ":" + strconv.Itoa(i),
				Content:    part,
				Index:      i,
			})
			texts = append(texts, part)
		}
		corpus.WriteString(doc.Content)
		corpus.WriteString("\n")
	}
	if len(chunks) == 0 {
		return "", fmt.Errorf("%w: documents contain no text", domain.ErrIndexEmpty)
	}

	embedder, err := p.newEmbedder()
	if err != nil {
		return "", fmt.Errorf("creating embedder: %w", err)
	}
	if err := embedder.Prepare(texts); err != nil {
		return "", fmt.Errorf("%w: preparing embedder: %v", domain.ErrEmbedding, err)
	}

	store, err := p.newStore()
	if err != nil {
		return "", fmt.Errorf("creating vector store: %w", err)
	}
	var kept []domain.Chunk
	var vectors [][]float32
	for _, ch := range chunks {
		vec, err := embedder.Embed(ctx, ch.Content)
		if err != nil {
			p.logger.Warn("chunk embedding failed, skipping",
				zap.String("session", s.ID),
				zap.String("chunk", ch.ChunkID),
				zap.Error(err))
			continue
		}
		kept = append(kept, ch)
		vectors = append(vectors, vec)
	}
	if len(kept) == 0 {
		return "", fmt.Errorf("%w: all %d chunks failed to embed", domain.ErrIndexEmpty, len(chunks))
	}
	if err := store.Upsert(ctx, kept, vectors); err != nil {
		return "", fmt.Errorf("indexing chunks: %w", err)
	}

	s.ReplaceIndex(docs, store, embedder)
	p.logger.Info("document set indexed",
		zap.String("session", s.ID),
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(kept)),
		zap.Int("dropped", len(chunks)-len(kept)))

	if p.summarizer == nil {
		return "", nil
	}
	summary, err := p.summarizer.Summarize(corpus.String(), p.summaryLimit)
	if err != nil {
		p.logger.Warn("document summary failed", zap.String("session", s.ID), zap.Error(err))
		return "", nil
	}
	return summary, nil
}

// Ask resolves one query for the session: expire idle state, check the
// response cache, retrieve, compose, record. The fallback flag is set
// when the answer is the fixed upload prompt rather than a computed one.
func (p *Pipeline) Ask(ctx context.Context, sessionID, query string) (answer string, fallback bool, err error) {
	s := p.sessions.Get(sessionID)
	s.Lock()
	defer s.Unlock()

	expired, resetErr := p.sessions.ExpireIfIdle(ctx, s)
	if resetErr != nil {
		p.logger.Warn("session reset failed", zap.String("session", s.ID), zap.Error(resetErr))
	}
	if expired {
		p.logger.Info("idle session expired", zap.String("session", s.ID))
	}
	p.sessions.Touch(s)

	log := p.logger.With(zap.String("session", s.ID))
	log.Debug("query received", zap.String("state", string(stateReceived)))

	if !s.HasIndex() {
		p.record(s, query, NoDocumentsAnswer)
		log.Info("no index for session, returning upload prompt")
		return NoDocumentsAnswer, true, nil
	}

	log.Debug("checking response cache", zap.String("state", string(stateCacheCheck)))
	if cached, ok := s.Cache.Get(query); ok {
		p.record(s, query, cached)
		log.Info("answer served from cache", zap.String("state", string(stateCacheHit)))
		return cached, false, nil
	}

	history := s.Conversation.Recent(s.Conversation.Window())

	log.Debug("retrieving context", zap.String("state", string(stateRetrieving)))
	chunks, err := p.retriever.Retrieve(ctx, s.Embedder, s.Store, query, history, p.topK)
	if err != nil {
		p.record(s, query, DegradedAnswer)
		log.Error("retrieval failed", zap.String("state", string(stateErrored)), zap.Error(err))
		return DegradedAnswer, false, nil
	}

	log.Debug("composing answer", zap.String("state", string(stateComposing)), zap.Int("chunks", len(chunks)))
	answer, err = p.composer.Compose(ctx, query, chunks, history)
	if err != nil {
		p.record(s, query, DegradedAnswer)
		log.Error("composition failed", zap.String("state", string(stateErrored)), zap.Error(err))
		return DegradedAnswer, false, nil
	}

	p.record(s, query, answer)
	s.Cache.Put(query, answer)
	log.Debug("answer recorded", zap.String("state", string(stateRecorded)))
	return answer, false, nil
}

// History returns the recent conversation turns for rendering.
func (p *Pipeline) History(sessionID string) []domain.Turn {
	s := p.sessions.Get(sessionID)
	s.Lock()
	defer s.Unlock()
	return s.Conversation.Recent(s.Conversation.Window())
}

// ClearConversation empties the conversation and cache but keeps the
// document set and index.
func (p *Pipeline) ClearConversation(sessionID string) {
	s := p.sessions.Get(sessionID)
	s.Lock()
	defer s.Unlock()
	s.Conversation.Clear()
	s.Cache.Clear()
}

// HasDocuments reports whether the session has an active index.
func (p *Pipeline) HasDocuments(sessionID string) bool {
	s := p.sessions.Get(sessionID)
	s.Lock()
	defer s.Unlock()
	return s.HasIndex()
}

// record appends the (user, assistant) pair for this submission. Caller
// must hold the session lock.
func (p *Pipeline) record(s *session.Session, query, answer string) {
	now := time.Now()
	s.Conversation.Append(domain.Turn{Role: domain.RoleUser, Text: query, Timestamp: now})
	s.Conversation.Append(domain.Turn{Role: domain.RoleAssistant, Text: answer, Timestamp: now})
}
