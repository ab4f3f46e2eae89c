package retriever

import (
	"context"
	"fmt"
	"strings"

	"speakdocs/internal/domain"
)

// DefaultK is the number of chunks handed to the composer per query.
const DefaultK = 3

// Retriever turns a query into chunks, best match first. The embedder
// is passed per call: index and query vectors must come from the same
// prepared instance, and that instance lives with the session's index,
// not with the retriever.
type Retriever struct {
	historyAware bool
}

// New creates a retriever. When historyAware is set, recent user turns
// are folded into the query text before embedding, so follow-up
// questions ("what about its population?") retrieve against the topic
// of the conversation rather than the bare pronoun.
func New(historyAware bool) *Retriever {
	return &Retriever{historyAware: historyAware}
}

// Retrieve embeds query with the embedder that built store and searches
// it for the k most similar chunks. history may be nil. An absent or
// empty store is a retrieval error: callers surface it to the user as
// "no documents uploaded".
func (r *Retriever) Retrieve(ctx context.Context, embedder domain.Embedder, store domain.VectorStore, query string, history []domain.Turn, k int) ([]domain.Chunk, error) {
	if store == nil || store.Len() == 0 {
		return nil, fmt.Errorf("%w: no document index available", domain.ErrRetrieval)
	}
	if k < 1 {
		k = DefaultK
	}
	text := query
	if r.historyAware {
		text = rewriteWithHistory(query, history)
	}
	vec, err := embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %v", domain.ErrRetrieval, err)
	}
	results, err := store.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRetrieval, err)
	}
	chunks := make([]domain.Chunk, len(results))
	for i, res := range results {
		chunks[i] = res.Chunk
	}
	return chunks, nil
}

// rewriteWithHistory prepends the most recent user turns to the query so
// the embedding carries conversational context. Two turns is enough to
// resolve a follow-up without drowning the current question.
func rewriteWithHistory(query string, history []domain.Turn) string {
	var prior []string
	for i := len(history) - 1; i >= 0 && len(prior) < 2; i-- {
		if history[i].Role == domain.RoleUser {
			prior = append([]string{history[i].Text}, prior...)
		}
	}
	if len(prior) == 0 {
		return query
	}
	return strings.Join(prior, "\n") + "\n" + query
}
