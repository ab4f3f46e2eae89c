package composer

import (
	"context"
	"fmt"
	"strings"

	"speakdocs/internal/domain"
)

// Strategy selects how conversation history participates in answering.
type Strategy string

const (
	// StrategyBasic answers from retrieved context only.
	StrategyBasic Strategy = "basic"
	// StrategyWindowed includes the recent conversation window in the
	// prompt.
	StrategyWindowed Strategy = "windowed-memory"
	// StrategyHistoryAware additionally rewrites the query with prior
	// user turns before retrieval.
	StrategyHistoryAware Strategy = "history-aware-retrieval"
)

// ParseStrategy validates a configured strategy name. Empty selects
// windowed memory.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "":
		return StrategyWindowed, nil
	case StrategyBasic, StrategyWindowed, StrategyHistoryAware:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("%w: unknown composer strategy %q", domain.ErrConfig, s)
}

// HistoryAware reports whether retrieval should fold history into the
// query embedding.
func (s Strategy) HistoryAware() bool { return s == StrategyHistoryAware }

// Fallback is the fixed sentence the model is instructed to answer with
// when the supplied context does not contain the answer. The grounding
// rule lives in the prompt; nothing checks the model honored it.
const Fallback = "I can't find the answer from the provided document. You can try to upload a more detailed document."

const promptHeader = `Use the following excerpts to answer a query. If you can't find the answer from the provided document, don't try to make up an answer. Just say "` + Fallback + `"`

// Composer builds the grounded prompt and invokes the completion backend.
type Composer struct {
	completer domain.Completer
	strategy  Strategy
}

func New(completer domain.Completer, strategy Strategy) *Composer {
	return &Composer{completer: completer, strategy: strategy}
}

// Compose produces an answer for query from the retrieved chunks and the
// recent conversation history. It is a pure function of its inputs plus
// the one model call; a backend failure or timeout is reported as a
// composition error.
func (c *Composer) Compose(ctx context.Context, query string, chunks []domain.Chunk, history []domain.Turn) (string, error) {
	if c.strategy == StrategyBasic {
		history = nil
	}
	prompt := BuildPrompt(query, chunks, history)
	out, err := c.completer.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrComposition, err)
	}
	return strings.TrimSpace(out), nil
}

// BuildPrompt assembles the three delimited sections: retrieved context
// in retrieval order, conversation history oldest first, and the
// current question.
func BuildPrompt(query string, chunks []domain.Chunk, history []domain.Turn) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	b.WriteString("\n\nContext:\n")
	for i, ch := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(ch.Content)
	}
	if len(history) > 0 {
		b.WriteString("\n\nConversation so far:\n")
		for _, turn := range history {
			switch turn.Role {
			case domain.RoleUser:
				b.WriteString("User: ")
			case domain.RoleAssistant:
				b.WriteString("Assistant: ")
			}
			b.WriteString(turn.Text)
			b.WriteString("\n")
		}
	}
	b.WriteString("\n\nQuestion: ")
	b.WriteString(query)
	b.WriteString("\n\nHelpful Answer:")
	return b.String()
}
