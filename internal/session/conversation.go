package session

import "speakdocs/internal/domain"

// DefaultHistoryWindow is the conversation cap in turns (5 exchanges).
const DefaultHistoryWindow = 10

// Conversation is an ordered, size-bounded log of turns. Append is the
// only mutator; at capacity the oldest turn is evicted first. Access is
// serialized by the owning session's lock.
type Conversation struct {
	capacity int
	turns    []domain.Turn
}

// NewConversation creates an empty conversation capped at capacity
// turns. Non-positive capacity selects the default.
func NewConversation(capacity int) *Conversation {
	if capacity <= 0 {
		capacity = DefaultHistoryWindow
	}
	return &Conversation{capacity: capacity}
}

// Append records a turn, evicting from the head when at capacity.
func (c *Conversation) Append(turn domain.Turn) {
	if len(c.turns) >= c.capacity {
		drop := len(c.turns) - c.capacity + 1
		c.turns = append(c.turns[:0], c.turns[drop:]...)
	}
	c.turns = append(c.turns, turn)
}

// Recent returns the last n turns oldest-to-newest. When fewer than n
// turns are stored, everything available is returned.
func (c *Conversation) Recent(n int) []domain.Turn {
	if n <= 0 {
		return nil
	}
	if n > len(c.turns) {
		n = len(c.turns)
	}
	out := make([]domain.Turn, n)
	copy(out, c.turns[len(c.turns)-n:])
	return out
}

// Window returns the conversation capacity in turns.
func (c *Conversation) Window() int { return c.capacity }

// Len reports the number of stored turns.
func (c *Conversation) Len() int { return len(c.turns) }

// Clear removes all turns.
func (c *Conversation) Clear() { c.turns = nil }
