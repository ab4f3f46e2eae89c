package session

// ResponseCache maps exact query strings to previously computed answers.
// It is scoped to one session and one document set; replacing the
// document set must clear it, since cached answers reference a retired
// index. Keying on the raw query string means near-duplicate phrasings
// miss; that matches the original behavior and is a known limitation.
type ResponseCache struct {
	entries map[string]string
}

func NewResponseCache() *ResponseCache {
	return &ResponseCache{entries: make(map[string]string)}
}

// Get returns the cached answer for query, if any.
func (c *ResponseCache) Get(query string) (string, bool) {
	answer, ok := c.entries[query]
	return answer, ok
}

// Put stores the final answer text for query.
func (c *ResponseCache) Put(query, answer string) {
	c.entries[query] = answer
}

// Len reports the number of cached answers.
func (c *ResponseCache) Len() int { return len(c.entries) }

// Clear removes every cached answer.
func (c *ResponseCache) Clear() {
	c.entries = make(map[string]string)
}
