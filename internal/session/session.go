package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"speakdocs/internal/domain"
)

// DefaultIdleTimeout is how long a session may sit idle before its
// document set, index, conversation, and cache are reset.
const DefaultIdleTimeout = 1800 * time.Second

// Session is the aggregate root for one user: an optional document set
// with its vector store, the conversation log, the response cache, and
// the last-activity timestamp. One query is fully resolved before the
// next is accepted; callers hold the session lock for the whole query.
type Session struct {
	mu sync.Mutex

	ID           string
	Documents    []domain.Document
	Store        domain.VectorStore
	Embedder     domain.Embedder
	Conversation *Conversation
	Cache        *ResponseCache
	LastActivity time.Time
}

func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

// HasIndex reports whether the session has a non-empty vector index.
// Caller must hold the session lock.
func (s *Session) HasIndex() bool {
	return s.Store != nil && s.Store.Len() > 0
}

// ReplaceIndex installs a freshly built store for a new document set,
// together with the embedder that produced its vectors, and clears the
// response cache in the same step, so no query can observe a cache
// entry computed against a retired index. The embedder travels with the
// index: queries must be vectorized by the same prepared instance, and
// other sessions must never see it. Caller must hold the session lock.
func (s *Session) ReplaceIndex(docs []domain.Document, store domain.VectorStore, embedder domain.Embedder) {
	s.Documents = docs
	s.Store = store
	s.Embedder = embedder
	s.Cache.Clear()
}

// Reset clears all per-document and per-conversation state. Caller must
// hold the session lock.
func (s *Session) Reset(ctx context.Context) error {
	var err error
	if s.Store != nil {
		err = s.Store.Clear(ctx)
	}
	s.Documents = nil
	s.Store = nil
	s.Embedder = nil
	s.Conversation.Clear()
	s.Cache.Clear()
	return err
}

// Manager owns all live sessions. Independent sessions run fully in
// parallel; the manager lock only guards the session map.
type Manager struct {
	mu            sync.Mutex
	sessions      map[string]*Session
	historyWindow int
	idleTimeout   time.Duration

	now func() time.Time
}

// NewManager creates a session manager. Non-positive arguments select
// the defaults (10 turns, 1800s).
func NewManager(historyWindow int, idleTimeout time.Duration) *Manager {
	if historyWindow <= 0 {
		historyWindow = DefaultHistoryWindow
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Manager{
		sessions:      make(map[string]*Session),
		historyWindow: historyWindow,
		idleTimeout:   idleTimeout,
		now:           time.Now,
	}
}

// Get returns the session with the given ID, creating it on first use.
// An empty ID allocates a new session with a generated ID.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == "" {
		id = uuid.NewString()
	}
	s, ok := m.sessions[id]
	if !ok {
		s = &Session{
			ID:           id,
			Conversation: NewConversation(m.historyWindow),
			Cache:        NewResponseCache(),
			LastActivity: m.now(),
		}
		m.sessions[id] = s
	}
	return s
}

// Touch records activity on the session. Caller must hold the session
// lock.
func (m *Manager) Touch(s *Session) {
	s.LastActivity = m.now()
}

// ExpireIfIdle resets the session's sub-state when it has been idle for
// longer than the timeout, and reports whether it did. It never
// interrupts in-flight work: an active query holds the session lock, so
// expiry waits until the query has resolved. Caller must hold the
// session lock.
func (m *Manager) ExpireIfIdle(ctx context.Context, s *Session) (bool, error) {
	if m.now().Sub(s.LastActivity) <= m.idleTimeout {
		return false, nil
	}
	return true, s.Reset(ctx)
}

// Remove drops the session entirely, e.g. when the host shuts down.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}
