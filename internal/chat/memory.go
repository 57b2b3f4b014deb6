package chat

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/cartrita/cartrita/internal/domain"
)

// InMemorySessionStore is a map-backed SessionStore for tests and local
// development.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]domain.ChatSession
}

// NewInMemorySessionStore creates an empty InMemorySessionStore.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[uuid.UUID]domain.ChatSession)}
}

func (s *InMemorySessionStore) Create(_ context.Context, sess *domain.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = *sess
	return nil
}

func (s *InMemorySessionStore) Get(_ context.Context, userID, id uuid.UUID) (*domain.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok || (userID != uuid.Nil && sess.UserID != userID) {
		return nil, ErrNotFound
	}
	cp := sess
	return &cp, nil
}

func (s *InMemorySessionStore) List(_ context.Context, userID uuid.UUID, offset, limit int) ([]domain.ChatSession, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []domain.ChatSession
	for _, sess := range s.sessions {
		if userID == uuid.Nil || sess.UserID == userID {
			all = append(all, sess)
		}
	}
	// Most recently updated first.
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt.After(all[j].UpdatedAt) })
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

func (s *InMemorySessionStore) Update(_ context.Context, sess *domain.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return ErrNotFound
	}
	s.sessions[sess.ID] = *sess
	return nil
}

func (s *InMemorySessionStore) Delete(_ context.Context, userID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || (userID != uuid.Nil && sess.UserID != userID) {
		return ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

// InMemoryMessageStore is a map-backed MessageStore for tests. Sequence
// numbers are assigned per session under the store lock, mirroring the
// postgres implementation's per-session counter.
type InMemoryMessageStore struct {
	mu       sync.Mutex
	messages map[uuid.UUID][]domain.ChatMessage // keyed by session id
}

// NewInMemoryMessageStore creates an empty InMemoryMessageStore.
func NewInMemoryMessageStore() *InMemoryMessageStore {
	return &InMemoryMessageStore{messages: make(map[uuid.UUID][]domain.ChatMessage)}
}

func (s *InMemoryMessageStore) Append(_ context.Context, m *domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.SeqNum = len(s.messages[m.SessionID]) + 1
	s.messages[m.SessionID] = append(s.messages[m.SessionID], *m)
	return nil
}

func (s *InMemoryMessageStore) History(_ context.Context, sessionID uuid.UUID, limit int) ([]domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[sessionID]
	out := make([]domain.ChatMessage, len(msgs))
	copy(out, msgs)
	sort.Slice(out, func(i, j int) bool { return out[i].SeqNum < out[j].SeqNum })
	if limit > 0 && limit < len(out) {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *InMemoryMessageStore) DeleteBySession(_ context.Context, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, sessionID)
	return nil
}

// Compile-time checks.
var (
	_ SessionStore = (*InMemorySessionStore)(nil)
	_ MessageStore = (*InMemoryMessageStore)(nil)
)
