// Package chat persists assistant conversations: sessions and their ordered
// message turns. Messages carry a per-session sequence number assigned at
// append time; history reads back in sequence order.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cartrita/cartrita/internal/domain"
)

// ErrNotFound is returned when a session or message does not exist.
var ErrNotFound = errors.New("not found")

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// SessionStore is the persistence interface for chat sessions.
type SessionStore interface {
	Create(ctx context.Context, s *domain.ChatSession) error
	Get(ctx context.Context, userID, id uuid.UUID) (*domain.ChatSession, error)
	List(ctx context.Context, userID uuid.UUID, offset, limit int) ([]domain.ChatSession, int64, error)
	Update(ctx context.Context, s *domain.ChatSession) error
	// Delete removes the session and cascades to its messages.
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

// MessageStore persists message turns.
type MessageStore interface {
	// Append stores the message, assigning the next sequence number in the
	// session.
	Append(ctx context.Context, m *domain.ChatMessage) error
	// History returns the session's messages in sequence order. limit <= 0
	// returns all; otherwise the most recent limit messages, still ascending.
	History(ctx context.Context, sessionID uuid.UUID, limit int) ([]domain.ChatMessage, error)
	DeleteBySession(ctx context.Context, sessionID uuid.UUID) error
}

// Service coordinates session and message writes.
type Service struct {
	sessions SessionStore
	messages MessageStore
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a Service.
func NewService(sessions SessionStore, messages MessageStore, logger *slog.Logger) *Service {
	return &Service{
		sessions: sessions,
		messages: messages,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// StartSession creates a new conversation for the user.
func (s *Service) StartSession(ctx context.Context, userID uuid.UUID, title string) (*domain.ChatSession, error) {
	now := s.now()
	session := &domain.ChatSession{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("creating chat session: %w", err)
	}
	return session, nil
}

// Append adds one turn to the session and bumps its message count.
func (s *Service) Append(ctx context.Context, userID, sessionID uuid.UUID, role, content string) (*domain.ChatMessage, error) {
	if role != RoleUser && role != RoleAssistant {
		return nil, fmt.Errorf("invalid message role %q", role)
	}

	session, err := s.sessions.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", sessionID, err)
	}

	msg := &domain.ChatMessage{
		ID:            uuid.New(),
		SessionID:     session.ID,
		Role:          role,
		Content:       content,
		TokenEstimate: len(content) / 4,
		CreatedAt:     s.now(),
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("appending message: %w", err)
	}

	session.MessageCount++
	session.UpdatedAt = msg.CreatedAt
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("updating session: %w", err)
	}
	return msg, nil
}

// History returns the session's messages in sequence order.
func (s *Service) History(ctx context.Context, userID, sessionID uuid.UUID, limit int) ([]domain.ChatMessage, error) {
	if _, err := s.sessions.Get(ctx, userID, sessionID); err != nil {
		return nil, fmt.Errorf("loading session %s: %w", sessionID, err)
	}
	msgs, err := s.messages.History(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	return msgs, nil
}

// EndSession deletes a session and its messages.
func (s *Service) EndSession(ctx context.Context, userID, sessionID uuid.UUID) error {
	if err := s.messages.DeleteBySession(ctx, sessionID); err != nil {
		return fmt.Errorf("deleting messages: %w", err)
	}
	if err := s.sessions.Delete(ctx, userID, sessionID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	s.logger.InfoContext(ctx, "chat session deleted", slog.String("session_id", sessionID.String()))
	return nil
}
