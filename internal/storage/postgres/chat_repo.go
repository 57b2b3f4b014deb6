package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cartrita/cartrita/internal/chat"
	"github.com/cartrita/cartrita/internal/domain"
)

type chatSessionRepo struct {
	db *gorm.DB
}

func (r *chatSessionRepo) Create(ctx context.Context, s *domain.ChatSession) error {
	m := toChatSessionModel(s)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("creating chat session: %w", err)
	}
	return nil
}

func (r *chatSessionRepo) Get(ctx context.Context, userID, id uuid.UUID) (*domain.ChatSession, error) {
	var m ChatSessionModel
	err := r.db.WithContext(ctx).Scopes(UserScope(userID)).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, chat.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting chat session %s: %w", id, err)
	}
	return toChatSessionDomain(&m), nil
}

func (r *chatSessionRepo) List(ctx context.Context, userID uuid.UUID, offset, limit int) ([]domain.ChatSession, int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&ChatSessionModel{}).
		Scopes(UserScope(userID)).Count(&total).Error
	if err != nil {
		return nil, 0, fmt.Errorf("counting chat sessions: %w", err)
	}

	var models []ChatSessionModel
	q := r.db.WithContext(ctx).Scopes(UserScope(userID)).
		Order("updated_at DESC").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("listing chat sessions: %w", err)
	}

	sessions := make([]domain.ChatSession, 0, len(models))
	for i := range models {
		sessions = append(sessions, *toChatSessionDomain(&models[i]))
	}
	return sessions, total, nil
}

func (r *chatSessionRepo) Update(ctx context.Context, s *domain.ChatSession) error {
	m := toChatSessionModel(s)
	res := r.db.WithContext(ctx).Model(&ChatSessionModel{}).
		Scopes(UserScope(s.UserID)).
		Where("id = ?", s.ID).
		Updates(map[string]any{
			"title":         m.Title,
			"message_count": m.MessageCount,
		})
	if res.Error != nil {
		return fmt.Errorf("updating chat session %s: %w", s.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return chat.ErrNotFound
	}
	return nil
}

func (r *chatSessionRepo) Delete(ctx context.Context, userID, id uuid.UUID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Scopes(UserScope(userID)).Delete(&ChatSessionModel{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return chat.ErrNotFound
		}
		return tx.Delete(&ChatMessageModel{}, "session_id = ?", id).Error
	})
	if errors.Is(err, chat.ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("deleting chat session %s: %w", id, err)
	}
	return nil
}

type chatMessageRepo struct {
	db *gorm.DB
}

// Append assigns the next sequence number inside a transaction so concurrent
// writers in the same session never collide.
func (r *chatMessageRepo) Append(ctx context.Context, msg *domain.ChatMessage) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxSeq int64
		err := tx.Model(&ChatMessageModel{}).
			Where("session_id = ?", msg.SessionID).
			Select("COALESCE(MAX(seq_num), 0)").
			Scan(&maxSeq).Error
		if err != nil {
			return fmt.Errorf("finding max sequence: %w", err)
		}

		msg.SeqNum = int(maxSeq) + 1
		m := toChatMessageModel(msg)
		if err := tx.Create(&m).Error; err != nil {
			return fmt.Errorf("inserting message: %w", err)
		}

		return tx.Model(&ChatSessionModel{}).
			Where("id = ?", msg.SessionID).
			UpdateColumn("message_count", gorm.Expr("message_count + 1")).Error
	})
	if err != nil {
		return fmt.Errorf("appending chat message: %w", err)
	}
	return nil
}

func (r *chatMessageRepo) History(ctx context.Context, sessionID uuid.UUID, limit int) ([]domain.ChatMessage, error) {
	var models []ChatMessageModel

	if limit <= 0 {
		err := r.db.WithContext(ctx).
			Where("session_id = ?", sessionID).
			Order("seq_num ASC").
			Find(&models).Error
		if err != nil {
			return nil, fmt.Errorf("loading chat history: %w", err)
		}
	} else {
		// Most recent limit messages, returned ascending.
		err := r.db.WithContext(ctx).
			Where("session_id = ?", sessionID).
			Order("seq_num DESC").
			Limit(limit).
			Find(&models).Error
		if err != nil {
			return nil, fmt.Errorf("loading chat history: %w", err)
		}
		for i, j := 0, len(models)-1; i < j; i, j = i+1, j-1 {
			models[i], models[j] = models[j], models[i]
		}
	}

	msgs := make([]domain.ChatMessage, 0, len(models))
	for i := range models {
		msgs = append(msgs, toChatMessageDomain(&models[i]))
	}
	return msgs, nil
}

func (r *chatMessageRepo) DeleteBySession(ctx context.Context, sessionID uuid.UUID) error {
	err := r.db.WithContext(ctx).Delete(&ChatMessageModel{}, "session_id = ?", sessionID).Error
	if err != nil {
		return fmt.Errorf("deleting chat messages: %w", err)
	}
	return nil
}
