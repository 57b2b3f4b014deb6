package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/jkaninda/okapi"

	"github.com/cartrita/cartrita/internal/apiv2"
	"github.com/cartrita/cartrita/internal/chat"
	"github.com/cartrita/cartrita/internal/domain"
)

// ChatSessionRequest is the JSON body for POST /chat/sessions.
type ChatSessionRequest struct {
	Title string `json:"title"`
}

// ChatSessionResponse is the JSON shape of a chat session.
type ChatSessionResponse struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func chatSessionResponse(s *domain.ChatSession) ChatSessionResponse {
	return ChatSessionResponse{
		ID:           s.ID.String(),
		Title:        s.Title,
		MessageCount: s.MessageCount,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func (g *Gateway) handleChatSessionCreate(c *okapi.Context) error {
	var req ChatSessionRequest
	if err := c.Bind(&req); err != nil {
		return apiv2.NewValidationError("body", "invalid request body")
	}

	session, err := g.svc.Chat.StartSession(c.Context(), g.currentUser(c), req.Title)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, g.fmt.Success(chatSessionResponse(session)))
}

func (g *Gateway) handleChatSessionList(c *okapi.Context) error {
	offset, limit := pageParams(c)
	sessions, total, err := g.svc.ChatSessions.List(c.Context(), g.currentUser(c), offset, limit)
	if err != nil {
		return err
	}

	out := make([]ChatSessionResponse, 0, len(sessions))
	for i := range sessions {
		out = append(out, chatSessionResponse(&sessions[i]))
	}
	return c.OK(g.fmt.Paginated(out, offset, limit, total))
}

func (g *Gateway) handleChatSessionDelete(c *okapi.Context) error {
	id, err := apiv2.ValidateUUID("id", c.Param("id"))
	if err != nil {
		return err
	}

	err = g.svc.Chat.EndSession(c.Context(), g.currentUser(c), id)
	if errors.Is(err, chat.ErrNotFound) {
		return apiv2.NewNotFoundError("chat session")
	}
	if err != nil {
		return err
	}
	return c.OK(g.fmt.Success(map[string]string{"status": "deleted"}))
}

// ChatMessageRequest is the JSON body for POST /chat/sessions/{id}/messages.
type ChatMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatMessageResponse is the JSON shape of a chat message.
type ChatMessageResponse struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	SeqNum    int       `json:"seq_num"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func chatMessageResponse(m *domain.ChatMessage) ChatMessageResponse {
	return ChatMessageResponse{
		ID:        m.ID.String(),
		SessionID: m.SessionID.String(),
		SeqNum:    m.SeqNum,
		Role:      m.Role,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

func (g *Gateway) handleChatMessageAppend(c *okapi.Context) error {
	id, err := apiv2.ValidateUUID("id", c.Param("id"))
	if err != nil {
		return err
	}

	var req ChatMessageRequest
	if err := c.Bind(&req); err != nil {
		return apiv2.NewValidationError("body", "invalid request body")
	}
	if err := apiv2.ValidateEnum("role", req.Role, "user", "assistant"); err != nil {
		return err
	}
	if err := apiv2.ValidateRequired("content", req.Content); err != nil {
		return err
	}

	msg, err := g.svc.Chat.Append(c.Context(), g.currentUser(c), id, req.Role, req.Content)
	if errors.Is(err, chat.ErrNotFound) {
		return apiv2.NewNotFoundError("chat session")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, g.fmt.Success(chatMessageResponse(msg)))
}

func (g *Gateway) handleChatHistory(c *okapi.Context) error {
	id, err := apiv2.ValidateUUID("id", c.Param("id"))
	if err != nil {
		return err
	}

	limit := queryInt(c, "limit", 0) // 0 = full history.
	messages, err := g.svc.Chat.History(c.Context(), g.currentUser(c), id, limit)
	if errors.Is(err, chat.ErrNotFound) {
		return apiv2.NewNotFoundError("chat session")
	}
	if err != nil {
		return err
	}

	out := make([]ChatMessageResponse, 0, len(messages))
	for i := range messages {
		out = append(out, chatMessageResponse(&messages[i]))
	}
	return c.OK(g.fmt.Collection(out, len(out)))
}
