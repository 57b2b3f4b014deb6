package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// pingInterval keeps intermediaries from dropping idle connections.
const pingInterval = 30 * time.Second

// writeTimeout bounds a single event write to a client.
const writeTimeout = 10 * time.Second

// TokenVerifier authenticates the dashboard client's bearer token.
// Implemented by security.Authenticator (Verify's first return value).
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (uuid.UUID, error)
}

// VerifierFunc adapts a function to the TokenVerifier interface.
type VerifierFunc func(ctx context.Context, token string) (uuid.UUID, error)

func (f VerifierFunc) VerifyToken(ctx context.Context, token string) (uuid.UUID, error) {
	return f(ctx, token)
}

// Server upgrades dashboard connections and pumps hub events to them.
type Server struct {
	hub      *Hub
	verifier TokenVerifier
	logger   *slog.Logger
}

func NewServer(hub *Hub, verifier TokenVerifier, logger *slog.Logger) *Server {
	return &Server{hub: hub, verifier: verifier, logger: logger}
}

// Handler returns an http.Handler that upgrades connections to WebSocket.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleUpgrade)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	userID, err := s.verifier.VerifyToken(r.Context(), token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{"cartrita-dashboard-v1"},
	})
	if err != nil {
		s.logger.Error("websocket accept failed", slog.String("error", err.Error()))
		return
	}

	s.serve(r.Context(), conn, userID)
}

func (s *Server) serve(ctx context.Context, conn *websocket.Conn, userID uuid.UUID) {
	sub := s.hub.subscribe(userID)
	defer s.hub.unsubscribe(sub)
	defer conn.Close(websocket.StatusNormalClosure, "connection closed")

	s.logger.Info("dashboard client connected", slog.String("user_id", userID.String()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The read loop only detects disconnects; clients do not send messages.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pingCtx)
			pingCancel()
			if err != nil {
				return
			}
		case ev := <-sub.ch:
			if err := s.write(ctx, conn, ev); err != nil {
				s.logger.Debug("event write failed",
					slog.String("user_id", userID.String()),
					slog.String("error", err.Error()))
				return
			}
		}
	}
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
