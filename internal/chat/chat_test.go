package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
)

func testService() (*Service, *InMemorySessionStore, *InMemoryMessageStore) {
	sessions := NewInMemorySessionStore()
	messages := NewInMemoryMessageStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(sessions, messages, logger), sessions, messages
}

func TestAppendAssignsSequence(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := testService()
	userID := uuid.New()

	sess, err := svc.StartSession(ctx, userID, "deploy help")
	if err != nil {
		t.Fatalf("start session: %v", err)
	}

	turns := []struct{ role, content string }{
		{RoleUser, "how do I roll back a deploy?"},
		{RoleAssistant, "use the previous image tag"},
		{RoleUser, "and the database migration?"},
	}
	for _, turn := range turns {
		if _, err := svc.Append(ctx, userID, sess.ID, turn.role, turn.content); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	history, err := svc.History(ctx, userID, sess.ID, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	for i, m := range history {
		if m.SeqNum != i+1 {
			t.Errorf("message %d seq = %d, want %d", i, m.SeqNum, i+1)
		}
		if m.Role != turns[i].role {
			t.Errorf("message %d role = %q, want %q", i, m.Role, turns[i].role)
		}
	}
}

func TestAppendUpdatesSessionCount(t *testing.T) {
	ctx := context.Background()
	svc, sessions, _ := testService()
	userID := uuid.New()

	sess, _ := svc.StartSession(ctx, userID, "")
	_, _ = svc.Append(ctx, userID, sess.ID, RoleUser, "hello")
	_, _ = svc.Append(ctx, userID, sess.ID, RoleAssistant, "hi")

	got, _ := sessions.Get(ctx, userID, sess.ID)
	if got.MessageCount != 2 {
		t.Errorf("message count = %d, want 2", got.MessageCount)
	}
	if !got.UpdatedAt.After(got.CreatedAt) && !got.UpdatedAt.Equal(got.CreatedAt) {
		t.Error("updated_at not advanced")
	}
}

func TestAppendRejectsBadRole(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := testService()
	userID := uuid.New()
	sess, _ := svc.StartSession(ctx, userID, "")

	if _, err := svc.Append(ctx, userID, sess.ID, "system", "x"); err == nil {
		t.Error("role outside {user, assistant} must be rejected")
	}
}

func TestHistoryLimitKeepsMostRecent(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := testService()
	userID := uuid.New()
	sess, _ := svc.StartSession(ctx, userID, "")

	for i := 0; i < 5; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		_, _ = svc.Append(ctx, userID, sess.ID, role, "turn")
	}

	history, err := svc.History(ctx, userID, sess.ID, 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("limited history length = %d, want 2", len(history))
	}
	if history[0].SeqNum != 4 || history[1].SeqNum != 5 {
		t.Errorf("limited history seqs = %d,%d, want 4,5", history[0].SeqNum, history[1].SeqNum)
	}
}

func TestSessionScopedToUser(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := testService()
	alice, bob := uuid.New(), uuid.New()

	sess, _ := svc.StartSession(ctx, alice, "private")
	if _, err := svc.History(ctx, bob, sess.ID, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("another user's session must look like not found, got %v", err)
	}
	if _, err := svc.Append(ctx, bob, sess.ID, RoleUser, "hi"); !errors.Is(err, ErrNotFound) {
		t.Errorf("append to another user's session: got %v", err)
	}
}

func TestEndSessionCascades(t *testing.T) {
	ctx := context.Background()
	svc, sessions, messages := testService()
	userID := uuid.New()

	sess, _ := svc.StartSession(ctx, userID, "")
	_, _ = svc.Append(ctx, userID, sess.ID, RoleUser, "bye")

	if err := svc.EndSession(ctx, userID, sess.ID); err != nil {
		t.Fatalf("end session: %v", err)
	}
	if _, err := sessions.Get(ctx, userID, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Error("session still present after end")
	}
	left, _ := messages.History(ctx, sess.ID, 0)
	if len(left) != 0 {
		t.Errorf("%d messages left after end", len(left))
	}
}
