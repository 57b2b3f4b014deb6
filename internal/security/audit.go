package security

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cartrita/cartrita/internal/domain"
)

// AuditStore is the append-only persistence interface for audit events.
type AuditStore interface {
	Append(ctx context.Context, ev *domain.AuditEvent) error
	// List returns events for the user (uuid.Nil = all users), newest first.
	List(ctx context.Context, userID uuid.UUID, limit int) ([]domain.AuditEvent, error)
}

// Auditor records security-relevant actions to the audit store and mirrors
// them to the structured log.
type Auditor struct {
	store  AuditStore
	logger *slog.Logger
	now    func() time.Time
}

// NewAuditor creates an Auditor.
func NewAuditor(store AuditStore, logger *slog.Logger) *Auditor {
	return &Auditor{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Log appends the event. ID and CreatedAt are assigned here; severity
// defaults to info.
func (a *Auditor) Log(ctx context.Context, ev *domain.AuditEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = a.now()
	}
	if ev.Severity == "" {
		ev.Severity = domain.SeverityInfo
	}

	if err := a.store.Append(ctx, ev); err != nil {
		return fmt.Errorf("appending audit event: %w", err)
	}

	a.logger.InfoContext(ctx, "audit event",
		slog.String("action", ev.Action),
		slog.String("resource", ev.Resource),
		slog.String("user_id", ev.UserID.String()),
		slog.String("result", ev.Result),
		slog.String("severity", string(ev.Severity)),
		slog.String("correlation_id", ev.CorrelationID),
	)
	return nil
}
