// Package storage defines the unified Store interface that abstracts all
// persistence operations. PostgreSQL is the only backend; every sub-store
// interface lives in its owning feature package so services never see GORM.
package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/cartrita/cartrita/internal/chat"
	"github.com/cartrita/cartrita/internal/domain"
	"github.com/cartrita/cartrita/internal/integration"
	"github.com/cartrita/cartrita/internal/knowledge"
	"github.com/cartrita/cartrita/internal/maintenance"
	"github.com/cartrita/cartrita/internal/scheduler"
	"github.com/cartrita/cartrita/internal/security"
	"github.com/cartrita/cartrita/internal/workflow"
)

// UserStore is the persistence interface for user accounts.
type UserStore interface {
	Create(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	List(ctx context.Context, offset, limit int) ([]domain.User, int64, error)
	Update(ctx context.Context, u *domain.User) error
	// Delete removes the user; ownership cascades take workflows,
	// integrations, knowledge, chat, and sessions with it.
	Delete(ctx context.Context, id uuid.UUID) error
}

// Store is the unified persistence interface for Cartrita.
// It provides access to all domain-specific sub-stores through accessor
// methods sharing one underlying connection pool.
type Store interface {
	Users() UserStore

	Workflows() workflow.Store
	Executions() workflow.ExecutionStore

	Schedules() scheduler.ScheduleStore
	ScheduleQueue() scheduler.QueueStore
	ScheduleHistory() scheduler.HistoryStore

	Integrations() integration.Store
	IntegrationExecutions() integration.ExecutionStore
	IntegrationTokens() integration.TokenStore
	IntegrationRateLimits() integration.RateLimitStore
	Webhooks() integration.WebhookStore
	WebhookEvents() integration.WebhookEventStore

	KnowledgeDocuments() knowledge.DocumentStore
	KnowledgeChunks() knowledge.ChunkStore
	KnowledgeQueries() knowledge.QueryStore
	KnowledgeRelationships() knowledge.RelationshipStore

	ChatSessions() chat.SessionStore
	ChatMessages() chat.MessageStore

	Roles() security.RoleStore
	Sessions() security.SessionStore
	Credentials() security.CredentialStore
	Audit() security.AuditStore
	MaskingRules() security.MaskingRuleStore
	SecurityTestRuns() security.TestRunStore

	// Maintenance runs the heavy SQL (archival, view refresh) that has no
	// per-row repository shape.
	Maintenance() MaintenanceStore

	// Lifecycle.
	Ping(ctx context.Context) error
	Close() error
}

// MaintenanceStore groups the raw-SQL maintenance operations.
type MaintenanceStore interface {
	maintenance.ExecutionArchiver
	maintenance.ViewRefresher
	maintenance.SnapshotStore

	// CountArchived reports rows in the execution archive, for reporting.
	CountArchived(ctx context.Context) (int64, error)
}
