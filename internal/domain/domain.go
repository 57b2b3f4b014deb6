// Package domain defines cross-cutting entity types used across the system.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus is the lifecycle state of a workflow or schedule execution.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// Valid reports whether s is one of the five allowed execution states.
func (s ExecutionStatus) Valid() bool {
	switch s {
	case ExecutionPending, ExecutionRunning, ExecutionCompleted, ExecutionFailed, ExecutionCancelled:
		return true
	}
	return false
}

// Terminal reports whether the status is a final state.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionCancelled
}

// ScheduleType classifies how a workflow schedule fires.
// Only cron, interval, and once are self-firing; the remaining types are
// persisted and fired by external triggers through the API.
type ScheduleType string

const (
	ScheduleCron        ScheduleType = "cron"
	ScheduleInterval    ScheduleType = "interval"
	ScheduleOnce        ScheduleType = "once"
	ScheduleEvent       ScheduleType = "event"
	ScheduleConditional ScheduleType = "conditional"
	ScheduleBatch       ScheduleType = "batch"
	ScheduleCalendar    ScheduleType = "calendar"
)

// Valid reports whether t is a known schedule type.
func (t ScheduleType) Valid() bool {
	switch t {
	case ScheduleCron, ScheduleInterval, ScheduleOnce, ScheduleEvent,
		ScheduleConditional, ScheduleBatch, ScheduleCalendar:
		return true
	}
	return false
}

// SelfFiring reports whether the scheduler poller fires this type on its own.
func (t ScheduleType) SelfFiring() bool {
	return t == ScheduleCron || t == ScheduleInterval || t == ScheduleOnce
}

// Severity ranks security findings and audit events.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// User is the owner of nearly every other entity. Deleting a user cascades
// to workflows, integrations, knowledge documents, chat sessions, and sessions.
type User struct {
	ID          uuid.UUID
	Email       string
	DisplayName string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Role is a named permission bundle for RBAC.
type Role struct {
	ID          uuid.UUID
	Name        string
	Description string
	Permissions []string // Permission names granted by this role.
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Session is an authenticated user session backed by a JWT.
type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenID   string // JWT "jti" claim; blacklisted on revocation.
	UserAgent string
	IPAddress string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// Active reports whether the session is usable at the given instant.
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// Workflow is a user-owned JSON-defined automation.
type Workflow struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Name         string
	Description  string
	WorkflowData []byte // JSON workflow definition.
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// WorkflowExecution is one run of a workflow.
// The UUID ID is authoritative; OldID is a legacy sequence-backed identifier
// retained from the integer-key era and never used for foreign keys.
type WorkflowExecution struct {
	ID          uuid.UUID
	OldID       int64
	WorkflowID  uuid.UUID
	UserID      uuid.UUID
	Status      ExecutionStatus
	TriggeredBy string // "manual", "schedule", "webhook", "api".
	Input       []byte // JSON input payload.
	Output      []byte // JSON result payload.
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	DurationMS  int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WorkflowSchedule defines when a workflow fires.
type WorkflowSchedule struct {
	ID             uuid.UUID
	WorkflowID     uuid.UUID
	UserID         uuid.UUID
	Name           string
	ScheduleType   ScheduleType
	CronExpression string        // Set for cron type.
	Interval       time.Duration // Set for interval type.
	RunAt          *time.Time    // Set for once type.
	Priority       int           // Higher fires first when multiple are due.
	Enabled        bool
	NextRunAt      *time.Time
	LastRunAt      *time.Time
	LastStatus     ExecutionStatus
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ScheduleQueueItem is a pending unit of scheduled work, claimed by workers
// in priority order (highest priority first, oldest first within a priority).
type ScheduleQueueItem struct {
	ID          uuid.UUID
	ScheduleID  uuid.UUID
	WorkflowID  uuid.UUID
	UserID      uuid.UUID
	Priority    int
	Status      ExecutionStatus
	ClaimedBy   string
	ClaimedAt   *time.Time
	EnqueuedAt  time.Time
	CompletedAt *time.Time
}

// ScheduleExecution records one firing of a schedule.
type ScheduleExecution struct {
	ID          uuid.UUID
	ScheduleID  uuid.UUID
	ExecutionID uuid.UUID // Workflow execution produced by this firing.
	Status      ExecutionStatus
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
	DurationMS  int64
}

// ScheduleStatistics is a historical rollup per schedule.
type ScheduleStatistics struct {
	ScheduleID    uuid.UUID
	TotalRuns     int64
	SuccessRuns   int64
	FailedRuns    int64
	AvgDurationMS float64
	LastRunAt     *time.Time
	UpdatedAt     time.Time
}

// Health snapshot entity kinds.
const (
	HealthEntityIntegration = "integration"
	HealthEntitySchedule    = "schedule"
)

// HealthSnapshot is one recomputed health score, captured by the nightly
// maintenance batch so dashboards can read trends without rescoring.
type HealthSnapshot struct {
	ID         uuid.UUID
	EntityType string // HealthEntityIntegration or HealthEntitySchedule.
	EntityID   uuid.UUID
	Score      float64
	CreatedAt  time.Time
}

// Integration is a per-user external service configuration.
type Integration struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	ServiceName string // "slack", "github", "google_calendar", ...
	DisplayName string
	Config      []byte // JSON service configuration (no secrets).
	Enabled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IntegrationExecution is one logged call through an integration.
type IntegrationExecution struct {
	ID            uuid.UUID
	IntegrationID uuid.UUID
	Operation     string
	Status        ExecutionStatus
	DurationMS    int64
	Error         string
	CreatedAt     time.Time
}

// IntegrationAuthToken stores credentials for an integration.
type IntegrationAuthToken struct {
	ID            uuid.UUID
	IntegrationID uuid.UUID
	TokenType     string // "oauth2", "api_key", "basic".
	AccessToken   string
	RefreshToken  string
	ExpiresAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Expired reports whether the token is past its expiry.
func (t *IntegrationAuthToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}

// IntegrationRateLimit configures the token bucket for one integration.
type IntegrationRateLimit struct {
	IntegrationID     uuid.UUID
	RequestsPerMinute int
	BurstSize         int
	UpdatedAt         time.Time
}

// Webhook is an outbound delivery target registered on an integration.
type Webhook struct {
	ID            uuid.UUID
	IntegrationID uuid.UUID
	URL           string
	Secret        string // HMAC signing secret.
	EventTypes    []string
	Enabled       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// WebhookEvent is one delivery attempt log entry.
type WebhookEvent struct {
	ID          uuid.UUID
	WebhookID   uuid.UUID
	EventType   string
	Payload     []byte
	Status      ExecutionStatus
	AttemptedAt time.Time
	RetryCount  int
	Error       string
}

// KnowledgeDocument is a user-owned source document for RAG.
type KnowledgeDocument struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Title       string
	SourceType  string // "upload", "url", "chat", "integration".
	SourceRef   string
	ContentHash string
	ChunkCount  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// KnowledgeChunk is an embedded slice of a document.
type KnowledgeChunk struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	ChunkIndex int
	Content    string
	Embedding  []float32 // 1536-dimensional.
	TokenCount int
	CreatedAt  time.Time
}

// KnowledgeQuery logs one retrieval against the knowledge base.
type KnowledgeQuery struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	QueryText   string
	ResultCount int
	LatencyMS   int64
	CreatedAt   time.Time
}

// KnowledgeRelationship links two documents pairwise.
type KnowledgeRelationship struct {
	ID           uuid.UUID
	SourceDocID  uuid.UUID
	TargetDocID  uuid.UUID
	RelationType string // "references", "supersedes", "duplicates".
	Weight       float64
	CreatedAt    time.Time
}

// ChatSession is a persistent conversation between a user and the assistant.
type ChatSession struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Title        string
	MessageCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ChatMessage is a single turn in a chat session.
type ChatMessage struct {
	ID            uuid.UUID
	SessionID     uuid.UUID
	SeqNum        int    // Monotonically increasing within a session.
	Role          string // "user" or "assistant".
	Content       string
	TokenEstimate int
	CreatedAt     time.Time
}

// SecurityTestRun is one execution of the security test suite.
type SecurityTestRun struct {
	ID          uuid.UUID
	TriggeredBy string
	Status      ExecutionStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// SecurityTestResult is one test's outcome inside a run.
type SecurityTestResult struct {
	ID       uuid.UUID
	RunID    uuid.UUID
	TestName string
	Passed   bool
	Message  string
	Duration time.Duration
}

// SecurityVulnerability is a finding attached to a test result.
type SecurityVulnerability struct {
	ID          uuid.UUID
	ResultID    uuid.UUID
	Severity    Severity
	Title       string
	Description string
	Remediation string
	CreatedAt   time.Time
}

// AuditEvent is one append-only entry in the security audit log.
type AuditEvent struct {
	ID            uuid.UUID
	CorrelationID string
	UserID        uuid.UUID
	Action        string
	Resource      string
	Parameters    map[string]any
	Result        string // "success", "failure", "denied", "intent".
	Severity      Severity
	IPAddress     string
	Error         string
	CreatedAt     time.Time
}

// MaskingRule redacts a column's values in exported or logged data.
// (Table, Column) pairs are unique.
type MaskingRule struct {
	ID        uuid.UUID
	TableName string
	Column    string
	Strategy  string // "redact", "hash", "partial".
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateExecutionStatus returns an error naming the offending value when
// the status is outside the allowed set. Used before any persistence write.
func ValidateExecutionStatus(s ExecutionStatus) error {
	if !s.Valid() {
		return fmt.Errorf("invalid execution status %q", s)
	}
	return nil
}
