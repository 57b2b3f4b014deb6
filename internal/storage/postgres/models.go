package postgres

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// JSONB is a json.RawMessage stored in a jsonb column.
type JSONB json.RawMessage

// UserModel maps to the "users" table.
type UserModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email       string    `gorm:"not null;uniqueIndex"`
	DisplayName string
	IsActive    bool `gorm:"not null;default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

func (UserModel) TableName() string { return "users" }

// UserCredentialModel maps to the "user_credentials" table.
type UserCredentialModel struct {
	UserID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	PasswordHash []byte    `gorm:"not null"`
	UpdatedAt    time.Time
}

func (UserCredentialModel) TableName() string { return "user_credentials" }

// RoleModel maps to the "roles" table.
type RoleModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name        string    `gorm:"not null;uniqueIndex"`
	Description string    `gorm:"type:text"`
	Permissions JSONB     `gorm:"type:jsonb;not null;default:'[]'"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (RoleModel) TableName() string { return "roles" }

// UserRoleModel maps to the "user_roles" join table.
type UserRoleModel struct {
	UserID uuid.UUID `gorm:"type:uuid;primaryKey"`
	RoleID uuid.UUID `gorm:"type:uuid;primaryKey"`
}

func (UserRoleModel) TableName() string { return "user_roles" }

// SessionModel maps to the "sessions" table. Sessions are looked up by the
// JWT jti on every authenticated request.
type SessionModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index"`
	TokenID   string    `gorm:"not null;uniqueIndex"`
	UserAgent string
	IPAddress string
	CreatedAt time.Time
	ExpiresAt time.Time `gorm:"index"`
	RevokedAt *time.Time
}

func (SessionModel) TableName() string { return "sessions" }

// WorkflowModel maps to the "workflows" table.
type WorkflowModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID       uuid.UUID `gorm:"type:uuid;not null;index"`
	Name         string    `gorm:"not null"`
	Description  string    `gorm:"type:text"`
	WorkflowData JSONB     `gorm:"type:jsonb;not null;default:'{}'"`
	IsActive     bool      `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

func (WorkflowModel) TableName() string { return "workflows" }

// WorkflowExecutionModel maps to the "workflow_executions" table.
// OldID is the legacy bigserial identifier kept from the integer-key era;
// the UUID primary key is authoritative.
type WorkflowExecutionModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	OldID       int64     `gorm:"autoIncrement;uniqueIndex"`
	WorkflowID  uuid.UUID `gorm:"type:uuid;not null;index"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;index"`
	Status      string    `gorm:"not null;default:'pending';index"`
	TriggeredBy string    `gorm:"not null;default:'manual'"`
	Input       JSONB     `gorm:"type:jsonb"`
	Output      JSONB     `gorm:"type:jsonb"`
	Error       string    `gorm:"type:text"`
	StartedAt   *time.Time
	CompletedAt *time.Time
	DurationMS  int64     `gorm:"not null;default:0"`
	CreatedAt   time.Time `gorm:"index"`
	UpdatedAt   time.Time
}

func (WorkflowExecutionModel) TableName() string { return "workflow_executions" }

// WorkflowExecutionArchiveModel maps to the "workflow_executions_archive"
// table. Rows move here wholesale during maintenance; no indexes beyond the
// primary key since the archive is written, counted, and rarely read.
type WorkflowExecutionArchiveModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	OldID       int64
	WorkflowID  uuid.UUID `gorm:"type:uuid;not null"`
	UserID      uuid.UUID `gorm:"type:uuid;not null"`
	Status      string    `gorm:"not null"`
	TriggeredBy string    `gorm:"not null"`
	Input       JSONB     `gorm:"type:jsonb"`
	Output      JSONB     `gorm:"type:jsonb"`
	Error       string    `gorm:"type:text"`
	StartedAt   *time.Time
	CompletedAt *time.Time
	DurationMS  int64
	CreatedAt   time.Time
	ArchivedAt  time.Time `gorm:"not null"`
}

func (WorkflowExecutionArchiveModel) TableName() string { return "workflow_executions_archive" }

// WorkflowScheduleModel maps to the "workflow_schedules" table.
type WorkflowScheduleModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	WorkflowID     uuid.UUID `gorm:"type:uuid;not null;index"`
	UserID         uuid.UUID `gorm:"type:uuid;not null;index"`
	Name           string    `gorm:"not null"`
	ScheduleType   string    `gorm:"not null"`
	CronExpression string
	IntervalS      int64 `gorm:"not null;default:0"`
	RunAt          *time.Time
	Priority       int        `gorm:"not null;default:0"`
	Enabled        bool       `gorm:"not null;default:true"`
	NextRunAt      *time.Time `gorm:"index"`
	LastRunAt      *time.Time
	LastStatus     string
	LastError      string `gorm:"type:text"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}

func (WorkflowScheduleModel) TableName() string { return "workflow_schedules" }

// ScheduleQueueModel maps to the "schedule_queue" table.
type ScheduleQueueModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	ScheduleID  uuid.UUID `gorm:"type:uuid;not null;index"`
	WorkflowID  uuid.UUID `gorm:"type:uuid;not null"`
	UserID      uuid.UUID `gorm:"type:uuid;not null"`
	Priority    int       `gorm:"not null;default:0;index:idx_schedule_queue_claim"`
	Status      string    `gorm:"not null;default:'pending';index:idx_schedule_queue_claim"`
	ClaimedBy   string
	ClaimedAt   *time.Time
	EnqueuedAt  time.Time `gorm:"index:idx_schedule_queue_claim"`
	CompletedAt *time.Time
}

func (ScheduleQueueModel) TableName() string { return "schedule_queue" }

// ScheduleExecutionModel maps to the "schedule_executions" table.
// Append-only firing history.
type ScheduleExecutionModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	ScheduleID  uuid.UUID `gorm:"type:uuid;not null;index:idx_schedule_exec_sched"`
	ExecutionID uuid.UUID `gorm:"type:uuid"`
	Status      string    `gorm:"not null"`
	Error       string    `gorm:"type:text"`
	StartedAt   time.Time `gorm:"index:idx_schedule_exec_sched"`
	CompletedAt *time.Time
	DurationMS  int64 `gorm:"not null;default:0"`
}

func (ScheduleExecutionModel) TableName() string { return "schedule_executions" }

// ScheduleStatisticsModel maps to the "schedule_statistics" table.
// One rollup row per schedule.
type ScheduleStatisticsModel struct {
	ScheduleID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	TotalRuns     int64     `gorm:"not null;default:0"`
	SuccessRuns   int64     `gorm:"not null;default:0"`
	FailedRuns    int64     `gorm:"not null;default:0"`
	AvgDurationMS float64   `gorm:"type:numeric(14,4);not null;default:0"`
	LastRunAt     *time.Time
	UpdatedAt     time.Time
}

func (ScheduleStatisticsModel) TableName() string { return "schedule_statistics" }

// IntegrationModel maps to the "integrations" table.
type IntegrationModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_integrations_user_service"`
	ServiceName string    `gorm:"not null;uniqueIndex:idx_integrations_user_service"`
	DisplayName string
	Config      JSONB `gorm:"type:jsonb;not null;default:'{}'"`
	Enabled     bool  `gorm:"not null;default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

func (IntegrationModel) TableName() string { return "integrations" }

// IntegrationExecutionModel maps to the "integration_executions" table.
// Append-only call log.
type IntegrationExecutionModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	IntegrationID uuid.UUID `gorm:"type:uuid;not null;index:idx_integration_exec"`
	Operation     string    `gorm:"not null"`
	Status        string    `gorm:"not null"`
	DurationMS    int64     `gorm:"not null;default:0"`
	Error         string    `gorm:"type:text"`
	CreatedAt     time.Time `gorm:"index:idx_integration_exec"`
}

func (IntegrationExecutionModel) TableName() string { return "integration_executions" }

// IntegrationAuthTokenModel maps to the "integration_auth_tokens" table.
type IntegrationAuthTokenModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	IntegrationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	TokenType     string    `gorm:"not null"`
	AccessToken   string    `gorm:"not null"`
	RefreshToken  string
	ExpiresAt     *time.Time `gorm:"index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (IntegrationAuthTokenModel) TableName() string { return "integration_auth_tokens" }

// IntegrationRateLimitModel maps to the "integration_rate_limits" table.
type IntegrationRateLimitModel struct {
	IntegrationID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	RequestsPerMinute int       `gorm:"not null;default:60"`
	BurstSize         int       `gorm:"not null;default:10"`
	UpdatedAt         time.Time
}

func (IntegrationRateLimitModel) TableName() string { return "integration_rate_limits" }

// WebhookModel maps to the "webhooks" table.
type WebhookModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	IntegrationID uuid.UUID `gorm:"type:uuid;not null;index"`
	URL           string    `gorm:"not null"`
	Secret        string    `gorm:"not null"`
	EventTypes    JSONB     `gorm:"type:jsonb;not null;default:'[]'"`
	Enabled       bool      `gorm:"not null;default:true"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     gorm.DeletedAt `gorm:"index"`
}

func (WebhookModel) TableName() string { return "webhooks" }

// WebhookEventModel maps to the "webhook_events" table. Append-only.
type WebhookEventModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	WebhookID   uuid.UUID `gorm:"type:uuid;not null;index:idx_webhook_events"`
	EventType   string    `gorm:"not null"`
	Payload     JSONB     `gorm:"type:jsonb"`
	Status      string    `gorm:"not null"`
	AttemptedAt time.Time `gorm:"index:idx_webhook_events"`
	RetryCount  int       `gorm:"not null;default:0"`
	Error       string    `gorm:"type:text"`
}

func (WebhookEventModel) TableName() string { return "webhook_events" }

// KnowledgeDocumentModel maps to the "knowledge_documents" table.
type KnowledgeDocumentModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;index"`
	Title       string    `gorm:"not null;index:idx_knowledge_docs_title,type:gin,expression:title gin_trgm_ops"`
	SourceType  string    `gorm:"not null;default:'upload'"`
	SourceRef   string
	ContentHash string `gorm:"not null;default:''"`
	ChunkCount  int    `gorm:"not null;default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

func (KnowledgeDocumentModel) TableName() string { return "knowledge_documents" }

// KnowledgeChunkModel maps to the "knowledge_chunks" table.
// The embedding column is a pgvector vector(1536).
type KnowledgeChunkModel struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey"`
	DocumentID uuid.UUID       `gorm:"type:uuid;not null;index"`
	ChunkIndex int             `gorm:"not null;default:0"`
	Content    string          `gorm:"type:text;not null"`
	Embedding  pgvector.Vector `gorm:"type:vector(1536)"`
	TokenCount int             `gorm:"not null;default:0"`
	CreatedAt  time.Time
}

func (KnowledgeChunkModel) TableName() string { return "knowledge_chunks" }

// KnowledgeQueryModel maps to the "knowledge_queries" table. Append-only.
type KnowledgeQueryModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;index"`
	QueryText   string    `gorm:"type:text;not null"`
	ResultCount int       `gorm:"not null;default:0"`
	LatencyMS   int64     `gorm:"not null;default:0"`
	CreatedAt   time.Time `gorm:"index"`
}

func (KnowledgeQueryModel) TableName() string { return "knowledge_queries" }

// KnowledgeRelationshipModel maps to the "knowledge_relationships" table.
type KnowledgeRelationshipModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	SourceDocID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_knowledge_rel_pair"`
	TargetDocID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_knowledge_rel_pair"`
	RelationType string    `gorm:"not null;uniqueIndex:idx_knowledge_rel_pair"`
	Weight       float64   `gorm:"type:numeric(6,4);not null;default:1"`
	CreatedAt    time.Time
}

func (KnowledgeRelationshipModel) TableName() string { return "knowledge_relationships" }

// ChatSessionModel maps to the "chat_sessions" table.
type ChatSessionModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID       uuid.UUID `gorm:"type:uuid;not null;index:idx_chat_sessions_user"`
	Title        string
	MessageCount int `gorm:"not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time      `gorm:"index:idx_chat_sessions_user"`
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

func (ChatSessionModel) TableName() string { return "chat_sessions" }

// ChatMessageModel maps to the "chat_messages" table.
type ChatMessageModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	SessionID     uuid.UUID `gorm:"type:uuid;not null;index:idx_chat_messages_seq"`
	SeqNum        int       `gorm:"not null;index:idx_chat_messages_seq"`
	Role          string    `gorm:"not null"`
	Content       string    `gorm:"type:text;not null"`
	TokenEstimate int       `gorm:"not null;default:0"`
	CreatedAt     time.Time
}

func (ChatMessageModel) TableName() string { return "chat_messages" }

// SecurityTestRunModel maps to the "security_test_runs" table.
type SecurityTestRunModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	TriggeredBy string    `gorm:"not null;default:'manual'"`
	Status      string    `gorm:"not null;default:'pending'"`
	StartedAt   time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time `gorm:"index"`
}

func (SecurityTestRunModel) TableName() string { return "security_test_runs" }

// SecurityTestResultModel maps to the "security_test_results" table.
type SecurityTestResultModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	RunID      uuid.UUID `gorm:"type:uuid;not null;index"`
	TestName   string    `gorm:"not null"`
	Passed     bool      `gorm:"not null"`
	Message    string    `gorm:"type:text"`
	DurationMS int64     `gorm:"not null;default:0"`
}

func (SecurityTestResultModel) TableName() string { return "security_test_results" }

// SecurityVulnerabilityModel maps to the "security_vulnerabilities" table.
type SecurityVulnerabilityModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	ResultID    uuid.UUID `gorm:"type:uuid;not null;index"`
	Severity    string    `gorm:"not null"`
	Title       string    `gorm:"not null"`
	Description string    `gorm:"type:text"`
	Remediation string    `gorm:"type:text"`
	CreatedAt   time.Time
}

func (SecurityVulnerabilityModel) TableName() string { return "security_vulnerabilities" }

// AuditEventModel maps to the "audit_events" table.
// No UpdatedAt or DeletedAt. The audit log is append-only and immutable.
type AuditEventModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	CorrelationID string    `gorm:"index"`
	UserID        uuid.UUID `gorm:"type:uuid;index"`
	Action        string    `gorm:"not null"`
	Resource      string
	Parameters    JSONB  `gorm:"type:jsonb;not null;default:'{}'"`
	Result        string `gorm:"not null"`
	Severity      string `gorm:"not null;default:'info'"`
	IPAddress     string
	Error         string    `gorm:"type:text"`
	CreatedAt     time.Time `gorm:"index"`
}

func (AuditEventModel) TableName() string { return "audit_events" }

// MaskingRuleModel maps to the "masking_rules" table.
// (table_name, column_name) pairs are unique.
type MaskingRuleModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	TableName_ string    `gorm:"column:table_name;not null;uniqueIndex:idx_masking_rules_pair"`
	ColumnName string    `gorm:"not null;uniqueIndex:idx_masking_rules_pair"`
	Strategy   string    `gorm:"not null"`
	Enabled    bool      `gorm:"not null;default:true"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (MaskingRuleModel) TableName() string { return "masking_rules" }

// HealthSnapshotModel maps to the "health_snapshots" table.
// Append-only; rows are written by the nightly maintenance batch.
type HealthSnapshotModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	EntityType string    `gorm:"not null;index:idx_health_snapshots_entity"`
	EntityID   uuid.UUID `gorm:"type:uuid;not null;index:idx_health_snapshots_entity"`
	Score      float64   `gorm:"not null"`
	CreatedAt  time.Time `gorm:"index"`
}

func (HealthSnapshotModel) TableName() string { return "health_snapshots" }
