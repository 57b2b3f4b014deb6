package postgres

import (
	"context"
	"sync"

	"github.com/cartrita/cartrita/internal/chat"
	"github.com/cartrita/cartrita/internal/integration"
	"github.com/cartrita/cartrita/internal/knowledge"
	"github.com/cartrita/cartrita/internal/scheduler"
	"github.com/cartrita/cartrita/internal/security"
	"github.com/cartrita/cartrita/internal/storage"
	"github.com/cartrita/cartrita/internal/workflow"
)

// Store implements storage.Store over one PostgreSQL connection pool.
// Repositories are built lazily and cached; they are stateless beyond the
// shared *gorm.DB.
type Store struct {
	db *DB

	mu sync.Mutex

	users       *userRepo
	credentials *credentialRepo

	workflows  *workflowRepo
	executions *executionRepo

	schedules *scheduleRepo
	queue     *queueRepo
	history   *historyRepo

	integrations    *integrationRepo
	integrationExec *integrationExecutionRepo
	tokens          *tokenRepo
	rateLimits      *integrationRateLimitRepo
	webhooks        *webhookRepo
	webhookEvents   *webhookEventRepo

	documents     *documentRepo
	chunks        *chunkRepo
	queries       *queryRepo
	relationships *relationshipRepo

	chatSessions *chatSessionRepo
	chatMessages *chatMessageRepo

	roles        *roleRepo
	sessions     *sessionRepo
	audit        *auditRepo
	maskingRules *maskingRuleRepo
	testRuns     *testRunRepo

	maintenance *maintenanceRepo
}

// NewStore wraps an opened DB as a storage.Store.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

func (s *Store) Users() storage.UserStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = &userRepo{db: s.db.GormDB()}
	}
	return s.users
}

func (s *Store) Credentials() security.CredentialStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.credentials == nil {
		s.credentials = &credentialRepo{db: s.db.GormDB()}
	}
	return s.credentials
}

func (s *Store) Workflows() workflow.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.workflows == nil {
		s.workflows = &workflowRepo{db: s.db.GormDB()}
	}
	return s.workflows
}

func (s *Store) Executions() workflow.ExecutionStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.executions == nil {
		s.executions = &executionRepo{db: s.db.GormDB()}
	}
	return s.executions
}

func (s *Store) Schedules() scheduler.ScheduleStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedules == nil {
		s.schedules = &scheduleRepo{db: s.db.GormDB()}
	}
	return s.schedules
}

func (s *Store) ScheduleQueue() scheduler.QueueStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue == nil {
		s.queue = &queueRepo{db: s.db.GormDB()}
	}
	return s.queue
}

func (s *Store) ScheduleHistory() scheduler.HistoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.history == nil {
		s.history = &historyRepo{db: s.db.GormDB()}
	}
	return s.history
}

func (s *Store) Integrations() integration.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.integrations == nil {
		s.integrations = &integrationRepo{db: s.db.GormDB()}
	}
	return s.integrations
}

func (s *Store) IntegrationExecutions() integration.ExecutionStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.integrationExec == nil {
		s.integrationExec = &integrationExecutionRepo{db: s.db.GormDB()}
	}
	return s.integrationExec
}

func (s *Store) IntegrationTokens() integration.TokenStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens == nil {
		s.tokens = &tokenRepo{db: s.db.GormDB()}
	}
	return s.tokens
}

func (s *Store) IntegrationRateLimits() integration.RateLimitStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rateLimits == nil {
		s.rateLimits = &integrationRateLimitRepo{db: s.db.GormDB()}
	}
	return s.rateLimits
}

func (s *Store) Webhooks() integration.WebhookStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.webhooks == nil {
		s.webhooks = &webhookRepo{db: s.db.GormDB()}
	}
	return s.webhooks
}

func (s *Store) WebhookEvents() integration.WebhookEventStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.webhookEvents == nil {
		s.webhookEvents = &webhookEventRepo{db: s.db.GormDB()}
	}
	return s.webhookEvents
}

func (s *Store) KnowledgeDocuments() knowledge.DocumentStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.documents == nil {
		s.documents = &documentRepo{db: s.db.GormDB()}
	}
	return s.documents
}

func (s *Store) KnowledgeChunks() knowledge.ChunkStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chunks == nil {
		s.chunks = &chunkRepo{db: s.db.GormDB()}
	}
	return s.chunks
}

func (s *Store) KnowledgeQueries() knowledge.QueryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queries == nil {
		s.queries = &queryRepo{db: s.db.GormDB()}
	}
	return s.queries
}

func (s *Store) KnowledgeRelationships() knowledge.RelationshipStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.relationships == nil {
		s.relationships = &relationshipRepo{db: s.db.GormDB()}
	}
	return s.relationships
}

func (s *Store) ChatSessions() chat.SessionStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chatSessions == nil {
		s.chatSessions = &chatSessionRepo{db: s.db.GormDB()}
	}
	return s.chatSessions
}

func (s *Store) ChatMessages() chat.MessageStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chatMessages == nil {
		s.chatMessages = &chatMessageRepo{db: s.db.GormDB()}
	}
	return s.chatMessages
}

func (s *Store) Roles() security.RoleStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roles == nil {
		s.roles = &roleRepo{db: s.db.GormDB()}
	}
	return s.roles
}

func (s *Store) Sessions() security.SessionStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions == nil {
		s.sessions = &sessionRepo{db: s.db.GormDB()}
	}
	return s.sessions
}

func (s *Store) Audit() security.AuditStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audit == nil {
		s.audit = &auditRepo{db: s.db.GormDB()}
	}
	return s.audit
}

func (s *Store) MaskingRules() security.MaskingRuleStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maskingRules == nil {
		s.maskingRules = &maskingRuleRepo{db: s.db.GormDB()}
	}
	return s.maskingRules
}

func (s *Store) SecurityTestRuns() security.TestRunStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.testRuns == nil {
		s.testRuns = &testRunRepo{db: s.db.GormDB()}
	}
	return s.testRuns
}

func (s *Store) Maintenance() storage.MaintenanceStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maintenance == nil {
		s.maintenance = &maintenanceRepo{db: s.db.GormDB()}
	}
	return s.maintenance
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

var _ storage.Store = (*Store)(nil)
