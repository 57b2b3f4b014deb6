package security

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cartrita/cartrita/internal/domain"
)

// InMemoryRoleStore is a map-backed RoleStore for tests and local development.
type InMemoryRoleStore struct {
	mu          sync.RWMutex
	roles       map[string]domain.Role
	assignments map[uuid.UUID][]string
}

// NewInMemoryRoleStore creates an empty InMemoryRoleStore.
func NewInMemoryRoleStore() *InMemoryRoleStore {
	return &InMemoryRoleStore{
		roles:       make(map[string]domain.Role),
		assignments: make(map[uuid.UUID][]string),
	}
}

func (s *InMemoryRoleStore) Create(_ context.Context, role *domain.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[role.Name] = *role
	return nil
}

func (s *InMemoryRoleStore) Get(_ context.Context, name string) (*domain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := role
	return &cp, nil
}

func (s *InMemoryRoleStore) List(_ context.Context) ([]domain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Role, 0, len(s.roles))
	for _, role := range s.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemoryRoleStore) Update(_ context.Context, role *domain.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[role.Name]; !ok {
		return ErrNotFound
	}
	s.roles[role.Name] = *role
	return nil
}

func (s *InMemoryRoleStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[name]; !ok {
		return ErrNotFound
	}
	delete(s.roles, name)
	return nil
}

func (s *InMemoryRoleStore) RolesForUser(_ context.Context, userID uuid.UUID) ([]domain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Role
	for _, name := range s.assignments[userID] {
		if role, ok := s.roles[name]; ok {
			out = append(out, role)
		}
	}
	return out, nil
}

func (s *InMemoryRoleStore) Assign(_ context.Context, userID uuid.UUID, roleName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleName]; !ok {
		return ErrNotFound
	}
	for _, existing := range s.assignments[userID] {
		if existing == roleName {
			return nil
		}
	}
	s.assignments[userID] = append(s.assignments[userID], roleName)
	return nil
}

func (s *InMemoryRoleStore) Unassign(_ context.Context, userID uuid.UUID, roleName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := s.assignments[userID]
	for i, existing := range names {
		if existing == roleName {
			s.assignments[userID] = append(names[:i], names[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// InMemorySessionStore is a map-backed SessionStore for tests.
type InMemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domain.Session // keyed by token id (jti)
}

// NewInMemorySessionStore creates an empty InMemorySessionStore.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[string]domain.Session)}
}

func (s *InMemorySessionStore) Create(_ context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.TokenID] = *sess
	return nil
}

func (s *InMemorySessionStore) GetByTokenID(_ context.Context, tokenID string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[tokenID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := sess
	return &cp, nil
}

func (s *InMemorySessionStore) ListForUser(_ context.Context, userID uuid.UUID) ([]domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemorySessionStore) Revoke(_ context.Context, tokenID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[tokenID]
	if !ok {
		return ErrNotFound
	}
	sess.RevokedAt = &at
	s.sessions[tokenID] = sess
	return nil
}

func (s *InMemorySessionStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for id, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// InMemoryCredentialStore is a map-backed CredentialStore for tests.
type InMemoryCredentialStore struct {
	mu     sync.Mutex
	hashes map[uuid.UUID][]byte
}

// NewInMemoryCredentialStore creates an empty InMemoryCredentialStore.
func NewInMemoryCredentialStore() *InMemoryCredentialStore {
	return &InMemoryCredentialStore{hashes: make(map[uuid.UUID][]byte)}
}

func (s *InMemoryCredentialStore) SetPasswordHash(_ context.Context, userID uuid.UUID, hash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(hash))
	copy(cp, hash)
	s.hashes[userID] = cp
	return nil
}

func (s *InMemoryCredentialStore) PasswordHash(_ context.Context, userID uuid.UUID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hash, ok := s.hashes[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(hash))
	copy(cp, hash)
	return cp, nil
}

// InMemoryAuditStore is a slice-backed AuditStore for tests.
type InMemoryAuditStore struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

// NewInMemoryAuditStore creates an empty InMemoryAuditStore.
func NewInMemoryAuditStore() *InMemoryAuditStore {
	return &InMemoryAuditStore{}
}

func (s *InMemoryAuditStore) Append(_ context.Context, ev *domain.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *ev)
	return nil
}

func (s *InMemoryAuditStore) List(_ context.Context, userID uuid.UUID, limit int) ([]domain.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditEvent
	for i := len(s.events) - 1; i >= 0; i-- {
		if userID != uuid.Nil && s.events[i].UserID != userID {
			continue
		}
		out = append(out, s.events[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// InMemoryMaskingRuleStore is a map-backed MaskingRuleStore for tests.
// Enforces (table, column) uniqueness the way the unique index does in
// postgres.
type InMemoryMaskingRuleStore struct {
	mu    sync.Mutex
	rules map[string]domain.MaskingRule // keyed by table + "." + column
}

// NewInMemoryMaskingRuleStore creates an empty InMemoryMaskingRuleStore.
func NewInMemoryMaskingRuleStore() *InMemoryMaskingRuleStore {
	return &InMemoryMaskingRuleStore{rules: make(map[string]domain.MaskingRule)}
}

func ruleKey(table, column string) string {
	return strings.ToLower(table) + "." + strings.ToLower(column)
}

func (s *InMemoryMaskingRuleStore) Create(_ context.Context, rule *domain.MaskingRule) error {
	if err := ValidateStrategy(rule.Strategy); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ruleKey(rule.TableName, rule.Column)
	if _, ok := s.rules[key]; ok {
		return ErrDuplicateRule
	}
	s.rules[key] = *rule
	return nil
}

func (s *InMemoryMaskingRuleStore) List(_ context.Context) ([]domain.MaskingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.MaskingRule, 0, len(s.rules))
	for _, rule := range s.rules {
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool {
		return ruleKey(out[i].TableName, out[i].Column) < ruleKey(out[j].TableName, out[j].Column)
	})
	return out, nil
}

func (s *InMemoryMaskingRuleStore) Update(_ context.Context, rule *domain.MaskingRule) error {
	if err := ValidateStrategy(rule.Strategy); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ruleKey(rule.TableName, rule.Column)
	if _, ok := s.rules[key]; !ok {
		return ErrNotFound
	}
	s.rules[key] = *rule
	return nil
}

func (s *InMemoryMaskingRuleStore) Delete(_ context.Context, table, column string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ruleKey(table, column)
	if _, ok := s.rules[key]; !ok {
		return ErrNotFound
	}
	delete(s.rules, key)
	return nil
}

func (s *InMemoryMaskingRuleStore) Lookup(_ context.Context, table, column string) (*domain.MaskingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[ruleKey(table, column)]
	if !ok || !rule.Enabled {
		return nil, ErrNotFound
	}
	cp := rule
	return &cp, nil
}

// InMemoryTestRunStore is a map-backed TestRunStore for tests.
type InMemoryTestRunStore struct {
	mu      sync.Mutex
	runs    map[uuid.UUID]domain.SecurityTestRun
	results []domain.SecurityTestResult
	vulns   []domain.SecurityVulnerability
}

// NewInMemoryTestRunStore creates an empty InMemoryTestRunStore.
func NewInMemoryTestRunStore() *InMemoryTestRunStore {
	return &InMemoryTestRunStore{runs: make(map[uuid.UUID]domain.SecurityTestRun)}
}

func (s *InMemoryTestRunStore) CreateRun(_ context.Context, run *domain.SecurityTestRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = *run
	return nil
}

func (s *InMemoryTestRunStore) UpdateRun(_ context.Context, run *domain.SecurityTestRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return ErrNotFound
	}
	s.runs[run.ID] = *run
	return nil
}

func (s *InMemoryTestRunStore) GetRun(_ context.Context, id uuid.UUID) (*domain.SecurityTestRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := run
	return &cp, nil
}

func (s *InMemoryTestRunStore) ListRuns(_ context.Context, limit int) ([]domain.SecurityTestRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SecurityTestRun, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryTestRunStore) AddResult(_ context.Context, result *domain.SecurityTestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, *result)
	return nil
}

func (s *InMemoryTestRunStore) ListResults(_ context.Context, runID uuid.UUID) ([]domain.SecurityTestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.SecurityTestResult
	for _, r := range s.results {
		if r.RunID == runID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *InMemoryTestRunStore) AddVulnerability(_ context.Context, vuln *domain.SecurityVulnerability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vulns = append(s.vulns, *vuln)
	return nil
}

func (s *InMemoryTestRunStore) ListVulnerabilities(_ context.Context, resultID uuid.UUID) ([]domain.SecurityVulnerability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.SecurityVulnerability
	for _, v := range s.vulns {
		if v.ResultID == resultID {
			out = append(out, v)
		}
	}
	return out, nil
}

// Compile-time checks.
var (
	_ RoleStore        = (*InMemoryRoleStore)(nil)
	_ SessionStore     = (*InMemorySessionStore)(nil)
	_ CredentialStore  = (*InMemoryCredentialStore)(nil)
	_ AuditStore       = (*InMemoryAuditStore)(nil)
	_ MaskingRuleStore = (*InMemoryMaskingRuleStore)(nil)
	_ TestRunStore     = (*InMemoryTestRunStore)(nil)
)
