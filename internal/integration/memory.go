package integration

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cartrita/cartrita/internal/domain"
)

// InMemoryStore is a map-backed Store for tests and local development.
type InMemoryStore struct {
	mu           sync.RWMutex
	integrations map[uuid.UUID]domain.Integration
}

// NewInMemoryStore creates an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{integrations: make(map[uuid.UUID]domain.Integration)}
}

func (s *InMemoryStore) Create(_ context.Context, in *domain.Integration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.integrations[in.ID] = *in
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, userID, id uuid.UUID) (*domain.Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.integrations[id]
	if !ok || (userID != uuid.Nil && in.UserID != userID) {
		return nil, ErrNotFound
	}
	cp := in
	return &cp, nil
}

func (s *InMemoryStore) List(_ context.Context, userID uuid.UUID) ([]domain.Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Integration
	for _, in := range s.integrations {
		if userID == uuid.Nil || in.UserID == userID {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) Update(_ context.Context, in *domain.Integration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.integrations[in.ID]; !ok {
		return ErrNotFound
	}
	s.integrations[in.ID] = *in
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, userID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.integrations[id]
	if !ok || (userID != uuid.Nil && in.UserID != userID) {
		return ErrNotFound
	}
	delete(s.integrations, id)
	return nil
}

// InMemoryExecutionStore is a map-backed ExecutionStore for tests.
type InMemoryExecutionStore struct {
	mu         sync.Mutex
	executions []domain.IntegrationExecution
}

// NewInMemoryExecutionStore creates an empty InMemoryExecutionStore.
func NewInMemoryExecutionStore() *InMemoryExecutionStore {
	return &InMemoryExecutionStore{}
}

func (s *InMemoryExecutionStore) Record(_ context.Context, ex *domain.IntegrationExecution) error {
	if err := domain.ValidateExecutionStatus(ex.Status); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions = append(s.executions, *ex)
	return nil
}

func (s *InMemoryExecutionStore) ListSince(_ context.Context, integrationID uuid.UUID, since time.Time) ([]domain.IntegrationExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.IntegrationExecution
	for _, ex := range s.executions {
		if ex.IntegrationID == integrationID && !ex.CreatedAt.Before(since) {
			out = append(out, ex)
		}
	}
	// Newest first.
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryExecutionStore) Cleanup(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.executions[:0]
	var removed int64
	for _, ex := range s.executions {
		if ex.CreatedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, ex)
	}
	s.executions = kept
	return removed, nil
}

// InMemoryTokenStore is a map-backed TokenStore for tests.
type InMemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]domain.IntegrationAuthToken
}

// NewInMemoryTokenStore creates an empty InMemoryTokenStore.
func NewInMemoryTokenStore() *InMemoryTokenStore {
	return &InMemoryTokenStore{tokens: make(map[uuid.UUID]domain.IntegrationAuthToken)}
}

func (s *InMemoryTokenStore) Upsert(_ context.Context, tok *domain.IntegrationAuthToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[tok.IntegrationID] = *tok
	return nil
}

func (s *InMemoryTokenStore) Get(_ context.Context, integrationID uuid.UUID) (*domain.IntegrationAuthToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[integrationID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := tok
	return &cp, nil
}

func (s *InMemoryTokenStore) Delete(_ context.Context, integrationID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[integrationID]; !ok {
		return ErrNotFound
	}
	delete(s.tokens, integrationID)
	return nil
}

func (s *InMemoryTokenStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for id, tok := range s.tokens {
		if tok.Expired(now) {
			delete(s.tokens, id)
			removed++
		}
	}
	return removed, nil
}

// InMemoryRateLimitStore is a map-backed RateLimitStore for tests.
type InMemoryRateLimitStore struct {
	mu     sync.Mutex
	limits map[uuid.UUID]domain.IntegrationRateLimit
}

// NewInMemoryRateLimitStore creates an empty InMemoryRateLimitStore.
func NewInMemoryRateLimitStore() *InMemoryRateLimitStore {
	return &InMemoryRateLimitStore{limits: make(map[uuid.UUID]domain.IntegrationRateLimit)}
}

func (s *InMemoryRateLimitStore) Upsert(_ context.Context, rl *domain.IntegrationRateLimit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits[rl.IntegrationID] = *rl
	return nil
}

func (s *InMemoryRateLimitStore) Get(_ context.Context, integrationID uuid.UUID) (*domain.IntegrationRateLimit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rl, ok := s.limits[integrationID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := rl
	return &cp, nil
}

func (s *InMemoryRateLimitStore) List(_ context.Context) ([]domain.IntegrationRateLimit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.IntegrationRateLimit, 0, len(s.limits))
	for _, rl := range s.limits {
		out = append(out, rl)
	}
	return out, nil
}

func (s *InMemoryRateLimitStore) Delete(_ context.Context, integrationID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.limits[integrationID]; !ok {
		return ErrNotFound
	}
	delete(s.limits, integrationID)
	return nil
}

// InMemoryWebhookStore is a map-backed WebhookStore for tests.
type InMemoryWebhookStore struct {
	mu    sync.Mutex
	hooks map[uuid.UUID]domain.Webhook
}

// NewInMemoryWebhookStore creates an empty InMemoryWebhookStore.
func NewInMemoryWebhookStore() *InMemoryWebhookStore {
	return &InMemoryWebhookStore{hooks: make(map[uuid.UUID]domain.Webhook)}
}

func (s *InMemoryWebhookStore) Create(_ context.Context, wh *domain.Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[wh.ID] = *wh
	return nil
}

func (s *InMemoryWebhookStore) Get(_ context.Context, id uuid.UUID) (*domain.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wh, ok := s.hooks[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := wh
	return &cp, nil
}

func (s *InMemoryWebhookStore) ListForEvent(_ context.Context, integrationID uuid.UUID, eventType string) ([]domain.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Webhook
	for _, wh := range s.hooks {
		if wh.IntegrationID != integrationID || !wh.Enabled {
			continue
		}
		for _, et := range wh.EventTypes {
			if et == eventType {
				out = append(out, wh)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryWebhookStore) Update(_ context.Context, wh *domain.Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hooks[wh.ID]; !ok {
		return ErrNotFound
	}
	s.hooks[wh.ID] = *wh
	return nil
}

func (s *InMemoryWebhookStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hooks[id]; !ok {
		return ErrNotFound
	}
	delete(s.hooks, id)
	return nil
}

// InMemoryWebhookEventStore is a slice-backed WebhookEventStore for tests.
type InMemoryWebhookEventStore struct {
	mu     sync.Mutex
	events []domain.WebhookEvent
}

// NewInMemoryWebhookEventStore creates an empty InMemoryWebhookEventStore.
func NewInMemoryWebhookEventStore() *InMemoryWebhookEventStore {
	return &InMemoryWebhookEventStore{}
}

func (s *InMemoryWebhookEventStore) Record(_ context.Context, ev *domain.WebhookEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *ev)
	return nil
}

func (s *InMemoryWebhookEventStore) ListRecent(_ context.Context, webhookID uuid.UUID, limit int) ([]domain.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.WebhookEvent
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].WebhookID == webhookID {
			out = append(out, s.events[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// Compile-time checks.
var (
	_ Store             = (*InMemoryStore)(nil)
	_ ExecutionStore    = (*InMemoryExecutionStore)(nil)
	_ TokenStore        = (*InMemoryTokenStore)(nil)
	_ RateLimitStore    = (*InMemoryRateLimitStore)(nil)
	_ WebhookStore      = (*InMemoryWebhookStore)(nil)
	_ WebhookEventStore = (*InMemoryWebhookEventStore)(nil)
)
