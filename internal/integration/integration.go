// Package integration manages external service integrations: per-user
// configuration, call logging, credential storage, rate limiting, and
// outbound webhooks.
package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cartrita/cartrita/internal/domain"
	"github.com/cartrita/cartrita/internal/ratelimit"
)

// ErrNotFound is returned when an integration or related record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDisabled is returned when calling through a disabled integration.
var ErrDisabled = errors.New("integration disabled")

// Store is the persistence interface for integrations.
type Store interface {
	Create(ctx context.Context, in *domain.Integration) error
	Get(ctx context.Context, userID, id uuid.UUID) (*domain.Integration, error)
	List(ctx context.Context, userID uuid.UUID) ([]domain.Integration, error)
	Update(ctx context.Context, in *domain.Integration) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

// ExecutionStore logs and queries calls made through integrations.
type ExecutionStore interface {
	Record(ctx context.Context, ex *domain.IntegrationExecution) error
	// ListSince returns executions for the integration created at or after
	// since, newest first.
	ListSince(ctx context.Context, integrationID uuid.UUID, since time.Time) ([]domain.IntegrationExecution, error)
	Cleanup(ctx context.Context, before time.Time) (int64, error)
}

// TokenStore persists integration credentials.
type TokenStore interface {
	Upsert(ctx context.Context, tok *domain.IntegrationAuthToken) error
	Get(ctx context.Context, integrationID uuid.UUID) (*domain.IntegrationAuthToken, error)
	Delete(ctx context.Context, integrationID uuid.UUID) error
	// DeleteExpired removes tokens past their expiry, returning the count.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// RateLimitStore persists per-integration rate limit overrides.
type RateLimitStore interface {
	Upsert(ctx context.Context, rl *domain.IntegrationRateLimit) error
	Get(ctx context.Context, integrationID uuid.UUID) (*domain.IntegrationRateLimit, error)
	List(ctx context.Context) ([]domain.IntegrationRateLimit, error)
	Delete(ctx context.Context, integrationID uuid.UUID) error
}

// CallFunc performs the actual external call for Execute.
type CallFunc func(ctx context.Context) error

// Service coordinates integration calls: rate limiting, execution logging,
// and health scoring.
type Service struct {
	integrations Store
	executions   ExecutionStore
	tokens       TokenStore
	limits       RateLimitStore
	limiter      *ratelimit.Limiter
	logger       *slog.Logger
	now          func() time.Time
}

// NewService creates a Service. The limiter's defaults apply to integrations
// without a stored rate limit override.
func NewService(
	integrations Store,
	executions ExecutionStore,
	tokens TokenStore,
	limits RateLimitStore,
	limiter *ratelimit.Limiter,
	logger *slog.Logger,
) *Service {
	return &Service{
		integrations: integrations,
		executions:   executions,
		tokens:       tokens,
		limits:       limits,
		limiter:      limiter,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// LoadRateLimits applies every stored per-integration override to the limiter.
// Called at startup and whenever an override changes.
func (s *Service) LoadRateLimits(ctx context.Context) error {
	overrides, err := s.limits.List(ctx)
	if err != nil {
		return fmt.Errorf("loading rate limits: %w", err)
	}
	for _, rl := range overrides {
		s.limiter.SetRate(rl.IntegrationID.String(), ratelimit.Config{
			RequestsPerMinute: rl.RequestsPerMinute,
			BurstSize:         rl.BurstSize,
		})
	}
	return nil
}

// SetRateLimit stores and applies a per-integration rate limit.
func (s *Service) SetRateLimit(ctx context.Context, rl *domain.IntegrationRateLimit) error {
	rl.UpdatedAt = s.now()
	if err := s.limits.Upsert(ctx, rl); err != nil {
		return fmt.Errorf("storing rate limit: %w", err)
	}
	s.limiter.SetRate(rl.IntegrationID.String(), ratelimit.Config{
		RequestsPerMinute: rl.RequestsPerMinute,
		BurstSize:         rl.BurstSize,
	})
	return nil
}

// Execute runs one call through an integration: checks it is enabled, applies
// the rate limit, invokes fn, and records an execution row either way.
func (s *Service) Execute(ctx context.Context, userID, integrationID uuid.UUID, operation string, fn CallFunc) error {
	in, err := s.integrations.Get(ctx, userID, integrationID)
	if err != nil {
		return fmt.Errorf("loading integration %s: %w", integrationID, err)
	}
	if !in.Enabled {
		return fmt.Errorf("%w: %s", ErrDisabled, in.ServiceName)
	}

	if err := s.limiter.Allow(integrationID.String()); err != nil {
		return fmt.Errorf("integration %s: %w", in.ServiceName, err)
	}

	started := s.now()
	callErr := fn(ctx)
	duration := s.now().Sub(started)

	ex := &domain.IntegrationExecution{
		ID:            uuid.New(),
		IntegrationID: integrationID,
		Operation:     operation,
		Status:        domain.ExecutionCompleted,
		DurationMS:    duration.Milliseconds(),
		CreatedAt:     started,
	}
	if callErr != nil {
		ex.Status = domain.ExecutionFailed
		ex.Error = callErr.Error()
	}
	if recErr := s.executions.Record(ctx, ex); recErr != nil {
		s.logger.ErrorContext(ctx, "recording integration execution failed",
			slog.String("integration_id", integrationID.String()),
			slog.String("error", recErr.Error()),
		)
	}

	if callErr != nil {
		s.logger.WarnContext(ctx, "integration call failed",
			slog.String("service", in.ServiceName),
			slog.String("operation", operation),
			slog.String("error", callErr.Error()),
		)
		return fmt.Errorf("%s %s: %w", in.ServiceName, operation, callErr)
	}
	return nil
}

// Token returns the stored credential for the integration, refusing expired
// tokens.
func (s *Service) Token(ctx context.Context, integrationID uuid.UUID) (*domain.IntegrationAuthToken, error) {
	tok, err := s.tokens.Get(ctx, integrationID)
	if err != nil {
		return nil, fmt.Errorf("loading token: %w", err)
	}
	if tok.Expired(s.now()) {
		return nil, fmt.Errorf("token for integration %s expired at %s", integrationID, tok.ExpiresAt)
	}
	return tok, nil
}
