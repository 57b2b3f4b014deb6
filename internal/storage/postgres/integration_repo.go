package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cartrita/cartrita/internal/domain"
	"github.com/cartrita/cartrita/internal/integration"
)

type integrationRepo struct {
	db *gorm.DB
}

func (r *integrationRepo) Create(ctx context.Context, in *domain.Integration) error {
	m := toIntegrationModel(in)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("creating integration: %w", err)
	}
	return nil
}

func (r *integrationRepo) Get(ctx context.Context, userID, id uuid.UUID) (*domain.Integration, error) {
	var m IntegrationModel
	err := r.db.WithContext(ctx).Scopes(UserScope(userID)).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, integration.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting integration %s: %w", id, err)
	}
	return toIntegrationDomain(&m), nil
}

func (r *integrationRepo) List(ctx context.Context, userID uuid.UUID) ([]domain.Integration, error) {
	var models []IntegrationModel
	err := r.db.WithContext(ctx).Scopes(UserScope(userID)).
		Order("service_name ASC").Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing integrations: %w", err)
	}

	ints := make([]domain.Integration, 0, len(models))
	for i := range models {
		ints = append(ints, *toIntegrationDomain(&models[i]))
	}
	return ints, nil
}

func (r *integrationRepo) Update(ctx context.Context, in *domain.Integration) error {
	m := toIntegrationModel(in)
	res := r.db.WithContext(ctx).Model(&IntegrationModel{}).
		Scopes(UserScope(in.UserID)).
		Where("id = ?", in.ID).
		Updates(map[string]any{
			"display_name": m.DisplayName,
			"config":       m.Config,
			"enabled":      m.Enabled,
		})
	if res.Error != nil {
		return fmt.Errorf("updating integration %s: %w", in.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return integration.ErrNotFound
	}
	return nil
}

func (r *integrationRepo) Delete(ctx context.Context, userID, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Scopes(UserScope(userID)).Delete(&IntegrationModel{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("deleting integration %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return integration.ErrNotFound
	}
	return nil
}

type integrationExecutionRepo struct {
	db *gorm.DB
}

func (r *integrationExecutionRepo) Record(ctx context.Context, ex *domain.IntegrationExecution) error {
	m := toIntegrationExecutionModel(ex)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("recording integration execution: %w", err)
	}
	return nil
}

func (r *integrationExecutionRepo) ListSince(ctx context.Context, integrationID uuid.UUID, since time.Time) ([]domain.IntegrationExecution, error) {
	var models []IntegrationExecutionModel
	err := r.db.WithContext(ctx).
		Where("integration_id = ? AND created_at >= ?", integrationID, since).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing integration executions: %w", err)
	}

	execs := make([]domain.IntegrationExecution, 0, len(models))
	for i := range models {
		execs = append(execs, toIntegrationExecutionDomain(&models[i]))
	}
	return execs, nil
}

func (r *integrationExecutionRepo) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("created_at < ?", before).
		Delete(&IntegrationExecutionModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("cleaning up integration executions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

type tokenRepo struct {
	db *gorm.DB
}

func (r *tokenRepo) Upsert(ctx context.Context, tok *domain.IntegrationAuthToken) error {
	m := toAuthTokenModel(tok)
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "integration_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"token_type", "access_token", "refresh_token", "expires_at", "updated_at",
			}),
		}).
		Create(&m).Error
	if err != nil {
		return fmt.Errorf("upserting auth token: %w", err)
	}
	return nil
}

func (r *tokenRepo) Get(ctx context.Context, integrationID uuid.UUID) (*domain.IntegrationAuthToken, error) {
	var m IntegrationAuthTokenModel
	err := r.db.WithContext(ctx).First(&m, "integration_id = ?", integrationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, integration.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting auth token: %w", err)
	}
	return toAuthTokenDomain(&m), nil
}

func (r *tokenRepo) Delete(ctx context.Context, integrationID uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&IntegrationAuthTokenModel{}, "integration_id = ?", integrationID)
	if res.Error != nil {
		return fmt.Errorf("deleting auth token: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return integration.ErrNotFound
	}
	return nil
}

func (r *tokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", now).
		Delete(&IntegrationAuthTokenModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("deleting expired auth tokens: %w", res.Error)
	}
	return res.RowsAffected, nil
}

type integrationRateLimitRepo struct {
	db *gorm.DB
}

func (r *integrationRateLimitRepo) Upsert(ctx context.Context, rl *domain.IntegrationRateLimit) error {
	m := toRateLimitModel(rl)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "integration_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"requests_per_minute", "burst_size", "updated_at",
			}),
		}).
		Create(&m).Error
	if err != nil {
		return fmt.Errorf("upserting rate limit: %w", err)
	}
	return nil
}

func (r *integrationRateLimitRepo) Get(ctx context.Context, integrationID uuid.UUID) (*domain.IntegrationRateLimit, error) {
	var m IntegrationRateLimitModel
	err := r.db.WithContext(ctx).First(&m, "integration_id = ?", integrationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, integration.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting rate limit: %w", err)
	}
	rl := toRateLimitDomain(&m)
	return &rl, nil
}

func (r *integrationRateLimitRepo) List(ctx context.Context) ([]domain.IntegrationRateLimit, error) {
	var models []IntegrationRateLimitModel
	if err := r.db.WithContext(ctx).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing rate limits: %w", err)
	}

	limits := make([]domain.IntegrationRateLimit, 0, len(models))
	for i := range models {
		limits = append(limits, toRateLimitDomain(&models[i]))
	}
	return limits, nil
}

func (r *integrationRateLimitRepo) Delete(ctx context.Context, integrationID uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&IntegrationRateLimitModel{}, "integration_id = ?", integrationID)
	if res.Error != nil {
		return fmt.Errorf("deleting rate limit: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return integration.ErrNotFound
	}
	return nil
}

type webhookRepo struct {
	db *gorm.DB
}

func (r *webhookRepo) Create(ctx context.Context, wh *domain.Webhook) error {
	m := toWebhookModel(wh)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("creating webhook: %w", err)
	}
	return nil
}

func (r *webhookRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Webhook, error) {
	var m WebhookModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, integration.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting webhook %s: %w", id, err)
	}
	return toWebhookDomain(&m), nil
}

// ListForEvent filters by subscription inside jsonb; `event_types ? 'x'`
// would collide with the placeholder syntax, so it uses the containment
// operator with a jsonb array instead.
func (r *webhookRepo) ListForEvent(ctx context.Context, integrationID uuid.UUID, eventType string) ([]domain.Webhook, error) {
	var models []WebhookModel
	err := r.db.WithContext(ctx).
		Where("integration_id = ? AND enabled AND event_types @> ?", integrationID, fmt.Sprintf(`[%q]`, eventType)).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing webhooks for event %s: %w", eventType, err)
	}

	hooks := make([]domain.Webhook, 0, len(models))
	for i := range models {
		hooks = append(hooks, *toWebhookDomain(&models[i]))
	}
	return hooks, nil
}

func (r *webhookRepo) Update(ctx context.Context, wh *domain.Webhook) error {
	m := toWebhookModel(wh)
	res := r.db.WithContext(ctx).Model(&WebhookModel{}).
		Where("id = ?", wh.ID).
		Updates(map[string]any{
			"url":         m.URL,
			"secret":      m.Secret,
			"event_types": m.EventTypes,
			"enabled":     m.Enabled,
		})
	if res.Error != nil {
		return fmt.Errorf("updating webhook %s: %w", wh.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return integration.ErrNotFound
	}
	return nil
}

func (r *webhookRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&WebhookModel{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("deleting webhook %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return integration.ErrNotFound
	}
	return nil
}

type webhookEventRepo struct {
	db *gorm.DB
}

func (r *webhookEventRepo) Record(ctx context.Context, ev *domain.WebhookEvent) error {
	m := toWebhookEventModel(ev)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("recording webhook event: %w", err)
	}
	return nil
}

func (r *webhookEventRepo) ListRecent(ctx context.Context, webhookID uuid.UUID, limit int) ([]domain.WebhookEvent, error) {
	var models []WebhookEventModel
	q := r.db.WithContext(ctx).
		Where("webhook_id = ?", webhookID).
		Order("attempted_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing webhook events: %w", err)
	}

	events := make([]domain.WebhookEvent, 0, len(models))
	for i := range models {
		events = append(events, toWebhookEventDomain(&models[i]))
	}
	return events, nil
}
