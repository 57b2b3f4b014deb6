package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jkaninda/okapi"

	"github.com/cartrita/cartrita/internal/apiv2"
	"github.com/cartrita/cartrita/internal/domain"
	"github.com/cartrita/cartrita/internal/integration"
)

// IntegrationRequest is the JSON body for integration create/update.
type IntegrationRequest struct {
	ServiceName string          `json:"service_name"`
	DisplayName string          `json:"display_name"`
	Config      json.RawMessage `json:"config,omitempty"`
	Enabled     *bool           `json:"enabled,omitempty"`
}

// IntegrationResponse is the JSON shape of an integration.
type IntegrationResponse struct {
	ID          string          `json:"id"`
	ServiceName string          `json:"service_name"`
	DisplayName string          `json:"display_name"`
	Config      json.RawMessage `json:"config,omitempty"`
	Enabled     bool            `json:"enabled"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func integrationResponse(in *domain.Integration) IntegrationResponse {
	return IntegrationResponse{
		ID:          in.ID.String(),
		ServiceName: in.ServiceName,
		DisplayName: in.DisplayName,
		Config:      json.RawMessage(in.Config),
		Enabled:     in.Enabled,
		CreatedAt:   in.CreatedAt,
		UpdatedAt:   in.UpdatedAt,
	}
}

func (g *Gateway) handleIntegrationCreate(c *okapi.Context) error {
	var req IntegrationRequest
	if err := c.Bind(&req); err != nil {
		return apiv2.NewValidationError("body", "invalid request body")
	}
	if err := apiv2.ValidateRequired("service_name", req.ServiceName); err != nil {
		return err
	}
	if len(req.Config) > 0 && !json.Valid(req.Config) {
		return apiv2.NewValidationError("config", "must be valid JSON")
	}

	now := time.Now().UTC()
	in := &domain.Integration{
		ID:          uuid.New(),
		UserID:      g.currentUser(c),
		ServiceName: req.ServiceName,
		DisplayName: req.DisplayName,
		Config:      req.Config,
		Enabled:     req.Enabled == nil || *req.Enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := g.svc.Integrations.Create(c.Context(), in); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, g.fmt.Success(integrationResponse(in)))
}

func (g *Gateway) handleIntegrationList(c *okapi.Context) error {
	integrations, err := g.svc.Integrations.List(c.Context(), g.currentUser(c))
	if err != nil {
		return err
	}

	out := make([]IntegrationResponse, 0, len(integrations))
	for i := range integrations {
		out = append(out, integrationResponse(&integrations[i]))
	}
	return c.OK(g.fmt.Collection(out, len(out)))
}

func (g *Gateway) integration(c *okapi.Context) (*domain.Integration, error) {
	id, err := apiv2.ValidateUUID("id", c.Param("id"))
	if err != nil {
		return nil, err
	}
	in, err := g.svc.Integrations.Get(c.Context(), g.currentUser(c), id)
	if errors.Is(err, integration.ErrNotFound) {
		return nil, apiv2.NewNotFoundError("integration")
	}
	if err != nil {
		return nil, err
	}
	return in, nil
}

func (g *Gateway) handleIntegrationGet(c *okapi.Context) error {
	in, err := g.integration(c)
	if err != nil {
		return err
	}
	return c.OK(g.fmt.Success(integrationResponse(in)))
}

func (g *Gateway) handleIntegrationUpdate(c *okapi.Context) error {
	in, err := g.integration(c)
	if err != nil {
		return err
	}

	var req IntegrationRequest
	if err := c.Bind(&req); err != nil {
		return apiv2.NewValidationError("body", "invalid request body")
	}
	if len(req.Config) > 0 && !json.Valid(req.Config) {
		return apiv2.NewValidationError("config", "must be valid JSON")
	}

	if req.DisplayName != "" {
		in.DisplayName = req.DisplayName
	}
	if len(req.Config) > 0 {
		in.Config = req.Config
	}
	if req.Enabled != nil {
		in.Enabled = *req.Enabled
	}
	if err := g.svc.Integrations.Update(c.Context(), in); err != nil {
		return err
	}
	return c.OK(g.fmt.Success(integrationResponse(in)))
}

func (g *Gateway) handleIntegrationDelete(c *okapi.Context) error {
	in, err := g.integration(c)
	if err != nil {
		return err
	}
	if err := g.svc.Integrations.Delete(c.Context(), g.currentUser(c), in.ID); err != nil {
		return err
	}
	return c.OK(g.fmt.Success(map[string]string{"status": "deleted"}))
}

// IntegrationHealthResponse reports the rolling health score.
type IntegrationHealthResponse struct {
	IntegrationID string  `json:"integration_id"`
	HealthScore   float64 `json:"health_score"`
}

func (g *Gateway) handleIntegrationHealth(c *okapi.Context) error {
	in, err := g.integration(c)
	if err != nil {
		return err
	}

	score, err := g.svc.IntegrationSvc.HealthScore(c.Context(), in.ID)
	if err != nil {
		return err
	}
	return c.OK(g.fmt.Success(IntegrationHealthResponse{
		IntegrationID: in.ID.String(),
		HealthScore:   score,
	}))
}

// RateLimitRequest is the JSON body for PUT /integrations/{id}/rate-limit.
type RateLimitRequest struct {
	RequestsPerMinute int `json:"requests_per_minute"`
	BurstSize         int `json:"burst_size"`
}

func (g *Gateway) handleIntegrationRateLimit(c *okapi.Context) error {
	in, err := g.integration(c)
	if err != nil {
		return err
	}

	var req RateLimitRequest
	if err := c.Bind(&req); err != nil {
		return apiv2.NewValidationError("body", "invalid request body")
	}
	if err := apiv2.ValidateRange("requests_per_minute", req.RequestsPerMinute, 1, 100000); err != nil {
		return err
	}

	rl := &domain.IntegrationRateLimit{
		IntegrationID:     in.ID,
		RequestsPerMinute: req.RequestsPerMinute,
		BurstSize:         req.BurstSize,
		UpdatedAt:         time.Now().UTC(),
	}
	if err := g.svc.IntegrationSvc.SetRateLimit(c.Context(), rl); err != nil {
		return err
	}
	return c.OK(g.fmt.Success(rl))
}

// WebhookRequest is the JSON body for webhook create/update.
type WebhookRequest struct {
	URL        string   `json:"url"`
	Secret     string   `json:"secret,omitempty"`
	EventTypes []string `json:"event_types"`
	Enabled    *bool    `json:"enabled,omitempty"`
}

// WebhookResponse is the JSON shape of a webhook. The signing secret is
// never echoed back.
type WebhookResponse struct {
	ID            string    `json:"id"`
	IntegrationID string    `json:"integration_id"`
	URL           string    `json:"url"`
	EventTypes    []string  `json:"event_types"`
	Enabled       bool      `json:"enabled"`
	CreatedAt     time.Time `json:"created_at"`
}

func webhookResponse(wh *domain.Webhook) WebhookResponse {
	return WebhookResponse{
		ID:            wh.ID.String(),
		IntegrationID: wh.IntegrationID.String(),
		URL:           wh.URL,
		EventTypes:    wh.EventTypes,
		Enabled:       wh.Enabled,
		CreatedAt:     wh.CreatedAt,
	}
}

func (g *Gateway) handleWebhookCreate(c *okapi.Context) error {
	integrationID, err := apiv2.ValidateUUID("id", c.Param("id"))
	if err != nil {
		return err
	}

	var req WebhookRequest
	if err := c.Bind(&req); err != nil {
		return apiv2.NewValidationError("body", "invalid request body")
	}
	if err := apiv2.ValidateRequired("url", req.URL); err != nil {
		return err
	}

	// Ownership check on the parent integration.
	if _, err := g.svc.Integrations.Get(c.Context(), g.currentUser(c), integrationID); err != nil {
		if errors.Is(err, integration.ErrNotFound) {
			return apiv2.NewNotFoundError("integration")
		}
		return err
	}

	now := time.Now().UTC()
	wh := &domain.Webhook{
		ID:            uuid.New(),
		IntegrationID: integrationID,
		URL:           req.URL,
		Secret:        req.Secret,
		EventTypes:    req.EventTypes,
		Enabled:       req.Enabled == nil || *req.Enabled,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := g.svc.Webhooks.Create(c.Context(), wh); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, g.fmt.Success(webhookResponse(wh)))
}

// webhook loads a webhook and checks ownership through its integration.
func (g *Gateway) webhook(c *okapi.Context) (*domain.Webhook, error) {
	id, err := apiv2.ValidateUUID("id", c.Param("id"))
	if err != nil {
		return nil, err
	}
	wh, err := g.svc.Webhooks.Get(c.Context(), id)
	if errors.Is(err, integration.ErrNotFound) {
		return nil, apiv2.NewNotFoundError("webhook")
	}
	if err != nil {
		return nil, err
	}
	if _, err := g.svc.Integrations.Get(c.Context(), g.currentUser(c), wh.IntegrationID); err != nil {
		if errors.Is(err, integration.ErrNotFound) {
			return nil, apiv2.NewNotFoundError("webhook")
		}
		return nil, err
	}
	return wh, nil
}

func (g *Gateway) handleWebhookGet(c *okapi.Context) error {
	wh, err := g.webhook(c)
	if err != nil {
		return err
	}
	return c.OK(g.fmt.Success(webhookResponse(wh)))
}

func (g *Gateway) handleWebhookUpdate(c *okapi.Context) error {
	wh, err := g.webhook(c)
	if err != nil {
		return err
	}

	var req WebhookRequest
	if err := c.Bind(&req); err != nil {
		return apiv2.NewValidationError("body", "invalid request body")
	}

	if req.URL != "" {
		wh.URL = req.URL
	}
	if req.Secret != "" {
		wh.Secret = req.Secret
	}
	if req.EventTypes != nil {
		wh.EventTypes = req.EventTypes
	}
	if req.Enabled != nil {
		wh.Enabled = *req.Enabled
	}
	if err := g.svc.Webhooks.Update(c.Context(), wh); err != nil {
		return err
	}
	return c.OK(g.fmt.Success(webhookResponse(wh)))
}

func (g *Gateway) handleWebhookDelete(c *okapi.Context) error {
	wh, err := g.webhook(c)
	if err != nil {
		return err
	}
	if err := g.svc.Webhooks.Delete(c.Context(), wh.ID); err != nil {
		return err
	}
	return c.OK(g.fmt.Success(map[string]string{"status": "deleted"}))
}

// WebhookEventResponse is one delivery attempt.
type WebhookEventResponse struct {
	ID          string    `json:"id"`
	EventType   string    `json:"event_type"`
	Status      string    `json:"status"`
	AttemptedAt time.Time `json:"attempted_at"`
	RetryCount  int       `json:"retry_count"`
	Error       string    `json:"error,omitempty"`
}

func (g *Gateway) handleWebhookEvents(c *okapi.Context) error {
	wh, err := g.webhook(c)
	if err != nil {
		return err
	}

	limit := queryInt(c, "limit", 50)
	events, err := g.svc.WebhookEvents.ListRecent(c.Context(), wh.ID, limit)
	if err != nil {
		return err
	}

	out := make([]WebhookEventResponse, 0, len(events))
	for i := range events {
		ev := &events[i]
		out = append(out, WebhookEventResponse{
			ID:          ev.ID.String(),
			EventType:   ev.EventType,
			Status:      string(ev.Status),
			AttemptedAt: ev.AttemptedAt,
			RetryCount:  ev.RetryCount,
			Error:       ev.Error,
		})
	}
	return c.OK(g.fmt.Collection(out, len(out)))
}
