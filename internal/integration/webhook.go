package integration

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cartrita/cartrita/internal/domain"
)

// WebhookStore is the persistence interface for webhook registrations.
type WebhookStore interface {
	Create(ctx context.Context, wh *domain.Webhook) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Webhook, error)
	// ListForEvent returns enabled webhooks on the integration subscribed to
	// the event type.
	ListForEvent(ctx context.Context, integrationID uuid.UUID, eventType string) ([]domain.Webhook, error)
	Update(ctx context.Context, wh *domain.Webhook) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// WebhookEventStore logs delivery attempts.
type WebhookEventStore interface {
	Record(ctx context.Context, ev *domain.WebhookEvent) error
	ListRecent(ctx context.Context, webhookID uuid.UUID, limit int) ([]domain.WebhookEvent, error)
}

// Dispatcher delivers signed webhook payloads.
// Includes SSRF protection: blocks requests to private IP ranges.
type Dispatcher struct {
	webhooks   WebhookStore
	events     WebhookEventStore
	httpClient *http.Client
	logger     *slog.Logger
	maxRetries int
}

// NewDispatcher creates a Dispatcher with a 10s request timeout and up to
// two retries per delivery.
func NewDispatcher(webhooks WebhookStore, events WebhookEventStore, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		webhooks: webhooks,
		events:   events,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			// Do not follow redirects, prevents SSRF via redirect to internal hosts.
			CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:     logger,
		maxRetries: 2,
	}
}

// Dispatch delivers the event payload to every enabled webhook on the
// integration subscribed to eventType. Each delivery is logged; one failing
// target does not stop the rest.
func (d *Dispatcher) Dispatch(ctx context.Context, integrationID uuid.UUID, eventType string, payload []byte) error {
	hooks, err := d.webhooks.ListForEvent(ctx, integrationID, eventType)
	if err != nil {
		return fmt.Errorf("loading webhooks: %w", err)
	}

	for i := range hooks {
		d.deliver(ctx, &hooks[i], eventType, payload)
	}
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, wh *domain.Webhook, eventType string, payload []byte) {
	ev := &domain.WebhookEvent{
		ID:          uuid.New(),
		WebhookID:   wh.ID,
		EventType:   eventType,
		Payload:     payload,
		Status:      domain.ExecutionCompleted,
		AttemptedAt: time.Now().UTC(),
	}

	var lastErr error
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		lastErr = d.post(ctx, wh, eventType, payload)
		if lastErr == nil {
			break
		}
		ev.RetryCount = attempt
	}
	if lastErr != nil {
		ev.Status = domain.ExecutionFailed
		ev.Error = lastErr.Error()
		d.logger.WarnContext(ctx, "webhook delivery failed",
			slog.String("webhook_id", wh.ID.String()),
			slog.String("event_type", eventType),
			slog.Int("retries", ev.RetryCount),
			slog.String("error", lastErr.Error()),
		)
	}

	if err := d.events.Record(ctx, ev); err != nil {
		d.logger.ErrorContext(ctx, "recording webhook event failed",
			slog.String("webhook_id", wh.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (d *Dispatcher) post(ctx context.Context, wh *domain.Webhook, eventType string, payload []byte) error {
	if err := validateWebhookURL(wh.URL); err != nil {
		return fmt.Errorf("webhook URL rejected: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Cartrita-Webhook/1.0")
	req.Header.Set("X-Cartrita-Event", eventType)
	req.Header.Set("X-Cartrita-Signature", Sign(wh.Secret, payload))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 signature sent in X-Cartrita-Signature.
// Receivers verify with VerifySignature.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature in constant time.
func VerifySignature(secret string, payload []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, payload)), []byte(signature))
}

// validateWebhookURL checks that the URL points to a public host.
// Blocks private IPs, loopback, link-local, and non-HTTP schemes.
func validateWebhookURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}

	hostname := u.Hostname()

	lower := strings.ToLower(hostname)
	if lower == "localhost" || lower == "127.0.0.1" || lower == "::1" || lower == "0.0.0.0" {
		return fmt.Errorf("loopback addresses not allowed")
	}

	ips, err := net.LookupHost(hostname)
	if err != nil {
		return fmt.Errorf("DNS lookup failed for %q: %w", hostname, err)
	}
	for _, ipStr := range ips {
		ip := net.ParseIP(ipStr)
		if ip == nil {
			continue
		}
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return fmt.Errorf("private/internal IP %s not allowed", ipStr)
		}
	}
	return nil
}
