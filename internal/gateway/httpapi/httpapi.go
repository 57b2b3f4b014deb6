// Package httpapi implements the HTTP API gateway for Cartrita.
//
// Security:
//   - JWT bearer authentication backed by revocable sessions
//   - Request body size limits (default 1 MB)
//   - Per-user rate limiting via token bucket
//   - All responses wrapped in the V2 envelope with correlatable error IDs
//   - TLS expected via reverse proxy (not handled here)
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jkaninda/okapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/cartrita/cartrita/internal/agents"
	"github.com/cartrita/cartrita/internal/apiv2"
	"github.com/cartrita/cartrita/internal/chat"
	"github.com/cartrita/cartrita/internal/gateway/ws"
	"github.com/cartrita/cartrita/internal/integration"
	"github.com/cartrita/cartrita/internal/knowledge"
	"github.com/cartrita/cartrita/internal/observability"
	"github.com/cartrita/cartrita/internal/ratelimit"
	"github.com/cartrita/cartrita/internal/scheduler"
	"github.com/cartrita/cartrita/internal/security"
	"github.com/cartrita/cartrita/internal/storage"
	"github.com/cartrita/cartrita/internal/workflow"
)

const defaultMaxRequestSize = 1 << 20 // 1 MB

// Config configures the HTTP API gateway.
type Config struct {
	ListenAddr     string // e.g., ":8080"
	EnableDocs     bool
	MaxRequestSize int64 // Maximum request body in bytes. 0 = 1 MB default.
	Version        string
	Production     bool // Redact internal error detail in responses.

	// Observability
	MetricsRegistry *prometheus.Registry            // Custom Prometheus registry for /metrics.
	MetricsPath     string                          // Path for metrics endpoint. Default: "/metrics".
	HealthChecker   *observability.HealthChecker    // Health checker for /readyz.
	Metrics         *observability.MetricsCollector // Metrics collector for HTTP middleware.
	Tracer          trace.Tracer                    // OTel tracer for HTTP middleware.
}

func (c Config) maxRequestSize() int64 {
	if c.MaxRequestSize > 0 {
		return c.MaxRequestSize
	}
	return defaultMaxRequestSize
}

// Services bundles the domain services the gateway exposes. Nil optional
// fields disable the corresponding route group.
type Services struct {
	Users storage.UserStore

	Workflows  workflow.Store
	Executions workflow.ExecutionStore
	Engine     *workflow.Engine

	Schedules scheduler.ScheduleStore
	History   scheduler.HistoryStore
	Poller    *scheduler.Poller

	Integrations   integration.Store
	IntegrationSvc *integration.Service
	Webhooks       integration.WebhookStore
	WebhookEvents  integration.WebhookEventStore

	Knowledge     *knowledge.Service
	Documents     knowledge.DocumentStore
	Relationships knowledge.RelationshipStore

	Chat         *chat.Service
	ChatSessions chat.SessionStore

	Auth     *security.Authenticator
	RBAC     *security.RBAC
	Auditor  *security.Auditor
	Sessions security.SessionStore
	Roles    security.RoleStore

	Audit        security.AuditStore
	MaskingRules security.MaskingRuleStore
	TestRunner   *security.TestRunner
	TestRuns     security.TestRunStore

	Registry *agents.Registry
	Catalog  *agents.Catalog
	Tasks    *agents.TaskView
	Exporter *agents.Exporter
	Status   *agents.StatusReporter

	// Events receives task lifecycle pushes for connected dashboards.
	Events *ws.Hub
	// EventsHandler is the WebSocket upgrade endpoint, mounted at /api/ws.
	EventsHandler http.Handler
}

// Gateway is the HTTP API gateway.
type Gateway struct {
	config  Config
	svc     Services
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	fmt     *apiv2.Formatter
	errs    *apiv2.ErrorHandler
	server  *http.Server
	okapi   *okapi.Okapi
}

// NewGateway creates an HTTP API gateway.
func NewGateway(cfg Config, svc Services, limiter *ratelimit.Limiter, logger *slog.Logger) *Gateway {
	formatter := &apiv2.Formatter{}
	return &Gateway{
		config:  cfg,
		svc:     svc,
		limiter: limiter,
		logger:  logger,
		fmt:     formatter,
		errs:    apiv2.NewErrorHandler(formatter, logger, cfg.Production),
		okapi:   okapi.New(okapi.WithMaxMultipartMemory(defaultMaxRequestSize)),
	}
}

// configure installs global middleware and mounts all routes.
func (g *Gateway) configure() {
	g.okapi.Use(observability.RequestIDMiddleware())
	if g.config.Metrics != nil || g.config.Tracer != nil {
		g.okapi.Use(observability.MetricsMiddleware(g.config.Metrics, g.config.Tracer))
	}

	g.mountRoutes()

	// Dashboard event push. Token auth happens inside the ws handler since
	// browser WebSocket clients cannot set the Authorization header.
	if g.svc.EventsHandler != nil {
		g.okapi.HandleStd("GET", "/api/ws", g.svc.EventsHandler.ServeHTTP)
	}

	// Observability endpoints (unauthenticated).
	g.okapi.Get("/healthz", g.handleLiveness)
	g.okapi.Get("/readyz", g.handleReadiness)

	if g.config.MetricsRegistry != nil {
		path := g.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		g.okapi.HandleStd("GET", path,
			promhttp.HandlerFor(g.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}
	if g.config.EnableDocs {
		g.okapi.WithOpenAPIDocs(okapi.OpenAPI{
			Title:   "Cartrita",
			Version: apiv2.APIVersion,
		})
	}
}

// Start launches the HTTP server and blocks until it exits or ctx is canceled.
func (g *Gateway) Start(ctx context.Context) error {
	g.configure()

	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("http api gateway starting", slog.String("addr", g.config.ListenAddr))
	return g.okapi.StartServer(g.server)
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("http api gateway stopping")
	return g.okapi.Shutdown(g.server)
}

func (g *Gateway) mountRoutes() {
	// Login is the only unauthenticated API route.
	g.okapi.Post("/api/v2/auth/login", g.wrap(g.limitBody(g.handleLogin)))

	v2 := g.okapi.Group("/api/v2", g.errs.Middleware(), g.limitBody, g.authenticate, g.rateLimit)

	v2.Post("/auth/logout", g.handleLogout)
	v2.Get("/auth/sessions", g.handleSessionList)

	v2.Post("/users", g.handleUserCreate)
	v2.Get("/users", g.handleUserList)
	v2.Get("/users/{id}", g.handleUserGet)
	v2.Put("/users/{id}", g.handleUserUpdate)
	v2.Delete("/users/{id}", g.handleUserDelete)

	v2.Post("/workflows", g.handleWorkflowCreate)
	v2.Get("/workflows", g.handleWorkflowList)
	v2.Get("/workflows/{id}", g.handleWorkflowGet)
	v2.Put("/workflows/{id}", g.handleWorkflowUpdate)
	v2.Delete("/workflows/{id}", g.handleWorkflowDelete)
	v2.Post("/workflows/{id}/execute", g.handleWorkflowExecute)

	v2.Get("/executions", g.handleExecutionList)
	v2.Get("/executions/{id}", g.handleExecutionGet)
	v2.Post("/executions/{id}/cancel", g.handleExecutionCancel)
	v2.Post("/executions/{id}/retry", g.handleExecutionRetry)
	v2.Delete("/executions/{id}", g.handleExecutionDelete)

	if g.svc.Schedules != nil {
		v2.Post("/schedules", g.handleScheduleCreate)
		v2.Get("/schedules", g.handleScheduleList)
		v2.Get("/schedules/{id}", g.handleScheduleGet)
		v2.Put("/schedules/{id}", g.handleScheduleUpdate)
		v2.Delete("/schedules/{id}", g.handleScheduleDelete)
		v2.Get("/schedules/{id}/executions", g.handleScheduleExecutions)
		v2.Get("/schedules/{id}/statistics", g.handleScheduleStatistics)
	}

	if g.svc.Integrations != nil {
		v2.Post("/integrations", g.handleIntegrationCreate)
		v2.Get("/integrations", g.handleIntegrationList)
		v2.Get("/integrations/{id}", g.handleIntegrationGet)
		v2.Put("/integrations/{id}", g.handleIntegrationUpdate)
		v2.Delete("/integrations/{id}", g.handleIntegrationDelete)
		v2.Get("/integrations/{id}/health", g.handleIntegrationHealth)
		v2.Put("/integrations/{id}/rate-limit", g.handleIntegrationRateLimit)

		v2.Post("/integrations/{id}/webhooks", g.handleWebhookCreate)
		v2.Get("/webhooks/{id}", g.handleWebhookGet)
		v2.Put("/webhooks/{id}", g.handleWebhookUpdate)
		v2.Delete("/webhooks/{id}", g.handleWebhookDelete)
		v2.Get("/webhooks/{id}/events", g.handleWebhookEvents)
	}

	if g.svc.Knowledge != nil {
		v2.Post("/knowledge/documents", g.handleDocumentIngest)
		v2.Get("/knowledge/documents", g.handleDocumentList)
		v2.Get("/knowledge/documents/{id}", g.handleDocumentGet)
		v2.Delete("/knowledge/documents/{id}", g.handleDocumentDelete)
		v2.Post("/knowledge/search", g.handleKnowledgeSearch)
		v2.Post("/knowledge/relationships", g.handleRelationshipCreate)
		v2.Get("/knowledge/documents/{id}/relationships", g.handleRelationshipList)
	}

	if g.svc.Chat != nil {
		v2.Post("/chat/sessions", g.handleChatSessionCreate)
		v2.Get("/chat/sessions", g.handleChatSessionList)
		v2.Delete("/chat/sessions/{id}", g.handleChatSessionDelete)
		v2.Post("/chat/sessions/{id}/messages", g.handleChatMessageAppend)
		v2.Get("/chat/sessions/{id}/messages", g.handleChatHistory)
	}

	v2.Post("/security/roles", g.handleRoleCreate)
	v2.Get("/security/roles", g.handleRoleList)
	v2.Put("/security/roles/{name}", g.handleRoleUpdate)
	v2.Delete("/security/roles/{name}", g.handleRoleDelete)
	v2.Post("/security/roles/{name}/assign", g.handleRoleAssign)
	v2.Post("/security/roles/{name}/unassign", g.handleRoleUnassign)
	v2.Get("/security/audit", g.handleAuditList)
	v2.Post("/security/masking-rules", g.handleMaskingRuleCreate)
	v2.Get("/security/masking-rules", g.handleMaskingRuleList)
	v2.Put("/security/masking-rules", g.handleMaskingRuleUpdate)
	v2.Delete("/security/masking-rules", g.handleMaskingRuleDelete)
	if g.svc.TestRunner != nil {
		v2.Post("/security/test-runs", g.handleTestRunStart)
		v2.Get("/security/test-runs", g.handleTestRunList)
		v2.Get("/security/test-runs/{id}", g.handleTestRunGet)
	}

	// Agent dashboard.
	ag := g.okapi.Group("/api/agents", g.errs.Middleware(), g.limitBody, g.authenticate, g.rateLimit)
	ag.Get("/role-call", g.handleAgentRoleCall)
	ag.Get("/capabilities", g.handleAgentCapabilities)
	ag.Get("/{id}/config", g.handleAgentConfigGet)
	ag.Put("/{id}/config", g.handleAgentConfigSet)
	ag.Get("/tools", g.handleToolList)
	ag.Post("/tools/{name}/toggle", g.handleToolToggle)
	ag.Get("/tasks", g.handleTaskList)
	ag.Post("/tasks/{id}/cancel", g.handleTaskCancel)
	ag.Post("/tasks/{id}/retry", g.handleTaskRetry)
	ag.Delete("/tasks/{id}", g.handleTaskDelete)
	ag.Post("/tasks/export", g.handleTaskExport)
	// GET alias for dashboards that download the export via a plain link.
	ag.Get("/tasks/export", g.handleTaskExport)
	ag.Get("/metrics", g.handleAgentMetrics)
	ag.Get("/metrics/export", g.handleAgentMetricsExport)
	ag.Get("/system/status", g.handleSystemStatus)
}

// wrap applies the error-envelope middleware to a single ungrouped handler.
func (g *Gateway) wrap(h okapi.HandlerFunc) okapi.HandlerFunc {
	return g.errs.Middleware()(h)
}

// --- Middleware ---

// authenticate verifies the bearer JWT and stores the user and token IDs on
// the request context. Revoked or expired sessions are rejected.
func (g *Gateway) authenticate(next okapi.HandlerFunc) okapi.HandlerFunc {
	return func(c *okapi.Context) error {
		authHeader := c.Header("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return apiv2.NewUnauthorizedError("missing or invalid Authorization header")
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")

		userID, session, err := g.svc.Auth.Verify(c.Context(), token)
		if err != nil {
			if errors.Is(err, security.ErrSessionRevoked) {
				return apiv2.NewUnauthorizedError("session revoked")
			}
			return apiv2.NewUnauthorizedError("invalid or expired token")
		}

		c.Set("userID", userID.String())
		c.Set("tokenID", session.TokenID)
		return next(c)
	}
}

// limitBody caps the request body size. Requests declaring an oversize
// Content-Length are rejected up front; chunked bodies hit the cap while the
// handler reads and surface through Classify.
func (g *Gateway) limitBody(next okapi.HandlerFunc) okapi.HandlerFunc {
	return func(c *okapi.Context) error {
		limit := g.config.maxRequestSize()
		r := c.Request()
		if r.ContentLength > limit {
			return apiv2.NewPayloadTooLargeError(limit)
		}
		r.Body = http.MaxBytesReader(c.Response(), r.Body, limit)
		return next(c)
	}
}

// rateLimit applies the per-user token bucket.
func (g *Gateway) rateLimit(next okapi.HandlerFunc) okapi.HandlerFunc {
	return func(c *okapi.Context) error {
		if g.limiter != nil {
			if err := g.limiter.Allow(c.GetString("userID")); err != nil {
				return apiv2.NewRateLimitError()
			}
		}
		return next(c)
	}
}

// --- Helpers ---

// currentUser returns the authenticated user ID set by the auth middleware.
func (g *Gateway) currentUser(c *okapi.Context) uuid.UUID {
	id, err := uuid.Parse(c.GetString("userID"))
	if err != nil {
		return uuid.Nil
	}
	return id
}

// pageParams parses offset/limit query parameters with dashboard defaults.
func pageParams(c *okapi.Context) (offset, limit int) {
	offset = queryInt(c, "offset", 0)
	limit = queryInt(c, "limit", 20)
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	return offset, limit
}

func queryInt(c *okapi.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	var n int
	for _, r := range raw {
		if r < '0' || r > '9' {
			return fallback
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// --- Health ---

// HealthResponse is the JSON body for liveness probes.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleLiveness is the Kubernetes liveness probe.
func (g *Gateway) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness checks all registered dependencies and returns 200 or 503.
func (g *Gateway) handleReadiness(c *okapi.Context) error {
	if g.config.HealthChecker == nil {
		return c.OK(&HealthResponse{Status: "ok"})
	}

	status := g.config.HealthChecker.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, g.fmt.Health(status.Status, status.Checks))
}
