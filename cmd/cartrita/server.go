package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	goutils "github.com/jkaninda/go-utils"

	"github.com/cartrita/cartrita/internal/agents"
	"github.com/cartrita/cartrita/internal/chat"
	"github.com/cartrita/cartrita/internal/config"
	"github.com/cartrita/cartrita/internal/domain"
	"github.com/cartrita/cartrita/internal/embedding"
	"github.com/cartrita/cartrita/internal/gateway/httpapi"
	"github.com/cartrita/cartrita/internal/gateway/ws"
	"github.com/cartrita/cartrita/internal/integration"
	"github.com/cartrita/cartrita/internal/knowledge"
	"github.com/cartrita/cartrita/internal/maintenance"
	"github.com/cartrita/cartrita/internal/observability"
	"github.com/cartrita/cartrita/internal/ratelimit"
	"github.com/cartrita/cartrita/internal/scheduler"
	"github.com/cartrita/cartrita/internal/security"
	pgstore "github.com/cartrita/cartrita/internal/storage/postgres"
	"github.com/cartrita/cartrita/internal/workflow"
)

var (
	serverConfigPath string
	serverPort       string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	RunE:  runServer,
}

func init() {
	// Register flags on both root and server so that
	// `cartrita --config path` and `cartrita server --config path` both work.
	for _, cmd := range []*cobra.Command{rootCmd, serverCmd} {
		cmd.Flags().StringVar(&serverConfigPath, "config", config.DefaultConfigPath(), "path to config file")
		cmd.Flags().StringVar(&serverPort, "port", "", "override HTTP listen address (e.g. :8080)")
	}
}

func runServer(_ *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(goutils.Env("CARTRITA_CONFIG", serverConfigPath))
	if err != nil {
		return err
	}
	if serverPort != "" {
		cfg.Server.ListenAddr = serverPort
	}

	logger.Info("starting cartrita server",
		slog.String("config", serverConfigPath),
		slog.String("environment", cfg.Environment))

	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return fmt.Errorf("initializing observability: %w", err)
	}

	db, err := pgstore.Open(pgstore.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.OpenConns(),
		MaxIdleConns:    cfg.Database.IdleConns(),
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime(),
	}, logger)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	store := pgstore.NewStore(db)
	defer store.Close()

	// The same registry carries all metric families; nil disables them.
	var registry *prometheus.Registry
	var collector *observability.MetricsCollector
	var tracer trace.Tracer
	var health *observability.HealthChecker
	if obs != nil {
		collector = obs.Metrics
		health = obs.Health
		if obs.Metrics != nil {
			registry = obs.Metrics.Registry
		}
		if obs.Tracer != nil {
			tracer = obs.Tracer.Tracer()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = obs.Tracer.Shutdown(shutdownCtx)
			}()
		}
	}
	if registry == nil {
		// Dashboard metric exports read from the registry even when the
		// /metrics endpoint is disabled.
		registry = prometheus.NewRegistry()
	}
	if health != nil {
		health.AddCheck("postgres", store.Ping)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Core services.
	engine := workflow.NewEngine(store.Workflows(), store.Executions(), logger)
	chatSvc := chat.NewService(store.ChatSessions(), store.ChatMessages(), logger)

	auth := security.NewAuthenticator(
		[]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL(),
		store.Sessions(), store.Credentials())
	rbac := security.NewRBAC(store.Roles(), logger)
	auditor := security.NewAuditor(store.Audit(), logger)
	testRunner := security.NewTestRunner(store.SecurityTestRuns(), logger)
	registerSecurityChecks(testRunner, cfg, store)

	// Outbound integration calls get their own bucket, separate from the
	// per-user HTTP limiter.
	integrationLimiter := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: 60})
	integrationSvc := integration.NewService(
		store.Integrations(), store.IntegrationExecutions(),
		store.IntegrationTokens(), store.IntegrationRateLimits(),
		integrationLimiter, logger)
	if err := integrationSvc.LoadRateLimits(ctx); err != nil {
		logger.Warn("loading integration rate limits", slog.String("error", err.Error()))
	}

	var knowledgeSvc *knowledge.Service
	if cfg.Knowledge.Embedding.Enabled() {
		var opts []embedding.Option
		if cfg.Knowledge.Embedding.BaseURL != "" {
			opts = append(opts, embedding.WithBaseURL(cfg.Knowledge.Embedding.BaseURL))
		}
		if cfg.Knowledge.Embedding.Model != "" {
			opts = append(opts, embedding.WithModel(cfg.Knowledge.Embedding.Model))
		}
		embedder := embedding.NewClient(cfg.Knowledge.Embedding.APIKey, logger, opts...)
		knowledgeSvc = knowledge.NewService(
			store.KnowledgeDocuments(), store.KnowledgeChunks(),
			store.KnowledgeQueries(), store.KnowledgeRelationships(),
			embedder, logger)
	} else {
		logger.Info("knowledge subsystem disabled: no embeddings provider configured")
	}

	// Schedule poller. Built whenever the scheduler section is present so the
	// API can compute next-run times; the poll loop only starts when enabled.
	var poller *scheduler.Poller
	if cfg.Scheduler != nil {
		poller = scheduler.NewPoller(
			store.Schedules(), store.ScheduleQueue(), store.ScheduleHistory(),
			engine, scheduler.NewMetrics(registry), logger,
			scheduler.Config{
				PollInterval:    cfg.Scheduler.PollInterval(),
				MaxConcurrent:   cfg.Scheduler.MaxConcurrent(),
				MissedRunWindow: cfg.Scheduler.MissedRunWindow(),
				WorkerID:        cfg.Scheduler.Worker(),
			})
		if cfg.Scheduler.Enabled {
			stopPoller := poller.Start(ctx)
			defer stopPoller()
		}
	}

	reportedVersion := cfg.Server.Version
	if reportedVersion == "" {
		reportedVersion = version
	}

	// Agent dashboard backing.
	agentRegistry := agents.NewRegistry()
	seedAgents(agentRegistry)
	catalog := agents.NewCatalog(defaultTools()...)
	taskView := agents.NewTaskView(engine, store.Executions())
	exporter := agents.NewExporter(registry)
	statusReporter := agents.NewStatusReporter(agentRegistry, store.ScheduleQueue(), reportedVersion)

	// Dashboard event push.
	hub := ws.NewHub()
	wsServer := ws.NewServer(hub, ws.VerifierFunc(
		func(ctx context.Context, token string) (uuid.UUID, error) {
			userID, _, err := auth.Verify(ctx, token)
			return userID, err
		}), logger)
	go publishSystemStatus(ctx, hub, statusReporter, logger)

	// Nightly maintenance.
	cronRunner := cron.New()
	if cfg.Maintenance != nil && cfg.Maintenance.Enabled {
		runner := maintenance.NewRunner(maintenance.NewMetrics(registry), logger)
		maintenance.RegisterStandardTasks(runner, maintenanceDeps(store))
		if _, err := cronRunner.AddFunc(cfg.Maintenance.CronSchedule(), func() {
			runner.RunAll(ctx)
		}); err != nil {
			return fmt.Errorf("scheduling maintenance: %w", err)
		}
		cronRunner.Start()
		defer cronRunner.Stop()
		logger.Info("maintenance scheduled", slog.String("cron", cfg.Maintenance.CronSchedule()))
	}

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: cfg.Server.RateLimit.RequestsPerMinute,
		BurstSize:         cfg.Server.RateLimit.BurstSize,
	})

	gw := httpapi.NewGateway(httpapi.Config{
		ListenAddr:      cfg.Server.Addr(),
		EnableDocs:      cfg.Server.EnableDocs,
		MaxRequestSize:  cfg.Server.MaxRequestSizeBytes,
		Version:         reportedVersion,
		Production:      cfg.IsProduction(),
		MetricsRegistry: metricsRegistry(cfg, registry),
		MetricsPath:     metricsPath(cfg),
		HealthChecker:   health,
		Metrics:         collector,
		Tracer:          tracer,
	}, httpapi.Services{
		Users: store.Users(),

		Workflows:  store.Workflows(),
		Executions: store.Executions(),
		Engine:     engine,

		Schedules: scheduleStore(cfg, store),
		History:   store.ScheduleHistory(),
		Poller:    poller,

		Integrations:   store.Integrations(),
		IntegrationSvc: integrationSvc,
		Webhooks:       store.Webhooks(),
		WebhookEvents:  store.WebhookEvents(),

		Knowledge:     knowledgeSvc,
		Documents:     store.KnowledgeDocuments(),
		Relationships: store.KnowledgeRelationships(),

		Chat:         chatSvc,
		ChatSessions: store.ChatSessions(),

		Auth:     auth,
		RBAC:     rbac,
		Auditor:  auditor,
		Sessions: store.Sessions(),
		Roles:    store.Roles(),

		Audit:        store.Audit(),
		MaskingRules: store.MaskingRules(),
		TestRunner:   testRunner,
		TestRuns:     store.SecurityTestRuns(),

		Registry: agentRegistry,
		Catalog:  catalog,
		Tasks:    taskView,
		Exporter: exporter,
		Status:   statusReporter,

		Events:        hub,
		EventsHandler: wsServer.Handler(),
	}, limiter, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- gw.Start(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return gw.Stop(shutdownCtx)
}

// scheduleStore returns nil when the scheduler section is absent so the
// gateway skips mounting the schedule routes.
func scheduleStore(cfg *config.Config, store *pgstore.Store) scheduler.ScheduleStore {
	if cfg.Scheduler == nil {
		return nil
	}
	return store.Schedules()
}

func metricsRegistry(cfg *config.Config, registry *prometheus.Registry) *prometheus.Registry {
	if cfg.Observability == nil || cfg.Observability.Metrics == nil || !cfg.Observability.Metrics.Enabled {
		return nil
	}
	return registry
}

func metricsPath(cfg *config.Config) string {
	if cfg.Observability == nil {
		return ""
	}
	return cfg.Observability.Metrics.MetricsPath()
}

func maintenanceDeps(store *pgstore.Store) maintenance.Deps {
	return maintenance.Deps{
		Archiver:     store.Maintenance(),
		ScheduleRuns: maintenance.CleanupFunc(store.ScheduleHistory().CleanupExecutions),
		KnowledgeLog: maintenance.CleanupFunc(store.KnowledgeQueries().Cleanup),
		Sessions:     store.Sessions(),
		AuthTokens:   store.IntegrationTokens(),
		Views:        store.Maintenance(),
		Snapshots:    store.Maintenance(),
		Scorers: []maintenance.HealthScorer{
			maintenance.ScoreFunc(func(ctx context.Context) ([]domain.HealthSnapshot, error) {
				return integration.ScoreAll(ctx, store.Integrations(), store.IntegrationExecutions(), time.Now().UTC())
			}),
			maintenance.ScoreFunc(func(ctx context.Context) ([]domain.HealthSnapshot, error) {
				return scheduler.ScoreAll(ctx, store.Schedules(), store.ScheduleHistory(), time.Now().UTC())
			}),
		},
	}
}

// statusPushInterval replaces the dashboard's 30-second status polling.
const statusPushInterval = 30 * time.Second

func publishSystemStatus(ctx context.Context, hub *ws.Hub, reporter *agents.StatusReporter, logger *slog.Logger) {
	ticker := time.NewTicker(statusPushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if hub.Subscribers() == 0 {
				continue
			}
			status, err := reporter.Status(ctx)
			if err != nil {
				logger.Warn("collecting system status", slog.String("error", err.Error()))
				continue
			}
			hub.Publish(ws.EventSystemStatus, status)
		}
	}
}

// seedAgents registers the built-in assistant roster. Remote agents replace
// these entries when they heartbeat in.
func seedAgents(r *agents.Registry) {
	r.Register(agents.Agent{
		ID: "supervisor", Name: "Cartrita", Role: "supervisor",
		Capabilities: []string{"orchestration", "chat", "delegation"},
	})
	r.Register(agents.Agent{
		ID: "researcher", Name: "Researcher", Role: "knowledge",
		Capabilities: []string{"knowledge_search", "summarization"},
	})
	r.Register(agents.Agent{
		ID: "automator", Name: "Automator", Role: "workflows",
		Capabilities: []string{"workflow_execution", "scheduling"},
	})
	r.Register(agents.Agent{
		ID: "auditor", Name: "Auditor", Role: "security",
		Capabilities: []string{"security_testing", "audit_review"},
	})
}

func defaultTools() []agents.Tool {
	return []agents.Tool{
		{Name: "knowledge_search", Description: "Semantic search over the knowledge base", Category: "knowledge", Enabled: true},
		{Name: "workflow_trigger", Description: "Fire a workflow execution", Category: "workflows", Enabled: true},
		{Name: "integration_call", Description: "Call an external service integration", Category: "integrations", Enabled: true},
		{Name: "chat_memory", Description: "Recall prior conversation turns", Category: "chat", Enabled: true},
		{Name: "security_scan", Description: "Run the security test suite", Category: "security", Enabled: false},
	}
}

// registerSecurityChecks wires the built-in security test suite.
func registerSecurityChecks(runner *security.TestRunner, cfg *config.Config, store *pgstore.Store) {
	runner.Register("jwt_secret_strength", func(_ context.Context) ([]security.Finding, error) {
		if len(cfg.Auth.JWTSecret) >= 32 {
			return nil, nil
		}
		return []security.Finding{{
			Severity:    domain.SeverityMedium,
			Title:       "Short JWT secret",
			Description: "The session signing secret is shorter than 32 bytes.",
			Remediation: "Generate a 32+ byte random secret and set CARTRITA_JWT_SECRET.",
		}}, nil
	})

	runner.Register("docs_disabled_in_production", func(_ context.Context) ([]security.Finding, error) {
		if !cfg.IsProduction() || !cfg.Server.EnableDocs {
			return nil, nil
		}
		return []security.Finding{{
			Severity:    domain.SeverityLow,
			Title:       "OpenAPI docs exposed in production",
			Description: "The interactive API documentation endpoint is enabled.",
			Remediation: "Set server.enable_docs to false in production.",
		}}, nil
	})

	runner.Register("sensitive_columns_masked", func(ctx context.Context) ([]security.Finding, error) {
		required := [][2]string{
			{"users", "email"},
			{"integration_auth_tokens", "access_token"},
			{"integration_auth_tokens", "refresh_token"},
		}
		var findings []security.Finding
		for _, col := range required {
			_, err := store.MaskingRules().Lookup(ctx, col[0], col[1])
			if err == nil {
				continue
			}
			findings = append(findings, security.Finding{
				Severity:    domain.SeverityHigh,
				Title:       fmt.Sprintf("Unmasked sensitive column %s.%s", col[0], col[1]),
				Description: "No enabled masking rule covers this column in exports and logs.",
				Remediation: fmt.Sprintf("Create a masking rule for %s.%s.", col[0], col[1]),
			})
		}
		return findings, nil
	})
}
