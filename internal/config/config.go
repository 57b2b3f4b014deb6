// Package config handles loading and validating Cartrita configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for Cartrita.
type Config struct {
	Environment   string               `json:"environment" yaml:"environment"` // "development" (default) or "production".
	Server        ServerConfig         `json:"server" yaml:"server"`
	Database      DatabaseConfig       `json:"database" yaml:"database"`
	Auth          AuthConfig           `json:"auth" yaml:"auth"`
	Scheduler     *SchedulerConfig     `json:"scheduler,omitempty" yaml:"scheduler,omitempty"`         // nil = scheduler disabled
	Maintenance   *MaintenanceConfig   `json:"maintenance,omitempty" yaml:"maintenance,omitempty"`     // nil = maintenance disabled
	Knowledge     KnowledgeConfig      `json:"knowledge" yaml:"knowledge"`
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
}

// IsProduction reports whether error responses should redact internal detail.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// ServerConfig configures the HTTP API gateway.
type ServerConfig struct {
	ListenAddr          string          `json:"listen_addr" yaml:"listen_addr"` // Default: ":8080". Override: CARTRITA_LISTEN_ADDR env var.
	EnableDocs          bool            `json:"enable_docs" yaml:"enable_docs"`
	MaxRequestSizeBytes int64           `json:"max_request_size_bytes" yaml:"max_request_size_bytes"`
	RateLimit           RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	Version             string          `json:"version" yaml:"version"` // Reported on /api/agents/system/status.
}

// Addr returns the listen address with a default of ":8080".
func (s *ServerConfig) Addr() string {
	if s != nil && s.ListenAddr != "" {
		return s.ListenAddr
	}
	return ":8080"
}

// RateLimitConfig configures per-user request rate limiting.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"`
	BurstSize         int `json:"burst_size" yaml:"burst_size"`
}

// DatabaseConfig configures PostgreSQL persistence.
// DSN can be overridden by the CARTRITA_DB_DSN env var.
type DatabaseConfig struct {
	DSN              string `json:"dsn" yaml:"dsn"`
	MaxOpenConns     int    `json:"max_open_conns" yaml:"max_open_conns"`           // Default: 25
	MaxIdleConns     int    `json:"max_idle_conns" yaml:"max_idle_conns"`           // Default: 5
	ConnMaxLifetimeS int    `json:"conn_max_lifetime_s" yaml:"conn_max_lifetime_s"` // Default: 1800 (30 min)
}

// ConnMaxLifetime returns the connection max lifetime with a default of 30m.
func (d *DatabaseConfig) ConnMaxLifetime() time.Duration {
	if d != nil && d.ConnMaxLifetimeS > 0 {
		return time.Duration(d.ConnMaxLifetimeS) * time.Second
	}
	return 30 * time.Minute
}

// OpenConns returns the max open connections with a default of 25.
func (d *DatabaseConfig) OpenConns() int {
	if d != nil && d.MaxOpenConns > 0 {
		return d.MaxOpenConns
	}
	return 25
}

// IdleConns returns the max idle connections with a default of 5.
func (d *DatabaseConfig) IdleConns() int {
	if d != nil && d.MaxIdleConns > 0 {
		return d.MaxIdleConns
	}
	return 5
}

// AuthConfig configures JWT session issuance.
// JWTSecret can be overridden by the CARTRITA_JWT_SECRET env var.
type AuthConfig struct {
	JWTSecret       string `json:"jwt_secret" yaml:"jwt_secret"`
	TokenTTLSeconds int    `json:"token_ttl_seconds" yaml:"token_ttl_seconds"` // Default: 86400 (24h).
}

// TokenTTL returns the session token lifetime with a default of 24h.
func (a *AuthConfig) TokenTTL() time.Duration {
	if a != nil && a.TokenTTLSeconds > 0 {
		return time.Duration(a.TokenTTLSeconds) * time.Second
	}
	return 24 * time.Hour
}

// SchedulerConfig configures the schedule poller.
// When nil, no scheduled workflows are fired.
type SchedulerConfig struct {
	Enabled                bool   `json:"enabled" yaml:"enabled"`
	PollIntervalSeconds    int    `json:"poll_interval_seconds" yaml:"poll_interval_seconds"`         // Default: 15.
	MaxConcurrentJobs      int    `json:"max_concurrent_jobs" yaml:"max_concurrent_jobs"`             // Default: 4.
	MissedRunWindowSeconds int    `json:"missed_run_window_seconds" yaml:"missed_run_window_seconds"` // Default: 3600 (1 hour).
	WorkerID               string `json:"worker_id" yaml:"worker_id"`                                 // Default: hostname-pid.
}

// PollInterval returns the poll interval with a default of 15s.
func (s *SchedulerConfig) PollInterval() time.Duration {
	if s != nil && s.PollIntervalSeconds > 0 {
		return time.Duration(s.PollIntervalSeconds) * time.Second
	}
	return 15 * time.Second
}

// MaxConcurrent returns the max concurrent jobs with a default of 4.
func (s *SchedulerConfig) MaxConcurrent() int {
	if s != nil && s.MaxConcurrentJobs > 0 {
		return s.MaxConcurrentJobs
	}
	return 4
}

// MissedRunWindow returns the window for recovering missed schedule runs.
// Runs missed more than this duration ago are skipped. Default: 1 hour.
func (s *SchedulerConfig) MissedRunWindow() time.Duration {
	if s != nil && s.MissedRunWindowSeconds > 0 {
		return time.Duration(s.MissedRunWindowSeconds) * time.Second
	}
	return 1 * time.Hour
}

// Worker returns the worker ID with a hostname-pid default.
func (s *SchedulerConfig) Worker() string {
	if s != nil && s.WorkerID != "" {
		return s.WorkerID
	}
	host, err := os.Hostname()
	if err != nil {
		host = "cartrita"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// MaintenanceConfig configures the nightly maintenance batch.
// When nil, no maintenance tasks are executed.
type MaintenanceConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Schedule string `json:"schedule" yaml:"schedule"` // 5-field cron. Default: "0 3 * * *".
}

// CronSchedule returns the maintenance cron expression with a 3 AM default.
func (m *MaintenanceConfig) CronSchedule() string {
	if m != nil && m.Schedule != "" {
		return m.Schedule
	}
	return "0 3 * * *"
}

// KnowledgeConfig configures the knowledge retrieval subsystem.
type KnowledgeConfig struct {
	MaxSearchResults   int             `json:"max_search_results" yaml:"max_search_results"`     // Default: 10.
	QueryRetentionDays int             `json:"query_retention_days" yaml:"query_retention_days"` // Default: 30.
	Embedding          EmbeddingConfig `json:"embedding" yaml:"embedding"`
}

// EmbeddingConfig configures the embeddings provider. An empty APIKey with an
// empty BaseURL disables knowledge ingestion and search.
// APIKey can be overridden by the CARTRITA_EMBEDDING_API_KEY env var.
type EmbeddingConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`
	BaseURL string `json:"base_url" yaml:"base_url"` // Default: https://api.openai.com. Any OpenAI-compatible endpoint.
	Model   string `json:"model" yaml:"model"`       // Default: text-embedding-3-small.
}

// Enabled reports whether an embeddings provider is configured.
func (e *EmbeddingConfig) Enabled() bool {
	return e != nil && (e.APIKey != "" || e.BaseURL != "")
}

// SearchLimit returns the default result limit with a default of 10.
func (k *KnowledgeConfig) SearchLimit() int {
	if k != nil && k.MaxSearchResults > 0 {
		return k.MaxSearchResults
	}
	return 10
}

// ObservabilityConfig configures metrics, tracing, and health checks.
// When nil, all observability features are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// MetricsPath returns the exposition path with a default of "/metrics".
func (m *MetricsConfig) MetricsPath() string {
	if m != nil && m.Path != "" {
		return m.Path
	}
	return "/metrics"
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "cartrita"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0.0-1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`         // Skip TLS for dev
}

// DefaultConfigPath returns the default config file path (~/.cartrita/config.yaml).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "configs/cartrita.yaml" // fallback for environments without a home dir
	}
	return filepath.Join(home, ".cartrita", "config.yaml")
}

// Load reads a JSON or YAML config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything
// else for JSON. Secrets can be set in the config file or overridden by
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
		}
	}

	// Environment variable overrides take precedence over config values.
	if env := os.Getenv("CARTRITA_DB_DSN"); env != "" {
		cfg.Database.DSN = env
	}
	if env := os.Getenv("CARTRITA_JWT_SECRET"); env != "" {
		cfg.Auth.JWTSecret = env
	}
	if env := os.Getenv("CARTRITA_LISTEN_ADDR"); env != "" {
		cfg.Server.ListenAddr = env
	}
	if env := os.Getenv("CARTRITA_ENV"); env != "" {
		cfg.Environment = env
	}
	if env := os.Getenv("CARTRITA_EMBEDDING_API_KEY"); env != "" {
		cfg.Knowledge.Embedding.APIKey = env
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

func (c *Config) validate() error {
	if c.Environment == "" {
		c.Environment = "development"
	}
	switch strings.ToLower(c.Environment) {
	case "development", "production":
	default:
		return fmt.Errorf("environment %q is not supported (use development or production)", c.Environment)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required (set CARTRITA_DB_DSN env var)")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required (set CARTRITA_JWT_SECRET env var)")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("auth.jwt_secret must be at least 16 bytes")
	}
	if c.Server.MaxRequestSizeBytes < 0 {
		return fmt.Errorf("server.max_request_size_bytes must not be negative")
	}
	if c.Server.RateLimit.RequestsPerMinute < 0 || c.Server.RateLimit.BurstSize < 0 {
		return fmt.Errorf("server.rate_limit values must not be negative")
	}
	if c.Knowledge.QueryRetentionDays < 0 {
		return fmt.Errorf("knowledge.query_retention_days must not be negative")
	}
	if obs := c.Observability; obs != nil && obs.Tracing != nil && obs.Tracing.Enabled {
		if obs.Tracing.Endpoint == "" {
			return fmt.Errorf("observability.tracing.endpoint is required when tracing is enabled")
		}
		if r := obs.Tracing.SampleRate; r < 0 || r > 1 {
			return fmt.Errorf("observability.tracing.sample_rate must be between 0 and 1")
		}
	}
	return nil
}
