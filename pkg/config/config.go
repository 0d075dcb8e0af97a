package config

import (
	"fmt"
	"time"

	"github.com/ledgerflow-xyz/evmindexer/internal/common"
	"github.com/ledgerflow-xyz/evmindexer/internal/logger"
)

// Config represents the complete configuration for the indexer core.
type Config struct {
	// JSONRPC contains the transport configuration for the RPC Client:
	// default endpoint, per-method endpoint overrides, and call timeout.
	JSONRPC JSONRPCConfig `yaml:"json_rpc_named_arguments" json:"json_rpc_named_arguments" toml:"json_rpc_named_arguments"` //nolint:lll

	// Subscribe contains the best-effort WebSocket transport configuration.
	Subscribe SubscribeConfig `yaml:"subscribe_named_arguments" json:"subscribe_named_arguments" toml:"subscribe_named_arguments"` //nolint:lll

	// BlockInterval is the nominal inter-block time; the Block Fetcher's
	// realtime loop polls every half interval.
	BlockInterval common.Duration `yaml:"block_interval" json:"block_interval" toml:"block_interval"`

	// Blocks configures the Block Fetcher's header/body batching.
	Blocks BatchConfig `yaml:"blocks" json:"blocks" toml:"blocks"`

	// Receipts configures the Block Fetcher's receipt batching.
	Receipts BatchConfig `yaml:"receipts" json:"receipts" toml:"receipts"`

	// BufferedTasks configures each named async fetcher's batching queue
	// (expected keys: "balance", "internal_transaction", "token_balance").
	BufferedTasks map[string]BufferedTaskConfig `yaml:"buffered_tasks,omitempty" json:"buffered_tasks,omitempty" toml:"buffered_tasks,omitempty"` //nolint:lll

	// MemoryLimitBytes is parsed and defaulted (1 GiB), but no component
	// reads it: nothing samples memory use or sheds BufferedTask work.
	MemoryLimitBytes uint64 `yaml:"memory_limit" json:"memory_limit" toml:"memory_limit"`

	// Retry contains RPC retry configuration with exponential backoff.
	Retry *RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty" toml:"retry,omitempty"`

	// DB contains database connection configuration.
	DB DatabaseConfig `yaml:"db" json:"db" toml:"db"`

	// RetentionPolicy contains optional database retention policy settings.
	RetentionPolicy *RetentionPolicyConfig `yaml:"retention_policy,omitempty"`

	// Maintenance contains optional database maintenance settings.
	Maintenance *MaintenanceConfig `yaml:"maintenance,omitempty"`

	// Logging contains logging configuration.
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty" toml:"logging,omitempty"`

	// Metrics contains Prometheus metrics configuration.
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty" toml:"metrics,omitempty"`

	// API contains the optional status/health HTTP server configuration.
	API *APIConfig `yaml:"api,omitempty" json:"api,omitempty" toml:"api,omitempty"`
}

// APIConfig configures the minimal status/health HTTP surface. A
// separate query/read API over indexed data is out of scope; this
// only ever answers "is it up" and "how far has it indexed".
type APIConfig struct {
	// Enabled controls whether the HTTP server starts at all.
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the "host:port" or ":port" to bind.
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	ReadTimeout  common.Duration `yaml:"read_timeout" json:"read_timeout" toml:"read_timeout"`
	WriteTimeout common.Duration `yaml:"write_timeout" json:"write_timeout" toml:"write_timeout"`
	IdleTimeout  common.Duration `yaml:"idle_timeout" json:"idle_timeout" toml:"idle_timeout"`

	// CORS optionally allows browser-based dashboards to poll /status.
	CORS CORSConfig `yaml:"cors,omitempty" json:"cors,omitempty" toml:"cors,omitempty"`
}

// CORSConfig configures the API server's cross-origin policy.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled" toml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty" json:"allowed_origins,omitempty" toml:"allowed_origins,omitempty"` //nolint:lll
}

// ApplyDefaults sets default values for optional API configuration fields.
func (a *APIConfig) ApplyDefaults() {
	if a.ListenAddress == "" {
		a.ListenAddress = ":8080"
	}
	if a.ReadTimeout.Duration == 0 {
		a.ReadTimeout = common.NewDuration(5 * time.Second)
	}
	if a.WriteTimeout.Duration == 0 {
		a.WriteTimeout = common.NewDuration(10 * time.Second)
	}
	if a.IdleTimeout.Duration == 0 {
		a.IdleTimeout = common.NewDuration(60 * time.Second) //nolint:mnd
	}
}

// Validate checks if the API configuration is valid.
func (a *APIConfig) Validate() error {
	if a.Enabled && a.ListenAddress == "" {
		return fmt.Errorf("api.listen_address is required when the API server is enabled")
	}
	return nil
}

// JSONRPCConfig is the "json_rpc_named_arguments" transport block: a
// default endpoint plus optional per-method routing overrides.
type JSONRPCConfig struct {
	// URL is the default JSON-RPC endpoint.
	URL string `yaml:"url" json:"url" toml:"url"`

	// MethodURLs routes specific JSON-RPC methods to a different
	// endpoint than URL (e.g. routing trace_* calls to an archive node).
	MethodURLs map[string]string `yaml:"method_urls,omitempty" json:"method_urls,omitempty" toml:"method_urls,omitempty"` //nolint:lll

	// Timeout bounds a single RPC call (batched or not).
	Timeout common.Duration `yaml:"timeout" json:"timeout" toml:"timeout"`

	// TraceMethod names the chain's internal-transaction trace method
	// ("trace_replayTransaction", "debug_traceTransaction", ...).
	TraceMethod string `yaml:"trace_method,omitempty" json:"trace_method,omitempty" toml:"trace_method,omitempty"`
}

// ApplyDefaults sets default values for optional JSON-RPC fields.
func (j *JSONRPCConfig) ApplyDefaults() {
	if j.Timeout.Duration == 0 {
		j.Timeout = common.NewDuration(60 * time.Second)
	}
	if j.TraceMethod == "" {
		j.TraceMethod = "trace_replayTransaction"
	}
}

// SubscribeConfig is the "subscribe_named_arguments" block.
type SubscribeConfig struct {
	// WSURL is the WebSocket endpoint used for best-effort newHeads/logs
	// subscriptions. Empty disables subscriptions; the Block Fetcher
	// falls back to polling only.
	WSURL string `yaml:"ws_url,omitempty" json:"ws_url,omitempty" toml:"ws_url,omitempty"`
}

// BatchConfig configures the batch size and concurrency of one RPC
// operation (blocks_batch_size/blocks_concurrency, receipts_*).
type BatchConfig struct {
	BatchSize   int `yaml:"batch_size" json:"batch_size" toml:"batch_size"`
	Concurrency int `yaml:"concurrency" json:"concurrency" toml:"concurrency"`
}

// ApplyDefaults applies the caller-chosen defaults (10/10 for blocks,
// 250/10 for receipts); callers pick the right zero-value default
// externally.
func (b *BatchConfig) ApplyDefaults(defaultBatchSize, defaultConcurrency int) {
	if b.BatchSize == 0 {
		b.BatchSize = defaultBatchSize
	}
	if b.Concurrency == 0 {
		b.Concurrency = defaultConcurrency
	}
}

// BufferedTaskConfig configures one named Buffered Task Queue.
type BufferedTaskConfig struct {
	// FlushInterval is the maximum time a batch waits before being
	// flushed even if it hasn't reached MaxBatchSize.
	FlushInterval common.Duration `yaml:"flush_interval" json:"flush_interval" toml:"flush_interval"`

	// MaxBatchSize caps the number of items flushed to the RPC layer
	// in one batch call.
	MaxBatchSize int `yaml:"max_batch_size" json:"max_batch_size" toml:"max_batch_size"`

	// MaxConcurrency caps the number of in-flight batches.
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency" toml:"max_concurrency"`

	// InitChunkSize is the chunk size passed to the fetcher's init
	// callback when it seeds unfinished work at startup.
	InitChunkSize int `yaml:"init_chunk_size" json:"init_chunk_size" toml:"init_chunk_size"`
}

// ApplyDefaults sets reasonable defaults for a BufferedTask.
func (b *BufferedTaskConfig) ApplyDefaults() {
	if b.FlushInterval.Duration == 0 {
		b.FlushInterval = common.NewDuration(3 * time.Second)
	}
	if b.MaxBatchSize == 0 {
		b.MaxBatchSize = 500
	}
	if b.MaxConcurrency == 0 {
		b.MaxConcurrency = 10
	}
	if b.InitChunkSize == 0 {
		b.InitChunkSize = 100
	}
}

// RetryConfig represents RPC retry configuration with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial request)
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`

	// InitialBackoff is the initial backoff duration before first retry
	InitialBackoff common.Duration `yaml:"initial_backoff" json:"initial_backoff" toml:"initial_backoff"`

	// MaxBackoff is the maximum backoff duration
	MaxBackoff common.Duration `yaml:"max_backoff" json:"max_backoff" toml:"max_backoff"`

	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier" toml:"backoff_multiplier"`
}

// ApplyDefaults sets default values for retry configuration.
func (r *RetryConfig) ApplyDefaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 5
	}
	if r.InitialBackoff.Duration == 0 {
		r.InitialBackoff = common.NewDuration(1 * time.Second)
	}
	if r.MaxBackoff.Duration == 0 {
		r.MaxBackoff = common.NewDuration(30 * time.Second) //nolint:mnd
	}
	if r.BackoffMultiplier == 0 {
		r.BackoffMultiplier = 2.0
	}
}

// DatabaseConfig represents Postgres connection configuration.
type DatabaseConfig struct {
	// Host is the Postgres server hostname.
	Host string `yaml:"host" json:"host" toml:"host"`

	// Port is the Postgres server port.
	Port int `yaml:"port" json:"port" toml:"port"`

	// User is the Postgres role to connect as.
	User string `yaml:"user" json:"user" toml:"user"`

	// Password authenticates User. DSN() includes it in plain text.
	Password string `yaml:"password" json:"password" toml:"password"`

	// Name is the database name.
	Name string `yaml:"name" json:"name" toml:"name"`

	// SSLMode is passed through to lib/pq ("disable", "require",
	// "verify-ca", "verify-full").
	SSLMode string `yaml:"sslmode" json:"sslmode" toml:"sslmode"`

	// MaxOpenConnections is the maximum number of open database connections
	MaxOpenConnections int `yaml:"max_open_connections" json:"max_open_connections" toml:"max_open_connections"`

	// MaxIdleConnections is the maximum number of idle connections in the pool
	MaxIdleConnections int `yaml:"max_idle_connections" json:"max_idle_connections" toml:"max_idle_connections"`

	// ConnMaxLifetime recycles pooled connections after this long.
	ConnMaxLifetime common.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" toml:"conn_max_lifetime"`
}

// DSN renders the libpq connection string sql.Open("postgres", ...) expects.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// ApplyDefaults sets default values for optional database configuration fields.
func (d *DatabaseConfig) ApplyDefaults() {
	if d.Host == "" {
		d.Host = "localhost"
	}
	if d.Port == 0 {
		d.Port = 5432
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}
	if d.MaxOpenConnections == 0 {
		d.MaxOpenConnections = 25
	}
	if d.MaxIdleConnections == 0 {
		d.MaxIdleConnections = 5
	}
	if d.ConnMaxLifetime.Duration == 0 {
		d.ConnMaxLifetime = common.NewDuration(30 * time.Minute) //nolint:mnd
	}
}

// RetentionPolicyConfig represents database retention policy settings.
type RetentionPolicyConfig struct {
	// MaxDBSizeMB is the maximum database size in megabytes (0 = unlimited)
	MaxDBSizeMB uint64 `yaml:"max_db_size_mb"`

	// MaxBlocks is the maximum number of blocks to retain (0 = unlimited)
	MaxBlocks uint64 `yaml:"max_blocks"`
}

// IsEnabled returns true if retention policy should be applied
func (r *RetentionPolicyConfig) IsEnabled() bool {
	return r != nil && (r.MaxDBSizeMB > 0 || r.MaxBlocks > 0)
}

// MaintenanceConfig configures database maintenance behavior.
type MaintenanceConfig struct {
	// Enabled controls whether background maintenance runs
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// CheckInterval is how often to run maintenance (e.g., "30m", "1h")
	CheckInterval common.Duration `yaml:"check_interval" json:"check_interval" toml:"check_interval"`

	// VacuumOnStartup runs maintenance immediately on startup
	VacuumOnStartup bool `yaml:"vacuum_on_startup" json:"vacuum_on_startup" toml:"vacuum_on_startup"`
}

// ApplyDefaults sets default values for optional maintenance configuration fields.
func (m *MaintenanceConfig) ApplyDefaults() {
	if m.CheckInterval.Duration == 0 {
		m.CheckInterval = common.NewDuration(30 * time.Minute) //nolint:mnd
	}
	// Enabled defaults to false (zero value)
	// VacuumOnStartup defaults to false (zero value)
}

// Validate checks if the maintenance configuration is valid.
func (m *MaintenanceConfig) Validate() error {
	return nil
}

// LoggingConfig configures logging behavior with per-component log levels.
type LoggingConfig struct {
	// DefaultLevel is the default log level for all components
	// Options: "debug", "info", "warn", "error"
	DefaultLevel string `yaml:"default_level" json:"default_level" toml:"default_level"`

	// Development enables development mode (stack traces, console encoder)
	Development bool `yaml:"development" json:"development" toml:"development"`

	// ComponentLevels sets log levels for specific components. See
	// internal/common.AllComponents for the recognized set.
	ComponentLevels map[string]string `yaml:"component_levels,omitempty" json:"component_levels,omitempty" toml:"component_levels,omitempty"` //nolint:lll
}

// ApplyDefaults sets default values for optional logging configuration fields.
func (l *LoggingConfig) ApplyDefaults() {
	if l.DefaultLevel == "" {
		l.DefaultLevel = "info"
	}
	// Development defaults to false (zero value)
	if l.ComponentLevels == nil {
		l.ComponentLevels = make(map[string]string)
	}
}

// Validate checks if the logging configuration is valid.
func (l *LoggingConfig) Validate() error {
	// Validate default level
	if l.DefaultLevel != "" {
		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(l.DefaultLevel)]; !valid {
			return fmt.Errorf("logging.default_level: must be one of: debug, info, warn, error")
		}
	}

	for component, level := range l.ComponentLevels {
		// Check if component is valid
		if _, validComponent := common.AllComponents[common.ToLowerWithTrim(component)]; !validComponent {
			return fmt.Errorf("logging.component_levels: unknown component '%s'", component)
		}

		// Check if level is valid
		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(level)]; !valid {
			return fmt.Errorf("logging.component_levels[%s]: must be one of: debug, info, warn, error", component)
		}
	}

	return nil
}

// GetComponentLevel returns the log level for a specific component.
// Falls back to DefaultLevel if no component-specific level is set.
func (l *LoggingConfig) GetComponentLevel(component string) string {
	if level, ok := l.ComponentLevels[component]; ok {
		return level
	}
	return common.ToLowerWithTrim(l.DefaultLevel)
}

// GetDefaultLevel returns the default log level.
func (l *LoggingConfig) GetDefaultLevel() string {
	return common.ToLowerWithTrim(l.DefaultLevel)
}

// IsDevelopment returns whether development mode is enabled.
func (l *LoggingConfig) IsDevelopment() bool {
	return l.Development
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP endpoint are active
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the metrics HTTP server to
	// Format: "host:port" or ":port"
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// Path is the HTTP path where metrics are exposed
	Path string `yaml:"path" json:"path" toml:"path"`
}

// ApplyDefaults sets default values for optional metrics configuration fields.
func (m *MetricsConfig) ApplyDefaults() {
	if m.ListenAddress == "" {
		m.ListenAddress = ":9090"
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
	// Enabled defaults to false (zero value)
}

// Validate checks if the metrics configuration is valid.
func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.ListenAddress == "" {
			return fmt.Errorf("listen_address is required when metrics are enabled")
		}
		if m.Path == "" {
			return fmt.Errorf("path is required when metrics are enabled")
		}
		if m.Path[0] != '/' {
			return fmt.Errorf("path must start with '/'")
		}
	}
	return nil
}

// ApplyDefaults sets default values for optional configuration fields.
func (c *Config) ApplyDefaults() {
	if c.BlockInterval.Duration == 0 {
		c.BlockInterval = common.NewDuration(5 * time.Second) //nolint:mnd
	}

	c.JSONRPC.ApplyDefaults()
	c.Blocks.ApplyDefaults(10, 10)     //nolint:mnd
	c.Receipts.ApplyDefaults(250, 10)  //nolint:mnd

	if c.BufferedTasks == nil {
		c.BufferedTasks = make(map[string]BufferedTaskConfig)
	}
	for _, name := range []string{"balance", "internal_transaction", "token_balance"} {
		task := c.BufferedTasks[name]
		task.ApplyDefaults()
		c.BufferedTasks[name] = task
	}

	if c.MemoryLimitBytes == 0 {
		c.MemoryLimitBytes = 1 << 30 // 1 GiB
	}

	if c.Maintenance != nil {
		c.Maintenance.ApplyDefaults()
	}

	if c.Retry != nil {
		c.Retry.ApplyDefaults()
	}

	c.DB.ApplyDefaults()

	if c.Logging != nil {
		c.Logging.ApplyDefaults()
	}

	if c.Metrics != nil {
		c.Metrics.ApplyDefaults()
	}

	if c.API != nil {
		c.API.ApplyDefaults()
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.JSONRPC.URL == "" {
		return fmt.Errorf("json_rpc_named_arguments.url is required")
	}

	if c.Blocks.BatchSize <= 0 {
		return fmt.Errorf("blocks.batch_size must be positive")
	}
	if c.Blocks.Concurrency <= 0 {
		return fmt.Errorf("blocks.concurrency must be positive")
	}
	if c.Receipts.BatchSize <= 0 {
		return fmt.Errorf("receipts.batch_size must be positive")
	}
	if c.Receipts.Concurrency <= 0 {
		return fmt.Errorf("receipts.concurrency must be positive")
	}

	for name, task := range c.BufferedTasks {
		if task.MaxBatchSize <= 0 {
			return fmt.Errorf("buffered_tasks[%s].max_batch_size must be positive", name)
		}
		if task.MaxConcurrency <= 0 {
			return fmt.Errorf("buffered_tasks[%s].max_concurrency must be positive", name)
		}
	}

	if c.DB.Host == "" {
		return fmt.Errorf("db.host is required")
	}
	if c.DB.Name == "" {
		return fmt.Errorf("db.name is required")
	}

	if c.Maintenance != nil {
		if err := c.Maintenance.Validate(); err != nil {
			return fmt.Errorf("maintenance: %w", err)
		}
	}

	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return err
		}
	}

	if c.Metrics != nil {
		if err := c.Metrics.Validate(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	if c.API != nil {
		if err := c.API.Validate(); err != nil {
			return fmt.Errorf("api: %w", err)
		}
	}

	return nil
}
