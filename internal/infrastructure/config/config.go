package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bundlesync/engine/internal/domain/bundling"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Log         LogConfig
	Event       EventConfig
	HTTP        HTTPConfig
	Marketplace MarketplaceConfig
	Sync        SyncConfig
	Orders      OrdersConfig
	Bundling    BundlingConfig
	Enrichment  EnrichmentConfig
	Telemetry   TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	// AutoMigrate applies the embedded SQL migrations on server start.
	AutoMigrate     bool
}

// RedisConfig holds Redis connection settings. With Enabled false the
// process keeps idempotency and listing flight locks in memory, which is
// only safe for a single instance.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// EventConfig holds outbox processing configuration
type EventConfig struct {
	ProcessorEnabled bool
	BatchSize        int
	PollInterval     time.Duration
	MaxRetries       int
	ClaimTimeout     time.Duration // PROCESSING entries older than this are failed and retried
	IdempotencyTTL   time.Duration
	CleanupEnabled   bool
	CleanupCron      string
	CleanupRetention time.Duration
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodySize       int64
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	CORSAllowOrigins  []string
	CORSAllowMethods  []string
	CORSAllowHeaders  []string
	TrustedProxies    []string
	// HSTSMaxAge enables Strict-Transport-Security when positive
	HSTSMaxAge        time.Duration
	// AdminToken is the bearer token for the /admin routes
	AdminToken        string
}

// MarketplaceAccount is one seller account on the marketplace
type MarketplaceAccount struct {
	AccountID      string `mapstructure:"account_id"`
	SellerID       string `mapstructure:"seller_id"`
	APIKey         string `mapstructure:"api_key"`
	APISecret      string `mapstructure:"api_secret"`
	StoreFrontCode string `mapstructure:"store_front_code"`
	PushInventory  bool   `mapstructure:"push_inventory"`
}

// MarketplaceConfig holds marketplace client settings. The flat account keys
// describe a single account and are the ones environment variables can set;
// further accounts go in [[marketplace.accounts]].
type MarketplaceConfig struct {
	BaseURL    string
	Timeout    time.Duration
	RateLimit  float64 // requests per second per account
	RateBurst  int
	RetryCount int
	Account    MarketplaceAccount
	Accounts   []MarketplaceAccount
}

// AllAccounts returns the flat account, when set, followed by the listed ones
func (m MarketplaceConfig) AllAccounts() []MarketplaceAccount {
	var out []MarketplaceAccount
	if m.Account.AccountID != "" {
		out = append(out, m.Account)
	}
	return append(out, m.Accounts...)
}

// SyncConfig tunes the listing sync workers and retry schedule
type SyncConfig struct {
	Enabled          bool
	Workers          int
	QueueSize        int
	JobTimeout       time.Duration
	FlightTTL        time.Duration
	InitialPollDelay time.Duration
	BackoffBase      time.Duration
	BackoffMax       time.Duration
	MaxRetries       int
	SweepCron        string
	SweepBatch       int
}

// OrdersConfig controls periodic order pulls
type OrdersConfig struct {
	PullEnabled bool
	PullCron    string
	Lookback    time.Duration
}

// BundlingConfig holds generator defaults. Money values stay strings until
// validate parses them.
type BundlingConfig struct {
	CommissionRate        string
	FixedCost             string
	MinPrice              string
	IndividualSizes       []int
	MixedSizes            []int
	MaxMultiplierPerBrand int
	MaxTotalUnits         int
	OrderWindow           time.Duration
}

// Pricing returns the parsed money values
func (b BundlingConfig) Pricing() (commission, fixed, minPrice decimal.Decimal, err error) {
	if commission, err = decimal.NewFromString(b.CommissionRate); err != nil {
		return commission, fixed, minPrice, fmt.Errorf("bundling.commission_rate: %w", err)
	}
	if fixed, err = decimal.NewFromString(b.FixedCost); err != nil {
		return commission, fixed, minPrice, fmt.Errorf("bundling.fixed_cost: %w", err)
	}
	if minPrice, err = decimal.NewFromString(b.MinPrice); err != nil {
		return commission, fixed, minPrice, fmt.Errorf("bundling.min_price: %w", err)
	}
	return commission, fixed, minPrice, nil
}

// Generator returns the pricing and bundle shape settings the generator runs with
func (b BundlingConfig) Generator() (bundling.PricingConfig, bundling.BundleConfig, error) {
	commission, fixed, minPrice, err := b.Pricing()
	if err != nil {
		return bundling.PricingConfig{}, bundling.BundleConfig{}, err
	}
	pricing := bundling.PricingConfig{
		CommissionRate: commission,
		FixedCost:      fixed,
		MinPrice:       minPrice,
	}
	shape := bundling.BundleConfig{
		IndividualSizes:       b.IndividualSizes,
		MixedSizes:            b.MixedSizes,
		MaxMultiplierPerBrand: b.MaxMultiplierPerBrand,
		MaxTotalUnits:         b.MaxTotalUnits,
	}
	return pricing, shape, nil
}

// EnrichmentConfig selects the bundle enrichment provider
type EnrichmentConfig struct {
	Provider      string // gemini, none
	Model         string
	APIKey        string
	Timeout       time.Duration
	MaxCandidates int
	MaxSelected   int
	// Language of the generated marketing copy
	Language      string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	LogsEnabled       bool    // Also export zap logs to the collector
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with BUNDLESYNC_ prefix (e.g., BUNDLESYNC_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("BUNDLESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Event: EventConfig{
			ProcessorEnabled: v.GetBool("event.processor_enabled"),
			BatchSize:        v.GetInt("event.batch_size"),
			PollInterval:     v.GetDuration("event.poll_interval"),
			MaxRetries:       v.GetInt("event.max_retries"),
			ClaimTimeout:     v.GetDuration("event.claim_timeout"),
			IdempotencyTTL:   v.GetDuration("event.idempotency_ttl"),
			CleanupEnabled:   v.GetBool("event.cleanup_enabled"),
			CleanupCron:      v.GetString("event.cleanup_cron"),
			CleanupRetention: v.GetDuration("event.cleanup_retention"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
			CORSAllowOrigins:  v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods:  v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders:  v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
			HSTSMaxAge:        v.GetDuration("http.hsts_max_age"),
			AdminToken:        v.GetString("http.admin_token"),
		},
		Marketplace: MarketplaceConfig{
			BaseURL:    v.GetString("marketplace.base_url"),
			Timeout:    v.GetDuration("marketplace.timeout"),
			RateLimit:  v.GetFloat64("marketplace.rate_limit"),
			RateBurst:  v.GetInt("marketplace.rate_burst"),
			RetryCount: v.GetInt("marketplace.retry_count"),
			Account: MarketplaceAccount{
				AccountID:      v.GetString("marketplace.account_id"),
				SellerID:       v.GetString("marketplace.seller_id"),
				APIKey:         v.GetString("marketplace.api_key"),
				APISecret:      v.GetString("marketplace.api_secret"),
				StoreFrontCode: v.GetString("marketplace.store_front_code"),
				PushInventory:  v.GetBool("marketplace.push_inventory"),
			},
		},
		Sync: SyncConfig{
			Enabled:          v.GetBool("sync.enabled"),
			Workers:          v.GetInt("sync.workers"),
			QueueSize:        v.GetInt("sync.queue_size"),
			JobTimeout:       v.GetDuration("sync.job_timeout"),
			FlightTTL:        v.GetDuration("sync.flight_ttl"),
			InitialPollDelay: v.GetDuration("sync.initial_poll_delay"),
			BackoffBase:      v.GetDuration("sync.backoff_base"),
			BackoffMax:       v.GetDuration("sync.backoff_max"),
			MaxRetries:       v.GetInt("sync.max_retries"),
			SweepCron:        v.GetString("sync.sweep_cron"),
			SweepBatch:       v.GetInt("sync.sweep_batch"),
		},
		Orders: OrdersConfig{
			PullEnabled: v.GetBool("orders.pull_enabled"),
			PullCron:    v.GetString("orders.pull_cron"),
			Lookback:    v.GetDuration("orders.lookback"),
		},
		Bundling: BundlingConfig{
			CommissionRate:        v.GetString("bundling.commission_rate"),
			FixedCost:             v.GetString("bundling.fixed_cost"),
			MinPrice:              v.GetString("bundling.min_price"),
			IndividualSizes:       v.GetIntSlice("bundling.individual_sizes"),
			MixedSizes:            v.GetIntSlice("bundling.mixed_sizes"),
			MaxMultiplierPerBrand: v.GetInt("bundling.max_multiplier_per_brand"),
			MaxTotalUnits:         v.GetInt("bundling.max_total_units"),
			OrderWindow:           v.GetDuration("bundling.order_window"),
		},
		Enrichment: EnrichmentConfig{
			Provider:      v.GetString("enrichment.provider"),
			Model:         v.GetString("enrichment.model"),
			APIKey:        v.GetString("enrichment.api_key"),
			Timeout:       v.GetDuration("enrichment.timeout"),
			MaxCandidates: v.GetInt("enrichment.max_candidates"),
			MaxSelected:   v.GetInt("enrichment.max_selected"),
			Language:      v.GetString("enrichment.language"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
	}

	if err := v.UnmarshalKey("marketplace.accounts", &cfg.Marketplace.Accounts); err != nil {
		return nil, fmt.Errorf("error reading marketplace.accounts: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "bundlesync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "bundlesync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Event.BatchSize == 0 {
		cfg.Event.BatchSize = 100
	}
	if cfg.Event.PollInterval == 0 {
		cfg.Event.PollInterval = 2 * time.Second
	}
	if cfg.Event.MaxRetries == 0 {
		cfg.Event.MaxRetries = 5
	}
	if cfg.Event.ClaimTimeout == 0 {
		cfg.Event.ClaimTimeout = 5 * time.Minute
	}
	if cfg.Event.IdempotencyTTL == 0 {
		cfg.Event.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.Event.CleanupCron == "" {
		cfg.Event.CleanupCron = "0 3 * * *"
	}
	if cfg.Event.CleanupRetention == 0 {
		cfg.Event.CleanupRetention = 168 * time.Hour
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		// generation with enrichment waits on a remote model
		cfg.HTTP.WriteTimeout = 60 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 10 << 20 // 10MB
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 100
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	// An empty origin list allows no cross-origin requests.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
	}
	if cfg.Marketplace.Timeout == 0 {
		cfg.Marketplace.Timeout = 30 * time.Second
	}
	if cfg.Marketplace.RateLimit == 0 {
		cfg.Marketplace.RateLimit = 5
	}
	if cfg.Marketplace.RateBurst == 0 {
		cfg.Marketplace.RateBurst = 5
	}
	if cfg.Sync.Workers == 0 {
		cfg.Sync.Workers = 4
	}
	if cfg.Sync.QueueSize == 0 {
		cfg.Sync.QueueSize = 256
	}
	if cfg.Sync.JobTimeout == 0 {
		cfg.Sync.JobTimeout = time.Minute
	}
	if cfg.Sync.FlightTTL == 0 {
		cfg.Sync.FlightTTL = 2 * time.Minute
	}
	if cfg.Sync.InitialPollDelay == 0 {
		cfg.Sync.InitialPollDelay = 30 * time.Second
	}
	if cfg.Sync.BackoffBase == 0 {
		cfg.Sync.BackoffBase = time.Minute
	}
	if cfg.Sync.BackoffMax == 0 {
		cfg.Sync.BackoffMax = 15 * time.Minute
	}
	if cfg.Sync.MaxRetries == 0 {
		cfg.Sync.MaxRetries = 8
	}
	if cfg.Sync.SweepCron == "" {
		cfg.Sync.SweepCron = "@every 1m"
	}
	if cfg.Sync.SweepBatch == 0 {
		cfg.Sync.SweepBatch = 200
	}
	if cfg.Orders.PullCron == "" {
		cfg.Orders.PullCron = "*/5 * * * *"
	}
	if cfg.Orders.Lookback == 0 {
		cfg.Orders.Lookback = 24 * time.Hour
	}
	if cfg.Bundling.CommissionRate == "" {
		cfg.Bundling.CommissionRate = "0.10"
	}
	if cfg.Bundling.FixedCost == "" {
		cfg.Bundling.FixedCost = "12"
	}
	if cfg.Bundling.MinPrice == "" {
		cfg.Bundling.MinPrice = "40"
	}
	if len(cfg.Bundling.IndividualSizes) == 0 {
		cfg.Bundling.IndividualSizes = []int{2, 3, 4, 6}
	}
	if len(cfg.Bundling.MixedSizes) == 0 {
		cfg.Bundling.MixedSizes = []int{2, 3, 4, 6}
	}
	if cfg.Bundling.MaxMultiplierPerBrand == 0 {
		cfg.Bundling.MaxMultiplierPerBrand = 11
	}
	if cfg.Bundling.MaxTotalUnits == 0 {
		cfg.Bundling.MaxTotalUnits = 10
	}
	if cfg.Bundling.OrderWindow == 0 {
		cfg.Bundling.OrderWindow = 90 * 24 * time.Hour
	}
	if cfg.Enrichment.Provider == "" {
		cfg.Enrichment.Provider = "none"
	}
	if cfg.Enrichment.Model == "" {
		cfg.Enrichment.Model = "gemini-1.5-flash"
	}
	if cfg.Enrichment.Timeout == 0 {
		cfg.Enrichment.Timeout = 30 * time.Second
	}
	if cfg.Enrichment.MaxCandidates == 0 {
		cfg.Enrichment.MaxCandidates = 10
	}
	if cfg.Enrichment.MaxSelected == 0 {
		cfg.Enrichment.MaxSelected = 5
	}
	if cfg.Enrichment.Language == "" {
		cfg.Enrichment.Language = "Romanian"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "bundlesync"
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Sync.Workers < 1 {
		return fmt.Errorf("sync.workers must be positive")
	}
	if c.Sync.MaxRetries < 1 {
		return fmt.Errorf("sync.max_retries must be positive")
	}
	if c.Sync.BackoffMax < c.Sync.BackoffBase {
		return fmt.Errorf("sync.backoff_max (%s) cannot be below sync.backoff_base (%s)",
			c.Sync.BackoffMax, c.Sync.BackoffBase)
	}

	commission, fixed, minPrice, err := c.Bundling.Pricing()
	if err != nil {
		return err
	}
	if commission.IsNegative() || commission.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("bundling.commission_rate must be in [0, 1), got %s", commission)
	}
	if fixed.IsNegative() || minPrice.IsNegative() {
		return fmt.Errorf("bundling.fixed_cost and bundling.min_price cannot be negative")
	}

	seen := make(map[string]bool)
	for _, acc := range c.Marketplace.AllAccounts() {
		if acc.AccountID == "" {
			return fmt.Errorf("marketplace account without account_id")
		}
		if seen[acc.AccountID] {
			return fmt.Errorf("marketplace account %q configured twice", acc.AccountID)
		}
		seen[acc.AccountID] = true
	}
	if len(seen) > 0 && c.Marketplace.BaseURL == "" {
		return fmt.Errorf("marketplace.base_url is required when accounts are configured")
	}

	switch c.Enrichment.Provider {
	case "none":
	case "gemini":
		if c.Enrichment.APIKey == "" {
			return fmt.Errorf("enrichment.api_key is required for the gemini provider")
		}
	default:
		return fmt.Errorf("enrichment.provider must be gemini or none, got %q", c.Enrichment.Provider)
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if !c.Redis.Enabled {
			return fmt.Errorf("redis.enabled must be true in production (listing flight locks must be shared)")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if len(c.HTTP.AdminToken) < 16 {
			return fmt.Errorf("http.admin_token must be at least 16 characters in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
