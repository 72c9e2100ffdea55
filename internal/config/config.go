package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/compass-cli/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Redis     RedisConfig     `yaml:"redis" mapstructure:"redis"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Firecrawl FirecrawlConfig `yaml:"firecrawl" mapstructure:"firecrawl"`
	Jina      JinaConfig      `yaml:"jina" mapstructure:"jina"`
	Research  ResearchConfig  `yaml:"research" mapstructure:"research"`
	Budget    BudgetConfig    `yaml:"budget" mapstructure:"budget"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Circuit   CircuitConfig   `yaml:"circuit" mapstructure:"circuit"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CacheConfig configures the research tool cache.
type CacheConfig struct {
	Driver   string `yaml:"driver" mapstructure:"driver"`
	TTLHours int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// RedisConfig holds Redis connection settings for the redis cache driver.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	Prefix   string `yaml:"prefix" mapstructure:"prefix"`
}

// AnthropicConfig holds reasoning engine settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxTurns    int    `yaml:"max_turns" mapstructure:"max_turns"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// FirecrawlConfig holds Firecrawl API settings.
type FirecrawlConfig struct {
	Key      string `yaml:"key" mapstructure:"key"`
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	MaxPages int    `yaml:"max_pages" mapstructure:"max_pages"`
}

// JinaConfig holds Jina AI Reader settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// ResearchConfig configures the research toolkit.
type ResearchConfig struct {
	Providers          []string `yaml:"providers" mapstructure:"providers"`
	RatePerMinute      int      `yaml:"rate_per_minute" mapstructure:"rate_per_minute"`
	SearchTimeoutSecs  int      `yaml:"search_timeout_secs" mapstructure:"search_timeout_secs"`
	ExtractTimeoutSecs int      `yaml:"extract_timeout_secs" mapstructure:"extract_timeout_secs"`
	MaxOutputChars     int      `yaml:"max_output_chars" mapstructure:"max_output_chars"`
	UserAgent          string   `yaml:"user_agent" mapstructure:"user_agent"`
}

// BudgetConfig configures the cost ledger.
type BudgetConfig struct {
	CapUSD        float64 `yaml:"cap_usd" mapstructure:"cap_usd"`
	PerRunWarnUSD float64 `yaml:"per_run_warn_usd" mapstructure:"per_run_warn_usd"`
	Strict        bool    `yaml:"strict" mapstructure:"strict"`
}

// PricingConfig points at an optional YAML rate table.
type PricingConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// PipelineConfig configures the workflow.
type PipelineConfig struct {
	RoutingThreshold int                 `yaml:"routing_threshold" mapstructure:"routing_threshold"`
	SkipStages       map[string][]string `yaml:"skip_stages" mapstructure:"skip_stages"`
	StageAttempts    int                 `yaml:"stage_attempts" mapstructure:"stage_attempts"`
	StageTimeoutSecs int                 `yaml:"stage_timeout_secs" mapstructure:"stage_timeout_secs"`
}

// RetryConfig configures provider call retries.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig configures per-provider circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("COMPASS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "compass.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("cache.driver", "store")
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.prefix", "compass:tool:")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.max_turns", 12)
	v.SetDefault("anthropic.timeout_secs", 120)
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v2")
	v.SetDefault("firecrawl.max_pages", 15)
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("research.providers", []string{"firecrawl", "jina", "direct"})
	v.SetDefault("research.rate_per_minute", 30)
	v.SetDefault("research.search_timeout_secs", 30)
	v.SetDefault("research.extract_timeout_secs", 120)
	v.SetDefault("research.max_output_chars", 12000)
	v.SetDefault("research.user_agent", "compass-cli/1.0")
	v.SetDefault("budget.cap_usd", 50.0)
	v.SetDefault("budget.per_run_warn_usd", 2.0)
	v.SetDefault("budget.strict", false)
	v.SetDefault("pipeline.routing_threshold", 5)
	v.SetDefault("pipeline.stage_attempts", 3)
	v.SetDefault("pipeline.stage_timeout_secs", 600)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("metrics.enabled", true)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Mode selects which keys Validate requires.
type Mode string

const (
	// ModeRun needs the reasoning engine and the ledger.
	ModeRun Mode = "run"
	// ModeServe needs everything ModeRun needs plus a listen port.
	ModeServe Mode = "serve"
	// ModeRead only needs the store.
	ModeRead Mode = "read"
)

// Validate checks that the keys required for a command are present and sane.
func (c *Config) Validate(mode Mode) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case ModeRead:
	case ModeRun, ModeServe:
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
		if c.Budget.CapUSD <= 0 {
			errs = append(errs, "budget.cap_usd must be > 0")
		}
		if c.Pipeline.RoutingThreshold < 0 {
			errs = append(errs, "pipeline.routing_threshold must be >= 0")
		}
		switch c.Cache.Driver {
		case "store", "none":
		case "redis":
			if c.Redis.Addr == "" {
				errs = append(errs, "redis.addr is required for cache.driver=redis")
			}
		default:
			errs = append(errs, fmt.Sprintf("cache.driver %q is not supported", c.Cache.Driver))
		}
		// A breaker that opens before the last retry makes that retry unreachable.
		attempts := resilience.PolicyFrom(c.Retry.MaxAttempts, 0, 0, 0, -1).Attempts
		threshold := resilience.BreakerFrom(c.Circuit.FailureThreshold, 0).Threshold
		if threshold <= attempts-1 {
			errs = append(errs, fmt.Sprintf("circuit.failure_threshold (%d) must exceed retry.max_attempts-1 (%d)", threshold, attempts-1))
		}
		if mode == ModeServe && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
