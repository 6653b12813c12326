package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Anthropic    AnthropicConfig    `yaml:"anthropic" mapstructure:"anthropic"`
	Jina         JinaConfig         `yaml:"jina" mapstructure:"jina"`
	Search       SearchConfig       `yaml:"search" mapstructure:"search"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" mapstructure:"orchestrator"`
	Export       ExportConfig       `yaml:"export" mapstructure:"export"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
	Policy       PolicyConfig       `yaml:"policy" mapstructure:"policy"`
	Retry        RetryConfig        `yaml:"retry" mapstructure:"retry"`
	Breaker      BreakerConfig      `yaml:"breaker" mapstructure:"breaker"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds extraction model settings.
type AnthropicConfig struct {
	Key             string `yaml:"key" mapstructure:"key"`
	BaseURL         string `yaml:"base_url" mapstructure:"base_url"`
	Model           string `yaml:"model" mapstructure:"model"`
	MaxTokens       int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs     int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxContextChars int    `yaml:"max_context_chars" mapstructure:"max_context_chars"`
	// SDKMaxRetries is the SDK's own transport retry count. Round-level
	// retries belong to the orchestrator, so this defaults to 0.
	SDKMaxRetries   int    `yaml:"sdk_max_retries" mapstructure:"sdk_max_retries"`
}

// JinaConfig holds Jina search and reader settings.
type JinaConfig struct {
	Key             string `yaml:"key" mapstructure:"key"`
	BaseURL         string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL   string `yaml:"search_base_url" mapstructure:"search_base_url"`
	NoCache         bool   `yaml:"no_cache" mapstructure:"no_cache"`
	ReadConcurrency int    `yaml:"read_concurrency" mapstructure:"read_concurrency"`
	ReadMaxChars    int    `yaml:"read_max_chars" mapstructure:"read_max_chars"`
	// LocalFirst tries a direct HTTP fetch before the Jina reader.
	LocalFirst      bool   `yaml:"local_first" mapstructure:"local_first"`
}

// SearchConfig configures query fan-out and pacing.
type SearchConfig struct {
	Concurrency   int     `yaml:"concurrency" mapstructure:"concurrency"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst         int     `yaml:"burst" mapstructure:"burst"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// OrchestratorConfig configures the per-phase retry loop.
type OrchestratorConfig struct {
	MaxRetries      int      `yaml:"max_retries" mapstructure:"max_retries"`
	MaxSources      int      `yaml:"max_sources" mapstructure:"max_sources"`
	SourcesStep     int      `yaml:"sources_step" mapstructure:"sources_step"`
	EnrichFromRound int      `yaml:"enrich_from_round" mapstructure:"enrich_from_round"`
	EnrichTopN      int      `yaml:"enrich_top_n" mapstructure:"enrich_top_n"`
	Phases          []string `yaml:"phases" mapstructure:"phases"`
	StopStatuses    []string `yaml:"stop_statuses" mapstructure:"stop_statuses"`
}

// ExportConfig configures the S3 snapshot sink.
type ExportConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix" mapstructure:"prefix"`
	Region          string `yaml:"region" mapstructure:"region"`
	Endpoint        string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" mapstructure:"secret_access_key"`
}

// ServerConfig configures the HTTP front door.
type ServerConfig struct {
	Port               int      `yaml:"port" mapstructure:"port"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	CORSOrigins        []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// PolicyConfig points at the YAML policy file. Empty means built-in.
type PolicyConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// RetryConfig is the backoff policy for store writes and page reads.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// BreakerConfig configures the circuit breaker around the extraction
// provider. Threshold 0 disables it.
type BreakerConfig struct {
	Threshold    int `yaml:"threshold" mapstructure:"threshold"`
	CooldownSecs int `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
}

// Timeout converts TimeoutSecs.
func (c AnthropicConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// Timeout converts TimeoutSecs.
func (c SearchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// Cooldown converts CooldownSecs.
func (c BreakerConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSecs) * time.Second
}

// RequestTimeout converts RequestTimeoutSecs.
func (c ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PROFILE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "profiles.db")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.timeout_secs", 90)
	v.SetDefault("anthropic.max_context_chars", 60000)
	v.SetDefault("anthropic.sdk_max_retries", 0)
	v.SetDefault("jina.key", "")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("jina.read_concurrency", 3)
	v.SetDefault("jina.read_max_chars", 8000)
	v.SetDefault("jina.local_first", true)
	v.SetDefault("search.concurrency", 4)
	v.SetDefault("search.rate_per_second", 2.0)
	v.SetDefault("search.burst", 2)
	v.SetDefault("search.timeout_secs", 45)
	v.SetDefault("orchestrator.max_retries", 2)
	v.SetDefault("orchestrator.max_sources", 10)
	v.SetDefault("orchestrator.sources_step", 5)
	v.SetDefault("orchestrator.enrich_from_round", 1)
	v.SetDefault("orchestrator.enrich_top_n", 3)
	v.SetDefault("orchestrator.phases", []string{"regulatory", "general", "website"})
	v.SetDefault("orchestrator.stop_statuses", []string{"Excellent", "Good"})
	v.SetDefault("export.enabled", false)
	v.SetDefault("export.prefix", "merged")
	v.SetDefault("export.region", "us-east-1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_secs", 600)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("policy.path", "")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 200)
	v.SetDefault("retry.max_backoff_ms", 5000)
	v.SetDefault("breaker.threshold", 5)
	v.SetDefault("breaker.cooldown_secs", 30)

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

// Validate checks the settings a command mode needs. Modes are "run",
// "merge", "serve" and "latest".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required for postgres")
	}
	if c.Export.Enabled && c.Export.Bucket == "" {
		errs = append(errs, "export.bucket is required when export is enabled")
	}

	switch mode {
	case "run", "merge", "serve":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
		if c.Jina.Key == "" {
			errs = append(errs, "jina.key is required")
		}
		if c.Orchestrator.MaxRetries < 0 {
			errs = append(errs, "orchestrator.max_retries must be >= 0")
		}
		if c.Orchestrator.MaxSources < 1 {
			errs = append(errs, "orchestrator.max_sources must be >= 1")
		}
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "latest":
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
