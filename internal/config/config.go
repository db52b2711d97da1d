package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the process configuration. Scoring rule tables live in the
// embedded matching registry, not here: this file covers wiring (ports,
// stores, provider account) and the knobs operators actually turn.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	AI       AIConfig       `mapstructure:"ai"`
	Matching MatchingConfig `mapstructure:"matching"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	AdminSecret string `mapstructure:"admin_secret"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type RedisConfig struct {
	Address    string `mapstructure:"address"` // empty disables the catalog cache
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

func (r RedisConfig) TTL() time.Duration {
	return time.Duration(r.TTLSeconds) * time.Second
}

type AIConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	BaseURL         string `mapstructure:"base_url"`
	APIKey          string `mapstructure:"api_key"`
	Model           string `mapstructure:"model"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	MaxOutputTokens int    `mapstructure:"max_output_tokens"`
	TierRPM         int    `mapstructure:"tier_rpm"`
	TierInputTokens int    `mapstructure:"tier_input_tokens"`
	MinCallDelayMs  int    `mapstructure:"min_call_delay_ms"`
	LimiterWaitMs   int    `mapstructure:"limiter_wait_ms"`
}

func (a AIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

func (a AIConfig) MinCallDelay() time.Duration {
	return time.Duration(a.MinCallDelayMs) * time.Millisecond
}

func (a AIConfig) LimiterWait() time.Duration {
	return time.Duration(a.LimiterWaitMs) * time.Millisecond
}

type MatchingConfig struct {
	DefaultLimit         int    `mapstructure:"default_limit"`
	MaxLimit             int    `mapstructure:"max_limit"`
	MaxBatch             int    `mapstructure:"max_batch"`
	PromptOverheadTokens int    `mapstructure:"prompt_overhead_tokens"`
	RulesPath            string `mapstructure:"rules_path"`
	AuditThreshold       int    `mapstructure:"audit_threshold"` // score counted as a match by the bias auditor
}

type LoggingConfig struct {
	JSON  bool `mapstructure:"json"`
	Debug bool `mapstructure:"debug"`
}

// Load reads the yaml config and applies env overrides. An empty path uses
// the standard search locations; a missing file is fine, env and defaults
// carry the process.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix("MATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	// Deployment variables predating the config file win over file values.
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Database.URL = dsn
	}
	if key := os.Getenv("AI_API_KEY"); key != "" {
		cfg.AI.APIKey = key
	}
	if rules := os.Getenv("MATCH_RULES_PATH"); rules != "" {
		cfg.Matching.RulesPath = rules
	}
	if secret := os.Getenv("ADMIN_SECRET"); secret != "" {
		cfg.Server.AdminSecret = secret
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Redis.TTLSeconds == 0 {
		cfg.Redis.TTLSeconds = 300
	}
	if cfg.AI.TimeoutSeconds == 0 {
		cfg.AI.TimeoutSeconds = 15
	}
	if cfg.AI.MaxOutputTokens == 0 {
		cfg.AI.MaxOutputTokens = 1500
	}
	if cfg.AI.TierRPM == 0 {
		cfg.AI.TierRPM = 60
	}
	if cfg.AI.TierInputTokens == 0 {
		cfg.AI.TierInputTokens = 8000
	}
	if cfg.AI.MinCallDelayMs == 0 {
		cfg.AI.MinCallDelayMs = 1000
	}
	if cfg.AI.LimiterWaitMs == 0 {
		cfg.AI.LimiterWaitMs = 2000
	}
	if cfg.Matching.DefaultLimit == 0 {
		cfg.Matching.DefaultLimit = 20
	}
	if cfg.Matching.MaxLimit == 0 {
		cfg.Matching.MaxLimit = 50
	}
	if cfg.Matching.MaxBatch == 0 {
		cfg.Matching.MaxBatch = 8
	}
	if cfg.Matching.PromptOverheadTokens == 0 {
		cfg.Matching.PromptOverheadTokens = 400
	}
	if cfg.Matching.AuditThreshold == 0 {
		cfg.Matching.AuditThreshold = 40
	}
}

func (cfg *Config) validate() error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", cfg.Server.Port)
	}
	if cfg.Matching.DefaultLimit > cfg.Matching.MaxLimit {
		return fmt.Errorf("matching.default_limit %d exceeds matching.max_limit %d",
			cfg.Matching.DefaultLimit, cfg.Matching.MaxLimit)
	}
	if cfg.AI.Enabled && cfg.AI.APIKey == "" {
		return fmt.Errorf("ai.enabled requires ai.api_key (or AI_API_KEY)")
	}
	return nil
}
