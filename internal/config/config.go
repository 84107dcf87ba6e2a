// Package config loads orchestration-core configuration from environment
// variables, with a YAML override file layered on top for non-secret
// defaults (spec.md §6 "Configuration").
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds every recognized configuration option from spec.md §6.
type Config struct {
	Port string

	Store    StoreConfig
	Cache    CacheConfig
	NATS     NATSConfig
	Logging  LoggingConfig
	Deployment DeploymentConfig
	Agent    AgentConfig
	RateLimit RateLimitConfig
	Cleanup  CleanupConfig
	Gateway  GatewayConfig
}

// GatewayConfig points the Agent Turn Engine at an OpenAI-compatible
// chat-completions endpoint.
type GatewayConfig struct {
	URL         string
	APIKey      string
	CostPerCall float64
}

type StoreConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type CacheConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
}

type NATSConfig struct {
	URL      string
	User     string
	Password string
}

type LoggingConfig struct {
	Level  string
	Pretty bool
}

// DeploymentConfig selects and parameterizes the Substrate Driver.
type DeploymentConfig struct {
	// Mode is "local-engine" or "cluster".
	Mode               string
	AppDomain          string
	StorageClaimSize   string
	StorageAccessMode  string
	HibernationIdleMin int
}

// AgentConfig bounds the Agent Turn Engine's per-turn budget.
type AgentConfig struct {
	MaxIterations int
	MaxCostPerTurn float64
	MaxCostPerDay  float64
}

type RateLimitConfig struct {
	CommandPerMinute int
}

// CleanupConfig bounds the idle-container auto-stop sweep, distinct from
// the Environment Manager's hibernation idle threshold.
type CleanupConfig struct {
	IdleMinutes int
}

// yamlOverrides is the shape of the optional --config YAML file. Only
// non-secret defaults are accepted here; credentials stay in env vars.
type yamlOverrides struct {
	AppDomain          string  `yaml:"app_domain"`
	StorageClaimSize   string  `yaml:"storage_claim_size"`
	StorageAccessMode  string  `yaml:"storage_access_mode"`
	HibernationIdleMin int     `yaml:"hibernation_idle_minutes"`
	Agent              struct {
		MaxIterations int     `yaml:"max_iterations"`
		MaxCost       float64 `yaml:"max_cost"`
		MaxCostPerDay float64 `yaml:"max_cost_per_day"`
	} `yaml:"agent"`
	CommandRateLimitPerMinute int `yaml:"command_rate_limit_per_minute"`
	Cleanup                   struct {
		IdleMinutes int `yaml:"idle_minutes"`
	} `yaml:"cleanup"`
}

// Load builds a Config from environment variables, then applies a YAML
// override file at configPath if non-empty.
func Load(configPath string) (*Config, error) {
	cfg := &Config{
		Port: getEnv("API_PORT", "8000"),
		Store: StoreConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "orchestrator"),
			Password: getEnv("DB_PASSWORD", "orchestrator"),
			DBName:   getEnv("DB_NAME", "orchestrator"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Cache: CacheConfig{
			Enabled:  getEnv("CACHE_ENABLED", "false") == "true",
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		NATS: NATSConfig{
			URL:      os.Getenv("NATS_URL"),
			User:     os.Getenv("NATS_USER"),
			Password: os.Getenv("NATS_PASSWORD"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: getEnv("LOG_PRETTY", "false") == "true",
		},
		Deployment: DeploymentConfig{
			Mode:               getEnv("DEPLOYMENT_MODE", "local-engine"),
			AppDomain:          getEnv("APP_DOMAIN", "orchestrator.local"),
			StorageClaimSize:   getEnv("STORAGE_CLAIM_SIZE", "5Gi"),
			StorageAccessMode:  getEnv("STORAGE_ACCESS_MODE", "ReadWriteOnce"),
			HibernationIdleMin: getEnvInt("HIBERNATION_IDLE_MINUTES", 30),
		},
		Agent: AgentConfig{
			MaxIterations:  getEnvInt("AGENT_MAX_ITERATIONS", 100),
			MaxCostPerTurn: getEnvFloat("AGENT_MAX_COST", 5),
			MaxCostPerDay:  getEnvFloat("AGENT_MAX_COST_PER_DAY", 20),
		},
		RateLimit: RateLimitConfig{
			CommandPerMinute: getEnvInt("COMMAND_RATE_LIMIT_PER_MINUTE", 30),
		},
		Cleanup: CleanupConfig{
			IdleMinutes: getEnvInt("CLEANUP_IDLE_MINUTES", 15),
		},
		Gateway: GatewayConfig{
			URL:         getEnv("AGENT_GATEWAY_URL", ""),
			APIKey:      os.Getenv("AGENT_GATEWAY_API_KEY"),
			CostPerCall: getEnvFloat("AGENT_GATEWAY_COST_PER_CALL", 0.01),
		},
	}

	if configPath != "" {
		if err := applyYAML(cfg, configPath); err != nil {
			return nil, err
		}
	}

	if cfg.Deployment.Mode != "local-engine" && cfg.Deployment.Mode != "cluster" {
		return nil, fmt.Errorf("invalid deployment_mode: %s (must be local-engine or cluster)", cfg.Deployment.Mode)
	}

	return cfg, nil
}

func applyYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var overrides yamlOverrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if overrides.AppDomain != "" {
		cfg.Deployment.AppDomain = overrides.AppDomain
	}
	if overrides.StorageClaimSize != "" {
		cfg.Deployment.StorageClaimSize = overrides.StorageClaimSize
	}
	if overrides.StorageAccessMode != "" {
		cfg.Deployment.StorageAccessMode = overrides.StorageAccessMode
	}
	if overrides.HibernationIdleMin != 0 {
		cfg.Deployment.HibernationIdleMin = overrides.HibernationIdleMin
	}
	if overrides.Agent.MaxIterations != 0 {
		cfg.Agent.MaxIterations = overrides.Agent.MaxIterations
	}
	if overrides.Agent.MaxCost != 0 {
		cfg.Agent.MaxCostPerTurn = overrides.Agent.MaxCost
	}
	if overrides.Agent.MaxCostPerDay != 0 {
		cfg.Agent.MaxCostPerDay = overrides.Agent.MaxCostPerDay
	}
	if overrides.CommandRateLimitPerMinute != 0 {
		cfg.RateLimit.CommandPerMinute = overrides.CommandRateLimitPerMinute
	}
	if overrides.Cleanup.IdleMinutes != 0 {
		cfg.Cleanup.IdleMinutes = overrides.Cleanup.IdleMinutes
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
