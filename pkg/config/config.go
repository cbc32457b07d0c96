package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pario-ai/giftrouter/pkg/models"
	"gopkg.in/yaml.v3"
)

// ErrNoProviderConfigured is returned when no provider has usable credentials.
var ErrNoProviderConfigured = errors.New("no provider configured")

// Config holds all giftrouter configuration.
type Config struct {
	Listen      string           `yaml:"listen"`
	Environment string           `yaml:"environment"`
	Log         LogConfig        `yaml:"log"`
	Providers   []ProviderConfig `yaml:"providers"`
	Router      RouterConfig     `yaml:"router"`
	Classifier  ClassifierConfig `yaml:"classifier"`
	Cache       CacheConfig      `yaml:"cache"`
	Ledger      LedgerConfig     `yaml:"ledger"`
	Estimate    EstimateConfig   `yaml:"estimate"`
}

// LogConfig controls logger construction.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// ProviderConfig defines an upstream LLM provider.
// Type is "openai" (default), "anthropic" or "gemini".
type ProviderConfig struct {
	Name         string         `yaml:"name"`
	Type         string         `yaml:"type"`
	URL          string         `yaml:"url"`
	APIKey       string         `yaml:"api_key"`
	Model        string         `yaml:"model"`
	Timeout      time.Duration  `yaml:"timeout"`
	MaxTokens    int            `yaml:"max_tokens"`
	Temperature  float64        `yaml:"temperature"`
	RateLimitRPS float64        `yaml:"rate_limit_rps"`
	Pricing      models.Pricing `yaml:"pricing"`
}

// Available reports whether the provider has the credentials it needs.
func (p ProviderConfig) Available() bool {
	return strings.TrimSpace(p.APIKey) != ""
}

// RouterConfig maps tiers to providers and fixes the fallback order.
type RouterConfig struct {
	Primary       string                 `yaml:"primary"`
	Tiers         map[models.Tier]string `yaml:"tiers"`
	FallbackOrder []string               `yaml:"fallback_order"`
}

// ClassifierConfig holds the scoring weights and tier thresholds.
type ClassifierConfig struct {
	ShortWords  int `yaml:"short_words"`
	MediumWords int `yaml:"medium_words"`
	LongWords   int `yaml:"long_words"`

	ShortWeight  int `yaml:"short_weight"`
	MediumWeight int `yaml:"medium_weight"`
	LongWeight   int `yaml:"long_weight"`

	ComplexCues      []string `yaml:"complex_cues"`
	ComplexCueWeight int      `yaml:"complex_cue_weight"`
	MediumCues       []string `yaml:"medium_cues"`
	MediumCueWeight  int      `yaml:"medium_cue_weight"`

	ComparisonMarkers []string `yaml:"comparison_markers"`
	ComparisonWeight  int      `yaml:"comparison_weight"`

	MultiQuestionWeight int `yaml:"multi_question_weight"`

	ContextFewAttrs   int `yaml:"context_few_attrs"`
	ContextManyAttrs  int `yaml:"context_many_attrs"`
	ContextFewWeight  int `yaml:"context_few_weight"`
	ContextManyWeight int `yaml:"context_many_weight"`

	MediumThreshold  int `yaml:"medium_threshold"`
	ComplexThreshold int `yaml:"complex_threshold"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Backend   string        `yaml:"backend"` // "redis", "sqlite" or "memory"
	TTL       time.Duration `yaml:"ttl"`
	OpTimeout time.Duration `yaml:"op_timeout"`
	KeyPrefix string        `yaml:"key_prefix"`
	Redis     RedisConfig   `yaml:"redis"`
	SQLite    SQLiteConfig  `yaml:"sqlite"`
}

// RedisConfig locates the Redis cache store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SQLiteConfig locates the SQLite cache store.
type SQLiteConfig struct {
	Path          string        `yaml:"path"`
	PurgeInterval time.Duration `yaml:"purge_interval"`
}

// LedgerConfig controls the persisted usage ledger.
type LedgerConfig struct {
	Enabled   bool          `yaml:"enabled"`
	DBPath    string        `yaml:"db_path"`
	Retention time.Duration `yaml:"retention"`
}

// EstimateConfig drives the monthly cost projection.
type EstimateConfig struct {
	DailyRequests   int                     `yaml:"daily_requests"`
	Split           map[models.Tier]float64 `yaml:"split"`
	AvgInputTokens  int                     `yaml:"avg_input_tokens"`
	AvgOutputTokens int                     `yaml:"avg_output_tokens"`
	BaselineName    string                  `yaml:"baseline_name"`
	BaselinePricing models.Pricing          `yaml:"baseline_pricing"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen:      ":8000",
		Environment: "production",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Providers: []ProviderConfig{
			{
				Name:        "together",
				Type:        "openai",
				URL:         "https://api.together.xyz",
				Model:       "mistralai/Mixtral-8x7B-Instruct-v0.1",
				Timeout:     30 * time.Second,
				MaxTokens:   1024,
				Temperature: 0.7,
				Pricing:     models.Pricing{InputPer1K: 0.00006, OutputPer1K: 0.00006},
			},
			{
				Name:         "gemini",
				Type:         "gemini",
				URL:          "https://generativelanguage.googleapis.com",
				Model:        "gemini-2.0-flash-exp",
				Timeout:      30 * time.Second,
				MaxTokens:    1024,
				Temperature:  0.7,
				RateLimitRPS: 0.25,
			},
			{
				Name:        "claude",
				Type:        "anthropic",
				URL:         "https://api.anthropic.com",
				Model:       "claude-3-5-haiku-20241022",
				Timeout:     30 * time.Second,
				MaxTokens:   1024,
				Temperature: 0.7,
				Pricing:     models.Pricing{InputPer1K: 0.00025, OutputPer1K: 0.00025},
			},
		},
		Router: RouterConfig{
			Primary: "together",
			Tiers: map[models.Tier]string{
				models.TierSimple:  "together",
				models.TierMedium:  "gemini",
				models.TierComplex: "claude",
			},
			FallbackOrder: []string{"claude", "together", "gemini"},
		},
		Classifier: DefaultClassifier(),
		Cache: CacheConfig{
			Enabled:   true,
			Backend:   "redis",
			TTL:       7 * 24 * time.Hour,
			OpTimeout: 2 * time.Second,
			KeyPrefix: "giftrouter:llm:",
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
			SQLite: SQLiteConfig{
				Path:          "giftrouter-cache.db",
				PurgeInterval: time.Hour,
			},
		},
		Ledger: LedgerConfig{
			Enabled:   false,
			DBPath:    "giftrouter.db",
			Retention: 90 * 24 * time.Hour,
		},
		Estimate: EstimateConfig{
			DailyRequests: 1000,
			Split: map[models.Tier]float64{
				models.TierSimple:  0.90,
				models.TierMedium:  0.08,
				models.TierComplex: 0.02,
			},
			AvgInputTokens:  200,
			AvgOutputTokens: 300,
			BaselineName:    "openai-gpt-3.5-turbo",
			BaselinePricing: models.Pricing{InputPer1K: 0.0006, OutputPer1K: 0.0006},
		},
	}
}

// DefaultClassifier returns the scoring policy tuned for a 90/8/2 tier split.
func DefaultClassifier() ClassifierConfig {
	return ClassifierConfig{
		ShortWords:   8,
		MediumWords:  15,
		LongWords:    30,
		ShortWeight:  5,
		MediumWeight: 15,
		LongWeight:   30,
		ComplexCues: []string{
			"comparer", "analyser", "expliquer", "différence", "pourquoi",
			"comment", "meilleur", "conseil", "recommandation personnalisée",
			"plusieurs options",
			"compare", "analyze", "explain", "difference", "why", "how",
			"best between", "advice", "several options",
		},
		ComplexCueWeight: 20,
		MediumCues: []string{
			"budget", "occasion", "âge", "genre", "liste", "idées", "suggestions",
			"age", "gender", "list", "ideas",
		},
		MediumCueWeight:     5,
		ComparisonMarkers:   []string{"vs", "versus", "ou", "or"},
		ComparisonWeight:    15,
		MultiQuestionWeight: 15,
		ContextFewAttrs:     1,
		ContextManyAttrs:    3,
		ContextFewWeight:    5,
		ContextManyWeight:   10,
		MediumThreshold:     20,
		ComplexThreshold:    50,
	}
}

// Load reads a YAML config file, expands environment variables and applies
// environment overrides. The result is not validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides provider keys, cache and app settings from the process
// environment.
func (c *Config) ApplyEnv() error {
	keys := map[string]string{
		"together": "TOGETHER_API_KEY",
		"gemini":   "GEMINI_API_KEY",
		"claude":   "CLAUDE_API_KEY",
	}
	for i := range c.Providers {
		env, ok := keys[c.Providers[i].Name]
		if !ok {
			env = strings.ToUpper(c.Providers[i].Name) + "_API_KEY"
		}
		if v := os.Getenv(env); v != "" {
			c.Providers[i].APIKey = v
		}
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	} else if host := os.Getenv("REDIS_HOST"); host != "" {
		port := os.Getenv("REDIS_PORT")
		if port == "" {
			port = "6379"
		}
		c.Cache.Redis.Addr = net.JoinHostPort(host, port)
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Cache.Redis.Password = v
	}
	if v := os.Getenv("CACHE_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse CACHE_ENABLED: %w", err)
		}
		c.Cache.Enabled = enabled
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	return nil
}

// Provider returns the provider config with the given name.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// AvailableProviders returns the names of providers with credentials, in
// declaration order.
func (c *Config) AvailableProviders() []string {
	var names []string
	for _, p := range c.Providers {
		if p.Available() {
			names = append(names, p.Name)
		}
	}
	return names
}

// Pricing returns the price table keyed by provider name.
func (c *Config) Pricing() map[string]models.Pricing {
	m := make(map[string]models.Pricing, len(c.Providers))
	for _, p := range c.Providers {
		m[p.Name] = p.Pricing
	}
	return m
}
