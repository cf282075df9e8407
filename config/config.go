// Package config loads runtime configuration from the environment.
//
// Every option can be set through a CHATBOT_-prefixed environment
// variable, e.g. CHATBOT_AI_PROVIDER or CHATBOT_SESSION_TTL_HOURS.
// Local development typically sets them through a .env file loaded by
// the binary before config is read.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration of the chatbot service.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `mapstructure:"addr"`

	// LogJSON switches log output from text to JSON lines.
	LogJSON bool `mapstructure:"log_json"`

	// AIProvider selects the chat model backend: "openai", "anthropic",
	// "google" or "none". With "none", or when the selected provider's
	// API key is absent, every turn is answered by the scripted flow.
	AIProvider string `mapstructure:"ai_provider"`

	// Model overrides the provider's default model name.
	Model string `mapstructure:"ai_model"`

	OpenAIAPIKey    string `mapstructure:"openai_api_key"`
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	GoogleAPIKey    string `mapstructure:"google_api_key"`

	MaxTokens   int     `mapstructure:"ai_max_tokens"`
	Temperature float64 `mapstructure:"ai_temperature"`

	// CostLimit is the per-conversation spend ceiling in USD.
	CostLimit float64 `mapstructure:"ai_cost_limit"`

	// AICallsPerMinute caps provider calls per session per minute.
	AICallsPerMinute int `mapstructure:"ai_calls_per_minute"`

	// CacheTTL bounds reuse of generated replies.
	CacheTTL time.Duration `mapstructure:"ai_cache_ttl"`

	// AITimeout bounds a single provider call; after it elapses the
	// scripted flow answers instead.
	AITimeout time.Duration `mapstructure:"ai_timeout"`

	// ResponseTimeout is the hard deadline for a whole turn. When it
	// elapses the handler returns the emergency fallback message.
	ResponseTimeout time.Duration `mapstructure:"response_timeout"`

	// SessionTTL bounds session lifetime in the store.
	SessionTTL time.Duration `mapstructure:"session_ttl"`

	// MaxMessages is the per-session turn count that triggers the
	// long-conversation escalation.
	MaxMessages int `mapstructure:"max_messages"`

	// IPHourlyLimit is the per-client-IP request budget per hour.
	IPHourlyLimit int `mapstructure:"ip_hourly_limit"`

	// GlobalRatePerSecond bounds total request throughput; zero
	// disables the global limiter.
	GlobalRatePerSecond float64 `mapstructure:"global_rate_per_second"`

	// AllowedOrigins is the CORS allow-list. "*" allows any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// WebhookURL receives lead notification cards.
	WebhookURL string `mapstructure:"webhook_url"`

	// EmailEndpoint receives formatted lead emails.
	EmailEndpoint string `mapstructure:"email_endpoint"`

	// StoreDriver is one of "memory", "redis", "sqlite", "mysql".
	StoreDriver string `mapstructure:"store_driver"`
	StoreDSN    string `mapstructure:"store_dsn"`

	// MetricsEnabled exposes Prometheus metrics on /metrics.
	MetricsEnabled bool `mapstructure:"metrics_enabled"`

	// TraceEnabled turns conversation events into OpenTelemetry spans.
	TraceEnabled bool `mapstructure:"trace_enabled"`
}

// Load reads configuration from CHATBOT_* environment variables,
// applying defaults for anything unset.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("chatbot")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("addr", ":8080")
	v.SetDefault("log_json", false)
	v.SetDefault("ai_provider", "openai")
	v.SetDefault("ai_model", "")
	v.SetDefault("ai_max_tokens", 300)
	v.SetDefault("ai_temperature", 0.7)
	v.SetDefault("ai_cost_limit", 0.50)
	v.SetDefault("ai_calls_per_minute", 10)
	v.SetDefault("ai_cache_ttl", time.Hour)
	v.SetDefault("ai_timeout", 8*time.Second)
	v.SetDefault("response_timeout", 12*time.Second)
	v.SetDefault("session_ttl", 24*time.Hour)
	v.SetDefault("max_messages", 15)
	v.SetDefault("ip_hourly_limit", 100)
	v.SetDefault("global_rate_per_second", 50.0)
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("webhook_url", "")
	v.SetDefault("email_endpoint", "")
	v.SetDefault("store_driver", "memory")
	v.SetDefault("store_dsn", "")
	v.SetDefault("metrics_enabled", true)
	v.SetDefault("trace_enabled", false)

	// Env vars arrive as strings; viper only maps them onto struct
	// fields it knows about, so bind each key explicitly.
	for _, key := range v.AllKeys() {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.AIProvider {
	case "openai", "anthropic", "google", "none":
	default:
		return fmt.Errorf("unknown AI provider %q", c.AIProvider)
	}
	switch c.StoreDriver {
	case "", "memory", "redis", "sqlite", "mysql":
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.MaxMessages <= 0 {
		return fmt.Errorf("max_messages must be positive")
	}
	return nil
}

// ProviderKey returns the API key for the selected provider, empty
// when the provider has no key configured.
func (c *Config) ProviderKey() string {
	switch c.AIProvider {
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	case "google":
		return c.GoogleAPIKey
	default:
		return ""
	}
}

// AIEnabled reports whether any provider can be used: the selected
// provider must have its API key set.
func (c *Config) AIEnabled() bool {
	return c.AIProvider != "none" && c.ProviderKey() != ""
}
