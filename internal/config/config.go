// Package config loads the wingman backend configuration from a YAML
// file with environment variable expansion. API keys are expected to
// come from the environment (a .env file is loaded in main).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full backend configuration.
type Config struct {
	// Server settings
	Port int `yaml:"port"`

	// Database settings
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`

	// AI provider settings
	AI AIConfig `yaml:"ai"`

	// Memory pipeline settings
	Memory MemoryConfig `yaml:"memory"`

	// Flow settings
	Flow FlowConfig `yaml:"flow"`
}

// AIConfig selects and configures the LLM provider.
type AIConfig struct {
	// Provider is "anthropic" or "openai"
	Provider string `yaml:"provider"`

	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	AnthropicModel  string `yaml:"anthropic_model"`

	OpenAIAPIKey string `yaml:"openai_api_key"`
	OpenAIModel  string `yaml:"openai_model"`

	// MaxTokens caps completion length per turn
	MaxTokens int `yaml:"max_tokens"`

	// MaxRetries bounds retry attempts on transient provider errors
	MaxRetries int `yaml:"max_retries"`

	// RequestTimeoutSeconds is the per-call deadline for provider requests
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
}

// MemoryConfig tunes the message store and summarization pipeline.
type MemoryConfig struct {
	// BufferSize is the live message count per thread that triggers
	// background summarization
	BufferSize int `yaml:"buffer_size"`

	// DedupWindowMinutes is the rolling window within which an identical
	// message in the same thread is treated as a duplicate
	DedupWindowMinutes int `yaml:"dedup_window_minutes"`

	// RecentSummaries is how many buffer summaries ride along with the
	// dynamic context; older ones move to the static long-term section
	RecentSummaries int `yaml:"recent_summaries"`

	// LongTermSummaries caps the long-term section of the static context
	LongTermSummaries int `yaml:"long_term_summaries"`

	// SweepIntervalMinutes is how often the catch-up sweep looks for
	// threads whose fire-and-forget summarization never landed (0 = off)
	SweepIntervalMinutes int `yaml:"sweep_interval_minutes"`
}

// FlowConfig tunes the stage router.
type FlowConfig struct {
	// SkipWindowHours is how long a skipped stage stays bypassed
	SkipWindowHours int `yaml:"skip_window_hours"`
}

// Load reads the config file at path, expands ${ENV_VAR} references, and
// applies defaults for anything left unset.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes loads configuration from YAML bytes with environment
// variable expansion.
func LoadFromBytes(data []byte) (Config, error) {
	var c Config
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &c); err != nil {
		return c, fmt.Errorf("failed to parse config: %w", err)
	}
	c.applyDefaults()
	return c, nil
}

// Default returns a config with all defaults applied and keys pulled
// from the environment. Used when no config file is present.
func Default() Config {
	var c Config
	c.AI.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	c.AI.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8010
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "./data/wingman.db"
	}
	if c.AI.Provider == "" {
		c.AI.Provider = "anthropic"
	}
	if c.AI.AnthropicModel == "" {
		c.AI.AnthropicModel = "claude-sonnet-4-20250514"
	}
	if c.AI.OpenAIModel == "" {
		c.AI.OpenAIModel = "gpt-4o"
	}
	if c.AI.MaxTokens == 0 {
		c.AI.MaxTokens = 1024
	}
	if c.AI.MaxRetries == 0 {
		c.AI.MaxRetries = 3
	}
	if c.AI.RequestTimeoutSeconds == 0 {
		c.AI.RequestTimeoutSeconds = 60
	}
	if c.Memory.BufferSize == 0 {
		c.Memory.BufferSize = 100
	}
	if c.Memory.DedupWindowMinutes == 0 {
		c.Memory.DedupWindowMinutes = 10
	}
	if c.Memory.RecentSummaries == 0 {
		c.Memory.RecentSummaries = 3
	}
	if c.Memory.LongTermSummaries == 0 {
		c.Memory.LongTermSummaries = 10
	}
	if c.Flow.SkipWindowHours == 0 {
		c.Flow.SkipWindowHours = 24
	}
}

// DedupWindow returns the dedup window as a duration.
func (c MemoryConfig) DedupWindow() time.Duration {
	return time.Duration(c.DedupWindowMinutes) * time.Minute
}

// SkipWindow returns the skip window as a duration.
func (c FlowConfig) SkipWindow() time.Duration {
	return time.Duration(c.SkipWindowHours) * time.Hour
}

// RequestTimeout returns the provider call deadline as a duration.
func (c AIConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}
