// Package config provides configuration loading and management for
// bpmnforge.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/bpmnforge/llm"
)

// Config represents the complete bpmnforge configuration.
type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	NATS     NATSConfig     `yaml:"nats"`
	Watch    WatchConfig    `yaml:"watch"`
}

// LLMConfig configures the generation endpoints.
type LLMConfig struct {
	// Provider is the primary provider name ("anthropic", "openai", "ollama").
	Provider string `yaml:"provider"`
	// Endpoint is the base URL (empty = provider default).
	Endpoint string `yaml:"endpoint"`
	// Model is the provider-side model identifier.
	Model string `yaml:"model"`
	// MaxTokens limits response length (0 = provider default).
	MaxTokens int `yaml:"max_tokens"`
	// Temperature controls randomness (0.0-1.0).
	Temperature float64 `yaml:"temperature"`
	// Fallbacks are tried in order when the primary endpoint fails.
	Fallbacks []llm.Endpoint `yaml:"fallbacks"`
}

// PipelineConfig configures the iteration loop defaults.
type PipelineConfig struct {
	// QualityTarget stops the loop once reached (0.0-1.0).
	QualityTarget float64 `yaml:"quality_target"`
	// MaxIterations caps generation passes.
	MaxIterations int `yaml:"max_iterations"`
	// TimeBudget bounds a whole run including retries (0 = unbounded).
	TimeBudget time.Duration `yaml:"time_budget"`
}

// NATSConfig configures the request/reply service.
type NATSConfig struct {
	// URL is the NATS server URL.
	URL string `yaml:"url"`
	// Subject is the request subject the service listens on.
	Subject string `yaml:"subject"`
}

// WatchConfig configures the watch command.
type WatchConfig struct {
	// Include are doublestar patterns selecting description files.
	Include []string `yaml:"include"`
	// Exclude patterns override includes.
	Exclude []string `yaml:"exclude"`
	// Debounce coalesces rapid filesystem events.
	Debounce time.Duration `yaml:"debounce"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "ollama",
			Endpoint:    "http://localhost:11434/v1",
			Model:       "qwen2.5-coder:32b",
			Temperature: 0.2,
		},
		Pipeline: PipelineConfig{
			QualityTarget: 0.8,
			MaxIterations: 3,
			TimeBudget:    5 * time.Minute,
		},
		NATS: NATSConfig{
			URL:     "nats://localhost:4222",
			Subject: "bpmn.generate",
		},
		Watch: WatchConfig{
			Include:  []string{"**/*.txt", "**/*.md"},
			Exclude:  []string{"**/.*/**"},
			Debounce: 500 * time.Millisecond,
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.LLM.Provider == "" {
		return fmt.Errorf("llm.provider is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		return fmt.Errorf("llm.temperature must be between 0 and 1")
	}
	if c.Pipeline.QualityTarget < 0 || c.Pipeline.QualityTarget > 1 {
		return fmt.Errorf("pipeline.quality_target must be between 0 and 1")
	}
	if c.Pipeline.MaxIterations < 1 {
		return fmt.Errorf("pipeline.max_iterations must be at least 1")
	}
	if c.Pipeline.TimeBudget < 0 {
		return fmt.Errorf("pipeline.time_budget must not be negative")
	}
	if c.NATS.Subject == "" {
		return fmt.Errorf("nats.subject is required")
	}
	return nil
}

// Endpoints builds the llm endpoint chain: the primary first, then the
// configured fallbacks.
func (c *Config) Endpoints() []llm.Endpoint {
	chain := []llm.Endpoint{{
		Provider:  c.LLM.Provider,
		URL:       c.LLM.Endpoint,
		Model:     c.LLM.Model,
		MaxTokens: c.LLM.MaxTokens,
	}}
	return append(chain, c.LLM.Fallbacks...)
}

// LoadFromFile loads configuration from a YAML file on top of defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one; other takes precedence for
// non-zero values.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.LLM.Provider != "" {
		c.LLM.Provider = other.LLM.Provider
	}
	if other.LLM.Endpoint != "" {
		c.LLM.Endpoint = other.LLM.Endpoint
	}
	if other.LLM.Model != "" {
		c.LLM.Model = other.LLM.Model
	}
	if other.LLM.MaxTokens != 0 {
		c.LLM.MaxTokens = other.LLM.MaxTokens
	}
	if other.LLM.Temperature != 0 {
		c.LLM.Temperature = other.LLM.Temperature
	}
	if len(other.LLM.Fallbacks) > 0 {
		c.LLM.Fallbacks = other.LLM.Fallbacks
	}

	if other.Pipeline.QualityTarget != 0 {
		c.Pipeline.QualityTarget = other.Pipeline.QualityTarget
	}
	if other.Pipeline.MaxIterations != 0 {
		c.Pipeline.MaxIterations = other.Pipeline.MaxIterations
	}
	if other.Pipeline.TimeBudget != 0 {
		c.Pipeline.TimeBudget = other.Pipeline.TimeBudget
	}

	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.NATS.Subject != "" {
		c.NATS.Subject = other.NATS.Subject
	}

	if len(other.Watch.Include) > 0 {
		c.Watch.Include = other.Watch.Include
	}
	if len(other.Watch.Exclude) > 0 {
		c.Watch.Exclude = other.Watch.Exclude
	}
	if other.Watch.Debounce != 0 {
		c.Watch.Debounce = other.Watch.Debounce
	}
}
