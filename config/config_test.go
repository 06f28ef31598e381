package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/bpmnforge/llm"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestValidateBounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing provider", func(c *Config) { c.LLM.Provider = "" }},
		{"missing model", func(c *Config) { c.LLM.Model = "" }},
		{"temperature above one", func(c *Config) { c.LLM.Temperature = 1.5 }},
		{"target above one", func(c *Config) { c.Pipeline.QualityTarget = 1.2 }},
		{"negative target", func(c *Config) { c.Pipeline.QualityTarget = -0.1 }},
		{"zero iterations", func(c *Config) { c.Pipeline.MaxIterations = 0 }},
		{"negative budget", func(c *Config) { c.Pipeline.TimeBudget = -time.Second }},
		{"missing subject", func(c *Config) { c.NATS.Subject = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestMergePrecedence(t *testing.T) {
	base := DefaultConfig()
	base.Merge(&Config{
		LLM:      LLMConfig{Provider: "anthropic", Model: "claude-x"},
		Pipeline: PipelineConfig{QualityTarget: 0.95},
	})

	assert.Equal(t, "anthropic", base.LLM.Provider)
	assert.Equal(t, "claude-x", base.LLM.Model)
	assert.Equal(t, 0.95, base.Pipeline.QualityTarget)

	// Unset fields keep their defaults.
	assert.Equal(t, 3, base.Pipeline.MaxIterations)
	assert.Equal(t, "bpmn.generate", base.NATS.Subject)
	assert.Equal(t, 0.2, base.LLM.Temperature)
}

func TestMergeNilIsNoop(t *testing.T) {
	base := DefaultConfig()
	want := *base
	base.Merge(nil)
	assert.Equal(t, want, *base)
}

func TestLoadFromFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bpmnforge.yaml")
	content := `
llm:
  provider: openai
  model: gpt-test
pipeline:
  max_iterations: 7
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-test", cfg.LLM.Model)
	assert.Equal(t, 7, cfg.Pipeline.MaxIterations)
	assert.Equal(t, 0.8, cfg.Pipeline.QualityTarget, "default preserved")
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.LLM.Model = "roundtrip"
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "roundtrip", loaded.LLM.Model)
}

func TestEndpointsChainsPrimaryAndFallbacks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.Provider = "anthropic"
	cfg.LLM.Model = "claude-x"
	cfg.LLM.Fallbacks = []llm.Endpoint{{Provider: "ollama", Model: "llama3"}}

	endpoints := cfg.Endpoints()
	require.Len(t, endpoints, 2)
	assert.Equal(t, "anthropic", endpoints[0].Provider)
	assert.Equal(t, "claude-x", endpoints[0].Model)
	assert.Equal(t, "ollama", endpoints[1].Provider)
}
