package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Yates-Labs/storyimager/internal/narrative"
	"github.com/Yates-Labs/storyimager/internal/story"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())

	assert.Equal(t, narrative.ProviderGemini, c.Provider)
	assert.Equal(t, "gemini-2.5-flash", c.Model)
	assert.Equal(t, 10, c.MaxImages)
	assert.Equal(t, 20, c.MaxImageSizeMB)
	assert.Equal(t, 2048, c.MaxDimension)
	assert.Equal(t, 60*time.Second, c.Timeout)
	assert.Equal(t, 3, c.MaxAttempts)
	assert.False(t, c.AllowEnvAPIKey)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storyimager.yaml")
	content := `
provider: openai
timeout: 30s
max_attempts: 5
max_image_dimension: 0
title_policy: fixed
preferences:
  genre: horror
  chapters: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	c := Default()
	require.NoError(t, c.LoadFile(path))
	require.NoError(t, c.Validate())

	assert.Equal(t, narrative.ProviderOpenAI, c.Provider)
	assert.Equal(t, 30*time.Second, c.Timeout)
	assert.Equal(t, 5, c.MaxAttempts)
	assert.Equal(t, 0, c.MaxDimension)
	assert.Equal(t, "fixed", c.TitlePolicy)
	assert.Equal(t, narrative.Genre("horror"), c.Preferences.Genre)
	assert.True(t, c.Preferences.Chapters)

	// Untouched keys keep their defaults.
	assert.Equal(t, 10, c.MaxImages)
	assert.Equal(t, narrative.StyleCinematic, c.Preferences.Style)
}

func TestLoadFile_Errors(t *testing.T) {
	c := Default()
	assert.Error(t, c.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")))

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timeout: [not, a, duration]"), 0o600))
	assert.Error(t, c.LoadFile(path))
}

func TestApplyEnv(t *testing.T) {
	c := Default()
	err := c.ApplyEnv(envMap(map[string]string{
		"GEMINI_MODEL":          "gemini-2.5-pro",
		"MAX_IMAGE_SIZE_MB":     "5",
		"MAX_IMAGE_DIMENSION":   "1024",
		"STORYIMAGER_TIMEOUT":   "15s",
		"STORYIMAGER_LOG_LEVEL": "debug",
		"ALLOW_ENV_API_KEY":     "yes",
		"MOCK_GEMINI":           "1",
		"MOCK_SCENARIO":         "rate_limit",
	}))
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-pro", c.Model)
	assert.Equal(t, 5, c.MaxImageSizeMB)
	assert.Equal(t, 1024, c.MaxDimension)
	assert.Equal(t, 15*time.Second, c.Timeout)
	assert.Equal(t, "debug", c.LogLevel)
	assert.True(t, c.AllowEnvAPIKey)
	assert.Equal(t, narrative.ProviderMock, c.Provider)
	assert.Equal(t, narrative.ScenarioRateLimit, c.MockScenario)
}

func TestApplyEnv_BadValues(t *testing.T) {
	for key, value := range map[string]string{
		"MAX_IMAGE_SIZE_MB":   "twenty",
		"STORYIMAGER_TIMEOUT": "soon",
		"ALLOW_ENV_API_KEY":   "maybe",
	} {
		c := Default()
		err := c.ApplyEnv(envMap(map[string]string{key: value}))
		assert.True(t, errors.Is(err, ErrInvalid), key)
	}
}

func TestAPIKeyFromEnv(t *testing.T) {
	env := envMap(map[string]string{
		"GEMINI_API_KEY": " AIzaFromEnvironment00 ",
		"OPENAI_API_KEY": "sk-from-env",
	})

	c := Default()
	assert.True(t, c.APIKeyFromEnv(env).Empty(), "environment keys are off by default")

	c.AllowEnvAPIKey = true
	assert.Equal(t, "AIzaFromEnvironment00", c.APIKeyFromEnv(env).Reveal())

	c.Provider = narrative.ProviderOpenAI
	assert.Equal(t, "sk-from-env", c.APIKeyFromEnv(env).Reveal())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"provider", func(c *Config) { c.Provider = "claude" }},
		{"mock scenario", func(c *Config) { c.Provider = narrative.ProviderMock; c.MockScenario = "flaky" }},
		{"timeout", func(c *Config) { c.Timeout = 0 }},
		{"attempts", func(c *Config) { c.MaxAttempts = 0 }},
		{"backoff", func(c *Config) { c.InitialBackoff = 5 * time.Second; c.MaxBackoff = time.Second }},
		{"images", func(c *Config) { c.MaxImages = 0 }},
		{"size", func(c *Config) { c.MaxImageSizeMB = 0 }},
		{"dimension", func(c *Config) { c.MaxDimension = -1 }},
		{"temperature", func(c *Config) { c.Temperature = 3 }},
		{"title policy", func(c *Config) { c.TitlePolicy = "clever" }},
		{"preferences", func(c *Config) { c.Preferences.Tone = "sarcastic" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			err := c.Validate()
			assert.True(t, errors.Is(err, ErrInvalid), "got %v", err)
		})
	}
}

func TestLLMConfig(t *testing.T) {
	c := Default()
	c.RequestsPerMinute = 12
	llm := c.LLMConfig()
	assert.Equal(t, narrative.DefaultGeminiModel, llm.Model)
	assert.Equal(t, 12, llm.RequestsPerMinute)

	c.Provider = narrative.ProviderOpenAI
	assert.Equal(t, narrative.DefaultOpenAIModel, c.LLMConfig().Model)

	c.Model = "gpt-4o-mini"
	assert.Equal(t, "gpt-4o-mini", c.LLMConfig().Model)
}

func TestServiceConfig(t *testing.T) {
	c := Default()
	c.MaxImageSizeMB = 2
	c.TitlePolicy = "fixed"
	sc := c.ServiceConfig()

	assert.Equal(t, int64(2<<20), sc.MaxImageSize)
	assert.Equal(t, story.TitleFixed, sc.TitlePolicy)
	assert.Equal(t, 2048, sc.MaxDimension)
}
