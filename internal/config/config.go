// Package config loads storyimager settings from defaults, an optional YAML
// file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Yates-Labs/storyimager/internal/imaging"
	"github.com/Yates-Labs/storyimager/internal/narrative"
	"github.com/Yates-Labs/storyimager/internal/orchestrator"
	"github.com/Yates-Labs/storyimager/internal/story"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full settings surface. Durations in YAML use Go syntax ("60s").
type Config struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	Temperature       float32       `yaml:"temperature"`
	MaxTokens         int           `yaml:"max_tokens"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxAttempts       int           `yaml:"max_attempts"`
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	MockScenario      string        `yaml:"mock_scenario"`

	MaxImages      int  `yaml:"max_images"`
	MaxImageSizeMB int  `yaml:"max_image_size_mb"`
	MaxDimension   int  `yaml:"max_image_dimension"`
	VerifyContent  bool `yaml:"verify_content"`

	TitlePolicy    string `yaml:"title_policy"`
	MaxTitleLength int    `yaml:"max_title_length"`

	CacheTTL time.Duration `yaml:"cache_ttl"`
	LogLevel string        `yaml:"log_level"`

	// AllowEnvAPIKey lets the CLI read GEMINI_API_KEY / OPENAI_API_KEY.
	// Off unless explicitly enabled.
	AllowEnvAPIKey bool `yaml:"allow_env_api_key"`

	// Preferences are the defaults for flags the user does not set.
	Preferences narrative.Preferences `yaml:"preferences"`
}

// Default returns the built-in settings.
func Default() Config {
	llm := narrative.DefaultLLMConfig()
	return Config{
		Provider:       llm.Provider,
		Model:          llm.Model,
		MaxTokens:      llm.MaxTokens,
		Timeout:        llm.Timeout,
		MaxAttempts:    llm.MaxAttempts,
		InitialBackoff: llm.InitialBackoff,
		MaxBackoff:     llm.MaxBackoff,
		MockScenario:   narrative.ScenarioSuccess,
		MaxImages:      imaging.DefaultMaxCount,
		MaxImageSizeMB: int(imaging.DefaultMaxSize >> 20),
		MaxDimension:   imaging.DefaultMaxDimension,
		TitlePolicy:    string(story.TitleFirstLine),
		MaxTitleLength: story.DefaultMaxTitleLength,
		CacheTTL:       orchestrator.DefaultCacheTTL,
		LogLevel:       "info",
		Preferences:    narrative.DefaultPreferences(),
	}
}

// LoadFile overlays the YAML file at path onto c. Keys absent from the file
// keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays environment variables onto c.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	env := envReader{lookup: lookup}

	env.str("STORYIMAGER_PROVIDER", &c.Provider)
	env.str("STORYIMAGER_MODEL", &c.Model)
	env.str("GEMINI_MODEL", &c.Model)
	env.str("STORYIMAGER_BASE_URL", &c.BaseURL)
	env.duration("STORYIMAGER_TIMEOUT", &c.Timeout)
	env.integer("STORYIMAGER_MAX_ATTEMPTS", &c.MaxAttempts)
	env.integer("STORYIMAGER_REQUESTS_PER_MINUTE", &c.RequestsPerMinute)
	env.integer("MAX_IMAGE_SIZE_MB", &c.MaxImageSizeMB)
	env.integer("MAX_IMAGE_DIMENSION", &c.MaxDimension)
	env.integer("STORYIMAGER_MAX_IMAGES", &c.MaxImages)
	env.str("STORYIMAGER_TITLE_POLICY", &c.TitlePolicy)
	env.duration("STORYIMAGER_CACHE_TTL", &c.CacheTTL)
	env.str("STORYIMAGER_LOG_LEVEL", &c.LogLevel)
	env.str("MOCK_SCENARIO", &c.MockScenario)
	env.boolean("ALLOW_ENV_API_KEY", &c.AllowEnvAPIKey)

	var testMode, mockGemini bool
	env.boolean("TEST_MODE", &testMode)
	env.boolean("MOCK_GEMINI", &mockGemini)
	if testMode || mockGemini {
		c.Provider = narrative.ProviderMock
	}

	return env.err
}

// APIKeyFromEnv returns the provider key from the environment when
// AllowEnvAPIKey is set, and an empty key otherwise.
func (c Config) APIKeyFromEnv(lookup LookupFunc) narrative.APIKey {
	if !c.AllowEnvAPIKey {
		return ""
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	name := "GEMINI_API_KEY"
	if c.Provider == narrative.ProviderOpenAI {
		name = "OPENAI_API_KEY"
	}
	value, _ := lookup(name)
	return narrative.APIKey(strings.TrimSpace(value))
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	var problems []string

	switch c.Provider {
	case narrative.ProviderGemini, narrative.ProviderOpenAI, narrative.ProviderMock:
	default:
		problems = append(problems, fmt.Sprintf("provider %q (use gemini, openai or mock)", c.Provider))
	}
	if c.Provider == narrative.ProviderMock {
		if _, err := narrative.NewMockScenario(c.MockScenario); err != nil {
			problems = append(problems, fmt.Sprintf("mock_scenario %q", c.MockScenario))
		}
	}
	if c.Timeout <= 0 {
		problems = append(problems, "timeout must be positive")
	}
	if c.MaxAttempts < 1 {
		problems = append(problems, "max_attempts must be at least 1")
	}
	if c.InitialBackoff < 0 || c.MaxBackoff < c.InitialBackoff {
		problems = append(problems, "backoff must satisfy 0 <= initial_backoff <= max_backoff")
	}
	if c.RequestsPerMinute < 0 {
		problems = append(problems, "requests_per_minute cannot be negative")
	}
	if c.MaxImages < 1 {
		problems = append(problems, "max_images must be at least 1")
	}
	if c.MaxImageSizeMB < 1 {
		problems = append(problems, "max_image_size_mb must be at least 1")
	}
	if c.MaxDimension < 0 {
		problems = append(problems, "max_image_dimension cannot be negative")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		problems = append(problems, "temperature must be between 0 and 2")
	}
	if _, err := story.ParseTitlePolicy(c.TitlePolicy); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := c.Preferences.Resolve(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// LLMConfig returns the model client settings. An unset model picks the
// provider's default.
func (c Config) LLMConfig() narrative.LLMConfig {
	model := c.Model
	if c.Provider == narrative.ProviderOpenAI && (model == "" || model == narrative.DefaultGeminiModel) {
		model = narrative.DefaultOpenAIModel
	}
	if model == "" {
		model = narrative.DefaultGeminiModel
	}
	return narrative.LLMConfig{
		Provider:          c.Provider,
		Model:             model,
		Temperature:       c.Temperature,
		MaxTokens:         c.MaxTokens,
		BaseURL:           c.BaseURL,
		Timeout:           c.Timeout,
		MaxAttempts:       c.MaxAttempts,
		InitialBackoff:    c.InitialBackoff,
		MaxBackoff:        c.MaxBackoff,
		RequestsPerMinute: c.RequestsPerMinute,
	}
}

// ServiceConfig returns the orchestration limits.
func (c Config) ServiceConfig() orchestrator.Config {
	policy, err := story.ParseTitlePolicy(c.TitlePolicy)
	if err != nil {
		policy = story.TitleFirstLine
	}
	return orchestrator.Config{
		MaxImages:      c.MaxImages,
		MaxImageSize:   int64(c.MaxImageSizeMB) << 20,
		VerifyContent:  c.VerifyContent,
		MaxDimension:   c.MaxDimension,
		TitlePolicy:    policy,
		MaxTitleLength: c.MaxTitleLength,
	}
}

// envReader applies variables and remembers the first parse failure.
type envReader struct {
	lookup LookupFunc
	err    error
}

func (r *envReader) value(key string) (string, bool) {
	v, ok := r.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *envReader) fail(key, value string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s=%q: %v", ErrInvalid, key, value, err)
	}
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.value(key); ok {
		*dst = v
	}
}

func (r *envReader) integer(key string, dst *int) {
	v, ok := r.value(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, err)
		return
	}
	*dst = n
}

func (r *envReader) duration(key string, dst *time.Duration) {
	v, ok := r.value(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, err)
		return
	}
	*dst = d
}

func (r *envReader) boolean(key string, dst *bool) {
	v, ok := r.value(key)
	if !ok {
		return
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	default:
		r.fail(key, v, errors.New("not a boolean"))
	}
}
