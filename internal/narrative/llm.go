// Package narrative turns validated images and story preferences into a model
// request and executes it. It defines a provider-agnostic LLM interface with
// concrete implementations for Gemini and OpenAI, a deterministic mock for
// testing, and a Client that adds timeouts, pacing and retries on top of any
// implementation.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrLLMFailed     = errors.New("LLM request failed")
	ErrInvalidConfig = errors.New("invalid LLM configuration")
)

// LLM defines the interface for interacting with multimodal language models.
// Implementations must be stateless and thread-safe. A single call is a single
// attempt; failures are returned as classified *storyerr.Error values.
type LLM interface {
	// Generate sends the prompt with its attached images, authenticated with key.
	Generate(ctx context.Context, prompt *Prompt, key APIKey) (*Response, error)
}

// Response is the raw result of a model call.
type Response struct {
	Text         string
	FinishReason string
	Provider     string
	Model        string

	// Attempts and Latency are filled in by Client.
	Attempts int
	Latency  time.Duration

	InputTokens  int
	OutputTokens int
}

// Providers understood by NewLLM.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// LLMConfig holds common configuration options for LLM providers and for the
// retry policy applied by Client.
type LLMConfig struct {
	// Provider selects the backend: gemini, openai or mock
	Provider string

	// Model specifies the model identifier (e.g., "gemini-2.5-flash", "gpt-4o")
	Model string

	// Temperature overrides the creativity-derived temperature when > 0
	Temperature float32

	// MaxTokens limits the response length (0 = use provider default)
	MaxTokens int

	// BaseURL points the provider SDK at a different endpoint (empty = SDK default)
	BaseURL string

	// Timeout bounds each individual attempt
	Timeout time.Duration

	// MaxAttempts caps the total number of attempts, including the first
	MaxAttempts int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// RequestsPerMinute paces outgoing calls (0 = unlimited)
	RequestsPerMinute int
}

const (
	DefaultGeminiModel = "gemini-2.5-flash"
	DefaultOpenAIModel = "gpt-4o"
)

// DefaultLLMConfig returns sensible defaults for story generation.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:       ProviderGemini,
		Model:          DefaultGeminiModel,
		Temperature:    0, // derived from creativity
		MaxTokens:      8192,
		Timeout:        60 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     20 * time.Second,
	}
}

// NewLLM builds the backend named by config.Provider.
func NewLLM(config LLMConfig) (LLM, error) {
	switch config.Provider {
	case ProviderGemini, "":
		llm, err := NewGeminiLLM(config)
		if err != nil {
			return nil, err
		}
		return llm, nil
	case ProviderOpenAI:
		llm, err := NewOpenAILLM(config)
		if err != nil {
			return nil, err
		}
		return llm, nil
	case ProviderMock:
		return NewSeededMockLLM(1), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q (use gemini, openai or mock)", ErrInvalidConfig, config.Provider)
	}
}
