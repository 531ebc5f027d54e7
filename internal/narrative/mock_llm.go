package narrative

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/Yates-Labs/storyimager/internal/storyerr"
)

// MockLLM is a deterministic LLM implementation for testing.
// With a fixed Seed and prompt it returns the same story on every call.
type MockLLM struct {
	// Response is the fixed text returned by Generate.
	// If empty, a story is generated from Seed and the prompt.
	Response string

	// Error, if set, is returned by Generate instead of a response.
	Error error

	// Script holds per-call outcomes consumed in order before Response/Error
	// apply. A nil entry lets that call succeed.
	Script []error

	Seed int64

	// Delay simulates model latency and honours context cancellation.
	Delay time.Duration

	mu         sync.Mutex
	calls      int
	lastPrompt *Prompt
}

// NewMockLLM creates a mock LLM with the given fixed response.
func NewMockLLM(response string) *MockLLM {
	return &MockLLM{Response: response}
}

// NewMockLLMWithError creates a mock LLM that always returns an error.
func NewMockLLMWithError(err error) *MockLLM {
	return &MockLLM{Error: err}
}

// NewSeededMockLLM creates a mock LLM that generates stories from seed.
func NewSeededMockLLM(seed int64) *MockLLM {
	return &MockLLM{Seed: seed}
}

// Mock scenarios selectable from configuration.
const (
	ScenarioSuccess         = "success"
	ScenarioTimeout         = "timeout"
	ScenarioRateLimit       = "rate_limit"
	ScenarioInvalidResponse = "invalid_response"
	ScenarioError           = "error"
	ScenarioAuth            = "auth"
)

// NewMockScenario returns a mock that behaves as the named scenario on every call.
func NewMockScenario(name string) (*MockLLM, error) {
	const op = "mock.generate"
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ScenarioSuccess, "":
		return NewSeededMockLLM(1), nil
	case ScenarioTimeout:
		return NewMockLLMWithError(storyerr.New(storyerr.KindTimeout, op, "simulated timeout")), nil
	case ScenarioRateLimit:
		return NewMockLLMWithError(storyerr.New(storyerr.KindRateLimit, op, "simulated 429 rate limit")), nil
	case ScenarioInvalidResponse:
		return NewMockLLMWithError(storyerr.New(storyerr.KindMalformedResponse, op, "simulated malformed response")), nil
	case ScenarioError:
		return NewMockLLMWithError(storyerr.New(storyerr.KindTransientNetwork, op, "simulated network failure")), nil
	case ScenarioAuth:
		return NewMockLLMWithError(storyerr.New(storyerr.KindAuth, op, "simulated invalid API key")), nil
	default:
		return nil, fmt.Errorf("%w: unknown mock scenario %q", ErrInvalidConfig, name)
	}
}

// FailFirst makes the first n calls return err, then lets calls succeed.
func (m *MockLLM) FailFirst(n int, err error) *MockLLM {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Script = make([]error, n)
	for i := range m.Script {
		m.Script[i] = err
	}
	return m
}

// Calls returns how many times Generate has been invoked.
func (m *MockLLM) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastPrompt returns the most recent prompt passed to Generate.
func (m *MockLLM) LastPrompt() *Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPrompt
}

// Generate returns the scripted outcome, the configured response, or a
// deterministic generated story.
func (m *MockLLM) Generate(ctx context.Context, prompt *Prompt, key APIKey) (*Response, error) {
	m.mu.Lock()
	m.calls++
	m.lastPrompt = prompt
	var scripted error
	if m.calls <= len(m.Script) {
		scripted = m.Script[m.calls-1]
	}
	m.mu.Unlock()

	if m.Delay > 0 {
		timer := time.NewTimer(m.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, classifyTransport(ctx, "mock.generate", ctx.Err())
		}
	}

	if scripted != nil {
		return nil, scripted
	}
	if m.Error != nil {
		return nil, m.Error
	}

	text := m.Response
	if text == "" {
		text = generateMockStory(m.Seed, prompt)
	}

	return &Response{
		Text:         text,
		FinishReason: "STOP",
		Provider:     ProviderMock,
		Model:        "mock",
	}, nil
}

var (
	mockAdjectives = []string{"Silent", "Amber", "Forgotten", "Lantern", "Glass", "Hollow", "Crimson", "Wandering"}
	mockNouns      = []string{"Harbor", "Key", "Orchard", "Signal", "Bridge", "Garden", "Tide", "Archive"}
	mockOpenings   = []string{
		"The light slanted low across the scene, catching every edge.",
		"Nobody noticed the small detail at first, but it would change everything.",
		"A quiet wind moved through the place as if it were searching for someone.",
		"Colors gathered at the corners of the frame like secrets waiting to be told.",
	}
	mockMiddles = []string{
		"Each step revealed something the morning had hidden.",
		"The longer they looked, the more the shapes seemed to answer back.",
		"It was the kind of moment that asks to be remembered.",
		"Somewhere beyond the edge of sight, a decision was already being made.",
	}
	mockClosings = []string{
		"By the time the shadows lengthened, they understood what they had found.",
		"And when it was over, the place kept its stillness, as though nothing had happened.",
		"They left carrying the scene with them, brighter than before.",
		"The story did not end there, but this part of it did.",
	}
)

// generateMockStory builds a story whose shape follows the prompt's preferences.
func generateMockStory(seed int64, prompt *Prompt) string {
	h := fnv.New64a()
	prefs := DefaultPreferences()
	if prompt != nil {
		h.Write([]byte(prompt.Instruction))
		for _, img := range prompt.Images {
			h.Write(img.Data())
		}
		prefs = prompt.Preferences
	}
	r := rand.New(rand.NewPCG(uint64(seed), h.Sum64()))
	pick := func(options []string) string { return options[r.IntN(len(options))] }

	var b strings.Builder

	if prefs.IncludeTitle() {
		b.WriteString(fmt.Sprintf("# The %s %s\n\n", pick(mockAdjectives), pick(mockNouns)))
	}

	chapters := 1
	if prefs.Chapters {
		chapters = 3
	}
	for i := 1; i <= chapters; i++ {
		if prefs.Chapters {
			b.WriteString(fmt.Sprintf("## Chapter %d: The %s\n\n", i, pick(mockNouns)))
		}
		b.WriteString(pick(mockOpenings) + " " + pick(mockMiddles) + "\n\n")
		b.WriteString(pick(mockMiddles) + " " + pick(mockClosings) + "\n\n")
	}

	return strings.TrimSpace(b.String())
}
