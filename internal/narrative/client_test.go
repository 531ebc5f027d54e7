package narrative

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Yates-Labs/storyimager/internal/storyerr"
	"github.com/cenkalti/backoff/v4"
)

const testKey = APIKey("AIzaTestKey1234567890")

func testClient(llm LLM, attempts int) *Client {
	config := DefaultLLMConfig()
	config.MaxAttempts = attempts
	config.Timeout = time.Second
	return NewClient(llm, config, WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }))
}

func testPrompt(t *testing.T) *Prompt {
	t.Helper()
	prompt, err := BuildPrompt(testImages(t, 1), DefaultPreferences())
	if err != nil {
		t.Fatalf("unexpected prompt error: %v", err)
	}
	return prompt
}

func TestClient_Generate_Success(t *testing.T) {
	mock := NewMockLLM("Once upon a time the harbor lights came on one by one.")
	client := testClient(mock, 3)

	resp, err := client.Generate(context.Background(), testPrompt(t), testKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", resp.Attempts)
	}
	if mock.Calls() != 1 {
		t.Errorf("expected 1 call, got %d", mock.Calls())
	}
	if mock.LastPrompt() == nil {
		t.Error("mock LLM did not receive a prompt")
	}
}

func TestClient_Generate_RetriesTransientUpToCap(t *testing.T) {
	mock := NewMockLLMWithError(storyerr.New(storyerr.KindTransientNetwork, "mock", "connection reset"))
	client := testClient(mock, 4)

	_, err := client.Generate(context.Background(), testPrompt(t), testKey)
	if !errors.Is(err, storyerr.ErrProviderUnavailable) {
		t.Fatalf("expected provider unavailable, got %v", err)
	}
	if !errors.Is(err, storyerr.ErrTransientNetwork) {
		t.Errorf("expected last transient error to be wrapped, got %v", err)
	}
	if mock.Calls() != 4 {
		t.Errorf("expected exactly 4 attempts, got %d", mock.Calls())
	}
	if e, _ := storyerr.As(err); e.Attempts != 4 {
		t.Errorf("expected attempts recorded as 4, got %d", e.Attempts)
	}
}

func TestClient_Generate_NoRetryOnAuth(t *testing.T) {
	mock := NewMockLLMWithError(storyerr.New(storyerr.KindAuth, "mock", "bad key"))
	client := testClient(mock, 5)

	_, err := client.Generate(context.Background(), testPrompt(t), testKey)
	if storyerr.KindOf(err) != storyerr.KindAuth {
		t.Fatalf("expected auth error, got %v", err)
	}
	if mock.Calls() != 1 {
		t.Errorf("expected a single attempt, got %d", mock.Calls())
	}
}

func TestClient_Generate_NoRetryOnMalformed(t *testing.T) {
	mock := NewMockLLM("\x00\x01\x02")
	client := testClient(mock, 5)

	_, err := client.Generate(context.Background(), testPrompt(t), testKey)
	if storyerr.KindOf(err) != storyerr.KindMalformedResponse {
		t.Fatalf("expected malformed response, got %v", err)
	}
	if mock.Calls() != 1 {
		t.Errorf("expected a single attempt, got %d", mock.Calls())
	}
}

func TestClient_Generate_RateLimitThenSuccess(t *testing.T) {
	const n = 4
	mock := NewMockLLM("The fog lifted over the orchard.")
	mock.FailFirst(n-1, storyerr.New(storyerr.KindRateLimit, "mock", "429"))
	client := testClient(mock, n)

	resp, err := client.Generate(context.Background(), testPrompt(t), testKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Attempts != n || mock.Calls() != n {
		t.Errorf("expected %d attempts, got resp=%d calls=%d", n, resp.Attempts, mock.Calls())
	}
}

func TestClient_Generate_MissingKey(t *testing.T) {
	mock := NewMockLLM("unused")
	client := testClient(mock, 3)

	_, err := client.Generate(context.Background(), testPrompt(t), "  ")
	if !errors.Is(err, storyerr.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if mock.Calls() != 0 {
		t.Errorf("expected no calls, got %d", mock.Calls())
	}
}

func TestClient_Generate_PerAttemptTimeout(t *testing.T) {
	mock := &MockLLM{Response: "late", Delay: time.Second}
	config := DefaultLLMConfig()
	config.MaxAttempts = 2
	config.Timeout = 20 * time.Millisecond
	client := NewClient(mock, config, WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }))

	_, err := client.Generate(context.Background(), testPrompt(t), testKey)
	e, ok := storyerr.As(err)
	if !ok || e.Kind != storyerr.KindTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
	if e.Attempts != 2 || mock.Calls() != 2 {
		t.Errorf("expected 2 attempts, got err=%d calls=%d", e.Attempts, mock.Calls())
	}
}

func TestClient_Generate_BlankTextIsMalformed(t *testing.T) {
	mock := NewMockLLM("   \n\t ")
	client := testClient(mock, 3)

	_, err := client.Generate(context.Background(), testPrompt(t), testKey)
	if !errors.Is(err, storyerr.ErrMalformedResponse) {
		t.Fatalf("expected malformed response error, got %v", err)
	}
	if mock.Calls() != 1 {
		t.Errorf("expected a single attempt, got %d", mock.Calls())
	}
}

func TestClient_Generate_CanceledContext(t *testing.T) {
	mock := NewMockLLM("unused")
	client := testClient(mock, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Generate(ctx, testPrompt(t), testKey)
	if !errors.Is(err, storyerr.ErrCanceled) {
		t.Fatalf("expected canceled error, got %v", err)
	}
	if mock.Calls() != 0 {
		t.Errorf("expected no calls, got %d", mock.Calls())
	}
}

func TestClient_Generate_NilLLM(t *testing.T) {
	client := NewClient(nil, DefaultLLMConfig())
	_, err := client.Generate(context.Background(), testPrompt(t), testKey)
	if !errors.Is(err, ErrLLMFailed) {
		t.Fatalf("expected ErrLLMFailed, got %v", err)
	}
}

func TestMockLLM_Deterministic(t *testing.T) {
	prompt := testPrompt(t)
	ctx := context.Background()

	first, err := NewSeededMockLLM(42).Generate(ctx, prompt, testKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mock := NewSeededMockLLM(42)
	for i := 0; i < 3; i++ {
		again, err := mock.Generate(ctx, prompt, testKey)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if again.Text != first.Text {
			t.Fatalf("mock output changed between calls:\n%s\n---\n%s", first.Text, again.Text)
		}
	}
	if mock.Calls() != 3 {
		t.Errorf("expected 3 calls, got %d", mock.Calls())
	}
}

func TestMockLLM_ChapteredStory(t *testing.T) {
	prompt, err := BuildPrompt(testImages(t, 2), Preferences{Chapters: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp, err := NewSeededMockLLM(7).Generate(context.Background(), prompt, testKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, marker := range []string{"# The ", "## Chapter 1:", "## Chapter 2:", "## Chapter 3:"} {
		if !containsLine(resp.Text, marker) {
			t.Errorf("expected a line starting with %q in:\n%s", marker, resp.Text)
		}
	}
}

func TestMockLLM_Scenarios(t *testing.T) {
	tests := map[string]storyerr.Kind{
		ScenarioTimeout:         storyerr.KindTimeout,
		ScenarioRateLimit:       storyerr.KindRateLimit,
		ScenarioInvalidResponse: storyerr.KindMalformedResponse,
		ScenarioError:           storyerr.KindTransientNetwork,
		ScenarioAuth:            storyerr.KindAuth,
	}
	for name, want := range tests {
		mock, err := NewMockScenario(name)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		_, err = mock.Generate(context.Background(), testPrompt(t), testKey)
		if got := storyerr.KindOf(err); got != want {
			t.Errorf("%s: expected %s, got %s", name, want, got)
		}
	}

	mock, err := NewMockScenario(ScenarioSuccess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := mock.Generate(context.Background(), testPrompt(t), testKey); err != nil {
		t.Errorf("success scenario failed: %v", err)
	}

	if _, err := NewMockScenario("flaky"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestMockLLM_ConcurrentCalls(t *testing.T) {
	mock := NewMockLLM("ok story")
	prompt := testPrompt(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = mock.Generate(context.Background(), prompt, testKey)
		}()
	}
	wg.Wait()

	if mock.Calls() != 20 {
		t.Errorf("expected 20 calls, got %d", mock.Calls())
	}
}

func TestNewLLM(t *testing.T) {
	config := DefaultLLMConfig()

	config.Provider = ProviderMock
	if _, err := NewLLM(config); err != nil {
		t.Errorf("mock provider: unexpected error: %v", err)
	}

	config.Provider = ProviderGemini
	if _, err := NewLLM(config); err != nil {
		t.Errorf("gemini provider: unexpected error: %v", err)
	}

	config.Provider = ProviderOpenAI
	config.Model = DefaultOpenAIModel
	if _, err := NewLLM(config); err != nil {
		t.Errorf("openai provider: unexpected error: %v", err)
	}

	config.Provider = "claude"
	if _, err := NewLLM(config); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}

	config.Provider = ProviderGemini
	config.Model = ""
	if _, err := NewLLM(config); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for missing model, got %v", err)
	}
}

func TestAPIKey_Redacted(t *testing.T) {
	key := APIKey("AIzaSyExampleSecretValue9876")
	for _, s := range []string{key.String(), key.GoString()} {
		if s == key.Reveal() || containsSubstring(s, "ExampleSecret") {
			t.Errorf("key leaked in %q", s)
		}
	}
	if APIKey("").String() != "<none>" {
		t.Errorf("unexpected empty key rendering %q", APIKey("").String())
	}
	if err := ValidateGeminiKey("sk-not-gemini"); !errors.Is(err, storyerr.ErrAuth) {
		t.Errorf("expected auth error for wrong prefix, got %v", err)
	}
	if err := ValidateGeminiKey(key); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
