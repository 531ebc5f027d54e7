package narrative

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Yates-Labs/storyimager/internal/storyerr"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// GeminiLLM implements the LLM interface using the Gemini API.
// A genai client is built per call from the supplied key; nothing about the
// key is retained.
type GeminiLLM struct {
	config     LLMConfig
	httpClient *http.Client
}

// NewGeminiLLM creates a Gemini-backed LLM implementation.
func NewGeminiLLM(config LLMConfig) (*GeminiLLM, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("%w: missing model name", ErrInvalidConfig)
	}
	return &GeminiLLM{
		config:     config,
		httpClient: &http.Client{},
	}, nil
}

// Generate sends the images followed by the instruction in a single user turn.
func (g *GeminiLLM) Generate(ctx context.Context, prompt *Prompt, key APIKey) (*Response, error) {
	const op = "gemini.generate"

	if prompt == nil || prompt.Instruction == "" {
		return nil, fmt.Errorf("%w: prompt cannot be empty", ErrInvalidConfig)
	}
	if err := ValidateGeminiKey(key); err != nil {
		return nil, err
	}

	clientConfig := &genai.ClientConfig{
		APIKey:     key.Reveal(),
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: g.httpClient,
	}
	if g.config.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: g.config.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, storyerr.Wrap(storyerr.KindAuth, op, err, "could not initialise Gemini client")
	}

	// Images first, then the instruction
	parts := make([]*genai.Part, 0, len(prompt.Images)+1)
	for _, img := range prompt.Images {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				MIMEType: img.MIMEType(),
				Data:     img.Data(),
			},
		})
	}
	parts = append(parts, &genai.Part{Text: prompt.Instruction})
	contents := []*genai.Content{{Role: "user", Parts: parts}}

	temperature := prompt.Temperature
	if g.config.Temperature > 0 {
		temperature = g.config.Temperature
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: prompt.System}},
		},
		Temperature: genai.Ptr(temperature),
	}
	if g.config.MaxTokens > 0 {
		config.MaxOutputTokens = int32(g.config.MaxTokens)
	}

	log.Debug().
		Str("model", g.config.Model).
		Int("image_parts", len(prompt.Images)).
		Msg("Starting Gemini API call")

	callStart := time.Now()
	resp, err := client.Models.GenerateContent(ctx, g.config.Model, contents, config)
	elapsed := time.Since(callStart)
	if err != nil {
		log.Debug().Err(err).Dur("duration", elapsed).Msg("Gemini API call failed")
		return nil, classifyGeminiError(ctx, op, err)
	}
	if resp == nil {
		return nil, storyerr.New(storyerr.KindMalformedResponse, op, "received empty response from Gemini API")
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, storyerr.New(storyerr.KindMalformedResponse, op,
			fmt.Sprintf("prompt blocked (%s)", resp.PromptFeedback.BlockReason))
	}
	if len(resp.Candidates) == 0 {
		return nil, storyerr.New(storyerr.KindMalformedResponse, op, "response has no candidates")
	}

	candidate := resp.Candidates[0]
	switch candidate.FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonRecitation,
		genai.FinishReasonBlocklist, genai.FinishReasonProhibitedContent, genai.FinishReasonSPII:
		return nil, storyerr.New(storyerr.KindMalformedResponse, op,
			fmt.Sprintf("generation stopped (finish reason %s)", candidate.FinishReason))
	}

	out := &Response{
		Text:         resp.Text(),
		FinishReason: string(candidate.FinishReason),
		Provider:     ProviderGemini,
		Model:        g.config.Model,
	}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	log.Debug().
		Int("response_length", len(out.Text)).
		Str("finish_reason", out.FinishReason).
		Dur("duration", elapsed).
		Msg("Gemini API response received")

	return out, nil
}

// classifyGeminiError maps a genai failure onto the error taxonomy.
func classifyGeminiError(ctx context.Context, op string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(op, apiErr.Code, apiErr.Message+" "+apiErr.Status, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return classifyStatus(op, apiErrPtr.Code, apiErrPtr.Message+" "+apiErrPtr.Status, err)
	}
	if strings.Contains(strings.ToLower(err.Error()), "api key") {
		return storyerr.Wrap(storyerr.KindAuth, op, err, "API key rejected")
	}
	return classifyTransport(ctx, op, err)
}
