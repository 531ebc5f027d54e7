package narrative

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/Yates-Labs/storyimager/internal/storyerr"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAILLM implements the LLM interface using OpenAI's chat completions API
// with inline image parts.
type OpenAILLM struct {
	client openai.Client
	config LLMConfig
}

// NewOpenAILLM creates an OpenAI-backed LLM implementation.
// The API key is not part of the config; it is supplied on every call.
func NewOpenAILLM(config LLMConfig) (*OpenAILLM, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("%w: missing model name", ErrInvalidConfig)
	}

	// Client owns the retry policy
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &OpenAILLM{
		client: openai.NewClient(opts...),
		config: config,
	}, nil
}

// Generate sends the prompt to OpenAI and returns the generated text.
func (o *OpenAILLM) Generate(ctx context.Context, prompt *Prompt, key APIKey) (*Response, error) {
	const op = "openai.generate"

	if prompt == nil || prompt.Instruction == "" {
		return nil, fmt.Errorf("%w: prompt cannot be empty", ErrInvalidConfig)
	}
	if key.Empty() {
		return nil, storyerr.New(storyerr.KindAuth, op, "API key is required")
	}

	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(prompt.Images)+1)
	for _, img := range prompt.Images {
		dataURL := "data:" + img.MIMEType() + ";base64," + base64.StdEncoding.EncodeToString(img.Data())
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: dataURL,
		}))
	}
	parts = append(parts, openai.TextContentPart(prompt.Instruction))

	// Build the chat completion parameters
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(o.config.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt.System),
			openai.UserMessage(parts),
		},
	}

	temperature := prompt.Temperature
	if o.config.Temperature > 0 {
		temperature = o.config.Temperature
	}
	if temperature > 0 {
		params.Temperature = openai.Float(float64(temperature))
	}
	if o.config.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(o.config.MaxTokens))
	}

	// Call the OpenAI API
	completion, err := o.client.Chat.Completions.New(ctx, params, option.WithAPIKey(key.Reveal()))
	if err != nil {
		return nil, classifyOpenAIError(ctx, op, err)
	}

	// Validate the response
	if completion == nil || len(completion.Choices) == 0 {
		return nil, storyerr.New(storyerr.KindMalformedResponse, op, "no response generated")
	}

	choice := completion.Choices[0]
	if choice.FinishReason == "content_filter" {
		return nil, storyerr.New(storyerr.KindMalformedResponse, op, "generation stopped by content filter")
	}

	return &Response{
		Text:         choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Provider:     ProviderOpenAI,
		Model:        completion.Model,
		InputTokens:  int(completion.Usage.PromptTokens),
		OutputTokens: int(completion.Usage.CompletionTokens),
	}, nil
}

func classifyOpenAIError(ctx context.Context, op string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return classifyStatus(op, apiErr.StatusCode, apiErr.Message, err)
	}
	return classifyTransport(ctx, op, err)
}
