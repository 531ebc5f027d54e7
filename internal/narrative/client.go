package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/Yates-Labs/storyimager/internal/storyerr"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Client invokes an LLM with a per-attempt timeout, optional pacing and
// bounded exponential backoff on retryable failures. It satisfies LLM itself,
// so callers can depend on the interface alone.
type Client struct {
	llm        LLM
	config     LLMConfig
	limiter    *rate.Limiter
	newBackOff func() backoff.BackOff
	logger     zerolog.Logger
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithBackOff replaces the backoff schedule, e.g. with backoff.ZeroBackOff in tests.
func WithBackOff(newBackOff func() backoff.BackOff) ClientOption {
	return func(c *Client) { c.newBackOff = newBackOff }
}

// WithLimiter paces attempts through limiter.
func WithLimiter(limiter *rate.Limiter) ClientOption {
	return func(c *Client) { c.limiter = limiter }
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient wraps llm with the retry policy described by config.
func NewClient(llm LLM, config LLMConfig, opts ...ClientOption) *Client {
	defaults := DefaultLLMConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialBackoff < 0 {
		config.InitialBackoff = 0
	}
	if config.MaxBackoff < config.InitialBackoff {
		config.MaxBackoff = config.InitialBackoff
	}

	c := &Client{
		llm:    llm,
		config: config,
		logger: log.Logger,
	}
	c.newBackOff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = c.config.InitialBackoff
		b.MaxInterval = c.config.MaxBackoff
		b.MaxElapsedTime = 0
		b.Reset()
		return b
	}
	if config.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 1)
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the effective configuration.
func (c *Client) Config() LLMConfig { return c.config }

// Generate calls the wrapped LLM until it succeeds, fails permanently, or the
// attempt cap is reached. Exhausted rate-limit and network failures surface as
// ProviderUnavailable wrapping the last error; exhausted timeouts surface as
// Timeout.
func (c *Client) Generate(ctx context.Context, prompt *Prompt, key APIKey) (*Response, error) {
	const op = "model"

	if c.llm == nil {
		return nil, fmt.Errorf("%w: LLM is required", ErrLLMFailed)
	}
	if prompt == nil {
		return nil, storyerr.New(storyerr.KindValidation, op, "prompt is required")
	}
	if key.Empty() {
		return nil, storyerr.New(storyerr.KindAuth, op, "API key is required")
	}

	var (
		resp     *Response
		attempts int
		lastErr  error
		start    = time.Now()
	)

	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(classifyTransport(ctx, op, err))
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(classifyTransport(ctx, op, err))
			}
		}

		attempts++
		r, err := c.attempt(ctx, prompt, key)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil || !storyerr.KindOf(err).Retryable() {
				return backoff.Permanent(err)
			}
			return err
		}
		resp = r
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn().
			Err(err).
			Int("attempt", attempts).
			Int("max_attempts", c.config.MaxAttempts).
			Dur("backoff", wait).
			Msg("Model call failed, retrying")
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.config.MaxAttempts-1)), ctx)
	err := backoff.RetryNotify(operation, b, notify)
	if err == nil {
		resp.Attempts = attempts
		resp.Latency = time.Since(start)
		return resp, nil
	}

	// Cancellation during a backoff wait returns the bare context error.
	if _, ok := storyerr.As(err); !ok {
		if lastErr != nil {
			err = classifyTransport(ctx, op, fmt.Errorf("%w (last attempt: %w)", err, lastErr))
		} else {
			err = classifyTransport(ctx, op, err)
		}
	}

	switch kind := storyerr.KindOf(err); {
	case ctx.Err() != nil:
		return nil, err
	case kind == storyerr.KindRateLimit || kind == storyerr.KindTransientNetwork:
		return nil, &storyerr.Error{
			Kind:     storyerr.KindProviderUnavailable,
			Op:       op,
			Message:  "retries exhausted",
			Index:    -1,
			Attempts: attempts,
			Err:      err,
		}
	case kind == storyerr.KindTimeout:
		return nil, &storyerr.Error{
			Kind:     storyerr.KindTimeout,
			Op:       op,
			Message:  fmt.Sprintf("no response within %s", c.config.Timeout),
			Index:    -1,
			Attempts: attempts,
			Err:      err,
		}
	default:
		return nil, err
	}
}

func (c *Client) attempt(ctx context.Context, prompt *Prompt, key APIKey) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	r, err := c.llm.Generate(attemptCtx, prompt, key)
	if err != nil {
		if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			if kind := storyerr.KindOf(err); kind != storyerr.KindTimeout {
				return nil, storyerr.Wrap(storyerr.KindTimeout, "model", err,
					fmt.Sprintf("attempt exceeded %s", c.config.Timeout))
			}
			return nil, err
		}
		return nil, classifyTransport(ctx, "model", err)
	}

	if err := checkResponse(r); err != nil {
		return nil, err
	}
	return r, nil
}

// checkResponse rejects responses that cannot be post-processed.
func checkResponse(r *Response) error {
	const op = "model"
	switch {
	case r == nil:
		return storyerr.New(storyerr.KindMalformedResponse, op, "no response returned")
	case strings.TrimSpace(r.Text) == "":
		msg := "response contained no text"
		if r.FinishReason != "" {
			msg += " (finish reason " + r.FinishReason + ")"
		}
		return storyerr.New(storyerr.KindMalformedResponse, op, msg)
	case !utf8.ValidString(r.Text):
		return storyerr.New(storyerr.KindMalformedResponse, op, "response is not valid UTF-8")
	case strings.ContainsRune(r.Text, 0):
		return storyerr.New(storyerr.KindMalformedResponse, op, "response contains binary data")
	case strings.IndexFunc(r.Text, unicode.IsLetter) < 0:
		return storyerr.New(storyerr.KindMalformedResponse, op, "response contains no prose")
	}
	return nil
}
