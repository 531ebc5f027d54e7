// Package orchestrator runs one story request through validation, prompt
// construction, the model call and post-processing.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Yates-Labs/storyimager/internal/imaging"
	"github.com/Yates-Labs/storyimager/internal/narrative"
	"github.com/Yates-Labs/storyimager/internal/story"
	"github.com/Yates-Labs/storyimager/internal/storyerr"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// State is a step of a single generation request.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateBuildingPrompt
	StateCallingModel
	StatePostProcessing
	StateDone
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:           "idle",
	StateValidating:     "validating",
	StateBuildingPrompt: "building_prompt",
	StateCallingModel:   "calling_model",
	StatePostProcessing: "post_processing",
	StateDone:           "done",
	StateFailed:         "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrNoModel is returned by NewService when no LLM is supplied.
var ErrNoModel = errors.New("orchestrator: model is required")

// Request is everything the caller supplies for one story.
type Request struct {
	Images      []imaging.Asset
	Preferences narrative.Preferences

	// APIKey is forwarded to the model for this request only.
	APIKey narrative.APIKey
}

// Error reports the state a request failed in. Unwrap exposes the
// component error so errors.Is works against the storyerr sentinels.
type Error struct {
	RequestID string
	State     State
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("request %s failed while %s: %v", e.RequestID, e.State, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Kind returns the taxonomy kind of the underlying failure.
func (e *Error) Kind() storyerr.Kind { return storyerr.KindOf(e.Err) }

// Config holds the limits the service applies before and after the model call.
type Config struct {
	MaxImages     int
	MaxImageSize  int64
	VerifyContent bool

	// MaxDimension bounds the longest image side; 0 disables normalisation.
	MaxDimension int

	TitlePolicy    story.TitlePolicy
	MaxTitleLength int
}

// DefaultConfig returns the standard limits.
func DefaultConfig() Config {
	return Config{
		MaxImages:      imaging.DefaultMaxCount,
		MaxImageSize:   imaging.DefaultMaxSize,
		MaxDimension:   imaging.DefaultMaxDimension,
		TitlePolicy:    story.TitleFirstLine,
		MaxTitleLength: story.DefaultMaxTitleLength,
	}
}

// StateHook observes every transition of a request.
type StateHook func(requestID string, from, to State)

// Option customises a Service.
type Option func(*Service)

// WithStateHook registers hook for state transitions.
func WithStateHook(hook StateHook) Option {
	return func(s *Service) { s.hook = hook }
}

// WithLogger sets the service logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithRequestIDs replaces the request ID generator.
func WithRequestIDs(next func() string) Option {
	return func(s *Service) { s.newID = next }
}

// Service is the single entry point for story generation. It holds only
// read-only collaborators, so one Service may serve concurrent requests.
type Service struct {
	validator  *imaging.Validator
	normalizer *imaging.Normalizer
	model      narrative.LLM
	processor  *story.Processor

	hook   StateHook
	logger zerolog.Logger
	newID  func() string
}

// NewService wires the pipeline around model, which is typically a
// *narrative.Client so retries and timeouts apply.
func NewService(model narrative.LLM, config Config, opts ...Option) (*Service, error) {
	if model == nil {
		return nil, ErrNoModel
	}

	validator := imaging.NewValidator(config.MaxImages, config.MaxImageSize)
	validator.VerifyContent = config.VerifyContent

	s := &Service{
		validator: validator,
		model:     model,
		processor: story.NewProcessor(config.TitlePolicy, config.MaxTitleLength),
		logger:    log.Logger,
		newID:     uuid.NewString,
	}
	if config.MaxDimension > 0 {
		s.normalizer = imaging.NewNormalizer(config.MaxDimension)
	}

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// request tracks one call through the state machine.
type request struct {
	id     string
	state  State
	hook   StateHook
	logger zerolog.Logger
}

func (r *request) enter(next State) {
	prev := r.state
	r.state = next
	r.logger.Debug().
		Str("from", prev.String()).
		Str("state", next.String()).
		Msg("Request state changed")
	if r.hook != nil {
		r.hook(r.id, prev, next)
	}
}

func (r *request) fail(err error) error {
	failedIn := r.state
	r.enter(StateFailed)
	return &Error{RequestID: r.id, State: failedIn, Err: err}
}

// Generate produces a story from req or returns an *Error. No partial
// story is ever returned alongside an error.
func (s *Service) Generate(ctx context.Context, req Request) (*story.Story, error) {
	start := time.Now()
	r := &request{
		id:    s.newID(),
		state: StateIdle,
		hook:  s.hook,
	}
	r.logger = s.logger.With().Str("request_id", r.id).Logger()

	out, err := s.run(ctx, r, req)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("kind", storyerr.KindOf(err).String()).
			Dur("duration", time.Since(start)).
			Msg("Story generation failed")
		return nil, err
	}

	gen := out.Generation()
	r.logger.Info().
		Str("provider", gen.Provider).
		Str("model", gen.Model).
		Int("attempts", gen.Attempts).
		Int("chapters", len(out.Chapters())).
		Int("words", out.WordCount()).
		Dur("duration", time.Since(start)).
		Msg("Story generated")
	return out, nil
}

func (s *Service) run(ctx context.Context, r *request, req Request) (*story.Story, error) {
	r.enter(StateValidating)
	if err := ctx.Err(); err != nil {
		return nil, r.fail(aborted(err, "request aborted before validation"))
	}

	images, err := s.validator.Validate(req.Images)
	if err != nil {
		return nil, r.fail(err)
	}
	prefs, err := req.Preferences.Resolve()
	if err != nil {
		return nil, r.fail(err)
	}
	if s.normalizer != nil {
		if images, err = s.normalizer.NormalizeAll(images); err != nil {
			return nil, r.fail(err)
		}
	}
	r.logger.Debug().Int("image_count", len(images)).Msg("Images validated")

	r.enter(StateBuildingPrompt)
	prompt, err := narrative.BuildPrompt(images, prefs)
	if err != nil {
		return nil, r.fail(err)
	}

	r.enter(StateCallingModel)
	resp, err := s.model.Generate(ctx, prompt, req.APIKey)
	if err != nil {
		return nil, r.fail(err)
	}

	r.enter(StatePostProcessing)
	out, err := s.processor.Process(resp, prompt.Preferences)
	if err != nil {
		return nil, r.fail(err)
	}

	r.enter(StateDone)
	return out.WithRequestID(r.id), nil
}

// aborted reports a context error as Canceled, or Timeout when a deadline passed.
func aborted(err error, msg string) error {
	kind := storyerr.KindCanceled
	if errors.Is(err, context.DeadlineExceeded) {
		kind = storyerr.KindTimeout
	}
	return storyerr.Wrap(kind, "service", err, msg)
}
