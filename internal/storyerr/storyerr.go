// Package storyerr defines the failure taxonomy shared by every stage of story
// generation. Each failure carries a Kind so callers can branch on the category
// with errors.Is while the wrapped cause stays available for logging.
package storyerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuth
	KindRateLimit
	KindTransientNetwork
	KindTimeout
	KindMalformedResponse
	KindEmptyResponse
	KindProviderUnavailable
	KindRequestRejected
	KindCanceled
)

var kindNames = map[Kind]string{
	KindUnknown:             "unknown",
	KindValidation:          "validation",
	KindAuth:                "auth",
	KindRateLimit:           "rate_limit",
	KindTransientNetwork:    "transient_network",
	KindTimeout:             "timeout",
	KindMalformedResponse:   "malformed_response",
	KindEmptyResponse:       "empty_response",
	KindProviderUnavailable: "provider_unavailable",
	KindRequestRejected:     "request_rejected",
	KindCanceled:            "canceled",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Retryable reports whether a failure of this kind may succeed on another attempt.
func (k Kind) Retryable() bool {
	switch k {
	case KindRateLimit, KindTransientNetwork, KindTimeout:
		return true
	default:
		return false
	}
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrValidation          = &Error{Kind: KindValidation}
	ErrAuth                = &Error{Kind: KindAuth}
	ErrRateLimit           = &Error{Kind: KindRateLimit}
	ErrTransientNetwork    = &Error{Kind: KindTransientNetwork}
	ErrTimeout             = &Error{Kind: KindTimeout}
	ErrMalformedResponse   = &Error{Kind: KindMalformedResponse}
	ErrEmptyResponse       = &Error{Kind: KindEmptyResponse}
	ErrProviderUnavailable = &Error{Kind: KindProviderUnavailable}
	ErrRequestRejected     = &Error{Kind: KindRequestRejected}
	ErrCanceled            = &Error{Kind: KindCanceled}
)

// Error is a classified failure.
type Error struct {
	Kind Kind

	// Op names the operation that failed, e.g. "validate" or "gemini.generate".
	Op string

	Message string

	// Constraint and Index describe which validation rule failed and for which
	// input position. Index is -1 when the rule applies to the whole request.
	Constraint string
	Index      int

	// Attempts is the number of model calls made before giving up.
	Attempts int

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Attempts > 0 {
		fmt.Fprintf(&b, " (after %d attempts)", e.Attempts)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so the package sentinels work
// with errors.Is through any amount of wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New returns a classified error.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Index: -1}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, op string, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Message: message, Index: -1, Err: err}
}

// Validation reports a broken input constraint. index is -1 for request-wide rules.
func Validation(constraint string, index int, message string) *Error {
	return &Error{
		Kind:       KindValidation,
		Op:         "validate",
		Message:    message,
		Constraint: constraint,
		Index:      index,
	}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// As returns the outermost *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
