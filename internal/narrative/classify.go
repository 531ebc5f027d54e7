package narrative

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/Yates-Labs/storyimager/internal/storyerr"
)

// classifyStatus maps an HTTP status returned by a provider.
func classifyStatus(op string, code int, message string, err error) error {
	lower := strings.ToLower(message)

	switch {
	case code == http.StatusBadRequest && isKeyMessage(lower):
		return storyerr.Wrap(storyerr.KindAuth, op, err, "API key is invalid")
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return storyerr.Wrap(storyerr.KindAuth, op, err, "API key is invalid, expired, or lacks permissions")
	case code == http.StatusTooManyRequests:
		return storyerr.Wrap(storyerr.KindRateLimit, op, err, "rate limit or quota exceeded")
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return storyerr.Wrap(storyerr.KindTimeout, op, err, fmt.Sprintf("provider timed out (HTTP %d)", code))
	case code >= 500:
		return storyerr.Wrap(storyerr.KindTransientNetwork, op, err, fmt.Sprintf("provider error (HTTP %d)", code))
	case code >= 400:
		return storyerr.Wrap(storyerr.KindRequestRejected, op, err, fmt.Sprintf("request rejected (HTTP %d)", code))
	default:
		return classifyMessage(op, err)
	}
}

// classifyTransport maps failures that carry no provider status.
func classifyTransport(ctx context.Context, op string, err error) error {
	if _, ok := storyerr.As(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return storyerr.Wrap(storyerr.KindCanceled, op, err, "request canceled")
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return storyerr.Wrap(storyerr.KindTimeout, op, err, "request timed out")
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return storyerr.Wrap(storyerr.KindTimeout, op, err, "network timeout")
		}
		return storyerr.Wrap(storyerr.KindTransientNetwork, op, err, "network error")
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return storyerr.Wrap(storyerr.KindTransientNetwork, op, err, "connection interrupted")
	}

	return classifyMessage(op, err)
}

// classifyMessage inspects the error text for SDK failures without a typed cause.
func classifyMessage(op string, err error) error {
	lower := strings.ToLower(err.Error())

	switch {
	case isKeyMessage(lower) || strings.Contains(lower, "permission denied") || strings.Contains(lower, "unauthenticated"):
		return storyerr.Wrap(storyerr.KindAuth, op, err, "API key rejected")
	case strings.Contains(lower, "429") || strings.Contains(lower, "quota") ||
		strings.Contains(lower, "rate limit") || strings.Contains(lower, "resource exhausted") ||
		strings.Contains(lower, "resource_exhausted"):
		return storyerr.Wrap(storyerr.KindRateLimit, op, err, "rate limit or quota exceeded")
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out") || strings.Contains(lower, "deadline"):
		return storyerr.Wrap(storyerr.KindTimeout, op, err, "request timed out")
	case strings.Contains(lower, "invalid") || strings.Contains(lower, "malformed") || strings.Contains(lower, "parse"):
		return storyerr.Wrap(storyerr.KindMalformedResponse, op, err, "could not interpret the provider response")
	default:
		// Unrecognised failures are retried as transient.
		return storyerr.Wrap(storyerr.KindTransientNetwork, op, err, "provider call failed")
	}
}

func isKeyMessage(lower string) bool {
	return strings.Contains(lower, "api key not valid") ||
		strings.Contains(lower, "invalid api key") ||
		strings.Contains(lower, "incorrect api key") ||
		strings.Contains(lower, "api_key_invalid")
}
