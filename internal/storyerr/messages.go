package storyerr

import "fmt"

// APIKeyURL is where users obtain a Gemini key.
const APIKeyURL = "https://aistudio.google.com/app/apikey"

// UserMessage returns an actionable, user-facing description of err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	e, ok := As(err)
	if !ok {
		return "An unexpected error occurred. Please try again."
	}

	switch e.Kind {
	case KindValidation:
		if e.Index >= 0 {
			return fmt.Sprintf("Image %d was rejected: %s.", e.Index+1, e.Message)
		}
		return fmt.Sprintf("Please check your input: %s.", e.Message)
	case KindAuth:
		return "The API key is missing, invalid, or lacks permission. Enter a valid key (get one at " + APIKeyURL + ")."
	case KindRateLimit:
		return "You've exceeded the API rate limit. Please wait a moment and try again."
	case KindTransientNetwork:
		return "A network error interrupted the request. Check your connection and try again."
	case KindTimeout:
		return "The request timed out. Try fewer or smaller images, or try again later."
	case KindMalformedResponse:
		return "The model returned an unusable response. Please try again, possibly with different settings."
	case KindEmptyResponse:
		return "The model returned an empty story. Please try again."
	case KindProviderUnavailable:
		return "The story service is temporarily unavailable after several attempts. Please try again in a few minutes."
	case KindRequestRejected:
		return "The provider rejected the request. Try different images or settings."
	case KindCanceled:
		return "Story generation was canceled."
	default:
		return "An unexpected error occurred. Please try again."
	}
}
