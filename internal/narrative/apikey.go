package narrative

import (
	"strings"

	"github.com/Yates-Labs/storyimager/internal/storyerr"
)

// APIKey is a provider credential. It is passed explicitly with every call and
// formats itself redacted so it cannot leak through logs or error strings.
type APIKey string

const geminiKeyPrefix = "AIza"

// Reveal returns the raw credential for handing to a provider SDK.
func (k APIKey) Reveal() string { return strings.TrimSpace(string(k)) }

// Empty reports whether no credential was supplied.
func (k APIKey) Empty() bool { return k.Reveal() == "" }

func (k APIKey) String() string {
	raw := k.Reveal()
	if raw == "" {
		return "<none>"
	}
	if len(raw) <= 8 {
		return "****"
	}
	return raw[:4] + "…" + raw[len(raw)-4:]
}

func (k APIKey) GoString() string { return `narrative.APIKey("` + k.String() + `")` }

// MarshalText keeps encoders from writing the raw key.
func (k APIKey) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// ValidateGeminiKey checks the shape of a Gemini API key without a network call.
func ValidateGeminiKey(k APIKey) error {
	raw := k.Reveal()
	if raw == "" {
		return storyerr.New(storyerr.KindAuth, "gemini", "API key is required")
	}
	if !strings.HasPrefix(raw, geminiKeyPrefix) {
		return storyerr.New(storyerr.KindAuth, "gemini", "API key format looks wrong (Gemini keys start with "+geminiKeyPrefix+")")
	}
	return nil
}
